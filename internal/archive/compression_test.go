package archive

import (
	"crypto/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCompressionType(t *testing.T) {
	tests := []struct {
		input   string
		want    CompressionType
		wantErr bool
	}{
		{"none", CompressionNone, false},
		{"gzip", CompressionGzip, false},
		{"lz4", CompressionLZ4, false},
		{"zstd", CompressionZstd, false},
		{"", CompressionNone, false},
		{"bzip2", "", true},
		{"GZIP", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseCompressionType(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtension(t *testing.T) {
	assert.Equal(t, "", Extension(CompressionNone))
	assert.Equal(t, ".gz", Extension(CompressionGzip))
	assert.Equal(t, ".lz4", Extension(CompressionLZ4))
	assert.Equal(t, ".zst", Extension(CompressionZstd))
}

func TestCompressionManager_CompressNone(t *testing.T) {
	cm := NewCompressionManager()
	testData := []byte("dump bytes for packaging")

	compressed, stats, err := cm.Compress(testData, CompressionNone, 0)

	require.NoError(t, err)
	assert.Equal(t, testData, compressed)
	assert.Equal(t, int64(len(testData)), stats.OriginalSize)
	assert.Equal(t, int64(len(testData)), stats.CompressedSize)
	assert.Equal(t, 1.0, stats.CompressionRatio)
	assert.Equal(t, CompressionNone, stats.Algorithm)
}

func TestCompressionManager_RoundTrip(t *testing.T) {
	cm := NewCompressionManager()
	testData := []byte(strings.Repeat("documents documents documents ", 200))

	for _, algorithm := range []CompressionType{CompressionGzip, CompressionLZ4, CompressionZstd} {
		t.Run(string(algorithm), func(t *testing.T) {
			compressed, stats, err := cm.Compress(testData, algorithm, 0)
			require.NoError(t, err)
			require.NotNil(t, stats)

			assert.Equal(t, algorithm, stats.Algorithm)
			assert.Equal(t, int64(len(testData)), stats.OriginalSize)
			assert.Equal(t, int64(len(compressed)), stats.CompressedSize)
			assert.Less(t, stats.CompressedSize, stats.OriginalSize,
				"repetitive data should shrink")

			decompressed, err := cm.Decompress(compressed, algorithm)
			require.NoError(t, err)
			assert.Equal(t, testData, decompressed)
		})
	}
}

func TestCompressionManager_HighLevelRoundTrip(t *testing.T) {
	cm := NewCompressionManager()
	testData := []byte(strings.Repeat("abcdef", 500))

	for _, algorithm := range []CompressionType{CompressionGzip, CompressionLZ4, CompressionZstd} {
		compressed, _, err := cm.Compress(testData, algorithm, 9)
		require.NoError(t, err)

		decompressed, err := cm.Decompress(compressed, algorithm)
		require.NoError(t, err)
		assert.Equal(t, testData, decompressed)
	}
}

func TestCompressionManager_RandomData(t *testing.T) {
	cm := NewCompressionManager()
	testData := make([]byte, 4096)
	_, err := rand.Read(testData)
	require.NoError(t, err)

	compressed, _, err := cm.Compress(testData, CompressionZstd, 3)
	require.NoError(t, err)

	decompressed, err := cm.Decompress(compressed, CompressionZstd)
	require.NoError(t, err)
	assert.Equal(t, testData, decompressed)
}

func TestCompressionManager_Unsupported(t *testing.T) {
	cm := NewCompressionManager()

	_, _, err := cm.Compress([]byte("x"), CompressionType("bzip2"), 1)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported compression type")

	_, err = cm.Decompress([]byte("x"), CompressionType("bzip2"))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported compression type")
}

func TestCompressionManager_DecompressGarbage(t *testing.T) {
	cm := NewCompressionManager()

	for _, algorithm := range []CompressionType{CompressionGzip, CompressionZstd} {
		_, err := cm.Decompress([]byte("not a compressed stream"), algorithm)
		assert.Error(t, err, "algorithm %s should reject garbage", algorithm)
	}
}
