package archive

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	apperrors "mongo-blob-backup/internal/errors"
)

// CompressionType identifies the codec applied to packed unit artifacts
type CompressionType string

const (
	// CompressionNone uploads the tar stream as-is
	CompressionNone CompressionType = "none"
	// CompressionGzip uses stdlib gzip
	CompressionGzip CompressionType = "gzip"
	// CompressionLZ4 uses LZ4 frames
	CompressionLZ4 CompressionType = "lz4"
	// CompressionZstd uses Zstandard
	CompressionZstd CompressionType = "zstd"
)

// ParseCompressionType validates a configured codec name
func ParseCompressionType(s string) (CompressionType, error) {
	switch CompressionType(s) {
	case CompressionNone, CompressionGzip, CompressionLZ4, CompressionZstd:
		return CompressionType(s), nil
	case "":
		return CompressionNone, nil
	default:
		return "", apperrors.NewValidationError(
			fmt.Sprintf("unsupported compression type: %s", s), nil)
	}
}

// Extension returns the artifact suffix for a codec
func Extension(t CompressionType) string {
	switch t {
	case CompressionGzip:
		return ".gz"
	case CompressionLZ4:
		return ".lz4"
	case CompressionZstd:
		return ".zst"
	default:
		return ""
	}
}

// CompressionStats records what a codec did to one artifact
type CompressionStats struct {
	OriginalSize     int64           `json:"original_size"`
	CompressedSize   int64           `json:"compressed_size"`
	CompressionRatio float64         `json:"compression_ratio"`
	Algorithm        CompressionType `json:"algorithm"`
	Level            int             `json:"level"`
	Duration         time.Duration   `json:"duration"`
}

// Compressor defines one codec
type Compressor interface {
	Compress(data []byte, level int) ([]byte, *CompressionStats, error)
	Decompress(data []byte) ([]byte, error)
	Type() CompressionType
	DefaultLevel() int
}

// CompressionManager dispatches to the registered codecs
type CompressionManager struct {
	compressors map[CompressionType]Compressor
}

// NewCompressionManager creates a manager with all codecs registered
func NewCompressionManager() *CompressionManager {
	return &CompressionManager{
		compressors: map[CompressionType]Compressor{
			CompressionGzip: &gzipCompressor{},
			CompressionLZ4:  &lz4Compressor{},
			CompressionZstd: &zstdCompressor{},
		},
	}
}

// Compress compresses data using the given codec and level. Level 0 selects
// the codec's default.
func (cm *CompressionManager) Compress(data []byte, algorithm CompressionType, level int) ([]byte, *CompressionStats, error) {
	if algorithm == CompressionNone {
		return data, &CompressionStats{
			OriginalSize:     int64(len(data)),
			CompressedSize:   int64(len(data)),
			CompressionRatio: 1.0,
			Algorithm:        CompressionNone,
		}, nil
	}

	compressor, exists := cm.compressors[algorithm]
	if !exists {
		return nil, nil, apperrors.NewArchiveError(
			fmt.Sprintf("unsupported compression type: %s", algorithm), nil)
	}
	if level <= 0 {
		level = compressor.DefaultLevel()
	}

	return compressor.Compress(data, level)
}

// Decompress reverses Compress for the given codec
func (cm *CompressionManager) Decompress(data []byte, algorithm CompressionType) ([]byte, error) {
	if algorithm == CompressionNone {
		return data, nil
	}

	compressor, exists := cm.compressors[algorithm]
	if !exists {
		return nil, apperrors.NewArchiveError(
			fmt.Sprintf("unsupported compression type: %s", algorithm), nil)
	}

	return compressor.Decompress(data)
}

func compressionRatio(originalSize, compressedSize int64) float64 {
	if originalSize == 0 {
		return 1.0
	}
	return float64(compressedSize) / float64(originalSize)
}

// gzipCompressor implements gzip compression
type gzipCompressor struct{}

func (gc *gzipCompressor) Compress(data []byte, level int) ([]byte, *CompressionStats, error) {
	start := time.Now()

	if level > gzip.BestCompression {
		level = gzip.BestCompression
	}

	var buf bytes.Buffer
	writer, err := gzip.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, nil, apperrors.NewArchiveError("failed to create gzip writer", err)
	}
	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return nil, nil, apperrors.NewArchiveError("failed to write gzip data", err)
	}
	if err := writer.Close(); err != nil {
		return nil, nil, apperrors.NewArchiveError("failed to close gzip writer", err)
	}

	compressed := buf.Bytes()
	return compressed, &CompressionStats{
		OriginalSize:     int64(len(data)),
		CompressedSize:   int64(len(compressed)),
		CompressionRatio: compressionRatio(int64(len(data)), int64(len(compressed))),
		Algorithm:        CompressionGzip,
		Level:            level,
		Duration:         time.Since(start),
	}, nil
}

func (gc *gzipCompressor) Decompress(data []byte) ([]byte, error) {
	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, apperrors.NewArchiveError("failed to create gzip reader", err)
	}
	defer reader.Close()

	decompressed, err := io.ReadAll(reader)
	if err != nil {
		return nil, apperrors.NewArchiveError("failed to decompress gzip data", err)
	}
	return decompressed, nil
}

func (gc *gzipCompressor) Type() CompressionType { return CompressionGzip }
func (gc *gzipCompressor) DefaultLevel() int     { return gzip.DefaultCompression }

// lz4Compressor implements LZ4 frame compression
type lz4Compressor struct{}

func (lc *lz4Compressor) Compress(data []byte, level int) ([]byte, *CompressionStats, error) {
	start := time.Now()

	var buf bytes.Buffer
	writer := lz4.NewWriter(&buf)
	// LZ4 only distinguishes fast and high compression
	if level > 6 {
		if err := writer.Apply(lz4.CompressionLevelOption(lz4.Level9)); err != nil {
			return nil, nil, apperrors.NewArchiveError("failed to set LZ4 compression level", err)
		}
	}

	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return nil, nil, apperrors.NewArchiveError("failed to write LZ4 data", err)
	}
	if err := writer.Close(); err != nil {
		return nil, nil, apperrors.NewArchiveError("failed to close LZ4 writer", err)
	}

	compressed := buf.Bytes()
	return compressed, &CompressionStats{
		OriginalSize:     int64(len(data)),
		CompressedSize:   int64(len(compressed)),
		CompressionRatio: compressionRatio(int64(len(data)), int64(len(compressed))),
		Algorithm:        CompressionLZ4,
		Level:            level,
		Duration:         time.Since(start),
	}, nil
}

func (lc *lz4Compressor) Decompress(data []byte) ([]byte, error) {
	decompressed, err := io.ReadAll(lz4.NewReader(bytes.NewReader(data)))
	if err != nil {
		return nil, apperrors.NewArchiveError("failed to decompress LZ4 data", err)
	}
	return decompressed, nil
}

func (lc *lz4Compressor) Type() CompressionType { return CompressionLZ4 }
func (lc *lz4Compressor) DefaultLevel() int     { return 1 }

// zstdCompressor implements Zstandard compression
type zstdCompressor struct{}

func (zc *zstdCompressor) Compress(data []byte, level int) ([]byte, *CompressionStats, error) {
	start := time.Now()

	encoderLevel := zstd.SpeedDefault
	switch {
	case level <= 1:
		encoderLevel = zstd.SpeedFastest
	case level <= 3:
		encoderLevel = zstd.SpeedDefault
	case level <= 6:
		encoderLevel = zstd.SpeedBetterCompression
	default:
		encoderLevel = zstd.SpeedBestCompression
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(encoderLevel))
	if err != nil {
		return nil, nil, apperrors.NewArchiveError("failed to create zstd encoder", err)
	}
	defer encoder.Close()

	compressed := encoder.EncodeAll(data, make([]byte, 0, len(data)))
	return compressed, &CompressionStats{
		OriginalSize:     int64(len(data)),
		CompressedSize:   int64(len(compressed)),
		CompressionRatio: compressionRatio(int64(len(data)), int64(len(compressed))),
		Algorithm:        CompressionZstd,
		Level:            level,
		Duration:         time.Since(start),
	}, nil
}

func (zc *zstdCompressor) Decompress(data []byte) ([]byte, error) {
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, apperrors.NewArchiveError("failed to create zstd decoder", err)
	}
	defer decoder.Close()

	decompressed, err := decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, apperrors.NewArchiveError("failed to decompress zstd data", err)
	}
	return decompressed, nil
}

func (zc *zstdCompressor) Type() CompressionType { return CompressionZstd }
func (zc *zstdCompressor) DefaultLevel() int     { return 3 }
