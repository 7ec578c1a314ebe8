package archive

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mongo-blob-backup/internal/config"
)

func testKeyEnv(t *testing.T) *config.EncryptionConfig {
	t.Helper()

	key, err := GenerateKey()
	require.NoError(t, err)
	t.Setenv("MONGOBLOB_TEST_KEY", hex.EncodeToString(key))

	return &config.EncryptionConfig{
		Enabled:   true,
		KeySource: "env",
		KeyEnvVar: "MONGOBLOB_TEST_KEY",
	}
}

func TestGenerateKey(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)
	assert.Len(t, key, 32)
	assert.NoError(t, ValidateKey(key))
}

func TestKeyFromPassword(t *testing.T) {
	salt := []byte("0123456789abcdef0123456789abcdef")

	key1 := KeyFromPassword("hunter2", salt)
	key2 := KeyFromPassword("hunter2", salt)
	key3 := KeyFromPassword("hunter3", salt)

	assert.Len(t, key1, 32)
	assert.Equal(t, key1, key2, "same password and salt must derive the same key")
	assert.NotEqual(t, key1, key3)
}

func TestValidateKey(t *testing.T) {
	assert.Error(t, ValidateKey(nil))
	assert.Error(t, ValidateKey([]byte("short")))
	assert.Error(t, ValidateKey(make([]byte, 32)), "all-zero key must be rejected")

	key, err := GenerateKey()
	require.NoError(t, err)
	assert.NoError(t, ValidateKey(key))
}

func TestEncryptorRoundTrip(t *testing.T) {
	encryptor := NewEncryptor(testKeyEnv(t))
	plaintext := []byte("bson dump artifact contents")

	ciphertext, err := encryptor.Encrypt(plaintext)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, ciphertext)
	assert.Greater(t, len(ciphertext), len(plaintext), "nonce and tag add overhead")

	decrypted, err := encryptor.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestEncryptorRejectsTamperedData(t *testing.T) {
	encryptor := NewEncryptor(testKeyEnv(t))

	ciphertext, err := encryptor.Encrypt([]byte("payload"))
	require.NoError(t, err)

	ciphertext[len(ciphertext)-1] ^= 0xFF
	_, err = encryptor.Decrypt(ciphertext)
	assert.Error(t, err)
}

func TestEncryptorDisabledPassthrough(t *testing.T) {
	encryptor := NewEncryptor(&config.EncryptionConfig{Enabled: false})
	data := []byte("unchanged")

	out, err := encryptor.Encrypt(data)
	require.NoError(t, err)
	assert.Equal(t, data, out)

	out, err = encryptor.Decrypt(data)
	require.NoError(t, err)
	assert.Equal(t, data, out)

	assert.False(t, encryptor.Enabled())
	assert.False(t, NewEncryptor(nil).Enabled())
}

func TestEncryptorKeyFromFile(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	keyPath := filepath.Join(t.TempDir(), "backup.key")
	require.NoError(t, os.WriteFile(keyPath, key, 0o600))

	encryptor := NewEncryptor(&config.EncryptionConfig{
		Enabled:   true,
		KeySource: "file",
		KeyPath:   keyPath,
	})

	loaded, err := encryptor.Key()
	require.NoError(t, err)
	assert.Equal(t, key, loaded)
}

func TestEncryptorMissingKey(t *testing.T) {
	encryptor := NewEncryptor(&config.EncryptionConfig{
		Enabled:   true,
		KeySource: "env",
		KeyEnvVar: "MONGOBLOB_UNSET_KEY_VAR",
	})

	_, err := encryptor.Encrypt([]byte("x"))
	assert.Error(t, err)

	encryptor = NewEncryptor(&config.EncryptionConfig{
		Enabled:   true,
		KeySource: "vault",
	})
	_, err = encryptor.Key()
	assert.Error(t, err)
}
