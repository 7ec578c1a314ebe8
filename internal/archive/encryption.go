package archive

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/pbkdf2"

	"mongo-blob-backup/internal/config"
	apperrors "mongo-blob-backup/internal/errors"
)

// EncryptedExtension marks encrypted unit artifacts
const EncryptedExtension = ".enc"

// Encryptor seals and opens unit artifacts with AES-256-GCM. The nonce is
// prepended to the ciphertext.
type Encryptor struct {
	cfg *config.EncryptionConfig
}

// NewEncryptor creates an encryptor for the given configuration
func NewEncryptor(cfg *config.EncryptionConfig) *Encryptor {
	return &Encryptor{cfg: cfg}
}

// Enabled reports whether artifacts are encrypted
func (e *Encryptor) Enabled() bool {
	return e.cfg != nil && e.cfg.Enabled
}

// Encrypt seals data; with encryption disabled it returns data unchanged
func (e *Encryptor) Encrypt(data []byte) ([]byte, error) {
	if !e.Enabled() {
		return data, nil
	}

	gcm, err := e.cipher()
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, apperrors.NewEncryptionError("failed to generate nonce", err)
	}

	return gcm.Seal(nonce, nonce, data, nil), nil
}

// Decrypt opens data sealed by Encrypt
func (e *Encryptor) Decrypt(data []byte) ([]byte, error) {
	if !e.Enabled() {
		return data, nil
	}

	gcm, err := e.cipher()
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return nil, apperrors.NewEncryptionError("encrypted artifact too short", nil)
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, apperrors.NewEncryptionError("failed to decrypt artifact", err)
	}

	return plaintext, nil
}

func (e *Encryptor) cipher() (cipher.AEAD, error) {
	key, err := e.Key()
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, apperrors.NewEncryptionError("failed to create AES cipher", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, apperrors.NewEncryptionError("failed to create GCM cipher", err)
	}

	return gcm, nil
}

// Key resolves the 32-byte key from the configured source
func (e *Encryptor) Key() ([]byte, error) {
	if e.cfg == nil {
		return nil, apperrors.NewEncryptionError("encryption configuration is missing", nil)
	}

	switch e.cfg.KeySource {
	case "env":
		return keyFromEnv(e.cfg.KeyEnvVar)
	case "file":
		return keyFromFile(e.cfg.KeyPath)
	default:
		return nil, apperrors.NewEncryptionError(
			fmt.Sprintf("unsupported key source: %s", e.cfg.KeySource), nil)
	}
}

func keyFromEnv(envVar string) ([]byte, error) {
	hexKey := os.Getenv(envVar)
	if hexKey == "" {
		return nil, apperrors.NewEncryptionError(
			fmt.Sprintf("environment variable %s not set", envVar), nil)
	}

	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, apperrors.NewEncryptionError("failed to decode hex key", err)
	}

	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	return key, nil
}

func keyFromFile(path string) ([]byte, error) {
	key, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.NewEncryptionError("failed to read key file", err)
	}

	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	return key, nil
}

// GenerateKey produces a random 256-bit key
func GenerateKey() ([]byte, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, apperrors.NewEncryptionError("failed to generate key", err)
	}
	return key, nil
}

// KeyFromPassword derives a 256-bit key with PBKDF2-SHA256
func KeyFromPassword(password string, salt []byte) []byte {
	if len(salt) == 0 {
		salt = make([]byte, 32)
		rand.Read(salt)
	}
	return pbkdf2.Key([]byte(password), salt, 100000, 32, sha256.New)
}

// ValidateKey checks that a key is usable for AES-256
func ValidateKey(key []byte) error {
	if len(key) != 32 {
		return apperrors.NewEncryptionError("key must be 32 bytes for AES-256", nil)
	}

	allZeros := true
	for _, b := range key {
		if b != 0 {
			allZeros = false
			break
		}
	}
	if allZeros {
		return apperrors.NewEncryptionError("key cannot be all zeros", nil)
	}

	return nil
}
