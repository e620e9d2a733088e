// ABOUTME: Token vault that encrypts OAuth credential bundles with AES-256-GCM
// ABOUTME: Tokens are hex(nonce):hex(tag):hex(ciphertext) under a 64-hex-character key
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/harperreed/subzero/config"
	"github.com/harperreed/subzero/models"
)

const (
	// EnvKey is the environment variable holding the hex key.
	EnvKey = "ENCRYPTION_KEY"

	keySize   = 32
	nonceSize = 12
	tagSize   = 16
)

var (
	// ErrMalformed means the token does not have three segments.
	ErrMalformed = errors.New("malformed vault token")
	// ErrCorrupt means a segment is not valid hex or has the wrong length.
	ErrCorrupt = errors.New("corrupt vault token")
	// ErrAuthentication means the tag did not verify: wrong key or tampered data.
	ErrAuthentication = errors.New("vault token failed authentication")
)

// Vault encrypts and decrypts credential bundles.
type Vault struct {
	keyFunc func() string
}

// New returns a vault that reads its hex key from keyFunc on every call.
func New(keyFunc func() string) *Vault {
	return &Vault{keyFunc: keyFunc}
}

// FromEnv returns a vault keyed by ENCRYPTION_KEY, read at call time.
func FromEnv() *Vault {
	return New(func() string { return os.Getenv(EnvKey) })
}

// GenerateKey returns a fresh random key in the expected hex form.
func GenerateKey() (string, error) {
	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("failed to generate key: %w", err)
	}
	return hex.EncodeToString(key), nil
}

// Check validates the configured key without encrypting anything.
func (v *Vault) Check() error {
	_, err := v.aead()
	return err
}

func (v *Vault) aead() (cipher.AEAD, error) {
	raw := ""
	if v.keyFunc != nil {
		raw = strings.TrimSpace(v.keyFunc())
	}
	if raw == "" {
		return nil, config.Errorf("%s is not set", EnvKey)
	}
	if len(raw) != keySize*2 {
		return nil, config.Errorf("%s must be %d hex characters, got %d", EnvKey, keySize*2, len(raw))
	}
	key, err := hex.DecodeString(raw)
	if err != nil {
		return nil, config.Errorf("%s is not valid hex", EnvKey)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// Encrypt seals plaintext under a fresh random nonce.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	gcm, err := v.aead()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)
	ct, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]

	return hex.EncodeToString(nonce) + ":" + hex.EncodeToString(tag) + ":" + hex.EncodeToString(ct), nil
}

// Decrypt opens a token produced by Encrypt.
func (v *Vault) Decrypt(token string) (string, error) {
	gcm, err := v.aead()
	if err != nil {
		return "", err
	}

	parts := strings.Split(token, ":")
	if len(parts) != 3 {
		return "", fmt.Errorf("%w: expected 3 segments, got %d", ErrMalformed, len(parts))
	}

	nonce, err := hex.DecodeString(parts[0])
	if err != nil || len(nonce) != nonceSize {
		return "", fmt.Errorf("%w: bad nonce", ErrCorrupt)
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil || len(tag) != tagSize {
		return "", fmt.Errorf("%w: bad tag", ErrCorrupt)
	}
	ct, err := hex.DecodeString(parts[2])
	if err != nil {
		return "", fmt.Errorf("%w: bad ciphertext", ErrCorrupt)
	}

	sealed := make([]byte, 0, len(ct)+len(tag))
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)

	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrAuthentication
	}
	return string(plaintext), nil
}

// SealBundle serializes and encrypts a credential bundle.
func (v *Vault) SealBundle(b *models.CredentialBundle) (string, error) {
	data, err := json.Marshal(b)
	if err != nil {
		return "", fmt.Errorf("failed to encode credentials: %w", err)
	}
	return v.Encrypt(string(data))
}

// OpenBundle decrypts and parses a credential bundle.
func (v *Vault) OpenBundle(token string) (*models.CredentialBundle, error) {
	plaintext, err := v.Decrypt(token)
	if err != nil {
		return nil, err
	}
	var b models.CredentialBundle
	if err := json.Unmarshal([]byte(plaintext), &b); err != nil {
		return nil, fmt.Errorf("%w: credentials are not valid JSON", ErrCorrupt)
	}
	return &b, nil
}
