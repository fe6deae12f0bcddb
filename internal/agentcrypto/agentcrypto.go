// Package agentcrypto encrypts the agent's on-disk credential blob.
//
// The key is derived from the agent's own ID via PBKDF2-HMAC-SHA256 with
// 480,000 iterations and a random 16-byte salt (spec §6), so the blob can
// only be decrypted on the host that holds both the salt file and knows its
// own agent ID — it is not a portable secret.
package agentcrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/pbkdf2"
)

// newSHA256 is the PBKDF2 hash constructor (spec §6: PBKDF2-HMAC-SHA256).
var newSHA256 = sha256.New

const (
	// Iterations is the PBKDF2 round count mandated by spec §6.
	Iterations = 480_000
	// SaltSize is the random salt length in bytes (spec §6).
	SaltSize = 16
	// KeySize is the derived AES-256 key length in bytes.
	KeySize = 32

	saltFileName = ".credential.salt"
	saltFilePerm = 0o600
)

// Indirection points for deterministic tests, following the teacher's
// injectable-function style used throughout its crypto and update code.
var (
	randReader = rand.Reader
	newGCM     = func(block cipher.Block) (cipher.AEAD, error) { return cipher.NewGCM(block) }
)

// Manager derives a key from an agent ID plus a persisted random salt and
// encrypts/decrypts the credential blob. The salt is kept in its own file
// (.credential.salt) under the data directory and is not part of the blob;
// an encrypted blob is nonce ‖ ciphertext.
type Manager struct {
	key      []byte
	saltPath string
}

// NewManager loads (or creates) the salt file under dataDir and derives the
// AES-256 key for agentID.
func NewManager(dataDir, agentID string) (*Manager, error) {
	if agentID == "" {
		return nil, fmt.Errorf("agentcrypto: empty agent id")
	}

	saltPath := filepath.Join(dataDir, saltFileName)
	salt, err := loadOrCreateSalt(saltPath)
	if err != nil {
		return nil, fmt.Errorf("agentcrypto: load salt: %w", err)
	}

	key := pbkdf2.Key([]byte(agentID), salt, Iterations, KeySize, newSHA256)
	return &Manager{key: key, saltPath: saltPath}, nil
}

func loadOrCreateSalt(path string) ([]byte, error) {
	existing, err := os.ReadFile(path)
	if err == nil && len(existing) == SaltSize {
		return existing, nil
	}
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(randReader, salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	if err := os.WriteFile(path, salt, saltFilePerm); err != nil {
		return nil, fmt.Errorf("write salt: %w", err)
	}
	return salt, nil
}

// Encrypt seals plaintext as nonce ‖ ciphertext using AES-256-GCM.
func (m *Manager) Encrypt(plaintext []byte) ([]byte, error) {
	if m == nil || len(m.key) == 0 {
		return nil, fmt.Errorf("agentcrypto: manager not initialized")
	}

	block, err := aes.NewCipher(m.key)
	if err != nil {
		return nil, fmt.Errorf("agentcrypto: new cipher: %w", err)
	}
	gcm, err := newGCM(block)
	if err != nil {
		return nil, fmt.Errorf("agentcrypto: new gcm: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(randReader, nonce); err != nil {
		return nil, fmt.Errorf("agentcrypto: nonce: %w", err)
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt reverses Encrypt.
func (m *Manager) Decrypt(data []byte) ([]byte, error) {
	if m == nil || len(m.key) == 0 {
		return nil, fmt.Errorf("agentcrypto: manager not initialized")
	}

	block, err := aes.NewCipher(m.key)
	if err != nil {
		return nil, fmt.Errorf("agentcrypto: new cipher: %w", err)
	}
	gcm, err := newGCM(block)
	if err != nil {
		return nil, fmt.Errorf("agentcrypto: new gcm: %w", err)
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return nil, fmt.Errorf("agentcrypto: ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("agentcrypto: decrypt: %w", err)
	}
	return plaintext, nil
}

// EncryptString is a convenience wrapper returning base64-encoded ciphertext.
func (m *Manager) EncryptString(s string) (string, error) {
	ct, err := m.Encrypt([]byte(s))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(ct), nil
}

// DecryptString reverses EncryptString.
func (m *Manager) DecryptString(s string) (string, error) {
	ct, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return "", fmt.Errorf("agentcrypto: invalid base64: %w", err)
	}
	pt, err := m.Decrypt(ct)
	if err != nil {
		return "", err
	}
	return string(pt), nil
}
