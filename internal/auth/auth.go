// Package auth provides password and API-token hashing primitives used by
// the aegis-hashpw command and aegis-server's config subcommands.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/sha3"
)

// BcryptCost is the work factor used for both account passwords and
// invitation tokens.
const BcryptCost = bcrypt.DefaultCost

// MinPasswordLength is the minimum acceptable length for an owner or admin
// account password.
const MinPasswordLength = 12

// randRead is overridden in tests to force GenerateAPIToken failures.
var randRead = rand.Read

// GenerateAPIToken returns a random 32-byte token hex-encoded to 64
// characters, suitable for device registration invitations and service
// account tokens.
func GenerateAPIToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := randRead(buf); err != nil {
		return "", fmt.Errorf("generate api token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// HashAPIToken returns the SHA3-256 digest of token, hex-encoded. Unlike
// account passwords, API tokens are high-entropy and looked up by exact
// match, so a fast deterministic hash is appropriate — bcrypt's per-call
// salt would make them impossible to index.
func HashAPIToken(token string) string {
	sum := sha3.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// CompareAPIToken reports whether token hashes to hash, using a
// constant-time comparison of the encoded digests.
func CompareAPIToken(token, hash string) bool {
	if token == "" || !IsAPITokenHashed(hash) {
		return false
	}
	candidate := HashAPIToken(token)
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(hash)) == 1
}

// IsAPITokenHashed reports whether s looks like a HashAPIToken output: 64
// lowercase-or-uppercase hex characters.
func IsAPITokenHashed(s string) bool {
	if len(s) != 64 {
		return false
	}
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

// HashPassword bcrypt-hashes password at BcryptCost.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPasswordHash reports whether password matches hash.
func CheckPasswordHash(password, hash string) bool {
	if password == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// ValidatePasswordComplexity enforces the minimum length policy for the
// owner password set by aegis-server's config bootstrap-owner command. The
// signup endpoint does not apply it.
func ValidatePasswordComplexity(password string) error {
	if len(password) < MinPasswordLength {
		return fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	}
	return nil
}
