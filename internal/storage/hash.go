package storage

import (
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	// bcryptCost 10 takes roughly 60ms per hash.
	bcryptCost  = 10
	bcryptLimit = 72
)

// bcryptInput pre-hashes keys longer than bcrypt's 72-byte input limit with SHA-256.
func bcryptInput(apiKey string) []byte {
	if len(apiKey) > bcryptLimit {
		sum := sha256.Sum256([]byte(apiKey))

		return sum[:]
	}

	return []byte(apiKey)
}

// HashAPIKey returns a salted bcrypt hash of the API key. Only hashes are persisted.
func HashAPIKey(apiKey string) (string, error) {
	if apiKey == "" {
		return "", ErrKeyNil
	}

	hash, err := bcrypt.GenerateFromPassword(bcryptInput(apiKey), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash API key: %w", err)
	}

	return string(hash), nil
}

// CompareAPIKeyHash reports whether apiKey matches the bcrypt hash. Any error, including
// empty inputs or a malformed hash, is a mismatch.
func CompareAPIKeyHash(hash, apiKey string) bool {
	if hash == "" || apiKey == "" {
		return false
	}

	return bcrypt.CompareHashAndPassword([]byte(hash), bcryptInput(apiKey)) == nil
}
