// Package storage implements the facts stores (PostgreSQL and YAML fixture) and the
// API key stores used by the depgraph service.
package storage

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

const (
	// API key format: "depgraph_ak_" followed by 64 hex characters.
	apiKeyPrefix    = "depgraph_ak_" // pragma: allowlist secret
	randomBytesSize = 32
	apiKeyLength    = len(apiKeyPrefix) + 2*randomBytesSize
	prefixLen       = len(apiKeyPrefix) + 4 // "depgraph_ak_1a2b"
	suffixLen       = 4
)

var (
	// ErrKeyAlreadyExists is returned when attempting to add a key that already exists.
	ErrKeyAlreadyExists = errors.New("API key already exists")
	// ErrKeyNotFound is returned when attempting to operate on a non-existent key.
	ErrKeyNotFound = errors.New("API key not found")
	// ErrKeyNil is returned when a nil API key is provided.
	ErrKeyNil = errors.New("API key cannot be nil")
	// ErrClientIDEmpty is returned when the client ID is empty.
	ErrClientIDEmpty = errors.New("client ID cannot be empty")
	// ErrKeyStringEmpty is returned when key string is empty during parsing.
	ErrKeyStringEmpty = errors.New("key string cannot be empty")
	// ErrInvalidKeyFormat is returned when API key doesn't match expected format.
	ErrInvalidKeyFormat = errors.New("invalid API key format")
	// ErrInvalidKeyLength is returned when API key length is incorrect.
	ErrInvalidKeyLength = errors.New("invalid API key length")
)

// APIKey is an API key issued to a client of the query API.
type APIKey struct {
	ID          string     `json:"id"`
	Key         string     `json:"key"`
	ClientID    string     `json:"clientId"`
	Name        string     `json:"name"`
	Permissions []string   `json:"permissions"`
	CreatedAt   time.Time  `json:"createdAt"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
	Active      bool       `json:"active"`
}

// APIKeyStore stores API keys.
type APIKeyStore interface {
	// FindByKey retrieves an API key by its plaintext value.
	FindByKey(ctx context.Context, key string) (*APIKey, bool)
	// Add stores a new API key.
	Add(ctx context.Context, apiKey *APIKey) error
	// Update modifies an existing API key.
	Update(ctx context.Context, apiKey *APIKey) error
	// Delete deactivates or removes an API key.
	Delete(ctx context.Context, keyID string) error
	// ListByClient returns the API keys of a client.
	ListByClient(ctx context.Context, clientID string) ([]*APIKey, error)
	// HealthCheck reports whether the backing store can serve lookups.
	HealthCheck(ctx context.Context) error
}

// ValidateKey performs a constant-time comparison of providedKey against this key and
// checks that the key is active and unexpired.
func (ak *APIKey) ValidateKey(providedKey string) bool {
	if providedKey == "" || ak.Key == "" || !ak.Active {
		return false
	}

	if ak.Expired(time.Now()) {
		return false
	}

	return SecureCompare(ak.Key, providedKey)
}

// Expired reports whether the key has an expiry before now.
func (ak *APIKey) Expired(now time.Time) bool {
	return ak.ExpiresAt != nil && now.After(*ak.ExpiresAt)
}

// HasPermission checks if the API key grants permission.
func (ak *APIKey) HasPermission(permission string) bool {
	return slices.Contains(ak.Permissions, permission)
}

// SecureCompare compares two strings in constant time.
func SecureCompare(a, b string) bool {
	if len(a) != len(b) {
		dummy := make([]byte, len(a))
		subtle.ConstantTimeCompare([]byte(a), dummy)

		return false
	}

	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// MaskKey masks an API key for logging. Standard keys keep their prefix and last four
// characters; anything else is masked completely.
func MaskKey(key string) string {
	if key == "" {
		return ""
	}

	if len(key) == apiKeyLength {
		return key[:prefixLen] + strings.Repeat("*", apiKeyLength-prefixLen-suffixLen) + key[apiKeyLength-suffixLen:]
	}

	return strings.Repeat("*", len(key))
}

// GenerateAPIKey creates a new random API key for a client.
func GenerateAPIKey(clientID string) (string, error) {
	if clientID == "" {
		return "", ErrClientIDEmpty
	}

	randomBytes := make([]byte, randomBytesSize)

	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	return apiKeyPrefix + hex.EncodeToString(randomBytes), nil
}

// ParseAPIKey extracts and validates an API key from a header value, accepting an
// optional "Bearer " prefix.
func ParseAPIKey(keyString string) (string, error) {
	if keyString == "" {
		return "", ErrKeyStringEmpty
	}

	keyString = strings.TrimPrefix(keyString, "Bearer ")

	if !strings.HasPrefix(keyString, apiKeyPrefix) {
		return "", ErrInvalidKeyFormat
	}

	if len(keyString) != apiKeyLength {
		return "", ErrInvalidKeyLength
	}

	return keyString, nil
}
