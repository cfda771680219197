package storage

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAPIKey = "depgraph_ak_0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef" // pragma: allowlist secret

func TestHashAPIKey(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	tests := []struct {
		name    string
		apiKey  string
		wantErr error
	}{
		{name: "standard key", apiKey: testAPIKey},
		{name: "short key", apiKey: "sk-123"},
		{name: "key beyond bcrypt limit", apiKey: strings.Repeat("a", 100)},
		{name: "empty key", apiKey: "", wantErr: ErrKeyNil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := HashAPIKey(tt.apiKey)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, hash)

				return
			}

			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(hash, "$2a$10$"), "unexpected hash format %q", hash)
			assert.NotContains(t, hash, tt.apiKey)
			assert.True(t, CompareAPIKeyHash(hash, tt.apiKey))
		})
	}
}

func TestHashAPIKeyIsSalted(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	first, err := HashAPIKey(testAPIKey)
	require.NoError(t, err)

	second, err := HashAPIKey(testAPIKey)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.True(t, CompareAPIKeyHash(first, testAPIKey))
	assert.True(t, CompareAPIKeyHash(second, testAPIKey))
}

func TestCompareAPIKeyHash(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	hash, err := HashAPIKey(testAPIKey)
	require.NoError(t, err)

	// Keys beyond 72 bytes that differ only after byte 72 must not collide.
	long := strings.Repeat("a", 80)
	longHash, err := HashAPIKey(long)
	require.NoError(t, err)

	tests := []struct {
		name   string
		hash   string
		apiKey string
		want   bool
	}{
		{name: "match", hash: hash, apiKey: testAPIKey, want: true},
		{name: "mismatch", hash: hash, apiKey: testAPIKey[:len(testAPIKey)-1] + "0", want: false},
		{name: "empty hash", hash: "", apiKey: testAPIKey, want: false},
		{name: "empty key", hash: hash, apiKey: "", want: false},
		{name: "malformed hash", hash: "not-a-bcrypt-hash", apiKey: testAPIKey, want: false},
		{name: "long key differing after limit", hash: longHash, apiKey: strings.Repeat("a", 79) + "b", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CompareAPIKeyHash(tt.hash, tt.apiKey))
		})
	}
}
