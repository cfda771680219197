package storage

import (
	"context"
	"slices"
	"sync"
)

// InMemoryKeyStore is a thread-safe APIKeyStore held in process memory. It backs the
// server in fixture mode and the middleware tests.
type InMemoryKeyStore struct {
	keys         map[string]*APIKey
	keysByID     map[string]*APIKey
	keysByClient map[string][]*APIKey
	mutex        sync.RWMutex
}

// NewInMemoryKeyStore creates an empty in-memory key store.
func NewInMemoryKeyStore() *InMemoryKeyStore {
	return &InMemoryKeyStore{
		keys:         make(map[string]*APIKey),
		keysByID:     make(map[string]*APIKey),
		keysByClient: make(map[string][]*APIKey),
	}
}

// FindByKey retrieves an API key by its key value. The result is a copy.
func (s *InMemoryKeyStore) FindByKey(_ context.Context, key string) (*APIKey, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	apiKey, exists := s.keys[key]
	if !exists {
		return nil, false
	}

	return cloneKey(apiKey), true
}

// Add stores a new API key.
func (s *InMemoryKeyStore) Add(_ context.Context, apiKey *APIKey) error {
	if apiKey == nil { // pragma: allowlist secret
		return ErrKeyNil
	}

	if apiKey.ClientID == "" {
		return ErrClientIDEmpty
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.keysByID[apiKey.ID]; exists {
		return ErrKeyAlreadyExists
	}

	if _, exists := s.keys[apiKey.Key]; exists {
		return ErrKeyAlreadyExists
	}

	stored := cloneKey(apiKey)
	s.keys[stored.Key] = stored
	s.keysByID[stored.ID] = stored
	s.keysByClient[stored.ClientID] = append(s.keysByClient[stored.ClientID], stored)

	return nil
}

// Update replaces an existing API key, matched by ID.
func (s *InMemoryKeyStore) Update(_ context.Context, apiKey *APIKey) error {
	if apiKey == nil { // pragma: allowlist secret
		return ErrKeyNil
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	existing, exists := s.keysByID[apiKey.ID]
	if !exists {
		return ErrKeyNotFound
	}

	s.removeFromClient(existing.ClientID, existing.ID)
	delete(s.keys, existing.Key)

	stored := cloneKey(apiKey)
	s.keys[stored.Key] = stored
	s.keysByID[stored.ID] = stored
	s.keysByClient[stored.ClientID] = append(s.keysByClient[stored.ClientID], stored)

	return nil
}

// Delete removes an API key.
func (s *InMemoryKeyStore) Delete(_ context.Context, keyID string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	existing, exists := s.keysByID[keyID]
	if !exists {
		return ErrKeyNotFound
	}

	delete(s.keys, existing.Key)
	delete(s.keysByID, keyID)
	s.removeFromClient(existing.ClientID, keyID)

	return nil
}

// ListByClient returns copies of a client's keys, empty for unknown clients.
func (s *InMemoryKeyStore) ListByClient(_ context.Context, clientID string) ([]*APIKey, error) {
	if clientID == "" {
		return nil, ErrClientIDEmpty
	}

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	keys := s.keysByClient[clientID]
	result := make([]*APIKey, 0, len(keys))

	for _, key := range keys {
		result = append(result, cloneKey(key))
	}

	return result, nil
}

// HealthCheck always succeeds.
func (s *InMemoryKeyStore) HealthCheck(_ context.Context) error {
	return nil
}

// removeFromClient drops keyID from the client index. Caller must hold the write lock.
func (s *InMemoryKeyStore) removeFromClient(clientID, keyID string) {
	keys := slices.DeleteFunc(s.keysByClient[clientID], func(k *APIKey) bool { return k.ID == keyID })

	if len(keys) == 0 {
		delete(s.keysByClient, clientID)

		return
	}

	s.keysByClient[clientID] = keys
}

func cloneKey(k *APIKey) *APIKey {
	c := *k
	c.Permissions = slices.Clone(k.Permissions)

	if k.ExpiresAt != nil {
		exp := *k.ExpiresAt
		c.ExpiresAt = &exp
	}

	return &c
}

var _ APIKeyStore = (*InMemoryKeyStore)(nil)
