package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/depgraph-io/depgraph/internal/config"
)

const (
	keyCreated = "created"
	keyUpdated = "updated"
	keyDeleted = "deleted"
)

const apiKeyColumns = `id, key_hash, client_id, name, permissions, created_at, expires_at, active`

// PersistentKeyStore implements APIKeyStore over the api_keys table. Keys are stored as
// bcrypt hashes and every mutation writes an api_key_audit_log row.
type PersistentKeyStore struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPersistentKeyStore creates a PostgreSQL key store.
func NewPersistentKeyStore(conn *Connection) (*PersistentKeyStore, error) {
	if conn == nil {
		return nil, ErrNoDatabaseConnection
	}

	return &PersistentKeyStore{
		conn: conn,
		logger: slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: config.GetEnvLogLevel("DEPGRAPH_SERVER_LOG_LEVEL", slog.LevelInfo),
		})),
	}, nil
}

// Close is a no-op; the connection is owned by the caller.
func (s *PersistentKeyStore) Close() error {
	return nil
}

// HealthCheck verifies the database connection is healthy.
func (s *PersistentKeyStore) HealthCheck(ctx context.Context) error {
	return s.conn.HealthCheck(ctx)
}

// FindByKey retrieves an active API key by comparing key against every stored bcrypt
// hash. The returned key carries a masked hash, never the plaintext.
func (s *PersistentKeyStore) FindByKey(ctx context.Context, key string) (*APIKey, bool) {
	if key == "" {
		return nil, false
	}

	rows, err := s.conn.QueryContext(ctx, `SELECT `+apiKeyColumns+` FROM api_keys WHERE active = TRUE`)
	if err != nil {
		s.logger.Error("Failed to query API keys", slog.String("error", err.Error()))

		return nil, false
	}

	defer func() {
		_ = rows.Close()
	}()

	for rows.Next() {
		apiKey, err := scanAPIKey(rows)
		if err != nil {
			continue
		}

		if CompareAPIKeyHash(apiKey.Key, key) {
			apiKey.Key = MaskKey(key)

			return apiKey, true
		}
	}

	if err := rows.Err(); err != nil {
		s.logger.Error("Failed to find API key",
			slog.String("key", MaskKey(key)),
			slog.String("error", err.Error()))
	}

	return nil, false
}

// Add hashes and stores a new API key. Duplicates are detected by hash comparison since
// bcrypt salts every hash.
func (s *PersistentKeyStore) Add(ctx context.Context, apiKey *APIKey) error {
	if apiKey == nil { // pragma: allowlist secret
		return ErrKeyNil
	}

	if apiKey.ClientID == "" {
		return ErrClientIDEmpty
	}

	if _, found := s.FindByKey(ctx, apiKey.Key); found {
		return ErrKeyAlreadyExists
	}

	keyHash, err := HashAPIKey(apiKey.Key)
	if err != nil {
		return err
	}

	permissions, err := permissionsToJSON(apiKey.Permissions)
	if err != nil {
		return fmt.Errorf("failed to serialize permissions: %w", err)
	}

	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO api_keys (`+apiKeyColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		apiKey.ID, keyHash, apiKey.ClientID, apiKey.Name, permissions,
		apiKey.CreatedAt, apiKey.ExpiresAt, apiKey.Active,
	)
	if err != nil {
		return fmt.Errorf("failed to insert API key: %w", err)
	}

	s.audit(ctx, keyCreated, apiKey)

	return nil
}

// Update changes name, permissions, active flag and expiry. The key hash is immutable.
func (s *PersistentKeyStore) Update(ctx context.Context, apiKey *APIKey) error {
	if apiKey == nil { // pragma: allowlist secret
		return ErrKeyNil
	}

	if apiKey.ID == "" {
		return ErrKeyNotFound
	}

	permissions, err := permissionsToJSON(apiKey.Permissions)
	if err != nil {
		return fmt.Errorf("failed to serialize permissions: %w", err)
	}

	result, err := s.conn.ExecContext(ctx, `
		UPDATE api_keys
		SET name = $1, permissions = $2, active = $3, expires_at = $4
		WHERE id = $5`,
		apiKey.Name, permissions, apiKey.Active, apiKey.ExpiresAt, apiKey.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update API key: %w", err)
	}

	if err := requireAffected(result); err != nil {
		return err
	}

	s.audit(ctx, keyUpdated, apiKey)

	return nil
}

// Delete soft-deletes a key by clearing its active flag.
func (s *PersistentKeyStore) Delete(ctx context.Context, keyID string) error {
	if keyID == "" {
		return ErrKeyNotFound
	}

	var clientID string

	err := s.conn.QueryRowContext(ctx,
		`UPDATE api_keys SET active = FALSE WHERE id = $1 RETURNING client_id`, keyID).Scan(&clientID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrKeyNotFound
	}

	if err != nil {
		return fmt.Errorf("failed to delete API key: %w", err)
	}

	s.audit(ctx, keyDeleted, &APIKey{ID: keyID, ClientID: clientID})

	return nil
}

// ListByClient returns a client's active keys, newest first, with masked hashes.
func (s *PersistentKeyStore) ListByClient(ctx context.Context, clientID string) ([]*APIKey, error) {
	if clientID == "" {
		return nil, ErrClientIDEmpty
	}

	rows, err := s.conn.QueryContext(ctx, `
		SELECT `+apiKeyColumns+`
		FROM api_keys
		WHERE client_id = $1 AND active = TRUE
		ORDER BY created_at DESC`, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to query API keys: %w", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	keys := []*APIKey{}

	for rows.Next() {
		apiKey, err := scanAPIKey(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan API key: %w", err)
		}

		apiKey.Key = MaskKey(apiKey.Key)
		keys = append(keys, apiKey)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return keys, nil
}

func scanAPIKey(row rowScanner) (*APIKey, error) {
	var (
		apiKey      APIKey
		permissions []byte
		expiresAt   sql.NullTime
	)

	err := row.Scan(&apiKey.ID, &apiKey.Key, &apiKey.ClientID, &apiKey.Name, &permissions,
		&apiKey.CreatedAt, &expiresAt, &apiKey.Active)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(permissions, &apiKey.Permissions); err != nil {
		return nil, fmt.Errorf("invalid permissions for key %s: %w", apiKey.ID, err)
	}

	if expiresAt.Valid {
		apiKey.ExpiresAt = &expiresAt.Time
	}

	return &apiKey, nil
}

func requireAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if n == 0 {
		return ErrKeyNotFound
	}

	return nil
}

func permissionsToJSON(permissions []string) ([]byte, error) {
	if permissions == nil {
		permissions = []string{}
	}

	return json.Marshal(permissions)
}

// audit writes an api_key_audit_log row. Failures are logged, not returned.
func (s *PersistentKeyStore) audit(ctx context.Context, operation string, apiKey *APIKey) {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO api_key_audit_log (api_key_id, operation, masked_key, client_id)
		VALUES ($1, $2, $3, $4)`,
		apiKey.ID, operation, MaskKey(apiKey.Key), apiKey.ClientID,
	)
	if err != nil {
		s.logger.Error("Failed to write API key audit log entry",
			slog.String("operation", operation),
			slog.String("key_id", apiKey.ID),
			slog.String("error", err.Error()))
	}
}

var _ APIKeyStore = (*PersistentKeyStore)(nil)
