package config

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq" // registers the postgres driver for sql.Open

	"github.com/depgraph-io/depgraph/migrations"
)

const (
	testImage         = "postgres:16-alpine"
	readyLogLine      = "database system is ready to accept connections"
	readyLogCount     = 2 // postgres logs the line once for the init server and once for the real one
	containerStartup  = 120 * time.Second
	testDatabaseName  = "depgraph_test"
	testDatabaseCreds = "test"
)

// TestDatabase is a migrated PostgreSQL instance running in a container.
type TestDatabase struct {
	Container  *postgres.PostgresContainer
	Connection *sql.DB
	URL        string // connection string, for code that opens its own pool
}

// Terminate closes the connection and removes the container. Errors are ignored.
func (db *TestDatabase) Terminate() {
	_ = db.Connection.Close()
	_ = testcontainers.TerminateContainer(db.Container)
}

// SetupTestDatabase starts a PostgreSQL container with the facts and API key schema
// applied. Callers skip it in short mode and register cleanup themselves:
//
//	testDB := config.SetupTestDatabase(ctx, t)
//	t.Cleanup(testDB.Terminate)
func SetupTestDatabase(ctx context.Context, t *testing.T) *TestDatabase {
	t.Helper()

	pgContainer, err := postgres.Run(ctx,
		testImage,
		postgres.WithDatabase(testDatabaseName),
		postgres.WithUsername(testDatabaseCreds),
		postgres.WithPassword(testDatabaseCreds),
		testcontainers.WithWaitStrategy(
			wait.ForLog(readyLogLine).
				WithOccurrence(readyLogCount).
				WithStartupTimeout(containerStartup),
		),
	)
	require.NoError(t, err, "Failed to start postgres container")
	require.NotNil(t, pgContainer, "postgres container is nil")

	url, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "Failed to get connection string")

	conn, err := sql.Open("postgres", url)
	require.NoError(t, err, "Failed to open database")

	if err := RunTestMigrations(conn); err != nil {
		_ = conn.Close()
		_ = testcontainers.TerminateContainer(pgContainer)

		t.Fatalf("Failed to run migrations: %v", err)
	}

	return &TestDatabase{
		Container:  pgContainer,
		Connection: conn,
		URL:        url,
	}
}

// RunTestMigrations migrates db to the latest embedded schema version. A database that
// is already current is not an error.
func RunTestMigrations(db *sql.DB) error {
	driver, err := migratepg.WithInstance(db, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}

	source, err := iofs.New(migrations.FS(), ".")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("applying migrations: %w", err)
	}

	return nil
}
