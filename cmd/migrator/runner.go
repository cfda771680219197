package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/depgraph-io/depgraph/migrations"
)

type (
	// MigrationRunner runs schema migrations.
	MigrationRunner interface {
		Up() error
		Down() error
		Status() error
		Version() error
		Drop() error
		Close() error
	}

	// Runner implements MigrationRunner with golang-migrate over embedded SQL files.
	Runner struct {
		migrate *migrate.Migrate
		db      *sql.DB
		source  fs.FS
		logger  *slog.Logger
	}

	// migrateLogger forwards golang-migrate output to slog.
	migrateLogger struct {
		logger *slog.Logger
	}
)

var _ migrate.Logger = (*migrateLogger)(nil)

// NewMigrationRunner validates the embedded migrations, connects and prepares a runner.
func NewMigrationRunner(ctx context.Context, cfg *Config, logger *slog.Logger) (*Runner, error) {
	return newRunner(ctx, cfg, migrations.FS(), logger)
}

func newRunner(ctx context.Context, cfg *Config, source fs.FS, logger *slog.Logger) (*Runner, error) {
	logger.Info("Initializing migration runner", slog.String("config", cfg.String()))

	if err := migrations.Validate(source); err != nil {
		return nil, fmt.Errorf("embedded migration validation failed: %w", err)
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: cfg.MigrationTable})
	if err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("failed to create postgres driver: %w", err)
	}

	src, err := iofs.New(source, ".")
	if err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("failed to create embedded migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}

	m.Log = &migrateLogger{logger: logger}

	return &Runner{migrate: m, db: db, source: source, logger: logger}, nil
}

// Up applies all pending migrations.
func (r *Runner) Up() error {
	err := r.migrate.Up()

	switch {
	case errors.Is(err, migrate.ErrNoChange):
		r.logger.Info("No new migrations to apply")
	case err != nil:
		return fmt.Errorf("migration up failed: %w", err)
	default:
		r.logger.Info("All migrations applied", slog.Int("schema_version", migrations.Latest(r.source)))
	}

	return nil
}

// Down rolls back the last migration.
func (r *Runner) Down() error {
	err := r.migrate.Steps(-1)

	switch {
	case errors.Is(err, migrate.ErrNoChange), errors.Is(err, fs.ErrNotExist):
		r.logger.Info("No migrations to roll back")
	case err != nil:
		return fmt.Errorf("migration down failed: %w", err)
	default:
		r.logger.Info("Last migration rolled back")
	}

	return nil
}

// Status reports the applied version against the newest embedded migration.
func (r *Runner) Status() error {
	latest := migrations.Latest(r.source)

	ver, dirty, err := r.migrate.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		fmt.Printf("Migration status: no migrations applied, %d available\n", latest)

		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	state := "clean"
	if dirty {
		state = "dirty (needs manual intervention)"
	}

	fmt.Printf("Migration status: version %03d (%s)\n", ver, state)

	current := int(ver) //nolint:gosec // migration versions are small

	switch {
	case current == latest:
		fmt.Println("Schema is up to date")
	case current < latest:
		fmt.Printf("%d migration(s) pending\n", latest-current)
	default:
		fmt.Printf("Database schema v%03d is newer than this migrator (v%03d)\n", current, latest)
	}

	return nil
}

// Version prints the applied migration version.
func (r *Runner) Version() error {
	ver, dirty, err := r.migrate.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		fmt.Println("Current version: none")

		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	suffix := ""
	if dirty {
		suffix = " (dirty)"
	}

	fmt.Printf("Current version: %d%s\n", ver, suffix)

	return nil
}

// Drop drops every table in the database.
func (r *Runner) Drop() error {
	r.logger.Warn("Dropping all tables")

	if err := r.migrate.Drop(); err != nil {
		return fmt.Errorf("drop operation failed: %w", err)
	}

	return nil
}

// Close releases the migrate instance and the database handle.
func (r *Runner) Close() error {
	var errs []error

	if r.migrate != nil {
		sourceErr, dbErr := r.migrate.Close()
		errs = append(errs, sourceErr, dbErr)
	}

	if r.db != nil {
		if err := r.db.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (l *migrateLogger) Printf(format string, v ...any) {
	l.logger.Info(fmt.Sprintf(format, v...), slog.String("component", "migrate"))
}

func (l *migrateLogger) Verbose() bool {
	return false
}
