package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/lib/pq"
	"github.com/samber/lo"
)

// ErrImportFailed is returned when a fixture cannot be written to the facts database.
var ErrImportFailed = errors.New("fixture import failed")

// ImportStats counts the rows written by ImportFixture.
type ImportStats struct {
	Packages  int
	Snapshots int
	Relations int
	Files     int
	ACL       int
}

// ImportFixture writes every package, snapshot entry, relation, file and ACL of m into
// the facts schema in a single transaction. Packages already present keep their stored
// relations and files, so importing the same fixture twice changes nothing.
func ImportFixture(ctx context.Context, conn *Connection, m *MemoryFacts, logger *slog.Logger) (ImportStats, error) {
	if conn == nil {
		return ImportStats{}, ErrNoDatabaseConnection
	}

	m.mutex.RLock()
	defer m.mutex.RUnlock()

	start := time.Now()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return ImportStats{}, fmt.Errorf("%w: begin: %w", ErrImportFailed, err)
	}

	defer func() {
		_ = tx.Rollback()
	}()

	hashes := lo.Keys(m.packages)
	slices.Sort(hashes)

	stats, inserted, err := importPackages(ctx, tx, m, hashes)
	if err != nil {
		return ImportStats{}, err
	}

	if err := importCopies(ctx, tx, m, inserted, &stats); err != nil {
		return ImportStats{}, err
	}

	if err := tx.Commit(); err != nil {
		return ImportStats{}, fmt.Errorf("%w: commit: %w", ErrImportFailed, err)
	}

	if logger != nil {
		logger.Info("Imported facts fixture",
			slog.Int("packages", stats.Packages),
			slog.Int("snapshot_entries", stats.Snapshots),
			slog.Int("relations", stats.Relations),
			slog.Int("files", stats.Files),
			slog.Int("acl_entries", stats.ACL),
			slog.Duration("duration", time.Since(start)))
	}

	return stats, nil
}

// importPackages inserts packages, snapshot entries and ACLs and returns the hashes of
// the packages that were not yet stored.
func importPackages(
	ctx context.Context,
	tx *sql.Tx,
	m *MemoryFacts,
	hashes []uint64,
) (ImportStats, []uint64, error) {
	var (
		stats    ImportStats
		inserted []uint64
	)

	for _, h := range hashes {
		p := m.packages[h]

		var (
			sourceHash sql.NullInt64
			buildTime  sql.NullTime
		)

		if p.SourceHash != 0 {
			sourceHash = sql.NullInt64{Int64: int64(p.SourceHash), Valid: true} //nolint:gosec // two's complement storage
		}

		if !p.BuildTime.IsZero() {
			buildTime = sql.NullTime{Time: p.BuildTime, Valid: true}
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO packages (hash, name, epoch, version, release, disttag, serial,
				arch, is_source, sourcerpm, source_hash, buildtime)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			ON CONFLICT (hash) DO NOTHING`,
			int64(h), p.Name, p.Epoch, p.Version, p.Release, p.Disttag, p.Serial, //nolint:gosec // two's complement storage
			p.Arch, p.Source, p.SourceRPM, sourceHash, buildTime,
		)
		if err != nil {
			return stats, nil, fmt.Errorf("%w: package %s: %w", ErrImportFailed, p.Name, err)
		}

		if n, _ := res.RowsAffected(); n > 0 {
			stats.Packages++
			inserted = append(inserted, h)
		}
	}

	branches := lo.Keys(m.snapshots)
	slices.Sort(branches)

	for _, branch := range branches {
		for h := range m.snapshots[branch] {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO branch_packages (branch, hash) VALUES ($1, $2)
				ON CONFLICT DO NOTHING`, branch, int64(h)) //nolint:gosec // two's complement storage
			if err != nil {
				return stats, nil, fmt.Errorf("%w: snapshot %s: %w", ErrImportFailed, branch, err)
			}

			stats.Snapshots++
		}

		for name, members := range m.acl[branch] {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO acl (branch, name, members) VALUES ($1, $2, $3)
				ON CONFLICT (branch, name) DO UPDATE SET members = EXCLUDED.members`,
				branch, name, pq.Array(members))
			if err != nil {
				return stats, nil, fmt.Errorf("%w: acl %s/%s: %w", ErrImportFailed, branch, name, err)
			}

			stats.ACL++
		}
	}

	return stats, inserted, nil
}

// importCopies bulk-loads relations and files with COPY.
func importCopies(ctx context.Context, tx *sql.Tx, m *MemoryFacts, hashes []uint64, stats *ImportStats) error {
	depends, err := tx.PrepareContext(ctx, pq.CopyIn("depends", "pkg_hash", "kind", "name", "version", "flags"))
	if err != nil {
		return fmt.Errorf("%w: prepare depends copy: %w", ErrImportFailed, err)
	}

	for _, h := range hashes {
		for _, d := range m.relations[h] {
			if _, err := depends.ExecContext(ctx, int64(h), string(d.Kind), d.Name, d.Version, int64(d.Flags)); err != nil { //nolint:gosec,lll // two's complement storage
				return fmt.Errorf("%w: depends copy: %w", ErrImportFailed, err)
			}

			stats.Relations++
		}
	}

	if err := flushCopy(ctx, depends); err != nil {
		return fmt.Errorf("%w: depends copy: %w", ErrImportFailed, err)
	}

	files, err := tx.PrepareContext(ctx, pq.CopyIn("files", "pkg_hash", "path_hash", "path", "digest", "is_dir"))
	if err != nil {
		return fmt.Errorf("%w: prepare files copy: %w", ErrImportFailed, err)
	}

	for _, h := range hashes {
		for _, f := range m.files[h] {
			_, err := files.ExecContext(ctx, int64(h), int64(f.PathHash), f.Path, f.digest, false) //nolint:gosec // two's complement storage
			if err != nil {
				return fmt.Errorf("%w: files copy: %w", ErrImportFailed, err)
			}

			stats.Files++
		}
	}

	if err := flushCopy(ctx, files); err != nil {
		return fmt.Errorf("%w: files copy: %w", ErrImportFailed, err)
	}

	return nil
}

func flushCopy(ctx context.Context, stmt *sql.Stmt) error {
	if _, err := stmt.ExecContext(ctx); err != nil {
		_ = stmt.Close()

		return err
	}

	return stmt.Close()
}
