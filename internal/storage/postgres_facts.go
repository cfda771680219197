package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/samber/lo"

	"github.com/depgraph-io/depgraph/internal/config"
	"github.com/depgraph-io/depgraph/internal/facts"
)

// ErrFactsQueryFailed is returned when a facts query cannot be executed or scanned.
var ErrFactsQueryFailed = errors.New("facts query failed")

// debuginfoPattern excludes *-debuginfo binaries in SQL, mirroring facts.Package.IsDebuginfo.
const debuginfoPattern = `%-debuginfo`

// packageColumns is the column list scanned by scanPackage. The query must alias the
// packages table as p and bind the branch expression as the last column.
const packageColumns = `p.hash, p.name, p.epoch, p.version, p.release, p.disttag, p.serial,
	p.arch, p.is_source, p.sourcerpm, p.source_hash, p.buildtime`

type (
	// PostgresFacts implements facts.Store over the PackageFacts schema.
	//
	// Package hashes are unsigned 64-bit values stored in BIGINT columns by two's
	// complement conversion. All list parameters are bound with pq.Array.
	PostgresFacts struct {
		conn          *Connection
		logger        *slog.Logger
		slowThreshold time.Duration
	}

	// PostgresFactsOption configures optional PostgresFacts behavior.
	PostgresFactsOption func(*PostgresFacts)

	rowScanner interface {
		Scan(dest ...any) error
	}
)

// WithFactsLogger sets the logger used for query timing.
func WithFactsLogger(logger *slog.Logger) PostgresFactsOption {
	return func(s *PostgresFacts) {
		s.logger = logger
	}
}

// WithSlowQueryThreshold sets the duration above which queries are logged as slow.
func WithSlowQueryThreshold(d time.Duration) PostgresFactsOption {
	return func(s *PostgresFacts) {
		s.slowThreshold = d
	}
}

// NewPostgresFacts creates a PostgreSQL-backed facts store.
func NewPostgresFacts(conn *Connection, opts ...PostgresFactsOption) (*PostgresFacts, error) {
	if conn == nil {
		return nil, ErrNoDatabaseConnection
	}

	s := &PostgresFacts{
		conn: conn,
		logger: slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: config.GetEnvLogLevel("DEPGRAPH_SERVER_LOG_LEVEL", slog.LevelInfo),
		})),
		slowThreshold: defaultSlowQueryThreshold,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

func toDB(hashes []uint64) []int64 {
	return lo.Map(lo.Uniq(hashes), func(h uint64, _ int) int64 { return int64(h) }) //nolint:gosec // two's complement storage
}

func fromDB(h int64) uint64 {
	return uint64(h) //nolint:gosec // two's complement storage
}

func kindsToDB(kinds []facts.Kind) []string {
	return lo.Map(kinds, func(k facts.Kind, _ int) string { return string(k) })
}

func scanPackage(row rowScanner, extra ...any) (facts.Package, error) {
	var (
		p          facts.Package
		hash, src  int64
		buildTime  sql.NullTime
		sourceHash sql.NullInt64
	)

	dest := []any{
		&hash, &p.Name, &p.Epoch, &p.Version, &p.Release, &p.Disttag, &p.Serial,
		&p.Arch, &p.Source, &p.SourceRPM, &sourceHash, &buildTime, &p.Branch,
	}

	if err := row.Scan(append(dest, extra...)...); err != nil {
		return facts.Package{}, err
	}

	p.Hash = fromDB(hash)

	if sourceHash.Valid {
		src = sourceHash.Int64
		p.SourceHash = fromDB(src)
	}

	if buildTime.Valid {
		p.BuildTime = buildTime.Time
	}

	return p, nil
}

// observe logs query timing and warns when the query exceeded the slow threshold.
func (s *PostgresFacts) observe(query string, start time.Time, rows int) {
	duration := time.Since(start)

	s.logger.Debug("Queried package facts",
		slog.String("query", query),
		slog.Int("result_count", rows),
		slog.Duration("duration", duration))

	if duration > s.slowThreshold {
		s.logger.Warn("Slow facts query detected",
			slog.String("query", query),
			slog.Duration("duration", duration),
			slog.Int("result_count", rows),
			slog.String("recommendation", "Check indexes on depends(kind, name) and branch_packages(branch)"))
	}
}

func (s *PostgresFacts) queryPackages(ctx context.Context, name, query string, args ...any) ([]facts.Package, error) {
	start := time.Now()

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, s.fail(name, err)
	}

	defer func() {
		_ = rows.Close()
	}()

	out := make([]facts.Package, 0)

	for rows.Next() {
		p, err := scanPackage(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: failed to scan row: %w", ErrFactsQueryFailed, name, err)
		}

		out = append(out, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s: row iteration error: %w", ErrFactsQueryFailed, name, err)
	}

	s.observe(name, start, len(out))

	return out, nil
}

// LookupPackagesByName implements facts.Store.
func (s *PostgresFacts) LookupPackagesByName(
	ctx context.Context,
	names []string,
	platform string,
) ([]facts.Package, error) {
	query := `SELECT ` + packageColumns + `, b.branch
		FROM packages p
		JOIN branch_packages b ON b.hash = p.hash
		WHERE b.branch = $1 AND p.is_source AND p.name = ANY($2)
		ORDER BY p.name, p.hash`

	return s.queryPackages(ctx, "lookup_packages_by_name", query, platform, pq.Array(names))
}

// BinariesByName implements facts.Store.
func (s *PostgresFacts) BinariesByName(
	ctx context.Context,
	names []string,
	platform string,
	archs []string,
) ([]facts.Package, error) {
	query := `SELECT ` + packageColumns + `, b.branch
		FROM packages p
		JOIN branch_packages b ON b.hash = p.hash
		WHERE b.branch = $1 AND NOT p.is_source AND p.name = ANY($2)
			AND p.arch = ANY($3) AND p.name NOT LIKE $4
		ORDER BY p.name, p.hash`

	return s.queryPackages(ctx, "binaries_by_name", query,
		platform, pq.Array(names), pq.Array(archs), debuginfoPattern)
}

// PackagesByHash implements facts.Store. Branch is the alphabetically first branch
// publishing the package, or empty when no branch does.
func (s *PostgresFacts) PackagesByHash(ctx context.Context, hashes []uint64) ([]facts.Package, error) {
	query := `SELECT ` + packageColumns + `,
			COALESCE((SELECT min(b.branch) FROM branch_packages b WHERE b.hash = p.hash), '')
		FROM packages p
		WHERE p.hash = ANY($1)
		ORDER BY p.name, p.hash`

	return s.queryPackages(ctx, "packages_by_hash", query, pq.Array(toDB(hashes)))
}

// BinariesOf implements facts.Store.
func (s *PostgresFacts) BinariesOf(
	ctx context.Context,
	sourceHashes []uint64,
	platform string,
	archs []string,
) ([]facts.Package, error) {
	query := `SELECT ` + packageColumns + `, b.branch
		FROM packages p
		JOIN branch_packages b ON b.hash = p.hash
		WHERE b.branch = $1 AND NOT p.is_source AND p.source_hash = ANY($2)
			AND p.arch = ANY($3) AND p.name NOT LIKE $4
		ORDER BY p.name, p.hash`

	return s.queryPackages(ctx, "binaries_of", query,
		platform, pq.Array(toDB(sourceHashes)), pq.Array(archs), debuginfoPattern)
}

// RelationsForPackages implements facts.Store.
func (s *PostgresFacts) RelationsForPackages(
	ctx context.Context,
	hashes []uint64,
	kinds []facts.Kind,
) ([]facts.Relation, error) {
	start := time.Now()

	query := `SELECT d.pkg_hash, d.kind, d.name, d.version, d.flags
		FROM depends d
		WHERE d.pkg_hash = ANY($1) AND d.kind = ANY($2)
		ORDER BY d.pkg_hash, d.kind, d.name`

	rows, err := s.conn.QueryContext(ctx, query, pq.Array(toDB(hashes)), pq.Array(kindsToDB(kinds)))
	if err != nil {
		return nil, s.fail("relations", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	out := make([]facts.Relation, 0)

	for rows.Next() {
		var (
			r    facts.Relation
			hash int64
		)

		if err := rows.Scan(&hash, &r.Kind, &r.Name, &r.Version, &r.Flags); err != nil {
			return nil, fmt.Errorf("%w: relations: failed to scan row: %w", ErrFactsQueryFailed, err)
		}

		r.PackageHash = fromDB(hash)
		out = append(out, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: relations: row iteration error: %w", ErrFactsQueryFailed, err)
	}

	s.observe("relations_for_packages", start, len(out))

	return out, nil
}

func (s *PostgresFacts) queryMatches(ctx context.Context, name, query string, args ...any) ([]facts.Match, error) {
	start := time.Now()

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, s.fail(name, err)
	}

	defer func() {
		_ = rows.Close()
	}()

	out := make([]facts.Match, 0)

	for rows.Next() {
		var d facts.Dependency

		p, err := scanPackage(rows, &d.Kind, &d.Name, &d.Version, &d.Flags)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: failed to scan row: %w", ErrFactsQueryFailed, name, err)
		}

		out = append(out, facts.Match{Package: p, Dependency: d})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s: row iteration error: %w", ErrFactsQueryFailed, name, err)
	}

	s.observe(name, start, len(out))

	return out, nil
}

// ProvidersOf implements facts.Store.
func (s *PostgresFacts) ProvidersOf(
	ctx context.Context,
	capabilities []string,
	platform string,
	archs []string,
) ([]facts.Match, error) {
	query := `SELECT ` + packageColumns + `, b.branch, d.kind, d.name, d.version, d.flags
		FROM depends d
		JOIN packages p ON p.hash = d.pkg_hash
		JOIN branch_packages b ON b.hash = p.hash
		WHERE d.kind = 'provide' AND d.name = ANY($2) AND b.branch = $1
			AND NOT p.is_source AND p.arch = ANY($3) AND p.name NOT LIKE $4
		ORDER BY p.name, p.hash, d.name`

	return s.queryMatches(ctx, "providers_of", query,
		platform, pq.Array(capabilities), pq.Array(archs), debuginfoPattern)
}

// RequirersOf implements facts.Store.
func (s *PostgresFacts) RequirersOf(
	ctx context.Context,
	capabilities []string,
	platform string,
	archs []string,
	class facts.Class,
) ([]facts.Match, error) {
	query := `SELECT ` + packageColumns + `, b.branch, d.kind, d.name, d.version, d.flags
		FROM depends d
		JOIN packages p ON p.hash = d.pkg_hash
		JOIN branch_packages b ON b.hash = p.hash
		WHERE d.kind = 'require' AND d.name = ANY($2) AND b.branch = $1
			AND p.is_source = $5
			AND (p.is_source OR (p.arch = ANY($3) AND p.name NOT LIKE $4))
		ORDER BY p.name, p.hash, d.name`

	return s.queryMatches(ctx, "requirers_of", query,
		platform, pq.Array(capabilities), pq.Array(archs), debuginfoPattern, class == facts.ClassSource)
}

// VersionMetadata implements facts.Store.
func (s *PostgresFacts) VersionMetadata(ctx context.Context, hashes []uint64) ([]facts.VersionInfo, error) {
	start := time.Now()

	query := `SELECT hash, epoch, version, release, disttag FROM packages WHERE hash = ANY($1)`

	rows, err := s.conn.QueryContext(ctx, query, pq.Array(toDB(hashes)))
	if err != nil {
		return nil, s.fail("version metadata", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	out := make([]facts.VersionInfo, 0, len(hashes))

	for rows.Next() {
		var (
			v    facts.VersionInfo
			hash int64
		)

		if err := rows.Scan(&hash, &v.Epoch, &v.Version, &v.Release, &v.Disttag); err != nil {
			return nil, fmt.Errorf("%w: version metadata: failed to scan row: %w", ErrFactsQueryFailed, err)
		}

		v.Hash = fromDB(hash)
		out = append(out, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: version metadata: row iteration error: %w", ErrFactsQueryFailed, err)
	}

	s.observe("version_metadata", start, len(out))

	return out, nil
}

// ACLFor implements facts.Store.
func (s *PostgresFacts) ACLFor(ctx context.Context, names []string, platform string) (map[string][]string, error) {
	start := time.Now()

	query := `SELECT name, members FROM acl WHERE branch = $1 AND name = ANY($2)`

	rows, err := s.conn.QueryContext(ctx, query, platform, pq.Array(names))
	if err != nil {
		return nil, s.fail("acl", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	out := make(map[string][]string, len(names))

	for rows.Next() {
		var (
			name    string
			members []string
		)

		if err := rows.Scan(&name, pq.Array(&members)); err != nil {
			return nil, fmt.Errorf("%w: acl: failed to scan row: %w", ErrFactsQueryFailed, err)
		}

		out[name] = members
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: acl: row iteration error: %w", ErrFactsQueryFailed, err)
	}

	s.observe("acl_for", start, len(out))

	return out, nil
}

// FileConflictCandidates implements facts.Store. Candidates keep the order of the first
// shared path per (A, B) pair; files are ordered by path.
func (s *PostgresFacts) FileConflictCandidates(
	ctx context.Context,
	hashes []uint64,
	platform string,
	archs []string,
) ([]facts.ConflictCandidate, error) {
	start := time.Now()

	query := `SELECT a.pkg_hash, o.pkg_hash, a.path_hash, a.path
		FROM files a
		JOIN files o ON o.path_hash = a.path_hash AND o.pkg_hash <> a.pkg_hash AND o.digest <> a.digest
		JOIN packages p ON p.hash = o.pkg_hash
		JOIN branch_packages b ON b.hash = o.pkg_hash AND b.branch = $2
		WHERE a.pkg_hash = ANY($1) AND NOT a.is_dir AND NOT o.is_dir
			AND NOT p.is_source AND p.arch = ANY($3) AND p.name NOT LIKE $4
		ORDER BY a.pkg_hash, p.name, o.pkg_hash, a.path`

	rows, err := s.conn.QueryContext(ctx, query, pq.Array(toDB(hashes)), platform, pq.Array(archs), debuginfoPattern)
	if err != nil {
		return nil, s.fail("file conflicts", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	out := make([]facts.ConflictCandidate, 0)
	index := make(map[[2]uint64]int)

	for rows.Next() {
		var (
			a, b, pathHash int64
			path           string
		)

		if err := rows.Scan(&a, &b, &pathHash, &path); err != nil {
			return nil, fmt.Errorf("%w: file conflicts: failed to scan row: %w", ErrFactsQueryFailed, err)
		}

		key := [2]uint64{fromDB(a), fromDB(b)}

		i, ok := index[key]
		if !ok {
			i = len(out)
			index[key] = i
			out = append(out, facts.ConflictCandidate{A: key[0], B: key[1]})
		}

		out[i].Files = append(out[i].Files, facts.File{PathHash: fromDB(pathHash), Path: path})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: file conflicts: row iteration error: %w", ErrFactsQueryFailed, err)
	}

	s.observe("file_conflict_candidates", start, len(out))

	return out, nil
}

// HealthCheck implements facts.Store.
func (s *PostgresFacts) HealthCheck(ctx context.Context) error {
	return s.conn.HealthCheck(ctx)
}

// Close is a no-op; the connection is owned by the caller.
func (s *PostgresFacts) Close() error {
	return nil
}

func (s *PostgresFacts) fail(name string, err error) error {
	if isConnectionError(err) {
		s.logger.Error("Lost connection to facts database",
			slog.String("query", name),
			slog.Any("error", err))
	}

	return fmt.Errorf("%w: %s: %w", ErrFactsQueryFailed, name, err)
}

// isConnectionError reports whether err is a PostgreSQL connection exception (class 08).
func isConnectionError(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return strings.HasPrefix(string(pqErr.Code), "08")
	}

	return errors.Is(err, sql.ErrConnDone)
}

// Compile-time check.
var _ facts.Store = (*PostgresFacts)(nil)
