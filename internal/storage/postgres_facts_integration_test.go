package storage

import (
	"cmp"
	"context"
	"io"
	"log/slog"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/depgraph-io/depgraph/internal/facts"
)

func sortPackages(pkgs []facts.Package) []facts.Package {
	if len(pkgs) == 0 {
		return nil
	}

	slices.SortFunc(pkgs, func(a, b facts.Package) int { return cmp.Compare(a.Hash, b.Hash) })

	return pkgs
}

func sortMatches(ms []facts.Match) []facts.Match {
	if len(ms) == 0 {
		return nil
	}

	slices.SortFunc(ms, func(a, b facts.Match) int {
		return cmp.Or(cmp.Compare(a.Package.Hash, b.Package.Hash), cmp.Compare(a.Dependency.Name, b.Dependency.Name))
	})

	return ms
}

func sortRelations(rs []facts.Relation) []facts.Relation {
	if len(rs) == 0 {
		return nil
	}

	slices.SortFunc(rs, func(a, b facts.Relation) int {
		return cmp.Or(
			cmp.Compare(a.PackageHash, b.PackageHash),
			cmp.Compare(a.Kind, b.Kind),
			cmp.Compare(a.Name, b.Name),
		)
	})

	return rs
}

func sortCandidates(cs []facts.ConflictCandidate) []facts.ConflictCandidate {
	if len(cs) == 0 {
		return nil
	}

	for _, c := range cs {
		slices.SortFunc(c.Files, func(a, b facts.File) int { return cmp.Compare(a.Path, b.Path) })
	}

	slices.SortFunc(cs, func(a, b facts.ConflictCandidate) int {
		return cmp.Or(cmp.Compare(a.A, b.A), cmp.Compare(a.B, b.B))
	})

	return cs
}

// TestPostgresFactsMatchesMemoryFacts imports the test fixture into PostgreSQL and checks
// that both stores answer every lookup identically.
func TestPostgresFactsMatchesMemoryFacts(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	conn := setupTestConnection(ctx, t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mem := loadTestFacts(t)

	stats, err := ImportFixture(ctx, conn, mem, logger)
	require.NoError(t, err)
	assert.Equal(t, 9, stats.Packages)
	assert.Equal(t, 9, stats.Snapshots)
	assert.Equal(t, 3, stats.Files)
	assert.Equal(t, 1, stats.ACL)

	again, err := ImportFixture(ctx, conn, mem, logger)
	require.NoError(t, err)
	assert.Zero(t, again.Packages)
	assert.Zero(t, again.Relations)

	pg, err := NewPostgresFacts(conn, WithFactsLogger(logger), WithSlowQueryThreshold(time.Minute))
	require.NoError(t, err)

	x86 := []string{"x86_64"}
	both := []string{"x86_64", "i586"}

	srcs, err := mem.LookupPackagesByName(ctx, []string{"zlib", "minizip"}, "sisyphus")
	require.NoError(t, err)
	require.Len(t, srcs, 2)

	srcHashes := []uint64{srcs[0].Hash, srcs[1].Hash}

	bins, err := mem.BinariesOf(ctx, srcHashes, "sisyphus", both)
	require.NoError(t, err)

	binHashes := make([]uint64, 0, len(bins))
	for _, b := range bins {
		binHashes = append(binHashes, b.Hash)
	}

	allHashes := append(slices.Clone(srcHashes), binHashes...)

	t.Run("lookup packages by name", func(t *testing.T) {
		for _, branch := range []string{"sisyphus", "p10", "p9"} {
			want, err := mem.LookupPackagesByName(ctx, []string{"zlib", "minizip"}, branch)
			require.NoError(t, err)

			got, err := pg.LookupPackagesByName(ctx, []string{"zlib", "minizip"}, branch)
			require.NoError(t, err)

			assert.Equal(t, sortPackages(want), sortPackages(got), branch)
		}
	})

	t.Run("binaries by name", func(t *testing.T) {
		query := []string{"libz1", "libz1-debuginfo", "zlib-devel"}

		want, err := mem.BinariesByName(ctx, query, "sisyphus", both)
		require.NoError(t, err)

		got, err := pg.BinariesByName(ctx, query, "sisyphus", both)
		require.NoError(t, err)

		assert.Equal(t, sortPackages(want), sortPackages(got))
	})

	t.Run("binaries of", func(t *testing.T) {
		got, err := pg.BinariesOf(ctx, srcHashes, "sisyphus", both)
		require.NoError(t, err)

		assert.Equal(t, sortPackages(bins), sortPackages(got))
	})

	t.Run("packages by hash", func(t *testing.T) {
		want, err := mem.PackagesByHash(ctx, allHashes)
		require.NoError(t, err)

		got, err := pg.PackagesByHash(ctx, allHashes)
		require.NoError(t, err)

		assert.Equal(t, sortPackages(want), sortPackages(got))
	})

	t.Run("relations", func(t *testing.T) {
		kinds := []facts.Kind{facts.KindRequire, facts.KindProvide, facts.KindConflict, facts.KindObsolete}

		want, err := mem.RelationsForPackages(ctx, allHashes, kinds)
		require.NoError(t, err)

		got, err := pg.RelationsForPackages(ctx, allHashes, kinds)
		require.NoError(t, err)

		assert.Equal(t, sortRelations(want), sortRelations(got))
	})

	t.Run("providers and requirers", func(t *testing.T) {
		caps := []string{"libz.so.1()(64bit)", "zlib-devel", "libz1"}

		want, err := mem.ProvidersOf(ctx, caps, "sisyphus", x86)
		require.NoError(t, err)

		got, err := pg.ProvidersOf(ctx, caps, "sisyphus", x86)
		require.NoError(t, err)
		assert.Equal(t, sortMatches(want), sortMatches(got))

		for _, class := range []facts.Class{facts.ClassSource, facts.ClassBinary} {
			want, err := mem.RequirersOf(ctx, caps, "sisyphus", x86, class)
			require.NoError(t, err)

			got, err := pg.RequirersOf(ctx, caps, "sisyphus", x86, class)
			require.NoError(t, err)
			assert.Equal(t, sortMatches(want), sortMatches(got), class)
		}
	})

	t.Run("version metadata and acl", func(t *testing.T) {
		want, err := mem.VersionMetadata(ctx, allHashes)
		require.NoError(t, err)

		got, err := pg.VersionMetadata(ctx, allHashes)
		require.NoError(t, err)
		assert.ElementsMatch(t, want, got)

		wantACL, err := mem.ACLFor(ctx, []string{"zlib", "minizip"}, "sisyphus")
		require.NoError(t, err)

		gotACL, err := pg.ACLFor(ctx, []string{"zlib", "minizip"}, "sisyphus")
		require.NoError(t, err)
		assert.Equal(t, wantACL, gotACL)
	})

	t.Run("file conflict candidates", func(t *testing.T) {
		for _, archs := range [][]string{x86, both, {"i586"}} {
			want, err := mem.FileConflictCandidates(ctx, binHashes, "sisyphus", archs)
			require.NoError(t, err)

			got, err := pg.FileConflictCandidates(ctx, binHashes, "sisyphus", archs)
			require.NoError(t, err)

			assert.Equal(t, sortCandidates(want), sortCandidates(got), archs)
		}
	})

	require.NoError(t, pg.HealthCheck(ctx))
}

func TestNewPostgresFactsRequiresConnection(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	_, err := NewPostgresFacts(nil)
	assert.ErrorIs(t, err, ErrNoDatabaseConnection)

	_, err = ImportFixture(context.Background(), nil, nil, nil)
	assert.ErrorIs(t, err, ErrNoDatabaseConnection)
}
