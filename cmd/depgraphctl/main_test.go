package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/depgraph-io/depgraph/internal/conflicts"
	"github.com/depgraph-io/depgraph/internal/depgraph"
	"github.com/depgraph-io/depgraph/internal/storage"
)

const (
	repoFixture  = "../../internal/depgraph/testdata/repo.yaml"
	filesFixture = "../../internal/conflicts/testdata/files.yaml"
)

// runCLI runs depgraphctl with args against fixture and returns what it printed.
func runCLI(t *testing.T, fixture string, args ...string) (string, error) {
	t.Helper()

	t.Setenv("DATABASE_URL", "")
	t.Setenv("DEPGRAPH_FIXTURE_PATH", "")

	var out bytes.Buffer

	app := newCLI()
	app.Writer = &out
	app.ErrWriter = io.Discard

	argv := []string{appName, "--config", filepath.Join(t.TempDir(), "none.yaml")}
	if fixture != "" {
		argv = append(argv, "--fixture", fixture)
	}

	err := app.Run(append(argv, args...))

	return out.String(), err
}

func decodeOutput[T any](t *testing.T, out string) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal([]byte(out), &v), out)

	return v
}

func TestGlobalFlags(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	t.Run("version", func(t *testing.T) {
		for _, flag := range []string{"--version", "-v"} {
			out, err := runCLI(t, "", flag)
			require.NoError(t, err)
			assert.Contains(t, out, Version)
		}
	})

	t.Run("verbose", func(t *testing.T) {
		out, err := runCLI(t, "", "--verbose", "vercmp", "1.0", "2.0")
		require.NoError(t, err)
		assert.Equal(t, "-1", strings.TrimSpace(out))

		_, err = runCLI(t, repoFixture, "--verbose", "build-deps", "-b", "sisyphus", "curl")
		require.NoError(t, err)
	})
}

func TestBuildDeps(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	out, err := runCLI(t, repoFixture,
		"-o", "json", "build-deps", "--branch", "sisyphus", "--depth", "3", "--dptype", "source", "curl")
	require.NoError(t, err)

	records := decodeOutput[[]depgraph.Record](t, out)
	assert.Equal(t, []string{"zlib", "openssl", "perl"},
		lo.Map(records, func(r depgraph.Record, _ int) string { return r.Name }))

	out, err = runCLI(t, repoFixture, "build-deps", "-b", "sisyphus", "-d", "3", "--dptype", "source", "curl")
	require.NoError(t, err)
	assert.Contains(t, out, "openssl")
	assert.Contains(t, out, "Total")
}

func TestBuildDepsErrors(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	tests := []struct {
		name    string
		args    []string
		wantErr error
	}{
		{"unknown package", []string{"build-deps", "-b", "sisyphus", "ghost"}, depgraph.ErrNotFound},
		{"depth out of range", []string{"build-deps", "-b", "sisyphus", "-d", "0", "curl"}, depgraph.ErrValidation},
		{"unknown branch", []string{"build-deps", "-b", "nowhere", "curl"}, depgraph.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCLI(t, repoFixture, tt.args...)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}

	t.Run("missing branch", func(t *testing.T) {
		_, err := runCLI(t, repoFixture, "build-deps", "curl")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "branch")
	})

	t.Run("no packages prints help", func(t *testing.T) {
		out, err := runCLI(t, repoFixture, "build-deps", "-b", "sisyphus")
		require.NoError(t, err)
		assert.Contains(t, out, "USAGE")
	})
}

func TestDepsSet(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	out, err := runCLI(t, repoFixture, "--output", "json", "deps-set", "--branch", "sisyphus", "curl")
	require.NoError(t, err)

	entries := decodeOutput[[]depgraph.SetEntry](t, out)
	require.Len(t, entries, 1)
	assert.Equal(t, "curl", entries[0].Package)
	assert.Equal(t, []string{"libssl3", "libz1", "openssl-devel"},
		lo.Map(entries[0].Depends, func(d depgraph.SetDependency, _ int) string { return d.Name }))
}

func TestMisconflict(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	out, err := runCLI(t, filesFixture, "-o", "json", "misconflict", "-b", "sisyphus", "foo")
	require.NoError(t, err)

	found := decodeOutput[[]conflicts.FileConflict](t, out)
	assert.Equal(t, []string{"baz", "foo-doc"},
		lo.Map(found, func(fc conflicts.FileConflict, _ int) string { return fc.ConflictPackage }))

	_, err = runCLI(t, filesFixture, "misconflict", "-b", "nowhere", "foo")
	require.ErrorIs(t, err, conflicts.ErrValidation)

	_, err = runCLI(t, filesFixture, "misconflict", "-b", "sisyphus", "-a", "vax", "foo")
	require.ErrorIs(t, err, conflicts.ErrValidation)
}

func TestVercmp(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	tests := []struct {
		first, second string
		want          string
	}{
		{"1.0-alt1", "1.0-alt2", "-1"},
		{"1:1.0-alt1", "2.0-alt1", "1"},
		{"2.0", "2.0", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.first+" vs "+tt.second, func(t *testing.T) {
			out, err := runCLI(t, "", "vercmp", tt.first, tt.second)
			require.NoError(t, err)
			assert.Equal(t, tt.want, strings.TrimSpace(out))
		})
	}

	out, err := runCLI(t, "", "-o", "json", "vercmp", "1.0", "1.1")
	require.NoError(t, err)

	resp := decodeOutput[map[string]any](t, out)
	assert.InDelta(t, -1, resp["result"], 0)
}

func TestStoreErrors(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	t.Run("no facts source", func(t *testing.T) {
		_, err := runCLI(t, "", "build-deps", "-b", "sisyphus", "curl")
		require.ErrorIs(t, err, storage.ErrDatabaseURLEmpty)
	})

	t.Run("keygen without database", func(t *testing.T) {
		_, err := runCLI(t, "", "keygen", "--client", "ci")
		require.ErrorIs(t, err, errNoDatabase)
	})

	t.Run("import without fixture", func(t *testing.T) {
		_, err := runCLI(t, "", "import-fixture")
		require.ErrorIs(t, err, errNoFixture)
	})

	t.Run("import without database", func(t *testing.T) {
		_, err := runCLI(t, repoFixture, "import-fixture")
		require.ErrorIs(t, err, errNoDatabase)
	})

	t.Run("bad output format", func(t *testing.T) {
		_, err := runCLI(t, repoFixture, "-o", "yaml", "build-deps", "-b", "sisyphus", "curl")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown output format")
	})
}

func TestIssueKey(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	ctx := context.Background()
	store := storage.NewInMemoryKeyStore()

	apiKey, err := issueKey(ctx, store, "ci", "", []string{"dependencies:read", "conflicts:filter"}, time.Hour)
	require.NoError(t, err)

	assert.Equal(t, "ci", apiKey.Name)
	require.NotNil(t, apiKey.ExpiresAt)
	assert.WithinDuration(t, apiKey.CreatedAt.Add(time.Hour), *apiKey.ExpiresAt, time.Second)

	_, err = storage.ParseAPIKey(apiKey.Key)
	require.NoError(t, err)

	stored, found := store.FindByKey(ctx, apiKey.Key)
	require.True(t, found)
	assert.True(t, stored.HasPermission("conflicts:filter"))

	_, err = issueKey(ctx, store, "", "", nil, 0)
	require.ErrorIs(t, err, storage.ErrClientIDEmpty)
}
