package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/depgraph-io/depgraph/internal/config"
	"github.com/depgraph-io/depgraph/internal/storage"
)

// TestServerOverPostgres serves queries from a PostgreSQL store seeded with the resolver
// fixture and authenticates with keys kept in the same database.
func TestServerOverPostgres(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	testDB := config.SetupTestDatabase(ctx, t)
	t.Cleanup(testDB.Terminate)

	conn := &storage.Connection{DB: testDB.Connection}

	_, err := storage.ImportFixture(ctx, conn, loadFacts(t, repoFixture), logger)
	require.NoError(t, err)

	pg, err := storage.NewPostgresFacts(conn, storage.WithFactsLogger(logger))
	require.NoError(t, err)

	keyStore, err := storage.NewPersistentKeyStore(conn)
	require.NoError(t, err)

	key, err := storage.GenerateAPIKey("ci")
	require.NoError(t, err)

	require.NoError(t, keyStore.Add(ctx, &storage.APIKey{
		ID:          "k-ci",
		Key:         key,
		ClientID:    "ci",
		Name:        "CI",
		Permissions: []string{"dependencies:read"},
		CreatedAt:   time.Now(),
		Active:      true,
	}))

	s := newTestServer(t, pg, func(cfg *ServerConfig, deps *Dependencies) {
		cfg.AuthEnabled = true
		deps.APIKeyStore = keyStore
	})

	authed := func(target string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		req.Header.Set("Authorization", "Bearer "+key)

		return serve(t, s, req)
	}

	t.Run("ready", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, get(t, s, "/ready").Code)
	})

	t.Run("build dependencies", func(t *testing.T) {
		rec := authed("/api/v1/dependencies/build?packages=curl&branch=sisyphus&depth=3&dptype=source")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		resp := decode[BuildDependenciesResponse](t, rec)
		assert.Equal(t, []string{"zlib", "openssl", "perl"},
			lo.Map(resp.Dependencies, func(d BuildDependency, _ int) string { return d.Name }))
	})

	t.Run("dependency set", func(t *testing.T) {
		rec := authed("/api/v1/dependencies/set?packages=curl&branch=sisyphus")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		resp := decode[DependencySetResponse](t, rec)
		require.Len(t, resp.Packages, 1)
		assert.Equal(t, []string{"libssl3", "libz1", "openssl-devel"},
			lo.Map(resp.Packages[0].Depends, func(d DependencySetElement, _ int) string { return d.Name }))
	})

	t.Run("unknown package", func(t *testing.T) {
		requireProblem(t, authed("/api/v1/dependencies/build?packages=ghost&branch=sisyphus"), http.StatusNotFound)
	})

	t.Run("missing key", func(t *testing.T) {
		requireProblem(t, get(t, s, "/api/v1/dependencies/build?packages=curl&branch=sisyphus"), http.StatusUnauthorized)
	})
}
