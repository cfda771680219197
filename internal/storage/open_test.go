package storage

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenFacts(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("fixture", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "repo.yaml")
		require.NoError(t, os.WriteFile(path, []byte(testFixture), 0o600))

		store, conn, err := OpenFacts(&Config{FixturePath: path}, logger)
		require.NoError(t, err)
		assert.Nil(t, conn)

		pkgs, err := store.LookupPackagesByName(context.Background(), []string{"zlib"}, "sisyphus")
		require.NoError(t, err)
		assert.Len(t, pkgs, 1)
	})

	t.Run("missing fixture", func(t *testing.T) {
		_, _, err := OpenFacts(&Config{FixturePath: filepath.Join(t.TempDir(), "absent.yaml")}, logger)
		require.ErrorIs(t, err, ErrFixtureRead)
	})

	t.Run("nothing configured", func(t *testing.T) {
		_, _, err := OpenFacts(&Config{}, logger)
		require.ErrorIs(t, err, ErrDatabaseURLEmpty)
	})
}
