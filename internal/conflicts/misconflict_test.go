package conflicts

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/depgraph-io/depgraph/internal/facts"
	"github.com/depgraph-io/depgraph/internal/storage"
)

func loadFiles(t *testing.T) *storage.MemoryFacts {
	t.Helper()

	store, err := storage.LoadFixture("testdata/files.yaml")
	require.NoError(t, err)

	return store
}

func TestFinder_Find(t *testing.T) {
	finder := NewFinder(loadFiles(t), nil)

	for _, archs := range [][]string{{"x86_64"}, {"x86_64", "i586", "noarch"}} {
		got, err := finder.Find(context.Background(), Request{
			Packages: []string{"foo"},
			Branch:   "sisyphus",
			Archs:    archs,
		})
		require.NoError(t, err)

		assert.Equal(t, []FileConflict{
			{
				InputPackage:    "foo",
				ConflictPackage: "baz",
				Version:         "3.0",
				Release:         "alt1",
				Epoch:           2,
				Archs:           []string{"x86_64"},
				Files:           []string{"/usr/bin/tool"},
			},
			{
				InputPackage:    "foo",
				ConflictPackage: "foo-doc",
				Version:         "1.0",
				Release:         "alt1",
				Archs:           []string{"x86_64"},
				Files:           []string{"/usr/share/doc/foo/README"},
			},
		}, got, "archs %v", archs)
	}
}

func TestFinder_NoConflicts(t *testing.T) {
	finder := NewFinder(loadFiles(t), nil)

	got, err := finder.Find(context.Background(), Request{
		Packages: []string{"qux"},
		Branch:   "sisyphus",
		Archs:    []string{"x86_64"},
	})
	require.NoError(t, err)

	// qux only collides with packages whose declarations excuse it or with identical content
	for _, fc := range got {
		assert.NotEqual(t, "foo", fc.ConflictPackage)
	}
}

func TestFinder_Errors(t *testing.T) {
	finder := NewFinder(loadFiles(t), nil)

	tests := []struct {
		name    string
		req     Request
		wantErr error
	}{
		{name: "no packages", req: Request{Branch: "sisyphus"}, wantErr: ErrValidation},
		{name: "no branch", req: Request{Packages: []string{"foo"}}, wantErr: ErrValidation},
		{name: "unknown package", req: Request{Packages: []string{"foo", "ghost"}, Branch: "sisyphus"}, wantErr: ErrNotFound},
		{
			name:    "package outside the architecture set",
			req:     Request{Packages: []string{"baz"}, Branch: "sisyphus", Archs: []string{"aarch64"}},
			wantErr: ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := finder.Find(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

type brokenFiles struct {
	facts.Store
}

var errDisk = errors.New("disk quota exceeded")

func (brokenFiles) FileConflictCandidates(context.Context, []uint64, string, []string) ([]facts.ConflictCandidate, error) {
	return nil, errDisk
}

func TestFinder_FetchFailure(t *testing.T) {
	finder := NewFinder(brokenFiles{Store: loadFiles(t)}, nil)

	_, err := finder.Find(context.Background(), Request{Packages: []string{"foo"}, Branch: "sisyphus", Archs: []string{"x86_64"}})

	assert.ErrorIs(t, err, ErrDataFetch)
	assert.ErrorIs(t, err, errDisk)
}

func TestCommonArchs(t *testing.T) {
	assert.Equal(t, []string{"x86_64"}, commonArchs([]string{"x86_64", "i586"}, []string{"x86_64"}))
	assert.Equal(t, []string{"i586", "x86_64"}, commonArchs([]string{"noarch"}, []string{"x86_64", "i586"}))
	assert.Equal(t, []string{"aarch64"}, commonArchs([]string{"aarch64"}, []string{"noarch"}))
	assert.Empty(t, commonArchs([]string{"x86_64"}, []string{"i586"}))
}
