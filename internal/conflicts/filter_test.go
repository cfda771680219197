package conflicts

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/depgraph-io/depgraph/internal/facts"
	"github.com/depgraph-io/depgraph/internal/rpm"
)

// fakeSource serves relations and version metadata from slices.
type fakeSource struct {
	rels    []facts.Relation
	meta    []facts.VersionInfo
	relErr  error
	metaErr error
	calls   int
}

func (s *fakeSource) RelationsForPackages(_ context.Context, hashes []uint64, kinds []facts.Kind) ([]facts.Relation, error) {
	s.calls++

	if s.relErr != nil {
		return nil, s.relErr
	}

	var out []facts.Relation

	for _, r := range s.rels {
		for _, h := range hashes {
			if r.PackageHash == h {
				for _, k := range kinds {
					if r.Kind == k {
						out = append(out, r)
					}
				}
			}
		}
	}

	return out, nil
}

func (s *fakeSource) VersionMetadata(_ context.Context, hashes []uint64) ([]facts.VersionInfo, error) {
	s.calls++

	if s.metaErr != nil {
		return nil, s.metaErr
	}

	var out []facts.VersionInfo

	for _, m := range s.meta {
		for _, h := range hashes {
			if m.Hash == h {
				out = append(out, m)
			}
		}
	}

	return out, nil
}

const (
	hashA uint64 = 0xa1
	hashB uint64 = 0xb2
	hashC uint64 = 0xc3
)

func rel(hash uint64, kind facts.Kind, name, op, version string) facts.Relation {
	sense, err := rpm.ParseSense(op)
	if err != nil {
		panic(err)
	}

	return facts.Relation{
		PackageHash: hash,
		Dependency:  facts.Dependency{Kind: kind, Name: name, Version: version, Flags: uint32(sense)},
	}
}

func meta(hash uint64, epoch int64, version, release, disttag string) facts.VersionInfo {
	return facts.VersionInfo{Hash: hash, Epoch: epoch, Version: version, Release: release, Disttag: disttag}
}

func TestFilter_Excused(t *testing.T) {
	baseMeta := []facts.VersionInfo{
		meta(hashA, 0, "1.0", "alt1", ""),
		meta(hashB, 0, "1.0", "alt1", ""),
	}

	tests := []struct {
		name    string
		rels    []facts.Relation
		meta    []facts.VersionInfo
		excused bool
	}{
		{
			name: "unversioned conflict",
			rels: []facts.Relation{
				rel(hashA, facts.KindConflict, "foo", "", ""),
				rel(hashB, facts.KindProvide, "foo", "=", "7.2-alt3"),
			},
			excused: true,
		},
		{
			name: "versioned conflict matches provide",
			rels: []facts.Relation{
				rel(hashA, facts.KindConflict, "foo", "<", "2.0"),
				rel(hashB, facts.KindProvide, "foo", "=", "1.0-alt1"),
			},
			excused: true,
		},
		{
			name: "versioned conflict misses provide",
			rels: []facts.Relation{
				rel(hashA, facts.KindConflict, "foo", "<", "2.0"),
				rel(hashB, facts.KindProvide, "foo", "=", "2.0-alt1"),
			},
			excused: false,
		},
		{
			name: "obsolete counts as conflict",
			rels: []facts.Relation{
				rel(hashA, facts.KindObsolete, "foo", "<=", "1.0"),
				rel(hashB, facts.KindProvide, "foo", "=", "1.0-alt1"),
			},
			excused: true,
		},
		{
			name: "conflict declared by the second package",
			rels: []facts.Relation{
				rel(hashA, facts.KindProvide, "bar", "", ""),
				rel(hashB, facts.KindConflict, "bar", ">=", "0.9"),
			},
			excused: true,
		},
		{
			name: "unversioned provide takes the package version",
			rels: []facts.Relation{
				rel(hashA, facts.KindConflict, "foo", "<", "1.5"),
				rel(hashB, facts.KindProvide, "foo", "", ""),
			},
			excused: true,
		},
		{
			name: "unversioned provide outside the range",
			rels: []facts.Relation{
				rel(hashA, facts.KindConflict, "foo", ">", "1.5"),
				rel(hashB, facts.KindProvide, "foo", "", ""),
			},
			excused: false,
		},
		{
			name: "epoch dominates",
			rels: []facts.Relation{
				rel(hashA, facts.KindConflict, "foo", "<", "9.0"),
				rel(hashB, facts.KindProvide, "foo", "", ""),
			},
			meta: []facts.VersionInfo{
				meta(hashA, 0, "1.0", "alt1", ""),
				meta(hashB, 1, "1.0", "alt1", ""),
			},
			excused: false,
		},
		{
			name: "matching disttag",
			rels: []facts.Relation{
				rel(hashA, facts.KindConflict, "foo", "=", "1.0-alt1:p10+100.1"),
				rel(hashB, facts.KindProvide, "foo", "", ""),
			},
			meta: []facts.VersionInfo{
				meta(hashA, 0, "2.0", "alt1", ""),
				meta(hashB, 0, "1.0", "alt1", "p10+100.1"),
			},
			excused: true,
		},
		{
			name: "different disttag",
			rels: []facts.Relation{
				rel(hashA, facts.KindConflict, "foo", "=", "1.0-alt1:p10+100.1"),
				rel(hashB, facts.KindProvide, "foo", "", ""),
			},
			meta: []facts.VersionInfo{
				meta(hashA, 0, "2.0", "alt1", ""),
				meta(hashB, 0, "1.0", "alt1", "p10+100.2"),
			},
			excused: false,
		},
		{
			name: "names differ",
			rels: []facts.Relation{
				rel(hashA, facts.KindConflict, "foo", "", ""),
				rel(hashB, facts.KindProvide, "foobar", "", ""),
			},
			excused: false,
		},
		{
			name: "conflict against own provide only",
			rels: []facts.Relation{
				rel(hashA, facts.KindConflict, "foo", "", ""),
				rel(hashA, facts.KindProvide, "foo", "", ""),
			},
			excused: false,
		},
		{
			name:    "no declarations",
			excused: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source := &fakeSource{rels: tt.rels, meta: tt.meta}
			if source.meta == nil {
				source.meta = baseMeta
			}

			f := NewFilter(source, nil)

			forward, err := f.Excused(context.Background(), []Pair{{A: hashA, B: hashB}})
			require.NoError(t, err)

			backward, err := f.Excused(context.Background(), []Pair{{A: hashB, B: hashA}})
			require.NoError(t, err)

			assert.Equal(t, tt.excused, len(forward) == 1)
			assert.Equal(t, len(forward), len(backward), "excused(A,B) must equal excused(B,A)")
		})
	}
}

func TestOverlaps(t *testing.T) {
	conflict := rel(hashA, facts.KindConflict, "foo", "<", "2.0").Dependency

	tests := []struct {
		name     string
		provide  facts.Relation
		provider string
		want     bool
	}{
		{"provide version wins over a newer provider", rel(hashB, facts.KindProvide, "foo", "=", "1.0-alt1"), "5.0-alt1", true},
		{"provide version wins over an older provider", rel(hashB, facts.KindProvide, "foo", "=", "3.0-alt1"), "1.0-alt1", false},
		{"unversioned provide takes the provider version", rel(hashB, facts.KindProvide, "foo", "", ""), "1.0-alt1", true},
		{"unversioned provide of a newer provider", rel(hashB, facts.KindProvide, "foo", "", ""), "3.0-alt1", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Overlaps(conflict, tt.provide.Dependency, rpm.ParseEVR(tt.provider)))
		})
	}
}

func TestFilter_UnversionedConflictAbsorbsEveryVersion(t *testing.T) {
	versions := []string{"", "1.0~rc1", "1.0~rc1-alt0.1", "3:9.9-alt1", "0", "1.0^git20240101-alt1", "2:1.0-alt1:p11+1"}

	for _, version := range versions {
		t.Run(version, func(t *testing.T) {
			op := "="
			if version == "" {
				op = ""
			}

			source := &fakeSource{
				rels: []facts.Relation{
					rel(hashA, facts.KindConflict, "foo", "", ""),
					rel(hashB, facts.KindProvide, "foo", op, version),
				},
				meta: []facts.VersionInfo{meta(hashA, 0, "1", "alt1", ""), meta(hashB, 5, "0.1", "alt0.1", "")},
			}

			excused, err := NewFilter(source, nil).Excused(context.Background(), []Pair{{A: hashA, B: hashB}})
			require.NoError(t, err)
			assert.Equal(t, []Pair{{A: hashA, B: hashB}}, excused)
		})
	}
}

func TestFilter_DeduplicatesUnorderedPairs(t *testing.T) {
	source := &fakeSource{
		rels: []facts.Relation{
			rel(hashA, facts.KindConflict, "foo", "", ""),
			rel(hashB, facts.KindProvide, "foo", "", ""),
			rel(hashC, facts.KindProvide, "foo", "", ""),
		},
		meta: []facts.VersionInfo{
			meta(hashA, 0, "1", "alt1", ""),
			meta(hashB, 0, "1", "alt1", ""),
			meta(hashC, 0, "1", "alt1", ""),
		},
	}

	excused, err := NewFilter(source, nil).Excused(context.Background(), []Pair{
		{A: hashB, B: hashA},
		{A: hashA, B: hashB},
		{A: hashA, B: hashC},
		{A: hashB, B: hashC},
	})
	require.NoError(t, err)

	assert.Equal(t, []Pair{{A: hashB, B: hashA}, {A: hashA, B: hashC}}, excused)
	assert.Equal(t, 2, source.calls, "one batch for relations and one for versions")
}

func TestFilter_EmptyInput(t *testing.T) {
	source := &fakeSource{}

	excused, err := NewFilter(source, nil).Excused(context.Background(), nil)

	require.NoError(t, err)
	assert.Empty(t, excused)
	assert.Zero(t, source.calls)
}

func TestFilter_DataFetchErrors(t *testing.T) {
	errStore := errors.New("store unavailable")

	tests := []struct {
		name   string
		source *fakeSource
	}{
		{name: "relations fail", source: &fakeSource{relErr: errStore}},
		{name: "metadata fail", source: &fakeSource{metaErr: errStore}},
		{
			name: "metadata missing for one package",
			source: &fakeSource{
				rels: []facts.Relation{rel(hashA, facts.KindConflict, "foo", "", "")},
				meta: []facts.VersionInfo{meta(hashA, 0, "1", "alt1", "")},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			excused, err := NewFilter(tt.source, nil).Excused(context.Background(), []Pair{{A: hashA, B: hashB}})

			require.Error(t, err)
			assert.ErrorIs(t, err, ErrDataFetch)
			assert.Nil(t, excused)
		})
	}
}
