// Package conflicts decides which file conflicts between binary packages are real.
//
// Two packages shipping the same path with different content conflict, unless one of
// them declares Conflicts or Obsoletes on a capability the other provides in an
// overlapping version range. Such declared conflicts are excused and never reported.
package conflicts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/samber/lo"

	"github.com/depgraph-io/depgraph/internal/facts"
	"github.com/depgraph-io/depgraph/internal/rpm"
)

// Error classes.
var (
	// ErrDataFetch is returned when relations or version metadata cannot be loaded.
	ErrDataFetch = errors.New("failed to load dependency data")
	// ErrValidation is returned for malformed requests.
	ErrValidation = errors.New("invalid conflict request")
	// ErrNotFound is returned when requested packages are absent from the branch.
	ErrNotFound = errors.New("package not found")
)

// Pair is an unordered pair of package hashes.
type Pair struct {
	A uint64
	B uint64
}

func (p Pair) key() Pair {
	if p.A > p.B {
		return Pair{A: p.B, B: p.A}
	}

	return p
}

// RelationSource is the part of facts.Store the filter reads.
type RelationSource interface {
	RelationsForPackages(ctx context.Context, hashes []uint64, kinds []facts.Kind) ([]facts.Relation, error)
	VersionMetadata(ctx context.Context, hashes []uint64) ([]facts.VersionInfo, error)
}

// Filter finds the candidate pairs excused by declared conflicts.
type Filter struct {
	source RelationSource
	logger *slog.Logger
}

// NewFilter creates a filter. A nil logger discards output.
func NewFilter(source RelationSource, logger *slog.Logger) *Filter {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Filter{source: source, logger: logger}
}

// declarations holds what one package declares; obsoletes are folded into conflicts.
type declarations struct {
	conflicts []facts.Dependency
	provides  []facts.Dependency
	version   rpm.EVR
}

// Excused returns the distinct candidate pairs whose file conflict is covered by a
// Conflicts or Obsoletes declaration in either direction. Each pair is reported once,
// in the orientation it first appeared in. All relations and version metadata are fetched
// in one batch; if anything is missing no partial answer is returned.
func (f *Filter) Excused(ctx context.Context, pairs []Pair) ([]Pair, error) {
	if len(pairs) == 0 {
		return []Pair{}, nil
	}

	hashes := lo.Uniq(lo.FlatMap(pairs, func(p Pair, _ int) []uint64 { return []uint64{p.A, p.B} }))
	slices.Sort(hashes)

	decls, err := f.load(ctx, hashes)
	if err != nil {
		return nil, err
	}

	seen := make(map[Pair]struct{}, len(pairs))
	excused := make([]Pair, 0)

	for _, p := range pairs {
		if _, dup := seen[p.key()]; dup {
			continue
		}

		seen[p.key()] = struct{}{}

		if declared(decls[p.A], decls[p.B]) || declared(decls[p.B], decls[p.A]) {
			excused = append(excused, p)
		}
	}

	f.logger.Debug("Filtered conflict candidates",
		slog.Int("candidates", len(pairs)),
		slog.Int("packages", len(hashes)),
		slog.Int("excused", len(excused)))

	return excused, nil
}

func (f *Filter) load(ctx context.Context, hashes []uint64) (map[uint64]*declarations, error) {
	rels, err := f.source.RelationsForPackages(ctx, hashes,
		[]facts.Kind{facts.KindConflict, facts.KindObsolete, facts.KindProvide})
	if err != nil {
		return nil, fmt.Errorf("%w: relations: %w", ErrDataFetch, err)
	}

	meta, err := f.source.VersionMetadata(ctx, hashes)
	if err != nil {
		return nil, fmt.Errorf("%w: version metadata: %w", ErrDataFetch, err)
	}

	decls := make(map[uint64]*declarations, len(hashes))
	for _, m := range meta {
		decls[m.Hash] = &declarations{version: m.EVR()}
	}

	for _, h := range hashes {
		if _, ok := decls[h]; !ok {
			return nil, fmt.Errorf("%w: no version metadata for package %d", ErrDataFetch, h)
		}
	}

	for _, rel := range rels {
		d, ok := decls[rel.PackageHash]
		if !ok {
			continue
		}

		switch rel.Kind {
		case facts.KindConflict, facts.KindObsolete:
			d.conflicts = append(d.conflicts, rel.Dependency)
		case facts.KindProvide:
			d.provides = append(d.provides, rel.Dependency)
		case facts.KindRequire:
		}
	}

	return decls, nil
}

// declared reports whether a conflicts with something b provides.
func declared(a, b *declarations) bool {
	for _, c := range a.conflicts {
		for _, p := range b.provides {
			if c.Name != p.Name {
				continue
			}

			if Overlaps(c, p, b.version) {
				return true
			}
		}
	}

	return false
}

// Overlaps reports whether a conflict (or obsolete) declaration covers a provide.
// An unversioned provide is taken at the providing package's full version, disttag included.
func Overlaps(conflict, provide facts.Dependency, providerVersion rpm.EVR) bool {
	version := provide.Version
	if version == "" {
		version = providerVersion.String()
	}

	return rpm.ProvideOverlaps(
		rpm.Dep{Name: provide.Name, EVR: version, Flags: rpm.SenseEqual},
		conflict.Dep(),
	)
}
