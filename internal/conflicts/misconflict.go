package conflicts

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/depgraph-io/depgraph/internal/facts"
)

const archNoarch = "noarch"

type (
	// Request asks for the unresolved file conflicts of binary packages.
	Request struct {
		Packages []string
		Branch   string
		Archs    []string
	}

	// FileConflict is a real file conflict between a requested package and another package
	// of the branch.
	FileConflict struct {
		InputPackage    string
		ConflictPackage string
		Version         string
		Release         string
		Epoch           int64
		Archs           []string
		Files           []string
	}
)

// Finder reports file conflicts that no Conflicts/Obsoletes declaration excuses.
type Finder struct {
	store  facts.Store
	filter *Filter
	logger *slog.Logger
}

// NewFinder creates a finder over store.
func NewFinder(store facts.Store, logger *slog.Logger) *Finder {
	f := NewFilter(store, logger)

	return &Finder{store: store, filter: f, logger: f.logger}
}

// Find returns the real file conflicts of the requested binaries, grouped per
// (input package, conflict package) and ordered by those names. Branch and architecture
// names are expected to be validated by the caller; noarch is always added.
func (f *Finder) Find(ctx context.Context, req Request) ([]FileConflict, error) {
	start := time.Now()

	req.Packages = lo.Uniq(lo.Compact(req.Packages))
	if len(req.Packages) == 0 {
		return nil, fmt.Errorf("%w: at least one package name is required", ErrValidation)
	}

	if req.Branch == "" {
		return nil, fmt.Errorf("%w: branch is required", ErrValidation)
	}

	if !slices.Contains(req.Archs, archNoarch) {
		req.Archs = append(slices.Clone(req.Archs), archNoarch)
	}

	inputs, err := f.store.BinariesByName(ctx, req.Packages, req.Branch, req.Archs)
	if err != nil {
		return nil, fmt.Errorf("%w: packages: %w", ErrDataFetch, err)
	}

	found := lo.Uniq(lo.Map(inputs, func(p facts.Package, _ int) string { return p.Name }))
	if missing, _ := lo.Difference(req.Packages, found); len(missing) > 0 {
		return nil, fmt.Errorf("%w: packages %s not found in branch %s for archs %s",
			ErrNotFound, strings.Join(missing, ", "), req.Branch, strings.Join(req.Archs, ", "))
	}

	inputHashes := lo.Map(inputs, func(p facts.Package, _ int) uint64 { return p.Hash })

	candidates, err := f.store.FileConflictCandidates(ctx, inputHashes, req.Branch, req.Archs)
	if err != nil {
		return nil, fmt.Errorf("%w: file conflicts: %w", ErrDataFetch, err)
	}

	if len(candidates) == 0 {
		return []FileConflict{}, nil
	}

	pairs := lo.Map(candidates, func(c facts.ConflictCandidate, _ int) Pair { return Pair{A: c.A, B: c.B} })

	excused, err := f.filter.Excused(ctx, pairs)
	if err != nil {
		return nil, err
	}

	others, err := f.store.PackagesByHash(ctx, lo.Uniq(lo.Map(candidates, func(c facts.ConflictCandidate, _ int) uint64 {
		return c.B
	})))
	if err != nil {
		return nil, fmt.Errorf("%w: packages: %w", ErrDataFetch, err)
	}

	known := lo.KeyBy(others, func(p facts.Package) uint64 { return p.Hash })
	for _, c := range candidates {
		if _, ok := known[c.B]; !ok {
			return nil, fmt.Errorf("%w: no package data for hash %d", ErrDataFetch, c.B)
		}
	}

	result := assemble(inputs, others, candidates, excused)

	f.logger.Info("Found file conflicts",
		slog.String("packages", strings.Join(req.Packages, ",")),
		slog.String("branch", req.Branch),
		slog.Int("candidates", len(candidates)),
		slog.Int("excused", len(excused)),
		slog.Int("result_count", len(result)),
		slog.Duration("duration", time.Since(start)))

	return result, nil
}

type namePair struct {
	input    string
	conflict string
}

// assemble groups candidates per (input name, conflict name), drops excused pairs and
// pairs with no architecture in common, and merges files.
func assemble(inputs, others []facts.Package, candidates []facts.ConflictCandidate, excused []Pair) []FileConflict {
	pkgs := lo.KeyBy(append(slices.Clone(inputs), others...), func(p facts.Package) uint64 { return p.Hash })

	excusedNames := make(map[namePair]struct{}, len(excused))
	for _, p := range excused {
		excusedNames[namePair{pkgs[p.A].Name, pkgs[p.B].Name}] = struct{}{}
	}

	archs := make(map[string][]string)
	for _, p := range pkgs {
		archs[p.Name] = append(archs[p.Name], p.Arch)
	}

	grouped := make(map[namePair]*FileConflict)

	for _, c := range candidates {
		a, b := pkgs[c.A], pkgs[c.B]
		key := namePair{a.Name, b.Name}

		if _, ok := excusedNames[key]; ok {
			continue
		}

		fc, ok := grouped[key]
		if !ok {
			fc = &FileConflict{
				InputPackage:    a.Name,
				ConflictPackage: b.Name,
				Version:         b.Version,
				Release:         b.Release,
				Epoch:           b.Epoch,
			}
			grouped[key] = fc
		}

		fc.Files = append(fc.Files, lo.Map(c.Files, func(f facts.File, _ int) string { return f.Path })...)
	}

	out := make([]FileConflict, 0, len(grouped))

	for key, fc := range grouped {
		fc.Archs = commonArchs(archs[key.input], archs[key.conflict])
		if len(fc.Archs) == 0 {
			continue
		}

		fc.Files = lo.Uniq(fc.Files)
		sort.Strings(fc.Files)
		out = append(out, *fc)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].InputPackage != out[j].InputPackage {
			return out[i].InputPackage < out[j].InputPackage
		}

		return out[i].ConflictPackage < out[j].ConflictPackage
	})

	return out
}

// commonArchs intersects two architecture sets; a noarch-only side matches every architecture.
func commonArchs(a, b []string) []string {
	a, b = lo.Uniq(a), lo.Uniq(b)

	var out []string

	switch {
	case len(a) == 1 && a[0] == archNoarch:
		out = b
	case len(b) == 1 && b[0] == archNoarch:
		out = a
	default:
		out = lo.Intersect(a, b)
	}

	sort.Strings(out)

	return out
}
