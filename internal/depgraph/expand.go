package depgraph

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"

	"github.com/samber/lo"

	"github.com/depgraph-io/depgraph/internal/facts"
	"github.com/depgraph-io/depgraph/internal/rpm"
)

// link is one satisfied build requirement: source package from requires a capability
// provided by a binary built from source package to.
type link struct {
	from       uint64
	to         uint64
	capability string
	provider   facts.Package
}

func hashesOf(pkgs []facts.Package) []uint64 {
	hashes := lo.Uniq(lo.Map(pkgs, func(p facts.Package, _ int) uint64 { return p.Hash }))
	slices.Sort(hashes)

	return hashes
}

func sortedKeys[V any](m map[uint64]V) []uint64 {
	keys := lo.Keys(m)
	slices.Sort(keys)

	return keys
}

// requirementLinks finds, for the given source packages, every binary of the snapshot
// providing one of their build requirements. bins are the binaries of sources; they are
// consulted only when binary requirements take part.
func (r *Resolver) requirementLinks(
	ctx context.Context,
	req Request,
	sources []facts.Package,
	bins []facts.Package,
) ([]link, error) {
	carriers := make(map[uint64]uint64, len(sources)+len(bins)) // declaring package -> its source

	if req.usesSource() {
		for _, s := range sources {
			carriers[s.Hash] = s.Hash
		}
	}

	if req.usesBinary() {
		for _, b := range bins {
			carriers[b.Hash] = b.SourceHash
		}
	}

	if len(carriers) == 0 {
		return nil, nil
	}

	rels, err := r.store.RelationsForPackages(ctx, sortedKeys(carriers), []facts.Kind{facts.KindRequire})
	if err != nil {
		return nil, fmt.Errorf("%w: requires: %w", ErrDataFetch, err)
	}

	if len(rels) == 0 {
		return nil, nil
	}

	capabilities := lo.Uniq(lo.Map(rels, func(rel facts.Relation, _ int) string { return rel.Name }))
	sort.Strings(capabilities)

	matches, err := r.store.ProvidersOf(ctx, capabilities, req.Branch, req.Archs)
	if err != nil {
		return nil, fmt.Errorf("%w: providers: %w", ErrDataFetch, err)
	}

	byName := lo.GroupBy(matches, func(m facts.Match) string { return m.Dependency.Name })

	var links []link

	for _, rel := range rels {
		from, ok := carriers[rel.PackageHash]
		if !ok {
			continue
		}

		for _, m := range byName[rel.Name] {
			if !rpm.ProvideOverlaps(m.Dependency.Dep(), rel.Dep()) {
				continue
			}

			links = append(links, link{
				from:       from,
				to:         m.Package.SourceHash,
				capability: rel.Name,
				provider:   m.Package,
			})
		}
	}

	return links, nil
}

// dependentLinks finds, for the given source packages, every package of the snapshot whose
// build requirements are satisfied by their binaries.
func (r *Resolver) dependentLinks(ctx context.Context, req Request, bins []facts.Package) ([]link, error) {
	if len(bins) == 0 {
		return nil, nil
	}

	binByHash := lo.KeyBy(bins, func(b facts.Package) uint64 { return b.Hash })

	provides, err := r.store.RelationsForPackages(ctx, hashesOf(bins), []facts.Kind{facts.KindProvide})
	if err != nil {
		return nil, fmt.Errorf("%w: provides: %w", ErrDataFetch, err)
	}

	if len(provides) == 0 {
		return nil, nil
	}

	capabilities := lo.Uniq(lo.Map(provides, func(rel facts.Relation, _ int) string { return rel.Name }))
	sort.Strings(capabilities)

	var matches []facts.Match

	for _, class := range req.classes() {
		found, err := r.store.RequirersOf(ctx, capabilities, req.Branch, req.Archs, class)
		if err != nil {
			return nil, fmt.Errorf("%w: requirers: %w", ErrDataFetch, err)
		}

		matches = append(matches, found...)
	}

	byName := lo.GroupBy(provides, func(rel facts.Relation) string { return rel.Name })

	var links []link

	for _, m := range matches {
		from := m.Package.SourceHash
		if m.Package.Source {
			from = m.Package.Hash
		}

		for _, p := range byName[m.Dependency.Name] {
			if !rpm.ProvideOverlaps(p.Dep(), m.Dependency.Dep()) {
				continue
			}

			provider := binByHash[p.PackageHash]

			links = append(links, link{
				from:       from,
				to:         provider.SourceHash,
				capability: m.Dependency.Name,
				provider:   provider,
			})
		}
	}

	return links, nil
}

// binariesOf fetches the arch-filtered binaries of the given sources.
func (r *Resolver) binariesOf(ctx context.Context, req Request, sources []facts.Package) ([]facts.Package, error) {
	bins, err := r.store.BinariesOf(ctx, hashesOf(sources), req.Branch, req.Archs)
	if err != nil {
		return nil, fmt.Errorf("%w: binaries: %w", ErrDataFetch, err)
	}

	return bins, nil
}

// sourcesByHash fetches the source packages behind hashes and fails if any is missing.
func (r *Resolver) sourcesByHash(ctx context.Context, hashes []uint64) ([]facts.Package, error) {
	if len(hashes) == 0 {
		return nil, nil
	}

	pkgs, err := r.store.PackagesByHash(ctx, hashes)
	if err != nil {
		return nil, fmt.Errorf("%w: packages: %w", ErrDataFetch, err)
	}

	found := lo.KeyBy(pkgs, func(p facts.Package) uint64 { return p.Hash })
	for _, h := range hashes {
		if _, ok := found[h]; !ok {
			return nil, fmt.Errorf("%w: no package data for hash %d", ErrDataFetch, h)
		}
	}

	return pkgs, nil
}

// expand runs the level-by-level discovery. Seeds are level 0 and never enter the graph;
// a package joins the graph at the first level that reaches it.
func (r *Resolver) expand(ctx context.Context, req Request, seeds []facts.Package) (*workGraph, int, error) {
	g := newWorkGraph()
	seedSet := lo.SliceToMap(seeds, func(p facts.Package) (uint64, struct{}) { return p.Hash, struct{}{} })
	frontier := seeds
	rounds := 0

	for level := 1; level <= req.Depth && len(frontier) > 0; level++ {
		rounds++

		var (
			bins  []facts.Package
			links []link
			err   error
		)

		if req.Direction == DirectionDependents || req.usesBinary() {
			if bins, err = r.binariesOf(ctx, req, frontier); err != nil {
				return nil, rounds, err
			}
		}

		if req.Direction == DirectionDependents {
			links, err = r.dependentLinks(ctx, req, bins)
		} else {
			links, err = r.requirementLinks(ctx, req, frontier, bins)
		}

		if err != nil {
			return nil, rounds, err
		}

		via := make(map[uint64][]string)

		for _, l := range links {
			target := l.to
			if req.Direction == DirectionDependents {
				target = l.from
			}

			if _, ok := seedSet[target]; ok || g.has(target) {
				continue
			}

			via[target] = append(via[target], l.capability)
		}

		found, err := r.sourcesByHash(ctx, sortedKeys(via))
		if err != nil {
			return nil, rounds, err
		}

		sort.Slice(found, func(i, j int) bool { return found[i].Name < found[j].Name })

		for _, pkg := range found {
			capabilities := lo.Uniq(via[pkg.Hash])
			sort.Strings(capabilities)
			g.add(pkg, level, capabilities)
		}

		r.logger.Debug("Expansion round complete",
			slog.Int("round", level),
			slog.Int("frontier", len(frontier)),
			slog.Int("new_packages", len(found)),
			slog.Int("discovered", len(g.nodes)))

		frontier = found
	}

	return g, rounds, nil
}

// connect computes the complete requirement adjacency of the discovered set together with
// each package's architectures and the providers of its build requirements.
func (r *Resolver) connect(ctx context.Context, req Request, g *workGraph) error {
	if len(g.nodes) == 0 {
		return nil
	}

	bins, err := r.binariesOf(ctx, req, g.packages())
	if err != nil {
		return err
	}

	for _, b := range bins {
		if i, ok := g.index[b.SourceHash]; ok {
			g.nodes[i].archs = append(g.nodes[i].archs, b.Arch)
		}
	}

	links, err := r.requirementLinks(ctx, req, g.packages(), bins)
	if err != nil {
		return err
	}

	edges := make(map[[2]int]struct{}, len(links))

	for _, l := range links {
		u, ok := g.index[l.from]
		if !ok {
			continue
		}

		n := g.nodes[u]
		n.providers[l.provider.Name] = struct{}{}

		v, ok := g.index[l.to]
		if !ok || v == u {
			continue
		}

		if _, dup := edges[[2]int{u, v}]; dup {
			continue
		}

		edges[[2]int{u, v}] = struct{}{}
		n.requires = append(n.requires, v)
	}

	for _, n := range g.nodes {
		slices.Sort(n.requires)

		n.archs = lo.Uniq(n.archs)
		sort.Strings(n.archs)
	}

	return nil
}
