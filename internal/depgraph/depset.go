package depgraph

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/depgraph-io/depgraph/internal/facts"
	"github.com/depgraph-io/depgraph/internal/rpm"
)

type (
	// SetRequest asks for the binary dependency closure of source packages.
	SetRequest struct {
		Packages []string
		Branch   string
		Archs    []string
	}

	// SetDependency is one binary package of a closure, merged across architectures.
	SetDependency struct {
		Name     string
		Version  string
		Release  string
		Epoch    int64
		Archs    []string
		Requires []string // binaries of the closure this one requires directly
	}

	// SetEntry is the closure of one requested source package.
	SetEntry struct {
		Package string
		Depends []SetDependency
	}

	// SetResult holds one entry per requested package, in request order.
	SetResult struct {
		Request SetRequest
		Entries []SetEntry
	}
)

// DependencySet computes, for each source package, every binary package needed to build it:
// the providers of its build requirements, the providers of their requirements, and so on
// until no new binary appears. Each round of the closure is one bulk lookup.
func (r *Resolver) DependencySet(ctx context.Context, req SetRequest) (*SetResult, error) {
	start := time.Now()

	req.Packages = lo.Uniq(lo.Compact(req.Packages))
	if len(req.Packages) == 0 {
		return nil, fmt.Errorf("%w: at least one package name is required", ErrValidation)
	}

	branch, archs, err := r.normalizePlatform(req.Branch, req.Archs)
	if err != nil {
		return nil, err
	}

	req.Branch = branch
	req.Archs = archs

	sources, err := r.lookupSources(ctx, req.Packages, req.Branch)
	if err != nil {
		return nil, err
	}

	srcReq := Request{Branch: req.Branch, Archs: req.Archs, DependencyType: DependencySource}

	direct, err := r.requirementLinks(ctx, srcReq, sources, nil)
	if err != nil {
		return nil, err
	}

	binaries := make(map[uint64]facts.Package)
	tree := make(map[uint64]map[uint64]struct{}) // binary -> binaries providing its requirements
	roots := make(map[uint64][]uint64)           // source -> binaries providing its requirements

	var frontier []facts.Package

	for _, l := range direct {
		roots[l.from] = append(roots[l.from], l.provider.Hash)

		if _, ok := binaries[l.provider.Hash]; !ok {
			binaries[l.provider.Hash] = l.provider
			frontier = append(frontier, l.provider)
		}
	}

	rounds := 1
	binReq := Request{Branch: req.Branch, Archs: req.Archs, DependencyType: DependencyBinary}

	for len(frontier) > 0 {
		rounds++

		links, err := r.binaryLinks(ctx, binReq, frontier)
		if err != nil {
			return nil, err
		}

		frontier = nil

		for _, l := range links {
			if l.from == l.provider.Hash {
				continue
			}

			if tree[l.from] == nil {
				tree[l.from] = make(map[uint64]struct{})
			}

			tree[l.from][l.provider.Hash] = struct{}{}

			if _, ok := binaries[l.provider.Hash]; !ok {
				binaries[l.provider.Hash] = l.provider
				frontier = append(frontier, l.provider)
			}
		}
	}

	bySource := lo.KeyBy(sources, func(p facts.Package) string { return p.Name })
	result := &SetResult{Request: req}

	for _, name := range req.Packages {
		src := bySource[name]
		closure := closureOf(roots[src.Hash], tree)
		result.Entries = append(result.Entries, SetEntry{
			Package: name,
			Depends: groupClosure(closure, binaries, tree),
		})
	}

	r.logger.Info("Resolved dependency set",
		slog.String("packages", strings.Join(req.Packages, ",")),
		slog.String("branch", req.Branch),
		slog.Int("rounds", rounds),
		slog.Int("binaries", len(binaries)),
		slog.Duration("duration", time.Since(start)))

	return result, nil
}

// binaryLinks finds the providers of the binaries' requirements. Unlike requirementLinks
// the declaring side is the binary itself, not its source.
func (r *Resolver) binaryLinks(ctx context.Context, req Request, bins []facts.Package) ([]link, error) {
	rels, err := r.store.RelationsForPackages(ctx, hashesOf(bins), []facts.Kind{facts.KindRequire})
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
		for _, m := range byName[rel.Name] {
			if rpm.ProvideOverlaps(m.Dependency.Dep(), rel.Dep()) {
				links = append(links, link{
					from:       rel.PackageHash,
					to:         m.Package.SourceHash,
					capability: rel.Name,
					provider:   m.Package,
				})
			}
		}
	}

	return links, nil
}

func closureOf(roots []uint64, tree map[uint64]map[uint64]struct{}) map[uint64]struct{} {
	seen := make(map[uint64]struct{})
	stack := append([]uint64(nil), roots...)

	for len(stack) > 0 {
		h := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if _, ok := seen[h]; ok {
			continue
		}

		seen[h] = struct{}{}

		for next := range tree[h] {
			stack = append(stack, next)
		}
	}

	return seen
}

func (d SetDependency) evr() rpm.EVR {
	return rpm.EVR{Epoch: d.Epoch, HasEpoch: d.Epoch != 0, Version: d.Version, Release: d.Release}
}

type setKey struct {
	name    string
	version string
	release string
	epoch   int64
}

// groupClosure merges the binaries of a closure by (name, version, release, epoch).
func groupClosure(
	closure map[uint64]struct{},
	binaries map[uint64]facts.Package,
	tree map[uint64]map[uint64]struct{},
) []SetDependency {
	grouped := make(map[setKey]*SetDependency)

	for h := range closure {
		b := binaries[h]
		key := setKey{b.Name, b.Version, b.Release, b.Epoch}

		dep, ok := grouped[key]
		if !ok {
			dep = &SetDependency{Name: b.Name, Version: b.Version, Release: b.Release, Epoch: b.Epoch}
			grouped[key] = dep
		}

		dep.Archs = append(dep.Archs, b.Arch)

		for req := range tree[h] {
			if name := binaries[req].Name; name != b.Name {
				dep.Requires = append(dep.Requires, name)
			}
		}
	}

	out := make([]SetDependency, 0, len(grouped))

	for _, dep := range grouped {
		dep.Archs = lo.Uniq(dep.Archs)
		dep.Requires = lo.Uniq(dep.Requires)
		sort.Strings(dep.Archs)
		sort.Strings(dep.Requires)

		if dep.Requires == nil {
			dep.Requires = []string{}
		}

		out = append(out, *dep)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}

		if rc := rpm.CompareEVR(out[i].evr(), out[j].evr()); rc != 0 {
			return rc < 0
		}

		return out[i].Release < out[j].Release
	})

	return out
}
