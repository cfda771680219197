// Package depgraph resolves RPM build dependencies of source packages.
//
// A resolution expands a seed set level by level against a facts.Store: level 1 holds the
// source packages reached directly from the seeds, level 2 those reached from level 1, and
// so on up to the requested depth. A package keeps the level at which it was first reached.
// The discovered set is then connected into a requirement graph, its cycles are grouped
// with Tarjan's algorithm and the result is ordered so that requirements precede the
// packages needing them.
//
// Every store call is a bulk lookup covering a whole frontier, so the number of round trips
// grows with the depth, never with the number of packages.
package depgraph

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/depgraph-io/depgraph/internal/facts"
)

const slowResolution = 2 * time.Second

type (
	// Resolver computes build dependency lists and dependency sets.
	// It holds no per-request state and is safe for concurrent use.
	Resolver struct {
		store        facts.Store
		platforms    Platforms
		logger       *slog.Logger
		maxDepth     int
		defaultArchs []string
	}

	// Option configures a Resolver.
	Option func(*Resolver)
)

// WithLogger sets the logger used for round and summary logging.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithPlatforms enables branch alias resolution and branch/architecture validation.
func WithPlatforms(p Platforms) Option {
	return func(r *Resolver) {
		r.platforms = p
	}
}

// WithConfig applies the depth ceiling and default architectures.
func WithConfig(cfg *Config) Option {
	return func(r *Resolver) {
		if cfg == nil {
			return
		}

		if cfg.MaxDepth > 0 {
			r.maxDepth = cfg.MaxDepth
		}

		if len(cfg.DefaultArchs) > 0 {
			r.defaultArchs = slices.Clone(cfg.DefaultArchs)
		}
	}
}

// NewResolver creates a resolver reading facts from store.
func NewResolver(store facts.Store, opts ...Option) *Resolver {
	r := &Resolver{
		store:        store,
		logger:       slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})),
		maxDepth:     defaultMaxDepth,
		defaultArchs: []string{"x86_64", archNoarch},
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Resolve computes the ordered build dependency list for the request.
//
// Errors wrap ErrValidation for malformed input, ErrNotFound for a seed missing from the
// branch or a leaf missing from the computed list, and ErrDataFetch for store failures.
// An empty list is a valid answer.
func (r *Resolver) Resolve(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	req, err := r.normalize(req)
	if err != nil {
		return nil, err
	}

	seeds, err := r.lookupSources(ctx, req.Packages, req.Branch)
	if err != nil {
		return nil, err
	}

	g, rounds, err := r.expand(ctx, req, seeds)
	if err != nil {
		return nil, err
	}

	if err := r.connect(ctx, req, g); err != nil {
		return nil, err
	}

	if req.OneAndHalf {
		g = g.retain(keepOneAndHalf(g))
	}

	if err := r.attachACL(ctx, req.Branch, g); err != nil {
		return nil, err
	}

	adj := g.adjacency()
	comp, groups := components(adj)
	order := requirementsFirst(adj, comp, groups)

	keep, err := r.applyFilters(ctx, req, g, comp)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Request: req,
		Records: buildRecords(g, comp, groups, order, keep, req.Branch),
		Stats: Stats{
			Rounds:     rounds,
			Discovered: len(g.nodes),
			Cycles:     lo.CountBy(groups, func(group []int) bool { return len(group) > 1 }),
		},
	}

	duration := time.Since(start)
	r.logger.Info("Resolved build dependencies",
		slog.String("packages", strings.Join(req.Packages, ",")),
		slog.String("branch", req.Branch),
		slog.Int("depth", req.Depth),
		slog.String("direction", string(req.Direction)),
		slog.Int("rounds", rounds),
		slog.Int("discovered", result.Stats.Discovered),
		slog.Int("cycles", result.Stats.Cycles),
		slog.Int("result_count", len(result.Records)),
		slog.Duration("duration", duration))

	if duration > slowResolution {
		r.logger.Warn("Slow dependency resolution detected",
			slog.Duration("duration", duration),
			slog.Int("discovered", result.Stats.Discovered),
			slog.String("recommendation", "Reduce depth or narrow the architecture set"))
	}

	return result, nil
}

// lookupSources resolves source package names in the branch, failing on the first missing names.
func (r *Resolver) lookupSources(ctx context.Context, names []string, branch string) ([]facts.Package, error) {
	pkgs, err := r.store.LookupPackagesByName(ctx, names, branch)
	if err != nil {
		return nil, fmt.Errorf("%w: packages: %w", ErrDataFetch, err)
	}

	found := lo.SliceToMap(pkgs, func(p facts.Package) (string, struct{}) { return p.Name, struct{}{} })
	missing := lo.Filter(names, func(name string, _ int) bool {
		_, ok := found[name]

		return !ok
	})

	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: packages %s not found in branch %s",
			ErrNotFound, strings.Join(missing, ", "), branch)
	}

	return pkgs, nil
}

func (r *Resolver) attachACL(ctx context.Context, branch string, g *workGraph) error {
	if len(g.nodes) == 0 {
		return nil
	}

	names := lo.Map(g.nodes, func(n *node, _ int) string { return n.pkg.Name })

	acl, err := r.store.ACLFor(ctx, names, branch)
	if err != nil {
		return fmt.Errorf("%w: acl: %w", ErrDataFetch, err)
	}

	for _, n := range g.nodes {
		n.acl = acl[n.pkg.Name]
	}

	return nil
}

// applyFilters runs the post-filters in order: leaf, ACL, finite, provider.
func (r *Resolver) applyFilters(ctx context.Context, req Request, g *workGraph, comp []int) ([]bool, error) {
	keep := make([]bool, len(g.nodes))
	for i := range keep {
		keep[i] = true
	}

	if req.Leaf != "" {
		if err := filterLeaf(g, comp, keep, req.Leaf); err != nil {
			return nil, err
		}
	}

	if req.ACL != "" {
		filterACL(g, keep, req.ACL)
	}

	if req.FiniteOnly {
		filterFinite(g, comp, keep)
	}

	switch {
	case len(req.FilterByPackage) > 0:
		filterByBinaries(g, keep, req.FilterByPackage)
	case req.FilterBySource != "":
		src, err := r.lookupSources(ctx, []string{req.FilterBySource}, req.Branch)
		if err != nil {
			return nil, err
		}

		// Every binary the source builds for the requested archs must be required.
		bins, err := r.binariesOf(ctx, req, src)
		if err != nil {
			return nil, err
		}

		filterByBinaries(g, keep, lo.Uniq(lo.Map(bins, func(p facts.Package, _ int) string { return p.Name })))
	}

	return keep, nil
}

func buildRecords(g *workGraph, comp []int, groups [][]int, order []int, keep []bool, branch string) []Record {
	records := make([]Record, 0, len(order))

	for _, i := range order {
		if !keep[i] {
			continue
		}

		n := g.nodes[i]

		var cycle []string

		for _, j := range groups[comp[i]] {
			if j != i {
				cycle = append(cycle, g.nodes[j].pkg.Name)
			}
		}

		var dependsOn []string

		for _, j := range n.requires {
			if keep[j] {
				dependsOn = append(dependsOn, g.nodes[j].pkg.Name)
			}
		}

		sort.Strings(cycle)
		sort.Strings(dependsOn)

		records = append(records, Record{
			Name:      n.pkg.Name,
			Version:   n.pkg.Version,
			Release:   n.pkg.Release,
			Epoch:     n.pkg.Epoch,
			Serial:    n.pkg.Serial,
			SourceRPM: n.pkg.SourceRPM,
			Branch:    branch,
			Archs:     nonNil(n.archs),
			BuildTime: n.pkg.BuildTime,
			Cycle:     nonNil(cycle),
			Requires:  nonNil(n.via),
			DependsOn: nonNil(dependsOn),
			ACL:       nonNil(n.acl),
			Depth:     n.depth,
		})
	}

	return records
}

func nonNil(xs []string) []string {
	if xs == nil {
		return []string{}
	}

	return xs
}
