package depgraph

import (
	"fmt"
	"slices"
	"strings"

	"github.com/samber/lo"

	"github.com/depgraph-io/depgraph/internal/facts"
)

// DependencyType selects which packages' require declarations drive the expansion.
type DependencyType string

// Dependency types.
const (
	DependencySource DependencyType = "source"
	DependencyBinary DependencyType = "binary"
	DependencyBoth   DependencyType = "both"
)

// Direction selects the direction of the expansion.
type Direction string

// Directions.
//
// DirectionRequirements walks from each package to the source packages providing what it
// requires to build. DirectionDependents walks from each package to the source packages
// requiring something its binaries provide.
const (
	DirectionRequirements Direction = "requirements"
	DirectionDependents   Direction = "dependents"
)

// archNoarch is implicitly part of every architecture set.
const archNoarch = "noarch"

// Platforms validates branch and architecture names against the known platform set.
type Platforms interface {
	// ResolveBranch returns the canonical branch name for name, or false if it is unknown.
	ResolveBranch(name string) (string, bool)

	// IsKnownArch reports whether arch is a recognized architecture tag.
	IsKnownArch(arch string) bool
}

// Request describes one dependency resolution.
type Request struct {
	Packages       []string
	Branch         string
	Archs          []string
	Depth          int
	DependencyType DependencyType
	Direction      Direction

	// Optional post-filters, applied in this order: Leaf, ACL, FiniteOnly, FilterBy*.
	Leaf            string
	ACL             string
	FiniteOnly      bool
	FilterByPackage []string
	FilterBySource  string

	// OneAndHalf resolves depth 2 but keeps only those level-2 packages that are
	// required by some level-1 package.
	OneAndHalf bool
}

func (r Request) classes() []facts.Class {
	switch r.DependencyType {
	case DependencySource:
		return []facts.Class{facts.ClassSource}
	case DependencyBinary:
		return []facts.Class{facts.ClassBinary}
	default:
		return []facts.Class{facts.ClassSource, facts.ClassBinary}
	}
}

func (r Request) usesSource() bool {
	return r.DependencyType == DependencySource || r.DependencyType == DependencyBoth
}

func (r Request) usesBinary() bool {
	return r.DependencyType == DependencyBinary || r.DependencyType == DependencyBoth
}

// normalize validates the request and fills defaults. The returned copy is what the
// resolver works with.
func (r *Resolver) normalize(req Request) (Request, error) {
	req.Packages = lo.Uniq(lo.Compact(lo.Map(req.Packages, func(name string, _ int) string {
		return strings.TrimSpace(name)
	})))
	if len(req.Packages) == 0 {
		return req, fmt.Errorf("%w: at least one package name is required", ErrValidation)
	}

	if req.OneAndHalf {
		req.Depth = 2
	}

	if req.Depth < 1 || req.Depth > r.maxDepth {
		return req, fmt.Errorf("%w: depth must be between 1 and %d, got %d", ErrValidation, r.maxDepth, req.Depth)
	}

	switch req.DependencyType {
	case "":
		req.DependencyType = DependencyBoth
	case DependencySource, DependencyBinary, DependencyBoth:
	default:
		return req, fmt.Errorf("%w: unknown dependency type %q", ErrValidation, req.DependencyType)
	}

	switch req.Direction {
	case "":
		req.Direction = DirectionRequirements
	case DirectionRequirements, DirectionDependents:
	default:
		return req, fmt.Errorf("%w: unknown direction %q", ErrValidation, req.Direction)
	}

	if len(req.FilterByPackage) > 0 && req.FilterBySource != "" {
		return req, fmt.Errorf("%w: filter by package and filter by source are mutually exclusive", ErrValidation)
	}

	branch, archs, err := r.normalizePlatform(req.Branch, req.Archs)
	if err != nil {
		return req, err
	}

	req.Branch = branch
	req.Archs = archs

	return req, nil
}

// normalizePlatform resolves the branch alias and builds the architecture set with noarch included.
func (r *Resolver) normalizePlatform(branch string, archs []string) (string, []string, error) {
	branch = strings.TrimSpace(branch)
	if branch == "" {
		return "", nil, fmt.Errorf("%w: branch is required", ErrValidation)
	}

	if r.platforms != nil {
		canonical, ok := r.platforms.ResolveBranch(branch)
		if !ok {
			return "", nil, fmt.Errorf("%w: unknown branch %q", ErrValidation, branch)
		}

		branch = canonical
	}

	archs = lo.Uniq(lo.Compact(archs))
	if len(archs) == 0 {
		archs = slices.Clone(r.defaultArchs)
	}

	for _, arch := range archs {
		if r.platforms != nil && !r.platforms.IsKnownArch(arch) {
			return "", nil, fmt.Errorf("%w: unknown architecture %q", ErrValidation, arch)
		}
	}

	if !slices.Contains(archs, archNoarch) {
		archs = append(archs, archNoarch)
	}

	return branch, archs, nil
}
