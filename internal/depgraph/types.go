package depgraph

import (
	"time"

	"github.com/depgraph-io/depgraph/internal/facts"
)

type (
	// Record is one source package of a resolved build dependency list.
	Record struct {
		Name      string
		Version   string
		Release   string
		Epoch     int64
		Serial    int64
		SourceRPM string
		Branch    string
		Archs     []string
		BuildTime time.Time
		Cycle     []string // other members of the package's dependency cycle
		Requires  []string // capabilities through which the package was discovered
		DependsOn []string // packages of the result it requires
		ACL       []string
		Depth     int
	}

	// Result is the ordered outcome of a resolution. Records are ordered requirements first.
	Result struct {
		Request Request
		Records []Record
		Stats   Stats
	}

	// Stats summarizes the work done by one resolution.
	Stats struct {
		Rounds     int // expansion rounds actually run
		Discovered int // packages discovered before post-filters
		Cycles     int // dependency cycles among discovered packages
	}
)

// node is the working state of one discovered source package.
type node struct {
	pkg       facts.Package
	depth     int
	via       []string
	archs     []string
	requires  []int
	providers map[string]struct{} // names of binaries providing this package's build requirements
	acl       []string
}

// workGraph is the arena of discovered packages. A node's index is its discovery order and
// its depth is set once, when it is added.
type workGraph struct {
	nodes []*node
	index map[uint64]int
}

func newWorkGraph() *workGraph {
	return &workGraph{index: make(map[uint64]int)}
}

func (g *workGraph) add(pkg facts.Package, depth int, via []string) {
	if _, ok := g.index[pkg.Hash]; ok {
		panic("depgraph: package " + pkg.Name + " assigned to more than one level")
	}

	g.index[pkg.Hash] = len(g.nodes)
	g.nodes = append(g.nodes, &node{
		pkg:       pkg,
		depth:     depth,
		via:       via,
		providers: make(map[string]struct{}),
	})
}

func (g *workGraph) has(hash uint64) bool {
	_, ok := g.index[hash]

	return ok
}

func (g *workGraph) packages() []facts.Package {
	pkgs := make([]facts.Package, len(g.nodes))
	for i, n := range g.nodes {
		pkgs[i] = n.pkg
	}

	return pkgs
}

func (g *workGraph) adjacency() [][]int {
	adj := make([][]int, len(g.nodes))
	for i, n := range g.nodes {
		adj[i] = n.requires
	}

	return adj
}

// retain keeps the nodes for which keep is true, preserving discovery order and remapping edges.
func (g *workGraph) retain(keep []bool) *workGraph {
	out := newWorkGraph()
	remap := make([]int, len(g.nodes))

	for i, n := range g.nodes {
		remap[i] = -1

		if keep[i] {
			remap[i] = len(out.nodes)
			out.index[n.pkg.Hash] = len(out.nodes)
			out.nodes = append(out.nodes, n)
		}
	}

	for _, n := range out.nodes {
		requires := make([]int, 0, len(n.requires))

		for _, v := range n.requires {
			if remap[v] >= 0 {
				requires = append(requires, remap[v])
			}
		}

		n.requires = requires
	}

	return out
}
