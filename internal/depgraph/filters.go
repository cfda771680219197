package depgraph

import (
	"fmt"
	"slices"
)

// Post-filters narrow the resolved set. Each one clears entries of keep and never sets them.
// A dependency cycle is kept or dropped as a whole by the leaf and finite filters.

// filterLeaf keeps the leaf package and everything reachable through its requirements.
func filterLeaf(g *workGraph, comp []int, keep []bool, leaf string) error {
	start := slices.IndexFunc(g.nodes, func(n *node) bool { return n.pkg.Name == leaf })
	if start < 0 {
		return fmt.Errorf("%w: package %q is not in the dependency list", ErrNotFound, leaf)
	}

	seen := reachable(g.adjacency(), start)

	inGroup := make(map[int]bool)
	for i, ok := range seen {
		if ok {
			inGroup[comp[i]] = true
		}
	}

	for i := range keep {
		keep[i] = keep[i] && inGroup[comp[i]]
	}

	return nil
}

// filterACL keeps packages whose ACL lists member.
func filterACL(g *workGraph, keep []bool, member string) {
	for i, n := range g.nodes {
		keep[i] = keep[i] && slices.Contains(n.acl, member)
	}
}

// filterFinite drops every group that some discovered package outside the group requires,
// leaving only top-level build targets.
func filterFinite(g *workGraph, comp []int, keep []bool) {
	required := make(map[int]bool)

	for u, n := range g.nodes {
		for _, v := range n.requires {
			if comp[u] != comp[v] {
				required[comp[v]] = true
			}
		}
	}

	for i := range keep {
		keep[i] = keep[i] && !required[comp[i]]
	}
}

// filterByBinaries keeps packages requiring something provided by every one of the named binaries.
// An empty list keeps nothing.
func filterByBinaries(g *workGraph, keep []bool, binaries []string) {
	for i, n := range g.nodes {
		if len(binaries) == 0 {
			keep[i] = false
		}

		if !keep[i] {
			continue
		}

		for _, name := range binaries {
			if _, ok := n.providers[name]; !ok {
				keep[i] = false

				break
			}
		}
	}
}

// keepOneAndHalf keeps every level-1 package and those level-2 packages some level-1 package requires.
func keepOneAndHalf(g *workGraph) []bool {
	keep := make([]bool, len(g.nodes))

	for i, n := range g.nodes {
		if n.depth == 1 {
			keep[i] = true

			for _, v := range n.requires {
				if g.nodes[v].depth == 2 {
					keep[v] = true
				}
			}
		}
	}

	return keep
}
