package depgraph

import "slices"

// Graph algorithms over dense node indices. adj[u] lists the nodes u requires.

// components computes the strongly connected components of the graph with Tarjan's algorithm.
// comp[u] is the index of u's component in groups; members of each group are sorted ascending.
func components(adj [][]int) (comp []int, groups [][]int) {
	n := len(adj)
	comp = make([]int, n)
	index := make([]int, n)
	low := make([]int, n)
	onStack := make([]bool, n)
	stack := make([]int, 0, n)
	next := 1

	var visit func(u int)
	visit = func(u int) {
		index[u] = next
		low[u] = next
		next++

		stack = append(stack, u)
		onStack[u] = true

		for _, v := range adj[u] {
			switch {
			case index[v] == 0:
				visit(v)
				low[u] = min(low[u], low[v])
			case onStack[v]:
				low[u] = min(low[u], index[v])
			}
		}

		if low[u] != index[u] {
			return
		}

		var group []int

		for {
			w := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			onStack[w] = false
			comp[w] = len(groups)
			group = append(group, w)

			if w == u {
				break
			}
		}

		slices.Sort(group)
		groups = append(groups, group)
	}

	for u := range adj {
		if index[u] == 0 {
			visit(u)
		}
	}

	return comp, groups
}

// requirementsFirst orders the nodes so that every node comes after the nodes it requires.
// Each component is emitted as one unit. Among the components whose requirements are already
// emitted, the one holding the lowest-ranked node goes first; rank is the discovery index.
func requirementsFirst(adj [][]int, comp []int, groups [][]int) []int {
	pending := make([]int, len(groups))      // distinct required components not yet emitted
	dependents := make([][]int, len(groups)) // components requiring this one
	seen := make(map[[2]int]struct{})

	for u, vs := range adj {
		for _, v := range vs {
			cu, cv := comp[u], comp[v]
			if cu == cv {
				continue
			}

			key := [2]int{cu, cv}
			if _, ok := seen[key]; ok {
				continue
			}

			seen[key] = struct{}{}
			pending[cu]++
			dependents[cv] = append(dependents[cv], cu)
		}
	}

	ready := make([]int, 0, len(groups))

	for c := range groups {
		if pending[c] == 0 {
			ready = append(ready, c)
		}
	}

	order := make([]int, 0, len(adj))

	for len(ready) > 0 {
		best := 0
		for i := 1; i < len(ready); i++ {
			if groups[ready[i]][0] < groups[ready[best]][0] {
				best = i
			}
		}

		c := ready[best]
		ready[best] = ready[len(ready)-1]
		ready = ready[:len(ready)-1]

		order = append(order, groups[c]...)

		for _, d := range dependents[c] {
			pending[d]--
			if pending[d] == 0 {
				ready = append(ready, d)
			}
		}
	}

	if len(order) != len(adj) {
		panic("depgraph: condensation is not acyclic")
	}

	return order
}

// reachable returns the set of nodes reachable from start, start included.
func reachable(adj [][]int, start int) []bool {
	seen := make([]bool, len(adj))
	seen[start] = true
	queue := []int{start}

	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]

		for _, v := range adj[u] {
			if !seen[v] {
				seen[v] = true
				queue = append(queue, v)
			}
		}
	}

	return seen
}
