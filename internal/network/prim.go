package network

import (
	"math"
)

// SpanningTree is the set of n-1 edges connecting every point of a graph without cycles.
// Edges are listed in the order Prim's algorithm added them; From is the tree-side endpoint.
type SpanningTree struct {
	Edges       []Edge
	TotalWeight float64
	Root        int
	order       int
}

// Order returns the number of points the tree spans
func (t *SpanningTree) Order() int {
	return t.order
}

// frontier is the cheapest known connection from the tree to a point outside it
type frontier struct {
	edge  Edge
	valid bool
}

// Prim computes the minimum spanning tree of g by growing outwards from root.
//
// The frontier is a dense array holding, for each point outside the tree, the
// cheapest edge connecting it to the tree. At each of the n-1 steps the smallest
// frontier edge is selected. Edges compare by weight, then by their (low, high)
// index pair, so the selected tree is the same for any root and any run.
//
// Complexity: O(n²) time, O(n) extra memory.
func Prim(g *Graph, root int) (*SpanningTree, error) {
	n := g.Order()
	if n < 2 {
		return nil, &InsufficientPointsError{Count: n}
	}
	if root < 0 || root >= n {
		return nil, ErrInvalidRoot
	}

	inTree := make([]bool, n)
	best := make([]frontier, n)
	tree := &SpanningTree{
		Edges: make([]Edge, 0, n-1),
		Root:  root,
		order: n,
	}

	// Seed the frontier with every edge leaving the root.
	inTree[root] = true
	relax(g, root, inTree, best)

	for len(tree.Edges) < n-1 {
		next := -1
		for v := 0; v < n; v++ {
			if inTree[v] || !best[v].valid {
				continue
			}
			if next == -1 || best[v].edge.less(best[next].edge) {
				next = v
			}
		}
		if next == -1 {
			// A complete graph always has a crossing edge.
			return nil, &InvariantError{Invariant: "frontier exhausted before all points joined"}
		}

		e := best[next].edge
		inTree[next] = true
		tree.Edges = append(tree.Edges, e)
		tree.TotalWeight += e.Weight

		relax(g, next, inTree, best)
	}

	return tree, nil
}

// relax offers every edge from u to a point outside the tree to the frontier
func relax(g *Graph, u int, inTree []bool, best []frontier) {
	for v := range best {
		if inTree[v] {
			continue
		}
		candidate := Edge{From: u, To: v, Weight: g.Weight(u, v)}
		if !best[v].valid || candidate.less(best[v].edge) {
			best[v] = frontier{edge: candidate, valid: true}
		}
	}
}

// Validate checks that the tree has exactly n-1 edges, non-negative finite
// weights, and connects all n points without a cycle.
func (t *SpanningTree) Validate() error {
	n := t.order
	if len(t.Edges) != n-1 {
		return &InvariantError{Invariant: "edge count differs from point count minus one"}
	}

	// Union-find with path halving; a merge that finds both ends already joined is a cycle.
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	find := func(u int) int {
		for parent[u] != u {
			parent[u] = parent[parent[u]]
			u = parent[u]
		}
		return u
	}

	var total float64
	for _, e := range t.Edges {
		if e.From < 0 || e.From >= n || e.To < 0 || e.To >= n || e.From == e.To {
			return &InvariantError{Invariant: "edge endpoint out of range"}
		}
		if e.Weight < 0 || math.IsNaN(e.Weight) || math.IsInf(e.Weight, 0) {
			return &InvariantError{Invariant: "edge weight is not a finite non-negative number"}
		}
		ru, rv := find(e.From), find(e.To)
		if ru == rv {
			return &InvariantError{Invariant: "cycle detected"}
		}
		parent[ru] = rv
		total += e.Weight
	}

	// n-1 successful merges leave a single component.
	if math.Abs(total-t.TotalWeight) > 1e-6*math.Max(1, total) {
		return &InvariantError{Invariant: "total weight does not match edge sum"}
	}

	return nil
}
