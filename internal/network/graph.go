// Package network builds the complete candidate graph over a set of service
// locations and selects the minimum spanning tree that connects them.
package network

import (
	"github.com/stuartshay/gridplan/internal/calculator"
)

// Point is a service location. Names may repeat and carry no meaning for the solver.
type Point struct {
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
}

// Location returns the point as a calculator location
func (p Point) Location() calculator.Location {
	return calculator.Location{Latitude: p.Lat, Longitude: p.Lng}
}

// Edge is an unordered pair of point indices weighted by geodesic distance in meters.
// From and To are indices into the point sequence the edge was built from.
type Edge struct {
	From   int
	To     int
	Weight float64
}

// less orders edges by weight, then by their (low, high) index pair.
// Every pair of distinct edges is strictly ordered.
func (e Edge) less(o Edge) bool {
	if e.Weight != o.Weight {
		return e.Weight < o.Weight
	}
	el, eh := e.pair()
	ol, oh := o.pair()
	if el != ol {
		return el < ol
	}
	return eh < oh
}

func (e Edge) pair() (int, int) {
	if e.From < e.To {
		return e.From, e.To
	}
	return e.To, e.From
}

// Graph is the complete undirected graph over a point sequence.
// Weights are stored as a dense upper-triangular matrix.
type Graph struct {
	points  []Point
	weights []float64
}

// BuildCandidateGraph constructs the complete graph of n·(n-1)/2 edges over points,
// each weighted by the Haversine distance between its endpoints.
func BuildCandidateGraph(points []Point) (*Graph, error) {
	n := len(points)
	if n < 2 {
		return nil, &InsufficientPointsError{Count: n}
	}

	g := &Graph{
		points:  make([]Point, n),
		weights: make([]float64, n*(n-1)/2),
	}
	copy(g.points, points)

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			g.weights[g.offset(i, j)] = calculator.Haversine(
				points[i].Lat, points[i].Lng,
				points[j].Lat, points[j].Lng,
			)
		}
	}

	return g, nil
}

// offset maps i < j to the position of (i, j) in the upper-triangular weight slice
func (g *Graph) offset(i, j int) int {
	n := len(g.points)
	return i*(2*n-i-1)/2 + (j - i - 1)
}

// Order returns the number of points in the graph
func (g *Graph) Order() int {
	return len(g.points)
}

// Size returns the number of edges in the graph
func (g *Graph) Size() int {
	return len(g.weights)
}

// Point returns the point at index i
func (g *Graph) Point(i int) Point {
	return g.points[i]
}

// Weight returns the distance in meters between points i and j
func (g *Graph) Weight(i, j int) float64 {
	if i == j {
		return 0
	}
	if i > j {
		i, j = j, i
	}
	return g.weights[g.offset(i, j)]
}

// Edges enumerates every edge with From < To, in row-major order
func (g *Graph) Edges() []Edge {
	n := len(g.points)
	edges := make([]Edge, 0, len(g.weights))
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			edges = append(edges, Edge{From: i, To: j, Weight: g.weights[g.offset(i, j)]})
		}
	}
	return edges
}
