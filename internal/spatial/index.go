// Package spatial provides an R-Tree index over service locations for
// proximity queries, such as finding points that sit on top of each other.
package spatial

import (
	"fmt"
	"math"
	"sort"

	"github.com/dhconnelly/rtreego"

	"github.com/stuartshay/gridplan/internal/calculator"
)

const (
	tolerance   = 1e-9
	minChildren = 25
	maxChildren = 50
	dimensions  = 2
)

// spatialItem wraps an indexed location for R-Tree storage
type spatialItem struct {
	index int
	loc   calculator.Location
	rect  *rtreego.Rect
}

func (si *spatialItem) Bounds() *rtreego.Rect {
	return si.rect
}

// Index is a read-only R-Tree over a fixed sequence of locations.
// It is safe for concurrent queries once built.
type Index struct {
	tree  *rtreego.Rtree
	items []*spatialItem
}

// NewIndex builds an index over locations. Query results refer to positions in this slice.
func NewIndex(locations []calculator.Location) *Index {
	idx := &Index{
		tree:  rtreego.NewTree(dimensions, minChildren, maxChildren),
		items: make([]*spatialItem, len(locations)),
	}

	for i, loc := range locations {
		p := rtreego.Point{loc.Latitude, loc.Longitude}
		item := &spatialItem{index: i, loc: loc, rect: p.ToRect(tolerance)}
		idx.items[i] = item
		idx.tree.Insert(item)
	}

	return idx
}

// Size returns the number of indexed locations
func (x *Index) Size() int {
	return x.tree.Size()
}

// Within returns the positions of all other locations within radius meters of
// location i, in ascending order.
func (x *Index) Within(i int, radiusMeters float64) ([]int, error) {
	if i < 0 || i >= len(x.items) {
		return nil, fmt.Errorf("location %d out of range", i)
	}
	center := x.items[i].loc

	// Longitude degrees shrink towards the poles, so widen that side of the window.
	latDeg := calculator.MetersToDegrees(radiusMeters) + tolerance
	lngDeg := 180.0
	if c := math.Cos(center.Latitude * math.Pi / 180); c > 1e-6 {
		lngDeg = math.Min(latDeg/c, 180)
	}

	// Windows crossing the antimeridian are repeated on the other side.
	shifts := []float64{0}
	if center.Longitude-lngDeg < -180 {
		shifts = append(shifts, 360)
	}
	if center.Longitude+lngDeg > 180 {
		shifts = append(shifts, -360)
	}

	seen := make(map[int]bool)
	var out []int
	for _, shift := range shifts {
		bounds, err := rtreego.NewRect(
			rtreego.Point{center.Latitude - latDeg, center.Longitude + shift - lngDeg},
			[]float64{2 * latDeg, 2 * lngDeg},
		)
		if err != nil {
			return nil, fmt.Errorf("invalid search window: %w", err)
		}

		for _, result := range x.tree.SearchIntersect(bounds) {
			item, ok := result.(*spatialItem)
			if !ok || item.index == i || seen[item.index] {
				continue
			}
			seen[item.index] = true
			if calculator.Distance(center, item.loc) <= radiusMeters {
				out = append(out, item.index)
			}
		}
	}
	sort.Ints(out)

	return out, nil
}

// CoincidentPairs returns every pair (i, j), i < j, of locations no more than
// radius meters apart, sorted by i then j.
func (x *Index) CoincidentPairs(radiusMeters float64) ([][2]int, error) {
	var pairs [][2]int
	for i := range x.items {
		near, err := x.Within(i, radiusMeters)
		if err != nil {
			return nil, err
		}
		for _, j := range near {
			if j > i {
				pairs = append(pairs, [2]int{i, j})
			}
		}
	}
	return pairs, nil
}
