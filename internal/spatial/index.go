// Package spatial provides build-once point indexes answering
// nearest-neighbor queries.
package spatial

import (
	"math"
	"sort"

	"github.com/rotisserie/eris"
)

// Point is an indexed position keyed by a feature identifier.
type Point struct {
	ID int64
	X  float64
	Y  float64
}

// Index answers nearest-neighbor queries over a fixed point set. An Index
// never changes after construction and is safe for concurrent use.
type Index interface {
	// Len returns the number of indexed points.
	Len() int
	// Nearest returns up to k identifiers ordered by ascending distance to
	// (x, y). Equidistant points are ordered by their position in the
	// slice the index was built from.
	Nearest(x, y float64, k int) []int64
}

// Kind selects an Index implementation.
type Kind string

// Available index kinds.
const (
	KindRTree  Kind = "rtree"
	KindLinear Kind = "linear"
)

// ParseKind validates an index kind name. Empty selects the R-tree.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case "", KindRTree:
		return KindRTree, nil
	case KindLinear:
		return KindLinear, nil
	}
	return "", eris.Errorf("spatial: unknown index kind %q", s)
}

// Options configures Build.
type Options struct {
	Kind  Kind
	RTree RTreeOptions
}

// Build constructs an index of the requested kind. The points slice is copied.
func Build(points []Point, opts Options) (Index, error) {
	kind, err := ParseKind(string(opts.Kind))
	if err != nil {
		return nil, err
	}
	switch kind {
	case KindLinear:
		return NewLinear(points), nil
	default:
		return NewRTree(points, opts.RTree)
	}
}

// candidate is a point considered by a query, with its insertion position
// and squared distance to the query point.
type candidate struct {
	pos  int
	id   int64
	dist float64
}

// rank orders candidates by distance then insertion position and returns
// the first k identifiers.
func rank(cands []candidate, k int) []int64 {
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].dist != cands[j].dist {
			return cands[i].dist < cands[j].dist
		}
		return cands[i].pos < cands[j].pos
	})
	if k > len(cands) {
		k = len(cands)
	}
	ids := make([]int64, k)
	for i := 0; i < k; i++ {
		ids[i] = cands[i].id
	}
	return ids
}

func sqDist(x1, y1, x2, y2 float64) float64 {
	dx, dy := x1-x2, y1-y2
	return dx*dx + dy*dy
}

// Distance is the planar Euclidean distance between two positions.
func Distance(x1, y1, x2, y2 float64) float64 {
	return math.Hypot(x1-x2, y1-y2)
}
