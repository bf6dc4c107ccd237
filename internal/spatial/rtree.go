package spatial

import (
	"math"

	"github.com/dhconnelly/rtreego"
	"github.com/rotisserie/eris"
)

// Default R-tree node fan-out.
const (
	DefaultMinChildren = 25
	DefaultMaxChildren = 50
)

// RTreeOptions configures node fan-out of the R-tree.
type RTreeOptions struct {
	MinChildren int
	MaxChildren int
}

// entry wraps an indexed point to satisfy the rtreego.Spatial interface.
type entry struct {
	pos  int
	pt   Point
	rect rtreego.Rect
}

// Bounds returns the degenerate rectangle covering the point.
func (e *entry) Bounds() rtreego.Rect {
	return e.rect
}

// RTree is an Index backed by a bulk-loaded rtreego tree.
//
// The library's own nearest-neighbor search yields k candidates whose
// farthest distance bounds the answer; a window search of that radius then
// collects every point at least as close, so ties are settled by insertion
// position rather than by tree layout.
type RTree struct {
	tree *rtreego.Rtree
	size int
}

// NewRTree bulk-loads an R-tree over points.
func NewRTree(points []Point, opts RTreeOptions) (*RTree, error) {
	if opts.MinChildren == 0 {
		opts.MinChildren = DefaultMinChildren
	}
	if opts.MaxChildren == 0 {
		opts.MaxChildren = DefaultMaxChildren
	}
	if opts.MinChildren < 1 || opts.MaxChildren < 2*opts.MinChildren {
		return nil, eris.Errorf("spatial: invalid rtree fan-out min=%d max=%d", opts.MinChildren, opts.MaxChildren)
	}

	objs := make([]rtreego.Spatial, len(points))
	for i, p := range points {
		objs[i] = &entry{pos: i, pt: p, rect: rtreego.Point{p.X, p.Y}.ToRect(0)}
	}

	return &RTree{
		tree: rtreego.NewTree(2, opts.MinChildren, opts.MaxChildren, objs...),
		size: len(points),
	}, nil
}

// Len returns the number of indexed points.
func (r *RTree) Len() int {
	return r.size
}

// Nearest implements Index.
func (r *RTree) Nearest(x, y float64, k int) []int64 {
	if k <= 0 || r.size == 0 {
		return nil
	}
	if k > r.size {
		k = r.size
	}

	q := rtreego.Point{x, y}
	var bound float64
	found := 0
	for _, s := range r.tree.NearestNeighbors(k, q) {
		e, ok := s.(*entry)
		if !ok {
			continue
		}
		found++
		if d := sqDist(x, y, e.pt.X, e.pt.Y); d > bound {
			bound = d
		}
	}
	if found == 0 {
		return nil
	}

	radius := math.Sqrt(bound)
	radius += 1e-9 * math.Max(1, math.Max(radius, math.Max(math.Abs(x), math.Abs(y))))

	hits := r.tree.SearchIntersect(q.ToRect(radius))
	cands := make([]candidate, 0, len(hits))
	for _, s := range hits {
		e, ok := s.(*entry)
		if !ok {
			continue
		}
		cands = append(cands, candidate{pos: e.pos, id: e.pt.ID, dist: sqDist(x, y, e.pt.X, e.pt.Y)})
	}
	return rank(cands, k)
}
