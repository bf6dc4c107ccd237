package spatial

// Linear is a brute-force Index. It scans every point per query and is meant
// for small reference sets and for checking other implementations.
type Linear struct {
	points []Point
}

// NewLinear returns a Linear index over a copy of points.
func NewLinear(points []Point) *Linear {
	cp := make([]Point, len(points))
	copy(cp, points)
	return &Linear{points: cp}
}

// Len returns the number of indexed points.
func (l *Linear) Len() int {
	return len(l.points)
}

// Nearest implements Index.
func (l *Linear) Nearest(x, y float64, k int) []int64 {
	if k <= 0 || len(l.points) == 0 {
		return nil
	}
	cands := make([]candidate, len(l.points))
	for i, p := range l.points {
		cands[i] = candidate{pos: i, id: p.ID, dist: sqDist(x, y, p.X, p.Y)}
	}
	return rank(cands, k)
}
