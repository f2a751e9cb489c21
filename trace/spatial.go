package trace

import "math"

// DefaultIndexCellSize is the grid cell size used when callers do not pick
// one. Four times the default snap tolerance keeps neighborhood queries at
// the 3x3 cell block for every tolerance the pipeline uses.
const DefaultIndexCellSize = 2.0

// gridThreshold is the point count above which NewIndexFor switches from the
// brute-force index to the grid. Below it the linear scan wins on constant
// factors and allocation.
const gridThreshold = 64

// PointIndex answers near-neighbor queries over 2D points. The grouper and
// tracer depend only on this contract; the backing structure is swappable.
// Implementations are built once and then queried; they do not need to
// support interleaved inserts and queries.
type PointIndex interface {
	// Insert adds a point under the caller's id. Ids need not be unique.
	Insert(id int, p Point)
	// Near visits the id of every stored point within tolerance of p, in a
	// deterministic order. Returning false from visit stops the search.
	Near(p Point, tolerance float64, visit func(id int) bool)
	// Len returns the number of stored points.
	Len() int
}

// NewIndexFor picks an index implementation for the expected point count
func NewIndexFor(pointCount int, cellSize float64) PointIndex {
	if pointCount <= gridThreshold {
		return NewLinearIndex()
	}
	return NewGridIndex(cellSize)
}

type cellKey struct {
	X, Y int
}

type gridEntry struct {
	id int
	p  Point
}

// GridIndex is a uniform grid over 2D points keyed by floor(coord/cellSize).
// Queries inspect the tolerance-scaled block of neighboring cells, so lookup
// cost is bounded by local point density rather than total point count.
type GridIndex struct {
	cellSize float64
	cells    map[cellKey][]gridEntry
	count    int
}

// NewGridIndex creates a grid index with the given cell size.
// Non-positive sizes fall back to DefaultIndexCellSize.
func NewGridIndex(cellSize float64) *GridIndex {
	if cellSize <= 0 {
		cellSize = DefaultIndexCellSize
	}
	return &GridIndex{
		cellSize: cellSize,
		cells:    make(map[cellKey][]gridEntry),
	}
}

func (g *GridIndex) keyFor(p Point) cellKey {
	return cellKey{
		X: int(math.Floor(p.X / g.cellSize)),
		Y: int(math.Floor(p.Y / g.cellSize)),
	}
}

// Insert adds a point to the grid
func (g *GridIndex) Insert(id int, p Point) {
	key := g.keyFor(p)
	g.cells[key] = append(g.cells[key], gridEntry{id: id, p: p})
	g.count++
}

// Near visits all points within tolerance of p. Cells are scanned in row
// then column order and entries in insertion order, so identical inserts
// always produce identical visit sequences.
func (g *GridIndex) Near(p Point, tolerance float64, visit func(id int) bool) {
	if tolerance < 0 {
		return
	}
	center := g.keyFor(p)
	reach := int(math.Ceil(tolerance / g.cellSize))
	if reach < 1 {
		reach = 1
	}

	for dy := -reach; dy <= reach; dy++ {
		for dx := -reach; dx <= reach; dx++ {
			key := cellKey{X: center.X + dx, Y: center.Y + dy}
			for _, e := range g.cells[key] {
				if Distance(e.p, p) <= tolerance {
					if !visit(e.id) {
						return
					}
				}
			}
		}
	}
}

// Len returns the number of stored points
func (g *GridIndex) Len() int {
	return g.count
}

// LinearIndex is the brute-force PointIndex: a flat slice scanned in full on
// every query. It is the reference implementation for small inputs and for
// cross-checking the grid in tests.
type LinearIndex struct {
	entries []gridEntry
}

// NewLinearIndex creates an empty brute-force index
func NewLinearIndex() *LinearIndex {
	return &LinearIndex{}
}

// Insert adds a point
func (l *LinearIndex) Insert(id int, p Point) {
	l.entries = append(l.entries, gridEntry{id: id, p: p})
}

// Near visits all points within tolerance of p in insertion order
func (l *LinearIndex) Near(p Point, tolerance float64, visit func(id int) bool) {
	if tolerance < 0 {
		return
	}
	for _, e := range l.entries {
		if Distance(e.p, p) <= tolerance {
			if !visit(e.id) {
				return
			}
		}
	}
}

// Len returns the number of stored points
func (l *LinearIndex) Len() int {
	return len(l.entries)
}
