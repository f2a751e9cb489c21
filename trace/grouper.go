package trace

import (
	"sort"
	"time"
)

const (
	// DefaultSnapTolerance is the distance within which distinct segment
	// endpoints are merged into one vertex.
	DefaultSnapTolerance = 0.5

	// DefaultConnectionTolerance is the endpoint distance under which two
	// segments count as connected after snapping.
	DefaultConnectionTolerance = 2.0

	// defaultBudgetStride is how many loop iterations pass between clock
	// checks when a grouping budget is active.
	defaultBudgetStride = 256
)

// Budget is a soft wall-clock limit threaded through grouping. It is checked
// cooperatively at segment granularity; there are no signals or goroutine
// interrupts. The zero value means unlimited.
type Budget struct {
	Deadline time.Time
	Stride   int
}

// NewBudget creates a budget expiring after limit. A non-positive limit
// returns the unlimited zero budget.
func NewBudget(limit time.Duration) Budget {
	if limit <= 0 {
		return Budget{}
	}
	return Budget{Deadline: time.Now().Add(limit), Stride: defaultBudgetStride}
}

// Unlimited reports whether the budget never expires
func (b Budget) Unlimited() bool {
	return b.Deadline.IsZero()
}

// ExceededAt reports whether the deadline has passed. The clock is only
// consulted every Stride iterations to keep the check cheap inside hot loops.
func (b Budget) ExceededAt(iteration int) bool {
	if b.Deadline.IsZero() {
		return false
	}
	if b.Stride > 1 && iteration%b.Stride != 0 {
		return false
	}
	return time.Now().After(b.Deadline)
}

// GroupResult is the output of GroupSegments: the snapped segment list and
// its partition into connected components.
type GroupResult struct {
	// Segments are copies of the input with endpoints replaced by their
	// snap-cluster centroids.
	Segments []Segment
	// Components holds segment indices per connected component. Members are
	// ascending and components are ordered by their smallest member, so the
	// partition is deterministic for identical input.
	Components [][]int
	// Degraded is true when the budget expired and the remaining segments
	// were emitted as singleton components.
	Degraded bool
}

// GroupSegments snaps near-duplicate endpoints, builds segment adjacency
// through a PointIndex, and partitions the segments into connected
// components with union-find.
//
// When the budget expires mid-grouping, every segment not yet processed
// keeps its raw endpoints and lands in its own singleton component. No
// segment is ever dropped from the partition.
func GroupSegments(segments []Segment, snapTolerance, connectionTolerance float64, budget Budget) GroupResult {
	if snapTolerance <= 0 {
		snapTolerance = DefaultSnapTolerance
	}
	if connectionTolerance <= 0 {
		connectionTolerance = DefaultConnectionTolerance
	}

	result := GroupResult{Segments: make([]Segment, len(segments))}
	copy(result.Segments, segments)
	if len(segments) == 0 {
		return result
	}

	cellSize := connectionTolerance * 2
	if cellSize < DefaultIndexCellSize {
		cellSize = DefaultIndexCellSize
	}

	snapped, snapOK := snapEndpoints(result.Segments, snapTolerance, cellSize, budget)
	for i := range result.Segments {
		result.Segments[i].Start = snapped[2*i]
		result.Segments[i].End = snapped[2*i+1]
	}
	if !snapOK {
		result.Degraded = true
	}

	uf := newUnionFind(len(segments))

	adjIdx := NewIndexFor(len(snapped), cellSize)
	for i, p := range snapped {
		adjIdx.Insert(i, p)
	}

	iterations := 0
	for i := range result.Segments {
		iterations++
		if result.Degraded || budget.ExceededAt(iterations) {
			// Segments from i onward stay as union-find singletons.
			result.Degraded = true
			break
		}

		for _, endpoint := range []Point{result.Segments[i].Start, result.Segments[i].End} {
			adjIdx.Near(endpoint, connectionTolerance, func(id int) bool {
				other := id / 2
				if other != i {
					uf.union(i, other)
				}
				return true
			})
		}
	}

	groups := make(map[int][]int)
	for i := range segments {
		root := uf.find(i)
		groups[root] = append(groups[root], i)
	}

	components := make([][]int, 0, len(groups))
	for _, members := range groups {
		components = append(components, members)
	}
	// Members are appended in ascending index order; ordering components by
	// their first member makes the whole partition reproducible.
	sort.Slice(components, func(i, j int) bool {
		return components[i][0] < components[j][0]
	})

	result.Components = components
	return result
}

// snapEndpoints clusters all segment endpoints within tolerance and returns
// one snapped position per endpoint (layout: endpoint 2i is segment i's
// start, 2i+1 its end). The second return is false when the budget expired
// before all endpoints were clustered; unclustered endpoints keep their raw
// positions.
func snapEndpoints(segments []Segment, tolerance, cellSize float64, budget Budget) ([]Point, bool) {
	endpoints := make([]Point, 0, len(segments)*2)
	for _, s := range segments {
		endpoints = append(endpoints, s.Start, s.End)
	}

	idx := NewIndexFor(len(endpoints), cellSize)
	for i, p := range endpoints {
		idx.Insert(i, p)
	}

	snapped := make([]Point, len(endpoints))
	copy(snapped, endpoints)
	claimed := make([]bool, len(endpoints))

	iterations := 0
	for i := range endpoints {
		if claimed[i] {
			continue
		}
		iterations++
		if budget.ExceededAt(iterations) {
			return snapped, false
		}

		var members []int
		idx.Near(endpoints[i], tolerance, func(id int) bool {
			if !claimed[id] {
				members = append(members, id)
			}
			return true
		})

		// Centroid of the cluster replaces every member position.
		var sumX, sumY float64
		for _, id := range members {
			sumX += endpoints[id].X
			sumY += endpoints[id].Y
		}
		n := float64(len(members))
		centroid := Point{X: sumX / n, Y: sumY / n}

		for _, id := range members {
			claimed[id] = true
			snapped[id] = centroid
		}
	}

	return snapped, true
}

// unionFind implements a disjoint-set data structure with path compression.
type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	p := make([]int, n)
	for i := range p {
		p[i] = i
	}
	return &unionFind{parent: p}
}

func (uf *unionFind) find(x int) int {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]]
		x = uf.parent[x]
	}
	return x
}

func (uf *unionFind) union(a, b int) {
	ra, rb := uf.find(a), uf.find(b)
	if ra != rb {
		uf.parent[ra] = rb
	}
}
