package trace

import (
	"math"
	"sort"
)

// DefaultTraceCloseTolerance is the start-proximity distance at which a walk
// closes into a loop. Three times the snap tolerance.
const DefaultTraceCloseTolerance = 3 * DefaultSnapTolerance

// traceIterationFactor caps a single walk at this multiple of the component's
// segment count.
const traceIterationFactor = 2

// minLoopPoints is the closed path length a walk must exceed before a
// return to the start counts as closure.
const minLoopPoints = 3

// TracerConfig controls how component loops are walked.
type TracerConfig struct {
	// CloseTolerance is the distance to the start vertex that closes a
	// walk. Default: 1.5.
	CloseTolerance float64

	// Anchor is the point walks start nearest to. The zero value anchors
	// walks at the drawing origin; passing the sheet center favors inner
	// boundaries.
	Anchor Point
}

// DefaultTracerConfig returns a TracerConfig with the package defaults.
func DefaultTracerConfig() TracerConfig {
	return TracerConfig{CloseTolerance: DefaultTraceCloseTolerance}
}

// graphEdge is one directed half of an undirected segment edge. slot indexes
// the shared used-set; slot^1 is the opposite direction.
type graphEdge struct {
	to   int
	slot int
}

// traceGraph is the vertex/edge view of one connected component. Vertices
// are snapped endpoints, so shared corners compare equal.
type traceGraph struct {
	verts []Point
	adj   [][]graphEdge
	index map[Point]int
	edges int
}

func buildTraceGraph(segments []Segment, component []int) *traceGraph {
	g := &traceGraph{index: make(map[Point]int)}
	for _, si := range component {
		seg := segments[si]
		u := g.vertex(seg.Start)
		v := g.vertex(seg.End)
		if u == v {
			// Zero-length after snapping.
			continue
		}
		slot := 2 * g.edges
		g.adj[u] = append(g.adj[u], graphEdge{to: v, slot: slot})
		g.adj[v] = append(g.adj[v], graphEdge{to: u, slot: slot + 1})
		g.edges++
	}
	for v := range g.adj {
		list := g.adj[v]
		sort.Slice(list, func(i, j int) bool {
			if list[i].to != list[j].to {
				return list[i].to < list[j].to
			}
			return list[i].slot < list[j].slot
		})
	}
	return g
}

func (g *traceGraph) vertex(p Point) int {
	if id, ok := g.index[p]; ok {
		return id
	}
	id := len(g.verts)
	g.index[p] = id
	g.verts = append(g.verts, p)
	g.adj = append(g.adj, nil)
	return id
}

// TraceComponentLoops extracts zero or more closed point loops from one
// connected component of segments. A component that is a single open chain
// closes directly across its endpoint gap; anything else has its dangling
// spurs pruned (sparing chain ends within the close tolerance of other
// geometry, which can still seed a jump-closed walk) and is walked with the
// max-cosine continuation rule until a walk returns to its start or hits
// the iteration cap. Candidates are raw point sequences and still need
// validation.
func TraceComponentLoops(segments []Segment, component []int, config TracerConfig) [][]Point {
	if config.CloseTolerance <= 0 {
		config.CloseTolerance = DefaultTraceCloseTolerance
	}
	g := buildTraceGraph(segments, component)
	if g.edges == 0 {
		return nil
	}

	if path, ok := g.singleChain(config.Anchor); ok {
		if len(path) >= minLoopPoints && Distance(path[len(path)-1], path[0]) <= config.CloseTolerance {
			return [][]Point{append(path, path[0])}
		}
		return nil
	}

	maxIter := traceIterationFactor * len(component)
	used := make([]bool, 2*g.edges)
	g.pruneDeadEnds(used, config.CloseTolerance)
	var loops [][]Point
	for {
		start := g.nextStart(used, config.Anchor)
		if start < 0 {
			break
		}
		if path, ok := g.walk(start, used, maxIter, config.CloseTolerance); ok {
			loops = append(loops, path)
		}
	}
	return loops
}

// singleChain reports whether the whole component is one open chain, and if
// so returns its vertices walked from the endpoint nearest the anchor.
func (g *traceGraph) singleChain(anchor Point) ([]Point, bool) {
	ends := make([]int, 0, 2)
	for v := range g.adj {
		switch len(g.adj[v]) {
		case 1:
			ends = append(ends, v)
			if len(ends) > 2 {
				return nil, false
			}
		case 2:
			// Interior chain vertex.
		default:
			return nil, false
		}
	}
	if len(ends) != 2 {
		return nil, false
	}

	start := ends[0]
	if sqDist(g.verts[ends[1]], anchor) < sqDist(g.verts[start], anchor) {
		start = ends[1]
	}

	path := []Point{g.verts[start]}
	prev, current := -1, start
	for {
		next := -1
		for _, e := range g.adj[current] {
			if e.to != prev {
				next = e.to
				break
			}
		}
		if next < 0 {
			break
		}
		prev, current = current, next
		path = append(path, g.verts[current])
	}

	// A chain walk that misses vertices means the component carries a
	// detached sub-cycle alongside the chain; hand it to the general walk.
	if len(path) != len(g.verts) {
		return nil, false
	}
	return path, true
}

// pruneDeadEnds retires the edges of dangling spurs before any walk. A
// degree-1 vertex far from everything else cannot lie on a closed result,
// and a walk that wanders onto its spur dead-ends and doubles back through
// vertices it has already emitted. Removing a spur's edge may expose the
// next vertex up the chain, so removal cascades. Chain ends within closeTol
// of other geometry are never retired: a walk starting there can return and
// jump-close, so eating the chain would destroy a recoverable loop.
func (g *traceGraph) pruneDeadEnds(used []bool, closeTol float64) {
	degree := make([]int, len(g.verts))
	queue := make([]int, 0)
	for v := range g.adj {
		degree[v] = len(g.adj[v])
		if degree[v] == 1 {
			queue = append(queue, v)
		}
	}
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		if degree[v] != 1 {
			continue
		}
		for _, e := range g.adj[v] {
			if used[e.slot] {
				continue
			}
			if g.closureCandidate(v, e.to, closeTol) {
				break
			}
			used[e.slot] = true
			used[e.slot^1] = true
			degree[v]--
			degree[e.to]--
			if degree[e.to] == 1 {
				queue = append(queue, e.to)
			}
		}
	}
}

// closureCandidate reports whether chain end v lies within tol of some
// vertex other than its own surviving neighbor. Protection is mutual: two
// nearby chain ends shield each other, so a shielding vertex is never itself
// pruned away afterwards.
func (g *traceGraph) closureCandidate(v, neighbor int, tol float64) bool {
	p := g.verts[v]
	limit := tol * tol
	for w, q := range g.verts {
		if w == v || w == neighbor {
			continue
		}
		if sqDist(p, q) <= limit {
			return true
		}
	}
	return false
}

// nextStart returns the vertex nearest the anchor that still has an unused
// outgoing edge, or -1 when the component is exhausted.
func (g *traceGraph) nextStart(used []bool, anchor Point) int {
	best, bestCost := -1, 0.0
	for v := range g.verts {
		available := false
		for _, e := range g.adj[v] {
			if !used[e.slot] {
				available = true
				break
			}
		}
		if !available {
			continue
		}
		cost := sqDist(g.verts[v], anchor)
		if best < 0 || cost < bestCost {
			best, bestCost = v, cost
		}
	}
	return best
}

// walk follows unused directed edges from start, at each vertex taking the
// edge that most closely continues the previous heading. On closure every
// traversed edge is retired in both directions so later walks cannot emit
// the same loop reversed; a failed walk retires only its own directions.
func (g *traceGraph) walk(start int, used []bool, maxIter int, closeTol float64) ([]Point, bool) {
	startPt := g.verts[start]
	path := []Point{startPt}
	taken := make([]int, 0, maxIter)
	current := start
	heading := Point{X: 1}

	for iter := 0; iter < maxIter; iter++ {
		bestNext, bestSlot := -1, -1
		bestCos := 0.0
		for _, e := range g.adj[current] {
			if used[e.slot] {
				continue
			}
			dir, ok := unitDirection(g.verts[current], g.verts[e.to])
			if !ok {
				continue
			}
			cos := heading.X*dir.X + heading.Y*dir.Y
			if bestNext < 0 || cos > bestCos {
				bestNext, bestSlot, bestCos = e.to, e.slot, cos
			}
		}
		if bestNext < 0 {
			return path, false
		}

		used[bestSlot] = true
		taken = append(taken, bestSlot)
		heading, _ = unitDirection(g.verts[current], g.verts[bestNext])
		current = bestNext
		path = append(path, g.verts[current])

		if len(path) > minLoopPoints && Distance(g.verts[current], startPt) <= closeTol {
			for _, slot := range taken {
				used[slot] = true
				used[slot^1] = true
			}
			if g.verts[current] != startPt {
				path = append(path, startPt)
			}
			return path, true
		}
	}
	return path, false
}

func unitDirection(from, to Point) (Point, bool) {
	dx := to.X - from.X
	dy := to.Y - from.Y
	length := math.Hypot(dx, dy)
	if length == 0 {
		return Point{}, false
	}
	return Point{X: dx / length, Y: dy / length}, true
}

func sqDist(a, b Point) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	return dx*dx + dy*dy
}
