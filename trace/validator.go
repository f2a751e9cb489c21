package trace

import "math"

// DefaultDedupTolerance is the distance under which consecutive loop points
// collapse into one vertex.
const DefaultDedupTolerance = 0.5

// DefaultCloseTolerance is the endpoint gap under which an unclosed
// candidate loop is auto-closed by appending its first point.
const DefaultCloseTolerance = 1.0

// DefaultAreaEpsilon is the minimum absolute polygon area for a loop to
// count as non-degenerate.
const DefaultAreaEpsilon = 1.0

// orientationEpsilon bounds the cross product magnitude treated as collinear
// in intersection tests.
const orientationEpsilon = 1e-9

// RejectionReason describes why a candidate loop was dropped during validation.
type RejectionReason string

const (
	// RejectTooFewPoints indicates fewer than 3 unique vertices remained
	// after deduplication.
	RejectTooFewPoints RejectionReason = "too_few_points"

	// RejectUnclosed indicates the loop's endpoints were too far apart to
	// auto-close.
	RejectUnclosed RejectionReason = "unclosed"

	// RejectDegenerateArea indicates the polygon area fell below the
	// configured epsilon.
	RejectDegenerateArea RejectionReason = "degenerate_area"

	// RejectSelfIntersecting indicates two non-adjacent edges cross.
	RejectSelfIntersecting RejectionReason = "self_intersecting"
)

// ValidatorConfig holds the tolerances applied to every candidate loop.
type ValidatorConfig struct {
	// DedupTolerance removes consecutive points closer than this. Default: 0.5.
	DedupTolerance float64

	// CloseTolerance is the maximum endpoint gap for auto-closing. Default: 1.0.
	CloseTolerance float64

	// AreaEpsilon is the minimum absolute area. Default: 1.0.
	AreaEpsilon float64
}

// DefaultValidatorConfig returns a ValidatorConfig with the package defaults.
func DefaultValidatorConfig() ValidatorConfig {
	return ValidatorConfig{
		DedupTolerance: DefaultDedupTolerance,
		CloseTolerance: DefaultCloseTolerance,
		AreaEpsilon:    DefaultAreaEpsilon,
	}
}

// ValidateLoop normalizes a candidate point sequence into a BoundaryLoop.
// It deduplicates consecutive points, enforces the minimum vertex count,
// auto-closes near-closed candidates, and rejects degenerate or
// self-intersecting polygons. On success the returned loop is exactly
// closed with metrics filled in; on rejection the loop is nil and the
// reason is non-empty.
func ValidateLoop(points []Point, config ValidatorConfig) (*BoundaryLoop, RejectionReason) {
	if config.DedupTolerance <= 0 {
		config.DedupTolerance = DefaultDedupTolerance
	}
	if config.CloseTolerance <= 0 {
		config.CloseTolerance = DefaultCloseTolerance
	}
	if config.AreaEpsilon <= 0 {
		config.AreaEpsilon = DefaultAreaEpsilon
	}

	pts := dedupConsecutive(points, config.DedupTolerance)
	if len(pts) < 2 {
		return nil, RejectTooFewPoints
	}

	// Unique vertex count; a closing duplicate (exact or within the dedup
	// tolerance) does not count.
	gap := Distance(pts[0], pts[len(pts)-1])
	unique := len(pts)
	if gap < config.DedupTolerance {
		unique--
	}
	if unique < 3 {
		return nil, RejectTooFewPoints
	}

	// Closure: snap a near-coincident endpoint onto the start, append the
	// start across a small gap, reject anything wider.
	switch {
	case gap == 0:
		// Already exactly closed.
	case gap < config.DedupTolerance:
		pts[len(pts)-1] = pts[0]
	case gap <= config.CloseTolerance:
		pts = append(pts, pts[0])
	default:
		return nil, RejectUnclosed
	}

	ring := pts[:len(pts)-1]

	area := SignedArea(ring)
	if math.Abs(area) < config.AreaEpsilon {
		return nil, RejectDegenerateArea
	}

	if ringSelfIntersects(ring) {
		return nil, RejectSelfIntersecting
	}

	return &BoundaryLoop{
		Points:    pts,
		Perimeter: PolylineLength(ring),
		Area:      math.Abs(area),
		BBox:      ComputeBBox(ring),
	}, ""
}

// dedupConsecutive removes points closer than tolerance to their predecessor
func dedupConsecutive(points []Point, tolerance float64) []Point {
	if len(points) == 0 {
		return nil
	}
	out := make([]Point, 0, len(points))
	out = append(out, points[0])
	for _, p := range points[1:] {
		if Distance(out[len(out)-1], p) >= tolerance {
			out = append(out, p)
		}
	}
	return out
}

// ringSelfIntersects tests every pair of non-adjacent ring edges for
// intersection. The closing edge is adjacent to both the first and last
// edge and is excluded from those pairings.
func ringSelfIntersects(ring []Point) bool {
	n := len(ring)
	for i := 0; i < n; i++ {
		for j := i + 2; j < n; j++ {
			// Skip the wrap-around adjacency between edge 0 and edge n-1.
			if i == 0 && j == n-1 {
				continue
			}
			if segmentsIntersect(
				ring[i], ring[(i+1)%n],
				ring[j], ring[(j+1)%n],
			) {
				return true
			}
		}
	}
	return false
}

// orientation returns 1 for counter-clockwise, -1 for clockwise, 0 for
// collinear ordering of the triple (a, b, c)
func orientation(a, b, c Point) int {
	cross := (b.X-a.X)*(c.Y-a.Y) - (b.Y-a.Y)*(c.X-a.X)
	if cross > orientationEpsilon {
		return 1
	}
	if cross < -orientationEpsilon {
		return -1
	}
	return 0
}

// onSegment reports whether collinear point p lies on segment ab
func onSegment(a, b, p Point) bool {
	return p.X >= math.Min(a.X, b.X) && p.X <= math.Max(a.X, b.X) &&
		p.Y >= math.Min(a.Y, b.Y) && p.Y <= math.Max(a.Y, b.Y)
}

// segmentsIntersect reports whether segments p1p2 and p3p4 intersect,
// including collinear overlap
func segmentsIntersect(p1, p2, p3, p4 Point) bool {
	o1 := orientation(p1, p2, p3)
	o2 := orientation(p1, p2, p4)
	o3 := orientation(p3, p4, p1)
	o4 := orientation(p3, p4, p2)

	if o1 != o2 && o3 != o4 {
		return true
	}

	// Collinear cases: an endpoint of one segment lying on the other.
	if o1 == 0 && onSegment(p1, p2, p3) {
		return true
	}
	if o2 == 0 && onSegment(p1, p2, p4) {
		return true
	}
	if o3 == 0 && onSegment(p3, p4, p1) {
		return true
	}
	if o4 == 0 && onSegment(p3, p4, p2) {
		return true
	}

	return false
}
