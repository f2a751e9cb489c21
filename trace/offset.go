package trace

// DefaultOffsetDistance is the inward displacement used when no wall
// thickness has been measured. Roughly a typical exterior wall in page
// units.
const DefaultOffsetDistance = 5.0

// miterDenomFloor caps the miter length at sharp reversals.
const miterDenomFloor = 0.1

// OffsetInward synthesizes an inner loop by displacing every vertex of the
// source loop toward its interior. Each vertex moves along the miter of its
// two adjacent inward edge normals so that every edge shifts inward by the
// full distance regardless of corner angle. The result keeps the source's
// point count and winding, passes through validation, and carries the
// Synthesized flag. Displacements the loop cannot absorb collapse it and
// are rejected; on any rejection the loop is nil and the reason is
// non-empty.
func OffsetInward(loop *BoundaryLoop, distance float64, config ValidatorConfig) (*BoundaryLoop, RejectionReason) {
	if distance <= 0 {
		distance = DefaultOffsetDistance
	}

	ring := loop.Points
	if loop.Closed() {
		ring = ring[:len(ring)-1]
	}
	n := len(ring)
	if n < 3 {
		return nil, RejectTooFewPoints
	}

	// Interior lies left of travel for counter-clockwise rings, right for
	// clockwise ones.
	sign := 1.0
	if SignedArea(ring) < 0 {
		sign = -1.0
	}

	out := make([]Point, 0, n+1)
	for i := 0; i < n; i++ {
		prev := ring[(i+n-1)%n]
		next := ring[(i+1)%n]

		d1, ok1 := unitDirection(prev, ring[i])
		d2, ok2 := unitDirection(ring[i], next)
		if !ok1 && !ok2 {
			out = append(out, ring[i])
			continue
		}
		if !ok1 {
			d1 = d2
		}
		if !ok2 {
			d2 = d1
		}

		n1 := Point{X: -d1.Y * sign, Y: d1.X * sign}
		n2 := Point{X: -d2.Y * sign, Y: d2.X * sign}

		denom := 1 + n1.X*n2.X + n1.Y*n2.Y
		if denom < miterDenomFloor {
			denom = miterDenomFloor
		}
		out = append(out, Point{
			X: ring[i].X + distance*(n1.X+n2.X)/denom,
			Y: ring[i].Y + distance*(n1.Y+n2.Y)/denom,
		})
	}
	// A displacement larger than the loop can absorb turns the ring inside
	// out; the winding sign flips. Treat that as a collapse.
	if SignedArea(out)*sign <= 0 {
		return nil, RejectDegenerateArea
	}
	// A fold-through can restore the winding (a square shrunk past its
	// midline re-forms with both axes mirrored). A folded edge runs
	// opposite its source edge; reject those too.
	for i := 0; i < n; i++ {
		sd, ok := unitDirection(ring[i], ring[(i+1)%n])
		if !ok {
			continue
		}
		od, ok := unitDirection(out[i], out[(i+1)%n])
		if !ok || sd.X*od.X+sd.Y*od.Y <= 0 {
			return nil, RejectDegenerateArea
		}
	}
	out = append(out, out[0])

	inner, reason := ValidateLoop(out, config)
	if reason != "" {
		return nil, reason
	}
	inner.Synthesized = true
	return inner, ""
}
