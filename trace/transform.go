package trace

import "math"

// TransformPoint applies an affine transform to a point
// x' = a*x + b*y + tx
// y' = c*x + d*y + ty
func TransformPoint(p Point, m AffineMatrix) Point {
	return Point{
		X: m.A*p.X + m.B*p.Y + m.Tx,
		Y: m.C*p.X + m.D*p.Y + m.Ty,
	}
}

// TransformPoints applies an affine transform to multiple points
func TransformPoints(points []Point, m AffineMatrix) []Point {
	result := make([]Point, len(points))
	for i, p := range points {
		result[i] = TransformPoint(p, m)
	}
	return result
}

// MultiplyMatrices composes two affine transforms: result = m1 * m2
// Applying result is equivalent to applying m2 first, then m1
func MultiplyMatrices(m1, m2 AffineMatrix) AffineMatrix {
	return AffineMatrix{
		A:  m1.A*m2.A + m1.B*m2.C,
		B:  m1.A*m2.B + m1.B*m2.D,
		Tx: m1.A*m2.Tx + m1.B*m2.Ty + m1.Tx,
		C:  m1.C*m2.A + m1.D*m2.C,
		D:  m1.C*m2.B + m1.D*m2.D,
		Ty: m1.C*m2.Tx + m1.D*m2.Ty + m1.Ty,
	}
}

// Translation creates a translation-only transform
func Translation(tx, ty float64) AffineMatrix {
	return AffineMatrix{A: 1, B: 0, Tx: tx, C: 0, D: 1, Ty: ty}
}

// Scale creates a scaling transform
func Scale(sx, sy float64) AffineMatrix {
	return AffineMatrix{A: sx, B: 0, Tx: 0, C: 0, D: sy, Ty: 0}
}

// SheetExportTransform builds the transform CAD consumers expect: drawing
// coordinates scaled so the longer sheet edge maps to targetMax units, with
// the Y axis flipped (page coordinates grow downward, CAD grows upward).
// Returns the transform and the scale factor applied.
func SheetExportTransform(sheet SheetBounds, targetMax float64) (AffineMatrix, float64) {
	maxDim := sheet.Width
	if sheet.Height > maxDim {
		maxDim = sheet.Height
	}
	if maxDim <= 0 || targetMax <= 0 {
		return Identity(), 1.0
	}

	scale := targetMax / maxDim
	// x' = x*s, y' = (H - y)*s
	m := MultiplyMatrices(Translation(0, sheet.Height*scale), Scale(scale, -scale))
	return m, scale
}

// Distance calculates Euclidean distance between two points
func Distance(p1, p2 Point) float64 {
	dx := p2.X - p1.X
	dy := p2.Y - p1.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// PolylineLength returns the total length of the path through points,
// including the segment between the last and first point when they differ
// (perimeter semantics for loops stored without the closing duplicate)
func PolylineLength(points []Point) float64 {
	if len(points) < 2 {
		return 0
	}
	var total float64
	for i := range points {
		next := points[(i+1)%len(points)]
		total += Distance(points[i], next)
	}
	// A closed loop stores its first point twice; the modulo pass above then
	// counts a zero-length edge, so nothing double-counts.
	return total
}

// SignedArea computes the shoelace area of the polygon through points.
// Positive for counter-clockwise winding in a Y-up frame. The closing
// duplicate point, if present, contributes a zero term.
func SignedArea(points []Point) float64 {
	if len(points) < 3 {
		return 0
	}
	var sum float64
	for i := range points {
		j := (i + 1) % len(points)
		sum += points[i].X*points[j].Y - points[j].X*points[i].Y
	}
	return sum / 2
}

// ComputeBBox returns the axis-aligned bounding box of points
func ComputeBBox(points []Point) BBox {
	if len(points) == 0 {
		return BBox{}
	}
	b := BBox{
		MinX: points[0].X, MinY: points[0].Y,
		MaxX: points[0].X, MaxY: points[0].Y,
	}
	for _, p := range points[1:] {
		if p.X < b.MinX {
			b.MinX = p.X
		}
		if p.Y < b.MinY {
			b.MinY = p.Y
		}
		if p.X > b.MaxX {
			b.MaxX = p.X
		}
		if p.Y > b.MaxY {
			b.MaxY = p.Y
		}
	}
	return b
}
