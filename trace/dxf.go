package trace

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"strings"
)

// DXF layer names for the classified boundary roles.
const (
	DXFLayerExteriorOuter = "EXTERIOR_OUTER"
	DXFLayerExteriorInner = "EXTERIOR_INNER"
	DXFLayerInterior      = "INTERIOR"
)

// AutoCAD color index per layer.
const (
	dxfColorYellow  = 2
	dxfColorCyan    = 4
	dxfColorMagenta = 6
)

// DefaultDXFTargetMax is the drawing extent the longer sheet side is
// scaled to in exported DXF coordinates.
const DefaultDXFTargetMax = 1000.0

// dxfLayerFor maps a boundary role to its DXF layer name
func dxfLayerFor(role BoundaryRole) string {
	switch role {
	case RoleExteriorOuter:
		return DXFLayerExteriorOuter
	case RoleExteriorInner:
		return DXFLayerExteriorInner
	default:
		return DXFLayerInterior
	}
}

// WriteDXF serializes a classified boundary set as an ASCII DXF (R12)
// document with one closed POLYLINE per boundary, layered by role. Page
// coordinates are scaled so the longer sheet side spans targetMax drawing
// units and flipped to CAD's Y-up convention. Loops with fewer than 3
// unique points are skipped with a warning.
func WriteDXF(w io.Writer, set ClassifiedBoundarySet, sheet *SheetBounds, targetMax float64) error {
	if targetMax <= 0 {
		targetMax = DefaultDXFTargetMax
	}
	matrix, _ := SheetExportTransform(effectiveSheet(set, sheet), targetMax)

	var b strings.Builder
	writeDXFPreamble(&b)

	for _, boundary := range set.Loops() {
		loop := boundary.Loop
		layer := dxfLayerFor(boundary.Role)
		if loop.PointCount() < 3 {
			log.Printf("[DXF] skipping %s polyline with %d points", layer, loop.PointCount())
			continue
		}
		writeDXFPolyline(&b, &loop, layer, matrix)
	}

	writeTag(&b, 0, "ENDSEC")
	writeTag(&b, 0, "EOF")

	_, err := io.WriteString(w, b.String())
	return err
}

// DXFBytes renders the DXF document into memory
func DXFBytes(set ClassifiedBoundarySet, sheet *SheetBounds, targetMax float64) []byte {
	var buf bytes.Buffer
	// Writes to a bytes.Buffer cannot fail.
	_ = WriteDXF(&buf, set, sheet, targetMax)
	return buf.Bytes()
}

// effectiveSheet returns the supplied sheet bounds, or bounds derived from
// the set's own extent when none were supplied
func effectiveSheet(set ClassifiedBoundarySet, sheet *SheetBounds) SheetBounds {
	if sheet != nil && sheet.Width > 0 && sheet.Height > 0 {
		return *sheet
	}
	var all BBox
	first := true
	for _, boundary := range set.Loops() {
		if first {
			all = boundary.Loop.BBox
			first = false
			continue
		}
		all.MinX = minf(all.MinX, boundary.Loop.BBox.MinX)
		all.MinY = minf(all.MinY, boundary.Loop.BBox.MinY)
		all.MaxX = maxf(all.MaxX, boundary.Loop.BBox.MaxX)
		all.MaxY = maxf(all.MaxY, boundary.Loop.BBox.MaxY)
	}
	return SheetBounds{Width: all.MaxX, Height: all.MaxY}
}

// writeTag emits one DXF group code / value pair
func writeTag(b *strings.Builder, code int, value string) {
	fmt.Fprintf(b, "%d\n%s\n", code, value)
}

func writeFloatTag(b *strings.Builder, code int, value float64) {
	fmt.Fprintf(b, "%d\n%.4f\n", code, value)
}

// writeDXFPreamble emits the header, linetype and layer tables, and opens
// the entities section
func writeDXFPreamble(b *strings.Builder) {
	writeTag(b, 0, "SECTION")
	writeTag(b, 2, "HEADER")
	writeTag(b, 9, "$ACADVER")
	writeTag(b, 1, "AC1009")
	writeTag(b, 0, "ENDSEC")

	writeTag(b, 0, "SECTION")
	writeTag(b, 2, "TABLES")

	writeTag(b, 0, "TABLE")
	writeTag(b, 2, "LTYPE")
	writeTag(b, 70, "1")
	writeTag(b, 0, "LTYPE")
	writeTag(b, 2, "CONTINUOUS")
	writeTag(b, 70, "0")
	writeTag(b, 3, "Solid line")
	writeTag(b, 72, "65")
	writeTag(b, 73, "0")
	writeTag(b, 40, "0.0")
	writeTag(b, 0, "ENDTAB")

	writeTag(b, 0, "TABLE")
	writeTag(b, 2, "LAYER")
	writeTag(b, 70, "3")
	writeDXFLayer(b, DXFLayerExteriorOuter, dxfColorYellow)
	writeDXFLayer(b, DXFLayerExteriorInner, dxfColorMagenta)
	writeDXFLayer(b, DXFLayerInterior, dxfColorCyan)
	writeTag(b, 0, "ENDTAB")

	writeTag(b, 0, "ENDSEC")

	writeTag(b, 0, "SECTION")
	writeTag(b, 2, "ENTITIES")
}

func writeDXFLayer(b *strings.Builder, name string, color int) {
	writeTag(b, 0, "LAYER")
	writeTag(b, 2, name)
	writeTag(b, 70, "0")
	writeTag(b, 62, fmt.Sprintf("%d", color))
	writeTag(b, 6, "CONTINUOUS")
}

// writeDXFPolyline emits one closed POLYLINE with VERTEX entries and a
// SEQEND terminator
func writeDXFPolyline(b *strings.Builder, loop *BoundaryLoop, layer string, matrix AffineMatrix) {
	writeTag(b, 0, "POLYLINE")
	writeTag(b, 8, layer)
	writeTag(b, 66, "1")
	writeTag(b, 70, "1")

	ring := loop.Points
	if loop.Closed() {
		ring = ring[:len(ring)-1]
	}
	for _, tp := range TransformPoints(ring, matrix) {
		writeTag(b, 0, "VERTEX")
		writeTag(b, 8, layer)
		writeFloatTag(b, 10, tp.X)
		writeFloatTag(b, 20, tp.Y)
		writeFloatTag(b, 30, 0)
	}

	writeTag(b, 0, "SEQEND")
}
