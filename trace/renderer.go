package trace

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// DebugRenderer rasterizes a traced drawing for quick visual inspection:
// source segments underneath, classified loops on top, a role legend in the
// corner. Not meant for CAD consumers; use VectorRenderer for those.
type DebugRenderer struct {
	Result   *TraceResult
	Segments []Segment
	Sheet    *SheetBounds
	Scale    float64 // Pixels per drawing unit
	Padding  int     // Padding around the image in pixels

	// RoleColors overrides the default stroke colors with hex strings like
	// "#CE2029", keyed by role. Unset roles use the defaults.
	RoleColors map[BoundaryRole]string
}

// NewDebugRenderer creates a debug renderer with default settings.
func NewDebugRenderer(result *TraceResult, segments []Segment, sheet *SheetBounds) *DebugRenderer {
	return &DebugRenderer{
		Result:   result,
		Segments: segments,
		Sheet:    sheet,
		Scale:    1.0,
		Padding:  30,
	}
}

// HasDrawableContent returns true if there is at least one loop or segment
// to draw.
func (r *DebugRenderer) HasDrawableContent() bool {
	if len(r.Segments) > 0 {
		return true
	}
	return r.Result != nil && !r.Result.Boundaries.Empty()
}

// CalculateBounds computes the drawing-space extent: the sheet when known,
// otherwise the union of loop and segment extents.
func (r *DebugRenderer) CalculateBounds() (minX, minY, maxX, maxY float64) {
	if r.Sheet != nil && r.Sheet.Width > 0 && r.Sheet.Height > 0 {
		return 0, 0, r.Sheet.Width, r.Sheet.Height
	}

	var pts []Point
	if r.Result != nil {
		for _, cb := range r.Result.Boundaries.Loops() {
			pts = append(pts, cb.Loop.Points...)
		}
	}
	for _, seg := range r.Segments {
		pts = append(pts, seg.Start, seg.End)
	}
	if len(pts) == 0 {
		return 0, 0, 0, 0
	}
	b := ComputeBBox(pts)
	return b.MinX, b.MinY, b.MaxX, b.MaxY
}

func (r *DebugRenderer) roleRGBA(role BoundaryRole) color.RGBA {
	if hex, ok := r.RoleColors[role]; ok {
		return parseHexColor(hex)
	}
	return roleColor(role)
}

// Render creates the debug image.
func (r *DebugRenderer) Render() *image.RGBA {
	minX, minY, maxX, maxY := r.CalculateBounds()

	width := r.contentSpan(maxX-minX) + 2*r.Padding
	height := r.contentSpan(maxY-minY) + 2*r.Padding

	// Limit size
	if width > 4000 {
		r.Scale *= float64(4000) / float64(width)
		width = 4000
		height = r.contentSpan(maxY-minY) + 2*r.Padding
	}
	if height > 4000 {
		r.Scale *= float64(4000) / float64(height)
		height = 4000
		width = r.contentSpan(maxX-minX) + 2*r.Padding
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{240, 240, 240, 255})
		}
	}

	// Page coordinates grow upward; image rows grow downward.
	toImage := func(p Point) (int, int) {
		x := int((p.X-minX)*r.Scale) + r.Padding
		y := height - 1 - (int((p.Y-minY)*r.Scale) + r.Padding)
		return x, y
	}

	// First pass: source segments (light grey).
	segColor := color.RGBA{190, 190, 190, 255}
	for _, seg := range r.Segments {
		x1, y1 := toImage(seg.Start)
		x2, y2 := toImage(seg.End)
		drawLine(img, x1, y1, x2, y2, segColor)
	}

	// Second pass: classified loops with vertex markers.
	if r.Result != nil {
		for _, cb := range r.Result.Boundaries.Loops() {
			c := r.roleRGBA(cb.Role)
			pts := cb.Loop.Points
			for i := 0; i+1 < len(pts); i++ {
				x1, y1 := toImage(pts[i])
				x2, y2 := toImage(pts[i+1])
				drawLine(img, x1, y1, x2, y2, c)
			}
			for _, p := range pts {
				ix, iy := toImage(p)
				drawSquare(img, ix, iy, 4, c)
			}
		}
	}

	r.drawLegend(img)

	return img
}

// contentSpan converts a drawing-space span to pixels, at least one so an
// empty drawing still yields a valid image.
func (r *DebugRenderer) contentSpan(span float64) int {
	px := int(span * r.Scale)
	if px < 1 {
		px = 1
	}
	return px
}

// SavePNG renders and saves the debug image to a file.
func (r *DebugRenderer) SavePNG(path string) error {
	img := r.Render()

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	return png.Encode(f, img)
}

// drawLegend adds role swatches with text labels to the top-left corner.
func (r *DebugRenderer) drawLegend(img *image.RGBA) {
	if r.Result == nil {
		return
	}

	type entry struct {
		label string
		role  BoundaryRole
	}
	var entries []entry
	set := r.Result.Boundaries
	if set.ExteriorOuter != nil {
		entries = append(entries, entry{"exterior outer", RoleExteriorOuter})
	}
	if set.ExteriorInner != nil {
		label := "exterior inner"
		if set.ExteriorInner.Synthesized {
			label = "exterior inner (offset)"
		}
		entries = append(entries, entry{label, RoleExteriorInner})
	}
	if n := len(set.InteriorWalls); n > 0 {
		entries = append(entries, entry{fmt.Sprintf("interior (%d)", n), RoleInterior})
	}

	y := 15
	for _, e := range entries {
		c := r.roleRGBA(e.role)

		// Color swatch (12x12 square)
		for dy := 0; dy < 12; dy++ {
			for dx := 0; dx < 12; dx++ {
				img.Set(10+dx, y+dy-6, c)
			}
		}

		drawText(img, 28, y, e.label, color.RGBA{0, 0, 0, 255})

		y += 18
	}

	if r.Result.Diagnostics.Degraded {
		drawText(img, 10, y+4, "degraded result", color.RGBA{200, 30, 30, 255})
	}
}

// drawLine draws a straight line by stepping along the longer axis.
func drawLine(img *image.RGBA, x1, y1, x2, y2 int, c color.RGBA) {
	dx := x2 - x1
	dy := y2 - y1
	steps := dx
	if steps < 0 {
		steps = -steps
	}
	if dy > steps {
		steps = dy
	}
	if -dy > steps {
		steps = -dy
	}
	if steps == 0 {
		setPixelInBounds(img, x1, y1, c)
		return
	}
	xInc := float64(dx) / float64(steps)
	yInc := float64(dy) / float64(steps)
	x, y := float64(x1), float64(y1)
	for i := 0; i <= steps; i++ {
		setPixelInBounds(img, int(x+0.5), int(y+0.5), c)
		x += xInc
		y += yInc
	}
}

func setPixelInBounds(img *image.RGBA, x, y int, c color.RGBA) {
	b := img.Bounds()
	if x >= b.Min.X && x < b.Max.X && y >= b.Min.Y && y < b.Max.Y {
		img.Set(x, y, c)
	}
}

// drawSquare draws a filled square centered on the given pixel.
func drawSquare(img *image.RGBA, cx, cy, size int, c color.RGBA) {
	half := size / 2
	for dy := -half; dy <= half; dy++ {
		for dx := -half; dx <= half; dx++ {
			setPixelInBounds(img, cx+dx, cy+dy, c)
		}
	}
}

// drawText renders text onto an image at the specified position
func drawText(img *image.RGBA, x, y int, text string, c color.RGBA) {
	face := basicfont.Face7x13
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}

// parseHexColor parses a hex color string like "#FF6B6B" to color.RGBA
func parseHexColor(hex string) color.RGBA {
	// Default to red if parsing fails
	defaultColor := color.RGBA{255, 0, 0, 255}

	if len(hex) == 0 {
		return defaultColor
	}

	// Remove # prefix if present
	if hex[0] == '#' {
		hex = hex[1:]
	}

	if len(hex) != 6 {
		return defaultColor
	}

	var r, g, b uint8
	_, err := fmt.Sscanf(hex, "%02x%02x%02x", &r, &g, &b)
	if err != nil {
		return defaultColor
	}

	return color.RGBA{r, g, b, 255}
}
