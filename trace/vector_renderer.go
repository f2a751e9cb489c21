package trace

import (
	"fmt"
	"image/color"
	"image/png"
	"io"
	"math"

	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"
	"github.com/tdewolff/canvas/renderers/svg"
)

// snapCoord rounds a coordinate to the nearest multiple of the given increment.
// An increment of 0 disables snapping and returns the coordinate unchanged.
func snapCoord(coord, increment float64) float64 {
	if increment <= 0 {
		return coord
	}
	return math.Round(coord/increment) * increment
}

// Stroke colors for vector output, one per boundary role.
var (
	colorExteriorOuter = color.RGBA{R: 206, G: 32, B: 41, A: 255}
	colorExteriorInner = color.RGBA{R: 32, G: 84, B: 206, A: 255}
	colorInterior      = color.RGBA{R: 120, G: 120, B: 120, A: 255}
	colorSourceStroke  = color.RGBA{R: 214, G: 214, B: 214, A: 255}
	colorSheetFrame    = color.RGBA{R: 40, G: 40, B: 40, A: 255}
)

func roleColor(role BoundaryRole) color.RGBA {
	switch role {
	case RoleExteriorOuter:
		return colorExteriorOuter
	case RoleExteriorInner:
		return colorExteriorInner
	default:
		return colorInterior
	}
}

// VectorRenderer renders a classified boundary set as vector graphics.
// Segments, when set, are drawn underneath the boundaries as faint source
// geometry for visual QA.
type VectorRenderer struct {
	Boundaries    *ClassifiedBoundarySet
	Segments      []Segment
	Sheet         *SheetBounds
	Padding       float64           // Padding in drawing units
	Resolution    canvas.Resolution // Resolution for PNG output (default: 300 DPI)
	GridSpacing   float64           // Grid line spacing in drawing units; 0 disables
	SnapIncrement float64           // Snap coordinates to this increment; 0 disables
	StrokeWidth   float64           // Boundary stroke width in drawing units
}

// NewVectorRenderer creates a vector renderer with default settings.
func NewVectorRenderer(set *ClassifiedBoundarySet, sheet *SheetBounds) *VectorRenderer {
	return &VectorRenderer{
		Boundaries:  set,
		Sheet:       sheet,
		Padding:     24.0,
		Resolution:  canvas.DPI(300),
		GridSpacing: 100.0,
		StrokeWidth: 2.0,
	}
}

// canvasRenderer is an interface that both svg and rasterizer renderers implement
type canvasRenderer interface {
	RenderPath(path *canvas.Path, style canvas.Style, m canvas.Matrix)
}

// RenderToSVG writes the boundary set as an SVG to the provided writer.
func (r *VectorRenderer) RenderToSVG(w io.Writer) error {
	minX, minY, maxX, maxY, err := r.worldBounds()
	if err != nil {
		return err
	}

	width := (maxX - minX) + 2*r.Padding
	height := (maxY - minY) + 2*r.Padding

	svgRenderer := svg.New(w, width, height, nil)
	r.renderToCanvas(svgRenderer, minX, minY, maxX, maxY, width, height)
	return svgRenderer.Close()
}

// RenderToPNG writes the boundary set as a PNG to the provided writer.
func (r *VectorRenderer) RenderToPNG(w io.Writer) error {
	minX, minY, maxX, maxY, err := r.worldBounds()
	if err != nil {
		return err
	}

	width := (maxX - minX) + 2*r.Padding
	height := (maxY - minY) + 2*r.Padding

	rast := rasterizer.New(width, height, r.Resolution, canvas.DefaultColorSpace)
	r.renderToCanvas(rast, minX, minY, maxX, maxY, width, height)

	// Rasterizer implements draw.Image, which embeds image.Image.
	return png.Encode(w, rast)
}

// renderToCanvas draws the shared scene: background, source segments, grid,
// boundary loops by role, sheet frame.
func (r *VectorRenderer) renderToCanvas(renderer canvasRenderer, minX, minY, maxX, maxY, width, height float64) {
	bgStyle := canvas.DefaultStyle
	bgStyle.Fill = canvas.Paint{Color: canvas.White}
	renderer.RenderPath(canvas.Rectangle(width, height), bgStyle, canvas.Identity)

	toCanvas := func(p Point) (float64, float64) {
		x := snapCoord(p.X, r.SnapIncrement)
		y := snapCoord(p.Y, r.SnapIncrement)
		return (x - minX) + r.Padding, (y - minY) + r.Padding
	}

	// Source segments under everything else.
	if len(r.Segments) > 0 {
		segStyle := canvas.DefaultStyle
		segStyle.Fill = canvas.Paint{Color: canvas.Transparent}
		segStyle.Stroke = canvas.Paint{Color: colorSourceStroke}
		segStyle.StrokeWidth = 0.75

		for _, seg := range r.Segments {
			cp := &canvas.Path{}
			x1, y1 := toCanvas(seg.Start)
			x2, y2 := toCanvas(seg.End)
			cp.MoveTo(x1, y1)
			cp.LineTo(x2, y2)
			renderer.RenderPath(cp, segStyle, canvas.Identity)
		}
	}

	// Grid lines.
	if r.GridSpacing > 0 {
		gridStyle := canvas.DefaultStyle
		gridStyle.Fill = canvas.Paint{Color: canvas.Transparent}
		gridStyle.Stroke = canvas.Paint{Color: canvas.Gray}
		gridStyle.StrokeWidth = 0.5
		gridStyle.Dashes = []float64{10.0, 10.0}

		for x := math.Floor(minX/r.GridSpacing) * r.GridSpacing; x <= maxX; x += r.GridSpacing {
			gridPath := &canvas.Path{}
			x1, y1 := toCanvas(Point{X: x, Y: minY})
			x2, y2 := toCanvas(Point{X: x, Y: maxY})
			gridPath.MoveTo(x1, y1)
			gridPath.LineTo(x2, y2)
			renderer.RenderPath(gridPath, gridStyle, canvas.Identity)
		}

		for y := math.Floor(minY/r.GridSpacing) * r.GridSpacing; y <= maxY; y += r.GridSpacing {
			gridPath := &canvas.Path{}
			x1, y1 := toCanvas(Point{X: minX, Y: y})
			x2, y2 := toCanvas(Point{X: maxX, Y: y})
			gridPath.MoveTo(x1, y1)
			gridPath.LineTo(x2, y2)
			renderer.RenderPath(gridPath, gridStyle, canvas.Identity)
		}
	}

	// Boundary loops: outer, inner, interiors, in set order.
	if r.Boundaries != nil {
		for _, cb := range r.Boundaries.Loops() {
			loop := cb.Loop
			if len(loop.Points) < 2 {
				continue
			}

			style := canvas.DefaultStyle
			style.Fill = canvas.Paint{Color: canvas.Transparent}
			style.Stroke = canvas.Paint{Color: roleColor(cb.Role)}
			style.StrokeWidth = r.StrokeWidth
			if loop.Synthesized {
				style.Dashes = []float64{8.0, 4.0}
			}

			cp := &canvas.Path{}
			for i, pt := range loop.Points {
				cx, cy := toCanvas(pt)
				if i == 0 {
					cp.MoveTo(cx, cy)
				} else {
					cp.LineTo(cx, cy)
				}
			}
			cp.Close()
			renderer.RenderPath(cp, style, canvas.Identity)
		}
	}

	// Sheet frame on top.
	if r.Sheet != nil && r.Sheet.Width > 0 && r.Sheet.Height > 0 {
		frameStyle := canvas.DefaultStyle
		frameStyle.Fill = canvas.Paint{Color: canvas.Transparent}
		frameStyle.Stroke = canvas.Paint{Color: colorSheetFrame}
		frameStyle.StrokeWidth = 1.0

		cp := &canvas.Path{}
		x1, y1 := toCanvas(Point{X: 0, Y: 0})
		x2, y2 := toCanvas(Point{X: r.Sheet.Width, Y: r.Sheet.Height})
		cp.MoveTo(x1, y1)
		cp.LineTo(x2, y1)
		cp.LineTo(x2, y2)
		cp.LineTo(x1, y2)
		cp.Close()
		renderer.RenderPath(cp, frameStyle, canvas.Identity)
	}
}

// worldBounds returns the drawing-space extent to render: the sheet when
// known, otherwise the union of boundary and segment extents.
func (r *VectorRenderer) worldBounds() (minX, minY, maxX, maxY float64, err error) {
	if r.Sheet != nil && r.Sheet.Width > 0 && r.Sheet.Height > 0 {
		return 0, 0, r.Sheet.Width, r.Sheet.Height, nil
	}

	minX, minY = math.MaxFloat64, math.MaxFloat64
	maxX, maxY = -math.MaxFloat64, -math.MaxFloat64
	grow := func(b BBox) {
		if b.MinX < minX {
			minX = b.MinX
		}
		if b.MinY < minY {
			minY = b.MinY
		}
		if b.MaxX > maxX {
			maxX = b.MaxX
		}
		if b.MaxY > maxY {
			maxY = b.MaxY
		}
	}

	if r.Boundaries != nil {
		for _, cb := range r.Boundaries.Loops() {
			grow(cb.Loop.BBox)
		}
	}
	for _, seg := range r.Segments {
		grow(ComputeBBox([]Point{seg.Start, seg.End}))
	}

	if minX > maxX || minY > maxY {
		return 0, 0, 0, 0, fmt.Errorf("nothing to render: no sheet, boundaries, or segments")
	}
	return minX, minY, maxX, maxY, nil
}
