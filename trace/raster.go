package trace

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"

	_ "image/jpeg"
	_ "image/png"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/simplify"
)

// RasterImportOptions controls how a scanned plan bitmap is vectorized.
type RasterImportOptions struct {
	// Threshold is the luminance below which a pixel counts as wall ink.
	Threshold uint8

	// Scale converts pixel coordinates to drawing units (units per pixel).
	Scale float64

	// SimplifyTolerance is the Douglas-Peucker epsilon in pixels applied to
	// traced borders before they become segments.
	SimplifyTolerance float64

	// LineWidth is the stroke width assigned to produced segments so they
	// pass wall-candidate filtering.
	LineWidth float64

	// MinSegmentLength drops segments shorter than this (in drawing units).
	// Degenerate borders from isolated pixels collapse here.
	MinSegmentLength float64

	// FlipY converts scan rows (counted downward) to drawing coordinates
	// (counted upward).
	FlipY bool
}

// DefaultRasterImportOptions returns the standard import settings.
func DefaultRasterImportOptions() RasterImportOptions {
	return RasterImportOptions{
		Threshold:         128,
		Scale:             1.0,
		SimplifyTolerance: 1.5,
		LineWidth:         1.0,
		MinSegmentLength:  0.1,
		FlipY:             true,
	}
}

// visitKey uniquely identifies a border-walk state: pixel index plus the
// direction faced when arriving.
type visitKey struct {
	idx int
	dir int
}

// ImportRasterFile reads a scanned plan image (PNG or JPEG) and vectorizes
// its dark pixels into a drawing document. The drawing ID is derived from
// the file name.
func ImportRasterFile(path string, opts RasterImportOptions) (*DrawingDocument, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening raster file: %w", err)
	}
	defer func() { _ = f.Close() }()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding raster image: %w", err)
	}

	bounds := img.Bounds()
	name := filepath.Base(path)
	doc := &DrawingDocument{
		DrawingID: strings.TrimSuffix(name, filepath.Ext(name)),
		Units:     "pt",
		Sheet: &SheetBounds{
			Width:  float64(bounds.Dx()) * opts.Scale,
			Height: float64(bounds.Dy()) * opts.Scale,
		},
		MetaData: DrawingMetaData{Source: name, Extractor: "raster", Version: 1},
		Segments: VectorizeRaster(img, opts),
	}
	return doc, nil
}

// VectorizeRaster converts an image into wall segments by thresholding
// luminance and tracing the borders of the resulting mask.
func VectorizeRaster(img image.Image, opts RasterImportOptions) []Segment {
	if img == nil {
		return nil
	}
	mask, width, height := maskFromImage(img, opts.Threshold)
	return VectorizeMask(mask, width, height, opts)
}

// VectorizeMask converts a boolean wall mask (row-major, width*height) into
// wall segments. Borders are traced with Moore-neighbor following, simplified
// with Douglas-Peucker, and emitted as consecutive point-pair segments.
func VectorizeMask(mask []bool, width, height int, opts RasterImportOptions) []Segment {
	if len(mask) == 0 || width <= 0 || height <= 0 || len(mask) < width*height {
		return nil
	}
	if opts.Scale <= 0 {
		opts.Scale = 1.0
	}

	// Pad by one pixel so border following never walks off the grid.
	const pad = 1
	gw := width + 2*pad
	gh := height + 2*pad
	grid := make([]bool, gw*gh)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if mask[y*width+x] {
				grid[(y+pad)*gw+(x+pad)] = true
			}
		}
	}

	paths := borderPaths(grid, gw, gh)

	toDrawing := func(p Point) Point {
		x := p.X - pad
		y := p.Y - pad
		if opts.FlipY {
			y = float64(height-1) - y
		}
		return Point{X: x * opts.Scale, Y: y * opts.Scale}
	}

	var segments []Segment
	for _, path := range paths {
		pts := simplifyPath(path, opts.SimplifyTolerance)
		for i := 0; i+1 < len(pts); i++ {
			seg := Segment{
				Start:     toDrawing(pts[i]),
				End:       toDrawing(pts[i+1]),
				Width:     opts.LineWidth,
				SourceTag: "raster",
			}
			if Distance(seg.Start, seg.End) < opts.MinSegmentLength {
				continue
			}
			segments = append(segments, seg)
		}
	}
	return segments
}

// maskFromImage thresholds an image into a boolean wall mask. Pixels darker
// than the threshold count as wall ink.
func maskFromImage(img image.Image, threshold uint8) ([]bool, int, int) {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	mask := make([]bool, width*height)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := color.GrayModel.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.Gray)
			if c.Y < threshold {
				mask[y*width+x] = true
			}
		}
	}
	return mask, width, height
}

// borderPaths scans the grid for border starting points and follows each
// border once. A starting point is any set pixel with at least one empty
// cardinal neighbor.
func borderPaths(grid []bool, width, height int) [][]Point {
	var paths [][]Point

	seen := make(map[visitKey]bool)

	idx := func(x, y int) int { return y*width + x }
	isSet := func(x, y int) bool {
		if x < 0 || x >= width || y < 0 || y >= height {
			return false
		}
		return grid[idx(x, y)]
	}

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if !isSet(x, y) {
				continue
			}

			hasNeighbor := isSet(x-1, y) || isSet(x+1, y) || isSet(x, y-1) || isSet(x, y+1)
			if !hasNeighbor {
				// Isolated pixel: emit a degenerate border at the pixel
				// position and mark every direction handled.
				key := visitKey{idx(x, y), 0}
				if !seen[key] {
					for dir := 0; dir < 4; dir++ {
						seen[visitKey{idx(x, y), dir}] = true
					}
					px := float64(x)
					py := float64(y)
					paths = append(paths, []Point{{X: px, Y: py}, {X: px, Y: py}, {X: px, Y: py}})
				}
				continue
			}

			// Direction encoding: 0=N, 1=E, 2=S, 3=W. An empty neighbor on a
			// side means a border passes here facing along that side.
			starts := []struct {
				dx, dy int
				dir    int
			}{
				{-1, 0, 3},
				{1, 0, 1},
				{0, -1, 0},
				{0, 1, 2},
			}

			for _, s := range starts {
				if isSet(x+s.dx, y+s.dy) {
					continue
				}
				key := visitKey{idx(x, y), s.dir}
				if seen[key] {
					continue
				}
				path := followBorder(x, y, s.dir, grid, width, height, seen)
				if len(path) > 2 {
					paths = append(paths, path)
				}
			}
		}
	}
	return paths
}

// followBorder walks a border with Moore-neighbor tracing under the
// right-hand rule: at each step scan clockwise starting one turn to the
// right of the current facing until a set pixel appears.
func followBorder(startX, startY, startFacing int, grid []bool, width, height int, seen map[visitKey]bool) []Point {
	var path []Point

	curX, curY := startX, startY
	facing := startFacing

	isSet := func(x, y int) bool {
		if x < 0 || x >= width || y < 0 || y >= height {
			return false
		}
		return grid[y*width+x]
	}

	// N, E, S, W
	dirs := []struct{ dx, dy int }{
		{0, -1},
		{1, 0},
		{0, 1},
		{-1, 0},
	}

	for {
		key := visitKey{idx: curY*width + curX, dir: facing}

		if seen[key] {
			// Back at the start state: close the loop.
			if curX == startX && curY == startY && len(path) > 0 {
				path = append(path, Point{X: float64(curX), Y: float64(curY)})
			}
			break
		}

		seen[key] = true
		path = append(path, Point{X: float64(curX), Y: float64(curY)})

		startScan := (facing - 1 + 4) % 4
		found := false
		for i := 0; i < 4; i++ {
			scanDir := (startScan + i) % 4
			nx := curX + dirs[scanDir].dx
			ny := curY + dirs[scanDir].dy
			if isSet(nx, ny) {
				curX, curY = nx, ny
				facing = scanDir
				found = true
				break
			}
		}
		if !found {
			break
		}

		if len(path) > 100000 {
			break
		}
	}

	return path
}

// simplifyPath applies Douglas-Peucker simplification to a traced border.
func simplifyPath(pts []Point, epsilon float64) []Point {
	if epsilon <= 0 || len(pts) < 3 {
		return pts
	}
	ls := make(orb.LineString, len(pts))
	for i, p := range pts {
		ls[i] = orb.Point{p.X, p.Y}
	}
	out, ok := simplify.DouglasPeucker(epsilon).Simplify(ls).(orb.LineString)
	if !ok || len(out) < 2 {
		return pts
	}
	res := make([]Point, len(out))
	for i, q := range out {
		res[i] = Point{X: q[0], Y: q[1]}
	}
	return res
}
