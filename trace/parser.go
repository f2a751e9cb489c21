package trace

import (
	"encoding/json"
	"fmt"
	"os"
)

// DefaultWallMinWidth is the minimum stroke width for a segment to count
// as a wall candidate. Hairlines below this are dimension leaders, hatch
// fills, or annotation strokes.
const DefaultWallMinWidth = 0.2

// Points per physical unit, for payloads not already in page points.
const (
	pointsPerInch       = 72.0
	pointsPerMillimeter = 72.0 / 25.4
)

// ParseDrawingFile reads and parses a drawing payload JSON file
func ParseDrawingFile(path string) (*DrawingDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return ParseDrawingJSON(data)
}

// ParseDrawingJSON parses extractor drawing JSON data
func ParseDrawingJSON(data []byte) (*DrawingDocument, error) {
	var doc DrawingDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing drawing JSON: %w", err)
	}
	return &doc, nil
}

// NormalizeToPoints converts a document's coordinates to page points in
// place. Extractors emit millimeters or inches for some CAD sources; the
// engine and every export work in points.
func NormalizeToPoints(doc *DrawingDocument) {
	var scale float64
	switch doc.Units {
	case "mm":
		scale = pointsPerMillimeter
	case "in":
		scale = pointsPerInch
	default:
		// Already points, or unknown and left untouched.
		return
	}

	for i := range doc.Segments {
		doc.Segments[i].Start.X *= scale
		doc.Segments[i].Start.Y *= scale
		doc.Segments[i].End.X *= scale
		doc.Segments[i].End.Y *= scale
		doc.Segments[i].Width *= scale
	}
	if doc.Sheet != nil {
		doc.Sheet.Width *= scale
		doc.Sheet.Height *= scale
	}
	doc.Units = "pt"
}

// WallCandidates filters the document's segments to plausible wall
// strokes: at least minWidth wide and not carrying an excluded source tag.
// minWidth <= 0 uses the default.
func WallCandidates(doc *DrawingDocument, minWidth float64, excludeTags ...string) []Segment {
	if minWidth <= 0 {
		minWidth = DefaultWallMinWidth
	}
	excluded := make(map[string]bool, len(excludeTags))
	for _, tag := range excludeTags {
		excluded[tag] = true
	}

	var walls []Segment
	for _, seg := range doc.Segments {
		if seg.Width < minWidth {
			continue
		}
		if excluded[seg.SourceTag] {
			continue
		}
		walls = append(walls, seg)
	}
	return walls
}

// HasTraceableSegments reports whether the document carries enough wall
// candidates to possibly close a loop
func HasTraceableSegments(doc *DrawingDocument) bool {
	return len(WallCandidates(doc, 0)) >= 3
}

// Summarize returns a one-line description of the document for logs
func Summarize(doc *DrawingDocument) string {
	units := doc.Units
	if units == "" {
		units = "pt"
	}
	if doc.Sheet != nil {
		return fmt.Sprintf("drawing %s: %d segments, sheet %.0fx%.0f %s",
			doc.DrawingID, len(doc.Segments), doc.Sheet.Width, doc.Sheet.Height, units)
	}
	return fmt.Sprintf("drawing %s: %d segments, no sheet bounds", doc.DrawingID, len(doc.Segments))
}
