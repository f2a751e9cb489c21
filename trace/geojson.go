package trace

import (
	"encoding/json"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/simplify"
)

// GeometryType represents the GeoJSON geometry type
type GeometryType string

const (
	GeometryPoint           GeometryType = "Point"
	GeometryLineString      GeometryType = "LineString"
	GeometryPolygon         GeometryType = "Polygon"
	GeometryMultiPoint      GeometryType = "MultiPoint"
	GeometryMultiLineString GeometryType = "MultiLineString"
	GeometryMultiPolygon    GeometryType = "MultiPolygon"
)

// Geometry represents a GeoJSON geometry object
type Geometry struct {
	Type        GeometryType    `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// Feature represents a GeoJSON feature with geometry and properties
type Feature struct {
	Type       string                 `json:"type"`
	Geometry   *Geometry              `json:"geometry"`
	Properties map[string]interface{} `json:"properties"`
	ID         interface{}            `json:"id,omitempty"`
}

// FeatureCollection represents a GeoJSON FeatureCollection
type FeatureCollection struct {
	Type     string     `json:"type"`
	Features []*Feature `json:"features"`
}

// NewFeatureCollection creates a new empty FeatureCollection
func NewFeatureCollection() *FeatureCollection {
	return &FeatureCollection{
		Type:     "FeatureCollection",
		Features: make([]*Feature, 0),
	}
}

// AddFeature appends a feature to the collection
func (fc *FeatureCollection) AddFeature(f *Feature) {
	fc.Features = append(fc.Features, f)
}

// NewFeature creates a Feature with the given geometry and properties
func NewFeature(geom *Geometry, props map[string]interface{}) *Feature {
	if props == nil {
		props = make(map[string]interface{})
	}
	return &Feature{
		Type:       "Feature",
		Geometry:   geom,
		Properties: props,
	}
}

// orbRing converts a loop to a closed orb.Ring
func orbRing(loop *BoundaryLoop) orb.Ring {
	ring := make(orb.Ring, len(loop.Points))
	for i, p := range loop.Points {
		ring[i] = orb.Point{p.X, p.Y}
	}
	if len(ring) > 0 && ring[0] != ring[len(ring)-1] {
		ring = append(ring, ring[0])
	}
	return ring
}

// LoopToPolygon converts a boundary loop to a GeoJSON Polygon geometry.
// Coordinates are in page points (x, y).
func LoopToPolygon(loop *BoundaryLoop) *Geometry {
	coords := make([][2]float64, len(loop.Points))
	for i, p := range loop.Points {
		coords[i] = [2]float64{p.X, p.Y}
	}

	// Close the ring if not already closed
	if len(coords) > 0 {
		first := coords[0]
		last := coords[len(coords)-1]
		if first[0] != last[0] || first[1] != last[1] {
			coords = append(coords, first)
		}
	}

	rings := [][][2]float64{coords}
	coordsJSON, _ := json.Marshal(rings)
	return &Geometry{
		Type:        GeometryPolygon,
		Coordinates: coordsJSON,
	}
}

// LoopCentroid returns the area centroid of a loop, used to anchor labels
func LoopCentroid(loop *BoundaryLoop) Point {
	centroid, _ := planar.CentroidArea(orbRing(loop))
	return Point{X: centroid[0], Y: centroid[1]}
}

// SimplifyLoop applies the Douglas-Peucker algorithm to reduce the number
// of points in a loop while keeping its shape within the given tolerance,
// in page points. Metrics are recomputed on the simplified ring. Loops
// that would collapse below a triangle come back unchanged.
func SimplifyLoop(loop *BoundaryLoop, tolerance float64) *BoundaryLoop {
	ring := orbRing(loop)
	simplified, ok := simplify.DouglasPeucker(tolerance).Simplify(ring.Clone()).(orb.Ring)
	if !ok || len(simplified) < 4 {
		return loop
	}

	points := make([]Point, len(simplified))
	for i, p := range simplified {
		points[i] = Point{X: p[0], Y: p[1]}
	}
	unique := points[:len(points)-1]
	return &BoundaryLoop{
		Points:      points,
		Perimeter:   PolylineLength(unique),
		Area:        math.Abs(planar.Area(simplified)),
		BBox:        ComputeBBox(unique),
		Synthesized: loop.Synthesized,
	}
}

// BoundariesToFeatureCollection converts a classified boundary set to a
// GeoJSON FeatureCollection. Each boundary becomes one Polygon feature
// with role and metric properties. A positive simplifyTolerance runs
// Douglas-Peucker on every ring before export.
func BoundariesToFeatureCollection(set ClassifiedBoundarySet, drawingID string, simplifyTolerance float64) *FeatureCollection {
	fc := NewFeatureCollection()

	add := func(loop *BoundaryLoop, role BoundaryRole) {
		if loop == nil {
			return
		}
		if simplifyTolerance > 0 {
			loop = SimplifyLoop(loop, simplifyTolerance)
		}

		centroid := LoopCentroid(loop)
		props := map[string]interface{}{
			"role":       string(role),
			"drawingId":  drawingID,
			"perimeter":  loop.Perimeter,
			"area":       loop.Area,
			"pointCount": loop.PointCount(),
			"centroid":   []float64{centroid.X, centroid.Y},
		}
		if loop.Synthesized {
			props["synthesized"] = true
		}
		fc.AddFeature(NewFeature(LoopToPolygon(loop), props))
	}

	add(set.ExteriorOuter, RoleExteriorOuter)
	add(set.ExteriorInner, RoleExteriorInner)
	for i := range set.InteriorWalls {
		add(&set.InteriorWalls[i], RoleInterior)
	}
	return fc
}
