package trace

// Point represents a 2D coordinate in drawing units (page points)
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Segment is one line segment extracted from a vector drawing.
// Width is the stroke width in drawing units; SourceTag is an opaque
// layer/color identifier carried through from the extractor.
type Segment struct {
	Start     Point   `json:"start"`
	End       Point   `json:"end"`
	Width     float64 `json:"width"`
	SourceTag string  `json:"sourceTag,omitempty"`
}

// SheetBounds describes the drawing sheet dimensions
type SheetBounds struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// BBox is an axis-aligned bounding box
type BBox struct {
	MinX float64 `json:"minX"`
	MinY float64 `json:"minY"`
	MaxX float64 `json:"maxX"`
	MaxY float64 `json:"maxY"`
}

// Width returns the horizontal extent of the box
func (b BBox) Width() float64 {
	return b.MaxX - b.MinX
}

// Height returns the vertical extent of the box
func (b BBox) Height() float64 {
	return b.MaxY - b.MinY
}

// Area returns the box area
func (b BBox) Area() float64 {
	return b.Width() * b.Height()
}

// ContainsWithin reports whether other fits inside b, allowing each side
// to protrude by up to slack units
func (b BBox) ContainsWithin(other BBox, slack float64) bool {
	return other.MinX >= b.MinX-slack &&
		other.MinY >= b.MinY-slack &&
		other.MaxX <= b.MaxX+slack &&
		other.MaxY <= b.MaxY+slack
}

// Intersection returns the overlapping region of two boxes and true,
// or a zero box and false when they do not overlap
func (b BBox) Intersection(other BBox) (BBox, bool) {
	out := BBox{
		MinX: maxf(b.MinX, other.MinX),
		MinY: maxf(b.MinY, other.MinY),
		MaxX: minf(b.MaxX, other.MaxX),
		MaxY: minf(b.MaxY, other.MaxY),
	}
	if out.MinX >= out.MaxX || out.MinY >= out.MaxY {
		return BBox{}, false
	}
	return out, true
}

// EdgeDistance returns the minimum distance from any side of the box to
// the nearest sheet edge
func (b BBox) EdgeDistance(sheet SheetBounds) float64 {
	d := b.MinX
	if b.MinY < d {
		d = b.MinY
	}
	if sheet.Width-b.MaxX < d {
		d = sheet.Width - b.MaxX
	}
	if sheet.Height-b.MaxY < d {
		d = sheet.Height - b.MaxY
	}
	return d
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// BoundaryRole labels a traced loop's place in the building envelope
type BoundaryRole string

const (
	// RoleExteriorOuter is the outside face of the building perimeter wall
	RoleExteriorOuter BoundaryRole = "exterior_outer"
	// RoleExteriorInner is the inside face of the building perimeter wall
	RoleExteriorInner BoundaryRole = "exterior_inner"
	// RoleInterior is any traced boundary that is not part of the perimeter
	RoleInterior BoundaryRole = "interior"
)

// BoundaryLoop is a closed polygon traced from connected segments.
// Points[0] equals Points[len-1]; metrics are filled in during validation.
type BoundaryLoop struct {
	Points      []Point `json:"points"`
	Perimeter   float64 `json:"perimeter"`
	Area        float64 `json:"area"`
	BBox        BBox    `json:"bbox"`
	Synthesized bool    `json:"synthesized,omitempty"`
}

// PointCount returns the number of unique vertices (the closing duplicate
// is not counted)
func (l *BoundaryLoop) PointCount() int {
	n := len(l.Points)
	if n > 1 && l.Points[0] == l.Points[n-1] {
		return n - 1
	}
	return n
}

// Closed reports whether the loop's first and last points coincide
func (l *BoundaryLoop) Closed() bool {
	n := len(l.Points)
	return n > 1 && l.Points[0] == l.Points[n-1]
}

// Clone returns a deep copy of the loop
func (l *BoundaryLoop) Clone() *BoundaryLoop {
	if l == nil {
		return nil
	}
	out := *l
	out.Points = make([]Point, len(l.Points))
	copy(out.Points, l.Points)
	return &out
}

// ClassifiedBoundary pairs a loop with its assigned role
type ClassifiedBoundary struct {
	Role BoundaryRole `json:"role"`
	Loop BoundaryLoop `json:"loop"`
}

// ClassifiedBoundarySet is the engine's sole classified output.
// ExteriorOuter and ExteriorInner may be nil when no qualifying loop exists.
type ClassifiedBoundarySet struct {
	ExteriorOuter *BoundaryLoop  `json:"exteriorOuter,omitempty"`
	ExteriorInner *BoundaryLoop  `json:"exteriorInner,omitempty"`
	InteriorWalls []BoundaryLoop `json:"interiorWalls"`
}

// Loops returns every boundary in the set with its role, outer first,
// inner second, interiors in stored order
func (s *ClassifiedBoundarySet) Loops() []ClassifiedBoundary {
	var out []ClassifiedBoundary
	if s.ExteriorOuter != nil {
		out = append(out, ClassifiedBoundary{Role: RoleExteriorOuter, Loop: *s.ExteriorOuter})
	}
	if s.ExteriorInner != nil {
		out = append(out, ClassifiedBoundary{Role: RoleExteriorInner, Loop: *s.ExteriorInner})
	}
	for _, w := range s.InteriorWalls {
		out = append(out, ClassifiedBoundary{Role: RoleInterior, Loop: w})
	}
	return out
}

// Empty reports whether the set contains no boundaries at all
func (s *ClassifiedBoundarySet) Empty() bool {
	return s.ExteriorOuter == nil && s.ExteriorInner == nil && len(s.InteriorWalls) == 0
}

// Clone returns a deep copy of the set
func (s *ClassifiedBoundarySet) Clone() *ClassifiedBoundarySet {
	if s == nil {
		return nil
	}
	out := &ClassifiedBoundarySet{
		ExteriorOuter: s.ExteriorOuter.Clone(),
		ExteriorInner: s.ExteriorInner.Clone(),
	}
	if s.InteriorWalls != nil {
		out.InteriorWalls = make([]BoundaryLoop, len(s.InteriorWalls))
		for i := range s.InteriorWalls {
			out.InteriorWalls[i] = *s.InteriorWalls[i].Clone()
		}
	}
	return out
}

// DiagnosticNote marks a whole-call outcome in the diagnostics record
type DiagnosticNote string

const (
	// NoteEmptyInput records that the call received zero segments
	NoteEmptyInput DiagnosticNote = "empty_input"
	// NoteInsufficientGeometry records that every candidate loop was rejected
	NoteInsufficientGeometry DiagnosticNote = "insufficient_geometry"
	// NoteGroupingDeadline records that grouping hit its soft budget
	NoteGroupingDeadline DiagnosticNote = "grouping_deadline_exceeded"
)

// RejectedLoop records one loop dropped during validation
type RejectedLoop struct {
	Reason     RejectionReason `json:"reason"`
	PointCount int             `json:"pointCount"`
}

// Diagnostics reports what happened during a single trace call
type Diagnostics struct {
	Degraded       bool             `json:"degraded"`
	RejectedLoops  []RejectedLoop   `json:"rejectedLoops,omitempty"`
	ComponentCount int              `json:"componentCount"`
	LoopCount      int              `json:"loopCount"`
	Notes          []DiagnosticNote `json:"notes,omitempty"`
}

// HasNote reports whether the given note was recorded
func (d *Diagnostics) HasNote(note DiagnosticNote) bool {
	for _, n := range d.Notes {
		if n == note {
			return true
		}
	}
	return false
}

// TraceResult bundles the classified set with its diagnostics
type TraceResult struct {
	Boundaries  ClassifiedBoundarySet `json:"boundaries"`
	Diagnostics Diagnostics           `json:"diagnostics"`
}

// DrawingMetaData carries extractor provenance for a drawing payload
type DrawingMetaData struct {
	Source    string `json:"source,omitempty"`
	Page      int    `json:"page,omitempty"`
	Extractor string `json:"extractor,omitempty"`
	Version   int    `json:"version"`
}

// DrawingDocument is the parsed payload produced by the external vector
// extractor: the flat segment list for one drawing sheet. RegionHints are
// optional role suggestions attached by upstream analysis stages.
type DrawingDocument struct {
	DrawingID   string          `json:"drawingId"`
	Units       string          `json:"units,omitempty"`
	Sheet       *SheetBounds    `json:"sheet,omitempty"`
	MetaData    DrawingMetaData `json:"metaData"`
	Segments    []Segment       `json:"segments"`
	RegionHints []RegionHint    `json:"regionHints,omitempty"`
}

// AffineMatrix for 2D transforms: x' = ax + by + tx, y' = cx + dy + ty
type AffineMatrix struct {
	A  float64 `json:"a"`
	B  float64 `json:"b"`
	Tx float64 `json:"tx"`
	C  float64 `json:"c"`
	D  float64 `json:"d"`
	Ty float64 `json:"ty"`
}

// Identity returns an identity matrix (no transformation)
func Identity() AffineMatrix {
	return AffineMatrix{A: 1, B: 0, Tx: 0, C: 0, D: 1, Ty: 0}
}

// DrawingConfig defines one drawing subscription from the config file
type DrawingConfig struct {
	ID     string  `yaml:"id" json:"id"`
	Topic  string  `yaml:"topic" json:"topic"`
	ApiURL *string `yaml:"apiUrl,omitempty" json:"apiUrl,omitempty"` // Optional extractor API URL for fetching the drawing
}

// MQTTConfig holds MQTT connection settings
type MQTTConfig struct {
	Broker        string `yaml:"broker" json:"broker"`
	PublishPrefix string `yaml:"publishPrefix" json:"publishPrefix"`
	ClientID      string `yaml:"clientId" json:"clientId"`
	Username      string `yaml:"username,omitempty" json:"username,omitempty"`
	Password      string `yaml:"password,omitempty" json:"password,omitempty"`
}

// TraceSettings holds tolerance and budget overrides from the config file.
// Zero values fall back to the package defaults.
type TraceSettings struct {
	SnapTolerance       float64 `yaml:"snapTolerance,omitempty" json:"snapTolerance,omitempty"`
	ConnectionTolerance float64 `yaml:"connectionTolerance,omitempty" json:"connectionTolerance,omitempty"`
	CloseTolerance      float64 `yaml:"closeTolerance,omitempty" json:"closeTolerance,omitempty"`
	DedupTolerance      float64 `yaml:"dedupTolerance,omitempty" json:"dedupTolerance,omitempty"`
	AreaEpsilon         float64 `yaml:"areaEpsilon,omitempty" json:"areaEpsilon,omitempty"`
	BudgetMillis        int     `yaml:"budgetMillis,omitempty" json:"budgetMillis,omitempty"`
}

// ClassifierSettings holds classification threshold overrides
type ClassifierSettings struct {
	NestingSlack        float64 `yaml:"nestingSlack,omitempty" json:"nestingSlack,omitempty"`
	InnerPerimeterRatio float64 `yaml:"innerPerimeterRatio,omitempty" json:"innerPerimeterRatio,omitempty"`
	PreferSheetEdges    bool    `yaml:"preferSheetEdges,omitempty" json:"preferSheetEdges,omitempty"`
	EdgeMarginFraction  float64 `yaml:"edgeMarginFraction,omitempty" json:"edgeMarginFraction,omitempty"`
}

// OffsetSettings holds inward offset configuration
type OffsetSettings struct {
	Distance          float64 `yaml:"distance,omitempty" json:"distance,omitempty"`
	EstimateFromWalls bool    `yaml:"estimateFromWalls,omitempty" json:"estimateFromWalls,omitempty"`
}

// OutputSettings holds export configuration
type OutputSettings struct {
	GridSpacing    float64 `yaml:"gridSpacing,omitempty" json:"gridSpacing,omitempty"`       // Grid line spacing in drawing units (default 100)
	SimplifyExport float64 `yaml:"simplifyExport,omitempty" json:"simplifyExport,omitempty"` // Douglas-Peucker tolerance for GeoJSON export; 0 disables
	DXFScaleMax    float64 `yaml:"dxfScaleMax,omitempty" json:"dxfScaleMax,omitempty"`       // Target extent for DXF scaling (default 1000)
}

// Config represents the full configuration file
type Config struct {
	MQTT       MQTTConfig         `yaml:"mqtt" json:"mqtt"`
	Drawings   []DrawingConfig    `yaml:"drawings" json:"drawings"`
	Trace      TraceSettings      `yaml:"trace,omitempty" json:"trace,omitempty"`
	Classifier ClassifierSettings `yaml:"classifier,omitempty" json:"classifier,omitempty"`
	Offset     OffsetSettings     `yaml:"offset,omitempty" json:"offset,omitempty"`
	Output     OutputSettings     `yaml:"output,omitempty" json:"output,omitempty"`
}

// GetDrawingByID returns the drawing config for the given ID
func (c *Config) GetDrawingByID(id string) *DrawingConfig {
	for i := range c.Drawings {
		if c.Drawings[i].ID == id {
			return &c.Drawings[i]
		}
	}
	return nil
}

// GetDrawingByTopic returns the drawing ID for a given topic
func (c *Config) GetDrawingByTopic(topic string) (string, bool) {
	for _, d := range c.Drawings {
		if d.Topic == topic {
			return d.ID, true
		}
	}
	return "", false
}
