package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kwv/plantrace/trace"
)

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

// sampleResult returns a traced square boundary: one exterior outer loop with
// a synthesized inner ring, the smallest result every export format accepts.
func sampleResult() *trace.TraceResult {
	outer := []trace.Point{
		{X: 20, Y: 20}, {X: 180, Y: 20}, {X: 180, Y: 180}, {X: 20, Y: 180}, {X: 20, Y: 20},
	}
	inner := []trace.Point{
		{X: 26, Y: 26}, {X: 174, Y: 26}, {X: 174, Y: 174}, {X: 26, Y: 174}, {X: 26, Y: 26},
	}
	return &trace.TraceResult{
		Boundaries: trace.ClassifiedBoundarySet{
			ExteriorOuter: &trace.BoundaryLoop{
				Points:    outer,
				Perimeter: 640,
				Area:      25600,
				BBox:      trace.ComputeBBox(outer),
			},
			ExteriorInner: &trace.BoundaryLoop{
				Points:      inner,
				Perimeter:   592,
				Area:        21904,
				BBox:        trace.ComputeBBox(inner),
				Synthesized: true,
			},
		},
		Diagnostics: trace.Diagnostics{
			ComponentCount: 1,
			LoopCount:      1,
		},
	}
}

// populatedTracker returns a StateTracker that already contains one traced drawing.
func populatedTracker() *trace.StateTracker {
	st := trace.NewStateTracker()
	st.UpdateResult(createTestDocument("floor-1"), sampleResult())
	return st
}

// emptyTracker returns a StateTracker with no results.
func emptyTracker() *trace.StateTracker {
	return trace.NewStateTracker()
}

// ---------------------------------------------------------------------------
// newHTTPServer -- /health
// ---------------------------------------------------------------------------

func TestHealth_NoResults(t *testing.T) {
	handler := newHTTPServer(emptyTracker(), nil)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("/health status = %d, want %d", w.Code, http.StatusOK)
	}

	var body struct {
		Status     string    `json:"status"`
		Timestamp  time.Time `json:"timestamp"`
		HasResults bool      `json:"hasResults"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode /health response: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("status = %q, want %q", body.Status, "ok")
	}
	if body.HasResults {
		t.Error("hasResults = true, want false when nothing has been traced")
	}
	if body.Timestamp.IsZero() {
		t.Error("timestamp is zero, want current time")
	}
}

func TestHealth_WithResults(t *testing.T) {
	handler := newHTTPServer(populatedTracker(), nil)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("/health status = %d, want %d", w.Code, http.StatusOK)
	}

	var body struct {
		HasResults bool `json:"hasResults"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode /health response: %v", err)
	}
	if !body.HasResults {
		t.Error("hasResults = false, want true after a drawing is traced")
	}
}

// ---------------------------------------------------------------------------
// newHTTPServer -- /drawings listing
// ---------------------------------------------------------------------------

func TestDrawings_Empty(t *testing.T) {
	handler := newHTTPServer(emptyTracker(), nil)
	req := httptest.NewRequest(http.MethodGet, "/drawings", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("/drawings status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want %q", ct, "application/json")
	}

	var body struct {
		Drawings []drawingInfo `json:"drawings"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode /drawings response: %v", err)
	}
	if len(body.Drawings) != 0 {
		t.Errorf("drawings = %d entries, want 0", len(body.Drawings))
	}
}

func TestDrawings_Populated(t *testing.T) {
	handler := newHTTPServer(populatedTracker(), nil)
	req := httptest.NewRequest(http.MethodGet, "/drawings", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("/drawings status = %d, want %d", w.Code, http.StatusOK)
	}
	if cc := w.Header().Get("Cache-Control"); cc != "no-cache" {
		t.Errorf("Cache-Control = %q, want %q", cc, "no-cache")
	}

	var body struct {
		Drawings []drawingInfo `json:"drawings"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode /drawings response: %v", err)
	}
	if len(body.Drawings) != 1 {
		t.Fatalf("drawings = %d entries, want 1", len(body.Drawings))
	}

	d := body.Drawings[0]
	if d.DrawingID != "floor-1" {
		t.Errorf("drawingId = %q, want %q", d.DrawingID, "floor-1")
	}
	if !d.HasOuter {
		t.Error("hasOuter = false, want true")
	}
	if !d.HasInner {
		t.Error("hasInner = false, want true")
	}
	if d.InteriorCount != 0 {
		t.Errorf("interiorCount = %d, want 0", d.InteriorCount)
	}
	if d.SegmentCount != 4 {
		t.Errorf("segmentCount = %d, want 4", d.SegmentCount)
	}
	if d.TracedAt.IsZero() {
		t.Error("tracedAt is zero, want trace timestamp")
	}
}

func TestDrawings_SortedByID(t *testing.T) {
	st := emptyTracker()
	for _, id := range []string{"site-plan", "floor-2", "floor-1"} {
		st.UpdateResult(createTestDocument(id), sampleResult())
	}
	handler := newHTTPServer(st, nil)
	req := httptest.NewRequest(http.MethodGet, "/drawings", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	var body struct {
		Drawings []drawingInfo `json:"drawings"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode /drawings response: %v", err)
	}
	want := []string{"floor-1", "floor-2", "site-plan"}
	if len(body.Drawings) != len(want) {
		t.Fatalf("drawings = %d entries, want %d", len(body.Drawings), len(want))
	}
	for i, id := range want {
		if body.Drawings[i].DrawingID != id {
			t.Errorf("drawings[%d] = %q, want %q", i, body.Drawings[i].DrawingID, id)
		}
	}
}

// ---------------------------------------------------------------------------
// newHTTPServer -- export endpoints for an unknown drawing (404 paths)
// ---------------------------------------------------------------------------

func TestExports_UnknownDrawing_404(t *testing.T) {
	handler := newHTTPServer(populatedTracker(), nil)

	endpoints := []string{
		"/drawings/nope/boundaries.json",
		"/drawings/nope/boundaries.geojson",
		"/drawings/nope/boundaries.svg",
		"/drawings/nope/boundaries.png",
		"/drawings/nope/boundaries.dxf",
	}
	for _, ep := range endpoints {
		t.Run(ep, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, ep, nil)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != http.StatusNotFound {
				t.Errorf("%s status = %d, want %d", ep, w.Code, http.StatusNotFound)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// newHTTPServer -- boundaries.json
// ---------------------------------------------------------------------------

func TestBoundariesJSON(t *testing.T) {
	handler := newHTTPServer(populatedTracker(), nil)
	req := httptest.NewRequest(http.MethodGet, "/drawings/floor-1/boundaries.json", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("boundaries.json status = %d, want %d, body=%q", w.Code, http.StatusOK, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want %q", ct, "application/json")
	}
	if cc := w.Header().Get("Cache-Control"); cc != "no-cache" {
		t.Errorf("Cache-Control = %q, want %q", cc, "no-cache")
	}

	var state trace.DrawingState
	if err := json.NewDecoder(w.Body).Decode(&state); err != nil {
		t.Fatalf("failed to decode boundaries.json: %v", err)
	}
	if state.DrawingID != "floor-1" {
		t.Errorf("drawingId = %q, want %q", state.DrawingID, "floor-1")
	}
	if state.Result == nil {
		t.Fatal("result is nil")
	}
	if state.Result.Boundaries.ExteriorOuter == nil {
		t.Error("exteriorOuter is nil, want traced loop")
	}
	if state.Result.Boundaries.ExteriorInner == nil || !state.Result.Boundaries.ExteriorInner.Synthesized {
		t.Error("exteriorInner missing or not marked synthesized")
	}
}

// ---------------------------------------------------------------------------
// newHTTPServer -- boundaries.geojson
// ---------------------------------------------------------------------------

func TestBoundariesGeoJSON(t *testing.T) {
	handler := newHTTPServer(populatedTracker(), nil)
	req := httptest.NewRequest(http.MethodGet, "/drawings/floor-1/boundaries.geojson", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("boundaries.geojson status = %d, want %d, body=%q", w.Code, http.StatusOK, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/geo+json" {
		t.Errorf("Content-Type = %q, want %q", ct, "application/geo+json")
	}

	body := w.Body.String()
	if !strings.Contains(body, "FeatureCollection") {
		t.Error("response does not contain a FeatureCollection")
	}
	if !strings.Contains(body, "exterior_outer") {
		t.Error("response does not contain the exterior_outer role")
	}
}

// ---------------------------------------------------------------------------
// newHTTPServer -- boundaries.svg / boundaries.png
// ---------------------------------------------------------------------------

func TestBoundariesSVG(t *testing.T) {
	handler := newHTTPServer(populatedTracker(), nil)
	req := httptest.NewRequest(http.MethodGet, "/drawings/floor-1/boundaries.svg", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("boundaries.svg status = %d, want %d, body=%q", w.Code, http.StatusOK, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/svg+xml" {
		t.Errorf("Content-Type = %q, want %q", ct, "image/svg+xml")
	}
	if !strings.Contains(w.Body.String(), "<svg") {
		t.Error("response body does not look like SVG")
	}
}

func TestBoundariesPNG(t *testing.T) {
	handler := newHTTPServer(populatedTracker(), nil)
	req := httptest.NewRequest(http.MethodGet, "/drawings/floor-1/boundaries.png", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("boundaries.png status = %d, want %d, body=%q", w.Code, http.StatusOK, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q, want %q", ct, "image/png")
	}
	data := w.Body.Bytes()
	if len(data) < 8 || data[0] != 0x89 || data[1] != 'P' || data[2] != 'N' || data[3] != 'G' {
		t.Error("response body does not start with the PNG signature")
	}
}

func TestBoundariesSVG_WithGridSpacing(t *testing.T) {
	cfg := &trace.Config{}
	cfg.Output.GridSpacing = 250
	handler := newHTTPServer(populatedTracker(), cfg)
	req := httptest.NewRequest(http.MethodGet, "/drawings/floor-1/boundaries.svg", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("boundaries.svg with GridSpacing status = %d, want %d, body=%q", w.Code, http.StatusOK, w.Body.String())
	}
}

// ---------------------------------------------------------------------------
// newHTTPServer -- boundaries.dxf
// ---------------------------------------------------------------------------

func TestBoundariesDXF(t *testing.T) {
	handler := newHTTPServer(populatedTracker(), nil)
	req := httptest.NewRequest(http.MethodGet, "/drawings/floor-1/boundaries.dxf", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("boundaries.dxf status = %d, want %d, body=%q", w.Code, http.StatusOK, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/dxf" {
		t.Errorf("Content-Type = %q, want %q", ct, "application/dxf")
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, ".dxf") {
		t.Errorf("Content-Disposition = %q, want a .dxf attachment", cd)
	}

	body := w.Body.String()
	if !strings.Contains(body, "EXTERIOR_OUTER") {
		t.Error("DXF output does not contain the EXTERIOR_OUTER layer")
	}
	if !strings.Contains(body, "POLYLINE") {
		t.Error("DXF output does not contain POLYLINE entities")
	}
	if !strings.Contains(body, "SEQEND") {
		t.Error("DXF output does not terminate polylines with SEQEND")
	}
}

// ---------------------------------------------------------------------------
// newHTTPServer -- render endpoints with no drawable content (503 paths)
// ---------------------------------------------------------------------------

func TestRenderEndpoints_NoDrawableContent_503(t *testing.T) {
	// A drawing whose result is empty and whose document carries no segments
	// has nothing to render; svg/png must refuse, json must not.
	st := emptyTracker()
	st.UpdateResult(&trace.DrawingDocument{DrawingID: "blank-sheet", Units: "pt"}, &trace.TraceResult{})
	handler := newHTTPServer(st, nil)

	for _, ep := range []string{
		"/drawings/blank-sheet/boundaries.svg",
		"/drawings/blank-sheet/boundaries.png",
	} {
		t.Run(ep, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, ep, nil)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != http.StatusServiceUnavailable {
				t.Errorf("%s status = %d, want %d", ep, w.Code, http.StatusServiceUnavailable)
			}
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/drawings/blank-sheet/boundaries.json", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("boundaries.json for empty result: status = %d, want %d", w.Code, http.StatusOK)
	}
}

// ---------------------------------------------------------------------------
// newHTTPServer -- index page
// ---------------------------------------------------------------------------

func TestIndex_Populated(t *testing.T) {
	handler := newHTTPServer(populatedTracker(), nil)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("/ status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q, want text/html", ct)
	}

	body := w.Body.String()
	if !strings.Contains(body, "floor-1") {
		t.Error("index does not list the traced drawing")
	}
	for _, ext := range []string{"boundaries.json", "boundaries.geojson", "boundaries.svg", "boundaries.png", "boundaries.dxf"} {
		if !strings.Contains(body, ext) {
			t.Errorf("index does not link %s", ext)
		}
	}
}

func TestIndex_Empty(t *testing.T) {
	handler := newHTTPServer(emptyTracker(), nil)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("/ status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), "No drawings traced yet") {
		t.Error("empty index does not show the placeholder message")
	}
}

func TestIndex_UnknownPath_404(t *testing.T) {
	handler := newHTTPServer(emptyTracker(), nil)
	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("/nope status = %d, want %d", w.Code, http.StatusNotFound)
	}
}
