package main

import (
	"encoding/json"
	"fmt"
	"html"
	"log"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/kwv/plantrace/trace"
)

// drawingInfo is one row in the /drawings index
type drawingInfo struct {
	DrawingID     string    `json:"drawingId"`
	Units         string    `json:"units,omitempty"`
	SegmentCount  int       `json:"segmentCount"`
	TracedAt      time.Time `json:"tracedAt"`
	HasOuter      bool      `json:"hasOuter"`
	HasInner      bool      `json:"hasInner"`
	InteriorCount int       `json:"interiorCount"`
	Degraded      bool      `json:"degraded,omitempty"`
}

// newHTTPServer creates an HTTP server with all endpoints
func newHTTPServer(stateTracker *trace.StateTracker, config *trace.Config) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		log.Printf("[HTTP] /health request from %s", r.RemoteAddr)
		w.Header().Set("Content-Type", "application/json")
		status := struct {
			Status     string    `json:"status"`
			Timestamp  time.Time `json:"timestamp"`
			HasResults bool      `json:"hasResults"`
		}{
			Status:     "ok",
			Timestamp:  time.Now(),
			HasResults: stateTracker.HasResults(),
		}
		if err := json.NewEncoder(w).Encode(status); err != nil {
			log.Printf("Error encoding health status: %v", err)
		}
	})

	// Traced drawing index endpoint
	mux.HandleFunc("/drawings", func(w http.ResponseWriter, r *http.Request) {
		states := stateTracker.GetStates()
		infos := make([]drawingInfo, 0, len(states))
		for _, state := range states {
			infos = append(infos, summarizeState(state))
		}
		sort.Slice(infos, func(i, j int) bool { return infos[i].DrawingID < infos[j].DrawingID })

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache")
		if err := json.NewEncoder(w).Encode(struct {
			Drawings []drawingInfo `json:"drawings"`
		}{infos}); err != nil {
			log.Printf("Error encoding drawing index: %v", err)
		}
	})

	// Classified boundaries with diagnostics
	mux.HandleFunc("/drawings/{id}/boundaries.json", func(w http.ResponseWriter, r *http.Request) {
		state := lookupState(stateTracker, w, r)
		if state == nil {
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache")
		if err := json.NewEncoder(w).Encode(state); err != nil {
			log.Printf("Error encoding boundaries JSON: %v", err)
		}
	})

	// GeoJSON FeatureCollection endpoint
	mux.HandleFunc("/drawings/{id}/boundaries.geojson", func(w http.ResponseWriter, r *http.Request) {
		state := lookupState(stateTracker, w, r)
		if state == nil {
			return
		}

		simplify := 0.0
		if config != nil {
			simplify = config.Output.SimplifyExport
		}
		fc := trace.BoundariesToFeatureCollection(state.Result.Boundaries, state.DrawingID, simplify)

		w.Header().Set("Content-Type", "application/geo+json")
		w.Header().Set("Cache-Control", "no-cache")
		if err := json.NewEncoder(w).Encode(fc); err != nil {
			log.Printf("Error encoding boundaries GeoJSON: %v", err)
		}
	})

	// Vector SVG endpoint
	mux.HandleFunc("/drawings/{id}/boundaries.svg", func(w http.ResponseWriter, r *http.Request) {
		state := lookupState(stateTracker, w, r)
		if state == nil {
			return
		}
		if !hasDrawableContent(stateTracker, state) {
			log.Printf("Warning: drawing %s traced but has no drawable content; endpoint=%s", state.DrawingID, r.URL.Path)
			http.Error(w, "No drawable boundary content", http.StatusServiceUnavailable)
			return
		}

		renderer := boundaryRenderer(stateTracker, state, config)

		w.Header().Set("Content-Type", "image/svg+xml")
		w.Header().Set("Cache-Control", "no-cache")
		if err := renderer.RenderToSVG(w); err != nil {
			log.Printf("Error encoding boundaries SVG: %v", err)
		}
	})

	// Raster PNG endpoint
	mux.HandleFunc("/drawings/{id}/boundaries.png", func(w http.ResponseWriter, r *http.Request) {
		state := lookupState(stateTracker, w, r)
		if state == nil {
			return
		}
		if !hasDrawableContent(stateTracker, state) {
			log.Printf("Warning: drawing %s traced but has no drawable content; endpoint=%s", state.DrawingID, r.URL.Path)
			http.Error(w, "No drawable boundary content", http.StatusServiceUnavailable)
			return
		}

		renderer := boundaryRenderer(stateTracker, state, config)

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-cache")
		if err := renderer.RenderToPNG(w); err != nil {
			log.Printf("Error encoding boundaries PNG: %v", err)
		}
	})

	// CAD export endpoint
	mux.HandleFunc("/drawings/{id}/boundaries.dxf", func(w http.ResponseWriter, r *http.Request) {
		state := lookupState(stateTracker, w, r)
		if state == nil {
			return
		}

		targetMax := 0.0
		if config != nil {
			targetMax = config.Output.DXFScaleMax
		}

		w.Header().Set("Content-Type", "application/dxf")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", state.DrawingID+".dxf"))
		w.Header().Set("Cache-Control", "no-cache")
		if err := trace.WriteDXF(w, state.Result.Boundaries, state.Sheet, targetMax); err != nil {
			log.Printf("Error encoding boundaries DXF: %v", err)
		}
	})

	// Default route serves an HTML index of traced drawings
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}

		states := stateTracker.GetStates()
		ids := make([]string, 0, len(states))
		for id := range states {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		_, _ = fmt.Fprint(w, `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>plantrace</title>
<style>
*{margin:0;padding:0;box-sizing:border-box}
body{background:#1a1a1a;color:#ddd;font-family:monospace;padding:2em}
h1{margin-bottom:1em}
table{border-collapse:collapse}
td,th{padding:.4em 1em;border-bottom:1px solid #333;text-align:left}
a{color:#8cf;text-decoration:none}
a:hover{text-decoration:underline}
</style>
</head>
<body>
<h1>plantrace</h1>
`)
		if len(ids) == 0 {
			_, _ = fmt.Fprint(w, "<p>No drawings traced yet.</p>\n")
		} else {
			_, _ = fmt.Fprint(w, "<table>\n<tr><th>Drawing</th><th>Segments</th><th>Boundaries</th><th>Exports</th></tr>\n")
			for _, id := range ids {
				info := summarizeState(states[id])
				href := "/drawings/" + url.PathEscape(id) + "/boundaries"
				_, _ = fmt.Fprintf(w, "<tr><td>%s</td><td>%d</td><td>outer=%v inner=%v interior=%d</td>"+
					"<td><a href=%q>svg</a> <a href=%q>png</a> <a href=%q>json</a> <a href=%q>geojson</a> <a href=%q>dxf</a></td></tr>\n",
					html.EscapeString(id), info.SegmentCount, info.HasOuter, info.HasInner, info.InteriorCount,
					href+".svg", href+".png", href+".json", href+".geojson", href+".dxf")
			}
			_, _ = fmt.Fprint(w, "</table>\n")
		}
		_, _ = fmt.Fprint(w, "</body>\n</html>\n")
	})

	// Wrap mux with logging middleware
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Printf("[HTTP] %s %s from %s", r.Method, r.URL.Path, r.RemoteAddr)
		mux.ServeHTTP(w, r)
	})
}

// lookupState fetches the traced state for the path's drawing ID, writing a
// 404 when the drawing is unknown or not yet traced
func lookupState(stateTracker *trace.StateTracker, w http.ResponseWriter, r *http.Request) *trace.DrawingState {
	id := r.PathValue("id")
	state := stateTracker.GetState(id)
	if state == nil || state.Result == nil {
		http.Error(w, "Drawing not traced", http.StatusNotFound)
		return nil
	}
	return state
}

// hasDrawableContent reports whether a render of the state would produce a
// non-empty image: either classified boundaries or stored source segments
func hasDrawableContent(stateTracker *trace.StateTracker, state *trace.DrawingState) bool {
	if !state.Result.Boundaries.Empty() {
		return true
	}
	doc := stateTracker.GetDocument(state.DrawingID)
	return doc != nil && len(doc.Segments) > 0
}

// boundaryRenderer builds a vector renderer for a drawing state with the
// stored source segments drawn underneath and config export settings applied
func boundaryRenderer(stateTracker *trace.StateTracker, state *trace.DrawingState, config *trace.Config) *trace.VectorRenderer {
	renderer := trace.NewVectorRenderer(&state.Result.Boundaries, state.Sheet)
	if doc := stateTracker.GetDocument(state.DrawingID); doc != nil {
		renderer.Segments = doc.Segments
	}
	if config != nil && config.Output.GridSpacing > 0 {
		renderer.GridSpacing = config.Output.GridSpacing
	}
	return renderer
}

// summarizeState condenses a drawing state into an index row
func summarizeState(state *trace.DrawingState) drawingInfo {
	info := drawingInfo{
		DrawingID:    state.DrawingID,
		Units:        state.Units,
		SegmentCount: state.SegmentCount,
		TracedAt:     state.TracedAt,
	}
	if state.Result != nil {
		b := state.Result.Boundaries
		info.HasOuter = b.ExteriorOuter != nil
		info.HasInner = b.ExteriorInner != nil
		info.InteriorCount = len(b.InteriorWalls)
		info.Degraded = state.Result.Diagnostics.Degraded
	}
	return info
}
