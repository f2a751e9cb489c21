package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kwv/plantrace/trace"
)

// Helper function to create a test drawing document: a square building
// outline drawn with wall-weight strokes on a 200x200pt sheet
func createTestDocument(id string) *trace.DrawingDocument {
	return &trace.DrawingDocument{
		DrawingID: id,
		Units:     "pt",
		Sheet:     &trace.SheetBounds{Width: 200, Height: 200},
		MetaData: trace.DrawingMetaData{
			Extractor: "pdf-vector",
			Version:   1,
		},
		Segments: []trace.Segment{
			{Start: trace.Point{X: 20, Y: 20}, End: trace.Point{X: 180, Y: 20}, Width: 2},
			{Start: trace.Point{X: 180, Y: 20}, End: trace.Point{X: 180, Y: 180}, Width: 2},
			{Start: trace.Point{X: 180, Y: 180}, End: trace.Point{X: 20, Y: 180}, Width: 2},
			{Start: trace.Point{X: 20, Y: 180}, End: trace.Point{X: 20, Y: 20}, Width: 2},
		},
	}
}

// Helper function to save a test document to file
func saveTestDocumentToFile(doc *trace.DrawingDocument, path string) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func TestNewApp(t *testing.T) {
	app := NewApp()
	if app == nil {
		t.Fatal("NewApp returned nil")
		return
	}
	if app.StateTracker == nil {
		t.Error("StateTracker should be initialized")
	}
}

func TestApplyOptions(t *testing.T) {
	app := NewApp()
	opts := AppOptions{
		DataDir:           "/test/data",
		ConfigFile:        "test-config.yaml",
		BoundaryCache:     ".test-cache.json",
		OutputFile:        "test-output.svg",
		OutputFormat:      "svg",
		GridSpacing:       50.0,
		SimplifyTolerance: 1.5,
		HttpPort:          8080,
		MqttMode:          true,
		HttpMode:          false,
	}

	app.ApplyOptions(opts)

	if app.DataDir != "/test/data" {
		t.Errorf("DataDir = %s, want /test/data", app.DataDir)
	}
	if app.ConfigFile != "test-config.yaml" {
		t.Errorf("ConfigFile = %s, want test-config.yaml", app.ConfigFile)
	}
	if app.BoundaryCache != ".test-cache.json" {
		t.Errorf("BoundaryCache = %s, want .test-cache.json", app.BoundaryCache)
	}
	if app.OutputFile != "test-output.svg" {
		t.Errorf("OutputFile = %s, want test-output.svg", app.OutputFile)
	}
	if app.OutputFormat != "svg" {
		t.Errorf("OutputFormat = %s, want svg", app.OutputFormat)
	}
	if app.GridSpacing != 50.0 {
		t.Errorf("GridSpacing = %f, want 50.0", app.GridSpacing)
	}
	if app.SimplifyTolerance != 1.5 {
		t.Errorf("SimplifyTolerance = %f, want 1.5", app.SimplifyTolerance)
	}
	if app.HttpPort != 8080 {
		t.Errorf("HttpPort = %d, want 8080", app.HttpPort)
	}
	if !app.MqttMode {
		t.Error("MqttMode should be true")
	}
	if app.HttpMode {
		t.Error("HttpMode should be false")
	}
}

func TestApplyOptions_AllDefaults(t *testing.T) {
	app := NewApp()
	opts := AppOptions{}

	app.ApplyOptions(opts)

	// Verify all fields are set to their zero values
	if app.DataDir != "" {
		t.Errorf("DataDir = %s, want empty string", app.DataDir)
	}
	if app.HttpPort != 0 {
		t.Errorf("HttpPort = %d, want 0", app.HttpPort)
	}
}

func TestLoadInitialDrawings_EmptyDir(t *testing.T) {
	app := NewApp()
	tmpDir := t.TempDir()

	docs := app.loadInitialDrawings(tmpDir)
	if len(docs) != 0 {
		t.Errorf("Expected 0 drawings, got %d", len(docs))
	}
}

func TestLoadInitialDrawings_WithSampleFiles(t *testing.T) {
	app := NewApp()
	tmpDir := t.TempDir()

	sampleDoc := createTestDocument("floor-1")
	samplePath := filepath.Join(tmpDir, "DrawingExport-floor-1.json")
	if err := saveTestDocumentToFile(sampleDoc, samplePath); err != nil {
		t.Fatalf("Failed to create sample payload file: %v", err)
	}

	docs := app.loadInitialDrawings(tmpDir)
	if len(docs) != 1 {
		t.Errorf("Expected 1 drawing, got %d", len(docs))
	}

	if _, ok := docs["floor-1"]; !ok {
		t.Errorf("Expected drawing 'floor-1' to be loaded, got: %v", getDocKeys(docs))
	}
}

// Helper to get map keys for debugging
func getDocKeys(m map[string]*trace.DrawingDocument) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

func TestLoadInitialDrawings_InvalidJSON(t *testing.T) {
	app := NewApp()
	tmpDir := t.TempDir()

	invalidPath := filepath.Join(tmpDir, "DrawingExport-invalid.json")
	if err := os.WriteFile(invalidPath, []byte("{invalid json"), 0644); err != nil {
		t.Fatalf("Failed to create invalid JSON file: %v", err)
	}

	// Should not panic, should just skip invalid files
	docs := app.loadInitialDrawings(tmpDir)
	if len(docs) != 0 {
		t.Errorf("Expected 0 drawings (invalid JSON should be skipped), got %d", len(docs))
	}
}

func TestLoadInitialDrawings_MultipleFiles(t *testing.T) {
	app := NewApp()
	tmpDir := t.TempDir()

	for _, name := range []string{"floor-1", "floor-2", "site-plan"} {
		doc := createTestDocument(name)
		path := filepath.Join(tmpDir, "DrawingExport-"+name+".json")
		if err := saveTestDocumentToFile(doc, path); err != nil {
			t.Fatalf("Failed to create payload file: %v", err)
		}
	}

	docs := app.loadInitialDrawings(tmpDir)
	if len(docs) != 3 {
		t.Errorf("Expected 3 drawings, got %d", len(docs))
	}

	for _, name := range []string{"floor-1", "floor-2", "site-plan"} {
		if _, ok := docs[name]; !ok {
			t.Errorf("Expected drawing '%s' to be loaded", name)
		}
	}
}

func TestLoadInitialDrawings_IDFromFilename(t *testing.T) {
	app := NewApp()
	tmpDir := t.TempDir()

	// Payload without its own drawingId falls back to the filename stem
	doc := createTestDocument("")
	path := filepath.Join(tmpDir, "DrawingExport-unnamed-sheet.json")
	if err := saveTestDocumentToFile(doc, path); err != nil {
		t.Fatalf("Failed to create payload file: %v", err)
	}

	docs := app.loadInitialDrawings(tmpDir)
	if _, ok := docs["unnamed-sheet"]; !ok {
		t.Errorf("Expected filename-derived key 'unnamed-sheet', got: %v", getDocKeys(docs))
	}
}

func TestParseAndPrint(t *testing.T) {
	app := NewApp()
	tmpDir := t.TempDir()

	sampleDoc := createTestDocument("floor-1")
	samplePath := filepath.Join(tmpDir, "DrawingExport-floor-1.json")
	if err := saveTestDocumentToFile(sampleDoc, samplePath); err != nil {
		t.Fatalf("Failed to create sample payload file: %v", err)
	}

	// Should not panic when parsing valid file
	app.parseAndPrint(samplePath)
}

func TestParseAndPrint_InvalidFile(t *testing.T) {
	app := NewApp()

	// Should not panic when parsing non-existent file
	app.parseAndPrint("/nonexistent/path/file.json")
}

func TestParseAndPrint_WithRegionHints(t *testing.T) {
	app := NewApp()
	tmpDir := t.TempDir()

	sampleDoc := createTestDocument("floor-1")
	sampleDoc.RegionHints = []trace.RegionHint{
		{
			BBox: trace.BBox{MinX: 20, MinY: 20, MaxX: 180, MaxY: 180},
			Role: trace.RoleExteriorOuter,
		},
	}

	samplePath := filepath.Join(tmpDir, "DrawingExport-hints.json")
	if err := saveTestDocumentToFile(sampleDoc, samplePath); err != nil {
		t.Fatalf("Failed to create sample payload file: %v", err)
	}

	// Should not panic
	app.parseAndPrint(samplePath)
}

func TestTraceDocument(t *testing.T) {
	app := NewApp()
	doc := createTestDocument("floor-1")

	result, err := app.traceDocument(doc)
	if err != nil {
		t.Fatalf("traceDocument failed: %v", err)
	}
	if result == nil {
		t.Fatal("expected a trace result")
		return
	}
	if result.Boundaries.ExteriorOuter == nil {
		t.Error("expected the square outline to classify as exterior outer")
	}
	if result.Diagnostics.LoopCount < 1 {
		t.Errorf("expected at least 1 traced loop, got %d", result.Diagnostics.LoopCount)
	}
}

func TestTraceDocument_EstimatesSheet(t *testing.T) {
	app := NewApp()
	doc := createTestDocument("floor-1")
	doc.Sheet = nil

	if _, err := app.traceDocument(doc); err != nil {
		t.Fatalf("traceDocument failed: %v", err)
	}
	if doc.Sheet == nil {
		t.Error("expected sheet bounds to be estimated from segment extents")
	}
}

func TestHandleDrawing(t *testing.T) {
	app := NewApp()
	app.DataDir = t.TempDir()

	doc := createTestDocument("floor-1")
	app.handleDrawing("floor-1", doc, false)

	state := app.StateTracker.GetState("floor-1")
	if state == nil {
		t.Fatal("expected state to be tracked after handleDrawing")
		return
	}
	if state.Result == nil {
		t.Fatal("expected a trace result in tracked state")
		return
	}
	if state.Result.Boundaries.ExteriorOuter == nil {
		t.Error("expected exterior outer boundary in tracked result")
	}
	if app.StateTracker.GetDocument("floor-1") == nil {
		t.Error("expected document to be stored for retrace")
	}
}

func TestHandleDrawing_ConfiguredIDWins(t *testing.T) {
	app := NewApp()
	app.DataDir = t.TempDir()

	// Payload carries a different ID than the subscription it arrived on
	doc := createTestDocument("payload-name")
	app.handleDrawing("floor-east", doc, false)

	if app.StateTracker.GetState("floor-east") == nil {
		t.Error("expected state under the configured drawing ID")
	}
	if app.StateTracker.GetState("payload-name") != nil {
		t.Error("payload-carried ID should not create a separate state entry")
	}
}

func TestHandleRetrace_StoredDocument(t *testing.T) {
	app := NewApp()
	app.DataDir = t.TempDir()

	doc := createTestDocument("floor-1")
	app.handleDrawing("floor-1", doc, false)
	firstTrace := app.StateTracker.GetState("floor-1").TracedAt

	app.handleRetrace("floor-1")

	state := app.StateTracker.GetState("floor-1")
	if state == nil || state.Result == nil {
		t.Fatal("expected retrace to refresh the tracked state")
		return
	}
	if state.TracedAt.Before(firstTrace) {
		t.Error("expected retrace timestamp at or after the first trace")
	}
}

func TestHandleRetrace_UnknownDrawing(t *testing.T) {
	app := NewApp()
	app.DataDir = t.TempDir()

	// No stored payload and no config: must not panic
	app.handleRetrace("never-seen")

	if app.StateTracker.GetState("never-seen") != nil {
		t.Error("retrace of unknown drawing should not create state")
	}
}

func TestExportFormatFromPath(t *testing.T) {
	tests := []struct {
		path     string
		expected string
	}{
		{"boundaries.json", "json"},
		{"boundaries.geojson", "geojson"},
		{"out/boundaries.svg", "svg"},
		{"plan.PNG", "png"},
		{"floor-1.dxf", "dxf"},
		{"no-extension", ""},
		{"archive.tar.gz", ""},
	}

	for _, tt := range tests {
		if got := exportFormatFromPath(tt.path); got != tt.expected {
			t.Errorf("exportFormatFromPath(%q) = %q, want %q", tt.path, got, tt.expected)
		}
	}
}

func TestWriteExport_Formats(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		format   string
		contains string
	}{
		{name: "json", file: "out.json", contains: "\"boundaries\""},
		{name: "geojson", file: "out.geojson", contains: "FeatureCollection"},
		{name: "svg", file: "out.svg", contains: "<svg"},
		{name: "dxf", file: "out.dxf", contains: "EXTERIOR_OUTER"},
		{name: "explicit format overrides extension", file: "out.bin", format: "json", contains: "\"boundaries\""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := NewApp()
			tmpDir := t.TempDir()
			app.OutputFile = filepath.Join(tmpDir, tt.file)
			app.OutputFormat = tt.format

			doc := createTestDocument("floor-1")
			result, err := app.traceDocument(doc)
			if err != nil {
				t.Fatalf("traceDocument failed: %v", err)
			}

			if err := app.writeExport(doc, result); err != nil {
				t.Fatalf("writeExport failed: %v", err)
			}

			data, err := os.ReadFile(app.OutputFile)
			if err != nil {
				t.Fatalf("reading export: %v", err)
			}
			if len(data) == 0 {
				t.Fatal("export file is empty")
			}
			if tt.contains != "" && !strings.Contains(string(data), tt.contains) {
				t.Errorf("expected export to contain %q", tt.contains)
			}
		})
	}
}

func TestWriteExport_PNG(t *testing.T) {
	app := NewApp()
	tmpDir := t.TempDir()
	app.OutputFile = filepath.Join(tmpDir, "out.png")

	doc := createTestDocument("floor-1")
	result, err := app.traceDocument(doc)
	if err != nil {
		t.Fatalf("traceDocument failed: %v", err)
	}

	if err := app.writeExport(doc, result); err != nil {
		t.Fatalf("writeExport failed: %v", err)
	}

	data, err := os.ReadFile(app.OutputFile)
	if err != nil {
		t.Fatalf("reading export: %v", err)
	}
	// PNG magic bytes
	if len(data) < 8 || data[0] != 0x89 || data[1] != 'P' {
		t.Error("expected a PNG file")
	}
}

func TestWriteExport_JSONRoundTrip(t *testing.T) {
	app := NewApp()
	tmpDir := t.TempDir()
	app.OutputFile = filepath.Join(tmpDir, "out.json")

	doc := createTestDocument("floor-1")
	result, err := app.traceDocument(doc)
	if err != nil {
		t.Fatalf("traceDocument failed: %v", err)
	}
	if err := app.writeExport(doc, result); err != nil {
		t.Fatalf("writeExport failed: %v", err)
	}

	data, err := os.ReadFile(app.OutputFile)
	if err != nil {
		t.Fatalf("reading export: %v", err)
	}

	var payload struct {
		DrawingID  string                      `json:"drawingId"`
		Boundaries trace.ClassifiedBoundarySet `json:"boundaries"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		t.Fatalf("export is not valid JSON: %v", err)
	}
	if payload.DrawingID != "floor-1" {
		t.Errorf("drawingId = %s, want floor-1", payload.DrawingID)
	}
	if payload.Boundaries.ExteriorOuter == nil {
		t.Error("expected exterior outer boundary in JSON export")
	}
}

func TestWriteExport_UnknownFormat(t *testing.T) {
	app := NewApp()
	app.OutputFile = "out.xyz"
	app.OutputFormat = "xyz"

	doc := createTestDocument("floor-1")
	result, err := app.traceDocument(doc)
	if err != nil {
		t.Fatalf("traceDocument failed: %v", err)
	}

	if err := app.writeExport(doc, result); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestGridSpacingResolution(t *testing.T) {
	app := NewApp()
	app.GridSpacing = 100

	if got := app.gridSpacing(); got != 100 {
		t.Errorf("flag-only gridSpacing = %f, want 100", got)
	}

	app.Config = &trace.Config{}
	app.Config.Output.GridSpacing = 250
	if got := app.gridSpacing(); got != 250 {
		t.Errorf("config gridSpacing = %f, want 250", got)
	}
}

func TestLoadInitialDrawings_GlobError(t *testing.T) {
	app := NewApp()

	docs := app.loadInitialDrawings("/\x00invalid")

	// Should return empty map without panicking
	if len(docs) != 0 {
		t.Errorf("Expected 0 drawings for invalid directory, got %d", len(docs))
	}
}

// Test that applies options with various combinations
func TestApplyOptions_Combinations(t *testing.T) {
	tests := []struct {
		name string
		opts AppOptions
	}{
		{
			name: "mqtt only",
			opts: AppOptions{MqttMode: true},
		},
		{
			name: "http only",
			opts: AppOptions{HttpMode: true},
		},
		{
			name: "both modes",
			opts: AppOptions{MqttMode: true, HttpMode: true},
		},
		{
			name: "export tuning",
			opts: AppOptions{OutputFormat: "geojson", SimplifyTolerance: 2.0, GridSpacing: 50},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := NewApp()
			app.ApplyOptions(tt.opts)

			// Just verify it doesn't panic and fields are set
			if app == nil {
				t.Error("App should not be nil after applying options")
			}
		})
	}
}

// Edge cases with mixed payload files in the data directory
func TestLoadInitialDrawings_EdgeCases(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(string) error
		expected int
	}{
		{
			name: "payload ID overrides filename",
			setup: func(dir string) error {
				doc := createTestDocument("real-id")
				return saveTestDocumentToFile(doc, filepath.Join(dir, "DrawingExport-other-name.json"))
			},
			expected: 1,
		},
		{
			name: "mixed valid and invalid files",
			setup: func(dir string) error {
				doc := createTestDocument("valid")
				if err := saveTestDocumentToFile(doc, filepath.Join(dir, "DrawingExport-valid.json")); err != nil {
					return err
				}
				return os.WriteFile(filepath.Join(dir, "DrawingExport-invalid.json"), []byte("bad"), 0644)
			},
			expected: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := NewApp()
			tmpDir := t.TempDir()

			if tt.setup != nil {
				if err := tt.setup(tmpDir); err != nil {
					t.Fatalf("Setup failed: %v", err)
				}
			}

			docs := app.loadInitialDrawings(tmpDir)
			if len(docs) != tt.expected {
				t.Errorf("Expected %d drawings, got %d", tt.expected, len(docs))
			}
		})
	}
}
