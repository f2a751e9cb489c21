package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/kwv/plantrace/trace"
)

// App encapsulates the application state and dependencies
type App struct {
	Config       *trace.Config
	StateTracker *trace.StateTracker
	MQTTClient   *trace.MQTTClient
	Publisher    *trace.Publisher

	// CLI Flags (effectively dependencies)
	DataDir           string
	ConfigFile        string
	BoundaryCache     string
	OutputFile        string
	OutputFormat      string
	GridSpacing       float64
	SimplifyTolerance float64
	HttpPort          int
	MqttMode          bool
	HttpMode          bool
}

// NewApp creates a new App instance
func NewApp() *App {
	return &App{
		StateTracker: trace.NewStateTracker(),
	}
}

// ApplyOptions applies CLI options to the App instance
func (a *App) ApplyOptions(opts AppOptions) {
	a.DataDir = opts.DataDir
	a.ConfigFile = opts.ConfigFile
	a.BoundaryCache = opts.BoundaryCache
	a.OutputFile = opts.OutputFile
	a.OutputFormat = opts.OutputFormat
	a.GridSpacing = opts.GridSpacing
	a.SimplifyTolerance = opts.SimplifyTolerance
	a.HttpPort = opts.HttpPort
	a.MqttMode = opts.MqttMode
	a.HttpMode = opts.HttpMode
}

// RunParseOnly finds and parses all archived drawing payloads
func (a *App) RunParseOnly() {
	pattern := filepath.Join(a.DataDir, "DrawingExport-*.json")
	files, err := filepath.Glob(pattern)
	if err != nil {
		log.Fatalf("Error finding payload files: %v", err)
	}

	if len(files) == 0 {
		// Try current directory
		files, _ = filepath.Glob("DrawingExport-*.json")
	}

	if len(files) == 0 {
		log.Fatal("No DrawingExport-*.json files found")
	}

	fmt.Printf("Found %d drawing payload(s)\n\n", len(files))

	for _, file := range files {
		a.parseAndPrint(file)
	}
}

func (a *App) parseAndPrint(path string) {
	// Extract drawing name from filename
	base := filepath.Base(path)
	name := strings.TrimSuffix(strings.TrimPrefix(base, "DrawingExport-"), ".json")

	fmt.Printf("=== %s ===\n", name)
	fmt.Printf("File: %s\n", path)

	doc, err := trace.DecodeDrawingFile(path)
	if err != nil {
		fmt.Printf("ERROR: %v\n\n", err)
		return
	}

	if doc.DrawingID != "" {
		fmt.Printf("Drawing ID: %s\n", doc.DrawingID)
	}
	if doc.Sheet != nil {
		fmt.Printf("Sheet: %.0fx%.0f %s\n", doc.Sheet.Width, doc.Sheet.Height, doc.Units)
	} else {
		fmt.Println("Sheet: (not supplied)")
	}
	if doc.MetaData.Extractor != "" {
		fmt.Printf("Extractor: %s v%d\n", doc.MetaData.Extractor, doc.MetaData.Version)
	}

	walls := trace.WallCandidates(doc, 0)
	fmt.Printf("Segments: %d (%d wall candidates)\n", len(doc.Segments), len(walls))
	if len(doc.RegionHints) > 0 {
		fmt.Printf("Region Hints: %d\n", len(doc.RegionHints))
	}
	fmt.Printf("Traceable: %v\n", trace.HasTraceableSegments(doc))
	fmt.Println()
}

// RunTraceFile traces a single drawing payload file and writes the export
func (a *App) RunTraceFile(path string) {
	a.loadOptionalConfig()

	doc, err := trace.DecodeDrawingFile(path)
	if err != nil {
		log.Fatalf("Error reading drawing payload %s: %v", path, err)
	}
	fmt.Println(trace.Summarize(doc))

	result, err := a.traceDocument(doc)
	if err != nil {
		log.Fatalf("Error tracing drawing: %v", err)
	}
	a.printResult(result)

	if err := a.writeExport(doc, result); err != nil {
		log.Fatalf("Error writing output: %v", err)
	}
	fmt.Println("Done!")
}

// RunImportRaster vectorizes a scanned plan image, traces the result, and
// writes the export
func (a *App) RunImportRaster(path string) {
	a.loadOptionalConfig()

	doc, err := trace.ImportRasterFile(path, trace.DefaultRasterImportOptions())
	if err != nil {
		log.Fatalf("Error importing raster %s: %v", path, err)
	}
	fmt.Printf("Vectorized %s: %d segments\n", filepath.Base(path), len(doc.Segments))

	result, err := a.traceDocument(doc)
	if err != nil {
		log.Fatalf("Error tracing drawing: %v", err)
	}
	a.printResult(result)

	if err := a.writeExport(doc, result); err != nil {
		log.Fatalf("Error writing output: %v", err)
	}
	fmt.Println("Done!")
}

// RunFetch pulls a drawing payload from an extractor API, traces it, and
// writes the export
func (a *App) RunFetch(apiURL string) {
	a.loadOptionalConfig()

	fmt.Printf("Fetching drawing from %s...\n", apiURL)
	doc, err := trace.FetchDrawingFromAPI(apiURL)
	if err != nil {
		log.Fatalf("Error fetching drawing: %v", err)
	}
	fmt.Println(trace.Summarize(doc))

	result, err := a.traceDocument(doc)
	if err != nil {
		log.Fatalf("Error tracing drawing: %v", err)
	}
	a.printResult(result)

	if err := a.writeExport(doc, result); err != nil {
		log.Fatalf("Error writing output: %v", err)
	}
	fmt.Println("Done!")
}

// loadOptionalConfig loads config.yaml when present. One-shot modes run fine
// on package defaults, so a missing or invalid file is not fatal.
func (a *App) loadOptionalConfig() {
	if a.Config != nil {
		return
	}
	if _, err := os.Stat(a.ConfigFile); err != nil {
		return
	}
	config, err := trace.LoadConfig(a.ConfigFile)
	if err != nil {
		log.Printf("Warning: Failed to load config file %s: %v", a.ConfigFile, err)
		return
	}
	a.Config = config
	log.Printf("Loaded config from %s", a.ConfigFile)
}

// traceDocument runs the boundary pipeline over a decoded drawing. Sheet
// bounds are estimated from the segment extents when the payload carries
// none, so classification and exports always have a page frame to work with.
func (a *App) traceDocument(doc *trace.DrawingDocument) (*trace.TraceResult, error) {
	trace.NormalizeToPoints(doc)

	opts := trace.DefaultOptions()
	if a.Config != nil {
		opts = trace.BuildTraceOptions(a.Config)
	}

	if doc.Sheet != nil {
		opts.Sheet = doc.Sheet
	} else if sheet, ok := trace.EstimateSheetBounds(doc.Segments); ok {
		doc.Sheet = &sheet
		opts.Sheet = &sheet
	}

	walls := trace.WallCandidates(doc, 0)
	result, err := trace.Trace(walls, opts)
	if err != nil {
		return nil, err
	}

	if len(doc.RegionHints) > 0 {
		result.Boundaries = trace.ApplyRegionHints(result.Boundaries, doc.RegionHints)
	}
	return result, nil
}

// printResult reports the classified boundaries on the console
func (a *App) printResult(result *trace.TraceResult) {
	b := result.Boundaries
	if b.ExteriorOuter != nil {
		fmt.Printf("Exterior outer: %d points, perimeter %.1f, area %.1f\n",
			b.ExteriorOuter.PointCount(), b.ExteriorOuter.Perimeter, b.ExteriorOuter.Area)
	} else {
		fmt.Println("Exterior outer: not found")
	}
	if b.ExteriorInner != nil {
		origin := "traced"
		if b.ExteriorInner.Synthesized {
			origin = "synthesized by inward offset"
		}
		fmt.Printf("Exterior inner: %d points, perimeter %.1f (%s)\n",
			b.ExteriorInner.PointCount(), b.ExteriorInner.Perimeter, origin)
	} else {
		fmt.Println("Exterior inner: not found")
	}
	fmt.Printf("Interior walls: %d\n", len(b.InteriorWalls))

	d := result.Diagnostics
	fmt.Printf("Components: %d, loops: %d, rejected: %d\n",
		d.ComponentCount, d.LoopCount, len(d.RejectedLoops))
	for _, rej := range d.RejectedLoops {
		fmt.Printf("  rejected: %s (%d points)\n", rej.Reason, rej.PointCount)
	}
	if d.Degraded {
		fmt.Println("Warning: grouping hit its time budget; results may be partial")
	}
	for _, note := range d.Notes {
		fmt.Printf("Note: %s\n", note)
	}
}

// exportFormatFromPath maps an output file extension to an export format
func exportFormatFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return "json"
	case ".geojson":
		return "geojson"
	case ".svg":
		return "svg"
	case ".png":
		return "png"
	case ".dxf":
		return "dxf"
	}
	return ""
}

// writeExport writes the trace result to the configured output file in the
// configured (or extension-derived) format
func (a *App) writeExport(doc *trace.DrawingDocument, result *trace.TraceResult) error {
	format := a.OutputFormat
	if format == "" {
		format = exportFormatFromPath(a.OutputFile)
	}
	if format == "" {
		format = "svg"
	}

	switch format {
	case "json":
		payload := struct {
			DrawingID   string                      `json:"drawingId"`
			Units       string                      `json:"units,omitempty"`
			Sheet       *trace.SheetBounds          `json:"sheet,omitempty"`
			Boundaries  trace.ClassifiedBoundarySet `json:"boundaries"`
			Diagnostics trace.Diagnostics           `json:"diagnostics"`
		}{doc.DrawingID, doc.Units, doc.Sheet, result.Boundaries, result.Diagnostics}
		data, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling boundaries: %w", err)
		}
		if err := os.WriteFile(a.OutputFile, data, 0644); err != nil {
			return err
		}
		fmt.Printf("Created JSON: %s\n", a.OutputFile)
		return nil

	case "geojson":
		fc := trace.BoundariesToFeatureCollection(result.Boundaries, doc.DrawingID, a.simplifyTolerance())
		data, err := json.MarshalIndent(fc, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling GeoJSON: %w", err)
		}
		if err := os.WriteFile(a.OutputFile, data, 0644); err != nil {
			return err
		}
		fmt.Printf("Created GeoJSON: %s\n", a.OutputFile)
		return nil

	case "svg", "png":
		renderer := trace.NewVectorRenderer(&result.Boundaries, doc.Sheet)
		renderer.Segments = doc.Segments
		if gs := a.gridSpacing(); gs > 0 {
			renderer.GridSpacing = gs
		}

		outFile, err := os.Create(a.OutputFile)
		if err != nil {
			return fmt.Errorf("creating output file %s: %w", a.OutputFile, err)
		}
		defer func() {
			if err := outFile.Close(); err != nil {
				log.Printf("Warning: error closing output file %s: %v", a.OutputFile, err)
			}
		}()

		if format == "svg" {
			if err := renderer.RenderToSVG(outFile); err != nil {
				return err
			}
			fmt.Printf("Created vector SVG: %s\n", a.OutputFile)
			return nil
		}
		if err := renderer.RenderToPNG(outFile); err != nil {
			return err
		}
		fmt.Printf("Created raster PNG: %s\n", a.OutputFile)
		return nil

	case "dxf":
		outFile, err := os.Create(a.OutputFile)
		if err != nil {
			return fmt.Errorf("creating output file %s: %w", a.OutputFile, err)
		}
		defer func() {
			if err := outFile.Close(); err != nil {
				log.Printf("Warning: error closing output file %s: %v", a.OutputFile, err)
			}
		}()
		if err := trace.WriteDXF(outFile, result.Boundaries, doc.Sheet, a.dxfScaleMax()); err != nil {
			return err
		}
		fmt.Printf("Created DXF: %s\n", a.OutputFile)
		return nil

	case "debug":
		renderer := trace.NewDebugRenderer(result, doc.Segments, doc.Sheet)
		if err := renderer.SavePNG(a.OutputFile); err != nil {
			return err
		}
		fmt.Printf("Created debug PNG: %s\n", a.OutputFile)
		return nil
	}

	return fmt.Errorf("unknown output format: %s (must be json, geojson, svg, png, dxf, or debug)", format)
}

// gridSpacing resolves the grid spacing with config taking priority over
// the CLI flag
func (a *App) gridSpacing() float64 {
	if a.Config != nil && a.Config.Output.GridSpacing > 0 {
		return a.Config.Output.GridSpacing
	}
	return a.GridSpacing
}

// simplifyTolerance resolves the GeoJSON simplification tolerance
func (a *App) simplifyTolerance() float64 {
	if a.SimplifyTolerance > 0 {
		return a.SimplifyTolerance
	}
	if a.Config != nil {
		return a.Config.Output.SimplifyExport
	}
	return 0
}

// dxfScaleMax resolves the DXF target extent; 0 falls back to the package
// default
func (a *App) dxfScaleMax() float64 {
	if a.Config != nil && a.Config.Output.DXFScaleMax > 0 {
		return a.Config.Output.DXFScaleMax
	}
	return 0
}

// RunService starts the combined MQTT and/or HTTP service
func (a *App) RunService() {
	fmt.Println("Starting plantrace service...")

	// 1. Resolve configuration paths relative to data-dir if provided
	resolvedConfig := a.ConfigFile
	resolvedCache := a.BoundaryCache

	// If data-dir is specified and files are still pointing to defaults,
	// resolve them relative to the data-dir.
	if a.DataDir != "." {
		if resolvedConfig == "config.yaml" {
			resolvedConfig = filepath.Join(a.DataDir, "config.yaml")
		}
		if resolvedCache == ".boundary-cache.json" {
			resolvedCache = filepath.Join(a.DataDir, ".boundary-cache.json")
		}
	}

	// 2. Load config.yaml (required)
	config, err := trace.LoadConfig(resolvedConfig)
	if err != nil {
		log.Fatalf("Failed to load config: %v (looked at %s)", err, resolvedConfig)
	}
	a.Config = config
	log.Printf("Loaded config from %s", resolvedConfig)

	// 3. Reload cached boundary results so HTTP serves data immediately
	if _, err := os.Stat(resolvedCache); err == nil {
		log.Printf("Loaded boundary cache from %s", resolvedCache)
	} else {
		log.Printf("Warning: No boundary cache found at %s. Results appear after the first payload.", resolvedCache)
	}
	a.StateTracker = trace.NewStateTrackerWithCache(resolvedCache)

	// 5. Trace archived payloads from the data directory if available
	initialDocs := a.loadInitialDrawings(a.DataDir)
	for id, doc := range initialDocs {
		a.handleDrawing(id, doc, false)
	}
	if len(initialDocs) > 0 {
		fmt.Printf("Traced %d initial drawings from payload exports\n", len(initialDocs))
	}

	// 6. Start MQTT if enabled
	if a.MqttMode {
		// Create message handler that traces each incoming payload
		messageHandler := func(drawingID string, rawPayload []byte, doc *trace.DrawingDocument, err error) {
			if err != nil {
				// Archive the undecodable payload for offline inspection
				rawPath := filepath.Join(a.DataDir, fmt.Sprintf("%s.payload.raw", drawingID))
				if writeErr := os.WriteFile(rawPath, rawPayload, 0644); writeErr != nil {
					log.Printf("Error receiving drawing payload for %s: %v", drawingID, err)
				} else {
					log.Printf("Error decoding payload for %s: %v (raw bytes saved to %s)", drawingID, err, rawPath)
				}
				return
			}
			a.handleDrawing(drawingID, doc, true)
		}

		// Initialize MQTT client
		mqttClient, err := trace.InitMQTT(config, messageHandler)
		if err != nil {
			log.Fatalf("Failed to initialize MQTT: %v", err)
		}
		a.MQTTClient = mqttClient

		if mqttClient == nil {
			log.Fatal("MQTT broker not configured in config.yaml")
		}

		// Retrace commands re-run the pipeline from the stored document
		mqttClient.SetRetraceHandler(a.handleRetrace)

		// Initialize publisher now that we have MQTT client
		a.Publisher = trace.NewPublisher(mqttClient.GetClient())
		a.Publisher.SetPublishPrefix(config.MQTT.PublishPrefix)
		fmt.Println("MQTT boundary publisher initialized")
	}

	// 7. Fetch drawings that have an extractor API configured but no payload
	for _, dc := range config.Drawings {
		if dc.ApiURL == nil || *dc.ApiURL == "" {
			continue
		}
		if a.StateTracker.GetDocument(dc.ID) != nil {
			continue
		}
		go a.fetchAndTrace(dc.ID, *dc.ApiURL)
	}

	// 8. Start HTTP server if enabled
	if a.HttpMode {
		httpServer := newHTTPServer(a.StateTracker, a.Config)
		go func() {
			addr := fmt.Sprintf("0.0.0.0:%d", a.HttpPort)
			log.Printf("[HTTP] Starting server on %s", addr)
			if err := http.ListenAndServe(addr, httpServer); err != nil {
				log.Fatalf("[HTTP] Server error: %v", err)
			}
		}()
	}

	// 9. Print service info
	fmt.Println("\nService Running")
	fmt.Println("===============")

	if a.MqttMode {
		fmt.Println("\nMQTT:")
		fmt.Println("  Subscribed topics:")
		for _, dc := range config.Drawings {
			fmt.Printf("    - %s (%s)\n", dc.Topic, dc.ID)
		}
		publishPrefix := config.MQTT.PublishPrefix
		if publishPrefix == "" {
			publishPrefix = "plantrace"
		}
		fmt.Printf("  Publishing to: %s/{drawingID}\n", publishPrefix)
		fmt.Printf("  Combined summaries: %s/boundaries\n", publishPrefix)
	}

	if a.HttpMode {
		fmt.Printf("\nHTTP endpoints (port %d):\n", a.HttpPort)
		fmt.Println("  GET /health                           - Health check")
		fmt.Println("  GET /drawings                         - Traced drawing index")
		fmt.Println("  GET /drawings/{id}/boundaries.json    - Classified boundaries with diagnostics")
		fmt.Println("  GET /drawings/{id}/boundaries.geojson - GeoJSON FeatureCollection")
		fmt.Println("  GET /drawings/{id}/boundaries.svg     - Vector render")
		fmt.Println("  GET /drawings/{id}/boundaries.png     - Raster render")
		fmt.Println("  GET /drawings/{id}/boundaries.dxf     - CAD export")
	}

	fmt.Println("\nPress Ctrl+C to stop")

	// 10. Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan

	fmt.Println("\nShutting down service...")
	if a.MQTTClient != nil {
		a.MQTTClient.Disconnect()
	}
	fmt.Println("Service stopped")
}

// handleDrawing runs the boundary pipeline for one decoded payload and fans
// the result out to the state tracker and the publisher. The configured
// drawing ID wins over whatever the payload carries.
func (a *App) handleDrawing(drawingID string, doc *trace.DrawingDocument, archive bool) {
	if doc.DrawingID == "" {
		doc.DrawingID = drawingID
	} else if doc.DrawingID != drawingID {
		log.Printf("[DEBUG] %s: payload carries drawingId %q, using configured ID", drawingID, doc.DrawingID)
		doc.DrawingID = drawingID
	}

	log.Printf("[TRACE] %s", trace.Summarize(doc))

	if !trace.HasTraceableSegments(doc) {
		log.Printf("[DEBUG] %s: payload has too few segments to trace (%d)", drawingID, len(doc.Segments))
	}

	result, err := a.traceDocument(doc)
	if err != nil {
		log.Printf("Error tracing drawing %s: %v", drawingID, err)
		return
	}

	// Archive the decoded payload so a retrace survives a restart (async)
	if archive {
		exportPath := filepath.Join(a.DataDir, fmt.Sprintf("DrawingExport-%s.json", drawingID))
		go func(p string, d *trace.DrawingDocument) {
			data, err := trace.EncodeDrawingData(d, false)
			if err == nil {
				if err := os.WriteFile(p, data, 0644); err == nil {
					log.Printf("[DEBUG] Archived payload for %s to %s", drawingID, p)
				}
			}
		}(exportPath, doc)
	}

	a.StateTracker.UpdateResult(doc, result)

	b := result.Boundaries
	log.Printf("%s: outer=%v inner=%v interior=%d (components=%d loops=%d rejected=%d degraded=%v)",
		drawingID, b.ExteriorOuter != nil, b.ExteriorInner != nil, len(b.InteriorWalls),
		result.Diagnostics.ComponentCount, result.Diagnostics.LoopCount,
		len(result.Diagnostics.RejectedLoops), result.Diagnostics.Degraded)

	// Publish classified boundaries
	if a.Publisher != nil {
		if err := a.Publisher.PublishBoundaries(drawingID, result); err != nil {
			log.Printf("Error publishing boundaries for %s: %v", drawingID, err)
		}
	}
}

// handleRetrace re-runs the pipeline for a drawing on command, falling back
// to the extractor API when no payload is stored
func (a *App) handleRetrace(drawingID string) {
	if doc := a.StateTracker.GetDocument(drawingID); doc != nil {
		log.Printf("Retrace command for %s: re-running trace on stored payload", drawingID)
		a.handleDrawing(drawingID, doc, false)
		return
	}

	if a.Config != nil {
		if dc := a.Config.GetDrawingByID(drawingID); dc != nil && dc.ApiURL != nil && *dc.ApiURL != "" {
			log.Printf("Retrace command for %s: no stored payload, fetching from extractor API", drawingID)
			go a.fetchAndTrace(drawingID, *dc.ApiURL)
			return
		}
	}

	log.Printf("Retrace command for %s ignored: no stored payload and no extractor API configured", drawingID)
}

// fetchAndTrace pulls a drawing from its extractor API and runs the pipeline
func (a *App) fetchAndTrace(drawingID, apiURL string) {
	log.Printf("Fetching drawing %s from %s", drawingID, apiURL)
	doc, err := trace.FetchDrawingFromAPI(apiURL)
	if err != nil {
		log.Printf("Error fetching drawing %s: %v", drawingID, err)
		return
	}
	a.handleDrawing(drawingID, doc, true)
}

// loadInitialDrawings loads archived drawing payloads from the data directory
func (a *App) loadInitialDrawings(dataDir string) map[string]*trace.DrawingDocument {
	docs := make(map[string]*trace.DrawingDocument)

	pattern := filepath.Join(dataDir, "DrawingExport-*.json")
	files, err := filepath.Glob(pattern)
	if err != nil {
		return docs
	}

	for _, file := range files {
		base := filepath.Base(file)
		name := strings.TrimSuffix(strings.TrimPrefix(base, "DrawingExport-"), ".json")

		doc, err := trace.DecodeDrawingFile(file)
		if err != nil {
			log.Printf("Warning: Failed to load %s: %v", name, err)
			continue
		}
		// The payload's own ID wins over the filename when both exist
		if doc.DrawingID != "" {
			name = doc.DrawingID
		}
		docs[name] = doc
	}

	return docs
}
