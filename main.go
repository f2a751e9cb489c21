package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
)

// Version is set at build time via -ldflags
var Version = "dev"

// AppOptions carries the parsed CLI flags into the application
type AppOptions struct {
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
	ParseOnly         bool
	TraceFile         string
	RasterFile        string
	FetchURL          string
}

// appRunner is the mode dispatch surface of the application, kept narrow so
// tests can substitute a mock
type appRunner interface {
	ApplyOptions(opts AppOptions)
	RunParseOnly()
	RunTraceFile(path string)
	RunImportRaster(path string)
	RunFetch(apiURL string)
	RunService()
}

func run(args []string, out io.Writer, app appRunner) error {
	flags := flag.NewFlagSet("plantrace", flag.ContinueOnError)
	flags.SetOutput(out)

	configFile := flags.String("config", "config.yaml", "Path to configuration file")
	parseOnly := flags.Bool("parse-only", false, "Parse drawing payload exports and exit (test mode)")
	traceFile := flags.String("trace", "", "Trace a single drawing payload file and exit")
	rasterFile := flags.String("import-raster", "", "Vectorize a scanned plan image, trace it, and exit")
	fetchURL := flags.String("fetch", "", "Fetch a drawing payload from an extractor API, trace it, and exit")
	outputFile := flags.String("output", "boundaries.svg", "Output file for one-shot trace modes")
	outputFormat := flags.String("format", "", "Output format: json, geojson, svg, png, dxf, or debug (default: from output extension)")
	dataDir := flags.String("data-dir", ".", "Directory containing drawing payload exports")
	boundaryCache := flags.String("boundary-cache", ".boundary-cache.json", "Path to boundary result cache file")
	mqttMode := flags.Bool("mqtt", false, "Run MQTT service mode for live boundary tracing")
	httpMode := flags.Bool("http", false, "Enable HTTP server for serving traced boundaries")
	httpPort := flags.Int("http-port", 8080, "HTTP server port (default 8080)")
	gridSpacing := flags.Float64("grid-spacing", 100.0, "Grid line spacing in drawing units for vector output")
	simplifyTolerance := flags.Float64("simplify", 0, "Douglas-Peucker tolerance for GeoJSON export (0 disables)")

	if err := flags.Parse(args); err != nil {
		return err
	}

	fmt.Fprintf(out, "plantrace version: %s\n", Version)

	app.ApplyOptions(AppOptions{
		DataDir:           *dataDir,
		ConfigFile:        *configFile,
		BoundaryCache:     *boundaryCache,
		OutputFile:        *outputFile,
		OutputFormat:      *outputFormat,
		GridSpacing:       *gridSpacing,
		SimplifyTolerance: *simplifyTolerance,
		HttpPort:          *httpPort,
		MqttMode:          *mqttMode,
		HttpMode:          *httpMode,
		ParseOnly:         *parseOnly,
		TraceFile:         *traceFile,
		RasterFile:        *rasterFile,
		FetchURL:          *fetchURL,
	})

	if *parseOnly {
		app.RunParseOnly()
		return nil
	}

	if *traceFile != "" {
		app.RunTraceFile(*traceFile)
		return nil
	}

	if *rasterFile != "" {
		app.RunImportRaster(*rasterFile)
		return nil
	}

	if *fetchURL != "" {
		app.RunFetch(*fetchURL)
		return nil
	}

	if *mqttMode || *httpMode {
		app.RunService()
		return nil
	}

	// No mode selected - print usage hints
	fmt.Fprintln(out, "plantrace service starting...")
	fmt.Fprintln(out, "Use --parse-only to inspect drawing payload exports")
	fmt.Fprintln(out, "Use --trace=FILE to trace a single drawing payload")
	fmt.Fprintln(out, "Use --import-raster=FILE to vectorize and trace a scanned plan")
	fmt.Fprintln(out, "Use --fetch=URL to trace a drawing from an extractor API")
	fmt.Fprintln(out, "Use --mqtt to run MQTT service mode")
	fmt.Fprintln(out, "Use --http to run HTTP server mode")
	fmt.Fprintln(out, "Use --mqtt --http to run both MQTT and HTTP together")
	fmt.Fprintln(out, "\nConfiguration:")
	fmt.Fprintln(out, "  config.yaml - MQTT settings, trace tolerances, and export options")
	fmt.Fprintln(out, "  .boundary-cache.json - Latest trace results (cached)")
	return nil
}

func main() {
	if err := run(os.Args[1:], os.Stdout, NewApp()); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(2)
	}
}
