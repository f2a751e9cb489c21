package trace

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func validConfigYAML() string {
	return `mqtt:
  broker: tcp://localhost:1883
  publishPrefix: plantrace
  clientId: plantrace-test
drawings:
  - id: floor-1
    topic: extractor/floor-1/segments
  - id: floor-2
    topic: extractor/floor-2/segments
`
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config fixture: %v", err)
	}
	return path
}

// ---------------------------------------------------------------------------
// LoadConfig
// ---------------------------------------------------------------------------

func TestLoadConfig_NotExists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope.yaml")
	_, err := LoadConfig(path)
	if err == nil {
		t.Fatal("expected error for missing config file, got nil")
	}
}

func TestLoadConfig_ValidYAML(t *testing.T) {
	path := writeConfig(t, validConfigYAML())

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.MQTT.Broker != "tcp://localhost:1883" {
		t.Errorf("Broker = %q, want %q", cfg.MQTT.Broker, "tcp://localhost:1883")
	}
	if len(cfg.Drawings) != 2 {
		t.Fatalf("len(Drawings) = %d, want 2", len(cfg.Drawings))
	}
	if cfg.Drawings[0].ID != "floor-1" {
		t.Errorf("Drawings[0].ID = %q, want %q", cfg.Drawings[0].ID, "floor-1")
	}
	if cfg.Drawings[1].Topic != "extractor/floor-2/segments" {
		t.Errorf("Drawings[1].Topic = %q, want %q", cfg.Drawings[1].Topic, "extractor/floor-2/segments")
	}
}

func TestLoadConfig_Validation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "missing broker",
			yaml: `mqtt:
  broker: ""
drawings:
  - id: d1
    topic: t/d1
`,
		},
		{
			name: "empty drawings list",
			yaml: `mqtt:
  broker: tcp://localhost:1883
drawings: []
`,
		},
		{
			name: "drawing missing id",
			yaml: `mqtt:
  broker: tcp://localhost:1883
drawings:
  - id: ""
    topic: t/d1
`,
		},
		{
			name: "drawing missing topic",
			yaml: `mqtt:
  broker: tcp://localhost:1883
drawings:
  - id: d1
    topic: ""
`,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.yaml)
			_, err := LoadConfig(path)
			if err == nil {
				t.Errorf("expected validation error for %q, got nil", tc.name)
			}
		})
	}
}

func TestLoadConfig_Settings(t *testing.T) {
	path := writeConfig(t, `mqtt:
  broker: tcp://localhost:1883
drawings:
  - id: d1
    topic: t/d1
trace:
  snapTolerance: 0.25
  budgetMillis: 250
classifier:
  preferSheetEdges: true
offset:
  distance: 8.0
  estimateFromWalls: true
output:
  gridSpacing: 50
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Trace.SnapTolerance != 0.25 {
		t.Errorf("Trace.SnapTolerance = %g, want 0.25", cfg.Trace.SnapTolerance)
	}
	if cfg.Trace.BudgetMillis != 250 {
		t.Errorf("Trace.BudgetMillis = %d, want 250", cfg.Trace.BudgetMillis)
	}
	if !cfg.Classifier.PreferSheetEdges {
		t.Error("Classifier.PreferSheetEdges = false, want true")
	}
	if cfg.Offset.Distance != 8.0 {
		t.Errorf("Offset.Distance = %g, want 8.0", cfg.Offset.Distance)
	}
	if cfg.Output.GridSpacing != 50 {
		t.Errorf("Output.GridSpacing = %g, want 50", cfg.Output.GridSpacing)
	}
}

// ---------------------------------------------------------------------------
// SaveConfig
// ---------------------------------------------------------------------------

func TestSaveConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")

	original := &Config{
		MQTT: MQTTConfig{
			Broker:        "tcp://localhost:1883",
			PublishPrefix: "plantrace",
			ClientID:      "test-client",
		},
		Drawings: []DrawingConfig{
			{ID: "floor-1", Topic: "extractor/floor-1/segments"},
		},
		Output: OutputSettings{GridSpacing: 500},
	}

	if err := SaveConfig(path, original); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}

	// Round-trip: LoadConfig must succeed and reproduce the data
	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig after save: %v", err)
	}
	if loaded.MQTT.Broker != original.MQTT.Broker {
		t.Errorf("Broker = %q, want %q", loaded.MQTT.Broker, original.MQTT.Broker)
	}
	if loaded.Output.GridSpacing != 500 {
		t.Errorf("GridSpacing = %g, want 500", loaded.Output.GridSpacing)
	}
	if len(loaded.Drawings) != 1 || loaded.Drawings[0].ID != "floor-1" {
		t.Errorf("Drawings round-trip mismatch: %+v", loaded.Drawings)
	}
}

// ---------------------------------------------------------------------------
// BuildTraceOptions
// ---------------------------------------------------------------------------

func TestBuildTraceOptions_Defaults(t *testing.T) {
	opts := BuildTraceOptions(&Config{})
	want := DefaultOptions()

	if opts.SnapTolerance != want.SnapTolerance {
		t.Errorf("SnapTolerance = %g, want %g", opts.SnapTolerance, want.SnapTolerance)
	}
	if opts.Tracer.CloseTolerance != want.Tracer.CloseTolerance {
		t.Errorf("Tracer.CloseTolerance = %g, want %g", opts.Tracer.CloseTolerance, want.Tracer.CloseTolerance)
	}
	if opts.Classifier.InnerPerimeterRatio != want.Classifier.InnerPerimeterRatio {
		t.Errorf("InnerPerimeterRatio = %g, want %g", opts.Classifier.InnerPerimeterRatio, want.Classifier.InnerPerimeterRatio)
	}
	if opts.OffsetDistance != want.OffsetDistance {
		t.Errorf("OffsetDistance = %g, want %g", opts.OffsetDistance, want.OffsetDistance)
	}
	if opts.BudgetLimit != 0 {
		t.Errorf("BudgetLimit = %v, want 0", opts.BudgetLimit)
	}
}

func TestBuildTraceOptions_Overrides(t *testing.T) {
	cfg := &Config{
		Trace: TraceSettings{
			SnapTolerance:       0.25,
			ConnectionTolerance: 4.0,
			CloseTolerance:      2.5,
			DedupTolerance:      0.1,
			AreaEpsilon:         0.5,
			BudgetMillis:        300,
		},
		Classifier: ClassifierSettings{
			NestingSlack:        20,
			InnerPerimeterRatio: 0.5,
			PreferSheetEdges:    true,
			EdgeMarginFraction:  0.05,
		},
		Offset: OffsetSettings{Distance: 12, EstimateFromWalls: true},
	}

	opts := BuildTraceOptions(cfg)

	if opts.SnapTolerance != 0.25 {
		t.Errorf("SnapTolerance = %g, want 0.25", opts.SnapTolerance)
	}
	if opts.ConnectionTolerance != 4.0 {
		t.Errorf("ConnectionTolerance = %g, want 4.0", opts.ConnectionTolerance)
	}
	if opts.Tracer.CloseTolerance != 2.5 {
		t.Errorf("Tracer.CloseTolerance = %g, want 2.5", opts.Tracer.CloseTolerance)
	}
	if opts.Validator.DedupTolerance != 0.1 {
		t.Errorf("Validator.DedupTolerance = %g, want 0.1", opts.Validator.DedupTolerance)
	}
	if opts.Validator.AreaEpsilon != 0.5 {
		t.Errorf("Validator.AreaEpsilon = %g, want 0.5", opts.Validator.AreaEpsilon)
	}
	if opts.BudgetLimit != 300*time.Millisecond {
		t.Errorf("BudgetLimit = %v, want 300ms", opts.BudgetLimit)
	}
	if opts.Classifier.NestingSlack != 20 {
		t.Errorf("NestingSlack = %g, want 20", opts.Classifier.NestingSlack)
	}
	if opts.Classifier.InnerPerimeterRatio != 0.5 {
		t.Errorf("InnerPerimeterRatio = %g, want 0.5", opts.Classifier.InnerPerimeterRatio)
	}
	if !opts.Classifier.PreferSheetEdges {
		t.Error("PreferSheetEdges = false, want true")
	}
	if opts.Classifier.EdgeMarginFraction != 0.05 {
		t.Errorf("EdgeMarginFraction = %g, want 0.05", opts.Classifier.EdgeMarginFraction)
	}
	if opts.OffsetDistance != 12 {
		t.Errorf("OffsetDistance = %g, want 12", opts.OffsetDistance)
	}
	if !opts.EstimateOffsetFromWalls {
		t.Error("EstimateOffsetFromWalls = false, want true")
	}
}

// ---------------------------------------------------------------------------
// Config lookups
// ---------------------------------------------------------------------------

func TestConfigLookups(t *testing.T) {
	cfg := &Config{
		Drawings: []DrawingConfig{
			{ID: "floor-1", Topic: "extractor/floor-1/segments"},
			{ID: "floor-2", Topic: "extractor/floor-2/segments"},
		},
	}

	t.Run("GetDrawingByID found", func(t *testing.T) {
		dc := cfg.GetDrawingByID("floor-2")
		if dc == nil {
			t.Fatal("GetDrawingByID returned nil for existing drawing")
		}
		if dc.Topic != "extractor/floor-2/segments" {
			t.Errorf("Topic = %q, want %q", dc.Topic, "extractor/floor-2/segments")
		}
	})

	t.Run("GetDrawingByID missing", func(t *testing.T) {
		if dc := cfg.GetDrawingByID("ghost"); dc != nil {
			t.Errorf("GetDrawingByID(ghost) = %+v, want nil", dc)
		}
	})

	t.Run("GetDrawingByTopic found", func(t *testing.T) {
		id, ok := cfg.GetDrawingByTopic("extractor/floor-1/segments")
		if !ok {
			t.Fatal("GetDrawingByTopic returned ok=false for existing topic")
		}
		if id != "floor-1" {
			t.Errorf("id = %q, want %q", id, "floor-1")
		}
	})

	t.Run("GetDrawingByTopic missing", func(t *testing.T) {
		if id, ok := cfg.GetDrawingByTopic("nope"); ok {
			t.Errorf("GetDrawingByTopic(nope) = %q, want miss", id)
		}
	})
}
