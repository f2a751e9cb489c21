package trace

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DrawingState holds the latest trace outcome for one drawing
type DrawingState struct {
	DrawingID    string       `json:"drawingId"`
	Units        string       `json:"units,omitempty"`
	Sheet        *SheetBounds `json:"sheet,omitempty"`
	SegmentCount int          `json:"segmentCount"`
	Result       *TraceResult `json:"result"`
	TracedAt     time.Time    `json:"tracedAt"`
}

// Clone returns a deep copy of the state entry
func (ds *DrawingState) Clone() *DrawingState {
	if ds == nil {
		return nil
	}
	out := *ds
	if ds.Sheet != nil {
		sheet := *ds.Sheet
		out.Sheet = &sheet
	}
	if ds.Result != nil {
		result := TraceResult{
			Boundaries:  *ds.Result.Boundaries.Clone(),
			Diagnostics: ds.Result.Diagnostics,
		}
		if ds.Result.Diagnostics.RejectedLoops != nil {
			result.Diagnostics.RejectedLoops = append([]RejectedLoop(nil), ds.Result.Diagnostics.RejectedLoops...)
		}
		if ds.Result.Diagnostics.Notes != nil {
			result.Diagnostics.Notes = append([]DiagnosticNote(nil), ds.Result.Diagnostics.Notes...)
		}
		out.Result = &result
	}
	return &out
}

// BoundaryCache is the on-disk snapshot of every drawing's latest result
type BoundaryCache struct {
	Results map[string]*DrawingState `json:"results"`
	SavedAt int64                    `json:"savedAt"`
}

// StateTracker tracks the latest trace result per drawing for the HTTP
// endpoints and the publisher. Decoded documents are kept alongside so a
// retrace command can re-run the pipeline without a fresh payload.
type StateTracker struct {
	mu        sync.RWMutex
	results   map[string]*DrawingState
	documents map[string]*DrawingDocument
	cachePath string // path to .boundary-cache.json; empty disables persistence
}

// NewStateTracker creates a new state tracker
func NewStateTracker() *StateTracker {
	return &StateTracker{
		results:   make(map[string]*DrawingState),
		documents: make(map[string]*DrawingDocument),
	}
}

// NewStateTrackerWithCache creates a state tracker that persists results to
// the given cache file path. If the file exists, cached results are loaded
// on creation. Documents are not cached; a retrace needs a fresh payload
// after restart.
func NewStateTrackerWithCache(cachePath string) *StateTracker {
	st := &StateTracker{
		results:   make(map[string]*DrawingState),
		documents: make(map[string]*DrawingDocument),
		cachePath: cachePath,
	}
	if cachePath != "" {
		if cache, err := LoadBoundaryCache(cachePath); err == nil {
			for id, ds := range cache.Results {
				st.results[id] = ds
			}
		}
	}
	return st
}

// UpdateResult stores the latest trace outcome for a drawing and persists
// the cache when a cache path is configured
func (st *StateTracker) UpdateResult(doc *DrawingDocument, result *TraceResult) {
	state := &DrawingState{
		DrawingID:    doc.DrawingID,
		Units:        doc.Units,
		SegmentCount: len(doc.Segments),
		Result:       result,
		TracedAt:     time.Now(),
	}
	if doc.Sheet != nil {
		sheet := *doc.Sheet
		state.Sheet = &sheet
	}

	st.mu.Lock()
	st.results[doc.DrawingID] = state
	st.documents[doc.DrawingID] = doc
	cachePath := st.cachePath
	var snapshot map[string]*DrawingState
	if cachePath != "" {
		snapshot = make(map[string]*DrawingState, len(st.results))
		for id, ds := range st.results {
			snapshot[id] = ds.Clone()
		}
	}
	st.mu.Unlock()

	if cachePath != "" {
		cache := &BoundaryCache{Results: snapshot, SavedAt: time.Now().Unix()}
		if err := SaveBoundaryCache(cache, cachePath); err != nil {
			log.Printf("warning: failed to save boundary cache: %v", err)
		}
	}
}

// GetState returns a copy of the latest state for a drawing, or nil
func (st *StateTracker) GetState(drawingID string) *DrawingState {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.results[drawingID].Clone()
}

// GetStates returns copies of all current drawing states
func (st *StateTracker) GetStates() map[string]*DrawingState {
	st.mu.RLock()
	defer st.mu.RUnlock()

	result := make(map[string]*DrawingState)
	for k, v := range st.results {
		result[k] = v.Clone()
	}
	return result
}

// GetDocument returns the stored decoded document for a drawing, or nil.
// Documents are treated as immutable once stored.
func (st *StateTracker) GetDocument(drawingID string) *DrawingDocument {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.documents[drawingID]
}

// HasResults returns true if we have at least one traced drawing
func (st *StateTracker) HasResults() bool {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.results) > 0
}

// SaveBoundaryCache writes a boundary cache snapshot to disk as JSON.
func SaveBoundaryCache(cache *BoundaryCache, path string) error {
	data, err := json.MarshalIndent(cache, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal boundary cache: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write boundary cache: %w", err)
	}
	return nil
}

// LoadBoundaryCache reads a boundary cache snapshot from a JSON file on disk.
func LoadBoundaryCache(path string) (*BoundaryCache, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read boundary cache: %w", err)
	}
	var cache BoundaryCache
	if err := json.Unmarshal(data, &cache); err != nil {
		return nil, fmt.Errorf("unmarshal boundary cache: %w", err)
	}
	return &cache, nil
}
