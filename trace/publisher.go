package trace

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// BoundarySummary is the wire format for one drawing's published result.
// Geometry travels on the individual topic only; the combined topic carries
// these summaries.
type BoundarySummary struct {
	DrawingID     string  `json:"drawingId"`
	HasOuter      bool    `json:"hasOuter"`
	HasInner      bool    `json:"hasInner"`
	Synthesized   bool    `json:"synthesized,omitempty"`
	InteriorCount int     `json:"interiorCount"`
	Perimeter     float64 `json:"perimeter,omitempty"`
	Area          float64 `json:"area,omitempty"`
	Degraded      bool    `json:"degraded,omitempty"`
	Timestamp     int64   `json:"timestamp"`
}

// Publisher manages publishing traced boundary results to MQTT
type Publisher struct {
	client        mqtt.Client
	publishPrefix string
	qos           byte
	retain        bool
	summaries     map[string]*BoundarySummary
	mu            sync.RWMutex
}

// NewPublisher creates a new boundary publisher
// If client is nil, publishing is disabled (for testing)
func NewPublisher(client mqtt.Client) *Publisher {
	prefix := os.Getenv("MQTT_PUBLISH_PREFIX")
	if prefix == "" {
		prefix = "plantrace"
	}

	return &Publisher{
		client:        client,
		publishPrefix: prefix,
		qos:           0,    // QoS 0 for result updates (fire and forget)
		retain:        true, // Retain for latest result
		summaries:     make(map[string]*BoundarySummary),
	}
}

// PublishBoundaries publishes a drawing's traced boundaries to MQTT
// Publishes to both the individual topic and the combined boundaries topic
func (p *Publisher) PublishBoundaries(drawingID string, result *TraceResult) error {
	if p.client == nil || !p.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}
	if result == nil {
		return fmt.Errorf("no result to publish for %s", drawingID)
	}

	summary := summarizeResult(drawingID, result)

	// Store summary for the combined message
	p.mu.Lock()
	p.summaries[drawingID] = summary
	p.mu.Unlock()

	// Publish to individual topic: plantrace/{drawingID}
	if err := p.publishIndividual(summary, result); err != nil {
		log.Printf("Error publishing boundaries for %s: %v", drawingID, err)
		return err
	}

	// Publish to combined topic: plantrace/boundaries
	if err := p.publishCombined(); err != nil {
		log.Printf("Error publishing combined boundaries: %v", err)
		return err
	}

	return nil
}

// summarizeResult reduces a trace result to its wire summary
func summarizeResult(drawingID string, result *TraceResult) *BoundarySummary {
	summary := &BoundarySummary{
		DrawingID:     drawingID,
		InteriorCount: len(result.Boundaries.InteriorWalls),
		Degraded:      result.Diagnostics.Degraded,
		Timestamp:     time.Now().Unix(),
	}
	if outer := result.Boundaries.ExteriorOuter; outer != nil {
		summary.HasOuter = true
		summary.Perimeter = outer.Perimeter
		summary.Area = outer.Area
	}
	if inner := result.Boundaries.ExteriorInner; inner != nil {
		summary.HasInner = true
		summary.Synthesized = inner.Synthesized
	}
	return summary
}

// publishIndividual publishes one drawing's summary plus full geometry to
// its individual topic
func (p *Publisher) publishIndividual(summary *BoundarySummary, result *TraceResult) error {
	topic := fmt.Sprintf("%s/%s", p.publishPrefix, summary.DrawingID)

	message := struct {
		BoundarySummary
		Boundaries ClassifiedBoundarySet `json:"boundaries"`
	}{*summary, result.Boundaries}

	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("marshaling boundaries: %w", err)
	}

	token := p.client.Publish(topic, p.qos, p.retain, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}

	log.Printf("Published boundaries for %s: outer=%v inner=%v interior=%d",
		summary.DrawingID, summary.HasOuter, summary.HasInner, summary.InteriorCount)
	return nil
}

// publishCombined publishes all drawing summaries to the combined topic
func (p *Publisher) publishCombined() error {
	p.mu.RLock()
	summaries := make([]*BoundarySummary, 0, len(p.summaries))
	for _, s := range p.summaries {
		summaries = append(summaries, s)
	}
	p.mu.RUnlock()

	if len(summaries) == 0 {
		return nil
	}

	topic := fmt.Sprintf("%s/boundaries", p.publishPrefix)

	// Create combined message
	message := map[string]interface{}{
		"drawings":  summaries,
		"timestamp": time.Now().Unix(),
	}

	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("marshaling combined boundaries: %w", err)
	}

	token := p.client.Publish(topic, p.qos, p.retain, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}

	return nil
}

// GetSummary returns the last published summary for a drawing
func (p *Publisher) GetSummary(drawingID string) (*BoundarySummary, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.summaries[drawingID]
	return s, ok
}

// GetAllSummaries returns all known drawing summaries
func (p *Publisher) GetAllSummaries() map[string]*BoundarySummary {
	p.mu.RLock()
	defer p.mu.RUnlock()

	// Return a copy to avoid race conditions
	summaries := make(map[string]*BoundarySummary, len(p.summaries))
	for id, s := range p.summaries {
		sCopy := *s
		summaries[id] = &sCopy
	}
	return summaries
}

// ClearSummary removes a drawing's summary (e.g., when unconfigured)
func (p *Publisher) ClearSummary(drawingID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.summaries, drawingID)
}

// SetPublishPrefix overrides the topic prefix, typically from the config
// file. Empty values are ignored so the env/default prefix stands.
func (p *Publisher) SetPublishPrefix(prefix string) {
	if prefix != "" {
		p.publishPrefix = prefix
	}
}

// SetQoS sets the Quality of Service level for publishing (0, 1, or 2)
func (p *Publisher) SetQoS(qos byte) {
	if qos <= 2 {
		p.qos = qos
	}
}

// SetRetain sets whether published messages should be retained by the broker
func (p *Publisher) SetRetain(retain bool) {
	p.retain = retain
}

// PublishFromState republishes a cached drawing state
// This is a convenience function for the retrace path
func (p *Publisher) PublishFromState(state *DrawingState) error {
	if state == nil || state.Result == nil {
		return fmt.Errorf("no cached result to publish")
	}
	return p.PublishBoundaries(state.DrawingID, state.Result)
}
