// internal/event/nats.go
// Package event provides NATS JetStream implementation for event publishing.
// It streams guide playback and search events for analytics consumers.
package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// Publisher interface defines the event publishing operations required by the
// Monastery360 service. Publishes are best-effort: callers detach them from
// the request path and never surface failures to clients.
type Publisher interface {
	// PublishGuidePlayed reports a playback of an audio guide.
	PublishGuidePlayed(ctx context.Context, guideID, monasteryID string) error

	// PublishSearchPerformed reports a completed search query.
	PublishSearchPerformed(ctx context.Context, query, entityType string, totalCount int) error

	// Close closes the publisher connection
	Close() error
}

// noop is a no-op implementation of Publisher for when NATS is not configured.
// It allows the service to function without event streaming.
type noop struct{}

func (n *noop) Close() error { return nil }

func (n *noop) PublishGuidePlayed(ctx context.Context, guideID, monasteryID string) error {
	return nil
}

func (n *noop) PublishSearchPerformed(ctx context.Context, query, entityType string, totalCount int) error {
	return nil
}

// natsPub is the NATS JetStream implementation of Publisher.
type natsPub struct {
	nc *nats.Conn
	js nats.JetStreamContext

	// Playback dedup: repeated plays of the same guide within the window
	// collapse to one event.
	playDedup map[string]time.Time
	mutex     sync.RWMutex
}

// NewPublisher creates a publisher for the given NATS URL. An empty URL means
// NATS is not configured; connection or stream failures likewise fall back to
// a no-op publisher rather than blocking startup.
func NewPublisher(url string) Publisher {
	if url == "" {
		return &noop{}
	}

	nc, err := nats.Connect(url)
	if err != nil {
		slog.Warn("NATS connect failed, using noop publisher", "error", err)
		return &noop{}
	}

	js, err := nc.JetStream()
	if err != nil {
		slog.Warn("NATS JetStream context creation failed, using noop publisher", "error", err)
		nc.Close()
		return &noop{}
	}

	if err := initStreams(js); err != nil {
		slog.Warn("NATS stream initialization failed, using noop publisher", "error", err)
		nc.Close()
		return &noop{}
	}

	return &natsPub{
		nc:        nc,
		js:        js,
		playDedup: make(map[string]time.Time),
	}
}

// initStreams initializes the required NATS streams.
func initStreams(js nats.JetStreamContext) error {
	_, err := js.AddStream(&nats.StreamConfig{
		Name:      "M360_GUIDES",
		Subjects:  []string{"monastery360.guides.*"},
		Retention: nats.LimitsPolicy,
		MaxAge:    24 * time.Hour,
		Discard:   nats.DiscardOld,
		Storage:   nats.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("failed to create M360_GUIDES stream: %w", err)
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:      "M360_SEARCH",
		Subjects:  []string{"monastery360.search.*"},
		Retention: nats.LimitsPolicy,
		MaxAge:    24 * time.Hour,
		Discard:   nats.DiscardOld,
		Storage:   nats.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("failed to create M360_SEARCH stream: %w", err)
	}

	return nil
}

// EventEnvelope represents the standard event envelope structure.
// All events published to NATS are wrapped in this envelope for consistency.
type EventEnvelope struct {
	Type          string      `json:"type"`
	Version       string      `json:"version"`
	OccurredAt    time.Time   `json:"occurredAt"`
	CorrelationID string      `json:"correlationId"`
	Payload       interface{} `json:"payload"`
}

// Close closes the NATS connection.
func (p *natsPub) Close() error {
	if p.nc != nil {
		p.nc.Close()
	}
	return nil
}

// shouldDedup checks if a playback event falls within the 2-minute dedup window.
func (p *natsPub) shouldDedup(key string) bool {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	if lastTime, exists := p.playDedup[key]; exists {
		return time.Since(lastTime) < 2*time.Minute
	}
	return false
}

// updateDedup records a publish time for a guide and evicts stale entries.
func (p *natsPub) updateDedup(key string) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	cutoff := time.Now().Add(-5 * time.Minute)
	for k, t := range p.playDedup {
		if t.Before(cutoff) {
			delete(p.playDedup, k)
		}
	}
	p.playDedup[key] = time.Now()
}

func (p *natsPub) publish(subject, eventType string, payload interface{}) error {
	envelope := EventEnvelope{
		Type:          eventType,
		Version:       "1.0.0",
		OccurredAt:    time.Now().UTC(),
		CorrelationID: uuid.New().String(),
		Payload:       payload,
	}
	b, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	_, err = p.js.Publish(subject, b)
	return err
}

// PublishGuidePlayed publishes a guide playback event to the M360_GUIDES stream.
func (p *natsPub) PublishGuidePlayed(ctx context.Context, guideID, monasteryID string) error {
	if p.shouldDedup(guideID) {
		return nil
	}

	payload := map[string]string{
		"guideId":     guideID,
		"monasteryId": monasteryID,
	}
	if err := p.publish("monastery360.guides.played", "monastery360.guides.played", payload); err != nil {
		return err
	}

	p.updateDedup(guideID)
	return nil
}

// PublishSearchPerformed publishes a search event to the M360_SEARCH stream.
func (p *natsPub) PublishSearchPerformed(ctx context.Context, query, entityType string, totalCount int) error {
	payload := map[string]interface{}{
		"query":      query,
		"type":       entityType,
		"totalCount": totalCount,
	}
	return p.publish("monastery360.search.performed", "monastery360.search.performed", payload)
}
