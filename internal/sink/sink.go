// Package sink publishes snapshots to their destination.
package sink

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"serverstats/internal/stats"
)

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("sink is closed")

// Publisher hands a snapshot to its destination.
type Publisher interface {
	// Publish delivers one snapshot. Implementations must not retain it.
	Publish(ctx context.Context, snap stats.Snapshot) error

	// Close flushes pending output and releases resources.
	Close() error
}

// Meta identifies the publishing host and is attached to every envelope.
type Meta struct {
	AgentID  string
	Hostname string
	Hardware string
	Strategy string
}

// Envelope is the wire form shared by the file, kafka and redis sinks.
type Envelope struct {
	AgentID   string         `json:"agent_id"`
	Hostname  string         `json:"hostname"`
	Hardware  string         `json:"hardware,omitempty"`
	Strategy  string         `json:"strategy,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Data      stats.Snapshot `json:"data"`
}

// NewEnvelope wraps snap with meta.
func NewEnvelope(meta Meta, snap stats.Snapshot) Envelope {
	return Envelope{
		AgentID:   meta.AgentID,
		Hostname:  meta.Hostname,
		Hardware:  meta.Hardware,
		Strategy:  meta.Strategy,
		Timestamp: snap.Time,
		Data:      snap,
	}
}

func encode(meta Meta, snap stats.Snapshot) ([]byte, error) {
	return json.Marshal(NewEnvelope(meta, snap))
}
