package sink

import (
	"context"
	"sync"

	"serverstats/internal/stats"
)

// MemorySink keeps published snapshots in process, for tests. Snapshots are
// delivered on C when a reader is keeping up and always recorded for All.
type MemorySink struct {
	C <-chan stats.Snapshot

	ch     chan stats.Snapshot
	mu     sync.Mutex
	got    []stats.Snapshot
	err    error
	closed bool
}

// NewMemorySink returns a MemorySink whose channel buffers size snapshots.
// Snapshots that do not fit are dropped from the channel only.
func NewMemorySink(size int) *MemorySink {
	ch := make(chan stats.Snapshot, size)
	return &MemorySink{C: ch, ch: ch}
}

// FailWith makes subsequent Publish calls return err. A nil err clears it.
func (m *MemorySink) FailWith(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

// Publish records snap.
func (m *MemorySink) Publish(ctx context.Context, snap stats.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if m.err != nil {
		return m.err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.got = append(m.got, snap)
	select {
	case m.ch <- snap:
	default:
	}
	return nil
}

// All returns every snapshot published so far.
func (m *MemorySink) All() []stats.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]stats.Snapshot(nil), m.got...)
}

// Len returns the number of snapshots published so far.
func (m *MemorySink) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.got)
}

// Close closes C.
func (m *MemorySink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.ch)
	}
	return nil
}
