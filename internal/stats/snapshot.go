// Package stats assembles host telemetry snapshots.
package stats

import (
	"bytes"
	"encoding/json"
	"time"
)

// Snapshot keys, in publication order.
const (
	KeyTemp         = "temp"
	KeyCPUPercent   = "cpu.%"
	KeyCPUPerCore   = "cpu.pc%"
	KeyMemPercent   = "mem.%"
	KeyMemTotal     = "mem.total"
	KeyMemAvailable = "mem.available"
	KeyMemUsed      = "mem.used"
	KeyMemFree      = "mem.free"
)

// Entry is one metric in a Snapshot.
type Entry struct {
	Key   string
	Value interface{}
}

// Snapshot is an ordered set of metrics sampled at one instant. A Snapshot
// is built by a Collector and not modified after it is returned.
type Snapshot struct {
	Time    time.Time
	entries []Entry
}

// NewSnapshot builds a Snapshot from entries, in the order given.
func NewSnapshot(t time.Time, entries ...Entry) Snapshot {
	return Snapshot{Time: t, entries: append([]Entry(nil), entries...)}
}

func (s *Snapshot) add(key string, v interface{}) {
	s.entries = append(s.entries, Entry{Key: key, Value: v})
}

// Get returns the value stored under key.
func (s Snapshot) Get(key string) (interface{}, bool) {
	for _, e := range s.entries {
		if e.Key == key {
			return e.Value, true
		}
	}
	return nil, false
}

// Keys returns metric names in order.
func (s Snapshot) Keys() []string {
	keys := make([]string, len(s.entries))
	for i, e := range s.entries {
		keys[i] = e.Key
	}
	return keys
}

// Entries returns a copy of the metrics in order.
func (s Snapshot) Entries() []Entry {
	return append([]Entry(nil), s.entries...)
}

// Len returns the number of metrics.
func (s Snapshot) Len() int { return len(s.entries) }

// Empty reports whether the snapshot carries no metrics.
func (s Snapshot) Empty() bool { return len(s.entries) == 0 }

// MarshalJSON encodes the metrics as a JSON object, keeping key order.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range s.entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(e.Key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(e.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
