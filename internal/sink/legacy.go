package sink

import (
	"fmt"
	"strconv"
	"time"

	"serverstats/internal/stats"
)

const legacyTimeFmt = "2006-01-02 15:04:05"

// FormatLegacyTimestamp formats t as "2006-01-02 15:04:05,000", the layout
// Grok's TIMESTAMP_ISO8601 pattern accepts.
func FormatLegacyTimestamp(t time.Time) string {
	return fmt.Sprintf("%s,%03d", t.Format(legacyTimeFmt), t.Nanosecond()/1e6)
}

// LegacyLines renders snap as one "ts host:H,metric:M,value:V" line per
// value. Per-core CPU values become metrics "cpu.pc%.0", "cpu.pc%.1" and so
// on.
func LegacyLines(hostname string, snap stats.Snapshot) []string {
	ts := FormatLegacyTimestamp(snap.Time)
	var lines []string
	emit := func(metric, value string) {
		lines = append(lines, fmt.Sprintf("%s host:%s,metric:%s,value:%s", ts, hostname, metric, value))
	}
	for _, e := range snap.Entries() {
		switch v := e.Value.(type) {
		case []float64:
			for i, f := range v {
				emit(e.Key+"."+strconv.Itoa(i), formatFloat(f))
			}
		case float64:
			emit(e.Key, formatFloat(v))
		case string:
			emit(e.Key, v)
		default:
			emit(e.Key, fmt.Sprint(v))
		}
	}
	return lines
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
