package sink

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"

	"go.uber.org/goleak"

	"serverstats/internal/logger"
	"serverstats/internal/stats"
)

func TestMain(m *testing.M) {
	_ = logger.Init(logger.Config{Level: "disabled"})
	goleak.VerifyTestMain(m,
		goleak.IgnoreAnyFunction("gopkg.in/natefinch/lumberjack%2ev2.(*Logger).millRun"),
		goleak.IgnoreAnyFunction("gopkg.in/natefinch/lumberjack.v2.(*Logger).millRun"),
	)
}

var sampleTime = time.Date(2026, 10, 19, 12, 0, 0, 250000000, time.UTC)

var sampleMeta = Meta{AgentID: "pi-01", Hostname: "kitchen", Hardware: "BCM2709", Strategy: "vendor_command"}

func sampleSnapshot() stats.Snapshot {
	return stats.NewSnapshot(sampleTime,
		stats.Entry{Key: stats.KeyTemp, Value: "42.8"},
		stats.Entry{Key: stats.KeyCPUPercent, Value: 12.5},
		stats.Entry{Key: stats.KeyCPUPerCore, Value: []float64{10, 15}},
		stats.Entry{Key: stats.KeyMemFree, Value: 1.15},
	)
}

func TestEnvelope_JSON(t *testing.T) {
	data, err := encode(sampleMeta, sampleSnapshot())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := `{"agent_id":"pi-01","hostname":"kitchen","hardware":"BCM2709","strategy":"vendor_command",` +
		`"timestamp":"2026-10-19T12:00:00.25Z",` +
		`"data":{"temp":"42.8","cpu.%":12.5,"cpu.pc%":[10,15],"mem.free":1.15}}`
	if string(data) != want {
		t.Errorf("envelope = %s\nwant       %s", data, want)
	}
}

func TestEnvelope_EmptySnapshot(t *testing.T) {
	data, err := encode(Meta{AgentID: "a", Hostname: "h"}, stats.NewSnapshot(sampleTime))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var got map[string]interface{}
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !reflect.DeepEqual(got["data"], map[string]interface{}{}) {
		t.Errorf("data = %#v, want empty object", got["data"])
	}
	if _, ok := got["hardware"]; ok {
		t.Error("empty hardware should be omitted")
	}
}

func TestLegacyLines(t *testing.T) {
	got := LegacyLines("kitchen", sampleSnapshot())
	want := []string{
		"2026-10-19 12:00:00,250 host:kitchen,metric:temp,value:42.8",
		"2026-10-19 12:00:00,250 host:kitchen,metric:cpu.%,value:12.5",
		"2026-10-19 12:00:00,250 host:kitchen,metric:cpu.pc%.0,value:10",
		"2026-10-19 12:00:00,250 host:kitchen,metric:cpu.pc%.1,value:15",
		"2026-10-19 12:00:00,250 host:kitchen,metric:mem.free,value:1.15",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("LegacyLines =\n%v\nwant\n%v", got, want)
	}
	if lines := LegacyLines("kitchen", stats.NewSnapshot(sampleTime)); len(lines) != 0 {
		t.Errorf("expected no lines for empty snapshot, got %v", lines)
	}
}

func TestFormatLegacyTimestamp(t *testing.T) {
	ts := time.Date(2026, 2, 24, 10, 30, 45, 7000000, time.UTC)
	if got := FormatLegacyTimestamp(ts); got != "2026-02-24 10:30:45,007" {
		t.Errorf("FormatLegacyTimestamp = %q", got)
	}
}
