package stats

import (
	"encoding/json"
	"testing"
)

func TestSnapshot_MarshalJSONKeepsOrder(t *testing.T) {
	var s Snapshot
	s.add(KeyTemp, "48312")
	s.add(KeyCPUPercent, 3.5)
	s.add(KeyCPUPerCore, []float64{1, 6})
	s.add(KeyMemTotal, 2.0)

	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"temp":"48312","cpu.%":3.5,"cpu.pc%":[1,6],"mem.total":2}`
	if string(data) != want {
		t.Errorf("json = %s\nwant   %s", data, want)
	}
}

func TestSnapshot_EmptyMarshalsToObject(t *testing.T) {
	data, err := json.Marshal(Snapshot{})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(data) != "{}" {
		t.Errorf("json = %s, want {}", data)
	}
}

func TestSnapshot_EntriesIsACopy(t *testing.T) {
	var s Snapshot
	s.add(KeyTemp, 20.5)

	e := s.Entries()
	e[0].Value = 99.0

	if v, _ := s.Get(KeyTemp); v != 20.5 {
		t.Errorf("snapshot mutated through Entries: %v", v)
	}
	if _, ok := s.Get(KeyMemFree); ok {
		t.Error("Get found a key that was never added")
	}
}
