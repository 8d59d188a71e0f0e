package hardware

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const pi2CPUInfo = `processor	: 0
model name	: ARMv7 Processor rev 5 (v7l)
BogoMIPS	: 38.40
Features	: half thumb fastmult vfp edsp neon vfpv3 tls vfpv4 idiva idivt vfpd32 lpae evtstrm
CPU implementer	: 0x41

Hardware	: BCM2709
Revision	: a01041
Serial		: 00000000deadbeef
`

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantClass Class
		wantToken string
	}{
		{"pi2", pi2CPUInfo, BCM2709, "BCM2709"},
		{"pi1 tight spacing", "Hardware:BCM2708\n", BCM2708, "BCM2708"},
		{"lower case key", "hardware : bcm2709\n", BCM2709, "bcm2709"},
		{"upper case key", "HARDWARE\t:\tBCM2711  \n", BCM2711, "BCM2711"},
		{"leading whitespace", "   Hardware :  sun50iw1p1\n", SunA64, "sun50iw1p1"},
		{"pine a64", "processor : 0\nHardware : sun50iw1p1\n", SunA64, "sun50iw1p1"},
		{"unrecognized token", "Hardware : Qualcomm\n", Unknown, "Qualcomm"},
		{"first match wins", "Hardware : BCM2708\nHardware : BCM2709\n", BCM2708, "BCM2708"},
		{"no hardware line", "processor : 0\nmodel name : Intel(R) Core(TM)\n", Unknown, ""},
		{"key must be exact", "Hardware Rev : BCM2709\nMyHardware : BCM2709\n", Unknown, ""},
		{"not inside a line", "Serial : Hardware : BCM2709\n", Unknown, ""},
		{"empty", "", Unknown, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			class, token, err := Classify(strings.NewReader(tt.input))
			if err != nil {
				t.Fatalf("Classify error: %v", err)
			}
			if class != tt.wantClass {
				t.Errorf("class = %v, want %v", class, tt.wantClass)
			}
			if token != tt.wantToken {
				t.Errorf("token = %q, want %q", token, tt.wantToken)
			}
		})
	}
}

func TestParseClass(t *testing.T) {
	if got := ParseClass(" Sun50IW1P1 "); got != SunA64 {
		t.Errorf("ParseClass = %v, want %v", got, SunA64)
	}
	if got := ParseClass("BCM9999"); got != Unknown {
		t.Errorf("ParseClass = %v, want Unknown", got)
	}
}

func TestClassStrings(t *testing.T) {
	if BCM2709.String() != "BCM2709" || BCM2709.Board() != "Pi 2" {
		t.Errorf("BCM2709 = %q/%q", BCM2709.String(), BCM2709.Board())
	}
	if SunA64.Board() != "Pine A64" {
		t.Errorf("SunA64.Board() = %q", SunA64.Board())
	}
	if Unknown.Board() != "" {
		t.Errorf("Unknown.Board() = %q", Unknown.Board())
	}
	if got := Class(42).String(); got != "Class(42)" {
		t.Errorf("Class(42).String() = %q", got)
	}
}

func TestIdentify_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cpuinfo")
	if err := os.WriteFile(path, []byte(pi2CPUInfo), 0o644); err != nil {
		t.Fatal(err)
	}

	info, err := NewIdentifier(WithCPUInfoPath(path), WithGOOS("linux")).Identify()
	if err != nil {
		t.Fatalf("Identify error: %v", err)
	}
	if info.Class != BCM2709 || info.Token != "BCM2709" {
		t.Errorf("info = %+v, want BCM2709", info)
	}
}

func TestIdentify_NonLinux(t *testing.T) {
	// The path does not exist; it must not even be opened.
	id := NewIdentifier(WithCPUInfoPath("/nonexistent/cpuinfo"), WithGOOS("windows"))
	info, err := id.Identify()
	if err != nil {
		t.Fatalf("Identify error on non-Linux: %v", err)
	}
	if info.Class != Unknown || info.Token != "" {
		t.Errorf("info = %+v, want Unknown", info)
	}
}

func TestIdentify_MissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing")
	info, err := NewIdentifier(WithCPUInfoPath(path), WithGOOS("linux")).Identify()

	if info.Class != Unknown {
		t.Errorf("class = %v, want Unknown", info.Class)
	}
	var ce *ClassificationError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *ClassificationError, got %T (%v)", err, err)
	}
	if ce.Path != path {
		t.Errorf("Path = %q, want %q", ce.Path, path)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected wrapped fs.ErrNotExist, got %v", err)
	}
}
