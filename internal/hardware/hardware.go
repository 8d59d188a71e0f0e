// Package hardware classifies the board/SoC the agent is running on.
package hardware

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"runtime"
	"strings"

	"serverstats/internal/logger"
)

// DefaultCPUInfoPath is the kernel's platform information file.
const DefaultCPUInfoPath = "/proc/cpuinfo"

// Class identifies a known SoC family.
type Class int

const (
	Unknown Class = iota
	BCM2708       // Raspberry Pi 1 / Zero
	BCM2709       // Raspberry Pi 2 / 3 on older kernels
	BCM2835       // Raspberry Pi on mainline-style kernels
	BCM2711       // Raspberry Pi 4
	SunA64        // Allwinner A64 (Pine A64), reported as sun50iw1p1
)

var tokens = map[string]Class{
	"bcm2708":    BCM2708,
	"bcm2709":    BCM2709,
	"bcm2835":    BCM2835,
	"bcm2711":    BCM2711,
	"sun50iw1p1": SunA64,
}

var names = map[Class]string{
	Unknown: "unknown",
	BCM2708: "BCM2708",
	BCM2709: "BCM2709",
	BCM2835: "BCM2835",
	BCM2711: "BCM2711",
	SunA64:  "sun50iw1p1",
}

func (c Class) String() string {
	if s, ok := names[c]; ok {
		return s
	}
	return fmt.Sprintf("Class(%d)", int(c))
}

// Board returns a human readable board name for logs.
func (c Class) Board() string {
	switch c {
	case BCM2708:
		return "Pi 1"
	case BCM2709:
		return "Pi 2"
	case BCM2835, BCM2711:
		return "Raspberry Pi"
	case SunA64:
		return "Pine A64"
	default:
		return ""
	}
}

// ParseClass maps a cpuinfo Hardware token to a Class, ignoring case.
func ParseClass(token string) Class {
	if c, ok := tokens[strings.ToLower(strings.TrimSpace(token))]; ok {
		return c
	}
	return Unknown
}

// Info is the startup classification result.
type Info struct {
	Class Class
	// Token is the raw Hardware value, empty when no line matched.
	Token string
	// Machine is the uname machine field (e.g. "armv7l"); empty off Linux.
	Machine string
}

// ClassificationError reports that the platform file could not be read.
// Identification still yields Unknown.
type ClassificationError struct {
	Path string
	Err  error
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("classify hardware from %s: %v", e.Path, e.Err)
}

func (e *ClassificationError) Unwrap() error { return e.Err }

var hardwareLine = regexp.MustCompile(`(?i)^\s*hardware\s*:\s*(\w+)\s*$`)

// Classify scans r line by line for the first "Hardware : <token>" entry.
// It returns the mapped class and the raw token.
func Classify(r io.Reader) (Class, string, error) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if m := hardwareLine.FindStringSubmatch(sc.Text()); m != nil {
			return ParseClass(m[1]), m[1], nil
		}
	}
	return Unknown, "", sc.Err()
}

// Identifier reads platform identification data.
type Identifier struct {
	path string
	goos string
	open func(string) (io.ReadCloser, error)
}

// Option customizes an Identifier.
type Option func(*Identifier)

// WithCPUInfoPath overrides the platform information file.
func WithCPUInfoPath(path string) Option {
	return func(id *Identifier) {
		if path != "" {
			id.path = path
		}
	}
}

// WithGOOS overrides the detected operating system.
func WithGOOS(goos string) Option {
	return func(id *Identifier) { id.goos = goos }
}

// NewIdentifier returns an Identifier for the running host.
func NewIdentifier(opts ...Option) *Identifier {
	id := &Identifier{
		path: DefaultCPUInfoPath,
		goos: runtime.GOOS,
		open: func(p string) (io.ReadCloser, error) { return os.Open(p) },
	}
	for _, o := range opts {
		o(id)
	}
	return id
}

// Identify classifies the host. Only Linux is inspected; every other OS is
// Unknown without error. A read failure returns Unknown together with a
// *ClassificationError, which callers should log and otherwise ignore.
func (id *Identifier) Identify() (Info, error) {
	log := logger.WithComponent("hardware")

	if id.goos != "linux" {
		log.Debug().Str("goos", id.goos).Msg("Hardware identification skipped on non-Linux host")
		return Info{Class: Unknown}, nil
	}

	info := Info{Class: Unknown, Machine: machine()}

	f, err := id.open(id.path)
	if err != nil {
		return info, &ClassificationError{Path: id.path, Err: err}
	}
	defer f.Close()

	class, token, err := Classify(f)
	if err != nil {
		return info, &ClassificationError{Path: id.path, Err: err}
	}
	info.Class = class
	info.Token = token

	log.Debug().
		Str("hardware", token).
		Str("class", class.String()).
		Str("machine", info.Machine).
		Msg("Hardware identified")
	return info, nil
}
