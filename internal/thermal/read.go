package thermal

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"serverstats/internal/logger"
)

// commandWaitDelay bounds how long Wait lingers on inherited pipes after the
// command has been killed.
const commandWaitDelay = time.Second

// Reading is one temperature sample.
type Reading struct {
	Kind Kind
	// Raw is the value exactly as the file or command reported it, trimmed.
	// Empty for simulated readings.
	Raw string
	// Value is set for simulated readings only.
	Value float64
}

// SnapshotValue is the form published in snapshots: the raw string for
// hardware sources and a number for simulated ones.
func (r Reading) SnapshotValue() interface{} {
	if r.Kind == Simulated {
		return r.Value
	}
	return r.Raw
}

// Celsius converts the reading to degrees. Thermal zone files report
// millidegrees; the vendor command reports degrees.
func (r Reading) Celsius() (float64, error) {
	switch r.Kind {
	case Simulated:
		return r.Value, nil
	case ThermalZoneFile:
		v, err := strconv.ParseFloat(r.Raw, 64)
		if err != nil {
			return 0, fmt.Errorf("parse thermal zone value %q: %w", r.Raw, err)
		}
		return v / 1000, nil
	case VendorCommand:
		v, err := strconv.ParseFloat(strings.TrimSuffix(r.Raw, "C"), 64)
		if err != nil {
			return 0, fmt.Errorf("parse vendor value %q: %w", r.Raw, err)
		}
		return v, nil
	default:
		return 0, ErrUnavailable
	}
}

// commandResult is the captured outcome of a vendor command run.
type commandResult struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Reader performs temperature reads. The zero value is not usable; use
// NewReader.
type Reader struct {
	readFile func(string) ([]byte, error)
	run      func(ctx context.Context, c Command) (commandResult, error)
	intn     func(n int) int

	// zoneBusy is set while a thermal zone read is outstanding.
	zoneBusy atomic.Bool
}

// ReaderOption customizes a Reader.
type ReaderOption func(*Reader)

// WithRand makes simulated readings draw from r. r must not be shared with
// other goroutines.
func WithRand(r *rand.Rand) ReaderOption {
	return func(rd *Reader) { rd.intn = r.Intn }
}

// WithReadFile replaces the file reader.
func WithReadFile(fn func(string) ([]byte, error)) ReaderOption {
	return func(rd *Reader) { rd.readFile = fn }
}

// NewReader returns a Reader backed by the OS.
func NewReader(opts ...ReaderOption) *Reader {
	r := &Reader{
		readFile: os.ReadFile,
		run:      runCommand,
		intn:     rand.Intn,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

var defaultReader = NewReader()

// ReadTemperature reads the current temperature using the default Reader.
func ReadTemperature(ctx context.Context, s Strategy) (Reading, error) {
	return defaultReader.ReadTemperature(ctx, s)
}

// ReadTemperature reads the current temperature with strategy s. File and
// command reads give up when ctx is done.
func (r *Reader) ReadTemperature(ctx context.Context, s Strategy) (Reading, error) {
	switch s.Kind {
	case ThermalZoneFile:
		return r.fromThermalZone(ctx, s.ThermalZonePath)
	case VendorCommand:
		return r.fromVendorCommand(ctx, s.Command)
	case Simulated:
		return Reading{Kind: Simulated, Value: r.simulate(s.Range)}, nil
	default:
		return Reading{}, ErrUnavailable
	}
}

// fromThermalZone reads path on a helper goroutine so that ctx can bound the
// wait. A read that never returns cannot be interrupted; its goroutine stays
// blocked, and later calls fail with ErrReadPending until it completes, so at
// most one such goroutine exists per Reader.
func (r *Reader) fromThermalZone(ctx context.Context, path string) (Reading, error) {
	log := logger.WithComponent("thermal")
	log.Debug().Str("path", path).Msg("Reading thermal zone")

	if !r.zoneBusy.CompareAndSwap(false, true) {
		err := &ReadError{Path: path, Err: ErrReadPending}
		log.Warn().Str("path", path).Msg("Earlier thermal zone read still pending, skipping")
		return Reading{}, err
	}

	type result struct {
		data []byte
		err  error
	}
	done := make(chan result, 1)
	go func() {
		data, err := r.readFile(path)
		r.zoneBusy.Store(false)
		done <- result{data, err}
	}()

	var res result
	select {
	case res = <-done:
	case <-ctx.Done():
		res.err = ctx.Err()
	}
	if res.err != nil {
		err := &ReadError{Path: path, Err: res.err}
		log.Error().Err(err).Str("path", path).Msg("Thermal zone read failed")
		return Reading{}, err
	}

	raw := strings.TrimSpace(string(res.data))
	log.Debug().Str("temperature", raw).Msg("Thermal zone read")
	return Reading{Kind: ThermalZoneFile, Raw: raw}, nil
}

// vendorValue captures the text between '=' and a closing single quote,
// as in "temp=42.8'C".
var vendorValue = regexp.MustCompile(`=(.*)'`)

func (r *Reader) fromVendorCommand(ctx context.Context, c Command) (Reading, error) {
	log := logger.WithComponent("thermal")
	cmdline := c.String()
	log.Debug().Str("command", cmdline).Msg("Running vendor command")

	res, err := r.run(ctx, c)
	if err != nil || res.ExitCode != 0 {
		cerr := &CommandError{
			Command:  cmdline,
			ExitCode: res.ExitCode,
			Stderr:   strings.TrimSpace(string(res.Stderr)),
			Err:      err,
		}
		log.Error().
			Err(cerr).
			Str("command", cmdline).
			Int("exit_code", res.ExitCode).
			Str("stderr", cerr.Stderr).
			Msg("Vendor command failed")
		return Reading{}, cerr
	}

	out := string(res.Stdout)
	log.Debug().Str("output", out).Msg("Vendor command output")

	m := vendorValue.FindStringSubmatch(out)
	if m == nil {
		perr := &ParseError{Command: cmdline, Output: out}
		log.Error().Str("command", cmdline).Str("output", out).Msg("Invalid temperature format")
		return Reading{}, perr
	}

	log.Debug().Str("temperature", m[1]).Msg("Vendor command read")
	return Reading{Kind: VendorCommand, Raw: m[1]}, nil
}

// simulate draws uniformly from {Min, Min+Step, ..., Max}.
func (r *Reader) simulate(sr SimulatedRange) float64 {
	if sr.Step <= 0 || sr.Max < sr.Min {
		sr = DefaultSimulatedRange
	}
	steps := int(math.Round((sr.Max - sr.Min) / sr.Step))
	v := float64(r.intn(steps+1))*sr.Step + sr.Min
	return roundToStep(v, sr.Step)
}

// roundToStep removes float noise by rounding to the step's decimal places.
func roundToStep(v, step float64) float64 {
	decimals := math.Ceil(-math.Log10(step))
	if decimals < 0 {
		decimals = 0
	}
	p := math.Pow(10, decimals)
	return math.Round(v*p) / p
}

func runCommand(ctx context.Context, c Command) (commandResult, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = commandWaitDelay

	err := cmd.Run()
	res := commandResult{Stdout: stdout.Bytes(), Stderr: stderr.Bytes(), ExitCode: -1}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		res.ExitCode = 0
	case ctx.Err() != nil:
		// Killed on timeout or cancellation; report why rather than the signal.
		return res, ctx.Err()
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
		if res.ExitCode < 0 {
			return res, err
		}
		return res, nil
	}
	return res, err
}
