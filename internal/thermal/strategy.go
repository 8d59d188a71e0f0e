// Package thermal selects and reads the SoC temperature source.
//
// The source is resolved once at startup into a Strategy value. After that
// every sample goes through ReadTemperature, which switches on the
// strategy's Kind.
package thermal

import (
	"io/fs"
	"os"
	"strings"

	"serverstats/internal/hardware"
	"serverstats/internal/logger"
)

const (
	// DefaultThermalZonePath reports the SoC temperature in millidegrees.
	DefaultThermalZonePath = "/sys/devices/virtual/thermal/thermal_zone0/temp"
	// DefaultVendorCommandPath is the Raspberry Pi firmware tool.
	DefaultVendorCommandPath = "/opt/vc/bin/vcgencmd"
)

// DefaultVendorCommandArgs asks vcgencmd for the calibrated SoC temperature.
var DefaultVendorCommandArgs = []string{"measure_temp"}

// Kind tags the temperature strategy variant.
type Kind int

const (
	Unavailable Kind = iota
	ThermalZoneFile
	VendorCommand
	Simulated
)

func (k Kind) String() string {
	switch k {
	case ThermalZoneFile:
		return "thermal_zone_file"
	case VendorCommand:
		return "vendor_command"
	case Simulated:
		return "simulated"
	default:
		return "unavailable"
	}
}

// Command is an external program invocation.
type Command struct {
	Path string
	Args []string
}

func (c Command) String() string {
	return strings.Join(append([]string{c.Path}, c.Args...), " ")
}

// SimulatedRange bounds the synthetic readings used in debug mode.
type SimulatedRange struct {
	Min  float64
	Max  float64
	Step float64
}

// DefaultSimulatedRange matches the debug payload of 5.0 to 60.0 in 0.1 steps.
var DefaultSimulatedRange = SimulatedRange{Min: 5, Max: 60, Step: 0.1}

// Strategy is the resolved way of reading the temperature. Only the fields
// relevant to Kind are set.
type Strategy struct {
	Kind            Kind
	ThermalZonePath string
	Command         Command
	Range           SimulatedRange
}

// Available reports whether the strategy can produce readings.
func (s Strategy) Available() bool { return s.Kind != Unavailable }

// Target returns the path or command a read will touch, for logging.
func (s Strategy) Target() string {
	switch s.Kind {
	case ThermalZoneFile:
		return s.ThermalZonePath
	case VendorCommand:
		return s.Command.String()
	default:
		return ""
	}
}

type resolveOptions struct {
	thermalZonePath string
	command         Command
	simRange        SimulatedRange
	stat            func(string) (fs.FileInfo, error)
}

// Option customizes Resolve.
type Option func(*resolveOptions)

// WithThermalZonePath overrides the thermal zone file to probe and read.
func WithThermalZonePath(path string) Option {
	return func(o *resolveOptions) {
		if path != "" {
			o.thermalZonePath = path
		}
	}
}

// WithVendorCommand overrides the vendor diagnostic command.
func WithVendorCommand(path string, args ...string) Option {
	return func(o *resolveOptions) {
		if path != "" {
			o.command = Command{Path: path, Args: args}
		}
	}
}

// WithSimulatedRange overrides the debug reading range.
func WithSimulatedRange(r SimulatedRange) Option {
	return func(o *resolveOptions) {
		if r.Step > 0 && r.Max >= r.Min {
			o.simRange = r
		}
	}
}

// WithStat replaces the filesystem probe used to detect the thermal zone.
func WithStat(stat func(string) (fs.FileInfo, error)) Option {
	return func(o *resolveOptions) { o.stat = stat }
}

// Resolve picks the temperature strategy for the host. The rules apply in
// order:
//
//  1. debug selects Simulated.
//  2. an existing thermal zone file selects ThermalZoneFile.
//  3. on BCM2708/BCM2709 boards that file is overridden by VendorCommand.
//  4. Pine A64 (sun50iw1p1) keeps the thermal zone file.
//  5. anything else is Unavailable.
//
// The override only fires when the thermal zone file exists, so boards
// without the firmware tool never try to run it.
func Resolve(hc hardware.Class, debug bool, opts ...Option) Strategy {
	o := resolveOptions{
		thermalZonePath: DefaultThermalZonePath,
		command:         Command{Path: DefaultVendorCommandPath, Args: DefaultVendorCommandArgs},
		simRange:        DefaultSimulatedRange,
		stat:            os.Stat,
	}
	for _, opt := range opts {
		opt(&o)
	}

	log := logger.WithComponent("thermal")

	if debug {
		log.Info().Msg("Debug mode, using simulated temperature")
		return Strategy{Kind: Simulated, Range: o.simRange}
	}

	fi, err := o.stat(o.thermalZonePath)
	if err != nil || fi.IsDir() {
		log.Warn().
			Str("path", o.thermalZonePath).
			Str("hardware", hc.String()).
			Msg("No thermal zone file, temperature unavailable")
		return Strategy{Kind: Unavailable}
	}
	s := Strategy{Kind: ThermalZoneFile, ThermalZonePath: o.thermalZonePath}

	switch hc {
	case hardware.BCM2708, hardware.BCM2709:
		log.Debug().Str("board", hc.Board()).Msg("Using vendor command for temperature")
		s = Strategy{Kind: VendorCommand, Command: o.command}
	case hardware.SunA64:
		log.Debug().Str("board", hc.Board()).Msg("Thermal zone file is authoritative")
	}

	log.Info().
		Str("strategy", s.Kind.String()).
		Str("target", s.Target()).
		Str("hardware", hc.String()).
		Msg("Temperature strategy resolved")
	return s
}
