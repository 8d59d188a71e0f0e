package stats

import (
	"context"
	"math"
	"time"

	"github.com/benbjohnson/clock"

	"serverstats/internal/hardware"
	"serverstats/internal/logger"
	"serverstats/internal/thermal"
)

const bytesPerGigabyte = 1024 * 1024 * 1024

// DefaultReadTimeout bounds a single temperature read.
const DefaultReadTimeout = 5 * time.Second

// ResolvedConfig is fixed at startup and shared read-only by the collector
// and scheduler.
type ResolvedConfig struct {
	Hardware hardware.Info
	Strategy thermal.Strategy
	Debug    bool
}

// Resolve identifies the hardware and picks the temperature strategy.
// Classification failures are logged and degrade to hardware.Unknown.
func Resolve(id *hardware.Identifier, debug bool, opts ...thermal.Option) ResolvedConfig {
	log := logger.WithComponent("stats")

	info, err := id.Identify()
	if err != nil {
		log.Warn().Err(err).Msg("Hardware classification failed, continuing as unknown")
	}

	rc := ResolvedConfig{
		Hardware: info,
		Strategy: thermal.Resolve(info.Class, debug, opts...),
		Debug:    debug,
	}
	log.Info().
		Str("hardware", info.Class.String()).
		Str("board", info.Class.Board()).
		Str("strategy", rc.Strategy.Kind.String()).
		Bool("debug", debug).
		Msg("Startup resolution complete")
	return rc
}

// TemperatureReader reads the temperature for a strategy.
type TemperatureReader interface {
	ReadTemperature(ctx context.Context, s thermal.Strategy) (thermal.Reading, error)
}

// Collector builds one Snapshot per call.
type Collector struct {
	cfg         ResolvedConfig
	counters    Counters
	reader      TemperatureReader
	clock       clock.Clock
	readTimeout time.Duration
}

// Option customizes a Collector.
type Option func(*Collector)

// WithCounters replaces the OS counter source.
func WithCounters(c Counters) Option {
	return func(col *Collector) { col.counters = c }
}

// WithTemperatureReader replaces the temperature reader.
func WithTemperatureReader(r TemperatureReader) Option {
	return func(col *Collector) { col.reader = r }
}

// WithClock sets the clock used to timestamp snapshots.
func WithClock(c clock.Clock) Option {
	return func(col *Collector) { col.clock = c }
}

// WithReadTimeout bounds each temperature read.
func WithReadTimeout(d time.Duration) Option {
	return func(col *Collector) {
		if d > 0 {
			col.readTimeout = d
		}
	}
}

// NewCollector returns a Collector for cfg.
func NewCollector(cfg ResolvedConfig, opts ...Option) *Collector {
	c := &Collector{
		cfg:         cfg,
		counters:    PSUtilCounters{},
		reader:      thermal.NewReader(),
		clock:       clock.New(),
		readTimeout: DefaultReadTimeout,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Config returns the resolved configuration the collector runs with.
func (c *Collector) Config() ResolvedConfig { return c.cfg }

// Collect samples the host. In debug mode only the simulated temperature is
// included. With no temperature source the snapshot is empty. Individual
// read failures drop the affected keys and are logged.
func (c *Collector) Collect(ctx context.Context) Snapshot {
	log := logger.WithComponent("stats")
	log.Debug().Msg("Collecting system stats")

	snap := Snapshot{Time: c.clock.Now()}

	if c.cfg.Debug {
		c.addTemperature(ctx, &snap)
		return snap
	}
	if !c.cfg.Strategy.Available() {
		return snap
	}

	c.addTemperature(ctx, &snap)

	if total, err := c.counters.CPUPercent(ctx, false); err != nil {
		log.Error().Err(err).Msg("Failed to read CPU percent")
	} else if len(total) > 0 {
		snap.add(KeyCPUPercent, total[0])
	}

	if perCore, err := c.counters.CPUPercent(ctx, true); err != nil {
		log.Error().Err(err).Msg("Failed to read per-core CPU percent")
	} else {
		snap.add(KeyCPUPerCore, perCore)
	}

	vm, err := c.counters.VirtualMemory(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read virtual memory")
		return snap
	}
	snap.add(KeyMemPercent, vm.UsedPercent)
	snap.add(KeyMemTotal, Gigabytes(vm.Total))
	snap.add(KeyMemAvailable, Gigabytes(vm.Available))
	snap.add(KeyMemUsed, Gigabytes(vm.Used))
	snap.add(KeyMemFree, Gigabytes(vm.Free))

	return snap
}

func (c *Collector) addTemperature(ctx context.Context, snap *Snapshot) {
	readCtx, cancel := context.WithTimeout(ctx, c.readTimeout)
	defer cancel()

	r, err := c.reader.ReadTemperature(readCtx, c.cfg.Strategy)
	if err != nil {
		log := logger.WithComponent("stats")
		log.Warn().
			Err(err).
			Str("strategy", c.cfg.Strategy.Kind.String()).
			Str("target", c.cfg.Strategy.Target()).
			Msg("Temperature unavailable this tick")
		return
	}
	snap.add(KeyTemp, r.SnapshotValue())
}

// Gigabytes converts a byte count to GiB rounded to two decimals.
func Gigabytes(b uint64) float64 {
	return math.Round(float64(b)/bytesPerGigabyte*100) / 100
}
