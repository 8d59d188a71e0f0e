// Package main is the entry point for the ServerStats agent.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	flag "github.com/spf13/pflag"

	"serverstats/internal/config"
	"serverstats/internal/hardware"
	"serverstats/internal/logger"
	"serverstats/internal/scheduler"
	"serverstats/internal/service"
	"serverstats/internal/sink"
	"serverstats/internal/stats"
	"serverstats/internal/thermal"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

const startupErrorLogDir = "log/ServerStats"

type options struct {
	configPath  string
	loggingPath string
	debug       bool
	once        bool
	showVersion bool
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet("serverstats", flag.ContinueOnError)
	fs.StringVarP(&o.configPath, "config", "c", "conf/ServerStats/ServerStats.json", "path to main configuration file (.json or .yaml)")
	fs.StringVarP(&o.loggingPath, "logging", "l", "conf/ServerStats/Logging.json", "path to logging configuration file")
	fs.BoolVarP(&o.debug, "debug", "d", false, "report simulated temperature only")
	fs.BoolVar(&o.once, "once", false, "collect and publish one snapshot, then exit")
	fs.BoolVarP(&o.showVersion, "version", "v", false, "show version information")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	return o, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		os.Exit(2)
	}
	if opts.showVersion {
		fmt.Printf("ServerStats %s (built %s)\n", version, buildTime)
		return
	}

	if service.IsService() {
		logger.SetServiceMode(true)
	}

	cfg, lc, err := config.LoadSplit(opts.configPath, opts.loggingPath)
	if err != nil {
		fatalStartup("Failed to load configuration", err)
	}
	if opts.debug {
		cfg.Sampling.Debug = true
	}

	if err := logger.Init(*lc); err != nil {
		fatalStartup("Failed to initialize logger", err)
	}
	defer logger.Close()

	log := logger.WithComponent("main")
	log.Info().
		Str("version", version).
		Str("config", opts.configPath).
		Str("logging", opts.loggingPath).
		Bool("debug", cfg.Sampling.Debug).
		Msg("Starting ServerStats")

	if opts.once {
		if err := runOnce(context.Background(), cfg); err != nil {
			log.Error().Err(err).Msg("Single collection failed")
			logger.Close()
			os.Exit(1)
		}
		return
	}

	svc := service.New(func(ctx context.Context) error {
		return run(ctx, cfg, lc, opts.loggingPath)
	})
	if err := svc.Run(context.Background()); err != nil {
		log.Error().Err(err).Msg("Service exited with error")
		logger.Close()
		os.Exit(1)
	}
	log.Info().Msg("ServerStats stopped")
}

func fatalStartup(msg string, err error) {
	_, _ = service.WriteStartupErrorFile(startupErrorLogDir, err)
	fmt.Fprintf(os.Stderr, "%s: %v\n", msg, err)
	os.Exit(1)
}

// thermalOptions maps sampling settings onto strategy resolution options.
func thermalOptions(s config.SamplingConfig) []thermal.Option {
	return []thermal.Option{
		thermal.WithThermalZonePath(s.ThermalZonePath),
		thermal.WithVendorCommand(s.VendorCommand, s.VendorArgs...),
		thermal.WithSimulatedRange(thermal.SimulatedRange{
			Min:  s.SimulatedMin,
			Max:  s.SimulatedMax,
			Step: s.SimulatedStep,
		}),
	}
}

// resolve performs the one-time hardware and strategy detection.
func resolve(cfg *config.Config, extra ...hardware.Option) stats.ResolvedConfig {
	opts := append([]hardware.Option{hardware.WithCPUInfoPath(cfg.Sampling.CPUInfoPath)}, extra...)
	id := hardware.NewIdentifier(opts...)
	return stats.Resolve(id, cfg.Sampling.Debug, thermalOptions(cfg.Sampling)...)
}

func newMeta(cfg *config.Config, rc stats.ResolvedConfig) sink.Meta {
	return sink.Meta{
		AgentID:  config.GetAgentID(cfg),
		Hostname: config.GetHostname(cfg),
		Hardware: rc.Hardware.Class.String(),
		Strategy: rc.Strategy.Kind.String(),
	}
}

// setup builds the collector, the sink and the scheduler for cfg.
func setup(cfg *config.Config, rc stats.ResolvedConfig) (*scheduler.Scheduler, sink.Publisher, error) {
	pub, err := sink.New(cfg.Sink, newMeta(cfg, rc))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create sink: %w", err)
	}
	col := stats.NewCollector(rc, stats.WithReadTimeout(cfg.Sampling.ReadTimeout))
	sched := scheduler.New(col, pub,
		scheduler.WithCollectTimeout(cfg.Sampling.CollectTimeout),
		scheduler.WithPublishTimeout(cfg.Sampling.PublishTimeout),
		scheduler.WithSuppressEmpty(cfg.Sampling.SuppressEmpty),
	)
	return sched, pub, nil
}

func closeSink(pub sink.Publisher) {
	log := logger.WithComponent("main")
	log.Info().Msg("Closing sink")
	if err := pub.Close(); err != nil {
		log.Error().Err(err).Msg("Error closing sink")
	}
}

func runOnce(ctx context.Context, cfg *config.Config) error {
	sched, pub, err := setup(cfg, resolve(cfg))
	if err != nil {
		return err
	}
	defer closeSink(pub)
	return sched.RunOnce(ctx)
}

// setupLoggingWatcher hot-reloads Logging.json. The returned function stops
// the watcher.
func setupLoggingWatcher(loggingPath string, pub sink.Publisher) func() {
	log := logger.WithComponent("main")
	var mu sync.Mutex

	w, err := config.NewLoggingWatcher(loggingPath, func(lc *logger.Config) {
		mu.Lock()
		defer mu.Unlock()

		if err := logger.Init(*lc); err != nil {
			log.Error().Err(err).Msg("Failed to update logging configuration")
			return
		}
		if fs, ok := pub.(*sink.FileSink); ok {
			fs.SetConsole(lc.Console)
		}
		reloaded := logger.WithComponent("main")
		reloaded.Info().Str("level", lc.Level).Msg("Logging configuration updated")
	})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create logging watcher, hot reload disabled")
		return func() {}
	}
	if err := w.Start(); err != nil {
		log.Warn().Err(err).Msg("Failed to start logging watcher, hot reload disabled")
		return func() {}
	}
	return func() {
		if err := w.Stop(); err != nil {
			log.Error().Err(err).Msg("Error stopping logging watcher")
		}
	}
}

func run(ctx context.Context, cfg *config.Config, lc *logger.Config, loggingPath string) error {
	log := logger.WithComponent("main")

	rc := resolve(cfg)
	log.Info().
		Str("agent_id", config.GetAgentID(cfg)).
		Str("hostname", config.GetHostname(cfg)).
		Str("machine", rc.Hardware.Machine).
		Str("target", rc.Strategy.Target()).
		Msg("Agent initialized")
	if !rc.Strategy.Available() {
		log.Warn().Msg("No temperature source found, snapshots will be empty")
	}

	// Logging.json Console is the master switch for console output.
	cfg.Sink.File.Console = cfg.Sink.File.Console && lc.Console
	sched, pub, err := setup(cfg, rc)
	if err != nil {
		return err
	}
	defer closeSink(pub)

	if err := sched.Start(ctx, cfg.Sampling.Interval, cfg.Sampling.RunFirst); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	stopWatcher := setupLoggingWatcher(loggingPath, pub)
	defer stopWatcher()

	<-ctx.Done()
	sched.Stop()
	return nil
}
