// Package scheduler runs the sampling loop.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"serverstats/internal/logger"
	"serverstats/internal/sink"
	"serverstats/internal/stats"
)

const (
	// DefaultCollectTimeout bounds a single Collect call.
	DefaultCollectTimeout = 30 * time.Second
	// DefaultPublishTimeout bounds a single Publish call.
	DefaultPublishTimeout = 10 * time.Second
)

// Collector produces one snapshot per call.
type Collector interface {
	Collect(ctx context.Context) stats.Snapshot
}

// Scheduler collects on a fixed interval and publishes each snapshot. Runs
// from the loop and from RunOnce are serialized, so Collect calls never
// overlap. A tick that fires while a run is in progress is skipped.
type Scheduler struct {
	collector      Collector
	publisher      sink.Publisher
	clock          clock.Clock
	collectTimeout time.Duration
	publishTimeout time.Duration
	suppressEmpty  bool

	runs     atomic.Int64
	overruns atomic.Int64

	// runMu is held for the whole of each collect and publish.
	runMu sync.Mutex

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock replaces the wall clock, for tests.
func WithClock(c clock.Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithCollectTimeout bounds each Collect call.
func WithCollectTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.collectTimeout = d
		}
	}
}

// WithPublishTimeout bounds each Publish call.
func WithPublishTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.publishTimeout = d
		}
	}
}

// WithSuppressEmpty skips publishing snapshots that carry no metrics.
func WithSuppressEmpty(on bool) Option {
	return func(s *Scheduler) { s.suppressEmpty = on }
}

// New creates a stopped scheduler.
func New(c Collector, p sink.Publisher, opts ...Option) *Scheduler {
	s := &Scheduler{
		collector:      c,
		publisher:      p,
		clock:          clock.New(),
		collectTimeout: DefaultCollectTimeout,
		publishTimeout: DefaultPublishTimeout,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Start begins the loop. With runFirst the first run happens immediately,
// otherwise after one interval. Start on a running scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context, interval time.Duration, runFirst bool) error {
	if interval <= 0 {
		return fmt.Errorf("scheduler interval must be positive, got %s", interval)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	ticker := s.clock.Ticker(interval)
	done := make(chan struct{})
	s.running = true
	s.cancel = cancel
	s.done = done

	log := logger.WithComponent("scheduler")
	log.Info().
		Dur("interval", interval).
		Bool("run_first", runFirst).
		Bool("suppress_empty", s.suppressEmpty).
		Msg("Starting scheduler")

	go s.loop(ctx, ticker, interval, runFirst, done)
	return nil
}

// Stop cancels the loop and waits for an in-flight run to finish. It is
// safe to call more than once.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	done := s.done
	s.mu.Unlock()

	log := logger.WithComponent("scheduler")
	log.Info().Msg("Stopping scheduler, waiting for in-flight run")
	<-done
	log.Info().Int64("runs", s.runs.Load()).Int64("overruns", s.overruns.Load()).Msg("Scheduler stopped")
}

// IsRunning reports whether the loop is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Runs returns the number of completed runs.
func (s *Scheduler) Runs() int64 { return s.runs.Load() }

// Overruns returns the number of ticks skipped because a run was still in
// progress.
func (s *Scheduler) Overruns() int64 { return s.overruns.Load() }

// RunOnce collects and publishes one snapshot on the caller's goroutine.
// If a scheduled run is in progress, RunOnce waits for it to finish first.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	return s.run(ctx)
}

func (s *Scheduler) loop(ctx context.Context, ticker *clock.Ticker, interval time.Duration, runFirst bool, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()
	defer func() {
		s.mu.Lock()
		if s.done == done {
			s.running = false
		}
		s.mu.Unlock()
	}()

	if runFirst {
		s.tick(ctx, ticker, interval)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx, ticker, interval)
		}
	}
}

// tick performs one run. If the run took at least one interval, the tick
// that fired meanwhile is dropped and counted.
func (s *Scheduler) tick(ctx context.Context, ticker *clock.Ticker, interval time.Duration) {
	if ctx.Err() != nil {
		return
	}
	start := s.clock.Now()
	// An in-flight run completes even if Stop is called; only the timeouts
	// bound it.
	_ = s.run(context.WithoutCancel(ctx))
	elapsed := s.clock.Since(start)
	if elapsed < interval {
		return
	}

	select {
	case <-ticker.C:
		skipped := int64(elapsed / interval)
		if skipped < 1 {
			skipped = 1
		}
		s.overruns.Add(skipped)
		log := logger.WithComponent("scheduler")
		log.Warn().
			Dur("elapsed", elapsed).
			Dur("interval", interval).
			Int64("skipped", skipped).
			Msg("Run overran the interval, skipping missed ticks")
	default:
	}
}

func (s *Scheduler) run(ctx context.Context) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	log := logger.WithComponent("scheduler")
	defer s.runs.Add(1)

	collectCtx, cancel := context.WithTimeout(ctx, s.collectTimeout)
	start := s.clock.Now()
	snap := s.collector.Collect(collectCtx)
	cancel()

	log.Debug().
		Int("metrics", snap.Len()).
		Dur("duration", s.clock.Since(start)).
		Msg("Collection complete")

	if snap.Empty() && s.suppressEmpty {
		log.Debug().Msg("Empty snapshot suppressed")
		return nil
	}

	publishCtx, cancel := context.WithTimeout(ctx, s.publishTimeout)
	defer cancel()
	if err := s.publisher.Publish(publishCtx, snap); err != nil {
		log.Error().Err(err).Int("metrics", snap.Len()).Msg("Failed to publish snapshot")
		return fmt.Errorf("publish snapshot: %w", err)
	}
	return nil
}
