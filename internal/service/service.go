// Package service runs the agent as a foreground process or under a
// supervisor such as systemd.
package service

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"serverstats/internal/logger"
)

// RunFunc is the agent body. It must return once ctx is canceled.
type RunFunc func(ctx context.Context) error

// Service runs a RunFunc until it returns or a shutdown signal arrives.
type Service struct {
	run     RunFunc
	signals <-chan os.Signal
	notify  bool

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped bool
}

// Option configures a Service.
type Option func(*Service)

// WithSignals feeds signals from ch instead of the process, for tests.
func WithSignals(ch <-chan os.Signal) Option {
	return func(s *Service) {
		s.signals = ch
		s.notify = false
	}
}

// New returns a Service that stops on SIGINT or SIGTERM.
func New(run RunFunc, opts ...Option) *Service {
	s := &Service{run: run, notify: true}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Run blocks until run returns. The first signal cancels its context; a
// second one returns immediately without waiting.
func (s *Service) Run(ctx context.Context) error {
	log := logger.WithComponent("service")

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()
	defer s.Stop()

	sigs := s.signals
	if s.notify {
		ch := make(chan os.Signal, 2)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(ch)
		sigs = ch
	}

	done := make(chan error, 1)
	go func() { done <- s.run(ctx) }()

	log.Info().Bool("supervised", IsService()).Msg("Service started")

	select {
	case err := <-done:
		return ignoreCanceled(err)
	case sig := <-sigs:
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		s.Stop()
	}

	select {
	case err := <-done:
		return ignoreCanceled(err)
	case sig := <-sigs:
		log.Warn().Str("signal", sig.String()).Msg("Received second signal, forcing exit")
		return nil
	}
}

// Stop cancels the running RunFunc. Stop before Run makes Run a no-op.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	if s.cancel != nil {
		s.cancel()
	}
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// IsService reports whether the process has no terminal on stdin, which is
// the case under systemd and similar supervisors.
func IsService() bool {
	fi, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice == 0
}
