package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/goleak"

	"serverstats/internal/logger"
	"serverstats/internal/sink"
	"serverstats/internal/stats"
)

func TestMain(m *testing.M) {
	_ = logger.Init(logger.Config{Level: "disabled"})
	goleak.VerifyTestMain(m)
}

// testCollector records concurrency and can block each run until released.
type testCollector struct {
	clock   clock.Clock
	empty   bool
	started chan struct{}
	release chan struct{}

	mu          sync.Mutex
	calls       int
	inFlight    int
	maxInFlight int
	ctxErrs     []error
	deadlines   []bool
}

func newTestCollector(c clock.Clock) *testCollector {
	return &testCollector{clock: c, started: make(chan struct{}, 16)}
}

func (c *testCollector) Collect(ctx context.Context) stats.Snapshot {
	c.mu.Lock()
	c.calls++
	c.inFlight++
	if c.inFlight > c.maxInFlight {
		c.maxInFlight = c.inFlight
	}
	_, hasDeadline := ctx.Deadline()
	c.deadlines = append(c.deadlines, hasDeadline)
	c.mu.Unlock()

	c.started <- struct{}{}
	if c.release != nil {
		<-c.release
	}

	c.mu.Lock()
	c.inFlight--
	c.ctxErrs = append(c.ctxErrs, ctx.Err())
	c.mu.Unlock()

	if c.empty {
		return stats.NewSnapshot(c.clock.Now())
	}
	return stats.NewSnapshot(c.clock.Now(), stats.Entry{Key: stats.KeyTemp, Value: 40.0})
}

func (c *testCollector) snapshot() (calls, maxInFlight int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls, c.maxInFlight
}

func receive(t *testing.T, ch <-chan stats.Snapshot) stats.Snapshot {
	t.Helper()
	select {
	case snap := <-ch:
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a published snapshot")
		return stats.Snapshot{}
	}
}

func expectNone(t *testing.T, ch <-chan stats.Snapshot) {
	t.Helper()
	select {
	case snap := <-ch:
		t.Fatalf("unexpected snapshot at %v", snap.Time)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestScheduler_ImmediateFirstRunThenInterval(t *testing.T) {
	mock := clock.NewMock()
	t0 := mock.Now()
	col := newTestCollector(mock)
	out := sink.NewMemorySink(8)
	s := New(col, out, WithClock(mock))

	if err := s.Start(context.Background(), 5*time.Second, true); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	var offsets []time.Duration
	offsets = append(offsets, receive(t, out.C).Time.Sub(t0))
	for i := 0; i < 2; i++ {
		mock.Add(5 * time.Second)
		offsets = append(offsets, receive(t, out.C).Time.Sub(t0))
	}

	want := []time.Duration{0, 5 * time.Second, 10 * time.Second}
	for i := range want {
		if offsets[i] != want[i] {
			t.Errorf("run %d at %s, want %s", i, offsets[i], want[i])
		}
	}
	if s.Runs() < 3 {
		t.Errorf("Runs = %d, want at least 3", s.Runs())
	}
}

func TestScheduler_WithoutRunFirstWaitsOneInterval(t *testing.T) {
	mock := clock.NewMock()
	out := sink.NewMemorySink(4)
	s := New(newTestCollector(mock), out, WithClock(mock))

	if err := s.Start(context.Background(), time.Minute, false); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	expectNone(t, out.C)
	mock.Add(time.Minute)
	receive(t, out.C)
}

func TestScheduler_NoOverlappingRuns(t *testing.T) {
	mock := clock.NewMock()
	col := newTestCollector(mock)
	col.release = make(chan struct{})
	out := sink.NewMemorySink(8)
	s := New(col, out, WithClock(mock))

	if err := s.Start(context.Background(), 5*time.Second, true); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	<-col.started
	for i := 0; i < 3; i++ {
		mock.Add(5 * time.Second)
	}
	col.release <- struct{}{}
	receive(t, out.C)

	deadline := time.Now().Add(2 * time.Second)
	for s.Overruns() != 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if s.Overruns() != 3 {
		t.Fatalf("Overruns = %d, want 3", s.Overruns())
	}
	expectNone(t, out.C)

	mock.Add(5 * time.Second)
	<-col.started
	col.release <- struct{}{}
	receive(t, out.C)

	calls, maxInFlight := col.snapshot()
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
	if maxInFlight != 1 {
		t.Errorf("max concurrent collections = %d, want 1", maxInFlight)
	}
}

func TestRunOnce_WaitsForScheduledRun(t *testing.T) {
	mock := clock.NewMock()
	col := newTestCollector(mock)
	col.release = make(chan struct{})
	out := sink.NewMemorySink(4)
	s := New(col, out, WithClock(mock))

	if err := s.Start(context.Background(), time.Minute, true); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()
	<-col.started

	result := make(chan error, 1)
	go func() { result <- s.RunOnce(context.Background()) }()

	select {
	case <-col.started:
		t.Fatal("RunOnce collected while a scheduled run was in flight")
	case err := <-result:
		t.Fatalf("RunOnce returned early: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(col.release)
	select {
	case err := <-result:
		if err != nil {
			t.Fatalf("RunOnce: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("RunOnce did not return after the scheduled run finished")
	}

	calls, maxInFlight := col.snapshot()
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
	if maxInFlight != 1 {
		t.Errorf("max concurrent collections = %d, want 1", maxInFlight)
	}
	if out.Len() != 2 {
		t.Errorf("published %d snapshots, want 2", out.Len())
	}
}

func TestScheduler_StopWaitsForInFlightRun(t *testing.T) {
	mock := clock.NewMock()
	col := newTestCollector(mock)
	col.release = make(chan struct{})
	out := sink.NewMemorySink(4)
	s := New(col, out, WithClock(mock))

	if err := s.Start(context.Background(), 5*time.Second, true); err != nil {
		t.Fatal(err)
	}
	<-col.started

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a collection was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(col.release)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after the run finished")
	}

	if out.Len() != 1 {
		t.Errorf("in-flight snapshot not published, Len = %d", out.Len())
	}
	col.mu.Lock()
	defer col.mu.Unlock()
	if col.ctxErrs[0] != nil {
		t.Errorf("in-flight collect saw canceled context: %v", col.ctxErrs[0])
	}
	if !col.deadlines[0] {
		t.Error("collect context has no deadline")
	}
	if s.IsRunning() {
		t.Error("scheduler still running after Stop")
	}
	s.Stop()
}

func TestScheduler_StartTwiceAndInvalidInterval(t *testing.T) {
	mock := clock.NewMock()
	col := newTestCollector(mock)
	out := sink.NewMemorySink(4)
	s := New(col, out, WithClock(mock))

	if err := s.Start(context.Background(), 0, true); err == nil {
		t.Error("expected error for zero interval")
	}
	if err := s.Start(context.Background(), time.Second, true); err != nil {
		t.Fatal(err)
	}
	if err := s.Start(context.Background(), time.Second, true); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	receive(t, out.C)
	expectNone(t, out.C)
	s.Stop()

	if calls, _ := col.snapshot(); calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestScheduler_ParentContextEndsLoop(t *testing.T) {
	mock := clock.NewMock()
	s := New(newTestCollector(mock), sink.NewMemorySink(4), WithClock(mock))

	ctx, cancel := context.WithCancel(context.Background())
	if err := s.Start(ctx, time.Second, false); err != nil {
		t.Fatal(err)
	}
	cancel()

	deadline := time.Now().Add(2 * time.Second)
	for s.IsRunning() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if s.IsRunning() {
		t.Error("scheduler still running after parent context canceled")
	}
	s.Stop()
}

func TestRunOnce_SuppressEmpty(t *testing.T) {
	tests := []struct {
		name     string
		suppress bool
		want     int
	}{
		{"published by default", false, 1},
		{"suppressed", true, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := clock.NewMock()
			col := newTestCollector(mock)
			col.empty = true
			out := sink.NewMemorySink(4)
			s := New(col, out, WithClock(mock), WithSuppressEmpty(tt.suppress))

			if err := s.RunOnce(context.Background()); err != nil {
				t.Fatalf("RunOnce: %v", err)
			}
			if out.Len() != tt.want {
				t.Errorf("published %d snapshots, want %d", out.Len(), tt.want)
			}
		})
	}
}

func TestRunOnce_PublishError(t *testing.T) {
	mock := clock.NewMock()
	out := sink.NewMemorySink(4)
	boom := errors.New("broker down")
	out.FailWith(boom)
	s := New(newTestCollector(mock), out, WithClock(mock), WithPublishTimeout(time.Second), WithCollectTimeout(time.Second))

	if err := s.RunOnce(context.Background()); !errors.Is(err, boom) {
		t.Errorf("expected publish error, got %v", err)
	}
	if s.Runs() != 1 {
		t.Errorf("Runs = %d, want 1", s.Runs())
	}
}
