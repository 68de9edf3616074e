package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drop-protocol/coordinator/coordinator/config"
	"github.com/drop-protocol/coordinator/coordinator/metrics"
	"github.com/drop-protocol/coordinator/coordinator/modules"
	"github.com/drop-protocol/coordinator/coordinator/relay"
)

type fakeModule struct {
	name  string
	calls atomic.Int32
	run   func(ctx context.Context, call int32) error
	order *orderLog
}

type orderLog struct {
	mu    sync.Mutex
	names []string
}

func (o *orderLog) add(name string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.names = append(o.names, name)
}

func (o *orderLog) get() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.names...)
}

func (f *fakeModule) Name() string { return f.name }

func (f *fakeModule) Configure(*modules.Context) (modules.Config, error) {
	return modules.Config{Module: f.name}, nil
}

func (f *fakeModule) Run(ctx context.Context) error {
	call := f.calls.Add(1)
	if f.order != nil {
		f.order.add(f.name)
	}
	if f.run == nil {
		return nil
	}
	return f.run(ctx, call)
}

func newRunner(mods []modules.Module, opts Options) *Runner {
	if opts.Interval == 0 {
		opts.Interval = time.Hour
	}
	if opts.ModuleTimeout == 0 {
		opts.ModuleTimeout = time.Second
	}
	return New(mods, opts, zerolog.Nop())
}

func statusOf(t *testing.T, r *Runner, name string) Status {
	t.Helper()
	for _, s := range r.Statuses() {
		if s.Module == name {
			return s
		}
	}
	t.Fatalf("no status for %s", name)
	return Status{}
}

func TestSequentialOrder(t *testing.T) {
	order := &orderLog{}
	a := &fakeModule{name: "a", order: order}
	b := &fakeModule{name: "b", order: order}
	c := &fakeModule{name: "c", order: order}
	r := newRunner([]modules.Module{a, b, c}, Options{})

	r.RunTick(context.Background())
	r.RunTick(context.Background())

	assert.Equal(t, []string{"a", "b", "c", "a", "b", "c"}, order.get())
	assert.Equal(t, uint64(2), r.Ticks())
	assert.False(t, r.LastTick().IsZero())
}

func TestFailureDoesNotStopOthersOrNextTick(t *testing.T) {
	failing := &fakeModule{name: "failing", run: func(context.Context, int32) error {
		return errors.New("query failed")
	}}
	healthy := &fakeModule{name: "healthy"}
	m := metrics.New()
	r := newRunner([]modules.Module{failing, healthy}, Options{Metrics: m})

	r.RunTick(context.Background())
	r.RunTick(context.Background())

	assert.Equal(t, int32(2), failing.calls.Load())
	assert.Equal(t, int32(2), healthy.calls.Load())

	s := statusOf(t, r, "failing")
	assert.Equal(t, uint64(2), s.Failures)
	assert.Equal(t, 2, s.ConsecutiveFailures)
	assert.Equal(t, "query failed", s.LastError)
	assert.Equal(t, metrics.OutcomeFailure, s.LastOutcome)

	h := statusOf(t, r, "healthy")
	assert.Equal(t, uint64(0), h.Failures)
	assert.False(t, h.LastSuccess.IsZero())
	assert.Equal(t, float64(2), testutil.ToFloat64(m.ModuleRunsTotal.WithLabelValues("failing", metrics.OutcomeFailure)))
}

func TestRecoveryResetsConsecutiveFailures(t *testing.T) {
	flaky := &fakeModule{name: "flaky", run: func(_ context.Context, call int32) error {
		if call == 1 {
			return errors.New("transient")
		}
		return nil
	}}
	r := newRunner([]modules.Module{flaky}, Options{})

	r.RunTick(context.Background())
	assert.Equal(t, 1, statusOf(t, r, "flaky").ConsecutiveFailures)

	r.RunTick(context.Background())
	s := statusOf(t, r, "flaky")
	assert.Equal(t, 0, s.ConsecutiveFailures)
	assert.Empty(t, s.LastError)
	assert.Equal(t, uint64(1), s.Failures)
}

func TestPanicIsContained(t *testing.T) {
	panicking := &fakeModule{name: "panicking", run: func(context.Context, int32) error {
		panic("nil map write")
	}}
	healthy := &fakeModule{name: "healthy"}
	m := metrics.New()
	r := newRunner([]modules.Module{panicking, healthy}, Options{Metrics: m})

	assert.NotPanics(t, func() { r.RunTick(context.Background()) })
	assert.Equal(t, int32(1), healthy.calls.Load())

	s := statusOf(t, r, "panicking")
	assert.Equal(t, metrics.OutcomePanic, s.LastOutcome)
	assert.Contains(t, s.LastError, "nil map write")
	assert.False(t, s.InFlight)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.PanicRecoveriesTotal.WithLabelValues("module:panicking")))

	r.RunTick(context.Background())
	assert.Equal(t, int32(2), panicking.calls.Load())
}

func TestHungModuleIsTimedOutAndNotReentered(t *testing.T) {
	release := make(chan struct{})
	hung := &fakeModule{name: "hung", run: func(_ context.Context, call int32) error {
		if call == 1 {
			// ignores cancellation on purpose
			<-release
		}
		return nil
	}}
	healthy := &fakeModule{name: "healthy"}
	r := newRunner([]modules.Module{hung, healthy}, Options{ModuleTimeout: 50 * time.Millisecond})

	start := time.Now()
	r.RunTick(context.Background())
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, int32(1), healthy.calls.Load())
	assert.Equal(t, metrics.OutcomeTimeout, statusOf(t, r, "hung").LastOutcome)
	assert.True(t, statusOf(t, r, "hung").InFlight)

	r.RunTick(context.Background())
	assert.Equal(t, int32(1), hung.calls.Load())
	assert.Equal(t, int32(2), healthy.calls.Load())
	assert.Equal(t, metrics.OutcomeSkipped, statusOf(t, r, "hung").LastOutcome)

	close(release)
	require.Eventually(t, func() bool { return !statusOf(t, r, "hung").InFlight }, time.Second, 5*time.Millisecond)

	r.RunTick(context.Background())
	assert.Equal(t, int32(2), hung.calls.Load())
	assert.Equal(t, metrics.OutcomeSuccess, statusOf(t, r, "hung").LastOutcome)
}

func TestModuleSeesDeadline(t *testing.T) {
	var sawDeadline atomic.Bool
	m := &fakeModule{name: "m", run: func(ctx context.Context, _ int32) error {
		_, ok := ctx.Deadline()
		sawDeadline.Store(ok)
		<-ctx.Done()
		return ctx.Err()
	}}
	r := newRunner([]modules.Module{m}, Options{ModuleTimeout: 20 * time.Millisecond})

	r.RunTick(context.Background())
	assert.True(t, sawDeadline.Load())
	s := statusOf(t, r, "m")
	assert.Equal(t, uint64(1), s.Failures)
}

func TestConcurrentStrategyRunsModulesInParallel(t *testing.T) {
	const n = 3
	var started sync.WaitGroup
	started.Add(n)
	barrier := func(ctx context.Context, _ int32) error {
		started.Done()
		waitCh := make(chan struct{})
		go func() {
			started.Wait()
			close(waitCh)
		}()
		select {
		case <-waitCh:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	var mods []modules.Module
	for _, name := range []string{"a", "b", "c"} {
		mods = append(mods, &fakeModule{name: name, run: barrier})
	}
	r := newRunner(mods, Options{
		Strategy:       config.StrategyConcurrent,
		MaxConcurrency: n,
		ModuleTimeout:  2 * time.Second,
	})
	defer r.Stop()

	r.RunTick(context.Background())
	for _, s := range r.Statuses() {
		assert.Equal(t, metrics.OutcomeSuccess, s.LastOutcome, s.Module)
	}
}

func TestConcurrentStrategyIsolatesFailures(t *testing.T) {
	failing := &fakeModule{name: "failing", run: func(context.Context, int32) error { panic("boom") }}
	healthy := &fakeModule{name: "healthy"}
	r := newRunner([]modules.Module{failing, healthy}, Options{Strategy: config.StrategyConcurrent, MaxConcurrency: 2})
	defer r.Stop()

	r.RunTick(context.Background())
	assert.Equal(t, int32(1), healthy.calls.Load())
	assert.Equal(t, metrics.OutcomePanic, statusOf(t, r, "failing").LastOutcome)
}

func TestStartRunsImmediatelyAndOnInterval(t *testing.T) {
	m := &fakeModule{name: "m"}
	r := New([]modules.Module{m}, Options{Interval: 20 * time.Millisecond, ModuleTimeout: time.Second}, zerolog.Nop())

	r.Start(context.Background())
	r.Start(context.Background())
	require.Eventually(t, func() bool { return m.calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	r.Stop()
	r.Stop()

	calls := m.calls.Load()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, calls, m.calls.Load())
}

func TestStopCancelsRunningCycle(t *testing.T) {
	entered := make(chan struct{})
	m := &fakeModule{name: "m", run: func(ctx context.Context, call int32) error {
		if call == 1 {
			close(entered)
		}
		<-ctx.Done()
		return ctx.Err()
	}}
	r := New([]modules.Module{m}, Options{Interval: time.Hour, ModuleTimeout: time.Hour}, zerolog.Nop())

	r.Start(context.Background())
	<-entered

	done := make(chan struct{})
	go func() {
		r.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
}

type observerFunc func(status Status, started time.Time)

func (f observerFunc) ObserveRun(status Status, started time.Time) { f(status, started) }

func TestObserverSeesFinishedCycles(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []Status
	)
	obs := observerFunc(func(status Status, started time.Time) {
		mu.Lock()
		defer mu.Unlock()
		assert.False(t, started.After(status.LastRun))
		seen = append(seen, status)
	})

	ok := &fakeModule{name: "ok"}
	bad := &fakeModule{name: "bad", run: func(context.Context, int32) error { return errors.New("boom") }}
	r := newRunner([]modules.Module{ok, bad}, Options{Observer: obs})

	r.RunTick(context.Background())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 2)
	assert.Equal(t, "ok", seen[0].Module)
	assert.Equal(t, metrics.OutcomeSuccess, seen[0].LastOutcome)
	assert.Equal(t, "bad", seen[1].Module)
	assert.Equal(t, metrics.OutcomeFailure, seen[1].LastOutcome)
	assert.Equal(t, "boom", seen[1].LastError)
	assert.Equal(t, 1, seen[1].ConsecutiveFailures)
}

// blockingExecutor waits for its context, like a relayer that is killed at the deadline.
type blockingExecutor struct {
	ctxErr atomic.Value
}

func (b *blockingExecutor) Run(ctx context.Context, _ string, _ ...string) (relay.Result, error) {
	<-ctx.Done()
	b.ctxErr.Store(ctx.Err())
	return relay.Result{ExitCode: -1}, ctx.Err()
}

func TestSwallowedDeadlineIsATimeout(t *testing.T) {
	exec := &blockingExecutor{}
	invoker := relay.NewInvoker([]string{"icq-relayer"}, exec, time.Second, nil, zerolog.Nop())
	relaying := &fakeModule{name: "relaying", run: func(ctx context.Context, _ int32) error {
		invoker.Relay(ctx, []string{"7"})
		return nil
	}}
	r := newRunner([]modules.Module{relaying}, Options{ModuleTimeout: 100 * time.Millisecond})

	r.RunTick(context.Background())

	require.Eventually(t, func() bool { return exec.ctxErr.Load() != nil }, time.Second, 5*time.Millisecond)
	assert.Equal(t, context.DeadlineExceeded, exec.ctxErr.Load())
	s := statusOf(t, r, "relaying")
	assert.Equal(t, metrics.OutcomeTimeout, s.LastOutcome)
	assert.Equal(t, uint64(1), s.Failures)
	assert.True(t, s.LastSuccess.IsZero())
}

func TestConcurrentRunnerRestarts(t *testing.T) {
	m := &fakeModule{name: "m"}
	r := New([]modules.Module{m}, Options{
		Interval:       time.Hour,
		ModuleTimeout:  time.Second,
		Strategy:       config.StrategyConcurrent,
		MaxConcurrency: 2,
	}, zerolog.Nop())

	r.Start(context.Background())
	require.Eventually(t, func() bool { return m.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	r.Stop()

	r.Start(context.Background())
	require.Eventually(t, func() bool { return m.calls.Load() == 2 }, time.Second, 5*time.Millisecond)
	r.Stop()

	r.RunTick(context.Background())
	assert.Equal(t, int32(3), m.calls.Load())
}
