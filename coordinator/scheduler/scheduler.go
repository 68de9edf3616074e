package scheduler

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/rs/zerolog"

	"github.com/drop-protocol/coordinator/coordinator/config"
	coorderrors "github.com/drop-protocol/coordinator/coordinator/errors"
	"github.com/drop-protocol/coordinator/coordinator/metrics"
	"github.com/drop-protocol/coordinator/coordinator/modules"
)

const (
	defaultInterval      = time.Minute
	defaultModuleTimeout = time.Minute
)

// Options configures a Runner.
type Options struct {
	Interval       time.Duration
	ModuleTimeout  time.Duration
	Strategy       config.ExecutionStrategy
	MaxConcurrency int
	Metrics        *metrics.Metrics
	Observer       RunObserver // optional
}

// RunObserver is told about every finished module cycle. It runs on the
// scheduler's goroutine and must not block for long.
type RunObserver interface {
	ObserveRun(status Status, started time.Time)
}

// Status is the bookkeeping of one module's cycles.
type Status struct {
	Module              string        `json:"module" yaml:"module"`
	Runs                uint64        `json:"runs" yaml:"runs"`
	Failures            uint64        `json:"failures" yaml:"failures"`
	ConsecutiveFailures int           `json:"consecutive_failures" yaml:"consecutive_failures"`
	LastOutcome         string        `json:"last_outcome,omitempty" yaml:"last_outcome,omitempty"`
	LastError           string        `json:"last_error,omitempty" yaml:"last_error,omitempty"`
	LastRun             time.Time     `json:"last_run" yaml:"last_run"`
	LastSuccess         time.Time     `json:"last_success" yaml:"last_success"`
	LastDuration        time.Duration `json:"last_duration" yaml:"last_duration"`
	InFlight            bool          `json:"in_flight" yaml:"in_flight"`
}

type entry struct {
	module   modules.Module
	inFlight atomic.Bool

	mu     sync.Mutex
	status Status
}

// Runner drives the modules on a fixed interval. Ticks never overlap, a module
// is never invoked while its previous cycle is still running, and no module's
// failure, panic or hang keeps the others from running.
type Runner struct {
	entries  []*entry
	opts     Options
	pool     pond.Pool
	metrics  *metrics.Metrics
	logger   zerolog.Logger
	ticks    atomic.Uint64
	lastTick atomic.Int64

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

func New(mods []modules.Module, opts Options, logger zerolog.Logger) *Runner {
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	if opts.ModuleTimeout <= 0 {
		opts.ModuleTimeout = defaultModuleTimeout
	}
	if opts.Strategy == "" {
		opts.Strategy = config.StrategySequential
	}
	if opts.MaxConcurrency < 1 {
		opts.MaxConcurrency = 1
	}

	r := &Runner{
		opts:    opts,
		metrics: opts.Metrics,
		logger:  logger.With().Str("component", "scheduler").Logger(),
	}
	for _, m := range mods {
		r.entries = append(r.entries, &entry{module: m, status: Status{Module: m.Name()}})
	}
	if opts.Strategy == config.StrategyConcurrent {
		r.pool = pond.NewPool(opts.MaxConcurrency)
	}
	return r
}

// Start runs a first tick immediately and then one per interval, in the background.
// Calls while running are no-ops; a stopped Runner may be started again.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return
	}
	r.stopCh = make(chan struct{})
	r.running = true
	r.wg.Add(1)

	r.logger.Info().
		Dur("interval", r.opts.Interval).
		Dur("module_timeout", r.opts.ModuleTimeout).
		Str("strategy", string(r.opts.Strategy)).
		Int("modules", len(r.entries)).
		Msg("starting scheduler")

	go r.run(ctx, r.stopCh)
}

// Stop signals the loop to exit and waits for the current tick to settle.
// Safe to call multiple times.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	close(r.stopCh)
	r.running = false
	pool := r.pool
	r.mu.Unlock()
	r.wg.Wait()

	if pool != nil {
		// a stopped pond pool rejects tasks; a later Start gets a fresh one
		pool.StopAndWait()
		r.mu.Lock()
		r.pool = pond.NewPool(r.opts.MaxConcurrency)
		r.mu.Unlock()
	}
}

func (r *Runner) workerPool() pond.Pool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pool
}

func (r *Runner) run(parent context.Context, stopCh <-chan struct{}) {
	defer r.wg.Done()

	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	go func() {
		select {
		case <-stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	t := time.NewTicker(r.opts.Interval)
	defer t.Stop()

	r.RunTick(ctx)
	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("scheduler stopping")
			return
		case <-t.C:
			r.RunTick(ctx)
		}
	}
}

// RunTick runs every module once and returns when all of them settled or timed out.
func (r *Runner) RunTick(ctx context.Context) {
	start := time.Now()
	tick := r.ticks.Add(1)

	if pool := r.workerPool(); r.opts.Strategy == config.StrategyConcurrent && pool != nil {
		group := pool.NewGroup()
		for _, e := range r.entries {
			e := e
			group.Submit(func() { r.runModule(ctx, e) })
		}
		_ = group.Wait()
	} else {
		for _, e := range r.entries {
			if ctx.Err() != nil {
				break
			}
			r.runModule(ctx, e)
		}
	}

	took := time.Since(start)
	r.lastTick.Store(time.Now().UnixNano())
	r.metrics.ObserveTick(took)
	r.logger.Debug().Uint64("tick", tick).Dur("took", took).Msg("tick complete")
}

func (r *Runner) runModule(ctx context.Context, e *entry) {
	name := e.module.Name()
	log := r.logger.With().Str("module", name).Logger()

	if !e.inFlight.CompareAndSwap(false, true) {
		log.Warn().Msg("previous cycle still running; skipping module this tick")
		r.record(e, metrics.OutcomeSkipped, nil, 0)
		return
	}

	runCtx, cancel := context.WithTimeout(ctx, r.opts.ModuleTimeout)
	defer cancel()

	done := make(chan error, 1)
	start := time.Now()
	go func() {
		var err error
		defer func() {
			e.inFlight.Store(false)
			done <- err
		}()
		err = r.invoke(runCtx, e.module)
	}()

	var err error
	select {
	case err = <-done:
	case <-runCtx.Done():
		select {
		case err = <-done:
		default:
		}
	}
	took := time.Since(start)

	// a cycle that reached its deadline is a timeout even when the module
	// swallowed the cancellation and returned normally
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		err = coorderrors.NewTimeoutError(name, "cycle did not finish within "+r.opts.ModuleTimeout.String())
	}

	switch {
	case err == nil:
		r.record(e, metrics.OutcomeSuccess, nil, took)
		log.Debug().Dur("took", took).Msg("module cycle succeeded")
	case coorderrors.HasCode(err, coorderrors.ErrCodePanic):
		r.record(e, metrics.OutcomePanic, err, took)
	case coorderrors.HasCode(err, coorderrors.ErrCodeTimeout):
		r.record(e, metrics.OutcomeTimeout, err, took)
		log.Error().Err(err).Dur("took", took).Msg("module cycle timed out")
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		r.record(e, metrics.OutcomeFailure, err, took)
		log.Debug().Msg("module cycle cancelled by shutdown")
	default:
		// the module already logged the details
		r.record(e, metrics.OutcomeFailure, err, took)
		log.Debug().Err(err).Str("severity", string(coorderrors.SeverityOf(err))).Dur("took", took).Msg("module cycle failed")
	}
}

// invoke runs one cycle, turning a panic into an error.
func (r *Runner) invoke(ctx context.Context, m modules.Module) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = coorderrors.NewPanicError(m.Name(), rec)
			r.metrics.ObservePanic("module:" + m.Name())
			r.logger.Error().
				Str("module", m.Name()).
				Err(err).
				Str("stack_trace", string(debug.Stack())).
				Msg("module panicked")
		}
	}()
	return m.Run(ctx)
}

func (r *Runner) record(e *entry, outcome string, err error, took time.Duration) {
	e.mu.Lock()
	s := &e.status
	s.LastOutcome = outcome
	if outcome != metrics.OutcomeSkipped {
		now := time.Now()
		s.Runs++
		s.LastRun = now
		s.LastDuration = took
		if err == nil {
			s.LastSuccess = now
			s.LastError = ""
			s.ConsecutiveFailures = 0
		} else {
			s.Failures++
			s.ConsecutiveFailures++
			s.LastError = err.Error()
		}
	}
	snapshot := *s
	e.mu.Unlock()

	r.metrics.ObserveModuleRun(snapshot.Module, outcome, took, snapshot.ConsecutiveFailures)
	if r.opts.Observer != nil && outcome != metrics.OutcomeSkipped {
		r.opts.Observer.ObserveRun(snapshot, snapshot.LastRun.Add(-took))
	}
}

// Statuses returns a snapshot of every module's bookkeeping, in registration order.
func (r *Runner) Statuses() []Status {
	out := make([]Status, 0, len(r.entries))
	for _, e := range r.entries {
		e.mu.Lock()
		s := e.status
		e.mu.Unlock()
		s.InFlight = e.inFlight.Load()
		out = append(out, s)
	}
	return out
}

// Ticks returns how many ticks have started.
func (r *Runner) Ticks() uint64 {
	return r.ticks.Load()
}

// LastTick returns when the last tick completed; zero before the first one.
func (r *Runner) LastTick() time.Time {
	ns := r.lastTick.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Modules returns the scheduled modules in registration order.
func (r *Runner) Modules() []modules.Module {
	out := make([]modules.Module, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.module)
	}
	return out
}
