package factory

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Listener is notified after a refresh swapped in a different State.
type Listener interface {
	OnFactoryDiscovered(state State)
}

// Refresher periodically re-runs discovery and swaps the store wholesale.
// A failed refresh keeps the previous state.
type Refresher struct {
	discoverer *Discoverer
	store      *Store
	listeners  []Listener
	period     time.Duration
	logger     zerolog.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func NewRefresher(discoverer *Discoverer, store *Store, period time.Duration, logger zerolog.Logger, listeners ...Listener) *Refresher {
	return &Refresher{
		discoverer: discoverer,
		store:      store,
		listeners:  listeners,
		period:     period,
		logger:     logger.With().Str("component", "factory_refresher").Logger(),
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// Start launches the refresh loop. It is a no-op when the period is not positive.
func (r *Refresher) Start(ctx context.Context) {
	if r.period <= 0 {
		close(r.doneCh)
		return
	}
	r.logger.Info().Dur("period", r.period).Msg("starting factory refresher")
	go r.loop(ctx)
}

// Stop halts the loop and waits for it to exit.
func (r *Refresher) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	<-r.doneCh
}

func (r *Refresher) loop(ctx context.Context) {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.Refresh(ctx)
		}
	}
}

// Refresh runs one discovery and, on success, replaces the store and notifies listeners
// when the content changed.
func (r *Refresher) Refresh(ctx context.Context) bool {
	state, err := r.discoverer.Discover(ctx)
	if err != nil {
		r.logger.Error().Err(err).Msg("factory refresh failed; keeping previous state")
		return false
	}
	if !r.store.Replace(state) {
		return false
	}
	for _, l := range r.listeners {
		l.OnFactoryDiscovered(state)
	}
	return true
}
