package db

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// HistoryCleaner periodically deletes module runs older than the retention period.
type HistoryCleaner struct {
	history         *History
	logger          zerolog.Logger
	cleanupInterval time.Duration
	retentionPeriod time.Duration

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewHistoryCleaner creates a cleaner. A non-positive interval or retention disables it.
func NewHistoryCleaner(history *History, cleanupInterval, retentionPeriod time.Duration, logger zerolog.Logger) *HistoryCleaner {
	return &HistoryCleaner{
		history:         history,
		cleanupInterval: cleanupInterval,
		retentionPeriod: retentionPeriod,
		logger:          logger.With().Str("component", "history_cleaner").Logger(),
		stopCh:          make(chan struct{}),
		doneCh:          make(chan struct{}),
	}
}

// Start performs one cleanup and then one per interval until ctx ends or Stop is called.
func (hc *HistoryCleaner) Start(ctx context.Context) {
	if hc.cleanupInterval <= 0 || hc.retentionPeriod <= 0 {
		close(hc.doneCh)
		return
	}

	hc.logger.Info().
		Dur("cleanup_interval", hc.cleanupInterval).
		Dur("retention_period", hc.retentionPeriod).
		Msg("starting history cleaner")

	// a failed initial cleanup does not block startup
	if _, err := hc.Cleanup(time.Now()); err != nil {
		hc.logger.Error().Err(err).Msg("failed to perform initial cleanup")
	}

	go func() {
		defer close(hc.doneCh)
		ticker := time.NewTicker(hc.cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-hc.stopCh:
				return
			case now := <-ticker.C:
				if _, err := hc.Cleanup(now); err != nil {
					hc.logger.Error().Err(err).Msg("failed to perform scheduled cleanup")
				}
			}
		}
	}()
}

// Stop halts the loop and waits for it to exit. Call only after Start.
func (hc *HistoryCleaner) Stop() {
	hc.stopOnce.Do(func() { close(hc.stopCh) })
	<-hc.doneCh
}

// Cleanup deletes runs that started more than the retention period before now.
func (hc *HistoryCleaner) Cleanup(now time.Time) (int64, error) {
	start := time.Now()
	deleted, err := hc.history.DeleteRunsBefore(now.Add(-hc.retentionPeriod))
	if err != nil {
		return 0, err
	}

	if deleted > 0 {
		if err := hc.history.Checkpoint(); err != nil {
			hc.logger.Warn().Err(err).Msg("failed to checkpoint WAL")
		}
		hc.logger.Info().
			Int64("deleted", deleted).
			Dur("duration", time.Since(start)).
			Msg("history cleanup completed")
	} else {
		hc.logger.Debug().Dur("duration", time.Since(start)).Msg("history cleanup completed - nothing to delete")
	}
	return deleted, nil
}
