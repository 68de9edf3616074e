package core

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/drop-protocol/coordinator/coordinator/api"
	"github.com/drop-protocol/coordinator/coordinator/db"
	"github.com/drop-protocol/coordinator/coordinator/modules"
	"github.com/drop-protocol/coordinator/coordinator/scheduler"
	"github.com/drop-protocol/coordinator/coordinator/store"
)

// runRecorder persists every finished module cycle.
type runRecorder struct {
	history  *db.History
	contract map[string]modules.Describer
	log      zerolog.Logger
}

func newRunRecorder(history *db.History, mods []modules.Module, log zerolog.Logger) *runRecorder {
	rr := &runRecorder{
		history:  history,
		contract: make(map[string]modules.Describer),
		log:      log.With().Str("component", "run_history").Logger(),
	}
	for _, m := range mods {
		if d, ok := m.(modules.Describer); ok {
			rr.contract[m.Name()] = d
		}
	}
	return rr
}

func (rr *runRecorder) ObserveRun(status scheduler.Status, started time.Time) {
	run := &store.ModuleRun{
		Module:     status.Module,
		StartedAt:  started,
		Outcome:    status.LastOutcome,
		ErrorMsg:   status.LastError,
		Duration:   status.LastDuration,
		FailStreak: status.ConsecutiveFailures,
	}
	if d, ok := rr.contract[status.Module]; ok {
		run.Contract = d.Resolved().Contract
	}
	// write failures only log
	if err := rr.history.RecordRun(run); err != nil {
		rr.log.Warn().Err(err).Str("module", status.Module).Msg("failed to record module run")
	}
}

func toRunRecords(runs []store.ModuleRun) []api.RunRecord {
	out := make([]api.RunRecord, 0, len(runs))
	for _, r := range runs {
		out = append(out, api.RunRecord{
			StartedAt:  r.StartedAt,
			Outcome:    r.Outcome,
			Error:      r.ErrorMsg,
			Contract:   r.Contract,
			Duration:   r.Duration,
			FailStreak: r.FailStreak,
		})
	}
	return out
}
