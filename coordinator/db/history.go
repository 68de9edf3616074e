package db

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/drop-protocol/coordinator/coordinator/store"
)

const defaultRunsLimit = 50

// History reads and writes the run history tables.
type History struct {
	db *DB
}

func NewHistory(db *DB) *History {
	return &History{db: db}
}

// RecordRun stores one finished module cycle.
func (h *History) RecordRun(run *store.ModuleRun) error {
	run.StartedAt = run.StartedAt.UTC()
	if err := h.db.Client().Create(run).Error; err != nil {
		return errors.Wrapf(err, "failed to record run of %s", run.Module)
	}
	return nil
}

// RecentRuns returns the newest runs of module, newest first. A non-positive
// limit means the default of 50.
func (h *History) RecentRuns(module string, limit int) ([]store.ModuleRun, error) {
	if limit <= 0 {
		limit = defaultRunsLimit
	}
	var runs []store.ModuleRun
	err := h.db.Client().
		Where("module = ?", module).
		Order("started_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&runs).Error
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load runs of %s", module)
	}
	return runs, nil
}

// RecordFactory stores a factory discovery result.
func (h *History) RecordFactory(contract string, roles map[string]string, at time.Time) error {
	encoded, err := json.Marshal(roles)
	if err != nil {
		return errors.Wrap(err, "failed to encode factory roles")
	}
	snapshot := &store.FactorySnapshot{Contract: contract, Roles: encoded, DiscoveredAt: at.UTC()}
	if err := h.db.Client().Create(snapshot).Error; err != nil {
		return errors.Wrap(err, "failed to record factory snapshot")
	}
	return nil
}

// LatestFactory returns the newest snapshot of contract and its decoded roles,
// or a nil snapshot when none was recorded.
func (h *History) LatestFactory(contract string) (*store.FactorySnapshot, map[string]string, error) {
	var snapshot store.FactorySnapshot
	err := h.db.Client().
		Where("contract = ?", contract).
		Order("discovered_at DESC").
		Order("id DESC").
		First(&snapshot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to load factory snapshot")
	}

	roles := make(map[string]string)
	if len(snapshot.Roles) > 0 {
		if err := json.Unmarshal(snapshot.Roles, &roles); err != nil {
			return nil, nil, errors.Wrap(err, "failed to decode factory roles")
		}
	}
	return &snapshot, roles, nil
}

// DeleteRunsBefore permanently removes runs that started before cutoff and
// returns how many were deleted.
func (h *History) DeleteRunsBefore(cutoff time.Time) (int64, error) {
	res := h.db.Client().Unscoped().
		Where("started_at < ?", cutoff.UTC()).
		Delete(&store.ModuleRun{})
	if res.Error != nil {
		return 0, errors.Wrap(res.Error, "failed to delete old runs")
	}
	return res.RowsAffected, nil
}

// Checkpoint truncates the WAL of a file database; in-memory databases are left alone.
func (h *History) Checkpoint() error {
	if !h.db.IsFile() {
		return nil
	}
	return h.db.Client().Exec("PRAGMA wal_checkpoint(TRUNCATE)").Error
}
