package db

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drop-protocol/coordinator/coordinator/store"
)

func TestDB_OpenModes(t *testing.T) {
	t.Run("in-memory alias", func(t *testing.T) {
		db, err := Open(InMemorySQLiteDSN)
		require.NoError(t, err)
		require.NotNil(t, db)
		assert.False(t, db.IsFile())

		runSampleInsertSelectTest(t, db)
		assert.NoError(t, db.Close())
	})

	t.Run("file-based DB", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "history")

		db, err := Open(dir)
		require.NoError(t, err)
		require.NotNil(t, db)
		assert.True(t, db.IsFile())

		assert.FileExists(t, filepath.Join(dir, HistoryFileName))
		assert.Equal(t, filepath.Join(dir, HistoryFileName), db.Path())

		runSampleInsertSelectTest(t, db)

		assert.NoError(t, db.Close())

		t.Run("close twice", func(t *testing.T) {
			assert.NoError(t, db.Close())
		})
	})

	t.Run("file path is a file", func(t *testing.T) {
		dir := t.TempDir()
		blocker := filepath.Join(dir, "blocker")
		require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

		db, err := Open(filepath.Join(blocker, "nested"))
		require.ErrorContains(t, err, "failed to prepare history directory")
		require.Nil(t, db)
	})
}

func runSampleInsertSelectTest(t *testing.T, db *DB) {
	entry := store.ModuleRun{Module: "core", StartedAt: time.Now(), Outcome: "success"}

	err := db.Client().Create(&entry).Error
	require.NoError(t, err)

	var result store.ModuleRun
	err = db.Client().First(&result).Error
	require.NoError(t, err)
	assert.Equal(t, "core", result.Module)
}

func newHistory(t *testing.T) *History {
	t.Helper()
	db, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewHistory(db)
}

func TestRecentRunsNewestFirst(t *testing.T) {
	h := newHistory(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, outcome := range []string{"success", "failure", "timeout"} {
		require.NoError(t, h.RecordRun(&store.ModuleRun{
			Module:    "validators_stats",
			StartedAt: base.Add(time.Duration(i) * time.Minute),
			Outcome:   outcome,
			Contract:  "addrB",
		}))
	}
	require.NoError(t, h.RecordRun(&store.ModuleRun{Module: "core", StartedAt: base, Outcome: "success"}))

	runs, err := h.RecentRuns("validators_stats", 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "timeout", runs[0].Outcome)
	assert.Equal(t, "failure", runs[1].Outcome)

	all, err := h.RecentRuns("validators_stats", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	none, err := h.RecentRuns("rewards", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestFactorySnapshots(t *testing.T) {
	h := newHistory(t)

	snap, roles, err := h.LatestFactory("neutron1factory")
	require.NoError(t, err)
	assert.Nil(t, snap)
	assert.Nil(t, roles)

	first := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, h.RecordFactory("neutron1factory", map[string]string{"core": "addrA"}, first))
	require.NoError(t, h.RecordFactory("neutron1factory", map[string]string{"core": "addrA2", "validators_stats": "addrB"}, first.Add(time.Hour)))

	snap, roles, err = h.LatestFactory("neutron1factory")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, map[string]string{"core": "addrA2", "validators_stats": "addrB"}, roles)
	assert.True(t, snap.DiscoveredAt.Equal(first.Add(time.Hour)))
}

func TestHistoryCleanerDeletesOldRuns(t *testing.T) {
	h := newHistory(t)
	now := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	require.NoError(t, h.RecordRun(&store.ModuleRun{Module: "core", StartedAt: now.Add(-72 * time.Hour), Outcome: "success"}))
	require.NoError(t, h.RecordRun(&store.ModuleRun{Module: "core", StartedAt: now.Add(-time.Hour), Outcome: "success"}))

	cleaner := NewHistoryCleaner(h, time.Hour, 24*time.Hour, zerolog.Nop())
	deleted, err := cleaner.Cleanup(now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	runs, err := h.RecentRuns("core", 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.True(t, runs[0].StartedAt.Equal(now.Add(-time.Hour)))

	deleted, err = cleaner.Cleanup(now)
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestHistoryCleanerDisabled(t *testing.T) {
	cleaner := NewHistoryCleaner(newHistory(t), 0, time.Hour, zerolog.Nop())
	cleaner.Start(context.Background())
	cleaner.Stop()
}
