// Package db keeps the coordinator's run history in SQLite through GORM:
// finished module cycles and the factory states they ran against.
package db

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/drop-protocol/coordinator/coordinator/store"
)

const (
	// InMemorySQLiteDSN selects an ephemeral database when given as the history directory.
	InMemorySQLiteDSN = ":memory:"

	// HistoryFileName is the database file created under the history directory.
	HistoryFileName = "history.db"

	historyDirPerm = 0o750
	walParams      = "?_journal_mode=WAL&_busy_timeout=5000&mode=rwc"
)

var historyModels = []any{
	&store.ModuleRun{},
	&store.FactorySnapshot{},
}

// DB is an open history database.
type DB struct {
	client *gorm.DB
	path   string // empty when in memory
}

// Open opens or creates dir/history.db and migrates the history tables.
// A dir of ":memory:" gives an in-memory database instead.
func Open(dir string) (*DB, error) {
	if dir == InMemorySQLiteDSN {
		return OpenInMemory()
	}
	if err := os.MkdirAll(dir, historyDirPerm); err != nil {
		return nil, errors.Wrapf(err, "failed to prepare history directory %s", dir)
	}
	path := filepath.Join(dir, HistoryFileName)
	return open(path+walParams, path)
}

// OpenInMemory opens a migrated history database that lives as long as the process.
func OpenInMemory() (*DB, error) {
	return open(InMemorySQLiteDSN, "")
}

func open(dsn, path string) (*DB, error) {
	client, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to open history database")
	}

	// one connection: sqlite has a single writer and :memory: is per connection
	sqlDB, err := client.DB()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get underlying sql.DB")
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)

	if err := client.AutoMigrate(historyModels...); err != nil {
		_ = sqlDB.Close()
		return nil, errors.Wrap(err, "failed to migrate history tables")
	}
	return &DB{client: client, path: path}, nil
}

func (d *DB) Client() *gorm.DB {
	return d.client
}

// IsFile reports whether the database is backed by a file.
func (d *DB) IsFile() bool {
	return d.path != ""
}

// Path returns the database file, empty for an in-memory database.
func (d *DB) Path() string {
	return d.path
}

func (d *DB) Close() error {
	sqlDB, err := d.client.DB()
	if err != nil {
		return errors.Wrap(err, "failed to get underlying sql.DB")
	}
	return errors.Wrap(sqlDB.Close(), "failed to close history database")
}
