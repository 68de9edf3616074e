// Package store contains the GORM models of the coordinator's run history.
//
// Database Structure (database file: history.db):
//
//	history.db
//	├── module_runs
//	└── factory_snapshots
package store

import (
	"time"

	"gorm.io/gorm"
)

// ModuleRun is one finished cycle of a check module. Outcome is one of
// "success", "failure", "timeout" or "panic"; Contract is the address the
// module was bound to when the cycle ran.
type ModuleRun struct {
	gorm.Model
	Module     string    `gorm:"index:idx_module_started;not null"`
	StartedAt  time.Time `gorm:"index:idx_module_started;not null"`
	Outcome    string    `gorm:"index;not null"`
	ErrorMsg   string    `gorm:"type:text"`
	Contract   string
	Duration   time.Duration
	FailStreak int
}

// FactorySnapshot is a factory discovery result that differed from the previous one.
type FactorySnapshot struct {
	gorm.Model
	Contract     string    `gorm:"index;not null"`
	Roles        []byte    // JSON-encoded role → address map
	DiscoveredAt time.Time `gorm:"index;not null"`
}
