package api

import (
	"time"

	"github.com/drop-protocol/coordinator/coordinator/modules"
	"github.com/drop-protocol/coordinator/coordinator/scheduler"
)

// QueryResponse represents the standard query response format
type QueryResponse struct {
	Data        interface{} `json:"data"`
	LastUpdated time.Time   `json:"last_updated"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// ModuleInfo pairs a module's resolved configuration with its run bookkeeping.
type ModuleInfo struct {
	Config modules.Config   `json:"config" yaml:"config"`
	Status scheduler.Status `json:"status" yaml:"status"`
}

// FactoryInfo is the current factory discovery result.
type FactoryInfo struct {
	Contract  string            `json:"contract" yaml:"contract"`
	Roles     map[string]string `json:"roles" yaml:"roles"`
	UpdatedAt time.Time         `json:"updated_at" yaml:"updated_at"`
}

// HealthInfo summarises scheduler liveness.
type HealthInfo struct {
	Healthy  bool      `json:"healthy" yaml:"healthy"`
	Ticks    uint64    `json:"ticks" yaml:"ticks"`
	LastTick time.Time `json:"last_tick" yaml:"last_tick"`
}

// RunRecord is one persisted module cycle.
type RunRecord struct {
	StartedAt  time.Time     `json:"started_at" yaml:"started_at"`
	Outcome    string        `json:"outcome" yaml:"outcome"`
	Error      string        `json:"error,omitempty" yaml:"error,omitempty"`
	Contract   string        `json:"contract,omitempty" yaml:"contract,omitempty"`
	Duration   time.Duration `json:"duration" yaml:"duration"`
	FailStreak int           `json:"fail_streak" yaml:"fail_streak"`
}
