package api

import "errors"

// ErrHistoryDisabled is returned by ModuleHistory when no history database is configured.
var ErrHistoryDisabled = errors.New("run history is disabled")

// CoordinatorInterface defines the methods needed by the API server
type CoordinatorInterface interface {
	Modules() []ModuleInfo
	Factory() FactoryInfo
	Health() HealthInfo
	ModuleHistory(module string, limit int) ([]RunRecord, error)
}
