// Package modules defines check modules: independently scheduled units that
// observe one piece of protocol state per cycle and may trigger a relay.
package modules

import (
	"context"

	"github.com/drop-protocol/coordinator/coordinator/factory"
)

// Address sources.
const (
	SourceOverride = "override"
	SourceFactory  = "factory"
)

// Config is a module's resolved configuration.
type Config struct {
	Module   string `json:"module" yaml:"module"`
	Role     string `json:"role" yaml:"role"`
	Contract string `json:"contract" yaml:"contract"`
	Source   string `json:"source" yaml:"source"`
}

// Module is one check. Lifecycle: constructed, Configure, then Run once per tick.
type Module interface {
	Name() string

	// Configure resolves the contract address and binds the contract client.
	// It may be called again; re-binding replaces the previous client.
	Configure(mctx *Context) (Config, error)

	// Run performs one check cycle. Failures are logged by the module and
	// returned for accounting; the module stays schedulable.
	Run(ctx context.Context) error
}

// FactoryAware modules pick up addresses from a newer factory state.
type FactoryAware interface {
	OnFactoryDiscovered(state factory.State)
}

// Describer exposes a module's current resolved configuration.
type Describer interface {
	Resolved() Config
}
