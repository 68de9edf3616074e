package modules

import (
	"sync"

	"github.com/rs/zerolog"

	coorderrors "github.com/drop-protocol/coordinator/coordinator/errors"
	"github.com/drop-protocol/coordinator/coordinator/factory"
	"github.com/drop-protocol/coordinator/coordinator/logger"
)

// Base implements the address resolution shared by all modules.
// Variants embed it and bind their own contract client.
type Base struct {
	name string
	role string

	mu       sync.RWMutex
	mctx     *Context
	resolved Config
	log      zerolog.Logger
}

func NewBase(name, role string) *Base {
	return &Base{name: name, role: role, log: zerolog.Nop()}
}

func (b *Base) Name() string { return b.name }

func (b *Base) Role() string { return b.role }

// Logger returns the module logger set by Resolve.
func (b *Base) Logger() zerolog.Logger {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.log
}

// Bind keeps mctx for later factory updates and sets the module logger.
// It does not resolve an address.
func (b *Base) Bind(mctx *Context) {
	if mctx == nil {
		return
	}
	log := logger.ForModule(mctx.Logger, b.name)
	b.mu.Lock()
	b.mctx = mctx
	b.log = log
	b.mu.Unlock()
}

// Context returns the bound context; nil before Bind or Resolve.
func (b *Base) Context() *Context {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.mctx
}

// Resolved returns the current configuration; Contract is empty before Resolve.
func (b *Base) Resolved() Config {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.resolved
}

// Resolve picks the contract address: an explicit override wins over the factory state.
func (b *Base) Resolve(mctx *Context) (Config, error) {
	b.Bind(mctx)
	cfg := Config{Module: b.name, Role: b.role}

	if addr, ok := mctx.override(b.name); ok {
		cfg.Contract = addr
		cfg.Source = SourceOverride
	} else if addr, ok := mctx.Factory.Get(b.role); ok {
		cfg.Contract = addr
		cfg.Source = SourceFactory
	} else {
		return Config{}, coorderrors.NewCoordinatorError(coorderrors.ErrCodeConfig, b.name,
			"no contract address for role "+b.role, nil)
	}

	b.mu.Lock()
	b.resolved = cfg
	log := b.log
	b.mu.Unlock()

	log.Info().
		Str("contract", cfg.Contract).
		Str("source", cfg.Source).
		Msg("module configured")
	return cfg, nil
}

// Reresolve applies a newer factory state. It reports the new configuration and whether
// the address changed; modules with an override never change. An unresolved module
// adopts its override from the bound context, or else the state's address.
func (b *Base) Reresolve(state factory.State) (Config, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.resolved.Source == SourceOverride {
		return b.resolved, false
	}
	if b.resolved.Contract == "" && b.mctx != nil {
		if addr, ok := b.mctx.override(b.name); ok {
			b.resolved = Config{Module: b.name, Role: b.role, Contract: addr, Source: SourceOverride}
			b.log.Info().Str("contract", addr).Str("source", SourceOverride).Msg("module configured")
			return b.resolved, true
		}
	}

	addr, ok := state.Get(b.role)
	if !ok {
		b.log.Warn().Str("role", b.role).Msg("role missing from factory state; keeping previous address")
		return b.resolved, false
	}
	if addr == b.resolved.Contract {
		return b.resolved, false
	}

	b.resolved = Config{Module: b.name, Role: b.role, Contract: addr, Source: SourceFactory}
	b.log.Info().Str("contract", addr).Msg("module contract updated from factory")
	return b.resolved, true
}

// NotConfigured is returned by Run when Configure has not succeeded yet.
func (b *Base) NotConfigured() error {
	return coorderrors.NewCoordinatorError(coorderrors.ErrCodeInternal, b.name, "module is not configured", nil)
}
