package modules

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/drop-protocol/coordinator/coordinator/chainclient"
	"github.com/drop-protocol/coordinator/coordinator/config"
	"github.com/drop-protocol/coordinator/coordinator/contracts"
	"github.com/drop-protocol/coordinator/coordinator/factory"
	"github.com/drop-protocol/coordinator/coordinator/relay"
)

// Context carries the shared, read-only dependencies handed to modules at configure time.
type Context struct {
	Config       *config.Config
	Chains       *chainclient.Set  // nil in tests that only need HubQuerier
	HubQuerier   contracts.Querier // smart queries against the hub chain
	Factory      factory.State
	Relayer      relay.Relayer
	QueryTimeout time.Duration
	Logger       zerolog.Logger
}

// NewContext builds a Context whose hub querier is the hub chain's query client.
func NewContext(cfg *config.Config, chains *chainclient.Set, state factory.State, relayer relay.Relayer, logger zerolog.Logger) *Context {
	mctx := &Context{
		Config:       cfg,
		Chains:       chains,
		Factory:      state,
		Relayer:      relayer,
		QueryTimeout: cfg.QueryTimeout,
		Logger:       logger,
	}
	if chains != nil && chains.Hub != nil {
		mctx.HubQuerier = chains.Hub.Query
	}
	return mctx
}

// WithFactory returns a copy of the context carrying state.
func (c *Context) WithFactory(state factory.State) *Context {
	cp := *c
	cp.Factory = state
	return &cp
}

func (c *Context) override(module string) (string, bool) {
	if c.Config == nil {
		return "", false
	}
	return c.Config.OverrideFor(module)
}
