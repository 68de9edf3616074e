// Package corestate observes the core contract's lifecycle state and the
// acknowledgement of its last cross-chain transfer. It never relays.
package corestate

import (
	"context"
	"sync/atomic"

	"github.com/drop-protocol/coordinator/coordinator/contracts"
	coorderrors "github.com/drop-protocol/coordinator/coordinator/errors"
	"github.com/drop-protocol/coordinator/coordinator/factory"
	"github.com/drop-protocol/coordinator/coordinator/modules"
)

// Name is the module name, also the prefix of its CORE_CONTRACT override.
const Name = "core"

type Module struct {
	*modules.Base

	client atomic.Pointer[contracts.CoreClient]
}

// New builds the module bound to mctx; mctx may be nil until Configure.
func New(mctx *modules.Context) modules.Module {
	m := &Module{Base: modules.NewBase(Name, factory.RoleCore)}
	m.Bind(mctx)
	return m
}

func (m *Module) Configure(mctx *modules.Context) (modules.Config, error) {
	cfg, err := m.Resolve(mctx)
	if err != nil {
		return modules.Config{}, err
	}
	m.bindClient(cfg.Contract)
	return cfg, nil
}

func (m *Module) OnFactoryDiscovered(state factory.State) {
	if cfg, changed := m.Reresolve(state); changed {
		m.bindClient(cfg.Contract)
	}
}

func (m *Module) bindClient(address string) {
	mctx := m.Context()
	if mctx == nil || mctx.HubQuerier == nil {
		return
	}
	m.client.Store(contracts.NewCoreClient(mctx.HubQuerier, address, mctx.QueryTimeout))
}

func (m *Module) Run(ctx context.Context) error {
	client := m.client.Load()
	if client == nil {
		return m.NotConfigured()
	}
	log := m.Logger().With().Str("contract", client.Address()).Logger()

	state, err := client.ContractState(ctx)
	if err != nil {
		qerr := coorderrors.NewQueryError(Name, "failed to query contract state", err)
		log.Error().Err(qerr).Msg("core state check failed")
		return qerr
	}

	ack, err := client.LastIcaTransferAck(ctx)
	if err != nil {
		qerr := coorderrors.NewQueryError(Name, "failed to query last ica transfer ack", err)
		log.Error().Err(qerr).Str("contract_state", state).Msg("core state check failed")
		return qerr
	}
	if len(ack) == 0 {
		ack = []byte("null")
	}

	log.Info().
		Str("contract_state", state).
		RawJSON("last_ica_transfer_ack", ack).
		Msg("core state")
	return nil
}
