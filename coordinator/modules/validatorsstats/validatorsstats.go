// Package validatorsstats finds interchain queries registered by the validator
// statistics contract and hands the set ones to the relayer.
package validatorsstats

import (
	"context"
	"sync/atomic"

	"github.com/drop-protocol/coordinator/coordinator/contracts"
	coorderrors "github.com/drop-protocol/coordinator/coordinator/errors"
	"github.com/drop-protocol/coordinator/coordinator/factory"
	"github.com/drop-protocol/coordinator/coordinator/modules"
	"github.com/drop-protocol/coordinator/coordinator/relay"
)

// Name is the module name, also the prefix of its VALIDATORS_STATS_CONTRACT override.
const Name = "validators_stats"

type Module struct {
	*modules.Base

	client  atomic.Pointer[contracts.ValidatorsStatsClient]
	relayer atomic.Value // relay.Relayer
}

// New builds the module bound to mctx; mctx may be nil until Configure.
func New(mctx *modules.Context) modules.Module {
	m := &Module{Base: modules.NewBase(Name, factory.RoleValidatorsStats)}
	m.Bind(mctx)
	if mctx != nil && mctx.Relayer != nil {
		m.relayer.Store(relayerBox{mctx.Relayer})
	}
	return m
}

// relayerBox keeps atomic.Value stores of one concrete type.
type relayerBox struct{ relay.Relayer }

func (m *Module) Configure(mctx *modules.Context) (modules.Config, error) {
	if mctx.Relayer == nil {
		return modules.Config{}, coorderrors.NewCoordinatorError(coorderrors.ErrCodeConfig, Name, "relayer is required", nil)
	}
	cfg, err := m.Resolve(mctx)
	if err != nil {
		return modules.Config{}, err
	}
	m.relayer.Store(relayerBox{mctx.Relayer})
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
	m.client.Store(contracts.NewValidatorsStatsClient(mctx.HubQuerier, address, mctx.QueryTimeout))
}

func (m *Module) Run(ctx context.Context) error {
	client := m.client.Load()
	box, _ := m.relayer.Load().(relayerBox)
	if client == nil || box.Relayer == nil {
		return m.NotConfigured()
	}
	log := m.Logger().With().Str("contract", client.Address()).Logger()

	ids, err := client.QueryIds(ctx)
	if err != nil {
		var cerr *coorderrors.CoordinatorError
		if coorderrors.HasCode(err, coorderrors.ErrCodeDecode) {
			cerr = coorderrors.NewDecodeError(Name, "failed to decode query ids", err)
		} else {
			cerr = coorderrors.NewQueryError(Name, "failed to query ids", err)
		}
		log.Error().Err(cerr).Msg("validators stats check failed")
		return cerr
	}

	pending := PendingIDs(ids)
	if len(pending) == 0 {
		log.Debug().Int("registered", len(ids)).Msg("no interchain queries to relay")
		return nil
	}

	log.Info().Strs("query_ids", pending).Msg("relaying validator stats queries")
	box.Relay(ctx, pending)
	return nil
}

// PendingIDs keeps the set identifiers, in order.
func PendingIDs(ids []contracts.QueryID) []string {
	var out []string
	for _, id := range ids {
		if id.Set() {
			out = append(out, id.String())
		}
	}
	return out
}
