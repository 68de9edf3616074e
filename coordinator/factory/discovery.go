package factory

import (
	"context"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/rs/zerolog"

	coorderrors "github.com/drop-protocol/coordinator/coordinator/errors"
)

const contractFieldSuffix = "_contract"

// StateSource fetches the raw field → address map from the factory contract.
type StateSource interface {
	State(ctx context.Context) (map[string]string, error)
}

// DiscovererConfig bounds a discovery run.
type DiscovererConfig struct {
	Attempts     int
	Delay        time.Duration
	QueryTimeout time.Duration
}

// Discoverer resolves protocol sub-contract addresses from the factory.
type Discoverer struct {
	source StateSource
	cfg    DiscovererConfig
	logger zerolog.Logger
}

func NewDiscoverer(source StateSource, cfg DiscovererConfig, logger zerolog.Logger) *Discoverer {
	if cfg.Attempts < 1 {
		cfg.Attempts = 1
	}
	return &Discoverer{
		source: source,
		cfg:    cfg,
		logger: logger.With().Str("component", "factory_discovery").Logger(),
	}
}

// Discover queries the factory, retrying up to the configured number of attempts.
// A final failure or an empty answer is a discovery error.
func (d *Discoverer) Discover(ctx context.Context) (State, error) {
	var state State

	err := retry.Do(func() error {
		attemptCtx := ctx
		if d.cfg.QueryTimeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, d.cfg.QueryTimeout)
			defer cancel()
		}

		raw, err := d.source.State(attemptCtx)
		if err != nil {
			return err
		}
		state = NewState(NormalizeRoles(raw))
		if state.Len() == 0 {
			return coorderrors.NewDiscoveryError("factory returned no contract addresses", nil)
		}
		return nil
	},
		retry.Attempts(uint(d.cfg.Attempts)),
		retry.Delay(d.cfg.Delay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			d.logger.Warn().
				Uint("attempt", n+1).
				Int("max_attempts", d.cfg.Attempts).
				Err(err).
				Msg("factory discovery attempt failed")
		}),
	)
	if err != nil {
		if coorderrors.HasCode(err, coorderrors.ErrCodeDiscovery) {
			return State{}, err
		}
		return State{}, coorderrors.NewDiscoveryError("failed to query factory state", err)
	}

	d.logger.Info().
		Strs("roles", state.Roles()).
		Msg("factory discovery complete")
	return state, nil
}

// NormalizeRoles maps factory field names to roles: "core_contract" becomes "core".
func NormalizeRoles(raw map[string]string) map[string]string {
	out := make(map[string]string, len(raw))
	for field, addr := range raw {
		role := strings.TrimSuffix(strings.ToLower(field), contractFieldSuffix)
		out[role] = addr
	}
	return out
}
