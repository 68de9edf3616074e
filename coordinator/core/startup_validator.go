package core

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/drop-protocol/coordinator/coordinator/chainclient"
)

// HeightSource reports the latest block height over gRPC.
type HeightSource interface {
	LatestHeight(ctx context.Context) (int64, error)
}

// AccountSource reports the signing account of a chain.
type AccountSource interface {
	Address() string
	Account(ctx context.Context) (chainclient.Account, error)
}

// chainProbe is what the validator checks for one chain.
type chainProbe struct {
	name     string
	chainID  string
	required bool // gRPC must answer
	status   chainclient.StatusClient
	heights  HeightSource
	signer   AccountSource
}

// StartupValidationResult summarises what was checked.
type StartupValidationResult struct {
	Chains map[string]ChainCheck
}

// ChainCheck is the outcome of probing one chain.
type ChainCheck struct {
	Network       string `json:"network,omitempty"`
	Height        int64  `json:"height"`
	SignerAddress string `json:"signer_address,omitempty"`
	AccountNumber uint64 `json:"account_number,omitempty"`
}

// StartupValidator checks that the configured chains are reachable and are the expected ones.
type StartupValidator struct {
	log     zerolog.Logger
	timeout time.Duration
	probes  []chainProbe
}

// NewStartupValidator probes the hub and target chains of set.
// The hub's gRPC endpoints are required; the target's are only reported.
func NewStartupValidator(set *chainclient.Set, timeout time.Duration, log zerolog.Logger) *StartupValidator {
	var probes []chainProbe
	for _, chain := range []*chainclient.Chain{set.Hub, set.Target} {
		if chain == nil {
			continue
		}
		p := chainProbe{
			name:     chain.Name,
			chainID:  chain.ChainID,
			required: chain == set.Hub,
			status:   chain.Status,
		}
		if chain.Query != nil {
			p.heights = chain.Query
		}
		if chain.Signer != nil {
			p.signer = chain.Signer
		}
		probes = append(probes, p)
	}
	return newStartupValidator(timeout, log, probes...)
}

func newStartupValidator(timeout time.Duration, log zerolog.Logger, probes ...chainProbe) *StartupValidator {
	return &StartupValidator{
		log:     log.With().Str("component", "startup_validator").Logger(),
		timeout: timeout,
		probes:  probes,
	}
}

// Validate runs every probe. Any returned error is fatal for startup.
func (sv *StartupValidator) Validate(ctx context.Context) (*StartupValidationResult, error) {
	sv.log.Info().Msg("validating startup requirements")

	result := &StartupValidationResult{Chains: make(map[string]ChainCheck)}
	for _, p := range sv.probes {
		check, err := sv.probe(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("%s chain: %w", p.name, err)
		}
		result.Chains[p.name] = check
	}

	sv.log.Info().Int("chains", len(result.Chains)).Msg("startup requirements validated")
	return result, nil
}

func (sv *StartupValidator) probe(ctx context.Context, p chainProbe) (ChainCheck, error) {
	var check ChainCheck
	log := sv.log.With().Str("chain", p.name).Logger()

	if p.status != nil {
		st, err := withTimeout(ctx, sv.timeout, p.status.Status)
		if err != nil {
			return check, fmt.Errorf("rpc status unavailable: %w", err)
		}
		if p.chainID != "" && st.Network != p.chainID {
			return check, fmt.Errorf("rpc reports chain id %q, expected %q", st.Network, p.chainID)
		}
		if st.CatchingUp {
			log.Warn().Int64("height", st.LatestBlockHeight).Msg("node is still catching up")
		}
		check.Network = st.Network
		check.Height = st.LatestBlockHeight
	}

	if p.heights != nil {
		height, err := withTimeout(ctx, sv.timeout, p.heights.LatestHeight)
		switch {
		case err != nil && p.required:
			return check, fmt.Errorf("grpc unavailable: %w", err)
		case err != nil:
			log.Warn().Err(err).Msg("grpc endpoints did not answer")
		default:
			check.Height = height
		}
	}

	if p.signer != nil {
		check.SignerAddress = p.signer.Address()
		acc, err := withTimeout(ctx, sv.timeout, p.signer.Account)
		if err != nil {
			log.Warn().Err(err).Str("address", check.SignerAddress).Msg("signer account not found on chain")
		} else {
			check.AccountNumber = acc.AccountNumber
		}
	}

	log.Info().
		Str("network", check.Network).
		Int64("height", check.Height).
		Str("signer", check.SignerAddress).
		Msg("chain reachable")
	return check, nil
}

func withTimeout[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return fn(ctx)
}
