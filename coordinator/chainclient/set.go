package chainclient

import (
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/drop-protocol/coordinator/coordinator/config"
)

// Chain groups the clients of one chain.
type Chain struct {
	Name    string
	ChainID string
	Query   *Client
	Status  StatusClient // nil when no RPC URL is configured
	Signer  *Signer      // nil when no credentials were supplied
}

// Set holds the hub and target chain clients. It is built once and shared read-only.
type Set struct {
	Hub    *Chain
	Target *Chain
}

// NewSet dials both chains described by cfg.
func NewSet(cfg *config.Config, log zerolog.Logger) (*Set, error) {
	hub, err := newChain("hub", cfg.Hub, cfg, log)
	if err != nil {
		return nil, err
	}
	target, err := newChain("target", cfg.Target, cfg, log)
	if err != nil {
		_ = hub.Close()
		return nil, err
	}
	return &Set{Hub: hub, Target: target}, nil
}

func newChain(name string, chainCfg config.ChainConfig, cfg *config.Config, log zerolog.Logger) (*Chain, error) {
	chainLog := log.With().Str("component", "chain_client").Str("chain", name).Logger()

	query, err := NewClient(chainCfg.GRPCURLs, chainLog)
	if err != nil {
		return nil, errors.Wrapf(err, "%s chain", name)
	}
	chain := &Chain{Name: name, ChainID: chainCfg.ChainID, Query: query}

	if chainCfg.RPCURL != "" {
		if chain.Status, err = NewStatusClient(chainCfg.RPCURL); err != nil {
			_ = query.Close()
			return nil, errors.Wrapf(err, "%s chain", name)
		}
	}

	if cfg.HasCredentials() {
		chain.Signer, err = NewSigner(SignerConfig{
			ChainID:       chainCfg.ChainID,
			AccountPrefix: chainCfg.AccountPrefix,
			Mnemonic:      cfg.Mnemonic,
			GasPrice:      chainCfg.GasPrice,
			GasAdjustment: cfg.GasAdjustment,
		}, query.Conn(), chainLog)
		if err != nil {
			_ = query.Close()
			return nil, errors.Wrapf(err, "%s chain signer", name)
		}
	}
	return chain, nil
}

// Close releases the chain's connections.
func (c *Chain) Close() error {
	if c == nil || c.Query == nil {
		return nil
	}
	return c.Query.Close()
}

// ByName returns the hub or target chain.
func (s *Set) ByName(name string) (*Chain, bool) {
	switch name {
	case "hub":
		return s.Hub, true
	case "target":
		return s.Target, true
	}
	return nil, false
}

// Close releases both chains' connections.
func (s *Set) Close() error {
	errHub := s.Hub.Close()
	errTarget := s.Target.Close()
	if errHub != nil {
		return errHub
	}
	return errTarget
}
