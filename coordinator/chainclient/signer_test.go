package chainclient

import (
	"testing"

	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

func TestNewSignerUsesChainPrefix(t *testing.T) {
	hub, err := NewSigner(SignerConfig{
		ChainID:       "pion-1",
		AccountPrefix: "neutron",
		Mnemonic:      testMnemonic,
		GasPrice:      "0.05untrn",
		GasAdjustment: 1.5,
	}, nil, zerolog.Nop())
	require.NoError(t, err)

	target, err := NewSigner(SignerConfig{
		ChainID:       "provider",
		AccountPrefix: "cosmos",
		Mnemonic:      testMnemonic,
		GasPrice:      "0.01uatom",
		GasAdjustment: 1.5,
	}, nil, zerolog.Nop())
	require.NoError(t, err)

	hubBytes, err := sdk.GetFromBech32(hub.Address(), "neutron")
	require.NoError(t, err)
	targetBytes, err := sdk.GetFromBech32(target.Address(), "cosmos")
	require.NoError(t, err)

	assert.Equal(t, hubBytes, targetBytes)
	assert.NotEqual(t, hub.Address(), target.Address())
}

func TestNewSignerErrors(t *testing.T) {
	tests := []struct {
		name   string
		cfg    SignerConfig
		errMsg string
	}{
		{
			name:   "invalid mnemonic",
			cfg:    SignerConfig{AccountPrefix: "neutron", Mnemonic: "not a mnemonic", GasPrice: "0.1untrn", GasAdjustment: 1},
			errMsg: "failed to derive key",
		},
		{
			name:   "invalid gas price",
			cfg:    SignerConfig{AccountPrefix: "neutron", Mnemonic: testMnemonic, GasPrice: "cheap", GasAdjustment: 1},
			errMsg: "invalid gas price",
		},
		{
			name:   "missing prefix",
			cfg:    SignerConfig{Mnemonic: testMnemonic, GasPrice: "0.1untrn", GasAdjustment: 1},
			errMsg: "account prefix is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewSigner(tt.cfg, nil, zerolog.Nop())
			require.Error(t, err)
			assert.Nil(t, s)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestAdjustGas(t *testing.T) {
	s, err := NewSigner(SignerConfig{
		AccountPrefix: "neutron",
		Mnemonic:      testMnemonic,
		GasPrice:      "0.05untrn",
		GasAdjustment: 1.5,
	}, nil, zerolog.Nop())
	require.NoError(t, err)

	assert.Equal(t, uint64(150000), s.adjustGas(100000))
	assert.Equal(t, uint64(2), s.adjustGas(1))
}
