package chainclient

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"

	sdkmath "cosmossdk.io/math"
	"cosmossdk.io/x/tx/signing"
	wasmtypes "github.com/CosmWasm/wasmd/x/wasm/types"
	"github.com/cosmos/cosmos-sdk/client"
	clienttx "github.com/cosmos/cosmos-sdk/client/tx"
	"github.com/cosmos/cosmos-sdk/codec"
	"github.com/cosmos/cosmos-sdk/codec/address"
	codectypes "github.com/cosmos/cosmos-sdk/codec/types"
	"github.com/cosmos/cosmos-sdk/crypto/hd"
	"github.com/cosmos/cosmos-sdk/crypto/keyring"
	"github.com/cosmos/cosmos-sdk/std"
	sdk "github.com/cosmos/cosmos-sdk/types"
	txtypes "github.com/cosmos/cosmos-sdk/types/tx"
	signingtypes "github.com/cosmos/cosmos-sdk/types/tx/signing"
	authtx "github.com/cosmos/cosmos-sdk/x/auth/tx"
	authtypes "github.com/cosmos/cosmos-sdk/x/auth/types"
	"github.com/cosmos/gogoproto/proto"
	gogogrpc "github.com/cosmos/gogoproto/grpc"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const signerKeyName = "coordinator"

// SignerConfig holds what a Signer needs for one chain.
type SignerConfig struct {
	ChainID       string
	AccountPrefix string
	Mnemonic      string
	GasPrice      string
	GasAdjustment float64
}

// Account is the on-chain account state used for signing.
type Account struct {
	Address       string `json:"address"`
	AccountNumber uint64 `json:"account_number"`
	Sequence      uint64 `json:"sequence"`
}

// Signer signs and broadcasts contract executions for one chain.
// Addresses are encoded with the chain's own prefix, so hub and target
// signers can coexist in one process.
type Signer struct {
	log       zerolog.Logger
	conn      gogogrpc.ClientConn
	chainID   string
	address   string
	keyring   keyring.Keyring
	registry  codectypes.InterfaceRegistry
	txConfig  client.TxConfig
	gasPrice  string
	gasAdjust sdkmath.LegacyDec

	sequenceMutex sync.Mutex // serialises sign+broadcast
}

// NewSigner derives the coordinator key from the mnemonic into an in-memory keyring.
func NewSigner(cfg SignerConfig, conn gogogrpc.ClientConn, log zerolog.Logger) (*Signer, error) {
	if cfg.AccountPrefix == "" {
		return nil, errors.New("account prefix is required")
	}
	if _, err := sdk.ParseDecCoins(cfg.GasPrice); err != nil {
		return nil, errors.Wrapf(err, "invalid gas price %q", cfg.GasPrice)
	}
	gasAdjust, err := sdkmath.LegacyNewDecFromStr(strconv.FormatFloat(cfg.GasAdjustment, 'f', -1, 64))
	if err != nil {
		return nil, errors.Wrap(err, "invalid gas adjustment")
	}

	registry, err := newInterfaceRegistry(cfg.AccountPrefix)
	if err != nil {
		return nil, err
	}
	cdc := codec.NewProtoCodec(registry)

	kr := keyring.NewInMemory(cdc)
	hdPath := hd.CreateHDPath(sdk.CoinType, 0, 0).String()
	record, err := kr.NewAccount(signerKeyName, cfg.Mnemonic, "", hdPath, hd.Secp256k1)
	if err != nil {
		return nil, errors.Wrap(err, "failed to derive key from mnemonic")
	}
	accAddr, err := record.GetAddress()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read key address")
	}
	addr, err := sdk.Bech32ifyAddressBytes(cfg.AccountPrefix, accAddr)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode address")
	}

	return &Signer{
		log:       log,
		conn:      conn,
		chainID:   cfg.ChainID,
		address:   addr,
		keyring:   kr,
		registry:  registry,
		txConfig:  authtx.NewTxConfig(cdc, authtx.DefaultSignModes),
		gasPrice:  cfg.GasPrice,
		gasAdjust: gasAdjust,
	}, nil
}

// newInterfaceRegistry builds a registry whose signer extraction uses the chain's bech32 prefix
// instead of the process-wide sdk config.
func newInterfaceRegistry(prefix string) (codectypes.InterfaceRegistry, error) {
	registry, err := codectypes.NewInterfaceRegistryWithOptions(codectypes.InterfaceRegistryOptions{
		ProtoFiles: proto.HybridResolver,
		SigningOptions: signing.Options{
			AddressCodec:          address.NewBech32Codec(prefix),
			ValidatorAddressCodec: address.NewBech32Codec(prefix + sdk.PrefixValidator + sdk.PrefixOperator),
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create interface registry")
	}
	std.RegisterInterfaces(registry)
	authtypes.RegisterInterfaces(registry)
	wasmtypes.RegisterInterfaces(registry)
	return registry, nil
}

// Address returns the signer's bech32 address on this chain.
func (s *Signer) Address() string {
	return s.address
}

// Account queries the signer's account number and sequence.
func (s *Signer) Account(ctx context.Context) (Account, error) {
	resp, err := authtypes.NewQueryClient(s.conn).Account(ctx, &authtypes.QueryAccountRequest{Address: s.address})
	if err != nil {
		return Account{}, errors.Wrapf(err, "failed to query account %s", s.address)
	}

	var acc sdk.AccountI
	if err := s.registry.UnpackAny(resp.Account, &acc); err != nil {
		return Account{}, errors.Wrap(err, "failed to unpack account")
	}
	return Account{
		Address:       s.address,
		AccountNumber: acc.GetAccountNumber(),
		Sequence:      acc.GetSequence(),
	}, nil
}

// ExecuteContract signs and broadcasts a MsgExecuteContract carrying msg as JSON.
func (s *Signer) ExecuteContract(ctx context.Context, contract string, msg interface{}, funds sdk.Coins) (*sdk.TxResponse, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode execute message")
	}
	exec := &wasmtypes.MsgExecuteContract{
		Sender:   s.address,
		Contract: contract,
		Msg:      wasmtypes.RawContractMessage(payload),
		Funds:    funds,
	}
	return s.SignAndBroadcast(ctx, exec)
}

// SignAndBroadcast simulates, signs and broadcasts msgs in sync mode.
func (s *Signer) SignAndBroadcast(ctx context.Context, msgs ...sdk.Msg) (*sdk.TxResponse, error) {
	s.sequenceMutex.Lock()
	defer s.sequenceMutex.Unlock()

	account, err := s.Account(ctx)
	if err != nil {
		return nil, err
	}

	txf := clienttx.Factory{}.
		WithTxConfig(s.txConfig).
		WithKeybase(s.keyring).
		WithFromName(signerKeyName).
		WithChainID(s.chainID).
		WithAccountNumber(account.AccountNumber).
		WithSequence(account.Sequence).
		WithSignMode(signingtypes.SignMode_SIGN_MODE_DIRECT)

	simBytes, err := txf.BuildSimTx(msgs...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build simulation tx")
	}
	txSvc := txtypes.NewServiceClient(s.conn)
	sim, err := txSvc.Simulate(ctx, &txtypes.SimulateRequest{TxBytes: simBytes})
	if err != nil {
		return nil, errors.Wrap(err, "failed to simulate tx")
	}
	gas := s.adjustGas(sim.GasInfo.GasUsed)

	txf = txf.WithGas(gas).WithGasPrices(s.gasPrice)
	builder, err := txf.BuildUnsignedTx(msgs...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build tx")
	}
	if err := clienttx.Sign(ctx, txf, signerKeyName, builder, true); err != nil {
		return nil, errors.Wrap(err, "failed to sign tx")
	}
	txBytes, err := s.txConfig.TxEncoder()(builder.GetTx())
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode tx")
	}

	res, err := txSvc.BroadcastTx(ctx, &txtypes.BroadcastTxRequest{
		TxBytes: txBytes,
		Mode:    txtypes.BroadcastMode_BROADCAST_MODE_SYNC,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to broadcast tx")
	}

	txRes := res.TxResponse
	if txRes.Code != 0 {
		s.log.Error().
			Str("tx_hash", txRes.TxHash).
			Uint32("code", txRes.Code).
			Str("raw_log", txRes.RawLog).
			Msg("transaction rejected")
		return txRes, errors.Errorf("transaction failed with code %d: %s", txRes.Code, txRes.RawLog)
	}

	s.log.Info().
		Str("tx_hash", txRes.TxHash).
		Uint64("gas_wanted", gas).
		Msg("transaction broadcasted")
	return txRes, nil
}

func (s *Signer) adjustGas(gasUsed uint64) uint64 {
	return sdkmath.LegacyNewDec(int64(gasUsed)).Mul(s.gasAdjust).Ceil().TruncateInt().Uint64()
}
