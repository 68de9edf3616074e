package main

import (
	"encoding/json"
	"fmt"

	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/spf13/cobra"

	"github.com/drop-protocol/coordinator/coordinator/chainclient"
	"github.com/drop-protocol/coordinator/coordinator/logger"
)

// TxOutput is what exec prints for a broadcast transaction
type TxOutput struct {
	Chain   string `yaml:"chain" json:"chain"`
	Sender  string `yaml:"sender" json:"sender"`
	TxHash  string `yaml:"txhash" json:"txhash"`
	Code    uint32 `yaml:"code" json:"code"`
	RawLog  string `yaml:"raw_log,omitempty" json:"raw_log,omitempty"`
	Height  int64  `yaml:"height,omitempty" json:"height,omitempty"`
	GasUsed int64  `yaml:"gas_used,omitempty" json:"gas_used,omitempty"`
}

func execCmd() *cobra.Command {
	var (
		amount       string
		outputFormat string
	)

	cmd := &cobra.Command{
		Use:   "exec [hub|target] [contract] [json-msg]",
		Short: "Sign and broadcast a contract execute message with the configured mnemonic",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			chainName, contract, rawMsg := args[0], args[1], args[2]
			if !json.Valid([]byte(rawMsg)) {
				return fmt.Errorf("execute message is not valid JSON")
			}

			funds, err := sdk.ParseCoinsNormalized(amount)
			if err != nil {
				return fmt.Errorf("invalid --amount: %w", err)
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if !cfg.HasCredentials() {
				return fmt.Errorf("MNEMONIC is required to sign transactions")
			}
			log := logger.New(cfg.LogLevel, cfg.LogFormat, cfg.LogSampler)

			chains, err := chainclient.NewSet(cfg, log)
			if err != nil {
				return err
			}
			defer chains.Close()

			chain, ok := chains.ByName(chainName)
			if !ok {
				return fmt.Errorf("unknown chain %q, expected hub or target", chainName)
			}
			if chain.Signer == nil {
				return fmt.Errorf("no signer configured for %s chain", chainName)
			}

			resp, err := chain.Signer.ExecuteContract(contextOf(cmd), contract, json.RawMessage(rawMsg), funds)
			if err != nil {
				return err
			}

			return printOutput(cmd.OutOrStdout(), TxOutput{
				Chain:   chain.ChainID,
				Sender:  chain.Signer.Address(),
				TxHash:  resp.TxHash,
				Code:    resp.Code,
				RawLog:  resp.RawLog,
				Height:  resp.Height,
				GasUsed: resp.GasUsed,
			}, outputFormat)
		},
	}

	cmd.Flags().StringVar(&amount, "amount", "", "Coins sent with the message (e.g. 1000untrn)")
	cmd.Flags().StringVarP(&outputFormat, "output", "o", OutputFormatYAML, "Output format (yaml|json)")
	return cmd
}
