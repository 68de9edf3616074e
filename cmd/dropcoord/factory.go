package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/drop-protocol/coordinator/coordinator/api"
	"github.com/drop-protocol/coordinator/coordinator/chainclient"
	"github.com/drop-protocol/coordinator/coordinator/contracts"
	"github.com/drop-protocol/coordinator/coordinator/factory"
	"github.com/drop-protocol/coordinator/coordinator/logger"
)

func factoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "factory",
		Short: "Factory contract commands",
	}

	var outputFormat string
	show := &cobra.Command{
		Use:   "show",
		Short: "Run factory discovery against the hub chain and print the resolved roles",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			log := logger.New(cfg.LogLevel, cfg.LogFormat, cfg.LogSampler)

			chains, err := chainclient.NewSet(cfg, log)
			if err != nil {
				return err
			}
			defer chains.Close()

			discoverer := factory.NewDiscoverer(
				contracts.NewFactoryClient(chains.Hub.Query, cfg.FactoryContract, cfg.QueryTimeout),
				factory.DiscovererConfig{Attempts: cfg.DiscoveryRetries, Delay: cfg.DiscoveryRetryDelay},
				log,
			)
			state, err := discoverer.Discover(contextOf(cmd))
			if err != nil {
				return err
			}

			return printOutput(cmd.OutOrStdout(), api.FactoryInfo{
				Contract:  cfg.FactoryContract,
				Roles:     state.Map(),
				UpdatedAt: time.Now().UTC(),
			}, outputFormat)
		},
	}
	show.Flags().StringVarP(&outputFormat, "output", "o", OutputFormatYAML, "Output format (yaml|json)")

	cmd.AddCommand(show)
	return cmd
}
