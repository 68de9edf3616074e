package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	sdkversion "github.com/cosmos/cosmos-sdk/version"
	"github.com/spf13/cobra"

	"github.com/drop-protocol/coordinator/coordinator/config"
	"github.com/drop-protocol/coordinator/coordinator/core"
	"github.com/drop-protocol/coordinator/coordinator/logger"
)

func InitRootCmd(rootCmd *cobra.Command) {
	rootCmd.AddCommand(
		startCmd(),
		versionCmd(),
		configCmd(),
		modulesCmd(),
		factoryCmd(),
		queryCmd(),
		execCmd(),
	)
}

// loadConfig reads the configuration once, including the override keys of every registered module.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	envFile, err := cmd.Flags().GetString(envFileFlag)
	if err != nil {
		return nil, err
	}
	return config.LoadFromEnv(envFile, core.DefaultRegistry().Names()...)
}

func startCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the coordinator",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			log := logger.New(cfg.LogLevel, cfg.LogFormat, cfg.LogSampler)

			ctx, stop := signal.NotifyContext(contextOf(cmd), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			coordinator := core.New(cfg, log, core.Deps{})
			if err := coordinator.Run(ctx); err != nil {
				log.Error().Err(err).Msg("coordinator stopped with error")
				return err
			}
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print dropcoord version info",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Name:       %s\n", sdkversion.Name)
			fmt.Fprintf(out, "App Name:   %s\n", sdkversion.AppName)
			fmt.Fprintf(out, "Version:    %s\n", sdkversion.Version)
			fmt.Fprintf(out, "Commit:     %s\n", sdkversion.Commit)
			fmt.Fprintf(out, "Build Tags: %s\n", sdkversion.BuildTags)
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration commands",
	}

	var outputFormat string
	show := &cobra.Command{
		Use:   "show",
		Short: "Print the loaded configuration with secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return printOutput(cmd.OutOrStdout(), cfg.Redacted(), outputFormat)
		},
	}
	show.Flags().StringVarP(&outputFormat, "output", "o", OutputFormatYAML, "Output format (yaml|json)")

	cmd.AddCommand(show)
	return cmd
}

func modulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "modules",
		Short: "Check module commands",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the registered check modules in run order",
		Run: func(cmd *cobra.Command, args []string) {
			for _, name := range core.DefaultRegistry().Names() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
		},
	})
	return cmd
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
