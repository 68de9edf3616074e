package main

import (
	"github.com/spf13/cobra"
)

// envFileFlag names an extra dotenv file merged before the configuration is read.
const envFileFlag = "env-file"

func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "dropcoord",
		Short:         "Drop liquid staking coordinator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String(envFileFlag, ".env", "Path to a dotenv file merged into the environment")

	InitRootCmd(rootCmd)

	return rootCmd
}
