package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/memohai/claimd/internal/boot"
	"github.com/memohai/claimd/internal/version"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:           "claimd",
		Short:         "Escrow service for tips addressed to social handles",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.toml (default $CONFIG_PATH or ./config.toml)")
	resolve := func() string { return boot.ConfigPath(configPath) }

	cmd.AddCommand(
		serveCmd(resolve),
		migrateCmd(resolve),
		versionCmd(),
	)
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "claimd %s\n", version.GetInfo())
		},
	}
}
