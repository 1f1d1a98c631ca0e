package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is the gateway build version. The protocol version stamped on
// responses comes from service.version in the config.
var version = "0.1.0-dev"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type rootOptions struct {
	ConfigPath string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "dconnect-gw",
		Short:         "Device Connect gateway",
		Long:          "dconnect-gw routes /gotapi requests to built-in profile modules and device plugins.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", ".",
		"path to config.yaml or the directory holding it")

	cmd.AddCommand(newStartCommand(opts))
	cmd.AddCommand(newConfigCommand(opts))
	cmd.AddCommand(newPluginCommand(opts))
	cmd.AddCommand(newVersionCommand())
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "dconnect-gw version %s\n", version)
		},
	}
}
