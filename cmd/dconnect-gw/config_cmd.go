package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mattjoyce/dconnect-gw/internal/config"
	"github.com/mattjoyce/dconnect-gw/internal/doctor"
	"github.com/mattjoyce/dconnect-gw/internal/plugin"
)

func newConfigCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Validate and lock the gateway configuration",
	}
	cmd.AddCommand(newConfigCheckCommand(opts))
	cmd.AddCommand(newConfigLockCommand(opts))
	return cmd
}

func newConfigCheckCommand(opts *rootOptions) *cobra.Command {
	var format string
	var strict bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate syntax, integrity and plugin setup",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if format != "human" && format != "json" {
				return fmt.Errorf("invalid format %q: must be human or json", format)
			}

			cfg, err := config.Load(opts.ConfigPath)
			if err != nil {
				return fmt.Errorf("config load error: %w", err)
			}
			loader := &plugin.Loader{GatewayVersion: cfg.Service.Version, ListOnly: true}
			regs, err := loader.Discover(cfg.PluginRoots)
			if err != nil {
				return fmt.Errorf("plugin discovery error: %w", err)
			}

			result := doctor.New(cfg, regs).Validate()
			out := cmd.OutOrStdout()
			if format == "json" {
				data, err := doctor.FormatJSON(result)
				if err != nil {
					return fmt.Errorf("JSON format error: %w", err)
				}
				fmt.Fprintln(out, data)
			} else {
				fmt.Fprint(out, doctor.FormatHuman(result))
			}

			if !result.Valid {
				return fmt.Errorf("configuration invalid: %d error(s)", len(result.Errors))
			}
			if strict && len(result.Warnings) > 0 {
				return fmt.Errorf("configuration has %d warning(s) (--strict)", len(result.Warnings))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "human", "output format (human|json)")
	cmd.Flags().BoolVar(&strict, "strict", false, "treat warnings as errors")
	return cmd
}

func newConfigLockCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "lock",
		Short: "Record the config file hash in .checksums",
		Long: `Lock hashes the configuration file with BLAKE3 and records it in the
.checksums file next to it. Once locked, start and check refuse a config that
has changed until it is locked again.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := config.ResolvePath(opts.ConfigPath)
			if err != nil {
				return err
			}
			hash, err := config.Lock(path)
			if err != nil {
				return fmt.Errorf("lock failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Locked %s (blake3 %s)\n", path, hash)
			return nil
		},
	}
}
