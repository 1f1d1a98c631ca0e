package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mattjoyce/dconnect-gw/internal/config"
	"github.com/mattjoyce/dconnect-gw/internal/plugin"
)

func newPluginCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plugin",
		Short: "Inspect device plugins",
	}
	cmd.AddCommand(newPluginListCommand(opts))
	return cmd
}

// pluginSummary is one row of plugin list output.
type pluginSummary struct {
	Name      string   `json:"name"`
	Version   string   `json:"version"`
	Transport string   `json:"transport"`
	Target    string   `json:"target"`
	Profiles  []string `json:"profiles,omitempty"`
	Path      string   `json:"path"`
}

func newPluginListCommand(opts *rootOptions) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show plugins discovered under plugin_roots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if format != "text" && format != "json" {
				return fmt.Errorf("invalid format %q: must be text or json", format)
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

			rows := make([]pluginSummary, 0, len(regs))
			for _, reg := range regs {
				rows = append(rows, summarize(reg))
			}
			if format == "json" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(rows)
			}
			return writePluginTable(cmd.OutOrStdout(), rows)
		},
	}
	cmd.Flags().StringVar(&format, "format", "text", "output format (text|json)")
	return cmd
}

func summarize(reg *plugin.Registration) pluginSummary {
	m := reg.Manifest
	s := pluginSummary{
		Name:      reg.ID,
		Version:   m.Version,
		Transport: string(m.Transport),
		Profiles:  m.Profiles,
		Path:      m.Path,
	}
	if m.Transport == plugin.TransportNATS {
		s.Target = m.NATSSubject()
	} else {
		s.Target = m.Entrypoint
	}
	return s
}

func writePluginTable(w io.Writer, rows []pluginSummary) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "No plugins discovered.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tVERSION\tTRANSPORT\tTARGET\tPROFILES")
	for _, r := range rows {
		profiles := strings.Join(r.Profiles, ",")
		if profiles == "" {
			profiles = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.Name, r.Version, r.Transport, r.Target, profiles)
	}
	return tw.Flush()
}
