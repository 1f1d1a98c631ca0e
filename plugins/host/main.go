// Command host is a device plugin for the machine it runs on. It answers
// battery and serviceinformation requests on a NATS subject.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/mattjoyce/dconnect-gw/internal/log"
	"github.com/mattjoyce/dconnect-gw/internal/plugin"
)

func main() {
	if err := newCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newCommand() *cobra.Command {
	var natsURL, subject, powerSupply, logLevel string

	cmd := &cobra.Command{
		Use:           "host",
		Short:         "Device plugin for the local machine",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log.Setup(logLevel)
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			nc, err := plugin.Connect(natsURL, "dconnect-host-plugin")
			if err != nil {
				return err
			}
			return serve(ctx, nc, subject, sysfsBattery(powerSupply))
		},
	}
	cmd.Flags().StringVar(&natsURL, "nats", nats.DefaultURL, "NATS server URL")
	cmd.Flags().StringVar(&subject, "subject", plugin.SubjectPrefix+"host", "request subject")
	cmd.Flags().StringVar(&powerSupply, "power-supply", defaultPowerSupplyDir, "sysfs power_supply directory")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level")
	return cmd
}

// serve answers requests on subject until ctx ends, then drains nc.
func serve(ctx context.Context, nc *nats.Conn, subject string, battery batterySource) error {
	logger := log.WithComponent("host-plugin")

	sub, err := nc.Subscribe(subject, func(msg *nats.Msg) {
		reply := respond(msg.Data, battery)
		data, err := json.Marshal(reply)
		if err != nil {
			logger.Error("failed to encode reply", "error", err)
			return
		}
		if err := msg.Respond(data); err != nil {
			logger.Warn("failed to send reply", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	logger.Info("host plugin listening", "subject", sub.Subject)

	<-ctx.Done()
	logger.Info("host plugin stopping")
	if err := nc.Drain(); err != nil {
		return fmt.Errorf("drain: %w", err)
	}
	return nil
}
