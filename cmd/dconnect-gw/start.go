package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mattjoyce/dconnect-gw/internal/api"
	"github.com/mattjoyce/dconnect-gw/internal/config"
	"github.com/mattjoyce/dconnect-gw/internal/dispatch"
	"github.com/mattjoyce/dconnect-gw/internal/events"
	"github.com/mattjoyce/dconnect-gw/internal/lock"
	"github.com/mattjoyce/dconnect-gw/internal/log"
	"github.com/mattjoyce/dconnect-gw/internal/metric"
	"github.com/mattjoyce/dconnect-gw/internal/plugin"
	"github.com/mattjoyce/dconnect-gw/internal/profile"
	"github.com/mattjoyce/dconnect-gw/internal/profile/mediastream"
)

var errNATSClosed = errors.New("nats connection closed")

func newStartCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the gateway in the foreground",
		Long: `Start loads the configuration, enables the built-in modules listed under
supports, discovers device plugins under plugin_roots and serves HTTP until
SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runStart(ctx, opts.ConfigPath)
		},
	}
}

func runStart(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log.Setup(cfg.Service.LogLevel)
	logger := log.WithComponent("main")
	logger.Info("dconnect-gw starting",
		"version", version,
		"config", cfg.Path,
		"product", cfg.Service.Name,
		"protocol_version", cfg.Service.Version,
	)

	pidLock, err := lock.AcquirePIDLock(cfg.Service.PIDFile)
	if err != nil {
		return fmt.Errorf("failed to acquire PID lock (another instance may be running): %w", err)
	}
	defer pidLock.Release()
	logger.Info("acquired PID lock", "path", pidLock.Path())

	var nc *nats.Conn
	natsClosed := make(chan struct{})
	if cfg.NATS.URL != "" {
		nc, err = plugin.Connect(cfg.NATS.URL, cfg.NATS.Name,
			nats.ClosedHandler(func(*nats.Conn) { close(natsClosed) }))
		if err != nil {
			return err
		}
		logger.Info("connected to nats", "url", nc.ConnectedUrl())
	}

	registry, err := buildRegistry(cfg, nc, logger)
	if err != nil {
		if nc != nil {
			nc.Close()
		}
		return err
	}

	hub := events.NewHub(cfg.Events.Buffer)
	var metrics *metric.Metrics
	apiConfig := api.Config{
		Listen:         cfg.Gateway.Listen,
		MaxBodyBytes:   cfg.Gateway.MaxBodyBytes,
		AllowedOrigins: cfg.Gateway.CORS.AllowedOrigins,
	}
	if cfg.Metrics.Enabled {
		metrics = metric.New()
		apiConfig.MetricsPath = cfg.Metrics.Path
	}

	engine := dispatch.New(registry,
		dispatch.WithResponseTimeout(cfg.Gateway.ResponseTimeout),
		dispatch.WithProduct(cfg.Service.Name, cfg.Service.Version),
		dispatch.WithMetrics(metrics),
		dispatch.WithEvents(hub),
		dispatch.WithLogger(log.WithComponent("dispatch")),
	)
	server := api.New(apiConfig, engine, registry, hub, metrics, log.WithComponent("api"))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start(gctx)
	})
	if nc != nil {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return nil
			case <-natsClosed:
				return errNATSClosed
			}
		})
	}

	runErr := g.Wait()
	logger.Info("shutting down")

	if err := registry.ShutdownAll(); err != nil {
		logger.Warn("shutdown hooks reported errors", "error", err)
	}
	if nc != nil && !nc.IsClosed() {
		if err := nc.Drain(); err != nil {
			logger.Warn("nats drain failed", "error", err)
		}
	}

	if runErr != nil {
		return runErr
	}
	logger.Info("dconnect-gw stopped")
	return nil
}

// buildRegistry enables the configured built-in modules and registers every
// plugin discovered under the plugin roots.
func buildRegistry(cfg *config.Config, nc *nats.Conn, logger *slog.Logger) (*plugin.Registry, error) {
	registry := plugin.NewRegistry(builtinModules(cfg)...)
	for _, m := range registry.Modules() {
		logger.Info("built-in module enabled", "module", m.Name())
	}

	loader := &plugin.Loader{
		GatewayVersion: cfg.Service.Version,
		Conn:           nc,
		ExecGrace:      plugin.DefaultTerminationGrace,
		Logger:         log.WithComponent("plugin"),
	}
	regs, err := loader.Discover(cfg.PluginRoots)
	if err != nil {
		return nil, fmt.Errorf("plugin discovery failed: %w", err)
	}
	for _, reg := range regs {
		if err := registry.Add(reg); err != nil {
			return nil, fmt.Errorf("register plugin: %w", err)
		}
	}
	logger.Info("plugin discovery complete", "count", len(regs), "roots", cfg.PluginRoots)
	return registry, nil
}

// builtinModules returns the modules named in supports, in that order.
func builtinModules(cfg *config.Config) []profile.Module {
	var modules []profile.Module
	for _, name := range cfg.Supports {
		switch name {
		case profile.AvailabilityName:
			modules = append(modules, profile.NewAvailability(cfg.Service.Name))
		case mediastream.Name:
			var msCfg mediastream.Config
			if cfg.Profiles.MediastreamRecording != nil {
				msCfg = *cfg.Profiles.MediastreamRecording
			}
			modules = append(modules, mediastream.New(msCfg))
		}
	}
	return modules
}
