package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix namespaces environment overrides, e.g. DCONNECT_LISTEN.
const EnvPrefix = "DCONNECT"

// envOverrides are the settings that may be overridden from the environment.
// Unset variables leave the file value alone.
type envOverrides struct {
	Listen          string        `envconfig:"LISTEN"`
	LogLevel        string        `envconfig:"LOG_LEVEL"`
	ResponseTimeout time.Duration `envconfig:"RESPONSE_TIMEOUT"`
	NATSURL         string        `envconfig:"NATS_URL"`
	MetricsEnabled  *bool         `envconfig:"METRICS_ENABLED"`
}

// ApplyEnv overlays DCONNECT_* environment variables onto cfg.
func ApplyEnv(cfg *Config) error {
	var env envOverrides
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return fmt.Errorf("environment overrides: %w", err)
	}

	if env.Listen != "" {
		cfg.Gateway.Listen = env.Listen
	}
	if env.LogLevel != "" {
		cfg.Service.LogLevel = env.LogLevel
	}
	if env.ResponseTimeout != 0 {
		cfg.Gateway.ResponseTimeout = env.ResponseTimeout
	}
	if env.NATSURL != "" {
		cfg.NATS.URL = env.NATSURL
	}
	if env.MetricsEnabled != nil {
		cfg.Metrics.Enabled = *env.MetricsEnabled
	}
	return nil
}
