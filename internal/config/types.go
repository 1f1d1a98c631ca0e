package config

import (
	"time"

	"github.com/mattjoyce/dconnect-gw/internal/profile/mediastream"
)

// Config represents the complete gateway configuration.
type Config struct {
	Service     ServiceConfig  `yaml:"service"`
	Gateway     GatewayConfig  `yaml:"gateway"`
	Metrics     MetricsConfig  `yaml:"metrics"`
	Events      EventsConfig   `yaml:"events"`
	PluginRoots []string       `yaml:"plugin_roots"`
	NATS        NATSConfig     `yaml:"nats"`
	Supports    []string       `yaml:"supports"`
	Profiles    ProfilesConfig `yaml:"profiles,omitempty"`

	// Path is the absolute path of the loaded file. Relative plugin roots are
	// resolved against its directory.
	Path string `yaml:"-"`
}

// ServiceConfig defines core service settings. Name and Version are stamped on
// every response envelope as product and version.
type ServiceConfig struct {
	Name     string `yaml:"name"`
	Version  string `yaml:"version"`
	LogLevel string `yaml:"log_level"`
	// PIDFile guards against a second instance. Relative paths are resolved
	// against the config directory.
	PIDFile string `yaml:"pid_file"`
}

// GatewayConfig defines the HTTP front end and dispatch settings.
type GatewayConfig struct {
	Listen          string        `yaml:"listen"`
	ResponseTimeout time.Duration `yaml:"response_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
	CORS            CORSConfig    `yaml:"cors"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// EventsConfig sizes the in-memory event ring buffer.
type EventsConfig struct {
	Buffer int `yaml:"buffer"`
}

// NATSConfig enables nats transport plugins when URL is set.
type NATSConfig struct {
	URL  string `yaml:"url"`
	Name string `yaml:"name"`
}

// ProfilesConfig holds per-module settings for built-in profiles.
type ProfilesConfig struct {
	MediastreamRecording *mediastream.Config `yaml:"mediastream_recording,omitempty"`
}

// ChecksumManifest is the on-disk .checksums format.
type ChecksumManifest struct {
	Version     int               `yaml:"version"`
	GeneratedAt string            `yaml:"generated_at"`
	Hashes      map[string]string `yaml:"hashes"`
}

// Defaults returns a Config with default values.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:     "deviceconnect-gw",
			Version:  "2.0.0",
			LogLevel: "info",
			PIDFile:  "dconnect-gw.pid",
		},
		Gateway: GatewayConfig{
			Listen:          "127.0.0.1:4035",
			ResponseTimeout: 60 * time.Second,
			MaxBodyBytes:    32 << 20,
			CORS:            CORSConfig{AllowedOrigins: []string{"*"}},
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Path:    "/metrics",
		},
		Events: EventsConfig{
			Buffer: 256,
		},
		NATS: NATSConfig{
			Name: "dconnect-gw",
		},
		Supports: []string{"availability"},
	}
}
