package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mattjoyce/dconnect-gw/internal/profile/mediastream"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		env     map[string]string
		wantErr string
		checkFn func(t *testing.T, cfg *Config)
	}{
		{
			name: "empty file gets defaults",
			yaml: "{}\n",
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.Service.Name != "deviceconnect-gw" {
					t.Errorf("service.name = %q", cfg.Service.Name)
				}
				if cfg.Service.Version != "2.0.0" {
					t.Errorf("service.version = %q", cfg.Service.Version)
				}
				if cfg.Gateway.Listen != "127.0.0.1:4035" {
					t.Errorf("gateway.listen = %q", cfg.Gateway.Listen)
				}
				if cfg.Gateway.ResponseTimeout != 60*time.Second {
					t.Errorf("gateway.response_timeout = %v", cfg.Gateway.ResponseTimeout)
				}
				if cfg.Gateway.MaxBodyBytes != 32<<20 {
					t.Errorf("gateway.max_body_bytes = %d", cfg.Gateway.MaxBodyBytes)
				}
				if cfg.Service.PIDFile != filepath.Join(filepath.Dir(cfg.Path), "dconnect-gw.pid") {
					t.Errorf("service.pid_file = %q", cfg.Service.PIDFile)
				}
				if cfg.Events.Buffer != 256 {
					t.Errorf("events.buffer = %d", cfg.Events.Buffer)
				}
				if !cfg.Supported("availability") {
					t.Error("availability should be supported by default")
				}
				if cfg.Supported(mediastream.Name) {
					t.Error("mediastream_recording should not be supported by default")
				}
			},
		},
		{
			name: "full config",
			yaml: `
service:
  name: DeviceConnect
  version: 2.1.0
  log_level: debug
gateway:
  listen: 0.0.0.0:8080
  response_timeout: 5s
  max_body_bytes: 1024
  cors:
    allowed_origins: [http://localhost:3000]
metrics:
  enabled: true
  path: /prom
plugin_roots: [plugins, /opt/dconnect/plugins]
nats:
  url: nats://127.0.0.1:4222
supports: [availability, mediastream_recording]
profiles:
  mediastream_recording:
    recorders:
      - name: front
        type: camera
        module: /dev/video0
        preview_sizes:
          - {width: 640, height: 480}
`,
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.Service.Name != "DeviceConnect" || cfg.Service.Version != "2.1.0" {
					t.Errorf("service = %+v", cfg.Service)
				}
				if cfg.Gateway.ResponseTimeout != 5*time.Second {
					t.Errorf("gateway.response_timeout = %v", cfg.Gateway.ResponseTimeout)
				}
				if cfg.Gateway.MaxBodyBytes != 1024 {
					t.Errorf("gateway.max_body_bytes = %d", cfg.Gateway.MaxBodyBytes)
				}
				if got := cfg.Gateway.CORS.AllowedOrigins; len(got) != 1 || got[0] != "http://localhost:3000" {
					t.Errorf("cors.allowed_origins = %v", got)
				}
				if !cfg.Metrics.Enabled || cfg.Metrics.Path != "/prom" {
					t.Errorf("metrics = %+v", cfg.Metrics)
				}
				if cfg.NATS.URL != "nats://127.0.0.1:4222" || cfg.NATS.Name != "dconnect-gw" {
					t.Errorf("nats = %+v", cfg.NATS)
				}
				want := filepath.Join(filepath.Dir(cfg.Path), "plugins")
				if cfg.PluginRoots[0] != want {
					t.Errorf("plugin_roots[0] = %q, want %q", cfg.PluginRoots[0], want)
				}
				if cfg.PluginRoots[1] != "/opt/dconnect/plugins" {
					t.Errorf("plugin_roots[1] = %q", cfg.PluginRoots[1])
				}
				ms := cfg.Profiles.MediastreamRecording
				if ms == nil || len(ms.Recorders) != 1 {
					t.Fatalf("mediastream recorders not parsed: %+v", ms)
				}
				if ms.Recorders[0].PreviewSizes[0].Width != 640 {
					t.Errorf("preview size = %+v", ms.Recorders[0].PreviewSizes)
				}
			},
		},
		{
			name: "explicit empty supports disables builtins",
			yaml: "supports: []\n",
			checkFn: func(t *testing.T, cfg *Config) {
				if len(cfg.Supports) != 0 {
					t.Errorf("supports = %v, want empty", cfg.Supports)
				}
			},
		},
		{
			name: "env interpolation",
			yaml: `
nats:
  url: ${TEST_DCONNECT_NATS}
`,
			env: map[string]string{"TEST_DCONNECT_NATS": "nats://broker:4222"},
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.NATS.URL != "nats://broker:4222" {
					t.Errorf("nats.url = %q", cfg.NATS.URL)
				}
			},
		},
		{
			name:    "undefined interpolation is reported",
			yaml:    "nats:\n  url: ${TEST_DCONNECT_UNDEFINED}\n",
			wantErr: "undefined environment variable",
		},
		{
			name: "env overrides",
			yaml: `
gateway:
  listen: 127.0.0.1:1
  response_timeout: 10s
`,
			env: map[string]string{
				"DCONNECT_LISTEN":           "127.0.0.1:9999",
				"DCONNECT_RESPONSE_TIMEOUT": "250ms",
				"DCONNECT_LOG_LEVEL":        "warn",
				"DCONNECT_METRICS_ENABLED":  "true",
			},
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.Gateway.Listen != "127.0.0.1:9999" {
					t.Errorf("gateway.listen = %q", cfg.Gateway.Listen)
				}
				if cfg.Gateway.ResponseTimeout != 250*time.Millisecond {
					t.Errorf("gateway.response_timeout = %v", cfg.Gateway.ResponseTimeout)
				}
				if cfg.Service.LogLevel != "warn" {
					t.Errorf("service.log_level = %q", cfg.Service.LogLevel)
				}
				if !cfg.Metrics.Enabled {
					t.Error("metrics.enabled should be overridden")
				}
			},
		},
		{
			name:    "malformed env override",
			yaml:    "{}\n",
			env:     map[string]string{"DCONNECT_RESPONSE_TIMEOUT": "soon"},
			wantErr: "environment overrides",
		},
		{
			name:    "invalid yaml",
			yaml:    "service: [\n",
			wantErr: "failed to parse YAML",
		},
		{
			name:    "unknown module",
			yaml:    "supports: [availability, battery]\n",
			wantErr: `unknown module "battery"`,
		},
		{
			name:    "invalid recorder",
			yaml:    "profiles:\n  mediastream_recording:\n    recorders:\n      - name: x\n        type: video\n",
			wantErr: "profiles.mediastream_recording",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			path := writeConfig(t, t.TempDir(), tt.yaml)
			cfg, err := Load(path)
			if tt.wantErr != "" {
				if err == nil {
					t.Fatalf("Load() succeeded, want error containing %q", tt.wantErr)
				}
				if !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("Load() error = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Load() failed: %v", err)
			}
			if tt.checkFn != nil {
				tt.checkFn(t, cfg)
			}
		})
	}
}

func TestLoadDirectory(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "service:\n  name: from-dir\n")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load(dir) failed: %v", err)
	}
	if cfg.Service.Name != "from-dir" {
		t.Errorf("service.name = %q", cfg.Service.Name)
	}
	if cfg.Path != filepath.Join(dir, "config.yaml") {
		t.Errorf("Path = %q", cfg.Path)
	}
}

func TestLoadMissing(t *testing.T) {
	dir := t.TempDir()
	if _, err := Load(filepath.Join(dir, "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
	if _, err := Load(dir); err == nil || !strings.Contains(err.Error(), "config.yaml not found") {
		t.Fatalf("expected missing config.yaml error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg *Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(cfg *Config) {}},
		{name: "bad log level", mutate: func(cfg *Config) { cfg.Service.LogLevel = "verbose" }, wantErr: true},
		{name: "uppercase log level", mutate: func(cfg *Config) { cfg.Service.LogLevel = "DEBUG" }},
		{name: "bad version", mutate: func(cfg *Config) { cfg.Service.Version = "two" }, wantErr: true},
		{name: "empty listen", mutate: func(cfg *Config) { cfg.Gateway.Listen = "" }, wantErr: true},
		{name: "zero timeout", mutate: func(cfg *Config) { cfg.Gateway.ResponseTimeout = 0 }, wantErr: true},
		{name: "negative body limit", mutate: func(cfg *Config) { cfg.Gateway.MaxBodyBytes = -1 }, wantErr: true},
		{name: "relative metrics path", mutate: func(cfg *Config) {
			cfg.Metrics.Enabled = true
			cfg.Metrics.Path = "metrics"
		}, wantErr: true},
		{name: "metrics path ignored when disabled", mutate: func(cfg *Config) { cfg.Metrics.Path = "metrics" }},
		{name: "negative buffer", mutate: func(cfg *Config) { cfg.Events.Buffer = -1 }, wantErr: true},
		{name: "duplicate module", mutate: func(cfg *Config) {
			cfg.Supports = []string{"availability", "availability"}
		}, wantErr: true},
		{name: "blank plugin root", mutate: func(cfg *Config) { cfg.PluginRoots = []string{" "} }, wantErr: true},
		{name: "recorder without name", mutate: func(cfg *Config) {
			cfg.Profiles.MediastreamRecording = &mediastream.Config{
				Recorders: []mediastream.Recorder{{Type: mediastream.TypeAudio}},
			}
		}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			err := validate(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestInterpolateEnv(t *testing.T) {
	t.Setenv("TEST_DCONNECT_HOST", "example.test")

	got := interpolateEnv("url: nats://${TEST_DCONNECT_HOST}:4222 other: ${TEST_DCONNECT_MISSING} $PLAIN")
	want := "url: nats://example.test:4222 other: ${TEST_DCONNECT_MISSING} $PLAIN"
	if got != want {
		t.Errorf("interpolateEnv() = %q, want %q", got, want)
	}
}
