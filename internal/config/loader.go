package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/dconnect-gw/internal/profile"
	"github.com/mattjoyce/dconnect-gw/internal/profile/mediastream"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// KnownModules lists the built-in profile modules that can be named in supports.
var KnownModules = []string{profile.AvailabilityName, mediastream.Name}

// Load reads, verifies and validates the configuration at configPath. A
// directory is taken to contain config.yaml. Environment overrides are
// applied before validation.
func Load(configPath string) (*Config, error) {
	absPath, err := ResolvePath(configPath)
	if err != nil {
		return nil, err
	}

	if err := verifyConfigHash(absPath); err != nil {
		return nil, err
	}

	cfg, err := loadConfigFile(absPath)
	if err != nil {
		return nil, err
	}
	cfg.Path = absPath

	cfg = applyConfigDefaults(cfg)
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	resolveRelativePaths(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ResolvePath returns the absolute config file path for configPath.
func ResolvePath(configPath string) (string, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return "", fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}
	if info.IsDir() {
		absPath = filepath.Join(absPath, "config.yaml")
		if _, err := os.Stat(absPath); err != nil {
			return "", fmt.Errorf("directory provided but config.yaml not found: %s", absPath)
		}
	}
	return absPath, nil
}

// loadConfigFile parses a single config file without applying defaults.
func loadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	interpolated := interpolateEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(interpolated), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &cfg, nil
}

// verifyConfigHash checks path against .checksums in its directory. A missing
// .checksums file skips verification.
func verifyConfigHash(path string) error {
	dir := filepath.Dir(path)
	checksums, err := LoadChecksums(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}

	basename := filepath.Base(path)
	expectedHash, ok := checksums.Hashes[basename]
	if !ok {
		return fmt.Errorf("config file %s has no hash in checksums at %s\n"+
			"Run: dconnect-gw config lock --config %s", basename, dir, path)
	}
	if err := VerifyFileHash(path, expectedHash); err != nil {
		return fmt.Errorf("config verification failed for %s: %w\n"+
			"If you edited this file intentionally, run: dconnect-gw config lock --config %s", path, err, path)
	}
	return nil
}

// applyConfigDefaults merges default values into config where not explicitly set.
func applyConfigDefaults(cfg *Config) *Config {
	defaults := Defaults()

	if cfg.Service.Name == "" {
		cfg.Service.Name = defaults.Service.Name
	}
	if cfg.Service.Version == "" {
		cfg.Service.Version = defaults.Service.Version
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = defaults.Service.LogLevel
	}
	if cfg.Service.PIDFile == "" {
		cfg.Service.PIDFile = defaults.Service.PIDFile
	}

	if cfg.Gateway.Listen == "" {
		cfg.Gateway.Listen = defaults.Gateway.Listen
	}
	if cfg.Gateway.ResponseTimeout == 0 {
		cfg.Gateway.ResponseTimeout = defaults.Gateway.ResponseTimeout
	}
	if cfg.Gateway.MaxBodyBytes == 0 {
		cfg.Gateway.MaxBodyBytes = defaults.Gateway.MaxBodyBytes
	}
	if len(cfg.Gateway.CORS.AllowedOrigins) == 0 {
		cfg.Gateway.CORS.AllowedOrigins = defaults.Gateway.CORS.AllowedOrigins
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = defaults.Metrics.Path
	}
	if cfg.Events.Buffer == 0 {
		cfg.Events.Buffer = defaults.Events.Buffer
	}
	if cfg.NATS.Name == "" {
		cfg.NATS.Name = defaults.NATS.Name
	}
	if cfg.Supports == nil {
		cfg.Supports = defaults.Supports
	}
	return cfg
}

func resolveRelativePaths(cfg *Config) {
	if cfg.Path == "" {
		return
	}
	base := filepath.Dir(cfg.Path)
	for i, root := range cfg.PluginRoots {
		if root != "" && !filepath.IsAbs(root) {
			cfg.PluginRoots[i] = filepath.Join(base, root)
		}
	}
	if cfg.Service.PIDFile != "" && !filepath.IsAbs(cfg.Service.PIDFile) {
		cfg.Service.PIDFile = filepath.Join(base, cfg.Service.PIDFile)
	}
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is so validation can report them.
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}

// validate performs basic validation on the configuration.
func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[strings.ToLower(cfg.Service.LogLevel)] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}
	if _, err := semver.NewVersion(cfg.Service.Version); err != nil {
		return fmt.Errorf("service.version %q is not a semantic version: %w", cfg.Service.Version, err)
	}

	if cfg.Gateway.Listen == "" {
		return fmt.Errorf("gateway.listen is required")
	}
	if cfg.Gateway.ResponseTimeout <= 0 {
		return fmt.Errorf("gateway.response_timeout must be positive")
	}
	if cfg.Gateway.MaxBodyBytes <= 0 {
		return fmt.Errorf("gateway.max_body_bytes must be positive")
	}

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with / (got %q)", cfg.Metrics.Path)
	}
	if cfg.Events.Buffer < 0 {
		return fmt.Errorf("events.buffer must not be negative")
	}

	if envVarPattern.MatchString(cfg.NATS.URL) {
		return fmt.Errorf("nats.url references an undefined environment variable: %s", cfg.NATS.URL)
	}

	seen := make(map[string]bool, len(cfg.Supports))
	for _, name := range cfg.Supports {
		if !slices.Contains(KnownModules, name) {
			return fmt.Errorf("supports: unknown module %q (known: %s)", name, strings.Join(KnownModules, ", "))
		}
		if seen[name] {
			return fmt.Errorf("supports: module %q listed twice", name)
		}
		seen[name] = true
	}

	if ms := cfg.Profiles.MediastreamRecording; ms != nil {
		if err := ms.Validate(); err != nil {
			return fmt.Errorf("profiles.%s: %w", mediastream.Name, err)
		}
	}

	for i, root := range cfg.PluginRoots {
		if strings.TrimSpace(root) == "" {
			return fmt.Errorf("plugin_roots[%d] is empty", i)
		}
	}
	return nil
}

// Supported reports whether the named built-in module is enabled.
func (c *Config) Supported(name string) bool {
	return slices.Contains(c.Supports, name)
}
