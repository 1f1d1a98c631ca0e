package plugin

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/dconnect-gw/internal/log"
)

// Loader discovers device plugins under a set of roots and builds their entry points.
type Loader struct {
	// GatewayVersion is checked against each manifest's gateway constraint.
	GatewayVersion string

	// Conn is used by nats transport plugins. Without it those manifests are skipped.
	Conn *nats.Conn

	// ExecGrace is the delay between SIGTERM and SIGKILL for exec plugins.
	ExecGrace time.Duration

	// ListOnly reads and checks manifests without building entry points.
	// Registrations come back with a nil EntryPoint and nats plugins do not
	// need Conn.
	ListOnly bool

	Logger *slog.Logger
}

// Discover scans roots for manifest.yaml files and returns one registration per
// valid plugin. Roots are processed in order; duplicate plugin names keep the
// first discovered plugin. Invalid plugins are logged and skipped.
func (l *Loader) Discover(roots []string) ([]*Registration, error) {
	logger := l.Logger
	if logger == nil {
		logger = log.WithComponent("plugin")
	}

	absRoots, err := resolveRoots(roots)
	if err != nil {
		return nil, err
	}

	var out []*Registration
	seen := make(map[string]string)
	for _, root := range absRoots {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if d.IsDir() || d.Name() != manifestFilename {
				return nil
			}

			pluginPath := filepath.Dir(path)
			reg, err := l.load(pluginPath, absRoots)
			if err != nil {
				logger.Warn("failed to load plugin", "root", root, "path", pluginPath, "error", err)
				return nil
			}
			if kept, dup := seen[reg.ID]; dup {
				logger.Warn("duplicate plugin ignored (keeping first discovered)",
					"plugin", reg.ID,
					"ignored_path", pluginPath,
					"kept_path", kept,
				)
				return nil
			}
			seen[reg.ID] = pluginPath
			out = append(out, reg)

			logger.Info("loaded plugin",
				"plugin", reg.ID,
				"path", pluginPath,
				"version", reg.Manifest.Version,
				"transport", reg.Manifest.Transport,
			)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to scan plugin root %s: %w", root, err)
		}
	}
	return out, nil
}

func resolveRoots(roots []string) ([]string, error) {
	absRoots := make([]string, 0, len(roots))
	seenRoots := make(map[string]struct{}, len(roots))
	for _, root := range roots {
		root = strings.TrimSpace(root)
		if root == "" {
			continue
		}
		absRoot, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve plugin root %q: %w", root, err)
		}
		info, err := os.Stat(absRoot)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("plugin root does not exist: %s", absRoot)
			}
			return nil, fmt.Errorf("failed to stat plugin root %s: %w", absRoot, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("plugin root is not a directory: %s", absRoot)
		}
		if _, ok := seenRoots[absRoot]; ok {
			continue
		}
		seenRoots[absRoot] = struct{}{}
		absRoots = append(absRoots, absRoot)
	}
	return absRoots, nil
}

// ReadManifest parses and validates the manifest in pluginPath.
func ReadManifest(pluginPath string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(pluginPath, manifestFilename))
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest YAML: %w", err)
	}
	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}
	m.Path = pluginPath
	return &m, nil
}

func (l *Loader) load(pluginPath string, roots []string) (*Registration, error) {
	m, err := ReadManifest(pluginPath)
	if err != nil {
		return nil, err
	}
	if l.GatewayVersion != "" {
		if err := m.CheckGateway(l.GatewayVersion); err != nil {
			return nil, err
		}
	}

	var ep EntryPoint
	switch m.Transport {
	case TransportExec:
		entrypointPath := filepath.Join(pluginPath, m.Entrypoint)
		if err := validateTrustInRoots(entrypointPath, pluginPath, roots); err != nil {
			return nil, fmt.Errorf("trust validation failed: %w", err)
		}
		if !l.ListOnly {
			ep = NewExecEntryPoint(m.Name, entrypointPath, l.ExecGrace)
		}
	case TransportNATS:
		if l.ListOnly {
			break
		}
		if l.Conn == nil {
			return nil, fmt.Errorf("nats transport requires a NATS connection")
		}
		ep = NewNATSEntryPoint(m.Name, l.Conn, m.NATSSubject())
	}

	return &Registration{ID: m.Name, EntryPoint: ep, Manifest: m}, nil
}

// validateTrustInRoots refuses entrypoints that escape the plugin directory or
// the configured roots, are not executable, or live in a world-writable directory.
func validateTrustInRoots(entrypointPath, pluginPath string, pluginRoots []string) error {
	if len(pluginRoots) == 0 {
		return fmt.Errorf("no plugin roots configured")
	}

	resolvedEntrypoint, err := filepath.EvalSymlinks(entrypointPath)
	if err != nil {
		return fmt.Errorf("failed to resolve entrypoint symlink: %w", err)
	}
	resolvedPluginPath, err := filepath.EvalSymlinks(pluginPath)
	if err != nil {
		return fmt.Errorf("failed to resolve plugin path symlink: %w", err)
	}

	inApprovedRoot := false
	for _, root := range pluginRoots {
		resolvedRoot, err := filepath.EvalSymlinks(root)
		if err != nil {
			return fmt.Errorf("failed to resolve plugin root symlink %s: %w", root, err)
		}
		if strings.HasPrefix(resolvedEntrypoint, resolvedRoot+string(os.PathSeparator)) {
			inApprovedRoot = true
			break
		}
	}
	if !inApprovedRoot {
		return fmt.Errorf("entrypoint %s is not under any configured plugin root", resolvedEntrypoint)
	}
	if !strings.HasPrefix(resolvedEntrypoint, resolvedPluginPath+string(os.PathSeparator)) {
		return fmt.Errorf("entrypoint %s is not under plugin directory %s", resolvedEntrypoint, resolvedPluginPath)
	}

	info, err := os.Stat(resolvedEntrypoint)
	if err != nil {
		return fmt.Errorf("entrypoint not found: %w", err)
	}
	if info.Mode()&0111 == 0 {
		return fmt.Errorf("entrypoint is not executable: %s", resolvedEntrypoint)
	}

	pluginInfo, err := os.Stat(resolvedPluginPath)
	if err != nil {
		return fmt.Errorf("plugin directory not found: %w", err)
	}
	if pluginInfo.Mode().Perm()&0002 != 0 {
		return fmt.Errorf("plugin directory is world-writable: %s", resolvedPluginPath)
	}
	return nil
}
