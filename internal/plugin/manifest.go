package plugin

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/mattjoyce/dconnect-gw/internal/protocol"
)

const manifestFilename = "manifest.yaml"

// SubjectPrefix is the default NATS subject namespace for device plugins.
const SubjectPrefix = "deviceconnect.plugin."

// Transport selects how the gateway reaches a plugin.
type Transport string

const (
	TransportExec Transport = "exec"
	TransportNATS Transport = "nats"
)

func (t Transport) valid() bool {
	return t == TransportExec || t == TransportNATS
}

// Manifest defines the structure of a plugin's manifest.yaml file.
type Manifest struct {
	Name        string    `yaml:"name"`
	Version     string    `yaml:"version"`
	Protocol    int       `yaml:"protocol"`
	Transport   Transport `yaml:"transport"`
	Entrypoint  string    `yaml:"entrypoint,omitempty"`
	Subject     string    `yaml:"subject,omitempty"`
	Gateway     string    `yaml:"gateway,omitempty"`
	Description string    `yaml:"description,omitempty"`
	Profiles    []string  `yaml:"profiles,omitempty"`

	// Path is the absolute plugin directory. Set by the loader.
	Path string `yaml:"-"`
}

// NATSSubject returns the request subject, defaulting to SubjectPrefix+name.
func (m *Manifest) NATSSubject() string {
	if s := strings.TrimSpace(m.Subject); s != "" {
		return s
	}
	return SubjectPrefix + m.Name
}

// SupportsProfile reports whether the manifest lists profile. An empty list
// means the plugin did not say.
func (m *Manifest) SupportsProfile(profile string) bool {
	for _, p := range m.Profiles {
		if strings.EqualFold(p, profile) {
			return true
		}
	}
	return false
}

// validate checks required fields. Plugin ids end up as the suffix of service
// ids, so they may not contain the delimiter.
func (m *Manifest) validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if strings.Contains(m.Name, protocol.ServiceIDDelimiter) {
		return fmt.Errorf("name %q must not contain %q", m.Name, protocol.ServiceIDDelimiter)
	}
	if m.Protocol == 0 {
		return fmt.Errorf("protocol version is required")
	}
	if m.Protocol != protocol.PluginProtocolVersion {
		return fmt.Errorf("unsupported protocol version %d (supported: %d)", m.Protocol, protocol.PluginProtocolVersion)
	}
	if m.Transport == "" {
		m.Transport = TransportExec
	}
	if !m.Transport.valid() {
		return fmt.Errorf("invalid transport %q (valid: exec, nats)", m.Transport)
	}

	switch m.Transport {
	case TransportExec:
		if m.Entrypoint == "" {
			return fmt.Errorf("entrypoint is required for exec transport")
		}
		if strings.Contains(m.Entrypoint, "..") {
			return fmt.Errorf("entrypoint contains path traversal: %s", m.Entrypoint)
		}
	case TransportNATS:
		if strings.ContainsAny(m.NATSSubject(), " \t*>") {
			return fmt.Errorf("invalid subject %q", m.NATSSubject())
		}
	}

	if m.Gateway != "" {
		if _, err := semver.NewConstraint(m.Gateway); err != nil {
			return fmt.Errorf("invalid gateway constraint %q: %w", m.Gateway, err)
		}
	}
	return nil
}

// CheckGateway verifies that the running gateway version satisfies the
// manifest's gateway constraint. An empty constraint accepts any version.
func (m *Manifest) CheckGateway(version string) error {
	if m.Gateway == "" {
		return nil
	}
	c, err := semver.NewConstraint(m.Gateway)
	if err != nil {
		return fmt.Errorf("invalid gateway constraint %q: %w", m.Gateway, err)
	}
	v, err := semver.NewVersion(version)
	if err != nil {
		return fmt.Errorf("invalid gateway version %q: %w", version, err)
	}
	if ok, errs := c.Validate(v); !ok {
		if len(errs) > 0 {
			return fmt.Errorf("gateway %s not accepted: %w", v, errs[0])
		}
		return fmt.Errorf("gateway %s does not satisfy %q", v, m.Gateway)
	}
	return nil
}
