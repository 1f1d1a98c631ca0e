// Package doctor checks a loaded gateway configuration against the plugins it
// would discover and reports problems that config.Load does not reject.
package doctor

import (
	"encoding/json"
	"fmt"
	"net"
	"slices"
	"strings"
	"time"

	"github.com/mattjoyce/dconnect-gw/internal/config"
	"github.com/mattjoyce/dconnect-gw/internal/plugin"
	"github.com/mattjoyce/dconnect-gw/internal/profile/mediastream"
)

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// reservedPaths are served by the gateway itself.
var reservedPaths = []string{"/healthz", "/events", "/events/ws"}

// Doctor validates configuration against discovered plugins.
type Doctor struct {
	cfg     *config.Config
	plugins []*plugin.Registration
}

// New creates a Doctor from a loaded config and the plugins found under its
// roots. Registrations from a list-only discovery are enough.
func New(cfg *config.Config, plugins []*plugin.Registration) *Doctor {
	return &Doctor{cfg: cfg, plugins: plugins}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true}

	d.validateMetricsPath(r)
	d.validateNATSPlugins(r)
	d.warnNoHandlers(r)
	d.warnShadowedProfiles(r)
	d.warnMediastream(r)
	d.warnExposedListener(r)
	d.warnSuspiciousTimeout(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

// validateMetricsPath rejects a metrics path that would hide a gateway route.
func (d *Doctor) validateMetricsPath(r *Result) {
	if !d.cfg.Metrics.Enabled {
		return
	}
	path := strings.TrimSuffix(d.cfg.Metrics.Path, "/")
	if slices.Contains(reservedPaths, path) {
		d.addError(r, "metrics", "metrics.path",
			fmt.Sprintf("metrics path %q collides with a built-in endpoint", d.cfg.Metrics.Path))
	}
	if path == "/gotapi" || strings.HasPrefix(path, "/gotapi/") {
		d.addError(r, "metrics", "metrics.path",
			fmt.Sprintf("metrics path %q is inside the gotapi namespace", d.cfg.Metrics.Path))
	}
}

// validateNATSPlugins checks that nats transport plugins have a broker to use.
func (d *Doctor) validateNATSPlugins(r *Result) {
	natsPlugins := 0
	for _, p := range d.plugins {
		if p.Manifest == nil || p.Manifest.Transport != plugin.TransportNATS {
			continue
		}
		natsPlugins++
		if d.cfg.NATS.URL == "" {
			d.addError(r, "nats", "nats.url",
				fmt.Sprintf("plugin %q uses the nats transport but nats.url is not set", p.ID))
		}
	}
	if d.cfg.NATS.URL != "" && natsPlugins == 0 {
		d.addWarning(r, "nats", "nats.url", "nats.url is set but no nats transport plugins were discovered")
	}
}

// warnNoHandlers flags a gateway that would reject every request.
func (d *Doctor) warnNoHandlers(r *Result) {
	if len(d.cfg.Supports) == 0 && len(d.plugins) == 0 {
		d.addWarning(r, "routing", "",
			"no built-in modules enabled and no plugins discovered; every request will be rejected")
	}
}

// warnShadowedProfiles flags plugins that declare a profile a built-in module
// already answers. Built-in routes win before any serviceId is looked at.
func (d *Doctor) warnShadowedProfiles(r *Result) {
	for _, p := range d.plugins {
		if p.Manifest == nil {
			continue
		}
		for _, name := range d.cfg.Supports {
			if p.Manifest.SupportsProfile(name) {
				d.addWarning(r, "routing", "supports",
					fmt.Sprintf("plugin %q declares profile %q, which the built-in module answers first", p.ID, name))
			}
		}
	}
}

func (d *Doctor) warnMediastream(r *Result) {
	ms := d.cfg.Profiles.MediastreamRecording
	supported := d.cfg.Supported(mediastream.Name)
	field := "profiles." + mediastream.Name

	switch {
	case supported && (ms == nil || len(ms.Recorders) == 0):
		d.addWarning(r, "builtins", field,
			"mediastream_recording is enabled but no recorders are configured")
	case !supported && ms != nil:
		d.addWarning(r, "builtins", field,
			"recorders are configured but mediastream_recording is not listed in supports")
	}
}

// warnExposedListener flags a wildcard CORS policy on a non-loopback address.
func (d *Doctor) warnExposedListener(r *Result) {
	if !slices.Contains(d.cfg.Gateway.CORS.AllowedOrigins, "*") {
		return
	}
	host, _, err := net.SplitHostPort(d.cfg.Gateway.Listen)
	if err != nil {
		d.addError(r, "gateway", "gateway.listen",
			fmt.Sprintf("listen address %q is not host:port: %v", d.cfg.Gateway.Listen, err))
		return
	}
	if isLoopback(host) {
		return
	}
	d.addWarning(r, "gateway", "gateway.cors.allowed_origins",
		fmt.Sprintf("any origin may call the gateway on %s; restrict allowed_origins", d.cfg.Gateway.Listen))
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func (d *Doctor) warnSuspiciousTimeout(r *Result) {
	timeout := d.cfg.Gateway.ResponseTimeout
	if timeout > 0 && timeout < time.Second {
		d.addWarning(r, "gateway", "gateway.response_timeout",
			fmt.Sprintf("response timeout %s is very short (< 1s)", timeout))
	}
	if timeout > 5*time.Minute {
		d.addWarning(r, "gateway", "gateway.response_timeout",
			fmt.Sprintf("response timeout %s is very long (> 5m)", timeout))
	}
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	if r.Valid && len(r.Warnings) == 0 {
		b.WriteString("Configuration valid.\n")
		return b.String()
	}

	if r.Valid && len(r.Warnings) > 0 {
		b.WriteString("Configuration valid")
		fmt.Fprintf(&b, " (%d warning(s))\n", len(r.Warnings))
	}

	if !r.Valid {
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		if e.Field != "" {
			fmt.Fprintf(&b, "  ERROR [%s] %s: %s\n", e.Category, e.Field, e.Message)
		} else {
			fmt.Fprintf(&b, "  ERROR [%s] %s\n", e.Category, e.Message)
		}
	}
	for _, w := range r.Warnings {
		if w.Field != "" {
			fmt.Fprintf(&b, "  WARN  [%s] %s: %s\n", w.Category, w.Field, w.Message)
		} else {
			fmt.Fprintf(&b, "  WARN  [%s] %s\n", w.Category, w.Message)
		}
	}

	return b.String()
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
