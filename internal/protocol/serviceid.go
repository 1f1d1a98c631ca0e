package protocol

import (
	"errors"
	"strings"
)

// ServiceIDDelimiter separates the device-local service id from the owning plugin id.
const ServiceIDDelimiter = "."

// ErrInvalidServiceID is returned when a composite service identifier has no delimiter.
var ErrInvalidServiceID = errors.New("invalid service identifier")

// ServiceID is a parsed "<serviceId>.<pluginId>" identifier.
type ServiceID struct {
	ServiceID string
	PluginID  string
}

// ParseServiceID splits s at the first delimiter. The plugin id keeps any
// further delimiters. No trimming or case folding is applied.
func ParseServiceID(s string) (ServiceID, error) {
	local, plugin, ok := strings.Cut(s, ServiceIDDelimiter)
	if !ok {
		return ServiceID{}, ErrInvalidServiceID
	}
	return ServiceID{ServiceID: local, PluginID: plugin}, nil
}

// String joins the identifier back into its composite form.
func (id ServiceID) String() string {
	return id.ServiceID + ServiceIDDelimiter + id.PluginID
}
