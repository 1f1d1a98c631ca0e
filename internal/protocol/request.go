package protocol

import "strings"

const (
	// APINamespace is the only accepted {api} path segment.
	APINamespace = "gotapi"

	// ParamServiceID names the composite service identifier parameter.
	ParamServiceID = "serviceId"
)

// Params is the flat parameter space of a request. Query values and decoded
// body fields share it.
type Params map[string]string

// Merge copies src over p; keys already present are overwritten.
func (p Params) Merge(src map[string]string) {
	for k, v := range src {
		p[k] = v
	}
}

// Request is a profile-addressed call. Interface and Attribute are empty when
// the route shape does not carry them.
type Request struct {
	// ID correlates logs, events and plugin calls. Assigned by the dispatcher.
	ID string

	Method    string
	API       string
	Profile   string
	Interface string
	Attribute string
	Params    Params

	// ServiceID is the device-local id, set by the dispatcher once the
	// composite identifier has been parsed.
	ServiceID string
}

// Param returns a parameter and whether it was present at all.
func (r *Request) Param(key string) (string, bool) {
	if r.Params == nil {
		return "", false
	}
	v, ok := r.Params[key]
	return v, ok
}

// Path renders the request address as /{api}/{profile}[/{interface}][/{attribute}].
func (r *Request) Path() string {
	parts := []string{"", r.API, r.Profile}
	if r.Interface != "" {
		parts = append(parts, r.Interface)
	}
	if r.Attribute != "" {
		parts = append(parts, r.Attribute)
	}
	return strings.Join(parts, "/")
}
