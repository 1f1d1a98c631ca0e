// Package profile defines built-in capability handlers: profile modules that
// the gateway answers in-process instead of delegating to a device plugin.
package profile

import "github.com/mattjoyce/dconnect-gw/internal/protocol"

// HandlerFunc handles one built-in request by mutating resp. The dispatcher
// sends resp after the handler returns; a non-nil error becomes an internal
// error envelope.
type HandlerFunc func(req *protocol.Request, resp *protocol.Response) error

// Descriptor binds a HandlerFunc to an exact (method, profile, interface,
// attribute) address. Empty Interface or Attribute means the segment is absent.
type Descriptor struct {
	Method    string
	Profile   string
	Interface string
	Attribute string
	OnRequest HandlerFunc
}

// Matches reports whether req addresses this descriptor. All four fields must
// be equal, including both being absent.
func (d Descriptor) Matches(req *protocol.Request) bool {
	return d.Method == req.Method &&
		d.Profile == req.Profile &&
		d.Interface == req.Interface &&
		d.Attribute == req.Attribute
}

// Module is a built-in profile. Modules may also implement OnDestroy() error,
// which the registry calls at shutdown.
type Module interface {
	Name() string
	Descriptors() []Descriptor
}
