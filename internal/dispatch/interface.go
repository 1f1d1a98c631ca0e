package dispatch

import (
	"github.com/mattjoyce/dconnect-gw/internal/plugin"
	"github.com/mattjoyce/dconnect-gw/internal/profile"
	"github.com/mattjoyce/dconnect-gw/internal/protocol"
)

//go:generate mockgen -destination=mocks/mock_entrypoint.go -package=mocks github.com/mattjoyce/dconnect-gw/internal/plugin EntryPoint

// Resolver finds the handler for a request. *plugin.Registry implements it.
type Resolver interface {
	ResolveBuiltin(req *protocol.Request) (profile.Descriptor, bool)
	ResolvePlugin(id string) (*plugin.Registration, bool)
}

var _ Resolver = (*plugin.Registry)(nil)
