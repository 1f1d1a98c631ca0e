package plugin

import (
	"context"

	"github.com/mattjoyce/dconnect-gw/internal/protocol"
)

// Completion tells the dispatcher who sends the response after OnRequest returns.
type Completion int

const (
	// Immediate means the response is complete; the dispatcher sends it now.
	Immediate Completion = iota
	// Deferred means the plugin calls resp.Send itself later. The dispatcher's
	// timeout still applies.
	Deferred
)

func (c Completion) String() string {
	switch c {
	case Immediate:
		return "immediate"
	case Deferred:
		return "deferred"
	default:
		return "unknown"
	}
}

// EntryPoint is the single invocation surface of a device plugin.
//
// ctx is cancelled once the response has been sent, either by the plugin, by
// the dispatcher or by the timeout. A returned error (or a panic) is reported
// to the caller as an internal error.
type EntryPoint interface {
	OnRequest(ctx context.Context, req *protocol.Request, resp *protocol.Response) (Completion, error)
}

// Destroyer is implemented by entry points and built-in modules that hold
// resources to release at shutdown.
type Destroyer interface {
	OnDestroy() error
}

// EntryPointFunc adapts a function to EntryPoint.
type EntryPointFunc func(ctx context.Context, req *protocol.Request, resp *protocol.Response) (Completion, error)

func (f EntryPointFunc) OnRequest(ctx context.Context, req *protocol.Request, resp *protocol.Response) (Completion, error) {
	return f(ctx, req, resp)
}

// Registration binds a plugin id to its entry point.
type Registration struct {
	ID         string
	EntryPoint EntryPoint

	// Manifest is set for plugins loaded from disk; nil for in-process registrations.
	Manifest *Manifest
}
