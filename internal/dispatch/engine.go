package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/dconnect-gw/internal/events"
	"github.com/mattjoyce/dconnect-gw/internal/log"
	"github.com/mattjoyce/dconnect-gw/internal/metric"
	"github.com/mattjoyce/dconnect-gw/internal/plugin"
	"github.com/mattjoyce/dconnect-gw/internal/profile"
	"github.com/mattjoyce/dconnect-gw/internal/protocol"
)

// DefaultResponseTimeout bounds how long a plugin may take to answer.
const DefaultResponseTimeout = 60 * time.Second

// ErrNotFound is returned for requests outside the gotapi namespace. No
// envelope is produced for them.
var ErrNotFound = errors.New("not found")

const (
	msgInvalidServiceID = "Service ID is invalid."
	msgPluginNotFound   = "Device plug-in is not found."
)

// Engine classifies requests and drives them to exactly one response.
type Engine struct {
	resolver Resolver
	timeout  time.Duration
	product  string
	version  string
	metrics  *metric.Metrics
	events   events.Publisher
	logger   *slog.Logger
	newID    func() string
}

// Option configures an Engine.
type Option func(*Engine)

// WithResponseTimeout sets the per-request plugin timeout. Non-positive values
// keep the default.
func WithResponseTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithProduct sets the product and version stamped on every envelope.
func WithProduct(product, version string) Option {
	return func(e *Engine) {
		e.product = product
		e.version = version
	}
}

func WithMetrics(m *metric.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithEvents(p events.Publisher) Option {
	return func(e *Engine) { e.events = p }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New creates an engine over resolver.
func New(resolver Resolver, opts ...Option) *Engine {
	e := &Engine{
		resolver: resolver,
		timeout:  DefaultResponseTimeout,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = log.WithComponent("dispatch")
	}
	return e
}

// ResponseTimeout returns the configured plugin timeout.
func (e *Engine) ResponseTimeout() time.Duration { return e.timeout }

// Dispatch handles req and hands its envelope to sink exactly once, possibly
// after Dispatch has returned. The only error is ErrNotFound, in which case
// sink is never called.
//
// Cancelling ctx does not abandon the request: the response is still produced,
// bounded by the response timeout.
func (e *Engine) Dispatch(ctx context.Context, req *protocol.Request, sink protocol.Sink) error {
	if req.API != protocol.APINamespace {
		return ErrNotFound
	}
	if req.ID == "" {
		req.ID = e.newID()
	}

	c := e.newCall(req, sink)

	if d, ok := e.resolver.ResolveBuiltin(req); ok {
		c.route = metric.RouteBuiltin
		c.runBuiltin(d)
		return nil
	}

	c.route = metric.RouteRejected
	raw, ok := req.Param(protocol.ParamServiceID)
	if !ok {
		c.resp.SendError(protocol.ErrEmptyServiceID)
		return nil
	}
	sid, err := protocol.ParseServiceID(raw)
	if err != nil {
		c.resp.SendError(protocol.ErrNotFoundService, msgInvalidServiceID)
		return nil
	}
	reg, ok := e.resolver.ResolvePlugin(sid.PluginID)
	if !ok {
		c.resp.SendError(protocol.ErrNotFoundService, msgPluginNotFound)
		return nil
	}

	req.ServiceID = sid.ServiceID
	c.route = metric.RoutePlugin
	c.plugin = reg.ID
	c.runPlugin(ctx, reg.EntryPoint)
	return nil
}

// call is the per-request state. Nothing in it is shared between requests.
type call struct {
	e      *Engine
	req    *protocol.Request
	sink   protocol.Sink
	resp   *protocol.Response
	start  time.Time
	logger *slog.Logger

	route  string
	plugin string

	ctx     context.Context
	cancel  context.CancelFunc
	expired atomic.Bool

	mu    sync.Mutex
	timer *time.Timer
	done  bool
}

func (e *Engine) newCall(req *protocol.Request, sink protocol.Sink) *call {
	c := &call{
		e:      e,
		req:    req,
		sink:   sink,
		start:  time.Now(),
		logger: e.logger.With("request_id", req.ID),
	}
	c.resp = protocol.NewResponse(c.deliver)
	e.metrics.Started()
	c.logger.Debug("dispatching request", "method", req.Method, "path", req.Path())
	return c
}

func (c *call) runBuiltin(d profile.Descriptor) {
	if err := c.protect(func() error { return d.OnRequest(c.req, c.resp) }); err != nil {
		c.logger.Error("built-in handler failed", "path", c.req.Path(), "error", err)
		c.resp.SendError(protocol.ErrUnknown, err.Error())
		return
	}
	c.resp.Send()
}

func (c *call) runPlugin(ctx context.Context, ep plugin.EntryPoint) {
	deadline := c.start.Add(c.e.timeout)
	c.ctx, c.cancel = context.WithDeadline(context.WithoutCancel(ctx), deadline)
	c.armTimer(time.Until(deadline))

	completion := plugin.Immediate
	err := c.protect(func() error {
		var err error
		completion, err = ep.OnRequest(c.ctx, c.req, c.resp)
		return err
	})
	if err != nil {
		c.logger.Error("plugin handler failed", "plugin", c.plugin, "error", err)
		c.resp.SendError(protocol.ErrUnknown, err.Error())
		return
	}
	if completion == plugin.Immediate {
		c.resp.Send()
	}
}

// protect runs fn and converts a panic into an error.
func (c *call) protect(fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("handler panicked: %v", rec)
		}
	}()
	return fn()
}

func (c *call) armTimer(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done {
		return
	}
	c.timer = time.AfterFunc(d, func() {
		c.expired.Store(true)
		c.resp.SendError(protocol.ErrTimeout)
	})
}

// deliver is the Response sink. It runs once, on whichever goroutine sent first.
func (c *call) deliver(env protocol.Envelope) {
	c.mu.Lock()
	c.done = true
	if c.timer != nil {
		c.timer.Stop()
	}
	c.mu.Unlock()

	result := env.Result()
	timedOut := result == int(protocol.ErrTimeout) &&
		(c.expired.Load() || (c.ctx != nil && errors.Is(c.ctx.Err(), context.DeadlineExceeded)))
	if c.cancel != nil {
		c.cancel()
	}

	env[protocol.FieldProduct] = c.e.product
	env[protocol.FieldVersion] = c.e.version

	elapsed := time.Since(c.start)
	c.e.metrics.Answered(c.route, result, elapsed)

	attrs := []any{
		"method", c.req.Method,
		"path", c.req.Path(),
		"route", c.route,
		"result", result,
		"duration_ms", elapsed.Milliseconds(),
	}
	if c.plugin != "" {
		attrs = append(attrs, "plugin", c.plugin)
	}
	if timedOut {
		c.e.metrics.TimedOut(c.plugin)
		c.logger.Warn("plugin response timed out", attrs...)
	} else {
		c.logger.Info("request answered", attrs...)
	}

	if c.e.events != nil {
		c.e.events.Publish(events.TypeResponded, events.Responded{
			RequestID:  c.req.ID,
			Method:     c.req.Method,
			Path:       c.req.Path(),
			Route:      c.route,
			Plugin:     c.plugin,
			Result:     result,
			DurationMS: float64(elapsed.Microseconds()) / 1000,
		})
	}

	if c.sink == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			c.logger.Error("response sink panicked", "panic", rec)
		}
	}()
	c.sink(env)
}
