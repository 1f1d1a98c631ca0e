package plugin

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/mattjoyce/dconnect-gw/internal/log"
	"github.com/mattjoyce/dconnect-gw/internal/protocol"
)

// Connect dials the NATS server used by nats transport plugins. extra options
// are applied after the defaults.
func Connect(url, name string, extra ...nats.Option) (*nats.Conn, error) {
	logger := log.WithComponent("nats")
	opts := []nats.Option{
		nats.Name(name),
		nats.Timeout(5 * time.Second),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	}
	nc, err := nats.Connect(url, append(opts, extra...)...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats %s: %w", url, err)
	}
	return nc, nil
}

// NATSEntryPoint forwards requests to a plugin listening on a NATS subject.
type NATSEntryPoint struct {
	id      string
	conn    *nats.Conn
	subject string
	logger  *slog.Logger
}

// NewNATSEntryPoint creates an entry point that publishes requests on subject.
func NewNATSEntryPoint(id string, conn *nats.Conn, subject string) *NATSEntryPoint {
	return &NATSEntryPoint{
		id:      id,
		conn:    conn,
		subject: subject,
		logger:  log.WithPlugin(id),
	}
}

// Subject returns the request subject.
func (n *NATSEntryPoint) Subject() string { return n.subject }

// OnRequest publishes the request and returns Deferred. The reply is applied
// and sent from a background goroutine bounded by ctx.
func (n *NATSEntryPoint) OnRequest(ctx context.Context, req *protocol.Request, resp *protocol.Response) (Completion, error) {
	deadline, _ := ctx.Deadline()
	var buf bytes.Buffer
	if err := protocol.EncodePluginRequest(&buf, protocol.NewPluginRequest(req.ID, req, deadline)); err != nil {
		return Immediate, err
	}

	logger := n.logger.With("request_id", req.ID, "subject", n.subject)
	go func() {
		msg, err := n.conn.RequestWithContext(ctx, n.subject, buf.Bytes())
		if err != nil {
			if ctx.Err() != nil {
				resp.SendError(protocol.ErrTimeout)
				return
			}
			logger.Warn("nats request failed", "error", err)
			if errors.Is(err, nats.ErrNoResponders) {
				resp.SendError(protocol.ErrUnknown, "Device plug-in is not responding.")
				return
			}
			resp.SendError(protocol.ErrUnknown)
			return
		}

		reply, err := protocol.UnmarshalPluginReply(msg.Data)
		if err != nil {
			logger.Error("failed to decode plugin reply", "error", err, "data", string(msg.Data))
			resp.SendError(protocol.ErrUnknown, "Device plug-in returned an invalid reply.")
			return
		}
		logPluginEntries(logger, reply.Logs)
		reply.Apply(resp)
		resp.Send()
	}()

	return Deferred, nil
}
