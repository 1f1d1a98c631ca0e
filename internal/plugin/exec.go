package plugin

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/mattjoyce/dconnect-gw/internal/log"
	"github.com/mattjoyce/dconnect-gw/internal/protocol"
)

const (
	// DefaultTerminationGrace is the wait between SIGTERM and SIGKILL.
	DefaultTerminationGrace = 5 * time.Second

	maxStderrBytes = 64 * 1024
)

// ExecEntryPoint runs a plugin executable once per request. The request is
// written to stdin as JSON and the reply is read from stdout.
type ExecEntryPoint struct {
	id         string
	entrypoint string
	grace      time.Duration
	logger     *slog.Logger
}

// NewExecEntryPoint creates an entry point for the executable at entrypoint.
// A zero grace uses DefaultTerminationGrace.
func NewExecEntryPoint(id, entrypoint string, grace time.Duration) *ExecEntryPoint {
	if grace <= 0 {
		grace = DefaultTerminationGrace
	}
	return &ExecEntryPoint{
		id:         id,
		entrypoint: entrypoint,
		grace:      grace,
		logger:     log.WithPlugin(id),
	}
}

// OnRequest starts the process and returns Deferred. The response is sent
// when the process exits. If ctx ends first the process is terminated.
func (e *ExecEntryPoint) OnRequest(ctx context.Context, req *protocol.Request, resp *protocol.Response) (Completion, error) {
	deadline, _ := ctx.Deadline()
	wireReq := protocol.NewPluginRequest(req.ID, req, deadline)
	logger := e.logger.With("request_id", req.ID)

	// Not CommandContext: termination is SIGTERM first, then SIGKILL.
	cmd := exec.Command(e.entrypoint)
	cmd.Dir = filepath.Dir(e.entrypoint)
	cmd.WaitDelay = e.grace

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return Immediate, fmt.Errorf("create stdin pipe: %w", err)
	}
	var stdout bytes.Buffer
	stderr := &cappedBuffer{limit: maxStderrBytes}
	cmd.Stdout = &stdout
	cmd.Stderr = stderr

	logger.Debug("spawning plugin", "entrypoint", e.entrypoint, "deadline", deadline)
	if err := cmd.Start(); err != nil {
		return Immediate, fmt.Errorf("start process: %w", err)
	}

	writeErr := make(chan error, 1)
	go func() {
		defer stdin.Close()
		writeErr <- protocol.EncodePluginRequest(stdin, wireReq)
	}()

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
	}()

	go func() {
		select {
		case <-ctx.Done():
			// Usually already sent by the dispatcher.
			resp.SendError(protocol.ErrTimeout)
			e.terminate(cmd, waitErr, logger)
		case err := <-waitErr:
			e.complete(err, <-writeErr, stdout.Bytes(), stderr.String(), resp, logger)
		}
	}()

	return Deferred, nil
}

func (e *ExecEntryPoint) terminate(cmd *exec.Cmd, waitErr <-chan error, logger *slog.Logger) {
	logger.Warn("plugin still running after response, sending SIGTERM")
	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		logger.Error("failed to send SIGTERM", "error", err)
	}

	grace := time.NewTimer(e.grace)
	defer grace.Stop()

	select {
	case <-waitErr:
		logger.Info("plugin exited after SIGTERM")
	case <-grace.C:
		logger.Warn("plugin did not exit after SIGTERM, sending SIGKILL")
		if err := cmd.Process.Kill(); err != nil {
			logger.Error("failed to send SIGKILL", "error", err)
		}
		<-waitErr
	}
}

func (e *ExecEntryPoint) complete(waitErr, writeErr error, stdout []byte, stderr string, resp *protocol.Response, logger *slog.Logger) {
	if stderr != "" {
		logger.Debug("plugin stderr", "stderr", stderr)
	}
	if writeErr != nil {
		logger.Error("failed to write plugin request", "error", writeErr)
		resp.SendError(protocol.ErrUnknown, "Device plug-in did not accept the request.")
		return
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			logger.Error("failed waiting for plugin", "error", waitErr)
			resp.SendError(protocol.ErrUnknown)
			return
		}
		logger.Warn("plugin exited with non-zero status", "exit_code", exitErr.ExitCode())
	}

	reply, raw, err := protocol.DecodePluginReplyLenient(bytes.NewReader(stdout))
	if err != nil {
		logger.Error("failed to decode plugin reply", "error", err, "stdout", string(raw))
		resp.SendError(protocol.ErrUnknown, "Device plug-in returned an invalid reply.")
		return
	}

	logPluginEntries(logger, reply.Logs)
	reply.Apply(resp)
	resp.Send()
}

func logPluginEntries(logger *slog.Logger, entries []protocol.LogEntry) {
	for _, entry := range entries {
		switch entry.Level {
		case "debug":
			logger.Debug(entry.Message, "source", "plugin")
		case "warn":
			logger.Warn(entry.Message, "source", "plugin")
		case "error":
			logger.Error(entry.Message, "source", "plugin")
		default:
			logger.Info(entry.Message, "source", "plugin")
		}
	}
}

// cappedBuffer keeps at most limit bytes and drops the rest.
type cappedBuffer struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (c *cappedBuffer) Write(p []byte) (int, error) {
	if room := c.limit - c.buf.Len(); room > 0 {
		if len(p) > room {
			c.buf.Write(p[:room])
			c.truncated = true
		} else {
			c.buf.Write(p)
		}
	} else if len(p) > 0 {
		c.truncated = true
	}
	return len(p), nil
}

func (c *cappedBuffer) String() string {
	if c.truncated {
		return c.buf.String() + "\n... [truncated]"
	}
	return c.buf.String()
}
