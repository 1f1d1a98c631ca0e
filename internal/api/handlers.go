package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/mattjoyce/dconnect-gw/internal/dispatch"
	"github.com/mattjoyce/dconnect-gw/internal/protocol"
)

const notFoundBody = "404 Not Found"

// handleGotapi serves every /{api}/{profile}[/{interface}][/{attribute}] request.
func (s *Server) handleGotapi(w http.ResponseWriter, r *http.Request) {
	req, status, err := s.buildRequest(w, r)
	if err != nil {
		s.logger.Warn("rejecting request body", "path", r.URL.Path, "error", err)
		http.Error(w, http.StatusText(status), status)
		return
	}

	done := make(chan protocol.Envelope, 1)
	err = s.dispatcher.Dispatch(r.Context(), req, func(env protocol.Envelope) {
		done <- env
	})
	if errors.Is(err, dispatch.ErrNotFound) {
		notFound(w, r)
		return
	}
	if err != nil {
		s.logger.Error("dispatch failed", "path", r.URL.Path, "error", err)
		s.writeError(w, http.StatusInternalServerError, "dispatch failed")
		return
	}

	select {
	case env := <-done:
		respondJSON(w, http.StatusOK, env)
	case <-r.Context().Done():
		s.logger.Debug("client gone before response", "path", r.URL.Path, "request_id", req.ID)
	}
}

// handleHealthz handles GET /healthz.
func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	resp := HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		InFlight:      s.metrics.InFlightCount(),
		Subscribers:   s.hub.Subscribers(),
	}
	if s.registry != nil {
		resp.PluginsLoaded = len(s.registry.All())
	}
	respondJSON(w, http.StatusOK, resp)
}

func notFound(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write([]byte(notFoundBody))
}

// respondJSON is a helper to write JSON responses
func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
