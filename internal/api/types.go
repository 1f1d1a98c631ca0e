package api

// ErrorResponse is returned on transport-level errors that have no envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	PluginsLoaded int    `json:"plugins_loaded"`
	InFlight      int64  `json:"in_flight"`
	Subscribers   int    `json:"event_subscribers"`
}
