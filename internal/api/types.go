package api

import "github.com/mattjoyce/smoked-tofu/internal/history"

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status         string `json:"status"`
	UptimeSeconds  int64  `json:"uptime_seconds"`
	HistoryEnabled bool   `json:"history_enabled"`
	Subscribers    int    `json:"subscribers"`
}

// DeliveriesResponse is returned by GET /deliveries.
type DeliveriesResponse struct {
	Deliveries []history.Summary `json:"deliveries"`
}
