package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mattjoyce/smoked-tofu/internal/history"
)

const maxListLimit = 200

// handleHealthz handles GET /healthz (no auth).
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := HealthzResponse{
		Status:         "ok",
		UptimeSeconds:  int64(time.Since(s.startedAt).Seconds()),
		HistoryEnabled: s.history != nil,
	}
	if s.events != nil {
		resp.Subscribers = s.events.Subscribers()
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleListDeliveries handles GET /deliveries?limit=N, newest first.
func (s *Server) handleListDeliveries(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeError(w, http.StatusNotFound, "delivery history is disabled")
		return
	}

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxListLimit)
	}

	list, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to list deliveries", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list deliveries")
		return
	}
	respondJSON(w, http.StatusOK, DeliveriesResponse{Deliveries: list})
}

// handleGetDelivery handles GET /deliveries/{deliveryID}.
func (s *Server) handleGetDelivery(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeError(w, http.StatusNotFound, "delivery history is disabled")
		return
	}

	deliveryID := chi.URLParam(r, "deliveryID")
	batch, err := s.history.Get(r.Context(), deliveryID)
	if errors.Is(err, history.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "delivery not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to load delivery", "delivery_id", deliveryID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to load delivery")
		return
	}
	respondJSON(w, http.StatusOK, batch)
}

func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
