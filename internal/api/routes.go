package api //nolint:revive // package name is intentional

import "net/http"

// RegisterRoutes registers the orchestrator API routes on the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/call", h.Call)
	mux.HandleFunc("POST /v1/invalidate", h.Invalidate)
	mux.HandleFunc("GET /v1/snapshot", h.Snapshot)
	mux.HandleFunc("GET /health/live", h.HealthLive)
	mux.HandleFunc("GET /health/ready", h.HealthReady)
}
