// Package api provides the HTTP surface of the orchestrator.
package api //nolint:revive // package name is intentional

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/blueberrycongee/llmgov"
	"github.com/blueberrycongee/llmgov/pkg/types"
)

const readyTimeout = 2 * time.Second

// Handler serves orchestrated calls over HTTP.
type Handler struct {
	swapper         *OrchestratorSwapper
	logger          *slog.Logger
	maxBodySize     int64
	defaultPriority types.Priority
}

// HandlerConfig contains configuration for Handler.
type HandlerConfig struct {
	MaxBodySize     int64          // Maximum request body size in bytes
	DefaultPriority types.Priority // Applied when a request omits priority
}

// NewHandler creates a handler that serves whichever orchestrator the
// swapper currently holds.
func NewHandler(swapper *OrchestratorSwapper, logger *slog.Logger, cfg *HandlerConfig) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		swapper:     swapper,
		logger:      logger,
		maxBodySize: DefaultMaxBodySize,
	}
	if cfg != nil {
		if cfg.MaxBodySize > 0 {
			h.maxBodySize = cfg.MaxBodySize
		}
		h.defaultPriority = cfg.DefaultPriority
	}
	return h
}

// CallRequest is the body of POST /v1/call and POST /v1/invalidate.
type CallRequest struct {
	Prompt     string            `json:"prompt"`
	Parameters map[string]any    `json:"parameters,omitempty"`
	Priority   *types.Priority   `json:"priority,omitempty"`
	TimeoutMS  int64             `json:"timeout_ms,omitempty"`
	Context    map[string]string `json:"context,omitempty"`
	NoCache    bool              `json:"no_cache,omitempty"`
	NoStore    bool              `json:"no_store,omitempty"`
}

func (h *Handler) toRequest(cr *CallRequest) llmgov.Request {
	req := llmgov.Request{
		Prompt:     cr.Prompt,
		Parameters: cr.Parameters,
		Priority:   h.defaultPriority,
		Timeout:    time.Duration(cr.TimeoutMS) * time.Millisecond,
		Context:    cr.Context,
		NoCache:    cr.NoCache,
		NoStore:    cr.NoStore,
	}
	if cr.Priority != nil {
		req.Priority = *cr.Priority
	}
	return req
}

// Call handles POST /v1/call. Any request that decodes is answered with 200
// and a CallResult; backend trouble shows up as a fallback source.
func (h *Handler) Call(w http.ResponseWriter, r *http.Request) {
	cr, ok := h.decode(w, r)
	if !ok {
		return
	}

	orch, release := h.swapper.Acquire()
	defer release()
	if orch == nil {
		h.writeError(w, http.StatusServiceUnavailable, ErrTypeUnavailable, "orchestrator is not available")
		return
	}

	result := orch.CallDetailed(r.Context(), h.toRequest(cr))
	h.writeJSON(w, http.StatusOK, result)
}

// Invalidate handles POST /v1/invalidate.
func (h *Handler) Invalidate(w http.ResponseWriter, r *http.Request) {
	cr, ok := h.decode(w, r)
	if !ok {
		return
	}

	orch, release := h.swapper.Acquire()
	defer release()
	if orch == nil {
		h.writeError(w, http.StatusServiceUnavailable, ErrTypeUnavailable, "orchestrator is not available")
		return
	}

	req := h.toRequest(cr)
	if err := orch.Invalidate(r.Context(), req); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusServiceUnavailable, ErrTypeUnavailable, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"invalidated": orch.Fingerprint(req)})
}

// Snapshot handles GET /v1/snapshot.
func (h *Handler) Snapshot(w http.ResponseWriter, _ *http.Request) {
	orch, release := h.swapper.Acquire()
	defer release()
	if orch == nil {
		h.writeError(w, http.StatusServiceUnavailable, ErrTypeUnavailable, "orchestrator is not available")
		return
	}
	h.writeJSON(w, http.StatusOK, orch.Snapshot())
}

// HealthLive handles GET /health/live.
func (h *Handler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HealthReady handles GET /health/ready. It fails when the cache store is
// unreachable.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	orch, release := h.swapper.Acquire()
	defer release()
	if orch == nil {
		h.writeError(w, http.StatusServiceUnavailable, ErrTypeUnavailable, "orchestrator is not available")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()
	if err := orch.Ping(ctx); err != nil {
		h.logger.Warn("readiness check failed", "error", err)
		h.writeError(w, http.StatusServiceUnavailable, ErrTypeUnavailable, "cache store unreachable")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (*CallRequest, bool) {
	defer func() { _ = r.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(r.Body, h.maxBodySize+1))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, ErrTypeInvalidRequest, "failed to read request body")
		return nil, false
	}
	if int64(len(body)) > h.maxBodySize {
		h.writeError(w, http.StatusRequestEntityTooLarge, ErrTypeInvalidRequest, "request body too large")
		return nil, false
	}

	var cr CallRequest
	if err := json.Unmarshal(body, &cr); err != nil {
		h.writeError(w, http.StatusBadRequest, ErrTypeInvalidRequest, "invalid JSON: "+err.Error())
		return nil, false
	}
	if strings.TrimSpace(cr.Prompt) == "" {
		h.writeError(w, http.StatusBadRequest, ErrTypeInvalidRequest, "prompt is required")
		return nil, false
	}
	if cr.TimeoutMS < 0 {
		h.writeError(w, http.StatusBadRequest, ErrTypeInvalidRequest, "timeout_ms cannot be negative")
		return nil, false
	}
	return &cr, true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil && !errors.Is(err, http.ErrHandlerTimeout) {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, typ, message string) {
	h.writeJSON(w, status, ErrorResponse{Error: ErrorDetail{Message: message, Type: typ}})
}
