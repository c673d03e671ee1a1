package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/blueberrycongee/llmgov/internal/api"
	"github.com/blueberrycongee/llmgov/internal/config"
	"github.com/blueberrycongee/llmgov/internal/metrics"
	"github.com/blueberrycongee/llmgov/internal/observability"
)

func buildHTTPHandler(cfg *config.Config, handler *api.Handler) (http.Handler, error) {
	if cfg == nil {
		return nil, errNilConfig
	}

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	if cfg.Metrics.Enabled {
		mux.Handle("GET "+cfg.Metrics.Path, promhttp.Handler())
	}

	var h http.Handler = mux
	h = metrics.Middleware(h)
	h = observability.RequestIDMiddleware(h)
	return h, nil
}
