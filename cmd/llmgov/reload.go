package main

import (
	"log/slog"
	"sync/atomic"

	"github.com/blueberrycongee/llmgov"
	"github.com/blueberrycongee/llmgov/internal/api"
	"github.com/blueberrycongee/llmgov/internal/config"
)

type orchestratorReloader struct {
	logger     *slog.Logger
	swapper    *api.OrchestratorSwapper
	build      func(*config.Config) (*llmgov.Orchestrator, error)
	inProgress atomic.Bool
}

func newOrchestratorReloader(logger *slog.Logger, swapper *api.OrchestratorSwapper, build func(*config.Config) (*llmgov.Orchestrator, error)) *orchestratorReloader {
	if logger == nil {
		logger = slog.Default()
	}
	return &orchestratorReloader{
		logger:  logger,
		swapper: swapper,
		build:   build,
	}
}

// Reload rebuilds the orchestrator from cfg and swaps it in. Failures keep
// the current orchestrator serving. Breaker, limiter and memory cache state
// start fresh in the new instance.
func (r *orchestratorReloader) Reload(cfg *config.Config) {
	if !r.inProgress.CompareAndSwap(false, true) {
		r.logger.Warn("orchestrator reload already in progress")
		return
	}
	defer r.inProgress.Store(false)

	next, err := r.build(cfg)
	if err != nil {
		r.logger.Error("failed to rebuild orchestrator", "error", err)
		return
	}
	if next == nil {
		r.logger.Error("failed to rebuild orchestrator", "error", "nil orchestrator")
		return
	}

	r.swapper.Swap(next)
	logWarnings(r.logger, cfg)

	r.logger.Info("orchestrator reloaded", "backend", next.Backend().Name())
}

func logWarnings(logger *slog.Logger, cfg *config.Config) {
	for _, w := range cfg.Warnings() {
		logger.Warn("configuration warning", "code", w.Code, "message", w.Message)
	}
}
