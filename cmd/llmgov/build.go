package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/blueberrycongee/llmgov"
	"github.com/blueberrycongee/llmgov/backends/httpjson"
	"github.com/blueberrycongee/llmgov/backends/scripted"
	"github.com/blueberrycongee/llmgov/internal/cache"
	"github.com/blueberrycongee/llmgov/internal/config"
	"github.com/blueberrycongee/llmgov/internal/normalize"
	"github.com/blueberrycongee/llmgov/internal/secret"
	"github.com/blueberrycongee/llmgov/internal/secret/env"
	"github.com/blueberrycongee/llmgov/internal/secret/vault"
	"github.com/blueberrycongee/llmgov/pkg/backend"
)

var errNilConfig = errors.New("config is required")

const secretTimeout = 10 * time.Second

func buildSecrets(ctx context.Context, cfg config.SecretsConfig, logger *slog.Logger) (*secret.Manager, error) {
	m := secret.NewManager()
	m.Register(secret.SchemeEnv, env.New())

	if cfg.Vault.Enabled {
		v, err := vault.New(ctx, vault.Config{
			Address:    cfg.Vault.Address,
			Namespace:  cfg.Vault.Namespace,
			AuthMethod: cfg.Vault.AuthMethod,
			RoleID:     cfg.Vault.RoleID,
			SecretID:   cfg.Vault.SecretID,
			Token:      cfg.Vault.Token,
			CACert:     cfg.Vault.CACert,
			ClientCert: cfg.Vault.ClientCert,
			ClientKey:  cfg.Vault.ClientKey,
			Logger:     logger,
		})
		if err != nil {
			return nil, fmt.Errorf("init vault: %w", err)
		}
		m.Register(secret.SchemeVault, secret.NewCachedProvider(v, cfg.CacheTTL))
		logger.Info("vault secret provider enabled", "address", cfg.Vault.Address)
	}
	return m, nil
}

// networkBackends maps backend.type to adapters built from a backend.Config.
var networkBackends = map[string]backend.Factory{
	config.BackendHTTP: httpjson.Factory,
}

func buildBackend(ctx context.Context, cfg *config.Config, secrets *secret.Manager) (backend.Backend, error) {
	if cfg == nil {
		return nil, errNilConfig
	}

	bc := cfg.Backend
	if bc.Type == config.BackendScripted {
		return scripted.FromConfig(bc.Name, bc.Script)
	}
	factory, ok := networkBackends[bc.Type]
	if !ok {
		return nil, fmt.Errorf("unsupported backend type: %s", bc.Type)
	}

	apiKey, headers := bc.APIKey, make(map[string]string, len(bc.Headers))
	for k, v := range bc.Headers {
		headers[k] = v
	}
	if secrets != nil {
		var err error
		if apiKey, err = secrets.Resolve(ctx, bc.APIKey); err != nil {
			return nil, fmt.Errorf("backend.api_key: %w", err)
		}
		for k, v := range headers {
			if headers[k], err = secrets.Resolve(ctx, v); err != nil {
				return nil, fmt.Errorf("backend.headers[%s]: %w", k, err)
			}
		}
	}
	return factory(backend.Config{
		Name:             bc.Name,
		URL:              bc.URL,
		APIKey:           apiKey,
		Timeout:          bc.Timeout,
		Headers:          headers,
		MaxResponseBytes: bc.MaxResponseBytes,
	})
}

// orchestratorBuilder turns a configuration snapshot into a ready
// Orchestrator. The tracer is fixed for the life of the process.
type orchestratorBuilder struct {
	logger  *slog.Logger
	tracer  trace.Tracer
	secrets *secret.Manager
}

func (b *orchestratorBuilder) build(cfg *config.Config) (*llmgov.Orchestrator, error) {
	if cfg == nil {
		return nil, errNilConfig
	}

	ctx, cancel := context.WithTimeout(context.Background(), secretTimeout)
	defer cancel()
	be, err := buildBackend(ctx, cfg, b.secrets)
	if err != nil {
		return nil, fmt.Errorf("create backend: %w", err)
	}

	opts := []llmgov.Option{
		llmgov.WithLogger(b.logger),
		llmgov.WithResilience(cfg.Resilience),
		llmgov.WithNormalizer(normalize.Config{
			Fields:          cfg.Normalizer.Fields,
			MaxDepth:        cfg.Normalizer.MaxDepth,
			MinContentRunes: cfg.Normalizer.MinContentRunes,
			ErrorTokens:     cfg.Normalizer.ErrorTokens,
		}),
		llmgov.WithDefaultTimeout(cfg.Defaults.Timeout),
		llmgov.WithMetrics(cfg.Metrics.Enabled),
	}
	if b.tracer != nil {
		opts = append(opts, llmgov.WithTracer(b.tracer))
	}

	if cfg.Cache.Enabled {
		store, err := cache.NewStore(cfg.Cache)
		if err != nil {
			return nil, fmt.Errorf("create cache store: %w", err)
		}
		opts = append(opts,
			llmgov.WithCacheStore(store),
			llmgov.WithCacheTTL(cfg.Cache.TTL),
			llmgov.WithCachePrefix(cfg.Cache.Namespace),
		)
	} else {
		opts = append(opts, llmgov.WithoutCache())
	}

	if cfg.Resilience.SharedQuota.Limit > 0 {
		client := cache.NewRedisClient(cfg.Cache.Redis)
		opts = append(opts,
			llmgov.WithRedisClient(client),
			llmgov.WithCloseHook(client.Close),
		)
	}

	o, err := llmgov.New(be, opts...)
	if err != nil {
		return nil, err
	}

	b.logger.Info("orchestrator built",
		"backend", be.Name(),
		"backend_type", cfg.Backend.Type,
		"cache", cacheLabel(cfg.Cache),
		"concurrency", cfg.Resilience.Concurrency,
	)
	return o, nil
}

func cacheLabel(c cache.Config) string {
	if !c.Enabled {
		return "disabled"
	}
	if c.Type == "" {
		return "local"
	}
	return string(c.Type)
}
