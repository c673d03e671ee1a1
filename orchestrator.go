package llmgov

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/blueberrycongee/llmgov/internal/cache"
	"github.com/blueberrycongee/llmgov/internal/fallback"
	"github.com/blueberrycongee/llmgov/internal/metrics"
	"github.com/blueberrycongee/llmgov/internal/normalize"
	"github.com/blueberrycongee/llmgov/internal/observability"
	"github.com/blueberrycongee/llmgov/internal/resilience"
	"github.com/blueberrycongee/llmgov/pkg/backend"
	llmerrors "github.com/blueberrycongee/llmgov/pkg/errors"
	"github.com/blueberrycongee/llmgov/pkg/types"
)

const (
	tracerName = "github.com/blueberrycongee/llmgov"

	// cacheWriteTimeout bounds the cache write that follows a successful
	// call, which runs detached from the caller's deadline.
	cacheWriteTimeout = 2 * time.Second

	stageBreaker  = "breaker"
	stageDeadline = "deadline"
)

// errBackendPanic marks an attempt whose backend invocation panicked.
var errBackendPanic = errors.New("backend invocation panicked")

// Orchestrator mediates every call to one backend. It owns its cache,
// breaker, limiter and retry state; nothing is shared between instances
// except the optional Redis-backed quota.
//
// Orchestrator is safe for concurrent use by multiple goroutines.
type Orchestrator struct {
	backend    backend.Backend
	cache      *cache.RequestCache
	keys       *cache.KeyGenerator
	manager    *resilience.Manager
	normalizer *normalize.Normalizer
	fallback   *fallback.Generator
	logger     *observability.Logger
	tracer     trace.Tracer
	metrics    *metrics.Collector
	timeout    time.Duration

	fallbacks [types.ReasonUnknown + 1]atomic.Int64

	closeHooks []func() error
	closeOnce  sync.Once
	closeErr   error
}

// New creates an Orchestrator for b.
//
// Example:
//
//	orch, err := llmgov.New(httpBackend,
//	    llmgov.WithCacheStore(redisStore),
//	    llmgov.WithLogger(logger),
//	)
func New(b backend.Backend, opts ...Option) (*Orchestrator, error) {
	if b == nil {
		return nil, errors.New("llmgov: backend is required")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.DefaultTimeout <= 0 {
		return nil, fmt.Errorf("llmgov: default timeout must be positive, got %s", cfg.DefaultTimeout)
	}

	logger := observability.Wrap(cfg.Logger, cfg.Redactor)
	logger = logger.WithFields("backend", b.Name())

	resCfg := cfg.Resilience
	if cfg.Clock != nil {
		resCfg.CircuitBreaker.Clock = cfg.Clock
	}

	normCfg := cfg.Normalizer
	if normCfg.Logger == nil {
		normCfg.Logger = logger.Slog()
	}

	o := &Orchestrator{
		backend:    b,
		keys:       cache.NewKeyGenerator(cfg.CachePrefix),
		manager:    resilience.NewManager(b.Name(), resCfg, cfg.RedisClient, logger.Slog()),
		normalizer: normalize.New(normCfg),
		fallback:   fallback.New(logger.Slog()),
		logger:     logger,
		tracer:     cfg.Tracer,
		metrics:    metrics.NewCollector(b.Name(), cfg.MetricsEnabled),
		timeout:    cfg.DefaultTimeout,
		closeHooks: cfg.CloseHooks,
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer(tracerName)
	}

	if cfg.CacheEnabled {
		store := cfg.CacheStore
		if store == nil {
			store = cache.NewMemoryCache(cache.DefaultMemoryCacheConfig())
		}
		cacheOpts := []cache.RequestCacheOption{cache.WithLogger(logger.Slog())}
		if cfg.Clock != nil {
			cacheOpts = append(cacheOpts, cache.WithClock(cfg.Clock))
		}
		o.cache = cache.NewRequestCache(store, cfg.CacheTTL, cacheOpts...)
	}

	o.manager.Breaker().OnStateChange(o.onBreakerChange)
	o.manager.Retry().OnRetry(o.onRetry)
	return o, nil
}

// Backend returns the governed backend.
func (o *Orchestrator) Backend() backend.Backend { return o.backend }

// Call returns the answer to req. It never returns an empty string and
// never fails: every failure is turned into a fallback message.
func (o *Orchestrator) Call(ctx context.Context, req Request) (text string) {
	defer func() {
		if r := recover(); r != nil {
			text = fallback.LastResort
		}
		if strings.TrimSpace(text) == "" {
			text = fallback.LastResort
		}
	}()
	return o.CallDetailed(ctx, req).Text
}

// callState carries one call through the pipeline.
type callState struct {
	req      *types.Request
	priority string
	key      string

	permit    resilience.Permit
	hasPermit bool
	settled   bool

	contacted bool
	panicked  bool
	stage     string
	attempts  int
}

type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeFailure
	outcomeRelease
)

// CallDetailed is Call with diagnostics: where the answer came from, the
// normalization strategy or fallback reason, and the number of backend
// attempts.
func (o *Orchestrator) CallDetailed(ctx context.Context, req Request) (result CallResult) {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()
	ctx, requestID := observability.GetOrCreateRequestID(ctx)

	cs := &callState{
		req:      &req,
		priority: req.Priority.String(),
		key:      o.keys.Generate(req.Prompt, req.Parameters),
	}

	ctx, span := observability.StartCallSpan(ctx, o.tracer, observability.CallSpanAttributes{
		Backend:   o.backend.Name(),
		Priority:  cs.priority,
		RequestID: requestID,
		CacheKey:  cs.key,
	})
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			o.settle(cs, outcomeFailure)
			err := fmt.Errorf("call panicked: %v", r)
			observability.RecordError(span, err)
			result = o.fallbackResult(ctx, cs, types.ReasonUnknown, err)
		}
		result.RequestID = requestID
		result.Attempts = cs.attempts
		o.finish(span, cs, &result, start)
	}()

	return o.run(ctx, cs)
}

func (o *Orchestrator) run(ctx context.Context, cs *callState) CallResult {
	timeout := cs.req.Timeout
	if timeout <= 0 {
		timeout = o.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if o.cache != nil && !cs.req.NoCache {
		text, ok := o.cache.Get(ctx, cs.key, cs.req.Priority)
		o.metrics.RecordCacheLookup(cs.priority, ok)
		if ok {
			return CallResult{Text: text, Source: types.SourceCache}
		}
	}

	permit, err := o.manager.Breaker().Allow()
	if err != nil {
		cs.stage = stageBreaker
		o.metrics.RecordRejection(cs.priority, stageBreaker)
		return o.fallbackResult(ctx, cs, types.ReasonThrottled, err)
	}
	cs.permit, cs.hasPermit = permit, true

	payload, err := o.invoke(ctx, cs)
	if err != nil {
		return o.fallbackResult(ctx, cs, o.failureReason(cs, err), err)
	}

	res, err := o.normalizer.Normalize(payload)
	if err != nil {
		// An error disguised as a reply counts against the backend; an
		// unreadable reply does not.
		if errors.Is(err, normalize.ErrErrorShaped) {
			o.settle(cs, outcomeFailure)
		} else {
			o.settle(cs, outcomeSuccess)
		}
		return o.fallbackResult(ctx, cs, types.ReasonMalformed, err)
	}
	o.settle(cs, outcomeSuccess)

	if o.cache != nil && !cs.req.NoStore {
		writeCtx, cancelWrite := context.WithTimeout(context.WithoutCancel(ctx), cacheWriteTimeout)
		o.cache.Set(writeCtx, cs.key, res.Text, cs.req.Priority)
		cancelWrite()
	}

	return CallResult{Text: res.Text, Source: types.SourceBackend, Strategy: res.Strategy}
}

// invoke runs the retry loop. Each attempt acquires its own admission slot.
func (o *Orchestrator) invoke(ctx context.Context, cs *callState) (any, error) {
	var payload any
	_, err := o.manager.Retry().Do(ctx, func(ctx context.Context, attempt int) error {
		release, err := o.manager.AcquireSlot(ctx, cs.req.Priority)
		if err != nil {
			return err
		}
		o.metrics.SetInFlight(o.manager.Limiter().InFlight())

		cs.contacted = true
		cs.attempts++
		p, err := o.attempt(ctx, cs, attempt, release)
		if err != nil {
			return err
		}
		payload = p
		return nil
	})
	return payload, err
}

type reply struct {
	payload  any
	err      error
	panicked bool
	value    any
}

// attempt invokes the backend on its own goroutine. That goroutine holds the
// limiter slot until the backend returns, even when the caller has already
// given up, so abandoned calls still count against the concurrency bound.
func (o *Orchestrator) attempt(ctx context.Context, cs *callState, n int, release func()) (any, error) {
	ctx, span := observability.StartAttemptSpan(ctx, o.tracer, o.backend.Name(), n)
	defer span.End()
	start := time.Now()

	done := make(chan reply, 1)
	go func() {
		defer func() {
			release()
			o.metrics.SetInFlight(o.manager.Limiter().InFlight())
		}()
		defer func() {
			if r := recover(); r != nil {
				done <- reply{err: errBackendPanic, panicked: true, value: r}
			}
		}()
		payload, err := o.backend.Invoke(ctx, cs.req.Prompt, cs.req.Parameters)
		done <- reply{payload: payload, err: err}
	}()

	var r reply
	select {
	case r = <-done:
	case <-ctx.Done():
		r = reply{err: fmt.Errorf("backend %s: %w", o.backend.Name(), ctx.Err())}
	}

	o.metrics.RecordAttempt(cs.priority, time.Since(start), r.err)
	if r.panicked {
		cs.panicked = true
		o.logger.WithRequestID(ctx).Error("backend panicked", "attempt", n, "panic", fmt.Sprint(r.value))
	}
	if r.err != nil {
		observability.RecordError(span, r.err)
		return nil, r.err
	}
	return r.payload, nil
}

// failureReason settles the breaker permit for a failed invocation and picks
// the fallback reason.
func (o *Orchestrator) failureReason(cs *callState, err error) types.Reason {
	switch {
	case cs.panicked:
		o.settle(cs, outcomeFailure)
		return types.ReasonUnknown

	case !cs.contacted:
		o.settle(cs, outcomeRelease)
		var admission *resilience.AdmissionError
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			cs.stage = stageDeadline
		case errors.As(err, &admission):
			cs.stage = admission.Stage
		default:
			cs.stage = stageDeadline
		}
		o.metrics.RecordRejection(cs.priority, cs.stage)
		return types.ReasonThrottled

	case errors.Is(err, context.Canceled):
		o.settle(cs, outcomeRelease)
		return types.ReasonTransient

	default:
		o.settle(cs, outcomeFailure)
		var be *llmerrors.BackendError
		if errors.As(err, &be) && be.Type == llmerrors.TypeMalformedResponse {
			return types.ReasonMalformed
		}
		return types.ReasonTransient
	}
}

// settle reports the call's single outcome to the breaker.
func (o *Orchestrator) settle(cs *callState, oc outcome) {
	if !cs.hasPermit || cs.settled {
		return
	}
	cs.settled = true

	breaker := o.manager.Breaker()
	switch oc {
	case outcomeSuccess:
		breaker.RecordSuccess(cs.permit)
	case outcomeFailure:
		breaker.RecordFailure(cs.permit)
	default:
		breaker.Release(cs.permit)
	}
}

func (o *Orchestrator) fallbackResult(ctx context.Context, cs *callState, reason types.Reason, cause error) CallResult {
	if reason >= 0 && int(reason) < len(o.fallbacks) {
		o.fallbacks[reason].Add(1)
	}

	o.logger.WithRequestID(ctx).RedactedWarn("returning fallback",
		"reason", reason.String(),
		"priority", cs.priority,
		"stage", cs.stage,
		"attempts", cs.attempts,
		"error", cause,
	)

	r := reason
	return CallResult{
		Text:   o.fallback.Generate(reason, cs.req),
		Source: types.SourceFallback,
		Reason: &r,
	}
}

func (o *Orchestrator) finish(span trace.Span, cs *callState, result *CallResult, start time.Time) {
	reason := ""
	if result.Reason != nil {
		reason = result.Reason.String()
	}
	observability.RecordCallOutcome(span, string(result.Source), result.Strategy, reason, cs.attempts)
	o.metrics.RecordCall(&metrics.CallMetrics{
		Priority:  cs.priority,
		Source:    string(result.Source),
		Reason:    reason,
		Strategy:  result.Strategy,
		StartTime: start,
		EndTime:   time.Now(),
	})
}

func (o *Orchestrator) onBreakerChange(name string, from, to resilience.CircuitState) {
	o.logger.Info("circuit breaker state changed",
		"breaker", name,
		"from", from.String(),
		"to", to.String(),
	)
	o.metrics.RecordBreakerTransition(from.String(), to.String())
}

func (o *Orchestrator) onRetry(attempt int, err error, wait time.Duration) {
	o.logger.RedactedDebug("retrying backend call",
		"attempt", attempt,
		"wait", wait,
		"error", err,
	)
	o.metrics.RecordRetry(errorType(err))
}

func errorType(err error) string {
	var be *llmerrors.BackendError
	switch {
	case errors.As(err, &be):
		return be.Type
	case errors.Is(err, context.DeadlineExceeded):
		return llmerrors.TypeTimeout
	default:
		return "unknown"
	}
}

// Fingerprint returns the cache key req maps to.
func (o *Orchestrator) Fingerprint(req Request) string {
	return o.keys.Generate(req.Prompt, req.Parameters)
}

// Invalidate removes any cached answer for req.
func (o *Orchestrator) Invalidate(ctx context.Context, req Request) error {
	if o.cache == nil {
		return nil
	}
	return o.cache.Invalidate(ctx, o.Fingerprint(req))
}

// Ping checks the cache store.
func (o *Orchestrator) Ping(ctx context.Context) error {
	if o.cache == nil {
		return nil
	}
	return o.cache.Ping(ctx)
}

// Close releases the cache store and runs the registered close hooks. It is
// safe to call more than once.
func (o *Orchestrator) Close() error {
	o.closeOnce.Do(func() {
		var errs []error
		if o.cache != nil {
			errs = append(errs, o.cache.Close())
		}
		for _, fn := range o.closeHooks {
			errs = append(errs, fn())
		}
		o.closeErr = errors.Join(errs...)
	})
	return o.closeErr
}
