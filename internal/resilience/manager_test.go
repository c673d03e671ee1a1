package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/blueberrycongee/llmgov/pkg/types"
)

func TestNewManager_Defaults(t *testing.T) {
	m := NewManager("backend", DefaultManagerConfig(), nil, nil)

	if m.Breaker().Name() != "backend" {
		t.Errorf("Breaker().Name() = %v, want backend", m.Breaker().Name())
	}
	if m.Limiter().Capacity() != 8 {
		t.Errorf("Limiter().Capacity() = %v, want 8", m.Limiter().Capacity())
	}
	if m.Retry() == nil {
		t.Error("Retry() should not be nil")
	}
}

func TestManager_AcquireSlot(t *testing.T) {
	cfg := DefaultManagerConfig()
	cfg.Concurrency = 1
	m := NewManager("backend", cfg, nil, nil)
	ctx := context.Background()

	release, err := m.AcquireSlot(ctx, types.PriorityBackground)
	if err != nil {
		t.Fatalf("AcquireSlot() error = %v", err)
	}

	if _, err := m.AcquireSlot(ctx, types.PriorityBackground); !errors.Is(err, ErrLimiterFull) {
		t.Errorf("AcquireSlot() error = %v, want ErrLimiterFull", err)
	}

	release()
	release()
	if got := m.Snapshot().Limiter.InFlight; got != 0 {
		t.Errorf("InFlight = %d after double release, want 0", got)
	}
	release, err = m.AcquireSlot(ctx, types.PriorityBackground)
	if err != nil {
		t.Fatalf("AcquireSlot() error = %v", err)
	}

	release()
	if got := m.Snapshot().Limiter.InFlight; got != 0 {
		t.Errorf("InFlight = %d, want 0", got)
	}
}

func TestManager_RateGateReleasesSlot(t *testing.T) {
	cfg := DefaultManagerConfig()
	cfg.Concurrency = 2
	cfg.RateGate = RateGateConfig{RequestsPerSecond: 0.01, Burst: 1}
	m := NewManager("backend", cfg, nil, nil)
	ctx := context.Background()

	release, err := m.AcquireSlot(ctx, types.PriorityBackground)
	if err != nil {
		t.Fatalf("AcquireSlot() error = %v", err)
	}
	defer release()

	if _, err := m.AcquireSlot(ctx, types.PriorityBackground); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("AcquireSlot() error = %v, want ErrRateLimited", err)
	}
	_, err = m.AcquireSlot(ctx, types.PriorityBackground)
	var admission *AdmissionError
	if !errors.As(err, &admission) || admission.Stage != StageRateGate {
		t.Fatalf("AcquireSlot() error = %v, want rate gate admission error", err)
	}
	snap := m.Snapshot()
	if snap.Limiter.InFlight != 1 {
		t.Errorf("InFlight = %d, want 1 (rejected attempt must give its slot back)", snap.Limiter.InFlight)
	}
	if snap.RateGateRejected != 2 {
		t.Errorf("RateGateRejected = %d, want 2", snap.RateGateRejected)
	}
}

func TestManager_SharedQuota(t *testing.T) {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()

	cfg := DefaultManagerConfig()
	cfg.SharedQuota = SharedQuotaConfig{Key: "test", Limit: 1, Window: time.Minute}
	m := NewManager("backend", cfg, client, nil)
	ctx := context.Background()

	release, err := m.AcquireSlot(ctx, types.PriorityInteractive)
	if err != nil {
		t.Fatalf("AcquireSlot() error = %v", err)
	}
	release()

	_, err = m.AcquireSlot(ctx, types.PriorityInteractive)
	if !errors.Is(err, ErrRateLimited) {
		t.Errorf("AcquireSlot() error = %v, want ErrRateLimited", err)
	}
	var admission *AdmissionError
	if !errors.As(err, &admission) || admission.Stage != StageQuota {
		t.Errorf("AcquireSlot() error = %v, want quota admission error", err)
	}
	if got := m.Limiter().InFlight(); got != 0 {
		t.Errorf("InFlight = %d, want 0", got)
	}
}
