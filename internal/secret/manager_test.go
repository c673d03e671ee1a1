package secret

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapProvider struct {
	values map[string]string
	gets   atomic.Int64
	closed atomic.Bool
	err    error
}

func (p *mapProvider) Get(_ context.Context, path string) (string, error) {
	p.gets.Add(1)
	if p.err != nil {
		return "", p.err
	}
	v, ok := p.values[path]
	if !ok {
		return "", errors.New("not found")
	}
	return v, nil
}

func (p *mapProvider) Close() error {
	p.closed.Store(true)
	return p.err
}

func TestManagerResolve(t *testing.T) {
	m := NewManager()
	m.Register(SchemeEnv, &mapProvider{values: map[string]string{"LLM_KEY": "sk-env"}})
	ctx := context.Background()

	tests := []struct {
		ref     string
		want    string
		wantErr string
	}{
		{"sk-literal", "sk-literal", ""},
		{"", "", ""},
		{"env://LLM_KEY", "sk-env", ""},
		{"https://llm.internal/generate", "https://llm.internal/generate", ""},
		{"env://MISSING", "", "resolve env secret"},
		{"env://", "", "empty secret path"},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			got, err := m.Resolve(ctx, tt.ref)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestManagerClose(t *testing.T) {
	boom := errors.New("close failed")
	ok := &mapProvider{}
	failing := &mapProvider{err: boom}

	m := NewManager()
	m.Register(SchemeEnv, ok)
	m.Register(SchemeVault, failing)

	err := m.Close()
	assert.ErrorIs(t, err, boom)
	assert.True(t, ok.closed.Load())
	assert.True(t, failing.closed.Load())
}

func TestCachedProvider(t *testing.T) {
	inner := &mapProvider{values: map[string]string{"k": "v"}}
	p := NewCachedProvider(inner, 0)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		v, err := p.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, "v", v)
	}
	assert.Equal(t, int64(1), inner.gets.Load())

	_, err := p.Get(ctx, "missing")
	assert.Error(t, err)
	_, err = p.Get(ctx, "missing")
	assert.Error(t, err)
	assert.Equal(t, int64(3), inner.gets.Load(), "errors are not cached")

	require.NoError(t, p.Close())
	assert.True(t, inner.closed.Load())
}

func TestCachedProvider_ServesLastKnownOnError(t *testing.T) {
	var down atomic.Bool
	inner := ProviderFunc(func(_ context.Context, path string) (string, error) {
		if down.Load() {
			return "", errors.New("vault sealed")
		}
		return "v1:" + path, nil
	})
	p := NewCachedProvider(inner, 10*time.Millisecond)
	ctx := context.Background()

	v, err := p.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v1:k", v)

	down.Store(true)
	time.Sleep(30 * time.Millisecond)

	v, err = p.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v1:k", v)

	p.Invalidate("k")
	_, err = p.Get(ctx, "k")
	assert.ErrorContains(t, err, "vault sealed")
}

func TestProviderFunc(t *testing.T) {
	m := NewManager()
	m.Register("static", ProviderFunc(func(_ context.Context, path string) (string, error) {
		return "resolved-" + path, nil
	}))

	got, err := m.Resolve(context.Background(), "static://name")
	require.NoError(t, err)
	assert.Equal(t, "resolved-name", got)
	assert.NoError(t, m.Close())
}
