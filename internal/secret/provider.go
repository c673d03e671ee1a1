package secret

import "context"

// Provider looks up secret values in one backing store. The path passed to
// Get has its scheme stripped: "LLM_API_KEY" for env, "secret/data/llm#api_key"
// for vault.
type Provider interface {
	Get(ctx context.Context, path string) (string, error)
	Close() error
}

// ProviderFunc adapts a lookup function into a Provider with nothing to close.
type ProviderFunc func(ctx context.Context, path string) (string, error)

// Get calls f.
func (f ProviderFunc) Get(ctx context.Context, path string) (string, error) { return f(ctx, path) }

// Close is a no-op.
func (ProviderFunc) Close() error { return nil }
