package httpjson

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blueberrycongee/llmgov/pkg/backend"
	llmerrors "github.com/blueberrycongee/llmgov/pkg/errors"
)

func newTestBackend(t *testing.T, handler http.HandlerFunc, mutate ...func(*backend.Config)) *Backend {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := backend.Config{Name: "test", URL: srv.URL, APIKey: "sk-test-key"}
	for _, m := range mutate {
		m(&cfg)
	}
	b, err := New(cfg)
	require.NoError(t, err)
	return b
}

func TestInvoke_SendsPromptAndParameters(t *testing.T) {
	var got invokeRequest
	var auth, custom string
	b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		custom = r.Header.Get("X-Caller")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"response":"Hello there"}`))
	}, func(c *backend.Config) {
		c.Headers = map[string]string{"X-Caller": "llmgov"}
	})

	out, err := b.Invoke(context.Background(), "Hi", map[string]any{"temperature": 0.5})
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"response": "Hello there"}, out)
	assert.Equal(t, "Hi", got.Prompt)
	assert.Equal(t, 0.5, got.Parameters["temperature"])
	assert.Equal(t, "Bearer sk-test-key", auth)
	assert.Equal(t, "llmgov", custom)
}

func TestInvoke_DecodesBodies(t *testing.T) {
	tests := []struct {
		name string
		body string
		want any
	}{
		{"plain text", "Just text", "Just text"},
		{"json string", `"quoted"`, "quoted"},
		{"json array", `[{"text":"a"}]`, []any{map[string]any{"text": "a"}}},
		{"empty", "   ", nil},
		{"broken json kept as text", `{"response":`, `{"response":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newTestBackend(t, func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			})
			out, err := b.Invoke(context.Background(), "x", nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestInvoke_MapsStatusCodes(t *testing.T) {
	tests := []struct {
		status    int
		body      string
		wantType  string
		retryable bool
		message   string
	}{
		{http.StatusTooManyRequests, `{"error":{"message":"slow down"}}`, llmerrors.TypeRateLimit, true, "slow down"},
		{http.StatusServiceUnavailable, `{"error":"overloaded"}`, llmerrors.TypeServiceUnavailable, true, "overloaded"},
		{http.StatusInternalServerError, "boom", llmerrors.TypeInternalError, true, "boom"},
		{http.StatusGatewayTimeout, "", llmerrors.TypeTimeout, true, "backend returned status 504"},
		{http.StatusBadRequest, `{"message":"prompt too long"}`, llmerrors.TypeInvalidRequest, false, "prompt too long"},
		{http.StatusUnauthorized, "", llmerrors.TypeAuthentication, false, "backend returned status 401"},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			b := newTestBackend(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := b.Invoke(context.Background(), "x", nil)
			require.Error(t, err)

			var be *llmerrors.BackendError
			require.ErrorAs(t, err, &be)
			assert.Equal(t, tt.wantType, be.Type)
			assert.Equal(t, tt.retryable, llmerrors.IsRetryable(err))
			assert.Equal(t, tt.message, be.Message)
			assert.Equal(t, "test", be.Backend)
		})
	}
}

func TestInvoke_OversizedBodyIsMalformed(t *testing.T) {
	b := newTestBackend(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"response":"` + strings.Repeat("a", 64) + `"}`))
	}, func(c *backend.Config) {
		c.MaxResponseBytes = 32
	})

	_, err := b.Invoke(context.Background(), "x", nil)
	var be *llmerrors.BackendError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, llmerrors.TypeMalformedResponse, be.Type)
	assert.False(t, llmerrors.IsRetryable(err))
}

func TestInvoke_Timeout(t *testing.T) {
	release := make(chan struct{})
	b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := b.Invoke(ctx, "x", nil)
	require.Error(t, err)
	assert.True(t, llmerrors.IsTimeout(err), "got %v", err)
	assert.True(t, llmerrors.IsRetryable(err))
}

func TestInvoke_CallerCancel(t *testing.T) {
	b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := b.Invoke(ctx, "x", nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, llmerrors.IsRetryable(err))
}

func TestInvoke_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	b, err := New(backend.Config{URL: url})
	require.NoError(t, err)
	assert.Equal(t, DefaultName, b.Name())

	_, err = b.Invoke(context.Background(), "x", nil)
	require.Error(t, err)
	assert.True(t, llmerrors.IsRetryable(err))
}

func TestNew_RejectsBadURL(t *testing.T) {
	_, err := New(backend.Config{URL: "ftp://nope"})
	assert.Error(t, err)
}

func TestFactory(t *testing.T) {
	b, err := Factory(backend.Config{URL: "ftp://nope"})
	require.Error(t, err)
	assert.Nil(t, b, "a failed build must not yield a typed-nil backend")

	b, err = Factory(backend.Config{Name: "remote", URL: "https://llm.example.com/generate"})
	require.NoError(t, err)
	assert.Equal(t, "remote", b.Name())
}
