package vault

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeVault serves the approle login and one KV v2 secret.
func fakeVault(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/v1/auth/approle/login":
			body, _ := io.ReadAll(r.Body)
			var creds map[string]string
			_ = json.Unmarshal(body, &creds)
			if creds["role_id"] != "role" || creds["secret_id"] != "secret" {
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"errors":["permission denied"]}`))
				return
			}
			_, _ = w.Write([]byte(`{"auth":{"client_token":"s.issued","renewable":false,"lease_duration":3600}}`))
		case r.URL.Path == "/v1/secret/data/llm":
			if r.Header.Get("X-Vault-Token") != "s.issued" && r.Header.Get("X-Vault-Token") != "s.static" {
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"errors":["permission denied"]}`))
				return
			}
			_, _ = w.Write([]byte(`{"data":{"data":{"api_key":"sk-vault","value":"default-value"}}}`))
		case strings.HasPrefix(r.URL.Path, "/v1/secret/"):
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"errors":[]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestProvider_AppRole(t *testing.T) {
	srv := fakeVault(t)
	ctx := context.Background()

	p, err := New(ctx, Config{Address: srv.URL, AuthMethod: AuthAppRole, RoleID: "role", SecretID: "secret", Logger: quietLogger()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	v, err := p.Get(ctx, "secret/data/llm#api_key")
	require.NoError(t, err)
	assert.Equal(t, "sk-vault", v)

	v, err = p.Get(ctx, "secret/data/llm")
	require.NoError(t, err)
	assert.Equal(t, "default-value", v)

	_, err = p.Get(ctx, "secret/data/llm#missing")
	assert.ErrorContains(t, err, "not found")

	_, err = p.Get(ctx, "secret/data/other#api_key")
	assert.Error(t, err)
}

func TestProvider_Token(t *testing.T) {
	srv := fakeVault(t)
	ctx := context.Background()

	p, err := New(ctx, Config{Address: srv.URL, AuthMethod: AuthToken, Token: "s.static", Logger: quietLogger()})
	require.NoError(t, err)

	v, err := p.Get(ctx, "secret/data/llm#api_key")
	require.NoError(t, err)
	assert.Equal(t, "sk-vault", v)

	assert.NoError(t, p.Close())
	assert.NoError(t, p.Close())
}

func TestProvider_LoginErrors(t *testing.T) {
	srv := fakeVault(t)
	ctx := context.Background()

	_, err := New(ctx, Config{Address: srv.URL, AuthMethod: AuthAppRole, RoleID: "role", SecretID: "wrong", Logger: quietLogger()})
	assert.ErrorContains(t, err, "vault login")

	_, err = New(ctx, Config{Address: srv.URL, Logger: quietLogger()})
	assert.ErrorContains(t, err, "auth method")

	_, err = New(ctx, Config{Address: srv.URL, AuthMethod: AuthToken, Logger: quietLogger()})
	assert.ErrorContains(t, err, "requires a token")
}

func TestProvider_Namespace(t *testing.T) {
	var gotNamespace string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotNamespace = r.Header.Get("X-Vault-Namespace")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"value":"plain","port":6379}}`))
	}))
	t.Cleanup(srv.Close)
	ctx := context.Background()

	p, err := New(ctx, Config{Address: srv.URL, Namespace: "team-a", AuthMethod: AuthToken, Token: "s.static", Logger: quietLogger()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	v, err := p.Get(ctx, "kv1/llm")
	require.NoError(t, err)
	assert.Equal(t, "plain", v)
	assert.Equal(t, "team-a", gotNamespace)

	v, err = p.Get(ctx, "kv1/llm#port")
	require.NoError(t, err)
	assert.Equal(t, "6379", v)
}
