// Package vault reads secrets from HashiCorp Vault.
package vault

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	vault "github.com/hashicorp/vault/api"
)

// Auth methods accepted in Config.AuthMethod.
const (
	AuthAppRole = "approle"
	AuthCert    = "cert"
	AuthToken   = "token"
)

// defaultField is read when a reference names no field after '#'.
const defaultField = "value"

// Config holds connection and login settings.
type Config struct {
	Address string
	// Namespace is sent as X-Vault-Namespace when set.
	Namespace string
	// AuthMethod defaults to approle when RoleID is set.
	AuthMethod string
	RoleID     string
	SecretID   string
	Token      string
	CACert     string
	ClientCert string
	ClientKey  string
	Logger     *slog.Logger
}

// Provider serves secret lookups from Vault. Tokens obtained by login are
// renewed in the background until Close.
type Provider struct {
	client *vault.Client
	logger *slog.Logger

	stop     chan struct{}
	renewing sync.WaitGroup
	stopOnce sync.Once
}

// New connects to Vault and logs in.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	client, err := newClient(cfg)
	if err != nil {
		return nil, err
	}
	auth, err := login(ctx, client, cfg)
	if err != nil {
		return nil, err
	}

	p := &Provider{
		client: client,
		logger: logger.With("component", "vault"),
		stop:   make(chan struct{}),
	}
	if auth != nil && auth.Renewable {
		p.renewing.Add(1)
		go p.keepRenewed(auth)
	}
	return p, nil
}

func newClient(cfg Config) (*vault.Client, error) {
	vc := vault.DefaultConfig()
	vc.Address = cfg.Address
	if cfg.CACert != "" || cfg.ClientCert != "" || cfg.ClientKey != "" {
		err := vc.ConfigureTLS(&vault.TLSConfig{
			CACert:     cfg.CACert,
			ClientCert: cfg.ClientCert,
			ClientKey:  cfg.ClientKey,
		})
		if err != nil {
			return nil, fmt.Errorf("configure vault tls: %w", err)
		}
	}

	client, err := vault.NewClient(vc)
	if err != nil {
		return nil, fmt.Errorf("create vault client: %w", err)
	}
	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}
	return client, nil
}

// login authenticates client and installs the resulting token. It returns the
// auth block for renewable logins and nil for static tokens.
func login(ctx context.Context, client *vault.Client, cfg Config) (*vault.SecretAuth, error) {
	method := cfg.AuthMethod
	if method == "" && cfg.RoleID != "" {
		method = AuthAppRole
	}

	var (
		path string
		body map[string]any
	)
	switch method {
	case AuthToken:
		if cfg.Token == "" {
			return nil, errors.New("vault token auth requires a token")
		}
		client.SetToken(cfg.Token)
		return nil, nil
	case AuthAppRole:
		path = "auth/approle/login"
		body = map[string]any{"role_id": cfg.RoleID, "secret_id": cfg.SecretID}
	case AuthCert:
		path = "auth/cert/login"
	default:
		return nil, fmt.Errorf("unknown or missing auth method: %q", cfg.AuthMethod)
	}

	resp, err := client.Logical().WriteWithContext(ctx, path, body)
	if err != nil {
		return nil, fmt.Errorf("vault login (%s): %w", method, err)
	}
	if resp == nil || resp.Auth == nil || resp.Auth.ClientToken == "" {
		return nil, fmt.Errorf("vault login (%s): no token in response", method)
	}
	client.SetToken(resp.Auth.ClientToken)
	return resp.Auth, nil
}

// Get resolves "mount/path#field". The field defaults to "value". Secrets
// stored in a KV v2 engine are unwrapped from their "data" envelope.
func (p *Provider) Get(ctx context.Context, ref string) (string, error) {
	path, field, _ := strings.Cut(ref, "#")
	if field == "" {
		field = defaultField
	}

	resp, err := p.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return "", fmt.Errorf("read vault secret %q: %w", path, err)
	}
	if resp == nil || resp.Data == nil {
		return "", fmt.Errorf("secret %q not found", path)
	}

	v, ok := unwrapKV(resp.Data)[field]
	if !ok || v == nil {
		return "", fmt.Errorf("field %q not found in secret %q", field, path)
	}
	if s, ok := v.(string); ok {
		return s, nil
	}
	return fmt.Sprint(v), nil
}

func unwrapKV(data map[string]any) map[string]any {
	if inner, ok := data["data"].(map[string]any); ok {
		return inner
	}
	return data
}

// Close stops token renewal. It is safe to call more than once.
func (p *Provider) Close() error {
	p.stopOnce.Do(func() { close(p.stop) })
	p.renewing.Wait()
	return nil
}

func (p *Provider) keepRenewed(auth *vault.SecretAuth) {
	defer p.renewing.Done()

	w, err := p.client.NewLifetimeWatcher(&vault.LifetimeWatcherInput{
		Secret: &vault.Secret{Auth: auth},
	})
	if err != nil {
		p.logger.Error("vault token renewal unavailable", "error", err)
		return
	}
	go w.Start()
	defer w.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-w.RenewCh():
			p.logger.Debug("vault token renewed")
		case err := <-w.DoneCh():
			if err != nil {
				p.logger.Warn("vault token renewal stopped", "error", err)
			}
			return
		}
	}
}
