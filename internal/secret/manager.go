// Package secret resolves secret references such as env://NAME and
// vault://path#field found in configuration.
package secret

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Scheme names understood by Manager when the matching provider is
// registered.
const (
	SchemeEnv   = "env"
	SchemeVault = "vault"
)

// Manager dispatches secret references to the Provider registered for their
// scheme.
type Manager struct {
	mu     sync.RWMutex
	byName map[string]Provider
}

// NewManager returns a Manager with no providers; every reference resolves to
// itself until one is registered.
func NewManager() *Manager {
	return &Manager{byName: map[string]Provider{}}
}

// Register binds provider to scheme, replacing any earlier binding.
func (m *Manager) Register(scheme string, provider Provider) {
	m.mu.Lock()
	m.byName[scheme] = provider
	m.mu.Unlock()
}

// Resolve returns the value behind ref. A ref without a scheme, or with a
// scheme no provider is registered for, is a literal and returned as-is;
// backend URLs and plain API keys pass through untouched.
func (m *Manager) Resolve(ctx context.Context, ref string) (string, error) {
	scheme, path, ok := strings.Cut(ref, "://")
	if !ok {
		return ref, nil
	}

	m.mu.RLock()
	provider, registered := m.byName[scheme]
	m.mu.RUnlock()

	if !registered {
		return ref, nil
	}
	if path == "" {
		return "", fmt.Errorf("empty secret path in %s reference", scheme)
	}

	val, err := provider.Get(ctx, path)
	if err != nil {
		return "", fmt.Errorf("resolve %s secret: %w", scheme, err)
	}
	return val, nil
}

// Close closes every registered provider and reports all failures.
func (m *Manager) Close() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var err error
	for scheme, p := range m.byName {
		if cerr := p.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("close %s provider: %w", scheme, cerr))
		}
	}
	return err
}
