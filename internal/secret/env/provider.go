// Package env implements a secret provider that reads environment variables.
package env

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// Provider reads secrets from the process environment.
type Provider struct {
	lookup func(string) (string, bool)
}

// New creates an environment provider.
func New() *Provider {
	return &Provider{lookup: os.LookupEnv}
}

// Get returns the value of the environment variable named by path. Unset
// and empty variables are errors.
func (p *Provider) Get(_ context.Context, path string) (string, error) {
	name := strings.TrimSpace(path)
	if name == "" {
		return "", fmt.Errorf("environment variable name is empty")
	}
	val, ok := p.lookup(name)
	if !ok || val == "" {
		return "", fmt.Errorf("environment variable %q not set", name)
	}
	return val, nil
}

// Close is a no-op.
func (p *Provider) Close() error {
	return nil
}
