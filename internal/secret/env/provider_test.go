package env

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProviderGet(t *testing.T) {
	t.Setenv("LLMGOV_SECRET_TEST", "sk-123")
	t.Setenv("LLMGOV_SECRET_EMPTY", "")
	p := New()
	ctx := context.Background()

	v, err := p.Get(ctx, " LLMGOV_SECRET_TEST ")
	require.NoError(t, err)
	assert.Equal(t, "sk-123", v)

	_, err = p.Get(ctx, "LLMGOV_SECRET_EMPTY")
	assert.ErrorContains(t, err, "not set")

	_, err = p.Get(ctx, "LLMGOV_SECRET_DOES_NOT_EXIST")
	assert.ErrorContains(t, err, "not set")

	_, err = p.Get(ctx, "")
	assert.ErrorContains(t, err, "empty")

	assert.NoError(t, p.Close())
}
