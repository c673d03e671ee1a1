package scripted

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blueberrycongee/llmgov/internal/config"
	llmerrors "github.com/blueberrycongee/llmgov/pkg/errors"
)

func TestBackend_PlaysStepsAndRepeatsLast(t *testing.T) {
	boom := errors.New("boom")
	b := New("", Fail(boom), Reply("first"), Reply("last"))
	ctx := context.Background()

	assert.Equal(t, DefaultName, b.Name())

	_, err := b.Invoke(ctx, "p", nil)
	assert.ErrorIs(t, err, boom)

	for _, want := range []string{"first", "last", "last", "last"} {
		out, err := b.Invoke(ctx, "p", nil)
		require.NoError(t, err)
		assert.Equal(t, want, out)
	}
	assert.EqualValues(t, 5, b.Calls())
}

func TestBackend_EmptyScriptReturnsNil(t *testing.T) {
	out, err := New("empty").Invoke(context.Background(), "p", nil)
	assert.NoError(t, err)
	assert.Nil(t, out)
}

func TestBackend_DelayHonorsContext(t *testing.T) {
	b := New("slow", Slow(time.Second, "late"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := b.Invoke(ctx, "p", nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestBackend_Panic(t *testing.T) {
	b := New("panicky", Step{Panic: "kaboom"})
	assert.PanicsWithValue(t, "kaboom", func() {
		_, _ = b.Invoke(context.Background(), "p", nil)
	})
	assert.EqualValues(t, 0, b.InFlight())
}

func TestBackend_TracksMaxConcurrency(t *testing.T) {
	b := New("conc", Slow(50*time.Millisecond, "ok"))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = b.Invoke(context.Background(), "p", nil)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 4, b.MaxConcurrent())
	assert.EqualValues(t, 0, b.InFlight())
}

func TestBackend_SetScriptRewinds(t *testing.T) {
	b := New("s", Reply("a"), Reply("b"))
	_, _ = b.Invoke(context.Background(), "p", nil)

	b.SetScript(Reply("x"))
	out, err := b.Invoke(context.Background(), "p", nil)
	require.NoError(t, err)
	assert.Equal(t, "x", out)
}

func TestFromConfig(t *testing.T) {
	b, err := FromConfig("demo", []config.ScriptStep{
		{Error: "timeout"},
		{Error: "rate_limit"},
		{Error: "invalid"},
		{Reply: map[string]any{"response": "Hello there"}, Delay: time.Millisecond},
	})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = b.Invoke(ctx, "p", nil)
	assert.True(t, llmerrors.IsTimeout(err))

	_, err = b.Invoke(ctx, "p", nil)
	assert.True(t, llmerrors.IsRetryable(err))

	_, err = b.Invoke(ctx, "p", nil)
	assert.False(t, llmerrors.IsRetryable(err))

	out, err := b.Invoke(ctx, "p", nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"response": "Hello there"}, out)

	_, err = FromConfig("demo", []config.ScriptStep{{Error: "gremlins"}})
	assert.Error(t, err)
}
