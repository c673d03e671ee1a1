package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLatencyTracker(t *testing.T) {
	tr := NewLatencyTracker()
	tr.Observe("interactive", 10*time.Millisecond)
	tr.Observe("interactive", 30*time.Millisecond)
	tr.Observe("interactive", 20*time.Millisecond)
	tr.Observe("background", -time.Second)

	snap := tr.Snapshot()
	assert.Equal(t, LatencyStats{
		Count: 3,
		Mean:  20 * time.Millisecond,
		Max:   30 * time.Millisecond,
		Last:  20 * time.Millisecond,
	}, snap["interactive"])
	assert.Equal(t, time.Duration(0), snap["background"].Max)
	assert.Equal(t, []string{"background", "interactive"}, tr.Priorities())
}

func TestLatencyTracker_Concurrent(t *testing.T) {
	tr := NewLatencyTracker()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.Observe("cycle", time.Millisecond)
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(50), tr.Snapshot()["cycle"].Count)
}
