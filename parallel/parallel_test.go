package parallel

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunCollectsResults(t *testing.T) {
	branches := map[string]Branch[any]{
		"joke":  func(context.Context) (any, error) { return "why did the gopher...", nil },
		"poem":  func(context.Context) (any, error) { return "roses are blue", nil },
		"count": func(context.Context) (any, error) { return 3, nil },
	}

	out, err := Run(context.Background(), branches, 0)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"joke":  "why did the gopher...",
		"poem":  "roses are blue",
		"count": 3,
	}, out)
}

func TestRunRespectsLimit(t *testing.T) {
	var running, peak int32
	branch := func(context.Context) (int, error) {
		n := atomic.AddInt32(&running, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		return 1, nil
	}

	branches := map[string]Branch[int]{}
	for _, name := range []string{"a", "b", "c", "d", "e", "f"} {
		branches[name] = branch
	}

	out, err := Run(context.Background(), branches, 2)
	require.NoError(t, err)
	assert.Len(t, out, 6)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestRunFirstErrorCancelsOthers(t *testing.T) {
	boom := errors.New("boom")
	branches := map[string]Branch[string]{
		"fail": func(context.Context) (string, error) { return "", boom },
		"slow": func(ctx context.Context) (string, error) {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(5 * time.Second):
				return "late", nil
			}
		},
	}

	start := time.Now()
	out, err := Run(context.Background(), branches, 2)
	require.Error(t, err)
	assert.Nil(t, out)
	assert.Less(t, time.Since(start), 2*time.Second)
}
