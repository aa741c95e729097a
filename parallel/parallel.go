// Package parallel runs independent named branches concurrently and collects
// their results.
package parallel

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// DefaultMaxConcurrency is used when Run is given a non-positive limit.
const DefaultMaxConcurrency = 4

// Branch produces one named result.
type Branch[T any] func(ctx context.Context) (T, error)

// Run executes all branches with at most maxConcurrency running at once. The
// first failing branch cancels the context of the others and its error is
// returned.
func Run[T any](ctx context.Context, branches map[string]Branch[T], maxConcurrency int) (map[string]T, error) {
	if maxConcurrency <= 0 {
		maxConcurrency = DefaultMaxConcurrency
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrency)

	var mu sync.Mutex
	results := make(map[string]T, len(branches))

	for name, branch := range branches {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			v, err := branch(gctx)
			if err != nil {
				return fmt.Errorf("branch %s: %w", name, err)
			}
			mu.Lock()
			results[name] = v
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
