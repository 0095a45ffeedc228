package scoped

import (
	"context"
	"fmt"
	"time"
)

// ForEachSlice executes fn for each item in the slice concurrently,
// using the provided options to control concurrency and error policy.
//
// This is a convenience wrapper around [Run] and [Spawner.Go].
//
//	err := scoped.ForEachSlice(ctx, urls, func(ctx context.Context, u string) error {
//	    return fetch(ctx, u)
//	}, scoped.WithLimit(10))
func ForEachSlice[T any](ctx context.Context, items []T, fn func(ctx context.Context, item T) error, opts ...Option) error {
	return Run(ctx, func(sp Spawner) {
		for i, item := range items {
			sp.Go(fmt.Sprintf("foreach[%d]", i), func(ctx context.Context) error {
				return fn(ctx, item)
			})
		}
	}, opts...)
}

// MapResult holds one item's outcome from [MapSlice]: the transformed
// value, or the error fn returned for that item.
type MapResult[R any] struct {
	Value R
	Err   error
}

// MapSlice executes fn for each item concurrently and collects the results
// in the same order as the input slice.
//
// Under the default [FailFast] policy, a single item error cancels the
// remaining items and MapSlice returns nil results along with the error.
// Under [WithPolicy]([Collect]), item errors are captured per-item in the
// returned [MapResult] slice instead of aborting the run; the outer error
// reflects only infrastructure failures (e.g. an already-cancelled ctx),
// not individual item errors.
//
//	prices, err := scoped.MapSlice(ctx, products, func(ctx context.Context, p Product) (float64, error) {
//	    return fetchPrice(ctx, p)
//	}, scoped.WithLimit(5))
func MapSlice[T, R any](ctx context.Context, items []T, fn func(ctx context.Context, item T) (R, error), opts ...Option) ([]MapResult[R], error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	results := make([]MapResult[R], len(items))
	err := Run(ctx, func(sp Spawner) {
		for i, item := range items {
			i, item := i, item
			sp.Go(fmt.Sprintf("map[%d]", i), func(ctx context.Context) error {
				v, ferr := fn(ctx, item)
				results[i] = MapResult[R]{Value: v, Err: ferr} // safe: each goroutine writes a unique index
				if cfg.policy == FailFast {
					return ferr
				}
				return nil
			})
		}
	}, opts...)
	if err != nil && cfg.policy == FailFast {
		return nil, err
	}
	return results, err
}

// ForEach is an alias for [ForEachSlice].
func ForEach[T any](ctx context.Context, items []T, fn func(ctx context.Context, item T) error, opts ...Option) error {
	return ForEachSlice(ctx, items, fn, opts...)
}

// SpawnTimeout spawns fn with a per-task deadline, independent of the
// scope's own context. If fn does not return before timeout elapses, the
// task's context is cancelled and fn's own error (typically
// [context.DeadlineExceeded], once fn observes ctx.Done()) is recorded as
// the task's error.
func SpawnTimeout(sp Spawner, name string, timeout time.Duration, fn func(ctx context.Context) error) {
	sp.Spawn(name, func(ctx context.Context, _ Spawner) error {
		tctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return fn(tctx)
	})
}

// SpawnRetry spawns fn, retrying up to n more times (n+1 attempts total)
// with a fixed backoff delay between attempts when fn returns a non-nil
// error. The task's final error is whatever the last attempt returned, or
// [context.Canceled]/[context.DeadlineExceeded] if ctx is cancelled while
// waiting out the backoff delay.
//
// SpawnRetry panics if n is negative or backoff is not positive.
func SpawnRetry(sp Spawner, name string, n int, backoff time.Duration, fn TaskFunc) {
	if n < 0 {
		panic("scoped: SpawnRetry requires n >= 0")
	}
	if backoff <= 0 {
		panic("scoped: SpawnRetry requires backoff > 0")
	}
	sp.Spawn(name, func(ctx context.Context, child Spawner) error {
		var err error
		for attempt := 0; attempt <= n; attempt++ {
			if err = fn(ctx, child); err == nil {
				return nil
			}
			if attempt == n {
				break
			}
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return err
	})
}

// SpawnScope spawns a sub-[Scope] as a single task within sp, letting a
// subtree of work run under its own error policy (e.g. [Collect] nested
// inside a [FailFast] parent) while still being joined by the parent
// scope's own [Scope.Wait] or [Run].
func SpawnScope(sp Spawner, name string, subFn func(sp Spawner), opts ...Option) {
	sp.Spawn(name, func(ctx context.Context, _ Spawner) error {
		return Run(ctx, subFn, opts...)
	})
}
