package scoped

import "context"

// Result holds the outcome of an asynchronous task that produces a typed
// value. Create one via [SpawnResult].
type Result[T any] struct {
	ch chan result[T]
}

type result[T any] struct {
	val T
	err error
}

// SpawnResult spawns a named task that returns a typed value and wraps the
// outcome in a [Result]. The task runs within the given [Scope], inheriting
// its lifecycle and error policy.
/* Example:
	r := scoped.SpawnResult(s, "compute", func(ctx context.Context) (int, error) {
    	return expensiveCalc(ctx)
	})
	val, err := r.Wait()
*/
func SpawnResult[T any](
	sp Spawner,
	name string,
	fn func(ctx context.Context) (T, error),
) *Result[T] {
	if sp == nil {
		panic("scoped: SpawnResult requires non-nil spawner")
	}
	if fn == nil {
		panic("scoped: SpawnResult requires non-nil fn")
	}
	r := &Result[T]{ch: make(chan result[T], 1)}

	sp.Spawn(name, func(ctx context.Context, _ Spawner) (err error) {
		var zero T

		// If fn panics, the scope's own exec wrapper will still recover and
		// record a PanicError as this task's error; publish the panic as a
		// *PanicError result here so Wait never blocks on a result that a
		// panic prevented from reaching r.ch.
		defer func() {
			if p := recover(); p != nil {
				r.ch <- result[T]{zero, newPanicError(p)}
				panic(p)
			}
		}()

		v, taskErr := fn(ctx)
		r.ch <- result[T]{v, taskErr}
		return taskErr
	})

	return r
}

// GoResult is an alias for [SpawnResult], named to mirror the [Spawner.Go]
// convenience method the way SpawnResult mirrors [Spawner.Spawn].
func GoResult[T any](
	sp Spawner,
	name string,
	fn func(ctx context.Context) (T, error),
) *Result[T] {
	return SpawnResult(sp, name, fn)
}

// Wait blocks until the task completes.
// It does not return early on scope cancellation.
// It returns the task's value and error.
//
// Note: Since Spawner does not expose the scope's context, this Wait
// only waits for the task to complete.

func (r *Result[T]) Wait() (T, error) {
	res := <-r.ch
	return res.val, res.err
}

// Done returns the channel on which the task's outcome is delivered once
// it completes. The channel is never closed, and it holds a single value:
// once that value has been received (here or by [Result.Wait]), it is not
// available again.
func (r *Result[T]) Done() <-chan result[T] {
	return r.ch
}
