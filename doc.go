// Package scoped provides structured concurrency primitives for Go.
//
// Structured concurrency ensures that concurrent tasks have well-defined
// lifecycles: they are spawned and joined within a clear scope, preventing
// goroutine leaks, orphaned tasks, and unpredictable control flow.
//
// # Running Tasks
//
// The primary entry point is [Run], which creates a scope, executes a
// function that spawns tasks via [Spawner], and waits for all tasks to
// complete before returning:
//
//	err := scoped.Run(ctx, func(sp scoped.Spawner) {
//	    sp.Go("fetch", func(ctx context.Context) error {
//	        return fetch(ctx)
//	    })
//	    sp.Spawn("process", func(ctx context.Context, sub scoped.Spawner) error {
//	        sub.Go("step-1", step1)
//	        return nil
//	    })
//	})
//
// Use [Spawner.Go] for simple tasks and [Spawner.Spawn] when the task
// needs to spawn sub-tasks of its own.
//
// For manual lifecycle control, [New] returns a [Scope] and root [Spawner]
// separately. The caller must call [Scope.Wait] to finalize.
// [Scope.WaitTimeout] adds a deadline to finalization.
//
// # Error Policies
//
// Error policies control how the scope reacts to task failures:
//
//   - [FailFast] (default): the first error cancels all sibling tasks.
//     [Scope.Wait] returns that first error.
//   - [Collect]: all errors are collected without cancelling siblings.
//     [Scope.Wait] returns all errors joined via [errors.Join].
//     Use [WithMaxErrors] to cap stored errors in high-volume scenarios.
//
// All task errors are wrapped in [*TaskError] for attribution. Use
// [IsTaskError], [TaskOf], [CauseOf], and [AllTaskErrors] to inspect them.
//
// # Helpers
//
// Convenience functions for common patterns:
//
//   - [ForEachSlice]: apply a function to every item in a slice concurrently.
//   - [MapSlice]: transform every item concurrently, preserving order.
//   - [SpawnResult]: spawn a task that returns a typed value via [Result].
//   - [SpawnTimeout]: spawn a task with a per-task deadline.
//   - [SpawnRetry]: spawn a task that retries on error with a fixed
//     backoff delay.
//   - [SpawnScope]: spawn a sub-scope as a single task, allowing
//     hierarchical error handling with independent policies.
//
// # Bounded Concurrency
//
// Use [WithLimit] to restrict the number of goroutines executing
// concurrently within a scope. Tasks beyond the limit wait for a slot,
// respecting context cancellation while waiting.
//
// For standalone use outside scopes, [Semaphore] provides a counting
// semaphore with [Semaphore.Acquire], [Semaphore.TryAcquire], and
// [Semaphore.Release].
//
// # Worker Pool
//
// [Pool] provides a reusable fixed-size worker pool. Tasks are submitted
// via [Pool.Submit] (blocking) or [Pool.TrySubmit] (non-blocking) and
// processed by a fixed number of goroutines. Call [Pool.Close] to drain
// the queue and collect errors.
//
// [Pool.Stats] returns a [PoolStats] snapshot including submitted,
// completed, errored and in-flight counts plus latency percentiles.
// [WithPoolMetrics] registers a periodic callback that receives the same
// snapshot on an interval.
//
// # Panic Recovery
//
// By default, a panic in any task is captured with its full stack trace
// and re-raised in [Scope.Wait]. Use [WithPanicAsError] to convert panics
// to [*PanicError] values and return them as regular errors instead.
//
// # Observability
//
// Register hooks for task lifecycle events:
//
//   - [WithOnStart]: called when each task begins executing.
//   - [WithOnDone]: called when each task finishes, with error and duration.
//   - [WithOnEvent]: unified hook receiving [TaskEvent] for every
//     completed task (done, errored, panicked, cancelled).
//   - [WithOnMetrics]: periodic [Metrics] snapshot of spawned, active,
//     completed, errored, panicked, and cancelled task counts.
//
// # Streams
//
// [Stream] provides a pull-based, composable data pipeline. Create streams
// with [NewStream], [FromSlice] (or the copy-free [FromSliceRef]),
// [FromChan], or [FromFunc]. Chains of
// [Stream.Filter], [Stream.Take], [Stream.Skip], [Stream.Peek], [Map], and
// [Batch] are evaluated lazily.
//
// Terminal methods ([Stream.ToSlice], [Stream.ForEach], [Stream.Count])
// return partial results alongside any error, following [io.Reader]
// conventions. [Stream.ToChanScope] bridges a stream to a channel within
// a scope. A stream records the first non-EOF error it sees, which
// [Stream.Err] returns.
//
// Streams are single-consumer; [Stream.Next] must not be called
// concurrently, and concurrent calls are not detected.
//
// # Spawner Lifetime
//
// Each task function receives a child [Spawner] that is valid only for the
// duration of the task. Storing the child Spawner and calling Spawn on it
// after the task returns will panic. This is by design: structured
// concurrency requires that all child tasks are scoped to their parent.
//
// # Synchronous Channels
//
// The github.com/baxromumarov/scoped/rendezvous subpackage provides a
// synchronous, bounded Channel with multi-channel Select, built on the
// same Spawner abstraction: fan-in/fan-out (Merge, Tee, FanOut,
// Broadcast), transformation pipelines (Map, Transform), rate limiting
// (Throttle), batching (Buffer, BufferWithReason), timing (Debounce,
// Window), combining (Zip), and factories (From, Tick, Timeout) all
// spawn their worker tasks into a caller-supplied Spawner rather than
// running as loose goroutines.
package scoped
