//! Stream functionality isn't ready for production use.
package scoped

import (
	"container/heap"
	"context"
	"fmt"
	"io"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// ErrStreamGap is returned when an ordered stream terminates with missing items.
var ErrStreamGap = fmt.Errorf("stream terminated with missing results (gap)")

// Stream represents a structured, pull-based data stream.
//
// Note: Streams are single-consumer. Next() and other terminal methods
// must not be called concurrently.
type Stream[T any] struct {
	next func(ctx context.Context) (T, error)
	stop func()
	err  error
	mu   sync.Mutex

	reads     int64
	errs      int64
	startedAt time.Time
	lastAt    time.Time
}

// NewStream creates a new stream from an iterator function.
func NewStream[T any](next func(context.Context) (T, error)) *Stream[T] {
	if next == nil {
		panic("scoped: NewStream requires non-nil next function")
	}
	return &Stream[T]{next: next}
}

// Next returns the next item in the stream.
// Returns io.EOF when the stream is exhausted.
func (s *Stream[T]) Next(ctx context.Context) (T, error) {
	s.touchStart()
	val, err := s.next(ctx)
	if err != nil && err != io.EOF {
		s.setError(err)
		s.mu.Lock()
		s.errs++
		s.mu.Unlock()
	}
	if err == nil {
		s.mu.Lock()
		s.reads++
		s.lastAt = time.Now()
		s.mu.Unlock()
	}
	return val, err
}

func (s *Stream[T]) touchStart() {
	s.mu.Lock()
	if s.startedAt.IsZero() {
		s.startedAt = time.Now()
	}
	s.mu.Unlock()
}

// Err returns the final aggregated error after completion.
func (s *Stream[T]) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Stream[T]) setError(err error) {
	if err == nil || err == io.EOF {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

// stopNow invokes the stream's stop hook, if any, exactly once per call site.
// Used by combinators (Zip, Scan) to propagate early termination to sources
// they no longer need to read from.
func (s *Stream[T]) stopNow() {
	if s.stop != nil {
		s.stop()
	}
}

func (s *Stream[T]) Filter(fn func(T) bool) *Stream[T] {
	if fn == nil {
		panic("scoped: Filter requires non-nil predicate")
	}
	return &Stream[T]{
		next: func(ctx context.Context) (T, error) {
			for {
				val, err := s.Next(ctx)
				if err != nil {
					return val, err
				}
				if fn(val) {
					return val, nil
				}
			}
		},
		stop: s.stopNow,
	}
}

// Take limits the stream to n items.
func (s *Stream[T]) Take(n int) *Stream[T] {
	if n < 0 {
		panic("scoped: Take requires n >= 0")
	}
	var idx int
	stopped := false
	return &Stream[T]{
		next: func(ctx context.Context) (T, error) {
			if idx >= n {
				if !stopped {
					stopped = true
					s.stopNow()
				}
				var zero T
				return zero, io.EOF
			}
			val, err := s.Next(ctx)
			if err != nil {
				return val, err
			}
			idx++
			if idx >= n && !stopped {
				stopped = true
				s.stopNow()
			}
			return val, nil
		},
		stop: func() {
			if !stopped {
				stopped = true
				s.stopNow()
			}
		},
	}
}

// StreamOptions configures parallel stream processing.
type StreamOptions struct {
	MaxWorkers int
	BufferSize int
	Ordered    bool
}

// FromSlice creates a stream from a slice.
func FromSlice[T any](items []T) *Stream[T] {
	cp := make([]T, len(items))
	copy(cp, items)
	return FromSliceRef(cp)
}

// FromSliceRef creates a stream directly over items, without the
// defensive copy [FromSlice] makes. Faster and allocation-free, but the
// caller must not mutate items while the stream is being read.
func FromSliceRef[T any](items []T) *Stream[T] {
	var idx int
	return NewStream(func(ctx context.Context) (T, error) {
		select {
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		default:
		}
		if idx >= len(items) {
			var zero T
			return zero, io.EOF
		}
		val := items[idx]
		idx++
		return val, nil
	})
}

// FromChan creates a stream from a channel. A nil channel behaves like an
// already-exhausted stream.
func FromChan[T any](ch <-chan T) *Stream[T] {
	return NewStream(func(ctx context.Context) (T, error) {
		if ch == nil {
			var zero T
			return zero, io.EOF
		}
		select {
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		case v, ok := <-ch:
			if !ok {
				var zero T
				return zero, io.EOF
			}
			return v, nil
		}
	})
}

// FromFunc creates a stream from a function.
func FromFunc[T any](fn func(context.Context) (T, error)) *Stream[T] {
	return NewStream(fn)
}

// Empty returns a stream that yields io.EOF immediately.
func Empty[T any]() *Stream[T] {
	return NewStream(func(ctx context.Context) (T, error) {
		var zero T
		return zero, io.EOF
	})
}

// Map transforms a stream using a function.
// Note: This is a function and not a method because Go does not support
// generic methods on generic types.
func Map[A, B any](s *Stream[A], fn func(context.Context, A) (B, error)) *Stream[B] {
	if s == nil {
		panic("scoped: Map requires non-nil source stream")
	}
	if fn == nil {
		panic("scoped: Map requires non-nil mapper")
	}
	return &Stream[B]{
		next: func(ctx context.Context) (B, error) {
			val, err := s.Next(ctx)
			if err != nil {
				var zero B
				return zero, err
			}
			return fn(ctx, val)
		},
		stop: s.stopNow,
	}
}

// Batch groups items into slices of size n.
func Batch[T any](s *Stream[T], n int) *Stream[[]T] {
	if s == nil {
		panic("scoped: Batch requires non-nil source stream")
	}
	if n <= 0 {
		panic("scoped: Batch requires n > 0")
	}
	return &Stream[[]T]{
		next: func(ctx context.Context) ([]T, error) {
			var batch []T
			for i := 0; i < n; i++ {
				val, err := s.Next(ctx)
				if err != nil {
					if err == io.EOF {
						if len(batch) > 0 {
							return batch, nil
						}
						return nil, io.EOF
					}
					return nil, err
				}
				batch = append(batch, val)
			}
			return batch, nil
		},
		stop: s.stopNow,
	}
}

// ParallelMap transforms a stream concurrently, spawning workers on sp.
func ParallelMap[A, B any](
	ctx context.Context,
	sp Spawner,
	src *Stream[A],
	opts StreamOptions,
	fn func(context.Context, A) (B, error),
) *Stream[B] {
	if sp == nil {
		panic("scoped: ParallelMap requires non-nil spawner")
	}
	if src == nil {
		panic("scoped: ParallelMap requires non-nil source")
	}
	if fn == nil {
		panic("scoped: ParallelMap requires non-nil mapper")
	}
	if opts.BufferSize < 0 {
		panic("scoped: ParallelMap requires non-negative buffer size")
	}
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = runtime.NumCPU()
	}

	resCh := make(chan indexedResult[B], opts.BufferSize+opts.MaxWorkers)
	ctx, cancel := context.WithCancel(ctx)
	out := &Stream[B]{stop: cancel}
	out.next = makeParallelNext(out, opts, resCh)

	sp.Go("parallel-map-dispatcher", func(scopeCtx context.Context) error {
		defer close(resCh)
		defer cancel()
		defer context.AfterFunc(scopeCtx, cancel)()
		var wg sync.WaitGroup
		sem := make(chan struct{}, opts.MaxWorkers)
		var inputIdx atomic.Int64

		for {
			val, err := src.Next(ctx)
			if err != nil {
				if err != io.EOF {
					out.setError(err)
				}
				break
			}

			idx := inputIdx.Add(1) - 1
			wg.Add(1)

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				wg.Done()
				out.setError(ctx.Err())
				wg.Wait()
				return nil
			}

			sp.Go("parallel-map-worker", func(context.Context) error {
				defer func() { <-sem; wg.Done() }()
				res, err := fn(ctx, val)
				select {
				case resCh <- indexedResult[B]{idx: idx, val: res, err: err}:
				case <-ctx.Done():
				}
				return nil
			})
		}
		wg.Wait()
		return nil
	})

	return out
}

func makeParallelNext[B any](
	out *Stream[B],
	opts StreamOptions,
	resCh chan indexedResult[B],
) func(context.Context) (B, error) {
	var nextIdx int64
	var h indexedResultHeap[B]

	return func(ctx context.Context) (B, error) {
		for {
			if opts.Ordered && len(h) > 0 && h[0].idx == nextIdx {
				res := heap.Pop(&h).(indexedResult[B])
				nextIdx++
				if res.err != nil && res.err != io.EOF {
					out.setError(res.err)
				}
				return res.val, res.err
			}

			select {
			case <-ctx.Done():
				var zero B
				return zero, ctx.Err()
			case res, ok := <-resCh:
				if !ok {
					if opts.Ordered && len(h) > 0 {
						if h[0].idx == nextIdx {
							res := heap.Pop(&h).(indexedResult[B])
							nextIdx++
							if res.err != nil && res.err != io.EOF {
								out.setError(res.err)
							}
							return res.val, res.err
						}
						for len(h) > 0 {
							res := heap.Pop(&h).(indexedResult[B])
							if res.err != nil {
								out.setError(res.err)
								return res.val, res.err
							}
						}
						out.setError(ErrStreamGap)
						var zero B
						return zero, ErrStreamGap
					}
					var zero B
					return zero, io.EOF
				}

				if !opts.Ordered {
					if res.err != nil && res.err != io.EOF {
						out.setError(res.err)
					}
					return res.val, res.err
				}

				heap.Push(&h, res)
			}
		}
	}
}

type indexedResult[T any] struct {
	idx int64
	val T
	err error
}

type indexedResultHeap[T any] []indexedResult[T]

func (h indexedResultHeap[T]) Len() int           { return len(h) }
func (h indexedResultHeap[T]) Less(i, j int) bool { return h[i].idx < h[j].idx }
func (h indexedResultHeap[T]) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *indexedResultHeap[T]) Push(x any)        { *h = append(*h, x.(indexedResult[T])) }
func (h *indexedResultHeap[T]) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// ToSlice collects all items in the stream into a slice.
func (s *Stream[T]) ToSlice(ctx context.Context) ([]T, error) {
	var items []T
	for {
		val, err := s.Next(ctx)
		if err == io.EOF {
			return items, s.Err()
		}
		if err != nil {
			s.stopNow()
			return items, err
		}
		items = append(items, val)
	}
}

// ForEach applies a function to each item in the stream.
func (s *Stream[T]) ForEach(ctx context.Context, fn func(T) error) error {
	if fn == nil {
		panic("scoped: ForEach requires non-nil callback")
	}
	for {
		val, err := s.Next(ctx)
		if err == io.EOF {
			return s.Err()
		}
		if err != nil {
			return err
		}
		if err := fn(val); err != nil {
			return err
		}
	}
}

// ToChan sends all items in the stream to a channel.
// Note: This spawns an unscoped goroutine. It is the caller's responsibility
// to ensure the context is canceled or the channel is drained.
// Use ToChanScope for structured concurrency.
func (s *Stream[T]) ToChan(ctx context.Context) (<-chan T, <-chan error) {
	ch := make(chan T)
	errCh := make(chan error, 1)
	go func() {
		defer close(ch)
		defer close(errCh)
		for {
			val, err := s.Next(ctx)
			if err == io.EOF {
				errCh <- s.Err()
				return
			}
			if err != nil {
				errCh <- err
				return
			}
			select {
			case ch <- val:
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			}
		}
	}()
	return ch, errCh
}

// ToChanScope sends all items in the stream to a channel within a scope.
// The goroutine is managed by sp and will stop when the stream is exhausted
// or the scope is canceled.
func (s *Stream[T]) ToChanScope(sp Spawner) (<-chan T, <-chan error) {
	if sp == nil {
		panic("scoped: ToChanScope requires non-nil spawner")
	}
	ch := make(chan T)
	errCh := make(chan error, 1)
	sp.Go("stream-to-chan", func(ctx context.Context) error {
		defer close(ch)
		defer close(errCh)
		for {
			val, err := s.Next(ctx)
			if err == io.EOF {
				errCh <- s.Err()
				return nil
			}
			if err != nil {
				errCh <- err
				return err
			}
			select {
			case ch <- val:
			case <-ctx.Done():
				errCh <- ctx.Err()
				return ctx.Err()
			}
		}
	})
	return ch, errCh
}

// Collect is an alias for ToSlice.
func (s *Stream[T]) Collect(ctx context.Context) ([]T, error) {
	return s.ToSlice(ctx)
}

// Skip skips the first n items in the stream.
func (s *Stream[T]) Skip(n int) *Stream[T] {
	if n < 0 {
		panic("scoped: Skip requires n >= 0")
	}
	var skipped int
	return &Stream[T]{
		next: func(ctx context.Context) (T, error) {
			for skipped < n {
				_, err := s.Next(ctx)
				if err != nil {
					var zero T
					return zero, err
				}
				skipped++
			}
			return s.Next(ctx)
		},
		stop: s.stopNow,
	}
}

// Peek allows inspecting items as they pass through the stream.
func (s *Stream[T]) Peek(fn func(T)) *Stream[T] {
	if fn == nil {
		panic("scoped: Peek requires non-nil callback")
	}
	return &Stream[T]{
		next: func(ctx context.Context) (T, error) {
			val, err := s.Next(ctx)
			if err == nil {
				fn(val)
			}
			return val, err
		},
		stop: s.stopNow,
	}
}

// Count counts the number of items in the stream.
func (s *Stream[T]) Count(ctx context.Context) (int, error) {
	var count int
	for {
		_, err := s.Next(ctx)
		if err == io.EOF {
			return count, s.Err()
		}
		if err != nil {
			return count, err
		}
		count++
	}
}
