package scoped

import (
	"context"
	"io"
)

// Pair holds two values paired from two streams.
// It is used by [Zip].
type Pair[A, B any] struct {
	First  A
	Second B
}

// Scan returns a stream that applies fn cumulatively to each item,
// emitting each intermediate accumulation. The first emitted value is
// fn(initial, firstItem).
//
// This is the streaming counterpart of [Reduce]: Reduce produces a
// single final value, while Scan produces a stream of running values.
//
// Panics if s is nil or fn is nil.
func Scan[T, R any](s *Stream[T], initial R, fn func(R, T) R) *Stream[R] {
	if s == nil {
		panic("scoped: Scan requires non-nil source stream")
	}
	if fn == nil {
		panic("scoped: Scan requires non-nil accumulator")
	}
	acc := initial
	return &Stream[R]{
		next: func(ctx context.Context) (R, error) {
			val, err := s.Next(ctx)
			if err != nil {
				var zero R
				return zero, err
			}
			acc = fn(acc, val)
			return acc, nil
		},
		stop: s.stopNow,
	}
}

// Zip pairs items from two streams element-by-element. The resulting
// stream emits [Pair] values and stops as soon as either input stream
// is exhausted (EOF). When one stream ends, the other is stopped
// immediately.
//
// Both streams are read sequentially (a first, then b) within each
// Next call — this is safe because streams are single-consumer.
//
// Panics if a or b is nil.
func Zip[A, B any](a *Stream[A], b *Stream[B]) *Stream[Pair[A, B]] {
	if a == nil {
		panic("scoped: Zip requires non-nil first stream")
	}
	if b == nil {
		panic("scoped: Zip requires non-nil second stream")
	}
	return &Stream[Pair[A, B]]{
		next: func(ctx context.Context) (Pair[A, B], error) {
			va, err := a.Next(ctx)
			if err != nil {
				b.stopNow()
				var zero Pair[A, B]
				return zero, err
			}
			vb, err := b.Next(ctx)
			if err != nil {
				a.stopNow()
				var zero Pair[A, B]
				return zero, err
			}
			return Pair[A, B]{First: va, Second: vb}, nil
		},
		stop: func() {
			a.stopNow()
			b.stopNow()
		},
	}
}

// Reduce drains s, folding every item into acc via fn, and returns the
// final accumulation. On a source error, Reduce returns the accumulation
// built so far together with the error.
//
// Panics if s is nil or fn is nil.
func Reduce[T, R any](ctx context.Context, s *Stream[T], initial R, fn func(R, T) R) (R, error) {
	if s == nil {
		panic("scoped: Reduce requires non-nil source stream")
	}
	if fn == nil {
		panic("scoped: Reduce requires non-nil accumulator")
	}
	acc := initial
	for {
		val, err := s.Next(ctx)
		if err == io.EOF {
			return acc, s.Err()
		}
		if err != nil {
			return acc, err
		}
		acc = fn(acc, val)
	}
}

// FlatMap maps each item of s to a sub-stream via fn and concatenates
// the sub-streams in order. A nil sub-stream is treated as empty and
// skipped. If a sub-stream errors, FlatMap stops and surfaces that
// error.
//
// Panics if s is nil or fn is nil.
func FlatMap[A, B any](s *Stream[A], fn func(context.Context, A) *Stream[B]) *Stream[B] {
	if s == nil {
		panic("scoped: FlatMap requires non-nil source stream")
	}
	if fn == nil {
		panic("scoped: FlatMap requires non-nil mapper")
	}
	var cur *Stream[B]
	return &Stream[B]{
		next: func(ctx context.Context) (B, error) {
			for {
				if cur != nil {
					val, err := cur.Next(ctx)
					if err == io.EOF {
						cur = nil
						continue
					}
					return val, err
				}
				val, err := s.Next(ctx)
				if err != nil {
					var zero B
					return zero, err
				}
				cur = fn(ctx, val)
			}
		},
		stop: func() {
			if cur != nil {
				cur.stopNow()
			}
			s.stopNow()
		},
	}
}

// Distinct forwards every item from s except ones already seen,
// comparing with Go's native equality.
//
// Panics if s is nil.
func Distinct[T comparable](s *Stream[T]) *Stream[T] {
	if s == nil {
		panic("scoped: Distinct requires non-nil source stream")
	}
	seen := make(map[T]struct{})
	return &Stream[T]{
		next: func(ctx context.Context) (T, error) {
			for {
				val, err := s.Next(ctx)
				if err != nil {
					return val, err
				}
				if _, ok := seen[val]; ok {
					continue
				}
				seen[val] = struct{}{}
				return val, nil
			}
		},
		stop: s.stopNow,
	}
}

// Repeat returns a stream that yields v exactly n times, or forever if
// n is negative.
func Repeat[T any](v T, n int) *Stream[T] {
	count := 0
	return NewStream(func(ctx context.Context) (T, error) {
		select {
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		default:
		}
		if n >= 0 && count >= n {
			var zero T
			return zero, io.EOF
		}
		count++
		return v, nil
	})
}

// Generate returns an infinite stream starting at seed, where each next
// value is fn(previous). Typically paired with [Stream.Take] or
// [Stream.TakeWhile].
//
// Panics if fn is nil.
func Generate[T any](seed T, fn func(T) T) *Stream[T] {
	if fn == nil {
		panic("scoped: Generate requires non-nil fn")
	}
	cur := seed
	first := true
	return NewStream(func(ctx context.Context) (T, error) {
		select {
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		default:
		}
		if first {
			first = false
			return cur, nil
		}
		cur = fn(cur)
		return cur, nil
	})
}

// TakeWhile forwards items from s until fn returns false, then stops.
//
// Panics if fn is nil.
func (s *Stream[T]) TakeWhile(fn func(T) bool) *Stream[T] {
	if fn == nil {
		panic("scoped: TakeWhile requires non-nil predicate")
	}
	done := false
	return &Stream[T]{
		next: func(ctx context.Context) (T, error) {
			if done {
				var zero T
				return zero, io.EOF
			}
			val, err := s.Next(ctx)
			if err != nil {
				return val, err
			}
			if !fn(val) {
				done = true
				s.stopNow()
				var zero T
				return zero, io.EOF
			}
			return val, nil
		},
		stop: func() {
			done = true
			s.stopNow()
		},
	}
}

// DropWhile skips items from s while fn returns true, then forwards
// everything from the first failing item onward.
//
// Panics if fn is nil.
func (s *Stream[T]) DropWhile(fn func(T) bool) *Stream[T] {
	if fn == nil {
		panic("scoped: DropWhile requires non-nil predicate")
	}
	dropping := true
	return &Stream[T]{
		next: func(ctx context.Context) (T, error) {
			for {
				val, err := s.Next(ctx)
				if err != nil {
					return val, err
				}
				if dropping && fn(val) {
					continue
				}
				dropping = false
				return val, nil
			}
		},
		stop: s.stopNow,
	}
}

// Any reports whether fn returns true for any item in the stream,
// stopping at the first match.
//
// Panics if fn is nil.
func (s *Stream[T]) Any(ctx context.Context, fn func(T) bool) (bool, error) {
	if fn == nil {
		panic("scoped: Any requires non-nil predicate")
	}
	for {
		val, err := s.Next(ctx)
		if err == io.EOF {
			return false, s.Err()
		}
		if err != nil {
			return false, err
		}
		if fn(val) {
			s.stopNow()
			return true, nil
		}
	}
}

// All reports whether fn returns true for every item in the stream.
// Vacuously true for an empty stream.
//
// Panics if fn is nil.
func (s *Stream[T]) All(ctx context.Context, fn func(T) bool) (bool, error) {
	if fn == nil {
		panic("scoped: All requires non-nil predicate")
	}
	for {
		val, err := s.Next(ctx)
		if err == io.EOF {
			return true, s.Err()
		}
		if err != nil {
			return false, err
		}
		if !fn(val) {
			s.stopNow()
			return false, nil
		}
	}
}

// First returns the first item in the stream, or the zero value if the
// stream is empty.
func (s *Stream[T]) First(ctx context.Context) (T, error) {
	val, err := s.Next(ctx)
	if err == io.EOF {
		var zero T
		return zero, s.Err()
	}
	if err != nil {
		var zero T
		return zero, err
	}
	s.stopNow()
	return val, nil
}

// Last drains the stream and returns the final item, or the zero value
// if the stream is empty.
func (s *Stream[T]) Last(ctx context.Context) (T, error) {
	var last T
	for {
		val, err := s.Next(ctx)
		if err == io.EOF {
			return last, s.Err()
		}
		if err != nil {
			var zero T
			return zero, err
		}
		last = val
	}
}
