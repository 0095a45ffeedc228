package rendezvous

import (
	"context"
	"time"

	"github.com/baxromumarov/scoped"
)

// FlushReason indicates why a batch was flushed by [BufferWithReason].
type FlushReason int

const (
	// FlushSize means the batch reached the configured max size.
	FlushSize FlushReason = iota
	// FlushTimeout means the timeout elapsed since the first item in the batch.
	FlushTimeout
	// FlushClose means src closed with a partial batch remaining.
	FlushClose
)

// BatchResult holds a flushed batch and the reason it was flushed.
type BatchResult[T any] struct {
	Items  []T
	Reason FlushReason
}

// Buffer collects values from src into slices of up to size elements. A
// batch is emitted when it reaches size elements or when timeout elapses
// since the first item in the current batch, whichever comes first. Any
// partial batch is flushed when src closes.
//
// Buffer panics if size or timeout is not positive.
func Buffer[T any](sp scoped.Spawner, src *Channel[T], size int, timeout time.Duration) *Channel[[]T] {
	out := NewChannel[[]T](1)
	pump := newChanPump(sp, src)
	sp.Go("rendezvous.Buffer", func(ctx context.Context) error {
		defer out.Close()
		return runBuffer(ctx, pump, size, timeout, func(batch []T, _ FlushReason) error {
			return out.Send(ctx, batch)
		})
	})
	return out
}

// BufferWithReason works like [Buffer] but tags each emitted batch with
// the [FlushReason] that produced it.
func BufferWithReason[T any](sp scoped.Spawner, src *Channel[T], size int, timeout time.Duration) *Channel[BatchResult[T]] {
	out := NewChannel[BatchResult[T]](1)
	pump := newChanPump(sp, src)
	sp.Go("rendezvous.BufferWithReason", func(ctx context.Context) error {
		defer out.Close()
		return runBuffer(ctx, pump, size, timeout, func(batch []T, reason FlushReason) error {
			return out.Send(ctx, BatchResult[T]{Items: batch, Reason: reason})
		})
	})
	return out
}

// runBuffer is the shared batching engine behind [Buffer] and
// [BufferWithReason]: a select loop over a [chanPump] and a timer that
// flushes the current batch on whichever comes first, size or timeout.
func runBuffer[T any](ctx context.Context, pump *chanPump[T], size int, timeout time.Duration, emit func([]T, FlushReason) error) error {
	if size <= 0 {
		panic("rendezvous: Buffer requires size > 0")
	}
	if timeout <= 0 {
		panic("rendezvous: Buffer requires timeout > 0")
	}

	batch := make([]T, 0, size)
	var timer *time.Timer
	var timerC <-chan time.Time

	flush := func(reason FlushReason) error {
		if len(batch) == 0 {
			return nil
		}
		if err := emit(batch, reason); err != nil {
			return err
		}
		batch = make([]T, 0, size)
		if timer != nil {
			timer.Stop()
			timerC = nil
		}
		return nil
	}

	for {
		select {
		case item, ok := <-pump.items():
			if !ok {
				return ctx.Err()
			}
			if item.done {
				if err := flush(FlushClose); err != nil {
					return err
				}
				return item.err
			}
			batch = append(batch, item.val)
			if len(batch) == 1 {
				timer = time.NewTimer(timeout)
				timerC = timer.C
			}
			if len(batch) >= size {
				if err := flush(FlushSize); err != nil {
					return err
				}
			}

		case <-timerC:
			if err := flush(FlushTimeout); err != nil {
				return err
			}

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
