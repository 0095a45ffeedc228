package rendezvous

import (
	"context"
	"time"

	"github.com/baxromumarov/scoped"
)

// From spawns a task that sends each of items, in order, then closes the
// returned channel. It is the variadic/slice factory form; see [FromFunc]
// for an iterator-driven source.
func From[T any](sp scoped.Spawner, items ...T) *Channel[T] {
	return FromFunc(sp, func() (T, bool) {
		if len(items) == 0 {
			var zero T
			return zero, false
		}
		v := items[0]
		items = items[1:]
		return v, true
	})
}

// FromFunc spawns a task that repeatedly calls next and sends every value
// it yields, until next reports ok == false, at which point the returned
// channel closes normally.
//
// Adapted from the pull-based [scoped.Stream]'s iterator-thunk shape into
// a push-based rendezvous [Channel] fed by a spawned task.
func FromFunc[T any](sp scoped.Spawner, next func() (v T, ok bool)) *Channel[T] {
	out := NewChannel[T](1)
	sp.Go("rendezvous.From", func(ctx context.Context) error {
		defer out.Close()
		for {
			v, ok := next()
			if !ok {
				return nil
			}
			if err := out.Send(ctx, v); err != nil {
				return err
			}
		}
	})
	return out
}

// Tick spawns a task that sends the current time on the returned channel
// once every interval, until the task's context is cancelled, at which
// point the channel closes with Done (not an error).
//
// Tick panics if interval <= 0.
func Tick(sp scoped.Spawner, interval time.Duration) *Channel[time.Time] {
	if interval <= 0 {
		panic("rendezvous: Tick requires interval > 0")
	}
	out := NewChannel[time.Time](1)
	sp.Go("rendezvous.Tick", func(ctx context.Context) error {
		defer out.Close()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case t := <-ticker.C:
				if err := out.Send(ctx, t); err != nil {
					return err
				}
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})
	return out
}

// Timeout spawns a task that sends v exactly once, after delay elapses,
// then closes the returned channel. If the task's context is cancelled
// before delay elapses, the channel closes with Done instead and v is
// never sent.
func Timeout[T any](sp scoped.Spawner, delay time.Duration, v T) *Channel[T] {
	out := NewChannel[T](1)
	sp.Go("rendezvous.Timeout", func(ctx context.Context) error {
		defer out.Close()
		select {
		case <-time.After(delay):
			return out.Send(ctx, v)
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	return out
}
