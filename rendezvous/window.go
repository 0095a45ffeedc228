package rendezvous

import (
	"context"
	"time"

	"github.com/baxromumarov/scoped"
)

// WindowMode specifies whether [Window] produces tumbling or sliding
// windows.
type WindowMode int

const (
	// Tumbling windows are non-overlapping: each item belongs to exactly
	// one window.
	Tumbling WindowMode = iota
	// Sliding windows overlap: each emitted batch contains all items from
	// the last duration.
	Sliding
)

// Window collects items from src into time-based windows. In Tumbling
// mode, items are collected for duration then emitted as a batch. In
// Sliding mode, each emitted batch contains all items received within the
// last duration, re-emitted at every tick.
//
// Driven by a [chanPump].
//
// Window panics if duration <= 0 or mode is unknown.
func Window[T any](sp scoped.Spawner, src *Channel[T], duration time.Duration, mode WindowMode) *Channel[[]T] {
	if duration <= 0 {
		panic("rendezvous: Window requires duration > 0")
	}
	out := NewChannel[[]T](1)
	switch mode {
	case Tumbling:
		pump := newChanPump(sp, src)
		sp.Go("rendezvous.Window.tumbling", func(ctx context.Context) error {
			defer out.Close()
			return windowTumbling(ctx, pump, out, duration)
		})
	case Sliding:
		pump := newChanPump(sp, src)
		sp.Go("rendezvous.Window.sliding", func(ctx context.Context) error {
			defer out.Close()
			return windowSliding(ctx, pump, out, duration)
		})
	default:
		panic("rendezvous: unknown WindowMode")
	}
	return out
}

func windowTumbling[T any](ctx context.Context, pump *chanPump[T], out *Channel[[]T], duration time.Duration) error {
	ticker := time.NewTicker(duration)
	defer ticker.Stop()

	var batch []T
	for {
		select {
		case item, ok := <-pump.items():
			if !ok {
				return ctx.Err()
			}
			if item.done {
				if len(batch) > 0 {
					if err := out.Send(ctx, batch); err != nil {
						return err
					}
				}
				return item.err
			}
			batch = append(batch, item.val)

		case <-ticker.C:
			if len(batch) > 0 {
				if err := out.Send(ctx, batch); err != nil {
					return err
				}
				batch = nil
			}

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

type timestamped[T any] struct {
	val  T
	when time.Time
}

func windowSliding[T any](ctx context.Context, pump *chanPump[T], out *Channel[[]T], duration time.Duration) error {
	ticker := time.NewTicker(duration)
	defer ticker.Stop()

	var items []timestamped[T]
	for {
		select {
		case item, ok := <-pump.items():
			if !ok {
				return ctx.Err()
			}
			if item.done {
				cutoff := time.Now().Add(-duration)
				var batch []T
				for _, it := range items {
					if !it.when.Before(cutoff) {
						batch = append(batch, it.val)
					}
				}
				if len(batch) > 0 {
					if err := out.Send(ctx, batch); err != nil {
						return err
					}
				}
				return item.err
			}
			items = append(items, timestamped[T]{val: item.val, when: time.Now()})

		case <-ticker.C:
			cutoff := time.Now().Add(-duration)
			start := 0
			for start < len(items) && items[start].when.Before(cutoff) {
				start++
			}
			items = items[start:]
			if len(items) > 0 {
				batch := make([]T, len(items))
				for i, it := range items {
					batch[i] = it.val
				}
				if err := out.Send(ctx, batch); err != nil {
					return err
				}
			}

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
