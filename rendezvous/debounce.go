package rendezvous

import (
	"context"
	"time"

	"github.com/baxromumarov/scoped"
)

// Debounce emits the last value received from src after a quiet period of
// duration d with no further values. Each new value resets the timer.
// Driven by a [chanPump].
//
// Debounce panics if d <= 0.
func Debounce[T any](sp scoped.Spawner, src *Channel[T], d time.Duration) *Channel[T] {
	if d <= 0 {
		panic("rendezvous: Debounce requires d > 0")
	}
	out := NewChannel[T](1)
	pump := newChanPump(sp, src)
	sp.Go("rendezvous.Debounce", func(ctx context.Context) error {
		defer out.Close()

		var timer *time.Timer
		var timerC <-chan time.Time
		var latest T
		var hasValue bool

		for {
			select {
			case item, ok := <-pump.items():
				if !ok {
					return ctx.Err()
				}
				if item.done {
					if hasValue {
						if err := out.Send(ctx, latest); err != nil {
							return err
						}
					}
					return item.err
				}
				latest = item.val
				hasValue = true
				if timer == nil {
					timer = time.NewTimer(d)
					timerC = timer.C
				} else {
					if !timer.Stop() {
						select {
						case <-timerC:
						default:
						}
					}
					timer.Reset(d)
				}

			case <-timerC:
				if hasValue {
					if err := out.Send(ctx, latest); err != nil {
						return err
					}
					hasValue = false
				}

			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})
	return out
}
