package rendezvous

import (
	"context"
	"time"

	"github.com/baxromumarov/scoped"
)

// Throttle rate-limits values from src to at most n items per duration,
// using a token bucket: n tokens are available initially (allowing an
// initial burst), and one token is replenished every per/n interval.
// Driven by a [chanPump].
//
// Throttle panics if n or per is not positive.
func Throttle[T any](sp scoped.Spawner, src *Channel[T], n int, per time.Duration) *Channel[T] {
	if n <= 0 {
		panic("rendezvous: Throttle requires n > 0")
	}
	if per <= 0 {
		panic("rendezvous: Throttle requires per > 0")
	}
	out := NewChannel[T](1)
	pump := newChanPump(sp, src)
	sp.Go("rendezvous.Throttle", func(ctx context.Context) error {
		defer out.Close()

		interval := per / time.Duration(n)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		tokens := n
		for {
			if tokens == 0 {
				select {
				case <-ticker.C:
					tokens++
					continue
				case <-ctx.Done():
					return ctx.Err()
				}
			}

			select {
			case item, ok := <-pump.items():
				if !ok {
					return ctx.Err()
				}
				if item.done {
					return item.err
				}
				tokens--
				if err := out.Send(ctx, item.val); err != nil {
					return err
				}

			case <-ticker.C:
				if tokens < n {
					tokens++
				}

			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})
	return out
}
