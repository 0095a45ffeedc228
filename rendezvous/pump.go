package rendezvous

import (
	"context"

	"github.com/baxromumarov/scoped"
)

// pumpItem is one value pumped out of a [chanPump].
type pumpItem[T any] struct {
	val  T
	done bool   // true once src has closed; val is only meaningful when done is false
	err  error  // src's closing error, only meaningful when done
}

// chanPump spawns a worker task that drains src.Receive in a loop and
// republishes each result on a plain Go channel, so timing operators
// (Debounce, Throttle, Window, Buffer) can select between "src produced a
// value" and a timer without re-racing Receive's own cancellation
// semantics on every tick.
//
// The pump runs as its own task in sp, alongside the operator's own
// worker task, so the scope can see and await both.
//
// ch has capacity 1: at most one item waits in it unread, and the pump
// blocks on its next send until the consumer has read that one, so slow
// consumers apply backpressure all the way back to src.
type chanPump[T any] struct {
	ch <-chan pumpItem[T]
}

func newChanPump[T any](sp scoped.Spawner, src *Channel[T]) *chanPump[T] {
	out := make(chan pumpItem[T], 1)
	sp.Go("rendezvous.pump", func(ctx context.Context) error {
		defer close(out)
		for {
			res, err := src.Receive(ctx)
			if err != nil {
				return err
			}
			if res.Done {
				select {
				case out <- pumpItem[T]{done: true, err: res.Err}:
				case <-ctx.Done():
					return ctx.Err()
				}
				return nil
			}
			select {
			case out <- pumpItem[T]{val: res.Value}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})
	return &chanPump[T]{ch: out}
}

func (p *chanPump[T]) items() <-chan pumpItem[T] {
	return p.ch
}
