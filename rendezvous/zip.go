package rendezvous

import (
	"context"

	"github.com/baxromumarov/scoped"
)

// Pair holds two values zipped together from two channels.
type Pair[A, B any] struct {
	First  A
	Second B
}

// Zip combines values from a and b pairwise: the n-th value from the
// returned channel pairs the n-th value of a with the n-th value of b.
// The returned channel closes as soon as either side closes (with that
// side's closing error, if any).
//
// A single sequential-read worker handles both sides rather than one
// goroutine per side, since each output pair needs both a value and a b
// value before anything can be sent.
func Zip[A, B any](sp scoped.Spawner, a *Channel[A], b *Channel[B]) *Channel[Pair[A, B]] {
	out := NewChannel[Pair[A, B]](1)
	sp.Go("rendezvous.Zip", func(ctx context.Context) error {
		defer out.Close()
		for {
			ra, err := a.Receive(ctx)
			if err != nil {
				return err
			}
			if ra.Done {
				if ra.Err != nil {
					out.CloseWithError(ra.Err)
				}
				return nil
			}

			rb, err := b.Receive(ctx)
			if err != nil {
				return err
			}
			if rb.Done {
				if rb.Err != nil {
					out.CloseWithError(rb.Err)
				}
				return nil
			}

			if err := out.Send(ctx, Pair[A, B]{First: ra.Value, Second: rb.Value}); err != nil {
				return err
			}
		}
	})
	return out
}
