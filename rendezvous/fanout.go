package rendezvous

import (
	"context"

	"github.com/baxromumarov/scoped"
)

// FanOut distributes values from src across n output channels in
// round-robin order. Useful for spreading work across a fixed pool of
// downstream workers.
//
// FanOut panics if n is not positive.
func FanOut[T any](sp scoped.Spawner, src *Channel[T], n int) []*Channel[T] {
	if n <= 0 {
		panic("rendezvous: FanOut requires n > 0")
	}
	outs := make([]*Channel[T], n)
	for i := range outs {
		outs[i] = NewChannel[T](1)
	}

	sp.Go("rendezvous.FanOut", func(ctx context.Context) error {
		defer func() {
			for _, o := range outs {
				o.Close()
			}
		}()
		idx := 0
		for {
			res, err := src.Receive(ctx)
			if err != nil {
				return err
			}
			if res.Done {
				if res.Err != nil {
					for _, o := range outs {
						o.CloseWithError(res.Err)
					}
				}
				return nil
			}
			if err := outs[idx%n].Send(ctx, res.Value); err != nil {
				return err
			}
			idx++
		}
	})

	return outs
}
