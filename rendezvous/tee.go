package rendezvous

import (
	"context"

	"github.com/baxromumarov/scoped"
)

// Tee broadcasts every value from src to n independent output channels.
// All outputs receive every value and close together when src closes.
//
// A slow consumer on any one output blocks delivery to all the others,
// since a single dispatcher task feeds every output in turn.
//
// Tee panics if n is not positive.
func Tee[T any](sp scoped.Spawner, src *Channel[T], n int) []*Channel[T] {
	if n <= 0 {
		panic("rendezvous: Tee requires n > 0")
	}
	outs := make([]*Channel[T], n)
	for i := range outs {
		outs[i] = NewChannel[T](1)
	}

	sp.Go("rendezvous.Tee", func(ctx context.Context) error {
		defer func() {
			for _, o := range outs {
				o.Close()
			}
		}()
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
			for _, o := range outs {
				if err := o.Send(ctx, res.Value); err != nil {
					return err
				}
			}
		}
	})

	return outs
}
