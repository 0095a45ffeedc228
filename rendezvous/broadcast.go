package rendezvous

import (
	"context"

	"github.com/baxromumarov/scoped"
)

// Broadcast is a buffered variant of [Tee]: each output channel has its
// own bufSize-element buffer, so a momentarily slow consumer absorbs a
// burst instead of immediately blocking delivery to the others.
//
// Broadcast panics if n or bufSize is not positive.
func Broadcast[T any](sp scoped.Spawner, src *Channel[T], n int, bufSize int) []*Channel[T] {
	if n <= 0 {
		panic("rendezvous: Broadcast requires n > 0")
	}
	if bufSize <= 0 {
		panic("rendezvous: Broadcast requires bufSize > 0")
	}
	outs := make([]*Channel[T], n)
	for i := range outs {
		outs[i] = NewChannel[T](bufSize)
	}

	sp.Go("rendezvous.Broadcast", func(ctx context.Context) error {
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
