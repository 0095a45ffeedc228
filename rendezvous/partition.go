package rendezvous

import (
	"context"

	"github.com/baxromumarov/scoped"
)

// Partition splits items from src into two channels based on fn: items
// for which fn returns true go to match, the rest go to the second
// channel. Both close together, once src closes.
//
// Callers must drain both returned channels (typically from separate
// tasks); a single dispatcher task feeds both, so leaving one unconsumed
// blocks the other.
//
// Partition panics if fn is nil.
func Partition[T any](sp scoped.Spawner, src *Channel[T], fn func(T) bool) (match *Channel[T], rest *Channel[T]) {
	if fn == nil {
		panic("rendezvous: Partition requires non-nil predicate")
	}
	matchCh := NewChannel[T](1)
	restCh := NewChannel[T](1)

	sp.Go("rendezvous.Partition", func(ctx context.Context) error {
		defer matchCh.Close()
		defer restCh.Close()
		for {
			res, err := src.Receive(ctx)
			if err != nil {
				return err
			}
			if res.Done {
				if res.Err != nil {
					matchCh.CloseWithError(res.Err)
					restCh.CloseWithError(res.Err)
				}
				return nil
			}
			if fn(res.Value) {
				if err := matchCh.Send(ctx, res.Value); err != nil {
					return err
				}
			} else {
				if err := restCh.Send(ctx, res.Value); err != nil {
					return err
				}
			}
		}
	})

	return matchCh, restCh
}
