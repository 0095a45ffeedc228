package rendezvous

import (
	"context"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/baxromumarov/scoped"
)

// Distinct forwards every value from src except ones already seen,
// comparing with Go's native equality. Grounded on the observer/signal
// membership sets in the retrieval pack's flimsy package, which reach for
// golang-set/v2 rather than a hand-rolled map for exactly this kind of
// "have I seen this before" membership test.
func Distinct[T comparable](sp scoped.Spawner, src *Channel[T]) *Channel[T] {
	out := NewChannel[T](1)
	sp.Go("rendezvous.Distinct", func(ctx context.Context) error {
		defer out.Close()
		seen := mapset.NewSet[T]()
		for {
			res, err := src.Receive(ctx)
			if err != nil {
				return err
			}
			if res.Done {
				if res.Err != nil {
					out.CloseWithError(res.Err)
				}
				return nil
			}
			if seen.Contains(res.Value) {
				continue
			}
			seen.Add(res.Value)
			if err := out.Send(ctx, res.Value); err != nil {
				return err
			}
		}
	})
	return out
}
