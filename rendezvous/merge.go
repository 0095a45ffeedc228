package rendezvous

import (
	"context"
	"sync"

	"github.com/baxromumarov/scoped"
)

// Merge fans multiple channels into one: every value sent on any of chs is
// forwarded to the returned channel, in arrival order across sources
// (values from a single source keep that source's relative order; no
// ordering guarantee holds across sources). The returned channel closes
// once every source has closed; if more than one source closes with an
// error, only the first observed error is kept.
//
// One task per input feeds the shared output, each spawned within sp's
// scope rather than run as a loose goroutine.
func Merge[T any](sp scoped.Spawner, chs ...*Channel[T]) *Channel[T] {
	out := NewChannel[T](1)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)

	sp.Spawn("rendezvous.Merge", func(ctx context.Context, driverSp scoped.Spawner) error {
		for _, ch := range chs {
			ch := ch
			wg.Add(1)
			driverSp.Go("rendezvous.Merge.source", func(ctx context.Context) error {
				defer wg.Done()
				for {
					res, err := ch.Receive(ctx)
					if err != nil {
						return nil
					}
					if res.Done {
						if res.Err != nil {
							mu.Lock()
							if firstErr == nil {
								firstErr = res.Err
							}
							mu.Unlock()
						}
						return nil
					}
					if err := out.Send(ctx, res.Value); err != nil {
						return nil
					}
				}
			})
		}
		wg.Wait()
		if firstErr != nil {
			out.CloseWithError(firstErr)
		} else {
			out.Close()
		}
		return nil
	})

	return out
}
