package rendezvous

import (
	"context"

	"github.com/baxromumarov/scoped"
)

// Map spawns a task that reads every value from src, applies fn, and sends
// the result to the returned channel. The returned channel closes (with
// src's closing error, if any) once src closes or the spawned task's
// context is cancelled.
//
// Adapted from a raw chan pipeline to a rendezvous [Channel] pipeline
// running inside the caller's scope.
func Map[T, U any](sp scoped.Spawner, src *Channel[T], fn func(T) U) *Channel[U] {
	out := NewChannel[U](1)
	sp.Go("rendezvous.Map", func(ctx context.Context) error {
		defer out.Close()
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
			if err := out.Send(ctx, fn(res.Value)); err != nil {
				return err
			}
		}
	})
	return out
}

// Transform spawns a task that reads every value from src and passes it
// through fn, which may map it to a replacement value (ok == true) or
// drop it (ok == false). It generalizes [Map] by fusing the filter and
// map steps into a single pass.
func Transform[T, U any](sp scoped.Spawner, src *Channel[T], fn func(T) (U, bool)) *Channel[U] {
	out := NewChannel[U](1)
	sp.Go("rendezvous.Transform", func(ctx context.Context) error {
		defer out.Close()
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
			v, ok := fn(res.Value)
			if !ok {
				continue
			}
			if err := out.Send(ctx, v); err != nil {
				return err
			}
		}
	})
	return out
}
