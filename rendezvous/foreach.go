package rendezvous

import "context"

// ForEach drains ch, calling fn for every delivered value, until ch closes
// or fn returns a non-nil error. It returns ch's closing error (nil for a
// normal close) or fn's error, whichever ends the loop first.
func ForEach[T any](ctx context.Context, ch *Channel[T], fn func(T) error) error {
	for {
		res, err := ch.Receive(ctx)
		if err != nil {
			return err
		}
		if res.Done {
			return res.Err
		}
		if err := fn(res.Value); err != nil {
			return err
		}
	}
}

// ToList drains ch into a slice, returning it alongside ch's closing
// error (nil for a normal close).
func ToList[T any](ctx context.Context, ch *Channel[T]) ([]T, error) {
	var out []T
	err := ForEach(ctx, ch, func(v T) error {
		out = append(out, v)
		return nil
	})
	return out, err
}
