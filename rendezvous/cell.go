package rendezvous

import (
	"context"
	"sync/atomic"
)

// payloadKind distinguishes what a completed cell's slot carries.
type payloadKind int

const (
	payloadValue payloadKind = iota
	payloadForward
	payloadClosed
)

// cellPayload is whatever a cell's owner deposited into its slot.
type cellPayload[T any] struct {
	kind  payloadKind
	val   T
	fwd   *cell[T]
	err   error // only meaningful when kind == payloadClosed
}

// cell is a single-use rendezvous slot: an ownership flag and a one-shot
// slot holding either a delivered value, a forwarding pointer to a
// replacement cell, or a closed-channel signal.
//
// A cell is created by a party that found no immediate rendezvous. It is
// registered on one or more channels' waiting deques, then completed by
// whichever task wins the ownership CAS. The waiter that created it takes
// the slot's contents exactly once.
type cell[T any] struct {
	owned atomic.Bool
	slot  chan cellPayload[T]
}

func newCell[T any]() *cell[T] {
	return &cell[T]{slot: make(chan cellPayload[T], 1)}
}

// tryOwn CAS's the ownership flag from false to true. The caller becomes
// the cell's owner on a true result and must eventually call put,
// putClone, or putClosed exactly once.
func (c *cell[T]) tryOwn() bool {
	return c.owned.CompareAndSwap(false, true)
}

// put deposits a value. Must only be called by the owner.
func (c *cell[T]) put(v T) {
	c.slot <- cellPayload[T]{kind: payloadValue, val: v}
}

// putClone creates a fresh cell, deposits it as a forwarding pointer, and
// returns it. Used when the owner discovers it has nothing to deliver after
// all; the waiter follows the pointer to the replacement cell.
func (c *cell[T]) putClone() *cell[T] {
	next := newCell[T]()
	c.slot <- cellPayload[T]{kind: payloadForward, fwd: next}
	return next
}

// putClosed deposits a closed-channel signal (err == nil means Done).
func (c *cell[T]) putClosed(err error) {
	c.slot <- cellPayload[T]{kind: payloadClosed, err: err}
}

// take blocks for the slot's contents, unblocking early on ctx
// cancellation.
func (c *cell[T]) take(ctx context.Context) (cellPayload[T], error) {
	select {
	case p := <-c.slot:
		return p, nil
	case <-ctx.Done():
		return cellPayload[T]{}, ctx.Err()
	}
}

// forceTake blocks uninterruptibly for the slot's contents. Used only when
// the caller already knows the cell is owned and about to be completed (the
// owner has committed to exactly one put/putClone/putClosed call).
func (c *cell[T]) forceTake() cellPayload[T] {
	return <-c.slot
}
