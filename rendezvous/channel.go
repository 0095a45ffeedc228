package rendezvous

import (
	"context"
	"errors"
	"sync/atomic"
)

// ErrClosed is returned by [Channel.Send] when the channel has already
// been closed (with [Channel.Close] or [Channel.CloseWithError]).
var ErrClosed = errors.New("rendezvous: send on closed channel")

// ClosedOr is the tagged result of [Channel.Receive]: either a delivered
// Value, or a sticky terminal state (Done, optionally carrying Err).
//
// The invariant is Err != nil implies Done == true; a nil Err with
// Done == true means the channel closed normally.
type ClosedOr[T any] struct {
	Value T
	Done  bool
	Err   error
}

// IsValue reports whether this result carries a delivered element.
func (r ClosedOr[T]) IsValue() bool { return !r.Done }

// IsError reports whether this result is a terminal Error state.
func (r ClosedOr[T]) IsError() bool { return r.Done && r.Err != nil }

type closedState struct {
	err error
}

// Channel is a bounded, synchronous FIFO channel: a bounded element buffer
// plus a waiting deque of rendezvous cells. Create one with [NewChannel].
//
// A Channel is safe for any number of concurrent senders, receivers, and
// select participants.
type Channel[T any] struct {
	elements *ringBuffer[T]
	waiting  *waiterDeque[T]
	closed   atomic.Pointer[closedState]
}

// NewChannel creates a Channel with the given buffer capacity. Capacity
// must be at least 1; NewChannel panics otherwise rather than silently
// clamping it.
func NewChannel[T any](capacity int) *Channel[T] {
	if capacity < 1 {
		panic("rendezvous: NewChannel requires capacity >= 1")
	}
	return &Channel[T]{
		elements: newRingBuffer[T](capacity),
		waiting:  newWaiterDeque[T](),
	}
}

// elementPoll, elementPeek, cellOffer, and cellCleanup are the
// package-internal primitives [Select] and [SelectNow] operate over;
// together they make *Channel[T] satisfy [Source].
func (c *Channel[T]) elementPoll() (T, bool)  { return c.elements.poll() }
func (c *Channel[T]) elementPeek() (T, bool)  { return c.elements.peek() }
func (c *Channel[T]) cellCleanup(cl *cell[T]) { c.waiting.remove(cl) }

// cellOffer registers cl as a waiter. A cell offered to a channel that is
// already closed is completed with the terminal state right away, since
// closeWith only wakes the waiters registered before the close.
func (c *Channel[T]) cellOffer(cl *cell[T]) {
	c.waiting.offer(cl)
	if st := c.closed.Load(); st != nil {
		c.waiting.remove(cl)
		if cl.tryOwn() {
			cl.putClosed(st.err)
		}
	}
}

// Send delivers v, pairing with a waiting receiver directly if one is
// available, or buffering into the bounded queue otherwise. Send blocks
// while the queue is full and no waiter is available; it unblocks early if
// ctx is cancelled, in which case v is not delivered.
//
// Send returns [ErrClosed] if the channel has already been closed.
func (c *Channel[T]) Send(ctx context.Context, v T) error {
	if c.closed.Load() != nil {
		return ErrClosed
	}

	for {
		w := c.waiting.poll()
		if w == nil {
			break
		}
		if w.tryOwn() {
			w.put(v)
			return nil
		}
		// Another rendezvous already claimed w; discard and keep looking.
	}

	if err := c.elements.put(ctx, v); err != nil {
		return err
	}

	c.rePair()
	return nil
}

// rePair collapses the race where a waiter was offered while this Send was
// publishing into elements: while both structures are non-empty, it claims
// a waiter and either delivers the newly buffered element to it or, if the
// element was already taken by someone else, forwards the waiter to a
// fresh cell pushed back onto the head of the deque (see spec.md §4.2).
func (c *Channel[T]) rePair() {
	for {
		if _, ok := c.elements.peek(); !ok {
			return
		}
		w := c.waiting.poll()
		if w == nil {
			return
		}
		if !w.tryOwn() {
			continue
		}
		v, ok := c.elements.poll()
		if !ok {
			next := w.putClone()
			c.waiting.offerFirst(next)
			continue
		}
		w.put(v)
	}
}

// Receive is defined as Select over this single channel (spec.md §4.3): it
// does not bypass the waiter list even when elements is non-empty, keeping
// a single consistent path with multi-channel [Select].
//
// If the channel is already closed, Receive returns the sticky terminal
// ClosedOr immediately. Otherwise it returns a delivered value, or the
// terminal state if the channel closes while Receive is blocked, or a
// non-nil error if ctx is cancelled first.
//
// As with [Select], a cancelled Receive may still return a delivered
// value: if a sender had already completed the rendezvous before the
// cancellation was observed, that element is never discarded and is
// returned with a nil error; ctx itself stays cancelled.
func (c *Channel[T]) Receive(ctx context.Context) (ClosedOr[T], error) {
	if st := c.closed.Load(); st != nil {
		return closedResult[T](st), nil
	}
	return Select(ctx, c)
}

// Close transitions the channel to the Done terminal state. Idempotent:
// only the first call (of Close or CloseWithError) has any effect.
func (c *Channel[T]) Close() {
	c.closeWith(nil)
}

// CloseWithError transitions the channel to the Error(err) terminal state.
// Idempotent: only the first call (of Close or CloseWithError) has any
// effect. Panics if err is nil (use [Channel.Close] for a normal close).
func (c *Channel[T]) CloseWithError(err error) {
	if err == nil {
		panic("rendezvous: CloseWithError requires a non-nil error")
	}
	c.closeWith(err)
}

func (c *Channel[T]) closeWith(err error) {
	if !c.closed.CompareAndSwap(nil, &closedState{err: err}) {
		return
	}
	// Wake every waiter still registered so blocked Receive/Select calls
	// observe the closure instead of hanging forever.
	for {
		w := c.waiting.poll()
		if w == nil {
			return
		}
		if w.tryOwn() {
			w.putClosed(err)
		}
	}
}

// Closed reports whether the channel has transitioned to Done or Error.
func (c *Channel[T]) Closed() bool {
	return c.closed.Load() != nil
}

func closedResult[T any](st *closedState) ClosedOr[T] {
	return ClosedOr[T]{Done: true, Err: st.err}
}
