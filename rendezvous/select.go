package rendezvous

import "context"

// Source is anything [Select] and [SelectNow] can wait on: a channel-like
// structure offering a non-blocking fast path (elementPoll/elementPeek)
// and a waiter-registration slow path (cellOffer/cellCleanup).
//
// *Channel[T] is the only implementation. The interface's methods are
// unexported, so types outside this package cannot implement it.
type Source[T any] interface {
	elementPoll() (T, bool)
	elementPeek() (T, bool)
	cellOffer(c *cell[T])
	cellCleanup(c *cell[T])
}

// SelectNow attempts an immediate rendezvous across chs without blocking.
// It tries each source's non-blocking fast path in order and returns the
// first available element. If none has one ready, it reports ok == false.
//
// SelectNow never registers a waiter: a miss here has no side effect on
// any of chs.
func SelectNow[T any](chs ...Source[T]) (T, bool) {
	for _, ch := range chs {
		if v, ok := ch.elementPoll(); ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}

// Select waits across all of chs for exactly one value, returning as soon
// as any one of them has something to deliver. Internally it shares a
// single [cell] across every source so at most one source can ever
// complete the call, even though the cell is registered on all of them
// simultaneously.
//
// Select first tries the non-blocking path (as SelectNow does); only if
// every source misses does it register the shared cell as a waiter on
// every source and block.
//
// A cancelled ctx unblocks Select, but never causes an already-delivered
// value to be discarded: if a source had already completed the
// rendezvous by the time cancellation is observed, Select returns that
// value with a nil error; ctx itself stays cancelled.
func Select[T any](ctx context.Context, chs ...Source[T]) (ClosedOr[T], error) {
	if v, ok := SelectNow(chs...); ok {
		return ClosedOr[T]{Value: v}, nil
	}

	c := newCell[T]()
	for _, ch := range chs {
		ch.cellOffer(c)
	}

	// spec.md §4.4 step 3: a source may have produced an element between
	// our SelectNow miss and this cell's registration landing on it — for
	// a buffered Channel this happens when Send's own rePair call already
	// found the waiting deque empty and returned before our cellOffer took
	// effect, leaving the element buffered with no waiter left to claim
	// it. Re-check every source's peek; if one now has something,
	// self-invalidate the cell before a concurrent completer can claim
	// it, clean up the now-stale registrations, and retry the whole
	// select.
	for _, ch := range chs {
		if _, ok := ch.elementPeek(); ok {
			if c.tryOwn() {
				cleanupCell(c, chs)
				return Select(ctx, chs...)
			}
			break
		}
	}

	return takeFromCell(ctx, c, chs, true)
}

// takeFromCell blocks for c's payload, following any forwarding chain.
// Only the original shared cell (first == true) has its registrations
// removed from every source; a forwarding cell gets no cleanup here, and
// stays on its channel's deque until a completer polls it or a later
// probe discards it as already owned. Each forwarding hop adds one level
// of recursion through resolvePayload.
func takeFromCell[T any](ctx context.Context, c *cell[T], chs []Source[T], first bool) (ClosedOr[T], error) {
	p, err := c.take(ctx)
	if err != nil {
		if first {
			cleanupCell(c, chs)
		}
		// The cancellation may have lost a race against a completer that
		// had already committed to this cell. Resolve that by contesting
		// ownership ourselves: winning means no completer has claimed the
		// cell yet, so it is safe to abandon (any later completer finds
		// it already owned and moves on, per Channel.Send/rePair). Losing
		// means a completer already committed to depositing exactly once,
		// so block uninterruptibly for that guaranteed payload instead of
		// dropping it.
		if c.tryOwn() {
			return ClosedOr[T]{}, err
		}
		return resolvePayload(ctx, c.forceTake(), chs, false)
	}

	if first {
		cleanupCell(c, chs)
	}
	result, resolveErr := resolvePayload(ctx, p, chs, first)
	if resolveErr != nil {
		return result, resolveErr
	}
	return result, err
}

// resolvePayload interprets a cell's delivered payload: a plain value
// resolves directly, a forwarding pointer recurses onto the replacement
// cell, and a closed signal resolves to the terminal ClosedOr.
func resolvePayload[T any](ctx context.Context, p cellPayload[T], chs []Source[T], first bool) (ClosedOr[T], error) {
	switch p.kind {
	case payloadValue:
		return ClosedOr[T]{Value: p.val}, nil
	case payloadClosed:
		return ClosedOr[T]{Done: true, Err: p.err}, nil
	case payloadForward:
		return takeFromCell(ctx, p.fwd, chs, false)
	default:
		panic("rendezvous: unreachable payload kind")
	}
}

// cleanupCell removes c's registration from every source in chs. Safe to
// call even if c was already taken by a completer on one of them; remove
// is a no-op for sources where c is no longer present.
func cleanupCell[T any](c *cell[T], chs []Source[T]) {
	for _, ch := range chs {
		ch.cellCleanup(c)
	}
}
