package rendezvous

import (
	"container/list"
	"sync"
)

// waiterDeque is the channel's "waiting" structure: a FIFO deque of cell
// references supporting tail enqueue, head dequeue, head push-back, and
// removal of an arbitrary cell.
//
// scoped.Semaphore and scoped.Pool reach for channels and short
// mutex-protected sections rather than hand-rolled lock-free structures; a
// mutex around a doubly linked list follows the same idiom and keeps the
// critical sections (a handful of pointer operations) short enough that
// contention is not a concern. A lock-free deque remains a possible future
// optimization (spec.md §9) but is not required for correctness.
type waiterDeque[T any] struct {
	mu    sync.Mutex
	l     list.List
	index map[*cell[T]]*list.Element
}

func newWaiterDeque[T any]() *waiterDeque[T] {
	return &waiterDeque[T]{index: make(map[*cell[T]]*list.Element)}
}

// offer enqueues c at the tail.
func (w *waiterDeque[T]) offer(c *cell[T]) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.index[c] = w.l.PushBack(c)
}

// offerFirst pushes c to the head, used to reinsert forwarding cells so
// waiter order is preserved.
func (w *waiterDeque[T]) offerFirst(c *cell[T]) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.index[c] = w.l.PushFront(c)
}

// poll dequeues and returns the head cell, or nil if empty.
func (w *waiterDeque[T]) poll() *cell[T] {
	w.mu.Lock()
	defer w.mu.Unlock()
	e := w.l.Front()
	if e == nil {
		return nil
	}
	w.l.Remove(e)
	c := e.Value.(*cell[T])
	delete(w.index, c)
	return c
}

// remove removes c if it is still present. A no-op if c already left the
// deque (polled by someone else, or never offered here).
func (w *waiterDeque[T]) remove(c *cell[T]) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if e, ok := w.index[c]; ok {
		w.l.Remove(e)
		delete(w.index, c)
	}
}

// empty reports whether the deque currently holds no waiters. Used only by
// tests asserting the quiescent coupling invariant.
func (w *waiterDeque[T]) empty() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.l.Len() == 0
}

// allOwned reports whether every cell currently in the deque is owned.
// Used only by tests asserting the quiescent coupling invariant.
func (w *waiterDeque[T]) allOwned() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	for e := w.l.Front(); e != nil; e = e.Next() {
		if !e.Value.(*cell[T]).owned.Load() {
			return false
		}
	}
	return true
}
