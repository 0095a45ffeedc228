// Package rendezvous implements a synchronous, bounded channel with
// multi-channel select for structured-concurrency runtimes.
//
// A [Channel] pairs a bounded FIFO buffer with a deque of waiting [cell]
// rendezvous slots. A sender that finds a waiting receiver hands its value
// directly to a [cell]; a sender that finds no waiter buffers into the FIFO
// instead. [Select] lets a task wait on several channels at once, using a
// single shared cell so that at most one of the channels completes it.
//
// [Channel] additionally supports a sticky closed state ([Channel.Close],
// [Channel.CloseWithError]): once closed, every future [Channel.Receive]
// returns the same [ClosedOr] terminal value.
//
// Every exported constructor that spawns a worker goroutine (the operators
// in map.go, merge.go, zip.go, from.go, and friends) takes a
// github.com/baxromumarov/scoped.Spawner so the goroutine lives inside the
// caller's structured-concurrency scope rather than leaking loose.
package rendezvous
