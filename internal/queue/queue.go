// Package queue defines the queue surface shared by the stress harness and
// the benchmark modes.
package queue

import "time"

// Blocking names the operations a queue must offer to be driven by the
// harness: producers add items, consumers remove the head with Wait,
// TimedWait or TryDequeue.
type Blocking[T any] interface {
	Add(item T)
	Wait() T
	TimedWait(timeout time.Duration) (T, bool)
	TryDequeue() (item T, ok bool)
	Len() int
	IsEmpty() bool
}
