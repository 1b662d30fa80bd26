// Package workqueue provides an unbounded, concurrency-safe FIFO work queue
// with blocking, timed and non-blocking consumption.
package workqueue

import (
	"container/list"
	"sync"
	"time"
)

// Queue is an unbounded FIFO work queue safe for any number of producers and
// consumers. Items are opaque to the queue: it never inspects them and keeps
// no reference past delivery. Consumers block indefinitely with Wait, block
// with a deadline with TimedWait, or poll with TryDequeue.
//
// Internally a mutex guards the item list and a wake signal. The signal is a
// channel that is closed while items are present and swapped for a fresh one
// when the last item is removed. A waiter captures the channel under the
// lock before sleeping, so an add that happens after the waiter releases the
// lock closes the very channel the waiter holds; the swap on emptying never
// strands anyone because stale captures have already been closed.
//
// The zero value is not usable; call New.
type Queue[T any] struct {
	mu    sync.Mutex
	items *list.List
	ready chan struct{} // closed while items are present
	set   bool          // whether ready is currently closed
}

// New creates an empty queue.
//
// There is no destroy counterpart: once every producer and consumer is done
// with the queue, dropping the last reference is enough. Using a queue
// concurrently with its abandonment is undefined.
func New[T any]() *Queue[T] {
	return &Queue[T]{
		items: list.New(),
		ready: make(chan struct{}),
	}
}

// Lock acquires the queue lock so that several AddLocked calls can share one
// hold. Calling any other method while holding the lock deadlocks.
func (q *Queue[T]) Lock() { q.mu.Lock() }

// Unlock releases the queue lock.
func (q *Queue[T]) Unlock() { q.mu.Unlock() }

// AddLocked appends item to the tail and sets the wake signal. The caller
// must hold the queue lock via Lock; sleeping consumers run once it is
// released.
func (q *Queue[T]) AddLocked(item T) {
	q.items.PushBack(item)
	if !q.set {
		q.set = true
		close(q.ready)
	}
}

// Add appends item to the tail, waking blocked consumers.
func (q *Queue[T]) Add(item T) {
	q.mu.Lock()
	q.AddLocked(item)
	q.mu.Unlock()
}

// take removes and returns the head, clearing the wake signal when the
// removal empties the queue. Caller must hold q.mu.
func (q *Queue[T]) take() (T, bool) {
	front := q.items.Front()
	if front == nil {
		var zero T
		return zero, false
	}
	// A nil item stored in an interface-typed queue fails a bare type
	// assertion; the comma-ok zero value is the stored nil.
	item, _ := q.items.Remove(front).(T)
	if q.items.Len() == 0 {
		q.set = false
		q.ready = make(chan struct{})
	}
	return item, true
}

// Wait blocks until an item is available, then removes and returns the head
// of the queue. With competing consumers each delivered item goes to exactly
// one of them.
func (q *Queue[T]) Wait() T {
	for {
		q.mu.Lock()
		if item, ok := q.take(); ok {
			q.mu.Unlock()
			return item
		}
		ch := q.ready
		q.mu.Unlock()
		<-ch
	}
}

// TimedWait is Wait with a bound: it gives up once timeout elapses without
// an item becoming available and returns the zero value and false. A wakeup
// arriving together with the deadline counts as a wakeup, so the queue gets
// one more look before a timeout is reported. After a wakeup that another
// consumer wins, the full timeout starts over. A non-positive timeout means
// a single check.
func (q *Queue[T]) TimedWait(timeout time.Duration) (T, bool) {
	for {
		q.mu.Lock()
		if item, ok := q.take(); ok {
			q.mu.Unlock()
			return item, true
		}
		ch := q.ready
		q.mu.Unlock()

		timer := time.NewTimer(timeout)
		select {
		case <-ch:
			timer.Stop()
		case <-timer.C:
			select {
			case <-ch:
				// signal beat the deadline; take another look
			default:
				var zero T
				return zero, false
			}
		}
	}
}

// TryDequeue removes and returns the head without blocking. ok is false when
// the queue is empty.
func (q *Queue[T]) TryDequeue() (item T, ok bool) {
	q.mu.Lock()
	item, ok = q.take()
	q.mu.Unlock()
	return item, ok
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	n := q.items.Len()
	q.mu.Unlock()
	return n
}

// IsEmpty reports whether the queue holds no items.
func (q *Queue[T]) IsEmpty() bool {
	q.mu.Lock()
	empty := q.items.Len() == 0
	q.mu.Unlock()
	return empty
}
