// Package stress measures sustained producer/consumer throughput against a
// blocking queue.
package stress

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/DeveloperRob/GoWorkQueue/internal/queue"
)

// Mode selects the consumer loop the harness drives.
type Mode int

const (
	// ModeTimedWait consumes in TimedWait(PollTimeout) rounds, treating a
	// timeout as "nothing to do right now".
	ModeTimedWait Mode = iota
	// ModeTryDequeue polls TryDequeue and yields between misses.
	ModeTryDequeue
	// ModeWait consumes with indefinite Wait. The harness ends such
	// consumers by enqueueing one stop marker each once production is over.
	ModeWait
)

// Config describes one harness run: how many producers, how many consumers,
// and how the consumers take items.
type Config struct {
	NumProducers int
	NumConsumers int
	Mode         Mode
	PollTimeout  time.Duration // TimedWait bound for ModeTimedWait; defaults to 1ms
}

// Payload supplies the items a run enqueues. Stop and IsStop are only used
// by ModeWait, where the harness appends one stop marker per consumer after
// the last real item; markers are not counted as consumed.
type Payload[T any] struct {
	New    func(i int) T
	Stop   func() T
	IsStop func(item T) bool
}

// RunTimedTest spawns producers and consumers that run against q for the
// given duration, measuring how many items are actually added and taken in
// that window. When the window closes, producers stop and the backlog is
// drained, so on return produced equals consumed.
func RunTimedTest[T any, Q queue.Blocking[T]](
	q Q,
	cfg Config,
	testDuration time.Duration,
	payload Payload[T],
) (producedCount int64, consumedCount int64, elapsed time.Duration) {

	ctx, cancel := context.WithTimeout(context.Background(), testDuration)
	defer cancel()

	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = time.Millisecond
	}

	var totalProduced atomic.Int64
	var totalConsumed atomic.Int64
	var msgIndex atomic.Int64
	var productionDone atomic.Bool

	start := time.Now()

	go func() {
		<-ctx.Done()
		productionDone.Store(true)
	}()

	var prodWg sync.WaitGroup
	prodWg.Add(cfg.NumProducers)
	for i := 0; i < cfg.NumProducers; i++ {
		go func() {
			defer prodWg.Done()
			for !productionDone.Load() {
				idx := msgIndex.Add(1) - 1
				q.Add(payload.New(int(idx)))
				totalProduced.Add(1)
			}
		}()
	}

	var consWg sync.WaitGroup
	consWg.Add(cfg.NumConsumers)
	for i := 0; i < cfg.NumConsumers; i++ {
		go func() {
			defer consWg.Done()
			switch cfg.Mode {
			case ModeWait:
				for {
					item := q.Wait()
					if payload.IsStop(item) {
						return
					}
					totalConsumed.Add(1)
				}
			case ModeTryDequeue:
				for {
					if _, ok := q.TryDequeue(); ok {
						totalConsumed.Add(1)
						continue
					}
					if productionDone.Load() && q.IsEmpty() {
						return
					}
					runtime.Gosched()
				}
			default: // ModeTimedWait
				for {
					if _, ok := q.TimedWait(cfg.PollTimeout); ok {
						totalConsumed.Add(1)
						continue
					}
					if productionDone.Load() && q.IsEmpty() {
						return
					}
				}
			}
		}()
	}

	<-ctx.Done()
	prodWg.Wait()

	// ModeWait consumers cannot observe the done flag while parked, so they
	// are ended by stop markers. Appending after the producers have joined
	// puts every marker behind the last real item.
	if cfg.Mode == ModeWait {
		for i := 0; i < cfg.NumConsumers; i++ {
			q.Add(payload.Stop())
		}
	}
	consWg.Wait()

	// A producer mid-Add when the flag flipped may have landed one more item
	// after its consumer exited; sweep the leftovers.
	for {
		item, ok := q.TryDequeue()
		if !ok {
			break
		}
		if payload.IsStop == nil || !payload.IsStop(item) {
			totalConsumed.Add(1)
		}
	}

	elapsed = time.Since(start)
	return totalProduced.Load(), totalConsumed.Load(), elapsed
}
