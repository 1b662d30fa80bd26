package dispatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DeveloperRob/GoWorkQueue/pkg/workqueue"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOptionsDefaults(t *testing.T) {
	o := Options{}
	o.applyDefaults()

	assert.Equal(t, 4, o.Concurrency)
	assert.Equal(t, 250*time.Millisecond, o.PollInterval)
	assert.Equal(t, 30*time.Second, o.ShutdownTimeout)
	assert.NotNil(t, o.Logger)
}

func TestOptionsExplicitValuesKept(t *testing.T) {
	o := Options{
		Concurrency:     2,
		PollInterval:    10 * time.Millisecond,
		ShutdownTimeout: 1 * time.Second,
		Logger:          testLogger(),
	}
	o.applyDefaults()

	assert.Equal(t, 2, o.Concurrency)
	assert.Equal(t, 10*time.Millisecond, o.PollInterval)
	assert.Equal(t, 1*time.Second, o.ShutdownTimeout)
}

func TestNewValidation(t *testing.T) {
	q := workqueue.New[int]()
	handler := func(ctx context.Context, item int) error { return nil }

	_, err := New[int](nil, handler, Options{})
	assert.Error(t, err)

	_, err = New(q, nil, Options{})
	assert.Error(t, err)

	d, err := New(q, handler, Options{Logger: testLogger()})
	require.NoError(t, err)
	assert.NotEmpty(t, d.ID())
}

func TestProcessesSubmittedItems(t *testing.T) {
	q := workqueue.New[int]()
	var processed atomic.Int64
	handler := func(ctx context.Context, item int) error {
		processed.Add(1)
		return nil
	}

	d, err := New(q, handler, Options{
		Concurrency:  3,
		PollInterval: 5 * time.Millisecond,
		Logger:       testLogger(),
	})
	require.NoError(t, err)
	require.NoError(t, d.Start())

	const n = 500
	for i := 0; i < n; i++ {
		d.Submit(i)
	}

	require.Eventually(t, func() bool {
		return processed.Load() == n
	}, 10*time.Second, 10*time.Millisecond)

	require.NoError(t, d.Stop(context.Background()))
	stats := d.Stats()
	assert.Equal(t, int64(n), stats.Processed)
	assert.Equal(t, int64(0), stats.Failed)
	assert.True(t, q.IsEmpty())
}

func TestSubmitBatchKeepsOrder(t *testing.T) {
	q := workqueue.New[int]()

	var mu sync.Mutex
	var order []int
	handler := func(ctx context.Context, item int) error {
		mu.Lock()
		order = append(order, item)
		mu.Unlock()
		return nil
	}

	// A single worker observes the queue order directly.
	d, err := New(q, handler, Options{
		Concurrency:  1,
		PollInterval: 5 * time.Millisecond,
		Logger:       testLogger(),
	})
	require.NoError(t, err)
	require.NoError(t, d.Start())

	batch := make([]int, 100)
	for i := range batch {
		batch[i] = i
	}
	d.SubmitBatch(batch)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == len(batch)
	}, 10*time.Second, 10*time.Millisecond)
	require.NoError(t, d.Stop(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, batch, order)
}

func TestRetriesUntilSuccess(t *testing.T) {
	q := workqueue.New[string]()

	var attempts atomic.Int64
	handler := func(ctx context.Context, item string) error {
		if attempts.Add(1) < 3 {
			return errors.New("transient")
		}
		return nil
	}

	d, err := New(q, handler, Options{
		Concurrency:  1,
		PollInterval: 5 * time.Millisecond,
		MaxRetries:   5,
		Logger:       testLogger(),
	})
	require.NoError(t, err)
	require.NoError(t, d.Start())

	d.Submit("flaky")

	require.Eventually(t, func() bool {
		return d.Stats().Processed == 1
	}, 30*time.Second, 50*time.Millisecond)
	require.NoError(t, d.Stop(context.Background()))

	stats := d.Stats()
	assert.Equal(t, int64(1), stats.Processed)
	assert.Equal(t, int64(0), stats.Failed)
	assert.Equal(t, int64(2), stats.Retries)
}

func TestFailureAfterMaxRetries(t *testing.T) {
	q := workqueue.New[string]()

	var attempts atomic.Int64
	handler := func(ctx context.Context, item string) error {
		attempts.Add(1)
		return errors.New("permanent")
	}

	d, err := New(q, handler, Options{
		Concurrency:  1,
		PollInterval: 5 * time.Millisecond,
		MaxRetries:   1,
		Logger:       testLogger(),
	})
	require.NoError(t, err)
	require.NoError(t, d.Start())

	d.Submit("doomed")

	require.Eventually(t, func() bool {
		return d.Stats().Failed == 1
	}, 30*time.Second, 50*time.Millisecond)
	require.NoError(t, d.Stop(context.Background()))

	stats := d.Stats()
	assert.Equal(t, int64(0), stats.Processed)
	assert.Equal(t, int64(1), stats.Failed)
	assert.Equal(t, int64(1), stats.Retries)
	assert.Equal(t, int64(2), attempts.Load())
}

func TestStartStopStateErrors(t *testing.T) {
	q := workqueue.New[int]()
	handler := func(ctx context.Context, item int) error { return nil }

	d, err := New(q, handler, Options{
		Concurrency:  1,
		PollInterval: 5 * time.Millisecond,
		Logger:       testLogger(),
	})
	require.NoError(t, err)

	assert.ErrorIs(t, d.Stop(context.Background()), ErrNotRunning)

	require.NoError(t, d.Start())
	assert.ErrorIs(t, d.Start(), ErrAlreadyRunning)

	require.NoError(t, d.Stop(context.Background()))
	assert.ErrorIs(t, d.Stop(context.Background()), ErrNotRunning)
}

func TestStopDrainsQueue(t *testing.T) {
	q := workqueue.New[int]()
	var processed atomic.Int64
	handler := func(ctx context.Context, item int) error {
		processed.Add(1)
		return nil
	}

	d, err := New(q, handler, Options{
		Concurrency:  2,
		PollInterval: 5 * time.Millisecond,
		Logger:       testLogger(),
	})
	require.NoError(t, err)

	// Everything queued before Stop must be handled before Stop returns.
	const n = 1000
	for i := 0; i < n; i++ {
		d.Submit(i)
	}
	require.NoError(t, d.Start())
	require.NoError(t, d.Stop(context.Background()))

	assert.Equal(t, int64(n), processed.Load())
	assert.True(t, q.IsEmpty())
}

func TestStopTimeout(t *testing.T) {
	q := workqueue.New[int]()
	release := make(chan struct{})
	handler := func(ctx context.Context, item int) error {
		<-release
		return nil
	}

	d, err := New(q, handler, Options{
		Concurrency:     1,
		PollInterval:    5 * time.Millisecond,
		ShutdownTimeout: 100 * time.Millisecond,
		Logger:          testLogger(),
	})
	require.NoError(t, err)
	require.NoError(t, d.Start())

	d.Submit(1)
	// Wait until the worker has actually picked the item up.
	require.Eventually(t, func() bool {
		return q.IsEmpty()
	}, 5*time.Second, 5*time.Millisecond)

	assert.ErrorIs(t, d.Stop(context.Background()), ErrShutdownTimeout)
	close(release)
}

func TestRestartAfterStop(t *testing.T) {
	q := workqueue.New[int]()
	var processed atomic.Int64
	handler := func(ctx context.Context, item int) error {
		processed.Add(1)
		return nil
	}

	d, err := New(q, handler, Options{
		Concurrency:  1,
		PollInterval: 5 * time.Millisecond,
		Logger:       testLogger(),
	})
	require.NoError(t, err)

	require.NoError(t, d.Start())
	d.Submit(1)
	require.Eventually(t, func() bool { return processed.Load() == 1 }, 5*time.Second, 5*time.Millisecond)
	require.NoError(t, d.Stop(context.Background()))

	require.NoError(t, d.Start())
	d.Submit(2)
	require.Eventually(t, func() bool { return processed.Load() == 2 }, 5*time.Second, 5*time.Millisecond)
	require.NoError(t, d.Stop(context.Background()))
}

func TestRestartAfterStopTimeout(t *testing.T) {
	q := workqueue.New[int]()
	release := make(chan struct{})
	var processed atomic.Int64
	handler := func(ctx context.Context, item int) error {
		if item < 0 {
			<-release
		}
		processed.Add(1)
		return nil
	}

	d, err := New(q, handler, Options{
		Concurrency:     2,
		PollInterval:    5 * time.Millisecond,
		ShutdownTimeout: 100 * time.Millisecond,
		Logger:          testLogger(),
	})
	require.NoError(t, err)
	require.NoError(t, d.Start())

	// Wedge both workers in the handler so Stop times out and leaves them
	// behind.
	d.Submit(-1)
	d.Submit(-2)
	require.Eventually(t, func() bool {
		return q.IsEmpty()
	}, 5*time.Second, 5*time.Millisecond)
	require.ErrorIs(t, d.Stop(context.Background()), ErrShutdownTimeout)

	// A restart while the old workers linger must bring up a pool that
	// handles fresh work by itself.
	require.NoError(t, d.Start())
	const n = 200
	for i := 0; i < n; i++ {
		d.Submit(i)
	}
	require.Eventually(t, func() bool {
		return processed.Load() == n
	}, 10*time.Second, 10*time.Millisecond)

	// Released workers from the first pool finish their wedged items and
	// exit; the counters cover both pools.
	close(release)
	require.Eventually(t, func() bool {
		return processed.Load() == n+2
	}, 10*time.Second, 10*time.Millisecond)

	require.NoError(t, d.Stop(context.Background()))
	assert.Equal(t, int64(n+2), d.Stats().Processed)
	assert.True(t, q.IsEmpty())
}
