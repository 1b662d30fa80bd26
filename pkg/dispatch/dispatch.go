// Package dispatch runs a pool of workers that consume a work queue and hand
// each item to a caller-supplied handler, with optional retry and telemetry.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/DeveloperRob/GoWorkQueue/pkg/workqueue"
)

var (
	ErrAlreadyRunning  = errors.New("dispatch: already running")
	ErrNotRunning      = errors.New("dispatch: not running")
	ErrShutdownTimeout = errors.New("dispatch: shutdown timed out")
)

// Handler processes a single item. A non-nil error triggers retries up to
// Options.MaxRetries; the item counts as failed once retries are exhausted.
type Handler[T any] func(ctx context.Context, item T) error

// Options configures a Dispatcher.
type Options struct {
	// Concurrency is the number of worker goroutines. Default 4.
	Concurrency int

	// PollInterval bounds each worker's TimedWait round and therefore how
	// quickly workers notice a stop request. Default 250ms.
	PollInterval time.Duration

	// ShutdownTimeout is how long Stop waits for workers to finish.
	// Default 30s.
	ShutdownTimeout time.Duration

	// MaxRetries is the number of handler retries per item, with exponential
	// backoff between attempts. 0 means a single attempt.
	MaxRetries uint64

	// Logger is the structured logger for dispatcher operations.
	// If nil, a default JSON logger is created.
	Logger *slog.Logger

	// MeterProvider and TracerProvider enable telemetry. Nil disables the
	// respective signal silently.
	MeterProvider  metric.MeterProvider
	TracerProvider trace.TracerProvider
}

func (o *Options) applyDefaults() {
	if o.Concurrency <= 0 {
		o.Concurrency = 4
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 250 * time.Millisecond
	}
	if o.ShutdownTimeout <= 0 {
		o.ShutdownTimeout = 30 * time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}
}

// Dispatcher consumes a queue with a pool of workers. Create one with New,
// feed it through Submit or SubmitBatch (or by adding to the queue directly),
// and bound its lifetime with Start and Stop.
type Dispatcher[T any] struct {
	queue   *workqueue.Queue[T]
	handler Handler[T]
	opts    Options
	id      string
	logger  *slog.Logger
	metrics *dispatchMetrics
	tracer  trace.Tracer

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	wg      *sync.WaitGroup

	processed atomic.Int64
	failed    atomic.Int64
	retries   atomic.Int64
}

// New creates a Dispatcher over q. The handler must not be nil.
func New[T any](q *workqueue.Queue[T], handler Handler[T], opts Options) (*Dispatcher[T], error) {
	if q == nil {
		return nil, errors.New("dispatch: nil queue")
	}
	if handler == nil {
		return nil, errors.New("dispatch: nil handler")
	}
	opts.applyDefaults()

	d := &Dispatcher[T]{
		queue:   q,
		handler: handler,
		opts:    opts,
		id:      generateDispatcherID(),
	}
	d.logger = opts.Logger.With("dispatcher_id", d.id)

	if opts.TracerProvider != nil {
		d.tracer = opts.TracerProvider.Tracer("dispatch")
	}
	if opts.MeterProvider != nil {
		m, err := newDispatchMetrics(opts.MeterProvider.Meter("dispatch"))
		if err != nil {
			return nil, fmt.Errorf("dispatch: create metrics: %w", err)
		}
		d.metrics = m
	}
	return d, nil
}

// ID returns the dispatcher's unique instance identifier.
func (d *Dispatcher[T]) ID() string { return d.id }

// Submit enqueues one item for processing.
func (d *Dispatcher[T]) Submit(item T) {
	d.queue.Add(item)
}

// SubmitBatch enqueues items under a single lock hold, so they arrive
// contiguously and wake sleeping workers once.
func (d *Dispatcher[T]) SubmitBatch(items []T) {
	if len(items) == 0 {
		return
	}
	d.queue.Lock()
	for _, item := range items {
		d.queue.AddLocked(item)
	}
	d.queue.Unlock()
}

// Start launches the worker pool.
func (d *Dispatcher[T]) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return ErrAlreadyRunning
	}
	d.running = true
	d.stop = make(chan struct{})
	d.wg = &sync.WaitGroup{}

	d.wg.Add(d.opts.Concurrency)
	for i := 0; i < d.opts.Concurrency; i++ {
		go d.workerLoop(i, d.stop, d.wg)
	}
	d.logger.Info("dispatcher started",
		"workers", d.opts.Concurrency,
		"poll_interval", d.opts.PollInterval,
	)
	return nil
}

// Stop asks the workers to finish and waits for them. Workers complete their
// current item and drain whatever is already queued before exiting. Stop
// returns ErrShutdownTimeout if the drain outlasts ShutdownTimeout, or the
// context error if ctx ends first; either way the workers keep draining in
// the background and exit on their own, and the dispatcher may be started
// again in the meantime.
func (d *Dispatcher[T]) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return ErrNotRunning
	}
	d.running = false
	close(d.stop)
	wg := d.wg
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(d.opts.ShutdownTimeout)
	defer timer.Stop()
	select {
	case <-done:
		d.logger.Info("dispatcher stopped",
			"processed", d.processed.Load(),
			"failed", d.failed.Load(),
		)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("dispatch: stop aborted: %w", ctx.Err())
	case <-timer.C:
		d.logger.Warn("shutdown timeout exceeded", "timeout", d.opts.ShutdownTimeout)
		return ErrShutdownTimeout
	}
}

// Stats is a snapshot of the dispatcher's counters.
type Stats struct {
	Processed int64
	Failed    int64
	Retries   int64
}

// Stats returns the current counter values.
func (d *Dispatcher[T]) Stats() Stats {
	return Stats{
		Processed: d.processed.Load(),
		Failed:    d.failed.Load(),
		Retries:   d.retries.Load(),
	}
}

// workerLoop consumes the queue until stop closes. stop and wg come from the
// Start call that spawned this worker rather than from the struct fields: a
// later Start replaces the fields, and a worker that outlives a timed-out
// Stop has to keep watching the channel that was already closed for it.
func (d *Dispatcher[T]) workerLoop(workerNum int, stop <-chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()
	logger := d.logger.With("worker_num", workerNum)
	logger.Debug("worker loop started")

	for {
		select {
		case <-stop:
			// Drain what is already queued, then exit.
			for {
				item, ok := d.queue.TryDequeue()
				if !ok {
					logger.Debug("worker loop stopped")
					return
				}
				d.process(item, workerNum)
			}
		default:
		}

		item, ok := d.queue.TimedWait(d.opts.PollInterval)
		if !ok {
			continue
		}
		d.process(item, workerNum)
	}
}

func (d *Dispatcher[T]) process(item T, workerNum int) {
	ctx := context.Background()

	var span trace.Span
	if d.tracer != nil {
		ctx, span = d.tracer.Start(ctx, "dispatch.process")
		span.SetAttributes(
			attribute.String("dispatcher.id", d.id),
			attribute.Int("dispatcher.worker", workerNum),
		)
	}

	start := time.Now()
	attempts := 0
	op := func() error {
		attempts++
		return d.handler(ctx, item)
	}
	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), d.opts.MaxRetries)
	err := backoff.Retry(op, backoff.WithContext(bo, ctx))
	duration := time.Since(start)

	if attempts > 1 {
		d.retries.Add(int64(attempts - 1))
	}
	if err != nil {
		d.failed.Add(1)
		d.logger.Error("handler failed",
			"worker_num", workerNum,
			"attempts", attempts,
			"error", err,
		)
	} else {
		d.processed.Add(1)
	}

	if span != nil {
		span.SetAttributes(attribute.Int("dispatch.attempts", attempts))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "handler failed")
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}
	d.recordMetrics(ctx, duration, attempts, err)
}

// generateDispatcherID creates a unique identifier for this dispatcher
// instance from hostname, PID and a UUID suffix.
func generateDispatcherID() string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return fmt.Sprintf("%s-%d-%s", hostname, os.Getpid(), uuid.New().String()[:8])
}
