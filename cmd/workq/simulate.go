package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/DeveloperRob/GoWorkQueue/pkg/dispatch"
	"github.com/DeveloperRob/GoWorkQueue/pkg/workqueue"
)

// job is the unit of work the simulation pushes through the dispatcher.
// FailuresLeft is decided up front so a run with a fixed seed is repeatable.
type job struct {
	ID           int
	FailuresLeft int
}

type simulateFlags struct {
	jobs        int
	producers   int
	concurrency int
	failRate    float64
	maxRetries  uint64
	batchSize   int
	seed        int64
}

func newSimulateCommand() *cobra.Command {
	var f simulateFlags
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run producers against a dispatcher end to end",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(f)
		},
	}
	cmd.Flags().IntVar(&f.jobs, "jobs", 5000, "total jobs to push through")
	cmd.Flags().IntVar(&f.producers, "producers", 4, "producer goroutines")
	cmd.Flags().IntVar(&f.concurrency, "concurrency", 4, "dispatcher workers")
	cmd.Flags().Float64Var(&f.failRate, "fail-rate", 0.01, "fraction of jobs that fail once before succeeding")
	cmd.Flags().Uint64Var(&f.maxRetries, "max-retries", 3, "handler retries per job")
	cmd.Flags().IntVar(&f.batchSize, "batch", 16, "jobs per SubmitBatch call; 1 submits singly")
	cmd.Flags().Int64Var(&f.seed, "seed", 1, "rng seed for failure injection")
	return cmd
}

func runSimulate(f simulateFlags) error {
	logger := slog.Default()
	q := workqueue.New[*job]()

	handler := func(ctx context.Context, j *job) error {
		if j.FailuresLeft > 0 {
			j.FailuresLeft--
			return fmt.Errorf("job %d: transient failure", j.ID)
		}
		return nil
	}

	d, err := dispatch.New(q, handler, dispatch.Options{
		Concurrency:  f.concurrency,
		PollInterval: 20 * time.Millisecond,
		MaxRetries:   f.maxRetries,
		Logger:       logger,
	})
	if err != nil {
		return err
	}
	if err := d.Start(); err != nil {
		return err
	}

	// Pre-build the jobs so the rng is driven from a single goroutine.
	rng := rand.New(rand.NewSource(f.seed))
	jobs := make([]*job, f.jobs)
	for i := range jobs {
		j := &job{ID: i}
		if rng.Float64() < f.failRate {
			j.FailuresLeft = 1
		}
		jobs[i] = j
	}

	start := time.Now()
	var g errgroup.Group
	per := (f.jobs + f.producers - 1) / f.producers
	for p := 0; p < f.producers; p++ {
		lo := p * per
		hi := lo + per
		if hi > len(jobs) {
			hi = len(jobs)
		}
		if lo >= hi {
			break
		}
		share := jobs[lo:hi]
		g.Go(func() error {
			for len(share) > 0 {
				if f.batchSize <= 1 {
					d.Submit(share[0])
					share = share[1:]
					continue
				}
				n := f.batchSize
				if n > len(share) {
					n = len(share)
				}
				d.SubmitBatch(share[:n])
				share = share[n:]
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("all jobs submitted", "jobs", f.jobs, "producers", f.producers)

	// Wait for the dispatcher to work through the backlog.
	deadline := time.Now().Add(5 * time.Minute)
	for {
		s := d.Stats()
		if s.Processed+s.Failed >= int64(f.jobs) {
			break
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("simulation stalled: %d of %d jobs handled", s.Processed+s.Failed, f.jobs)
		}
		time.Sleep(50 * time.Millisecond)
	}
	if err := d.Stop(context.Background()); err != nil {
		return err
	}

	s := d.Stats()
	elapsed := time.Since(start)
	fmt.Printf("simulated %d jobs in %v (%.0f jobs/sec)\n", f.jobs, elapsed, float64(f.jobs)/elapsed.Seconds())
	fmt.Printf("processed=%d failed=%d retries=%d workers=%d\n", s.Processed, s.Failed, s.Retries, f.concurrency)
	return nil
}
