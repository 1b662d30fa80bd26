package main

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/DeveloperRob/GoWorkQueue/internal/stress"
	"github.com/DeveloperRob/GoWorkQueue/pkg/config"
	"github.com/DeveloperRob/GoWorkQueue/pkg/workqueue"
)

type benchFlags struct {
	profilePath     string
	iterations      int
	duration        time.Duration
	cpu             int
	jsonExport      bool
	jsonFile        string
	highConcurrency bool
	progress        bool
	modes           []string
}

func newBenchCommand() *cobra.Command {
	var f benchFlags
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Measure queue throughput across consumption modes and workloads",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBench(f)
		},
	}
	cmd.Flags().StringVar(&f.profilePath, "profile", "", "YAML profile describing the session (flags override it)")
	cmd.Flags().IntVar(&f.iterations, "iter", 0, "iterations per workload (overrides profile)")
	cmd.Flags().DurationVar(&f.duration, "duration", 0, "measurement window per run (overrides profile)")
	cmd.Flags().IntVar(&f.cpu, "cpu", 0, "test only this GOMAXPROCS value; 0 sweeps common values up to NumCPU")
	cmd.Flags().BoolVar(&f.jsonExport, "json", false, "append results to the report file")
	cmd.Flags().StringVar(&f.jsonFile, "jsonfile", "test-results.json", "report file path")
	cmd.Flags().BoolVar(&f.highConcurrency, "high-concurrency", false, "include high concurrency workloads")
	cmd.Flags().BoolVar(&f.progress, "progress", false, "display a progress bar with ETA")
	cmd.Flags().StringSliceVar(&f.modes, "mode", nil, "consumption modes to run (default: all)")
	return cmd
}

func runBench(f benchFlags) error {
	profile := config.Default()
	if f.profilePath != "" {
		p, err := config.Load(f.profilePath)
		if err != nil {
			return err
		}
		profile = p
	}
	if f.iterations > 0 {
		profile.Iterations = f.iterations
	}
	if f.duration > 0 {
		profile.Duration = config.Duration(f.duration)
	}
	if len(f.modes) > 0 {
		profile.Modes = f.modes
	}
	if f.highConcurrency {
		profile.Workloads = append(profile.Workloads,
			config.Workload{Producers: 100, Consumers: 100},
			config.Workload{Producers: 250, Consumers: 250},
			config.Workload{Producers: 500, Consumers: 500},
		)
	}
	modes, err := selectModes(profile.Modes)
	if err != nil {
		return err
	}

	cpuSettings := resolveCPUSettings(f.cpu, profile.CPUs)
	testDuration := time.Duration(profile.Duration)
	totalRuns := len(cpuSettings) * len(profile.Workloads) * profile.Iterations * len(modes)

	var bar *progressbar.ProgressBar
	if f.progress {
		bar = progressbar.NewOptions(totalRuns,
			progressbar.OptionSetDescription("bench"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
			progressbar.OptionSetPredictTime(true),
		)
	}

	trueCPU := runtime.NumCPU()
	var sessions []FullReport
	for _, cpus := range cpuSettings {
		runtime.GOMAXPROCS(cpus)
		sysInfo := gatherSystemInfo()
		sysInfo.NumCPU = cpus
		sysInfo.TrueCPU = trueCPU
		sysInfo.SimulatedCPUCount = cpus

		fmt.Printf("\n=============================\n")
		fmt.Printf("GOMAXPROCS = %d\n", cpus)
		fmt.Printf("=============================\n")

		var results []BenchmarkResult
		for _, w := range profile.Workloads {
			fmt.Printf("  [Workload: producers=%d, consumers=%d]\n", w.Producers, w.Consumers)
			for iteration := 1; iteration <= profile.Iterations; iteration++ {
				fmt.Printf("    iteration %d/%d\n", iteration, profile.Iterations)
				for _, mode := range modes {
					// Give the previous run's garbage a chance to clear
					// before measuring.
					runtime.GC()
					time.Sleep(250 * time.Millisecond)

					q := workqueue.New[*int]()
					cfg := mode.config
					cfg.NumProducers = w.Producers
					cfg.NumConsumers = w.Consumers
					produced, consumed, actualTime := stress.RunTimedTest(q, cfg, testDuration, benchPayload())
					throughput := float64(consumed) / actualTime.Seconds()

					fmt.Printf("    %-14s => produced=%d, consumed=%d, throughput=%.0f msg/s, took=%v\n",
						mode.name, produced, consumed, throughput, actualTime)

					results = append(results, BenchmarkResult{
						Mode:                mode.name,
						NumProducers:        w.Producers,
						NumConsumers:        w.Consumers,
						NumMessages:         produced,
						NumMessagesConsumed: consumed,
						TestDuration:        testDuration.String(),
						ActualElapsed:       actualTime.String(),
						Throughput:          throughput,
						Timestamp:           time.Now().Unix(),
						GoVersion:           runtime.Version(),
					})
					if bar != nil {
						bar.Add(1)
					}
				}
			}
		}

		sessions = append(sessions, FullReport{
			SessionTime: time.Now().Format(time.RFC3339),
			SystemInfo:  sysInfo,
			Benchmarks:  results,
		})
	}
	if bar != nil {
		bar.Finish()
		fmt.Fprintln(os.Stderr)
	}

	if f.jsonExport {
		if err := appendSessions(f.jsonFile, sessions); err != nil {
			return err
		}
		fmt.Printf("\nWrote results to %s\n", f.jsonFile)
	}
	return nil
}

// resolveCPUSettings decides which GOMAXPROCS values to sweep. A single
// requested value is clamped to the hardware; profile values above the
// hardware count are skipped.
func resolveCPUSettings(requested int, profileCPUs []int) []int {
	trueCPU := runtime.NumCPU()
	if requested > 0 {
		if requested > trueCPU {
			requested = trueCPU
		}
		return []int{requested}
	}
	if len(profileCPUs) > 0 {
		var out []int
		for _, v := range profileCPUs {
			if v <= trueCPU {
				out = append(out, v)
			}
		}
		if len(out) == 0 {
			out = []int{trueCPU}
		}
		return out
	}
	commonCPUs := []int{1, 2, 3, 4, 6, 8, 12, 16, 32, 48, 56, 64, 96, 128, 192, 256, 384, 512}
	var out []int
	for _, v := range commonCPUs {
		if v <= trueCPU {
			out = append(out, v)
		}
	}
	return out
}
