package main

import (
	"fmt"
	"time"

	"github.com/DeveloperRob/GoWorkQueue/internal/stress"
)

// benchMode is one way of consuming the queue under test. The workload
// counts in config are filled in per run.
type benchMode struct {
	name        string
	description string
	features    []string
	config      stress.Config
}

// getModes enumerates the consumption modes the bench and the tests exercise.
func getModes() []benchMode {
	return []benchMode{
		{
			name:        "Wait",
			description: "Indefinite blocking Wait; the harness releases parked consumers with stop markers at the end of a run.",
			features:    []string{"Blocking", "FIFO"},
			config:      stress.Config{Mode: stress.ModeWait},
		},
		{
			name:        "TimedWait 1ms",
			description: "Bounded TimedWait rounds of 1ms, the service-loop drain pattern.",
			features:    []string{"Blocking", "Bounded-Wait", "FIFO"},
			config:      stress.Config{Mode: stress.ModeTimedWait, PollTimeout: 1 * time.Millisecond},
		},
		{
			name:        "TimedWait 10ms",
			description: "Bounded TimedWait rounds of 10ms, trading wake latency for fewer timer arms.",
			features:    []string{"Blocking", "Bounded-Wait", "FIFO"},
			config:      stress.Config{Mode: stress.ModeTimedWait, PollTimeout: 10 * time.Millisecond},
		},
		{
			name:        "TryDequeue",
			description: "Non-blocking TryDequeue polling with a scheduler yield between misses.",
			features:    []string{"Non-Blocking", "FIFO"},
			config:      stress.Config{Mode: stress.ModeTryDequeue},
		},
	}
}

// selectModes resolves mode names against the registry. An empty selection
// means every mode.
func selectModes(names []string) ([]benchMode, error) {
	all := getModes()
	if len(names) == 0 {
		return all, nil
	}
	byName := make(map[string]benchMode, len(all))
	for _, m := range all {
		byName[m.name] = m
	}
	var out []benchMode
	for _, name := range names {
		m, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("unknown mode %q", name)
		}
		out = append(out, m)
	}
	return out, nil
}

// benchPayload builds the generator the stress harness enqueues: unique
// *int values carrying their global index, with nil as the stop marker.
func benchPayload() stress.Payload[*int] {
	return stress.Payload[*int]{
		New: func(i int) *int {
			v := i
			return &v
		},
		Stop:   func() *int { return nil },
		IsStop: func(p *int) bool { return p == nil },
	}
}
