// Package config defines the benchmark profile file format.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so profiles can use strings like "2s" or
// "750ms".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// Workload is one producer/consumer pairing a benchmark session sweeps.
type Workload struct {
	Producers int `yaml:"producers"`
	Consumers int `yaml:"consumers"`
}

// Profile describes a benchmark session: how long each run lasts, how often
// it repeats, and which workloads, consumption modes and CPU counts to cover.
type Profile struct {
	Iterations int        `yaml:"iterations"`
	Duration   Duration   `yaml:"duration"`
	Workloads  []Workload `yaml:"workloads"`
	Modes      []string   `yaml:"modes"` // empty means all registered modes
	CPUs       []int      `yaml:"cpus"`  // GOMAXPROCS values to sweep; empty means current
}

// Default returns the profile used when no file is given.
func Default() Profile {
	return Profile{
		Iterations: 3,
		Duration:   Duration(2 * time.Second),
		Workloads: []Workload{
			{Producers: 1, Consumers: 1},
			{Producers: 2, Consumers: 2},
			{Producers: 4, Consumers: 4},
		},
	}
}

// Load reads a profile from a YAML file. Fields absent from the file keep
// their Default values.
func Load(path string) (Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("read profile: %w", err)
	}
	p := Default()
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Profile{}, fmt.Errorf("parse profile: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// Validate checks the profile for values the bench cannot run with. Mode
// names are checked by the bench against its registry, not here.
func (p Profile) Validate() error {
	if p.Iterations <= 0 {
		return fmt.Errorf("profile: iterations must be positive, got %d", p.Iterations)
	}
	if time.Duration(p.Duration) <= 0 {
		return fmt.Errorf("profile: duration must be positive, got %v", time.Duration(p.Duration))
	}
	if len(p.Workloads) == 0 {
		return fmt.Errorf("profile: at least one workload required")
	}
	for i, w := range p.Workloads {
		if w.Producers <= 0 || w.Consumers <= 0 {
			return fmt.Errorf("profile: workload %d: producers and consumers must be positive", i)
		}
	}
	for _, c := range p.CPUs {
		if c <= 0 {
			return fmt.Errorf("profile: cpu counts must be positive, got %d", c)
		}
	}
	return nil
}
