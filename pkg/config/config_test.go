package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeProfile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profile.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	p := Default()
	assert.NoError(t, p.Validate())
	assert.Equal(t, 3, p.Iterations)
	assert.Equal(t, 2*time.Second, time.Duration(p.Duration))
	assert.Len(t, p.Workloads, 3)
}

func TestLoadFullProfile(t *testing.T) {
	path := writeProfile(t, `
iterations: 5
duration: 750ms
workloads:
  - producers: 1
    consumers: 2
  - producers: 8
    consumers: 8
modes:
  - Wait
  - TimedWait 1ms
cpus: [1, 2, 4]
`)
	p, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5, p.Iterations)
	assert.Equal(t, 750*time.Millisecond, time.Duration(p.Duration))
	assert.Equal(t, []Workload{{Producers: 1, Consumers: 2}, {Producers: 8, Consumers: 8}}, p.Workloads)
	assert.Equal(t, []string{"Wait", "TimedWait 1ms"}, p.Modes)
	assert.Equal(t, []int{1, 2, 4}, p.CPUs)
}

func TestLoadFillsDefaults(t *testing.T) {
	path := writeProfile(t, `
iterations: 1
`)
	p, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 1, p.Iterations)
	assert.Equal(t, 2*time.Second, time.Duration(p.Duration))
	assert.Len(t, p.Workloads, 3)
	assert.Empty(t, p.Modes)
	assert.Empty(t, p.CPUs)
}

func TestLoadBadDuration(t *testing.T) {
	path := writeProfile(t, `
duration: "soon"
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Profile)
	}{
		{"zero iterations", func(p *Profile) { p.Iterations = 0 }},
		{"zero duration", func(p *Profile) { p.Duration = 0 }},
		{"no workloads", func(p *Profile) { p.Workloads = nil }},
		{"zero producers", func(p *Profile) { p.Workloads = []Workload{{Producers: 0, Consumers: 1}} }},
		{"zero consumers", func(p *Profile) { p.Workloads = []Workload{{Producers: 1, Consumers: 0}} }},
		{"negative cpu", func(p *Profile) { p.CPUs = []int{-1} }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := Default()
			tc.mutate(&p)
			assert.Error(t, p.Validate())
		})
	}
}
