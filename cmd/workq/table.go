package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

func newTableCommand() *cobra.Command {
	var jsonFile string
	cmd := &cobra.Command{
		Use:   "table",
		Short: "Print a markdown summary of the last bench session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return outputMarkdownTable(jsonFile)
		},
	}
	cmd.Flags().StringVar(&jsonFile, "jsonfile", "test-results.json", "report file path")
	return cmd
}

// outputMarkdownTable prints the best throughput per mode and workload from
// the last session in the report file.
func outputMarkdownTable(jsonFile string) error {
	sessions, err := loadSessions(jsonFile)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		return fmt.Errorf("no sessions found in %q", jsonFile)
	}
	last := sessions[len(sessions)-1]

	modeMeta := make(map[string]benchMode)
	for _, m := range getModes() {
		modeMeta[m.name] = m
	}

	type tableKey struct {
		mode      string
		producers int
		consumers int
	}
	best := make(map[tableKey]float64)
	for _, b := range last.Benchmarks {
		k := tableKey{b.Mode, b.NumProducers, b.NumConsumers}
		if b.Throughput > best[k] {
			best[k] = b.Throughput
		}
	}

	type tableRow struct {
		mode       string
		workload   string
		features   string
		throughput float64
	}
	var rows []tableRow
	for k, tp := range best {
		var features string
		if meta, ok := modeMeta[k.mode]; ok {
			features = strings.Join(meta.features, ", ")
		}
		rows = append(rows, tableRow{
			mode:       k.mode,
			workload:   fmt.Sprintf("%dp/%dc", k.producers, k.consumers),
			features:   features,
			throughput: tp,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].throughput > rows[j].throughput
	})

	fmt.Println("## Benchmark Summary (last session)")
	fmt.Println()
	fmt.Println("| Mode           | Workload   | Features                      | Throughput (msgs/sec) |")
	fmt.Println("|----------------|------------|-------------------------------|-----------------------|")
	for _, r := range rows {
		fmt.Printf("| %-14s | %-10s | %-29s | %21.0f |\n", r.mode, r.workload, r.features, r.throughput)
	}
	return nil
}
