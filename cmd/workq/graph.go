package main

import (
	"fmt"
	"image/color"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

func newGraphCommand() *cobra.Command {
	var jsonFile, outPrefix string
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Render per-CPU latency graphs from a bench report",
		RunE: func(cmd *cobra.Command, args []string) error {
			return buildGraphs(jsonFile, outPrefix)
		},
	}
	cmd.Flags().StringVar(&jsonFile, "jsonfile", "test-results.json", "report file path")
	cmd.Flags().StringVar(&outPrefix, "out", "benchmark_graph", "output image filename prefix")
	return cmd
}

// concurrencyStats holds the latency spread at one concurrency level:
// average of the best 5%, the median, and average of the worst 5%.
type concurrencyStats struct {
	concurrency float64 // category index plus per-mode offset
	orig        float64 // original concurrency value
	min         float64
	median      float64
	max         float64
}

// statsPoints implements plotter.XYer and plotter.YErrorer so the same
// series drives the line, the scatter and the error bars.
type statsPoints []concurrencyStats

func (s statsPoints) Len() int                { return len(s) }
func (s statsPoints) XY(i int) (x, y float64) { return s[i].concurrency, s[i].median }
func (s statsPoints) YError(i int) (low, high float64) {
	return s[i].median - s[i].min, s[i].max - s[i].median
}

// categoryTicks renders a categorical X axis: index positions 0,1,2,...
// labelled with the concurrency values they stand for.
type categoryTicks struct {
	positions []float64
	labels    []string
}

func (ct categoryTicks) Ticks(min, max float64) []plot.Tick {
	var ticks []plot.Tick
	for i, pos := range ct.positions {
		if pos >= min && pos <= max {
			ticks = append(ticks, plot.Tick{Value: pos, Label: ct.labels[i]})
		}
	}
	return ticks
}

func buildGraphs(jsonFile, outPrefix string) error {
	sessions, err := loadSessions(jsonFile)
	if err != nil {
		return err
	}

	// Group ns/msg samples by CPU count -> mode -> concurrency level.
	pointsByCPU := make(map[int]map[string]map[float64][]float64)
	for _, session := range sessions {
		cpus := session.SystemInfo.SimulatedCPUCount
		if cpus == 0 {
			cpus = session.SystemInfo.NumCPU
		}
		if _, ok := pointsByCPU[cpus]; !ok {
			pointsByCPU[cpus] = make(map[string]map[float64][]float64)
		}
		for _, b := range session.Benchmarks {
			x := float64(b.NumProducers + b.NumConsumers)
			dur, err := time.ParseDuration(b.ActualElapsed)
			if err != nil || b.NumMessagesConsumed == 0 {
				continue
			}
			nsPerMsg := float64(dur.Nanoseconds()) / float64(b.NumMessagesConsumed)

			modeMap := pointsByCPU[cpus]
			if _, ok := modeMap[b.Mode]; !ok {
				modeMap[b.Mode] = make(map[float64][]float64)
			}
			modeMap[b.Mode][x] = append(modeMap[b.Mode][x], nsPerMsg)
		}
	}

	var cpuCounts []int
	for cpus := range pointsByCPU {
		cpuCounts = append(cpuCounts, cpus)
	}
	sort.Ints(cpuCounts)

	for _, cpus := range cpuCounts {
		filename, err := renderGraph(cpus, pointsByCPU[cpus], outPrefix)
		if err != nil {
			return err
		}
		fmt.Printf("Graph for %d CPU(s) saved to %s\n", cpus, filename)
	}
	return nil
}

func renderGraph(cpus int, modeMap map[string]map[float64][]float64, outPrefix string) (string, error) {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Time per message (5%%-avg-min / median / 5%%-avg-max) vs. concurrency, %d CPU(s)", cpus)
	p.X.Label.Text = "producers + consumers"
	p.Y.Label.Text = "time per message"
	p.Y.Scale = plot.LogScale{}
	p.Y.Tick.Marker = plot.TickerFunc(denseLogTicks)
	applyDarkTheme(p)
	p.Add(plotter.NewGrid())

	// Union of concurrency levels across modes, mapped to category positions.
	concSet := make(map[float64]struct{})
	for _, modeData := range modeMap {
		for conc := range modeData {
			concSet[conc] = struct{}{}
		}
	}
	var concValues []float64
	for v := range concSet {
		concValues = append(concValues, v)
	}
	sort.Float64s(concValues)

	concIndex := make(map[float64]float64)
	var positions []float64
	var labels []string
	for i, v := range concValues {
		concIndex[v] = float64(i)
		positions = append(positions, float64(i))
		labels = append(labels, strconv.FormatFloat(v, 'f', -1, 64))
	}
	p.X.Tick.Marker = categoryTicks{positions: positions, labels: labels}

	var modeNames []string
	for name := range modeMap {
		modeNames = append(modeNames, name)
	}
	sort.Strings(modeNames)

	colors := plotutil.SoftColors
	shapes := []draw.GlyphDrawer{
		draw.CircleGlyph{},
		draw.SquareGlyph{},
		draw.TriangleGlyph{},
		draw.CrossGlyph{},
		draw.PlusGlyph{},
	}

	// Nudge each mode sideways so overlapping spreads stay readable.
	offsetRange := 0.4
	offsetStep := offsetRange / float64(len(modeNames))
	startOffset := -offsetRange/2 + offsetStep/2

	for i, name := range modeNames {
		stats := buildStats(modeMap[name])
		if len(stats) == 0 {
			continue
		}
		for j := range stats {
			stats[j].concurrency = concIndex[stats[j].orig] + startOffset + float64(i)*offsetStep
		}
		sort.Slice(stats, func(a, b int) bool {
			return stats[a].concurrency < stats[b].concurrency
		})
		sp := statsPoints(stats)

		line, err := plotter.NewLine(sp)
		if err != nil {
			return "", fmt.Errorf("line for %s: %w", name, err)
		}
		line.Color = colors[i%len(colors)]

		points, err := plotter.NewScatter(sp)
		if err != nil {
			return "", fmt.Errorf("scatter for %s: %w", name, err)
		}
		points.GlyphStyle.Radius = vg.Points(5)
		points.Color = colors[i%len(colors)]
		points.Shape = shapes[i%len(shapes)]

		errBars, err := plotter.NewYErrorBars(sp)
		if err != nil {
			return "", fmt.Errorf("error bars for %s: %w", name, err)
		}
		errBars.Color = colors[i%len(colors)]

		p.Add(line, points, errBars)
		p.Legend.Add(name, line, points)
	}

	filename := fmt.Sprintf("%s_%d.png", outPrefix, cpus)
	if err := p.Save(12*vg.Inch, 9*vg.Inch, filename); err != nil {
		return "", fmt.Errorf("save plot for %d CPU(s): %w", cpus, err)
	}
	return filename, nil
}

func applyDarkTheme(p *plot.Plot) {
	p.BackgroundColor = color.RGBA{R: 30, G: 30, B: 30, A: 255}
	white := color.RGBA{R: 255, G: 255, B: 255, A: 255}
	p.Title.TextStyle.Color = white
	p.X.Label.TextStyle.Color = white
	p.Y.Label.TextStyle.Color = white
	p.X.Color = white
	p.Y.Color = white
	p.X.Tick.Label.Color = white
	p.Y.Tick.Label.Color = white
	p.Legend.Top = true
	p.Legend.Left = true
	p.Legend.TextStyle.Color = white
}

// denseLogTicks spaces ticks evenly in log10 so that roughly one lands every
// 30px of a 9 inch tall render.
func denseLogTicks(min, max float64) []plot.Tick {
	const nTicks = 648.0 / 30.0
	if min <= 0 {
		min = 1e-9
	}
	start := math.Log10(min)
	end := math.Log10(max)
	step := (end - start) / nTicks

	var ticks []plot.Tick
	for i := 0.0; i <= nTicks; i++ {
		y := math.Pow(10, start+i*step)
		ticks = append(ticks, plot.Tick{Value: y, Label: formatNs(y)})
	}
	return ticks
}

// buildStats computes the average of the bottom 5%, the median, and the
// average of the top 5% for each concurrency level.
func buildStats(concurrencyMap map[float64][]float64) []concurrencyStats {
	var out []concurrencyStats
	for x, vals := range concurrencyMap {
		if len(vals) == 0 {
			continue
		}
		sort.Float64s(vals)
		out = append(out, concurrencyStats{
			concurrency: x,
			orig:        x,
			min:         averageOfRange(vals, 0.0, 0.05),
			median:      median(vals),
			max:         averageOfRange(vals, 0.95, 1.0),
		})
	}
	return out
}

// averageOfRange returns the average of sortedVals in [startFrac, endFrac]
// of its length, falling back to the median when the slice is too small for
// a meaningful 5% cut.
func averageOfRange(sortedVals []float64, startFrac, endFrac float64) float64 {
	n := len(sortedVals)
	if n == 0 {
		return 0
	}
	startIndex := int(float64(n) * startFrac)
	endIndex := int(float64(n) * endFrac)
	if startIndex < 0 {
		startIndex = 0
	}
	if endIndex > n {
		endIndex = n
	}
	if startIndex >= endIndex {
		return median(sortedVals)
	}
	sum := 0.0
	for i := startIndex; i < endIndex; i++ {
		sum += sortedVals[i]
	}
	return sum / float64(endIndex-startIndex)
}

func median(sorted []float64) float64 {
	n := len(sorted)
	mid := n / 2
	if n%2 == 1 {
		return sorted[mid]
	}
	return 0.5 * (sorted[mid-1] + sorted[mid])
}

// formatNs renders a nanoseconds value as ns, µs, ms, or s.
func formatNs(ns float64) string {
	switch {
	case ns < 1e3:
		return fmt.Sprintf("%.0fns", ns)
	case ns < 1e6:
		return fmt.Sprintf("%.1fµs", ns/1e3)
	case ns < 1e9:
		return fmt.Sprintf("%.1fms", ns/1e6)
	default:
		return fmt.Sprintf("%.2fs", ns/1e9)
	}
}
