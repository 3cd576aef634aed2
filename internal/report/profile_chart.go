package report

import (
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/charan268/RSU-Range-Field-Testing/internal/profile"
)

// WriteProfileChart renders coverage fraction against distance-bin center as
// an HTML line chart. Grouped rows get one series per reference.
func WriteProfileChart(path, title string, rows []profile.Row) error {
	series := make(map[string][]profile.Row)
	var order []string
	for _, r := range rows {
		if _, ok := series[r.NearestRSU]; !ok {
			order = append(order, r.NearestRSU)
		}
		series[r.NearestRSU] = append(series[r.NearestRSU], r)
	}

	// Shared x axis across all series.
	centerSet := make(map[float64]bool)
	var centers []float64
	for _, r := range rows {
		if !centerSet[r.BinCenterM] {
			centerSet[r.BinCenterM] = true
			centers = append(centers, r.BinCenterM)
		}
	}
	sort.Float64s(centers)
	labels := make([]string, len(centers))
	index := make(map[float64]int, len(centers))
	for i, c := range centers {
		labels[i] = strconv.FormatFloat(c, 'f', -1, 64)
		index[c] = i
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "1100px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: fmt.Sprintf("bins=%d", len(centers))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Bin center (m)"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Coverage fraction", Min: 0, Max: 1}),
	)
	line.SetXAxis(labels)

	for _, name := range order {
		data := make([]opts.LineData, len(centers))
		for i := range data {
			data[i] = opts.LineData{Value: nil}
		}
		for _, r := range series[name] {
			data[index[r.BinCenterM]] = opts.LineData{Value: r.CoverageFraction}
		}
		label := name
		if label == "" {
			label = "coverage"
		}
		line.AddSeries(label, data)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("report: create %s: %w", path, err)
	}
	defer f.Close()
	if err := line.Render(f); err != nil {
		return fmt.Errorf("report: render profile chart: %w", err)
	}
	return f.Close()
}
