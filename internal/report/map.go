// Package report renders HTML artifacts from a field session: a map of
// ENTRY/EXIT events and a range-profile chart.
package report

import (
	"fmt"
	"math"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/charan268/RSU-Range-Field-Testing/internal/telemetry"
)

// EventSink receives boundary events as they fire.
type EventSink interface {
	Record(e telemetry.Event) error
}

// EventMap accumulates boundary events and rewrites an HTML scatter of their
// locations after each one, so the page stays current while a drive test is
// still running. Events without a fix are kept out of the plot.
type EventMap struct {
	path   string
	events []telemetry.Event
}

func NewEventMap(path string) *EventMap {
	return &EventMap{path: path}
}

// Record adds an event and rewrites the map file.
func (m *EventMap) Record(e telemetry.Event) error {
	m.events = append(m.events, e)
	return m.render()
}

func (m *EventMap) render() error {
	var entries, exits []opts.ScatterData
	for i := range m.events {
		e := &m.events[i]
		if !e.HasFix() {
			continue
		}
		name := fmt.Sprintf("%s %s: %s", e.Type, e.RawTimestamp, e.Reason)
		if !math.IsNaN(e.SpeedMPH) {
			name += fmt.Sprintf(" @ %.1f mph", e.SpeedMPH)
		}
		d := opts.ScatterData{
			Value: []interface{}{e.Lon, e.Lat},
			Name:  name,
		}
		if e.Type == telemetry.EventEntry {
			entries = append(entries, d)
		} else {
			exits = append(exits, d)
		}
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Coverage Boundary Events", Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{Title: "Coverage Boundary Events", Subtitle: fmt.Sprintf("events=%d", len(entries)+len(exits))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Longitude", Scale: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Latitude", Scale: opts.Bool(true)}),
	)
	scatter.AddSeries("ENTRY", entries,
		charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 10}),
		charts.WithItemStyleOpts(opts.ItemStyle{Color: "#2ca02c"}))
	scatter.AddSeries("EXIT", exits,
		charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 10}),
		charts.WithItemStyleOpts(opts.ItemStyle{Color: "#d62728"}))

	f, err := os.Create(m.path)
	if err != nil {
		return fmt.Errorf("report: create %s: %w", m.path, err)
	}
	defer f.Close()
	if err := scatter.Render(f); err != nil {
		return fmt.Errorf("report: render map: %w", err)
	}
	return f.Close()
}
