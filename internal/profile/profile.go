// Package profile aggregates enhanced telemetry into distance-binned
// coverage statistics: how often packets arrived, and how much, at each
// distance band from the roadside unit(s).
package profile

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/charan268/RSU-Range-Field-Testing/internal/telemetry"
)

// ErrUnionUnavailable is returned when a union profile is requested over
// telemetry that was enhanced with fewer than two references; the union
// distance is undefined there.
var ErrUnionUnavailable = errors.New("profile: union distance unavailable (need >=2 references)")

// Row is one (reference, bin) or (bin) aggregate.
type Row struct {
	NearestRSU           string  // empty when not grouped by reference
	BinM                 float64 // left edge of the left-closed right-open bin
	BinCenterM           float64
	NSamples             int
	CoverageFraction     float64 // mean of the has-packets flag
	MeanDeltaBytes       float64
	MeanTimeSinceLastPkt float64
}

type groupKey struct {
	rsu string
	bin float64
}

// build bins samples on the distance column selected by dist and aggregates
// per group. Samples with a NaN distance are excluded.
func build(samples []telemetry.Sample, binM float64, dist func(*telemetry.Sample) float64, group func(*telemetry.Sample) string) ([]Row, error) {
	if binM <= 0 {
		return nil, fmt.Errorf("profile: bin width must be positive, got %v", binM)
	}

	coverage := make(map[groupKey][]float64)
	deltas := make(map[groupKey][]float64)
	silences := make(map[groupKey][]float64)

	for i := range samples {
		s := &samples[i]
		d := dist(s)
		if math.IsNaN(d) {
			continue
		}
		k := groupKey{rsu: group(s), bin: math.Floor(d/binM) * binM}
		coverage[k] = append(coverage[k], float64(s.HasPackets))
		deltas[k] = append(deltas[k], s.DeltaBytes)
		silences[k] = append(silences[k], s.SinceLastPkt)
	}

	rows := make([]Row, 0, len(coverage))
	for k, cov := range coverage {
		rows = append(rows, Row{
			NearestRSU:           k.rsu,
			BinM:                 k.bin,
			BinCenterM:           k.bin + binM/2,
			NSamples:             len(cov),
			CoverageFraction:     stat.Mean(cov, nil),
			MeanDeltaBytes:       stat.Mean(deltas[k], nil),
			MeanTimeSinceLastPkt: stat.Mean(silences[k], nil),
		})
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].NearestRSU != rows[j].NearestRSU {
			return rows[i].NearestRSU < rows[j].NearestRSU
		}
		return rows[i].BinM < rows[j].BinM
	})
	return rows, nil
}

// BuildNearest profiles each sample against its nearest reference. When
// groupByReference is set and the data actually spans more than one nearest
// reference, rows are keyed by (reference, bin); otherwise by bin alone.
func BuildNearest(samples []telemetry.Sample, binM float64, groupByReference bool) ([]Row, error) {
	grouping := false
	if groupByReference {
		seen := make(map[string]bool)
		for i := range samples {
			if id := samples[i].Geo.NearestRSU; id != "" {
				seen[id] = true
			}
		}
		grouping = len(seen) > 1
	}

	dist := func(s *telemetry.Sample) float64 { return s.Geo.NearestDistM }
	group := func(s *telemetry.Sample) string {
		if grouping {
			return s.Geo.NearestRSU
		}
		return ""
	}
	return build(samples, binM, dist, group)
}

// BuildUnion profiles each sample against its union (minimum-over-references)
// distance, approximating the combined coverage footprint.
func BuildUnion(samples []telemetry.Sample, binM float64) ([]Row, error) {
	if !unionAvailable(samples) {
		return nil, ErrUnionUnavailable
	}
	dist := func(s *telemetry.Sample) float64 { return s.Geo.UnionDistM }
	group := func(*telemetry.Sample) string { return "" }
	return build(samples, binM, dist, group)
}

// unionAvailable reports whether the input was enhanced against at least two
// references, by inspecting the attached per-reference distance columns.
func unionAvailable(samples []telemetry.Sample) bool {
	for i := range samples {
		if len(samples[i].Geo.RefDistM) >= 2 {
			return true
		}
	}
	return false
}
