// Package timeline normalizes raw telemetry timestamps into a monotonic,
// non-degenerate per-sample time axis and derives the per-row time features
// used by range-profile aggregation.
//
// Field captures frequently come back with second-granularity clocks that
// cannot distinguish consecutive samples, or with rows whose timestamps did
// not survive the CSV round trip at all. Rather than failing, Repair falls
// back to a synthetic one-sample-per-second axis so every downstream
// distance/time computation still has a usable timeline. The substitution is
// logged, never raised.
package timeline

import (
	"sort"
	"time"

	"github.com/charan268/RSU-Range-Field-Testing/internal/monitoring"
)

// Layouts accepted when parsing recorded timestamps, tried in order. The
// first entry is the format the live monitor writes.
var Layouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02T15:04:05",
}

// Thresholds for declaring a parsed timeline unusable.
const (
	// maxUnparsedFrac: above this fraction of unparseable values the
	// recorded timestamps are abandoned entirely.
	maxUnparsedFrac = 0.5
	// maxZeroDiffFrac: above this fraction of exactly-zero consecutive
	// diffs the clock is too coarse to order samples.
	maxZeroDiffFrac = 0.2
)

func parseOne(s string) (time.Time, bool) {
	for _, layout := range Layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// synthetic returns a one-sample-per-second axis of length n anchored at base,
// preserving input row order.
func synthetic(base time.Time, n int) []time.Time {
	out := make([]time.Time, n)
	for i := range out {
		out[i] = base.Add(time.Duration(i) * time.Second)
	}
	return out
}

// Repair turns a raw timestamp sequence into a usable per-row time axis.
// The returned bool reports whether a synthetic axis was substituted.
//
// If more than half the values fail to parse, the axis is synthesized at 1 Hz
// from the Unix epoch. Otherwise the distribution of consecutive differences
// of the parsed values (in sorted order) is inspected: too many exact zeros,
// or a zero median, means the recorded clock is too coarse, and a 1 Hz axis
// anchored at the first successfully parsed timestamp is substituted instead.
// Individually unparseable rows on an otherwise healthy axis inherit the
// nearest earlier valid timestamp.
func Repair(raw []string) ([]time.Time, bool) {
	n := len(raw)
	if n == 0 {
		return nil, false
	}

	parsed := make([]time.Time, n)
	valid := make([]bool, n)
	nValid := 0
	for i, s := range raw {
		if t, ok := parseOne(s); ok {
			parsed[i], valid[i] = t, true
			nValid++
		}
	}

	if float64(n-nValid)/float64(n) > maxUnparsedFrac {
		monitoring.Logf("timeline: %d/%d timestamps unparseable; substituting 1Hz axis from epoch", n-nValid, n)
		return synthetic(time.Unix(0, 0).UTC(), n), true
	}

	// First valid timestamp in row order anchors any coarse-clock rebuild.
	var first time.Time
	for i := range parsed {
		if valid[i] {
			first = parsed[i]
			break
		}
	}

	if degenerate(parsed, valid, nValid) {
		monitoring.Logf("timeline: recorded clock too coarse; substituting 1Hz axis anchored at %s", first.Format(Layouts[0]))
		return synthetic(first, n), true
	}

	// Healthy axis: backfill the odd unparseable row from its neighbours.
	out := make([]time.Time, n)
	last := first
	for i := range parsed {
		if valid[i] {
			last = parsed[i]
		}
		out[i] = last
	}
	return out, false
}

// degenerate reports whether the parsed timestamps are too coarse to
// distinguish consecutive samples.
func degenerate(parsed []time.Time, valid []bool, nValid int) bool {
	if nValid < 2 {
		return false
	}
	times := make([]time.Time, 0, nValid)
	for i, t := range parsed {
		if valid[i] {
			times = append(times, t)
		}
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })

	diffs := make([]float64, nValid-1)
	zeros := 0
	for i := 1; i < nValid; i++ {
		diffs[i-1] = times[i].Sub(times[i-1]).Seconds()
		if diffs[i-1] == 0 {
			zeros++
		}
	}

	if float64(zeros)/float64(len(diffs)) > maxZeroDiffFrac {
		return true
	}
	return median(diffs) == 0
}

func median(sortedOrNot []float64) float64 {
	v := append([]float64(nil), sortedOrNot...)
	sort.Float64s(v)
	mid := len(v) / 2
	if len(v)%2 == 1 {
		return v[mid]
	}
	return (v[mid-1] + v[mid]) / 2
}

// Features holds the per-row derived time columns.
type Features struct {
	ElapsedSec   []float64 // seconds since the first sample
	GapSec       []float64 // inter-sample gap, 0 for the first row
	SinceLastPkt []float64 // silence duration: resets on a positive byte-delta
}

// ComputeFeatures derives elapsed, gap and silence columns from a repaired
// time axis and the per-row byte deltas. times and deltaBytes must be the
// same length.
func ComputeFeatures(times []time.Time, deltaBytes []float64) Features {
	n := len(times)
	f := Features{
		ElapsedSec:   make([]float64, n),
		GapSec:       make([]float64, n),
		SinceLastPkt: make([]float64, n),
	}
	if n == 0 {
		return f
	}

	silence := 0.0
	for i := 1; i < n; i++ {
		f.ElapsedSec[i] = times[i].Sub(times[0]).Seconds()
		f.GapSec[i] = times[i].Sub(times[i-1]).Seconds()
		if deltaBytes[i] > 0 {
			silence = 0
		} else {
			silence += f.GapSec[i]
		}
		f.SinceLastPkt[i] = silence
	}
	return f
}
