// Package telemetry defines the row types shared by the live capture loop and
// the offline enhancement pipeline, plus the CSV surfaces both sides exchange.
//
// Missing values are represented as NaN throughout (and as empty cells on
// disk): vectorized distance math then propagates absence naturally instead
// of needing per-field presence flags.
package telemetry

import (
	"math"
	"time"
)

// Event types produced by the presence detector.
const (
	EventEntry = "ENTRY"
	EventExit  = "EXIT"
)

// GeoFeatures holds the distance columns attached by the range enhancer.
type GeoFeatures struct {
	// RefDistM maps reference id to the haversine distance in meters.
	RefDistM map[string]float64
	// NearestRSU is the id of the closest reference, empty when the row has
	// no location.
	NearestRSU string
	// NearestDistM is the distance to NearestRSU (NaN without a location).
	NearestDistM float64
	// UnionDistM is the minimum distance across all references. Only
	// meaningful with two or more references; NaN otherwise.
	UnionDistM float64
}

// Sample is one per-second telemetry row: produced live by the presence
// detector, or imported from a metrics CSV for enhancement.
type Sample struct {
	RawTimestamp string // as recorded; kept for timeline repair
	Timestamp    time.Time

	RxSize     int64
	DeltaBytes float64
	PPS        float64 // smoothed packet-rate estimate
	PDR        float64 // 1 if the smoothing window saw any bytes, else 0
	Lat        float64 // NaN when no GPS fix
	Lon        float64
	SpeedMPH   float64 // NaN when no consecutive-fix speed estimate

	// Derived by the pipeline.
	ElapsedSec   float64
	GapSec       float64
	HasPackets   int
	SinceLastPkt float64
	Geo          GeoFeatures
	ElevationM   float64 // NaN unless resolved
}

// Event is one ENTRY/EXIT coverage transition.
type Event struct {
	RawTimestamp string
	Timestamp    time.Time
	Type         string
	Reason       string
	Lat          float64 // NaN when the fix was unavailable at event time
	Lon          float64
	SpeedMPH     float64 // last-known speed, NaN when never estimated

	Geo GeoFeatures
}

// HasFix reports whether the sample carries a usable location.
func (s *Sample) HasFix() bool {
	return !math.IsNaN(s.Lat) && !math.IsNaN(s.Lon)
}

// HasFix reports whether the event carries a usable location.
func (e *Event) HasFix() bool {
	return !math.IsNaN(e.Lat) && !math.IsNaN(e.Lon)
}
