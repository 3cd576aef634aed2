package enhance

import (
	"math"

	"github.com/charan268/RSU-Range-Field-Testing/internal/geo"
	"github.com/charan268/RSU-Range-Field-Testing/internal/telemetry"
)

// attach computes all distance features for one table of locations and
// writes them through the supplied setter. Rows with a NaN location get NaN
// distances, an empty nearest id, and are excluded from nearest/union.
func attach(lats, lons []float64, refs []Reference, set func(i int, g telemetry.GeoFeatures)) {
	n := len(lats)

	// One vectorized pass per reference.
	dists := make([][]float64, len(refs))
	for r, ref := range refs {
		dists[r] = geo.MetersTo(lats, lons, ref.Lat, ref.Lon)
	}

	for i := 0; i < n; i++ {
		g := telemetry.GeoFeatures{
			RefDistM:     make(map[string]float64, len(refs)),
			NearestDistM: math.NaN(),
			UnionDistM:   math.NaN(),
		}
		for r, ref := range refs {
			g.RefDistM[ref.ID] = dists[r][i]
		}

		// Argmin in reference input order; strict less-than keeps the
		// first occurrence on ties. NaN distances never win.
		best := math.NaN()
		bestID := ""
		for r, ref := range refs {
			d := dists[r][i]
			if math.IsNaN(d) {
				continue
			}
			if math.IsNaN(best) || d < best {
				best = d
				bestID = ref.ID
			}
		}
		g.NearestDistM = best
		g.NearestRSU = bestID
		if len(refs) > 1 {
			g.UnionDistM = best // min over all references
		}
		set(i, g)
	}
}

// Samples attaches distance features to a telemetry table in place.
func Samples(samples []telemetry.Sample, refs []Reference) {
	lats := make([]float64, len(samples))
	lons := make([]float64, len(samples))
	for i := range samples {
		lats[i], lons[i] = samples[i].Lat, samples[i].Lon
	}
	attach(lats, lons, refs, func(i int, g telemetry.GeoFeatures) {
		samples[i].Geo = g
	})
}

// Events attaches distance features to an event table in place.
func Events(events []telemetry.Event, refs []Reference) {
	lats := make([]float64, len(events))
	lons := make([]float64, len(events))
	for i := range events {
		lats[i], lons[i] = events[i].Lat, events[i].Lon
	}
	attach(lats, lons, refs, func(i int, g telemetry.GeoFeatures) {
		events[i].Geo = g
	})
}
