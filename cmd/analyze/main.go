// Command analyze enhances a recorded monitoring session offline: it repairs
// the capture's time axis, attaches distances to one or more RSU reference
// points, optionally resolves terrain elevation, and bins the result into
// range coverage profiles.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/charan268/RSU-Range-Field-Testing/internal/elevation"
	"github.com/charan268/RSU-Range-Field-Testing/internal/enhance"
	"github.com/charan268/RSU-Range-Field-Testing/internal/profile"
	"github.com/charan268/RSU-Range-Field-Testing/internal/report"
	"github.com/charan268/RSU-Range-Field-Testing/internal/telemetry"
	"github.com/charan268/RSU-Range-Field-Testing/internal/timeline"
	"github.com/charan268/RSU-Range-Field-Testing/internal/version"
)

// stringList collects repeated flag values.
type stringList []string

func (s *stringList) String() string { return fmt.Sprint(*s) }
func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func main() {
	var loopDir string
	var outDir string
	var binMeters float64
	var rsuTokens stringList
	var rsuJSON string
	var addElevation bool
	var elevCache string
	var elevRound int
	var writeUnion bool
	var showVersion bool

	flag.StringVar(&loopDir, "loop-dir", "Raw", "directory holding obu_metrics_log.csv and obu_events_log.csv")
	flag.StringVar(&outDir, "out-dir", "Processed", "directory for enhanced outputs")
	flag.Float64Var(&binMeters, "bin", 50, "distance bin width in meters")
	flag.Var(&rsuTokens, "rsu", "RSU reference as id:lat,lon (repeatable)")
	flag.StringVar(&rsuJSON, "rsu-json", "", "JSON file with RSU references (alternative to -rsu)")
	flag.BoolVar(&addElevation, "add-elevation", false, "resolve terrain elevation for each fix")
	flag.StringVar(&elevCache, "elev-cache", filepath.Join("cache", "elevation_cache.csv"), "elevation cache CSV path")
	flag.IntVar(&elevRound, "elev-round", 5, "coordinate rounding decimals for elevation dedupe")
	flag.BoolVar(&writeUnion, "write-union-profile", false, "also write the union (min-distance) profile")
	flag.BoolVar(&showVersion, "version", false, "print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(version.String())
		return
	}

	refs, err := loadReferences(rsuTokens, rsuJSON)
	if err != nil {
		log.Fatalf("references: %v", err)
	}

	if err := run(context.Background(), loopDir, outDir, binMeters, refs, addElevation, elevCache, elevRound, writeUnion); err != nil {
		log.Fatalf("analyze: %v", err)
	}
}

func loadReferences(tokens stringList, jsonPath string) ([]enhance.Reference, error) {
	if jsonPath != "" {
		if len(tokens) > 0 {
			return nil, errors.New("use either -rsu or -rsu-json, not both")
		}
		return enhance.LoadReferencesJSON(jsonPath)
	}
	if len(tokens) == 0 {
		return nil, errors.New("at least one RSU reference is required (-rsu id:lat,lon)")
	}
	return enhance.ParseReferences(tokens)
}

func run(ctx context.Context, loopDir, outDir string, binMeters float64, refs []enhance.Reference, addElevation bool, elevCache string, elevRound int, writeUnion bool) error {
	samples, err := telemetry.LoadMetrics(filepath.Join(loopDir, "obu_metrics_log.csv"))
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		return fmt.Errorf("%s: no samples to analyze", loopDir)
	}
	log.Printf("loaded %d samples from %s", len(samples), loopDir)

	// Repair the time axis before deriving any time-based feature.
	raw := make([]string, len(samples))
	deltas := make([]float64, len(samples))
	for i := range samples {
		raw[i] = samples[i].RawTimestamp
		deltas[i] = samples[i].DeltaBytes
	}
	times, synthetic := timeline.Repair(raw)
	if synthetic {
		log.Printf("timestamps were unusable; rebuilt a synthetic 1 Hz axis")
	}
	feats := timeline.ComputeFeatures(times, deltas)
	for i := range samples {
		s := &samples[i]
		s.Timestamp = times[i]
		s.ElapsedSec = feats.ElapsedSec[i]
		s.GapSec = feats.GapSec[i]
		s.SinceLastPkt = feats.SinceLastPkt[i]
		if s.DeltaBytes > 0 {
			s.HasPackets = 1
		}
	}

	enhance.Samples(samples, refs)

	withUnion := len(refs) >= 2
	refIDs := enhance.IDs(refs)

	if addElevation {
		lats := make([]float64, len(samples))
		lons := make([]float64, len(samples))
		for i := range samples {
			lats[i], lons[i] = samples[i].Lat, samples[i].Lon
		}
		resolver := elevation.NewResolver(elevation.NewClient(nil, ""), elevCache)
		resolver.RoundDecimals = elevRound
		resolved, err := resolver.Resolve(ctx, lats, lons)
		if err != nil {
			return fmt.Errorf("resolve elevation: %w", err)
		}
		elevation.Annotate(samples, resolved, elevRound)
	}

	if err := os.MkdirAll(outDir, 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	if err := telemetry.WriteEnhancedMetrics(filepath.Join(outDir, "metrics_enhanced.csv"), samples, refIDs, withUnion, addElevation); err != nil {
		return err
	}

	// Events are optional: a run with no boundary crossings has no file.
	eventsPath := filepath.Join(loopDir, "obu_events_log.csv")
	if _, err := os.Stat(eventsPath); err == nil {
		events, err := telemetry.LoadEvents(eventsPath)
		if err != nil {
			return err
		}
		enhance.Events(events, refs)
		if err := telemetry.WriteEnhancedEvents(filepath.Join(outDir, "events_with_distance.csv"), events, refIDs, withUnion); err != nil {
			return err
		}
		log.Printf("enhanced %d events", len(events))
	}

	nearest, err := profile.BuildNearest(samples, binMeters, true)
	if err != nil {
		return err
	}
	if err := profile.WriteCSV(filepath.Join(outDir, "range_profile_nearest.csv"), nearest); err != nil {
		return err
	}
	if err := report.WriteProfileChart(filepath.Join(outDir, "range_profile_nearest.html"), "Range Profile (nearest RSU)", nearest); err != nil {
		return err
	}
	log.Printf("nearest profile: %d bins (bin=%.0fm)", len(nearest), binMeters)

	if writeUnion {
		union, err := profile.BuildUnion(samples, binMeters)
		if err != nil {
			return err
		}
		if err := profile.WriteCSV(filepath.Join(outDir, "range_profile_union.csv"), union); err != nil {
			return err
		}
		log.Printf("union profile: %d bins", len(union))
	}

	if err := enhance.WriteReferencesJSON(filepath.Join(outDir, "rsus_used.json"), refs); err != nil {
		return err
	}

	log.Printf("wrote outputs to %s", outDir)
	return nil
}
