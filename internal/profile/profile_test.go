package profile

import (
	"encoding/csv"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/charan268/RSU-Range-Field-Testing/internal/telemetry"
)

func sample(nearest string, nearestDist, unionDist float64, hasPackets int, delta, silence float64) telemetry.Sample {
	s := telemetry.Sample{
		DeltaBytes:   delta,
		HasPackets:   hasPackets,
		SinceLastPkt: silence,
	}
	s.Geo.NearestRSU = nearest
	s.Geo.NearestDistM = nearestDist
	s.Geo.UnionDistM = unionDist
	return s
}

func TestBuildNearestSingleReference(t *testing.T) {
	samples := []telemetry.Sample{
		sample("rsu1", 10, math.NaN(), 1, 420, 0),
		sample("rsu1", 60, math.NaN(), 1, 196, 0),
		sample("rsu1", 120, math.NaN(), 0, 0, 3),
	}
	rows, err := BuildNearest(samples, 50, true)
	if err != nil {
		t.Fatalf("BuildNearest: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}
	// Single nearest reference: no per-reference grouping even when asked.
	wantBins := []float64{0, 50, 100}
	wantCenters := []float64{25, 75, 125}
	wantCoverage := []float64{1, 1, 0}
	for i, r := range rows {
		if r.NearestRSU != "" {
			t.Errorf("row %d: unexpected grouping by %q", i, r.NearestRSU)
		}
		if r.BinM != wantBins[i] || r.BinCenterM != wantCenters[i] {
			t.Errorf("row %d: bin %v center %v, want %v %v", i, r.BinM, r.BinCenterM, wantBins[i], wantCenters[i])
		}
		if r.NSamples != 1 {
			t.Errorf("row %d: n_samples %d, want 1", i, r.NSamples)
		}
		if r.CoverageFraction != wantCoverage[i] {
			t.Errorf("row %d: coverage %v, want %v", i, r.CoverageFraction, wantCoverage[i])
		}
	}
	if rows[0].MeanDeltaBytes != 420 {
		t.Errorf("bin 0 mean delta = %v, want 420", rows[0].MeanDeltaBytes)
	}
	if rows[2].MeanTimeSinceLastPkt != 3 {
		t.Errorf("bin 100 mean silence = %v, want 3", rows[2].MeanTimeSinceLastPkt)
	}
}

func TestBuildNearestBinEdges(t *testing.T) {
	// Left-closed, right-open: a sample sitting exactly on an edge falls
	// into the higher bin.
	samples := []telemetry.Sample{
		sample("rsu1", 49.999, math.NaN(), 1, 98, 0),
		sample("rsu1", 50, math.NaN(), 1, 98, 0),
	}
	rows, err := BuildNearest(samples, 50, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 || rows[0].BinM != 0 || rows[1].BinM != 50 {
		t.Fatalf("got %+v, want bins 0 and 50", rows)
	}
}

func TestBuildNearestAggregates(t *testing.T) {
	samples := []telemetry.Sample{
		sample("rsu1", 10, math.NaN(), 1, 100, 0),
		sample("rsu1", 20, math.NaN(), 0, 0, 2),
		sample("rsu1", 30, math.NaN(), 1, 300, 0),
		sample("rsu1", 40, math.NaN(), 0, 0, 4),
	}
	rows, err := BuildNearest(samples, 50, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	r := rows[0]
	if r.NSamples != 4 {
		t.Errorf("n_samples = %d, want 4", r.NSamples)
	}
	if r.CoverageFraction != 0.5 {
		t.Errorf("coverage = %v, want 0.5", r.CoverageFraction)
	}
	if r.MeanDeltaBytes != 100 {
		t.Errorf("mean delta = %v, want 100", r.MeanDeltaBytes)
	}
	if r.MeanTimeSinceLastPkt != 1.5 {
		t.Errorf("mean silence = %v, want 1.5", r.MeanTimeSinceLastPkt)
	}
}

func TestBuildNearestGroupsByReference(t *testing.T) {
	samples := []telemetry.Sample{
		sample("east", 10, math.NaN(), 1, 98, 0),
		sample("west", 10, math.NaN(), 1, 98, 0),
		sample("east", 70, math.NaN(), 0, 0, 1),
	}
	rows, err := BuildNearest(samples, 50, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}
	// Sorted by reference, then bin.
	want := []struct {
		rsu string
		bin float64
	}{{"east", 0}, {"east", 50}, {"west", 0}}
	for i, w := range want {
		if rows[i].NearestRSU != w.rsu || rows[i].BinM != w.bin {
			t.Errorf("row %d: (%q, %v), want (%q, %v)", i, rows[i].NearestRSU, rows[i].BinM, w.rsu, w.bin)
		}
	}
}

func TestBuildNearestSkipsMissingDistance(t *testing.T) {
	samples := []telemetry.Sample{
		sample("rsu1", 10, math.NaN(), 1, 98, 0),
		sample("", math.NaN(), math.NaN(), 1, 98, 0),
		sample("rsu1", 20, math.NaN(), 1, 98, 0),
	}
	rows, err := BuildNearest(samples, 50, false)
	if err != nil {
		t.Fatal(err)
	}
	total := 0
	for _, r := range rows {
		total += r.NSamples
	}
	if total != 2 {
		t.Errorf("binned %d samples, want 2 (NaN distance excluded)", total)
	}
}

func TestBuildNearestRejectsBadBin(t *testing.T) {
	if _, err := BuildNearest(nil, 0, false); err == nil {
		t.Error("bin width 0 accepted")
	}
	if _, err := BuildNearest(nil, -50, false); err == nil {
		t.Error("negative bin width accepted")
	}
}

func TestBuildUnion(t *testing.T) {
	samples := []telemetry.Sample{
		sample("east", 120, 40, 1, 98, 0),
		sample("west", 90, 90, 0, 0, 2),
	}
	for i := range samples {
		samples[i].Geo.RefDistM = map[string]float64{"east": 120, "west": 90}
	}
	rows, err := BuildUnion(samples, 50)
	if err != nil {
		t.Fatalf("BuildUnion: %v", err)
	}
	if len(rows) != 2 || rows[0].BinM != 0 || rows[1].BinM != 50 {
		t.Fatalf("got %+v, want bins 0 and 50", rows)
	}
	if rows[0].CoverageFraction != 1 || rows[1].CoverageFraction != 0 {
		t.Errorf("coverage = %v, %v", rows[0].CoverageFraction, rows[1].CoverageFraction)
	}
}

func TestBuildUnionNeedsTwoReferences(t *testing.T) {
	samples := []telemetry.Sample{sample("only", 10, math.NaN(), 1, 98, 0)}
	samples[0].Geo.RefDistM = map[string]float64{"only": 10}
	if _, err := BuildUnion(samples, 50); err != ErrUnionUnavailable {
		t.Fatalf("got %v, want ErrUnionUnavailable", err)
	}
}

func TestWriteCSV(t *testing.T) {
	rows := []Row{
		{NearestRSU: "east", BinM: 0, BinCenterM: 25, NSamples: 3, CoverageFraction: 1, MeanDeltaBytes: 98, MeanTimeSinceLastPkt: 0},
		{NearestRSU: "west", BinM: 50, BinCenterM: 75, NSamples: 2, CoverageFraction: 0.5, MeanDeltaBytes: 49, MeanTimeSinceLastPkt: 1},
	}
	path := filepath.Join(t.TempDir(), "profile.csv")
	if err := WriteCSV(path, rows); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	recs, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 3 {
		t.Fatalf("got %d records, want header + 2 rows", len(recs))
	}
	if recs[0][0] != "nearest_rsu" {
		t.Errorf("grouped output missing nearest_rsu column: %v", recs[0])
	}
	if recs[1][0] != "east" || recs[1][1] != "0" || recs[1][3] != "3" {
		t.Errorf("row 1 = %v", recs[1])
	}

	// Ungrouped rows drop the reference column.
	ungrouped := []Row{{BinM: 0, BinCenterM: 25, NSamples: 1, CoverageFraction: 1}}
	path2 := filepath.Join(t.TempDir(), "profile2.csv")
	if err := WriteCSV(path2, ungrouped); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(path2)
	if err != nil {
		t.Fatal(err)
	}
	if string(b[:5]) != "bin_m" {
		t.Errorf("ungrouped header = %q", string(b))
	}
}
