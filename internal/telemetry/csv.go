package telemetry

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
)

// Required input columns. Their absence is a configuration error raised
// before any processing starts.
var (
	RequiredMetricsColumns = []string{"timestamp", "latitude", "longitude", "delta_bytes"}
	RequiredEventsColumns  = []string{"timestamp", "latitude", "longitude"}
)

func headerIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[strings.TrimSpace(name)] = i
	}
	return idx
}

func checkRequired(idx map[string]int, required []string, path string) error {
	var missing []string
	for _, col := range required {
		if _, ok := idx[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%s: missing required column(s): %s", path, strings.Join(missing, ", "))
	}
	return nil
}

// cell returns the named column of a record, or "" when absent.
func cell(record []string, idx map[string]int, name string) string {
	i, ok := idx[name]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

// parseFloatCell parses a CSV cell, mapping empty or malformed values to NaN.
func parseFloatCell(s string) float64 {
	if s == "" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

// LoadMetrics reads a metrics CSV produced by the live monitor (or an
// equivalent log). Missing required columns are a fatal configuration error;
// unknown extra columns are ignored.
func LoadMetrics(path string) ([]Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open metrics: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read metrics %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%s: empty file, expected a header row", path)
	}

	idx := headerIndex(records[0])
	if err := checkRequired(idx, RequiredMetricsColumns, path); err != nil {
		return nil, err
	}

	samples := make([]Sample, 0, len(records)-1)
	for _, rec := range records[1:] {
		s := Sample{
			RawTimestamp: cell(rec, idx, "timestamp"),
			DeltaBytes:   parseFloatCell(cell(rec, idx, "delta_bytes")),
			PPS:          parseFloatCell(cell(rec, idx, "pps")),
			PDR:          parseFloatCell(cell(rec, idx, "pdr")),
			Lat:          parseFloatCell(cell(rec, idx, "latitude")),
			Lon:          parseFloatCell(cell(rec, idx, "longitude")),
			SpeedMPH:     parseFloatCell(cell(rec, idx, "speed_mph")),
			ElevationM:   math.NaN(),
		}
		if v, err := strconv.ParseInt(cell(rec, idx, "rx_size"), 10, 64); err == nil {
			s.RxSize = v
		}
		if math.IsNaN(s.DeltaBytes) {
			s.DeltaBytes = 0
		}
		samples = append(samples, s)
	}
	return samples, nil
}

// LoadEvents reads an events CSV. Missing required columns are a fatal
// configuration error.
func LoadEvents(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open events: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read events %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%s: empty file, expected a header row", path)
	}

	idx := headerIndex(records[0])
	if err := checkRequired(idx, RequiredEventsColumns, path); err != nil {
		return nil, err
	}

	events := make([]Event, 0, len(records)-1)
	for _, rec := range records[1:] {
		events = append(events, Event{
			RawTimestamp: cell(rec, idx, "timestamp"),
			Type:         cell(rec, idx, "event_type"),
			Reason:       cell(rec, idx, "reason"),
			Lat:          parseFloatCell(cell(rec, idx, "latitude")),
			Lon:          parseFloatCell(cell(rec, idx, "longitude")),
			SpeedMPH:     parseFloatCell(cell(rec, idx, "speed_mph")),
		})
	}
	return events, nil
}

// fmtCell formats a float for CSV output: empty cell for NaN, fixed
// precision otherwise.
func fmtCell(v float64, prec int) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', prec, 64)
}

// MetricsWriter appends one per-second row per tick; each row is flushed
// immediately so a crashed run keeps everything captured so far.
type MetricsWriter struct {
	f *os.File
	w *csv.Writer
}

// MetricsHeader is the live metrics CSV column layout.
var MetricsHeader = []string{"timestamp", "rx_size", "delta_bytes", "pps", "pdr", "latitude", "longitude", "speed_mph"}

// NewMetricsWriter creates the metrics CSV and writes its header.
func NewMetricsWriter(path string) (*MetricsWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create metrics: %w", err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(MetricsHeader); err != nil {
		f.Close()
		return nil, err
	}
	w.Flush()
	return &MetricsWriter{f: f, w: w}, nil
}

// Append writes one sample row.
func (mw *MetricsWriter) Append(s Sample) error {
	row := []string{
		s.Timestamp.Format("2006-01-02 15:04:05"),
		strconv.FormatInt(s.RxSize, 10),
		strconv.FormatFloat(s.DeltaBytes, 'f', -1, 64),
		fmtCell(s.PPS, 2),
		fmtCell(s.PDR, 2),
		fmtCell(s.Lat, 8),
		fmtCell(s.Lon, 8),
		fmtCell(s.SpeedMPH, 2),
	}
	if err := mw.w.Write(row); err != nil {
		return err
	}
	mw.w.Flush()
	return mw.w.Error()
}

// Close flushes and closes the underlying file.
func (mw *MetricsWriter) Close() error {
	mw.w.Flush()
	if err := mw.w.Error(); err != nil {
		mw.f.Close()
		return err
	}
	return mw.f.Close()
}

// EventsWriter appends coverage events as they fire.
type EventsWriter struct {
	f *os.File
	w *csv.Writer
}

// EventsHeader is the live events CSV column layout.
var EventsHeader = []string{"timestamp", "event_type", "reason", "latitude", "longitude", "speed_mph"}

// NewEventsWriter creates the events CSV and writes its header.
func NewEventsWriter(path string) (*EventsWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create events: %w", err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(EventsHeader); err != nil {
		f.Close()
		return nil, err
	}
	w.Flush()
	return &EventsWriter{f: f, w: w}, nil
}

// Append writes one event row. Events without a fix still get a row; only
// the location cells stay empty.
func (ew *EventsWriter) Append(e Event) error {
	row := []string{
		e.Timestamp.Format("2006-01-02 15:04:05"),
		e.Type,
		e.Reason,
		fmtCell(e.Lat, 8),
		fmtCell(e.Lon, 8),
		fmtCell(e.SpeedMPH, 2),
	}
	if err := ew.w.Write(row); err != nil {
		return err
	}
	ew.w.Flush()
	return ew.w.Error()
}

// Close flushes and closes the underlying file.
func (ew *EventsWriter) Close() error {
	ew.w.Flush()
	if err := ew.w.Error(); err != nil {
		ew.f.Close()
		return err
	}
	return ew.f.Close()
}

// WriteEnhancedMetrics writes the post-enhancement metrics table: the
// original live columns plus derived time features, per-reference distances,
// nearest/union assignment and (when resolved) elevation. refIDs fixes the
// distance column order.
func WriteEnhancedMetrics(path string, samples []Sample, refIDs []string, withUnion, withElevation bool) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create enhanced metrics: %w", err)
	}
	defer f.Close()
	w := csv.NewWriter(f)

	header := append([]string{}, MetricsHeader...)
	header = append(header, "t_sec", "dt_sec", "has_pkts", "time_since_last_pkt")
	for _, id := range refIDs {
		header = append(header, "dist_"+id+"_m")
	}
	header = append(header, "nearest_rsu", "dist_from_rsu_m")
	if withUnion {
		header = append(header, "dist_union_m")
	}
	if withElevation {
		header = append(header, "elevation_m")
	}
	if err := w.Write(header); err != nil {
		return err
	}

	for i := range samples {
		s := &samples[i]
		row := []string{
			s.Timestamp.Format("2006-01-02 15:04:05"),
			strconv.FormatInt(s.RxSize, 10),
			strconv.FormatFloat(s.DeltaBytes, 'f', -1, 64),
			fmtCell(s.PPS, 2),
			fmtCell(s.PDR, 2),
			fmtCell(s.Lat, 8),
			fmtCell(s.Lon, 8),
			fmtCell(s.SpeedMPH, 2),
			fmtCell(s.ElapsedSec, -1),
			fmtCell(s.GapSec, -1),
			strconv.Itoa(s.HasPackets),
			fmtCell(s.SinceLastPkt, -1),
		}
		for _, id := range refIDs {
			row = append(row, fmtCell(s.Geo.RefDistM[id], 3))
		}
		row = append(row, s.Geo.NearestRSU, fmtCell(s.Geo.NearestDistM, 3))
		if withUnion {
			row = append(row, fmtCell(s.Geo.UnionDistM, 3))
		}
		if withElevation {
			row = append(row, fmtCell(s.ElevationM, 2))
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// WriteEnhancedEvents writes the events table with distance columns attached.
func WriteEnhancedEvents(path string, events []Event, refIDs []string, withUnion bool) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create enhanced events: %w", err)
	}
	defer f.Close()
	w := csv.NewWriter(f)

	header := append([]string{}, EventsHeader...)
	for _, id := range refIDs {
		header = append(header, "dist_"+id+"_m")
	}
	header = append(header, "nearest_rsu", "dist_from_rsu_m")
	if withUnion {
		header = append(header, "dist_union_m")
	}
	if err := w.Write(header); err != nil {
		return err
	}

	for i := range events {
		e := &events[i]
		ts := e.RawTimestamp
		if !e.Timestamp.IsZero() {
			ts = e.Timestamp.Format("2006-01-02 15:04:05")
		}
		row := []string{
			ts,
			e.Type,
			e.Reason,
			fmtCell(e.Lat, 8),
			fmtCell(e.Lon, 8),
			fmtCell(e.SpeedMPH, 2),
		}
		for _, id := range refIDs {
			row = append(row, fmtCell(e.Geo.RefDistM[id], 3))
		}
		row = append(row, e.Geo.NearestRSU, fmtCell(e.Geo.NearestDistM, 3))
		if withUnion {
			row = append(row, fmtCell(e.Geo.UnionDistM, 3))
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
