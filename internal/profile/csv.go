package profile

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
)

// WriteCSV writes profile rows to path. The nearest_rsu column is emitted
// only when the rows are grouped by reference.
func WriteCSV(path string, rows []Row) error {
	grouped := false
	for i := range rows {
		if rows[i].NearestRSU != "" {
			grouped = true
			break
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("profile: create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{"bin_m", "bin_center_m", "n_samples", "coverage_fraction", "mean_delta_bytes", "mean_time_since_last_pkt"}
	if grouped {
		header = append([]string{"nearest_rsu"}, header...)
	}
	if err := w.Write(header); err != nil {
		return err
	}
	for i := range rows {
		r := &rows[i]
		rec := []string{
			strconv.FormatFloat(r.BinM, 'f', -1, 64),
			strconv.FormatFloat(r.BinCenterM, 'f', -1, 64),
			strconv.Itoa(r.NSamples),
			strconv.FormatFloat(r.CoverageFraction, 'f', -1, 64),
			strconv.FormatFloat(r.MeanDeltaBytes, 'f', -1, 64),
			strconv.FormatFloat(r.MeanTimeSinceLastPkt, 'f', -1, 64),
		}
		if grouped {
			rec = append([]string{r.NearestRSU}, rec...)
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}
