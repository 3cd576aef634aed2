package elevation

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
)

// Key is a coordinate rounded to the resolver's precision. Two raw
// coordinates that round to the same key share one lookup and one cache row.
type Key struct {
	Lat float64
	Lon float64
}

// RoundKey rounds a coordinate to the given number of decimals.
func RoundKey(lat, lon float64, decimals int) Key {
	p := math.Pow(10, float64(decimals))
	return Key{
		Lat: math.Round(lat*p) / p,
		Lon: math.Round(lon*p) / p,
	}
}

var cacheHeader = []string{"lat_r", "lon_r", "elevation_m"}

// LoadCache reads the persisted cache. An absent file is an empty cache; a
// file that exists but cannot be parsed is a fatal load error, since
// silently dropping a cache would re-hammer the external service.
func LoadCache(path string) (map[Key]float64, error) {
	cache := make(map[Key]float64)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cache, nil
		}
		return nil, fmt.Errorf("open elevation cache: %w", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse elevation cache %s: %w", path, err)
	}
	if len(records) == 0 {
		return cache, nil
	}

	for i, rec := range records[1:] {
		if len(rec) < 3 {
			return nil, fmt.Errorf("elevation cache %s row %d: want 3 columns, got %d", path, i+2, len(rec))
		}
		lat, err := strconv.ParseFloat(rec[0], 64)
		if err != nil {
			return nil, fmt.Errorf("elevation cache %s row %d: bad lat_r %q", path, i+2, rec[0])
		}
		lon, err := strconv.ParseFloat(rec[1], 64)
		if err != nil {
			return nil, fmt.Errorf("elevation cache %s row %d: bad lon_r %q", path, i+2, rec[1])
		}
		elev, err := strconv.ParseFloat(rec[2], 64)
		if err != nil {
			return nil, fmt.Errorf("elevation cache %s row %d: bad elevation_m %q", path, i+2, rec[2])
		}
		cache[Key{lat, lon}] = elev
	}
	return cache, nil
}

// SaveCache writes the cache out, creating parent directories as needed.
// NaN rows are kept: a permanently failed coordinate stays marked missing so
// later runs do not retry it pointlessly.
func SaveCache(path string, cache map[Key]float64) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create cache dir: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create elevation cache: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(cacheHeader); err != nil {
		return err
	}
	for k, v := range cache {
		rec := []string{
			strconv.FormatFloat(k.Lat, 'f', -1, 64),
			strconv.FormatFloat(k.Lon, 'f', -1, 64),
			strconv.FormatFloat(v, 'f', -1, 64),
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
