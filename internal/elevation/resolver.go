package elevation

import (
	"context"
	"math"
	"time"

	"github.com/charan268/RSU-Range-Field-Testing/internal/monitoring"
	"github.com/charan268/RSU-Range-Field-Testing/internal/telemetry"
)

// Resolver turns coordinate sets into elevations. Lookups are deduplicated
// on rounded coordinates, answered from the cache when possible, and issued
// sequentially with a minimum spacing to respect the service's rate limits.
type Resolver struct {
	Client        *Client
	CachePath     string        // "" disables persistence
	RoundDecimals int           // cache key precision
	MaxRetries    int           // attempts per point before marking missing
	RetryBase     time.Duration // backoff grows linearly from this
	QueryPause    time.Duration // minimum spacing between distinct queries

	// sleep is swappable so tests run instantly.
	sleep func(time.Duration)
}

// NewResolver applies the field defaults: 5 decimals, 3 attempts, 400ms
// backoff step, 120ms between queries.
func NewResolver(client *Client, cachePath string) *Resolver {
	return &Resolver{
		Client:        client,
		CachePath:     cachePath,
		RoundDecimals: 5,
		MaxRetries:    3,
		RetryBase:     400 * time.Millisecond,
		QueryPause:    120 * time.Millisecond,
		sleep:         time.Sleep,
	}
}

// Resolve returns an elevation (or NaN for permanently failed points) for
// every distinct rounded coordinate among the inputs. NaN input coordinates
// are skipped. The only errors that escape are cache load/save problems;
// service failures degrade to NaN entries.
func (r *Resolver) Resolve(ctx context.Context, lats, lons []float64) (map[Key]float64, error) {
	cache := make(map[Key]float64)
	if r.CachePath != "" {
		var err error
		cache, err = LoadCache(r.CachePath)
		if err != nil {
			return nil, err
		}
	}

	// Dedupe in first-appearance order.
	var missing []Key
	seen := make(map[Key]bool)
	for i := range lats {
		if math.IsNaN(lats[i]) || math.IsNaN(lons[i]) {
			continue
		}
		k := RoundKey(lats[i], lons[i], r.RoundDecimals)
		if seen[k] {
			continue
		}
		seen[k] = true
		if _, cached := cache[k]; !cached {
			missing = append(missing, k)
		}
	}

	monitoring.Logf("elevation: unique coords=%d, missing=%d", len(seen), len(missing))

	for _, k := range missing {
		if ctx.Err() != nil {
			break
		}
		elev, ok := r.lookupWithRetry(ctx, k)
		if ok {
			cache[k] = elev
		} else {
			// Sentinel: never retried within this cache lifetime.
			cache[k] = math.NaN()
		}
		r.pause(r.QueryPause)
	}

	if r.CachePath != "" {
		if err := SaveCache(r.CachePath, cache); err != nil {
			return nil, err
		}
	}
	return cache, nil
}

func (r *Resolver) lookupWithRetry(ctx context.Context, k Key) (float64, bool) {
	var lastErr error
	for attempt := 1; attempt <= r.MaxRetries; attempt++ {
		elev, err := r.Client.Lookup(ctx, k.Lat, k.Lon)
		if err == nil {
			return elev, true
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		r.pause(time.Duration(attempt) * r.RetryBase)
	}
	monitoring.Logf("elevation: point (%v,%v) failed after %d attempts: %v", k.Lat, k.Lon, r.MaxRetries, lastErr)
	return 0, false
}

func (r *Resolver) pause(d time.Duration) {
	if r.sleep != nil {
		r.sleep(d)
	} else {
		time.Sleep(d)
	}
}

// Annotate fills each sample's ElevationM from a resolved map, leaving NaN
// for samples without a fix or without a resolution.
func Annotate(samples []telemetry.Sample, resolved map[Key]float64, decimals int) {
	for i := range samples {
		s := &samples[i]
		if !s.HasFix() {
			s.ElevationM = math.NaN()
			continue
		}
		k := RoundKey(s.Lat, s.Lon, decimals)
		if v, ok := resolved[k]; ok {
			s.ElevationM = v
		} else {
			s.ElevationM = math.NaN()
		}
	}
}
