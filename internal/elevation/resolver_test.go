package elevation

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/charan268/RSU-Range-Field-Testing/internal/monitoring"
	"github.com/charan268/RSU-Range-Field-Testing/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	m.Run()
}

// countingServer records how many requests each x/y pair received.
type countingServer struct {
	mu      sync.Mutex
	counts  map[string]int
	handler func(w http.ResponseWriter, r *http.Request)
}

func newCountingServer(handler func(w http.ResponseWriter, r *http.Request)) (*countingServer, *httptest.Server) {
	cs := &countingServer{counts: make(map[string]int), handler: handler}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Query().Get("x") + "/" + r.URL.Query().Get("y")
		cs.mu.Lock()
		cs.counts[key]++
		cs.mu.Unlock()
		cs.handler(w, r)
	}))
	return cs, srv
}

func (cs *countingServer) total() int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	n := 0
	for _, c := range cs.counts {
		n += c
	}
	return n
}

func newTestResolver(srv *httptest.Server, cachePath string) *Resolver {
	r := NewResolver(NewClient(srv.Client(), srv.URL), cachePath)
	r.sleep = func(time.Duration) {}
	return r
}

func TestClientFlatShape(t *testing.T) {
	_, srv := newCountingServer(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"value": 287.42}`)
	})
	defer srv.Close()

	c := NewClient(srv.Client(), srv.URL)
	elev, err := c.Lookup(context.Background(), 36.14, -97.06)
	require.NoError(t, err)
	assert.Equal(t, 287.42, elev)
}

func TestClientQuotedValue(t *testing.T) {
	_, srv := newCountingServer(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"value": "287.42"}`)
	})
	defer srv.Close()

	c := NewClient(srv.Client(), srv.URL)
	elev, err := c.Lookup(context.Background(), 36.14, -97.06)
	require.NoError(t, err)
	assert.Equal(t, 287.42, elev)
}

func TestClientNestedShape(t *testing.T) {
	_, srv := newCountingServer(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"USGS_Elevation_Point_Query_Service": {"Elevation_Query": {"x": -97.06, "y": 36.14, "Elevation": 123.45}}}`)
	})
	defer srv.Close()

	c := NewClient(srv.Client(), srv.URL)
	elev, err := c.Lookup(context.Background(), 36.14, -97.06)
	require.NoError(t, err)
	assert.Equal(t, 123.45, elev)
}

func TestClientUnrecognizedShape(t *testing.T) {
	_, srv := newCountingServer(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"something": "else"}`)
	})
	defer srv.Close()

	c := NewClient(srv.Client(), srv.URL)
	_, err := c.Lookup(context.Background(), 36.14, -97.06)
	assert.ErrorIs(t, err, ErrUnrecognizedShape)
}

func TestClientSendsLonAsXLatAsY(t *testing.T) {
	var gotX, gotY string
	_, srv := newCountingServer(func(w http.ResponseWriter, r *http.Request) {
		gotX = r.URL.Query().Get("x")
		gotY = r.URL.Query().Get("y")
		fmt.Fprint(w, `{"value": 1}`)
	})
	defer srv.Close()

	c := NewClient(srv.Client(), srv.URL)
	_, err := c.Lookup(context.Background(), 36.14, -97.06)
	require.NoError(t, err)
	assert.Equal(t, "-97.06", gotX)
	assert.Equal(t, "36.14", gotY)
}

func TestResolveDeduplicates(t *testing.T) {
	cs, srv := newCountingServer(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"value": 300.0}`)
	})
	defer srv.Close()

	r := newTestResolver(srv, "")

	// Two coordinates identical after rounding to 5 decimals, one distinct.
	lats := []float64{36.141000004, 36.141000001, 36.200000}
	lons := []float64{-97.066000004, -97.066000001, -97.100000}

	resolved, err := r.Resolve(context.Background(), lats, lons)
	require.NoError(t, err)

	assert.Len(t, resolved, 2)
	assert.Equal(t, 2, cs.total(), "identical rounded coords must share one query")
}

func TestResolveRetriesThenMarksMissing(t *testing.T) {
	cs, srv := newCountingServer(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	})
	defer srv.Close()

	r := newTestResolver(srv, "")

	resolved, err := r.Resolve(context.Background(), []float64{36.14}, []float64{-97.06})
	require.NoError(t, err, "service failure must not fail the run")

	k := RoundKey(36.14, -97.06, r.RoundDecimals)
	v, ok := resolved[k]
	require.True(t, ok, "failed point must still get a cache entry")
	assert.True(t, math.IsNaN(v), "failed point must be marked missing")
	assert.Equal(t, r.MaxRetries, cs.total())

	// A second resolve over the same point must hit the sentinel, not the
	// service — but only when the cache persists; without a cache path the
	// in-batch dedupe still prevents a second query within one call.
	resolved2, err := r.Resolve(context.Background(), []float64{36.14, 36.14}, []float64{-97.06, -97.06})
	require.NoError(t, err)
	assert.True(t, math.IsNaN(resolved2[k]))
	assert.Equal(t, 2*r.MaxRetries, cs.total(), "exactly one more retry burst, not two")
}

func TestResolveSentinelPersistsAcrossBatches(t *testing.T) {
	cachePath := filepath.Join(t.TempDir(), "cache", "elevation_cache.csv")

	cs, srv := newCountingServer(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	})
	defer srv.Close()

	r := newTestResolver(srv, cachePath)

	_, err := r.Resolve(context.Background(), []float64{36.14}, []float64{-97.06})
	require.NoError(t, err)
	assert.Equal(t, r.MaxRetries, cs.total())

	// Fresh resolver, same cache file: the NaN sentinel suppresses requerying.
	r2 := newTestResolver(srv, cachePath)
	resolved, err := r2.Resolve(context.Background(), []float64{36.14}, []float64{-97.06})
	require.NoError(t, err)
	assert.True(t, math.IsNaN(resolved[RoundKey(36.14, -97.06, 5)]))
	assert.Equal(t, r.MaxRetries, cs.total(), "no further queries for a sentinel entry")
}

func TestResolveUsesCache(t *testing.T) {
	cachePath := filepath.Join(t.TempDir(), "elevation_cache.csv")
	k := RoundKey(36.14, -97.06, 5)
	require.NoError(t, SaveCache(cachePath, map[Key]float64{k: 250.5}))

	cs, srv := newCountingServer(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"value": 999}`)
	})
	defer srv.Close()

	r := newTestResolver(srv, cachePath)
	resolved, err := r.Resolve(context.Background(), []float64{36.14}, []float64{-97.06})
	require.NoError(t, err)

	assert.Equal(t, 250.5, resolved[k])
	assert.Equal(t, 0, cs.total(), "cached point must not be queried")
}

func TestResolveSkipsNaNCoords(t *testing.T) {
	cs, srv := newCountingServer(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"value": 1}`)
	})
	defer srv.Close()

	r := newTestResolver(srv, "")
	resolved, err := r.Resolve(context.Background(), []float64{math.NaN()}, []float64{-97.0})
	require.NoError(t, err)
	assert.Empty(t, resolved)
	assert.Equal(t, 0, cs.total())
}

func TestCacheRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.csv")
	in := map[Key]float64{
		{36.141, -97.066}: 287.4,
		{36.2, -97.1}:     math.NaN(),
	}
	require.NoError(t, SaveCache(path, in))

	out, err := LoadCache(path)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, 287.4, out[Key{36.141, -97.066}])
	assert.True(t, math.IsNaN(out[Key{36.2, -97.1}]))
}

func TestLoadCacheAbsentIsEmpty(t *testing.T) {
	out, err := LoadCache(filepath.Join(t.TempDir(), "does-not-exist.csv"))
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestLoadCacheMalformedIsFatal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.csv")
	require.NoError(t, os.WriteFile(path, []byte("lat_r,lon_r,elevation_m\nnot-a-number,1,2\n"), 0o644))

	_, err := LoadCache(path)
	assert.Error(t, err)
}

func TestAnnotate(t *testing.T) {
	resolved := map[Key]float64{
		RoundKey(36.14, -97.06, 5): 280.0,
	}
	samples := []telemetry.Sample{
		{Lat: 36.14, Lon: -97.06},
		{Lat: math.NaN(), Lon: math.NaN()},
		{Lat: 40.0, Lon: -100.0}, // not resolved
	}
	Annotate(samples, resolved, 5)

	assert.Equal(t, 280.0, samples[0].ElevationM)
	assert.True(t, math.IsNaN(samples[1].ElevationM))
	assert.True(t, math.IsNaN(samples[2].ElevationM))
}
