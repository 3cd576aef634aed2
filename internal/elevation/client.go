// Package elevation resolves ground elevation for telemetry coordinates via
// a per-point query service, with a persistent CSV cache, bounded retries,
// and enforced spacing between external calls. The resolver never fails the
// run it serves: an unreachable service degrades to missing values.
package elevation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// DefaultBaseURL is the USGS EPQS point-query endpoint.
const DefaultBaseURL = "https://epqs.nationalmap.gov/v1/json"

// ErrUnrecognizedShape means the service returned JSON in neither of the two
// known response envelopes.
var ErrUnrecognizedShape = errors.New("elevation: unrecognized response shape")

// Client issues single-point elevation queries.
type Client struct {
	HTTPClient *http.Client
	BaseURL    string
}

// NewClient returns a client against baseURL ("" selects the EPQS default).
func NewClient(httpClient *http.Client, baseURL string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{HTTPClient: httpClient, BaseURL: baseURL}
}

// Lookup queries the elevation in meters at one coordinate. The service
// expects longitude as "x" and latitude as "y".
func (c *Client) Lookup(ctx context.Context, lat, lon float64) (float64, error) {
	q := url.Values{}
	q.Set("x", strconv.FormatFloat(lon, 'f', -1, 64))
	q.Set("y", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("units", "Meters")
	q.Set("wkid", "4326")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return 0, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, fmt.Errorf("elevation query status %d: %s", resp.StatusCode, string(body))
	}

	var payload map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, fmt.Errorf("decoding elevation response: %w", err)
	}
	return parseElevation(payload)
}

// parseElevation accepts the two known response envelopes: a flat
// {"value": N} body, or the nested USGS service envelope
// {"USGS_Elevation_Point_Query_Service": {"Elevation_Query": {"Elevation": N}}}.
// Anything else is an explicit shape error, not a silent zero.
func parseElevation(payload map[string]json.RawMessage) (float64, error) {
	if raw, ok := payload["value"]; ok {
		return decodeNumber(raw)
	}

	if raw, ok := payload["USGS_Elevation_Point_Query_Service"]; ok {
		var svc struct {
			ElevationQuery struct {
				Elevation json.RawMessage `json:"Elevation"`
			} `json:"Elevation_Query"`
		}
		if err := json.Unmarshal(raw, &svc); err == nil && len(svc.ElevationQuery.Elevation) > 0 {
			return decodeNumber(svc.ElevationQuery.Elevation)
		}
	}

	return 0, ErrUnrecognizedShape
}

// decodeNumber tolerates the service's habit of quoting numbers.
func decodeNumber(raw json.RawMessage) (float64, error) {
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			return v, nil
		}
	}
	return 0, ErrUnrecognizedShape
}
