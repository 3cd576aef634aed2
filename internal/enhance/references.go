// Package enhance joins distance-to-reference features onto telemetry and
// event tables: per-reference haversine distances, nearest-reference
// assignment, and the union (minimum-over-references) distance used for
// combined-footprint range estimates.
package enhance

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Reference is one fixed roadside unit: a unique id and a WGS84 position.
type Reference struct {
	ID  string  `json:"id"`
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// ParseReference parses one "id:lat,lon" token.
func ParseReference(token string) (Reference, error) {
	name, coords, found := strings.Cut(token, ":")
	if !found {
		return Reference{}, fmt.Errorf("bad reference %q: expected id:lat,lon", token)
	}
	latStr, lonStr, found := strings.Cut(coords, ",")
	if !found {
		return Reference{}, fmt.Errorf("bad reference %q: expected id:lat,lon", token)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
	if err != nil {
		return Reference{}, fmt.Errorf("bad reference %q: latitude: %w", token, err)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(lonStr), 64)
	if err != nil {
		return Reference{}, fmt.Errorf("bad reference %q: longitude: %w", token, err)
	}
	return Reference{ID: strings.TrimSpace(name), Lat: lat, Lon: lon}, nil
}

// ParseReferences parses repeatable command-line tokens. At least one
// reference is mandatory.
func ParseReferences(tokens []string) ([]Reference, error) {
	refs := make([]Reference, 0, len(tokens))
	for _, tok := range tokens {
		r, err := ParseReference(tok)
		if err != nil {
			return nil, err
		}
		refs = append(refs, r)
	}
	if err := validateReferences(refs); err != nil {
		return nil, err
	}
	return refs, nil
}

// LoadReferencesJSON reads a {"rsus": [{id, lat, lon}, ...]} file.
func LoadReferencesJSON(path string) ([]Reference, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read references: %w", err)
	}
	var obj struct {
		RSUs []Reference `json:"rsus"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("parse references %s: %w", path, err)
	}
	if err := validateReferences(obj.RSUs); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return obj.RSUs, nil
}

// WriteReferencesJSON records the references actually used by a run.
func WriteReferencesJSON(path string, refs []Reference) error {
	obj := struct {
		RSUs []Reference `json:"rsus"`
	}{RSUs: refs}
	data, err := json.MarshalIndent(obj, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

func validateReferences(refs []Reference) error {
	if len(refs) == 0 {
		return fmt.Errorf("no references provided; at least one is required")
	}
	seen := make(map[string]bool, len(refs))
	for _, r := range refs {
		if r.ID == "" {
			return fmt.Errorf("reference at (%v, %v) has an empty id", r.Lat, r.Lon)
		}
		if seen[r.ID] {
			return fmt.Errorf("duplicate reference id %q", r.ID)
		}
		seen[r.ID] = true
	}
	return nil
}

// IDs returns the reference ids in input order.
func IDs(refs []Reference) []string {
	ids := make([]string, len(refs))
	for i, r := range refs {
		ids[i] = r.ID
	}
	return ids
}
