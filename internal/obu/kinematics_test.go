package obu

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/charan268/RSU-Range-Field-Testing/internal/monitoring"
)

const kinematicsFixture = `
kinematics sample client
utc time          - 123456789
latitude          - 36.14096492
longitude         - -97.06612302
altitude          - 287.4
heading           - 181.2
`

func TestParseFix(t *testing.T) {
	tests := []struct {
		name    string
		output  string
		wantLat float64
		wantLon float64
		wantOK  bool
	}{
		{
			name:    "full fixture",
			output:  kinematicsFixture,
			wantLat: 36.14096492,
			wantLon: -97.06612302,
			wantOK:  true,
		},
		{
			name:   "latitude only",
			output: "latitude          - 36.14096492\n",
			wantOK: false,
		},
		{
			name:   "longitude only",
			output: "longitude         - -97.06612302\n",
			wantOK: false,
		},
		{
			name:   "no GNSS lock",
			output: "latitude          - n/a\nlongitude         - n/a\n",
			wantOK: false,
		},
		{
			name:   "empty output",
			output: "",
			wantOK: false,
		},
		{
			name:   "missing dash delimiter",
			output: "latitude 36.14\nlongitude -97.06\n",
			wantOK: false,
		},
		{
			name:    "indented fields",
			output:  "   latitude - 1.5\n   longitude - 2.5\n",
			wantLat: 1.5,
			wantLon: 2.5,
			wantOK:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lat, lon, ok := ParseFix(tt.output)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				if !math.IsNaN(lat) || !math.IsNaN(lon) {
					t.Errorf("failed parse should return NaNs, got (%v, %v)", lat, lon)
				}
				return
			}
			if lat != tt.wantLat || lon != tt.wantLon {
				t.Errorf("fix = (%v, %v), want (%v, %v)", lat, lon, tt.wantLat, tt.wantLon)
			}
		})
	}
}

func TestGPSReadFix(t *testing.T) {
	monitoring.SetLogger(nil)

	m := &MockSession{RunOutput: kinematicsFixture}
	g := NewGPS(m)

	lat, lon, ok := g.ReadFix(context.Background())
	if !ok {
		t.Fatal("expected a fix")
	}
	if lat != 36.14096492 || lon != -97.06612302 {
		t.Errorf("fix = (%v, %v)", lat, lon)
	}
}

func TestGPSReadFixCommandFailure(t *testing.T) {
	monitoring.SetLogger(nil)

	m := &MockSession{RunErr: errors.New("exec failed")}
	g := NewGPS(m)

	lat, lon, ok := g.ReadFix(context.Background())
	if ok {
		t.Fatal("expected no fix on command failure")
	}
	if !math.IsNaN(lat) || !math.IsNaN(lon) {
		t.Errorf("expected NaNs, got (%v, %v)", lat, lon)
	}
}

func TestMockSessionSizes(t *testing.T) {
	ctx := context.Background()
	m := &MockSession{Sizes: []int64{100, 200}, FailAfter: true}

	for _, want := range []int64{100, 200} {
		got, err := m.FileSize(ctx, "rx.pcap")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != want {
			t.Errorf("size = %d, want %d", got, want)
		}
	}
	if _, err := m.FileSize(ctx, "rx.pcap"); !errors.Is(err, ErrLinkDown) {
		t.Errorf("expected ErrLinkDown after exhaustion, got %v", err)
	}
}
