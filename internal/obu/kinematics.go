package obu

import (
	"context"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/charan268/RSU-Range-Field-Testing/internal/monitoring"
)

// DefaultKinematicsCmd prints one live GNSS sample on the OBU.
const DefaultKinematicsCmd = "cd /mnt/rw/example1609 && kinematics-sample-client -a -n1"

// GPS reads position fixes by running the kinematics client over the remote
// session. A failed read is not fatal: the caller gets ok=false for that
// tick and carries on.
type GPS struct {
	Session Session
	Command string
	Timeout time.Duration
}

// NewGPS wires a GPS reader onto an existing session with the default
// command and a 4 second timeout.
func NewGPS(session Session) *GPS {
	return &GPS{Session: session, Command: DefaultKinematicsCmd, Timeout: 4 * time.Second}
}

// ReadFix runs the kinematics client and parses a fix out of its output.
// Returns (NaN, NaN, false) when the command fails or either field is
// missing or malformed.
func (g *GPS) ReadFix(ctx context.Context) (lat, lon float64, ok bool) {
	out, err := g.Session.Run(ctx, g.Command, g.Timeout)
	if err != nil {
		monitoring.Logf("GPS read failed: %v", err)
		return math.NaN(), math.NaN(), false
	}
	return ParseFix(out)
}

// ParseFix scans kinematics-client output for the latitude and longitude
// fields. Lines look like:
//
//	latitude          - 36.14096492
//	longitude         - -97.06612302
//
// A field is present only when the line starts with the field name and the
// text after the first dash parses as a float.
func ParseFix(output string) (lat, lon float64, ok bool) {
	var haveLat, haveLon bool
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "latitude"):
			if v, got := parseDashField(line); got {
				lat, haveLat = v, true
			}
		case strings.HasPrefix(line, "longitude"):
			if v, got := parseDashField(line); got {
				lon, haveLon = v, true
			}
		}
	}
	if haveLat && haveLon {
		return lat, lon, true
	}
	return math.NaN(), math.NaN(), false
}

func parseDashField(line string) (float64, bool) {
	_, value, found := strings.Cut(line, "-")
	if !found {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
