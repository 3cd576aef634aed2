// Package detector implements the debounced coverage presence state machine
// for the live field-capture loop. It infers packet arrival from the growth
// of the OBU's receive capture file: per-second byte deltas are smoothed over
// a short sliding window, and ENTRY/EXIT transitions fire only after a
// configured number of consecutive active or silent ticks.
package detector

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/charan268/RSU-Range-Field-Testing/internal/geo"
	"github.com/charan268/RSU-Range-Field-Testing/internal/monitoring"
	"github.com/charan268/RSU-Range-Field-Testing/internal/obu"
	"github.com/charan268/RSU-Range-Field-Testing/internal/telemetry"
	"github.com/charan268/RSU-Range-Field-Testing/internal/units"
)

// ErrLinkLost is returned when the remote size read fails. There is no
// recovery: without the capture file size no further samples mean anything,
// so the live loop must terminate and close its resources.
var ErrLinkLost = errors.New("detector: remote link lost")

// State of the coverage state machine.
type State int

const (
	Outside State = iota
	Inside
)

func (s State) String() string {
	if s == Inside {
		return "INSIDE"
	}
	return "OUTSIDE"
}

// GPSReader yields the current fix, ok=false when unavailable this tick.
type GPSReader interface {
	ReadFix(ctx context.Context) (lat, lon float64, ok bool)
}

// GPSFunc adapts a function to GPSReader.
type GPSFunc func(ctx context.Context) (lat, lon float64, ok bool)

// ReadFix implements GPSReader.
func (f GPSFunc) ReadFix(ctx context.Context) (float64, float64, bool) {
	return f(ctx)
}

// Config holds the detector tuning. All tick counts are in poll intervals.
type Config struct {
	RemotePath      string        // capture file to watch on the OBU
	PacketSizeBytes float64       // assumed bytes per packet for the rate estimate
	PollInterval    time.Duration // tick length
	EntryTicks      int           // consecutive active ticks before ENTRY
	ExitTicks       int           // consecutive silent ticks before EXIT
	WindowTicks     int           // smoothing window length
}

// Validate rejects configurations the state machine cannot run with.
func (c *Config) Validate() error {
	if c.RemotePath == "" {
		return errors.New("detector config: remote path is required")
	}
	if c.PacketSizeBytes <= 0 {
		return fmt.Errorf("detector config: packet size must be positive, got %v", c.PacketSizeBytes)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("detector config: poll interval must be positive, got %v", c.PollInterval)
	}
	if c.EntryTicks <= 0 || c.ExitTicks <= 0 {
		return fmt.Errorf("detector config: entry/exit tick thresholds must be positive, got %d/%d", c.EntryTicks, c.ExitTicks)
	}
	if c.WindowTicks <= 0 {
		return fmt.Errorf("detector config: window must be positive, got %d", c.WindowTicks)
	}
	return nil
}

// TickResult is what one poll tick produces: always a sample, and an event
// when the tick crossed a debounce threshold.
type TickResult struct {
	Sample telemetry.Sample
	Event  *telemetry.Event
}

// Detector is the per-run state machine. Not safe for concurrent ticks; the
// live loop is single-threaded by design.
type Detector struct {
	cfg     Config
	session obu.Session
	gps     GPSReader

	state        State
	prevSize     int64
	primed       bool
	window       []float64
	entryCounter int
	exitCounter  int

	tick         int
	prevLat      float64
	prevLon      float64
	prevFixTick  int // tick index of the last valid fix, -1 when none
	lastSpeedMPH float64
}

// New builds a detector in the OUTSIDE state.
func New(cfg Config, session obu.Session, gps GPSReader) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Detector{
		cfg:          cfg,
		session:      session,
		gps:          gps,
		state:        Outside,
		prevFixTick:  -1,
		lastSpeedMPH: math.NaN(),
	}, nil
}

// State returns the current coverage state.
func (d *Detector) State() State { return d.state }

// Prime performs the initial size read so the first tick's delta is relative
// to the run start rather than to zero. A failure here is already a dead
// link.
func (d *Detector) Prime(ctx context.Context) error {
	size, err := d.session.FileSize(ctx, d.cfg.RemotePath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLinkLost, err)
	}
	d.prevSize = size
	d.primed = true
	return nil
}

// Tick runs one poll cycle: size read, smoothing, debounce, GPS, emit.
// The returned error is only ever ErrLinkLost (wrapped); everything else
// degrades the tick's data instead of failing it.
func (d *Detector) Tick(ctx context.Context, now time.Time) (TickResult, error) {
	size, err := d.session.FileSize(ctx, d.cfg.RemotePath)
	if err != nil {
		return TickResult{}, fmt.Errorf("%w: %v", ErrLinkLost, err)
	}

	var delta float64
	if d.primed {
		delta = math.Max(0, float64(size-d.prevSize))
	}
	d.prevSize = size
	d.primed = true

	d.window = append(d.window, delta)
	if len(d.window) > d.cfg.WindowTicks {
		d.window = d.window[1:]
	}
	windowTotal := 0.0
	for _, v := range d.window {
		windowTotal += v
	}

	windowSecs := float64(len(d.window)) * d.cfg.PollInterval.Seconds()
	pps := windowTotal / d.cfg.PacketSizeBytes / windowSecs
	pdr := 0.0
	if windowTotal > 0 {
		pdr = 1.0
	}

	lat, lon, speedMPH := d.updatePosition(ctx)

	sample := telemetry.Sample{
		RawTimestamp: now.Format("2006-01-02 15:04:05"),
		Timestamp:    now,
		RxSize:       size,
		DeltaBytes:   delta,
		PPS:          pps,
		PDR:          pdr,
		Lat:          lat,
		Lon:          lon,
		SpeedMPH:     speedMPH,
		ElevationM:   math.NaN(),
	}

	if windowTotal > 0 {
		d.entryCounter++
		d.exitCounter = 0
	} else {
		d.exitCounter++
		d.entryCounter = 0
	}

	result := TickResult{Sample: sample}

	switch {
	case d.state == Outside && d.entryCounter >= d.cfg.EntryTicks:
		d.state = Inside
		d.entryCounter = 0
		result.Event = d.emitEvent(ctx, now, telemetry.EventEntry,
			fmt.Sprintf("window_bytes=%.0f (>0) for %d ticks; pps~%.2f (smoothed)", windowTotal, d.cfg.EntryTicks, pps))

	case d.state == Inside && d.exitCounter >= d.cfg.ExitTicks:
		d.state = Outside
		d.exitCounter = 0
		result.Event = d.emitEvent(ctx, now, telemetry.EventExit,
			fmt.Sprintf("window_bytes=0 for %d ticks; pps~%.2f (smoothed)", d.cfg.ExitTicks, pps))
	}

	d.tick++
	return result, nil
}

// updatePosition reads the tick's GPS fix and estimates instantaneous speed.
// Speed uses the fixed poll interval as the time base and is only computed
// when the previous tick also had a valid fix, so a reappearing fix after a
// gap never produces a bogus jump speed.
func (d *Detector) updatePosition(ctx context.Context) (lat, lon, speedMPH float64) {
	speedMPH = math.NaN()
	lat, lon, ok := d.gps.ReadFix(ctx)
	if !ok {
		monitoring.Logf("no GPS fix for tick %d; sample emitted without location", d.tick)
		return math.NaN(), math.NaN(), speedMPH
	}

	if d.prevFixTick >= 0 && d.prevFixTick == d.tick-1 {
		distM := geo.Meters(d.prevLat, d.prevLon, lat, lon)
		speedMPS := distM / d.cfg.PollInterval.Seconds()
		speedMPH = units.ConvertSpeed(speedMPS, units.MPH)
		d.lastSpeedMPH = speedMPH
	}

	d.prevLat, d.prevLon = lat, lon
	d.prevFixTick = d.tick
	return lat, lon, speedMPH
}

// emitEvent captures a fresh fix at the moment of transition and stamps the
// event with the last-known speed.
func (d *Detector) emitEvent(ctx context.Context, now time.Time, kind, reason string) *telemetry.Event {
	lat, lon, ok := d.gps.ReadFix(ctx)
	if !ok {
		lat, lon = math.NaN(), math.NaN()
		monitoring.Logf("%s event at %s has no GPS fix; it will be logged but not plotted", kind, now.Format("15:04:05"))
	}
	return &telemetry.Event{
		RawTimestamp: now.Format("2006-01-02 15:04:05"),
		Timestamp:    now,
		Type:         kind,
		Reason:       reason,
		Lat:          lat,
		Lon:          lon,
		SpeedMPH:     d.lastSpeedMPH,
	}
}
