package sim

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tarmac-rally/codriver/internal/log"
	"github.com/tarmac-rally/codriver/pkg/geo"
)

// TraceReplay replays a recorded VBO GPS trace. VBO logs at 10Hz; the speed
// multiplier compresses or stretches playback time.
type TraceReplay struct {
	points   []geo.Position
	idx      int
	interval time.Duration
	now      func() time.Time
}

// TraceOptions configures replay. Zero values take defaults.
type TraceOptions struct {
	SpeedMultiplier float64 // default 1.0
	Now             func() time.Time
}

// NewTraceReplay parses a VBO file and prepares playback.
func NewTraceReplay(path string, opts TraceOptions) (*TraceReplay, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("sim: open trace: %w", err)
	}
	defer f.Close()
	return newTraceReplay(f, opts)
}

func newTraceReplay(r io.Reader, opts TraceOptions) (*TraceReplay, error) {
	if opts.SpeedMultiplier == 0 {
		opts.SpeedMultiplier = 1
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	points, err := parseVBO(r)
	if err != nil {
		return nil, err
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("sim: trace has no samples")
	}
	log.Info("sim: trace loaded", "samples", len(points))

	return &TraceReplay{
		points:   points,
		interval: time.Duration(float64(100*time.Millisecond) / opts.SpeedMultiplier),
		now:      opts.Now,
	}, nil
}

// Next returns the next recorded sample, pacing playback to the trace rate.
// ErrTraceEnded signals a clean end of input.
func (t *TraceReplay) Next(ctx context.Context) (geo.Position, error) {
	if t.idx >= len(t.points) {
		return geo.Position{}, ErrTraceEnded
	}
	if t.interval > 0 {
		select {
		case <-time.After(t.interval):
		case <-ctx.Done():
			return geo.Position{}, ctx.Err()
		}
	}
	p := t.points[t.idx]
	t.idx++
	p.Time = t.now()
	return p, nil
}

func (t *TraceReplay) Close() error { return nil }

// parseVBO reads the [data] section. Columns: sats time lat lon speed
// heading, coordinates in NMEA minutes, speed in km/h.
func parseVBO(r io.Reader) ([]geo.Position, error) {
	var points []geo.Position
	inData := false

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "[data]" {
			inData = true
			continue
		}
		if !inData || line == "" {
			continue
		}
		if strings.HasPrefix(line, "[") {
			break
		}

		fields := strings.Fields(line)
		if len(fields) < 6 {
			continue
		}
		latMin, err1 := strconv.ParseFloat(fields[2], 64)
		lonMin, err2 := strconv.ParseFloat(fields[3], 64)
		speedKMH, err3 := strconv.ParseFloat(fields[4], 64)
		heading, err4 := strconv.ParseFloat(fields[5], 64)
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
			continue
		}

		points = append(points, geo.Position{
			Point:   geo.Point{Lat: latMin / 60, Lon: lonMin / 60},
			Heading: heading,
			Speed:   speedKMH / 3.6,
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("sim: read trace: %w", err)
	}
	return points, nil
}

var _ Source = (*TraceReplay)(nil)
