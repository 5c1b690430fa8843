package sim

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/tarmac-rally/codriver/pkg/geo"
	"github.com/tarmac-rally/codriver/pkg/roadnet"
)

var simOrigin = geo.Point{Lat: 51.2, Lon: -0.6}

// northRoad is a straight 2km road heading due north from simOrigin.
func northRoad(t *testing.T) *roadnet.Network {
	t.Helper()
	var pts []geo.Point
	for d := 0.0; d <= 2000; d += 50 {
		pts = append(pts, geo.Destination(simOrigin, 0, d))
	}
	nodes := []roadnet.Node{
		{ID: 1, Point: pts[0]},
		{ID: 2, Point: pts[len(pts)-1]},
	}
	edges := []roadnet.Edge{
		{ID: 10, From: 1, To: 2, Geometry: pts},
	}
	return roadnet.NewNetwork(nodes, edges)
}

// ticking returns a clock that advances step per call.
func ticking(step time.Duration) func() time.Time {
	cur := time.Unix(1700000000, 0)
	return func() time.Time {
		cur = cur.Add(step)
		return cur
	}
}

func TestRouteSimFollowsRoad(t *testing.T) {
	net := northRoad(t)
	start := geo.Position{Point: simOrigin, Heading: 0}
	s := NewRouteSim(net, start, RouteOptions{
		SpeedMPS: 10,
		Interval: -1, // no pacing in tests
		Now:      ticking(time.Second),
	})

	var last geo.Position
	for i := 0; i < 5; i++ {
		pos, err := s.Next(context.Background())
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		last = pos
	}

	if d := geo.Haversine(simOrigin, last.Point); math.Abs(d-50) > 2 {
		t.Errorf("travelled %.1fm in 5s at 10m/s, want ~50m", d)
	}
	if math.Abs(geo.AngleDiff(last.Heading, 0)) > 5 {
		t.Errorf("heading = %.1f, want ~0 along a northbound road", last.Heading)
	}
	if last.Speed != 10 {
		t.Errorf("speed = %.1f, want 10", last.Speed)
	}
}

func TestRouteSimCapsStall(t *testing.T) {
	net := northRoad(t)
	s := NewRouteSim(net, geo.Position{Point: simOrigin, Heading: 0}, RouteOptions{
		SpeedMPS: 10,
		Interval: -1,
		Now:      ticking(30 * time.Second),
	})

	pos, err := s.Next(context.Background())
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	// dt is capped at 2s, so at most 20m of travel.
	if d := geo.Haversine(simOrigin, pos.Point); d > 25 {
		t.Errorf("teleported %.1fm across a 30s stall", d)
	}
}

func TestRouteSimOffRoadStraightLine(t *testing.T) {
	empty := roadnet.NewNetwork(nil, nil)
	s := NewRouteSim(empty, geo.Position{Point: simOrigin, Heading: 90}, RouteOptions{
		SpeedMPS: 10,
		Interval: -1,
		Now:      ticking(time.Second),
	})

	pos, err := s.Next(context.Background())
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if d := geo.Haversine(simOrigin, pos.Point); math.Abs(d-10) > 1 {
		t.Errorf("travelled %.1fm, want ~10m dead ahead", d)
	}
	if pos.Heading != 90 {
		t.Errorf("heading changed to %.1f without a route", pos.Heading)
	}
}

const sampleVBO = `File created on 01/05/2026
[header]
satellites
time
latitude
longitude
velocity kmh
heading
[data]
010 120000.00 3060.000000 -30.000000 36.00 45.00
010 120000.10 3060.001000 -30.000000 36.00 45.00
010 120000.20 3060.002000 -30.000000 37.80 46.00
`

func TestTraceReplay(t *testing.T) {
	tr, err := newTraceReplay(strings.NewReader(sampleVBO), TraceOptions{
		SpeedMultiplier: 1e6, // effectively no pacing
		Now:             ticking(100 * time.Millisecond),
	})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	first, err := tr.Next(context.Background())
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if math.Abs(first.Point.Lat-51.0) > 1e-9 || math.Abs(first.Point.Lon-(-0.5)) > 1e-9 {
		t.Errorf("first sample at %.6f,%.6f, want 51,-0.5", first.Point.Lat, first.Point.Lon)
	}
	if math.Abs(first.Speed-10) > 0.01 {
		t.Errorf("speed = %.2f m/s, want 10 from 36 km/h", first.Speed)
	}
	if first.Heading != 45 {
		t.Errorf("heading = %.1f, want 45", first.Heading)
	}

	for i := 0; i < 2; i++ {
		if _, err := tr.Next(context.Background()); err != nil {
			t.Fatalf("next %d: %v", i, err)
		}
	}
	if _, err := tr.Next(context.Background()); !errors.Is(err, ErrTraceEnded) {
		t.Errorf("got %v at end of trace, want ErrTraceEnded", err)
	}
}

func TestTraceReplayRejectsEmpty(t *testing.T) {
	if _, err := newTraceReplay(strings.NewReader("[header]\nno data\n"), TraceOptions{}); err == nil {
		t.Fatal("empty trace accepted")
	}
}
