package sim

import (
	"context"
	"time"

	"github.com/tarmac-rally/codriver/internal/log"
	"github.com/tarmac-rally/codriver/pkg/geo"
	"github.com/tarmac-rally/codriver/pkg/projector"
	"github.com/tarmac-rally/codriver/pkg/roadnet"
)

const routeLengthM = 5000

// RouteSim drives along the road ahead of the starting position at constant
// speed. The route is projected once at construction; past its end the
// simulator continues dead ahead.
type RouteSim struct {
	route   []geo.Point
	idx     int
	pos     geo.Point
	heading float64
	speed   float64

	interval time.Duration
	now      func() time.Time
	last     time.Time
}

// RouteOptions configures the simulator. Zero values take defaults.
type RouteOptions struct {
	SpeedMPS float64       // default 13.4, about 48 km/h
	Interval time.Duration // sample period, default 1s
	Now      func() time.Time
}

// NewRouteSim projects a route from start and follows it. Starting off-road
// is not an error; the simulator then runs in a straight line.
func NewRouteSim(net *roadnet.Network, start geo.Position, opts RouteOptions) *RouteSim {
	if opts.SpeedMPS == 0 {
		opts.SpeedMPS = 13.4
	}
	if opts.Interval == 0 {
		opts.Interval = time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &RouteSim{
		pos:      start.Point,
		heading:  start.Heading,
		speed:    opts.SpeedMPS,
		interval: opts.Interval,
		now:      opts.Now,
	}

	path := projector.New(net).Project(start.Point, start.Heading, routeLengthM)
	if !path.OffRoad() {
		s.route = append(s.route, start.Point)
		for _, p := range path.Points {
			s.route = append(s.route, p.Point)
		}
		log.Info("sim: route built", "points", len(s.route), "length_m", path.Length)
	} else {
		log.Warn("sim: start is off-road, running straight-line")
	}

	s.last = s.now()
	return s
}

// Next advances the simulated vehicle and returns its position.
func (s *RouteSim) Next(ctx context.Context) (geo.Position, error) {
	if s.interval > 0 {
		select {
		case <-time.After(s.interval):
		case <-ctx.Done():
			return geo.Position{}, ctx.Err()
		}
	}

	now := s.now()
	dt := now.Sub(s.last).Seconds()
	s.last = now
	// Large stalls must not teleport the car.
	if dt > 2 {
		dt = 2
	}

	s.advance(s.speed * dt)
	return geo.Position{Point: s.pos, Heading: s.heading, Speed: s.speed, Time: now}, nil
}

func (s *RouteSim) advance(dist float64) {
	for dist > 0 && s.idx < len(s.route)-1 {
		next := s.route[s.idx+1]
		toNext := geo.Haversine(s.pos, next)
		if dist >= toNext {
			dist -= toNext
			s.idx++
			s.pos = next
		} else {
			s.pos = geo.Destination(s.pos, geo.Bearing(s.pos, next), dist)
			dist = 0
		}
		if s.idx < len(s.route)-1 {
			s.heading = geo.Bearing(s.pos, s.route[s.idx+1])
		}
	}
	if dist > 0 {
		// Past the end of the route, or no route at all.
		s.pos = geo.Destination(s.pos, s.heading, dist)
	}
}

func (s *RouteSim) Close() error { return nil }

var _ Source = (*RouteSim)(nil)
