// Package engine runs the real-time co-driver loop: one full projection,
// detection, generation, and scheduling pass per position sample.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/tarmac-rally/codriver/internal/log"
	"github.com/tarmac-rally/codriver/internal/metrics"
	"github.com/tarmac-rally/codriver/pkg/caller"
	"github.com/tarmac-rally/codriver/pkg/corners"
	"github.com/tarmac-rally/codriver/pkg/geo"
	"github.com/tarmac-rally/codriver/pkg/pacenote"
	"github.com/tarmac-rally/codriver/pkg/projector"
	"github.com/tarmac-rally/codriver/pkg/roadnet"
	"github.com/tarmac-rally/codriver/pkg/sim"
)

// TickState is a snapshot of one pass, published to observers such as the
// web dashboard.
type TickState struct {
	Tick     uint64                `json:"tick"`
	Position geo.Position          `json:"position"`
	OffRoad  bool                  `json:"off_road"`
	PathLen  float64               `json:"path_length_m"`
	Path     []projector.PathPoint `json:"path,omitempty"`
	Notes    []pacenote.Note       `json:"notes,omitempty"`
	Events   []caller.CallEvent    `json:"events,omitempty"`
	Duration time.Duration         `json:"duration"`
}

// Options configures the engine. Zero values take defaults.
type Options struct {
	LookaheadM        float64 // default 1000
	HeadingTolDeg     float64 // junction selection tolerance
	SnapToleranceM    float64 // max distance to an edge before off-road
	SampleStepM       float64 // path resampling interval
	CornerMinRadiusM  float64 // curvature peak threshold
	CornerMinAngleDeg float64 // straight suppression threshold
	MergeDistanceM    float64 // pacenote "into" chaining gap

	Metrics *metrics.Collector
	OnTick  func(TickState)
}

// Engine owns the per-tick pipeline. All scheduling state lives in the
// scheduler it was given; the engine itself only sequences the pass.
type Engine struct {
	src   sim.Source
	proj  *projector.Projector
	det   *corners.Detector
	gen   *pacenote.Generator
	sched *caller.Scheduler
	opts  Options
	tick  uint64
}

func New(net *roadnet.Network, src sim.Source, sched *caller.Scheduler, opts Options) *Engine {
	if opts.LookaheadM == 0 {
		opts.LookaheadM = 1000
	}

	proj := projector.New(net)
	if opts.HeadingTolDeg > 0 {
		proj.HeadingToleranceDeg = opts.HeadingTolDeg
	}
	if opts.SnapToleranceM > 0 {
		proj.SnapToleranceM = opts.SnapToleranceM
	}
	if opts.SampleStepM > 0 {
		proj.SampleStepM = opts.SampleStepM
	}
	det := corners.New()
	if opts.CornerMinRadiusM > 0 {
		det.MinRadiusM = opts.CornerMinRadiusM
	}
	if opts.CornerMinAngleDeg > 0 {
		det.MinAngleDeg = opts.CornerMinAngleDeg
	}
	gen := pacenote.NewGenerator()
	if opts.MergeDistanceM > 0 {
		gen.MergeDistanceM = opts.MergeDistanceM
	}

	return &Engine{
		src:   src,
		proj:  proj,
		det:   det,
		gen:   gen,
		sched: sched,
		opts:  opts,
	}
}

// Run pulls samples until the source ends or ctx is cancelled. A finished
// trace is a clean exit, not an error.
func (e *Engine) Run(ctx context.Context) error {
	log.Info("engine: running", "lookahead_m", e.opts.LookaheadM)
	for {
		pos, err := e.src.Next(ctx)
		switch {
		case errors.Is(err, sim.ErrTraceEnded):
			log.Info("engine: position source ended", "ticks", e.tick)
			return nil
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil
		case err != nil:
			return err
		}
		e.Step(pos)
	}
}

// Step runs one synchronous pass for a position sample.
func (e *Engine) Step(pos geo.Position) TickState {
	start := time.Now()
	e.tick++

	path := e.proj.Project(pos.Point, pos.Heading, e.opts.LookaheadM)

	// Off-road means no callouts this tick, nothing more; the next sample
	// gets a fresh chance to snap.
	var notes []pacenote.Note
	if !path.OffRoad() {
		segs := e.det.Detect(path)
		notes = e.gen.Generate(collectFeatures(path, segs))
	} else {
		log.Debug("engine: off road", "lat", pos.Point.Lat, "lon", pos.Point.Lon)
	}

	events := e.sched.Update(pos, notes)
	elapsed := time.Since(start)

	e.opts.Metrics.ObserveTick(elapsed, len(notes), path.OffRoad(), path.Length)
	stats := e.sched.Stats()
	e.opts.Metrics.SetCallCounts(stats.Announced, stats.Missed)

	st := TickState{
		Tick:     e.tick,
		Position: pos,
		OffRoad:  path.OffRoad(),
		PathLen:  path.Length,
		Path:     path.Points,
		Notes:    notes,
		Events:   events,
		Duration: elapsed,
	}
	if e.opts.OnTick != nil {
		e.opts.OnTick(st)
	}
	return st
}

// collectFeatures flattens the pass results into the generator's input:
// corners, junctions, and bridges, each anchored at an absolute location.
func collectFeatures(path *projector.Path, segs []corners.Segment) []pacenote.Feature {
	out := make([]pacenote.Feature, 0, len(segs)+len(path.Junctions)+len(path.Bridges))
	for i := range segs {
		s := &segs[i]
		out = append(out, pacenote.Feature{
			Kind:     pacenote.FeatureCorner,
			Distance: s.Start,
			Location: s.Apex,
			Corner:   s,
		})
	}
	for _, j := range path.Junctions {
		out = append(out, pacenote.Feature{
			Kind:     pacenote.FeatureJunction,
			Distance: j.Distance,
			Location: j.Point,
			Node:     int64(j.Node),
			Terminal: j.Terminal,
		})
	}
	for _, b := range path.Bridges {
		out = append(out, pacenote.Feature{
			Kind:     pacenote.FeatureBridge,
			Distance: b.Distance,
			Location: b.Point,
			Edge:     int64(b.Edge),
		})
	}
	return out
}
