// Package projector infers the road ahead. Given the network and a live
// position/heading it walks the graph in the "continue straight" sense and
// returns a distance-ordered polyline with a curvature signal plus junction
// and bridge markers.
package projector

import (
	"math"

	"github.com/tarmac-rally/codriver/pkg/geo"
	"github.com/tarmac-rally/codriver/pkg/roadnet"
)

// Defaults used by New. All tunable through the Projector fields.
const (
	DefaultSnapToleranceM      = 50.0
	DefaultHeadingToleranceDeg = 30.0
	DefaultSampleStepM         = 10.0
)

// PathPoint is one sample of the projected path.
type PathPoint struct {
	Distance  float64   `json:"distance"`  // cumulative meters from the vehicle
	Point     geo.Point `json:"point"`
	Curvature float64   `json:"curvature"` // signed 1/m, positive left
	Junction  bool      `json:"junction"`
	Bridge    bool      `json:"bridge"`
}

// Junction marks a node the path reaches. Terminal means projection stopped
// there because no exit stayed within the heading tolerance.
type Junction struct {
	Distance float64
	Point    geo.Point
	Node     roadnet.NodeID
	Terminal bool
}

// Bridge marks the entry onto a bridge-tagged edge.
type Bridge struct {
	Distance float64
	Point    geo.Point
	Edge     roadnet.EdgeID
}

// Path is the projected road ahead. Rebuilt fresh every tick and discarded
// after the pipeline consumes it. Point distances strictly increase.
type Path struct {
	Points    []PathPoint
	Junctions []Junction
	Bridges   []Bridge
	Length    float64
}

// OffRoad reports whether the position could not be snapped to any edge.
func (p *Path) OffRoad() bool { return len(p.Points) <= 1 }

// Projector walks the road graph from a position. Safe for reuse across
// ticks; it holds no per-tick state.
type Projector struct {
	net *roadnet.Network

	SnapToleranceM      float64
	HeadingToleranceDeg float64
	SampleStepM         float64
}

// New creates a Projector over the given network with default tolerances.
func New(net *roadnet.Network) *Projector {
	return &Projector{
		net:                 net,
		SnapToleranceM:      DefaultSnapToleranceM,
		HeadingToleranceDeg: DefaultHeadingToleranceDeg,
		SampleStepM:         DefaultSampleStepM,
	}
}

// Project builds the path ahead of pos along the current heading, up to
// lookaheadM meters. An unsnappable position yields a single-point path,
// never an error: off-road is an expected state retried next tick.
func (p *Projector) Project(pos geo.Point, headingDeg, lookaheadM float64) *Path {
	snap, ok := p.net.NearestEdge(pos, p.SnapToleranceM)
	if !ok {
		return &Path{Points: []PathPoint{{Point: pos}}}
	}

	edge := p.net.Edge(snap.Edge)
	segBearing := geo.Bearing(edge.Geometry[snap.Segment], edge.Geometry[snap.Segment+1])
	forward := math.Abs(geo.AngleDiff(headingDeg, segBearing)) <= 90

	walk := walker{
		net:       p.net,
		tolerance: p.HeadingToleranceDeg,
		lookahead: lookaheadM,
		heading:   headingDeg,
		raw:       []geo.Point{snap.Point},
		visited:   map[roadnet.EdgeID]bool{snap.Edge: true},
	}

	idx := snap.Segment
	if !forward {
		idx = snap.Segment + 1
	}
	walk.run(snap.Edge, idx, forward)

	return p.sample(&walk)
}

// walker accumulates the raw polyline and feature marks during the graph walk.
type walker struct {
	net       *roadnet.Network
	tolerance float64
	lookahead float64
	heading   float64

	raw       []geo.Point
	dist      float64
	junctions []Junction
	bridges   []Bridge
	visited   map[roadnet.EdgeID]bool
	truncated bool
}

func (w *walker) run(edgeID roadnet.EdgeID, idx int, forward bool) {
	for {
		e := w.net.Edge(edgeID)
		if e.Bridge {
			w.bridges = append(w.bridges, Bridge{Distance: w.dist, Point: w.cur(), Edge: edgeID})
		}

		if !w.traverse(e, idx, forward) {
			return // lookahead reached
		}

		endNode := e.To
		if !forward {
			endNode = e.From
		}

		next, nextIdx, nextForward, ok := w.pickContinuation(edgeID, endNode)
		if !ok {
			w.junctions = append(w.junctions, Junction{
				Distance: w.dist, Point: w.cur(), Node: endNode, Terminal: true,
			})
			return
		}
		if w.net.Degree(endNode) >= 3 {
			w.junctions = append(w.junctions, Junction{
				Distance: w.dist, Point: w.cur(), Node: endNode,
			})
		}

		w.visited[next] = true
		edgeID, idx, forward = next, nextIdx, nextForward
	}
}

// traverse appends the remainder of an edge's geometry in travel order.
// Returns false once the lookahead was reached; the final point is cut at
// exactly the lookahead distance.
func (w *walker) traverse(e *roadnet.Edge, idx int, forward bool) bool {
	step := func(pt geo.Point) bool {
		d := geo.Haversine(w.cur(), pt)
		if d == 0 {
			return true
		}
		if w.dist+d >= w.lookahead {
			t := (w.lookahead - w.dist) / d
			w.raw = append(w.raw, geo.Interpolate(w.cur(), pt, t))
			w.dist = w.lookahead
			w.truncated = true
			return false
		}
		w.raw = append(w.raw, pt)
		w.dist += d
		return true
	}

	if forward {
		for i := idx + 1; i < len(e.Geometry); i++ {
			if !step(e.Geometry[i]) {
				return false
			}
		}
	} else {
		for i := idx - 1; i >= 0; i-- {
			if !step(e.Geometry[i]) {
				return false
			}
		}
	}
	return true
}

// pickContinuation selects the outgoing edge whose initial bearing deviates
// least from the current travel bearing. Candidates are inspected in edge-ID
// order, and only a strictly smaller deviation replaces the incumbent, so
// near-equal forks resolve deterministically.
func (w *walker) pickContinuation(arrived roadnet.EdgeID, node roadnet.NodeID) (roadnet.EdgeID, int, bool, bool) {
	travel := w.travelBearing()

	bestDev := math.Inf(1)
	var bestEdge roadnet.EdgeID
	var bestIdx int
	var bestForward bool

	for _, cand := range w.net.EdgesAt(node) {
		if cand == arrived || w.visited[cand] {
			continue
		}
		ce := w.net.Edge(cand)
		var candBearing float64
		var idx int
		var fwd bool
		switch node {
		case ce.From:
			candBearing = geo.Bearing(ce.Geometry[0], ce.Geometry[1])
			idx, fwd = 0, true
		case ce.To:
			last := len(ce.Geometry) - 1
			candBearing = geo.Bearing(ce.Geometry[last], ce.Geometry[last-1])
			idx, fwd = last, false
		default:
			continue
		}
		dev := math.Abs(geo.AngleDiff(travel, candBearing))
		if dev < bestDev {
			bestDev = dev
			bestEdge, bestIdx, bestForward = cand, idx, fwd
		}
	}

	if math.IsInf(bestDev, 1) || bestDev > w.tolerance {
		return 0, 0, false, false
	}
	return bestEdge, bestIdx, bestForward, true
}

func (w *walker) cur() geo.Point { return w.raw[len(w.raw)-1] }

func (w *walker) travelBearing() float64 {
	if len(w.raw) < 2 {
		return w.heading
	}
	return geo.Bearing(w.raw[len(w.raw)-2], w.raw[len(w.raw)-1])
}

// sample converts the raw walked polyline into fixed-step path points with a
// curvature estimate per sample, then pins junction and bridge flags onto
// the nearest samples.
func (p *Projector) sample(w *walker) *Path {
	path := &Path{Junctions: w.junctions, Bridges: w.bridges, Length: w.dist}
	if len(w.raw) < 2 {
		path.Points = []PathPoint{{Point: w.raw[0]}}
		return path
	}

	cum := geo.CumulativeDistances(w.raw)
	total := cum[len(cum)-1]
	step := p.SampleStepM

	var pts []PathPoint
	seg := 0
	for d := 0.0; ; d += step {
		if d > total {
			d = total
		}
		for seg < len(cum)-2 && cum[seg+1] < d {
			seg++
		}
		segLen := cum[seg+1] - cum[seg]
		t := 0.0
		if segLen > 0 {
			t = (d - cum[seg]) / segLen
		}
		pts = append(pts, PathPoint{
			Distance: d,
			Point:    geo.Interpolate(w.raw[seg], w.raw[seg+1], t),
		})
		if d >= total {
			break
		}
	}

	for i := 1; i < len(pts)-1; i++ {
		pts[i].Curvature = geo.Curvature(pts[i-1].Point, pts[i].Point, pts[i+1].Point)
	}

	markNearest := func(d float64, set func(*PathPoint)) {
		i := int(math.Round(d / step))
		if i >= len(pts) {
			i = len(pts) - 1
		}
		set(&pts[i])
	}
	for _, j := range w.junctions {
		markNearest(j.Distance, func(pp *PathPoint) { pp.Junction = true })
	}
	for _, b := range w.bridges {
		markNearest(b.Distance, func(pp *PathPoint) { pp.Bridge = true })
	}

	path.Points = pts
	return path
}
