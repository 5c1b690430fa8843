// Package corners segments the projected path's curvature signal into
// classified corner segments (ASC: automatic segmentation by curvature).
//
// The detector works in five passes over the sampled |curvature| signal:
// peak cuts, redundancy reduction, straight filling, sign-change cuts, and a
// final spacing filter. The spans between surviving cuts are then classified
// by representative radius and turn direction.
package corners

import (
	"math"
	"sort"

	"github.com/tarmac-rally/codriver/pkg/geo"
	"github.com/tarmac-rally/codriver/pkg/projector"
)

// Direction of a corner.
type Direction int

const (
	Left Direction = iota
	Right
)

func (d Direction) String() string {
	if d == Right {
		return "right"
	}
	return "left"
}

// Tightening describes how a corner's radius evolves along its length.
type Tightening int

const (
	Constant Tightening = iota
	Tightens
	Opens
)

// CutReason tags why a segmentation boundary was placed.
type CutReason int

const (
	CutPeak CutReason = iota
	CutStraightFill
	CutSignChange
)

// Cut is a segmentation boundary along the path.
type Cut struct {
	Distance  float64
	Magnitude float64 // |curvature| at the cut, 0 for synthetic cuts
	Reason    CutReason
}

// Segment is a classified corner. Start < End; segments never overlap.
type Segment struct {
	Start, End float64
	Sign       Direction
	Severity   int // 1 (hairpin) .. 7 (flat)
	Tightening Tightening
	Length     float64
	Radius     float64 // representative (minimum) radius, meters
	TurnAngle  float64 // total turn, degrees, signed like curvature
	Apex       geo.Point
	ApexDist   float64

	// Chicane combines this segment with an adjacent opposite-sign one.
	Chicane      bool
	ExitSign     Direction
	ExitSeverity int
}

// Long reports whether the corner gets the "long" modifier.
func (s *Segment) Long() bool { return s.Length > longCornerM }

// Severity brackets by representative radius, tightest first.
var severityBrackets = []struct {
	maxRadius float64
	severity  int
}{
	{15, 1},  // hairpin
	{30, 2},
	{50, 3},
	{80, 4},
	{120, 5},
	{200, 6},
}

const (
	flatSeverity    = 7
	maxBracketM     = 200.0
	longCornerM     = 50.0
	tighteningRatio = 1.25 // first/second half radius ratio to call a trend
)

// Detector holds the segmentation tuning. Zero spacing values make no
// sense; construct with New.
type Detector struct {
	MinRadiusM    float64 // peak threshold: radius below this starts a corner
	MinAngleDeg   float64 // total turn below this on a shallow bend is straight
	MinSpacingM   float64 // cuts closer than this collapse
	LongStraightM float64 // gaps longer than this get straight-fill cuts
	ChicaneGapM   float64 // opposite-sign segments closer than this merge
	EdgeMarginM   float64 // cuts this close to the path ends are dropped
}

// New returns a Detector with the standard tuning.
func New() *Detector {
	return &Detector{
		MinRadiusM:    300,
		MinAngleDeg:   10,
		MinSpacingM:   25,
		LongStraightM: 150,
		ChicaneGapM:   30,
		EdgeMarginM:   15,
	}
}

// Detect segments the path into classified corners. Paths with fewer than
// three samples yield no corners; that is a normal degenerate case, not an
// error.
func (d *Detector) Detect(path *projector.Path) []Segment {
	pts := path.Points
	if len(pts) < 3 {
		return nil
	}

	cuts := d.peakCuts(pts)
	cuts = d.reduce(cuts)
	cuts = d.fillStraights(cuts, pts[len(pts)-1].Distance)
	cuts = append(cuts, d.signChangeCuts(pts)...)
	cuts = d.finalFilter(cuts, pts[len(pts)-1].Distance)

	segs := d.classify(cuts, pts)
	return d.mergeChicanes(segs)
}

// peakCuts places a cut at every local maximum of |curvature| tight enough
// to matter (stage 1).
func (d *Detector) peakCuts(pts []projector.PathPoint) []Cut {
	threshold := 1 / d.MinRadiusM
	var cuts []Cut
	for i := 1; i < len(pts)-1; i++ {
		k := math.Abs(pts[i].Curvature)
		if k < threshold {
			continue
		}
		if k >= math.Abs(pts[i-1].Curvature) && k >= math.Abs(pts[i+1].Curvature) {
			cuts = append(cuts, Cut{Distance: pts[i].Distance, Magnitude: k, Reason: CutPeak})
		}
	}
	return cuts
}

// reduce collapses cuts closer than the minimum spacing, keeping the one
// with the larger curvature magnitude (stage 2).
func (d *Detector) reduce(cuts []Cut) []Cut {
	if len(cuts) < 2 {
		return cuts
	}
	out := cuts[:1]
	for _, c := range cuts[1:] {
		last := &out[len(out)-1]
		if c.Distance-last.Distance < d.MinSpacingM {
			if c.Magnitude > last.Magnitude {
				*last = c
			}
			continue
		}
		out = append(out, c)
	}
	return out
}

// fillStraights inserts synthetic cuts inside long gaps so a straight is
// never absorbed into the corner on either side (stage 3).
func (d *Detector) fillStraights(cuts []Cut, total float64) []Cut {
	bounds := append([]Cut{{Distance: 0}}, cuts...)
	bounds = append(bounds, Cut{Distance: total})

	out := cuts
	for i := 0; i < len(bounds)-1; i++ {
		gap := bounds[i+1].Distance - bounds[i].Distance
		if gap <= d.LongStraightM {
			continue
		}
		// One cut shortly past the corner on each side leaves the middle as
		// its own straight segment.
		a := bounds[i].Distance + d.MinSpacingM
		b := bounds[i+1].Distance - d.MinSpacingM
		if b-a < d.MinSpacingM {
			out = append(out, Cut{Distance: bounds[i].Distance + gap/2, Reason: CutStraightFill})
			continue
		}
		if bounds[i].Distance > 0 {
			out = append(out, Cut{Distance: a, Reason: CutStraightFill})
		}
		if bounds[i+1].Distance < total {
			out = append(out, Cut{Distance: b, Reason: CutStraightFill})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	return out
}

// signChangeCuts places a cut wherever the curvature flips sign, even below
// the peak threshold, so opposing bends never merge (stage 4).
func (d *Detector) signChangeCuts(pts []projector.PathPoint) []Cut {
	var cuts []Cut
	for i := 1; i < len(pts); i++ {
		if pts[i-1].Curvature*pts[i].Curvature < 0 {
			cuts = append(cuts, Cut{
				Distance: (pts[i-1].Distance + pts[i].Distance) / 2,
				Reason:   CutSignChange,
			})
		}
	}
	return cuts
}

// finalFilter re-applies spacing over the union of all cuts, preferring the
// higher-magnitude neighbor, and drops cuts hugging the path ends (stage 5).
func (d *Detector) finalFilter(cuts []Cut, total float64) []Cut {
	sort.Slice(cuts, func(i, j int) bool { return cuts[i].Distance < cuts[j].Distance })
	cuts = d.reduce(cuts)

	out := cuts[:0]
	for _, c := range cuts {
		if c.Distance < d.EdgeMarginM || c.Distance > total-d.EdgeMarginM {
			continue
		}
		out = append(out, c)
	}
	return out
}

// classify turns the spans between cuts into corner segments, discarding
// spans that are effectively straight.
//
// A peak cut sits on a corner's apex, and the apex belongs to one corner:
// same-sign spans on either side of a peak cut fuse back into a single
// segment. Straight-fill and sign-change cuts are hard boundaries.
func (d *Detector) classify(cuts []Cut, pts []projector.PathPoint) []Segment {
	total := pts[len(pts)-1].Distance
	bounds := make([]Cut, 0, len(cuts)+2)
	bounds = append(bounds, Cut{Distance: 0, Reason: CutStraightFill})
	bounds = append(bounds, cuts...)
	bounds = append(bounds, Cut{Distance: total, Reason: CutStraightFill})

	var segs []Segment
	i := 0
	for i < len(bounds)-1 {
		j := i + 1
		for j < len(bounds)-1 && bounds[j].Reason == CutPeak &&
			spanSign(bounds[j-1].Distance, bounds[j].Distance, pts) ==
				spanSign(bounds[j].Distance, bounds[j+1].Distance, pts) {
			j++
		}
		if seg, ok := d.classifySpan(bounds[i].Distance, bounds[j].Distance, pts); ok {
			segs = append(segs, seg)
		}
		i = j
	}
	return segs
}

// spanSign is the majority curvature sign over [start, end]: +1 for left,
// -1 for right, 0 when the span is balanced or empty.
func spanSign(start, end float64, pts []projector.PathPoint) int {
	sum := 0
	for _, p := range pts {
		if p.Distance < start || p.Distance > end {
			continue
		}
		if p.Curvature > 0 {
			sum++
		} else if p.Curvature < 0 {
			sum--
		}
	}
	switch {
	case sum > 0:
		return 1
	case sum < 0:
		return -1
	}
	return 0
}

func (d *Detector) classifySpan(start, end float64, pts []projector.PathPoint) (Segment, bool) {
	var span []projector.PathPoint
	for _, p := range pts {
		if p.Distance >= start && p.Distance <= end {
			span = append(span, p)
		}
	}
	if len(span) < 2 {
		return Segment{}, false
	}

	maxK := 0.0
	apexIdx := 0
	turn := 0.0 // radians, signed
	leftCount, rightCount := 0, 0
	for i, p := range span {
		k := math.Abs(p.Curvature)
		if k > maxK {
			maxK = k
			apexIdx = i
		}
		if i > 0 {
			ds := p.Distance - span[i-1].Distance
			turn += p.Curvature * ds
		}
		if p.Curvature > 0 {
			leftCount++
		} else if p.Curvature < 0 {
			rightCount++
		}
	}

	radius := math.Inf(1)
	if maxK > 0 {
		radius = 1 / maxK
	}
	turnDeg := turn * 180 / math.Pi

	// Shallower than the flattest bracket and barely turning: a straight.
	if radius > maxBracketM && math.Abs(turnDeg) < d.MinAngleDeg {
		return Segment{}, false
	}

	sign := Left
	if rightCount > leftCount {
		sign = Right
	}

	seg := Segment{
		Start:      start,
		End:        end,
		Sign:       sign,
		Severity:   severityForRadius(radius),
		Length:     end - start,
		Radius:     radius,
		TurnAngle:  turnDeg,
		Apex:       span[apexIdx].Point,
		ApexDist:   span[apexIdx].Distance,
		Tightening: tighteningFor(span),
	}
	return seg, true
}

func severityForRadius(r float64) int {
	for _, b := range severityBrackets {
		if r < b.maxRadius {
			return b.severity
		}
	}
	return flatSeverity
}

// tighteningFor compares the tightest radius of the span's first and second
// halves. A clearly decreasing radius tightens; increasing opens.
func tighteningFor(span []projector.PathPoint) Tightening {
	mid := span[0].Distance + (span[len(span)-1].Distance-span[0].Distance)/2
	maxFirst, maxSecond := 0.0, 0.0
	for _, p := range span {
		k := math.Abs(p.Curvature)
		if p.Distance <= mid {
			maxFirst = math.Max(maxFirst, k)
		} else {
			maxSecond = math.Max(maxSecond, k)
		}
	}
	if maxFirst == 0 || maxSecond == 0 {
		return Constant
	}
	switch {
	case maxSecond > maxFirst*tighteningRatio:
		return Tightens
	case maxFirst > maxSecond*tighteningRatio:
		return Opens
	default:
		return Constant
	}
}

// mergeChicanes folds adjacent opposite-sign segments separated by less
// than the chicane gap into a single combined feature.
func (d *Detector) mergeChicanes(segs []Segment) []Segment {
	if len(segs) < 2 {
		return segs
	}
	out := segs[:0]
	for _, s := range segs {
		if len(out) > 0 {
			last := &out[len(out)-1]
			if !last.Chicane && s.Sign != last.Sign && s.Start-last.End < d.ChicaneGapM {
				last.Chicane = true
				last.ExitSign = s.Sign
				last.ExitSeverity = s.Severity
				last.End = s.End
				last.Length = last.End - last.Start
				if s.Radius < last.Radius {
					last.Radius = s.Radius
				}
				continue
			}
		}
		out = append(out, s)
	}
	return out
}
