// Package pacenote renders detected road features into rally-style spoken
// callouts and merges close features into chained "into" notes.
package pacenote

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/tarmac-rally/codriver/pkg/corners"
	"github.com/tarmac-rally/codriver/pkg/geo"
)

// FeatureKind discriminates the Feature union.
type FeatureKind int

const (
	FeatureCorner FeatureKind = iota
	FeatureJunction
	FeatureBridge
)

// Feature is a callable road feature ahead of the vehicle. Exactly one of
// the kind-specific fields is meaningful for a given Kind.
type Feature struct {
	Kind     FeatureKind
	Distance float64 // meters ahead at generation time
	Location geo.Point

	Corner   *corners.Segment // FeatureCorner
	Terminal bool             // FeatureJunction: no continuing road
	Node     int64            // FeatureJunction
	Edge     int64            // FeatureBridge
}

// Key identifies the feature by where it is, not how far away it is, so it
// stays stable while the vehicle approaches. Coordinates round to 4 decimal
// places, about 11 meters.
func (f *Feature) Key() string {
	switch f.Kind {
	case FeatureJunction:
		return fmt.Sprintf("j:%d", f.Node)
	case FeatureBridge:
		return fmt.Sprintf("b:%d", f.Edge)
	}
	return fmt.Sprintf("%.4f,%.4f", f.Location.Lat, f.Location.Lon)
}

// Note is a rendered pacenote. Merged notes carry the keys of every feature
// folded into them.
type Note struct {
	Trigger  float64 // distance rounded to the spoken resolution
	Distance float64 // raw distance of the nearest contained feature
	Text     string
	Location geo.Point // location of the nearest contained feature
	Keys     []string
	Merged   bool
	Priority int // 1 is most urgent
}

var severityNames = [...]string{"", "hairpin", "two", "three", "four", "five", "six", "flat"}

// distanceCalls are the spoken distance prefixes, nearest window wins.
var distanceCalls = []struct {
	meters float64
	call   string
}{
	{400, "four hundred"},
	{300, "three hundred"},
	{200, "two hundred"},
	{150, "one fifty"},
	{100, "one hundred"},
	{80, "eighty"},
	{50, "fifty"},
	{30, "thirty"},
}

// DistanceCall returns the spoken prefix for a distance, or "" when the
// distance falls outside every call window.
func DistanceCall(m float64) string {
	for _, dc := range distanceCalls {
		if m >= dc.meters-25 && m <= dc.meters+25 {
			return dc.call
		}
	}
	return ""
}

// Generator renders Features to Notes.
type Generator struct {
	MergeDistanceM float64 // consecutive features closer than this chain with "into"
	ResolutionM    float64 // trigger distances round to this
}

func NewGenerator() *Generator {
	return &Generator{MergeDistanceM: 50, ResolutionM: 10}
}

// Generate renders and merges the features into an ascending list of notes.
// Every feature lands in exactly one note; identical input yields identical
// output.
func (g *Generator) Generate(features []Feature) []Note {
	if len(features) == 0 {
		return nil
	}
	fs := make([]Feature, len(features))
	copy(fs, features)
	sort.SliceStable(fs, func(i, j int) bool { return fs[i].Distance < fs[j].Distance })

	var notes []Note
	for i := 0; i < len(fs); {
		// Chain transitively: a run of features each within the merge
		// distance of its predecessor collapses into one note.
		j := i + 1
		for j < len(fs) && fs[j].Distance-fs[j-1].Distance < g.MergeDistanceM {
			j++
		}

		texts := make([]string, 0, j-i)
		keys := make([]string, 0, j-i)
		prio := math.MaxInt32
		for _, f := range fs[i:j] {
			texts = append(texts, renderFeature(&f))
			keys = append(keys, f.Key())
			if p := featurePriority(&f); p < prio {
				prio = p
			}
		}

		notes = append(notes, Note{
			Trigger:  g.roundTrigger(fs[i].Distance),
			Distance: fs[i].Distance,
			Text:     strings.Join(texts, " into "),
			Location: fs[i].Location,
			Keys:     keys,
			Merged:   j-i > 1,
			Priority: prio,
		})
		i = j
	}
	return notes
}

func (g *Generator) roundTrigger(d float64) float64 {
	if g.ResolutionM <= 0 {
		return d
	}
	return math.Round(d/g.ResolutionM) * g.ResolutionM
}

func renderFeature(f *Feature) string {
	switch f.Kind {
	case FeatureJunction:
		if f.Terminal {
			return "caution junction"
		}
		return "junction"
	case FeatureBridge:
		return "over bridge"
	}
	return renderCorner(f.Corner)
}

func renderCorner(c *corners.Segment) string {
	if c.Chicane {
		return fmt.Sprintf("chicane %s %s", c.Sign, c.ExitSign)
	}

	var parts []string
	switch {
	case c.Severity <= 2 && math.Abs(c.TurnAngle) >= 60 && math.Abs(c.TurnAngle) <= 120:
		// Tight radius but only ~90 degrees of turn: a square, not a hairpin.
		parts = append(parts, "square "+c.Sign.String())
	case c.Severity == 1:
		parts = append(parts, "hairpin "+c.Sign.String())
	case c.Severity == 7:
		parts = append(parts, "flat "+c.Sign.String())
	default:
		parts = append(parts, fmt.Sprintf("%s %s", c.Sign, severityNames[c.Severity]))
	}

	switch c.Tightening {
	case corners.Tightens:
		parts = append(parts, "tightens")
	case corners.Opens:
		parts = append(parts, "opens")
	}
	if c.Long() {
		parts = append(parts, "long")
	}
	return strings.Join(parts, " ")
}

// featurePriority ranks urgency: terminal junctions first, then corners by
// tightness and proximity, bridges last.
func featurePriority(f *Feature) int {
	switch f.Kind {
	case FeatureJunction:
		if f.Terminal {
			return 1
		}
		return 3
	case FeatureBridge:
		return 5
	}
	d := int(f.Distance / 100)
	if d < 1 {
		d = 1
	}
	return f.Corner.Severity + d
}
