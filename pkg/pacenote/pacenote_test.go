package pacenote

import (
	"reflect"
	"strings"
	"testing"

	"github.com/tarmac-rally/codriver/pkg/corners"
	"github.com/tarmac-rally/codriver/pkg/geo"
)

func cornerAt(dist float64, sev int, sign corners.Direction, angle float64) Feature {
	return Feature{
		Kind:     FeatureCorner,
		Distance: dist,
		Location: geo.Point{Lat: 51 + dist/111000, Lon: 0},
		Corner: &corners.Segment{
			Start: dist, End: dist + 30, Length: 30,
			Sign: sign, Severity: sev, TurnAngle: angle,
		},
	}
}

func TestGenerateMerge(t *testing.T) {
	g := NewGenerator()

	t.Run("close features chain with into", func(t *testing.T) {
		notes := g.Generate([]Feature{
			cornerAt(300, 3, corners.Left, 90),
			cornerAt(330, 4, corners.Right, 60),
		})
		if len(notes) != 1 {
			t.Fatalf("got %d notes, want 1: %+v", len(notes), notes)
		}
		if want := "left three into right four"; notes[0].Text != want {
			t.Errorf("text = %q, want %q", notes[0].Text, want)
		}
		if !notes[0].Merged || len(notes[0].Keys) != 2 {
			t.Errorf("merged = %v keys = %v, want merged with 2 keys", notes[0].Merged, notes[0].Keys)
		}
		if notes[0].Trigger != 300 {
			t.Errorf("trigger = %.0f, want 300", notes[0].Trigger)
		}
	})

	t.Run("distant features stay separate", func(t *testing.T) {
		notes := g.Generate([]Feature{
			cornerAt(300, 3, corners.Left, 90),
			cornerAt(400, 4, corners.Right, 60),
		})
		if len(notes) != 2 {
			t.Fatalf("got %d notes, want 2: %+v", len(notes), notes)
		}
	})

	t.Run("merge is transitive", func(t *testing.T) {
		// 100, 140, 180: each gap 40 < 50, whole run collapses.
		notes := g.Generate([]Feature{
			cornerAt(100, 3, corners.Left, 90),
			cornerAt(140, 2, corners.Right, 130),
			cornerAt(180, 5, corners.Left, 40),
		})
		if len(notes) != 1 {
			t.Fatalf("got %d notes, want 1: %+v", len(notes), notes)
		}
		if got := strings.Count(notes[0].Text, " into "); got != 2 {
			t.Errorf("text %q has %d connectors, want 2", notes[0].Text, got)
		}
	})
}

func TestGenerateTotalityAndOrder(t *testing.T) {
	g := NewGenerator()
	features := []Feature{
		cornerAt(520, 3, corners.Left, 90),
		{Kind: FeatureBridge, Distance: 120, Edge: 7},
		cornerAt(90, 2, corners.Right, 170),
		{Kind: FeatureJunction, Distance: 340, Node: 12, Terminal: true},
		cornerAt(310, 5, corners.Left, 40),
	}

	notes := g.Generate(features)

	var keys []string
	for _, n := range notes {
		keys = append(keys, n.Keys...)
	}
	if len(keys) != len(features) {
		t.Fatalf("%d features rendered into %d keys", len(features), len(keys))
	}
	seen := map[string]bool{}
	for _, k := range keys {
		if seen[k] {
			t.Errorf("key %q appears in more than one note", k)
		}
		seen[k] = true
	}

	for i := 1; i < len(notes); i++ {
		if notes[i].Trigger <= notes[i-1].Trigger {
			t.Errorf("triggers not strictly ascending: %.0f after %.0f",
				notes[i].Trigger, notes[i-1].Trigger)
		}
	}
}

func TestGenerateDeterministic(t *testing.T) {
	g := NewGenerator()
	features := []Feature{
		cornerAt(90, 2, corners.Right, 170),
		{Kind: FeatureBridge, Distance: 120, Edge: 7},
		cornerAt(310, 5, corners.Left, 40),
	}
	a := g.Generate(features)
	b := g.Generate(features)
	if !reflect.DeepEqual(a, b) {
		t.Errorf("same input produced different notes:\n%+v\n%+v", a, b)
	}
}

func TestRenderVocabulary(t *testing.T) {
	cases := []struct {
		name string
		f    Feature
		want string
	}{
		{"regular corner", cornerAt(200, 3, corners.Left, 90), "left three"},
		{"hairpin", cornerAt(200, 1, corners.Right, 170), "hairpin right"},
		{"square", cornerAt(200, 2, corners.Left, 90), "square left"},
		{"flat", cornerAt(200, 7, corners.Right, 12), "flat right"},
		{"through junction", Feature{Kind: FeatureJunction, Distance: 200, Node: 3}, "junction"},
		{"terminal junction", Feature{Kind: FeatureJunction, Distance: 200, Node: 3, Terminal: true}, "caution junction"},
		{"bridge", Feature{Kind: FeatureBridge, Distance: 200, Edge: 9}, "over bridge"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			notes := NewGenerator().Generate([]Feature{c.f})
			if len(notes) != 1 || notes[0].Text != c.want {
				t.Errorf("got %+v, want text %q", notes, c.want)
			}
		})
	}

	t.Run("modifiers", func(t *testing.T) {
		f := cornerAt(200, 4, corners.Left, 70)
		f.Corner.Tightening = corners.Tightens
		f.Corner.End = f.Corner.Start + 80
		f.Corner.Length = 80
		notes := NewGenerator().Generate([]Feature{f})
		if want := "left four tightens long"; notes[0].Text != want {
			t.Errorf("text = %q, want %q", notes[0].Text, want)
		}
	})

	t.Run("chicane", func(t *testing.T) {
		f := cornerAt(200, 3, corners.Left, 40)
		f.Corner.Chicane = true
		f.Corner.ExitSign = corners.Right
		notes := NewGenerator().Generate([]Feature{f})
		if want := "chicane left right"; notes[0].Text != want {
			t.Errorf("text = %q, want %q", notes[0].Text, want)
		}
	})
}

func TestDistanceCall(t *testing.T) {
	cases := []struct {
		m    float64
		want string
	}{
		{300, "three hundred"},
		{320, "three hundred"},
		{100, "one hundred"},
		{47, "fifty"},
		{12, "thirty"},
		{2, ""},
		{900, ""},
	}
	for _, c := range cases {
		if got := DistanceCall(c.m); got != c.want {
			t.Errorf("DistanceCall(%.0f) = %q, want %q", c.m, got, c.want)
		}
	}
}

func TestFeatureKeyStable(t *testing.T) {
	near := cornerAt(300, 3, corners.Left, 90)
	far := near
	far.Distance = 250 // same corner, vehicle has moved closer
	if near.Key() != far.Key() {
		t.Errorf("key changed with distance: %q vs %q", near.Key(), far.Key())
	}
}
