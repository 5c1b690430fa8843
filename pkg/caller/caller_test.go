package caller

import (
	"strings"
	"testing"
	"time"

	"github.com/tarmac-rally/codriver/pkg/geo"
	"github.com/tarmac-rally/codriver/pkg/pacenote"
)

type recordSink struct {
	events []CallEvent
}

func (r *recordSink) Accept(ev CallEvent) { r.events = append(r.events, ev) }

var origin = geo.Point{Lat: 51.0, Lon: -0.5}

// at places a point the given number of meters north of origin.
func at(m float64) geo.Point { return geo.Destination(origin, 0, m) }

func posAt(m, speed float64) geo.Position {
	return geo.Position{Point: at(m), Heading: 0, Speed: speed, Time: time.Unix(1700000000, 0)}
}

func noteAt(m float64, text string) pacenote.Note {
	return pacenote.Note{Text: text, Location: at(m), Distance: m, Trigger: m}
}

func TestAnnounceExactlyOnce(t *testing.T) {
	sink := &recordSink{}
	s := New(sink, Options{})

	fresh := []pacenote.Note{noteAt(500, "left three")}

	if ev := s.Update(posAt(0, 20), fresh); len(ev) != 0 {
		t.Fatalf("announced at 500m out: %+v", ev)
	}
	if ev := s.Update(posAt(300, 20), fresh); len(ev) != 0 {
		t.Fatalf("announced at 200m out with 100m lead: %+v", ev)
	}

	ev := s.Update(posAt(420, 20), fresh)
	if len(ev) != 1 {
		t.Fatalf("got %d events at 80m out, want 1", len(ev))
	}
	if !strings.HasSuffix(ev[0].Text, "left three") {
		t.Errorf("text = %q, want suffix %q", ev[0].Text, "left three")
	}
	if !strings.HasPrefix(ev[0].Text, "one hundred ") {
		t.Errorf("text = %q, want distance call prefix %q", ev[0].Text, "one hundred")
	}

	// Same note keeps arriving from the pipeline; it must never repeat.
	for _, m := range []float64{450, 480, 510} {
		if ev := s.Update(posAt(m, 20), fresh); len(ev) != 0 {
			t.Fatalf("re-announced at %v: %+v", m, ev)
		}
	}

	if got := s.Stats(); got.Announced != 1 || got.Missed != 0 {
		t.Errorf("stats = %+v, want 1 announced, 0 missed", got)
	}
	if len(sink.events) != 1 {
		t.Errorf("sink saw %d events, want 1", len(sink.events))
	}
}

func TestAnnounceAscendingOrder(t *testing.T) {
	sink := &recordSink{}
	s := New(sink, Options{})

	fresh := []pacenote.Note{
		noteAt(460, "right four"),
		noteAt(400, "left three"),
	}

	// Both fall inside the lead window on the same tick.
	s.Update(posAt(380, 20), fresh)

	if len(sink.events) != 2 {
		t.Fatalf("got %d events, want 2", len(sink.events))
	}
	if !strings.HasSuffix(sink.events[0].Text, "left three") {
		t.Errorf("first event %q, want the nearer note first", sink.events[0].Text)
	}
	if sink.events[0].Distance >= sink.events[1].Distance {
		t.Errorf("events out of ascending order: %.0f then %.0f",
			sink.events[0].Distance, sink.events[1].Distance)
	}
}

func TestMissedAnnouncement(t *testing.T) {
	sink := &recordSink{}
	s := New(sink, Options{})

	fresh := []pacenote.Note{noteAt(200, "left three")}
	s.Update(posAt(0, 20), fresh)

	// Position jumps past the corner before the lead window was reached.
	if ev := s.Update(posAt(250, 20), nil); len(ev) != 0 {
		t.Fatalf("announced behind the vehicle: %+v", ev)
	}

	if got := s.Stats(); got.Missed != 1 || got.Announced != 0 {
		t.Errorf("stats = %+v, want 1 missed, 0 announced", got)
	}

	// The location is terminal: seeing it again creates nothing.
	s.Update(posAt(260, 20), fresh)
	if s.PendingCount() != 0 {
		t.Errorf("dropped note re-entered tracking")
	}
}

func TestSpeedScaledLead(t *testing.T) {
	sink := &recordSink{}
	s := New(sink, Options{})

	// 50 m/s with a 4s lead time announces out at 200m.
	ev := s.Update(posAt(0, 50), []pacenote.Note{noteAt(180, "flat right")})
	if len(ev) != 1 {
		t.Fatalf("fast approach: got %d events, want 1", len(ev))
	}

	// At 20 m/s the same distance is outside the window.
	s2 := New(&recordSink{}, Options{})
	if ev := s2.Update(posAt(0, 20), []pacenote.Note{noteAt(180, "flat right")}); len(ev) != 0 {
		t.Fatalf("slow approach announced early: %+v", ev)
	}
}

func TestLocationDedup(t *testing.T) {
	s := New(&recordSink{}, Options{})

	s.Update(posAt(0, 20), []pacenote.Note{
		noteAt(300, "left three"),
		noteAt(320, "left three"),
	})

	if s.PendingCount() != 1 {
		t.Errorf("pending = %d, want 1 after dedup within merge distance", s.PendingCount())
	}
}
