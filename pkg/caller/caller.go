// Package caller schedules pacenote announcements against the moving
// vehicle. Each tracked note goes pending -> announced, or pending ->
// dropped when its window is missed; both are final for that location.
package caller

import (
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/tarmac-rally/codriver/internal/log"
	"github.com/tarmac-rally/codriver/pkg/geo"
	"github.com/tarmac-rally/codriver/pkg/pacenote"
)

// CallEvent is a single announcement handed to the sink.
type CallEvent struct {
	ID       uuid.UUID `json:"id"`
	Text     string    `json:"text"`
	Location geo.Point `json:"location"`
	Distance float64   `json:"distance_m"` // remaining at announce time
	Tick     uint64    `json:"tick"`
	Time     time.Time `json:"time"`
}

// Sink receives announcements. Accept must not block; slow consumers queue
// internally.
type Sink interface {
	Accept(ev CallEvent)
}

// MultiSink fans one event out to several sinks.
type MultiSink []Sink

func (m MultiSink) Accept(ev CallEvent) {
	for _, s := range m {
		s.Accept(ev)
	}
}

// State of a tracked note.
type State int

const (
	Pending State = iota
	Announced
	Dropped
)

// Options tunes the scheduler. Zero values take defaults.
type Options struct {
	MinLeadM       float64 // announce at least this far out
	LeadTimeS      float64 // plus speed-scaled reaction time
	GraceM         float64 // how far past the location a call may still drop silently
	MergeDistanceM float64 // notes within this of a tracked location are the same note
	PruneBehindM   float64 // forget terminal notes this far behind
}

func (o *Options) setDefaults() {
	if o.MinLeadM == 0 {
		o.MinLeadM = 100
	}
	if o.LeadTimeS == 0 {
		o.LeadTimeS = 4
	}
	if o.GraceM == 0 {
		o.GraceM = 15
	}
	if o.MergeDistanceM == 0 {
		o.MergeDistanceM = 50
	}
	if o.PruneBehindM == 0 {
		o.PruneBehindM = 300
	}
}

// Stats counts terminal transitions since start.
type Stats struct {
	Announced uint64
	Missed    uint64
}

type tracked struct {
	text      string
	location  geo.Point
	state     State
	remaining float64 // signed, refreshed every tick
	tick      uint64  // tick the note was first seen
}

// Scheduler owns the pending/announced state. It is not safe for concurrent
// use; the control loop is its only caller.
type Scheduler struct {
	sink  Sink
	opts  Options
	notes []*tracked
	tick  uint64
	stats Stats
}

func New(sink Sink, opts Options) *Scheduler {
	opts.setDefaults()
	return &Scheduler{sink: sink, opts: opts}
}

// Update runs one scheduling tick: absorb freshly generated notes, re-anchor
// everything against the new position, announce what is due, and drop what
// was missed. Returns the events emitted this tick in the order they were
// pushed to the sink.
//
// Events reach the sink strictly in ascending location order across ticks. A
// late-discovered note that sits behind an already-announced one is dropped
// rather than spoken out of order.
func (s *Scheduler) Update(pos geo.Position, fresh []pacenote.Note) []CallEvent {
	s.tick++

	for i := range fresh {
		s.absorb(&fresh[i])
	}

	for _, n := range s.notes {
		n.remaining = signedRemaining(pos, n.location)
	}
	s.prune()

	lead := s.opts.MinLeadM
	if byTime := pos.Speed * s.opts.LeadTimeS; byTime > lead {
		lead = byTime
	}

	// Farthest announced note still ahead bounds what may be spoken now.
	horizon := math.Inf(-1)
	for _, n := range s.notes {
		if n.state == Announced && n.remaining > horizon {
			horizon = n.remaining
		}
	}

	var due []*tracked
	for _, n := range s.notes {
		if n.state != Pending {
			continue
		}
		switch {
		case n.remaining < -s.opts.GraceM:
			n.state = Dropped
			s.stats.Missed++
			log.Warn("caller: missed announcement", "text", n.text, "behind_m", -n.remaining)
		case n.remaining <= lead:
			due = append(due, n)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].remaining < due[j].remaining })

	var emitted []CallEvent
	for _, n := range due {
		if n.remaining < horizon {
			n.state = Dropped
			s.stats.Missed++
			log.Warn("caller: dropped out-of-order note", "text", n.text)
			continue
		}
		horizon = n.remaining
		n.state = Announced
		s.stats.Announced++

		text := n.text
		if call := pacenote.DistanceCall(n.remaining); call != "" {
			text = call + " " + text
		}
		ev := CallEvent{
			ID:       uuid.New(),
			Text:     text,
			Location: n.location,
			Distance: n.remaining,
			Tick:     s.tick,
			Time:     pos.Time,
		}
		s.sink.Accept(ev)
		emitted = append(emitted, ev)
		log.Debug("caller: announced", "text", text, "remaining_m", n.remaining)
	}
	return emitted
}

// Stats reports announce/miss counters.
func (s *Scheduler) Stats() Stats { return s.stats }

// PendingCount reports how many tracked notes are still pending.
func (s *Scheduler) PendingCount() int {
	c := 0
	for _, n := range s.notes {
		if n.state == Pending {
			c++
		}
	}
	return c
}

// absorb folds a freshly generated note into the tracked set. A note whose
// location matches an existing entry, whatever its state, is the same
// underlying feature seen again and creates nothing.
func (s *Scheduler) absorb(note *pacenote.Note) {
	for _, n := range s.notes {
		if geo.Haversine(n.location, note.Location) <= s.opts.MergeDistanceM {
			return
		}
	}
	s.notes = append(s.notes, &tracked{
		text:     note.Text,
		location: note.Location,
		state:    Pending,
		tick:     s.tick,
	})
}

// prune forgets terminal notes far behind the vehicle. Pending notes are
// kept until they resolve.
func (s *Scheduler) prune() {
	kept := s.notes[:0]
	for _, n := range s.notes {
		if n.state != Pending && n.remaining < -s.opts.PruneBehindM {
			continue
		}
		kept = append(kept, n)
	}
	s.notes = kept
}

// signedRemaining is the distance to loc, negative once it falls behind the
// direction of travel.
func signedRemaining(pos geo.Position, loc geo.Point) float64 {
	d := geo.Haversine(pos.Point, loc)
	if d < 1 {
		return 0
	}
	if math.Abs(geo.AngleDiff(pos.Heading, geo.Bearing(pos.Point, loc))) > 90 {
		return -d
	}
	return d
}
