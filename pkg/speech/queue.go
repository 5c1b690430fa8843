package speech

import (
	"context"
	"sync"
	"time"

	"github.com/tarmac-rally/codriver/internal/log"
	"github.com/tarmac-rally/codriver/pkg/caller"
)

// Queue is the hand-off between the control loop and the speaker. Accept
// never blocks and never drops; a consumer goroutine speaks entries in
// order and may skip ones that went stale while waiting.
type Queue struct {
	sp         Speaker
	staleAfter time.Duration

	mu      sync.Mutex
	cond    *sync.Cond
	items   []queued
	closed  bool
	skipped uint64

	done chan struct{}
}

type queued struct {
	ev       caller.CallEvent
	enqueued time.Time
}

// NewQueue starts the consumer. Entries older than staleAfter when they
// reach the front are skipped, not spoken; zero disables skipping.
func NewQueue(sp Speaker, staleAfter time.Duration) *Queue {
	q := &Queue{sp: sp, staleAfter: staleAfter, done: make(chan struct{})}
	q.cond = sync.NewCond(&q.mu)
	go q.run()
	return q
}

// Accept implements caller.Sink. Never blocks.
func (q *Queue) Accept(ev caller.CallEvent) {
	q.mu.Lock()
	if !q.closed {
		q.items = append(q.items, queued{ev: ev, enqueued: time.Now()})
	}
	q.mu.Unlock()
	q.cond.Signal()
}

func (q *Queue) run() {
	defer close(q.done)
	for {
		q.mu.Lock()
		for len(q.items) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.items) == 0 {
			q.mu.Unlock()
			return
		}
		item := q.items[0]
		q.items = q.items[1:]
		q.mu.Unlock()

		if q.staleAfter > 0 && time.Since(item.enqueued) > q.staleAfter {
			q.mu.Lock()
			q.skipped++
			q.mu.Unlock()
			log.Debug("speech: skipped stale callout", "text", item.ev.Text)
			continue
		}
		if err := q.sp.Speak(context.Background(), item.ev.Text); err != nil {
			log.Warn("speech: speak failed", "text", item.ev.Text, "error", err)
		}
	}
}

// Skipped reports how many entries were dropped as stale.
func (q *Queue) Skipped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.skipped
}

// Len reports entries still waiting.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close drains what is already queued, waits for the consumer to finish,
// and closes the speaker.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	q.mu.Unlock()
	q.cond.Signal()
	<-q.done
	return q.sp.Close()
}

var _ caller.Sink = (*Queue)(nil)
