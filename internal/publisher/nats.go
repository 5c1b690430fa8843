// Package publisher streams callout events to NATS so external consumers
// (loggers, replay tooling, remote dashboards) can subscribe to them.
package publisher

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/tarmac-rally/codriver/internal/log"
	"github.com/tarmac-rally/codriver/pkg/caller"
)

const subjectPrefix = "codriver.calls"

// NATS publishes every accepted CallEvent as JSON on
// "codriver.calls.<tick>". It implements caller.Sink; publish failures are
// logged, never propagated to the control loop.
type NATS struct {
	nc *nats.Conn
}

func NewNATS(url string) (*NATS, error) {
	nc, err := nats.Connect(url,
		nats.Name("codriver"),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("publisher: nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info("publisher: nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Info("publisher: nats closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("publisher: connect: %w", err)
	}
	return &NATS{nc: nc}, nil
}

// Accept implements caller.Sink. Non-blocking: nats.Publish only buffers.
func (p *NATS) Accept(ev caller.CallEvent) {
	b, err := json.Marshal(ev)
	if err != nil {
		log.Error("publisher: marshal call event", "error", err)
		return
	}
	subject := fmt.Sprintf("%s.%d", subjectPrefix, ev.Tick)
	if err := p.nc.Publish(subject, b); err != nil {
		log.Warn("publisher: publish failed", "subject", subject, "error", err)
	}
}

// Close drains buffered messages before disconnecting.
func (p *NATS) Close() {
	if p.nc != nil {
		p.nc.Drain()
		p.nc.Close()
	}
}

var _ caller.Sink = (*NATS)(nil)
