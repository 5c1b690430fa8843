// Package sim provides position sources for running without GPS hardware:
// a route-following simulator and a recorded-trace replayer.
package sim

import (
	"context"
	"errors"

	"github.com/tarmac-rally/codriver/pkg/geo"
)

// ErrTraceEnded is returned when a replayed trace runs out of samples.
var ErrTraceEnded = errors.New("sim: trace ended")

// Source yields successive position samples. Next blocks until the next
// sample is due or ctx is cancelled.
type Source interface {
	Next(ctx context.Context) (geo.Position, error)
	Close() error
}
