// Package speech renders callout text to audio. The Exec speaker shells out
// to a local TTS engine with an optional intercom effect chain; Queue
// decouples the real-time loop from rendering latency.
package speech

import (
	"context"
	"errors"
)

// Sentinel errors for common conditions.
var (
	// ErrNoEngine is returned when no TTS binary is installed.
	ErrNoEngine = errors.New("speech: no TTS engine found")

	// ErrClosed is returned when using a closed speaker or queue.
	ErrClosed = errors.New("speech: closed")
)

// Speaker renders one utterance at a time. Speak blocks until playback
// finishes or ctx is cancelled.
type Speaker interface {
	Speak(ctx context.Context, text string) error
	Close() error
}
