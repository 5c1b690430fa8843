package speech

import (
	"context"
	"sync"
	"time"
)

// Mock implements Speaker for testing. Behavior is customized via function
// fields; every invocation is recorded.
type Mock struct {
	// SpeakFunc is called when Speak is invoked. If nil, Speak succeeds
	// after a short synthetic delay proportional to the text length.
	SpeakFunc func(ctx context.Context, text string) error

	// CloseFunc is called when Close is invoked. If nil, returns nil.
	CloseFunc func() error

	mu    sync.Mutex
	calls []MockCall
}

// MockCall records one method invocation.
type MockCall struct {
	Method string
	Text   string
	Time   time.Time
}

func (m *Mock) Speak(ctx context.Context, text string) error {
	m.record("Speak", text)
	if m.SpeakFunc != nil {
		return m.SpeakFunc(ctx, text)
	}
	select {
	case <-time.After(time.Duration(len(text)) * time.Millisecond):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Mock) Close() error {
	m.record("Close", "")
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

func (m *Mock) record(method, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockCall{Method: method, Text: text, Time: time.Now()})
}

// Calls returns a copy of all recorded invocations.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// Spoken returns the text of every Speak call in order.
func (m *Mock) Spoken() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, c := range m.calls {
		if c.Method == "Speak" {
			out = append(out, c.Text)
		}
	}
	return out
}

var _ Speaker = (*Mock)(nil)
