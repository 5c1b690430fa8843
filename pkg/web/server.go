// Package web provides a live dashboard: current position, the projected
// path, upcoming notes, and the callout history, streamed over websockets.
package web

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/tarmac-rally/codriver/internal/log"
	"github.com/tarmac-rally/codriver/pkg/caller"
	"github.com/tarmac-rally/codriver/pkg/engine"
	"github.com/tarmac-rally/codriver/pkg/hub"
)

const callHistory = 100

// Server is the dashboard server. It observes engine ticks and, acting as a
// callout sink, records every announcement.
type Server struct {
	app  *fiber.App
	addr string

	mu    sync.RWMutex
	last  engine.TickState
	calls []caller.CallEvent

	telemetryHub *hub.Hub
}

func NewServer(addr string) *Server {
	s := &Server{
		addr:         addr,
		calls:        make([]caller.CallEvent, 0, callHistory),
		telemetryHub: hub.New("telemetry"),
	}

	app := fiber.New(fiber.Config{
		AppName:               "codriver dashboard",
		DisableStartupMessage: true,
	})
	app.Use(cors.New())
	app.Static("/", "./web")

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/calls", s.handleCalls)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/telemetry", websocket.New(s.handleTelemetryWS))

	s.app = app
	return s
}

// Start listens until Shutdown. Run it in a goroutine.
func (s *Server) Start() error {
	go s.telemetryHub.Run()
	log.Info("web: dashboard listening", "addr", s.addr)
	return s.app.Listen(s.addr)
}

// ObserveTick records the latest tick and streams it to clients. Wire it to
// the engine's OnTick.
func (s *Server) ObserveTick(st engine.TickState) {
	s.mu.Lock()
	s.last = st
	s.mu.Unlock()
	s.telemetryHub.BroadcastJSON(st)
}

// Accept implements caller.Sink: every callout lands in the history buffer.
func (s *Server) Accept(ev caller.CallEvent) {
	s.mu.Lock()
	s.calls = append(s.calls, ev)
	if len(s.calls) > callHistory {
		s.calls = s.calls[1:]
	}
	s.mu.Unlock()
}

// Shutdown stops the listener and disconnects dashboard clients.
func (s *Server) Shutdown() error {
	s.telemetryHub.Stop()
	return s.app.ShutdownWithTimeout(2 * time.Second)
}

var _ caller.Sink = (*Server)(nil)
