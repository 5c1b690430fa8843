package web

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/tarmac-rally/codriver/pkg/caller"
	"github.com/tarmac-rally/codriver/pkg/hub"
)

// statusResponse summarizes the most recent tick for /api/status.
type statusResponse struct {
	Tick       uint64  `json:"tick"`
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	HeadingDeg float64 `json:"heading_deg"`
	SpeedMPS   float64 `json:"speed_mps"`
	OffRoad    bool    `json:"off_road"`
	PathLenM   float64 `json:"path_length_m"`
	Notes      int     `json:"notes"`
	Clients    int     `json:"clients"`
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	s.mu.RLock()
	st := s.last
	s.mu.RUnlock()

	return c.JSON(statusResponse{
		Tick:       st.Tick,
		Lat:        st.Position.Point.Lat,
		Lon:        st.Position.Point.Lon,
		HeadingDeg: st.Position.Heading,
		SpeedMPS:   st.Position.Speed,
		OffRoad:    st.OffRoad,
		PathLenM:   st.PathLen,
		Notes:      len(st.Notes),
		Clients:    s.telemetryHub.ClientCount(),
	})
}

func (s *Server) handleCalls(c *fiber.Ctx) error {
	s.mu.RLock()
	out := make([]caller.CallEvent, len(s.calls))
	copy(out, s.calls)
	s.mu.RUnlock()
	return c.JSON(out)
}

func (s *Server) handleTelemetryWS(conn *websocket.Conn) {
	client := hub.NewClient(s.telemetryHub, conn)
	client.Run()
}
