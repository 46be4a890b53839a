package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tinyland-inc/relayclaw/pkg/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// handleEvents streams the broker's telemetry feed over a websocket. The
// feed is observability only: dropped frames or slow clients never affect
// queue state, and a lagging subscriber just misses events.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.DebugCF("server", "Websocket upgrade failed", map[string]any{
			"error": err.Error(),
		})
		return
	}
	defer conn.Close()

	events, cancel := s.broker.Feed().Subscribe()
	defer cancel()

	// Drain client frames so close handshakes are noticed.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-clientGone:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		}
	}
}
