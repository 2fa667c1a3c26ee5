package web

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Send/receive timing and message size limits.
const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMsgSize = 1 << 12 // 4 KB
)

// wsEnvelope frames every websocket message.
type wsEnvelope struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Dashboard is served from the same origin; other origins are refused.
var upgrader = websocket.Upgrader{}

// handleWS streams the level history once ("history") and then every new
// point as it is appended ("point").
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnw("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	conn.SetReadLimit(maxMsgSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// Subscribe before taking the history so no point falls between them.
	points, cancel := s.points.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go readUntilClosed(conn, done)

	history := s.points.Snapshot()
	values := make([]DataPoint, len(history))
	for i, p := range history {
		values[i] = toDataPoint(p)
	}
	if err := writeJSON(conn, wsEnvelope{Type: "history", Data: values}); err != nil {
		s.log.Debugw("ws write failed", "error", err)
		return
	}

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.log.Debugw("ws ping failed", "error", err)
				return
			}
		case p, ok := <-points:
			if !ok {
				return
			}
			if err := writeJSON(conn, wsEnvelope{Type: "point", Data: toDataPoint(p)}); err != nil {
				s.log.Debugw("ws write failed", "error", err)
				return
			}
		}
	}
}

// readUntilClosed drains incoming frames so control messages are handled,
// and closes done when the peer goes away.
func readUntilClosed(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writeJSON(conn *websocket.Conn, v any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}
