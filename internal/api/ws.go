package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/terra-clan/hackathon-leaderboard/internal/models"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// StreamMessage is one frame of the leaderboard stream
type StreamMessage struct {
	Type string           `json:"type"`
	Data *models.Snapshot `json:"data,omitempty"`
	// Message is set on error frames
	Message string `json:"message,omitempty"`
}

// handleLeaderboardWS pushes the current snapshot and every later one.
// A slow client skips intermediate snapshots rather than queueing them.
func (s *Server) handleLeaderboardWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("failed to upgrade to websocket", "error", err)
		return
	}
	defer conn.Close()

	snapshots, cancel := s.leaderboard.Listen()
	defer cancel()

	slog.Info("leaderboard stream connected", "remote_addr", r.RemoteAddr)

	// The client sends nothing; reading keeps pongs and close frames flowing
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					slog.Debug("websocket read error", "error", err)
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			slog.Info("leaderboard stream disconnected", "remote_addr", r.RemoteAddr)
			return

		case snap, ok := <-snapshots:
			if !ok {
				s.sendStreamMessage(conn, StreamMessage{Type: "error", Message: "leaderboard stopped"})
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
					time.Now().Add(writeWait))
				return
			}
			if err := s.sendStreamMessage(conn, StreamMessage{Type: "snapshot", Data: &snap}); err != nil {
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) sendStreamMessage(conn *websocket.Conn, msg StreamMessage) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(msg); err != nil {
		slog.Debug("failed to send stream message", "type", msg.Type, "error", err)
		return err
	}
	return nil
}
