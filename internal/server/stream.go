package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/claude/repcoach/internal/pose"
	"github.com/claude/repcoach/internal/session"
)

const (
	streamIdleTimeout = 60 * time.Second
	streamWriteWait   = 10 * time.Second
	streamMaxMessage  = 64 << 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Access is gated by the API key and the tailnet, not by origin.
	CheckOrigin: func(*http.Request) bool { return true },
}

type streamError struct {
	Error string `json:"error"`
}

// handleStream upgrades to a WebSocket. Each text message is one frame;
// each reply is the step it produced. Frames on one connection are
// processed strictly in order.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.ownedSession(w, r)
	if !ok {
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade", "session", sess.ID, "error", err)
		return
	}
	defer conn.Close()

	log := s.log.With("session", sess.ID)
	log.Info("stream opened")
	conn.SetReadLimit(streamMaxMessage)

	for {
		conn.SetReadDeadline(time.Now().Add(streamIdleTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn("stream read", "error", err)
			}
			break
		}
		var f pose.Frame
		if err := json.Unmarshal(data, &f); err != nil {
			if err := s.writeStream(conn, streamError{Error: "invalid frame: " + err.Error()}); err != nil {
				break
			}
			continue
		}

		step, err := s.process(r.Context(), sess, f)
		if errors.Is(err, session.ErrSessionEnded) {
			s.writeStream(conn, streamError{Error: err.Error()})
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"),
				time.Now().Add(streamWriteWait))
			break
		}
		if err := s.writeStream(conn, step); err != nil {
			log.Warn("stream write", "error", err)
			break
		}
	}
	log.Info("stream closed")
}

func (s *Server) writeStream(conn *websocket.Conn, v any) error {
	conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
	return conn.WriteJSON(v)
}
