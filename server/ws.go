package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lexcodex/reactchat/framework"
)

const wsWriteWait = 10 * time.Second

func (s *APIServer) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || s.originAllowed(origin)
		},
	}
}

// wsSink writes one JSON text frame per event.
type wsSink struct {
	conn   *websocket.Conn
	broken bool
}

func (s *wsSink) Emit(event framework.Event) {
	if s.broken {
		return
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := s.conn.WriteJSON(event); err != nil {
		s.broken = true
	}
}

// handleChatSocket serves one chat per connection: the first text frame is
// the request, every event follows as its own frame, and the socket closes
// after the terminal event.
func (s *APIServer) handleChatSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := s.upgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger().Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxRequestBytes)

	id := requestIDFrom(r.Context())
	logger := s.logger().With("request_id", id)

	_, payload, err := conn.ReadMessage()
	if err != nil {
		logger.Warn("websocket read request", "error", err)
		return
	}
	var inbound ChatRequest
	if err := json.Unmarshal(payload, &inbound); err != nil {
		s.rejectSocket(conn, "invalid chat request: "+err.Error())
		return
	}
	req, err := inbound.toDriver()
	if err != nil {
		s.rejectSocket(conn, err.Error())
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	// Any further read error means the peer went away.
	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				cancel()
				return
			}
		}
	}()

	sink := &wsSink{conn: conn}
	outcome := s.driver(logger).Run(ctx, req, s.observe(id, logger, sink))
	logger.Info("chat finished", "outcome", outcome.String(), "transport", "websocket")
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, outcome.String()),
		time.Now().Add(wsWriteWait))
}

func (s *APIServer) rejectSocket(conn *websocket.Conn, message string) {
	sink := &wsSink{conn: conn}
	sink.Emit(framework.Event{Type: framework.EventError, Data: framework.ErrorEvent{Message: message}})
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "invalid request"),
		time.Now().Add(wsWriteWait))
}
