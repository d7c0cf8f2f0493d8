package server

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/soyeahso/chatkit-demo/internal/agui"
)

const writeWait = 10 * time.Second

// handleWebSocket upgrades to a WebSocket. Each text frame carries a
// RunAgentInput; the run's events come back as one JSON text frame each.
// Runs on a connection are served one at a time.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}
	conn.SetReadLimit(maxPayloadBytes)

	s.addSocket(conn)
	defer s.removeSocket(conn)
	s.log.Info().Str("remote", r.RemoteAddr).Msg("websocket connected")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	send := func(ev agui.Event) error {
		mu.Lock()
		defer mu.Unlock()
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(ev)
	}

	for {
		typ, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Warn().Err(err).Msg("websocket read error")
			}
			s.log.Info().Str("remote", r.RemoteAddr).Msg("websocket disconnected")
			return
		}
		if typ != websocket.TextMessage {
			continue
		}

		input, err := decodeInput(bytes.NewReader(msg))
		if err != nil {
			send(agui.Event{Type: agui.EventRunError, Message: "invalid RunAgentInput: " + err.Error(), Code: "INVALID_INPUT"})
			continue
		}
		agent, err := s.selectAgent(input)
		if err != nil {
			code := "AGENT_ERROR"
			switch {
			case errors.Is(err, ErrScenarioNotFound):
				code = "SCENARIO_NOT_FOUND"
			case errors.Is(err, ErrLLMUnavailable):
				code = "LLM_UNAVAILABLE"
			}
			send(agui.Event{Type: agui.EventRunError, Message: err.Error(), Code: code})
			continue
		}
		if err := s.run(ctx, agent, input, send); err != nil {
			if send(agui.Event{Type: agui.EventRunError, Message: err.Error(), Code: "AGENT_ERROR"}) != nil {
				return
			}
		}
	}
}

func (s *Server) addSocket(conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sockets[conn] = struct{}{}
}

func (s *Server) removeSocket(conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sockets[conn]; ok {
		delete(s.sockets, conn)
		conn.Close()
	}
}

func (s *Server) socketCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sockets)
}

// closeSockets sends a going-away close frame to every open WebSocket.
func (s *Server) closeSockets() {
	s.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(s.sockets))
	for c := range s.sockets {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	for _, c := range conns {
		c.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.Close()
	}
}
