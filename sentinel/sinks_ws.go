package sentinel

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/ethereum/go-ethereum/log"
	"github.com/gorilla/websocket"
)

// WebSocketSink broadcasts alerts as JSON frames to every currently
// connected client, matching the teacher's gorilla/websocket usage
// conventions for realtime push (§6.2's "WS" sink).
type WebSocketSink struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

// NewWebSocketSink builds an empty broadcaster; register connections via
// the returned HTTP handler's ServeHTTP, typically mounted at
// /sentinel/ws.
func NewWebSocketSink() *WebSocketSink {
	return &WebSocketSink{
		upgrader: websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024},
		clients:  make(map[*websocket.Conn]struct{}),
	}
}

func (s *WebSocketSink) Name() string { return "websocket" }

// ServeHTTP upgrades an inbound connection and registers it as a
// broadcast recipient until it disconnects.
func (s *WebSocketSink) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("sentinel websocket upgrade failed", "err", err)
		return
	}
	s.mu.Lock()
	s.clients[conn] = struct{}{}
	s.mu.Unlock()

	go func() {
		defer s.remove(conn)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()
}

func (s *WebSocketSink) remove(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.clients, conn)
	s.mu.Unlock()
	conn.Close()
}

func (s *WebSocketSink) Send(ctx context.Context, alert *SentinelAlert) error {
	payload, err := json.Marshal(webhookPayload(alert))
	if err != nil {
		return newErr(ErrSerializationFailure, err)
	}

	s.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(s.clients))
	for c := range s.clients {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		if err := c.WriteMessage(websocket.TextMessage, payload); err != nil {
			log.Debug("sentinel websocket send failed, dropping client", "err", err)
			s.remove(c)
		}
	}
	return nil
}
