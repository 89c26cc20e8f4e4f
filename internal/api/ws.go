package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024 * 16,
	CheckOrigin: func(r *http.Request) bool {
		return true // the session token guards the endpoint
	},
}

// WebSocket message types to client.
const (
	msgAnalysis    = "analysis"
	msgReplaced    = "replaced"
	msgRunStarted  = "run_started"
	msgProgress    = "progress"
	msgRunFinished = "run_finished"
	msgError       = "error"
	msgPong        = "pong"
)

// WebSocket message types from client.
const msgPing = "ping"

const (
	clientBuffer = 64
	writeTimeout = 10 * time.Second
)

// wsMessage is the envelope for WebSocket messages in both directions.
type wsMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// analysisEvent is sent whenever a block analysis completes.
type analysisEvent struct {
	NodeID  string `json:"node_id"`
	Status  string `json:"status"`
	Summary string `json:"summary,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Hub fans server events out to every connected WebSocket client. A client
// whose buffer fills up is dropped rather than slowing the broadcaster.
type Hub struct {
	log *slog.Logger

	mu      sync.Mutex
	clients map[*wsClient]struct{}
	closed  bool
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates an empty Hub.
func NewHub(log *slog.Logger) *Hub {
	return &Hub{log: log, clients: make(map[*wsClient]struct{})}
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast sends a {type, data} message to every client.
func (h *Hub) Broadcast(msgType string, data any) {
	msg, err := encodeMessage(msgType, data)
	if err != nil {
		h.log.Error("ws marshal", "type", msgType, "error", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.log.Warn("dropping slow websocket client")
			h.removeLocked(c)
		}
	}
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		h.removeLocked(c)
	}
}

func (h *Hub) add(c *wsClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *wsClient) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

func encodeMessage(msgType string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wsMessage{Type: msgType, Data: raw})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade", "error", err)
		return
	}
	c := &wsClient{conn: conn, send: make(chan []byte, clientBuffer)}
	if !s.hub.add(c) {
		conn.Close()
		return
	}
	go c.writeLoop()
	defer s.hub.remove(c)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug("websocket read", "error", err)
			}
			return
		}
		s.touch()

		var msg wsMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.reply(c, msgError, map[string]string{"message": "invalid message format"})
			continue
		}
		switch msg.Type {
		case msgPing:
			s.reply(c, msgPong, map[string]bool{"running": s.runActive()})
		default:
			s.reply(c, msgError, map[string]string{"message": "unknown message type: " + msg.Type})
		}
	}
}

// reply sends a message to one client.
func (s *Server) reply(c *wsClient, msgType string, data any) {
	msg, err := encodeMessage(msgType, data)
	if err != nil {
		return
	}
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	if _, ok := s.hub.clients[c]; !ok {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

// writeLoop drains the client's queue until the hub closes it.
func (c *wsClient) writeLoop() {
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			// Closing the connection ends the read loop, which removes the
			// client and closes send.
			c.conn.Close()
			for range c.send {
			}
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
