package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/vango-dev/switchmap/internal/pipeline"
)

const (
	// sendBuffer is the per-client queue of outgoing messages.
	sendBuffer = 64

	writeWait = 5 * time.Second
)

// MessageType identifies a websocket message.
type MessageType string

const (
	MessageSnapshot MessageType = "snapshot"
	MessageChange   MessageType = "change"
)

// Message is sent to websocket clients. The first message on a connection
// is a snapshot; every later one is a change.
type Message struct {
	Type     MessageType        `json:"type"`
	Client   string             `json:"client,omitempty"`
	Snapshot *pipeline.Snapshot `json:"snapshot,omitempty"`
	Change   *pipeline.Change   `json:"change,omitempty"`
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// enqueue never blocks; it runs on the pipeline's loop goroutine.
func (c *client) enqueue(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *client) writePump() {
	for {
		select {
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.close()
				return
			}
		case <-c.done:
			return
		}
	}
}

// handleWebSocket upgrades the connection, sends a snapshot and streams
// pipeline changes until the client disconnects.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	c := &client{
		id:   uuid.Must(uuid.NewV7()).String(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
	logger := s.logger.With("client", c.id)

	snap, err := s.config.Pipeline.Snapshot()
	if err != nil {
		logger.Warn("snapshot failed", "error", err)
		conn.Close()
		return
	}
	first, err := json.Marshal(Message{Type: MessageSnapshot, Client: c.id, Snapshot: &snap})
	if err != nil {
		conn.Close()
		return
	}
	c.send <- first

	stop, err := s.config.Pipeline.Subscribe(func(change pipeline.Change) {
		data, err := json.Marshal(Message{Type: MessageChange, Change: &change})
		if err != nil {
			logger.Warn("encode change", "key", change.Key, "error", err)
			return
		}
		if !c.enqueue(data) {
			logger.Warn("client too slow, dropping change", "key", change.Key)
		}
	})
	if err != nil {
		logger.Warn("subscribe failed", "error", err)
		conn.Close()
		return
	}

	s.mu.Lock()
	s.clients[c.id] = c
	s.mu.Unlock()
	logger.Info("client connected", "clients", s.ClientCount())

	go c.writePump()

	// Reads only detect disconnects
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	stop()
	c.close()

	s.mu.Lock()
	delete(s.clients, c.id)
	s.mu.Unlock()
	logger.Info("client disconnected")
}

func (s *Server) closeClients() {
	s.mu.Lock()
	clients := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
}
