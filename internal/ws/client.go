package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 16384
	sendBuffer     = 256
)

// Client is one live websocket connection bound to a verified identity.
// Rooms is the connection's ephemeral membership set; it dies with the
// connection and is never persisted.
type Client struct {
	ConnID      string
	Conn        *websocket.Conn
	ExternalUID string
	Name        string

	rooms   map[string]bool
	roomsMu sync.RWMutex

	Send   chan []byte
	sendMu sync.Mutex
	closed bool
}

func newClient(connID string, conn *websocket.Conn, externalUID, name string) *Client {
	return &Client{
		ConnID:      connID,
		Conn:        conn,
		ExternalUID: externalUID,
		Name:        name,
		rooms:       make(map[string]bool),
		Send:        make(chan []byte, sendBuffer),
	}
}

func (c *Client) joinRoom(room string) {
	c.roomsMu.Lock()
	defer c.roomsMu.Unlock()
	c.rooms[room] = true
}

func (c *Client) leaveRoom(room string) {
	c.roomsMu.Lock()
	defer c.roomsMu.Unlock()
	delete(c.rooms, room)
}

func (c *Client) inRoom(room string) bool {
	c.roomsMu.RLock()
	defer c.roomsMu.RUnlock()
	return c.rooms[room]
}

// trySend queues raw for the write pump without blocking. Returns false
// when the buffer is full or the connection has already shut down. The
// mutex keeps the send and closeSend from interleaving, so a broadcaster
// holding a stale snapshot cannot hit a closed channel.
func (c *Client) trySend(raw []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- raw:
		return true
	default:
		return false
	}
}

// closeSend shuts down the write pump. Idempotent.
func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.Send)
}
