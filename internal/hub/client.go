package hub

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/gofiber/contrib/websocket"
)

// WSMessage is the envelope for every websocket frame, inbound and outbound.
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// Conn is the transport a client writes to. *websocket.Conn satisfies it.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Client is one authenticated websocket connection.
type Client struct {
	ID     string
	UserID string

	conn    Conn
	writeMu sync.Mutex
}

// NewClient wraps an authenticated connection.
func NewClient(id, userID string, conn Conn) *Client {
	return &Client{ID: id, UserID: userID, conn: conn}
}

// Send serializes and writes one message. Writes are serialized per
// connection; the event path, the monitors and direct notifications all write
// to the same socket.
func (c *Client) Send(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("[Hub] marshal %s: %v", msg.Type, err)
		return
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Printf("[Hub] send %s to conn %s: %v", msg.Type, c.ID, err)
	}
}

// Close closes the underlying transport.
func (c *Client) Close() {
	c.conn.Close()
}

// decode re-marshals a loosely typed payload into a concrete struct.
func decode(payload interface{}, v interface{}) bool {
	data, err := json.Marshal(payload)
	if err != nil {
		return false
	}
	return json.Unmarshal(data, v) == nil
}
