package stream

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Client represents one subscriber connection. A client with no explicit
// topic subscriptions receives all per-symbol events; subscribing narrows
// delivery to the chosen symbols. Topic membership is a side channel that
// never affects fetch behavior.
type Client struct {
	conn       *websocket.Conn
	send       chan []byte
	mu         sync.RWMutex
	subscribed map[string]bool
}

func newClient(conn *websocket.Conn) *Client {
	return &Client{
		conn:       conn,
		send:       make(chan []byte, ClientSendBuffer),
		subscribed: make(map[string]bool),
	}
}

// wants reports whether a per-symbol event should reach this client
func (c *Client) wants(symbol string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.subscribed) == 0 {
		return true
	}
	return c.subscribed[symbol]
}

func (c *Client) subscribe(symbols []string) {
	c.mu.Lock()
	for _, s := range symbols {
		c.subscribed[s] = true
	}
	c.mu.Unlock()
}

func (c *Client) unsubscribe(symbols []string) {
	c.mu.Lock()
	for _, s := range symbols {
		delete(c.subscribed, s)
	}
	c.mu.Unlock()
}

// writePump writes queued events to the connection
func (c *Client) writePump() {
	ticker := time.NewTicker(PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump reads subscribe/unsubscribe commands from the connection
func (c *Client) readPump(h *Hub) {
	defer func() {
		h.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(PongTimeout))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket read error: %v", err)
			}
			break
		}

		var cmd struct {
			Action  string   `json:"action"`
			Symbols []string `json:"symbols"`
		}
		if err := json.Unmarshal(message, &cmd); err != nil {
			continue
		}

		switch cmd.Action {
		case "subscribe":
			c.subscribe(cmd.Symbols)
		case "unsubscribe":
			c.unsubscribe(cmd.Symbols)
		}
	}
}
