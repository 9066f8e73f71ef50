package stream

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nquinn721/ai-stock-trader-sub001/models"
	"github.com/nquinn721/ai-stock-trader-sub001/services/marketdata"
)

// Constants for hub configuration
const (
	MaxClients         = 100 // Maximum concurrent WebSocket clients
	WriteTimeout       = 10 * time.Second
	PongTimeout        = 60 * time.Second
	PingInterval       = 30 * time.Second
	ClientSendBuffer   = 256
	BroadcastQueueSize = 256
)

// Event is the envelope every subscriber receives
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
	Time string      `json:"time"`
}

// Event types delivered to subscribers
const (
	EventStockUpdate   = "stock_update"
	EventStockUpdates  = "stock_updates"
	EventTradingSignal = "trading_signal"
)

// envelope carries a marshaled event through the hub. An empty symbol means
// the event is not scoped to one instrument and goes to every client.
type envelope struct {
	symbol  string
	payload []byte
}

// Hub fans out quote updates and trading signals to connected subscribers.
// Every client implicitly receives all updates on connect; subscribing to
// one or more symbols narrows per-symbol events to those topics. Delivery is
// at-most-once: a client whose send buffer is full is dropped.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan envelope
	register   chan *Client
	unregister chan *Client
	shutdown   chan struct{}
	mu         sync.RWMutex
	upgrader   websocket.Upgrader

	closeOnce sync.Once
}

// NewHub creates the hub. Run must be started before clients connect.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan envelope, BroadcastQueueSize),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		shutdown:   make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Run processes registrations and broadcasts until Shutdown
func (h *Hub) Run() {
	for {
		select {
		case <-h.shutdown:
			return

		case client := <-h.register:
			h.mu.Lock()
			if len(h.clients) >= MaxClients {
				h.mu.Unlock()
				if client.conn != nil {
					client.conn.WriteMessage(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "Server at capacity"))
					client.conn.Close()
				}
				log.Printf("WebSocket client rejected: max clients reached (%d)", MaxClients)
				continue
			}
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()
			log.Printf("WebSocket client connected. Total clients: %d", count)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			count := len(h.clients)
			h.mu.Unlock()
			log.Printf("WebSocket client disconnected. Total clients: %d", count)

		case env := <-h.broadcast:
			h.mu.Lock()
			var dead []*Client
			for client := range h.clients {
				if env.symbol != "" && !client.wants(env.symbol) {
					continue
				}
				select {
				case client.send <- env.payload:
				default:
					// Client buffer full, mark for removal
					dead = append(dead, client)
				}
			}
			for _, client := range dead {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
		}
	}
}

// Shutdown stops the hub and closes all client connections
func (h *Hub) Shutdown() {
	h.closeOnce.Do(func() {
		close(h.shutdown)
	})

	h.mu.Lock()
	for client := range h.clients {
		close(client.send)
		if client.conn != nil {
			client.conn.Close()
		}
	}
	h.clients = make(map[*Client]bool)
	h.mu.Unlock()

	log.Println("WebSocket hub shutdown complete")
}

// HandleWebSocket upgrades an HTTP request into a subscriber connection
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	atCapacity := len(h.clients) >= MaxClients
	h.mu.RUnlock()

	if atCapacity {
		http.Error(w, "Server at capacity", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	client := newClient(conn)
	h.register <- client

	go client.writePump()
	go client.readPump(h)
}

// ClientCount returns the number of connected subscribers. The update
// scheduler calls this synchronously before each fetch cycle.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastAll emits one stock_updates event with the whole batch to every
// connected subscriber.
func (h *Hub) BroadcastAll(snapshots []marketdata.QuoteSnapshot) {
	h.send("", Event{
		Type: EventStockUpdates,
		Data: snapshots,
		Time: time.Now().Format(time.RFC3339),
	})
}

// BroadcastSymbol emits a stock_update event for one instrument. Generic
// subscribers and subscribers joined to the symbol's topic receive it;
// subscribers joined only to other topics do not.
func (h *Hub) BroadcastSymbol(symbol string, snap marketdata.QuoteSnapshot) {
	h.send(symbol, Event{
		Type: EventStockUpdate,
		Data: snap,
		Time: time.Now().Format(time.RFC3339),
	})
}

// BroadcastSignal emits a trading_signal event scoped to the signal's symbol
func (h *Hub) BroadcastSignal(sig models.TradingSignal) {
	h.send(sig.Symbol, Event{
		Type: EventTradingSignal,
		Data: sig,
		Time: time.Now().Format(time.RFC3339),
	})
}

func (h *Hub) send(symbol string, event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("Error marshaling broadcast event: %v", err)
		return
	}
	select {
	case h.broadcast <- envelope{symbol: symbol, payload: payload}:
	default:
		// Broadcast queue full, drop rather than block the caller
		log.Println("Broadcast queue full, dropping event")
	}
}

// Status returns hub state for the status endpoint
func (h *Hub) Status() map[string]interface{} {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return map[string]interface{}{
		"client_count": len(h.clients),
		"max_clients":  MaxClients,
	}
}
