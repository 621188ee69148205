// Package realtime pushes trade events to dashboard websocket clients.
package realtime

import (
	"net/http"
	"sync"
	"time"

	"voice-broker-go/internal/models"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const writeWait = 5 * time.Second

// Event is the envelope every message is sent in.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// TradeEvent is broadcast for every settled trade.
type TradeEvent struct {
	Trade       models.Trade    `json:"trade"`
	CashBalance decimal.Decimal `json:"cash_balance"`
}

type client struct {
	conn *websocket.Conn
	mu   sync.Mutex // gorilla allows one concurrent writer
}

func (c *client) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(v)
}

type Hub struct {
	mu       sync.RWMutex
	clients  map[*websocket.Conn]*client
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[*websocket.Conn]*client),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger.Named("hub"),
	}
}

func (h *Hub) AddClient(conn *websocket.Conn) {
	h.mu.Lock()
	h.clients[conn] = &client{conn: conn}
	h.mu.Unlock()
}

func (h *Hub) RemoveClient(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
	_ = conn.Close()
}

// Clients reports how many connections are registered.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) BroadcastJSON(v any) {
	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if err := c.writeJSON(v); err != nil {
			h.logger.Debug("Dropping websocket client", zap.Error(err))
			h.RemoveClient(c.conn)
		}
	}
}

// TradeExecuted broadcasts a settled trade.
func (h *Hub) TradeExecuted(trade models.Trade, cashBalance decimal.Decimal) {
	h.BroadcastJSON(Event{Type: "trade_executed", Data: TradeEvent{Trade: trade, CashBalance: cashBalance}})
}

// ServeWS upgrades the request and holds the connection until the client leaves.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed", zap.Error(err))
		return
	}
	h.AddClient(conn)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.RemoveClient(conn)
			return
		}
	}
}
