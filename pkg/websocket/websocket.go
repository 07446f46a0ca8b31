package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/xid"
	"github.com/sirupsen/logrus"

	"coinfolio-engine/pkg/metrics"
	"coinfolio-engine/pkg/models"
)

// Hub fans coin ticks and trades out to subscribed WebSocket clients.
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Clients by channel name, e.g. ticker.<coinId>
	channels map[string]map[*Client]bool

	// Authenticated clients subscribed to their own trades
	users map[string]map[*Client]bool

	mu sync.RWMutex
}

// Client represents a WebSocket client
type Client struct {
	hub *Hub

	conn *websocket.Conn

	// Buffered channel of outbound messages
	send chan []byte

	// Authenticated user, empty for anonymous clients
	userID string

	id string

	// Guarded by hub.mu
	subscriptions map[string]bool
	closed        bool
}

// Message represents a WebSocket message
type Message struct {
	Type      string      `json:"type"`
	Channel   string      `json:"channel,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
	ID        string      `json:"id,omitempty"`
}

// SubscriptionRequest represents a subscription request
type SubscriptionRequest struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
}

// Message types
const (
	MessageTypeWelcome      = "welcome"
	MessageTypeSubscribe    = "subscribe"
	MessageTypeUnsubscribe  = "unsubscribe"
	MessageTypeSubscribed   = "subscribed"
	MessageTypeUnsubscribed = "unsubscribed"
	MessageTypePing         = "ping"
	MessageTypePong         = "pong"
	MessageTypeError        = "error"
	MessageTypeTicker       = "ticker_update"
	MessageTypeTrade        = "trade_update"
	MessageTypeUserTrade    = "user_trade_update"
)

// Channel types
const (
	ChannelTicker     = "ticker"
	ChannelTrades     = "trades"
	ChannelUserTrades = "user_trades"
)

// WebSocket connection settings
const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 256
)

// NewHub creates a new WebSocket hub
func NewHub() *Hub {
	return &Hub{
		clients:  make(map[*Client]bool),
		channels: make(map[string]map[*Client]bool),
		users:    make(map[string]map[*Client]bool),
	}
}

// Upgrader returns the upgrader used for incoming connections. An empty
// origin list accepts every origin.
func Upgrader(origins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || len(origins) == 0 {
				return true
			}
			for _, o := range origins {
				if o == "*" || strings.EqualFold(o, origin) {
					return true
				}
			}
			return false
		},
	}
}

// Run pings clients until ctx is done, then disconnects them.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-ticker.C:
			h.pingClients()
		}
	}
}

func (h *Hub) register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client] = true
	metrics.WebSocketClients.Inc()
	logrus.WithFields(logrus.Fields{"client_id": client.id, "user_id": client.userID}).Debug("WebSocket client registered")

	h.sendLocked(client, Message{
		Type: MessageTypeWelcome,
		Data: map[string]interface{}{"client_id": client.id, "authenticated": client.userID != ""},
	})
}

func (h *Hub) unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(client)
}

// removeLocked drops client from every index and closes its send channel once.
func (h *Hub) removeLocked(client *Client) {
	if client.closed {
		return
	}
	client.closed = true
	delete(h.clients, client)
	close(client.send)
	metrics.WebSocketClients.Dec()

	for channel := range client.subscriptions {
		if subs, ok := h.channels[channel]; ok {
			delete(subs, client)
			if len(subs) == 0 {
				delete(h.channels, channel)
			}
		}
	}
	if client.userID != "" {
		if subs, ok := h.users[client.userID]; ok {
			delete(subs, client)
			if len(subs) == 0 {
				delete(h.users, client.userID)
			}
		}
	}
	logrus.WithField("client_id", client.id).Debug("WebSocket client unregistered")
}

// sendLocked queues message for client, dropping the client if its buffer is full.
func (h *Hub) sendLocked(client *Client, message Message) {
	if client.closed {
		return
	}
	message.Timestamp = time.Now().Unix()
	data, err := json.Marshal(message)
	if err != nil {
		logrus.WithError(err).Error("Failed to marshal WebSocket message")
		return
	}
	select {
	case client.send <- data:
	default:
		logrus.WithField("client_id", client.id).Warn("WebSocket client too slow, disconnecting")
		h.removeLocked(client)
	}
}

func (h *Hub) broadcast(subscribers map[*Client]bool, message Message) {
	for client := range subscribers {
		h.sendLocked(client, message)
	}
}

func (h *Hub) pingClients() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		h.sendLocked(client, Message{Type: MessageTypePing})
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		h.removeLocked(client)
	}
}

// Subscribe adds client to channel. Channels are ticker.<coinId>,
// trades.<coinId> and user_trades, which needs an authenticated client.
func (h *Hub) Subscribe(client *Client, channel string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if client.closed {
		return false
	}

	switch {
	case channel == ChannelUserTrades:
		if client.userID == "" {
			h.sendLocked(client, errorMessage("Authentication required for user channels"))
			return false
		}
		if h.users[client.userID] == nil {
			h.users[client.userID] = make(map[*Client]bool)
		}
		h.users[client.userID][client] = true
	case coinChannel(channel):
		if h.channels[channel] == nil {
			h.channels[channel] = make(map[*Client]bool)
		}
		h.channels[channel][client] = true
	default:
		h.sendLocked(client, errorMessage("Invalid channel"))
		return false
	}

	client.subscriptions[channel] = true
	h.sendLocked(client, Message{Type: MessageTypeSubscribed, Channel: channel})
	return true
}

// Unsubscribe removes client from channel.
func (h *Hub) Unsubscribe(client *Client, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if channel == ChannelUserTrades {
		if subs, ok := h.users[client.userID]; ok {
			delete(subs, client)
			if len(subs) == 0 {
				delete(h.users, client.userID)
			}
		}
	} else if subs, ok := h.channels[channel]; ok {
		delete(subs, client)
		if len(subs) == 0 {
			delete(h.channels, channel)
		}
	}
	delete(client.subscriptions, channel)
	h.sendLocked(client, Message{Type: MessageTypeUnsubscribed, Channel: channel})
}

func coinChannel(channel string) bool {
	for _, prefix := range []string{ChannelTicker + ".", ChannelTrades + "."} {
		if strings.HasPrefix(channel, prefix) && len(channel) > len(prefix) {
			return true
		}
	}
	return false
}

func errorMessage(text string) Message {
	return Message{Type: MessageTypeError, Data: map[string]string{"error": text}}
}

// CoinUpdated broadcasts the coin's ticker to ticker.<coinId>.
func (h *Hub) CoinUpdated(coin models.Coin) {
	channel := ChannelTicker + "." + coin.CoinID

	h.mu.Lock()
	defer h.mu.Unlock()
	h.broadcast(h.channels[channel], Message{Type: MessageTypeTicker, Channel: channel, Data: coin.PriceInfo()})
}

// TradeExecuted broadcasts the new ticker, the trade on trades.<coinId>
// and the trade to its user's user_trades subscribers.
func (h *Hub) TradeExecuted(trade models.TradeHistory, coin models.Coin) {
	ticker := ChannelTicker + "." + coin.CoinID
	trades := ChannelTrades + "." + coin.CoinID
	info := trade.Info()

	h.mu.Lock()
	defer h.mu.Unlock()
	h.broadcast(h.channels[ticker], Message{Type: MessageTypeTicker, Channel: ticker, Data: coin.PriceInfo()})
	h.broadcast(h.channels[trades], Message{Type: MessageTypeTrade, Channel: trades, Data: info, ID: trade.HistoryID})
	h.broadcast(h.users[trade.UserID], Message{Type: MessageTypeUserTrade, Channel: ChannelUserTrades, Data: info, ID: trade.HistoryID})
}

// Handler upgrades the request and serves the connection. The user id set
// by the optional auth middleware enables the user_trades channel.
func (h *Hub) Handler(origins []string) gin.HandlerFunc {
	upgrader := Upgrader(origins)
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logrus.WithError(err).Warn("WebSocket upgrade failed")
			return
		}

		client := &Client{
			hub:           h,
			conn:          conn,
			send:          make(chan []byte, sendBuffer),
			userID:        c.GetString("user_id"),
			id:            xid.New().String(),
			subscriptions: make(map[string]bool),
		}
		h.register(client)

		go client.writePump()
		go client.readPump()
	}
}

// readPump handles reading messages from the WebSocket connection
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logrus.WithError(err).Warn("WebSocket read error")
			}
			return
		}
		c.handleMessage(message)
	}
}

// writePump handles writing messages to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleMessage(message []byte) {
	var req SubscriptionRequest
	if err := json.Unmarshal(message, &req); err != nil {
		c.reply(errorMessage("Invalid message format"))
		return
	}

	switch req.Type {
	case MessageTypeSubscribe:
		c.hub.Subscribe(c, req.Channel)
	case MessageTypeUnsubscribe:
		c.hub.Unsubscribe(c, req.Channel)
	case MessageTypePing:
		c.reply(Message{Type: MessageTypePong})
	case MessageTypePong:
	default:
		c.reply(errorMessage("Unknown message type"))
	}
}

func (c *Client) reply(message Message) {
	c.hub.mu.Lock()
	defer c.hub.mu.Unlock()
	c.hub.sendLocked(c, message)
}

// Stats returns WebSocket statistics
func (h *Hub) Stats() map[string]interface{} {
	h.mu.RLock()
	defer h.mu.RUnlock()

	authenticated := 0
	for client := range h.clients {
		if client.userID != "" {
			authenticated++
		}
	}
	return map[string]interface{}{
		"total_clients":         len(h.clients),
		"channels":              len(h.channels),
		"user_subscriptions":    len(h.users),
		"authenticated_clients": authenticated,
	}
}
