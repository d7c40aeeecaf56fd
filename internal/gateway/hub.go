package gateway

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/countclash/countclash-server-go/internal/session"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 256
)

var upgrader = websocket.Upgrader{
	// Adapters are server-side processes, not browsers; origin checks do not
	// apply.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub accepts adapter connections and routes their events to the session
// manager.
type Hub struct {
	manager   *session.Manager
	tokenHash string
	logger    *zap.Logger

	register   chan *Client
	unregister chan *Client
	clients    map[*Client]bool
}

// NewHub creates a hub. tokenHash is the bcrypt hash adapters must
// authenticate against; empty disables authentication.
func NewHub(manager *session.Manager, tokenHash string, logger *zap.Logger) *Hub {
	return &Hub{
		manager:    manager,
		tokenHash:  tokenHash,
		logger:     logger,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
	}
}

// Run owns the client set until the context is done.
func (h *Hub) Run(done <-chan struct{}) {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			h.logger.Info("adapter connected", zap.String("client_id", client.id))
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.logger.Info("adapter disconnected", zap.String("client_id", client.id))
			}
		case <-done:
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			return
		}
	}
}

// ServeHTTP upgrades the connection and starts the client pumps.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		id:            uuid.New().String(),
		hub:           h,
		conn:          conn,
		send:          make(chan []byte, sendBuffer),
		authenticated: h.tokenHash == "",
	}

	h.register <- client

	go client.writePump()
	go client.readPump()
}

// Client is one connected adapter.
type Client struct {
	id            string
	hub           *Hub
	conn          *websocket.Conn
	send          chan []byte
	authenticated bool
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			c.hub.logger.Warn("malformed event",
				zap.String("client_id", c.id),
				zap.Error(err),
			)
			c.reply(Reply{Type: EventError, OK: false, Message: "malformed event"})
			continue
		}

		if ev.Type == EventAuth {
			if !c.handleAuth(ev) {
				return
			}
			continue
		}
		if !c.authenticated {
			c.closeWithPolicyViolation("not authenticated")
			return
		}

		c.hub.dispatch(c, ev)
	}
}

// handleAuth reports whether the connection may continue.
func (c *Client) handleAuth(ev Event) bool {
	if c.hub.tokenHash != "" {
		if err := bcrypt.CompareHashAndPassword([]byte(c.hub.tokenHash), []byte(ev.Token)); err != nil {
			c.hub.logger.Warn("adapter auth failed", zap.String("client_id", c.id))
			c.closeWithPolicyViolation("invalid token")
			return false
		}
	}
	c.authenticated = true
	c.reply(Reply{Type: EventReply, ID: ev.ID, OK: true, ActiveChannels: c.hub.manager.ActiveChannels()})
	return true
}

// closeWithPolicyViolation sends a close frame with a reason. WriteControl is
// safe to call concurrently with the write pump.
func (c *Client) closeWithPolicyViolation(reason string) {
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason)
	c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
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

func (c *Client) reply(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		c.hub.logger.Error("failed to marshal reply", zap.Error(err))
		return
	}
	select {
	case c.send <- data:
	default:
		// Slow adapter; drop rather than block event processing.
		c.hub.logger.Warn("adapter send buffer full, dropping", zap.String("client_id", c.id))
	}
}

// Serve runs the hub's HTTP listener until it fails. Run must be started
// separately.
func Serve(address, path string, hub *Hub, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle(path, hub)
	logger.Info("gateway listening",
		zap.String("address", address),
		zap.String("path", path),
	)
	return http.ListenAndServe(address, mux)
}
