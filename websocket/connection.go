package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"home-services-server/models"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512

	sendBuffer = 64
)

// Client is one websocket connection. A user may hold several.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	userID uint
	role   models.UserRole

	// rooms is guarded by hub.mu.
	rooms map[string]bool
}

// clientAction is what clients send: {"action":"join","room":"booking:12"}.
type clientAction struct {
	Action string `json:"action"`
	Room   string `json:"room"`
}

func (h *Hub) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || len(h.opts.AllowedOrigins) == 0 {
				return true
			}
			for _, allowed := range h.opts.AllowedOrigins {
				if allowed == "*" || allowed == origin {
					return true
				}
			}
			return false
		},
	}
}

// Serve upgrades the request and attaches the connection to the hub for an authenticated user.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, userID uint, role models.UserRole) {
	up := h.upgrader()
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		userID: userID,
		role:   role,
		rooms:  make(map[string]bool),
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// readPump handles join/leave/ping actions until the connection drops.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Debug("websocket read error", zap.Uint("user_id", c.userID), zap.Error(err))
			}
			return
		}

		var action clientAction
		if err := json.Unmarshal(raw, &action); err != nil {
			c.reply(Envelope{Event: EventError, Data: map[string]string{"message": "invalid frame"}})
			continue
		}
		c.handle(action)
	}
}

func (c *Client) handle(action clientAction) {
	switch action.Action {
	case "join":
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		ok := c.hub.Join(ctx, c, action.Room)
		cancel()
		if !ok {
			c.reply(Envelope{Event: EventError, Data: map[string]string{"message": "cannot join room", "room": action.Room}})
			return
		}
		c.reply(Envelope{Event: EventJoined, Data: map[string]string{"room": action.Room}})
	case "leave":
		c.hub.Leave(c, action.Room)
		c.reply(Envelope{Event: EventLeft, Data: map[string]string{"room": action.Room}})
	case "ping":
		c.reply(Envelope{Event: EventPong})
	default:
		c.reply(Envelope{Event: EventError, Data: map[string]string{"message": "unknown action"}})
	}
}

// reply queues a frame for this client only. The hub lock keeps it from racing the close of send.
func (c *Client) reply(env Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		return
	}
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if !c.hub.clients[c] {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// writePump pumps frames from the hub to the connection, one frame per websocket message.
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
				// The hub closed the channel
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
