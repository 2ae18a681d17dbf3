package websocket

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"home-services-server/events"
	"home-services-server/metrics"
	"home-services-server/models"
)

// Outbound event names.
const (
	EventBooking     = "booking:event"
	EventBookingFeed = "bookings:event"
	EventMessage     = "message:new"
	EventJoined      = "room:joined"
	EventLeft        = "room:left"
	EventError       = "error"
	EventPong        = "pong"
)

// Envelope is every frame the server writes.
type Envelope struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

// BookingWatchFunc reports whether a user may follow a booking's room.
type BookingWatchFunc func(ctx context.Context, userID uint, role models.UserRole, bookingID uint) bool

type Options struct {
	// AllowedOrigins restricts the Origin header on upgrade. Empty allows any origin.
	AllowedOrigins []string
	WatchBooking   BookingWatchFunc
}

// Hub tracks connected clients and the rooms they are in. It implements events.Notifier.
type Hub struct {
	clients map[*Client]bool
	rooms   map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	opts Options
	log  *zap.Logger
	mu   sync.RWMutex
}

var _ events.Notifier = (*Hub)(nil)

func NewHub(opts Options, log *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		rooms:      make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		opts:       opts,
		log:        log,
	}
}

// Run owns client registration until ctx is cancelled, then disconnects everyone.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			for _, room := range defaultRooms(client) {
				h.joinLocked(client, room)
			}
			h.mu.Unlock()
			metrics.WebsocketConnected()
			h.log.Debug("websocket client registered", zap.Uint("user_id", client.userID), zap.String("role", string(client.role)))

		case client := <-h.unregister:
			h.mu.Lock()
			if h.clients[client] {
				h.removeLocked(client)
				metrics.WebsocketDisconnected()
			}
			h.mu.Unlock()
			h.log.Debug("websocket client unregistered", zap.Uint("user_id", client.userID))

		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				h.removeLocked(client)
				metrics.WebsocketDisconnected()
			}
			h.mu.Unlock()
			return
		}
	}
}

// defaultRooms are joined on connect: the personal room, the provider room and the admin feed.
func defaultRooms(c *Client) []string {
	rooms := []string{events.UserRoom(c.userID)}
	switch c.role {
	case models.RoleProvider:
		rooms = append(rooms, events.ProviderRoom(c.userID))
	case models.RoleAdmin:
		rooms = append(rooms, events.GlobalRoom)
	}
	return rooms
}

func (h *Hub) joinLocked(c *Client, room string) {
	members := h.rooms[room]
	if members == nil {
		members = make(map[*Client]bool)
		h.rooms[room] = members
	}
	members[c] = true
	c.rooms[room] = true
}

func (h *Hub) leaveLocked(c *Client, room string) {
	if members := h.rooms[room]; members != nil {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	delete(c.rooms, room)
}

func (h *Hub) removeLocked(c *Client) {
	for room := range c.rooms {
		h.leaveLocked(c, room)
	}
	delete(h.clients, c)
	close(c.send)
}

// Join adds the client to a room it is allowed to see.
func (h *Hub) Join(ctx context.Context, c *Client, room string) bool {
	if !h.canJoin(ctx, c, room) {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.clients[c] {
		return false
	}
	h.joinLocked(c, room)
	return true
}

func (h *Hub) Leave(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c, room)
}

func (h *Hub) canJoin(ctx context.Context, c *Client, room string) bool {
	if room == events.GlobalRoom {
		return c.role == models.RoleAdmin
	}
	prefix, rawID, ok := strings.Cut(room, ":")
	if !ok {
		return false
	}
	id, err := strconv.ParseUint(rawID, 10, 32)
	if err != nil || id == 0 {
		return false
	}

	switch prefix {
	case "user":
		return uint(id) == c.userID
	case "provider":
		return uint(id) == c.userID && c.role == models.RoleProvider
	case "booking":
		if h.opts.WatchBooking == nil {
			return c.role == models.RoleAdmin
		}
		return h.opts.WatchBooking(ctx, c.userID, c.role, uint(id))
	}
	return false
}

// NotifyBooking pushes a booking event to its rooms and to the admin feed.
// Clients that are no longer the booking's customer or provider leave its room first.
func (h *Hub) NotifyBooking(_ context.Context, ev events.BookingEvent) {
	h.evictFormerParticipants(ev)
	h.broadcast(ev.Rooms(), Envelope{Event: EventBooking, Data: ev})
	h.broadcast([]string{events.GlobalRoom}, Envelope{Event: EventBookingFeed, Data: ev})
}

// evictFormerParticipants drops non-admin members of the booking room that the event no longer
// names, such as a provider replaced by a reassignment. Join-time checks alone would keep them.
func (h *Hub) evictFormerParticipants(ev events.BookingEvent) {
	room := events.BookingRoom(ev.BookingID)
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.rooms[room] {
		if c.role == models.RoleAdmin || c.userID == ev.User || (ev.Provider != nil && *ev.Provider == c.userID) {
			continue
		}
		h.leaveLocked(c, room)
		h.log.Debug("removed former participant from booking room",
			zap.Uint("user_id", c.userID),
			zap.Uint("booking_id", ev.BookingID))
	}
}

// NotifyMessage pushes a chat message to the booking room and the receiver.
func (h *Hub) NotifyMessage(_ context.Context, ev events.MessageEvent) {
	h.broadcast(
		[]string{events.BookingRoom(ev.BookingID), events.UserRoom(ev.ReceiverID)},
		Envelope{Event: EventMessage, Data: ev},
	)
}

// broadcast delivers one frame to every client in any of the rooms, once per client.
// Slow clients miss the frame rather than blocking the sender.
func (h *Hub) broadcast(rooms []string, env Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		h.log.Error("marshal websocket frame", zap.String("event", env.Event), zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	seen := make(map[*Client]bool)
	for _, room := range rooms {
		for client := range h.rooms[room] {
			if seen[client] {
				continue
			}
			seen[client] = true
			select {
			case client.send <- data:
				metrics.RecordNotification("websocket", true)
			default:
				metrics.RecordNotification("websocket", false)
				h.log.Warn("websocket send buffer full, dropping frame",
					zap.Uint("user_id", client.userID),
					zap.String("event", env.Event))
			}
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RoomSize returns how many clients are in room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}
