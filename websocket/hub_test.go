package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"home-services-server/events"
	"home-services-server/models"
)

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func startHub(t *testing.T, watch BookingWatchFunc) (*Hub, *httptest.Server) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(Options{WatchBooking: watch}, zap.NewNop())
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := strconv.ParseUint(r.URL.Query().Get("id"), 10, 32)
		hub.Serve(w, r, uint(id), models.UserRole(r.URL.Query().Get("role")))
	}))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return hub, srv
}

func dial(t *testing.T, hub *Hub, srv *httptest.Server, id uint, role models.UserRole) *gws.Conn {
	t.Helper()
	before := hub.ClientCount()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?id=" + strconv.FormatUint(uint64(id), 10) + "&role=" + string(role)
	conn, _, err := gws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.Eventually(t, func() bool { return hub.ClientCount() > before }, time.Second, 5*time.Millisecond)
	return conn
}

func readFrame(t *testing.T, conn *gws.Conn) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func TestHub_AutoJoinedRooms(t *testing.T) {
	hub, srv := startHub(t, nil)

	dial(t, hub, srv, 1, models.RoleUser)
	dial(t, hub, srv, 2, models.RoleProvider)
	dial(t, hub, srv, 3, models.RoleAdmin)

	assert.Equal(t, 1, hub.RoomSize("user:1"))
	assert.Equal(t, 1, hub.RoomSize("provider:2"))
	assert.Equal(t, 1, hub.RoomSize(events.GlobalRoom))
	assert.Equal(t, 0, hub.RoomSize("provider:1"))
}

func TestHub_NotifyBookingReachesParticipantsAndFeed(t *testing.T) {
	hub, srv := startHub(t, nil)
	customer := dial(t, hub, srv, 1, models.RoleUser)
	provider := dial(t, hub, srv, 2, models.RoleProvider)
	admin := dial(t, hub, srv, 3, models.RoleAdmin)

	pid := uint(2)
	hub.NotifyBooking(context.Background(), events.NewBookingEvent(events.EventAssigned, &models.Booking{
		ID: 10, UserID: 1, ProviderID: &pid, Status: models.BookingStatusConfirmed,
	}))

	for _, conn := range []*gws.Conn{customer, provider} {
		f := readFrame(t, conn)
		assert.Equal(t, EventBooking, f.Event)
		var ev events.BookingEvent
		require.NoError(t, json.Unmarshal(f.Data, &ev))
		assert.Equal(t, uint(10), ev.BookingID)
		assert.Equal(t, events.EventAssigned, ev.Type)
	}

	f := readFrame(t, admin)
	assert.Equal(t, EventBookingFeed, f.Event)
}

func TestHub_JoinBookingRoomIsChecked(t *testing.T) {
	watch := func(_ context.Context, userID uint, _ models.UserRole, bookingID uint) bool {
		return userID == 1 && bookingID == 10
	}
	hub, srv := startHub(t, watch)
	owner := dial(t, hub, srv, 1, models.RoleUser)
	stranger := dial(t, hub, srv, 5, models.RoleUser)

	require.NoError(t, owner.WriteJSON(clientAction{Action: "join", Room: "booking:10"}))
	assert.Equal(t, EventJoined, readFrame(t, owner).Event)

	require.NoError(t, stranger.WriteJSON(clientAction{Action: "join", Room: "booking:10"}))
	assert.Equal(t, EventError, readFrame(t, stranger).Event)

	require.NoError(t, stranger.WriteJSON(clientAction{Action: "join", Room: events.GlobalRoom}))
	assert.Equal(t, EventError, readFrame(t, stranger).Event)

	hub.NotifyMessage(context.Background(), events.MessageEvent{ID: 1, BookingID: 10, SenderID: 2, ReceiverID: 1, Content: "hi"})
	f := readFrame(t, owner)
	assert.Equal(t, EventMessage, f.Event, "owner is in both the booking and user rooms but gets one frame")

	require.NoError(t, owner.WriteJSON(clientAction{Action: "ping"}))
	assert.Equal(t, EventPong, readFrame(t, owner).Event)
}

func TestHub_ReassignedProviderLeavesBookingRoom(t *testing.T) {
	watch := func(_ context.Context, userID uint, _ models.UserRole, bookingID uint) bool {
		return bookingID == 10 && (userID == 1 || userID == 2)
	}
	hub, srv := startHub(t, watch)
	customer := dial(t, hub, srv, 1, models.RoleUser)
	former := dial(t, hub, srv, 2, models.RoleProvider)

	for _, conn := range []*gws.Conn{customer, former} {
		require.NoError(t, conn.WriteJSON(clientAction{Action: "join", Room: "booking:10"}))
		assert.Equal(t, EventJoined, readFrame(t, conn).Event)
	}
	require.Equal(t, 2, hub.RoomSize("booking:10"))

	next := uint(3)
	hub.NotifyBooking(context.Background(), events.NewBookingEvent(events.EventAssigned, &models.Booking{
		ID: 10, UserID: 1, ProviderID: &next, Status: models.BookingStatusConfirmed,
	}))

	f := readFrame(t, customer)
	assert.Equal(t, EventBooking, f.Event)
	assert.Equal(t, 1, hub.RoomSize("booking:10"))

	require.NoError(t, former.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	var got frame
	assert.Error(t, former.ReadJSON(&got), "the replaced provider receives nothing")
}

func TestHub_DisconnectCleansRooms(t *testing.T) {
	hub, srv := startHub(t, nil)
	conn := dial(t, hub, srv, 7, models.RoleProvider)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, hub.RoomSize("user:7"))
	assert.Equal(t, 0, hub.RoomSize("provider:7"))
}
