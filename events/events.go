package events

import (
	"context"
	"fmt"
	"time"

	"home-services-server/models"
)

type EventType string

const (
	EventCreated   EventType = "created"
	EventUpdated   EventType = "updated"
	EventCancelled EventType = "cancelled"
	EventStatus    EventType = "status"
	EventAssigned  EventType = "assigned"
	EventPaid      EventType = "paid"
)

// GlobalRoom is the admin-facing feed that sees every booking event.
const GlobalRoom = "bookings"

func BookingRoom(id uint) string  { return fmt.Sprintf("booking:%d", id) }
func UserRoom(id uint) string     { return fmt.Sprintf("user:%d", id) }
func ProviderRoom(id uint) string { return fmt.Sprintf("provider:%d", id) }

// BookingEvent is the normalized payload for a booking state change.
type BookingEvent struct {
	Type        EventType            `json:"type"`
	BookingID   uint                 `json:"bookingId"`
	Status      models.BookingStatus `json:"status"`
	User        uint                 `json:"user"`
	Provider    *uint                `json:"provider"`
	ScheduledAt time.Time            `json:"scheduledAt"`
	UpdatedAt   time.Time            `json:"updatedAt"`
}

func NewBookingEvent(t EventType, b *models.Booking) BookingEvent {
	ev := BookingEvent{
		Type:        t,
		BookingID:   b.ID,
		Status:      b.Status,
		User:        b.UserID,
		ScheduledAt: b.ScheduledAt,
		UpdatedAt:   b.UpdatedAt,
	}
	if b.ProviderID != nil {
		p := *b.ProviderID
		ev.Provider = &p
	}
	return ev
}

// Rooms lists the per-entity rooms that receive the event. The global feed is addressed separately.
func (e BookingEvent) Rooms() []string {
	rooms := []string{BookingRoom(e.BookingID), UserRoom(e.User)}
	if e.Provider != nil {
		rooms = append(rooms, ProviderRoom(*e.Provider))
	}
	return rooms
}

type MessageEvent struct {
	ID         uint      `json:"id"`
	BookingID  uint      `json:"bookingId"`
	SenderID   uint      `json:"senderId"`
	ReceiverID uint      `json:"receiverId"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"createdAt"`
}

func NewMessageEvent(m *models.Message) MessageEvent {
	return MessageEvent{
		ID:         m.ID,
		BookingID:  m.BookingID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Content:    m.Content,
		CreatedAt:  m.CreatedAt,
	}
}

// Notifier delivers events best-effort. Implementations must not block the caller on slow consumers
// and never report failure: a dropped notification is not a failed request.
type Notifier interface {
	NotifyBooking(ctx context.Context, ev BookingEvent)
	NotifyMessage(ctx context.Context, ev MessageEvent)
}

// Fanout sends every event to each notifier in order.
type Fanout []Notifier

func (f Fanout) NotifyBooking(ctx context.Context, ev BookingEvent) {
	for _, n := range f {
		if n != nil {
			n.NotifyBooking(ctx, ev)
		}
	}
}

func (f Fanout) NotifyMessage(ctx context.Context, ev MessageEvent) {
	for _, n := range f {
		if n != nil {
			n.NotifyMessage(ctx, ev)
		}
	}
}

// Nop discards everything.
type Nop struct{}

func (Nop) NotifyBooking(context.Context, BookingEvent) {}
func (Nop) NotifyMessage(context.Context, MessageEvent) {}

// Envelope is the wire form used when events cross process boundaries.
type Envelope struct {
	Kind    string        `json:"kind"`
	Booking *BookingEvent `json:"booking,omitempty"`
	Message *MessageEvent `json:"message,omitempty"`
}

const (
	KindBooking = "booking"
	KindMessage = "message"
)

// Dispatch hands the envelope's payload to n. Unknown kinds are ignored.
func (e Envelope) Dispatch(ctx context.Context, n Notifier) bool {
	switch {
	case e.Kind == KindBooking && e.Booking != nil:
		n.NotifyBooking(ctx, *e.Booking)
	case e.Kind == KindMessage && e.Message != nil:
		n.NotifyMessage(ctx, *e.Message)
	default:
		return false
	}
	return true
}
