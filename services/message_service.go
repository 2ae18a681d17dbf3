package services

import (
	"context"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"home-services-server/events"
	"home-services-server/models"
	"home-services-server/repository"
	"home-services-server/utils"
)

const maxMessageLength = 2000

type MessageService struct {
	store    *repository.Store
	notifier events.Notifier
	log      *zap.Logger
}

func NewMessageService(store *repository.Store, notifier events.Notifier, log *zap.Logger) *MessageService {
	if notifier == nil {
		notifier = events.Nop{}
	}
	return &MessageService{store: store, notifier: notifier, log: log}
}

type SendMessageInput struct {
	BookingID  string
	Content    string
	ReceiverID string
}

// List returns a booking's chat history, oldest first. Participants and admins may read it.
func (s *MessageService) List(ctx context.Context, actor Actor, bookingID uint) ([]models.Message, error) {
	booking, err := loadBooking(ctx, s.store, bookingID)
	if err != nil {
		return nil, err
	}
	if !BookingAccess(actor, booking).Has(CapRead) {
		return nil, Forbidden("you do not have access to this conversation")
	}
	messages, err := s.store.Messages.ListByBooking(ctx, booking.ID)
	if err != nil {
		return nil, err
	}
	if messages == nil {
		messages = []models.Message{}
	}
	return messages, nil
}

// Send posts a chat message between the customer and the assigned provider.
func (s *MessageService) Send(ctx context.Context, actor Actor, in SendMessageInput) (*models.Message, error) {
	bookingID, err := utils.ParseID(in.BookingID)
	if err != nil {
		return nil, Validation("invalid booking id")
	}
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return nil, Validation("message content is required")
	}
	if utf8.RuneCountInString(content) > maxMessageLength {
		return nil, Validation("message must be at most %d characters", maxMessageLength)
	}

	booking, err := loadBooking(ctx, s.store, bookingID)
	if err != nil {
		return nil, err
	}
	if !BookingAccess(actor, booking).Has(CapChat) {
		return nil, Forbidden("only the customer and the assigned provider can chat on a booking")
	}
	if !booking.Status.AllowsChat() {
		return nil, Forbidden("chat opens once the booking is confirmed")
	}

	receiver := counterpart(booking, actor.ID)
	if receiver == 0 {
		return nil, Forbidden("this booking has no one to talk to yet")
	}
	if raw := strings.TrimSpace(in.ReceiverID); raw != "" {
		id, err := utils.ParseID(raw)
		if err != nil {
			return nil, Validation("invalid receiver id")
		}
		if id != receiver {
			return nil, Forbidden("receiver is not the other participant of this booking")
		}
	}

	msg := &models.Message{
		BookingID:  booking.ID,
		SenderID:   actor.ID,
		ReceiverID: receiver,
		Content:    content,
	}
	if err := s.store.Messages.Create(ctx, msg); err != nil {
		return nil, err
	}

	s.log.Debug("message sent", zap.Uint("booking_id", booking.ID), zap.Uint("sender_id", actor.ID))
	s.notifier.NotifyMessage(ctx, events.NewMessageEvent(msg))
	return msg, nil
}

// counterpart returns the other participant of the booking, or 0 when there is none.
func counterpart(b *models.Booking, senderID uint) uint {
	if b.UserID == senderID {
		if b.ProviderID == nil {
			return 0
		}
		return *b.ProviderID
	}
	return b.UserID
}
