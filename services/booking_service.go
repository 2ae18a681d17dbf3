package services

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"home-services-server/events"
	"home-services-server/metrics"
	"home-services-server/models"
	"home-services-server/repository"
	"home-services-server/utils"
)

const maxNotesLength = 2000

// BookingService owns the booking lifecycle: creation, owner changes, provider assignment
// and status transitions. Every write is version-checked and followed by a realtime event.
type BookingService struct {
	store    *repository.Store
	notifier events.Notifier
	log      *zap.Logger
}

func NewBookingService(store *repository.Store, notifier events.Notifier, log *zap.Logger) *BookingService {
	if notifier == nil {
		notifier = events.Nop{}
	}
	return &BookingService{store: store, notifier: notifier, log: log}
}

type CreateBookingInput struct {
	ServiceID     string
	ScheduledAt   string
	Address       string
	Notes         string
	PaymentMethod string
}

type UpdateBookingInput struct {
	Status      *string
	ScheduledAt *string
}

func (s *BookingService) Create(ctx context.Context, actor Actor, in CreateBookingInput) (*models.Booking, error) {
	if strings.TrimSpace(in.ServiceID) == "" {
		return nil, Validation("service is required")
	}
	serviceID, err := utils.ParseID(in.ServiceID)
	if err != nil {
		return nil, Validation("invalid service id")
	}
	address := strings.TrimSpace(in.Address)
	if address == "" {
		return nil, Validation("address is required")
	}
	if strings.TrimSpace(in.ScheduledAt) == "" {
		return nil, Validation("scheduledAt is required")
	}
	scheduledAt, err := parseSchedule(in.ScheduledAt)
	if err != nil {
		return nil, Validation("scheduledAt must be a valid date")
	}
	notes := strings.TrimSpace(in.Notes)
	if len(notes) > maxNotesLength {
		return nil, Validation("notes must be at most %d characters", maxNotesLength)
	}
	method := models.PaymentMethodCash
	if in.PaymentMethod != "" {
		m, ok := models.ParsePaymentMethod(in.PaymentMethod)
		if !ok {
			return nil, Validation("payment method must be cash or online")
		}
		method = m
	}

	service, err := s.store.Services.FindByID(ctx, serviceID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, Validation("service not found")
		}
		return nil, err
	}
	if !service.Active {
		return nil, Validation("service is not available for booking")
	}

	booking := &models.Booking{
		UserID:      actor.ID,
		ServiceID:   service.ID,
		ScheduledAt: scheduledAt,
		Address:     address,
		Notes:       notes,
		Payment:     models.Payment{Method: method, Status: models.PaymentStatusUnpaid},
		Status:      models.BookingStatusPending,
		Version:     1,
	}
	if err := s.store.Bookings.Create(ctx, booking); err != nil {
		return nil, err
	}
	booking.Service = service

	s.log.Info("booking created",
		zap.Uint("booking_id", booking.ID),
		zap.Uint("user_id", actor.ID),
		zap.Uint("service_id", service.ID))
	s.notify(ctx, events.EventCreated, booking)
	return booking, nil
}

func (s *BookingService) ListMine(ctx context.Context, actor Actor) ([]models.Booking, error) {
	bookings, err := s.store.Bookings.ListByUser(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	if bookings == nil {
		bookings = []models.Booking{}
	}
	return bookings, nil
}

func (s *BookingService) Get(ctx context.Context, actor Actor, id uint) (*models.Booking, error) {
	booking, err := loadBooking(ctx, s.store, id)
	if err != nil {
		return nil, err
	}
	if !BookingAccess(actor, booking).Has(CapRead) {
		return nil, Forbidden("you do not have access to this booking")
	}
	return booking, nil
}

// Update applies an owner's change: cancellation and/or a new date.
func (s *BookingService) Update(ctx context.Context, actor Actor, id uint, in UpdateBookingInput) (*models.Booking, error) {
	if in.Status == nil && in.ScheduledAt == nil {
		return nil, Validation("nothing to update: provide status or scheduledAt")
	}

	booking, err := loadBooking(ctx, s.store, id)
	if err != nil {
		return nil, err
	}

	caps := BookingAccess(actor, booking)
	if (in.Status != nil && !caps.Has(CapCancel)) || (in.ScheduledAt != nil && !caps.Has(CapReschedule)) {
		return nil, Forbidden("only the booking owner can change this booking")
	}
	if booking.Status.IsTerminal() {
		return nil, Validation("booking is already %s", booking.Status)
	}

	cancel := false
	if in.Status != nil {
		if models.BookingStatus(*in.Status) != models.BookingStatusCancelled {
			return nil, Validation("status can only be changed to cancelled")
		}
		cancel = true
	}
	var scheduledAt time.Time
	if in.ScheduledAt != nil {
		scheduledAt, err = parseSchedule(*in.ScheduledAt)
		if err != nil {
			return nil, Validation("scheduledAt must be a valid date")
		}
	}

	from := booking.Status
	if in.ScheduledAt != nil {
		booking.ScheduledAt = scheduledAt
	}
	if cancel {
		booking.Status = models.BookingStatusCancelled
	}
	if err := s.store.Bookings.Save(ctx, booking); err != nil {
		return nil, writeErr(err)
	}

	if cancel {
		metrics.RecordTransition(string(from), string(booking.Status))
		s.log.Info("booking cancelled", zap.Uint("booking_id", booking.ID), zap.Uint("user_id", actor.ID))
		s.notify(ctx, events.EventCancelled, booking)
	} else {
		s.notify(ctx, events.EventUpdated, booking)
	}
	return booking, nil
}

func (s *BookingService) Cancel(ctx context.Context, actor Actor, id uint) (*models.Booking, error) {
	status := string(models.BookingStatusCancelled)
	return s.Update(ctx, actor, id, UpdateBookingInput{Status: &status})
}

// UpdateStatus moves a booking along its lifecycle. Only admins and the assigned provider may do it.
func (s *BookingService) UpdateStatus(ctx context.Context, actor Actor, id uint, rawStatus string) (*models.Booking, error) {
	status, ok := models.ParseBookingStatus(rawStatus)
	if !ok {
		return nil, Validation("invalid status %q", rawStatus)
	}

	booking, err := loadBooking(ctx, s.store, id)
	if err != nil {
		return nil, err
	}
	if !BookingAccess(actor, booking).Has(CapSetStatus) {
		return nil, Forbidden("only an admin or the assigned provider can change the status")
	}

	from := booking.Status
	if !models.CanTransition(from, status) {
		metrics.RecordConflict("transition")
		return nil, Conflict(fmt.Sprintf("cannot change status from %s to %s", from, status))
	}

	booking.Status = status
	if err := s.store.Bookings.Save(ctx, booking); err != nil {
		return nil, writeErr(err)
	}

	metrics.RecordTransition(string(from), string(status))
	s.log.Info("booking status changed",
		zap.Uint("booking_id", booking.ID),
		zap.String("from", string(from)),
		zap.String("to", string(status)),
		zap.Uint("actor_id", actor.ID))
	s.notify(ctx, events.EventStatus, booking)
	return booking, nil
}

// AssignProvider sets the booking's provider; a pending booking becomes confirmed.
func (s *BookingService) AssignProvider(ctx context.Context, actor Actor, id uint, rawProviderID string) (*models.Booking, error) {
	providerID, err := utils.ParseID(rawProviderID)
	if err != nil {
		return nil, Validation("invalid provider id")
	}

	booking, err := loadBooking(ctx, s.store, id)
	if err != nil {
		return nil, err
	}
	if !BookingAccess(actor, booking).Has(CapAssign) {
		return nil, Forbidden("only an admin can assign providers")
	}

	provider, err := s.store.Users.FindByID(ctx, providerID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, Validation("provider not found")
		}
		return nil, err
	}
	if !provider.IsProvider() || !provider.IsActive {
		return nil, Validation("user %d is not an active provider", providerID)
	}
	if booking.Status.IsTerminal() {
		metrics.RecordConflict("transition")
		return nil, Conflict(fmt.Sprintf("cannot assign a provider to a %s booking", booking.Status))
	}

	from := booking.Status
	booking.ProviderID = &provider.ID
	booking.Provider = provider
	if booking.Status == models.BookingStatusPending {
		booking.Status = models.BookingStatusConfirmed
	}
	if err := s.store.Bookings.Save(ctx, booking); err != nil {
		return nil, writeErr(err)
	}

	if from != booking.Status {
		metrics.RecordTransition(string(from), string(booking.Status))
	}
	s.log.Info("provider assigned",
		zap.Uint("booking_id", booking.ID),
		zap.Uint("provider_id", provider.ID),
		zap.String("status", string(booking.Status)))
	s.notify(ctx, events.EventAssigned, booking)
	return booking, nil
}

func (s *BookingService) AdminList(ctx context.Context, q url.Values) (Page[models.Booking], error) {
	filter, page, err := ParseAdminBookingQuery(q)
	if err != nil {
		return Page[models.Booking]{}, err
	}
	return s.list(ctx, filter, page)
}

// ProviderList returns the caller's assigned jobs, soonest first unless asked otherwise.
func (s *BookingService) ProviderList(ctx context.Context, actor Actor, q url.Values) (Page[models.Booking], error) {
	filter, page, err := ParseProviderBookingQuery(q)
	if err != nil {
		return Page[models.Booking]{}, err
	}
	filter.ProviderID = &actor.ID
	return s.list(ctx, filter, page)
}

func (s *BookingService) list(ctx context.Context, filter repository.BookingFilter, page PageRequest) (Page[models.Booking], error) {
	total, err := s.store.Bookings.Count(ctx, filter)
	if err != nil {
		return Page[models.Booking]{}, err
	}
	items, err := s.store.Bookings.Find(ctx, filter, page.Offset(), page.Limit)
	if err != nil {
		return Page[models.Booking]{}, err
	}
	return NewPage(items, total, page), nil
}

func (s *BookingService) notify(ctx context.Context, t events.EventType, b *models.Booking) {
	s.notifier.NotifyBooking(ctx, events.NewBookingEvent(t, b))
}

func loadBooking(ctx context.Context, store *repository.Store, id uint) (*models.Booking, error) {
	booking, err := store.Bookings.FindByID(ctx, id)
	if err != nil {
		return nil, lookupErr(err, "booking not found")
	}
	return booking, nil
}
