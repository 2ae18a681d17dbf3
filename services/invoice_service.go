package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"home-services-server/events"
	"home-services-server/models"
	"home-services-server/repository"
	"home-services-server/utils"
)

// BillingDefaults apply when a generate request leaves currency or tax out.
type BillingDefaults struct {
	Currency string
	TaxPct   float64
}

// InvoiceService derives invoices from bookings and keeps invoice and booking payment state in step.
type InvoiceService struct {
	store    *repository.Store
	notifier events.Notifier
	log      *zap.Logger
	defaults BillingDefaults
	now      func() time.Time
}

func NewInvoiceService(store *repository.Store, notifier events.Notifier, log *zap.Logger, defaults BillingDefaults) *InvoiceService {
	if notifier == nil {
		notifier = events.Nop{}
	}
	if defaults.Currency == "" {
		defaults.Currency = "USD"
	}
	return &InvoiceService{store: store, notifier: notifier, log: log, defaults: defaults, now: time.Now}
}

type GenerateInvoiceInput struct {
	BookingID string
	TaxPct    *float64
	Currency  string
	Notes     string
}

type ChargeInput struct {
	BookingID string
	Method    string
	TrxID     string
}

type ChargeResult struct {
	Invoice *models.Invoice `json:"invoice"`
	Booking *models.Booking `json:"booking"`
}

// Generate returns the booking's invoice, creating it on first call. The bool reports whether it was created.
func (s *InvoiceService) Generate(ctx context.Context, actor Actor, in GenerateInvoiceInput) (*models.Invoice, bool, error) {
	bookingID, err := utils.ParseID(in.BookingID)
	if err != nil {
		return nil, false, Validation("invalid booking id")
	}
	taxPct := s.defaults.TaxPct
	if in.TaxPct != nil {
		taxPct = *in.TaxPct
	}
	if taxPct < 0 || taxPct > 100 {
		return nil, false, Validation("taxPct must be between 0 and 100")
	}
	currency := s.defaults.Currency
	if c := strings.TrimSpace(in.Currency); c != "" {
		if len(c) != 3 {
			return nil, false, Validation("currency must be a 3-letter code")
		}
		currency = strings.ToUpper(c)
	}

	booking, err := loadBooking(ctx, s.store, bookingID)
	if err != nil {
		return nil, false, err
	}
	if !BookingAccess(actor, booking).Has(CapInvoice) {
		return nil, false, Forbidden("only an admin or the assigned provider can generate invoices")
	}

	inv, created, err := s.ensureInvoice(ctx, s.store, booking, taxPct, currency, strings.TrimSpace(in.Notes))
	if err != nil {
		return nil, false, err
	}
	if created {
		s.log.Info("invoice generated",
			zap.Uint("invoice_id", inv.ID),
			zap.String("number", inv.Number),
			zap.Uint("booking_id", booking.ID))
	}
	return inv, created, nil
}

// ensureInvoice looks the invoice up by booking first so repeated calls never recompute totals.
func (s *InvoiceService) ensureInvoice(ctx context.Context, store *repository.Store, booking *models.Booking, taxPct float64, currency, notes string) (*models.Invoice, bool, error) {
	existing, err := store.Invoices.FindByBookingID(ctx, booking.ID)
	if err == nil {
		return existing, false, nil
	}
	if !repository.IsNotFound(err) {
		return nil, false, err
	}

	service := booking.Service
	if service == nil {
		if service, err = store.Services.FindByID(ctx, booking.ServiceID); err != nil {
			return nil, false, lookupErr(err, "service not found")
		}
	}

	now := s.now()
	totals := models.ComputeInvoiceTotals(service.Price, taxPct)
	inv := &models.Invoice{
		Number:     invoiceNumber(now),
		BookingID:  booking.ID,
		UserID:     booking.UserID,
		ProviderID: booking.ProviderID,
		ServiceID:  booking.ServiceID,
		Currency:   currency,
		Subtotal:   totals.Subtotal,
		TaxPct:     taxPct,
		TaxAmount:  totals.TaxAmount,
		Total:      totals.Total,
		Status:     models.InvoiceStatusUnpaid,
		IssuedAt:   now,
		Notes:      notes,
	}
	if err := store.Invoices.Create(ctx, inv); err != nil {
		if repository.IsDuplicate(err) {
			// Lost a race with a concurrent generate; the winner's invoice stands.
			existing, ferr := store.Invoices.FindByBookingID(ctx, booking.ID)
			if ferr != nil {
				return nil, false, ferr
			}
			return existing, false, nil
		}
		return nil, false, err
	}
	return inv, true, nil
}

func invoiceNumber(at time.Time) string {
	return fmt.Sprintf("INV-%s-%s", at.Format("20060102"), strings.ToUpper(uuid.NewString()[:8]))
}

// MarkPaid settles an invoice and the booking behind it in one transaction.
// Paying a paid invoice changes nothing.
func (s *InvoiceService) MarkPaid(ctx context.Context, actor Actor, invoiceID uint, trxID string) (*models.Invoice, error) {
	inv, err := s.store.Invoices.FindByID(ctx, invoiceID)
	if err != nil {
		return nil, lookupErr(err, "invoice not found")
	}
	if !actor.IsAdmin() && !(inv.ProviderID != nil && *inv.ProviderID == actor.ID) {
		return nil, Forbidden("only an admin or the invoice provider can mark it paid")
	}
	if done, err := settledState(inv); done {
		return inv, err
	}

	trxID = strings.TrimSpace(trxID)
	var booking *models.Booking
	err = s.store.Transaction(ctx, func(tx *repository.Store) error {
		// The first read was unlocked; a payment committed since then turns this call into a no-op.
		locked, err := tx.Invoices.FindByIDForUpdate(ctx, invoiceID)
		if err != nil {
			return lookupErr(err, "invoice not found")
		}
		inv = locked
		if done, err := settledState(locked); done {
			return err
		}
		b, err := tx.Bookings.FindByID(ctx, locked.BookingID)
		if err != nil {
			return lookupErr(err, "booking not found")
		}
		if err := s.settle(ctx, tx, b, locked, "", trxID); err != nil {
			return err
		}
		booking = b
		return nil
	})
	if errors.Is(err, repository.ErrInvoiceSettled) {
		return s.currentInvoice(ctx, invoiceID)
	}
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return inv, nil
	}

	s.log.Info("invoice paid", zap.Uint("invoice_id", inv.ID), zap.Uint("booking_id", inv.BookingID))
	s.notifier.NotifyBooking(ctx, events.NewBookingEvent(events.EventPaid, booking))
	return inv, nil
}

// settledState reports whether inv is past unpaid. A void invoice also yields a conflict.
func settledState(inv *models.Invoice) (bool, error) {
	switch inv.Status {
	case models.InvoiceStatusPaid:
		return true, nil
	case models.InvoiceStatusVoid:
		return true, Conflict("a void invoice cannot be paid")
	}
	return false, nil
}

// currentInvoice rereads an invoice whose conditional payment lost to another write.
func (s *InvoiceService) currentInvoice(ctx context.Context, invoiceID uint) (*models.Invoice, error) {
	inv, err := s.store.Invoices.FindByID(ctx, invoiceID)
	if err != nil {
		return nil, lookupErr(err, "invoice not found")
	}
	_, err = settledState(inv)
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// settle writes the booking first, then flips the invoice only if it is still unpaid.
// Either write failing aborts the transaction, so booking and invoice never disagree.
func (s *InvoiceService) settle(ctx context.Context, tx *repository.Store, b *models.Booking, inv *models.Invoice, method models.PaymentMethod, trxID string) error {
	b.Payment.Status = models.PaymentStatusPaid
	if method != "" {
		b.Payment.Method = method
	}
	if trxID != "" {
		b.Payment.TrxID = trxID
	}
	if err := tx.Bookings.Save(ctx, b); err != nil {
		return writeErr(err)
	}

	paidAt := s.now()
	inv.Status = models.InvoiceStatusPaid
	inv.PaidAt = &paidAt
	inv.PaymentTrxID = trxID
	return tx.Invoices.MarkPaid(ctx, inv)
}

func (s *InvoiceService) Void(ctx context.Context, actor Actor, invoiceID uint) (*models.Invoice, error) {
	if !actor.IsAdmin() {
		return nil, Forbidden("only an admin can void invoices")
	}
	inv, err := s.store.Invoices.FindByID(ctx, invoiceID)
	if err != nil {
		return nil, lookupErr(err, "invoice not found")
	}
	switch inv.Status {
	case models.InvoiceStatusVoid:
		return inv, nil
	case models.InvoiceStatusPaid:
		return nil, Conflict("a paid invoice cannot be voided")
	}

	inv.Status = models.InvoiceStatusVoid
	if err := s.store.Invoices.Save(ctx, inv); err != nil {
		return nil, err
	}
	s.log.Info("invoice voided", zap.Uint("invoice_id", inv.ID), zap.Uint("admin_id", actor.ID))
	return inv, nil
}

func (s *InvoiceService) Get(ctx context.Context, actor Actor, invoiceID uint) (*models.Invoice, error) {
	inv, err := s.store.Invoices.FindByID(ctx, invoiceID)
	if err != nil {
		return nil, lookupErr(err, "invoice not found")
	}
	if !actor.IsAdmin() && !inv.HasParty(actor.ID) {
		return nil, Forbidden("you do not have access to this invoice")
	}
	return inv, nil
}

func (s *InvoiceService) ListMine(ctx context.Context, actor Actor, q url.Values) (Page[models.Invoice], error) {
	filter, err := invoiceStatusFilter(q)
	if err != nil {
		return Page[models.Invoice]{}, err
	}
	filter.UserID = &actor.ID
	return s.list(ctx, filter, ParsePageRequest(q))
}

func (s *InvoiceService) ListForProvider(ctx context.Context, actor Actor, q url.Values) (Page[models.Invoice], error) {
	filter, err := invoiceStatusFilter(q)
	if err != nil {
		return Page[models.Invoice]{}, err
	}
	filter.ProviderID = &actor.ID
	return s.list(ctx, filter, ParsePageRequest(q))
}

func (s *InvoiceService) ListAll(ctx context.Context, q url.Values) (Page[models.Invoice], error) {
	filter, err := invoiceStatusFilter(q)
	if err != nil {
		return Page[models.Invoice]{}, err
	}
	if filter.UserID, err = optionalID(q.Get("user"), "user"); err != nil {
		return Page[models.Invoice]{}, err
	}
	if filter.ProviderID, err = optionalID(q.Get("provider"), "provider"); err != nil {
		return Page[models.Invoice]{}, err
	}
	return s.list(ctx, filter, ParsePageRequest(q))
}

func invoiceStatusFilter(q url.Values) (repository.InvoiceFilter, error) {
	var filter repository.InvoiceFilter
	if raw := strings.TrimSpace(q.Get("status")); raw != "" {
		st, ok := models.ParseInvoiceStatus(raw)
		if !ok {
			return filter, Validation("invalid invoice status %q", raw)
		}
		filter.Status = &st
	}
	return filter, nil
}

func (s *InvoiceService) list(ctx context.Context, filter repository.InvoiceFilter, page PageRequest) (Page[models.Invoice], error) {
	items, total, err := s.store.Invoices.List(ctx, filter, page.Offset(), page.Limit)
	if err != nil {
		return Page[models.Invoice]{}, err
	}
	return NewPage(items, total, page), nil
}

// Charge records a payment for a booking: the invoice is created if missing, then invoice and booking
// are marked paid together.
func (s *InvoiceService) Charge(ctx context.Context, actor Actor, in ChargeInput) (*ChargeResult, error) {
	bookingID, err := utils.ParseID(in.BookingID)
	if err != nil {
		return nil, Validation("invalid booking id")
	}
	var method models.PaymentMethod
	if in.Method != "" {
		m, ok := models.ParsePaymentMethod(in.Method)
		if !ok {
			return nil, Validation("payment method must be cash or online")
		}
		method = m
	}

	booking, err := loadBooking(ctx, s.store, bookingID)
	if err != nil {
		return nil, err
	}
	if !BookingAccess(actor, booking).Has(CapPay) {
		return nil, Forbidden("you cannot pay for this booking")
	}
	if booking.Status == models.BookingStatusCancelled {
		return nil, Conflict("a cancelled booking cannot be charged")
	}

	trxID := strings.TrimSpace(in.TrxID)
	if trxID == "" {
		trxID = "TRX-" + uuid.NewString()
	}

	var inv *models.Invoice
	charged := false
	err = s.store.Transaction(ctx, func(tx *repository.Store) error {
		ensured, _, err := s.ensureInvoice(ctx, tx, booking, s.defaults.TaxPct, s.defaults.Currency, "")
		if err != nil {
			return err
		}
		if inv, err = tx.Invoices.FindByIDForUpdate(ctx, ensured.ID); err != nil {
			return err
		}
		switch inv.Status {
		case models.InvoiceStatusVoid:
			return Conflict("the invoice for this booking is void")
		case models.InvoiceStatusPaid:
			return nil
		}
		if err := s.settle(ctx, tx, booking, inv, method, trxID); err != nil {
			return err
		}
		charged = true
		return nil
	})
	if errors.Is(err, repository.ErrInvoiceSettled) {
		// Another payment landed between the read and the write; report the stored state.
		if inv, err = s.store.Invoices.FindByBookingID(ctx, booking.ID); err != nil {
			return nil, err
		}
		if booking, err = loadBooking(ctx, s.store, booking.ID); err != nil {
			return nil, err
		}
		return &ChargeResult{Invoice: inv, Booking: booking}, nil
	}
	if err != nil {
		return nil, err
	}

	if charged {
		s.log.Info("booking charged",
			zap.Uint("booking_id", booking.ID),
			zap.Uint("invoice_id", inv.ID),
			zap.String("trx_id", trxID))
		s.notifier.NotifyBooking(ctx, events.NewBookingEvent(events.EventPaid, booking))
	}
	return &ChargeResult{Invoice: inv, Booking: booking}, nil
}
