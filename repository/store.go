package repository

import (
	"context"

	"gorm.io/gorm"
)

// Store groups the repositories so services can run several of them in one transaction.
type Store struct {
	Users     UserRepository
	Services  ServiceRepository
	Bookings  BookingRepository
	Invoices  InvoiceRepository
	Messages  MessageRepository
	Reviews   ReviewRepository
	Providers ProviderRepository

	txFn func(ctx context.Context, fn func(*Store) error) error
}

func NewStore(db *gorm.DB) *Store {
	s := newStore(db)
	s.txFn = func(ctx context.Context, fn func(*Store) error) error {
		return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return fn(newStore(tx))
		})
	}
	return s
}

func newStore(db *gorm.DB) *Store {
	return &Store{
		Users:     NewUserRepository(db),
		Services:  NewServiceRepository(db),
		Bookings:  NewBookingRepository(db),
		Invoices:  NewInvoiceRepository(db),
		Messages:  NewMessageRepository(db),
		Reviews:   NewReviewRepository(db),
		Providers: NewProviderRepository(db),
	}
}

// Transaction runs fn against a store bound to a single database transaction.
// A store built without a database (tests) runs fn directly.
func (s *Store) Transaction(ctx context.Context, fn func(*Store) error) error {
	if s.txFn == nil {
		return fn(s)
	}
	return s.txFn(ctx, fn)
}
