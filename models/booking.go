package models

import (
	"time"
)

type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusOnTheWay  BookingStatus = "on_the_way"
	BookingStatusCompleted BookingStatus = "completed"
	BookingStatusCancelled BookingStatus = "cancelled"
)

// BookingStatuses lists every status in lifecycle order.
var BookingStatuses = []BookingStatus{
	BookingStatusPending,
	BookingStatusConfirmed,
	BookingStatusOnTheWay,
	BookingStatusCompleted,
	BookingStatusCancelled,
}

var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingStatusPending:   {BookingStatusConfirmed, BookingStatusCancelled},
	BookingStatusConfirmed: {BookingStatusOnTheWay, BookingStatusCancelled},
	BookingStatusOnTheWay:  {BookingStatusCompleted, BookingStatusCancelled},
}

func ParseBookingStatus(s string) (BookingStatus, bool) {
	for _, st := range BookingStatuses {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

func (s BookingStatus) IsTerminal() bool {
	return s == BookingStatusCompleted || s == BookingStatusCancelled
}

// CanTransition reports whether from -> to is an edge of the booking lifecycle.
func CanTransition(from, to BookingStatus) bool {
	for _, next := range bookingTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// AllowsChat reports whether participants may exchange messages in this status.
func (s BookingStatus) AllowsChat() bool {
	switch s {
	case BookingStatusConfirmed, BookingStatusOnTheWay, BookingStatusCompleted:
		return true
	}
	return false
}

type PaymentMethod string

const (
	PaymentMethodCash   PaymentMethod = "cash"
	PaymentMethodOnline PaymentMethod = "online"
)

type PaymentStatus string

const (
	PaymentStatusUnpaid   PaymentStatus = "unpaid"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

func ParsePaymentMethod(s string) (PaymentMethod, bool) {
	switch PaymentMethod(s) {
	case PaymentMethodCash, PaymentMethodOnline:
		return PaymentMethod(s), true
	}
	return "", false
}

// Payment is stored inline on the booking row as payment_* columns.
type Payment struct {
	Method PaymentMethod `json:"method" gorm:"type:varchar(20);not null;default:'cash'"`
	Status PaymentStatus `json:"status" gorm:"type:varchar(20);not null;default:'unpaid'"`
	TrxID  string        `json:"trxId" gorm:"type:varchar(120)"`
}

type Booking struct {
	ID          uint          `json:"id" gorm:"primaryKey"`
	UserID      uint          `json:"userId" gorm:"not null;index:idx_bookings_user_created,priority:1"`
	ServiceID   uint          `json:"serviceId" gorm:"not null;index"`
	ProviderID  *uint         `json:"providerId" gorm:"index:idx_bookings_provider_created,priority:1"`
	ScheduledAt time.Time     `json:"scheduledAt" gorm:"not null;index"`
	Address     string        `json:"address" gorm:"size:500;not null"`
	Notes       string        `json:"notes" gorm:"size:2000"`
	Payment     Payment       `json:"payment" gorm:"embedded;embeddedPrefix:payment_"`
	Status      BookingStatus `json:"status" gorm:"type:varchar(20);not null;default:'pending';index;check:status IN ('pending','confirmed','on_the_way','completed','cancelled')"`
	Version     uint          `json:"version" gorm:"not null;default:1"`
	CreatedAt   time.Time     `json:"createdAt" gorm:"autoCreateTime;index:idx_bookings_user_created,priority:2;index:idx_bookings_provider_created,priority:2"`
	UpdatedAt   time.Time     `json:"updatedAt" gorm:"autoUpdateTime"`

	// Relationships
	User     *User    `json:"user,omitempty" gorm:"foreignKey:UserID"`
	Service  *Service `json:"service,omitempty" gorm:"foreignKey:ServiceID"`
	Provider *User    `json:"provider,omitempty" gorm:"foreignKey:ProviderID"`
}

// TableName specifies the table name for the Booking model
func (Booking) TableName() string {
	return "bookings"
}

// AssignedTo reports whether the booking's provider is the given user.
func (b *Booking) AssignedTo(userID uint) bool {
	return b.ProviderID != nil && *b.ProviderID == userID
}
