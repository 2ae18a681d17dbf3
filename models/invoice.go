package models

import (
	"time"

	"home-services-server/utils"
)

type InvoiceStatus string

const (
	InvoiceStatusUnpaid InvoiceStatus = "unpaid"
	InvoiceStatusPaid   InvoiceStatus = "paid"
	InvoiceStatusVoid   InvoiceStatus = "void"
)

func ParseInvoiceStatus(s string) (InvoiceStatus, bool) {
	switch InvoiceStatus(s) {
	case InvoiceStatusUnpaid, InvoiceStatusPaid, InvoiceStatusVoid:
		return InvoiceStatus(s), true
	}
	return "", false
}

type Invoice struct {
	ID           uint          `json:"id" gorm:"primaryKey"`
	Number       string        `json:"number" gorm:"size:40;uniqueIndex;not null"`
	BookingID    uint          `json:"bookingId" gorm:"uniqueIndex;not null"`
	UserID       uint          `json:"userId" gorm:"not null;index"`
	ProviderID   *uint         `json:"providerId" gorm:"index"`
	ServiceID    uint          `json:"serviceId" gorm:"not null"`
	Currency     string        `json:"currency" gorm:"size:3;not null;default:'USD'"`
	Subtotal     float64       `json:"subtotal" gorm:"type:decimal(12,2);not null"`
	TaxPct       float64       `json:"taxPct" gorm:"type:decimal(5,2);not null;default:0;check:tax_pct >= 0 AND tax_pct <= 100"`
	TaxAmount    float64       `json:"taxAmount" gorm:"type:decimal(12,2);not null"`
	Total        float64       `json:"total" gorm:"type:decimal(12,2);not null"`
	Status       InvoiceStatus `json:"status" gorm:"type:varchar(10);not null;default:'unpaid';index"`
	IssuedAt     time.Time     `json:"issuedAt" gorm:"not null"`
	PaidAt       *time.Time    `json:"paidAt"`
	PaymentTrxID string        `json:"paymentTrxId" gorm:"size:120"`
	Notes        string        `json:"notes" gorm:"size:2000"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`

	Booking *Booking `json:"booking,omitempty" gorm:"foreignKey:BookingID"`
}

func (Invoice) TableName() string {
	return "invoices"
}

// InvoiceTotals holds the derived money fields of an invoice.
type InvoiceTotals struct {
	Subtotal  float64
	TaxAmount float64
	Total     float64
}

// ComputeInvoiceTotals derives tax and total from a subtotal, all rounded to cents.
func ComputeInvoiceTotals(subtotal, taxPct float64) InvoiceTotals {
	sub := utils.Round2(subtotal)
	tax := utils.Round2(sub * taxPct / 100)
	return InvoiceTotals{
		Subtotal:  sub,
		TaxAmount: tax,
		Total:     utils.Round2(sub + tax),
	}
}

// HasParty reports whether the user is the invoice's customer or provider.
func (i *Invoice) HasParty(userID uint) bool {
	return i.UserID == userID || (i.ProviderID != nil && *i.ProviderID == userID)
}
