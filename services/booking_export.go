package services

import (
	"context"
	"encoding/csv"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"

	"home-services-server/models"
	"home-services-server/repository"
)

const exportBatchSize = 200

var exportColumns = []string{
	"id", "createdAt", "scheduledAt", "status",
	"customerName", "customerEmail", "providerName", "providerEmail",
	"service", "price", "address", "notes",
	"paymentMethod", "paymentStatus", "paymentTrxId",
}

// BookingExport is a validated CSV export waiting to be streamed.
type BookingExport struct {
	bookings repository.BookingRepository
	filter   repository.BookingFilter
}

// NewExport validates the admin filters up front so a bad query fails before any output is written.
func (s *BookingService) NewExport(q url.Values) (*BookingExport, error) {
	filter, _, err := ParseAdminBookingQuery(q)
	if err != nil {
		return nil, err
	}
	return &BookingExport{bookings: s.store.Bookings, filter: filter}, nil
}

// ExportFilename is the attachment name for an export taken at t.
func ExportFilename(t time.Time) string {
	return "bookings-" + t.Format("2006-01-02") + ".csv"
}

// WriteTo streams every matching booking, flushing after each batch.
func (e *BookingExport) WriteTo(ctx context.Context, w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportColumns); err != nil {
		return err
	}

	for offset := 0; ; offset += exportBatchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch, err := e.bookings.Find(ctx, e.filter, offset, exportBatchSize)
		if err != nil {
			return err
		}
		for i := range batch {
			if err := cw.Write(exportRow(&batch[i])); err != nil {
				return err
			}
		}
		cw.Flush()
		if err := cw.Error(); err != nil {
			return err
		}
		if len(batch) < exportBatchSize {
			return nil
		}
	}
}

func exportRow(b *models.Booking) []string {
	var customerName, customerEmail, providerName, providerEmail, serviceName, price string
	if b.User != nil {
		customerName, customerEmail = b.User.Name, b.User.Email
	}
	if b.Provider != nil {
		providerName, providerEmail = b.Provider.Name, b.Provider.Email
	}
	if b.Service != nil {
		serviceName = b.Service.Name
		price = strconv.FormatFloat(b.Service.Price, 'f', 2, 64)
	}

	return []string{
		strconv.FormatUint(uint64(b.ID), 10),
		b.CreatedAt.UTC().Format(time.RFC3339),
		b.ScheduledAt.UTC().Format(time.RFC3339),
		string(b.Status),
		flatten(customerName),
		customerEmail,
		flatten(providerName),
		providerEmail,
		flatten(serviceName),
		price,
		flatten(b.Address),
		flatten(b.Notes),
		string(b.Payment.Method),
		string(b.Payment.Status),
		flatten(b.Payment.TrxID),
	}
}

// flatten collapses line breaks so every booking stays on one CSV line.
func flatten(s string) string {
	if !strings.ContainsAny(s, "\r\n") {
		return s
	}
	return strings.Join(strings.FieldsFunc(s, func(r rune) bool { return r == '\r' || r == '\n' }), " ")
}
