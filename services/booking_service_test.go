package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"home-services-server/events"
	"home-services-server/models"
)

func kindOf(t *testing.T, err error) Kind {
	t.Helper()
	require.Error(t, err)
	kind, ok := KindOf(err)
	require.True(t, ok, "expected a service error, got %v", err)
	return kind
}

func TestBookingLifecycle_Scenario(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	id := strconv.FormatUint(uint64(f.service.ID), 10)

	booking, err := f.bookings.Create(ctx, f.customer, CreateBookingInput{
		ServiceID:   id,
		ScheduledAt: time.Now().Add(7 * 24 * time.Hour).Format(time.RFC3339),
		Address:     "  12 Elm Street ",
	})
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusPending, booking.Status)
	assert.Equal(t, f.customer.ID, booking.UserID)
	assert.Equal(t, "12 Elm Street", booking.Address)
	assert.Equal(t, models.PaymentMethodCash, booking.Payment.Method)

	assigned, err := f.bookings.AssignProvider(ctx, f.admin, booking.ID, strconv.FormatUint(uint64(f.provider.ID), 10))
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusConfirmed, assigned.Status)
	require.NotNil(t, assigned.ProviderID)
	assert.Equal(t, f.provider.ID, *assigned.ProviderID)

	onTheWay, err := f.bookings.UpdateStatus(ctx, f.provider, booking.ID, "on_the_way")
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusOnTheWay, onTheWay.Status)

	_, err = f.bookings.UpdateStatus(ctx, f.provider, booking.ID, "pending")
	assert.Equal(t, KindConflict, kindOf(t, err))
	assert.Equal(t, models.BookingStatusOnTheWay, f.db.booking(booking.ID).Status)

	assert.Equal(t,
		[]events.EventType{events.EventCreated, events.EventAssigned, events.EventStatus},
		f.notifier.bookingTypes())
}

func TestCreateBooking_Validation(t *testing.T) {
	f := newFixture()
	inactive := f.db.addService("Retired", 10)
	inactive.Active = false
	require.NoError(t, f.db.store().Services.Save(context.Background(), inactive))

	valid := CreateBookingInput{
		ServiceID:   strconv.FormatUint(uint64(f.service.ID), 10),
		ScheduledAt: "2026-11-01T09:30",
		Address:     "1 Main St",
	}

	tests := []struct {
		name   string
		mutate func(*CreateBookingInput)
	}{
		{"missing service", func(in *CreateBookingInput) { in.ServiceID = "" }},
		{"malformed service id", func(in *CreateBookingInput) { in.ServiceID = "abc" }},
		{"unknown service", func(in *CreateBookingInput) { in.ServiceID = "9999" }},
		{"inactive service", func(in *CreateBookingInput) { in.ServiceID = strconv.FormatUint(uint64(inactive.ID), 10) }},
		{"blank address", func(in *CreateBookingInput) { in.Address = "   " }},
		{"missing date", func(in *CreateBookingInput) { in.ScheduledAt = "" }},
		{"bad date", func(in *CreateBookingInput) { in.ScheduledAt = "next tuesday" }},
		{"bad payment method", func(in *CreateBookingInput) { in.PaymentMethod = "cheque" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid
			tt.mutate(&in)
			_, err := f.bookings.Create(context.Background(), f.customer, in)
			assert.Equal(t, KindValidation, kindOf(t, err))
		})
	}

	b, err := f.bookings.Create(context.Background(), f.customer, valid)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 11, 1, 9, 30, 0, 0, time.UTC), b.ScheduledAt)
}

func TestAssignProvider(t *testing.T) {
	ctx := context.Background()

	t.Run("non-pending status is left alone", func(t *testing.T) {
		f := newFixture()
		b := f.bookingIn(models.BookingStatusOnTheWay)
		other := f.db.addUser("Olga", models.RoleProvider)

		got, err := f.bookings.AssignProvider(ctx, f.admin, b.ID, strconv.FormatUint(uint64(other.ID), 10))
		require.NoError(t, err)
		assert.Equal(t, models.BookingStatusOnTheWay, got.Status)
		assert.Equal(t, other.ID, *got.ProviderID)
	})

	t.Run("malformed provider id", func(t *testing.T) {
		f := newFixture()
		b := f.pendingBooking()
		_, err := f.bookings.AssignProvider(ctx, f.admin, b.ID, "not-an-id")
		assert.Equal(t, KindValidation, kindOf(t, err))
	})

	t.Run("user is not a provider", func(t *testing.T) {
		f := newFixture()
		b := f.pendingBooking()
		_, err := f.bookings.AssignProvider(ctx, f.admin, b.ID, strconv.FormatUint(uint64(f.customer.ID), 10))
		assert.Equal(t, KindValidation, kindOf(t, err))
	})

	t.Run("missing booking", func(t *testing.T) {
		f := newFixture()
		_, err := f.bookings.AssignProvider(ctx, f.admin, 4242, strconv.FormatUint(uint64(f.provider.ID), 10))
		assert.Equal(t, KindNotFound, kindOf(t, err))
	})

	t.Run("only admins assign", func(t *testing.T) {
		f := newFixture()
		b := f.pendingBooking()
		_, err := f.bookings.AssignProvider(ctx, f.provider, b.ID, strconv.FormatUint(uint64(f.provider.ID), 10))
		assert.Equal(t, KindForbidden, kindOf(t, err))
	})

	t.Run("terminal booking", func(t *testing.T) {
		f := newFixture()
		b := f.bookingIn(models.BookingStatusCompleted)
		_, err := f.bookings.AssignProvider(ctx, f.admin, b.ID, strconv.FormatUint(uint64(f.provider.ID), 10))
		assert.Equal(t, KindConflict, kindOf(t, err))
	})
}

func TestUpdateStatus_Permissions(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	b := f.bookingIn(models.BookingStatusConfirmed)
	stranger := ActorFromUser(f.db.addUser("Sam", models.RoleProvider))

	_, err := f.bookings.UpdateStatus(ctx, f.customer, b.ID, "on_the_way")
	assert.Equal(t, KindForbidden, kindOf(t, err))

	_, err = f.bookings.UpdateStatus(ctx, stranger, b.ID, "on_the_way")
	assert.Equal(t, KindForbidden, kindOf(t, err))

	_, err = f.bookings.UpdateStatus(ctx, f.provider, b.ID, "accepted")
	assert.Equal(t, KindValidation, kindOf(t, err))

	_, err = f.bookings.UpdateStatus(ctx, f.provider, b.ID, "confirmed")
	assert.Equal(t, KindConflict, kindOf(t, err), "a same-state update is not a transition")

	got, err := f.bookings.UpdateStatus(ctx, f.admin, b.ID, "cancelled")
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusCancelled, got.Status)
}

func TestUpdateBooking_OwnerRules(t *testing.T) {
	ctx := context.Background()
	cancelled := "cancelled"
	confirmed := "confirmed"

	t.Run("cancel a completed booking", func(t *testing.T) {
		f := newFixture()
		b := f.bookingIn(models.BookingStatusCompleted)
		_, err := f.bookings.Cancel(ctx, f.customer, b.ID)
		assert.Equal(t, KindValidation, kindOf(t, err))
	})

	t.Run("non-owner", func(t *testing.T) {
		f := newFixture()
		b := f.pendingBooking()
		_, err := f.bookings.Update(ctx, f.admin, b.ID, UpdateBookingInput{Status: &cancelled})
		assert.Equal(t, KindForbidden, kindOf(t, err))
	})

	t.Run("status other than cancelled", func(t *testing.T) {
		f := newFixture()
		b := f.pendingBooking()
		_, err := f.bookings.Update(ctx, f.customer, b.ID, UpdateBookingInput{Status: &confirmed})
		assert.Equal(t, KindValidation, kindOf(t, err))
	})

	t.Run("empty body", func(t *testing.T) {
		f := newFixture()
		b := f.pendingBooking()
		_, err := f.bookings.Update(ctx, f.customer, b.ID, UpdateBookingInput{})
		assert.Equal(t, KindValidation, kindOf(t, err))
	})

	t.Run("reschedule", func(t *testing.T) {
		f := newFixture()
		b := f.pendingBooking()
		when := "2026-12-24"
		got, err := f.bookings.Update(ctx, f.customer, b.ID, UpdateBookingInput{ScheduledAt: &when})
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 12, 24, 0, 0, 0, 0, time.UTC), got.ScheduledAt)
		assert.Equal(t, models.BookingStatusPending, got.Status)
		assert.Equal(t, []events.EventType{events.EventUpdated}, f.notifier.bookingTypes())
	})

	t.Run("cancel", func(t *testing.T) {
		f := newFixture()
		b := f.pendingBooking()
		got, err := f.bookings.Cancel(ctx, f.customer, b.ID)
		require.NoError(t, err)
		assert.Equal(t, models.BookingStatusCancelled, got.Status)
		assert.Equal(t, uint(2), got.Version)
		assert.Equal(t, []events.EventType{events.EventCancelled}, f.notifier.bookingTypes())
	})
}

func TestBookingWrite_StaleVersion(t *testing.T) {
	f := newFixture()
	b := f.bookingIn(models.BookingStatusConfirmed)
	f.db.staleBookings = true

	_, err := f.bookings.UpdateStatus(context.Background(), f.provider, b.ID, "on_the_way")
	assert.Equal(t, KindConflict, kindOf(t, err))
	assert.Equal(t, models.BookingStatusConfirmed, f.db.booking(b.ID).Status)
	assert.Empty(t, f.notifier.bookingTypes())
}

func TestGetBooking_Access(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	b := f.bookingIn(models.BookingStatusConfirmed)
	stranger := ActorFromUser(f.db.addUser("Eve", models.RoleUser))

	for _, actor := range []Actor{f.customer, f.provider, f.admin} {
		_, err := f.bookings.Get(ctx, actor, b.ID)
		assert.NoError(t, err)
	}
	_, err := f.bookings.Get(ctx, stranger, b.ID)
	assert.Equal(t, KindForbidden, kindOf(t, err))
}

func TestAdminList_Pagination(t *testing.T) {
	f := newFixture()
	for i := 0; i < 25; i++ {
		f.pendingBooking()
	}

	var seen []uint
	for page, want := range map[int]int{1: 10, 2: 10, 3: 5} {
		q := url.Values{"page": {strconv.Itoa(page)}, "limit": {"10"}}
		res, err := f.bookings.AdminList(context.Background(), q)
		require.NoError(t, err)
		assert.Len(t, res.Items, want, "page %d", page)
		assert.Equal(t, int64(25), res.Total)
		assert.Equal(t, 3, res.Pages)
		for _, b := range res.Items {
			seen = append(seen, b.ID)
		}
	}
	assert.Len(t, seen, 25)
	assert.ElementsMatch(t, seen, uniqueIDs(seen))
}

func uniqueIDs(ids []uint) []uint {
	set := map[uint]bool{}
	var out []uint
	for _, id := range ids {
		if !set[id] {
			set[id] = true
			out = append(out, id)
		}
	}
	return out
}

func TestAdminList_RejectsMalformedIDFilter(t *testing.T) {
	f := newFixture()
	_, err := f.bookings.AdminList(context.Background(), url.Values{"provider": {"x1"}})
	assert.Equal(t, KindValidation, kindOf(t, err))
}

func TestProviderList_ScopedToCaller(t *testing.T) {
	f := newFixture()
	f.bookingIn(models.BookingStatusConfirmed)
	f.bookingIn(models.BookingStatusOnTheWay)
	f.pendingBooking()

	res, err := f.bookings.ProviderList(context.Background(), f.provider, url.Values{"provider": {"999"}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Total)
	for _, b := range res.Items {
		assert.True(t, b.AssignedTo(f.provider.ID))
	}
}

func TestExport_WritesEscapedRows(t *testing.T) {
	f := newFixture()
	b := f.bookingIn(models.BookingStatusConfirmed)
	f.db.mu.Lock()
	stored := f.db.bookings[b.ID]
	stored.Address = `Flat 2, "Rose" House`
	stored.Notes = "ring twice\r\nthen knock"
	f.db.bookings[b.ID] = stored
	f.db.mu.Unlock()

	export, err := f.bookings.NewExport(url.Values{})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, export.WriteTo(context.Background(), &buf))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, exportColumns, records[0])

	row := records[1]
	assert.Equal(t, strconv.FormatUint(uint64(b.ID), 10), row[0])
	assert.Equal(t, "confirmed", row[3])
	assert.Equal(t, "Carol", row[4])
	assert.Equal(t, "Pete", row[6])
	assert.Equal(t, "80.00", row[9])
	assert.Equal(t, `Flat 2, "Rose" House`, row[10])
	assert.Equal(t, "ring twice then knock", row[11])
}

func TestExport_BadFilterFailsBeforeWriting(t *testing.T) {
	f := newFixture()
	_, err := f.bookings.NewExport(url.Values{"from": {"yesterday"}})
	assert.Equal(t, KindValidation, kindOf(t, err))
}

func TestExportFilename(t *testing.T) {
	assert.Equal(t, "bookings-2026-03-09.csv", ExportFilename(time.Date(2026, 3, 9, 23, 0, 0, 0, time.UTC)))
}
