package repository

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"home-services-server/models"
)

type BookingSortField string

const (
	SortByCreatedAt   BookingSortField = "created_at"
	SortByScheduledAt BookingSortField = "scheduled_at"
	SortByStatus      BookingSortField = "status"
)

type BookingDateField string

const (
	DateFieldCreatedAt   BookingDateField = "created_at"
	DateFieldScheduledAt BookingDateField = "scheduled_at"
)

// BookingFilter is the normalized form of the booking list query.
// Zero values mean "no constraint"; From and To are inclusive.
type BookingFilter struct {
	Statuses   []models.BookingStatus
	UserID     *uint
	ProviderID *uint
	ServiceID  *uint
	Query      string
	DateField  BookingDateField
	From       *time.Time
	To         *time.Time
	SortBy     BookingSortField
	SortDesc   bool
}

func (f BookingFilter) apply(db *gorm.DB) *gorm.DB {
	if len(f.Statuses) > 0 {
		statuses := make([]string, 0, len(f.Statuses))
		for _, s := range f.Statuses {
			statuses = append(statuses, string(s))
		}
		db = db.Where("bookings.status IN ?", statuses)
	}
	if f.UserID != nil {
		db = db.Where("bookings.user_id = ?", *f.UserID)
	}
	if f.ProviderID != nil {
		db = db.Where("bookings.provider_id = ?", *f.ProviderID)
	}
	if f.ServiceID != nil {
		db = db.Where("bookings.service_id = ?", *f.ServiceID)
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		db = db.Where("bookings.address ILIKE ?", containsPattern(q))
	}

	dateCol := "bookings." + string(f.dateField())
	if f.From != nil {
		db = db.Where(dateCol+" >= ?", *f.From)
	}
	if f.To != nil {
		db = db.Where(dateCol+" <= ?", *f.To)
	}
	return db
}

func (f BookingFilter) dateField() BookingDateField {
	if f.DateField == DateFieldScheduledAt {
		return DateFieldScheduledAt
	}
	return DateFieldCreatedAt
}

// orderClause returns the sort with an id tiebreak so pages never overlap.
func (f BookingFilter) orderClause() string {
	col := SortByCreatedAt
	switch f.SortBy {
	case SortByScheduledAt, SortByStatus:
		col = f.SortBy
	}
	dir := "ASC"
	if f.SortDesc {
		dir = "DESC"
	}
	return "bookings." + string(col) + " " + dir + ", bookings.id DESC"
}

type BookingRepository interface {
	Create(ctx context.Context, booking *models.Booking) error
	FindByID(ctx context.Context, id uint) (*models.Booking, error)
	ListByUser(ctx context.Context, userID uint) ([]models.Booking, error)
	Count(ctx context.Context, filter BookingFilter) (int64, error)
	Find(ctx context.Context, filter BookingFilter, offset, limit int) ([]models.Booking, error)
	// Save persists the mutable fields if the stored version still matches booking.Version,
	// then bumps booking.Version. It returns ErrStaleWrite when the row has moved on.
	Save(ctx context.Context, booking *models.Booking) error
	FindCompleted(ctx context.Context, userID, serviceID uint) (*models.Booking, error)
}

type bookingRepository struct {
	db *gorm.DB
}

func NewBookingRepository(db *gorm.DB) BookingRepository {
	return &bookingRepository{db: db}
}

func (r *bookingRepository) withRelations(db *gorm.DB) *gorm.DB {
	return db.Preload("User").Preload("Service").Preload("Provider")
}

func (r *bookingRepository) Create(ctx context.Context, booking *models.Booking) error {
	if booking.Version == 0 {
		booking.Version = 1
	}
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(booking).Error
}

func (r *bookingRepository) FindByID(ctx context.Context, id uint) (*models.Booking, error) {
	var booking models.Booking
	if err := r.withRelations(r.db.WithContext(ctx)).First(&booking, id).Error; err != nil {
		return nil, err
	}
	return &booking, nil
}

func (r *bookingRepository) ListByUser(ctx context.Context, userID uint) ([]models.Booking, error) {
	var bookings []models.Booking
	err := r.db.WithContext(ctx).
		Preload("Service").
		Preload("Provider").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&bookings).Error
	return bookings, err
}

func (r *bookingRepository) Count(ctx context.Context, filter BookingFilter) (int64, error) {
	var total int64
	err := filter.apply(r.db.WithContext(ctx).Model(&models.Booking{})).Count(&total).Error
	return total, err
}

func (r *bookingRepository) Find(ctx context.Context, filter BookingFilter, offset, limit int) ([]models.Booking, error) {
	var bookings []models.Booking
	err := r.withRelations(filter.apply(r.db.WithContext(ctx).Model(&models.Booking{}))).
		Order(filter.orderClause()).
		Offset(offset).
		Limit(limit).
		Find(&bookings).Error
	return bookings, err
}

func (r *bookingRepository) Save(ctx context.Context, booking *models.Booking) error {
	now := time.Now()
	res := r.db.WithContext(ctx).
		Model(&models.Booking{}).
		Where("id = ? AND version = ?", booking.ID, booking.Version).
		Updates(map[string]interface{}{
			"provider_id":    booking.ProviderID,
			"scheduled_at":   booking.ScheduledAt,
			"status":         string(booking.Status),
			"payment_method": string(booking.Payment.Method),
			"payment_status": string(booking.Payment.Status),
			"payment_trx_id": booking.Payment.TrxID,
			"version":        booking.Version + 1,
			"updated_at":     now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleWrite
	}
	booking.Version++
	booking.UpdatedAt = now
	return nil
}

func (r *bookingRepository) FindCompleted(ctx context.Context, userID, serviceID uint) (*models.Booking, error) {
	var booking models.Booking
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND service_id = ? AND status = ?", userID, serviceID, string(models.BookingStatusCompleted)).
		Order("updated_at DESC").
		First(&booking).Error
	if err != nil {
		return nil, err
	}
	return &booking, nil
}
