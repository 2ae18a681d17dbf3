package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"home-services-server/models"
)

type InvoiceFilter struct {
	Status     *models.InvoiceStatus
	UserID     *uint
	ProviderID *uint
}

type InvoiceRepository interface {
	Create(ctx context.Context, invoice *models.Invoice) error
	FindByID(ctx context.Context, id uint) (*models.Invoice, error)
	FindByIDForUpdate(ctx context.Context, id uint) (*models.Invoice, error)
	FindByBookingID(ctx context.Context, bookingID uint) (*models.Invoice, error)
	List(ctx context.Context, filter InvoiceFilter, offset, limit int) ([]models.Invoice, int64, error)
	Save(ctx context.Context, invoice *models.Invoice) error
	MarkPaid(ctx context.Context, invoice *models.Invoice) error
}

type invoiceRepository struct {
	db *gorm.DB
}

func NewInvoiceRepository(db *gorm.DB) InvoiceRepository {
	return &invoiceRepository{db: db}
}

func (r *invoiceRepository) Create(ctx context.Context, invoice *models.Invoice) error {
	return r.db.WithContext(ctx).Create(invoice).Error
}

func (r *invoiceRepository) FindByID(ctx context.Context, id uint) (*models.Invoice, error) {
	var invoice models.Invoice
	if err := r.db.WithContext(ctx).First(&invoice, id).Error; err != nil {
		return nil, err
	}
	return &invoice, nil
}

// FindByIDForUpdate locks the invoice row until the surrounding transaction ends.
func (r *invoiceRepository) FindByIDForUpdate(ctx context.Context, id uint) (*models.Invoice, error) {
	var invoice models.Invoice
	if err := r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).First(&invoice, id).Error; err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (r *invoiceRepository) FindByBookingID(ctx context.Context, bookingID uint) (*models.Invoice, error) {
	var invoice models.Invoice
	if err := r.db.WithContext(ctx).Where("booking_id = ?", bookingID).First(&invoice).Error; err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (r *invoiceRepository) List(ctx context.Context, filter InvoiceFilter, offset, limit int) ([]models.Invoice, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Invoice{})
	if filter.Status != nil {
		query = query.Where("status = ?", string(*filter.Status))
	}
	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if filter.ProviderID != nil {
		query = query.Where("provider_id = ?", *filter.ProviderID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var invoices []models.Invoice
	err := query.Order("issued_at DESC").Order("id DESC").Offset(offset).Limit(limit).Find(&invoices).Error
	return invoices, total, err
}

func (r *invoiceRepository) Save(ctx context.Context, invoice *models.Invoice) error {
	return r.db.WithContext(ctx).Save(invoice).Error
}

// MarkPaid moves an unpaid invoice to paid, copying PaidAt and PaymentTrxID from invoice.
// ErrInvoiceSettled means the row was no longer unpaid.
func (r *invoiceRepository) MarkPaid(ctx context.Context, invoice *models.Invoice) error {
	res := r.db.WithContext(ctx).Model(&models.Invoice{}).
		Where("id = ? AND status = ?", invoice.ID, string(models.InvoiceStatusUnpaid)).
		Updates(map[string]any{
			"status":         string(models.InvoiceStatusPaid),
			"paid_at":        invoice.PaidAt,
			"payment_trx_id": invoice.PaymentTrxID,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrInvoiceSettled
	}
	return nil
}
