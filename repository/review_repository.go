package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"home-services-server/models"
)

type ReviewFilter struct {
	ServiceID *uint
	UserID    *uint
	Status    *models.ReviewStatus
}

type ReviewRepository interface {
	// Upsert inserts or overwrites the single review a user holds for a service.
	Upsert(ctx context.Context, review *models.Review) error
	FindByID(ctx context.Context, id uint) (*models.Review, error)
	FindByUserAndService(ctx context.Context, userID, serviceID uint) (*models.Review, error)
	List(ctx context.Context, filter ReviewFilter, offset, limit int) ([]models.Review, int64, error)
	Save(ctx context.Context, review *models.Review) error
	Delete(ctx context.Context, id uint) error
	ServiceStats(ctx context.Context, serviceID uint) (models.RatingStats, error)
	ProviderStats(ctx context.Context, providerID uint) (models.RatingStats, error)
	AllProviderStats(ctx context.Context) (map[uint]models.RatingStats, error)
}

type reviewRepository struct {
	db *gorm.DB
}

func NewReviewRepository(db *gorm.DB) ReviewRepository {
	return &reviewRepository{db: db}
}

func (r *reviewRepository) Upsert(ctx context.Context, review *models.Review) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "service_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"rating", "comment", "status", "booking_id", "updated_at"}),
		}).
		Create(review).Error
}

func (r *reviewRepository) FindByID(ctx context.Context, id uint) (*models.Review, error) {
	var review models.Review
	if err := r.db.WithContext(ctx).First(&review, id).Error; err != nil {
		return nil, err
	}
	return &review, nil
}

func (r *reviewRepository) FindByUserAndService(ctx context.Context, userID, serviceID uint) (*models.Review, error) {
	var review models.Review
	err := r.db.WithContext(ctx).Where("user_id = ? AND service_id = ?", userID, serviceID).First(&review).Error
	if err != nil {
		return nil, err
	}
	return &review, nil
}

func (r *reviewRepository) List(ctx context.Context, filter ReviewFilter, offset, limit int) ([]models.Review, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Review{})
	if filter.ServiceID != nil {
		query = query.Where("service_id = ?", *filter.ServiceID)
	}
	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", string(*filter.Status))
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var reviews []models.Review
	err := query.Preload("User").Preload("Service").
		Order("created_at DESC").Order("id DESC").
		Offset(offset).Limit(limit).
		Find(&reviews).Error
	return reviews, total, err
}

func (r *reviewRepository) Save(ctx context.Context, review *models.Review) error {
	return r.db.WithContext(ctx).Save(review).Error
}

func (r *reviewRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&models.Review{}, id).Error
}

func (r *reviewRepository) ServiceStats(ctx context.Context, serviceID uint) (models.RatingStats, error) {
	var stats models.RatingStats
	err := r.db.WithContext(ctx).
		Model(&models.Review{}).
		Select("COALESCE(AVG(rating), 0) AS avg, COUNT(*) AS count").
		Where("service_id = ? AND status = ?", serviceID, string(models.ReviewStatusApproved)).
		Scan(&stats).Error
	return stats, err
}

func (r *reviewRepository) ProviderStats(ctx context.Context, providerID uint) (models.RatingStats, error) {
	var stats models.RatingStats
	err := r.db.WithContext(ctx).
		Model(&models.Review{}).
		Select("COALESCE(AVG(reviews.rating), 0) AS avg, COUNT(*) AS count").
		Joins("JOIN bookings ON bookings.id = reviews.booking_id").
		Where("bookings.provider_id = ? AND reviews.status = ?", providerID, string(models.ReviewStatusApproved)).
		Scan(&stats).Error
	return stats, err
}

func (r *reviewRepository) AllProviderStats(ctx context.Context) (map[uint]models.RatingStats, error) {
	var rows []struct {
		ProviderID uint
		Avg        float64
		Count      int64
	}
	err := r.db.WithContext(ctx).
		Model(&models.Review{}).
		Select("bookings.provider_id AS provider_id, AVG(reviews.rating) AS avg, COUNT(*) AS count").
		Joins("JOIN bookings ON bookings.id = reviews.booking_id").
		Where("reviews.status = ? AND bookings.provider_id IS NOT NULL", string(models.ReviewStatusApproved)).
		Group("bookings.provider_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make(map[uint]models.RatingStats, len(rows))
	for _, row := range rows {
		out[row.ProviderID] = models.RatingStats{Avg: row.Avg, Count: row.Count}
	}
	return out, nil
}
