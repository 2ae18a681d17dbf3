package repository

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"home-services-server/models"
	"home-services-server/utils"
)

type ProviderFilter struct {
	Verified *bool
	Query    string
	Category string
	Area     string
	Skill    string
}

type ProviderRepository interface {
	FindProfile(ctx context.Context, userID uint) (*models.ProviderProfile, error)
	SaveProfile(ctx context.Context, profile *models.ProviderProfile) error
	ListProfiles(ctx context.Context, filter ProviderFilter, offset, limit int) ([]models.ProviderProfile, int64, error)
	ProfileUserIDs(ctx context.Context) ([]uint, error)
	UpdateRating(ctx context.Context, userID uint, stats models.RatingStats) error

	CreateApplication(ctx context.Context, app *models.ProviderApplication) error
	FindApplication(ctx context.Context, id uint) (*models.ProviderApplication, error)
	SaveApplication(ctx context.Context, app *models.ProviderApplication) error
	ListApplications(ctx context.Context, status *models.ApplicationStatus, offset, limit int) ([]models.ProviderApplication, int64, error)
	HasPendingApplication(ctx context.Context, userID uint) (bool, error)
}

type providerRepository struct {
	db *gorm.DB
}

func NewProviderRepository(db *gorm.DB) ProviderRepository {
	return &providerRepository{db: db}
}

func (r *providerRepository) FindProfile(ctx context.Context, userID uint) (*models.ProviderProfile, error) {
	var profile models.ProviderProfile
	err := r.db.WithContext(ctx).Preload("User").Where("user_id = ?", userID).First(&profile).Error
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func (r *providerRepository) SaveProfile(ctx context.Context, profile *models.ProviderProfile) error {
	return r.db.WithContext(ctx).Omit("User").Save(profile).Error
}

func (r *providerRepository) ListProfiles(ctx context.Context, filter ProviderFilter, offset, limit int) ([]models.ProviderProfile, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.ProviderProfile{})
	if filter.Verified != nil {
		query = query.Where("is_verified = ?", *filter.Verified)
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		p := containsPattern(q)
		query = query.Where("(display_name ILIKE ? OR bio ILIKE ?)", p, p)
	}
	if c := strings.TrimSpace(filter.Category); c != "" {
		query = query.Where("? = ANY(categories)", c)
	}
	if a := strings.TrimSpace(filter.Area); a != "" {
		query = query.Where("? = ANY(service_areas)", a)
	}
	if s := strings.TrimSpace(filter.Skill); s != "" {
		query = query.Where("? = ANY(skills)", s)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var profiles []models.ProviderProfile
	err := query.Preload("User").
		Order("rating_avg DESC").Order("id DESC").
		Offset(offset).Limit(limit).
		Find(&profiles).Error
	return profiles, total, err
}

func (r *providerRepository) ProfileUserIDs(ctx context.Context) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).Model(&models.ProviderProfile{}).Pluck("user_id", &ids).Error
	return ids, err
}

func (r *providerRepository) UpdateRating(ctx context.Context, userID uint, stats models.RatingStats) error {
	return r.db.WithContext(ctx).
		Model(&models.ProviderProfile{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"rating_avg":   utils.Round2(stats.Avg),
			"rating_count": stats.Count,
		}).Error
}

func (r *providerRepository) CreateApplication(ctx context.Context, app *models.ProviderApplication) error {
	return r.db.WithContext(ctx).Omit("User").Create(app).Error
}

func (r *providerRepository) FindApplication(ctx context.Context, id uint) (*models.ProviderApplication, error) {
	var app models.ProviderApplication
	if err := r.db.WithContext(ctx).Preload("User").First(&app, id).Error; err != nil {
		return nil, err
	}
	return &app, nil
}

func (r *providerRepository) SaveApplication(ctx context.Context, app *models.ProviderApplication) error {
	return r.db.WithContext(ctx).Omit("User").Save(app).Error
}

func (r *providerRepository) ListApplications(ctx context.Context, status *models.ApplicationStatus, offset, limit int) ([]models.ProviderApplication, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.ProviderApplication{})
	if status != nil {
		query = query.Where("status = ?", string(*status))
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var apps []models.ProviderApplication
	err := query.Preload("User").Order("created_at DESC").Order("id DESC").Offset(offset).Limit(limit).Find(&apps).Error
	return apps, total, err
}

func (r *providerRepository) HasPendingApplication(ctx context.Context, userID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.ProviderApplication{}).
		Where("user_id = ? AND status = ?", userID, string(models.ApplicationStatusPending)).
		Count(&count).Error
	return count > 0, err
}
