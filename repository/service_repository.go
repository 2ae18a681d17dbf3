package repository

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"home-services-server/models"
)

type ServiceFilter struct {
	IncludeInactive bool
	Category        string
	Query           string
	ProviderID      *uint
}

type ServiceRepository interface {
	Create(ctx context.Context, service *models.Service) error
	FindByID(ctx context.Context, id uint) (*models.Service, error)
	List(ctx context.Context, filter ServiceFilter) ([]models.Service, error)
	Save(ctx context.Context, service *models.Service) error
}

type serviceRepository struct {
	db *gorm.DB
}

func NewServiceRepository(db *gorm.DB) ServiceRepository {
	return &serviceRepository{db: db}
}

func (r *serviceRepository) Create(ctx context.Context, service *models.Service) error {
	return r.db.WithContext(ctx).Create(service).Error
}

func (r *serviceRepository) FindByID(ctx context.Context, id uint) (*models.Service, error) {
	var service models.Service
	if err := r.db.WithContext(ctx).First(&service, id).Error; err != nil {
		return nil, err
	}
	return &service, nil
}

func (r *serviceRepository) List(ctx context.Context, filter ServiceFilter) ([]models.Service, error) {
	query := r.db.WithContext(ctx).Model(&models.Service{})
	if !filter.IncludeInactive {
		query = query.Where("active = ?", true)
	}
	if c := strings.TrimSpace(filter.Category); c != "" {
		query = query.Where("category = ?", c)
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		p := containsPattern(q)
		query = query.Where("(name ILIKE ? OR description ILIKE ?)", p, p)
	}
	if filter.ProviderID != nil {
		query = query.Where("provider_id = ?", *filter.ProviderID)
	}

	var services []models.Service
	if err := query.Order("created_at DESC").Order("id DESC").Find(&services).Error; err != nil {
		return nil, err
	}
	return services, nil
}

func (r *serviceRepository) Save(ctx context.Context, service *models.Service) error {
	return r.db.WithContext(ctx).Save(service).Error
}
