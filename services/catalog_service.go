package services

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"home-services-server/models"
	"home-services-server/repository"
)

// ImageUploader stores an image and returns its public URL.
type ImageUploader interface {
	UploadImage(ctx context.Context, r io.Reader, publicID string) (string, error)
}

type CatalogService struct {
	store    *repository.Store
	uploader ImageUploader
	log      *zap.Logger
}

func NewCatalogService(store *repository.Store, uploader ImageUploader, log *zap.Logger) *CatalogService {
	return &CatalogService{store: store, uploader: uploader, log: log}
}

type ServiceInput struct {
	Name        *string
	Description *string
	Price       *float64
	Category    *string
	Active      *bool
}

func (s *CatalogService) List(ctx context.Context, actor *Actor, q url.Values) ([]models.Service, error) {
	includeInactive, _ := strconv.ParseBool(q.Get("includeInactive"))
	filter := repository.ServiceFilter{
		IncludeInactive: includeInactive && actor != nil && actor.IsAdmin(),
		Category:        strings.TrimSpace(q.Get("category")),
		Query:           strings.TrimSpace(q.Get("q")),
	}
	var err error
	if filter.ProviderID, err = optionalID(q.Get("provider"), "provider"); err != nil {
		return nil, err
	}
	services, err := s.store.Services.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	if services == nil {
		services = []models.Service{}
	}
	return services, nil
}

// Get hides inactive services from everyone but admins and the owning provider.
func (s *CatalogService) Get(ctx context.Context, actor *Actor, id uint) (*models.Service, error) {
	service, err := s.store.Services.FindByID(ctx, id)
	if err != nil {
		return nil, lookupErr(err, "service not found")
	}
	if !service.Active && !canManageService(actor, service) {
		return nil, NotFound("service not found")
	}
	return service, nil
}

func (s *CatalogService) Create(ctx context.Context, actor Actor, in ServiceInput) (*models.Service, error) {
	if !actor.IsAdmin() && !actor.IsProvider() {
		return nil, Forbidden("only admins and providers can create services")
	}
	if in.Name == nil || strings.TrimSpace(*in.Name) == "" {
		return nil, Validation("name is required")
	}
	if in.Price == nil {
		return nil, Validation("price is required")
	}

	service := &models.Service{Active: true}
	if err := applyServiceInput(service, in); err != nil {
		return nil, err
	}
	if actor.IsProvider() {
		owner := actor.ID
		service.ProviderID = &owner
	}
	if err := s.store.Services.Create(ctx, service); err != nil {
		return nil, err
	}

	s.log.Info("service created", zap.Uint("service_id", service.ID), zap.Uint("actor_id", actor.ID))
	return service, nil
}

func (s *CatalogService) Update(ctx context.Context, actor Actor, id uint, in ServiceInput) (*models.Service, error) {
	service, err := s.manageable(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if err := applyServiceInput(service, in); err != nil {
		return nil, err
	}
	if err := s.store.Services.Save(ctx, service); err != nil {
		return nil, err
	}
	return service, nil
}

// Deactivate is the delete operation: bookings keep referencing the service, so it is only hidden.
func (s *CatalogService) Deactivate(ctx context.Context, actor Actor, id uint) (*models.Service, error) {
	service, err := s.manageable(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !service.Active {
		return service, nil
	}
	service.Active = false
	if err := s.store.Services.Save(ctx, service); err != nil {
		return nil, err
	}
	s.log.Info("service deactivated", zap.Uint("service_id", service.ID), zap.Uint("actor_id", actor.ID))
	return service, nil
}

func (s *CatalogService) UploadImage(ctx context.Context, actor Actor, id uint, image io.Reader) (*models.Service, error) {
	if s.uploader == nil {
		return nil, Unavailable("image uploads are not configured")
	}
	service, err := s.manageable(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	imageURL, err := s.uploader.UploadImage(ctx, image, fmt.Sprintf("service-%d", service.ID))
	if err != nil {
		s.log.Error("image upload failed", zap.Uint("service_id", service.ID), zap.Error(err))
		return nil, Unavailable("image upload failed, try again later")
	}
	service.ImageURL = imageURL
	if err := s.store.Services.Save(ctx, service); err != nil {
		return nil, err
	}
	return service, nil
}

func (s *CatalogService) manageable(ctx context.Context, actor Actor, id uint) (*models.Service, error) {
	service, err := s.store.Services.FindByID(ctx, id)
	if err != nil {
		return nil, lookupErr(err, "service not found")
	}
	if !canManageService(&actor, service) {
		return nil, Forbidden("only an admin or the owning provider can change this service")
	}
	return service, nil
}

func canManageService(actor *Actor, service *models.Service) bool {
	if actor == nil {
		return false
	}
	return actor.IsAdmin() || service.OwnedBy(actor.ID)
}

func applyServiceInput(service *models.Service, in ServiceInput) error {
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return Validation("name cannot be empty")
		}
		service.Name = name
	}
	if in.Description != nil {
		service.Description = strings.TrimSpace(*in.Description)
	}
	if in.Price != nil {
		if *in.Price < 0 {
			return Validation("price must be zero or more")
		}
		service.Price = *in.Price
	}
	if in.Category != nil {
		service.Category = strings.TrimSpace(*in.Category)
	}
	if in.Active != nil {
		service.Active = *in.Active
	}
	return nil
}
