package seed

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"home-services-server/models"
	"home-services-server/repository"
)

// DefaultCatalog is the starter set of services inserted into an empty catalog.
var DefaultCatalog = []models.Service{
	{
		Name:        "Plumbing",
		Description: "Leak repair, faucet and fixture installation, water heater repair and drain maintenance.",
		Category:    "Plumbing",
		Price:       60,
	},
	{
		Name:        "Electrical",
		Description: "Wiring, outlet and lighting installation, panel checks and fault diagnosis.",
		Category:    "Electrical",
		Price:       75,
	},
	{
		Name:        "Painting",
		Description: "Interior and exterior painting, surface preparation and touch-ups.",
		Category:    "Painting",
		Price:       40,
	},
	{
		Name:        "Air conditioning",
		Description: "AC installation, servicing, gas refill and repair.",
		Category:    "Air conditioning",
		Price:       90,
	},
	{
		Name:        "Carpentry",
		Description: "Door, window and furniture repair, custom shelving and assembly.",
		Category:    "Carpentry",
		Price:       55,
	},
	{
		Name:        "Home cleaning",
		Description: "Standard and deep cleaning for apartments and houses.",
		Category:    "Cleaning",
		Price:       35,
	},
	{
		Name:        "Gardening",
		Description: "Lawn mowing, hedge trimming, planting and seasonal cleanup.",
		Category:    "Gardening",
		Price:       30,
	},
	{
		Name:        "Locksmith",
		Description: "Lockouts, lock replacement and rekeying.",
		Category:    "Locksmith",
		Price:       65,
	},
}

// Catalog inserts DefaultCatalog when no service exists yet, active or not.
// It returns how many services were created.
func Catalog(ctx context.Context, repo repository.ServiceRepository, log *zap.Logger) (int, error) {
	existing, err := repo.List(ctx, repository.ServiceFilter{IncludeInactive: true})
	if err != nil {
		return 0, fmt.Errorf("count services: %w", err)
	}
	if len(existing) > 0 {
		log.Info("catalog already populated, skipping seed", zap.Int("services", len(existing)))
		return 0, nil
	}

	created := 0
	for _, tmpl := range DefaultCatalog {
		service := tmpl
		service.Active = true
		if err := repo.Create(ctx, &service); err != nil {
			return created, fmt.Errorf("create service %q: %w", service.Name, err)
		}
		created++
	}
	log.Info("seeded service catalog", zap.Int("services", created))
	return created, nil
}
