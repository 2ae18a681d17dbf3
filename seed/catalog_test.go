package seed

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"home-services-server/models"
	"home-services-server/repository"
)

type fakeServices struct {
	rows      []models.Service
	filters   []repository.ServiceFilter
	failAfter int
}

func (f *fakeServices) Create(_ context.Context, s *models.Service) error {
	if f.failAfter > 0 && len(f.rows) == f.failAfter {
		return errors.New("insert failed")
	}
	s.ID = uint(len(f.rows) + 1)
	f.rows = append(f.rows, *s)
	return nil
}

func (f *fakeServices) FindByID(context.Context, uint) (*models.Service, error) {
	return nil, errors.New("not used")
}

func (f *fakeServices) List(_ context.Context, filter repository.ServiceFilter) ([]models.Service, error) {
	f.filters = append(f.filters, filter)
	return f.rows, nil
}

func (f *fakeServices) Save(context.Context, *models.Service) error { return nil }

func TestCatalogSeedsEmptyCatalog(t *testing.T) {
	repo := &fakeServices{}

	n, err := Catalog(context.Background(), repo, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, len(DefaultCatalog), n)
	require.Len(t, repo.rows, len(DefaultCatalog))
	for _, s := range repo.rows {
		assert.True(t, s.Active, s.Name)
		assert.Nil(t, s.ProviderID, s.Name)
		assert.Greater(t, s.Price, 0.0, s.Name)
	}
	require.Len(t, repo.filters, 1)
	assert.True(t, repo.filters[0].IncludeInactive)
}

func TestCatalogSkipsWhenServicesExist(t *testing.T) {
	repo := &fakeServices{rows: []models.Service{{ID: 1, Name: "Retired", Active: false}}}

	n, err := Catalog(context.Background(), repo, zap.NewNop())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, repo.rows, 1)
}

func TestCatalogStopsOnInsertError(t *testing.T) {
	repo := &fakeServices{failAfter: 2}

	n, err := Catalog(context.Background(), repo, zap.NewNop())
	require.Error(t, err)
	assert.Equal(t, 2, n)
	assert.Contains(t, err.Error(), DefaultCatalog[2].Name)
}

func TestDefaultCatalogIsNotMutated(t *testing.T) {
	_, err := Catalog(context.Background(), &fakeServices{}, zap.NewNop())
	require.NoError(t, err)
	for _, s := range DefaultCatalog {
		assert.Zero(t, s.ID)
		assert.False(t, s.Active)
	}
}
