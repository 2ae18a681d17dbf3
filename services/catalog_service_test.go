package services

import (
	"context"
	"errors"
	"io"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"home-services-server/models"
)

type uploaderFunc func(ctx context.Context, r io.Reader, publicID string) (string, error)

func (f uploaderFunc) UploadImage(ctx context.Context, r io.Reader, publicID string) (string, error) {
	return f(ctx, r, publicID)
}

func strPtr(s string) *string     { return &s }
func floatPtr(v float64) *float64 { return &v }

func TestCatalog_CreateOwnershipAndSoftDelete(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	_, err := f.catalog.Create(ctx, f.customer, ServiceInput{Name: strPtr("Nope"), Price: floatPtr(1)})
	assert.Equal(t, KindForbidden, kindOf(t, err))

	_, err = f.catalog.Create(ctx, f.provider, ServiceInput{Name: strPtr("Gutter cleaning"), Price: floatPtr(-5)})
	assert.Equal(t, KindValidation, kindOf(t, err))

	svc, err := f.catalog.Create(ctx, f.provider, ServiceInput{Name: strPtr(" Gutter cleaning "), Price: floatPtr(45)})
	require.NoError(t, err)
	assert.Equal(t, "Gutter cleaning", svc.Name)
	assert.True(t, svc.Active)
	require.NotNil(t, svc.ProviderID)
	assert.Equal(t, f.provider.ID, *svc.ProviderID)

	other := ActorFromUser(f.db.addUser("Olga", models.RoleProvider))
	_, err = f.catalog.Update(ctx, other, svc.ID, ServiceInput{Price: floatPtr(10)})
	assert.Equal(t, KindForbidden, kindOf(t, err))

	removed, err := f.catalog.Deactivate(ctx, f.provider, svc.ID)
	require.NoError(t, err)
	assert.False(t, removed.Active)

	_, err = f.catalog.Get(ctx, nil, svc.ID)
	assert.Equal(t, KindNotFound, kindOf(t, err))
	_, err = f.catalog.Get(ctx, &f.admin, svc.ID)
	assert.NoError(t, err)

	public, err := f.catalog.List(ctx, &f.customer, url.Values{"includeInactive": {"true"}})
	require.NoError(t, err)
	for _, s := range public {
		assert.True(t, s.Active)
	}
	all, err := f.catalog.List(ctx, &f.admin, url.Values{"includeInactive": {"true"}})
	require.NoError(t, err)
	assert.Len(t, all, len(public)+1)
}

func TestCatalog_UploadImage(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	_, err := f.catalog.UploadImage(ctx, f.admin, f.service.ID, strings.NewReader("img"))
	assert.Equal(t, KindUnavailable, kindOf(t, err))

	var gotID string
	withUploads := NewCatalogService(f.db.store(), uploaderFunc(func(_ context.Context, r io.Reader, publicID string) (string, error) {
		gotID = publicID
		return "https://cdn.example.com/" + publicID + ".png", nil
	}), zap.NewNop())

	svc, err := withUploads.UploadImage(ctx, f.admin, f.service.ID, strings.NewReader("img"))
	require.NoError(t, err)
	assert.Equal(t, "service-"+idString(f.service.ID), gotID)
	assert.Equal(t, "https://cdn.example.com/"+gotID+".png", svc.ImageURL)

	failing := NewCatalogService(f.db.store(), uploaderFunc(func(context.Context, io.Reader, string) (string, error) {
		return "", errors.New("boom")
	}), zap.NewNop())
	_, err = failing.UploadImage(ctx, f.admin, f.service.ID, strings.NewReader("img"))
	assert.Equal(t, KindUnavailable, kindOf(t, err))
}
