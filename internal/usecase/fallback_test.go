package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pricematch/backend/internal/domain"
)

func TestFallbackSearch(t *testing.T) {
	ctx := context.Background()
	catalog := newFakeCatalog(
		domain.RawProduct{Supermarket: domain.StoreTesco, Name: "Tesco Smoked Paprika 50g", Price: "£1.10", ImageURL: "https://img/t.jpg", PricePerUnit: "£2.20/100g"},
		domain.RawProduct{Supermarket: domain.StoreSainsburys, Name: "Sainsbury's Sweet Paprika 48g", Price: "£1.00"},
	)

	t.Run("hit in one catalog", func(t *testing.T) {
		f := NewFallbackSearch(catalog, 0)
		got, err := f.Search(ctx, "SMOKED paprika", "paprika")
		require.NoError(t, err)
		require.NotNil(t, got)

		assert.Equal(t, DefaultFallbackConfidence, got.Confidence)
		assert.Equal(t, domain.SourceFallback, got.Source)
		assert.Equal(t, "paprika", got.GenericName)
		require.NotNil(t, got.Tesco)
		assert.Equal(t, "Tesco Smoked Paprika 50g", got.Tesco.Name)
		assert.Equal(t, "https://img/t.jpg", got.Tesco.ImageURL)
		require.NotNil(t, got.Tesco.Quantity)
		assert.Equal(t, 50.0, *got.Tesco.Quantity)
		assert.Nil(t, got.Sainsburys)
	})

	t.Run("hit in both catalogs", func(t *testing.T) {
		f := NewFallbackSearch(catalog, 0.4)
		got, err := f.Search(ctx, "paprika", "")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.NotNil(t, got.Tesco)
		assert.NotNil(t, got.Sainsburys)
		assert.Equal(t, 0.4, got.Confidence)
		assert.Equal(t, "paprika", got.GenericName)
	})

	t.Run("uses the raw query", func(t *testing.T) {
		c := newFakeCatalog()
		f := NewFallbackSearch(c, 0)
		_, err := f.Search(ctx, "Tesco Paprika 50g", "paprika")
		require.NoError(t, err)
		assert.Equal(t, []string{"tesco:Tesco Paprika 50g", "sainsburys:Tesco Paprika 50g"}, c.searches)
	})

	t.Run("no hit is not an error", func(t *testing.T) {
		f := NewFallbackSearch(catalog, 0)
		got, err := f.Search(ctx, "dragon fruit", "dragon fruit")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("blank query", func(t *testing.T) {
		f := NewFallbackSearch(catalog, 0)
		got, err := f.Search(ctx, "   ", "")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("store errors propagate", func(t *testing.T) {
		c := newFakeCatalog()
		c.searchErr = errBoom
		f := NewFallbackSearch(c, 0)
		_, err := f.Search(ctx, "paprika", "")
		assert.ErrorIs(t, err, errBoom)
	})
}
