package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pricematch/backend/internal/domain"
	"github.com/pricematch/backend/internal/validation"
)

func writeCatalog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "products.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadProducts(t *testing.T) {
	v := validation.New()

	t.Run("assigns the store", func(t *testing.T) {
		path := writeCatalog(t, `[
			{"name": "Tesco Whole Milk 2L", "price": "£1.65", "imageUrl": "https://img/1", "category": "dairy"},
			{"supermarket": "TESCO", "name": "Tesco Bananas", "price": "15p", "imageUrl": "https://img/2", "category": "fruit"}
		]`)

		products, err := loadProducts(path, "tesco", v, false)
		require.NoError(t, err)
		require.Len(t, products, 2)
		assert.Equal(t, domain.StoreTesco, products[0].Supermarket)
		assert.Equal(t, domain.StoreTesco, products[1].Supermarket)
	})

	t.Run("accepts scraper display names", func(t *testing.T) {
		path := writeCatalog(t, `[
			{"supermarket": "Sainsbury's", "name": "Sainsbury's Whole Milk 4 Pints", "price": "£1.85", "imageUrl": "https://img/1", "category": "dairy"},
			{"supermarket": "Sainsbury’s", "name": "Sainsbury's Bananas", "price": "20p", "imageUrl": "https://img/2", "category": "fruit"}
		]`)

		products, err := loadProducts(path, "Sainsbury's", v, false)
		require.NoError(t, err)
		require.Len(t, products, 2)
		assert.Equal(t, domain.StoreSainsburys, products[0].Supermarket)
		assert.Equal(t, domain.StoreSainsburys, products[1].Supermarket)
	})

	t.Run("rejects invalid products", func(t *testing.T) {
		path := writeCatalog(t, `[
			{"name": "Tesco Whole Milk 2L", "price": "£1.65", "imageUrl": "https://img/1", "category": "dairy"},
			{"name": "", "price": "£1.00", "imageUrl": "https://img/2", "category": "dairy"},
			{"supermarket": "sainsburys", "name": "Milk", "price": "£1.00", "imageUrl": "https://img/3", "category": "dairy"}
		]`)

		_, err := loadProducts(path, "tesco", v, false)
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrInvalidRequest)

		products, err := loadProducts(path, "tesco", v, true)
		require.NoError(t, err)
		assert.Len(t, products, 1)
	})

	t.Run("unknown store", func(t *testing.T) {
		path := writeCatalog(t, `[]`)
		_, err := loadProducts(path, "asda", v, false)
		assert.ErrorIs(t, err, domain.ErrUnknownStore)
	})

	t.Run("malformed file", func(t *testing.T) {
		path := writeCatalog(t, `{"name": "not an array"}`)
		_, err := loadProducts(path, "tesco", v, false)
		assert.Error(t, err)
	})
}
