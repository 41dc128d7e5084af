package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/pricematch/backend/internal/domain"
)

// DefaultFallbackConfidence is the fixed confidence of a substring hit
const DefaultFallbackConfidence = 0.5

// FallbackSearch is the last resort when ranking finds nothing confident.
// It looks for the raw query text inside product names of each catalog.
// The raw query is used on purpose: retailer wording such as brand names
// survives only there.
type FallbackSearch struct {
	catalog    domain.CatalogRepository
	confidence float64
}

// NewFallbackSearch creates a fallback searcher
func NewFallbackSearch(catalog domain.CatalogRepository, confidence float64) *FallbackSearch {
	if confidence <= 0 {
		confidence = DefaultFallbackConfidence
	}
	return &FallbackSearch{catalog: catalog, confidence: confidence}
}

// Search returns a candidate when at least one catalog has a product whose
// name contains rawQuery (case-insensitive, literal). Returns nil, nil when
// neither does.
func (f *FallbackSearch) Search(ctx context.Context, rawQuery, genericName string) (*domain.SelectedCandidate, error) {
	query := strings.TrimSpace(rawQuery)
	if query == "" {
		return nil, nil
	}

	tesco, err := f.firstHit(ctx, domain.StoreTesco, query)
	if err != nil {
		return nil, err
	}
	sainsburys, err := f.firstHit(ctx, domain.StoreSainsburys, query)
	if err != nil {
		return nil, err
	}
	if tesco == nil && sainsburys == nil {
		return nil, nil
	}

	if genericName == "" {
		genericName = strings.ToLower(query)
	}

	return &domain.SelectedCandidate{
		GenericName: genericName,
		Tesco:       tesco,
		Sainsburys:  sainsburys,
		Confidence:  f.confidence,
		Reason:      "substring match in retailer catalog",
		Source:      domain.SourceFallback,
	}, nil
}

func (f *FallbackSearch) firstHit(ctx context.Context, store, query string) (*domain.StoreProduct, error) {
	products, err := f.catalog.SearchProducts(ctx, store, query, 1)
	if err != nil {
		return nil, fmt.Errorf("fallback search %s: %w", store, err)
	}
	if len(products) == 0 {
		return nil, nil
	}
	return StoreProductFromRaw(products[0]), nil
}

// StoreProductFromRaw converts a catalog row into a response side
func StoreProductFromRaw(p domain.RawProduct) *domain.StoreProduct {
	sp := &domain.StoreProduct{
		Name:         p.Name,
		Price:        p.Price,
		ImageURL:     p.ImageURL,
		PricePerUnit: p.PricePerUnit,
	}
	if q := ExtractQuantity(p.Name); q != nil {
		value := q.Value
		sp.Quantity = &value
	}
	return sp
}
