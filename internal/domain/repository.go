package domain

import (
	"context"
	"time"
)

// CacheRepository defines the interface for caching operations
type CacheRepository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// CatalogRepository gives read access to the scraped retailer catalogs
type CatalogRepository interface {
	ListProducts(ctx context.Context, store string) ([]RawProduct, error)
	// SearchProducts is a case-insensitive literal substring search on name
	SearchProducts(ctx context.Context, store, query string, limit int) ([]RawProduct, error)
	// FindByName is a case-insensitive exact name lookup
	FindByName(ctx context.Context, store, name string) (*RawProduct, error)
	InsertProducts(ctx context.Context, products []RawProduct) (int, error)
	FindDuplicates(ctx context.Context, store string) ([]DuplicateGroup, error)
}

// MappingRepository persists the generated mapping table
type MappingRepository interface {
	// ListMappings returns the live table and the version it was stored
	// under, read together; an empty table has an empty version
	ListMappings(ctx context.Context) (string, []ProductMapping, error)
	// ReplaceMappings swaps the whole table and its version atomically
	ReplaceMappings(ctx context.Context, version string, mappings []ProductMapping) error
	BeginBuild(ctx context.Context) (*BuildRun, error)
	FinishBuild(ctx context.Context, runID string, rows int, buildErr error) error
	ReleaseBuildLock(ctx context.Context) (int, error)
}

// ManualMappingRepository stores curated overrides
type ManualMappingRepository interface {
	// FindByQuery returns nil, nil when no mapping owns the query
	FindByQuery(ctx context.Context, normalizedQuery string) (*ManualMapping, error)
	ListManualMappings(ctx context.Context) ([]ManualMapping, error)
	GetManualMapping(ctx context.Context, id string) (*ManualMapping, error)
	CreateManualMapping(ctx context.Context, m *ManualMapping) error
	DeleteManualMapping(ctx context.Context, id string) error
}

// Disambiguator picks one of the ranked candidates for a query
type Disambiguator interface {
	Disambiguate(ctx context.Context, query string, candidates []MatchCandidate) (*SelectedCandidate, error)
}
