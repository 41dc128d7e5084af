package usecase

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/pricematch/backend/internal/domain"
)

// DefaultRefreshInterval is how often the mapping table is reloaded
const DefaultRefreshInterval = 10 * time.Minute

// initialVersion labels a table that no build has stored, such as an empty one
const initialVersion = "initial"

// SnapshotSource hands out the current mapping snapshot
type SnapshotSource interface {
	Snapshot() (*domain.MappingSnapshot, error)
}

// MappingCache keeps an immutable in-memory copy of the mapping table.
// Readers get the latest published snapshot without locking; refreshes
// build a new snapshot and swap the pointer.
type MappingCache struct {
	repo     domain.MappingRepository
	interval time.Duration
	logger   zerolog.Logger

	current atomic.Pointer[domain.MappingSnapshot]
	// refreshMu serializes the periodic refresh with forced ones
	refreshMu sync.Mutex
}

// NewMappingCache creates an empty cache; call Refresh or Run to load it
func NewMappingCache(repo domain.MappingRepository, interval time.Duration, logger zerolog.Logger) *MappingCache {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	return &MappingCache{
		repo:     repo,
		interval: interval,
		logger:   logger.With().Str("component", "mapping_cache").Logger(),
	}
}

// Snapshot returns the latest snapshot, or ErrCacheUnavailable if the
// table has never loaded successfully.
func (c *MappingCache) Snapshot() (*domain.MappingSnapshot, error) {
	snap := c.current.Load()
	if snap == nil {
		return nil, domain.ErrCacheUnavailable
	}
	return snap, nil
}

// Refresh reloads the mapping table and publishes it. On failure the
// previous snapshot stays in place.
func (c *MappingCache) Refresh(ctx context.Context) (*domain.MappingSnapshot, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	version, mappings, err := c.repo.ListMappings(ctx)
	if err != nil {
		return nil, fmt.Errorf("load mappings: %w", err)
	}
	if version == "" {
		version = initialVersion
	}

	snap := &domain.MappingSnapshot{
		Version:  version,
		Mappings: mappings,
		LoadedAt: time.Now(),
	}
	c.current.Store(snap)

	c.logger.Info().
		Str("version", snap.Version).
		Int("mappings", len(snap.Mappings)).
		Msg("mapping snapshot refreshed")

	return snap, nil
}

// Run loads the table immediately and then on every interval until ctx is
// done. It is meant to be the only background writer.
func (c *MappingCache) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		if _, err := c.Refresh(ctx); err != nil && ctx.Err() == nil {
			c.logger.Error().Err(err).Msg("mapping refresh failed, serving previous snapshot")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
