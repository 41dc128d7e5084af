package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pricematch/backend/internal/domain"
	"github.com/pricematch/backend/internal/validation"
)

var testLogger = zerolog.Nop()

// fakeCatalog is an in-memory domain.CatalogRepository
type fakeCatalog struct {
	mu        sync.Mutex
	products  map[string][]domain.RawProduct
	listErr   error
	searchErr error
	findErr   error
	findDelay time.Duration
	searches  []string
}

func newFakeCatalog(products ...domain.RawProduct) *fakeCatalog {
	c := &fakeCatalog{products: make(map[string][]domain.RawProduct)}
	for _, p := range products {
		c.products[p.Supermarket] = append(c.products[p.Supermarket], p)
	}
	return c
}

func (c *fakeCatalog) ListProducts(ctx context.Context, store string) ([]domain.RawProduct, error) {
	if c.listErr != nil {
		return nil, c.listErr
	}
	return c.products[store], nil
}

func (c *fakeCatalog) SearchProducts(ctx context.Context, store, query string, limit int) ([]domain.RawProduct, error) {
	c.mu.Lock()
	c.searches = append(c.searches, store+":"+query)
	c.mu.Unlock()
	if c.searchErr != nil {
		return nil, c.searchErr
	}

	var hits []domain.RawProduct
	for _, p := range c.products[store] {
		if strings.Contains(strings.ToLower(p.Name), strings.ToLower(query)) {
			hits = append(hits, p)
			if len(hits) == limit {
				break
			}
		}
	}
	return hits, nil
}

func (c *fakeCatalog) FindByName(ctx context.Context, store, name string) (*domain.RawProduct, error) {
	if c.findDelay > 0 {
		select {
		case <-time.After(c.findDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if c.findErr != nil {
		return nil, c.findErr
	}
	for _, p := range c.products[store] {
		if strings.EqualFold(p.Name, name) {
			return &p, nil
		}
	}
	return nil, domain.ErrProductNotFound
}

func (c *fakeCatalog) InsertProducts(ctx context.Context, products []domain.RawProduct) (int, error) {
	for _, p := range products {
		c.products[p.Supermarket] = append(c.products[p.Supermarket], p)
	}
	return len(products), nil
}

func (c *fakeCatalog) FindDuplicates(ctx context.Context, store string) ([]domain.DuplicateGroup, error) {
	return nil, nil
}

// fakeMappingRepo is an in-memory domain.MappingRepository
type fakeMappingRepo struct {
	mu         sync.Mutex
	mappings   []domain.ProductMapping
	version    string
	runs       []domain.BuildRun
	locked     bool
	listErr    error
	replaceErr error
	listCalls  int
}

func (r *fakeMappingRepo) ListMappings(ctx context.Context) (string, []domain.ProductMapping, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listCalls++
	if r.listErr != nil {
		return "", nil, r.listErr
	}
	return r.version, append([]domain.ProductMapping(nil), r.mappings...), nil
}

func (r *fakeMappingRepo) ReplaceMappings(ctx context.Context, version string, mappings []domain.ProductMapping) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.replaceErr != nil {
		return r.replaceErr
	}
	r.version = version
	r.mappings = append([]domain.ProductMapping(nil), mappings...)
	return nil
}

func (r *fakeMappingRepo) BeginBuild(ctx context.Context) (*domain.BuildRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.locked {
		return nil, domain.ErrBuildInProgress
	}
	r.locked = true
	run := domain.BuildRun{ID: "run-" + string(rune('a'+len(r.runs))), Status: domain.BuildRunning, StartedAt: time.Now()}
	r.runs = append(r.runs, run)
	return &run, nil
}

func (r *fakeMappingRepo) FinishBuild(ctx context.Context, runID string, rows int, buildErr error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.locked = false
	for i := range r.runs {
		if r.runs[i].ID != runID {
			continue
		}
		r.runs[i].Rows = rows
		r.runs[i].Status = domain.BuildSucceeded
		if buildErr != nil {
			r.runs[i].Status = domain.BuildFailed
			r.runs[i].Error = buildErr.Error()
		}
	}
	return nil
}

func (r *fakeMappingRepo) ReleaseBuildLock(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.locked {
		return 0, nil
	}
	r.locked = false
	return 1, nil
}

// fakeManualRepo is an in-memory domain.ManualMappingRepository
type fakeManualRepo struct {
	items   []domain.ManualMapping
	findErr error
	lookups int
}

func (r *fakeManualRepo) FindByQuery(ctx context.Context, normalizedQuery string) (*domain.ManualMapping, error) {
	r.lookups++
	if r.findErr != nil {
		return nil, r.findErr
	}
	for _, m := range r.items {
		for _, q := range m.Queries {
			if q == normalizedQuery {
				found := m
				return &found, nil
			}
		}
	}
	return nil, nil
}

func (r *fakeManualRepo) ListManualMappings(ctx context.Context) ([]domain.ManualMapping, error) {
	return r.items, nil
}

func (r *fakeManualRepo) GetManualMapping(ctx context.Context, id string) (*domain.ManualMapping, error) {
	for _, m := range r.items {
		if m.ID == id {
			found := m
			return &found, nil
		}
	}
	return nil, domain.ErrManualMappingNotFound
}

func (r *fakeManualRepo) CreateManualMapping(ctx context.Context, m *domain.ManualMapping) error {
	for _, existing := range r.items {
		for _, q := range existing.Queries {
			for _, nq := range m.Queries {
				if q == nq {
					return domain.ErrManualMappingConflict
				}
			}
		}
	}
	r.items = append(r.items, *m)
	return nil
}

func (r *fakeManualRepo) DeleteManualMapping(ctx context.Context, id string) error {
	for i, m := range r.items {
		if m.ID == id {
			r.items = append(r.items[:i], r.items[i+1:]...)
			return nil
		}
	}
	return domain.ErrManualMappingNotFound
}

// fakeSnapshots is a SnapshotSource that counts reads
type fakeSnapshots struct {
	snap  *domain.MappingSnapshot
	err   error
	calls int
}

func (s *fakeSnapshots) Snapshot() (*domain.MappingSnapshot, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.snap, nil
}

// fakeDisambiguator records calls and returns a canned outcome
type fakeDisambiguator struct {
	result *domain.SelectedCandidate
	err    error
	calls  int
	seen   []domain.MatchCandidate
}

func (d *fakeDisambiguator) Disambiguate(ctx context.Context, query string, candidates []domain.MatchCandidate) (*domain.SelectedCandidate, error) {
	d.calls++
	d.seen = candidates
	if d.err != nil {
		return nil, d.err
	}
	if d.result != nil {
		copied := *d.result
		return &copied, nil
	}
	return NewRuleBasedSelector().Disambiguate(ctx, query, candidates)
}

// fakeCache is an in-memory domain.CacheRepository
type fakeCache struct {
	data   map[string][]byte
	getErr error
	sets   int
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: make(map[string][]byte)}
}

func (c *fakeCache) Get(ctx context.Context, key string) ([]byte, error) {
	if c.getErr != nil {
		return nil, c.getErr
	}
	v, ok := c.data[key]
	if !ok {
		return nil, domain.ErrCacheMiss
	}
	return v, nil
}

func (c *fakeCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.sets++
	c.data[key] = value
	return nil
}

func (c *fakeCache) Delete(ctx context.Context, key string) error {
	delete(c.data, key)
	return nil
}

func (c *fakeCache) Exists(ctx context.Context, key string) (bool, error) {
	_, ok := c.data[key]
	return ok, nil
}

var errBoom = errors.New("boom")

func floatPtr(v float64) *float64 {
	return &v
}

func defaultHolder() *NormalizerHolder {
	return NewNormalizerHolder(NewNormalizer(DefaultRules()))
}

func newTestManualService(repo *fakeManualRepo) *ManualMappingService {
	return NewManualMappingService(repo, defaultHolder(), validation.New(), testLogger)
}

// milkMapping is a complete mapping row used across tests
func milkMapping() domain.ProductMapping {
	return domain.ProductMapping{
		GenericName:        "whole milk",
		TescoName:          "Tesco Whole Milk 2L",
		SainsburysName:     "Sainsbury's Whole Milk 4 Pints",
		TescoPrice:         "£1.65",
		SainsburysPrice:    "£1.85",
		TescoQuantity:      floatPtr(2000),
		TescoUnit:          domain.UnitMillilitres,
		SainsburysQuantity: floatPtr(2272),
		SainsburysUnit:     domain.UnitMillilitres,
		Confidence:         0.92,
	}
}
