package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/pricematch/backend/internal/domain"
)

// Match service defaults
const (
	DefaultResultCacheTTL  = 24 * time.Hour
	DefaultBackfillTimeout = 2 * time.Second
)

// Response messages
const (
	MessageNoMatch  = "No matching product found"
	MessageFallback = "Closest catalog match, low confidence"
)

// MatchServiceConfig holds configuration for the match service
type MatchServiceConfig struct {
	ResultCacheTTL  time.Duration
	BackfillTimeout time.Duration
}

// MatchService answers match requests by walking a fixed chain of states:
// ManualCheck -> Ranking -> Disambiguation -> Fallback -> Respond.
// Every state runs at most once per request.
type MatchService struct {
	normalizers *NormalizerHolder
	manual      *ManualMappingService
	snapshots   SnapshotSource
	ranker      *Ranker
	delegate    domain.Disambiguator
	fallback    *FallbackSearch
	catalog     domain.CatalogRepository
	cache       domain.CacheRepository
	cacheTTL    time.Duration
	backfillTTL time.Duration
	logger      zerolog.Logger
}

// MatchServiceDeps groups the collaborators of the match service
type MatchServiceDeps struct {
	Normalizers *NormalizerHolder
	Manual      *ManualMappingService
	Snapshots   SnapshotSource
	Ranker      *Ranker
	Delegate    domain.Disambiguator
	Fallback    *FallbackSearch
	Catalog     domain.CatalogRepository
	// Cache stores disambiguation outcomes; nil disables result caching
	Cache domain.CacheRepository
}

// NewMatchService creates a new match service with dependencies
func NewMatchService(deps MatchServiceDeps, config MatchServiceConfig, logger zerolog.Logger) *MatchService {
	cacheTTL := config.ResultCacheTTL
	if cacheTTL <= 0 {
		cacheTTL = DefaultResultCacheTTL
	}

	backfillTTL := config.BackfillTimeout
	if backfillTTL <= 0 {
		backfillTTL = DefaultBackfillTimeout
	}

	return &MatchService{
		normalizers: deps.Normalizers,
		manual:      deps.Manual,
		snapshots:   deps.Snapshots,
		ranker:      deps.Ranker,
		delegate:    deps.Delegate,
		fallback:    deps.Fallback,
		catalog:     deps.Catalog,
		cache:       deps.Cache,
		cacheTTL:    cacheTTL,
		backfillTTL: backfillTTL,
		logger:      logger.With().Str("component", "match_service").Logger(),
	}
}

type matchState int

const (
	stateManualCheck matchState = iota
	stateRanking
	stateDisambiguation
	stateFallback
	stateRespond
)

func (s matchState) String() string {
	switch s {
	case stateManualCheck:
		return "manual_check"
	case stateRanking:
		return "ranking"
	case stateDisambiguation:
		return "disambiguation"
	case stateFallback:
		return "fallback"
	case stateRespond:
		return "respond"
	}
	return "unknown"
}

// matchRun carries per-request state between steps
type matchRun struct {
	raw        string
	normalized string
	quantity   *domain.Quantity
	snapshot   *domain.MappingSnapshot
	candidates []domain.MatchCandidate
	selected   *domain.SelectedCandidate
	message    string
}

// Match resolves one shopping-list item.
//
// A no-match is a successful response with a nil candidate. Errors are
// returned for invalid input (ErrInvalidRequest), a never-loaded mapping
// cache (ErrCacheUnavailable) and delegate failures (ErrDisambiguationFailed).
func (s *MatchService) Match(ctx context.Context, request *domain.MatchRequest) (*domain.MatchResponse, error) {
	if request == nil || strings.TrimSpace(request.ItemName) == "" {
		return nil, fmt.Errorf("%w: itemName is required", domain.ErrInvalidRequest)
	}

	run := &matchRun{
		raw:        request.ItemName,
		normalized: s.normalizers.Load().Normalize(request.ItemName),
		quantity:   ExtractQuantity(request.ItemName),
	}

	state := stateManualCheck
	for state != stateRespond {
		next, err := s.step(ctx, state, run)
		if err != nil {
			return nil, err
		}
		s.logger.Debug().
			Str("query", run.raw).
			Stringer("from", state).
			Stringer("to", next).
			Msg("match state transition")
		state = next
	}

	return s.respond(ctx, run), nil
}

func (s *MatchService) step(ctx context.Context, state matchState, run *matchRun) (matchState, error) {
	switch state {
	case stateManualCheck:
		return s.manualCheck(ctx, run)
	case stateRanking:
		return s.rank(run)
	case stateDisambiguation:
		return s.disambiguate(ctx, run)
	case stateFallback:
		return s.searchFallback(ctx, run)
	}
	return stateRespond, nil
}

func (s *MatchService) manualCheck(ctx context.Context, run *matchRun) (matchState, error) {
	m, err := s.manual.Lookup(ctx, run.normalized)
	if err != nil {
		return stateRespond, err
	}
	if m == nil {
		return stateRanking, nil
	}

	tesco, sainsburys := m.Tesco, m.Sainsburys
	run.selected = &domain.SelectedCandidate{
		GenericName: m.GenericName,
		Tesco:       &tesco,
		Sainsburys:  &sainsburys,
		Confidence:  m.Confidence,
		Reason:      "manual mapping",
		Source:      domain.SourceManual,
	}
	run.message = m.Message
	return stateRespond, nil
}

func (s *MatchService) rank(run *matchRun) (matchState, error) {
	snap, err := s.snapshots.Snapshot()
	if err != nil {
		return stateRespond, err
	}
	run.snapshot = snap
	run.candidates = s.ranker.Rank(run.normalized, run.quantity, snap.Mappings)

	if len(run.candidates) == 0 || run.candidates[0].Score < s.ranker.Floor() {
		return stateFallback, nil
	}
	return stateDisambiguation, nil
}

func (s *MatchService) disambiguate(ctx context.Context, run *matchRun) (matchState, error) {
	key := resultCacheKey(run.snapshot.Version, run.normalized, run.quantity)
	if cached := s.cachedSelection(ctx, key); cached != nil {
		run.selected = cached
		return stateRespond, nil
	}

	candidates, err := ValidateCandidates(run.candidates)
	if err != nil {
		return stateFallback, nil
	}

	selected, err := s.delegate.Disambiguate(ctx, run.raw, candidates)
	if errors.Is(err, domain.ErrNoValidCandidates) {
		return stateFallback, nil
	}
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("query", run.raw).
			Strs("candidates", candidateNames(candidates)).
			Msg("disambiguation failed")
		return stateRespond, fmt.Errorf("%w: %v", domain.ErrDisambiguationFailed, err)
	}

	selected.Source = domain.SourceRanked
	run.selected = selected
	s.storeSelection(ctx, key, selected)
	return stateRespond, nil
}

func (s *MatchService) searchFallback(ctx context.Context, run *matchRun) (matchState, error) {
	selected, err := s.fallback.Search(ctx, run.raw, run.normalized)
	if err != nil {
		return stateRespond, err
	}
	run.selected = selected
	if selected == nil {
		run.message = MessageNoMatch
	} else {
		run.message = MessageFallback
	}
	return stateRespond, nil
}

func (s *MatchService) respond(ctx context.Context, run *matchRun) *domain.MatchResponse {
	response := &domain.MatchResponse{
		Success: true,
		Message: run.message,
	}
	if run.selected == nil {
		return response
	}

	s.backfill(ctx, run.selected)
	run.selected.PriceComparison = ComparePrices(run.selected.Tesco, run.selected.Sainsburys)

	response.SelectedCandidate = run.selected
	response.Confidence = run.selected.Confidence
	return response
}

// backfill fills in images and unit prices from the raw catalogs. It is
// bounded by the backfill timeout; failures leave the fields empty.
func (s *MatchService) backfill(ctx context.Context, selected *domain.SelectedCandidate) {
	ctx, cancel := context.WithTimeout(ctx, s.backfillTTL)
	defer cancel()

	var g errgroup.Group
	sides := map[string]*domain.StoreProduct{
		domain.StoreTesco:      selected.Tesco,
		domain.StoreSainsburys: selected.Sainsburys,
	}
	for store, side := range sides {
		if side == nil || side.Name == "" || (side.ImageURL != "" && side.PricePerUnit != "") {
			continue
		}
		g.Go(func() error {
			product, err := s.catalog.FindByName(ctx, store, side.Name)
			if err != nil {
				return fmt.Errorf("%s %q: %w", store, side.Name, err)
			}
			if side.ImageURL == "" {
				side.ImageURL = product.ImageURL
			}
			if side.PricePerUnit == "" {
				side.PricePerUnit = product.PricePerUnit
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		event := s.logger.Warn()
		if errors.Is(err, domain.ErrProductNotFound) {
			event = s.logger.Debug()
		}
		event.Err(err).Str("generic_name", selected.GenericName).Msg("backfill incomplete")
	}
}

func (s *MatchService) cachedSelection(ctx context.Context, key string) *domain.SelectedCandidate {
	if s.cache == nil {
		return nil
	}
	data, err := s.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, domain.ErrCacheMiss) {
			s.logger.Warn().Err(err).Str("key", key).Msg("result cache read failed")
		}
		return nil
	}

	var selected domain.SelectedCandidate
	if err := json.Unmarshal(data, &selected); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("discarding corrupt cached result")
		return nil
	}
	return &selected
}

func (s *MatchService) storeSelection(ctx context.Context, key string, selected *domain.SelectedCandidate) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(selected)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, data, s.cacheTTL); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("result cache write failed")
	}
}

// resultCacheKey scopes cached outcomes to one mapping snapshot and to the
// query's pack size, which normalization strips but ranking depends on.
// Format: "match:{version}:{quantity|none}:{normalized_query}"
func resultCacheKey(version, normalized string, quantity *domain.Quantity) string {
	size := "none"
	if quantity != nil {
		size = strconv.FormatFloat(quantity.Value, 'f', -1, 64) + quantity.Unit
	}
	return fmt.Sprintf("match:%s:%s:%s", version, size, normalized)
}

func candidateNames(candidates []domain.MatchCandidate) []string {
	names := make([]string, len(candidates))
	for i, c := range candidates {
		names[i] = c.GenericName
	}
	return names
}
