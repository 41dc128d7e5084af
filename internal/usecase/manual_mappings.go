package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pricematch/backend/internal/domain"
	"github.com/pricematch/backend/internal/validation"
)

// DefaultManualConfidence applies to overrides created without a confidence
const DefaultManualConfidence = 1.0

// ManualMappingInput is the admin payload for a new override
type ManualMappingInput struct {
	Queries     []string            `json:"queries" validate:"required,min=1,dive,required"`
	GenericName string              `json:"generic_name"`
	Tesco       domain.StoreProduct `json:"tesco"`
	Sainsburys  domain.StoreProduct `json:"sainsburys"`
	Confidence  *float64            `json:"confidence" validate:"omitempty,gt=0,lte=1"`
	Message     string              `json:"message"`
}

// ManualMappingService manages curated overrides. Queries are stored in
// normalized form so lookups are exact set membership.
type ManualMappingService struct {
	repo        domain.ManualMappingRepository
	normalizers *NormalizerHolder
	validator   *validation.Validator
	logger      zerolog.Logger
}

// NewManualMappingService creates a new manual mapping service with dependencies
func NewManualMappingService(
	repo domain.ManualMappingRepository,
	normalizers *NormalizerHolder,
	validator *validation.Validator,
	logger zerolog.Logger,
) *ManualMappingService {
	return &ManualMappingService{
		repo:        repo,
		normalizers: normalizers,
		validator:   validator,
		logger:      logger.With().Str("component", "manual_mappings").Logger(),
	}
}

// Lookup finds the override owning normalizedQuery. Returns nil, nil on a
// miss. Never cached: every request reads the store.
func (s *ManualMappingService) Lookup(ctx context.Context, normalizedQuery string) (*domain.ManualMapping, error) {
	if normalizedQuery == "" {
		return nil, nil
	}
	m, err := s.repo.FindByQuery(ctx, normalizedQuery)
	if err != nil {
		return nil, fmt.Errorf("manual mapping lookup: %w", err)
	}
	if m != nil && m.Confidence == 0 {
		m.Confidence = DefaultManualConfidence
	}
	return m, nil
}

// Create validates and stores a new override
func (s *ManualMappingService) Create(ctx context.Context, input ManualMappingInput) (*domain.ManualMapping, error) {
	if err := s.validator.Validate(input); err != nil {
		return nil, err
	}

	normalizer := s.normalizers.Load()
	queries := normalizeQueries(normalizer, input.Queries)
	if len(queries) == 0 {
		return nil, fmt.Errorf("%w: queries normalize to nothing", domain.ErrInvalidRequest)
	}

	genericName := normalizer.Normalize(input.GenericName)
	if genericName == "" {
		genericName = queries[0]
	}

	confidence := DefaultManualConfidence
	if input.Confidence != nil {
		confidence = *input.Confidence
	}

	now := time.Now().UTC()
	m := &domain.ManualMapping{
		ID:          uuid.NewString(),
		Queries:     queries,
		GenericName: genericName,
		Tesco:       input.Tesco,
		Sainsburys:  input.Sainsburys,
		Confidence:  confidence,
		Message:     input.Message,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repo.CreateManualMapping(ctx, m); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("id", m.ID).
		Strs("queries", m.Queries).
		Msg("manual mapping created")

	return m, nil
}

// List returns all overrides
func (s *ManualMappingService) List(ctx context.Context) ([]domain.ManualMapping, error) {
	return s.repo.ListManualMappings(ctx)
}

// Get returns one override by id
func (s *ManualMappingService) Get(ctx context.Context, id string) (*domain.ManualMapping, error) {
	return s.repo.GetManualMapping(ctx, id)
}

// Delete removes an override and its queries
func (s *ManualMappingService) Delete(ctx context.Context, id string) error {
	if err := s.repo.DeleteManualMapping(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Str("id", id).Msg("manual mapping deleted")
	return nil
}

// normalizeQueries normalizes, drops empties and dedupes, keeping order
func normalizeQueries(normalizer *Normalizer, raw []string) []string {
	seen := make(map[string]bool, len(raw))
	queries := make([]string, 0, len(raw))
	for _, q := range raw {
		n := normalizer.Normalize(q)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		queries = append(queries, n)
	}
	return queries
}
