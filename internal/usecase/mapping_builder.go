package usecase

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/pricematch/backend/internal/domain"
)

// Builder defaults
const (
	DefaultBuildThreshold    = 0.7
	DefaultBuildQtyTolerance = 0.10
	DefaultFatTolerance      = 1.0
)

// BuildOptions controls one pairing pass
type BuildOptions struct {
	// Threshold is the exclusive lower bound a pair score must exceed
	Threshold         float64
	QuantityTolerance float64
	// FatTolerance is an absolute difference in percentage points
	FatTolerance float64
	TokenWeight  float64
	FuzzyWeight  float64
	Workers      int
	// Progress, when set, is called after each catalog A item is scored.
	// It may be called from several goroutines.
	Progress func(done, total int)
}

func (o BuildOptions) withDefaults() BuildOptions {
	if o.Threshold <= 0 {
		o.Threshold = DefaultBuildThreshold
	}
	if o.QuantityTolerance <= 0 {
		o.QuantityTolerance = DefaultBuildQtyTolerance
	}
	if o.FatTolerance <= 0 {
		o.FatTolerance = DefaultFatTolerance
	}
	if o.Workers <= 0 {
		o.Workers = runtime.GOMAXPROCS(0)
	}
	return o
}

// preparedProduct caches the per-product work done once before the
// pairwise pass.
type preparedProduct struct {
	raw        domain.RawProduct
	normalized string
	quantity   *domain.Quantity
	fat        *float64
}

// BuildMappings pairs every Tesco product with its single best Sainsbury's
// product.
//
// Every pair is compared, so cost grows with |tesco| x |sainsburys|.
// The output is deterministic for a given input order: the first best
// Sainsbury's item wins ties, and for duplicate generic names the highest
// confidence row (first on ties) is kept.
func BuildMappings(ctx context.Context, normalizer *Normalizer, tesco, sainsburys []domain.RawProduct, opts BuildOptions) ([]domain.ProductMapping, error) {
	opts = opts.withDefaults()
	scorer := NewScorer(ScorerConfig{
		TokenWeight:       opts.TokenWeight,
		FuzzyWeight:       opts.FuzzyWeight,
		QuantityTolerance: opts.QuantityTolerance,
	})

	left := prepareProducts(normalizer, tesco)
	right := prepareProducts(normalizer, sainsburys)

	results := make([]*domain.ProductMapping, len(left))
	var done atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)

	for i := range left {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = bestPair(scorer, left[i], right, opts)
			if opts.Progress != nil {
				opts.Progress(int(done.Add(1)), len(left))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return dedupeByGenericName(results), nil
}

func prepareProducts(normalizer *Normalizer, products []domain.RawProduct) []preparedProduct {
	prepared := make([]preparedProduct, 0, len(products))
	for _, p := range products {
		prepared = append(prepared, preparedProduct{
			raw:        p,
			normalized: normalizer.Normalize(p.Name),
			quantity:   ExtractQuantity(p.Name),
			fat:        ExtractFatPercent(p.Name),
		})
	}
	return prepared
}

// bestPair finds the highest scoring fat-compatible partner for item.
// Returns nil when nothing scores above the threshold.
func bestPair(scorer *Scorer, item preparedProduct, candidates []preparedProduct, opts BuildOptions) *domain.ProductMapping {
	if item.normalized == "" {
		return nil
	}

	bestIndex := -1
	bestScore := 0.0
	for j, c := range candidates {
		if c.normalized == "" || !FatCompatible(item.fat, c.fat, opts.FatTolerance) {
			continue
		}
		score := scorer.Score(item.normalized, item.quantity, c.normalized, c.quantity)
		if score > bestScore {
			bestScore = score
			bestIndex = j
		}
	}

	if bestIndex < 0 || bestScore <= opts.Threshold {
		return nil
	}

	match := candidates[bestIndex]
	m := &domain.ProductMapping{
		GenericName:     item.normalized,
		TescoName:       item.raw.Name,
		SainsburysName:  match.raw.Name,
		TescoPrice:      item.raw.Price,
		SainsburysPrice: match.raw.Price,
		Confidence:      bestScore,
	}
	if item.quantity != nil {
		value := item.quantity.Value
		m.TescoQuantity = &value
		m.TescoUnit = item.quantity.Unit
	}
	if match.quantity != nil {
		value := match.quantity.Value
		m.SainsburysQuantity = &value
		m.SainsburysUnit = match.quantity.Unit
	}
	return m
}

func dedupeByGenericName(results []*domain.ProductMapping) []domain.ProductMapping {
	index := make(map[string]int)
	mappings := make([]domain.ProductMapping, 0, len(results))

	for _, m := range results {
		if m == nil {
			continue
		}
		if at, ok := index[m.GenericName]; ok {
			if m.Confidence > mappings[at].Confidence {
				mappings[at] = *m
			}
			continue
		}
		index[m.GenericName] = len(mappings)
		mappings = append(mappings, *m)
	}

	return mappings
}

// BuildResult summarizes one builder run
type BuildResult struct {
	RunID      string
	Tesco      int
	Sainsburys int
	Mappings   []domain.ProductMapping
	Duration   time.Duration
	DryRun     bool
	Persisted  bool
}

// MappingBuilder runs the offline pairing job against the stores: it takes
// the run lock, loads both catalogs, pairs them and swaps the result in.
type MappingBuilder struct {
	catalog     domain.CatalogRepository
	mappings    domain.MappingRepository
	normalizers *NormalizerHolder
	logger      zerolog.Logger
}

// NewMappingBuilder creates a new mapping builder with dependencies
func NewMappingBuilder(
	catalog domain.CatalogRepository,
	mappings domain.MappingRepository,
	normalizers *NormalizerHolder,
	logger zerolog.Logger,
) *MappingBuilder {
	return &MappingBuilder{
		catalog:     catalog,
		mappings:    mappings,
		normalizers: normalizers,
		logger:      logger.With().Str("component", "mapping_builder").Logger(),
	}
}

// Run executes one build. A dry run scores and returns the mappings without
// taking the run lock or touching the mapping table.
//
// On failure the previous mapping table is left intact, the run is marked
// failed and the error is logged at error level. Runs are never retried.
func (b *MappingBuilder) Run(ctx context.Context, opts BuildOptions, dryRun bool) (*BuildResult, error) {
	start := time.Now()
	result := &BuildResult{DryRun: dryRun}

	if !dryRun {
		run, err := b.mappings.BeginBuild(ctx)
		if err != nil {
			return nil, err
		}
		result.RunID = run.ID
	}

	log := b.logger.With().Str("run_id", result.RunID).Bool("dry_run", dryRun).Logger()
	log.Info().Msg("mapping build started")

	mappings, err := b.build(ctx, result, opts)
	if err == nil && !dryRun {
		err = b.mappings.ReplaceMappings(ctx, result.RunID, mappings)
		result.Persisted = err == nil
	}

	if !dryRun {
		// The lock must be released even when ctx was cancelled mid-build.
		finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if ferr := b.mappings.FinishBuild(finishCtx, result.RunID, len(mappings), err); ferr != nil {
			log.Error().Err(ferr).Msg("failed to record build outcome")
			if err == nil {
				err = ferr
			}
		}
	}

	result.Duration = time.Since(start)
	if err != nil {
		log.Error().Err(err).Dur("duration", result.Duration).Msg("mapping build failed, previous mappings kept")
		return result, fmt.Errorf("mapping build %s: %w", result.RunID, err)
	}

	result.Mappings = mappings
	log.Info().
		Int("tesco", result.Tesco).
		Int("sainsburys", result.Sainsburys).
		Int("mappings", len(mappings)).
		Dur("duration", result.Duration).
		Msg("mapping build finished")

	return result, nil
}

func (b *MappingBuilder) build(ctx context.Context, result *BuildResult, opts BuildOptions) ([]domain.ProductMapping, error) {
	tesco, err := b.catalog.ListProducts(ctx, domain.StoreTesco)
	if err != nil {
		return nil, fmt.Errorf("load tesco catalog: %w", err)
	}
	sainsburys, err := b.catalog.ListProducts(ctx, domain.StoreSainsburys)
	if err != nil {
		return nil, fmt.Errorf("load sainsburys catalog: %w", err)
	}
	result.Tesco = len(tesco)
	result.Sainsburys = len(sainsburys)

	return BuildMappings(ctx, b.normalizers.Load(), tesco, sainsburys, opts)
}
