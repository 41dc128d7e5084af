package usecase

import (
	"sort"

	"github.com/pricematch/backend/internal/domain"
)

// Ranking defaults
const (
	DefaultTopK              = 5
	DefaultConfidenceFloor   = 0.3
	DefaultQueryQtyTolerance = 0.20
)

// RankerConfig holds configuration for the candidate ranker
type RankerConfig struct {
	TopK              int
	ConfidenceFloor   float64
	QuantityTolerance float64
	TokenWeight       float64
	FuzzyWeight       float64
}

// Ranker scores every mapping row against a normalized query and keeps the
// best few.
type Ranker struct {
	scorer *Scorer
	topK   int
	floor  float64
}

// NewRanker creates a new ranker with configuration
func NewRanker(config RankerConfig) *Ranker {
	topK := config.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}

	floor := config.ConfidenceFloor
	if floor <= 0 {
		floor = DefaultConfidenceFloor
	}

	tolerance := config.QuantityTolerance
	if tolerance <= 0 {
		tolerance = DefaultQueryQtyTolerance
	}

	return &Ranker{
		scorer: NewScorer(ScorerConfig{
			TokenWeight:       config.TokenWeight,
			FuzzyWeight:       config.FuzzyWeight,
			QuantityTolerance: tolerance,
		}),
		topK:  topK,
		floor: floor,
	}
}

// Floor returns the confidence below which ranked results are discarded
func (r *Ranker) Floor() float64 {
	return r.floor
}

// Rank returns at most k candidates ordered by descending score. Rows with
// equal scores keep their snapshot order. Zero-score rows are never returned.
//
// Candidate quantities come from the stored mapping columns; the query
// quantity is extracted from the raw query by the caller.
func (r *Ranker) Rank(normalizedQuery string, queryQty *domain.Quantity, mappings []domain.ProductMapping) []domain.MatchCandidate {
	if normalizedQuery == "" || len(mappings) == 0 {
		return nil
	}

	scored := make([]domain.MatchCandidate, 0, len(mappings))
	for _, m := range mappings {
		score := r.scorer.Score(normalizedQuery, queryQty, m.GenericName, m.TescoQty(), m.SainsburysQty())
		if score <= 0 {
			continue
		}
		scored = append(scored, domain.MatchCandidate{ProductMapping: m, Score: score})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if len(scored) > r.topK {
		scored = scored[:r.topK]
	}
	return scored
}
