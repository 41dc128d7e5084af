package usecase

import (
	"math"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/hbollon/go-edlib"

	"github.com/pricematch/backend/internal/domain"
)

// Default name score weights: shared vocabulary counts for more than
// surface character similarity.
const (
	defaultTokenWeight = 0.7
	defaultFuzzyWeight = 0.3
)

// Token matching limits
const (
	minSubstringTokenLen = 3 // shorter tokens must match exactly
	minFuzzyTokenLen     = 5 // tokens this long may differ by one edit
	fuzzyEditDistance    = 1
)

// ScorerConfig holds the tunables of the similarity scorer
type ScorerConfig struct {
	TokenWeight       float64
	FuzzyWeight       float64
	QuantityTolerance float64
}

// Scorer combines token overlap, fuzzy string similarity and quantity
// compatibility into one score in [0,1].
type Scorer struct {
	tokenWeight       float64
	fuzzyWeight       float64
	quantityTolerance float64
}

// NewScorer creates a scorer, filling zero weights with the defaults
func NewScorer(config ScorerConfig) *Scorer {
	tokenWeight := config.TokenWeight
	fuzzyWeight := config.FuzzyWeight
	if tokenWeight <= 0 && fuzzyWeight <= 0 {
		tokenWeight = defaultTokenWeight
		fuzzyWeight = defaultFuzzyWeight
	}

	return &Scorer{
		tokenWeight:       math.Max(tokenWeight, 0),
		fuzzyWeight:       math.Max(fuzzyWeight, 0),
		quantityTolerance: config.QuantityTolerance,
	}
}

// Score rates a normalized candidate name against a normalized query.
//
// The candidate may expose several quantities (one per retailer). The best
// known one counts; a candidate with no known quantity is not penalized.
// A quantity outside tolerance zeroes the result regardless of the name.
func (s *Scorer) Score(queryName string, queryQty *domain.Quantity, candidateName string, candidateQtys ...*domain.Quantity) float64 {
	name := s.NameScore(queryName, candidateName)
	if name == 0 {
		return 0
	}
	return name * s.quantityScore(queryQty, candidateQtys)
}

// NameScore blends token overlap and fuzzy similarity.
//
// Token overlap is directional (query -> candidate), so NameScore is not
// symmetric: a short query fully contained in a long candidate name scores
// high, the reverse does not.
func (s *Scorer) NameScore(queryName, candidateName string) float64 {
	total := s.tokenWeight + s.fuzzyWeight
	if total == 0 {
		return 0
	}
	score := s.tokenWeight*TokenOverlap(queryName, candidateName) +
		s.fuzzyWeight*FuzzyScore(queryName, candidateName)
	return score / total
}

func (s *Scorer) quantityScore(queryQty *domain.Quantity, candidateQtys []*domain.Quantity) float64 {
	if queryQty == nil {
		return 1
	}
	best, known := 0.0, false
	for _, q := range candidateQtys {
		if q == nil {
			continue
		}
		known = true
		if score := QuantityScore(queryQty, q, s.quantityTolerance); score > best {
			best = score
		}
	}
	if !known {
		return 1
	}
	return best
}

// TokenOverlap returns the fraction of query tokens found among the
// candidate tokens. Matching tolerates substrings and single typos in long
// tokens. An empty query has no overlap.
func TokenOverlap(query, candidate string) float64 {
	queryTokens := strings.Fields(query)
	if len(queryTokens) == 0 {
		return 0
	}
	candidateTokens := strings.Fields(candidate)

	matched := 0
	for _, qt := range queryTokens {
		for _, ct := range candidateTokens {
			if tokensMatch(qt, ct) {
				matched++
				break
			}
		}
	}

	return float64(matched) / float64(len(queryTokens))
}

// tokensMatch checks exact, substring and fuzzy equality of two tokens
func tokensMatch(a, b string) bool {
	if a == b {
		return true
	}
	if len(a) >= minSubstringTokenLen && strings.Contains(b, a) {
		return true
	}
	if len(b) >= minSubstringTokenLen && strings.Contains(a, b) {
		return true
	}
	return fuzzyTokenMatch(a, b)
}

// fuzzyTokenMatch allows one edit between long tokens ("yoghurt"/"yogurt")
func fuzzyTokenMatch(a, b string) bool {
	la, lb := len([]rune(a)), len([]rune(b))
	if la < minFuzzyTokenLen || lb < minFuzzyTokenLen {
		return false
	}
	if diff := la - lb; diff > fuzzyEditDistance || -diff > fuzzyEditDistance {
		return false
	}
	return levenshtein.ComputeDistance(a, b) <= fuzzyEditDistance
}

// FuzzyScore is the Sørensen–Dice coefficient over character bigrams.
// Identical non-empty strings score 1; empty input scores 0.
func FuzzyScore(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	if len([]rune(a)) < 2 || len([]rune(b)) < 2 {
		return 0
	}

	score := float64(edlib.SorensenDiceCoefficient(a, b, 2))
	if math.IsNaN(score) {
		return 0
	}
	return math.Min(math.Max(score, 0), 1)
}
