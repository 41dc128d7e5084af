package usecase

import (
	"context"
	"fmt"

	"github.com/pricematch/backend/internal/domain"
)

// ValidateCandidates keeps only candidates that carry a name, a price and a
// quantity for both retailers. It fails with ErrNoValidCandidates when
// nothing survives, so delegates are never called with empty input.
func ValidateCandidates(candidates []domain.MatchCandidate) ([]domain.MatchCandidate, error) {
	valid := make([]domain.MatchCandidate, 0, len(candidates))
	for _, c := range candidates {
		if isCompleteCandidate(c) {
			valid = append(valid, c)
		}
	}
	if len(valid) == 0 {
		return nil, domain.ErrNoValidCandidates
	}
	return valid, nil
}

func isCompleteCandidate(c domain.MatchCandidate) bool {
	return c.TescoName != "" && c.TescoPrice != "" && c.TescoQuantity != nil &&
		c.SainsburysName != "" && c.SainsburysPrice != "" && c.SainsburysQuantity != nil
}

// NewSelection turns a ranked candidate into the response payload
func NewSelection(c domain.MatchCandidate, confidence float64, reason string) *domain.SelectedCandidate {
	return &domain.SelectedCandidate{
		GenericName: c.GenericName,
		Tesco: &domain.StoreProduct{
			Name:     c.TescoName,
			Price:    c.TescoPrice,
			Quantity: c.TescoQuantity,
		},
		Sainsburys: &domain.StoreProduct{
			Name:     c.SainsburysName,
			Price:    c.SainsburysPrice,
			Quantity: c.SainsburysQuantity,
		},
		Confidence: confidence,
		Reason:     reason,
		Source:     domain.SourceRanked,
	}
}

// RuleBasedSelector is a deterministic Disambiguator: the highest score
// wins, ties go to the shortest generic name, then to input order.
type RuleBasedSelector struct{}

// NewRuleBasedSelector creates a rule-based selector
func NewRuleBasedSelector() *RuleBasedSelector {
	return &RuleBasedSelector{}
}

// Disambiguate implements domain.Disambiguator
func (s *RuleBasedSelector) Disambiguate(ctx context.Context, query string, candidates []domain.MatchCandidate) (*domain.SelectedCandidate, error) {
	valid, err := ValidateCandidates(candidates)
	if err != nil {
		return nil, err
	}

	best := valid[0]
	for _, c := range valid[1:] {
		if c.Score > best.Score ||
			(c.Score == best.Score && len(c.GenericName) < len(best.GenericName)) {
			best = c
		}
	}

	reason := fmt.Sprintf("highest scoring of %d candidates for %q", len(valid), query)
	return NewSelection(best, best.Score, reason), nil
}
