package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pricematch/backend/internal/domain"
)

func TestTokenOverlap(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		candidate string
		want      float64
	}{
		{"identical", "whole milk", "whole milk", 1},
		{"all query tokens present", "milk", "whole milk", 1},
		{"directional", "whole milk", "milk", 0.5},
		{"substring in candidate", "skimmed", "semiskimmed milk", 1},
		{"candidate token inside query token", "semiskimmed", "skimmed milk", 1},
		{"short tokens exact only", "ab", "abc", 0},
		{"single typo in long token", "yoghurt", "greek yogurt", 1},
		{"disjoint", "bananas", "cheddar cheese", 0},
		{"empty query", "", "whole milk", 0},
		{"empty candidate", "milk", "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, TokenOverlap(tt.query, tt.candidate), 1e-9)
		})
	}
}

func TestFuzzyScore(t *testing.T) {
	assert.Equal(t, 1.0, FuzzyScore("whole milk", "whole milk"))
	assert.Equal(t, 0.0, FuzzyScore("", "whole milk"))
	assert.Equal(t, 0.0, FuzzyScore("", ""))
	assert.Equal(t, 0.0, FuzzyScore("a", "b"))

	near := FuzzyScore("cheddar cheese", "mature cheddar cheese")
	far := FuzzyScore("cheddar cheese", "bananas")
	assert.Greater(t, near, far)
	assert.GreaterOrEqual(t, far, 0.0)
	assert.LessOrEqual(t, near, 1.0)
}

func TestScorer(t *testing.T) {
	scorer := NewScorer(ScorerConfig{QuantityTolerance: 0.1})
	g := func(v float64) *domain.Quantity { return &domain.Quantity{Value: v, Unit: "g"} }

	t.Run("string against itself scores 1", func(t *testing.T) {
		assert.InDelta(t, 1.0, scorer.Score("beef mince", nil, "beef mince"), 1e-9)
		assert.InDelta(t, 1.0, scorer.Score("beef mince", g(500), "beef mince", g(500)), 1e-9)
	})

	t.Run("quantity mismatch zeroes a perfect name", func(t *testing.T) {
		assert.Equal(t, 1.0, scorer.NameScore("beef mince", "beef mince"))
		assert.Equal(t, 0.0, scorer.Score("beef mince", g(500), "beef mince", g(1000)))
	})

	t.Run("unknown quantity never lowers the name score", func(t *testing.T) {
		name := scorer.NameScore("beef mince", "lean beef mince")
		assert.Equal(t, name, scorer.Score("beef mince", nil, "lean beef mince", g(500)))
		assert.Equal(t, name, scorer.Score("beef mince", g(500), "lean beef mince", nil))
		assert.Equal(t, name, scorer.Score("beef mince", g(500), "lean beef mince"))
	})

	t.Run("best candidate side counts", func(t *testing.T) {
		score := scorer.Score("beef mince", g(500), "beef mince", g(1000), g(500))
		assert.InDelta(t, 1.0, score, 1e-9)
	})

	t.Run("disjoint vocabularies score near zero", func(t *testing.T) {
		assert.Less(t, scorer.Score("bananas", nil, "cheddar cheese"), 0.1)
	})

	t.Run("empty query scores zero", func(t *testing.T) {
		assert.Equal(t, 0.0, scorer.Score("", nil, "beef mince"))
	})

	t.Run("token overlap dominates fuzzy similarity", func(t *testing.T) {
		shared := scorer.NameScore("milk", "whole milk")
		lookalike := scorer.NameScore("milk", "silk")
		assert.Greater(t, shared, lookalike)
	})

	t.Run("custom weights are normalized", func(t *testing.T) {
		custom := NewScorer(ScorerConfig{TokenWeight: 7, FuzzyWeight: 3})
		assert.InDelta(t, scorer.NameScore("milk", "whole milk"), custom.NameScore("milk", "whole milk"), 1e-9)
	})
}
