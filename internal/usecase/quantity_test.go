package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pricematch/backend/internal/domain"
)

func TestExtractQuantity(t *testing.T) {
	tests := []struct {
		input string
		want  *domain.Quantity
	}{
		{"Whole Milk 2L", &domain.Quantity{Value: 2000, Unit: "ml"}},
		{"1kg", &domain.Quantity{Value: 1000, Unit: "g"}},
		{"1000g", &domain.Quantity{Value: 1000, Unit: "g"}},
		{"Beef Mince 500 G", &domain.Quantity{Value: 500, Unit: "g"}},
		{"Cola 330ml", &domain.Quantity{Value: 330, Unit: "ml"}},
		{"Juice 1.5 litres", &domain.Quantity{Value: 1500, Unit: "ml"}},
		{"Juice 1 liter", &domain.Quantity{Value: 1000, Unit: "ml"}},
		{"Milk 2 pints", &domain.Quantity{Value: 1136, Unit: "ml"}},
		{"Milk 1 Pint", &domain.Quantity{Value: 568, Unit: "ml"}},
		{"Flour 1.1kg", &domain.Quantity{Value: 1100, Unit: "g"}},
		{"Pasta 250 grams", &domain.Quantity{Value: 250, Unit: "g"}},
		{"Bananas 6 pieces", nil},
		{"Eggs pack of 12", nil},
		{"2 large eggs", nil},
		{"", nil},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := ExtractQuantity(tt.input)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractQuantityCanonicalUnits(t *testing.T) {
	kg := ExtractQuantity("1kg")
	g := ExtractQuantity("1000g")
	require.NotNil(t, kg)
	require.NotNil(t, g)
	assert.Equal(t, *g, *kg)

	pints := ExtractQuantity("2 pints")
	require.NotNil(t, pints)
	assert.Equal(t, 1136.0, pints.Value)
	assert.Equal(t, 2*MillilitresPerPint, pints.Value)
}

func TestExtractFatPercent(t *testing.T) {
	got := ExtractFatPercent("Beef Mince 5% Fat 500g")
	require.NotNil(t, got)
	assert.Equal(t, 5.0, *got)

	got = ExtractFatPercent("Lean Mince 12.5 % fat")
	require.NotNil(t, got)
	assert.Equal(t, 12.5, *got)

	assert.Nil(t, ExtractFatPercent("Beef Mince 500g"))
}

func TestQuantityScore(t *testing.T) {
	g := func(v float64) *domain.Quantity { return &domain.Quantity{Value: v, Unit: "g"} }
	ml := func(v float64) *domain.Quantity { return &domain.Quantity{Value: v, Unit: "ml"} }

	t.Run("unknown side scores 1", func(t *testing.T) {
		assert.Equal(t, 1.0, QuantityScore(nil, g(500), 0.1))
		assert.Equal(t, 1.0, QuantityScore(g(500), nil, 0.1))
		assert.Equal(t, 1.0, QuantityScore(nil, nil, 0.1))
	})

	t.Run("different units score 1", func(t *testing.T) {
		assert.Equal(t, 1.0, QuantityScore(g(500), ml(2000), 0.1))
	})

	t.Run("equal quantities score 1", func(t *testing.T) {
		assert.Equal(t, 1.0, QuantityScore(g(500), g(500), 0.1))
	})

	t.Run("inside tolerance scales linearly", func(t *testing.T) {
		// 50/1000 = 5%, half of a 10% band
		assert.InDelta(t, 0.5, QuantityScore(g(950), g(1000), 0.1), 1e-9)
		assert.InDelta(t, 0.5, QuantityScore(g(1000), g(950), 0.1), 1e-9)
	})

	t.Run("at or beyond tolerance scores 0", func(t *testing.T) {
		assert.Equal(t, 0.0, QuantityScore(g(900), g(1000), 0.1))
		assert.Equal(t, 0.0, QuantityScore(g(500), g(1000), 0.1))
	})

	t.Run("whole milk 2L against 4 pints at 20%", func(t *testing.T) {
		score := QuantityScore(ml(2000), ml(2272), 0.2)
		assert.Greater(t, score, 0.0)
		assert.Less(t, score, 1.0)
	})

	t.Run("zero tolerance requires equality", func(t *testing.T) {
		assert.Equal(t, 1.0, QuantityScore(g(500), g(500), 0))
		assert.Equal(t, 0.0, QuantityScore(g(500), g(501), 0))
	})
}

func TestFatCompatible(t *testing.T) {
	five, twelve, fivePointFive := 5.0, 12.0, 5.5

	assert.True(t, FatCompatible(nil, &five, 1))
	assert.True(t, FatCompatible(&five, nil, 1))
	assert.True(t, FatCompatible(&five, &fivePointFive, 1))
	assert.False(t, FatCompatible(&five, &twelve, 1))
}
