package usecase

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/pricematch/backend/internal/domain"
)

// MillilitresPerPint is the imperial pint approximation used everywhere a
// pint is converted.
const MillilitresPerPint = 568.0

// Compiled quantity patterns, shared by the extractor and the normalizer
var (
	// Matches a magnitude directly followed by a unit, e.g. "500g", "1.5 kg", "2 pints".
	// Longer unit spellings come first so "litre" is not read as "l".
	quantityPattern = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(kg|grams?|g|ml|litres?|liters?|l|pints?)\b`)

	// Matches a percentage, e.g. "5% fat"
	fatPercentPattern = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*%`)
)

// ExtractQuantity parses the first size token in raw and converts it to
// grams or millilitres. Returns nil when raw carries no size; callers must
// treat nil as "no constraint".
func ExtractQuantity(raw string) *domain.Quantity {
	m := quantityPattern.FindStringSubmatch(raw)
	if m == nil {
		return nil
	}

	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return nil
	}

	unit := strings.ToLower(m[2])
	switch {
	case unit == "kg":
		return canonicalQuantity(value*1000, domain.UnitGrams)
	case unit == "g" || strings.HasPrefix(unit, "gram"):
		return canonicalQuantity(value, domain.UnitGrams)
	case unit == "ml":
		return canonicalQuantity(value, domain.UnitMillilitres)
	case unit == "l" || strings.HasPrefix(unit, "litre") || strings.HasPrefix(unit, "liter"):
		return canonicalQuantity(value*1000, domain.UnitMillilitres)
	case strings.HasPrefix(unit, "pint"):
		return canonicalQuantity(value*MillilitresPerPint, domain.UnitMillilitres)
	}
	return nil
}

// canonicalQuantity rounds away float noise from unit conversion (1.1*1000).
func canonicalQuantity(value float64, unit string) *domain.Quantity {
	return &domain.Quantity{
		Value: math.Round(value*1000) / 1000,
		Unit:  unit,
	}
}

// ExtractFatPercent parses a percentage such as "5% fat". Returns nil when absent.
func ExtractFatPercent(raw string) *float64 {
	m := fatPercentPattern.FindStringSubmatch(raw)
	if m == nil {
		return nil
	}
	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return nil
	}
	return &value
}

// QuantityScore compares two quantities with a relative tolerance.
//
// Unknown on either side, or different units, scores 1 (no penalty).
// Otherwise the relative difference |a-b|/max(a,b) scales the score linearly
// from 1 at equality down to 0 at the tolerance boundary; anything at or
// beyond tolerance scores 0.
func QuantityScore(a, b *domain.Quantity, tolerance float64) float64 {
	if a == nil || b == nil || a.Unit != b.Unit {
		return 1
	}

	largest := math.Max(a.Value, b.Value)
	if largest <= 0 {
		return 1
	}

	diff := math.Abs(a.Value-b.Value) / largest
	if tolerance <= 0 {
		if diff == 0 {
			return 1
		}
		return 0
	}
	if diff >= tolerance {
		return 0
	}
	return 1 - diff/tolerance
}

// FatCompatible reports whether two fat percentages are within tolerance
// percentage points of each other. Unknown on either side is compatible.
func FatCompatible(a, b *float64, tolerance float64) bool {
	if a == nil || b == nil {
		return true
	}
	return math.Abs(*a-*b) <= tolerance
}
