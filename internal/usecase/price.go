package usecase

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/pricematch/backend/internal/domain"
)

// PriceEqual is reported as the cheaper store when both prices match
const PriceEqual = "equal"

var (
	// "£1.85", "1.85", "£1,299.00"
	poundsPattern = regexp.MustCompile(`£?\s*(\d{1,3}(?:,\d{3})+|\d+)(\.\d+)?`)
	// "85p"
	pencePattern = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*p\b`)
)

var hundred = decimal.NewFromInt(100)

// ParsePrice reads a retailer display price into pounds
func ParsePrice(raw string) (decimal.Decimal, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return decimal.Zero, fmt.Errorf("%w: empty price", domain.ErrInvalidRequest)
	}

	if m := pencePattern.FindStringSubmatch(s); m != nil {
		pence, err := decimal.NewFromString(m[1])
		if err != nil {
			return decimal.Zero, fmt.Errorf("%w: price %q: %v", domain.ErrInvalidRequest, raw, err)
		}
		return pence.Div(hundred), nil
	}

	m := poundsPattern.FindStringSubmatch(s)
	if m == nil {
		return decimal.Zero, fmt.Errorf("%w: price %q", domain.ErrInvalidRequest, raw)
	}
	value, err := decimal.NewFromString(strings.ReplaceAll(m[1], ",", "") + m[2])
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: price %q: %v", domain.ErrInvalidRequest, raw, err)
	}
	return value, nil
}

// ComparePrices reports which side of a pair is cheaper and by how much.
// Returns nil when either side is missing or unparseable.
func ComparePrices(tesco, sainsburys *domain.StoreProduct) *domain.PriceComparison {
	if tesco == nil || sainsburys == nil {
		return nil
	}
	tescoPrice, err := ParsePrice(tesco.Price)
	if err != nil {
		return nil
	}
	sainsburysPrice, err := ParsePrice(sainsburys.Price)
	if err != nil {
		return nil
	}

	cheaper := PriceEqual
	switch tescoPrice.Cmp(sainsburysPrice) {
	case -1:
		cheaper = domain.StoreTesco
	case 1:
		cheaper = domain.StoreSainsburys
	}

	return &domain.PriceComparison{
		CheaperStore: cheaper,
		Difference:   "£" + tescoPrice.Sub(sainsburysPrice).Abs().StringFixed(2),
	}
}
