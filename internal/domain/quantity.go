package domain

// Canonical quantity units
const (
	UnitGrams       = "g"
	UnitMillilitres = "ml"
)

// Quantity is a pack size converted to its canonical unit.
// A nil *Quantity means unknown and is compatible with anything.
type Quantity struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}
