package domain

import "time"

// ProductMapping pairs a Tesco listing with its best Sainsbury's match.
// Rows are produced by the mapping builder and never edited in place.
type ProductMapping struct {
	GenericName        string   `json:"generic_name"`
	TescoName          string   `json:"tesco_name"`
	SainsburysName     string   `json:"sainsburys_name"`
	TescoPrice         string   `json:"tesco_price"`
	SainsburysPrice    string   `json:"sainsburys_price"`
	TescoQuantity      *float64 `json:"tesco_quantity"`
	TescoUnit          string   `json:"tesco_unit,omitempty"`
	SainsburysQuantity *float64 `json:"sainsburys_quantity"`
	SainsburysUnit     string   `json:"sainsburys_unit,omitempty"`
	Confidence         float64  `json:"confidence"`
}

// TescoQty returns the stored Tesco quantity, or nil when unknown
func (m ProductMapping) TescoQty() *Quantity {
	return storedQuantity(m.TescoQuantity, m.TescoUnit)
}

// SainsburysQty returns the stored Sainsbury's quantity, or nil when unknown
func (m ProductMapping) SainsburysQty() *Quantity {
	return storedQuantity(m.SainsburysQuantity, m.SainsburysUnit)
}

func storedQuantity(value *float64, unit string) *Quantity {
	if value == nil {
		return nil
	}
	return &Quantity{Value: *value, Unit: unit}
}

// MatchCandidate is a mapping row scored against one request
type MatchCandidate struct {
	ProductMapping
	Score float64 `json:"score"`
}

// MappingSnapshot is an immutable, point-in-time copy of the mapping table
type MappingSnapshot struct {
	Version  string
	Mappings []ProductMapping
	LoadedAt time.Time
}

// Match sources
const (
	SourceManual   = "manual"
	SourceRanked   = "ranked"
	SourceFallback = "fallback"
)

// PriceComparison reports which retailer is cheaper for a selected pair
type PriceComparison struct {
	CheaperStore string `json:"cheaper_store"`
	Difference   string `json:"difference"`
}

// SelectedCandidate is the single pair returned for a match request.
// Either side may be nil for fallback matches.
type SelectedCandidate struct {
	GenericName     string           `json:"generic_name"`
	Tesco           *StoreProduct    `json:"tesco"`
	Sainsburys      *StoreProduct    `json:"sainsburys"`
	Confidence      float64          `json:"confidence"`
	Reason          string           `json:"reason,omitempty"`
	Source          string           `json:"source"`
	PriceComparison *PriceComparison `json:"price_comparison,omitempty"`
}

// ManualMapping is a curated override consulted before automatic scoring
type ManualMapping struct {
	ID          string       `json:"id"`
	Queries     []string     `json:"queries"`
	GenericName string       `json:"generic_name"`
	Tesco       StoreProduct `json:"tesco"`
	Sainsburys  StoreProduct `json:"sainsburys"`
	Confidence  float64      `json:"confidence"`
	Message     string       `json:"message,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// Build run states
const (
	BuildRunning   = "running"
	BuildSucceeded = "succeeded"
	BuildFailed    = "failed"
)

// BuildRun records one execution of the mapping builder
type BuildRun struct {
	ID         string     `json:"id"`
	Status     string     `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Rows       int        `json:"rows"`
	Error      string     `json:"error,omitempty"`
}

// MatchRequest is the body of POST /api/match-item
type MatchRequest struct {
	ItemName string `json:"itemName"`
}

// MatchResponse is returned by the match endpoint.
// A nil SelectedCandidate with Success=true means no match was found.
type MatchResponse struct {
	Success           bool               `json:"success"`
	SelectedCandidate *SelectedCandidate `json:"selected_candidate"`
	Confidence        float64            `json:"confidence"`
	Message           string             `json:"message,omitempty"`
}
