package llm

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/pricematch/backend/internal/domain"
)

// choice is the model's validated answer
type choice struct {
	SelectedIndex int
	Confidence    float64
	Reason        string
}

func buildPrompt(query string, candidates []domain.MatchCandidate) string {
	var b strings.Builder
	fmt.Fprintf(&b, "QUERY: %s\n\nCANDIDATES:\n", query)
	for i, c := range candidates {
		fmt.Fprintf(&b, "%d. %s | Tesco: %s (%s%s) | Sainsbury's: %s (%s%s) | score %.2f\n",
			i, c.GenericName,
			c.TescoName, c.TescoPrice, formatQuantity(c.TescoQuantity, c.TescoUnit),
			c.SainsburysName, c.SainsburysPrice, formatQuantity(c.SainsburysQuantity, c.SainsburysUnit),
			c.Score)
	}
	b.WriteString(`
Pick the candidate that is the same product as the query, preferring the
closest pack size when the query names one.

Respond with exactly this JSON object:
{"selected_index": <candidate number>, "confidence": <0.0 to 1.0>, "reason": "<short explanation>"}`)
	return b.String()
}

func formatQuantity(value *float64, unit string) string {
	if value == nil {
		return ""
	}
	return fmt.Sprintf(", %g%s", *value, unit)
}

// parseChoice extracts the outermost JSON object from the model output and
// checks it refers to one of n candidates.
func parseChoice(raw string, n int) (*choice, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end <= start {
		return nil, fmt.Errorf("%w: no JSON object", domain.ErrMalformedDelegateResponse)
	}

	// selected_index is required, so decode it through a pointer
	var parsed struct {
		SelectedIndex *int     `json:"selected_index"`
		Confidence    *float64 `json:"confidence"`
		Reason        string   `json:"reason"`
	}
	if err := json.Unmarshal([]byte(raw[start:end+1]), &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedDelegateResponse, err)
	}

	if parsed.SelectedIndex == nil {
		return nil, fmt.Errorf("%w: missing selected_index", domain.ErrMalformedDelegateResponse)
	}
	if *parsed.SelectedIndex < 0 || *parsed.SelectedIndex >= n {
		return nil, fmt.Errorf("%w: selected_index %d out of range [0, %d)",
			domain.ErrMalformedDelegateResponse, *parsed.SelectedIndex, n)
	}

	if parsed.Confidence == nil {
		return nil, fmt.Errorf("%w: missing confidence", domain.ErrMalformedDelegateResponse)
	}
	if confidence := *parsed.Confidence; math.IsNaN(confidence) || confidence < 0 || confidence > 1 {
		return nil, fmt.Errorf("%w: confidence %v out of range", domain.ErrMalformedDelegateResponse, confidence)
	}

	return &choice{
		SelectedIndex: *parsed.SelectedIndex,
		Confidence:    *parsed.Confidence,
		Reason:        strings.TrimSpace(parsed.Reason),
	}, nil
}
