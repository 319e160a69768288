package compactor

import (
	"math"
	"strings"

	"github.com/crimson-sun/sluice/internal/model"
)

// EstimateTokens returns an approximate token count using a whitespace heuristic.
// Splits on whitespace, applies a 1.3x subword expansion factor (rounded up).
// Not a real tokenizer; good enough to size inference payloads.
func EstimateTokens(s string) int {
	if s == "" {
		return 0
	}
	words := len(strings.Fields(s))
	return int(math.Ceil(float64(words) * 1.3))
}

// rowOverhead approximates the JSON keys and punctuation of one encoded row.
const rowOverhead = 12

// EstimateRows estimates the tokens needed to send rows to inference.
func EstimateRows(rows []model.Row) int {
	n := 0
	for _, r := range rows {
		n += rowOverhead + EstimateTokens(r.Message) + EstimateTokens(r.Severity) + EstimateTokens(r.Source)
	}
	return n
}
