// Package tools holds the deterministic audit checks and the tool.Tool adapters
// the analyst exposes to the model.
package tools

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

const (
	DefaultTaxRate = 0.18

	taxTolerance       = 0.05
	fuzzyMatchMinRatio = 0.6
)

type TaxResult struct {
	IsCompliant bool    `json:"is_compliant"`
	ExpectedTax float64 `json:"expected_tax"`
	ActualTax   float64 `json:"actual_tax"`
	Difference  float64 `json:"difference"`
	Status      string  `json:"status"`
}

// CalculateTaxCompliance checks tax against subtotal*rate within a five cent tolerance.
func CalculateTaxCompliance(subtotal, tax, rate float64) TaxResult {
	expected := subtotal * rate
	diff := math.Abs(expected - tax)
	compliant := diff < taxTolerance
	status := "MISMATCH"
	if compliant {
		status = "MATCH"
	}
	return TaxResult{
		IsCompliant: compliant,
		ExpectedTax: round2(expected),
		ActualTax:   tax,
		Difference:  round2(diff),
		Status:      status,
	}
}

const (
	MatchExact   = "exact"
	MatchFuzzy   = "fuzzy"
	MatchPartial = "partial"
)

type VendorMatch struct {
	MatchFound bool     `json:"match_found"`
	Vendor     string   `json:"vendor"`
	Method     string   `json:"method,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
	Note       string   `json:"note,omitempty"`
}

// FuzzyMatchVendor tries an exact case-insensitive substring match, then a
// similarity ratio against the whole statement, then the vendor's first word.
func FuzzyMatchVendor(vendor, statement string) VendorMatch {
	cleanVendor := strings.ToLower(strings.TrimSpace(vendor))
	cleanStatement := strings.ToLower(statement)
	result := VendorMatch{Vendor: vendor}

	if strings.Contains(cleanStatement, cleanVendor) {
		result.MatchFound = true
		result.Method = MatchExact
		return result
	}

	if ratio := similarityRatio(cleanVendor, cleanStatement); ratio >= fuzzyMatchMinRatio {
		confidence := round2(ratio)
		result.MatchFound = true
		result.Method = MatchFuzzy
		result.Confidence = &confidence
		return result
	}

	firstWord, _, _ := strings.Cut(cleanVendor, " ")
	if utf8.RuneCountInString(firstWord) > 3 && strings.Contains(cleanStatement, firstWord) {
		result.MatchFound = true
		result.Method = MatchPartial
		result.Note = "Partial match found"
		return result
	}
	return result
}

// similarityRatio normalizes edit distance into [0, 1].
func similarityRatio(a, b string) float64 {
	longest := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > longest {
		longest = n
	}
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}

// StatementRecord is one bank statement row. Withdrawals are negative.
type StatementRecord struct {
	Date        string  `json:"date"`
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
}

// MatchInvoiceToStatement returns the first record whose amount magnitude equals
// amount exactly.
func MatchInvoiceToStatement(amount float64, records []StatementRecord) (StatementRecord, bool) {
	want := math.Abs(amount)
	for _, r := range records {
		if math.Abs(r.Amount) == want {
			return r, true
		}
	}
	return StatementRecord{}, false
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
