// sanity.go - Domain plausibility rules for grocery supplier invoices

package validate

import (
	"fmt"
	"strings"

	"github.com/warungtech/invoice-ocr/internal/invoice"
)

// SanityChecker applies keyword-driven plausibility rules: products sold
// by the piece should not carry weight units, and known staples have
// known IDR price bands.
type SanityChecker struct {
	// AutoFix applies unit corrections. Range breaches are advisory and
	// never rewritten regardless of this switch.
	AutoFix bool
}

// unitKeywords maps an expected unit family to product-name keywords.
// First match wins, so the more specific families come first.
var unitKeywords = []struct {
	unit     string
	keywords []string
}{
	{"btl", []string{"kecap", "saus", "sirup"}},
	{"krat", []string{"soda", "cola", "sprite", "fanta"}},
	{"pcs", []string{"telur", "tahu", "tempe", "botol", "bungkus", "sachet", "kotak", "karton"}},
}

// weightUnits are the units a keyword-matched piece-good must not carry.
var weightUnits = map[string]bool{
	"kg": true, "g": true, "gr": true, "gram": true, "ons": true, "liter": true, "l": true,
}

type priceBand struct {
	keywords []string
	min, max float64
}

// priceBands are per-unit IDR ranges for common staples. Deliberately
// wide: they exist to catch OCR garbage, not to police market prices.
var priceBands = []priceBand{
	{[]string{"telur"}, 1500, 3500},
	{[]string{"beras"}, 8000, 25000},
	{[]string{"minyak"}, 10000, 35000},
	{[]string{"gula"}, 10000, 22000},
	{[]string{"ayam", "daging", "sapi", "ikan"}, 25000, 300000},
	{[]string{"susu", "soda", "cola"}, 3000, 60000},
}

// weightBands bound plausible per-line kilogram quantities.
var weightBands = []priceBand{
	{[]string{"beras"}, 1, 100},
	{[]string{"ayam", "daging", "sapi", "ikan"}, 0.1, 50},
	{[]string{"gula", "minyak"}, 0.25, 50},
}

// CheckLine runs required-field, unit and range checks on one line.
// lineIdx is 1-based. A missing name is structural and short-circuits
// the remaining rules for that line.
func (s *SanityChecker) CheckLine(line invoice.Line, lineIdx int) (invoice.Line, []invoice.ValidationIssue) {
	if strings.TrimSpace(line.Name) == "" {
		return line, []invoice.ValidationIssue{{
			Kind:     invoice.IssueMissingField,
			Severity: invoice.SeverityError,
			Line:     lineIdx,
			Message:  "line has no product name",
		}}
	}

	var issues []invoice.ValidationIssue
	line, issues = s.checkUnit(line, lineIdx, issues)
	issues = s.checkPrice(line, lineIdx, issues)
	issues = s.checkWeight(line, lineIdx, issues)
	return line, issues
}

func (s *SanityChecker) checkUnit(line invoice.Line, lineIdx int, issues []invoice.ValidationIssue) (invoice.Line, []invoice.ValidationIssue) {
	name := strings.ToLower(line.Name)
	unit := strings.ToLower(strings.TrimSpace(line.Unit))

	for _, fam := range unitKeywords {
		if !containsAny(name, fam.keywords) {
			continue
		}
		if unit == fam.unit || !weightUnits[unit] {
			return line, issues
		}
		issue := invoice.ValidationIssue{
			Kind:     invoice.IssueUnitMismatch,
			Severity: invoice.SeverityWarning,
			Line:     lineIdx,
			Message: fmt.Sprintf("%q is sold per %s but the line says %q",
				line.Name, fam.unit, line.Unit),
			Suggestion: fam.unit,
		}
		if s.AutoFix {
			line.Unit = fam.unit
			line.AutoFixed = true
			issue.Fixed = true
		}
		return line, append(issues, issue)
	}
	return line, issues
}

// checkPrice flags unit prices outside the staple's band. Advisory only:
// a breach may be a promotion or a bulk pack, so nothing is rewritten.
func (s *SanityChecker) checkPrice(line invoice.Line, lineIdx int, issues []invoice.ValidationIssue) []invoice.ValidationIssue {
	if line.Price <= 0 {
		return issues
	}
	name := strings.ToLower(line.Name)
	for _, band := range priceBands {
		if !containsAny(name, band.keywords) {
			continue
		}
		if line.Price < band.min || line.Price > band.max {
			issues = append(issues, invoice.ValidationIssue{
				Kind:     invoice.IssuePriceOutOfRange,
				Severity: invoice.SeverityWarning,
				Line:     lineIdx,
				Message: fmt.Sprintf("price %v for %q is outside the usual %v-%v IDR range",
					line.Price, line.Name, band.min, band.max),
			})
		}
		return issues
	}
	return issues
}

func (s *SanityChecker) checkWeight(line invoice.Line, lineIdx int, issues []invoice.ValidationIssue) []invoice.ValidationIssue {
	unit := strings.ToLower(strings.TrimSpace(line.Unit))
	if unit != "kg" || line.Qty <= 0 {
		return issues
	}
	name := strings.ToLower(line.Name)
	for _, band := range weightBands {
		if !containsAny(name, band.keywords) {
			continue
		}
		if line.Qty < band.min || line.Qty > band.max {
			issues = append(issues, invoice.ValidationIssue{
				Kind:     invoice.IssueWeightOutOfRange,
				Severity: invoice.SeverityWarning,
				Line:     lineIdx,
				Message: fmt.Sprintf("weight %vkg for %q is outside the usual %v-%vkg range",
					line.Qty, line.Name, band.min, band.max),
			})
		}
		return issues
	}
	return issues
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
