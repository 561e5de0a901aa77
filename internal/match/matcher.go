// matcher.go - Fuzzy product name matching against the catalog

package match

import (
	"math"
	"sort"
	"strings"

	"github.com/warungtech/invoice-ocr/internal/invoice"
)

// Matcher resolves recognized line names to catalog products. Matching
// is fuzzy: supplier invoices abbreviate, pluralize and misspell the
// names the catalog stores.
type Matcher struct {
	// Threshold is the minimum score for a match; below it the line is
	// reported unknown.
	Threshold float64
	products  []invoice.Product
}

// tieBreakWindow is how close two scores must be before the price hint
// decides between their products.
const tieBreakWindow = 0.02

// fillerWords are adjectives suppliers add that carry no identity.
var fillerWords = map[string]bool{
	"fresh": true, "frozen": true, "segar": true, "baru": true,
	"asli": true, "lokal": true, "import": true, "organik": true,
	"organic": true,
}

// tokenSynonyms folds common spelling variants onto one form before
// comparison.
var tokenSynonyms = map[string]string{
	"telor":   "telur",
	"cabe":    "cabai",
	"chilli":  "chili",
	"tomat":   "tomato",
	"potatos": "potato",
	"mie":     "mi",
	"gorng":   "goreng",
}

// NewMatcher builds a matcher over the given catalog.
func NewMatcher(products []invoice.Product, threshold float64) *Matcher {
	return &Matcher{Threshold: threshold, products: products}
}

// MatchLine resolves one recognized line. lineIdx is 1-based and echoed
// into the result so callers can correlate.
func (m *Matcher) MatchLine(line invoice.Line, lineIdx int) invoice.MatchResult {
	name := Normalize(line.Name)
	if name == "" || len(m.products) == 0 {
		return invoice.MatchResult{Line: lineIdx, Status: invoice.MatchUnknown}
	}

	type candidate struct {
		product invoice.Product
		score   float64
	}
	var candidates []candidate
	for _, p := range m.products {
		score := Score(name, Normalize(p.Name))
		if p.Alias != "" {
			if s := Score(name, Normalize(p.Alias)); s > score {
				score = s
			}
		}
		candidates = append(candidates, candidate{p, score})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	best := candidates[0]
	// Near-ties go to the product whose reference price is closest to
	// the recognized unit price.
	if line.Price > 0 {
		for _, c := range candidates[1:] {
			if best.score-c.score > tieBreakWindow {
				break
			}
			if c.product.PriceHint > 0 &&
				(best.product.PriceHint <= 0 ||
					math.Abs(c.product.PriceHint-line.Price) < math.Abs(best.product.PriceHint-line.Price)) {
				best = candidate{c.product, best.score}
			}
		}
	}

	if best.score < m.Threshold {
		return invoice.MatchResult{
			Line:       lineIdx,
			Score:      round3(best.score),
			Status:     invoice.MatchUnknown,
			Confidence: round3(best.score),
		}
	}

	status := invoice.MatchOK
	if !SameUnit(line.Unit, best.product.Unit) {
		status = invoice.MatchUnitMismatch
	}
	return invoice.MatchResult{
		Line:        lineIdx,
		ProductID:   best.product.ID,
		ProductName: best.product.Name,
		Score:       round3(best.score),
		Status:      status,
		Confidence:  round3(best.score),
	}
}

// MatchAll resolves every line of a recognized invoice.
func (m *Matcher) MatchAll(lines []invoice.Line) []invoice.MatchResult {
	results := make([]invoice.MatchResult, 0, len(lines))
	for i, line := range lines {
		results = append(results, m.MatchLine(line, i+1))
	}
	return results
}

// Normalize prepares a product name for comparison: lowercase, strip
// unit tokens and filler adjectives, fold synonyms, singularize.
func Normalize(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	var out []string
	for _, tok := range strings.Fields(s) {
		tok = strings.Trim(tok, ".,;:()[]")
		if tok == "" {
			continue
		}
		if _, isUnit := unitAliases[tok]; isUnit {
			continue
		}
		if fillerWords[tok] {
			continue
		}
		if syn, ok := tokenSynonyms[tok]; ok {
			tok = syn
		}
		out = append(out, singularize(tok))
	}
	return strings.Join(out, " ")
}

// singularize strips the common English plural suffixes. Indonesian
// has no plural inflection, so short tokens pass through untouched.
func singularize(tok string) string {
	if len(tok) <= 3 {
		return tok
	}
	switch {
	case strings.HasSuffix(tok, "ies"):
		return tok[:len(tok)-3] + "y"
	case strings.HasSuffix(tok, "oes") || strings.HasSuffix(tok, "ches") ||
		strings.HasSuffix(tok, "shes") || strings.HasSuffix(tok, "sses") ||
		strings.HasSuffix(tok, "xes"):
		return tok[:len(tok)-2]
	case strings.HasSuffix(tok, "s") && !strings.HasSuffix(tok, "ss"):
		return tok[:len(tok)-1]
	}
	return tok
}

// Score compares two normalized names. The edit-distance ratio is the
// base; substring containment floors the score at 0.85 and a token
// overlap blend rescues word-order swaps ("goreng minyak").
func Score(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}

	score := levenshteinRatio(a, b)

	// Token overlap rescues word-order swaps: identical token sets in a
	// different order are the same product.
	if overlap := tokenOverlap(a, b); overlap > 0 {
		if blended := 0.95 * overlap; blended > score {
			score = blended
		}
	}

	shorter, longer := a, b
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}
	if len(shorter) >= 3 && strings.Contains(longer, shorter) && score < 0.85 {
		score = 0.85
	}
	return score
}

func levenshteinRatio(a, b string) float64 {
	dist := levenshteinDistance(a, b)
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 1
	}
	return 1 - float64(dist)/float64(maxLen)
}

// levenshteinDistance computes the edit distance with a rolling
// single-row table.
func levenshteinDistance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur := make([]int, len(rb)+1)
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = minInt(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev = cur
	}
	return prev[len(rb)]
}

func tokenOverlap(a, b string) float64 {
	ta, tb := strings.Fields(a), strings.Fields(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	set := make(map[string]bool, len(ta))
	for _, t := range ta {
		set[t] = true
	}
	union := len(set)
	shared := 0
	for _, t := range tb {
		if set[t] {
			shared++
			set[t] = false
		} else {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(shared) / float64(union)
}

func minInt(vals ...int) int {
	m := vals[0]
	for _, v := range vals[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
