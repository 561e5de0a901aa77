// arithmetic.go - Reconciles qty x price against the declared line amount

package validate

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warungtech/invoice-ocr/internal/invoice"
)

// ArithmeticReconciler checks every line for qty*price == amount within
// tolerance, proposes the better-supported value when they disagree, and
// repairs the classic OCR decimal-shift errors (lost or extra zero).
type ArithmeticReconciler struct {
	// RelTolerance is the accepted relative discrepancy, e.g. 0.01 = 1%.
	RelTolerance float64
	// AbsTolerance catches rounding noise on small amounts.
	AbsTolerance float64
	// AutoFix applies proposed corrections instead of only flagging them.
	AutoFix bool
	// MaxCorrectionPercent rejects corrections that would change the
	// amount by more than this percentage.
	MaxCorrectionPercent float64
	// DecimalShiftFix enables the x10 outlier heuristic. Every shift is
	// flagged; this switch exists because the heuristic can misread a
	// legitimately expensive line.
	DecimalShiftFix bool
}

// shiftResidual is the maximum relative residual for a decimal-shift
// repair to be accepted.
const shiftResidual = 0.01

// ReconcileLine validates one line and returns the (possibly corrected)
// line together with any issues found. lineIdx is 1-based.
func (r *ArithmeticReconciler) ReconcileLine(line invoice.Line, lineIdx int) (invoice.Line, []invoice.ValidationIssue) {
	qty := decimal.NewFromFloat(line.Qty)
	price := decimal.NewFromFloat(line.Price)
	amount := decimal.NewFromFloat(line.Amount)

	switch {
	case qty.IsPositive() && price.IsPositive():
		return r.reconcileAmount(line, lineIdx, qty, price, amount)
	case qty.IsPositive() && amount.IsPositive():
		// Price missing: the other two fields imply it.
		implied, _ := amount.Div(qty).Round(4).Float64()
		return r.applyFix(line, lineIdx,
			fmt.Sprintf("unit price missing, %v / %v implies %v", line.Amount, line.Qty, implied),
			fmt.Sprintf("%v", implied),
			func(l *invoice.Line) { l.Price = implied })
	case price.IsPositive() && amount.IsPositive():
		// Quantity missing.
		implied, _ := amount.Div(price).Round(4).Float64()
		return r.applyFix(line, lineIdx,
			fmt.Sprintf("quantity missing, %v / %v implies %v", line.Amount, line.Price, implied),
			fmt.Sprintf("%v", implied),
			func(l *invoice.Line) { l.Qty = implied })
	default:
		// Not enough known fields to reconcile anything.
		return line, nil
	}
}

// reconcileAmount handles the fully-populated case: qty and price known,
// amount declared (possibly zero).
func (r *ArithmeticReconciler) reconcileAmount(line invoice.Line, lineIdx int, qty, price, amount decimal.Decimal) (invoice.Line, []invoice.ValidationIssue) {
	expected := qty.Mul(price)

	if amount.IsZero() {
		v, _ := expected.Float64()
		return r.applyFix(line, lineIdx,
			fmt.Sprintf("amount missing, %v x %v implies %v", line.Qty, line.Price, v),
			fmt.Sprintf("%v", v),
			func(l *invoice.Line) { l.Amount = v })
	}

	diff := amount.Sub(expected).Abs()
	if r.withinTolerance(diff, expected) {
		return line, nil
	}

	// A single shifted decimal point in one field explains most real
	// mismatches; prefer that repair over overwriting the amount.
	if fixed, issue, ok := r.tryDecimalShift(line, lineIdx, qty, price, amount); ok {
		return fixed, []invoice.ValidationIssue{issue}
	}

	// qty and price agree with each other, so their product is the
	// better-supported value for the amount.
	suggested, _ := expected.Float64()
	issue := invoice.ValidationIssue{
		Kind:     invoice.IssueArithmetic,
		Severity: invoice.SeverityError,
		Line:     lineIdx,
		Message: fmt.Sprintf("amount %v does not match %v x %v = %v",
			line.Amount, line.Qty, line.Price, suggested),
		Suggestion: fmt.Sprintf("%v", suggested),
	}

	correctionPct := diff.Div(amount.Abs()).Mul(decimal.NewFromInt(100))
	if r.AutoFix && correctionPct.LessThanOrEqual(decimal.NewFromFloat(r.MaxCorrectionPercent)) {
		line.Amount = suggested
		line.AutoFixed = true
		issue.Fixed = true
		issue.Severity = invoice.SeverityWarning
	}
	return line, []invoice.ValidationIssue{issue}
}

// tryDecimalShift tests the three single-field shift repairs the OCR
// stage is known to produce: a lost zero in the price, an extra zero in
// the price, and a missed decimal point in the quantity. A repair is
// accepted only when it lands within shiftResidual of the declared
// amount.
func (r *ArithmeticReconciler) tryDecimalShift(line invoice.Line, lineIdx int, qty, price, amount decimal.Decimal) (invoice.Line, invoice.ValidationIssue, bool) {
	ten := decimal.NewFromInt(10)

	type shift struct {
		field string
		old   decimal.Decimal
		fixed decimal.Decimal
		apply func(*invoice.Line, float64)
	}
	candidates := []shift{
		{"price", price, price.Mul(ten), func(l *invoice.Line, v float64) { l.Price = v }},
		{"price", price, price.Div(ten), func(l *invoice.Line, v float64) { l.Price = v }},
		{"qty", qty, qty.Div(ten), func(l *invoice.Line, v float64) { l.Qty = v }},
	}

	for _, c := range candidates {
		var product decimal.Decimal
		if c.field == "price" {
			product = qty.Mul(c.fixed)
		} else {
			product = c.fixed.Mul(price)
		}
		if product.IsZero() {
			continue
		}
		residual := product.Sub(amount).Abs().Div(amount.Abs())
		if residual.LessThanOrEqual(decimal.NewFromFloat(shiftResidual)) {
			v, _ := c.fixed.Float64()
			old, _ := c.old.Float64()
			issue := invoice.ValidationIssue{
				Kind:     invoice.IssueArithmetic,
				Severity: invoice.SeverityWarning,
				Line:     lineIdx,
				Message: fmt.Sprintf("decimal shift in %s: %v corrected to %v to match amount %v",
					c.field, old, v, line.Amount),
				Suggestion: fmt.Sprintf("%v", v),
			}
			if r.AutoFix {
				c.apply(&line, v)
				line.AutoFixed = true
				issue.Fixed = true
			}
			return line, issue, true
		}
	}
	return line, invoice.ValidationIssue{}, false
}

// ReconcileOutliers applies the cross-line ~10x heuristic: a price an
// order of magnitude above the rest of the invoice, on a line that is
// internally consistent, reads as a decimal-shift error affecting both
// price and amount. Corrections are flagged, never silent.
func (r *ArithmeticReconciler) ReconcileOutliers(lines []invoice.Line) ([]invoice.Line, []invoice.ValidationIssue) {
	if !r.DecimalShiftFix || len(lines) < 3 {
		return lines, nil
	}

	med := medianPrice(lines)
	if med <= 0 {
		return lines, nil
	}

	var issues []invoice.ValidationIssue
	out := make([]invoice.Line, len(lines))
	copy(out, lines)

	for i, line := range out {
		if line.Price <= med*10 || line.Qty <= 0 {
			continue
		}
		// Only shift lines that are internally consistent: price and
		// amount shifted together, so dividing both keeps qty*price==amount.
		expected := line.Qty * line.Price
		if line.Amount <= 0 || relDiff(expected, line.Amount) > shiftResidual {
			continue
		}
		issue := invoice.ValidationIssue{
			Kind:     invoice.IssueArithmetic,
			Severity: invoice.SeverityWarning,
			Line:     i + 1,
			Message: fmt.Sprintf("price %v is more than 10x the invoice median %v, assuming shifted decimal",
				line.Price, med),
			Suggestion: fmt.Sprintf("%v", line.Price/10),
		}
		if r.AutoFix {
			out[i].Price = line.Price / 10
			out[i].Amount = line.Amount / 10
			out[i].AutoFixed = true
			issue.Fixed = true
		}
		issues = append(issues, issue)
	}
	return out, issues
}

func (r *ArithmeticReconciler) withinTolerance(diff, expected decimal.Decimal) bool {
	if diff.LessThanOrEqual(decimal.NewFromFloat(r.AbsTolerance)) {
		return true
	}
	if expected.IsZero() {
		return false
	}
	rel := diff.Div(expected.Abs())
	return rel.LessThanOrEqual(decimal.NewFromFloat(r.RelTolerance))
}

// applyFix fills in a missing field. Missing-value completions are
// warnings: nothing contradicts, something is absent.
func (r *ArithmeticReconciler) applyFix(line invoice.Line, lineIdx int, msg, suggestion string, apply func(*invoice.Line)) (invoice.Line, []invoice.ValidationIssue) {
	issue := invoice.ValidationIssue{
		Kind:       invoice.IssueArithmetic,
		Severity:   invoice.SeverityWarning,
		Line:       lineIdx,
		Message:    msg,
		Suggestion: suggestion,
	}
	if r.AutoFix {
		apply(&line)
		line.AutoFixed = true
		issue.Fixed = true
	}
	return line, []invoice.ValidationIssue{issue}
}

func medianPrice(lines []invoice.Line) float64 {
	var prices []float64
	for _, l := range lines {
		if l.Price > 0 {
			prices = append(prices, l.Price)
		}
	}
	if len(prices) == 0 {
		return 0
	}
	// Insertion sort; invoices are short.
	for i := 1; i < len(prices); i++ {
		for j := i; j > 0 && prices[j] < prices[j-1]; j-- {
			prices[j], prices[j-1] = prices[j-1], prices[j]
		}
	}
	return prices[len(prices)/2]
}

func relDiff(a, b float64) float64 {
	if b == 0 {
		return 1
	}
	d := a - b
	if d < 0 {
		d = -d
	}
	if b < 0 {
		b = -b
	}
	return d / b
}
