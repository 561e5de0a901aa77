// pipeline.go - Composes arithmetic and sanity validation into one pass

package validate

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warungtech/invoice-ocr/internal/invoice"
)

// Pipeline runs the full validation pass over a recognized invoice. The
// pass is a pure transform: it returns a corrected copy and never
// mutates its input, so re-validating an already-validated invoice is a
// no-op.
type Pipeline struct {
	Arithmetic ArithmeticReconciler
	Sanity     SanityChecker
	// Strict escalates every warning to an error.
	Strict bool
}

// NewPipeline builds a pipeline from the tuning knobs the config layer
// exposes.
func NewPipeline(relTol, maxCorrectionPct float64, autoFix, decimalShift, strict bool) *Pipeline {
	return &Pipeline{
		Arithmetic: ArithmeticReconciler{
			RelTolerance:         relTol,
			AbsTolerance:         0.01,
			AutoFix:              autoFix,
			MaxCorrectionPercent: maxCorrectionPct,
			DecimalShiftFix:      decimalShift,
		},
		Sanity: SanityChecker{AutoFix: autoFix},
		Strict: strict,
	}
}

// Validate reconciles every line, applies the cross-line outlier
// heuristic, checks the invoice total, and recomputes metadata.
func (p *Pipeline) Validate(inv invoice.Invoice) invoice.Invoice {
	// A payload that never made it to line reconstruction is terminal;
	// there is nothing to reconcile and the structural issue must
	// survive a re-validation.
	if IsStructuralError(inv) {
		return inv
	}

	out := inv
	out.Lines = make([]invoice.Line, len(inv.Lines))
	copy(out.Lines, inv.Lines)
	out.Issues = nil

	for i := range out.Lines {
		line, sanityIssues := p.Sanity.CheckLine(out.Lines[i], i+1)
		out.Issues = append(out.Issues, sanityIssues...)
		if hasStructural(sanityIssues) {
			out.Lines[i] = line
			continue
		}
		line, arithIssues := p.Arithmetic.ReconcileLine(line, i+1)
		out.Lines[i] = line
		out.Issues = append(out.Issues, arithIssues...)
	}

	lines, outlierIssues := p.Arithmetic.ReconcileOutliers(out.Lines)
	out.Lines = lines
	out.Issues = append(out.Issues, outlierIssues...)

	out.Issues = append(out.Issues, p.checkTotal(out)...)

	if p.Strict {
		for i := range out.Issues {
			out.Issues[i].Severity = invoice.SeverityError
		}
	}

	out.Metadata = p.metadata(out)
	return out
}

// StructuralError builds the single-issue result used when the payload
// never made it to line reconstruction, e.g. a remote response whose
// lines field is not a list.
func StructuralError(msg string) invoice.Invoice {
	return invoice.Invoice{
		Issues: []invoice.ValidationIssue{{
			Kind:     invoice.IssueStructural,
			Severity: invoice.SeverityError,
			Message:  msg,
		}},
		Metadata: invoice.Metadata{Accuracy: 0},
	}
}

// checkTotal compares the declared invoice total against the sum of
// line amounts. Advisory: the declared total often includes tax or
// delivery charges the lines do not.
func (p *Pipeline) checkTotal(inv invoice.Invoice) []invoice.ValidationIssue {
	if inv.TotalPrice == nil || *inv.TotalPrice <= 0 || len(inv.Lines) == 0 {
		return nil
	}
	sum := decimal.Zero
	for _, l := range inv.Lines {
		sum = sum.Add(decimal.NewFromFloat(l.Amount))
	}
	declared := decimal.NewFromFloat(*inv.TotalPrice)
	diff := declared.Sub(sum).Abs()
	if p.Arithmetic.withinTolerance(diff, sum) {
		return nil
	}
	s, _ := sum.Float64()
	return []invoice.ValidationIssue{{
		Kind:     invoice.IssueArithmetic,
		Severity: invoice.SeverityWarning,
		Message: fmt.Sprintf("declared total %v differs from line sum %v",
			*inv.TotalPrice, s),
		Suggestion: fmt.Sprintf("%v", s),
	}}
}

// metadata recomputes counters and the accuracy score: the share of
// lines that are clean or were auto-fixed. Lines with open unfixed
// issues count against it.
func (p *Pipeline) metadata(inv invoice.Invoice) invoice.Metadata {
	md := inv.Metadata
	md.LineCount = len(inv.Lines)

	unfixed := make(map[int]bool)
	for _, issue := range inv.Issues {
		if issue.Line > 0 && !issue.Fixed && issue.Severity == invoice.SeverityError {
			unfixed[issue.Line] = true
		}
	}

	autoFixed := 0
	for _, l := range inv.Lines {
		if l.AutoFixed {
			autoFixed++
		}
	}
	md.AutoFixedCount = autoFixed

	if md.LineCount == 0 {
		md.Accuracy = 0
		return md
	}
	md.Accuracy = float64(md.LineCount-len(unfixed)) / float64(md.LineCount)
	return md
}

// IsStructuralError reports whether the invoice carries an
// invoice-scoped structural error, i.e. it came out of
// StructuralError and holds no usable lines.
func IsStructuralError(inv invoice.Invoice) bool {
	for _, i := range inv.Issues {
		if i.Line == 0 && i.Kind == invoice.IssueStructural {
			return true
		}
	}
	return false
}

func hasStructural(issues []invoice.ValidationIssue) bool {
	for _, i := range issues {
		if i.Kind == invoice.IssueMissingField || i.Kind == invoice.IssueStructural {
			return true
		}
	}
	return false
}
