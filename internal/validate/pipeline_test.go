package validate

import (
	"testing"

	"github.com/warungtech/invoice-ocr/internal/invoice"
)

func testPipeline() *Pipeline {
	return NewPipeline(0.01, 50.0, true, true, false)
}

func TestAmountMismatchSuggestsProduct(t *testing.T) {
	inv := invoice.Invoice{Lines: []invoice.Line{
		{Name: "tisu gulung", Qty: 2, Unit: "pcs", Price: 100, Amount: 205},
	}}

	got := testPipeline().Validate(inv)

	if len(got.Issues) != 1 {
		t.Fatalf("expected 1 issue, got %d: %+v", len(got.Issues), got.Issues)
	}
	issue := got.Issues[0]
	if issue.Kind != invoice.IssueArithmetic {
		t.Errorf("kind = %q, want %q", issue.Kind, invoice.IssueArithmetic)
	}
	if issue.Suggestion != "200" {
		t.Errorf("suggestion = %q, want %q", issue.Suggestion, "200")
	}
	if !issue.Fixed {
		t.Error("correction within bounds should be applied")
	}
	if got.Lines[0].Amount != 200 {
		t.Errorf("amount = %v, want 200", got.Lines[0].Amount)
	}
	if !got.Lines[0].AutoFixed {
		t.Error("line should be marked auto-fixed")
	}
}

func TestValidateIsIdempotent(t *testing.T) {
	inv := invoice.Invoice{Lines: []invoice.Line{
		{Name: "telur ayam", Qty: 2, Unit: "kg", Price: 2000, Amount: 4100},
		{Name: "minyak goreng", Qty: 1, Unit: "btl", Price: 15000, Amount: 15000},
	}}

	p := testPipeline()
	first := p.Validate(inv)
	second := p.Validate(first)

	if len(second.Issues) != 0 {
		t.Errorf("re-validating a corrected invoice raised issues: %+v", second.Issues)
	}
	if second.Lines[0].Amount != first.Lines[0].Amount {
		t.Errorf("amount changed on second pass: %v -> %v",
			first.Lines[0].Amount, second.Lines[0].Amount)
	}
	if second.Lines[0].Unit != first.Lines[0].Unit {
		t.Errorf("unit changed on second pass: %q -> %q",
			first.Lines[0].Unit, second.Lines[0].Unit)
	}
}

func TestUnitMismatchAutoFix(t *testing.T) {
	inv := invoice.Invoice{Lines: []invoice.Line{
		{Name: "telur ayam", Qty: 10, Unit: "kg", Price: 2500, Amount: 25000},
	}}

	got := testPipeline().Validate(inv)

	var unitIssue *invoice.ValidationIssue
	for i := range got.Issues {
		if got.Issues[i].Kind == invoice.IssueUnitMismatch {
			unitIssue = &got.Issues[i]
		}
	}
	if unitIssue == nil {
		t.Fatalf("no unit-mismatch issue in %+v", got.Issues)
	}
	if unitIssue.Suggestion != "pcs" {
		t.Errorf("suggestion = %q, want %q", unitIssue.Suggestion, "pcs")
	}
	if !unitIssue.Fixed {
		t.Error("unit correction should be applied when auto-fix is on")
	}
	if got.Lines[0].Unit != "pcs" {
		t.Errorf("unit = %q, want %q", got.Lines[0].Unit, "pcs")
	}
	if !got.Lines[0].AutoFixed {
		t.Error("line should be marked auto-fixed")
	}
}

func TestUnitMismatchWithoutAutoFix(t *testing.T) {
	p := NewPipeline(0.01, 50.0, false, true, false)
	inv := invoice.Invoice{Lines: []invoice.Line{
		{Name: "tahu putih", Qty: 5, Unit: "kg", Price: 1000, Amount: 5000},
	}}

	got := p.Validate(inv)

	if got.Lines[0].Unit != "kg" {
		t.Errorf("unit rewritten with auto-fix off: %q", got.Lines[0].Unit)
	}
	found := false
	for _, issue := range got.Issues {
		if issue.Kind == invoice.IssueUnitMismatch && !issue.Fixed {
			found = true
		}
	}
	if !found {
		t.Errorf("expected an unfixed unit-mismatch issue, got %+v", got.Issues)
	}
}

func TestMissingAmountIsCompleted(t *testing.T) {
	inv := invoice.Invoice{Lines: []invoice.Line{
		{Name: "gula pasir", Qty: 3, Unit: "kg", Price: 14000, Amount: 0},
	}}

	got := testPipeline().Validate(inv)

	if got.Lines[0].Amount != 42000 {
		t.Errorf("amount = %v, want 42000", got.Lines[0].Amount)
	}
	if len(got.Issues) == 0 || got.Issues[0].Kind != invoice.IssueArithmetic {
		t.Errorf("expected an arithmetic completion issue, got %+v", got.Issues)
	}
}

func TestMissingPriceIsImplied(t *testing.T) {
	inv := invoice.Invoice{Lines: []invoice.Line{
		{Name: "beras premium", Qty: 4, Unit: "kg", Price: 0, Amount: 48000},
	}}

	got := testPipeline().Validate(inv)

	if got.Lines[0].Price != 12000 {
		t.Errorf("price = %v, want 12000", got.Lines[0].Price)
	}
}

func TestDecimalShiftLostZero(t *testing.T) {
	// Price read as 1500 where the amount implies 15000.
	inv := invoice.Invoice{Lines: []invoice.Line{
		{Name: "minyak goreng", Qty: 2, Unit: "btl", Price: 1500, Amount: 30000},
	}}

	got := testPipeline().Validate(inv)

	if got.Lines[0].Price != 15000 {
		t.Errorf("price = %v, want 15000", got.Lines[0].Price)
	}
	fixed := false
	for _, issue := range got.Issues {
		if issue.Kind == invoice.IssueArithmetic && issue.Fixed {
			fixed = true
		}
	}
	if !fixed {
		t.Errorf("shift repair should be flagged and applied, got %+v", got.Issues)
	}
}

func TestPriceOutlierAcrossInvoice(t *testing.T) {
	inv := invoice.Invoice{Lines: []invoice.Line{
		{Name: "kecap manis", Qty: 1, Unit: "btl", Price: 12000, Amount: 12000},
		{Name: "saus tomat", Qty: 2, Unit: "btl", Price: 9000, Amount: 18000},
		{Name: "sirup cocopandan", Qty: 1, Unit: "btl", Price: 150000, Amount: 150000},
		{Name: "tahu putih", Qty: 10, Unit: "pcs", Price: 1000, Amount: 10000},
	}}

	got := testPipeline().Validate(inv)

	if got.Lines[2].Price != 15000 {
		t.Errorf("outlier price = %v, want 15000", got.Lines[2].Price)
	}
	if got.Lines[2].Amount != 15000 {
		t.Errorf("outlier amount = %v, want 15000", got.Lines[2].Amount)
	}
}

func TestMissingNameIsStructural(t *testing.T) {
	inv := invoice.Invoice{Lines: []invoice.Line{
		{Name: "", Qty: 2, Unit: "pcs", Price: 100, Amount: 300},
	}}

	got := testPipeline().Validate(inv)

	if len(got.Issues) != 1 || got.Issues[0].Kind != invoice.IssueMissingField {
		t.Fatalf("expected a single missing-field issue, got %+v", got.Issues)
	}
	// Arithmetic must not run on a line that failed the field check.
	if got.Lines[0].Amount != 300 {
		t.Errorf("amount rewritten on structurally broken line: %v", got.Lines[0].Amount)
	}
	if got.Metadata.Accuracy != 0 {
		t.Errorf("accuracy = %v, want 0", got.Metadata.Accuracy)
	}
}

func TestTotalMismatchIsAdvisory(t *testing.T) {
	total := 100000.0
	inv := invoice.Invoice{
		TotalPrice: &total,
		Lines: []invoice.Line{
			{Name: "beras premium", Qty: 2, Unit: "kg", Price: 12000, Amount: 24000},
			{Name: "gula pasir", Qty: 1, Unit: "kg", Price: 14000, Amount: 14000},
		},
	}

	got := testPipeline().Validate(inv)

	found := false
	for _, issue := range got.Issues {
		if issue.Line == 0 && issue.Kind == invoice.IssueArithmetic {
			found = true
			if issue.Severity != invoice.SeverityWarning {
				t.Errorf("total mismatch severity = %q, want warning", issue.Severity)
			}
		}
	}
	if !found {
		t.Errorf("expected an invoice-scoped total issue, got %+v", got.Issues)
	}
	if got.Metadata.Accuracy != 1 {
		t.Errorf("advisory total issue should not hurt accuracy, got %v", got.Metadata.Accuracy)
	}
}

func TestStructuralError(t *testing.T) {
	got := StructuralError("lines is not a list")
	if len(got.Issues) != 1 || got.Issues[0].Kind != invoice.IssueStructural {
		t.Fatalf("unexpected issues: %+v", got.Issues)
	}
	if got.Metadata.Accuracy != 0 {
		t.Errorf("accuracy = %v, want 0", got.Metadata.Accuracy)
	}
}

func TestValidateKeepsStructuralError(t *testing.T) {
	got := testPipeline().Validate(StructuralError("lines is not a list"))

	if !IsStructuralError(got) {
		t.Fatalf("structural issue erased by validation: %+v", got.Issues)
	}
	if len(got.Issues) != 1 || got.Issues[0].Kind != invoice.IssueStructural {
		t.Errorf("issues = %+v, want the single structural error", got.Issues)
	}
	if got.Metadata.Accuracy != 0 {
		t.Errorf("accuracy = %v, want 0", got.Metadata.Accuracy)
	}
}

func TestNegativeAmountIsNotShiftRepaired(t *testing.T) {
	// A negative declared amount can never be explained by a shifted
	// decimal in a positive field; it must surface as a plain mismatch.
	inv := invoice.Invoice{Lines: []invoice.Line{
		{Name: "tisu gulung", Qty: 2, Unit: "pcs", Price: 100, Amount: -5},
	}}

	got := testPipeline().Validate(inv)

	if got.Lines[0].Price != 100 {
		t.Errorf("price rewritten to %v on a negative amount", got.Lines[0].Price)
	}
	if got.Lines[0].Qty != 2 {
		t.Errorf("qty rewritten to %v on a negative amount", got.Lines[0].Qty)
	}
	found := false
	for _, issue := range got.Issues {
		if issue.Kind == invoice.IssueArithmetic && issue.Line == 1 {
			found = true
		}
	}
	if !found {
		t.Errorf("expected an arithmetic issue on the line, got %+v", got.Issues)
	}
}
