// models.go - Core data structures shared across the recognition pipeline

package invoice

import "time"

// BBox is the pixel-space bounding box of a detected table cell.
// Coordinates follow the detector convention: (X1,Y1) top-left, (X2,Y2) bottom-right.
type BBox struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// Width returns the pixel width of the box.
func (b BBox) Width() int { return b.X2 - b.X1 }

// Height returns the pixel height of the box.
func (b BBox) Height() int { return b.Y2 - b.Y1 }

// Cell is a single detected table region. Text and Confidence are filled in
// once by the recognition cascade and are not touched afterward.
type Cell struct {
	BBox       BBox    `json:"bbox"`
	Image      []byte  `json:"-"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	UsedRemote bool    `json:"used_remote"`
	ErrTag     string  `json:"error,omitempty"`

	// StructureText carries text derived from table-structure metadata
	// (e.g. the detector's HTML reconstruction). Used as a fallback when
	// recognition produced nothing for the cell.
	StructureText string `json:"-"`
}

// CellTrace is the per-cell diagnostic record kept on a reconstructed line.
type CellTrace struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	UsedRemote bool    `json:"used_remote"`
}

// Line is one reconstructed invoice row.
type Line struct {
	Name      string      `json:"name"`
	Qty       float64     `json:"qty"`
	Unit      string      `json:"unit"`
	Price     float64     `json:"price"`
	Amount    float64     `json:"amount"`
	Cells     []CellTrace `json:"cells,omitempty"`
	AutoFixed bool        `json:"auto_fixed,omitempty"`
}

// IssueKind classifies a validation finding.
type IssueKind string

const (
	IssueStructural       IssueKind = "structural"
	IssueArithmetic       IssueKind = "arithmetic"
	IssueUnitMismatch     IssueKind = "unit_mismatch"
	IssuePriceOutOfRange  IssueKind = "price_out_of_range"
	IssueWeightOutOfRange IssueKind = "weight_out_of_range"
	IssueMissingField     IssueKind = "missing_field"
)

// Issue severities.
const (
	SeverityWarning = "warning"
	SeverityError   = "error"
)

// ValidationIssue describes one problem found by the validation engine.
// Line is 1-based; zero means the issue is invoice-scoped.
type ValidationIssue struct {
	Kind       IssueKind `json:"kind"`
	Severity   string    `json:"severity"`
	Message    string    `json:"message"`
	Line       int       `json:"line,omitempty"`
	Suggestion string    `json:"suggestion,omitempty"`
	Fixed      bool      `json:"fixed,omitempty"`
}

// Metadata holds counters and the overall accuracy score for one invoice.
type Metadata struct {
	LineCount      int     `json:"line_count"`
	CellCount      int     `json:"cell_count"`
	RemoteCells    int     `json:"remote_cells"`
	AutoFixedCount int     `json:"auto_fixed_count"`
	Accuracy       float64 `json:"accuracy"`
}

// Invoice is one processed document. Stages of the pipeline produce new
// snapshots rather than mutating a shared instance.
type Invoice struct {
	Supplier   *string           `json:"supplier"`
	Date       *time.Time        `json:"date"`
	Lines      []Line            `json:"lines"`
	TotalPrice *float64          `json:"total_price,omitempty"`
	Issues     []ValidationIssue `json:"issues"`
	Metadata   Metadata          `json:"metadata"`
}

// Product is a read-only catalog entry supplied by an external loader.
type Product struct {
	ID        string  `bson:"id" json:"id"`
	Code      string  `bson:"code" json:"code"`
	Name      string  `bson:"name" json:"name"`
	Alias     string  `bson:"alias" json:"alias"`
	Unit      string  `bson:"unit" json:"unit"`
	PriceHint float64 `bson:"price_hint,omitempty" json:"price_hint,omitempty"`
}

// Match statuses.
const (
	MatchOK           = "ok"
	MatchUnitMismatch = "unit_mismatch"
	MatchUnknown      = "unknown"
)

// MatchResult is the catalog resolution outcome for one invoice line.
// Never mutated after creation. Status "ok" implies a non-empty ProductID.
// Line is the 1-based index of the invoice line the result belongs to.
type MatchResult struct {
	Line        int     `json:"line"`
	ProductID   string  `json:"product_id,omitempty"`
	ProductName string  `json:"product_name,omitempty"`
	Score       float64 `json:"score"`
	Status      string  `json:"status"`
	Confidence  float64 `json:"confidence"`
}

// Result is the envelope handed to the front-end.
type Result struct {
	Status   string            `json:"status"` // "success" or "error"
	Message  string            `json:"message,omitempty"`
	Lines    []Line            `json:"lines,omitempty"`
	Issues   []ValidationIssue `json:"issues,omitempty"`
	Matches  []MatchResult     `json:"matches,omitempty"`
	Metadata Metadata          `json:"metadata"`
	Timing   map[string]int64  `json:"timing,omitempty"`
	CacheHit bool              `json:"cache_hit,omitempty"`
}
