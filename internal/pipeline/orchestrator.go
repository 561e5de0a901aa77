// orchestrator.go - Cascading recognition pipeline for invoice photos

package pipeline

import (
	"context"
	"image"
	"time"

	"github.com/warungtech/invoice-ocr/internal/catalog"
	"github.com/warungtech/invoice-ocr/internal/common"
	"github.com/warungtech/invoice-ocr/internal/engine"
	"github.com/warungtech/invoice-ocr/internal/imgprep"
	"github.com/warungtech/invoice-ocr/internal/invoice"
	"github.com/warungtech/invoice-ocr/internal/match"
	"github.com/warungtech/invoice-ocr/internal/storage"
	"github.com/warungtech/invoice-ocr/internal/table"
	"github.com/warungtech/invoice-ocr/internal/validate"
)

// Detector segments a page image into table cells with first-pass text.
type Detector interface {
	DetectCells(ctx context.Context, page []byte) ([]invoice.Cell, error)
}

// Config carries the cascade's tuning knobs.
type Config struct {
	ConfidenceThreshold float64
	MinCellPx           int
	MaxParallelCells    int
	RemoteTimeout       time.Duration
	RetryDelay          time.Duration
	CacheTTL            time.Duration
	MatchThreshold      float64
	SelfAliases         []string
	PreprocessImages    bool
	MaxImageDimension   int
}

// Orchestrator wires the recognition cascade: local detection and OCR,
// remote escalation, validation, catalog matching and result caching.
// Remote, Cache and Catalog are optional; the cascade degrades without
// them instead of failing.
type Orchestrator struct {
	Detector  Detector
	Local     engine.Local
	Remote    engine.Remote
	Cache     storage.ResultCache
	Validator *validate.Pipeline
	Catalog   *catalog.Catalog
	Config    Config
}

// Process runs one invoice photo through the full cascade and returns a
// terminal result. Errors are folded into the result rather than
// returned, so callers always get something serializable.
func (o *Orchestrator) Process(ctx context.Context, imageBytes []byte) invoice.Result {
	rc := common.NewRequestContext()

	key := storage.CacheKey(imageBytes)
	if o.Cache != nil {
		if cached, ok := o.Cache.Get(ctx, key); ok {
			rc.LogInfo("cache hit, skipping recognition")
			result := *cached
			result.CacheHit = true
			return result
		}
	}

	rc.StartStep("prepare_image")
	page, pageBytes, err := o.prepareImage(imageBytes)
	if err != nil {
		rc.EndStep("failed", err)
		return o.errorResult(rc, "unreadable image: "+err.Error())
	}
	rc.EndStep("success", nil)

	inv, err := o.recognize(ctx, rc, page, pageBytes)
	if err != nil {
		return o.errorResult(rc, "recognition failed: "+err.Error())
	}

	rc.StartStep("validate")
	inv = o.Validator.Validate(inv)
	rc.EndStep("success", nil)

	// A structural error is terminal: nothing to match, and caching it
	// would replay the broken reading for the whole TTL window.
	if validate.IsStructuralError(inv) {
		rc.LogError("structural error: %s", inv.Issues[0].Message)
		rc.GetSummary()
		return invoice.Result{
			Status:   "error",
			Message:  inv.Issues[0].Message,
			Issues:   inv.Issues,
			Metadata: inv.Metadata,
			Timing:   rc.StepTimings(),
		}
	}

	matches := o.matchProducts(ctx, rc, inv.Lines)
	o.resolveSupplier(&inv)

	result := invoice.Result{
		Status:   "success",
		Lines:    inv.Lines,
		Issues:   inv.Issues,
		Matches:  matches,
		Metadata: inv.Metadata,
		Timing:   rc.StepTimings(),
	}
	if inv.Supplier != nil {
		result.Message = "supplier: " + *inv.Supplier
	}

	// Only validated results are worth replaying to the next caller.
	if o.Cache != nil {
		o.Cache.Set(ctx, key, &result, o.Config.CacheTTL)
	}
	o.persist(ctx, rc, key, result)

	rc.GetSummary()
	return result
}

// prepareImage decodes the upload and, when preprocessing is enabled,
// enhances it for OCR. Returns the decoded page for cropping and the
// serialized bytes sent to the engines.
func (o *Orchestrator) prepareImage(imageBytes []byte) (image.Image, []byte, error) {
	page, err := imgprep.Decode(imageBytes)
	if err != nil {
		return nil, nil, err
	}

	pageBytes := imageBytes
	if o.Config.PreprocessImages {
		page = imgprep.Prepare(page, o.Config.MaxImageDimension)
		if encoded, err := imgprep.EncodeJPEG(page); err == nil {
			pageBytes = encoded
		}
	}
	return page, pageBytes, nil
}

// recognize runs the table path and falls back to whole-document remote
// recognition when extraction fails.
func (o *Orchestrator) recognize(ctx context.Context, rc *common.RequestContext, page image.Image, pageBytes []byte) (invoice.Invoice, error) {
	rc.StartStep("extract_table")
	cells, err := o.Detector.DetectCells(ctx, pageBytes)
	if err != nil {
		rc.EndStep("failed", err)

		rc.StartStep("document_fallback")
		inv, ferr := o.documentFallback(ctx, rc, pageBytes)
		if ferr != nil {
			rc.EndStep("failed", ferr)
			return invoice.Invoice{}, ferr
		}
		rc.EndStep("success", nil)
		return inv, nil
	}
	rc.EndStep("success", nil)

	rc.StartStep("recognize_cells")
	cells, cropErr := table.CropCells(page, cells)
	if cropErr != nil {
		rc.EndStep("failed", cropErr)
		return invoice.Invoice{}, cropErr
	}
	cells = o.localPass(ctx, cells)
	cells = o.escalateCells(ctx, rc, cells)
	rc.EndStep("success", nil)

	rc.StartStep("reconstruct_rows")
	lines := table.Reconstruct(cells)
	rc.EndStep("success", nil)

	inv := invoice.Invoice{Lines: lines}
	inv.Metadata.CellCount = len(cells)
	for _, c := range cells {
		if c.UsedRemote {
			inv.Metadata.RemoteCells++
		}
	}
	return inv, nil
}

// matchProducts resolves recognized lines against the catalog. No
// catalog configured means no matches, not an error.
func (o *Orchestrator) matchProducts(ctx context.Context, rc *common.RequestContext, lines []invoice.Line) []invoice.MatchResult {
	if o.Catalog == nil || len(lines) == 0 {
		return nil
	}

	rc.StartStep("match_products")
	products, err := o.Catalog.Products(ctx)
	if err != nil {
		rc.EndStep("failed", err)
		return nil
	}
	matcher := match.NewMatcher(products, o.Config.MatchThreshold)
	matches := matcher.MatchAll(lines)
	rc.EndStep("success", nil)
	return matches
}

// resolveSupplier nulls a supplier reading that is really one of our
// own store names.
func (o *Orchestrator) resolveSupplier(inv *invoice.Invoice) {
	if inv.Supplier == nil {
		return
	}
	inv.Supplier = catalog.ResolveSupplier(*inv.Supplier, o.Config.SelfAliases)
}

// persist saves the result for audit. Best effort.
func (o *Orchestrator) persist(ctx context.Context, rc *common.RequestContext, key string, result invoice.Result) {
	err := storage.SaveResult(ctx, storage.ResultRecord{
		RequestID: rc.RequestID,
		ImageHash: key,
		Result:    result,
		CreatedAt: time.Now(),
	})
	if err != nil {
		rc.LogWarning("result not persisted: %v", err)
	}
}

func (o *Orchestrator) errorResult(rc *common.RequestContext, msg string) invoice.Result {
	rc.LogError("%s", msg)
	rc.GetSummary()
	return invoice.Result{
		Status:  "error",
		Message: msg,
		Timing:  rc.StepTimings(),
	}
}
