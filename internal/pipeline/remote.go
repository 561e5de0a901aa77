// remote.go - Whole-document remote fallback and payload parsing

package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	jsonrepair "github.com/RealAlexandreAI/json-repair"

	"github.com/warungtech/invoice-ocr/internal/common"
	"github.com/warungtech/invoice-ocr/internal/engine"
	"github.com/warungtech/invoice-ocr/internal/invoice"
	"github.com/warungtech/invoice-ocr/internal/numeric"
	"github.com/warungtech/invoice-ocr/internal/table"
	"github.com/warungtech/invoice-ocr/internal/validate"
)

// documentFallback asks the remote engine to read the whole page when
// table extraction failed. One retry, then the request fails.
func (o *Orchestrator) documentFallback(ctx context.Context, rc *common.RequestContext, page []byte) (invoice.Invoice, error) {
	if o.Remote == nil {
		return invoice.Invoice{}, fmt.Errorf("table extraction failed and no remote engine is configured")
	}

	var lastErr error
	for attempt := 1; attempt <= 2; attempt++ {
		if attempt > 1 && o.Config.RetryDelay > 0 {
			select {
			case <-ctx.Done():
				return invoice.Invoice{}, ctx.Err()
			case <-time.After(o.Config.RetryDelay):
			}
		}
		callCtx := ctx
		if o.Config.RemoteTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, o.Config.RemoteTimeout)
			defer cancel()
		}

		raw, err := o.Remote.Recognize(callCtx, page, engine.DocumentInstruction)
		if err != nil {
			lastErr = err
			rc.LogWarning("document fallback attempt %d failed: %v", attempt, err)
			continue
		}
		rc.AddRemoteCalls(1)

		inv, err := parseDocumentPayload(raw)
		if err != nil {
			lastErr = err
			rc.LogWarning("document fallback attempt %d returned unusable payload: %v", attempt, err)
			continue
		}
		return inv, nil
	}
	return invoice.Invoice{}, lastErr
}

// parseDocumentPayload turns the model's JSON into an invoice. Two
// shapes are accepted: a "lines" array of ready rows, or a "positions"
// array of cells with bounding boxes that still needs row
// reconstruction. Malformed JSON goes through repair first.
func parseDocumentPayload(raw string) (invoice.Invoice, error) {
	repaired, err := jsonrepair.RepairJSON(raw)
	if err != nil {
		return invoice.Invoice{}, fmt.Errorf("unparseable remote payload: %w", err)
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(repaired), &payload); err != nil {
		return invoice.Invoice{}, fmt.Errorf("remote payload is not an object: %w", err)
	}

	if rawLines, ok := payload["lines"]; ok {
		list, ok := rawLines.([]any)
		if !ok {
			// Wrong type is terminal, not retryable: the model answered,
			// just not with a table.
			return validate.StructuralError("remote payload field \"lines\" is not a list"), nil
		}
		return invoiceFromLines(list, payload), nil
	}

	if rawPositions, ok := payload["positions"]; ok {
		list, ok := rawPositions.([]any)
		if !ok {
			return validate.StructuralError("remote payload field \"positions\" is not a list"), nil
		}
		return invoiceFromPositions(list, payload), nil
	}

	return invoice.Invoice{}, fmt.Errorf("remote payload has neither lines nor positions")
}

func invoiceFromLines(list []any, payload map[string]any) invoice.Invoice {
	inv := invoice.Invoice{}
	for _, raw := range list {
		entry, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		inv.Lines = append(inv.Lines, invoice.Line{
			Name:   asString(entry["name"]),
			Qty:    asFloat(entry["qty"]),
			Unit:   strings.ToLower(asString(entry["unit"])),
			Price:  asFloat(entry["price"]),
			Amount: asFloat(entry["amount"]),
		})
	}
	applyHeader(&inv, payload)
	inv.Metadata.CellCount = len(inv.Lines) * 5
	return inv
}

// invoiceFromPositions rebuilds rows from cell positions the same way
// the local path does.
func invoiceFromPositions(list []any, payload map[string]any) invoice.Invoice {
	var cells []invoice.Cell
	for _, raw := range list {
		entry, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		bbox, ok := asBBox(entry["bbox"])
		if !ok {
			continue
		}
		cells = append(cells, invoice.Cell{
			BBox:       bbox,
			Text:       asString(entry["text"]),
			Confidence: asFloat(entry["confidence"]),
			UsedRemote: true,
		})
	}

	inv := invoice.Invoice{Lines: table.Reconstruct(cells)}
	applyHeader(&inv, payload)
	inv.Metadata.CellCount = len(cells)
	inv.Metadata.RemoteCells = len(cells)
	return inv
}

// applyHeader lifts optional invoice-level fields out of the payload.
func applyHeader(inv *invoice.Invoice, payload map[string]any) {
	if supplier := strings.TrimSpace(asString(payload["supplier"])); supplier != "" {
		inv.Supplier = &supplier
	}
	if total := asFloat(payload["total_price"]); total > 0 {
		inv.TotalPrice = &total
	} else if total := asFloat(payload["total"]); total > 0 {
		inv.TotalPrice = &total
	}
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case float64:
		return fmt.Sprintf("%v", s)
	default:
		return ""
	}
}

// asFloat accepts numbers and formatted strings; the model sometimes
// writes "10.000" where it means ten thousand rupiah.
func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case string:
		return numeric.ParseFloat(n, 0)
	default:
		return 0
	}
}

func asBBox(v any) (invoice.BBox, bool) {
	list, ok := v.([]any)
	if !ok || len(list) != 4 {
		return invoice.BBox{}, false
	}
	coords := make([]int, 4)
	for i, c := range list {
		f, ok := c.(float64)
		if !ok {
			return invoice.BBox{}, false
		}
		coords[i] = int(f)
	}
	return invoice.BBox{X1: coords[0], Y1: coords[1], X2: coords[2], Y2: coords[3]}, true
}
