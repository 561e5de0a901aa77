// cells.go - Remote escalation for low-confidence table cells

package pipeline

import (
	"context"
	"strings"
	"sync"

	"github.com/warungtech/invoice-ocr/internal/common"
	"github.com/warungtech/invoice-ocr/internal/engine"
	"github.com/warungtech/invoice-ocr/internal/invoice"
)

// remoteConfidence is assigned to text the remote engine returns; the
// vision model does not report a per-cell score.
const remoteConfidence = 0.95

// needsRemote decides whether a locally recognized cell is trustworthy.
// Tiny crops go remote unconditionally: Tesseract has nothing to work
// with below ~15px.
func (o *Orchestrator) needsRemote(cell invoice.Cell) bool {
	if cell.UsedRemote || cell.ErrTag != "" || len(cell.Image) == 0 {
		return false
	}
	if strings.TrimSpace(cell.Text) == "" {
		return true
	}
	if cell.Confidence < o.Config.ConfidenceThreshold {
		return true
	}
	minDim := cell.BBox.Width()
	if h := cell.BBox.Height(); h < minDim {
		minDim = h
	}
	return minDim < o.Config.MinCellPx
}

// localPass re-reads cells the detector produced no text for, using the
// cropped region instead of the full page. A tight crop with the right
// segmentation mode often succeeds where the page pass did not.
func (o *Orchestrator) localPass(ctx context.Context, cells []invoice.Cell) []invoice.Cell {
	if o.Local == nil {
		return cells
	}
	for i := range cells {
		cell := &cells[i]
		if strings.TrimSpace(cell.Text) != "" || cell.ErrTag != "" || len(cell.Image) == 0 {
			continue
		}
		guesses, err := o.Local.Recognize(ctx, cell.Image)
		if err != nil || len(guesses) == 0 {
			continue
		}
		best := guesses[0]
		for _, g := range guesses[1:] {
			if g.Confidence > best.Confidence {
				best = g
			}
		}
		cell.Text = best.Text
		cell.Confidence = best.Confidence
	}
	return cells
}

// escalateCells re-recognizes untrustworthy cells with the remote
// engine, in bounded parallel chunks. A chunk that fails as a whole is
// replayed sequentially so one bad cell cannot sink its neighbours.
func (o *Orchestrator) escalateCells(ctx context.Context, rc *common.RequestContext, cells []invoice.Cell) []invoice.Cell {
	var pending []int
	for i := range cells {
		if o.needsRemote(cells[i]) {
			pending = append(pending, i)
		}
	}
	if len(pending) == 0 {
		return cells
	}
	if o.Remote == nil {
		rc.LogWarning("%d cells need escalation but no remote engine is configured", len(pending))
		return cells
	}

	chunkSize := len(pending) / 4
	if chunkSize < 1 {
		chunkSize = 1
	}
	if max := o.Config.MaxParallelCells; max > 0 && chunkSize > max {
		chunkSize = max
	}
	rc.LogInfo("escalating %d/%d cells to %s (chunks of %d)",
		len(pending), len(cells), o.Remote.Name(), chunkSize)

	for start := 0; start < len(pending); start += chunkSize {
		end := start + chunkSize
		if end > len(pending) {
			end = len(pending)
		}
		chunk := pending[start:end]

		if err := o.recognizeChunk(ctx, cells, chunk); err != nil {
			rc.LogWarning("parallel chunk failed (%v), replaying sequentially", err)
			o.recognizeSequential(ctx, rc, cells, chunk)
		}
	}

	remote := 0
	for i := range cells {
		if cells[i].UsedRemote {
			remote++
		}
	}
	rc.AddRemoteCalls(remote)
	return cells
}

// recognizeChunk runs one chunk of cell indexes in parallel and returns
// the first error, if any. Cells that succeeded before the failure keep
// their remote text.
func (o *Orchestrator) recognizeChunk(ctx context.Context, cells []invoice.Cell, chunk []int) error {
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for _, idx := range chunk {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			if err := o.recognizeRemote(ctx, &cells[idx]); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}(idx)
	}
	wg.Wait()
	return firstErr
}

// recognizeSequential is the degraded path: one cell at a time, failures
// tagged on the cell and logged, never fatal for the request.
func (o *Orchestrator) recognizeSequential(ctx context.Context, rc *common.RequestContext, cells []invoice.Cell, chunk []int) {
	for _, idx := range chunk {
		if cells[idx].UsedRemote {
			continue
		}
		if err := o.recognizeRemote(ctx, &cells[idx]); err != nil {
			rc.LogWarning("cell %d failed remotely, keeping local text: %v", idx, err)
		}
	}
}

// recognizeRemote sends one cell crop to the remote engine. On failure
// the cell keeps whatever the local engine read and is tagged with the
// error category.
func (o *Orchestrator) recognizeRemote(ctx context.Context, cell *invoice.Cell) error {
	callCtx := ctx
	if o.Config.RemoteTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, o.Config.RemoteTimeout)
		defer cancel()
	}

	text, err := o.Remote.Recognize(callCtx, cell.Image, engine.CellInstruction)
	if err != nil {
		cell.ErrTag = engine.Categorize(o.Remote.Name(), err).Category
		return err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		// The model saw nothing either; the local guess stands.
		return nil
	}
	cell.Text = text
	cell.Confidence = remoteConfidence
	cell.UsedRemote = true
	cell.ErrTag = ""
	return nil
}
