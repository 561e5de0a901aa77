// detect.go - Table cell detection on the full page

package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/warungtech/invoice-ocr/internal/invoice"
)

// DetectCells segments a full invoice page into word-level cells with
// bounding boxes. Detection and first-pass recognition come out of the
// same Tesseract call, so every cell already carries a text guess and a
// confidence for the cascade to judge.
func (t *TesseractEngine) DetectCells(ctx context.Context, page []byte) ([]invoice.Cell, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(strings.Split(t.languages, "+")...); err != nil {
		return nil, fmt.Errorf("tesseract language %q: %w", t.languages, err)
	}
	client.SetPageSegMode(gosseract.PSM_AUTO)
	if err := client.SetImageFromBytes(page); err != nil {
		return nil, fmt.Errorf("tesseract set image: %w", err)
	}

	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, fmt.Errorf("tesseract detect: %w", err)
	}
	if len(boxes) == 0 {
		return nil, fmt.Errorf("no text regions found on page")
	}

	cells := make([]invoice.Cell, 0, len(boxes))
	for _, box := range boxes {
		cells = append(cells, invoice.Cell{
			BBox: invoice.BBox{
				X1: box.Box.Min.X,
				Y1: box.Box.Min.Y,
				X2: box.Box.Max.X,
				Y2: box.Box.Max.Y,
			},
			Text:       strings.TrimSpace(box.Word),
			Confidence: box.Confidence / 100,
		})
	}
	return cells, nil
}
