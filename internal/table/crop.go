// crop.go - Carves detected cell regions out of the page image

package table

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"

	"github.com/warungtech/invoice-ocr/internal/invoice"
)

// CropCells fills in the Image bytes of each cell by cutting its bounding
// box out of the decoded page. Boxes that fall outside the page or have
// no area are tagged rather than dropped, so row reconstruction still
// sees them.
func CropCells(page image.Image, cells []invoice.Cell) ([]invoice.Cell, error) {
	if page == nil {
		return nil, fmt.Errorf("nil page image")
	}

	bounds := page.Bounds()
	out := make([]invoice.Cell, len(cells))
	for i, cell := range cells {
		out[i] = cell

		rect := image.Rect(cell.BBox.X1, cell.BBox.Y1, cell.BBox.X2, cell.BBox.Y2).
			Intersect(bounds)
		if rect.Empty() {
			out[i].ErrTag = "empty_region"
			continue
		}

		region := imaging.Crop(page, rect)
		var buf bytes.Buffer
		if err := imaging.Encode(&buf, region, imaging.PNG); err != nil {
			out[i].ErrTag = "encode_failed"
			continue
		}
		out[i].Image = buf.Bytes()
	}
	return out, nil
}
