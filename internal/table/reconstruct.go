// reconstruct.go - Builds ordered invoice lines from unordered detector cells

package table

import (
	"sort"
	"strings"

	"github.com/warungtech/invoice-ocr/internal/invoice"
	"github.com/warungtech/invoice-ocr/internal/numeric"
)

const (
	// Cells whose top edges are within this many pixels belong to the
	// same row.
	rowTolerancePx = 20

	// Below this cell count the input is too sparse to be a real table
	// with a header row (two full five-column rows or fewer), so no row
	// is dropped.
	headerMinCells = 11
)

// Reconstruct groups cells into rows by vertical position, orders them,
// and maps each row positionally onto the fixed invoice columns
// name | qty | unit | price | amount.
//
// An empty cell slice yields an empty line slice: the caller treats that
// as "no table found", not as an error. Rows with fewer than two cells
// are still emitted so validation can flag them as incomplete.
func Reconstruct(cells []invoice.Cell) []invoice.Line {
	if len(cells) == 0 {
		return []invoice.Line{}
	}

	rows := groupRows(cells)

	sort.Slice(rows, func(i, j int) bool { return rows[i].topY < rows[j].topY })

	// The first row of a real table is the column header.
	if len(rows) > 1 && len(cells) >= headerMinCells {
		rows = rows[1:]
	}

	lines := make([]invoice.Line, 0, len(rows))
	for _, row := range rows {
		sort.Slice(row.cells, func(i, j int) bool {
			return row.cells[i].BBox.X1 < row.cells[j].BBox.X1
		})
		lines = append(lines, buildLine(row.cells))
	}
	return lines
}

type rowGroup struct {
	topY  int
	cells []invoice.Cell
}

// groupRows assigns each cell to the first existing group whose anchor
// top-y is within tolerance, or starts a new group.
func groupRows(cells []invoice.Cell) []rowGroup {
	var rows []rowGroup
	for _, cell := range cells {
		y := cell.BBox.Y1
		placed := false
		for i := range rows {
			if abs(rows[i].topY-y) < rowTolerancePx {
				rows[i].cells = append(rows[i].cells, cell)
				placed = true
				break
			}
		}
		if !placed {
			rows = append(rows, rowGroup{topY: y, cells: []invoice.Cell{cell}})
		}
	}
	return rows
}

// buildLine maps left-to-right sorted cells onto the semantic columns,
// substituting defaults when the row is short.
func buildLine(row []invoice.Cell) invoice.Line {
	name := cellText(row, 0, "")
	qtyText := cellText(row, 1, "0")
	unit := cellText(row, 2, "pcs")
	priceText := cellText(row, 3, "0")
	amountText := cellText(row, 4, "0")

	line := invoice.Line{
		Name:   strings.TrimSpace(name),
		Qty:    numeric.ParseFloat(qtyText, 0),
		Unit:   strings.ToLower(strings.TrimSpace(unit)),
		Price:  numeric.ParseFloat(priceText, 0),
		Amount: numeric.ParseFloat(amountText, 0),
	}

	for _, c := range row {
		line.Cells = append(line.Cells, invoice.CellTrace{
			Text:       c.Text,
			Confidence: c.Confidence,
			UsedRemote: c.UsedRemote,
		})
	}
	return line
}

// cellText returns the recognized text of row[idx], falling back to the
// structural hint carried on the cell, then to def.
func cellText(row []invoice.Cell, idx int, def string) string {
	if idx >= len(row) {
		return def
	}
	if row[idx].Text != "" {
		return row[idx].Text
	}
	if row[idx].StructureText != "" {
		return row[idx].StructureText
	}
	return def
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
