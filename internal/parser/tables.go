package parser

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

// Distances are in multiples of the glyph's font size.
const (
	rowTolerance = 0.5
	cellGap      = 2.0
	wordGap      = 0.2
	glyphWidth   = 0.5 // used when the font has no width table

	minTableRows = 2
	minTableCols = 2
)

type glyph struct {
	X, Y, W, Size float64
	S             string
}

func pageGlyphs(page pdf.Page) (glyphs []glyph, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("read glyphs: %v", r)
		}
	}()
	for _, t := range page.Content().Text {
		glyphs = append(glyphs, glyph{X: t.X, Y: t.Y, W: t.W, Size: t.FontSize, S: t.S})
	}
	return glyphs, nil
}

// detectTables finds runs of at least two consecutive rows that split into
// the same number (two or more) of cells.
func detectTables(glyphs []glyph) [][][]string {
	var tables [][][]string
	var run [][]string
	flush := func() {
		if len(run) >= minTableRows {
			tables = append(tables, run)
		}
		run = nil
	}

	for _, row := range groupRows(glyphs) {
		cells := splitCells(row)
		if len(cells) < minTableCols {
			flush()
			continue
		}
		if len(run) > 0 && len(run[0]) != len(cells) {
			flush()
		}
		run = append(run, cells)
	}
	flush()
	return tables
}

// groupRows buckets glyphs by baseline, top of the page first, each row
// ordered left to right.
func groupRows(glyphs []glyph) [][]glyph {
	sorted := slices.Clone(glyphs)
	slices.SortStableFunc(sorted, func(a, b glyph) int {
		return cmp.Compare(b.Y, a.Y)
	})

	var rows [][]glyph
	var baseline float64
	for _, g := range sorted {
		if strings.TrimSpace(g.S) == "" {
			continue
		}
		n := len(rows)
		if n > 0 && math.Abs(g.Y-baseline) <= rowTolerance*fontSize(g) {
			rows[n-1] = append(rows[n-1], g)
			continue
		}
		rows = append(rows, []glyph{g})
		baseline = g.Y
	}
	for _, row := range rows {
		slices.SortStableFunc(row, func(a, b glyph) int {
			return cmp.Compare(a.X, b.X)
		})
	}
	return rows
}

func splitCells(row []glyph) []string {
	var cells []string
	var cell strings.Builder
	var end float64
	for i, g := range row {
		size := fontSize(g)
		if i > 0 {
			gap := g.X - end
			switch {
			case gap > cellGap*size:
				cells = append(cells, strings.TrimSpace(cell.String()))
				cell.Reset()
			case gap > wordGap*size:
				cell.WriteByte(' ')
			}
		}
		cell.WriteString(g.S)

		w := g.W
		if w <= 0 {
			w = glyphWidth * size * float64(utf8.RuneCountInString(g.S))
		}
		end = g.X + w
	}
	if cell.Len() > 0 {
		cells = append(cells, strings.TrimSpace(cell.String()))
	}
	return cells
}

func fontSize(g glyph) float64 {
	return max(g.Size, 1)
}
