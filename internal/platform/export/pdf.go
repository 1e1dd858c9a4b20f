package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

// Table is the content of a tabular PDF: a title, key/value header lines and
// a grid of rows.
type Table struct {
	Title   string
	Meta    [][2]string
	Columns []string
	Rows    [][]string
}

const (
	pdfMaxCellChars = 28
	pdfRowHeight    = 6.0
)

// PDF lays the table out on landscape A4 pages, repeating the column header
// after each page break.
func PDF(t Table) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(10, 10, 10)
	pdf.SetAutoPageBreak(true, 12)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(0, 10, tr(t.Title))
	pdf.Ln(12)

	pdf.SetFont("Arial", "", 10)
	for _, kv := range t.Meta {
		pdf.Cell(0, pdfRowHeight, tr(kv[0]+": "+kv[1]))
		pdf.Ln(pdfRowHeight)
	}
	pdf.Ln(4)

	if len(t.Columns) > 0 {
		pageW, _ := pdf.GetPageSize()
		left, _, right, _ := pdf.GetMargins()
		colW := (pageW - left - right) / float64(len(t.Columns))

		header := func() {
			pdf.SetFont("Arial", "B", 9)
			pdf.SetFillColor(230, 230, 230)
			for _, c := range t.Columns {
				pdf.CellFormat(colW, pdfRowHeight+1, tr(clip(c)), "1", 0, "L", true, 0, "")
			}
			pdf.Ln(-1)
			pdf.SetFont("Arial", "", 8)
		}
		pdf.SetHeaderFunc(func() {
			if pdf.PageNo() > 1 {
				header()
			}
		})
		header()

		for _, row := range t.Rows {
			for i := range t.Columns {
				v := ""
				if i < len(row) {
					v = row[i]
				}
				pdf.CellFormat(colW, pdfRowHeight, tr(clip(v)), "1", 0, "L", false, 0, "")
			}
			pdf.Ln(-1)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func clip(s string) string {
	r := []rune(s)
	if len(r) <= pdfMaxCellChars {
		return s
	}
	return string(r[:pdfMaxCellChars-1]) + "…"
}
