package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rcm/rcm/internal/platform/export"
	"github.com/rcm/rcm/pkg/coerce"
)

// Render serialises a result in one of the report download formats.
func Render(def *Definition, res *Result, format export.Format) ([]byte, error) {
	switch format {
	case export.FormatCSV:
		return []byte(export.CSV(res.Columns, res.Data)), nil
	case export.FormatJSON:
		return export.JSON(map[string]interface{}{
			"report":     def.Name,
			"data":       res.Data,
			"aggregates": res.Aggregates,
			"metadata":   res.Metadata,
		})
	case export.FormatText:
		return []byte(Text(def, res)), nil
	case export.FormatPDF:
		return export.PDF(table(def, res))
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, string(format))
	}
}

func summaryKeys(res *Result) []string {
	keys := make([]string, 0, len(res.Aggregates))
	for k := range res.Aggregates {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func header(def *Definition, res *Result) [][2]string {
	meta := [][2]string{
		{"Report", def.Name},
		{"Description", def.Description},
		{"Data source", def.DataSource},
		{"Generated", res.Metadata.GeneratedAt.Format(time.RFC3339)},
		{"Records", fmt.Sprint(res.Metadata.RecordCount)},
	}
	for _, k := range summaryKeys(res) {
		meta = append(meta, [2]string{k, coerce.ToString(res.Aggregates[k])})
	}
	return meta
}

// Text is a plain dump: metadata lines, a blank line, then tab-separated
// rows under a header of output column names.
func Text(def *Definition, res *Result) string {
	var b strings.Builder
	for _, kv := range header(def, res) {
		if kv[1] == "" {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", kv[0], kv[1])
	}
	b.WriteString("\n")
	b.WriteString(strings.Join(res.Columns, "\t"))
	for _, r := range res.Data {
		b.WriteString("\n")
		cells := make([]string, len(res.Columns))
		for i, c := range res.Columns {
			cells[i] = export.Cell(r[c])
		}
		b.WriteString(strings.Join(cells, "\t"))
	}
	b.WriteString("\n")
	return b.String()
}

func table(def *Definition, res *Result) export.Table {
	t := export.Table{
		Title:   def.Name,
		Meta:    header(def, res)[1:],
		Columns: res.Columns,
		Rows:    make([][]string, len(res.Data)),
	}
	for i, r := range res.Data {
		row := make([]string, len(res.Columns))
		for j, c := range res.Columns {
			row[j] = export.Cell(r[c])
		}
		t.Rows[i] = row
	}
	return t
}
