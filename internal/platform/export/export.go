// Package export serialises record sets for download: the quoted CSV layout
// the billing UI imports, indented JSON, Excel workbooks and simple PDF
// tables.
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rcm/rcm/pkg/coerce"
)

// Record is one row keyed by column name.
type Record = map[string]interface{}

// Format is a download format.
type Format string

const (
	FormatCSV   Format = "csv"
	FormatJSON  Format = "json"
	FormatExcel Format = "excel"
	FormatPDF   Format = "pdf"
	FormatText  Format = "txt"
)

// Extension is the filename extension for the format.
func (f Format) Extension() string {
	switch f {
	case FormatExcel:
		return "xlsx"
	default:
		return string(f)
	}
}

// ContentType is the MIME type served with the format.
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatJSON:
		return "application/json"
	case FormatExcel:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatPDF:
		return "application/pdf"
	default:
		return "text/plain; charset=utf-8"
	}
}

// Filename builds "<target>_export_<YYYY-MM-DD>.<ext>".
func Filename(target string, f Format, now time.Time) string {
	return fmt.Sprintf("%s_export_%s.%s", target, now.Format("2006-01-02"), f.Extension())
}

// Columns returns the keys of the first record in sorted order. Callers that
// know the source column order should pass it to CSV directly instead.
func Columns(records []Record) []string {
	if len(records) == 0 {
		return nil
	}
	cols := make([]string, 0, len(records[0]))
	for k := range records[0] {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

// CSV writes the header row unquoted, then every value wrapped in double
// quotes with embedded quotes doubled. nil becomes an empty string; maps and
// slices are JSON encoded first. Rows are separated by "\n".
func CSV(columns []string, records []Record) string {
	if len(records) == 0 {
		return ""
	}
	if len(columns) == 0 {
		columns = Columns(records)
	}

	var b strings.Builder
	b.WriteString(strings.Join(columns, ","))
	for _, rec := range records {
		b.WriteByte('\n')
		for i, col := range columns {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(QuoteCSV(Cell(rec[col])))
		}
	}
	return b.String()
}

// QuoteCSV wraps v in double quotes, doubling any it contains.
func QuoteCSV(v string) string {
	return `"` + strings.ReplaceAll(v, `"`, `""`) + `"`
}

// Cell renders a value as CSV/text cell content.
func Cell(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case map[string]interface{}, []interface{}, []string, []map[string]interface{}:
		raw, err := json.Marshal(x)
		if err != nil {
			return ""
		}
		return string(raw)
	default:
		return coerce.ToString(v)
	}
}

// ParseCSV reads a document with a header row into records of strings.
func ParseCSV(data string) ([]string, []map[string]string, error) {
	r := csv.NewReader(strings.NewReader(data))
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil, nil
	}
	header := rows[0]
	out := make([]map[string]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		rec := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(row) {
				rec[col] = row[i]
			}
		}
		out = append(out, rec)
	}
	return header, out, nil
}

// JSON pretty-prints v with two-space indentation.
func JSON(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("encode json: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
