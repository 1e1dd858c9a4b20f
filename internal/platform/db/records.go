package db

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// Record is one untyped result row keyed by column name.
type Record = map[string]interface{}

// CollectRecords drains rows into records and returns the column order as
// reported by the database. Driver-specific values are normalised so records
// serialise cleanly: numerics become float64, uuids become strings.
func CollectRecords(rows pgx.Rows) ([]string, []Record, error) {
	defer rows.Close()

	fields := rows.FieldDescriptions()
	cols := make([]string, len(fields))
	for i, fd := range fields {
		cols[i] = fd.Name
	}

	var out []Record
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, nil, fmt.Errorf("read row values: %w", err)
		}
		rec := make(Record, len(cols))
		for i, col := range cols {
			rec[col] = NormalizeValue(values[i])
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate rows: %w", err)
	}
	return cols, out, nil
}

func NormalizeValue(v interface{}) interface{} {
	switch x := v.(type) {
	case pgtype.Numeric:
		if !x.Valid {
			return nil
		}
		f, err := x.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	case [16]byte:
		return uuid.UUID(x).String()
	case []byte:
		return string(x)
	default:
		return v
	}
}
