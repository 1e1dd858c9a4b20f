package report

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/rcm/rcm/internal/platform/db"
	"github.com/rcm/rcm/pkg/coerce"
)

const groupKeySep = "|"

// Generate runs the definition over rows: filter, group, sort, select and
// rename, then compute the summary aggregates. Summary keys are the original
// field names; the values are read from the renamed output columns. rows is
// not modified.
func Generate(rows []db.Record, def Definition) *Result {
	start := time.Now()

	out := filterRows(rows, def.Filters)
	if len(def.GroupBy) > 0 {
		out = groupRows(out, def.GroupBy, def.Fields)
	}
	if len(def.SortBy) > 0 {
		sortRows(out, def.SortBy)
	}
	selected := selectFields(out, def.Fields)

	res := &Result{
		Columns:    make([]string, len(def.Fields)),
		Data:       selected,
		Aggregates: make(map[string]float64),
	}
	for i, f := range def.Fields {
		res.Columns[i] = f.OutputName()
		if f.Aggregate == "" {
			continue
		}
		values := make([]interface{}, len(selected))
		for j, r := range selected {
			values[j] = r[f.OutputName()]
		}
		res.Aggregates[f.Name] = compute(f.Aggregate, values)
	}
	res.Metadata = Metadata{
		GeneratedAt:     start.UTC(),
		RecordCount:     len(selected),
		ExecutionTimeMs: time.Since(start).Milliseconds(),
		SourceRows:      len(rows),
	}
	return res
}

func filterRows(rows []db.Record, filters []Filter) []db.Record {
	out := make([]db.Record, 0, len(rows))
	for _, r := range rows {
		keep := true
		for _, f := range filters {
			if !matches(r[f.Field], f) {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, r)
		}
	}
	return out
}

func matches(v interface{}, f Filter) bool {
	switch f.Operator {
	case OpEquals:
		return equal(v, f.Value)
	case OpNotEquals:
		return !equal(v, f.Value)
	case OpContains:
		return strings.Contains(strings.ToLower(coerce.ToString(v)), strings.ToLower(coerce.ToString(f.Value)))
	case OpGreaterThan:
		return v != nil && compare(v, f.Value) > 0
	case OpLessThan:
		return v != nil && compare(v, f.Value) < 0
	case OpBetween:
		bounds, _ := asList(f.Value)
		if v == nil || len(bounds) != 2 {
			return false
		}
		return compare(v, bounds[0]) >= 0 && compare(v, bounds[1]) <= 0
	case OpIn:
		list, _ := asList(f.Value)
		for _, item := range list {
			if equal(v, item) {
				return true
			}
		}
		return false
	}
	// Unknown operators never reach here; Validate rejects them.
	return true
}

func equal(a, b interface{}) bool {
	if c, ok := compareTimes(a, b); ok {
		return c == 0
	}
	if af, ok := coerce.Number(a); ok {
		if bf, ok := coerce.Number(b); ok {
			return af == bf
		}
	}
	return coerce.ToString(a) == coerce.ToString(b)
}

// compare orders numbers numerically, times chronologically and everything
// else by its string form. nil sorts first.
func compare(a, b interface{}) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	if c, ok := compareTimes(a, b); ok {
		return c
	}
	if af, ok := coerce.Number(a); ok {
		if bf, ok := coerce.Number(b); ok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			}
			return 0
		}
	}
	return strings.Compare(coerce.ToString(a), coerce.ToString(b))
}

// compareTimes applies when either side is a time value and the other side
// reads as one. A date-only operand compares calendar days in UTC, so
// DATE and TIMESTAMPTZ columns both filter against "YYYY-MM-DD".
func compareTimes(a, b interface{}) (int, bool) {
	if at, ok := timeValue(a); ok {
		bt, dateOnly, ok := coerce.Time(b)
		if !ok {
			return 0, false
		}
		if dateOnly {
			at = utcDay(at)
		}
		return at.Compare(bt), true
	}
	if _, ok := timeValue(b); ok {
		c, ok := compareTimes(b, a)
		return -c, ok
	}
	return 0, false
}

func timeValue(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case *time.Time:
		if t != nil {
			return *t, true
		}
	}
	return time.Time{}, false
}

func utcDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// groupRows collapses rows sharing the group-by values into one row holding
// the key values and, for every aggregated field, the aggregate over the
// group. Groups keep first-seen order.
func groupRows(rows []db.Record, groupBy []string, fields []Field) []db.Record {
	var order []string
	members := make(map[string][]db.Record)
	for _, r := range rows {
		parts := make([]string, len(groupBy))
		for i, g := range groupBy {
			parts[i] = coerce.ToString(r[g])
		}
		key := strings.Join(parts, groupKeySep)
		if _, ok := members[key]; !ok {
			order = append(order, key)
		}
		members[key] = append(members[key], r)
	}

	out := make([]db.Record, 0, len(order))
	for _, key := range order {
		group := members[key]
		row := make(db.Record, len(groupBy)+len(fields))
		for _, g := range groupBy {
			row[g] = group[0][g]
		}
		for _, f := range fields {
			if f.Aggregate == "" {
				continue
			}
			values := make([]interface{}, len(group))
			for i, m := range group {
				values[i] = m[f.Name]
			}
			row[f.Name] = compute(f.Aggregate, values)
		}
		out = append(out, row)
	}
	return out
}

func sortRows(rows []db.Record, keys []Sort) {
	sort.SliceStable(rows, func(i, j int) bool {
		for _, k := range keys {
			c := compare(rows[i][k.Field], rows[j][k.Field])
			if c == 0 {
				continue
			}
			if k.Descending() {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

func selectFields(rows []db.Record, fields []Field) []db.Record {
	out := make([]db.Record, len(rows))
	for i, r := range rows {
		sel := make(db.Record, len(fields))
		for _, f := range fields {
			sel[f.OutputName()] = r[f.Name]
		}
		out[i] = sel
	}
	return out
}

// compute applies fn to the numeric members of values. Non-numeric values
// are skipped by every function, count included. Empty input yields 0.
func compute(fn Aggregate, values []interface{}) float64 {
	nums := make([]float64, 0, len(values))
	for _, v := range values {
		if n, ok := coerce.Number(v); ok {
			nums = append(nums, n)
		}
	}
	if len(nums) == 0 {
		return 0
	}
	switch fn {
	case AggCount:
		return float64(len(nums))
	case AggSum, AggAvg:
		var sum float64
		for _, n := range nums {
			sum += n
		}
		if fn == AggAvg {
			return sum / float64(len(nums))
		}
		return sum
	case AggMin:
		m := math.Inf(1)
		for _, n := range nums {
			m = math.Min(m, n)
		}
		return m
	case AggMax:
		m := math.Inf(-1)
		for _, n := range nums {
			m = math.Max(m, n)
		}
		return m
	}
	return 0
}
