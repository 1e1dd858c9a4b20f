package report

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcm/rcm/internal/platform/db"
)

func amounts(values ...interface{}) []db.Record {
	rows := make([]db.Record, len(values))
	for i, v := range values {
		rows[i] = db.Record{"id": i, "amount": v}
	}
	return rows
}

func TestCompute_SkipsNonNumeric(t *testing.T) {
	values := []interface{}{10, 20, "bad", 30}
	assert.Equal(t, 60.0, compute(AggSum, values))
	assert.Equal(t, 20.0, compute(AggAvg, values))
	assert.Equal(t, 3.0, compute(AggCount, values))
	assert.Equal(t, 10.0, compute(AggMin, values))
	assert.Equal(t, 30.0, compute(AggMax, values))
}

func TestCompute_EmptyIsZero(t *testing.T) {
	for _, fn := range []Aggregate{AggSum, AggAvg, AggCount, AggMin, AggMax} {
		assert.Equal(t, 0.0, compute(fn, nil), "%s", fn)
		assert.Equal(t, 0.0, compute(fn, []interface{}{"x", nil}), "%s", fn)
	}
}

func TestGenerate_SummaryKeyedByFieldName(t *testing.T) {
	def := Definition{Fields: []Field{{Name: "amount", Label: "Amount", Aggregate: AggSum}}}
	res := Generate(amounts(10, 20, "bad", 30), def)

	assert.Equal(t, []string{"Amount"}, res.Columns)
	assert.Equal(t, 60.0, res.Aggregates["amount"])
	_, byLabel := res.Aggregates["Amount"]
	assert.False(t, byLabel)
	assert.Equal(t, 4, res.Metadata.RecordCount)
	assert.Equal(t, 4, res.Metadata.SourceRows)
	assert.Equal(t, "bad", res.Data[2]["Amount"])
}

func TestGenerate_GroupsAndSorts(t *testing.T) {
	rows := newMockRepo().rows["claim_denials"]
	res := Generate(rows, *denialsByCode())

	require.Len(t, res.Data, 2)
	assert.Equal(t, db.Record{"Code": "CO-50", "Denied": 150.0}, res.Data[0])
	assert.Equal(t, db.Record{"Code": "CO-97", "Denied": 20.0}, res.Data[1])
	assert.Equal(t, 170.0, res.Aggregates["denied_amount"])
	assert.Equal(t, 3, res.Metadata.SourceRows)
}

func TestGenerate_GroupsKeepFirstSeenOrder(t *testing.T) {
	rows := []db.Record{
		{"payer": "Cigna", "status": "open"},
		{"payer": "Aetna", "status": "open"},
		{"payer": "Cigna", "status": "closed"},
	}
	def := Definition{
		Fields:  []Field{{Name: "payer"}},
		GroupBy: []string{"payer"},
	}
	res := Generate(rows, def)
	require.Len(t, res.Data, 2)
	assert.Equal(t, "Cigna", res.Data[0]["payer"])
	assert.Equal(t, "Aetna", res.Data[1]["payer"])
}

func TestGenerate_MultiKeyStableSort(t *testing.T) {
	rows := []db.Record{
		{"id": "a", "payer": "Cigna", "amount": 5},
		{"id": "b", "payer": "Aetna", "amount": 5},
		{"id": "c", "payer": "Aetna", "amount": 9},
		{"id": "d", "payer": "Aetna", "amount": 5},
	}
	def := Definition{
		Fields: []Field{{Name: "id"}},
		SortBy: []Sort{{Field: "payer"}, {Field: "amount", Direction: "desc"}},
	}
	res := Generate(rows, def)
	var ids []interface{}
	for _, r := range res.Data {
		ids = append(ids, r["id"])
	}
	assert.Equal(t, []interface{}{"c", "b", "d", "a"}, ids)
}

func TestGenerate_Filters(t *testing.T) {
	rows := []db.Record{
		{"id": 1, "amount": 10, "status": "Open"},
		{"id": 2, "amount": "20", "status": "closed"},
		{"id": 3, "amount": nil, "status": "open"},
		{"id": 4, "amount": 40, "status": "pending"},
	}
	ids := func(filters ...Filter) []interface{} {
		res := Generate(rows, Definition{Fields: []Field{{Name: "id"}}, Filters: filters})
		out := []interface{}{}
		for _, r := range res.Data {
			out = append(out, r["id"])
		}
		return out
	}

	assert.Equal(t, []interface{}{2}, ids(Filter{Field: "amount", Operator: OpEquals, Value: 20}))
	assert.Equal(t, []interface{}{1, 3, 4}, ids(Filter{Field: "amount", Operator: OpNotEquals, Value: "20"}))
	assert.Equal(t, []interface{}{1, 3}, ids(Filter{Field: "status", Operator: OpContains, Value: "OPEN"}))
	assert.Equal(t, []interface{}{2, 4}, ids(Filter{Field: "amount", Operator: OpGreaterThan, Value: 15}))
	assert.Equal(t, []interface{}{1}, ids(Filter{Field: "amount", Operator: OpLessThan, Value: 15}))
	assert.Equal(t, []interface{}{1, 2}, ids(Filter{Field: "amount", Operator: OpBetween, Value: []interface{}{10, 25}}))
	assert.Equal(t, []interface{}{2, 4}, ids(Filter{Field: "status", Operator: OpIn, Value: []interface{}{"closed", "pending"}}))
	assert.Equal(t, []interface{}{4}, ids(
		Filter{Field: "amount", Operator: OpGreaterThan, Value: 15},
		Filter{Field: "status", Operator: OpNotEquals, Value: "closed"},
	))
}

func TestGenerate_FiltersDateColumns(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC) }
	rows := []db.Record{
		{"id": "a", "denial_date": day(1)},
		{"id": "b", "denial_date": day(15)},
		{"id": "c", "denial_date": day(31)},
		{"id": "d", "denial_date": nil},
	}
	ids := func(f Filter) []interface{} {
		res := Generate(rows, Definition{Fields: []Field{{Name: "id"}}, Filters: []Filter{f}})
		out := []interface{}{}
		for _, r := range res.Data {
			out = append(out, r["id"])
		}
		return out
	}

	assert.Equal(t, []interface{}{"a", "b", "c"},
		ids(Filter{Field: "denial_date", Operator: OpBetween, Value: []interface{}{"2024-01-01", "2024-01-31"}}))
	assert.Equal(t, []interface{}{"b"}, ids(Filter{Field: "denial_date", Operator: OpEquals, Value: "2024-01-15"}))
	assert.Equal(t, []interface{}{}, ids(Filter{Field: "denial_date", Operator: OpGreaterThan, Value: "2024-01-31"}))
	assert.Equal(t, []interface{}{"c"}, ids(Filter{Field: "denial_date", Operator: OpGreaterThan, Value: "2024-01-15"}))
	assert.Equal(t, []interface{}{"a"}, ids(Filter{Field: "denial_date", Operator: OpLessThan, Value: "2024-01-15"}))
	assert.Equal(t, []interface{}{"a", "c"},
		ids(Filter{Field: "denial_date", Operator: OpIn, Value: []interface{}{"2024-01-01", "2024-01-31"}}))
}

func TestGenerate_TimestampsFilterByCalendarDay(t *testing.T) {
	rows := []db.Record{
		{"id": "late", "verification_date": time.Date(2024, 1, 31, 23, 15, 0, 0, time.UTC)},
		{"id": "next", "verification_date": time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC)},
	}
	res := Generate(rows, Definition{
		Fields:  []Field{{Name: "id"}},
		Filters: []Filter{{Field: "verification_date", Operator: OpBetween, Value: []interface{}{"2024-01-01", "2024-01-31"}}},
	})
	require.Len(t, res.Data, 1)
	assert.Equal(t, "late", res.Data[0]["id"])
}

func TestGenerate_SortsTimesChronologically(t *testing.T) {
	rows := []db.Record{
		{"id": "b", "at": time.Date(2024, 1, 9, 0, 0, 0, 0, time.UTC)},
		{"id": "a", "at": time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)},
		{"id": "c", "at": time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)},
	}
	res := Generate(rows, Definition{Fields: []Field{{Name: "id"}}, SortBy: []Sort{{Field: "at"}}})
	var ids []interface{}
	for _, r := range res.Data {
		ids = append(ids, r["id"])
	}
	assert.Equal(t, []interface{}{"a", "b", "c"}, ids)
}

func TestGenerate_Deterministic(t *testing.T) {
	rows := newMockRepo().rows["claim_denials"]
	def := *denialsByCode()
	a := Generate(rows, def)
	b := Generate(rows, def)
	assert.Equal(t, a.Columns, b.Columns)
	assert.Equal(t, a.Data, b.Data)
	assert.Equal(t, a.Aggregates, b.Aggregates)
}

func TestGenerate_LeavesInputUntouched(t *testing.T) {
	rows := newMockRepo().rows["claim_denials"]
	before := len(rows[0])
	Generate(rows, *denialsByCode())
	assert.Len(t, rows, 3)
	assert.Len(t, rows[0], before)
	assert.Equal(t, "d1", rows[0]["id"])
}
