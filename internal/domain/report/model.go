package report

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rcm/rcm/internal/platform/db"
)

var (
	ErrInvalidDefinition = errors.New("invalid report definition")
	ErrNotFound          = errors.New("report definition not found")
	ErrForbidden         = errors.New("report definition belongs to another user")
	ErrUnsupportedFormat = errors.New("export format not supported")
)

// DataSources lists the tables a report may read.
var DataSources = map[string]bool{
	"claims":                    true,
	"professional_claims":       true,
	"claim_denials":             true,
	"authorization_requests":    true,
	"authorization_tasks":       true,
	"eligibility_verifications": true,
	"edi_transactions":          true,
	"appeal_workflows":          true,
}

type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "not_equals"
	OpContains    Operator = "contains"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
	OpBetween     Operator = "between"
	OpIn          Operator = "in"
)

var operators = map[Operator]bool{
	OpEquals: true, OpNotEquals: true, OpContains: true,
	OpGreaterThan: true, OpLessThan: true, OpBetween: true, OpIn: true,
}

type Aggregate string

const (
	AggSum   Aggregate = "sum"
	AggAvg   Aggregate = "avg"
	AggCount Aggregate = "count"
	AggMin   Aggregate = "min"
	AggMax   Aggregate = "max"
)

var aggregates = map[Aggregate]bool{AggSum: true, AggAvg: true, AggCount: true, AggMin: true, AggMax: true}

// Field selects a column. Label renames it in the output; Aggregate, when
// set, is computed per group and in the summary.
type Field struct {
	Name      string    `json:"name" yaml:"name"`
	Label     string    `json:"label,omitempty" yaml:"label,omitempty"`
	Aggregate Aggregate `json:"aggregate,omitempty" yaml:"aggregate,omitempty"`
}

// OutputName is the key the field has in result rows.
func (f Field) OutputName() string {
	if f.Label != "" {
		return f.Label
	}
	return f.Name
}

type Filter struct {
	Field    string      `json:"field" yaml:"field"`
	Operator Operator    `json:"operator" yaml:"operator"`
	Value    interface{} `json:"value" yaml:"value"`
}

type Sort struct {
	Field     string `json:"field" yaml:"field"`
	Direction string `json:"direction,omitempty" yaml:"direction,omitempty"`
}

func (s Sort) Descending() bool { return strings.EqualFold(s.Direction, "desc") }

// Definition is a saved report owned by its creator.
type Definition struct {
	ID           uuid.UUID `json:"id" yaml:"-"`
	Name         string    `json:"name" yaml:"name"`
	Description  string    `json:"description,omitempty" yaml:"description,omitempty"`
	DataSource   string    `json:"data_source" yaml:"data_source"`
	Fields       []Field   `json:"fields" yaml:"fields"`
	Filters      []Filter  `json:"filters" yaml:"filters,omitempty"`
	GroupBy      []string  `json:"group_by" yaml:"group_by,omitempty"`
	SortBy       []Sort    `json:"sort_by" yaml:"sort_by,omitempty"`
	OutputFormat string    `json:"output_format,omitempty" yaml:"output_format,omitempty"`
	ChartType    string    `json:"chart_type,omitempty" yaml:"chart_type,omitempty"`
	OwnerID      string    `json:"owner_id" yaml:"-"`
	CompanyID    *string   `json:"company_id,omitempty" yaml:"-"`
	CreatedAt    time.Time `json:"created_at" yaml:"-"`
	UpdatedAt    time.Time `json:"updated_at" yaml:"-"`
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidDefinition, fmt.Sprintf(format, args...))
}

// Validate rejects definitions that could not run as written: unknown data
// sources, operators or aggregate functions, malformed identifiers, and
// between/in filters whose value is not a list of the right shape.
func (d *Definition) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return invalid("name is required")
	}
	if !DataSources[d.DataSource] {
		return invalid("unknown data source %q", d.DataSource)
	}
	if len(d.Fields) == 0 {
		return invalid("at least one field is required")
	}
	labels := make(map[string]bool, len(d.Fields))
	for _, f := range d.Fields {
		if !db.ValidIdent(f.Name) {
			return invalid("field %q is not a valid column name", f.Name)
		}
		if f.Aggregate != "" && !aggregates[f.Aggregate] {
			return invalid("field %q: unknown aggregate %q", f.Name, f.Aggregate)
		}
		if labels[f.OutputName()] {
			return invalid("duplicate output column %q", f.OutputName())
		}
		labels[f.OutputName()] = true
	}
	for _, flt := range d.Filters {
		if !db.ValidIdent(flt.Field) {
			return invalid("filter field %q is not a valid column name", flt.Field)
		}
		if !operators[flt.Operator] {
			return invalid("filter on %q: unknown operator %q", flt.Field, flt.Operator)
		}
		list, isList := asList(flt.Value)
		switch flt.Operator {
		case OpBetween:
			if !isList || len(list) != 2 {
				return invalid("filter on %q: between needs a two-element list", flt.Field)
			}
		case OpIn:
			if !isList {
				return invalid("filter on %q: in needs a list", flt.Field)
			}
		}
	}
	for _, g := range d.GroupBy {
		if !db.ValidIdent(g) {
			return invalid("group field %q is not a valid column name", g)
		}
	}
	for _, s := range d.SortBy {
		if !db.ValidIdent(s.Field) {
			return invalid("sort field %q is not a valid column name", s.Field)
		}
		if s.Direction != "" && !strings.EqualFold(s.Direction, "asc") && !s.Descending() {
			return invalid("sort on %q: direction must be asc or desc", s.Field)
		}
	}
	return nil
}

func asList(v interface{}) ([]interface{}, bool) {
	switch x := v.(type) {
	case []interface{}:
		return x, true
	case []string:
		out := make([]interface{}, len(x))
		for i, s := range x {
			out[i] = s
		}
		return out, true
	case []float64:
		out := make([]interface{}, len(x))
		for i, f := range x {
			out[i] = f
		}
		return out, true
	}
	return nil, false
}

// Metadata describes one run. It is the only part of a Result that varies
// between runs over the same input.
type Metadata struct {
	GeneratedAt     time.Time `json:"generatedAt"`
	RecordCount     int       `json:"recordCount"`
	ExecutionTimeMs int64     `json:"executionTime"`
	SourceRows      int       `json:"sourceRows"`
	Truncated       bool      `json:"truncated,omitempty"`
}

// Result is computed fresh on every run and never cached.
type Result struct {
	Columns    []string           `json:"columns"`
	Data       []db.Record        `json:"data"`
	Aggregates map[string]float64 `json:"aggregates"`
	Metadata   Metadata           `json:"metadata"`
}
