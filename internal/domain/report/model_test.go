package report

import (
	"errors"
	"testing"
)

func TestDefinition_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(d *Definition)
		wantErr bool
	}{
		{"valid", func(d *Definition) {}, false},
		{"missing name", func(d *Definition) { d.Name = " " }, true},
		{"unknown data source", func(d *Definition) { d.DataSource = "users" }, true},
		{"no fields", func(d *Definition) { d.Fields = nil }, true},
		{"bad identifier", func(d *Definition) { d.Fields[0].Name = "code; drop table" }, true},
		{"unknown aggregate", func(d *Definition) { d.Fields[1].Aggregate = "median" }, true},
		{"duplicate output column", func(d *Definition) { d.Fields[1].Label = "Code" }, true},
		{"unknown operator", func(d *Definition) {
			d.Filters = []Filter{{Field: "status", Operator: "like", Value: "x"}}
		}, true},
		{"between needs two values", func(d *Definition) {
			d.Filters = []Filter{{Field: "denied_amount", Operator: OpBetween, Value: []interface{}{1.0}}}
		}, true},
		{"between with two values", func(d *Definition) {
			d.Filters = []Filter{{Field: "denied_amount", Operator: OpBetween, Value: []interface{}{1.0, 5.0}}}
		}, false},
		{"in needs a list", func(d *Definition) {
			d.Filters = []Filter{{Field: "status", Operator: OpIn, Value: "open"}}
		}, true},
		{"in with strings", func(d *Definition) {
			d.Filters = []Filter{{Field: "status", Operator: OpIn, Value: []string{"open"}}}
		}, false},
		{"bad group field", func(d *Definition) { d.GroupBy = []string{"a b"} }, true},
		{"bad sort direction", func(d *Definition) { d.SortBy[0].Direction = "down" }, true},
		{"upper-case direction", func(d *Definition) { d.SortBy[0].Direction = "DESC" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := denialsByCode()
			tt.mutate(d)
			err := d.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidDefinition) {
				t.Errorf("expected ErrInvalidDefinition, got %v", err)
			}
		})
	}
}

func TestField_OutputName(t *testing.T) {
	if got := (Field{Name: "amount"}).OutputName(); got != "amount" {
		t.Errorf("got %q", got)
	}
	if got := (Field{Name: "amount", Label: "Amount"}).OutputName(); got != "Amount" {
		t.Errorf("got %q", got)
	}
}
