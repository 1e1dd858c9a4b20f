package report

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseYAML(t *testing.T) {
	doc := []byte(`
reports:
  - name: Paid claims
    data_source: claims
    fields:
      - name: claim_number
      - name: total_charge
        aggregate: sum
    filters:
      - field: status
        operator: in
        value: [paid, closed]
      - field: total_charge
        operator: between
        value: [100, 500]
`)
	defs, err := ParseYAML(doc)
	require.NoError(t, err)
	require.Len(t, defs, 1)
	d := defs[0]
	assert.Equal(t, "Paid claims", d.Name)
	assert.Equal(t, AggSum, d.Fields[1].Aggregate)
	require.NoError(t, d.Validate())
	assert.Equal(t, []interface{}{"paid", "closed"}, d.Filters[0].Value)
}

func TestParseYAML_RejectsUnknownKeys(t *testing.T) {
	_, err := ParseYAML([]byte("reports:\n  - name: x\n    datasource: claims\n"))
	assert.Error(t, err)
}

func TestParseYAML_Empty(t *testing.T) {
	_, err := ParseYAML([]byte("reports: []\n"))
	assert.True(t, errors.Is(err, ErrInvalidDefinition))
}

func TestPredefined_AllValid(t *testing.T) {
	defs := Predefined()
	require.NotEmpty(t, defs)
	for _, d := range defs {
		assert.NoError(t, d.Validate(), d.Name)
	}
}
