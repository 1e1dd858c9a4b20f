package report

import (
	"bytes"
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed predefined.yaml
var predefinedYAML []byte

type definitionFile struct {
	Reports []*Definition `yaml:"reports"`
}

// ParseYAML reads a document of the form
//
//	reports:
//	  - name: Denials by code
//	    data_source: claim_denials
//	    fields: [...]
func ParseYAML(data []byte) ([]*Definition, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var f definitionFile
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parse report definitions: %w", err)
	}
	if len(f.Reports) == 0 {
		return nil, fmt.Errorf("%w: no reports in document", ErrInvalidDefinition)
	}
	return f.Reports, nil
}

// Predefined returns the built-in report definitions.
func Predefined() []*Definition {
	defs, err := ParseYAML(predefinedYAML)
	if err != nil {
		panic(err)
	}
	return defs
}
