// Package scorer computes bounded [0,1] similarity scores between extracted
// receipt field values and their ground-truth counterparts.
package scorer

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/receipt-eval/internal/model"
)

// Kind classifies how a field's values are compared.
type Kind string

const (
	KindString     Kind = "string"
	KindMoney      Kind = "money"
	KindPercentage Kind = "percentage"
	KindCount      Kind = "count"
	KindEnum       Kind = "enum"
	KindDate       Kind = "date"
	KindBool       Kind = "bool"
)

// FieldSpec is the static descriptor for one scored field: its name and the
// comparison policy its kind implies. Specs are immutable and defined once at
// process start.
type FieldSpec struct {
	Name string `json:"name" yaml:"name"`
	Kind Kind   `json:"kind" yaml:"kind"`
}

// DefaultSchema returns the fixed receipt schema. Dates compare as strings
// (ground truth stores them as ISO strings) and items compare as a count of
// line entries.
func DefaultSchema() []FieldSpec {
	return []FieldSpec{
		{Name: model.FieldMerchantName, Kind: KindString},
		{Name: model.FieldDate, Kind: KindDate},
		{Name: model.FieldPaymentMethod, Kind: KindString},
		{Name: model.FieldTotalAmount, Kind: KindMoney},
		{Name: model.FieldSubtotalAmount, Kind: KindMoney},
		{Name: model.FieldItems, Kind: KindCount},
	}
}

var validKinds = map[Kind]bool{
	KindString:     true,
	KindMoney:      true,
	KindPercentage: true,
	KindCount:      true,
	KindEnum:       true,
	KindDate:       true,
	KindBool:       true,
}

// ValidateSchema checks that a schema is non-empty, references only fields
// the record type can supply, uses known kinds, and has no duplicates.
func ValidateSchema(specs []FieldSpec) error {
	if len(specs) == 0 {
		return eris.New("scorer: schema has no fields")
	}

	known := make(map[string]bool, len(model.FieldNames()))
	for _, name := range model.FieldNames() {
		known[name] = true
	}

	var errs []string
	seen := make(map[string]bool, len(specs))
	for _, spec := range specs {
		if !known[spec.Name] {
			errs = append(errs, fmt.Sprintf("unknown field %q", spec.Name))
		}
		if !validKinds[spec.Kind] {
			errs = append(errs, fmt.Sprintf("field %q has unknown kind %q", spec.Name, spec.Kind))
		}
		if seen[spec.Name] {
			errs = append(errs, fmt.Sprintf("duplicate field %q", spec.Name))
		}
		seen[spec.Name] = true
	}

	if len(errs) > 0 {
		return eris.Errorf("scorer: schema validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
