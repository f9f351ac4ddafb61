package schema

import (
	"errors"
	"fmt"
)

// FieldKind classifies how a field is encoded.
type FieldKind string

const (
	KindNumeric     FieldKind = "numeric"
	KindCategorical FieldKind = "categorical"
	KindBoolean     FieldKind = "boolean"
)

// Field describes one expected input column, frozen at training time.
type Field struct {
	Name string    `json:"name"`
	Kind FieldKind `json:"kind"`

	// Median is the training-time imputation default for numeric fields.
	Median float64 `json:"median,omitempty"`

	// Categories is the set of values observed during training, in a fixed
	// order. Values outside this set encode to the trailing unknown slot.
	Categories []string `json:"categories,omitempty"`

	// MissingFlag adds an extra 0/1 slot recording whether the raw value
	// was absent from the input row.
	MissingFlag bool `json:"missing_flag,omitempty"`
}

// Schema is the ordered list of fields a model was trained against. It is
// serialized inside the model bundle and never used apart from it.
type Schema struct {
	Fields []Field `json:"fields"`
}

// Width returns the encoded dimensionality of the schema.
func (s Schema) Width() int {
	width := 0
	for _, f := range s.Fields {
		width += f.slots()
	}
	return width
}

// FieldNames returns the raw input column names in schema order.
func (s Schema) FieldNames() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// Validate checks structural consistency before a schema is frozen or used.
func (s Schema) Validate() error {
	if len(s.Fields) == 0 {
		return errors.New("schema has no fields")
	}
	seen := make(map[string]bool, len(s.Fields))
	for _, f := range s.Fields {
		if f.Name == "" {
			return errors.New("schema field with empty name")
		}
		if seen[f.Name] {
			return fmt.Errorf("duplicate schema field %q", f.Name)
		}
		seen[f.Name] = true
		switch f.Kind {
		case KindNumeric, KindBoolean:
			if len(f.Categories) != 0 {
				return fmt.Errorf("field %q: categories on non-categorical field", f.Name)
			}
		case KindCategorical:
			if len(f.Categories) == 0 {
				return fmt.Errorf("field %q: categorical field without categories", f.Name)
			}
			cats := make(map[string]bool, len(f.Categories))
			for _, c := range f.Categories {
				if cats[c] {
					return fmt.Errorf("field %q: duplicate category %q", f.Name, c)
				}
				cats[c] = true
			}
		default:
			return fmt.Errorf("field %q: unknown kind %q", f.Name, f.Kind)
		}
	}
	return nil
}

func (f Field) slots() int {
	n := 1
	if f.Kind == KindCategorical {
		// One slot per known category plus the unknown bucket.
		n = len(f.Categories) + 1
	}
	if f.MissingFlag {
		n++
	}
	return n
}
