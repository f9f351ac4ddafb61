package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Row is a raw input record as received from the API or a batch file. Keys
// not present in the schema are ignored; schema fields absent from the row
// fall back to their training-time defaults.
type Row map[string]interface{}

// ErrSchemaMismatch means a row is structurally unreadable, e.g. not a
// mapping at all. Missing fields and unseen category values are not schema
// mismatches; they encode to defaults and the unknown bucket.
var ErrSchemaMismatch = errors.New("row does not match schema")

// Transformer encodes raw rows into fixed-length feature vectors using one
// frozen schema. Encoding layout per field: the value slot(s) first (one per
// known category plus unknown for categoricals), then the missing-flag slot
// if the field carries one.
type Transformer struct {
	schema   Schema
	width    int
	catIndex []map[string]int
}

func NewTransformer(s Schema) (*Transformer, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	index := make([]map[string]int, len(s.Fields))
	for i, f := range s.Fields {
		if f.Kind != KindCategorical {
			continue
		}
		m := make(map[string]int, len(f.Categories))
		for j, c := range f.Categories {
			m[c] = j
		}
		index[i] = m
	}
	return &Transformer{schema: s, width: s.Width(), catIndex: index}, nil
}

func (t *Transformer) Schema() Schema { return t.schema }

func (t *Transformer) Width() int { return t.width }

// Transform encodes one row. It is deterministic and never fails for missing
// fields or unseen categorical values.
func (t *Transformer) Transform(row Row) ([]float64, error) {
	if row == nil {
		return nil, fmt.Errorf("%w: row is not a mapping", ErrSchemaMismatch)
	}

	vector := make([]float64, 0, t.width)
	for i, f := range t.schema.Fields {
		raw, present := row[f.Name]
		if raw == nil {
			present = false
		}

		switch f.Kind {
		case KindNumeric:
			value, ok := asFloat(raw)
			if !present || !ok {
				value = f.Median
				present = present && ok
			}
			vector = append(vector, value)
		case KindBoolean:
			value, ok := asBool(raw)
			if !present || !ok {
				value = false
				present = present && ok
			}
			if value {
				vector = append(vector, 1)
			} else {
				vector = append(vector, 0)
			}
		case KindCategorical:
			slot := len(f.Categories) // unknown bucket
			if present {
				if s, ok := asString(raw); ok {
					if j, known := t.catIndex[i][s]; known {
						slot = j
					}
				}
			}
			for j := 0; j <= len(f.Categories); j++ {
				if j == slot {
					vector = append(vector, 1)
				} else {
					vector = append(vector, 0)
				}
			}
		}

		if f.MissingFlag {
			if present {
				vector = append(vector, 0)
			} else {
				vector = append(vector, 1)
			}
		}
	}
	return vector, nil
}

func asFloat(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func asBool(v interface{}) (bool, bool) {
	switch x := v.(type) {
	case bool:
		return x, true
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "yes", "y", "true", "t", "1":
			return true, true
		case "no", "n", "false", "f", "0":
			return false, true
		}
		return false, false
	default:
		if f, ok := asFloat(v); ok {
			return f != 0, true
		}
		return false, false
	}
}

func asString(v interface{}) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case json.Number:
		return x.String(), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case bool:
		if x {
			return "true", true
		}
		return "false", true
	default:
		return "", false
	}
}
