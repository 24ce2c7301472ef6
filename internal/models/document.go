package models

import (
	"encoding/json"
	"fmt"
)

// Document is a schemaless record of a collection in the document store.
type Document struct {
	ID     string
	Fields map[string]any
}

// RangeFilter selects documents whose string field lies in [From, To]. Empty bounds are open.
type RangeFilter struct {
	Field string
	From  string
	To    string
}

// Filter combines an optional range with equality conditions.
type Filter struct {
	Range  *RangeFilter
	Equals map[string]any
}

// ToFields converts a JSON-tagged struct into document fields.
func ToFields(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("decode document fields: %w", err)
	}
	return fields, nil
}

// FromFields fills v from document fields.
func FromFields(fields map[string]any, v any) error {
	raw, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode document fields: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	return nil
}

// Matches reports whether fields satisfy the filter. Values are compared after JSON normalization.
func (f Filter) Matches(fields map[string]any) bool {
	if f.Range != nil {
		value, _ := fields[f.Range.Field].(string)
		if value == "" {
			return false
		}
		if f.Range.From != "" && value < f.Range.From {
			return false
		}
		if f.Range.To != "" && value > f.Range.To {
			return false
		}
	}
	for key, want := range f.Equals {
		if !equalJSON(fields[key], want) {
			return false
		}
	}
	return true
}

func equalJSON(a, b any) bool {
	ra, errA := json.Marshal(a)
	rb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return string(ra) == string(rb)
}
