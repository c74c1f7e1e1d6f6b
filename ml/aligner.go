package ml

import (
	"encoding/json"
	"errors"
	"time"
)

// Record is a raw caller-supplied submission, as decoded from JSON.
type Record map[string]interface{}

// DecodeRecord parses exactly one JSON object. Trailing data after the object
// is an error, so every entry adapter accepts the same bodies.
func DecodeRecord(data []byte) (Record, error) {
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, err
	}
	if record == nil {
		return nil, errors.New("expected a JSON object")
	}
	return record, nil
}

// Aligner turns raw records into vectors matching a fixed feature schema.
// It is immutable and safe for concurrent use.
type Aligner struct {
	schema      FeatureSchema
	columns     map[string]int
	placeholder time.Time
}

func NewAligner(schema FeatureSchema, placeholder time.Time) *Aligner {
	if placeholder.IsZero() {
		placeholder = DefaultPlaceholderDate
	}
	return &Aligner{
		schema:      append(FeatureSchema(nil), schema...),
		columns:     schema.index(),
		placeholder: placeholder,
	}
}

func (a *Aligner) Schema() FeatureSchema {
	return append(FeatureSchema(nil), a.schema...)
}

// Align injects the placeholder date, one-hot encodes labels (drop-first),
// zero-fills missing schema columns, drops unknown columns and orders the
// result by schema position.
func (a *Aligner) Align(record Record) ([]float64, error) {
	encoded, err := a.encode(a.withTemporalFields(record))
	if err != nil {
		return nil, err
	}
	vector := make([]float64, len(a.schema))
	for i, name := range a.schema {
		vector[i] = encoded[name]
	}
	return vector, nil
}

func (a *Aligner) withTemporalFields(record Record) Record {
	merged := make(Record, len(record)+3)
	for k, v := range record {
		merged[k] = v
	}
	merged[FieldYear] = float64(a.placeholder.Year())
	merged[FieldMonth] = float64(a.placeholder.Month())
	merged[FieldDay] = float64(a.placeholder.Day())
	return merged
}

// encode keeps only columns the schema knows about. Numeric columns are
// written first so a synthesized one-hot column wins a name collision
// regardless of map iteration order.
func (a *Aligner) encode(record Record) (map[string]float64, error) {
	encoded := make(map[string]float64, len(a.schema))
	var dummies []string
	for field, value := range record {
		if value == nil {
			continue
		}
		if _, numeric := a.columns[field]; numeric {
			f, reason := toNumber(value)
			if reason != "" {
				return nil, &SchemaMismatchError{Field: field, Value: value, Reason: reason}
			}
			encoded[field] = f
			continue
		}
		label, ok := isLabel(value)
		if !ok {
			continue
		}
		// the reference category is never a schema column, so it falls out here
		column := field + "_" + label
		if _, known := a.columns[column]; known {
			dummies = append(dummies, column)
		}
	}
	for _, column := range dummies {
		encoded[column] = 1
	}
	return encoded, nil
}
