package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

// FeatureSchema is the ordered list of columns the regressor was fit on.
// Position i of an aligned vector always holds FeatureSchema[i].
type FeatureSchema []string

// LoadFeatureNames reads the JSON array of feature names written by the
// training pipeline.
func LoadFeatureNames(path string) (FeatureSchema, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var names []string
	if err := json.Unmarshal(payload, &names); err != nil {
		return nil, err
	}
	schema := FeatureSchema(names)
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	return schema, nil
}

func (s FeatureSchema) Validate() error {
	if len(s) == 0 {
		return errors.New("feature schema is empty")
	}
	seen := make(map[string]struct{}, len(s))
	for i, name := range s {
		if name == "" {
			return fmt.Errorf("feature %d has an empty name", i)
		}
		if _, ok := seen[name]; ok {
			return fmt.Errorf("duplicate feature name %q", name)
		}
		seen[name] = struct{}{}
	}
	return nil
}

func (s FeatureSchema) index() map[string]int {
	idx := make(map[string]int, len(s))
	for i, name := range s {
		idx[name] = i
	}
	return idx
}

// DefaultPlaceholderDate is the stand-in submission date the training
// pipeline used for year/month/day.
var DefaultPlaceholderDate = time.Date(2024, time.December, 15, 0, 0, 0, 0, time.UTC)

// Temporal field names injected into every record before encoding.
const (
	FieldYear  = "year"
	FieldMonth = "month"
	FieldDay   = "day"
)
