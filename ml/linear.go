package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// Linear is an ordinary least squares regressor: intercept + coef . x.
type Linear struct {
	Intercept    float64   `json:"intercept"`
	Coefficients []float64 `json:"coefficients"`
}

func (l *Linear) NumFeatures() int {
	return len(l.Coefficients)
}

func (l *Linear) Predict(features []float64) (float64, error) {
	if len(features) != len(l.Coefficients) {
		return 0, fmt.Errorf("expected %d features, got %d", len(l.Coefficients), len(features))
	}
	result := l.Intercept
	for i, coef := range l.Coefficients {
		result += coef * features[i]
	}
	return result, nil
}

func (l *Linear) Load(path string) error {
	payload, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var model Linear
	if err := json.Unmarshal(payload, &model); err != nil {
		return err
	}
	if len(model.Coefficients) == 0 {
		return errors.New("linear model has no coefficients")
	}
	*l = model
	return nil
}
