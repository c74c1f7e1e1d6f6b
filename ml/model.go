package ml

import (
	"context"
	"errors"
	"fmt"
)

// Regressor is a trained model that maps one aligned feature vector to a scalar.
type Regressor interface {
	Predict(features []float64) (float64, error)
	NumFeatures() int
}

// Observer is notified after every Service.Predict call.
type Observer interface {
	ObservePrediction(ctx context.Context, event PredictionEvent)
}

// ErrModelUnavailable is returned for every request while the store is degraded.
var ErrModelUnavailable = errors.New("model not loaded")

// SchemaMismatchError reports a field whose value cannot take the numeric role
// the feature schema gives it.
type SchemaMismatchError struct {
	Field  string
	Value  interface{}
	Reason string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("field %q: %s (got %v)", e.Field, e.Reason, e.Value)
}

// InferenceError wraps a failure of the underlying model call.
type InferenceError struct {
	Err error
}

func (e *InferenceError) Error() string {
	return "inference failed: " + e.Err.Error()
}

func (e *InferenceError) Unwrap() error {
	return e.Err
}
