package ml

import (
	"fmt"
	"math"
)

// Infer runs the model on exactly one aligned vector. Every failure of the
// model call, including a panic, comes back as *InferenceError.
func Infer(model Regressor, vector []float64) (value float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			value = 0
			err = &InferenceError{Err: fmt.Errorf("model panicked: %v", r)}
		}
	}()

	if n := model.NumFeatures(); n != len(vector) {
		return 0, &InferenceError{Err: fmt.Errorf("shape mismatch: model expects %d features, got %d", n, len(vector))}
	}
	value, err = model.Predict(vector)
	if err != nil {
		return 0, &InferenceError{Err: err}
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, &InferenceError{Err: fmt.Errorf("non-finite prediction %v", value)}
	}
	return value, nil
}
