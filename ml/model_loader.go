package ml

import (
	"encoding/json"
	"fmt"
	"os"
)

const (
	ModelTypeGradientBoosting = "gradient_boosting"
	ModelTypeLinear           = "linear"
)

// LoadModel reads a regressor artifact. An empty modelType defers to the
// artifact's own "model_type" field.
func LoadModel(modelType, path string) (Regressor, error) {
	if modelType == "" {
		detected, err := detectModelType(path)
		if err != nil {
			return nil, err
		}
		modelType = detected
	}
	switch modelType {
	case ModelTypeGradientBoosting:
		model := &GradientBoosting{}
		if err := model.Load(path); err != nil {
			return nil, err
		}
		return model, nil
	case ModelTypeLinear:
		model := &Linear{}
		if err := model.Load(path); err != nil {
			return nil, err
		}
		return model, nil
	default:
		return nil, fmt.Errorf("unsupported model type %q", modelType)
	}
}

func detectModelType(path string) (string, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	var header struct {
		ModelType string `json:"model_type"`
	}
	if err := json.Unmarshal(payload, &header); err != nil {
		return "", err
	}
	if header.ModelType == "" {
		return "", fmt.Errorf("%s: model_type not set", path)
	}
	return header.ModelType, nil
}
