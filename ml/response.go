package ml

import "errors"

// ModelUnavailableMessage is the error text callers see while the store is
// degraded. Existing clients match on it, so it keeps its capitalization.
const ModelUnavailableMessage = "Model not loaded"

// Response is the payload every entry adapter returns:
// {success, prediction, message} or {success: false, error}.
type Response struct {
	Success    bool     `json:"success"`
	Prediction *float64 `json:"prediction,omitempty"`
	Message    string   `json:"message,omitempty"`
	Error      string   `json:"error,omitempty"`
}

func NewResponse(prediction *Prediction, err error) Response {
	if errors.Is(err, ErrModelUnavailable) {
		return Response{Success: false, Error: ModelUnavailableMessage}
	}
	if err != nil {
		return Response{Success: false, Error: err.Error()}
	}
	value := prediction.Value
	return Response{Success: true, Prediction: &value, Message: prediction.Message}
}
