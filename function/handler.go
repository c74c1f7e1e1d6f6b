// Package function adapts the prediction pipeline to function-invocation
// events (API Gateway proxy events or bare records).
package function

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"jaundice/ml"
	"jaundice/monitoring"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Source tags predictions served by this adapter.
const Source = "lambda"

var responseHeaders = map[string]string{
	"Content-Type":                "application/json",
	"Access-Control-Allow-Origin": "*",
}

// Handler serves one event per call. It is safe for concurrent use.
type Handler struct {
	service *ml.Service
	logger  *zap.Logger
}

func NewHandler(service *ml.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{service: service, logger: logger}
}

// Handle never returns an error for request-level failures; they are encoded
// in the response status and body.
func (h *Handler) Handle(ctx context.Context, event json.RawMessage) (events.APIGatewayProxyResponse, error) {
	ctx = ml.WithRequestID(ml.WithSource(ctx, Source), requestID(ctx))

	record, err := extractRecord(event)
	var prediction *ml.Prediction
	if err == nil || !h.service.Store().Ready() {
		prediction, err = h.service.Predict(ctx, record)
	}
	if err != nil {
		h.logger.Debug("prediction failed",
			zap.String("request_id", ml.RequestIDFromContext(ctx)),
			zap.String("outcome", monitoring.Classify(err)),
			zap.Error(err))
		return respond(statusFor(err), ml.NewResponse(nil, err))
	}
	return respond(http.StatusOK, ml.NewResponse(prediction, nil))
}

// statusFor is 500 for an unavailable model and 400 for everything else.
func statusFor(err error) int {
	if errors.Is(err, ml.ErrModelUnavailable) {
		return http.StatusInternalServerError
	}
	return http.StatusBadRequest
}

// extractRecord uses the event's body when present, otherwise the event itself.
func extractRecord(event json.RawMessage) (ml.Record, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(event, &envelope); err != nil || envelope == nil {
		return nil, fmt.Errorf("event must be a JSON object")
	}
	rawBody, ok := envelope["body"]
	if !ok {
		return decodeObject(event)
	}

	var body string
	if err := json.Unmarshal(rawBody, &body); err != nil {
		// already-parsed body from a direct invocation
		return decodeObject(rawBody)
	}
	var encoded bool
	if raw, ok := envelope["isBase64Encoded"]; ok {
		if err := json.Unmarshal(raw, &encoded); err != nil {
			return nil, fmt.Errorf("invalid isBase64Encoded: %w", err)
		}
	}
	if encoded {
		decoded, err := base64.StdEncoding.DecodeString(body)
		if err != nil {
			return nil, fmt.Errorf("invalid base64 body: %w", err)
		}
		body = string(decoded)
	}
	return decodeObject(json.RawMessage(body))
}

func decodeObject(data json.RawMessage) (ml.Record, error) {
	record, err := ml.DecodeRecord(data)
	if err != nil {
		return nil, fmt.Errorf("invalid request body: %w", err)
	}
	return record, nil
}

func respond(status int, body ml.Response) (events.APIGatewayProxyResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return events.APIGatewayProxyResponse{}, err
	}
	headers := make(map[string]string, len(responseHeaders))
	for k, v := range responseHeaders {
		headers[k] = v
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    headers,
		Body:       string(payload),
	}, nil
}

func requestID(ctx context.Context) string {
	if lc, ok := lambdacontext.FromContext(ctx); ok && lc.AwsRequestID != "" {
		return lc.AwsRequestID
	}
	return uuid.NewString()
}
