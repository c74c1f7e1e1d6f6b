package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"jaundice/db"
	"jaundice/ml"
	"jaundice/monitoring"

	"go.uber.org/zap"
)

// Source tags predictions served by this adapter.
const Source = "http"

// RequiredFields are the raw inputs the deployed model was trained on.
var RequiredFields = []string{
	"gender", "gestational_age_weeks", "birth_weight_kg", "birth_length_cm",
	"birth_head_circumference_cm", "age_days", "weight_kg", "length_cm",
	"temperature_c", "heart_rate_bpm", "feeding_type",
}

// PredictionHistory lists stored predictions, newest first.
type PredictionHistory interface {
	Recent(ctx context.Context, limit int) ([]db.PredictionRecord, error)
}

// Deps are the collaborators the handlers need. Only Service is required.
type Deps struct {
	Service *ml.Service
	History PredictionHistory
	Metrics *monitoring.MetricsCollector
	// StrictStatus maps declared failures to 4xx/5xx instead of 200.
	StrictStatus bool
	Logger       *zap.Logger
}

type handlers struct {
	Deps
}

// badRequestError is a body that is not a JSON object.
type badRequestError struct {
	err error
}

func (e *badRequestError) Error() string { return "invalid request body: " + e.err.Error() }

func (e *badRequestError) Unwrap() error { return e.err }

func RegisterHandlers(mux *http.ServeMux, deps Deps) {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	h := &handlers{Deps: deps}
	mux.HandleFunc("GET /{$}", h.handleHome)
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("POST /predict", h.handlePredict)
	mux.HandleFunc("GET /predictions", h.handlePredictions)
	mux.HandleFunc("GET /metrics", h.handleMetrics)
}

func (h *handlers) handleHome(w http.ResponseWriter, r *http.Request) {
	body := map[string]interface{}{
		"message": "Jaundice Level Prediction API",
		"endpoints": map[string]string{
			"/predict":        "POST - Send baby data to get jaundice prediction",
			"/health":         "GET - Health check",
			"/predictions":    "GET - Recent predictions",
			"/metrics":        "GET - Prediction metrics",
			"/ws/predictions": "GET - Live prediction stream (websocket)",
		},
		"required_fields": RequiredFields,
	}
	store := h.Service.Store()
	body["model_state"] = store.State().String()
	if store.Ready() {
		body["feature_count"] = len(store.Schema())
	}
	respondJSON(w, http.StatusOK, body)
}

func (h *handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":       "healthy",
		"model_loaded": h.Service.Store().Ready(),
	})
}

func (h *handlers) handlePredict(w http.ResponseWriter, r *http.Request) {
	ctx := ml.WithSource(r.Context(), Source)

	// a degraded model is reported ahead of any body problem
	record, err := decodeRecord(r.Body)
	var prediction *ml.Prediction
	if err == nil || !h.Service.Store().Ready() {
		prediction, err = h.Service.Predict(ctx, record)
	}
	if err != nil {
		h.Logger.Debug("prediction failed",
			zap.String("request_id", ml.RequestIDFromContext(ctx)),
			zap.String("outcome", monitoring.Classify(err)),
			zap.Error(err))
		respondJSON(w, h.failureStatus(err), ml.NewResponse(nil, err))
		return
	}
	respondJSON(w, http.StatusOK, ml.NewResponse(prediction, nil))
}

func (h *handlers) handlePredictions(w http.ResponseWriter, r *http.Request) {
	if h.History == nil {
		respondJSON(w, http.StatusNotFound, map[string]string{"error": "prediction history is disabled"})
		return
	}
	limit := 100
	if s := r.URL.Query().Get("limit"); s != "" {
		l, err := strconv.Atoi(s)
		if err != nil || l <= 0 {
			respondJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = l
	}
	records, err := h.History.Recent(r.Context(), limit)
	if err != nil {
		h.Logger.Error("failed to load prediction history", zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load prediction history"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"data": records})
}

func (h *handlers) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if h.Metrics == nil {
		respondJSON(w, http.StatusNotFound, map[string]string{"error": "metrics are disabled"})
		return
	}
	respondJSON(w, http.StatusOK, h.Metrics.Snapshot())
}

func (h *handlers) failureStatus(err error) int {
	if !h.StrictStatus {
		return http.StatusOK
	}
	var badRequest *badRequestError
	var mismatch *ml.SchemaMismatchError
	switch {
	case errors.Is(err, ml.ErrModelUnavailable):
		return http.StatusServiceUnavailable
	case errors.As(err, &badRequest), errors.As(err, &mismatch):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// decodeRecord reads a single JSON object. Anything else is a bad request.
func decodeRecord(body io.Reader) (ml.Record, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, &badRequestError{err: err}
	}
	record, err := ml.DecodeRecord(data)
	if err != nil {
		return nil, &badRequestError{err: err}
	}
	return record, nil
}

// respondJSON 统一JSON响应
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Warn("failed to encode JSON response", zap.Error(err))
	}
}
