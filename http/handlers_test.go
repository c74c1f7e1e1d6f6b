package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"jaundice/db"
	"jaundice/function"
	"jaundice/ml"
	"jaundice/monitoring"

	"go.uber.org/zap"
)

var testSchema = ml.FeatureSchema{"age_days", "weight_kg", "feeding_type_formula"}

func newTestService(t *testing.T) *ml.Service {
	t.Helper()
	model := &ml.Linear{Intercept: 1, Coefficients: []float64{2, 1, 5}}
	store, err := ml.NewStore(model, testSchema, time.Time{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	service, err := ml.NewService(store, ml.ServiceConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return service
}

func newDegradedService(t *testing.T) *ml.Service {
	t.Helper()
	service, err := ml.NewService(ml.NewDegradedStore(errors.New("missing")), ml.ServiceConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return service
}

func serve(handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var payload map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid json %q: %v", rr.Body.String(), err)
	}
	return payload
}

func TestHealthHandler(t *testing.T) {
	handler := NewHandler(DefaultServerConfig(), Deps{Service: newTestService(t)}, nil)
	rr := serve(handler, http.MethodGet, "/health", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusOK)
	}
	expected := `{"model_loaded":true,"status":"healthy"}`
	if strings.TrimSpace(rr.Body.String()) != expected {
		t.Errorf("handler returned unexpected body: got %v want %v", rr.Body.String(), expected)
	}

	degraded := NewHandler(DefaultServerConfig(), Deps{Service: newDegradedService(t)}, nil)
	payload := decode(t, serve(degraded, http.MethodGet, "/health", ""))
	if payload["model_loaded"] != false {
		t.Fatalf("expected model_loaded false, got %v", payload["model_loaded"])
	}
}

func TestHomeHandler(t *testing.T) {
	handler := NewHandler(DefaultServerConfig(), Deps{Service: newTestService(t)}, nil)
	rr := serve(handler, http.MethodGet, "/", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	payload := decode(t, rr)
	if payload["message"] != "Jaundice Level Prediction API" {
		t.Fatalf("unexpected message %v", payload["message"])
	}
	fields, ok := payload["required_fields"].([]interface{})
	if !ok || len(fields) != len(RequiredFields) {
		t.Fatalf("unexpected required_fields %v", payload["required_fields"])
	}
	if payload["feature_count"].(float64) != 3 {
		t.Fatalf("unexpected feature_count %v", payload["feature_count"])
	}

	if rr := serve(handler, http.MethodGet, "/nope", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown path, got %d", rr.Code)
	}
}

func TestHandlePredict(t *testing.T) {
	handler := NewHandler(DefaultServerConfig(), Deps{Service: newTestService(t)}, nil)
	rr := serve(handler, http.MethodPost, "/predict", `{"age_days": 3, "weight_kg": 3.2, "feeding_type": "breast", "unknown": 1}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if rr.Header().Get(RequestIDHeader) == "" {
		t.Fatal("expected request id header")
	}
	payload := decode(t, rr)
	if payload["success"] != true {
		t.Fatalf("expected success, got %v", payload)
	}
	// 1 + 2*3 + 3.2 + 5*0
	if payload["prediction"].(float64) != 10.2 {
		t.Fatalf("unexpected prediction %v", payload["prediction"])
	}
	if payload["message"] != "Predicted jaundice level: 10.20 mg/dL" {
		t.Fatalf("unexpected message %v", payload["message"])
	}
}

func TestHandlePredictFailuresCompatStatus(t *testing.T) {
	cases := []struct {
		name    string
		service *ml.Service
		body    string
		errText string
	}{
		{"bad body", newTestService(t), `[1, 2]`, "invalid request body"},
		{"schema mismatch", newTestService(t), `{"age_days": "three"}`, "age_days"},
		{"degraded", newDegradedService(t), `not json`, ml.ModelUnavailableMessage},
	}
	for _, tc := range cases {
		handler := NewHandler(DefaultServerConfig(), Deps{Service: tc.service}, nil)
		rr := serve(handler, http.MethodPost, "/predict", tc.body)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", tc.name, rr.Code)
		}
		payload := decode(t, rr)
		if payload["success"] != false {
			t.Fatalf("%s: expected failure, got %v", tc.name, payload)
		}
		if _, ok := payload["prediction"]; ok {
			t.Fatalf("%s: failure must not carry a prediction", tc.name)
		}
		if !strings.Contains(payload["error"].(string), tc.errText) {
			t.Fatalf("%s: unexpected error %v", tc.name, payload["error"])
		}
	}
}

func TestHandlePredictStrictStatus(t *testing.T) {
	cases := []struct {
		service *ml.Service
		body    string
		status  int
	}{
		{newTestService(t), `{"age_days": 1}`, http.StatusOK},
		{newTestService(t), `{`, http.StatusBadRequest},
		{newTestService(t), `{"age_days": 3} {"garbage"`, http.StatusBadRequest},
		{newTestService(t), `{"weight_kg": "heavy"}`, http.StatusBadRequest},
		{newDegradedService(t), `{}`, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		handler := NewHandler(DefaultServerConfig(), Deps{Service: tc.service, StrictStatus: true}, nil)
		rr := serve(handler, http.MethodPost, "/predict", tc.body)
		if rr.Code != tc.status {
			t.Fatalf("body %s: expected %d, got %d", tc.body, tc.status, rr.Code)
		}
	}
}

func TestHandlePredictMatchesService(t *testing.T) {
	bodies := []string{
		`{"age_days": 3, "weight_kg": 3.2, "feeding_type": "formula"}`,
		`{"age_days": "3", "year": 1999, "extra": true}`,
		`{}`,
		`{"weight_kg": "heavy"}`,
		`{"age_days": 3} {"garbage"`,
		`{"age_days": 3}{}`,
		`[1, 2]`,
		`null`,
		`not json`,
	}
	for _, svc := range []*ml.Service{newTestService(t), newDegradedService(t)} {
		handler := NewHandler(DefaultServerConfig(), Deps{Service: svc}, nil)
		lambda := function.NewHandler(svc, nil)
		for _, body := range bodies {
			rr := serve(handler, http.MethodPost, "/predict", body)
			var got ml.Response
			if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
				t.Fatalf("body %s: invalid json %q: %v", body, rr.Body.String(), err)
			}

			event, _ := json.Marshal(map[string]string{"body": body})
			resp, err := lambda.Handle(context.Background(), event)
			if err != nil {
				t.Fatalf("body %s: unexpected error: %v", body, err)
			}
			var want ml.Response
			if err := json.Unmarshal([]byte(resp.Body), &want); err != nil {
				t.Fatalf("body %s: invalid json %q: %v", body, resp.Body, err)
			}

			if got.Success != want.Success || got.Message != want.Message || got.Error != want.Error {
				t.Fatalf("body %s: http %+v, function %+v", body, got, want)
			}
			if (got.Prediction == nil) != (want.Prediction == nil) ||
				(got.Prediction != nil && *got.Prediction != *want.Prediction) {
				t.Fatalf("body %s: http prediction %v, function prediction %v", body, got.Prediction, want.Prediction)
			}
		}
	}

	// valid records agree with the shared pipeline directly
	svc := newTestService(t)
	handler := NewHandler(DefaultServerConfig(), Deps{Service: svc}, nil)
	record := ml.Record{"age_days": 3.0, "weight_kg": 3.2, "feeding_type": "formula"}
	want, _ := json.Marshal(ml.NewResponse(svc.Predict(context.Background(), record)))
	rr := serve(handler, http.MethodPost, "/predict", `{"age_days": 3, "weight_kg": 3.2, "feeding_type": "formula"}`)
	if strings.TrimSpace(rr.Body.String()) != string(want) {
		t.Fatalf("expected %s, got %s", want, rr.Body.String())
	}
}

type fakeHistory struct {
	records []db.PredictionRecord
	limit   int
}

func (f *fakeHistory) Recent(ctx context.Context, limit int) ([]db.PredictionRecord, error) {
	f.limit = limit
	return f.records, nil
}

func TestHandlePredictions(t *testing.T) {
	value := 8.5
	history := &fakeHistory{records: []db.PredictionRecord{{ID: 1, Source: "http", Prediction: &value}}}
	handler := NewHandler(DefaultServerConfig(), Deps{Service: newTestService(t), History: history}, nil)

	rr := serve(handler, http.MethodGet, "/predictions?limit=5", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if history.limit != 5 {
		t.Fatalf("expected limit 5, got %d", history.limit)
	}
	data := decode(t, rr)["data"].([]interface{})
	if len(data) != 1 {
		t.Fatalf("expected 1 record, got %d", len(data))
	}

	if rr := serve(handler, http.MethodGet, "/predictions?limit=-1", ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}

	disabled := NewHandler(DefaultServerConfig(), Deps{Service: newTestService(t)}, nil)
	if rr := serve(disabled, http.MethodGet, "/predictions", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestHandleMetrics(t *testing.T) {
	metrics := monitoring.NewMetricsCollector()
	store, err := ml.NewStore(&ml.Linear{Coefficients: []float64{1}}, ml.FeatureSchema{"age_days"}, time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	service, err := ml.NewService(store, ml.ServiceConfig{Observers: []ml.Observer{metrics}})
	if err != nil {
		t.Fatal(err)
	}
	handler := NewHandler(DefaultServerConfig(), Deps{Service: service, Metrics: metrics}, nil)
	serve(handler, http.MethodPost, "/predict", `{"age_days": 2}`)

	payload := decode(t, serve(handler, http.MethodGet, "/metrics", ""))
	predictions := payload["predictions"].(map[string]interface{})
	httpCounts := predictions[Source].(map[string]interface{})
	if httpCounts[monitoring.OutcomeSuccess].(float64) != 1 {
		t.Fatalf("unexpected counters %v", predictions)
	}
}

func TestCORSPreflight(t *testing.T) {
	handler := NewHandler(DefaultServerConfig(), Deps{Service: newTestService(t)}, nil)
	req := httptest.NewRequest(http.MethodOptions, "/predict", nil)
	req.Header.Set("Origin", "https://example.org")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("unexpected allow origin %q", rr.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	handler := RecoveryMiddleware(zapNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rr := serve(handler, http.MethodGet, "/", "")
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	if decode(t, rr)["success"] != false {
		t.Fatal("expected failure payload")
	}
}

func TestRequestSizeLimit(t *testing.T) {
	config := DefaultServerConfig()
	config.MaxBodyBytes = 16
	handler := NewHandler(config, Deps{Service: newTestService(t), StrictStatus: true}, nil)
	rr := serve(handler, http.MethodPost, "/predict", `{"age_days": 3, "weight_kg": 3.2}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func zapNop() *zap.Logger { return zap.NewNop() }
