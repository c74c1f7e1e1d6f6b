package monitoring

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"jaundice/ml"
)

// MetricType 指标类型
type MetricType string

const (
	MetricTypeCounter   MetricType = "counter"
	MetricTypeHistogram MetricType = "histogram"
)

// Outcome labels for prediction counters.
const (
	OutcomeSuccess          = "success"
	OutcomeModelUnavailable = "model_unavailable"
	OutcomeSchemaMismatch   = "schema_mismatch"
	OutcomeInferenceError   = "inference_error"
	OutcomeOther            = "other"
)

const maxSamples = 1000

// Metric is one recorded sample.
type Metric struct {
	Name      string            `json:"name"`
	Type      MetricType        `json:"type"`
	Value     float64           `json:"value"`
	Labels    map[string]string `json:"labels,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// MetricsCollector aggregates prediction outcomes and latency in memory.
// It implements ml.Observer.
type MetricsCollector struct {
	mu        sync.RWMutex
	counters  map[string]map[string]int64 // source -> outcome -> count
	latencies []*Metric
	startTime time.Time
}

func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		counters:  make(map[string]map[string]int64),
		startTime: time.Now(),
	}
}

// Classify maps a prediction error to its outcome label.
func Classify(err error) string {
	var mismatch *ml.SchemaMismatchError
	var inference *ml.InferenceError
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, ml.ErrModelUnavailable):
		return OutcomeModelUnavailable
	case errors.As(err, &mismatch):
		return OutcomeSchemaMismatch
	case errors.As(err, &inference):
		return OutcomeInferenceError
	default:
		return OutcomeOther
	}
}

func (mc *MetricsCollector) ObservePrediction(ctx context.Context, event ml.PredictionEvent) {
	source := event.Source
	if source == "" {
		source = "unknown"
	}
	outcome := Classify(event.Err)

	mc.mu.Lock()
	defer mc.mu.Unlock()

	bySource, ok := mc.counters[source]
	if !ok {
		bySource = make(map[string]int64)
		mc.counters[source] = bySource
	}
	bySource[outcome]++

	mc.latencies = append(mc.latencies, &Metric{
		Name:      "prediction_latency_ms",
		Type:      MetricTypeHistogram,
		Value:     float64(event.Duration.Microseconds()) / 1000,
		Labels:    map[string]string{"source": source, "outcome": outcome},
		Timestamp: event.Time,
	})
	// 保留最近 maxSamples 个
	if len(mc.latencies) > maxSamples {
		mc.latencies = mc.latencies[len(mc.latencies)-maxSamples:]
	}
}

// Count returns the number of predictions with the given source and outcome.
func (mc *MetricsCollector) Count(source, outcome string) int64 {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return mc.counters[source][outcome]
}

// LatencySummary 延迟摘要
type LatencySummary struct {
	Count   int     `json:"count"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Average float64 `json:"average"`
	P95     float64 `json:"p95"`
}

// Snapshot is the JSON body served on /metrics.
type Snapshot struct {
	Uptime      string                      `json:"uptime"`
	Predictions map[string]map[string]int64 `json:"predictions"`
	Latency     LatencySummary              `json:"latency_ms"`
}

func (mc *MetricsCollector) Snapshot() Snapshot {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	counters := make(map[string]map[string]int64, len(mc.counters))
	for source, outcomes := range mc.counters {
		copied := make(map[string]int64, len(outcomes))
		for outcome, n := range outcomes {
			copied[outcome] = n
		}
		counters[source] = copied
	}

	return Snapshot{
		Uptime:      time.Since(mc.startTime).Truncate(time.Second).String(),
		Predictions: counters,
		Latency:     summarize(mc.latencies),
	}
}

func summarize(metrics []*Metric) LatencySummary {
	if len(metrics) == 0 {
		return LatencySummary{}
	}
	values := make([]float64, len(metrics))
	sum := 0.0
	for i, m := range metrics {
		values[i] = m.Value
		sum += m.Value
	}
	sort.Float64s(values)
	idx := int(float64(len(values))*0.95+0.5) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(values) {
		idx = len(values) - 1
	}
	return LatencySummary{
		Count:   len(values),
		Min:     values[0],
		Max:     values[len(values)-1],
		Average: sum / float64(len(values)),
		P95:     values[idx],
	}
}

func (s LatencySummary) String() string {
	return fmt.Sprintf("count=%d avg=%.3fms p95=%.3fms", s.Count, s.Average, s.P95)
}
