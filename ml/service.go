package ml

import (
	"context"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Prediction is the formatted result of one inference.
type Prediction struct {
	Value   float64
	Message string
}

// PredictionEvent describes one completed Service.Predict call.
type PredictionEvent struct {
	Source    string
	RequestID string
	Record    Record
	Value     float64
	Err       error
	Duration  time.Duration
	Time      time.Time
}

type ServiceConfig struct {
	// CacheSize bounds the memoized vector -> prediction entries. 0 disables it.
	CacheSize int
	Observers []Observer
	Logger    *zap.Logger
}

// Service is the alignment + inference pipeline shared by every entry adapter.
type Service struct {
	store     *Store
	cache     *lru.Cache[string, float64]
	observers []Observer
	printer   *message.Printer
	logger    *zap.Logger
}

func NewService(store *Store, cfg ServiceConfig) (*Service, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		store:     store,
		observers: cfg.Observers,
		printer:   message.NewPrinter(language.English),
		logger:    logger,
	}
	if cfg.CacheSize > 0 {
		cache, err := lru.New[string, float64](cfg.CacheSize)
		if err != nil {
			return nil, err
		}
		s.cache = cache
	}
	return s, nil
}

func (s *Service) Store() *Store {
	return s.store
}

// Predict aligns the record and runs the model. A degraded store fails with
// ErrModelUnavailable before any alignment happens.
func (s *Service) Predict(ctx context.Context, record Record) (*Prediction, error) {
	start := time.Now()
	value, err := s.predict(record)
	s.notify(ctx, PredictionEvent{
		Source:    SourceFromContext(ctx),
		RequestID: RequestIDFromContext(ctx),
		Record:    record,
		Value:     value,
		Err:       err,
		Duration:  time.Since(start),
		Time:      start,
	})
	if err != nil {
		return nil, err
	}
	return &Prediction{Value: value, Message: s.FormatMessage(value)}, nil
}

func (s *Service) predict(record Record) (float64, error) {
	if !s.store.Ready() {
		return 0, ErrModelUnavailable
	}
	vector, err := s.store.aligner.Align(record)
	if err != nil {
		return 0, err
	}
	if s.cache == nil {
		return Infer(s.store.model, vector)
	}
	key := vectorKey(vector)
	if value, ok := s.cache.Get(key); ok {
		return value, nil
	}
	value, err := Infer(s.store.model, vector)
	if err != nil {
		return 0, err
	}
	s.cache.Add(key, value)
	return value, nil
}

func (s *Service) FormatMessage(value float64) string {
	return s.printer.Sprintf("Predicted jaundice level: %.2f mg/dL", value)
}

func (s *Service) notify(ctx context.Context, event PredictionEvent) {
	for _, o := range s.observers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("prediction observer panicked", zap.Any("panic", r))
				}
			}()
			o.ObservePrediction(ctx, event)
		}()
	}
}

func vectorKey(vector []float64) string {
	var b strings.Builder
	for i, v := range vector {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	}
	return b.String()
}

type contextKey string

const (
	sourceKey    contextKey = "source"
	requestIDKey contextKey = "request_id"
)

// WithSource tags a context with the entry adapter that produced a request.
func WithSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, sourceKey, source)
}

func SourceFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(sourceKey).(string); ok {
		return v
	}
	return ""
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

func RequestIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}
