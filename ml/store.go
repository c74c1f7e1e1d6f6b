package ml

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// State of a Store. Degraded is entered once at load and never left.
type State int

const (
	StateReady State = iota
	StateDegraded
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateDegraded:
		return "degraded"
	default:
		return "unknown"
	}
}

type StoreConfig struct {
	ModelType        string
	ModelPath        string
	FeatureNamesPath string
	PlaceholderDate  time.Time
}

// Store owns the regressor and its feature schema for the process lifetime.
// It is built once and never mutated.
type Store struct {
	model   Regressor
	aligner *Aligner
	state   State
	err     error
}

// LoadStore reads both artifacts. It never fails: a load error leaves the
// store degraded and is reported by Err.
func LoadStore(cfg StoreConfig, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	store, err := loadStore(cfg)
	if err != nil {
		logger.Error("model store degraded",
			zap.String("model_path", cfg.ModelPath),
			zap.String("feature_names_path", cfg.FeatureNamesPath),
			zap.Error(err))
		return NewDegradedStore(err)
	}
	logger.Info("model loaded",
		zap.String("model_path", cfg.ModelPath),
		zap.Int("features", len(store.aligner.schema)))
	return store
}

func loadStore(cfg StoreConfig) (*Store, error) {
	model, err := LoadModel(cfg.ModelType, cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	schema, err := LoadFeatureNames(cfg.FeatureNamesPath)
	if err != nil {
		return nil, fmt.Errorf("load feature names: %w", err)
	}
	return NewStore(model, schema, cfg.PlaceholderDate)
}

// NewStore builds a ready store from in-memory artifacts.
func NewStore(model Regressor, schema FeatureSchema, placeholder time.Time) (*Store, error) {
	if model == nil {
		return nil, fmt.Errorf("model is nil")
	}
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	if n := model.NumFeatures(); n != len(schema) {
		return nil, fmt.Errorf("model expects %d features but schema has %d", n, len(schema))
	}
	return &Store{
		model:   model,
		aligner: NewAligner(schema, placeholder),
		state:   StateReady,
	}, nil
}

func NewDegradedStore(err error) *Store {
	return &Store{state: StateDegraded, err: err}
}

func (s *Store) State() State { return s.state }

func (s *Store) Ready() bool { return s.state == StateReady }

// Err is the load failure of a degraded store.
func (s *Store) Err() error { return s.err }

func (s *Store) Schema() FeatureSchema {
	if s.aligner == nil {
		return nil
	}
	return s.aligner.Schema()
}
