package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"jaundice/ml"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

const schema = `
CREATE TABLE IF NOT EXISTS predictions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    source TEXT NOT NULL DEFAULT '',
    request_id TEXT NOT NULL DEFAULT '',
    input TEXT NOT NULL,
    prediction REAL,
    error TEXT NOT NULL DEFAULT '',
    duration_us INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_predictions_created_at ON predictions(created_at);
`

// PredictionRecord is one row of the prediction history.
type PredictionRecord struct {
	ID         int64     `db:"id" json:"id"`
	Source     string    `db:"source" json:"source"`
	RequestID  string    `db:"request_id" json:"request_id"`
	Input      RawJSON   `db:"input" json:"input"`
	Prediction *float64  `db:"prediction" json:"prediction,omitempty"`
	Error      string    `db:"error" json:"error,omitempty"`
	DurationUS int64     `db:"duration_us" json:"duration_us"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// RawJSON is a JSON document kept in a TEXT column.
type RawJSON []byte

func (r *RawJSON) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		*r = RawJSON(v)
	case []byte:
		*r = append(RawJSON(nil), v...)
	case nil:
		*r = nil
	default:
		return fmt.Errorf("cannot scan %T into RawJSON", src)
	}
	return nil
}

func (r RawJSON) MarshalJSON() ([]byte, error) {
	if len(r) == 0 {
		return []byte("null"), nil
	}
	return r, nil
}

// DefaultQueueSize is the number of outcomes buffered for the writer before
// new ones are dropped.
const DefaultQueueSize = 1024

// PredictionLog stores every prediction outcome in SQLite. It implements
// ml.Observer; outcomes are queued and written by a background goroutine so
// a slow or locked database never delays a prediction.
type PredictionLog struct {
	db     *sqlx.DB
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan PredictionRecord
	done   chan struct{}
	once   sync.Once
}

// Open initializes the SQLite database at path and starts the writer.
func Open(path string, logger *zap.Logger) (*PredictionLog, error) {
	return OpenWithQueue(path, DefaultQueueSize, logger)
}

func OpenWithQueue(path string, queueSize int, logger *zap.Logger) (*PredictionLog, error) {
	if path == "" {
		return nil, errors.New("database path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	database, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// sqlite allows a single writer
	database.SetMaxOpenConns(1)
	if _, err := database.Exec(schema); err != nil {
		database.Close()
		return nil, err
	}
	l := &PredictionLog{
		db:     database,
		logger: logger,
		queue:  make(chan PredictionRecord, queueSize),
		done:   make(chan struct{}),
	}
	go l.writeLoop()
	return l, nil
}

// Close stops accepting outcomes, writes everything already queued and closes
// the database.
func (l *PredictionLog) Close() error {
	var err error
	l.once.Do(func() {
		l.mu.Lock()
		l.closed = true
		close(l.queue)
		l.mu.Unlock()
		<-l.done
		err = l.db.Close()
	})
	return err
}

func (l *PredictionLog) writeLoop() {
	defer close(l.done)
	for record := range l.queue {
		if err := l.insert(context.Background(), record); err != nil {
			l.logger.Warn("failed to save prediction", zap.String("request_id", record.RequestID), zap.Error(err))
		}
	}
}

// Save inserts one prediction outcome synchronously.
func (l *PredictionLog) Save(ctx context.Context, event ml.PredictionEvent) error {
	record, err := newRecord(event)
	if err != nil {
		return err
	}
	return l.insert(ctx, record)
}

// ObservePrediction queues the outcome without blocking. When the queue is
// full or the log is closed the outcome is dropped.
func (l *PredictionLog) ObservePrediction(ctx context.Context, event ml.PredictionEvent) {
	record, err := newRecord(event)
	if err != nil {
		l.logger.Warn("failed to encode prediction", zap.String("request_id", event.RequestID), zap.Error(err))
		return
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return
	}
	select {
	case l.queue <- record:
	default:
		l.logger.Warn("prediction history queue full, dropping outcome", zap.String("request_id", event.RequestID))
	}
}

// newRecord encodes the input up front so the caller's record can be reused
// once Predict returns.
func newRecord(event ml.PredictionEvent) (PredictionRecord, error) {
	input, err := json.Marshal(event.Record)
	if err != nil {
		return PredictionRecord{}, err
	}
	record := PredictionRecord{
		Source:     event.Source,
		RequestID:  event.RequestID,
		Input:      RawJSON(input),
		DurationUS: event.Duration.Microseconds(),
		CreatedAt:  event.Time.UTC(),
	}
	if event.Err != nil {
		record.Error = event.Err.Error()
	} else {
		value := event.Value
		record.Prediction = &value
	}
	return record, nil
}

func (l *PredictionLog) insert(ctx context.Context, record PredictionRecord) error {
	_, err := l.db.ExecContext(ctx, `
        INSERT INTO predictions (source, request_id, input, prediction, error, duration_us, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)`,
		record.Source, record.RequestID, string(record.Input), record.Prediction, record.Error,
		record.DurationUS, record.CreatedAt)
	return err
}

// Recent returns the newest predictions first.
func (l *PredictionLog) Recent(ctx context.Context, limit int) ([]PredictionRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	records := make([]PredictionRecord, 0)
	err := l.db.SelectContext(ctx, &records, `
        SELECT id, source, request_id, input, prediction, error, duration_us, created_at
        FROM predictions
        ORDER BY id DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	return records, nil
}
