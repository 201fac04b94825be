// internal/storage/postgres.go
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang/snappy"
	_ "github.com/lib/pq" // PostgreSQL driver
	"go.uber.org/zap"

	"github.com/opsforge/pulse/internal/metrics"
)

// PostgresStore persists snapshots to PostgreSQL for long-term history.
// Payloads are stored as snappy-compressed JSON alongside a few indexed
// columns so dashboards can query without decompressing every row.
type PostgresStore struct {
	db        *sql.DB
	retention time.Duration
	logger    *zap.Logger
}

// NewPostgresStore opens a connection and ensures the schema exists.
func NewPostgresStore(url string, retention time.Duration, logger *zap.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}

	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	s := &PostgresStore{db: db, retention: retention, logger: logger}
	if err := s.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	query := `
        CREATE TABLE IF NOT EXISTS metric_snapshots (
            id BIGSERIAL PRIMARY KEY,
            taken_at TIMESTAMPTZ NOT NULL,
            success_rate DOUBLE PRECISION NOT NULL,
            cpu_percent DOUBLE PRECISION NOT NULL,
            payload BYTEA NOT NULL
        );
        CREATE INDEX IF NOT EXISTS idx_metric_snapshots_taken_at
            ON metric_snapshots (taken_at)
    `
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Save writes one snapshot row and opportunistically prunes expired rows.
func (s *PostgresStore) Save(ctx context.Context, snap *metrics.MetricSnapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	payload := snappy.Encode(nil, raw)

	query := `
        INSERT INTO metric_snapshots (taken_at, success_rate, cpu_percent, payload)
        VALUES ($1, $2, $3, $4)
    `
	_, err = s.db.ExecContext(ctx, query,
		snap.Timestamp, snap.Application.SuccessRate, snap.Infrastructure.CPUPercent, payload)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}

	if err := s.prune(ctx, snap.Timestamp); err != nil {
		// Pruning failure must not surface as a save failure.
		s.logger.Warn("snapshot prune failed", zap.Error(err))
	}
	return nil
}

func (s *PostgresStore) prune(ctx context.Context, now time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM metric_snapshots WHERE taken_at < $1`, now.Add(-s.retention))
	return err
}

// Recent loads up to n snapshots, newest first.
func (s *PostgresStore) Recent(ctx context.Context, n int) ([]*metrics.MetricSnapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM metric_snapshots ORDER BY taken_at DESC LIMIT $1`, n)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*metrics.MetricSnapshot
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		raw, err := snappy.Decode(nil, payload)
		if err != nil {
			return nil, fmt.Errorf("decode payload: %w", err)
		}
		var snap metrics.MetricSnapshot
		if err := json.Unmarshal(raw, &snap); err != nil {
			return nil, fmt.Errorf("unmarshal snapshot: %w", err)
		}
		out = append(out, &snap)
	}
	return out, rows.Err()
}

// Close closes the underlying connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
