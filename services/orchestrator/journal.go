package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"phantomd/pkg/db"
	"phantomd/services/factory"
)

// Journal persists alerts and deployment runs so they survive both the
// process and the bus.
type Journal struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

// NewJournal wraps an open database pool.
func NewJournal(pool *pgxpool.Pool, logger *zap.Logger) (*Journal, error) {
	if pool == nil {
		return nil, errors.New("nil pool")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Journal{pool: pool, log: logger}, nil
}

// RecordAlert appends one alert row.
func (j *Journal) RecordAlert(ctx context.Context, alert Alert) error {
	if j == nil {
		return errors.New("nil journal")
	}
	_, err := db.Exec(ctx, j.pool, `
		INSERT INTO alerts (trap, path, op, host, actor, observed_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		alert.Trap, alert.Path, string(alert.Op), alert.Host, alert.User, alert.ObservedAt)
	return err
}

// RecordRun appends one deployment row together with a snapshot of what
// landed on disk.
func (j *Journal) RecordRun(ctx context.Context, summary factory.Summary, artifacts []factory.ArtifactInfo) error {
	if j == nil {
		return errors.New("nil journal")
	}

	snapshot, err := json.Marshal(artifacts)
	if err != nil {
		return err
	}

	_, err = db.Exec(ctx, j.pool, `
		INSERT INTO deployments (deployed, total, host, actor, artifacts, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		summary.Deployed, summary.Total, summary.Context.Host, summary.Context.User, snapshot, time.Now().UTC())
	return err
}

// CountAlerts reports how many alerts the journal holds.
func (j *Journal) CountAlerts(ctx context.Context) (int64, error) {
	if j == nil {
		return 0, errors.New("nil journal")
	}

	var count int64
	err := db.Get(ctx, j.pool, &count, `SELECT count(*) FROM alerts`)
	return count, err
}

// RecentAlerts returns the newest alerts first.
func (j *Journal) RecentAlerts(ctx context.Context, limit int) ([]Alert, error) {
	if j == nil {
		return nil, errors.New("nil journal")
	}
	if limit <= 0 {
		limit = 20
	}

	var alerts []Alert
	err := db.Select(ctx, j.pool, &alerts, `
		SELECT trap, path, op, host, actor, observed_at
		FROM alerts
		ORDER BY id DESC
		LIMIT $1`, limit)
	return alerts, err
}
