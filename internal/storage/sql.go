package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"github.com/haasonsaas/promptlens/pkg/models"
)

// Dialect selects SQL syntax differences between backends.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"

	// DialectSQLiteCgo is SQLite through the cgo driver (mattn/go-sqlite3).
	DialectSQLiteCgo Dialect = "sqlite3"
)

func (d Dialect) driverName() string {
	return string(d)
}

func (d Dialect) sqlite() bool {
	return d == DialectSQLite || d == DialectSQLiteCgo
}

func (d Dialect) placeholder(n int) string {
	if d == DialectPostgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// SQLStore is a MetricStore over database/sql. It speaks PostgreSQL
// (and CockroachDB) through lib/pq and SQLite through modernc.org/sqlite, or
// mattn/go-sqlite3 when built with cgo.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

// OpenSQLStore opens the database, verifies connectivity, and applies
// pending migrations.
func OpenSQLStore(dialect Dialect, dsn string, config *SQLConfig) (*SQLStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("dsn is required")
	}
	switch dialect {
	case DialectPostgres, DialectSQLite, DialectSQLiteCgo:
	default:
		return nil, fmt.Errorf("unsupported dialect %q", dialect)
	}
	pool := config.withDefaults()

	db, err := sql.Open(dialect.driverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	pool.apply(db, dialect)

	ctx, cancel := context.WithTimeout(context.Background(), pool.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := NewSQLStore(db, dialect)
	if err := store.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLStore wraps an open database without migrating it.
func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect, now: time.Now}
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS metrics (
		id TEXT PRIMARY KEY,
		experiment_id TEXT NOT NULL,
		prompt_hash TEXT NOT NULL,
		model TEXT NOT NULL,
		latency_ms BIGINT NOT NULL,
		user_id TEXT NOT NULL DEFAULT '',
		ts BIGINT NOT NULL,
		custom_metrics TEXT,
		received_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS metrics_experiment_id_idx ON metrics (experiment_id, ts)`,
	`CREATE INDEX IF NOT EXISTS metrics_prompt_hash_idx ON metrics (prompt_hash, ts)`,
	`CREATE INDEX IF NOT EXISTS metrics_ts_idx ON metrics (ts)`,
}

// Migrate applies migrations not yet recorded in schema_migrations.
func (s *SQLStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER PRIMARY KEY, applied_at BIGINT NOT NULL)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}
	var current sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	for i := int(current.Int64); i < len(migrations); i++ {
		version := i + 1
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", version, err)
		}
		if _, err := tx.ExecContext(ctx, migrations[i]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration %d: %w", version, err)
		}
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf(`INSERT INTO schema_migrations (version, applied_at) VALUES (%s, %s)`,
				s.dialect.placeholder(1), s.dialect.placeholder(2)),
			version, s.now().UnixMilli()); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", version, err)
		}
	}
	return nil
}

func (s *SQLStore) Insert(ctx context.Context, records []models.MetricRecord) ([]models.StoredMetric, error) {
	if len(records) == 0 {
		return []models.StoredMetric{}, nil
	}
	received := s.now().UTC()
	stored := make([]models.StoredMetric, 0, len(records))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin insert: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT INTO metrics (id, experiment_id, prompt_hash, model, latency_ms, user_id, ts, custom_metrics, received_at)
		 VALUES (%s)`, s.placeholders(9)))
	if err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		custom, err := marshalCustom(rec.CustomMetrics)
		if err != nil {
			_ = tx.Rollback()
			return nil, err
		}
		m := models.StoredMetric{ID: uuid.NewString(), ReceivedAt: received, MetricRecord: rec}
		if _, err := stmt.ExecContext(ctx,
			m.ID,
			rec.ExperimentID,
			rec.PromptHash,
			rec.Model,
			rec.LatencyMs,
			rec.UserID,
			rec.Timestamp,
			custom,
			received.UnixMilli(),
		); err != nil {
			_ = tx.Rollback()
			return nil, fmt.Errorf("insert metric: %w", err)
		}
		stored = append(stored, m)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit insert: %w", err)
	}
	return stored, nil
}

const selectColumns = `SELECT id, experiment_id, prompt_hash, model, latency_ms, user_id, ts, custom_metrics, received_at FROM metrics`

func (s *SQLStore) Query(ctx context.Context, q MetricQuery) ([]models.StoredMetric, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	var (
		where string
		args  []any
	)
	switch {
	case strings.TrimSpace(q.ExperimentID) != "":
		where = "experiment_id = " + s.dialect.placeholder(1)
		args = append(args, strings.TrimSpace(q.ExperimentID))
	case strings.TrimSpace(q.PromptHash) != "":
		where = "prompt_hash = " + s.dialect.placeholder(1)
		args = append(args, strings.TrimSpace(q.PromptHash))
	default:
		where = fmt.Sprintf("ts >= %s AND ts <= %s", s.dialect.placeholder(1), s.dialect.placeholder(2))
		args = append(args, q.Start.UnixMilli(), q.End.UnixMilli())
	}
	query := selectColumns + " WHERE " + where + " ORDER BY ts DESC, received_at DESC"
	if q.Limit > 0 {
		query += " LIMIT " + strconv.Itoa(q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query metrics: %w", err)
	}
	defer rows.Close()

	out := make([]models.StoredMetric, 0)
	for rows.Next() {
		var (
			m        models.StoredMetric
			custom   sql.NullString
			received int64
		)
		if err := rows.Scan(
			&m.ID,
			&m.ExperimentID,
			&m.PromptHash,
			&m.Model,
			&m.LatencyMs,
			&m.UserID,
			&m.Timestamp,
			&custom,
			&received,
		); err != nil {
			return nil, fmt.Errorf("scan metric: %w", err)
		}
		if custom.Valid && custom.String != "" {
			if err := json.Unmarshal([]byte(custom.String), &m.CustomMetrics); err != nil {
				return nil, fmt.Errorf("unmarshal custom metrics: %w", err)
			}
		}
		m.ReceivedAt = time.UnixMilli(received).UTC()
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate metrics: %w", err)
	}
	return out, nil
}

func (s *SQLStore) Aggregate(ctx context.Context, experimentID string) (models.AggregatedMetrics, error) {
	experimentID = strings.TrimSpace(experimentID)
	if experimentID == "" {
		return models.AggregatedMetrics{}, ErrInvalidQuery
	}
	agg := models.AggregatedMetrics{ExperimentID: experimentID, ModelStats: map[string]int{}}

	var (
		avg         sql.NullFloat64
		first, last sql.NullInt64
	)
	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), AVG(latency_ms), MIN(ts), MAX(ts) FROM metrics WHERE experiment_id = `+s.dialect.placeholder(1),
		experimentID)
	if err := row.Scan(&agg.TotalRequests, &avg, &first, &last); err != nil {
		return models.AggregatedMetrics{}, fmt.Errorf("aggregate metrics: %w", err)
	}
	if agg.TotalRequests == 0 {
		return agg, nil
	}
	agg.AvgLatencyMs = avg.Float64
	if first.Valid && last.Valid {
		start, end := time.UnixMilli(first.Int64).UTC(), time.UnixMilli(last.Int64).UTC()
		agg.TimeRange = models.TimeRange{Start: &start, End: &end}
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT model, COUNT(*) FROM metrics WHERE experiment_id = `+s.dialect.placeholder(1)+` GROUP BY model`,
		experimentID)
	if err != nil {
		return models.AggregatedMetrics{}, fmt.Errorf("aggregate models: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var model string
		var count int
		if err := rows.Scan(&model, &count); err != nil {
			return models.AggregatedMetrics{}, fmt.Errorf("scan model stats: %w", err)
		}
		agg.ModelStats[model] = count
	}
	if err := rows.Err(); err != nil {
		return models.AggregatedMetrics{}, fmt.Errorf("iterate model stats: %w", err)
	}
	return agg, nil
}

func (s *SQLStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM metrics WHERE ts < `+s.dialect.placeholder(1), cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("delete metrics: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete metrics: %w", err)
	}
	return n, nil
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLStore) placeholders(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = s.dialect.placeholder(i + 1)
	}
	return strings.Join(parts, ",")
}

func marshalCustom(custom map[string]any) (any, error) {
	if len(custom) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(custom)
	if err != nil {
		return nil, fmt.Errorf("marshal custom metrics: %w", err)
	}
	return string(data), nil
}
