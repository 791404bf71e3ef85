package stores

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"

	"github.com/openfroyo/factopt/pkg/engine"
	"github.com/openfroyo/factopt/pkg/model"
	"github.com/openfroyo/factopt/pkg/runner"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db  *sql.DB
	cfg Config
}

var (
	_ Store        = (*SQLiteStore)(nil)
	_ runner.Store = (*SQLiteStore)(nil)
)

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	// Set defaults
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}
	// Every connection to :memory: opens a separate database.
	if cfg.Path == ":memory:" {
		cfg.MaxOpenConns = 1
		cfg.MaxIdleConns = 1
		cfg.ConnMaxLifetime = 0
	}

	return &SQLiteStore{cfg: cfg}, nil
}

// Init opens the database with foreign keys and WAL enabled on every
// connection.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)",
		s.cfg.Path, s.cfg.BusyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// HealthCheck verifies the database is reachable.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// withTx runs fn in a transaction, rolling back on error.
func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// SaveRun inserts a run or updates its mutable fields.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *engine.Run) error {
	query := `
		INSERT INTO runs (
			id, factory, scenario, status, t_start, t_end, objective, backend,
			row_count, column_count, started_at, completed_at, duration_ns, error,
			trace_id, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			objective = excluded.objective,
			backend = excluded.backend,
			row_count = excluded.row_count,
			column_count = excluded.column_count,
			completed_at = excluded.completed_at,
			duration_ns = excluded.duration_ns,
			error = excluded.error,
			trace_id = excluded.trace_id,
			updated_at = excluded.updated_at
	`

	var errMsg sql.NullString
	if run.Error != "" {
		errMsg = sql.NullString{String: run.Error, Valid: true}
	}
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx, query,
		run.ID,
		run.Factory,
		run.Scenario,
		string(run.Status),
		run.TStart,
		run.TEnd,
		run.Objective,
		run.Backend,
		run.Rows,
		run.Columns,
		run.StartedAt.UTC(),
		utcPtr(run.CompletedAt),
		int64(run.Duration),
		errMsg,
		run.TraceID,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

const runColumns = `id, factory, scenario, status, t_start, t_end, objective, backend,
	row_count, column_count, started_at, completed_at, duration_ns, error, trace_id`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*engine.Run, error) {
	run := &engine.Run{}
	var (
		duration int64
		errMsg   sql.NullString
	)
	err := row.Scan(
		&run.ID,
		&run.Factory,
		&run.Scenario,
		&run.Status,
		&run.TStart,
		&run.TEnd,
		&run.Objective,
		&run.Backend,
		&run.Rows,
		&run.Columns,
		&run.StartedAt,
		&run.CompletedAt,
		&duration,
		&errMsg,
		&run.TraceID,
	)
	if err != nil {
		return nil, err
	}
	run.Duration = time.Duration(duration)
	run.Error = errMsg.String
	return run, nil
}

// GetRun retrieves a run by ID
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*engine.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE id = ?`

	run, err := scanRun(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns lists runs, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]*engine.Run, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.Factory != "" {
		where = append(where, "factory = ?")
		args = append(args, filter.Factory)
	}
	if filter.Scenario != "" {
		where = append(where, "scenario = ?")
		args = append(args, filter.Scenario)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}

	query := `SELECT ` + runColumns + ` FROM runs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = -1
	}
	query += " ORDER BY started_at DESC, id LIMIT ? OFFSET ?"
	args = append(args, limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []*engine.Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}

// DeleteRun deletes a run with its result. Events are kept.
func (s *SQLiteStore) DeleteRun(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return nil
}

// SaveResult replaces the stored result of a run. The run must exist.
func (s *SQLiteStore) SaveResult(ctx context.Context, res *model.Result) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"flows", "aux_series", "cost_terms", "warnings", "results"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE run_id = ?", res.RunID); err != nil {
				return fmt.Errorf("failed to clear %s: %w", table, err)
			}
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO results (run_id, slack_usage, solve_duration_ns) VALUES (?, ?, ?)`,
			res.RunID, res.SlackUsage, int64(res.Duration)); err != nil {
			return fmt.Errorf("failed to save result: %w", err)
		}

		for _, f := range res.Flows {
			series, err := json.Marshal(f.Values)
			if err != nil {
				return fmt.Errorf("failed to marshal flow %s: %w", f.Connection, err)
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO flows (run_id, connection, from_component, to_component, flowtype, series, total)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				res.RunID, f.Connection, f.From, f.To, f.Flowtype, string(series), f.Total); err != nil {
				return fmt.Errorf("failed to save flow %s: %w", f.Connection, err)
			}
		}

		for comp, vecs := range res.Aux {
			for name, values := range vecs {
				series, err := json.Marshal(values)
				if err != nil {
					return fmt.Errorf("failed to marshal %s.%s: %w", comp, name, err)
				}
				if _, err := tx.ExecContext(ctx,
					`INSERT INTO aux_series (run_id, component, name, series) VALUES (?, ?, ?, ?)`,
					res.RunID, comp, name, string(series)); err != nil {
					return fmt.Errorf("failed to save %s.%s: %w", comp, name, err)
				}
			}
		}

		for i, c := range res.CostTerms {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO cost_terms (run_id, position, component, connection, label, value)
				VALUES (?, ?, ?, ?, ?, ?)`,
				res.RunID, i, c.Component, c.Connection, c.Label, c.Value); err != nil {
				return fmt.Errorf("failed to save cost term: %w", err)
			}
		}

		for i, w := range res.Warnings {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO warnings (run_id, position, component, code, message)
				VALUES (?, ?, ?, ?, ?)`,
				res.RunID, i, w.Component, w.Code, w.Message); err != nil {
				return fmt.Errorf("failed to save warning: %w", err)
			}
		}
		return nil
	})
}

// GetResult reassembles the stored result of a run.
func (s *SQLiteStore) GetResult(ctx context.Context, runID string) (*model.Result, error) {
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	res := &model.Result{
		RunID:     run.ID,
		Factory:   run.Factory,
		Scenario:  run.Scenario,
		TStart:    run.TStart,
		TEnd:      run.TEnd,
		Status:    run.Status,
		Objective: run.Objective,
		Backend:   run.Backend,
	}

	var duration int64
	err = s.db.QueryRowContext(ctx,
		`SELECT slack_usage, solve_duration_ns FROM results WHERE run_id = ?`, runID).
		Scan(&res.SlackUsage, &duration)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("result of run %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get result: %w", err)
	}
	res.Duration = time.Duration(duration)

	if err := s.loadFlows(ctx, res); err != nil {
		return nil, err
	}
	if err := s.loadAux(ctx, res); err != nil {
		return nil, err
	}
	if err := s.loadCostTerms(ctx, res); err != nil {
		return nil, err
	}
	if err := s.loadWarnings(ctx, res); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *SQLiteStore) loadFlows(ctx context.Context, res *model.Result) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT connection, from_component, to_component, flowtype, series, total
		FROM flows WHERE run_id = ? ORDER BY rowid`, res.RunID)
	if err != nil {
		return fmt.Errorf("failed to load flows: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			f      model.FlowResult
			series string
		)
		if err := rows.Scan(&f.Connection, &f.From, &f.To, &f.Flowtype, &series, &f.Total); err != nil {
			return fmt.Errorf("failed to scan flow: %w", err)
		}
		if err := json.Unmarshal([]byte(series), &f.Values); err != nil {
			return fmt.Errorf("failed to decode flow %s: %w", f.Connection, err)
		}
		res.Flows = append(res.Flows, f)
	}
	return rows.Err()
}

func (s *SQLiteStore) loadAux(ctx context.Context, res *model.Result) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT component, name, series FROM aux_series WHERE run_id = ?`, res.RunID)
	if err != nil {
		return fmt.Errorf("failed to load auxiliary series: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var comp, name, series string
		if err := rows.Scan(&comp, &name, &series); err != nil {
			return fmt.Errorf("failed to scan auxiliary series: %w", err)
		}
		var values []float64
		if err := json.Unmarshal([]byte(series), &values); err != nil {
			return fmt.Errorf("failed to decode %s.%s: %w", comp, name, err)
		}
		if res.Aux == nil {
			res.Aux = make(map[string]map[string][]float64)
		}
		if res.Aux[comp] == nil {
			res.Aux[comp] = make(map[string][]float64)
		}
		res.Aux[comp][name] = values
	}
	return rows.Err()
}

func (s *SQLiteStore) loadCostTerms(ctx context.Context, res *model.Result) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT component, connection, label, value
		FROM cost_terms WHERE run_id = ? ORDER BY position`, res.RunID)
	if err != nil {
		return fmt.Errorf("failed to load cost terms: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c model.CostValue
		if err := rows.Scan(&c.Component, &c.Connection, &c.Label, &c.Value); err != nil {
			return fmt.Errorf("failed to scan cost term: %w", err)
		}
		res.CostTerms = append(res.CostTerms, c)
	}
	return rows.Err()
}

func (s *SQLiteStore) loadWarnings(ctx context.Context, res *model.Result) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT component, code, message
		FROM warnings WHERE run_id = ? ORDER BY position`, res.RunID)
	if err != nil {
		return fmt.Errorf("failed to load warnings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var w model.Warning
		if err := rows.Scan(&w.Component, &w.Code, &w.Message); err != nil {
			return fmt.Errorf("failed to scan warning: %w", err)
		}
		res.Warnings = append(res.Warnings, w)
	}
	return rows.Err()
}

// SaveEvent appends an event to the log.
func (s *SQLiteStore) SaveEvent(ctx context.Context, event *engine.Event) error {
	query := `
		INSERT INTO events (id, run_id, type, component, level, message, details, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	var details sql.NullString
	if len(event.Details) > 0 {
		data, err := json.Marshal(event.Details)
		if err != nil {
			return fmt.Errorf("failed to marshal event details: %w", err)
		}
		details = sql.NullString{String: string(data), Valid: true}
	}
	level := event.Level
	if level == "" {
		level = event.Type.Severity()
	}
	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		event.RunID,
		string(event.Type),
		event.Component,
		level,
		event.Message,
		details,
		ts.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save event: %w", err)
	}
	return nil
}

// GetEvents returns events matching filter in timestamp order. A limit of
// zero returns every event.
func (s *SQLiteStore) GetEvents(ctx context.Context, filter engine.EventFilter, limit int) ([]*engine.Event, error) {
	query := `SELECT id, run_id, type, component, level, message, details, timestamp FROM events`
	var args []interface{}
	if filter.RunID != "" {
		query += " WHERE run_id = ?"
		args = append(args, filter.RunID)
	}
	query += " ORDER BY timestamp, rowid"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}
	defer rows.Close()

	events := []*engine.Event{}
	for rows.Next() {
		e := &engine.Event{}
		var details sql.NullString
		if err := rows.Scan(&e.ID, &e.RunID, &e.Type, &e.Component, &e.Level, &e.Message, &details, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if details.Valid {
			if err := json.Unmarshal([]byte(details.String), &e.Details); err != nil {
				return nil, fmt.Errorf("failed to decode event details: %w", err)
			}
		}
		// Type and level filters are applied here to share EventFilter.Match.
		if !filter.Match(*e) {
			continue
		}
		events = append(events, e)
		if limit > 0 && len(events) == limit {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}
	return events, nil
}
