package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/rai-disparity/internal/db"
	"github.com/sells-group/rai-disparity/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists the queries prepared on each new connection.
var preparedStatements = map[string]string{
	"insert_run":   `INSERT INTO runs (id, name, params, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
	"get_run":      `SELECT id, name, params, status, error, created_at, updated_at FROM runs WHERE id = $1`,
	"insert_stage": `INSERT INTO run_stages (id, run_id, name, rows_in, rows_out, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	name       TEXT NOT NULL,
	params     JSONB NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	error      TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS run_stages (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	run_id     TEXT NOT NULL REFERENCES runs(id),
	name       TEXT NOT NULL,
	rows_in    INTEGER NOT NULL,
	rows_out   INTEGER NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS run_effects (
	run_id   TEXT NOT NULL REFERENCES runs(id),
	score    TEXT NOT NULL,
	ate      DOUBLE PRECISION,
	att      DOUBLE PRECISION,
	units    INTEGER NOT NULL,
	matched  INTEGER NOT NULL,
	n_groups INTEGER NOT NULL,
	dropped  INTEGER NOT NULL,
	PRIMARY KEY (run_id, score)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_name ON runs(name);
CREATE INDEX IF NOT EXISTS idx_run_stages_run_id ON run_stages(run_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, name string, params json.RawMessage) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()
	if len(params) == 0 {
		params = json.RawMessage("{}")
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, name, params, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		id, name, []byte(params), string(model.RunStatusRunning), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.Run{
		ID:        id,
		Name:      name,
		Params:    params,
		Status:    model.RunStatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// CompleteRun marks the run complete and copies its effect rows in bulk.
func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, effects []model.EffectSummary) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, error = NULL, updated_at = $2 WHERE id = $3`,
		string(model.RunStatusComplete), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}

	if _, err := s.pool.Exec(ctx, `DELETE FROM run_effects WHERE run_id = $1`, runID); err != nil {
		return eris.Wrapf(err, "postgres: clear effects %s", runID)
	}
	rows := make([][]any, len(effects))
	for i, e := range effects {
		rows[i] = []any{runID, e.Score, nullable(e.ATE), nullable(e.ATT), e.Units, e.Matched, e.Groups, e.Dropped}
	}
	if _, err := db.CopyRows(ctx, s.pool, "run_effects", effectColumns, rows); err != nil {
		return eris.Wrapf(err, "postgres: copy effects %s", runID)
	}
	return nil
}

func (s *PostgresStore) FailRun(ctx context.Context, runID string, runErr error) error {
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, error = $2, updated_at = $3 WHERE id = $4`,
		string(model.RunStatusFailed), msg, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	var r model.Run
	var params []byte
	var runErr *string

	err := s.pool.QueryRow(ctx,
		`SELECT id, name, params, status, error, created_at, updated_at FROM runs WHERE id = $1`,
		runID,
	).Scan(&r.ID, &r.Name, &params, &r.Status, &runErr, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	r.Params = params
	if runErr != nil {
		r.Error = *runErr
	}

	rows, err := s.pool.Query(ctx,
		`SELECT score, ate, att, units, matched, n_groups, dropped FROM run_effects WHERE run_id = $1 ORDER BY score`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get effects %s", runID)
	}
	defer rows.Close()

	for rows.Next() {
		var e model.EffectSummary
		var ate, att *float64
		if err := rows.Scan(&e.Score, &ate, &att, &e.Units, &e.Matched, &e.Groups, &e.Dropped); err != nil {
			return nil, eris.Wrap(err, "postgres: scan effect")
		}
		e.ATE, e.ATT = fromNullable(ate), fromNullable(att)
		r.Effects = append(r.Effects, e)
	}
	return &r, eris.Wrap(rows.Err(), "postgres: get effects iterate")
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, name, params, status, error, created_at, updated_at FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.Name != "" {
		query += fmt.Sprintf(` AND name = $%d`, argIdx)
		args = append(args, filter.Name)
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, argIdx)
	args = append(args, listLimit(filter.Limit))
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		var r model.Run
		var params []byte
		var runErr *string
		if err := rows.Scan(&r.ID, &r.Name, &params, &r.Status, &runErr, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		r.Params = params
		if runErr != nil {
			r.Error = *runErr
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) RecordStage(ctx context.Context, runID, name string, rowsIn, rowsOut int) (*model.RunStage, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO run_stages (id, run_id, name, rows_in, rows_out, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		id, runID, name, rowsIn, rowsOut, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert stage for run %s", runID)
	}
	return &model.RunStage{ID: id, RunID: runID, Name: name, RowsIn: rowsIn, RowsOut: rowsOut, CreatedAt: now}, nil
}

func (s *PostgresStore) ListStages(ctx context.Context, runID string) ([]model.RunStage, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, run_id, name, rows_in, rows_out, created_at FROM run_stages WHERE run_id = $1 ORDER BY created_at`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list stages %s", runID)
	}
	defer rows.Close()

	var stages []model.RunStage
	for rows.Next() {
		var st model.RunStage
		if err := rows.Scan(&st.ID, &st.RunID, &st.Name, &st.RowsIn, &st.RowsOut, &st.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan stage")
		}
		stages = append(stages, st)
	}
	return stages, eris.Wrap(rows.Err(), "postgres: list stages iterate")
}
