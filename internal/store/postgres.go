package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/MathieuBartozzi/mlf-suivi-homologation/internal/db"
	"github.com/MathieuBartozzi/mlf-suivi-homologation/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32
	MinConns int32
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns, minConns := int32(4), int32(1)
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

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	source     TEXT NOT NULL,
	rules_hash TEXT NOT NULL DEFAULT '',
	weights    JSONB NOT NULL,
	summary    JSONB NOT NULL,
	records    JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS run_scores (
	run_id             TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	etablissement      TEXT NOT NULL,
	score_global       DOUBLE PRECISION,
	incomplete_score   BOOLEAN NOT NULL,
	missing_dimensions TEXT NOT NULL,
	dimensions         JSONB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_run_scores_run_id ON run_scores(run_id);
CREATE INDEX IF NOT EXISTS idx_run_scores_etablissement ON run_scores(etablissement);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

var runScoreColumns = []string{"run_id", "etablissement", "score_global", "incomplete_score", "missing_dimensions", "dimensions"}

func (s *PostgresStore) SaveRun(ctx context.Context, run *model.Run) error {
	p, err := encodeRun(run)
	if err != nil {
		return err
	}
	rows, err := scoreRows(run)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin save run")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx,
		`INSERT INTO runs (id, source, rules_hash, weights, summary, records, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		run.ID, run.Source, run.RulesHash, p.weights, p.summary, p.records, run.CreatedAt.UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: insert run %s", run.ID)
	}

	copyRows := make([][]any, len(rows))
	for i, r := range rows {
		copyRows[i] = []any{run.ID, r.name, r.global, r.incomplete, r.missing, r.dims}
	}
	if _, err := db.CopyFrom(ctx, tx, "run_scores", runScoreColumns, copyRows); err != nil {
		return eris.Wrapf(err, "postgres: copy scores of run %s", run.ID)
	}

	if err := tx.Commit(ctx); err != nil {
		return eris.Wrapf(err, "postgres: commit run %s", run.ID)
	}
	zap.L().Debug("postgres: saved run", zap.String("run_id", run.ID), zap.Int("institutions", len(rows)))
	return nil
}

const pgRunColumns = `id, source, rules_hash, weights, summary, records, created_at`

func (s *PostgresStore) GetRun(ctx context.Context, id string) (*model.Run, error) {
	run, err := scanPgRun(s.pool.QueryRow(ctx, `SELECT `+pgRunColumns+` FROM runs WHERE id = $1`, id))
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", id)
	}
	return run, nil
}

func (s *PostgresStore) LatestRun(ctx context.Context) (*model.Run, error) {
	run, err := scanPgRun(s.pool.QueryRow(ctx, `SELECT `+pgRunColumns+` FROM runs ORDER BY created_at DESC, id DESC LIMIT 1`))
	if err != nil {
		return nil, eris.Wrap(err, "postgres: latest run")
	}
	return run, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]model.Run, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, source, rules_hash, weights, summary, NULL::jsonb, created_at FROM runs ORDER BY created_at DESC, id DESC LIMIT $1`,
		clampLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanPgRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: list runs")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) History(ctx context.Context, institution string, limit int) ([]HistoryPoint, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT s.run_id, r.created_at, s.score_global, s.incomplete_score, s.dimensions
		FROM run_scores s JOIN runs r ON r.id = s.run_id
		WHERE s.etablissement = $1
		ORDER BY r.created_at DESC, r.id DESC
		LIMIT $2`,
		institution, clampLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: history of %s", institution)
	}
	defer rows.Close()

	var out []HistoryPoint
	for rows.Next() {
		var (
			p    HistoryPoint
			dims []byte
		)
		if err := rows.Scan(&p.RunID, &p.CreatedAt, &p.Global, &p.Incomplete, &dims); err != nil {
			return nil, eris.Wrap(err, "postgres: scan history")
		}
		if p.Dimensions, err = decodeDims(dims); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "postgres: history iterate")
}

func scanPgRun(row pgx.Row) (*model.Run, error) {
	var (
		run                       model.Run
		weights, summary, records []byte
	)
	err := row.Scan(&run.ID, &run.Source, &run.RulesHash, &weights, &summary, &records, &run.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	run.CreatedAt = run.CreatedAt.UTC()
	if err := decodeRun(&run, weights, summary, records); err != nil {
		return nil, err
	}
	return &run, nil
}
