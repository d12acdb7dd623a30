package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/MathieuBartozzi/mlf-suivi-homologation/internal/model"
)

// timestamps are stored as fixed-width UTC text so they sort lexically.
const sqliteTime = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	source     TEXT NOT NULL,
	rules_hash TEXT NOT NULL DEFAULT '',
	weights    TEXT NOT NULL,
	summary    TEXT NOT NULL,
	records    TEXT NOT NULL,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS run_scores (
	run_id             TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	etablissement      TEXT NOT NULL,
	score_global       REAL,
	incomplete_score   INTEGER NOT NULL,
	missing_dimensions TEXT NOT NULL,
	dimensions         TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
CREATE INDEX IF NOT EXISTS idx_run_scores_run_id ON run_scores(run_id);
CREATE INDEX IF NOT EXISTS idx_run_scores_etablissement ON run_scores(etablissement);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveRun(ctx context.Context, run *model.Run) error {
	p, err := encodeRun(run)
	if err != nil {
		return err
	}
	rows, err := scoreRows(run)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save run")
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, source, rules_hash, weights, summary, records, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Source, run.RulesHash, string(p.weights), string(p.summary), string(p.records),
		run.CreatedAt.UTC().Format(sqliteTime),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert run %s", run.ID)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO run_scores (run_id, etablissement, score_global, incomplete_score, missing_dimensions, dimensions) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare run_scores insert")
	}
	defer stmt.Close()
	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, run.ID, r.name, r.global, r.incomplete, r.missing, string(r.dims)); err != nil {
			return eris.Wrapf(err, "sqlite: insert score of %s", r.name)
		}
	}

	if err := tx.Commit(); err != nil {
		return eris.Wrapf(err, "sqlite: commit run %s", run.ID)
	}
	zap.L().Debug("sqlite: saved run", zap.String("run_id", run.ID), zap.Int("institutions", len(rows)))
	return nil
}

const sqliteRunColumns = `id, source, rules_hash, weights, summary, records, created_at`

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteRunColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanSQLiteRun(row, true)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", id)
	}
	return run, nil
}

func (s *SQLiteStore) LatestRun(ctx context.Context) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteRunColumns+` FROM runs ORDER BY created_at DESC, id DESC LIMIT 1`)
	run, err := scanSQLiteRun(row, true)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: latest run")
	}
	return run, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]model.Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source, rules_hash, weights, summary, '', created_at FROM runs ORDER BY created_at DESC, id DESC LIMIT ?`,
		clampLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanSQLiteRun(rows, false)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: list runs")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) History(ctx context.Context, institution string, limit int) ([]HistoryPoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.run_id, r.created_at, s.score_global, s.incomplete_score, s.dimensions
		FROM run_scores s JOIN runs r ON r.id = s.run_id
		WHERE s.etablissement = ?
		ORDER BY r.created_at DESC, r.id DESC
		LIMIT ?`,
		institution, clampLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: history of %s", institution)
	}
	defer rows.Close()

	var out []HistoryPoint
	for rows.Next() {
		var (
			p       HistoryPoint
			created string
			global  sql.NullFloat64
			dims    string
		)
		if err := rows.Scan(&p.RunID, &created, &global, &p.Incomplete, &dims); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan history")
		}
		if p.CreatedAt, err = time.Parse(sqliteTime, created); err != nil {
			return nil, eris.Wrap(err, "sqlite: parse created_at")
		}
		if global.Valid {
			g := global.Float64
			p.Global = &g
		}
		if p.Dimensions, err = decodeDims([]byte(dims)); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: history iterate")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteRun(row rowScanner, withRecords bool) (*model.Run, error) {
	var (
		run                       model.Run
		weights, summary, records string
		created                   string
	)
	err := row.Scan(&run.ID, &run.Source, &run.RulesHash, &weights, &summary, &records, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if run.CreatedAt, err = time.Parse(sqliteTime, created); err != nil {
		return nil, eris.Wrap(err, "parse created_at")
	}
	if !withRecords {
		records = ""
	}
	if err := decodeRun(&run, []byte(weights), []byte(summary), []byte(records)); err != nil {
		return nil, err
	}
	return &run, nil
}
