// Package store persists scoring runs so that score evolution can be
// followed from one spreadsheet refresh to the next.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/MathieuBartozzi/mlf-suivi-homologation/internal/config"
	"github.com/MathieuBartozzi/mlf-suivi-homologation/internal/model"
)

var (
	// ErrNotFound is returned when a run does not exist.
	ErrNotFound = eris.New("store: not found")
	// ErrDisabled is returned by Open when store.driver is "none".
	ErrDisabled = eris.New("store: persistence disabled")
)

// HistoryPoint is the score of one institution in one run.
type HistoryPoint struct {
	RunID      string                       `json:"run_id"`
	CreatedAt  time.Time                    `json:"created_at"`
	Global     *float64                     `json:"score_global"`
	Incomplete bool                         `json:"incomplete_score"`
	Dimensions map[model.Dimension]*float64 `json:"dimensions"`
}

// Store defines run persistence.
type Store interface {
	Migrate(ctx context.Context) error
	SaveRun(ctx context.Context, run *model.Run) error
	GetRun(ctx context.Context, id string) (*model.Run, error)
	LatestRun(ctx context.Context) (*model.Run, error)
	// ListRuns returns run headers, newest first, without records.
	ListRuns(ctx context.Context, limit int) ([]model.Run, error)
	// History returns the scores of one institution across runs, newest first.
	History(ctx context.Context, institution string, limit int) ([]HistoryPoint, error)
	Close() error
}

// Open connects the configured backend and migrates it.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	var (
		s   Store
		err error
	)
	switch cfg.Driver {
	case "sqlite":
		s, err = NewSQLite(cfg.DatabaseURL)
	case "postgres":
		s, err = NewPostgres(ctx, cfg.DatabaseURL, nil)
	case "none", "":
		return nil, ErrDisabled
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

const defaultListLimit = 50

func clampLimit(limit int) int {
	if limit <= 0 || limit > 1000 {
		return defaultListLimit
	}
	return limit
}

// scoreRow is one institution line of a run, as stored in run_scores.
type scoreRow struct {
	name       string
	global     *float64
	incomplete bool
	missing    string
	dims       []byte
}

func scoreRows(run *model.Run) ([]scoreRow, error) {
	rows := make([]scoreRow, 0, len(run.Records))
	for _, r := range run.Records {
		dims, err := json.Marshal(r.Dimensions)
		if err != nil {
			return nil, eris.Wrap(err, "store: marshal dimensions")
		}
		rows = append(rows, scoreRow{
			name:       r.Name(),
			global:     r.Global,
			incomplete: r.Incomplete,
			missing:    r.MissingDimensions,
			dims:       dims,
		})
	}
	return rows, nil
}

// runPayload holds the JSON columns of a run.
type runPayload struct {
	weights []byte
	summary []byte
	records []byte
}

func encodeRun(run *model.Run) (runPayload, error) {
	if run == nil || run.ID == "" {
		return runPayload{}, eris.New("store: run without id")
	}
	var p runPayload
	var err error
	if p.weights, err = json.Marshal(run.Weights); err != nil {
		return p, eris.Wrap(err, "store: marshal weights")
	}
	if p.summary, err = json.Marshal(run.Summary); err != nil {
		return p, eris.Wrap(err, "store: marshal summary")
	}
	records := run.Records
	if records == nil {
		records = []model.ScoredRecord{}
	}
	if p.records, err = json.Marshal(records); err != nil {
		return p, eris.Wrap(err, "store: marshal records")
	}
	return p, nil
}

func decodeRun(run *model.Run, weights, summary, records []byte) error {
	if len(weights) > 0 {
		if err := json.Unmarshal(weights, &run.Weights); err != nil {
			return eris.Wrapf(err, "store: decode weights of run %s", run.ID)
		}
	}
	if len(summary) > 0 {
		if err := json.Unmarshal(summary, &run.Summary); err != nil {
			return eris.Wrapf(err, "store: decode summary of run %s", run.ID)
		}
	}
	if len(records) > 0 {
		if err := json.Unmarshal(records, &run.Records); err != nil {
			return eris.Wrapf(err, "store: decode records of run %s", run.ID)
		}
	}
	return nil
}

func decodeDims(raw []byte) (map[model.Dimension]*float64, error) {
	var dims map[model.Dimension]*float64
	if len(raw) == 0 {
		return dims, nil
	}
	if err := json.Unmarshal(raw, &dims); err != nil {
		return nil, eris.Wrap(err, "store: decode dimensions")
	}
	return dims, nil
}
