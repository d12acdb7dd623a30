package scorer

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/MathieuBartozzi/mlf-suivi-homologation/internal/model"
)

// RunSaver persists a completed scoring run.
type RunSaver interface {
	SaveRun(ctx context.Context, run *model.Run) error
}

// NewRun assembles a run record from a scoring pass.
func (s *Scorer) NewRun(source string, records []model.ScoredRecord) *model.Run {
	return &model.Run{
		ID:        uuid.New().String(),
		Source:    source,
		RulesHash: ConfigHash(s.rules),
		Weights:   s.Weights(),
		Summary:   Summarize(records),
		Records:   records,
		CreatedAt: time.Now().UTC(),
	}
}

// Persist saves the scoring results as a new run and returns it.
func (s *Scorer) Persist(ctx context.Context, saver RunSaver, source string, records []model.ScoredRecord) (*model.Run, error) {
	if saver == nil {
		return nil, eris.New("scorer: no run saver configured")
	}
	run := s.NewRun(source, records)
	if err := saver.SaveRun(ctx, run); err != nil {
		return nil, eris.Wrapf(err, "scorer: save run %s", run.ID)
	}

	zap.L().Info("scorer: saved run",
		zap.String("run_id", run.ID),
		zap.String("source", source),
		zap.Int("institutions", run.Summary.Institutions),
		zap.Int("incomplete", run.Summary.Incomplete),
	)
	return run, nil
}

// ConfigHash returns a SHA-256 hash of the scoring rules for reproducibility.
func ConfigHash(cfg interface{}) string {
	data, err := json.Marshal(cfg)
	if err != nil {
		return ""
	}
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:16]) // 32 hex chars
}
