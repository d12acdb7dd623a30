package scorer

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MathieuBartozzi/mlf-suivi-homologation/internal/model"
)

type fakeSaver struct {
	runs []*model.Run
	err  error
}

func (f *fakeSaver) SaveRun(_ context.Context, run *model.Run) error {
	if f.err != nil {
		return f.err
	}
	f.runs = append(f.runs, run)
	return nil
}

func TestPersist(t *testing.T) {
	t.Parallel()
	s := newTestScorer(t)

	records := s.ComputeScores(&model.Table{Rows: []model.Record{fullRow(), {"dnb_2024": model.Number(50)}}})
	saver := &fakeSaver{}

	run, err := s.Persist(context.Background(), saver, "sheet:abc", records)
	require.NoError(t, err)
	require.Len(t, saver.runs, 1)
	assert.Same(t, run, saver.runs[0])

	_, err = uuid.Parse(run.ID)
	assert.NoError(t, err)
	assert.Equal(t, "sheet:abc", run.Source)
	assert.Equal(t, 2, run.Summary.Institutions)
	assert.Equal(t, 1, run.Summary.Complete)
	assert.Len(t, run.RulesHash, 32)
	assert.InDelta(t, 0.30, run.Weights[model.DimResultats], 1e-9)
	assert.False(t, run.CreatedAt.IsZero())
}

func TestPersist_Errors(t *testing.T) {
	t.Parallel()
	s := newTestScorer(t)

	_, err := s.Persist(context.Background(), nil, "x", nil)
	assert.Error(t, err)

	_, err = s.Persist(context.Background(), &fakeSaver{err: errors.New("disk full")}, "x", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestConfigHash_Stable(t *testing.T) {
	t.Parallel()

	a := ConfigHash(DefaultRules())
	b := ConfigHash(DefaultRules())
	assert.Equal(t, a, b)

	r := DefaultRules()
	r.Weights[model.DimClimat] = 0.5
	assert.NotEqual(t, a, ConfigHash(r))
}
