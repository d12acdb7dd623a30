package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MathieuBartozzi/mlf-suivi-homologation/internal/config"
	"github.com/MathieuBartozzi/mlf-suivi-homologation/internal/model"
)

func ptr(f float64) *float64 { return &f }

func testRun(id string, created time.Time, global float64) *model.Run {
	dims := map[model.Dimension]*float64{}
	for _, d := range model.Dimensions {
		dims[d] = nil
	}
	dims[model.DimResultats] = ptr(global)
	return &model.Run{
		ID:        id,
		Source:    "sheet:abc#0",
		RulesHash: "0123456789abcdef0123456789abcdef",
		Weights:   map[model.Dimension]float64{model.DimResultats: 0.3, model.DimGouvernance: 0.7},
		Summary:   model.RunSummary{Institutions: 2, Incomplete: 1, Undefined: 1, MeanGlobal: ptr(global)},
		Records: []model.ScoredRecord{
			{
				Raw:               model.Record{"etablissement": model.Text("Lycée A"), "dnb_2024": model.Number(global)},
				Dimensions:        dims,
				Global:            ptr(global),
				Incomplete:        true,
				MissingDimensions: "missing: gouvernance_securite",
			},
			{
				Raw:               model.Record{"etablissement": model.Text("Lycée B")},
				Dimensions:        map[model.Dimension]*float64{},
				MissingDimensions: model.ExplainAllMissing,
				Incomplete:        true,
			},
		},
		CreatedAt: created,
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	_, err := Open(ctx, config.StoreConfig{Driver: "none"})
	assert.True(t, eris.Is(err, ErrDisabled))

	_, err = Open(ctx, config.StoreConfig{Driver: "mysql"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown driver "mysql"`)

	s, err := Open(ctx, config.StoreConfig{Driver: "sqlite", DatabaseURL: filepath.Join(t.TempDir(), "runs.db")})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() }) //nolint:errcheck
	_, err = s.LatestRun(ctx)
	assert.True(t, eris.Is(err, ErrNotFound))
}

func TestEncodeRun_RequiresID(t *testing.T) {
	_, err := encodeRun(&model.Run{})
	assert.Error(t, err)
	_, err = encodeRun(nil)
	assert.Error(t, err)
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, defaultListLimit, clampLimit(0))
	assert.Equal(t, defaultListLimit, clampLimit(-3))
	assert.Equal(t, defaultListLimit, clampLimit(5000))
	assert.Equal(t, 7, clampLimit(7))
}
