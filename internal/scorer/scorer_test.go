package scorer

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MathieuBartozzi/mlf-suivi-homologation/internal/model"
)

func fullRow() model.Record {
	return model.Record{
		"etablissement":               model.Text("Lycée A"),
		"dnb_2024":                    model.Number(85),
		"bac_2024":                    model.Number(90),
		"ppms_status":                 model.Text("validé"),
		"instances_status":            model.Text("conformes"),
		"projet_etablissement_status": model.Text("à jour"),
		"projet_etablissement_axes":   model.Text("a,b,c"),
		"partenariats":                model.Text("Lycée X"),
		"orientation_post_bac":        model.Text("structuré vers la france"),
		"inclusion_dispositif":        model.Text("oui"),
		"nb_lve":                      model.Number(3),
		"certifications":              model.Text("DELF,Cambridge"),
		"infrastructures":             model.Text("campus complet et moderne"),
		"ressources_humaines":         model.Text("structuré"),
	}
}

func newTestScorer(t *testing.T) *Scorer {
	t.Helper()
	s, err := New(DefaultRules())
	require.NoError(t, err)
	return s
}

func mustScore(t *testing.T, sr model.ScoredRecord, d model.Dimension) float64 {
	t.Helper()
	v, ok := sr.Score(d)
	require.True(t, ok, "dimension %s undefined", d)
	return v
}

func TestScoreRecord_EndToEnd(t *testing.T) {
	t.Parallel()
	s := newTestScorer(t)

	sr := s.ScoreRecord(fullRow())

	assert.InDelta(t, 87.5, mustScore(t, sr, model.DimResultats), 1e-9)
	assert.InDelta(t, 90.0, mustScore(t, sr, model.DimGouvernance), 1e-9)
	assert.InDelta(t, 82.0, mustScore(t, sr, model.DimStrategie), 1e-9)
	assert.InDelta(t, 90.0, mustScore(t, sr, model.DimClimat), 1e-9)
	assert.InDelta(t, 62.0, mustScore(t, sr, model.DimLinguistique), 1e-9)
	assert.InDelta(t, 65.0, mustScore(t, sr, model.DimRessources), 1e-9)

	require.NotNil(t, sr.Global)
	assert.InDelta(t, 82.75, *sr.Global, 0.1)
	assert.False(t, sr.Incomplete)
	assert.Equal(t, model.ExplainComplete, sr.MissingDimensions)
	assert.Equal(t, "Lycée A", sr.Name())
}

func TestScoreRecord_Redistribution(t *testing.T) {
	t.Parallel()
	s := newTestScorer(t)

	row := model.Record{
		"dnb_2024":             model.Number(80),
		"inclusion_dispositif": model.Text("non"),
	}
	sr := s.ScoreRecord(row)

	// resultats 80 (w 0.30), climat 30 (w 0.15): (24 + 4.5) / 0.45
	require.NotNil(t, sr.Global)
	assert.InDelta(t, 63.3, *sr.Global, 1e-9)
	assert.True(t, sr.Incomplete)
	assert.Equal(t,
		"missing: gouvernance_securite, strategie_partenariats, ouverture_linguistique, ressources_numerique",
		sr.MissingDimensions)

	_, ok := sr.Score(model.DimGouvernance)
	assert.False(t, ok)
}

func TestScoreRecord_SingleDimensionEqualsGlobal(t *testing.T) {
	t.Parallel()
	s := newTestScorer(t)

	sr := s.ScoreRecord(model.Record{"ppms_status": model.Text("en cours")})
	require.NotNil(t, sr.Global)
	assert.InDelta(t, 60.0, *sr.Global, 1e-9)
	assert.InDelta(t, 60.0, mustScore(t, sr, model.DimGouvernance), 1e-9)
}

func TestScoreRecord_LoadedCells(t *testing.T) {
	t.Parallel()
	s := newTestScorer(t)

	tests := []struct {
		name string
		col  string
		cell string
		dim  model.Dimension
		want float64
	}{
		{"year list from csv", "projet_etablissement_axes", "2023,2024", model.DimStrategie, 64},
		{"single year", "projet_etablissement_axes", "2024", model.DimStrategie, 52},
		{"incomplete instances", "instances_status", "incomplètes", model.DimGouvernance, 70},
		{"inactive ppms", "ppms_status", "non opérationnel", model.DimGouvernance, 30},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sr := s.ScoreRecord(model.Record{tt.col: model.ParseCell(tt.cell)})
			assert.InDelta(t, tt.want, mustScore(t, sr, tt.dim), 1e-9)
			require.NotNil(t, sr.Global)
			assert.InDelta(t, tt.want, *sr.Global, 1e-9)
		})
	}
}

func TestScoreRecord_AllMissing(t *testing.T) {
	t.Parallel()
	s := newTestScorer(t)

	sr := s.ScoreRecord(model.Record{"etablissement": model.Text("Vide"), "dnb_2024": model.Empty()})
	assert.Nil(t, sr.Global)
	assert.True(t, sr.Incomplete)
	assert.Equal(t, model.ExplainAllMissing, sr.MissingDimensions)
	for _, d := range model.Dimensions {
		_, ok := sr.Score(d)
		assert.False(t, ok, d)
	}
}

func TestScoreRecord_ZeroWeightDimensionsOnly(t *testing.T) {
	t.Parallel()
	r := DefaultRules()
	r.Weights[model.DimClimat] = 0
	s, err := New(r)
	require.NoError(t, err)

	sr := s.ScoreRecord(model.Record{"inclusion_dispositif": model.Text("oui")})
	assert.Nil(t, sr.Global)
	assert.True(t, sr.Incomplete)
	assert.Equal(t, model.ExplainNoWeight, sr.MissingDimensions)
	assert.InDelta(t, 90.0, mustScore(t, sr, model.DimClimat), 1e-9)
}

func TestScoreRecord_Bounds(t *testing.T) {
	t.Parallel()
	s := newTestScorer(t)

	rows := []model.Record{
		fullRow(),
		{"dnb_2024": model.Number(250), "bac_2024": model.Number(-50)},
		{"nb_lve": model.Number(40), "certifications": model.Text("a,b,c,d,e,f,g,h,i,j,k,l")},
		{"infrastructures": model.Text("wifi labo cdi gymnase piscine terrain tablettes")},
	}
	for i, row := range rows {
		sr := s.ScoreRecord(row)
		for _, d := range model.Dimensions {
			if v, ok := sr.Score(d); ok {
				assert.GreaterOrEqual(t, v, 0.0, "row %d %s", i, d)
				assert.LessOrEqual(t, v, 100.0, "row %d %s", i, d)
			}
		}
		if sr.Global != nil {
			assert.GreaterOrEqual(t, *sr.Global, 0.0)
			assert.LessOrEqual(t, *sr.Global, 100.0)
		}
	}
}

func TestScoreRecord_DoesNotMutateInput(t *testing.T) {
	t.Parallel()
	s := newTestScorer(t)

	row := fullRow()
	sr := s.ScoreRecord(row)
	sr.Raw["dnb_2024"] = model.Number(0)

	f, ok := row.Get("dnb_2024").Float()
	require.True(t, ok)
	assert.InDelta(t, 85.0, f, 1e-9)
	assert.Len(t, row, 14)
}

func TestComputeScores_IdempotentAndRowIndependent(t *testing.T) {
	t.Parallel()
	s := newTestScorer(t)

	a := fullRow()
	b := model.Record{"etablissement": model.Text("Lycée B"), "dnb_2024": model.Number(40)}

	first := s.ComputeScores(&model.Table{Rows: []model.Record{a, b}})
	second := s.ComputeScores(&model.Table{Rows: []model.Record{a, b}})
	assert.Equal(t, first, second)

	alone := s.ComputeScores(&model.Table{Rows: []model.Record{b}})
	require.Len(t, alone, 1)
	assert.Equal(t, first[1], alone[0])

	reversed := s.ComputeScores(&model.Table{Rows: []model.Record{b, a}})
	assert.Equal(t, first[0], reversed[1])
	assert.Equal(t, first[1], reversed[0])

	assert.Nil(t, s.ComputeScores(nil))
}

func TestComputeScoresConcurrent_MatchesSequential(t *testing.T) {
	t.Parallel()
	s := newTestScorer(t)

	tbl := &model.Table{}
	for i := 0; i < 50; i++ {
		row := fullRow()
		row["etablissement"] = model.Text(fmt.Sprintf("Lycée %02d", i))
		row["dnb_2024"] = model.Number(float64(i * 2))
		if i%3 == 0 {
			delete(row, "inclusion_dispositif")
		}
		tbl.Rows = append(tbl.Rows, row)
	}

	want := s.ComputeScores(tbl)
	got, err := s.ComputeScoresConcurrent(context.Background(), tbl, 8)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestComputeScoresConcurrent_Canceled(t *testing.T) {
	t.Parallel()
	s := newTestScorer(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tbl := &model.Table{Rows: []model.Record{fullRow(), fullRow()}}
	_, err := s.ComputeScoresConcurrent(ctx, tbl, 4)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNew_RejectsInvalidRules(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(r *Rules)
	}{
		{"empty weights", func(r *Rules) { r.Weights = map[model.Dimension]float64{} }},
		{"unknown dimension", func(r *Rules) { r.Weights["bien_etre"] = 0.1 }},
		{"negative weight", func(r *Rules) { r.Weights[model.DimClimat] = -0.1 }},
		{"zero sum", func(r *Rules) {
			for d := range r.Weights {
				r.Weights[d] = 0
			}
		}},
		{"nan weight", func(r *Rules) { r.Weights[model.DimClimat] = math.NaN() }},
		{"positive infinite weight", func(r *Rules) { r.Weights[model.DimResultats] = math.Inf(1) }},
		{"negative infinite weight", func(r *Rules) { r.Weights[model.DimResultats] = math.Inf(-1) }},
		{"nan lve max", func(r *Rules) { r.LVEMax = math.NaN() }},
		{"infinite list cap", func(r *Rules) { r.ListScale.Cap = math.Inf(1) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := DefaultRules()
			tt.mutate(&r)
			s, err := New(r)
			require.Error(t, err)
			assert.Nil(t, s)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestNew_SnapshotsRules(t *testing.T) {
	t.Parallel()

	r := DefaultRules()
	s, err := New(r)
	require.NoError(t, err)

	r.Weights[model.DimResultats] = 10
	r.Dictionaries[DictInclusion]["oui"] = 0

	sr := s.ScoreRecord(model.Record{"inclusion_dispositif": model.Text("oui")})
	assert.InDelta(t, 90.0, mustScore(t, sr, model.DimClimat), 1e-9)
	assert.InDelta(t, 0.30, s.Weights()[model.DimResultats], 1e-9)
}

func TestWeights_Normalized(t *testing.T) {
	t.Parallel()

	r := DefaultRules()
	r.Weights = map[model.Dimension]float64{
		model.DimResultats: 3,
		model.DimClimat:    1,
	}
	s, err := New(r)
	require.NoError(t, err)

	w := s.Weights()
	assert.Len(t, w, len(model.Dimensions))
	assert.InDelta(t, 0.75, w[model.DimResultats], 1e-9)
	assert.InDelta(t, 0.25, w[model.DimClimat], 1e-9)
	assert.InDelta(t, 0.0, w[model.DimStrategie], 1e-9)

	w[model.DimResultats] = 0
	assert.InDelta(t, 0.75, s.Weights()[model.DimResultats], 1e-9)
}

func TestSummarize(t *testing.T) {
	t.Parallel()
	s := newTestScorer(t)

	records := s.ComputeScores(&model.Table{Rows: []model.Record{
		fullRow(),
		{"dnb_2024": model.Number(50)},
		{"etablissement": model.Text("Vide")},
	}})
	sum := Summarize(records)

	assert.Equal(t, 3, sum.Institutions)
	assert.Equal(t, 1, sum.Complete)
	assert.Equal(t, 1, sum.Incomplete)
	assert.Equal(t, 1, sum.Undefined)
	require.NotNil(t, sum.MeanGlobal)
	assert.InDelta(t, (*records[0].Global+50)/2, *sum.MeanGlobal, 0.1)

	assert.Nil(t, Summarize(nil).MeanGlobal)
}
