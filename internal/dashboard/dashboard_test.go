package dashboard

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MathieuBartozzi/mlf-suivi-homologation/internal/model"
	"github.com/MathieuBartozzi/mlf-suivi-homologation/internal/scorer"
)

func ptr(f float64) *float64 { return &f }

func record(name string, global *float64, dims map[model.Dimension]*float64, raw model.Record) model.ScoredRecord {
	if raw == nil {
		raw = model.Record{}
	}
	raw["etablissement"] = model.Text(name)
	full := make(map[model.Dimension]*float64, len(model.Dimensions))
	missing := false
	for _, d := range model.Dimensions {
		full[d] = dims[d]
		if dims[d] == nil {
			missing = true
		}
	}
	return model.ScoredRecord{Raw: raw, Dimensions: full, Global: global, Incomplete: missing || global == nil}
}

func testRecords() []model.ScoredRecord {
	return []model.ScoredRecord{
		record("Lycée B", ptr(70), map[model.Dimension]*float64{
			model.DimResultats: ptr(80), model.DimClimat: ptr(60),
		}, model.Record{
			"ville":        model.Text("Madrid"),
			"pays":         model.Text("Espagne"),
			"latitude":     model.Number(40.4168),
			"longitude":    model.Number(-3.7038),
			"points_forts": model.Text("Équipe stable, bons résultats ,"),
		}),
		record("Lycée A", ptr(70), map[model.Dimension]*float64{
			model.DimResultats: ptr(60), model.DimGouvernance: ptr(90),
		}, model.Record{
			"ville":     model.Text("Rabat"),
			"pays":      model.Text("Maroc"),
			"latitude":  model.Number(34.0209),
			"longitude": model.Number(-6.8416),
		}),
		record("Lycée C", nil, nil, model.Record{
			"latitude":  model.Text("inconnue"),
			"longitude": model.Number(2),
		}),
		record("Lycée D", ptr(85.5), map[model.Dimension]*float64{
			model.DimResultats: ptr(85.5),
		}, model.Record{"latitude": model.Number(95), "longitude": model.Number(2)}),
	}
}

func TestOverview(t *testing.T) {
	t.Parallel()

	v := Overview(testRecords())
	assert.Equal(t, 4, v.Institutions)
	assert.Equal(t, 1, v.Undefined)
	assert.Equal(t, 4, v.Incomplete)
	require.NotNil(t, v.MeanGlobal)
	assert.InDelta(t, 75.2, *v.MeanGlobal, 1e-9)

	require.Len(t, v.Dimensions, len(model.Dimensions))
	// ascending by mean, undefined last
	assert.Equal(t, model.DimClimat, v.Dimensions[0].Dimension)
	assert.InDelta(t, 60.0, *v.Dimensions[0].Mean, 1e-9)
	assert.Equal(t, model.DimResultats, v.Dimensions[1].Dimension)
	assert.InDelta(t, 75.2, *v.Dimensions[1].Mean, 1e-9)
	assert.Equal(t, model.DimGouvernance, v.Dimensions[2].Dimension)
	for _, d := range v.Dimensions[3:] {
		assert.Nil(t, d.Mean, d.Dimension)
	}
	assert.Equal(t, "Climat & inclusion", v.Dimensions[0].Label)
}

func TestOverview_Empty(t *testing.T) {
	t.Parallel()

	v := Overview(nil)
	assert.Equal(t, 0, v.Institutions)
	assert.Nil(t, v.MeanGlobal)
	assert.Len(t, v.Dimensions, len(model.Dimensions))
}

func TestRanking(t *testing.T) {
	t.Parallel()

	rows := Ranking(testRecords())
	require.Len(t, rows, 3)
	assert.Equal(t, "Lycée D", rows[0].Name)
	assert.Equal(t, 1, rows[0].Rank)
	// tie on 70 broken by name
	assert.Equal(t, "Lycée A", rows[1].Name)
	assert.Equal(t, "Lycée B", rows[2].Name)
	assert.Equal(t, 3, rows[2].Rank)
	assert.Len(t, rows[1].Scores, len(model.Dimensions))
	assert.InDelta(t, 90.0, *rows[1].Scores[model.DimGouvernance], 1e-9)
	assert.Nil(t, rows[1].Scores[model.DimClimat])
}

func TestSheet(t *testing.T) {
	t.Parallel()

	v, ok := Sheet(testRecords(), "lycee b")
	require.True(t, ok)
	assert.Equal(t, "Lycée B", v.Name)
	assert.Equal(t, "Lycée B – Madrid (Espagne)", v.Label)
	assert.Equal(t, []string{"Équipe stable", "bons résultats"}, v.Strengths)
	assert.Equal(t, []string{Placeholder}, v.Weaknesses)
	assert.Equal(t, []string{Placeholder}, v.Recommendations)

	require.Len(t, v.Blocks, 7)
	assert.Equal(t, "Profil & effectifs", v.Blocks[0].Title)
	assert.Equal(t, InfoItem{Column: "nb_niveaux", Label: "Nombre de niveaux", Value: Placeholder}, v.Blocks[0].Items[0])

	require.Len(t, v.Radar, len(model.Dimensions))
	assert.Equal(t, model.DimResultats, v.Radar[0].Dimension)
	assert.InDelta(t, 80.0, *v.Radar[0].Institution, 1e-9)
	assert.InDelta(t, 75.2, *v.Radar[0].Network, 1e-9)
	assert.Nil(t, v.Radar[1].Institution)
	assert.InDelta(t, 90.0, *v.Radar[1].Network, 1e-9)

	_, ok = Sheet(testRecords(), "Lycée Z")
	assert.False(t, ok)
}

func TestFormatCell(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		v    model.Value
		col  string
		want string
	}{
		{"absent", model.Absent(), "dnb_2024", Placeholder},
		{"empty", model.Empty(), "dnb_2024", Placeholder},
		{"number keeps raw text", model.ParseCell("87,5"), "dnb_2024", "87,5"},
		{"text list kept", model.Text("a, b"), "projet_etablissement_axes", "a, b"},
		{"bullets", model.Text("a, b,, c"), ColRecommendations, "• a\n• b\n• c"},
		{"bullets empty", model.Text(" , "), ColStrengths, Placeholder},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatCell(tt.v, tt.col))
		})
	}
}

func TestFieldLabel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "PPMS (sécurité)", FieldLabel("ppms_status"))
	assert.Equal(t, "Taille classe", FieldLabel("taille_classe"))
	assert.Equal(t, "", FieldLabel(""))
}

func TestChoices(t *testing.T) {
	t.Parallel()

	c := Choices(testRecords())
	require.Len(t, c, 4)
	assert.Equal(t, Choice{Label: "Lycée A – Rabat (Maroc)", Name: "Lycée A"}, c[0])
	assert.Equal(t, "Lycée C – — (—)", c[2].Label)
}

func TestMap(t *testing.T) {
	t.Parallel()

	fc, err := Map(testRecords(), "")
	require.NoError(t, err)
	// Lycée C has no numeric latitude, Lycée D is out of range
	require.Len(t, fc.Features, 2)
	assert.Equal(t, "Lycée B", fc.Features[0].ID)
	assert.Equal(t, model.ColScoreGlobal, fc.Features[0].Properties["metric"])
	require.NotNil(t, fc.BBox)

	data, err := json.Marshal(fc)
	require.NoError(t, err)

	var decoded struct {
		Type     string `json:"type"`
		Features []struct {
			Geometry struct {
				Type        string    `json:"type"`
				Coordinates []float64 `json:"coordinates"`
			} `json:"geometry"`
			Properties map[string]any `json:"properties"`
		} `json:"features"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "FeatureCollection", decoded.Type)
	assert.Equal(t, "Point", decoded.Features[1].Geometry.Type)
	assert.InDeltaSlice(t, []float64{-6.8416, 34.0209}, decoded.Features[1].Geometry.Coordinates, 1e-9)
	assert.Equal(t, "Lycée A", decoded.Features[1].Properties["etablissement"])
	assert.InDelta(t, 70.0, decoded.Features[1].Properties["value"], 1e-9)
}

func TestMap_Metric(t *testing.T) {
	t.Parallel()

	fc, err := Map(testRecords(), model.DimClimat.ScoreColumn())
	require.NoError(t, err)
	require.Len(t, fc.Features, 2)
	assert.InDelta(t, 60.0, *(fc.Features[0].Properties["value"].(*float64)), 1e-9)
	assert.Nil(t, fc.Features[1].Properties["value"].(*float64))

	_, err = Map(testRecords(), "score_bien_etre")
	assert.ErrorIs(t, err, ErrUnknownMetric)

	assert.Len(t, Metrics(), len(model.Dimensions)+1)
}

func TestMethodology(t *testing.T) {
	t.Parallel()

	s, err := scorer.New(scorer.DefaultRules())
	require.NoError(t, err)

	v := Methodology(s)
	require.Len(t, v.Dimensions, len(model.Dimensions))
	assert.Equal(t, model.DimResultats, v.Dimensions[0].Dimension)
	assert.InDelta(t, 0.30, v.Dimensions[0].Weight, 1e-9)
	require.Len(t, v.Dimensions[0].Indicators, 2)
	assert.Equal(t, "percent", v.Dimensions[0].Indicators[0].Policy)
	assert.Equal(t, "dictionary", v.Dimensions[3].Indicators[0].Policy)
	assert.Equal(t, "inclusion", v.Dimensions[3].Indicators[0].Dictionary)

	var sum float64
	for _, d := range v.Dimensions {
		sum += d.Weight
	}
	assert.InDelta(t, 1.0, sum, 1e-9)

	require.Len(t, v.Rules, 7)
	assert.Equal(t, "Listes : base de 40, +12 points par élément, plafonné à 100.", v.Rules[4].Description)
	assert.Len(t, v.RulesHash, 32)
}
