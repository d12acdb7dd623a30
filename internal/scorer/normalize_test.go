package scorer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MathieuBartozzi/mlf-suivi-homologation/internal/model"
)

func testNormalizer() *Normalizer {
	return NewNormalizer(DefaultRules())
}

func TestPercent(t *testing.T) {
	t.Parallel()
	n := testNormalizer()

	tests := []struct {
		name string
		in   model.Value
		want float64
		ok   bool
	}{
		{"number", model.Number(85), 85, true},
		{"text number", model.Text("92,5"), 92.5, true},
		{"percent sign", model.ParseCell("78%"), 78, true},
		{"above range", model.Number(120), 100, true},
		{"below range", model.Number(-4), 0, true},
		{"fraction kept as is", model.Number(0.85), 0.85, true},
		{"text", model.Text("bon"), 0, false},
		{"empty", model.Empty(), 0, false},
		{"absent", model.Absent(), 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := n.Percent(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestPresence(t *testing.T) {
	t.Parallel()
	n := testNormalizer()

	tests := []struct {
		name string
		in   model.Value
		want float64
		ok   bool
	}{
		{"text", model.Text("Oui"), 80, true},
		{"partner name", model.Text("Lycée X"), 80, true},
		{"number", model.Number(3), 80, true},
		{"n/a token", model.Text("n/a"), 40, true},
		{"non précisé token", model.Text("Non précisé"), 40, true},
		{"dash token", model.Text("-"), 40, true},
		{"empty cell", model.Empty(), 40, true},
		{"absent column", model.Absent(), 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := n.Presence(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestStatus(t *testing.T) {
	t.Parallel()
	n := testNormalizer()

	tests := []struct {
		name string
		in   string
		want float64
	}{
		{"a jour accented", "À jour", 90},
		{"validated", "validé", 90},
		{"substring", "PPMS validé et à jour", 90},
		{"complete is neutral", "instances complètes", 70},
		{"incomplete is not affirmative", "incomplètes", 70},
		{"negative wins over neutral", "non opérationnel", 30},
		{"in progress", "En cours de rédaction", 60},
		{"partial", "partiellement", 60},
		{"negative", "non", 30},
		{"absent", "Absent", 30},
		{"affirmative wins over negative", "non conforme", 90},
		{"inactive contains active", "inactif", 90},
		{"unknown", "à définir", 70},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := n.Status(model.Text(tt.in))
			require.True(t, ok)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}

	_, ok := n.Status(model.Empty())
	assert.False(t, ok)
	_, ok = n.Status(model.Absent())
	assert.False(t, ok)
}

func TestDictionary(t *testing.T) {
	t.Parallel()
	n := testNormalizer()

	tests := []struct {
		name string
		dict string
		in   string
		want float64
	}{
		{"inclusion yes", DictInclusion, "Oui", 90},
		{"inclusion in progress", DictInclusion, " en cours ", 60},
		{"inclusion no", DictInclusion, "NON", 30},
		{"inclusion unknown", DictInclusion, "peut-être", 70},
		{"orientation folded", DictOrientation, "Structure vers la France", 90},
		{"orientation construction", DictOrientation, "en construction", 60},
		{"orientation exact only", DictOrientation, "non structuré du tout", 70},
		{"rh tension", DictRessourcesHumaines, "En tension", 60},
		{"unknown dictionary", "missing", "oui", 70},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := n.Dictionary(tt.dict, model.Text(tt.in))
			require.True(t, ok)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}

	_, ok := n.Dictionary(DictInclusion, model.Empty())
	assert.False(t, ok)
}

func TestListLength(t *testing.T) {
	t.Parallel()
	n := testNormalizer()

	tests := []struct {
		name string
		in   model.Value
		want float64
		ok   bool
	}{
		{"comma list", model.Text("a,b,c"), 76, true},
		{"single item", model.Text("DELF"), 52, true},
		{"literal list", model.Text("['DELF', 'Cambridge']"), 64, true},
		{"empty literal", model.Text("[]"), 40, true},
		{"blank items ignored", model.Text("a, ,b,"), 64, true},
		{"ten items capped", model.Text("a,b,c,d,e,f,g,h,i,j"), 100, true},
		{"number counts once", model.Number(3), 52, true},
		{"decimal-comma cell is two items", model.ParseCell("1,2"), 64, true},
		{"year list", model.ParseCell("2023,2024"), 64, true},
		{"single numeric cell", model.ParseCell("2024"), 52, true},
		{"malformed literal", model.Text("['a, 'b']"), 0, false},
		{"nested literal", model.Text("[['a'], 'b']"), 0, false},
		{"empty", model.Empty(), 0, false},
		{"absent", model.Absent(), 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := n.ListLength(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestCountListItems(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"", 0, true},
		{"a", 1, true},
		{"a,b", 2, true},
		{"[a, b, c]", 3, true},
		{`["x, y", "z"]`, 2, true},
		{"['a', '']", 2, true},
		{"[,]", 0, true},
		{"['a", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := CountListItems(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestKeywordCount(t *testing.T) {
	t.Parallel()
	n := testNormalizer()

	tests := []struct {
		name string
		in   model.Value
		want float64
		ok   bool
	}{
		{"no keyword", model.Text("campus complet et moderne"), 40, true},
		{"two keywords", model.Text("Wifi et laboratoire"), 64, true},
		{"accent folded", model.Text("Bibliotheque, numérique"), 64, true},
		{"labo not double counted", model.Text("laboratoire"), 52, true},
		{"repeats counted", model.Text("wifi wifi wifi wifi wifi wifi"), 100, true},
		{"number is undefined", model.Number(4), 0, false},
		{"empty", model.Empty(), 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := n.KeywordCount(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestCountRatio(t *testing.T) {
	t.Parallel()
	n := testNormalizer()

	tests := []struct {
		name string
		in   model.Value
		want float64
		ok   bool
	}{
		{"three", model.Number(3), 60, true},
		{"max", model.Number(5), 100, true},
		{"above max", model.Number(8), 100, true},
		{"negative", model.Number(-1), 0, true},
		{"text number", model.Text("2"), 40, true},
		{"text", model.Text("trois"), 0, false},
		{"empty", model.Empty(), 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := n.CountRatio(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestColumn_MissingColumnIsUndefined(t *testing.T) {
	t.Parallel()
	n := testNormalizer()

	rows := []model.Record{
		{"dnb_2024": model.Number(70)},
		{"etablissement": model.Text("Lycée B")},
	}
	ind := IndicatorsFor(model.DimResultats)[0]
	got := n.Column(ind, rows)
	require.Len(t, got, 2)
	require.NotNil(t, got[0])
	assert.InDelta(t, 70.0, *got[0], 1e-9)
	assert.Nil(t, got[1])
}
