package dashboard

import (
	"sort"
	"strings"

	"github.com/MathieuBartozzi/mlf-suivi-homologation/internal/model"
)

// Placeholder is displayed for a missing raw value.
const Placeholder = "—"

// InfoItem is one labeled raw field of an institution sheet.
type InfoItem struct {
	Column string `json:"column"`
	Label  string `json:"label"`
	Value  string `json:"value"`
}

// InfoBlock groups related raw fields under a title.
type InfoBlock struct {
	Title string     `json:"title"`
	Items []InfoItem `json:"items"`
}

// RadarPoint compares one dimension with the network mean.
type RadarPoint struct {
	Dimension   model.Dimension `json:"dimension"`
	Label       string          `json:"label"`
	Institution *float64        `json:"institution"`
	Network     *float64        `json:"network"`
}

// SheetView is the individual institution page.
type SheetView struct {
	Name              string       `json:"etablissement"`
	Label             string       `json:"label"`
	Global            *float64     `json:"score_global"`
	Incomplete        bool         `json:"incomplete_score"`
	MissingDimensions string       `json:"missing_dimensions"`
	Blocks            []InfoBlock  `json:"blocks"`
	Radar             []RadarPoint `json:"radar"`
	Strengths         []string     `json:"points_forts"`
	Weaknesses        []string     `json:"points_faibles"`
	Recommendations   []string     `json:"recommandations"`
}

var infoBlocks = []struct {
	title   string
	columns []string
}{
	{"Profil & effectifs", []string{"nb_niveaux", "niveau_max", "effectifs_total"}},
	{"Projet & instances", []string{"projet_etablissement_status", "projet_etablissement_axes", "instances_status"}},
	{"Évaluations & résultats", []string{"evaluations_nationales", "dnb_2024", "bac_2024"}},
	{"Inclusion & langues", []string{"inclusion_dispositif", "nb_lve", "certifications"}},
	{"Infrastructures & sécurité", []string{"infrastructures", "ppms_status"}},
	{"Ressources humaines", []string{"ressources_humaines", "nb_personnels"}},
	{"Partenariats & orientation", []string{"partenariats", "orientation_post_bac"}},
}

var fieldLabels = map[string]string{
	"nb_niveaux":                  "Nombre de niveaux",
	"niveau_max":                  "Niveau maximum",
	"effectifs_total":             "Effectifs total",
	"projet_etablissement_status": "Projet établissement (statut)",
	"projet_etablissement_axes":   "Axes du projet",
	"instances_status":            "Instances (statut)",
	"evaluations_nationales":      "Évaluations nationales",
	"dnb_2024":                    "Résultats DNB 2024",
	"bac_2024":                    "Résultats BAC 2024",
	"inclusion_dispositif":        "Dispositif inclusion",
	"nb_lve":                      "Nombre de LVE",
	"certifications":              "Certifications",
	"infrastructures":             "Infrastructures",
	"ppms_status":                 "PPMS (sécurité)",
	"ressources_humaines":         "Ressources humaines",
	"nb_personnels":               "Nombre de personnels",
	"partenariats":                "Partenariats",
	"orientation_post_bac":        "Orientation post-bac",
}

// Columns rendered as one bullet per comma-separated item.
const (
	ColStrengths       = "points_forts"
	ColWeaknesses      = "points_faibles"
	ColRecommendations = "recommandations"
)

func isBulletColumn(col string) bool {
	return col == ColStrengths || col == ColWeaknesses || col == ColRecommendations
}

// FieldLabel returns the display label of a raw column.
func FieldLabel(col string) string {
	if l, ok := fieldLabels[col]; ok {
		return l
	}
	r := []rune(strings.ReplaceAll(col, "_", " "))
	if len(r) == 0 {
		return ""
	}
	return strings.ToUpper(string(r[0])) + string(r[1:])
}

// FormatCell renders a raw value for display.
func FormatCell(v model.Value, col string) string {
	if v.IsMissing() {
		return Placeholder
	}
	s := strings.TrimSpace(v.String())
	if s == "" {
		return Placeholder
	}
	if isBulletColumn(col) {
		items := SplitItems(s)
		if len(items) == 0 {
			return Placeholder
		}
		return "• " + strings.Join(items, "\n• ")
	}
	return s
}

// SplitItems splits a comma-separated cell into trimmed non-empty items.
func SplitItems(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func itemsOrPlaceholder(v model.Value) []string {
	if items := SplitItems(v.String()); len(items) > 0 {
		return items
	}
	return []string{Placeholder}
}

func textOr(v model.Value, fallback string) string {
	if v.IsMissing() {
		return fallback
	}
	return v.String()
}

// Label returns "etablissement – ville (pays)".
func Label(r model.Record) string {
	return textOr(r.Get("etablissement"), Placeholder) + " – " +
		textOr(r.Get("ville"), Placeholder) + " (" + textOr(r.Get("pays"), Placeholder) + ")"
}

// Choice is one entry of the institution selector.
type Choice struct {
	Label string `json:"label"`
	Name  string `json:"etablissement"`
}

// Choices lists the institution selector entries sorted by label.
func Choices(records []model.ScoredRecord) []Choice {
	out := make([]Choice, 0, len(records))
	for _, r := range records {
		out = append(out, Choice{Label: Label(r.Raw), Name: r.Name()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}

// Find returns the first record whose institution name equals name,
// ignoring case and accents.
func Find(records []model.ScoredRecord, name string) (model.ScoredRecord, bool) {
	want := model.Fold(name)
	for _, r := range records {
		if model.Fold(r.Name()) == want {
			return r, true
		}
	}
	return model.ScoredRecord{}, false
}

// Sheet builds the page of the named institution.
func Sheet(records []model.ScoredRecord, name string) (*SheetView, bool) {
	r, ok := Find(records, name)
	if !ok {
		return nil, false
	}

	v := &SheetView{
		Name:              r.Name(),
		Label:             Label(r.Raw),
		Global:            r.Global,
		Incomplete:        r.Incomplete,
		MissingDimensions: r.MissingDimensions,
		Strengths:         itemsOrPlaceholder(r.Raw.Get(ColStrengths)),
		Weaknesses:        itemsOrPlaceholder(r.Raw.Get(ColWeaknesses)),
		Recommendations:   itemsOrPlaceholder(r.Raw.Get(ColRecommendations)),
	}

	for _, b := range infoBlocks {
		block := InfoBlock{Title: b.title}
		for _, col := range b.columns {
			block.Items = append(block.Items, InfoItem{
				Column: col,
				Label:  FieldLabel(col),
				Value:  FormatCell(r.Raw.Get(col), col),
			})
		}
		v.Blocks = append(v.Blocks, block)
	}

	network := NetworkMeans(records)
	for _, d := range model.Dimensions {
		v.Radar = append(v.Radar, RadarPoint{
			Dimension:   d,
			Label:       d.Label(),
			Institution: r.Dimensions[d],
			Network:     network[d],
		})
	}
	return v, true
}
