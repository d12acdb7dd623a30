package dashboard

import (
	"fmt"
	"strconv"

	"github.com/MathieuBartozzi/mlf-suivi-homologation/internal/model"
	"github.com/MathieuBartozzi/mlf-suivi-homologation/internal/scorer"
)

// IndicatorDoc describes one sub-indicator on the methodology page.
type IndicatorDoc struct {
	Column     string `json:"column"`
	Label      string `json:"label"`
	Policy     string `json:"policy"`
	Dictionary string `json:"dictionary,omitempty"`
}

// DimensionDoc describes one dimension and its normalized weight.
type DimensionDoc struct {
	Dimension  model.Dimension `json:"dimension"`
	Label      string          `json:"label"`
	Weight     float64         `json:"weight"`
	Indicators []IndicatorDoc  `json:"indicators"`
}

// RuleDoc is one transformation rule in plain French.
type RuleDoc struct {
	Policy      string `json:"policy"`
	Description string `json:"description"`
}

// MethodologyView is the scoring methodology page.
type MethodologyView struct {
	Dimensions []DimensionDoc `json:"dimensions"`
	Rules      []RuleDoc      `json:"rules"`
	RulesHash  string         `json:"rules_hash"`
}

// Methodology documents the scorer's dimensions, weights and rules.
func Methodology(s *scorer.Scorer) MethodologyView {
	weights := s.Weights()
	rules := s.Rules()

	v := MethodologyView{RulesHash: scorer.ConfigHash(rules)}
	for _, d := range model.Dimensions {
		doc := DimensionDoc{Dimension: d, Label: d.Label(), Weight: weights[d]}
		for _, ind := range scorer.IndicatorsFor(d) {
			doc.Indicators = append(doc.Indicators, IndicatorDoc{
				Column:     ind.Column,
				Label:      ind.Label,
				Policy:     ind.Policy.String(),
				Dictionary: ind.Dictionary,
			})
		}
		v.Dimensions = append(v.Dimensions, doc)
	}

	v.Rules = []RuleDoc{
		{scorer.PolicyPercent.String(), "Pourcentages : nombre ramené sur 0–100 (valeurs hors bornes écrêtées)."},
		{scorer.PolicyPresence.String(), fmtRule("Présence : %s si renseigné, %s si vide ou non précisé.", rules.Presence.Present, rules.Presence.Empty)},
		{scorer.PolicyStatus.String(), fmtRule("Statut : %s si à jour/ok, %s si en cours/partiel, %s si absent/non, %s sinon.",
			rules.StatusScores.Affirmative, rules.StatusScores.InProgress, rules.StatusScores.Negative, rules.StatusScores.Default)},
		{scorer.PolicyDictionary.String(), fmtRule("Dictionnaire : correspondance exacte, %s si valeur inconnue.", rules.StatusScores.Default)},
		{scorer.PolicyList.String(), fmtRule("Listes : base de %s, +%s points par élément, plafonné à %s.", rules.ListScale.Base, rules.ListScale.Step, rules.ListScale.Cap)},
		{scorer.PolicyKeyword.String(), fmtRule("Mots-clés : base de %s, +%s points par mot-clé trouvé, plafonné à %s.", rules.KeywordScale.Base, rules.KeywordScale.Step, rules.KeywordScale.Cap)},
		{scorer.PolicyCountRatio.String(), fmtRule("Langues vivantes : 0–%s ramenées sur 0–100.", rules.LVEMax)},
	}
	return v
}

// fmtRule formats numbers without trailing zeros ("40", "12.5").
func fmtRule(format string, values ...float64) string {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return fmt.Sprintf(format, args...)
}
