package model

import (
	"encoding/json"
	"math"
	"time"
)

// Dimension is one of the six fixed evaluation categories.
type Dimension string

const (
	DimResultats    Dimension = "resultats_aux_examens"
	DimGouvernance  Dimension = "gouvernance_securite"
	DimStrategie    Dimension = "strategie_partenariats"
	DimClimat       Dimension = "climat_inclusion"
	DimLinguistique Dimension = "ouverture_linguistique"
	DimRessources   Dimension = "ressources_numerique"
)

// Dimensions lists every dimension in canonical order.
var Dimensions = []Dimension{
	DimResultats,
	DimGouvernance,
	DimStrategie,
	DimClimat,
	DimLinguistique,
	DimRessources,
}

// ScoreColumn returns the output column name for d ("score_<dimension>").
func (d Dimension) ScoreColumn() string { return "score_" + string(d) }

// Label returns the French display label used by the dashboard.
func (d Dimension) Label() string {
	switch d {
	case DimResultats:
		return "Résultats aux examens"
	case DimGouvernance:
		return "Gouvernance & sécurité"
	case DimStrategie:
		return "Stratégie & partenariats"
	case DimClimat:
		return "Climat & inclusion"
	case DimLinguistique:
		return "Ouverture linguistique & culturelle"
	case DimRessources:
		return "Ressources & numérique"
	default:
		return string(d)
	}
}

// IsDimension reports whether name is one of the six dimensions.
func IsDimension(name string) bool {
	for _, d := range Dimensions {
		if string(d) == name {
			return true
		}
	}
	return false
}

// Output column names added by scoring.
const (
	ColScoreGlobal       = "score_global"
	ColIncompleteScore   = "incomplete_score"
	ColMissingDimensions = "missing_dimensions"
)

// RawColumnPrefix is prepended to a source column whose name collides with an
// output column.
const RawColumnPrefix = "raw_"

// IsOutputColumn reports whether name is written by scoring.
func IsOutputColumn(name string) bool {
	switch name {
	case ColScoreGlobal, ColIncompleteScore, ColMissingDimensions:
		return true
	}
	for _, d := range Dimensions {
		if d.ScoreColumn() == name {
			return true
		}
	}
	return false
}

// Explanation strings for missing_dimensions.
const (
	ExplainComplete   = "complete"
	ExplainAllMissing = "all dimensions missing"
	ExplainNoWeight   = "no weighted dimension available"
)

// ScoredRecord is a raw record extended with its derived scores. Nil score
// pointers mean Undefined.
type ScoredRecord struct {
	Raw               Record                 `json:"raw"`
	Dimensions        map[Dimension]*float64 `json:"dimensions"`
	Global            *float64               `json:"score_global"`
	Incomplete        bool                   `json:"incomplete_score"`
	MissingDimensions string                 `json:"missing_dimensions"`
}

// Score returns the dimension score and whether it is defined.
func (s ScoredRecord) Score(d Dimension) (float64, bool) {
	p := s.Dimensions[d]
	if p == nil {
		return 0, false
	}
	return *p, true
}

// Name returns the institution name (column "etablissement").
func (s ScoredRecord) Name() string { return s.Raw.Text("etablissement") }

// Flatten returns the raw columns plus every output column, in the shape of
// the augmented table: score_<dimension> x6, score_global, incomplete_score,
// missing_dimensions. Undefined scores are nil.
func (s ScoredRecord) Flatten() map[string]any {
	out := make(map[string]any, len(s.Raw)+9)
	for k, v := range s.Raw {
		if v.IsMissing() {
			out[k] = nil
			continue
		}
		if f, ok := v.Float(); ok && v.Kind() == KindNumber {
			out[k] = f
			continue
		}
		out[k] = v.String()
	}
	for _, d := range Dimensions {
		if p := s.Dimensions[d]; p != nil {
			out[d.ScoreColumn()] = *p
		} else {
			out[d.ScoreColumn()] = nil
		}
	}
	if s.Global != nil {
		out[ColScoreGlobal] = *s.Global
	} else {
		out[ColScoreGlobal] = nil
	}
	out[ColIncompleteScore] = s.Incomplete
	out[ColMissingDimensions] = s.MissingDimensions
	return out
}

// MarshalJSON emits the flattened form.
func (s ScoredRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Flatten())
}

// UnmarshalJSON reads the flattened form back.
func (s *ScoredRecord) UnmarshalJSON(data []byte) error {
	var flat map[string]json.RawMessage
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}
	out := ScoredRecord{
		Raw:        Record{},
		Dimensions: make(map[Dimension]*float64, len(Dimensions)),
	}
	outputs := map[string]bool{
		ColScoreGlobal:       true,
		ColIncompleteScore:   true,
		ColMissingDimensions: true,
	}
	for _, d := range Dimensions {
		outputs[d.ScoreColumn()] = true
		var p *float64
		if raw, ok := flat[d.ScoreColumn()]; ok {
			if err := json.Unmarshal(raw, &p); err != nil {
				return err
			}
		}
		out.Dimensions[d] = p
	}
	if raw, ok := flat[ColScoreGlobal]; ok {
		if err := json.Unmarshal(raw, &out.Global); err != nil {
			return err
		}
	}
	if raw, ok := flat[ColIncompleteScore]; ok {
		if err := json.Unmarshal(raw, &out.Incomplete); err != nil {
			return err
		}
	}
	if raw, ok := flat[ColMissingDimensions]; ok {
		if err := json.Unmarshal(raw, &out.MissingDimensions); err != nil {
			return err
		}
	}
	for k, raw := range flat {
		if outputs[k] {
			continue
		}
		var v Value
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		out.Raw[k] = v
	}
	*s = out
	return nil
}

// Round1 rounds to one decimal place, half away from zero.
func Round1(f float64) float64 {
	return math.Round(f*10) / 10
}

// RunSummary counts the outcome of a scoring pass.
type RunSummary struct {
	Institutions int      `json:"institutions"`
	Complete     int      `json:"complete"`
	Incomplete   int      `json:"incomplete"`
	Undefined    int      `json:"undefined"`
	MeanGlobal   *float64 `json:"mean_global,omitempty"`
}

// Run is a persisted scoring pass.
type Run struct {
	ID        string                `json:"id"`
	Source    string                `json:"source"`
	RulesHash string                `json:"rules_hash"`
	Weights   map[Dimension]float64 `json:"weights"`
	Summary   RunSummary            `json:"summary"`
	Records   []ScoredRecord        `json:"records,omitempty"`
	CreatedAt time.Time             `json:"created_at"`
}
