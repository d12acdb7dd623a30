// Package scorer turns raw institution records into per-dimension quality
// scores and a weighted global score.
package scorer

import (
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/MathieuBartozzi/mlf-suivi-homologation/internal/config"
	"github.com/MathieuBartozzi/mlf-suivi-homologation/internal/model"
)

// ErrInvalidConfig is returned (wrapped) when rules fail validation. It is
// the only error class that aborts a scoring batch.
var ErrInvalidConfig = eris.New("scorer: invalid configuration")

// StatusBuckets holds the keyword buckets of the status lookup policy,
// checked in order: affirmative, in-progress, negative.
type StatusBuckets struct {
	Affirmative []string `yaml:"affirmative" mapstructure:"affirmative"`
	InProgress  []string `yaml:"in_progress" mapstructure:"in_progress"`
	Negative    []string `yaml:"negative" mapstructure:"negative"`
}

// StatusScores are the scores assigned by the status policies.
type StatusScores struct {
	Affirmative float64 `yaml:"affirmative" mapstructure:"affirmative"`
	InProgress  float64 `yaml:"in_progress" mapstructure:"in_progress"`
	Negative    float64 `yaml:"negative" mapstructure:"negative"`
	Default     float64 `yaml:"default" mapstructure:"default"`
}

// PresenceScores are the scores of the presence policy.
type PresenceScores struct {
	Present float64 `yaml:"present" mapstructure:"present"`
	Empty   float64 `yaml:"empty" mapstructure:"empty"`
}

// Scale is a linear "base + step x n, capped" rule.
type Scale struct {
	Base float64 `yaml:"base" mapstructure:"base"`
	Step float64 `yaml:"step" mapstructure:"step"`
	Cap  float64 `yaml:"cap" mapstructure:"cap"`
}

// Apply returns min(cap, base + step*n).
func (s Scale) Apply(n int) float64 {
	v := s.Base + s.Step*float64(n)
	if v > s.Cap {
		return s.Cap
	}
	return v
}

// Rules is the complete scoring configuration: weights plus every keyword
// list and threshold used by the field normalizer.
type Rules struct {
	Weights      map[model.Dimension]float64   `yaml:"weights" mapstructure:"weights"`
	EmptyTokens  []string                      `yaml:"empty_tokens" mapstructure:"empty_tokens"`
	Presence     PresenceScores                `yaml:"presence" mapstructure:"presence"`
	Status       StatusBuckets                 `yaml:"status" mapstructure:"status"`
	StatusScores StatusScores                  `yaml:"status_scores" mapstructure:"status_scores"`
	Dictionaries map[string]map[string]float64 `yaml:"dictionaries" mapstructure:"dictionaries"`
	Keywords     []string                      `yaml:"keywords" mapstructure:"keywords"`
	ListScale    Scale                         `yaml:"list_scale" mapstructure:"list_scale"`
	KeywordScale Scale                         `yaml:"keyword_scale" mapstructure:"keyword_scale"`
	LVEMax       float64                       `yaml:"lve_max" mapstructure:"lve_max"`
}

// DefaultWeights returns the shipped weight set. It sums to 1.
func DefaultWeights() map[model.Dimension]float64 {
	return map[model.Dimension]float64{
		model.DimResultats:    0.30,
		model.DimGouvernance:  0.20,
		model.DimStrategie:    0.15,
		model.DimClimat:       0.15,
		model.DimLinguistique: 0.10,
		model.DimRessources:   0.10,
	}
}

// DefaultRules returns the rules shipped with the dashboard.
func DefaultRules() Rules {
	return Rules{
		Weights: DefaultWeights(),

		EmptyTokens: []string{
			"", "nan", "none", "n/a", "na", "-", "—",
			"non précisé", "non precise", "non renseigné", "aucun", "aucune",
		},
		Presence: PresenceScores{Present: 80, Empty: 40},

		Status: StatusBuckets{
			Affirmative: []string{
				"à jour", "a jour", "ok", "actif", "valide", "conforme",
			},
			InProgress: []string{
				"en cours", "partiel", "partiellement", "à mettre à jour",
			},
			Negative: []string{
				"non", "absent",
			},
		},
		StatusScores: StatusScores{Affirmative: 90, InProgress: 60, Negative: 30, Default: 70},

		Dictionaries: map[string]map[string]float64{
			DictInclusion: {
				"oui":      90,
				"en cours": 60,
				"partiel":  60,
				"non":      30,
				"absent":   30,
			},
			DictOrientation: {
				"structuré vers la france": 90,
				"structuré":                90,
				"diversifié":               90,
				"en construction":          60,
				"partiel":                  60,
				"non structuré":            30,
				"absent":                   30,
			},
			DictRessourcesHumaines: {
				"structuré":   90,
				"stable":      90,
				"en tension":  60,
				"fragile":     60,
				"insuffisant": 30,
				"critique":    30,
			},
		},

		Keywords: []string{
			"wifi", "laboratoire", "labo", "cdi", "gymnase", "terrain",
			"tablettes", "ordinateurs", "numérique", "informatique",
			"bibliothèque", "piscine",
		},
		ListScale:    Scale{Base: 40, Step: 12, Cap: 100},
		KeywordScale: Scale{Base: 40, Step: 12, Cap: 100},
		LVEMax:       5,
	}
}

// RulesFromConfig builds rules from the application config: defaults, then
// the optional YAML rules file, then weights set directly in config.
func RulesFromConfig(c config.ScoringConfig) (Rules, error) {
	r := DefaultRules()
	if c.RulesFile != "" {
		loaded, err := LoadRules(c.RulesFile)
		if err != nil {
			return Rules{}, err
		}
		r = loaded
	}
	if len(c.Weights) > 0 {
		w := make(map[model.Dimension]float64, len(c.Weights))
		for k, v := range c.Weights {
			w[model.Dimension(strings.ToLower(k))] = v
		}
		r.Weights = w
	}
	return r, nil
}

// LoadRules reads a YAML rules file on top of DefaultRules. Scalars, lists
// and the weight map present in the file replace the defaults; dictionaries
// are merged entry by entry.
func LoadRules(path string) (Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, eris.Wrapf(err, "scorer: read rules file %s", path)
	}
	var overlay struct {
		Weights      map[model.Dimension]float64   `yaml:"weights"`
		Dictionaries map[string]map[string]float64 `yaml:"dictionaries"`
	}
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return Rules{}, eris.Wrapf(err, "scorer: parse rules file %s", path)
	}
	r := DefaultRules()
	if err := yaml.Unmarshal(data, &r); err != nil {
		return Rules{}, eris.Wrapf(err, "scorer: parse rules file %s", path)
	}

	if overlay.Weights != nil {
		r.Weights = overlay.Weights
	}
	r.Dictionaries = DefaultRules().Dictionaries
	for name, entries := range overlay.Dictionaries {
		dict, ok := r.Dictionaries[name]
		if !ok {
			dict = make(map[string]float64, len(entries))
			r.Dictionaries[name] = dict
		}
		for k, v := range entries {
			dict[k] = v
		}
	}
	return r, nil
}

// Clone returns a deep copy so a running batch never observes later edits.
func (r Rules) Clone() Rules {
	out := r
	out.Weights = make(map[model.Dimension]float64, len(r.Weights))
	for k, v := range r.Weights {
		out.Weights[k] = v
	}
	out.EmptyTokens = append([]string(nil), r.EmptyTokens...)
	out.Status = StatusBuckets{
		Affirmative: append([]string(nil), r.Status.Affirmative...),
		InProgress:  append([]string(nil), r.Status.InProgress...),
		Negative:    append([]string(nil), r.Status.Negative...),
	}
	out.Dictionaries = make(map[string]map[string]float64, len(r.Dictionaries))
	for name, dict := range r.Dictionaries {
		d := make(map[string]float64, len(dict))
		for k, v := range dict {
			d[k] = v
		}
		out.Dictionaries[name] = d
	}
	out.Keywords = append([]string(nil), r.Keywords...)
	return out
}

// WeightSum returns the sum of all dimension weights.
func WeightSum(r Rules) float64 {
	var sum float64
	for _, w := range r.Weights {
		sum += w
	}
	return sum
}

// NormalizedWeights returns the weights divided by their sum, one entry per
// dimension (dimensions absent from the map get 0). Rules must be valid.
func NormalizedWeights(r Rules) map[model.Dimension]float64 {
	sum := WeightSum(r)
	out := make(map[model.Dimension]float64, len(model.Dimensions))
	for _, d := range model.Dimensions {
		if sum > 0 {
			out[d] = r.Weights[d] / sum
		} else {
			out[d] = 0
		}
	}
	return out
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// ValidateRules checks that a rule set is internally consistent.
func ValidateRules(r Rules) error {
	var errs []string

	if len(r.Weights) == 0 {
		errs = append(errs, "weights must not be empty")
	}
	names := make([]string, 0, len(r.Weights))
	for d := range r.Weights {
		names = append(names, string(d))
	}
	sort.Strings(names)
	for _, name := range names {
		w := r.Weights[model.Dimension(name)]
		if !model.IsDimension(name) {
			errs = append(errs, fmt.Sprintf("unknown dimension %q in weights", name))
		}
		switch {
		case !finite(w):
			errs = append(errs, fmt.Sprintf("weight %s must be a finite number", name))
		case w < 0:
			errs = append(errs, fmt.Sprintf("weight %s must be >= 0", name))
		}
	}
	if sum := WeightSum(r); len(r.Weights) > 0 && (!finite(sum) || sum <= 0) {
		errs = append(errs, "weight sum must be a finite number > 0")
	}

	for name, v := range map[string]float64{
		"presence.present":          r.Presence.Present,
		"presence.empty":            r.Presence.Empty,
		"status_scores.affirmative": r.StatusScores.Affirmative,
		"status_scores.in_progress": r.StatusScores.InProgress,
		"status_scores.negative":    r.StatusScores.Negative,
		"status_scores.default":     r.StatusScores.Default,
		"list_scale.cap":            r.ListScale.Cap,
		"keyword_scale.cap":         r.KeywordScale.Cap,
	} {
		if !finite(v) || v < 0 || v > 100 {
			errs = append(errs, fmt.Sprintf("%s must be between 0 and 100", name))
		}
	}
	if !finite(r.ListScale.Base) || !finite(r.ListScale.Step) || r.ListScale.Base < 0 || r.ListScale.Step < 0 {
		errs = append(errs, "list_scale base and step must be finite and >= 0")
	}
	if !finite(r.KeywordScale.Base) || !finite(r.KeywordScale.Step) || r.KeywordScale.Base < 0 || r.KeywordScale.Step < 0 {
		errs = append(errs, "keyword_scale base and step must be finite and >= 0")
	}
	if !finite(r.LVEMax) || r.LVEMax <= 0 {
		errs = append(errs, "lve_max must be a finite number > 0")
	}

	for _, ind := range SubIndicators {
		if ind.Policy != PolicyDictionary {
			continue
		}
		dict, ok := r.Dictionaries[ind.Dictionary]
		if !ok {
			errs = append(errs, fmt.Sprintf("dictionary %q (column %s) is not defined", ind.Dictionary, ind.Column))
			continue
		}
		for k, v := range dict {
			if !finite(v) || v < 0 || v > 100 {
				errs = append(errs, fmt.Sprintf("dictionary %s entry %q must be between 0 and 100", ind.Dictionary, k))
			}
		}
	}

	if len(errs) > 0 {
		sort.Strings(errs)
		return eris.Wrapf(ErrInvalidConfig, "config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
