package scorer

import (
	"regexp"
	"strings"

	"github.com/MathieuBartozzi/mlf-suivi-homologation/internal/model"
)

// Normalizer applies field-normalization policies. It is built once from a
// rule snapshot and holds no mutable state, so it is safe for concurrent use.
type Normalizer struct {
	emptyTokens  map[string]bool
	presence     PresenceScores
	buckets      [3][]string
	statusScores StatusScores
	dictionaries map[string]map[string]float64
	keywordRe    *regexp.Regexp
	listScale    Scale
	keywordScale Scale
	lveMax       float64
}

// NewNormalizer compiles rules into a Normalizer. Tokens, dictionary keys and
// keywords are accent-folded and lowercased once here.
func NewNormalizer(r Rules) *Normalizer {
	n := &Normalizer{
		emptyTokens:  make(map[string]bool, len(r.EmptyTokens)),
		presence:     r.Presence,
		statusScores: r.StatusScores,
		dictionaries: make(map[string]map[string]float64, len(r.Dictionaries)),
		listScale:    r.ListScale,
		keywordScale: r.KeywordScale,
		lveMax:       r.LVEMax,
	}
	for _, tok := range r.EmptyTokens {
		n.emptyTokens[model.Fold(tok)] = true
	}
	n.buckets[0] = foldAll(r.Status.Affirmative)
	n.buckets[1] = foldAll(r.Status.InProgress)
	n.buckets[2] = foldAll(r.Status.Negative)
	for name, dict := range r.Dictionaries {
		d := make(map[string]float64, len(dict))
		for k, v := range dict {
			d[model.Fold(k)] = v
		}
		n.dictionaries[name] = d
	}
	n.keywordRe = compileKeywords(r.Keywords)
	return n
}

func foldAll(tokens []string) []string {
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if f := model.Fold(t); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// compileKeywords builds a case-insensitive alternation in list order, so
// earlier keywords win at the same position ("laboratoire" before "labo").
func compileKeywords(keywords []string) *regexp.Regexp {
	parts := make([]string, 0, len(keywords))
	for _, kw := range foldAll(keywords) {
		parts = append(parts, regexp.QuoteMeta(kw))
	}
	if len(parts) == 0 {
		return nil
	}
	return regexp.MustCompile("(?i)" + strings.Join(parts, "|"))
}

// Apply scores a single value with the sub-indicator's policy. The second
// result is false when the score is Undefined.
func (n *Normalizer) Apply(ind SubIndicator, v model.Value) (float64, bool) {
	switch ind.Policy {
	case PolicyPercent:
		return n.Percent(v)
	case PolicyPresence:
		return n.Presence(v)
	case PolicyStatus:
		return n.Status(v)
	case PolicyDictionary:
		return n.Dictionary(ind.Dictionary, v)
	case PolicyList:
		return n.ListLength(v)
	case PolicyKeyword:
		return n.KeywordCount(v)
	case PolicyCountRatio:
		return n.CountRatio(v)
	default:
		return 0, false
	}
}

// Column applies the sub-indicator's policy to every row. A column missing
// from the records yields nil (Undefined) for every row.
func (n *Normalizer) Column(ind SubIndicator, rows []model.Record) []*float64 {
	out := make([]*float64, len(rows))
	for i, r := range rows {
		if s, ok := n.Apply(ind, r.Get(ind.Column)); ok {
			out[i] = &s
		}
	}
	return out
}

// Percent parses a number and clips it to [0,100].
func (n *Normalizer) Percent(v model.Value) (float64, bool) {
	f, ok := v.Float()
	if !ok {
		return 0, false
	}
	return clip(f, 0, 100), true
}

// Presence scores any supplied value: empty-equivalent tokens get the empty
// score, everything else the present score. Only structural absence is
// Undefined.
func (n *Normalizer) Presence(v model.Value) (float64, bool) {
	if v.IsAbsent() {
		return 0, false
	}
	if v.Kind() == model.KindEmpty || n.emptyTokens[model.Fold(v.String())] {
		return n.presence.Empty, true
	}
	return n.presence.Present, true
}

// Status matches the value against the keyword buckets by substring, in
// priority order affirmative, in-progress, negative. No match yields the
// neutral default.
func (n *Normalizer) Status(v model.Value) (float64, bool) {
	if v.IsMissing() {
		return 0, false
	}
	s := model.Fold(v.String())
	scores := [3]float64{n.statusScores.Affirmative, n.statusScores.InProgress, n.statusScores.Negative}
	for i, bucket := range n.buckets {
		for _, tok := range bucket {
			if strings.Contains(s, tok) {
				return scores[i], true
			}
		}
	}
	return n.statusScores.Default, true
}

// Dictionary looks up the folded value in the named exact-match dictionary.
// Unknown values get the neutral status default.
func (n *Normalizer) Dictionary(name string, v model.Value) (float64, bool) {
	if v.IsMissing() {
		return 0, false
	}
	if score, ok := n.dictionaries[name][model.Fold(v.String())]; ok {
		return score, true
	}
	return n.statusScores.Default, true
}

// ListLength scores a list-valued field by its item count. Cells are counted
// from their original text, so "2023,2024" is two items even though it also
// parses as a decimal-comma number.
func (n *Normalizer) ListLength(v model.Value) (float64, bool) {
	if v.IsMissing() {
		return 0, false
	}
	count, ok := CountListItems(v.String())
	if !ok {
		return 0, false
	}
	return n.listScale.Apply(count), true
}

// KeywordCount scores free text by the number of keyword occurrences.
// Non-text values are Undefined.
func (n *Normalizer) KeywordCount(v model.Value) (float64, bool) {
	if !v.IsText() {
		return 0, false
	}
	count := 0
	if n.keywordRe != nil {
		count = len(n.keywordRe.FindAllStringIndex(model.Fold(v.String()), -1))
	}
	return n.keywordScale.Apply(count), true
}

// CountRatio clips a count to [0, lve_max] and rescales it to 0..100.
func (n *Normalizer) CountRatio(v model.Value) (float64, bool) {
	f, ok := v.Float()
	if !ok {
		return 0, false
	}
	return clip(f, 0, n.lveMax) / n.lveMax * 100, true
}

// CountListItems counts the items of a literal list ("['a', 'b']") or a
// comma-separated list ("a, b"). Blank items are ignored. It returns false
// for a malformed literal (unbalanced quotes or nested brackets).
func CountListItems(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]") {
		return countLiteralItems(s[1 : len(s)-1])
	}
	count := 0
	for _, item := range strings.Split(s, ",") {
		if strings.TrimSpace(item) != "" {
			count++
		}
	}
	return count, true
}

func countLiteralItems(inner string) (int, bool) {
	var (
		count   int
		quote   rune
		pending bool
	)
	for _, r := range inner {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"':
			quote = r
			pending = true
		case r == '[' || r == ']':
			return 0, false
		case r == ',':
			if pending {
				count++
			}
			pending = false
		case r != ' ' && r != '\t':
			pending = true
		}
	}
	if quote != 0 {
		return 0, false
	}
	if pending {
		count++
	}
	return count, true
}

func clip(f, lo, hi float64) float64 {
	if f < lo {
		return lo
	}
	if f > hi {
		return hi
	}
	return f
}
