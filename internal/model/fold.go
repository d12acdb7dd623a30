package model

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold lowercases s, trims it, and strips combining accents so that
// "Validé" and "valide" compare equal.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(strings.TrimSpace(out))
}

// columnReplacer mirrors the loader's header normalization.
var columnReplacer = strings.NewReplacer(" ", "_", "/", "_")

// NormalizeColumn trims, lowercases, and replaces spaces and slashes with
// underscores. Accents are kept.
func NormalizeColumn(name string) string {
	return columnReplacer.Replace(strings.ToLower(strings.TrimSpace(name)))
}
