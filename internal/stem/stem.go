// Package stem provides the tokenizer used to populate Message's
// app-level stemmed_body column (§3) and to re-stem search queries
// (§4.7), so both sides of a full-text match go through the same
// normalization. No third-party Porter/Snowball implementation is
// present anywhere in the retrieved pack, so the suffix-stripping
// algorithm follows the hand-rolled "simplistic Porter-like stemming"
// precedent found there, extended with a stopword pass via
// orsinium-labs/stopwords rather than that precedent's ad hoc map.
package stem

import (
	"strings"
	"unicode"

	"github.com/orsinium-labs/stopwords"
)

var en = stopwords.MustGet("en")

// suffixes are stripped longest-first, mirroring the reference
// implementation's ordering so "running" reduces to "runn" rather than
// the bare "run" the real Porter algorithm would produce — faithfully
// simplistic is the point, not linguistically perfect.
var suffixes = []string{"tion", "ness", "ing", "ed", "er", "es", "s"}

// Word lowercases and stems a single token, stripping at most one
// suffix, the same shape as the reference Stem function.
func Word(w string) string {
	lower := strings.ToLower(w)
	for _, suf := range suffixes {
		if strings.HasSuffix(lower, suf) && len(lower) > len(suf)+2 {
			return lower[:len(lower)-len(suf)]
		}
	}
	return lower
}

// Tokenize splits on non-letter/non-digit runes.
func Tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Text tokenizes s, drops English stopwords, stems what remains, and
// joins the result with single spaces — the value stored in
// Message.StemmedBody and computed again, identically, over a search
// query before it reaches the FTS index.
func Text(s string) string {
	tokens := Tokenize(s)
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		lt := strings.ToLower(t)
		if en.Contains(lt) {
			continue
		}
		out = append(out, Word(lt))
	}
	return strings.Join(out, " ")
}
