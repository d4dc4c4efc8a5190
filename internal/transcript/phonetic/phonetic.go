// Package phonetic resolves spoken names ("the kitchen", "living rum") to one
// of a fixed set of configured names (rooms, speakers, amplifiers).
//
// Resolution runs in three stages:
//
//  1. Exact match after lower-casing and whitespace folding.
//  2. Phonetic candidates: names sharing at least one Double Metaphone code
//     with the spoken text, ranked by Jaro-Winkler similarity and accepted
//     above the phonetic threshold (default 0.70).
//  3. Pure Jaro-Winkler fallback over all names, accepted above the fuzzy
//     threshold (default 0.85).
//
// A leading article ("the", "my") is dropped from the spoken text first, since
// the classifier usually copies it from the utterance.
package phonetic

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// Option configures an [Index].
type Option func(*Index)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for a phonetic
// candidate. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(ix *Index) { ix.phoneticThreshold = threshold }
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score for the fallback
// pass. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(ix *Index) { ix.fuzzyThreshold = threshold }
}

// Match is a resolved name.
type Match struct {
	// Name is the configured name exactly as it was passed to [NewIndex].
	Name string

	// Score is 1 for exact matches, otherwise the Jaro-Winkler similarity.
	Score float64

	// Phonetic reports whether the match came from the phonetic stage.
	Phonetic bool
}

type entry struct {
	name   string
	key    string
	tokens []string
	codes  map[string]struct{}
}

// Index holds precomputed keys for a fixed name list. It is read-only after
// construction and safe for concurrent use.
type Index struct {
	entries           []entry
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// NewIndex builds an index over names. Blank names are skipped.
func NewIndex(names []string, opts ...Option) *Index {
	ix := &Index{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(ix)
	}
	for _, n := range names {
		key := normalize(n)
		if key == "" {
			continue
		}
		tokens := strings.Fields(key)
		ix.entries = append(ix.entries, entry{
			name:   n,
			key:    key,
			tokens: tokens,
			codes:  metaphoneCodes(tokens),
		})
	}
	return ix
}

// Names returns the indexed names in construction order.
func (ix *Index) Names() []string {
	out := make([]string, len(ix.entries))
	for i, e := range ix.entries {
		out[i] = e.name
	}
	return out
}

// Lookup resolves spoken to the best indexed name.
func (ix *Index) Lookup(spoken string) (Match, bool) {
	key := stripArticle(normalize(spoken))
	if key == "" || len(ix.entries) == 0 {
		return Match{}, false
	}
	for _, e := range ix.entries {
		if e.key == key {
			return Match{Name: e.name, Score: 1}, true
		}
	}

	tokens := strings.Fields(key)
	codes := metaphoneCodes(tokens)

	var phon, fuzzy Match
	for _, e := range ix.entries {
		score := similarity(tokens, e.tokens, key, e.key)
		if overlaps(codes, e.codes) {
			if score >= ix.phoneticThreshold && score > phon.Score {
				phon = Match{Name: e.name, Score: score, Phonetic: true}
			}
			continue
		}
		if score >= ix.fuzzyThreshold && score > fuzzy.Score {
			fuzzy = Match{Name: e.name, Score: score}
		}
	}
	if phon.Name != "" {
		return phon, true
	}
	if fuzzy.Name != "" {
		return fuzzy, true
	}
	return Match{}, false
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func stripArticle(s string) string {
	for _, a := range []string{"the ", "my ", "our "} {
		if rest, ok := strings.CutPrefix(s, a); ok && rest != "" {
			return rest
		}
	}
	return s
}

// metaphoneCodes returns the union of primary and secondary Double Metaphone
// codes of tokens, skipping empty codes.
func metaphoneCodes(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		for _, c := range []string{p, s} {
			if c != "" {
				codes[c] = struct{}{}
			}
		}
	}
	return codes
}

func overlaps(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for c := range a {
		if _, ok := b[c]; ok {
			return true
		}
	}
	return false
}

// similarity is the best Jaro-Winkler score over the full strings, the
// space-stripped strings, and every token pair.
func similarity(aTokens, bTokens []string, a, b string) float64 {
	best := matchr.JaroWinkler(a, b, false)
	if len(aTokens) > 1 || len(bTokens) > 1 {
		best = max(best, matchr.JaroWinkler(strings.Join(aTokens, ""), strings.Join(bTokens, ""), false))
	}
	for _, x := range aTokens {
		for _, y := range bTokens {
			best = max(best, matchr.JaroWinkler(x, y, false))
		}
	}
	return best
}
