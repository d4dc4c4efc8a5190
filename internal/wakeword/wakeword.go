// Package wakeword decides whether a transcript starts with the wake phrase.
//
// The match is deliberately fuzzy so that transcription slips on the wake
// phrase ("hey comptuer") still wake the assistant. Both sides are normalized,
// the transcript is cut to as many words as the wake phrase has, and the two
// are compared with difflib's Ratcliff/Obershelp ratio 2*M/T, where M is the
// number of characters in the matching blocks and T the combined length.
//
// Everything here is pure and safe for concurrent use.
package wakeword

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/pmezard/go-difflib/difflib"
)

// DefaultThreshold is the acceptance threshold used when none is configured.
const DefaultThreshold = 0.8

// Config is the wake phrase and its acceptance threshold. Immutable for the
// lifetime of a session.
type Config struct {
	// Phrase is the wake phrase, e.g. "hey computer".
	Phrase string

	// Threshold in [0,1]. A transcript is accepted iff its similarity is at
	// least Threshold.
	Threshold float64
}

// Validate reports whether cfg is usable.
func (c Config) Validate() error {
	var errs []error
	if Normalize(c.Phrase) == "" {
		errs = append(errs, errors.New("wakeword: phrase must contain at least one word"))
	}
	if c.Threshold < 0 || c.Threshold > 1 {
		errs = append(errs, fmt.Errorf("wakeword: threshold %v outside [0,1]", c.Threshold))
	}
	return errors.Join(errs...)
}

// Accepts reports whether transcript begins with cfg.Phrase within
// cfg.Threshold.
func Accepts(transcript string, cfg Config) bool {
	return Similarity(transcript, cfg.Phrase) >= cfg.Threshold
}

// Similarity compares the leading words of transcript with phrase and returns
// a ratio in [0,1].
func Similarity(transcript, phrase string) float64 {
	want := strings.Fields(Normalize(phrase))
	got := strings.Fields(Normalize(transcript))
	if len(got) > len(want) {
		got = got[:len(want)]
	}
	return Ratio(strings.Join(got, " "), strings.Join(want, " "))
}

// Normalize lower-cases s, turns punctuation other than apostrophes into
// spaces, and collapses whitespace.
func Normalize(s string) string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case r == '\'' || r == '’':
			return '\''
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			return ' '
		}
		return unicode.ToLower(r)
	}, s)
	return strings.Join(strings.Fields(mapped), " ")
}

// Ratio is the Ratcliff/Obershelp similarity of a and b over characters, as
// computed by difflib's SequenceMatcher. It lies in [0,1], and two empty
// strings are identical.
func Ratio(a, b string) float64 {
	return difflib.NewMatcher(strings.Split(a, ""), strings.Split(b, "")).Ratio()
}
