package wakeword_test

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/MrWong99/hemma/internal/wakeword"
)

func almostEqual(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestAccepts_BoundaryExamples(t *testing.T) {
	t.Parallel()

	tests := []struct {
		transcript string
		threshold  float64
		want       bool
	}{
		{"hey computer what time is it", 0.8, true},
		{"hey comptuer what time is it", 0.6, true},
		{"hey comptuer what time is it", 0.95, false},
		{"Hey, Computer! What time is it?", 0.95, true},
		{"what time is it", 0.8, false},
		{"hey", 0.8, false},
		{"", 0.8, false},
	}
	for _, tt := range tests {
		t.Run(tt.transcript, func(t *testing.T) {
			t.Parallel()
			cfg := wakeword.Config{Phrase: "hey computer", Threshold: tt.threshold}
			if got := wakeword.Accepts(tt.transcript, cfg); got != tt.want {
				t.Errorf("Accepts(%q, %v) = %v, want %v (similarity %.3f)",
					tt.transcript, tt.threshold, got, tt.want,
					wakeword.Similarity(tt.transcript, cfg.Phrase))
			}
		})
	}
}

func TestSimilarity_TransposedLetter(t *testing.T) {
	t.Parallel()

	// "hey comp" + "er" + "t": 11 shared characters out of 24.
	got := wakeword.Similarity("hey comptuer what time is it", "hey computer")
	if want := 22.0 / 24.0; !almostEqual(got, want) {
		t.Errorf("Similarity = %v, want %v", got, want)
	}
}

func TestAccepts_ThresholdMonotonic(t *testing.T) {
	t.Parallel()

	transcripts := []string{
		"hey computer lights on",
		"hey comptuer",
		"hay commuter play music",
		"okay computer",
		"computer hey",
		"h",
		"",
	}
	rng := rand.New(rand.NewPCG(1, 2))
	for _, tr := range transcripts {
		for range 200 {
			hi := rng.Float64()
			lo := hi * rng.Float64()
			cfgHi := wakeword.Config{Phrase: "hey computer", Threshold: hi}
			cfgLo := wakeword.Config{Phrase: "hey computer", Threshold: lo}
			if wakeword.Accepts(tr, cfgHi) && !wakeword.Accepts(tr, cfgLo) {
				t.Fatalf("%q accepted at %v but rejected at lower %v", tr, hi, lo)
			}
		}
	}
}

func TestRatio(t *testing.T) {
	t.Parallel()

	tests := []struct {
		a, b string
		want float64
	}{
		{"", "", 1},
		{"abc", "", 0},
		{"abc", "abc", 1},
		{"abcd", "bcde", 0.75},
		{"abc", "xyz", 0},
		{"hey computer", "hey comptuer", 22.0 / 24.0},
	}
	for _, tt := range tests {
		got := wakeword.Ratio(tt.a, tt.b)
		if !almostEqual(got, tt.want) {
			t.Errorf("Ratio(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
		if rev := wakeword.Ratio(tt.b, tt.a); !almostEqual(rev, got) {
			t.Errorf("Ratio not symmetric for %q/%q: %v vs %v", tt.a, tt.b, got, rev)
		}
		if got < 0 || got > 1 {
			t.Errorf("Ratio(%q, %q) = %v outside [0,1]", tt.a, tt.b, got)
		}
	}
}

func TestRatio_MatchesSequenceMatcherTieBreaking(t *testing.T) {
	t.Parallel()

	// Single-character blocks tie; the earliest block in a wins, so the
	// ratio depends on argument order exactly as difflib's does.
	tests := []struct {
		a, b string
		want float64
	}{
		{"tide", "diet", 0.25},
		{"diet", "tide", 0.5},
		{"hey", "hey computer", 0.4},
	}
	for _, tt := range tests {
		if got := wakeword.Ratio(tt.a, tt.b); !almostEqual(got, tt.want) {
			t.Errorf("Ratio(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"Hey, Computer!  What's up?", "hey computer what's up"},
		{"  HEY\tcomputer\n", "hey computer"},
		{"hey-computer", "hey computer"},
		{"it’s", "it's"},
		{"...", ""},
	}
	for _, tt := range tests {
		if got := wakeword.Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     wakeword.Config
		wantErr bool
	}{
		{"valid", wakeword.Config{Phrase: "hey computer", Threshold: 0.8}, false},
		{"empty phrase", wakeword.Config{Phrase: " ,. ", Threshold: 0.8}, true},
		{"threshold above one", wakeword.Config{Phrase: "hi", Threshold: 1.5}, true},
		{"negative threshold", wakeword.Config{Phrase: "hi", Threshold: -0.1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
