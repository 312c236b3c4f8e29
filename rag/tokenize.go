package rag

import (
	"math"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Tokenizer turns text into the tokens used for similarity search.
type Tokenizer func(text string) []string

// DefaultTokenize normalizes text (NFKC, Unicode case folding) and splits it
// into runs of letters, digits and underscores.
func DefaultTokenize(text string) []string {
	// cases.Caser is stateful, so one is built per call.
	folded := cases.Fold().String(norm.NFKC.String(text))
	return strings.FieldsFunc(folded, func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_')
	})
}

// termVector is a token frequency vector with its squared norm.
type termVector struct {
	freq   map[string]int
	normSq int
}

func newTermVector(tokens []string) termVector {
	v := termVector{freq: make(map[string]int, len(tokens))}
	for _, t := range tokens {
		v.freq[t]++
	}
	for _, n := range v.freq {
		v.normSq += n * n
	}
	return v
}

// cosine returns the cosine similarity of a and b, 0 when either is empty.
// Identical vectors yield exactly 1.
func cosine(a, b termVector) float64 {
	if a.normSq == 0 || b.normSq == 0 {
		return 0
	}
	small, large := a.freq, b.freq
	if len(small) > len(large) {
		small, large = large, small
	}
	dot := 0
	for t, n := range small {
		dot += n * large[t]
	}
	if dot == 0 {
		return 0
	}
	return float64(dot) / math.Sqrt(float64(a.normSq)*float64(b.normSq))
}
