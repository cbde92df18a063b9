// Package similarity scores how alike two short pieces of text are.
package similarity

import (
	"math"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Func is a bounded [0,1], symmetric similarity measure with Func(x, x) == 1.
type Func func(a, b string) float64

// normalize applies NFKC (full-width forms, compatibility characters) and
// Unicode case folding. A Caser is stateful, so each call gets its own.
func normalize(text string) string {
	return cases.Fold().String(norm.NFKC.String(strings.TrimSpace(text)))
}

// Tokenize splits text into normalized tokens. Letters and digits form
// tokens, '-' and '_' are kept inside a token, everything else separates.
// Single-rune tokens are dropped. Han and kana runs carry no word breaks, so
// they become overlapping bigrams; a lone Han or kana rune is kept.
func Tokenize(text string) []string {
	return tokenizeNormalized(normalize(text))
}

func isCJK(r rune) bool {
	return unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana) || r == 'ー'
}

func tokenizeNormalized(text string) []string {
	var tokens []string
	var word strings.Builder
	wordRunes := 0
	var cjk []rune

	flushWord := func() {
		if wordRunes > 1 {
			tokens = append(tokens, word.String())
		}
		word.Reset()
		wordRunes = 0
	}
	flushCJK := func() {
		switch {
		case len(cjk) == 1:
			tokens = append(tokens, string(cjk))
		case len(cjk) > 1:
			for i := 0; i+1 < len(cjk); i++ {
				tokens = append(tokens, string(cjk[i:i+2]))
			}
		}
		cjk = cjk[:0]
	}

	for _, r := range text {
		switch {
		case isCJK(r):
			flushWord()
			cjk = append(cjk, r)
		case unicode.IsLetter(r) || unicode.IsNumber(r) || r == '-' || r == '_':
			flushCJK()
			word.WriteRune(r)
			wordRunes++
		default:
			flushWord()
			flushCJK()
		}
	}
	flushWord()
	flushCJK()
	return tokens
}

// Cosine is the cosine of the token-count vectors of a and b.
// Texts that normalize to the same string score exactly 1.
func Cosine(a, b string) float64 {
	na, nb := normalize(a), normalize(b)
	if na == nb {
		return 1
	}

	ta := counts(tokenizeNormalized(na))
	tb := counts(tokenizeNormalized(nb))
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for tok, ca := range ta {
		normA += ca * ca
		if cb, ok := tb[tok]; ok {
			dot += ca * cb
		}
	}
	for _, cb := range tb {
		normB += cb * cb
	}

	// sqrt of the product keeps identical bags at exactly 1.
	sim := dot / math.Sqrt(normA*normB)
	switch {
	case sim > 1:
		return 1
	case sim < 0:
		return 0
	}
	return sim
}

func counts(tokens []string) map[string]float64 {
	m := make(map[string]float64, len(tokens))
	for _, t := range tokens {
		m[t]++
	}
	return m
}
