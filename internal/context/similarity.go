package context

import (
	"math"
	"strings"
	"unicode"
)

// Term-frequency cosine similarity. Good enough for ranking short study
// snippets against a query without an embedding service in the loop.

var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "is": true, "are": true, "was": true,
	"be": true, "to": true, "of": true, "and": true, "or": true, "in": true,
	"on": true, "for": true, "with": true, "how": true, "what": true,
	"why": true, "do": true, "does": true, "i": true, "me": true, "my": true,
	"you": true, "it": true, "this": true, "that": true, "can": true,
}

func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})

	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < 2 || stopwords[f] {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

func termFrequencies(tokens []string) map[string]float64 {
	freqs := make(map[string]float64, len(tokens))
	for _, t := range tokens {
		freqs[t]++
	}
	return freqs
}

// Similarity returns the cosine similarity of the two texts in [0,1].
func Similarity(a, b string) float64 {
	fa := termFrequencies(tokenize(a))
	fb := termFrequencies(tokenize(b))

	if len(fa) == 0 || len(fb) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for term, va := range fa {
		normA += va * va
		if vb, ok := fb[term]; ok {
			dot += va * vb
		}
	}
	for _, vb := range fb {
		normB += vb * vb
	}

	if dot == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// EstimateTokens approximates the token count of a text. Four characters per
// token tracks common BPE vocabularies closely enough for budgeting.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	n := len(text) / 4
	if n == 0 {
		n = 1
	}
	return n
}
