package service

import (
	"strings"
	"unicode"
)

const shingleSize = 4

// Similarity scores how alike two source payloads are, in [0, 1]. Sources are
// tokenised, folded to lower case, and compared as sets of 4-token shingles
// (Jaccard). Identical sources score 1; sources sharing no shingle score 0.
// The measure is symmetric and deterministic, so repeated evaluations of the
// same inputs produce the same report.
func Similarity(a, b string) float64 {
	shinglesA := shingles(tokenize(a))
	shinglesB := shingles(tokenize(b))

	if len(shinglesA) == 0 && len(shinglesB) == 0 {
		return 1
	}
	if len(shinglesA) == 0 || len(shinglesB) == 0 {
		return 0
	}

	intersection := 0
	for shingle := range shinglesA {
		if _, ok := shinglesB[shingle]; ok {
			intersection++
		}
	}

	union := len(shinglesA) + len(shinglesB) - intersection
	return float64(intersection) / float64(union)
}

// tokenize splits source text into identifier/number runs and single
// punctuation tokens, dropping whitespace.
func tokenize(source string) []string {
	var tokens []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			tokens = append(tokens, strings.ToLower(current.String()))
			current.Reset()
		}
	}

	for _, r := range source {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_':
			current.WriteRune(r)
		case unicode.IsSpace(r):
			flush()
		default:
			flush()
			tokens = append(tokens, string(r))
		}
	}
	flush()

	return tokens
}

func shingles(tokens []string) map[string]struct{} {
	set := make(map[string]struct{})
	if len(tokens) == 0 {
		return set
	}

	if len(tokens) < shingleSize {
		set[strings.Join(tokens, "\x00")] = struct{}{}
		return set
	}

	for i := 0; i+shingleSize <= len(tokens); i++ {
		set[strings.Join(tokens[i:i+shingleSize], "\x00")] = struct{}{}
	}
	return set
}
