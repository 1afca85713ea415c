package uniqueness

import "strings"

// DefaultShingleSize is the token n-gram width for the lexical-overlap signal.
const DefaultShingleSize = 3

// Shingles builds the set of contiguous token n-grams over the normalized
// text. Texts shorter than n tokens collapse to a single shingle.
func Shingles(text string, n int) []string {
	if n <= 0 {
		n = DefaultShingleSize
	}
	tokens := Tokenize(text)
	if len(tokens) == 0 {
		return nil
	}
	if len(tokens) < n {
		return []string{strings.Join(tokens, " ")}
	}

	seen := make(map[string]struct{}, len(tokens))
	shingles := make([]string, 0, len(tokens)-n+1)
	for i := 0; i+n <= len(tokens); i++ {
		s := strings.Join(tokens[i:i+n], " ")
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		shingles = append(shingles, s)
	}
	return shingles
}

// Jaccard is the intersection-over-union of two shingle sets.
func Jaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(a))
	for _, s := range a {
		set[s] = struct{}{}
	}
	intersection := 0
	for _, s := range b {
		if _, ok := set[s]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
