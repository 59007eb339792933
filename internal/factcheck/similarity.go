package factcheck

import "strings"

// NormalizeClaim lowercases claim text and strips punctuation so token
// comparison is stable across phrasing differences.
func NormalizeClaim(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '\t', r == '\n':
			b.WriteRune(' ')
		default:
			// Punctuation becomes a separator, not nothing, so "covid-19"
			// still splits into comparable tokens.
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// wordSet returns the set of tokens in normalized claim text.
func wordSet(normalized string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(normalized) {
		set[w] = true
	}
	return set
}

// Jaccard computes word-set Jaccard similarity between two claim texts.
func Jaccard(a, b string) float64 {
	sa := wordSet(NormalizeClaim(a))
	sb := wordSet(NormalizeClaim(b))
	if len(sa) == 0 || len(sb) == 0 {
		return 0
	}

	intersection := 0
	for w := range sa {
		if sb[w] {
			intersection++
		}
	}
	union := len(sa) + len(sb) - intersection
	return float64(intersection) / float64(union)
}

// BestMatch finds the candidate claim most similar to text. Returns -1 when
// no candidate reaches the floor.
func BestMatch(text string, candidates []string, floor float64) (int, float64) {
	bestIdx := -1
	bestScore := 0.0
	for i, candidate := range candidates {
		if score := Jaccard(text, candidate); score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	if bestScore < floor {
		return -1, bestScore
	}
	return bestIdx, bestScore
}
