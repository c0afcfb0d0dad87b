package services

import (
	"strings"
	"unicode"
)

const (
	shingleSize         = 3
	similarityThreshold = 0.7
	similarityWindow    = 50
)

// normalizeForShingles lowercases and strips everything except letters and
// digits, so punctuation or spacing tweaks don't defeat the detector.
func normalizeForShingles(text string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Shingles returns the character n-gram set of the normalized text. Strings
// shorter than the shingle size yield an empty set.
func Shingles(text string, n int) map[string]bool {
	if n <= 0 {
		n = shingleSize
	}
	normalized := []rune(normalizeForShingles(text))
	out := map[string]bool{}
	if len(normalized) < n {
		return out
	}
	for i := 0; i+n <= len(normalized); i++ {
		out[string(normalized[i:i+n])] = true
	}
	return out
}

// Jaccard is |A∩B| / |A∪B|. An empty union is defined as similarity 0, so two
// very short strings never count as duplicates.
func Jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	intersection := 0
	for shingle := range a {
		if b[shingle] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// SimilarityMatch reports the first prior message a candidate is too close to.
type SimilarityMatch struct {
	Flagged  bool
	Score    float64
	Against  string
	Position int
}

// CheckSimilarity compares a candidate against a window of recent outbound
// texts and flags the candidate when any pairwise Jaccard similarity exceeds
// the threshold. Whether a flag blocks the send is the caller's policy.
func CheckSimilarity(candidate string, recent []string, threshold float64) SimilarityMatch {
	if threshold <= 0 {
		threshold = similarityThreshold
	}
	candidateShingles := Shingles(candidate, shingleSize)

	limit := len(recent)
	if limit > similarityWindow {
		limit = similarityWindow
	}
	for i := 0; i < limit; i++ {
		score := Jaccard(candidateShingles, Shingles(recent[i], shingleSize))
		if score > threshold {
			return SimilarityMatch{Flagged: true, Score: score, Against: recent[i], Position: i}
		}
	}
	return SimilarityMatch{}
}
