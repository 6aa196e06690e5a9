package match

import (
	"strings"

	"github.com/agext/levenshtein"
)

// TitleSimilarity scores two raw titles in [0,1]. It is order-insensitive:
// the score is the better of a token-sorted Levenshtein similarity and a
// Sørensen–Dice coefficient over the token sets, so reordered titles like
// "Floral Midi Dress - Belted" / "Belted Floral Dress" still score high.
func TitleSimilarity(a, b string) float64 {
	ca, cb := CanonicalTitle(a), CanonicalTitle(b)
	if ca == "" || cb == "" {
		return 0
	}
	if ca == cb {
		return 1
	}

	ta, tb := titleTokens(ca), titleTokens(cb)
	sorted := levenshtein.Similarity(strings.Join(ta, " "), strings.Join(tb, " "), nil)
	dice := diceCoefficient(ta, tb)
	if dice > sorted {
		return dice
	}
	return sorted
}

// diceCoefficient computes 2|A∩B| / (|A|+|B|) over token sets.
func diceCoefficient(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[string]bool, len(a))
	for _, t := range a {
		set[t] = true
	}
	common := 0
	for _, t := range b {
		if set[t] {
			common++
		}
	}
	return 2 * float64(common) / float64(len(a)+len(b))
}

// imageOverlap returns |intersection| / |smaller set| for two image URL
// lists. Order does not matter; duplicates are ignored.
func imageOverlap(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	setA := make(map[string]bool, len(a))
	for _, u := range a {
		setA[NormalizeURL(u)] = true
	}
	setB := make(map[string]bool, len(b))
	for _, u := range b {
		setB[NormalizeURL(u)] = true
	}
	common := 0
	for u := range setB {
		if setA[u] {
			common++
		}
	}
	smaller := len(setA)
	if len(setB) < smaller {
		smaller = len(setB)
	}
	if smaller == 0 {
		return 0
	}
	return float64(common) / float64(smaller)
}
