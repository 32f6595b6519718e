// Package match scores how closely an observed product title matches the one
// the watcher expects, gating auto-purchase against stale or wrong pages.
package match

import "strings"

// Threshold is the fixed similarity floor for an automatic purchase. 0.70
// tolerates unit suffixes and punctuation drift while rejecting a different
// product outright.
const Threshold = 0.70

// Decision records one verification checkpoint. It lives only for the current
// purchase attempt and is never persisted.
type Decision struct {
	Expected   string  `json:"expected_name"`
	Observed   string  `json:"observed_name"`
	Similarity float64 `json:"similarity"`
	Passed     bool    `json:"passed"`
}

// Match case-folds both names and computes a normalized edit similarity in
// [0,1]. Two empty strings are a perfect match by convention; one empty string
// matches nothing.
func Match(expected, observed string) Decision {
	sim := ratio(strings.ToLower(expected), strings.ToLower(observed))
	return Decision{
		Expected:   expected,
		Observed:   observed,
		Similarity: sim,
		Passed:     sim >= Threshold,
	}
}

func ratio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 && len(rb) == 0 {
		return 1.0
	}
	if len(ra) == 0 || len(rb) == 0 {
		return 0.0
	}
	common := lcs(ra, rb)
	return 2.0 * float64(common) / float64(len(ra)+len(rb))
}

// lcs computes the longest-common-subsequence length with two rolling rows.
func lcs(a, b []rune) int {
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)

	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				cur[j] = prev[j-1] + 1
			} else if prev[j] >= cur[j-1] {
				cur[j] = prev[j]
			} else {
				cur[j] = cur[j-1]
			}
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}
