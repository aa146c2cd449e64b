package keys

import (
	"strings"
)

// minCoverage is the fraction of the normalized query that the best common
// substring must cover before a candidate counts as a match.
const minCoverage = 0.6

// Normalize folds a listing title for matching: lowercase, archive extension
// and trailing parenthesised tags (region, revision) removed, whitespace
// collapsed.
func Normalize(title string) string {
	title = strings.ToLower(strings.TrimSpace(title))
	title = strings.TrimSuffix(title, ".zip")
	title = strings.TrimSuffix(title, ".txt")

	for {
		open := strings.LastIndex(title, "(")
		if open < 0 || !strings.HasSuffix(strings.TrimSpace(title), ")") {
			break
		}

		title = strings.TrimSpace(title[:open])
	}

	return strings.Join(strings.Fields(title), " ")
}

// bestMatch picks the candidate whose normalized title shares the longest
// common substring with the normalized query. Ties prefer an exact-length
// normalized match, then the earlier candidate. Returns false when no
// candidate covers enough of the query.
func bestMatch(query string, candidates []string) (int, bool) {
	normQuery := Normalize(query)
	if normQuery == "" {
		return 0, false
	}

	best := -1
	bestScore := 0
	bestExactLen := false

	for i, candidate := range candidates {
		normCand := Normalize(candidate)
		if normCand == "" {
			continue
		}

		score := longestCommonSubstring(normQuery, normCand)
		if float64(score) < minCoverage*float64(len(normQuery)) {
			continue
		}

		exactLen := len(normCand) == len(normQuery)

		if score > bestScore || (score == bestScore && exactLen && !bestExactLen) {
			best = i
			bestScore = score
			bestExactLen = exactLen
		}
	}

	if best < 0 {
		return 0, false
	}

	return best, true
}

func longestCommonSubstring(a, b string) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	longest := 0

	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1] + 1
				if curr[j] > longest {
					longest = curr[j]
				}
			} else {
				curr[j] = 0
			}
		}

		prev, curr = curr, prev
	}

	return longest
}
