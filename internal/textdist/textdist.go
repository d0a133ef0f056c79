// Package textdist supplies the "did you mean" suggestions attached
// to validation issues about unknown sites and plots.
package textdist

import "strings"

// Levenshtein computes the case-insensitive edit distance between a
// and b.
func Levenshtein(a, b string) int {
	a = strings.ToLower(a)
	b = strings.ToLower(b)

	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	row := make([]int, len(b)+1)
	for j := range row {
		row[j] = j
	}

	for i := 1; i <= len(a); i++ {
		prevDiag := row[0]
		row[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			above := row[j]
			min := row[j] + 1 // deletion
			if ins := row[j-1] + 1; ins < min {
				min = ins
			}
			if sub := prevDiag + cost; sub < min {
				min = sub
			}
			row[j] = min
			prevDiag = above
		}
	}
	return row[len(b)]
}

// Nearest returns the candidate closest to target by edit distance,
// and whether any candidate came within maxDistance. Ties favor the
// first candidate seen.
func Nearest(target string, candidates []string, maxDistance int) (string, bool) {
	best := ""
	bestDist := maxDistance + 1
	for _, c := range candidates {
		d := Levenshtein(target, c)
		if d < bestDist {
			bestDist = d
			best = c
		}
	}
	return best, bestDist <= maxDistance
}
