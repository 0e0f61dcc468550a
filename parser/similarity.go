package parser

import "strings"

// Similarity returns 2*M/T for the two strings compared case-insensitively,
// where M counts characters in recursively found longest common blocks and
// T is the combined length. Identical strings score 1.
func Similarity(a, b string) float64 {
	ra := []rune(strings.ToLower(a))
	rb := []rune(strings.ToLower(b))
	total := len(ra) + len(rb)
	if total == 0 {
		return 1
	}
	return 2 * float64(matching(ra, rb)) / float64(total)
}

func matching(a, b []rune) int {
	i, j, n := longestBlock(a, b)
	if n == 0 {
		return 0
	}
	return n + matching(a[:i], b[:j]) + matching(a[i+n:], b[j+n:])
}

// longestBlock finds the longest common substring, preferring the earliest
// start in a and then in b.
func longestBlock(a, b []rune) (int, int, int) {
	bestI, bestJ, best := 0, 0, 0
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := range a {
		for j := range b {
			if a[i] != b[j] {
				cur[j+1] = 0
				continue
			}
			cur[j+1] = prev[j] + 1
			if cur[j+1] > best {
				best = cur[j+1]
				bestI, bestJ = i-best+1, j-best+1
			}
		}
		prev, cur = cur, prev
	}
	return bestI, bestJ, best
}
