package verify

import (
	"strings"
	"unicode"
)

// Normalize lowercases text, drops punctuation, and splits it into words.
func Normalize(text string) []string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			return unicode.ToLower(r)
		case r == '\'':
			return -1
		default:
			return ' '
		}
	}, text)
	return strings.Fields(cleaned)
}

// Score compares the prompt text with what was heard, as 1 minus the
// word-level edit distance over the longer word count. Two empty texts
// score 1.
func Score(expected, heard string) float64 {
	a, b := Normalize(expected), Normalize(heard)
	longest := max(len(a), len(b))
	if longest == 0 {
		return 1
	}
	return 1 - float64(wordDistance(a, b))/float64(longest)
}

func wordDistance(a, b []string) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
