package matching

import "strings"

// Similarity scores how alike two name strings are, in [0,1]. Implementations
// are swappable so the resolver never depends on a particular algorithm.
type Similarity interface {
	Score(a, b string) float64
}

// ExactSimilarity returns 1 for identical strings and 0 otherwise.
type ExactSimilarity struct{}

func (ExactSimilarity) Score(a, b string) float64 {
	if a == b && a != "" {
		return 1
	}
	return 0
}

// LevenshteinSimilarity scores by normalized edit distance.
type LevenshteinSimilarity struct{}

func (LevenshteinSimilarity) Score(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	return 1 - float64(levenshtein(a, b))/float64(maxLen)
}

// SoundexSimilarity scores 1 for identical strings, 0.8 for strings sharing
// a Soundex code, and 0 otherwise.
type SoundexSimilarity struct{}

func (SoundexSimilarity) Score(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	if soundex(a) == soundex(b) {
		return 0.8
	}
	return 0
}

func levenshtein(s1, s2 string) int {
	if len(s1) == 0 {
		return len(s2)
	}
	if len(s2) == 0 {
		return len(s1)
	}

	prev := make([]int, len(s2)+1)
	curr := make([]int, len(s2)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(s1); i++ {
		curr[0] = i
		for j := 1; j <= len(s2); j++ {
			cost := 1
			if s1[i-1] == s2[j-1] {
				cost = 0
			}
			curr[j] = minOf(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(s2)]
}

var soundexCodes = map[byte]byte{
	'B': '1', 'F': '1', 'P': '1', 'V': '1',
	'C': '2', 'G': '2', 'J': '2', 'K': '2', 'Q': '2', 'S': '2', 'X': '2', 'Z': '2',
	'D': '3', 'T': '3',
	'L': '4',
	'M': '5', 'N': '5',
	'R': '6',
}

func soundex(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return ""
	}
	result := string(s[0])
	prevCode := soundexCodes[s[0]]
	for i := 1; i < len(s) && len(result) < 4; i++ {
		code, ok := soundexCodes[s[i]]
		if !ok {
			prevCode = 0
			continue
		}
		if code != prevCode {
			result += string(code)
			prevCode = code
		}
	}
	for len(result) < 4 {
		result += "0"
	}
	return result
}

func minOf(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
