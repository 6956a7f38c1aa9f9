package grading

import (
	"strings"
	"unicode/utf8"
)

const (
	DefaultFuzzyThreshold   = 0.70
	DefaultKeywordThreshold = 0.50
	// keywords are reference tokens strictly longer than this
	DefaultMinKeywordLength = 3
)

// Matcher decides whether a free-text answer is close enough to a reference.
type Matcher struct {
	FuzzyThreshold   float64
	KeywordThreshold float64
	MinKeywordLength int
}

// DefaultMatcher returns a Matcher with the stock thresholds.
func DefaultMatcher() Matcher {
	return Matcher{
		FuzzyThreshold:   DefaultFuzzyThreshold,
		KeywordThreshold: DefaultKeywordThreshold,
		MinKeywordLength: DefaultMinKeywordLength,
	}
}

// IsTextuallyCorrect applies exact, keyword-overlap and edit-distance matching
// in that order and returns true on the first rule that matches.
func (m Matcher) IsTextuallyCorrect(given, reference string) bool {
	ua := Normalize(given)
	ca := Normalize(reference)
	if ua == "" || ca == "" {
		return false
	}

	if ua == ca {
		return true
	}

	if m.keywordMatch(ua, ca) {
		return true
	}

	return Similarity(ua, ca) >= m.FuzzyThreshold
}

func (m Matcher) keywordMatch(given, reference string) bool {
	var keywords []string
	for _, token := range strings.Fields(reference) {
		if utf8.RuneCountInString(token) > m.MinKeywordLength {
			keywords = append(keywords, token)
		}
	}
	if len(keywords) == 0 {
		return false
	}

	matched := 0
	for _, kw := range keywords {
		if strings.Contains(given, kw) {
			matched++
		}
	}
	return float64(matched)/float64(len(keywords)) >= m.KeywordThreshold
}

// Similarity returns 1 - levenshtein(a, b) / max(len(a), len(b)) over runes.
func Similarity(a, b string) float64 {
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	longest := la
	if lb > longest {
		longest = lb
	}
	if longest == 0 {
		return 1
	}
	return 1 - float64(Levenshtein(a, b))/float64(longest)
}

// Levenshtein computes the edit distance between a and b with unit costs.
func Levenshtein(a, b string) int {
	ar, br := []rune(a), []rune(b)
	if len(ar) == 0 {
		return len(br)
	}
	if len(br) == 0 {
		return len(ar)
	}

	row := make([]int, len(br)+1)
	for j := range row {
		row[j] = j
	}
	for i := 1; i <= len(ar); i++ {
		prev := row[0]
		row[0] = i
		for j := 1; j <= len(br); j++ {
			cost := 1
			if ar[i-1] == br[j-1] {
				cost = 0
			}
			next := min(row[j]+1, row[j-1]+1, prev+cost)
			prev = row[j]
			row[j] = next
		}
	}
	return row[len(br)]
}
