package edit

import (
	"errors"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

const (
	// SimilarityThreshold is the minimum similarity for an approximate match
	// to be applied instead of reported as a failure.
	SimilarityThreshold = 0.75

	// MaxFuzzyAttempts caps fuzzy matching attempts per path for the process
	// lifetime. Exceeding it is an execution error rather than a silent
	// discard of the replacement content.
	MaxFuzzyAttempts = 5
)

// ErrNoMatch is returned when neither an exact nor an acceptable approximate
// occurrence of the old text exists in the content.
var ErrNoMatch = errors.New("no acceptable match for old text")

// FuzzyReplace replaces one occurrence of oldText in content, tolerating
// whitespace drift and small edits. It returns the rewritten content and the
// similarity of the applied match (1.0 for an exact hit). Matching works on
// line-aligned windows of the same height as oldText, scored with
// diff-match-patch Levenshtein distance; the best window wins if it reaches
// SimilarityThreshold.
func FuzzyReplace(content, oldText, newText string) (string, float64, error) {
	if oldText == "" {
		return "", 0, ErrNoMatch
	}

	if strings.Contains(content, oldText) {
		return strings.Replace(content, oldText, newText, 1), 1.0, nil
	}

	lines := strings.Split(content, "\n")
	oldLines := strings.Split(oldText, "\n")
	height := len(oldLines)
	if len(lines) < height {
		return "", 0, ErrNoMatch
	}

	dmp := diffmatchpatch.New()
	bestIdx := -1
	bestScore := 0.0

	for i := 0; i+height <= len(lines); i++ {
		window := strings.Join(lines[i:i+height], "\n")
		score := Similarity(dmp, window, oldText)
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}

	if bestIdx < 0 || bestScore < SimilarityThreshold {
		return "", bestScore, ErrNoMatch
	}

	rewritten := make([]string, 0, len(lines))
	rewritten = append(rewritten, lines[:bestIdx]...)
	rewritten = append(rewritten, strings.Split(newText, "\n")...)
	rewritten = append(rewritten, lines[bestIdx+height:]...)
	return strings.Join(rewritten, "\n"), bestScore, nil
}

// Similarity scores two strings in [0,1] using normalized Levenshtein
// distance over a character diff.
func Similarity(dmp *diffmatchpatch.DiffMatchPatch, a, b string) float64 {
	if a == b {
		return 1
	}
	longest := len([]rune(a))
	if lb := len([]rune(b)); lb > longest {
		longest = lb
	}
	if longest == 0 {
		return 1
	}
	diffs := dmp.DiffMain(a, b, false)
	lev := dmp.DiffLevenshtein(diffs)
	score := 1 - float64(lev)/float64(longest)
	if score < 0 {
		return 0
	}
	return score
}

// CountOccurrences reports how many times needle occurs exactly in haystack.
func CountOccurrences(haystack, needle string) int {
	if needle == "" {
		return 0
	}
	return strings.Count(haystack, needle)
}
