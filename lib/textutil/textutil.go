package textutil

import (
	"regexp"
	"strings"

	"github.com/antzucaro/matchr"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

// NormalizeName lowercases name and strips all whitespace.
func NormalizeName(name string) string {
	name = strings.ToLower(name)
	name = strings.TrimSpace(name)
	name = whitespaceRegex.ReplaceAllString(name, "")
	return name
}

// CollapseSpace trims s and collapses whitespace runs into one space.
func CollapseSpace(s string) string {
	return whitespaceRegex.ReplaceAllString(strings.TrimSpace(s), " ")
}

// FirstName returns the first whitespace separated token of a display name.
func FirstName(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func MatchName(name string, matchers []string) bool {
	name = NormalizeName(name)
	for _, m := range matchers {
		if strings.Contains(name, NormalizeName(m)) {
			return true
		}
	}
	return false
}

// minimum Jaro-Winkler similarity for two names to be considered the same person
const similarityThreshold = 0.85

// Similar reports whether a and b likely name the same person, either by
// one containing the other or by fuzzy similarity.
func Similar(a, b string) bool {
	na := NormalizeName(a)
	nb := NormalizeName(b)
	if na == "" || nb == "" {
		return false
	}
	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		return true
	}
	return matchr.JaroWinkler(na, nb, false) >= similarityThreshold
}

// BestMatch returns the index of the candidate most similar to name, or -1
// when none passes the similarity threshold.
func BestMatch(name string, candidates []string) int {
	target := NormalizeName(name)
	if target == "" {
		return -1
	}

	best := -1
	bestScore := 0.0
	for i, c := range candidates {
		normalized := NormalizeName(c)
		if normalized == "" {
			continue
		}
		score := matchr.JaroWinkler(target, normalized, false)
		if strings.Contains(normalized, target) {
			score = 1
		}
		if score > bestScore {
			best = i
			bestScore = score
		}
	}
	if bestScore < similarityThreshold {
		return -1
	}
	return best
}
