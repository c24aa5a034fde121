package reconcile

import (
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
)

type NameMatch int

const (
	NameMatchNone NameMatch = iota
	NameMatchPartial
	NameMatchExact
)

// NameMatcher compares a controller client name with a delivery's client name.
// It only grades the match; the scorer owns the weights.
type NameMatcher interface {
	MatchName(a, b string) NameMatch
}

// NormalizeName lowercases and drops every non-alphanumeric rune.
func NormalizeName(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ContainmentMatcher: equal normalized names are exact, one containing the other is partial.
type ContainmentMatcher struct{}

func (ContainmentMatcher) MatchName(a, b string) NameMatch {
	na, nb := NormalizeName(a), NormalizeName(b)
	if na == "" || nb == "" {
		return NameMatchNone
	}
	if na == nb {
		return NameMatchExact
	}
	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		return NameMatchPartial
	}
	return NameMatchNone
}

// EditDistanceMatcher extends containment with a typo tolerance: names whose
// edit distance is at most MaxDistanceRatio of the longer name are partial.
type EditDistanceMatcher struct {
	MaxDistanceRatio float64
}

func NewEditDistanceMatcher() EditDistanceMatcher {
	return EditDistanceMatcher{MaxDistanceRatio: 0.2}
}

func (m EditDistanceMatcher) MatchName(a, b string) NameMatch {
	if match := (ContainmentMatcher{}).MatchName(a, b); match != NameMatchNone {
		return match
	}
	na, nb := NormalizeName(a), NormalizeName(b)
	if na == "" || nb == "" {
		return NameMatchNone
	}
	longest := max(len([]rune(na)), len([]rune(nb)))
	dist := levenshtein.ComputeDistance(na, nb)
	if float64(dist) <= m.MaxDistanceRatio*float64(longest) {
		return NameMatchPartial
	}
	return NameMatchNone
}

// NewNameMatcher resolves the configured matcher name; unknown names get containment.
func NewNameMatcher(name string) NameMatcher {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "levenshtein":
		return NewEditDistanceMatcher()
	}
	return ContainmentMatcher{}
}
