package app

import (
	"strings"

	"github.com/dkeye/Tandem/internal/domain"
)

// IsCompatible decides whether two waiting users may be paired. A side with
// no declared preferences adds no checks of its own, but the other side's
// declared checks still apply to it. Desired gender is not evaluated.
func IsCompatible(a, b domain.WaitingEntry) bool {
	if !a.Preferences.Declared() && !b.Preferences.Declared() {
		return true
	}
	if !ageAccepts(a.Preferences, b.Profile) || !ageAccepts(b.Preferences, a.Profile) {
		return false
	}
	return interestsOverlap(interestsOf(a.Preferences), interestsOf(b.Preferences))
}

func ageAccepts(p *domain.Preferences, other domain.Profile) bool {
	if p == nil || p.AgeRange == nil || other.Age == nil {
		return true
	}
	return p.AgeRange.Contains(*other.Age)
}

func interestsOf(p *domain.Preferences) []string {
	if p == nil {
		return nil
	}
	return p.Interests
}

// interestsOverlap is true when either list is empty.
func interestsOverlap(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(a))
	for _, s := range a {
		set[strings.ToLower(strings.TrimSpace(s))] = struct{}{}
	}
	for _, s := range b {
		if _, ok := set[strings.ToLower(strings.TrimSpace(s))]; ok {
			return true
		}
	}
	return false
}
