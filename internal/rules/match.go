package rules

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// matcher ranks pose names against a loosely typed or transcribed query.
//
// Candidates whose Double Metaphone codes overlap the query's are accepted at
// the lower phonetic threshold; all others need the fuzzy threshold. Among
// accepted candidates the highest Jaro-Winkler score wins, with phonetic
// candidates preferred over purely fuzzy ones.
type matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

func newMatcher() matcher {
	return matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
}

// best returns the index into names of the closest match, or -1.
func (m matcher) best(query string, names []string) (int, float64) {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return -1, 0
	}
	queryTokens := tokens(query)
	queryCodes := codesForTokens(queryTokens)

	bestIdx, bestScore, bestPhonetic := -1, 0.0, false
	for i, name := range names {
		nameLower := strings.ToLower(strings.TrimSpace(name))
		if nameLower == "" {
			continue
		}
		nameTokens := tokens(nameLower)
		score := bestJWScore(queryTokens, nameTokens, query, nameLower)

		if codesOverlap(queryCodes, codesForTokens(nameTokens)) {
			if score >= m.phoneticThreshold && (!bestPhonetic || score > bestScore) {
				bestIdx, bestScore, bestPhonetic = i, score, true
			}
		} else if !bestPhonetic && score >= m.fuzzyThreshold && score > bestScore {
			bestIdx, bestScore = i, score
		}
	}
	return bestIdx, bestScore
}

// tokens splits on spaces, hyphens and underscores so ids and display names
// tokenise alike.
func tokens(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == '-' || r == '_'
	})
}

// codesForTokens returns the union of all Double Metaphone codes for the
// given tokens. Empty codes are excluded.
func codesForTokens(toks []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(toks)*2)
	for _, t := range toks {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// bestJWScore is the highest Jaro-Winkler similarity over the full strings,
// the space-stripped strings and every token pair.
func bestJWScore(queryTokens, nameTokens []string, queryFull, nameFull string) float64 {
	score := matchr.JaroWinkler(queryFull, nameFull, false)

	if len(queryTokens) > 1 || len(nameTokens) > 1 {
		if s := matchr.JaroWinkler(strings.Join(queryTokens, ""), strings.Join(nameTokens, ""), false); s > score {
			score = s
		}
	}

	for _, qt := range queryTokens {
		for _, nt := range nameTokens {
			if s := matchr.JaroWinkler(qt, nt, false); s > score {
				score = s
			}
		}
	}
	return score
}
