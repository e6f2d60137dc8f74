package selector

import (
	"strings"
	"unicode"
)

// stopWords are dropped before token comparison so that framing words do not
// inflate similarity between unrelated questions.
var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "and": {}, "or": {}, "of": {}, "to": {},
	"in": {}, "for": {}, "is": {}, "are": {}, "you": {}, "your": {},
	"do": {}, "did": {}, "will": {}, "what": {}, "why": {}, "how": {},
	"me": {}, "tell": {}, "about": {}, "have": {}, "has": {}, "this": {},
	"that": {}, "with": {}, "at": {}, "on": {}, "be": {}, "it": {},
}

// duplicateThreshold is the Jaccard similarity at or above which two
// questions are considered the same question in different words.
const duplicateThreshold = 0.70

// normalizeQuestion lowercases, strips punctuation, collapses whitespace, and
// drops stop words.
func normalizeQuestion(text string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}
	fields := strings.Fields(b.String())
	out := fields[:0]
	for _, f := range fields {
		if _, skip := stopWords[f]; !skip {
			out = append(out, f)
		}
	}
	return strings.Join(out, " ")
}

func tokenSet(normalized string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, f := range strings.Fields(normalized) {
		set[f] = struct{}{}
	}
	return set
}

// jaccard computes |a∩b| / |a∪b| over token sets.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if _, ok := b[t]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// isDuplicate is the duplicate-safety net, independent of semantic
// clustering: it rejects a candidate whose normalized text equals, or whose
// token Jaccard similarity reaches duplicateThreshold against, any question
// already issued in the session.
func isDuplicate(candidateText string, historyQuestions []string) bool {
	candNorm := normalizeQuestion(candidateText)
	candSet := tokenSet(candNorm)
	for _, h := range historyQuestions {
		hNorm := normalizeQuestion(h)
		if candNorm == hNorm {
			return true
		}
		if jaccard(candSet, tokenSet(hNorm)) >= duplicateThreshold {
			return true
		}
	}
	return false
}
