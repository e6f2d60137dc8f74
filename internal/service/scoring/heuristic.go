package scoring

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/fairyhunter13/ai-visa-interviewer/internal/domain"
	"github.com/fairyhunter13/ai-visa-interviewer/pkg/textx"
)

var (
	currencyRe = regexp.MustCompile(`(?i)\$\s*[0-9][0-9,]*|\b[0-9][0-9,]*\s*(dollars|usd|k\b)`)

	vagueMarkers = []string{"maybe", "probably", "i think", "i guess", "not sure", "somehow", "something like"}
)

// HeuristicScore computes a score from surface features of the answer:
// concrete figures, named entities, vague-language markers, and length. It is
// the local stand-in when the scoring provider is unavailable: a best-effort
// signal, deliberately conservative.
func HeuristicScore(question domain.Question, answer string) domain.AnswerScore {
	words := textx.WordCount(answer)

	base := float64(words) * 2
	if base > 60 {
		base = 60
	}
	if words > 0 && base < 10 {
		base = 10
	}

	if currencyRe.MatchString(answer) {
		base += 15
	}
	if properNouns(answer) >= 2 {
		base += 10
	}
	lower := strings.ToLower(answer)
	penalty := 0.0
	for _, m := range vagueMarkers {
		if strings.Contains(lower, m) {
			penalty += 5
		}
	}
	if penalty > 15 {
		penalty = 15
	}
	score := clamp(base-penalty, 0, 100)

	rubric := make(domain.RubricScores, 4)
	for _, d := range domain.CoreDimensions {
		rubric[d] = score
	}
	return domain.AnswerScore{
		QuestionID:   question.ID,
		Rubric:       rubric,
		ContentScore: score,
		Summary:      "heuristic score from surface features",
		Fallback:     true,
	}
}

// properNouns counts capitalized words that do not start a sentence, a
// cheap proxy for named entities (universities, employers, places).
func properNouns(text string) int {
	count := 0
	prevEnd := true
	for _, f := range strings.Fields(text) {
		r := []rune(f)[0]
		if unicode.IsUpper(r) && !prevEnd {
			count++
		}
		prevEnd = strings.HasSuffix(f, ".") || strings.HasSuffix(f, "!") || strings.HasSuffix(f, "?")
	}
	return count
}

// financialKeywords and structural scoring support the session-level
// fallback signal computed at interview end.
var structuralKeywords = []string{
	"university", "tuition", "sponsor", "scholarship", "return", "career",
	"cost", "program", "family", "research", "loan", "job",
}

// SessionStructuralScore is a word-count/keyword-density heuristic over the
// whole conversation, independent of the LLM rubric, so the system degrades
// gracefully if the scoring provider is fully unavailable.
func SessionStructuralScore(history []domain.ConversationEntry) float64 {
	totalWords := 0
	keywordHits := 0
	answered := 0
	for _, e := range history {
		if !e.Answered() {
			continue
		}
		answered++
		totalWords += textx.WordCount(e.Answer)
		lower := strings.ToLower(e.Answer)
		for _, kw := range structuralKeywords {
			if strings.Contains(lower, kw) {
				keywordHits++
			}
		}
	}
	if answered == 0 {
		return 0
	}

	avgWords := float64(totalWords) / float64(answered)
	lengthScore := avgWords * 1.5
	if lengthScore > 60 {
		lengthScore = 60
	}
	density := float64(keywordHits) / float64(answered) * 10
	if density > 40 {
		density = 40
	}
	return clamp(lengthScore+density, 0, 100)
}
