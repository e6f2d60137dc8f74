package summary

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-visa-interviewer/internal/domain"
)

func answered(answer string, score float64, cat domain.Category) Record {
	return Record{
		Entry:    domain.ConversationEntry{Question: "q", Answer: answer},
		Score:    domain.AnswerScore{ContentScore: score},
		Category: cat,
	}
}

func TestSummarizeVagueFinancials(t *testing.T) {
	s := Summarize(answered("We can afford it, my family will handle everything once I get the visa.", 40, domain.CategoryFinancial))
	assert.Contains(t, s.RedFlags, "vague_financials")

	// A concrete figure defuses the vagueness pattern.
	s = Summarize(answered("We can afford it, my family has set aside $60,000 for the program.", 70, domain.CategoryFinancial))
	assert.NotContains(t, s.RedFlags, "vague_financials")
}

func TestSummarizeAgentDependency(t *testing.T) {
	s := Summarize(answered("My agent selected the university and the agency handled all of my paperwork for me.", 35, domain.CategoryAcademic))
	assert.Contains(t, s.RedFlags, "agent_dependency")
}

func TestSummarizeUnconfirmedAccommodation(t *testing.T) {
	s := Summarize(answered("I am not sure where I will live, I still have to figure out housing after I arrive there.", 30, domain.CategoryPersonal))
	assert.Contains(t, s.RedFlags, "unconfirmed_accommodation")
}

func TestSummarizeVeryBrief(t *testing.T) {
	s := Summarize(answered("Yes, definitely.", 20, domain.CategoryIntent))
	assert.Contains(t, s.RedFlags, "very_brief")
	assert.Equal(t, 2, s.WordCount)
}

func TestSummarizeCarriesScoreFlags(t *testing.T) {
	rec := answered("A perfectly ordinary answer with more than ten words in it overall.", 55, domain.CategoryIntent)
	rec.Score.RedFlags = []string{"financial_contradiction_major"}
	s := Summarize(rec)
	assert.Equal(t, []string{"financial_contradiction_major"}, s.RedFlags)
}

func TestExcerptTruncation(t *testing.T) {
	long := strings.Repeat("a", 150)
	s := Summarize(answered(long, 50, domain.CategoryPersonal))
	assert.Len(t, s.Excerpt, excerptLen)

	s = Summarize(answered("  short  ", 50, domain.CategoryPersonal))
	assert.Equal(t, "short", s.Excerpt)
}

func TestExcerptKeepsRuneBoundary(t *testing.T) {
	// The 100th byte lands mid-rune; the cut must back up, not split it.
	long := "a" + strings.Repeat("é", 99)
	s := Summarize(answered(long, 50, domain.CategoryPersonal))
	assert.True(t, utf8.ValidString(s.Excerpt))
	assert.Equal(t, excerptLen-1, len(s.Excerpt))
	assert.True(t, strings.HasSuffix(s.Excerpt, "é"))
}

func TestBuildSummary(t *testing.T) {
	records := []Record{
		answered("My father will sponsor me with $45,000 per year from his engineering salary.", 80, domain.CategoryFinancial),
		answered("We can afford it, my family will handle everything.", 40, domain.CategoryFinancial),
		answered("I will return home to join the family business in Pune.", 60, domain.CategoryIntent),
	}

	prompt := BuildSummary(domain.RouteF1, domain.CandidateProfile{Name: "Asha", Country: "India"}, records, "openai/gpt-4o-mini")

	assert.Contains(t, prompt.User, "Asha from India (f1 route). 3 answers.")
	assert.Contains(t, prompt.User, "Q1: 80/100")
	assert.Contains(t, prompt.User, "Q2: 40/100")
	assert.Contains(t, prompt.User, "vague_financials")
	// Average of 80 and 40 for the financial category.
	assert.Contains(t, prompt.User, "financial 60")
	assert.Contains(t, prompt.User, "intent 60")
	assert.Contains(t, prompt.User, `"decision"`)
	assert.Greater(t, prompt.TokenEstimate, 0)
}

func TestBuildSummaryDedupesFlags(t *testing.T) {
	records := []Record{
		answered("We can afford it and my family will handle the rest of it.", 40, domain.CategoryFinancial),
		answered("They will manage whatever comes up during my stay over there.", 40, domain.CategoryFinancial),
	}

	prompt := BuildSummary(domain.RouteF1, domain.CandidateProfile{Name: "A", Country: "B"}, records, "openai/gpt-4o-mini")

	require.Equal(t, 1, strings.Count(prompt.User, "Red flags:"))
	line := prompt.User[strings.Index(prompt.User, "Red flags:"):]
	line = line[:strings.Index(line, "\n")]
	assert.Equal(t, 1, strings.Count(line, "vague_financials"))
}

func TestSubScores(t *testing.T) {
	assert.Equal(t, "no rubric", subScores(nil))
	out := subScores(domain.RubricScores{"communication": 70, "consistency": 60})
	assert.Equal(t, "comm 70, cons 60", out)
}
