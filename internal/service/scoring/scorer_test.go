package scoring

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-visa-interviewer/internal/domain"
	"github.com/fairyhunter13/ai-visa-interviewer/internal/service/factmemory"
)

type stubAI struct {
	resp       string
	err        error
	calls      int
	lastSystem string
	lastUser   string
}

func (s *stubAI) ChatJSON(_ context.Context, systemPrompt, userPrompt string, _ int) (string, error) {
	s.calls++
	s.lastSystem = systemPrompt
	s.lastUser = userPrompt
	return s.resp, s.err
}

var scoringQuestion = domain.Question{
	ID:         "F1_FIN_001",
	Category:   domain.CategoryFinancial,
	Difficulty: domain.DifficultyMedium,
	Text:       "Who is paying for your education, and what is the total cost?",
}

func providerJSON(t *testing.T, core, domainScore, content float64) string {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"rubric":        fullRubric(core, domainScore),
		"content_score": content,
		"summary":       "ok",
	})
	require.NoError(t, err)
	return string(raw)
}

func TestScoreAnswerNilProviderUsesHeuristic(t *testing.T) {
	s := New(nil, time.Second)
	score := s.ScoreAnswer(context.Background(), scoringQuestion,
		"My father is paying $45,000 per year from his construction business.",
		Context{Route: domain.RouteF1})

	assert.True(t, score.Fallback)
	require.NotEmpty(t, score.RedFlags)
	assert.Contains(t, score.RedFlags[0], "heuristic_fallback: no provider configured")
}

func TestScoreAnswerProviderErrorUsesHeuristic(t *testing.T) {
	ai := &stubAI{err: errors.New("rate limited")}
	s := New(ai, time.Second)

	score := s.ScoreAnswer(context.Background(), scoringQuestion,
		"My father will pay around $45,000 each year.",
		Context{Route: domain.RouteF1})

	assert.True(t, score.Fallback)
	assert.Equal(t, 1, ai.calls, "exactly one attempt, no retries")
	require.NotEmpty(t, score.RedFlags)
	assert.Contains(t, score.RedFlags[0], "provider error")
}

func TestScoreAnswerMalformedJSONUsesHeuristic(t *testing.T) {
	ai := &stubAI{resp: "I would give this answer a solid B+"}
	s := New(ai, time.Second)

	score := s.ScoreAnswer(context.Background(), scoringQuestion, "Some answer.", Context{Route: domain.RouteF1})

	assert.True(t, score.Fallback)
	require.NotEmpty(t, score.RedFlags)
	assert.Contains(t, score.RedFlags[0], "malformed provider JSON")
}

func TestScoreAnswerFullRubricRunsValidation(t *testing.T) {
	ai := &stubAI{resp: providerJSON(t, 70, 70, 72)}
	s := New(ai, time.Second)

	score := s.ScoreAnswer(context.Background(), scoringQuestion,
		"My father will pay the full $45,000 annual cost from his salary as a civil engineer, and we have savings of $80,000.",
		Context{Route: domain.RouteF1})

	require.NotNil(t, score.Validation)
	assert.True(t, score.Validation.IsValid)
	assert.Equal(t, float64(72), score.ContentScore)
	assert.False(t, score.Fallback)
}

func TestScoreAnswerCorrectsDivergentScore(t *testing.T) {
	ai := &stubAI{resp: providerJSON(t, 80, 80, 10)}
	s := New(ai, time.Second)

	score := s.ScoreAnswer(context.Background(), scoringQuestion,
		"My father will pay the full $45,000 annual cost from his salary as a civil engineer.",
		Context{Route: domain.RouteF1})

	require.NotNil(t, score.Validation)
	assert.False(t, score.Validation.IsValid)
	assert.Equal(t, float64(80), score.ContentScore)
}

func TestScoreAnswerClampsAndSkipsPartialRubric(t *testing.T) {
	ai := &stubAI{resp: `{"rubric": {"communication": 150}, "content_score": 140, "summary": "partial"}`}
	s := New(ai, time.Second)

	score := s.ScoreAnswer(context.Background(), scoringQuestion, "Short answer.", Context{Route: domain.RouteF1})

	assert.Nil(t, score.Validation, "validation needs the full rubric")
	assert.Equal(t, float64(100), score.ContentScore)
	assert.Equal(t, float64(100), score.Rubric[domain.DimCommunication])
}

func TestBuildPromptIncludesMemoryAndContradiction(t *testing.T) {
	s := New(nil, time.Second)
	prompt := s.buildPrompt(scoringQuestion, "We will manage the funds.", Context{
		Route: domain.RouteF1,
		Profile: domain.CandidateProfile{
			Name: "Asha", Country: "India",
		},
		Memory: domain.FactMemory{
			TotalCost:         40000,
			Sponsor:           "father",
			SponsorOccupation: "civil engineer",
		},
		Contradiction: factmemory.ContradictionMajor,
	})

	assert.Contains(t, prompt, "Previously stated total cost: $40000.")
	assert.Contains(t, prompt, "Previously stated sponsor: father (civil engineer).")
	assert.Contains(t, prompt, "major contradiction")
}

func TestSystemPromptListsRouteDimensions(t *testing.T) {
	s := New(nil, time.Second)

	f1 := s.systemPrompt(domain.RouteF1)
	assert.Contains(t, f1, `"course_fit": 0`)
	assert.Contains(t, f1, `"communication": 0`)

	b1b2 := s.systemPrompt(domain.RouteB1B2)
	assert.Contains(t, b1b2, `"ties_strength": 0`)
	assert.NotContains(t, b1b2, "course_fit")
}
