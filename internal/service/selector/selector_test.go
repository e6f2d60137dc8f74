package selector

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-visa-interviewer/internal/domain"
	"github.com/fairyhunter13/ai-visa-interviewer/internal/service/factmemory"
	"github.com/fairyhunter13/ai-visa-interviewer/internal/service/questionbank"
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

func loadBank(t *testing.T) *questionbank.Bank {
	t.Helper()
	bank, err := questionbank.NewLoader("").Load(context.Background())
	require.NoError(t, err)
	return bank
}

func f1Mode() domain.ModeConfig {
	return domain.ModeConfig{
		TotalQuestions: 8,
		CategoryMin: map[domain.Category]int{
			domain.CategoryFinancial: 2,
			domain.CategoryAcademic:  1,
			domain.CategoryIntent:    1,
		},
		CategoryMax:           map[domain.Category]int{domain.CategoryPersonal: 2},
		ProgressiveDifficulty: true,
	}
}

func TestSelectNextRulesOpeningQuestion(t *testing.T) {
	bank := loadBank(t)
	s := New(nil, 0)

	sel := s.SelectNext(context.Background(), bank, Context{
		SessionID: "sess-open",
		Route:     domain.RouteF1,
		Mode:      f1Mode(),
		Step:      1,
	})

	assert.Equal(t, "rules", sel.Source)
	assert.Equal(t, domain.QuestionTypeBank, sel.Type)
	assert.NotEmpty(t, sel.QuestionID)
	assert.Equal(t, domain.DifficultyEasy, sel.Question.Difficulty,
		"the opening third of a progressive interview is easy")
}

func TestSelectNextFollowUpOnVagueSponsorAnswer(t *testing.T) {
	bank := loadBank(t)
	s := New(nil, 0)

	sel := s.SelectNext(context.Background(), bank, Context{
		SessionID: "sess-followup",
		Route:     domain.RouteF1,
		Mode:      f1Mode(),
		Step:      2,
		History: []domain.ConversationEntry{{
			Question: "Who is paying for your education?",
			Answer:   "My father will sponsor my studies and pay for everything.",
		}},
	})

	assert.Equal(t, "followup", sel.Source)
	assert.Equal(t, domain.QuestionTypeFollowUp, sel.Type)
	assert.Equal(t, domain.CategoryFinancial, sel.Question.Category)
	assert.True(t, strings.HasPrefix(sel.QuestionID, "FOLLOWUP_F1_2_"), sel.QuestionID)
	assert.Equal(t, "sponsor_no_amount", sel.Reasoning)
}

func TestSelectNextNoFollowUpWhenAmountGiven(t *testing.T) {
	bank := loadBank(t)
	s := New(nil, 0)

	sel := s.SelectNext(context.Background(), bank, Context{
		SessionID: "sess-precise",
		Route:     domain.RouteF1,
		Mode:      f1Mode(),
		Step:      2,
		History: []domain.ConversationEntry{{
			Question: "Who is paying for your education?",
			Answer:   "My father will sponsor me with $40,000 per year from his business income.",
		}},
	})

	assert.NotEqual(t, "followup", sel.Source)
}

func TestSelectNextDeclaredTriggerFollowUp(t *testing.T) {
	bank := loadBank(t)
	s := New(nil, 0)
	costQ, ok := bank.ByID("F1_FIN_001")
	require.True(t, ok)
	require.Contains(t, costQ.FollowUpTriggers, "loan")

	sel := s.SelectNext(context.Background(), bank, Context{
		SessionID:    "sess-declared",
		Route:        domain.RouteF1,
		Mode:         f1Mode(),
		Step:         2,
		LastQuestion: costQ,
		History: []domain.ConversationEntry{{
			Question: costQ.Text,
			Answer:   "I will take an education loan from my bank at home.",
		}},
	})

	assert.Equal(t, "followup", sel.Source)
	assert.Equal(t, "declared_trigger_loan", sel.Reasoning)
	assert.Equal(t, domain.CategoryFinancial, sel.Question.Category)
	assert.Contains(t, sel.Question.Text, "loan")
}

func TestSelectNextDeclaredTriggerNeedsMissingFigure(t *testing.T) {
	bank := loadBank(t)
	s := New(nil, 0)
	costQ, ok := bank.ByID("F1_FIN_001")
	require.True(t, ok)

	sel := s.SelectNext(context.Background(), bank, Context{
		SessionID:    "sess-declared-amount",
		Route:        domain.RouteF1,
		Mode:         f1Mode(),
		Step:         2,
		LastQuestion: costQ,
		History: []domain.ConversationEntry{{
			Question: costQ.Text,
			Answer:   "I will take a $20,000 education loan from my bank at home.",
		}},
	})

	assert.NotEqual(t, "followup", sel.Source)
}

func TestSelectNextMemoryGateVagueAnswer(t *testing.T) {
	bank := loadBank(t)
	s := New(nil, 0)

	sel := s.SelectNext(context.Background(), bank, Context{
		SessionID:    "sess-gate-vague",
		Route:        domain.RouteF1,
		Mode:         f1Mode(),
		Step:         3,
		FollowUpHint: factmemory.ReasonTooVague,
		LastQuestion: domain.Question{ID: "F1_PER_001", Category: domain.CategoryPersonal},
		History: []domain.ConversationEntry{{
			Question: "Tell me about yourself.",
			Answer:   "I like it.",
		}},
	})

	assert.Equal(t, "followup", sel.Source)
	assert.Equal(t, factmemory.ReasonTooVague, sel.Reasoning)
	assert.Equal(t, domain.CategoryPersonal, sel.Question.Category)
}

func TestSelectNextMemoryGateContradiction(t *testing.T) {
	bank := loadBank(t)
	s := New(nil, 0)

	sel := s.SelectNext(context.Background(), bank, Context{
		SessionID:    "sess-gate-contra",
		Route:        domain.RouteF1,
		Mode:         f1Mode(),
		Step:         4,
		FollowUpHint: factmemory.ReasonContradiction,
		History: []domain.ConversationEntry{{
			Question: "What is the total cost of your program?",
			Answer:   "The tuition is around $60,000 in total I believe.",
		}},
	})

	assert.Equal(t, "followup", sel.Source)
	assert.Equal(t, factmemory.ReasonContradiction, sel.Reasoning)
	assert.Equal(t, domain.CategoryFinancial, sel.Question.Category)
}

func TestSelectNextLLMChoice(t *testing.T) {
	bank := loadBank(t)
	ai := &stubAI{resp: `{"question_id": "F1_STU_001", "reasoning": "natural opener"}`}
	s := New(ai, time.Second)

	sel := s.SelectNext(context.Background(), bank, Context{
		SessionID: "sess-llm",
		Route:     domain.RouteF1,
		Mode:      f1Mode(),
		Step:      1,
	})

	assert.Equal(t, "llm", sel.Source)
	assert.Equal(t, "F1_STU_001", sel.QuestionID)
	assert.Equal(t, "natural opener", sel.Reasoning)
	assert.Equal(t, 1, ai.calls)
	assert.Contains(t, ai.lastUser, "id=F1_STU_001")
}

func TestSelectNextRejectsIDOutsidePool(t *testing.T) {
	bank := loadBank(t)
	ai := &stubAI{resp: `{"question_id": "NO_SUCH_ID", "reasoning": "made up"}`}
	s := New(ai, time.Second)

	sel := s.SelectNext(context.Background(), bank, Context{
		SessionID: "sess-rogue",
		Route:     domain.RouteF1,
		Mode:      f1Mode(),
		Step:      1,
	})

	assert.Equal(t, "rules", sel.Source, "an unverifiable ID falls back to the deterministic path")
	assert.Equal(t, 1, ai.calls)
}

func TestSelectNextLLMErrorFallsBack(t *testing.T) {
	bank := loadBank(t)
	ai := &stubAI{err: errors.New("upstream exploded")}
	s := New(ai, time.Second)

	sel := s.SelectNext(context.Background(), bank, Context{
		SessionID: "sess-flaky",
		Route:     domain.RouteF1,
		Mode:      f1Mode(),
		Step:      1,
	})

	assert.Equal(t, "rules", sel.Source)
	assert.NotEmpty(t, sel.QuestionID)
}

func TestSelectNextMalformedJSONFallsBack(t *testing.T) {
	bank := loadBank(t)
	ai := &stubAI{resp: "the best question is probably the first one"}
	s := New(ai, time.Second)

	sel := s.SelectNext(context.Background(), bank, Context{
		SessionID: "sess-prose",
		Route:     domain.RouteF1,
		Mode:      f1Mode(),
		Step:      1,
	})

	assert.Equal(t, "rules", sel.Source)
}

func TestSelectNextClosingWhenExhausted(t *testing.T) {
	bank := loadBank(t)
	s := New(nil, 0)

	asked := make([]string, 0, bank.Len())
	for _, q := range bank.ForRoute(domain.RouteF1) {
		asked = append(asked, q.ID)
	}

	sel := s.SelectNext(context.Background(), bank, Context{
		SessionID:        "sess-exhausted",
		Route:            domain.RouteF1,
		Mode:             f1Mode(),
		Step:             9,
		AskedQuestionIDs: asked,
	})

	assert.Equal(t, "closing", sel.Source)
	assert.Equal(t, domain.QuestionTypeClosing, sel.Type)
	assert.Equal(t, "CLOSING_F1", sel.QuestionID)
	assert.Equal(t, closingQuestionText, sel.Question.Text)
}

func TestFilterPoolExcludesRecentClusters(t *testing.T) {
	bank := loadBank(t)
	s := New(nil, 0)

	target, ok := bank.ByID("F1_UNI_001")
	require.True(t, ok)
	cluster := questionbank.Classify(target.Text)
	require.NotEmpty(t, cluster)

	pool := s.filterPool(bank, Context{
		SessionID:     "sess-window",
		Route:         domain.RouteF1,
		AskedClusters: []string{cluster},
		Step:          3,
	})

	for _, q := range pool {
		assert.NotEqual(t, target.ID, q.ID, "recently covered topic must sit out the window")
	}
}

func TestFilterPoolClusterWindowSlides(t *testing.T) {
	bank := loadBank(t)
	s := New(nil, 0)

	target, ok := bank.ByID("F1_UNI_001")
	require.True(t, ok)
	cluster := questionbank.Classify(target.Text)
	require.NotEmpty(t, cluster)

	// The target's cluster was covered four questions ago; three newer
	// clusters have pushed it out of the window.
	pool := s.filterPool(bank, Context{
		SessionID:     "sess-slide",
		Route:         domain.RouteF1,
		AskedClusters: []string{cluster, "finance_sponsor", "english_ability", "return_intent"},
		Step:          5,
	})

	found := false
	for _, q := range pool {
		if q.ID == target.ID {
			found = true
		}
	}
	assert.True(t, found)
}

func TestFilterPoolRequiresContext(t *testing.T) {
	bank := loadBank(t)
	s := New(nil, 0)

	lowGPAQ, ok := bank.ByID("F1_ACA_002")
	require.True(t, ok)
	require.Equal(t, "low_gpa", lowGPAQ.RequiresContext)

	inPool := func(pool []domain.Question, id string) bool {
		for _, q := range pool {
			if q.ID == id {
				return true
			}
		}
		return false
	}

	withoutFlag := s.filterPool(bank, Context{
		SessionID: "sess-ctx",
		Route:     domain.RouteF1,
		Profile:   domain.CandidateProfile{GPA: 3.9},
		Step:      4,
	})
	assert.False(t, inPool(withoutFlag, lowGPAQ.ID))

	withFlag := s.filterPool(bank, Context{
		SessionID: "sess-ctx",
		Route:     domain.RouteF1,
		Profile:   domain.CandidateProfile{GPA: 2.4},
		Step:      4,
	})
	assert.True(t, inPool(withFlag, lowGPAQ.ID))
}

func TestFilterPoolCategoryMax(t *testing.T) {
	bank := loadBank(t)
	s := New(nil, 0)

	pool := s.filterPool(bank, Context{
		SessionID: "sess-cap",
		Route:     domain.RouteF1,
		Mode: domain.ModeConfig{
			CategoryMax: map[domain.Category]int{domain.CategoryPersonal: 2},
		},
		CategoryCoverage: map[domain.Category]int{domain.CategoryPersonal: 2},
		Step:             5,
	})

	for _, q := range pool {
		assert.NotEqual(t, domain.CategoryPersonal, q.Category)
	}
}

func TestTargetDifficulty(t *testing.T) {
	s := New(nil, 0)
	mode := domain.ModeConfig{TotalQuestions: 9, ProgressiveDifficulty: true}

	assert.Equal(t, domain.DifficultyEasy, s.targetDifficulty(Context{Mode: mode, Step: 1}))
	assert.Equal(t, domain.DifficultyEasy, s.targetDifficulty(Context{Mode: mode, Step: 3}))
	assert.Equal(t, domain.DifficultyMedium, s.targetDifficulty(Context{Mode: mode, Step: 5}))
	assert.Equal(t, domain.DifficultyHard, s.targetDifficulty(Context{Mode: mode, Step: 7}))

	assert.Equal(t, domain.DifficultyHard,
		s.targetDifficulty(Context{Mode: mode, Step: 1, TargetDifficulty: domain.DifficultyHard}),
		"explicit session target wins over the schedule")
	assert.Equal(t, domain.DifficultyMedium,
		s.targetDifficulty(Context{Mode: domain.ModeConfig{TargetDifficulty: domain.DifficultyMedium}, Step: 1}))

	assert.Empty(t, s.targetDifficulty(Context{Mode: domain.ModeConfig{TotalQuestions: 9}, Step: 1}),
		"no schedule without progressive difficulty")
}

func TestRecentClusters(t *testing.T) {
	recent := recentClusters([]string{"a", "b", "c", "d", ""}, 3)
	assert.Len(t, recent, 2)
	_, ok := recent["c"]
	assert.True(t, ok)
	_, ok = recent["a"]
	assert.False(t, ok)
}
