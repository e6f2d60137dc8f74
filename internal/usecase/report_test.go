package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-visa-interviewer/internal/adapter/ai"
	"github.com/fairyhunter13/ai-visa-interviewer/internal/domain"
	"github.com/fairyhunter13/ai-visa-interviewer/internal/service/questionbank"
)

type memReports struct {
	mu   sync.Mutex
	byID map[string]domain.SessionReport
}

func newMemReports() *memReports {
	return &memReports{byID: make(map[string]domain.SessionReport)}
}

func (m *memReports) Upsert(_ context.Context, r domain.SessionReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[r.SessionID] = r
	return nil
}

func (m *memReports) GetBySessionID(_ context.Context, sessionID string) (domain.SessionReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.byID[sessionID]
	if !ok {
		return domain.SessionReport{}, domain.ErrNotFound
	}
	return r, nil
}

func completedSession(id string) domain.InterviewSession {
	now := time.Now().UTC()
	return domain.InterviewSession{
		ID:      id,
		UserID:  "user-1",
		Route:   domain.RouteF1,
		Profile: testProfile,
		Status:  domain.SessionCompleted,
		ConversationHistory: []domain.ConversationEntry{
			{
				Question:   "What will you study in the United States, and what is your study plan?",
				QuestionID: "F1_STU_001",
				Answer:     "I will pursue a master's in computer science focused on distributed systems.",
			},
			{
				Question:   "Who is paying for your education, and what is the total cost per year?",
				QuestionID: "F1_FIN_001",
				Answer:     "My father will sponsor the full $45,000 annual cost from his salary.",
			},
		},
		AnswerScores: []domain.AnswerScore{
			{QuestionID: "F1_STU_001", ContentScore: 72},
		},
		CurrentQuestionNumber: 2,
		AskedQuestionIDs:      []string{"F1_STU_001", "F1_FIN_001"},
		DetectedRedFlags:      []string{"financial_contradiction_minor"},
		StructuralScore:       62,
		StartedAt:             now.Add(-10 * time.Minute),
		EndedAt:               &now,
	}
}

func newReportService(aiClient domain.AIClient) (*ReportService, *memSessions, *memReports) {
	sessions := newMemSessions()
	reports := newMemReports()
	svc := NewReportService(sessions, reports, questionbank.NewLoader(""), aiClient, "openai/gpt-4o-mini", time.Second)
	return svc, sessions, reports
}

func TestGenerateRequiresCompletedSession(t *testing.T) {
	svc, sessions, _ := newReportService(ai.NewMockClient())
	ctx := context.Background()

	active := completedSession("sess-active")
	active.Status = domain.SessionActive
	require.NoError(t, sessions.Create(ctx, active))

	err := svc.Generate(ctx, "sess-active")
	assert.ErrorIs(t, err, domain.ErrConflict)

	err = svc.Generate(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGenerateWithMockProvider(t *testing.T) {
	svc, sessions, reports := newReportService(ai.NewMockClient())
	ctx := context.Background()

	require.NoError(t, sessions.Create(ctx, completedSession("sess-ok")))
	require.NoError(t, svc.Generate(ctx, "sess-ok"))

	report, err := reports.GetBySessionID(ctx, "sess-ok")
	require.NoError(t, err)
	assert.Equal(t, "sess-ok", report.SessionID)
	assert.False(t, report.Fallback)
	assert.GreaterOrEqual(t, report.Overall, float64(0))
	assert.LessOrEqual(t, report.Overall, float64(100))
	assert.Contains(t, []string{"likely_approved", "borderline", "likely_denied"}, report.Decision)
	assert.Equal(t, []string{"financial_contradiction_minor"}, report.RedFlags)
	assert.False(t, report.CreatedAt.IsZero())
}

func TestGenerateStructuralFallbackWithoutProvider(t *testing.T) {
	svc, sessions, reports := newReportService(nil)
	ctx := context.Background()

	require.NoError(t, sessions.Create(ctx, completedSession("sess-fallback")))
	require.NoError(t, svc.Generate(ctx, "sess-fallback"))

	report, err := reports.GetBySessionID(ctx, "sess-fallback")
	require.NoError(t, err)
	assert.True(t, report.Fallback)
	assert.Equal(t, float64(62), report.Overall, "uses the stored structural score")
	assert.Equal(t, "borderline", report.Decision)
}

func TestGenerateIsIdempotent(t *testing.T) {
	svc, sessions, reports := newReportService(ai.NewMockClient())
	ctx := context.Background()

	require.NoError(t, sessions.Create(ctx, completedSession("sess-twice")))
	require.NoError(t, svc.Generate(ctx, "sess-twice"))
	first, err := reports.GetBySessionID(ctx, "sess-twice")
	require.NoError(t, err)

	require.NoError(t, svc.Generate(ctx, "sess-twice"))
	second, err := reports.GetBySessionID(ctx, "sess-twice")
	require.NoError(t, err)
	assert.Equal(t, first.Overall, second.Overall)
}

func TestReportGet(t *testing.T) {
	svc, _, reports := newReportService(nil)
	ctx := context.Background()

	_, err := svc.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, reports.Upsert(ctx, domain.SessionReport{SessionID: "sess-1", Overall: 55}))
	report, err := svc.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, float64(55), report.Overall)
}

func TestDecisionFor(t *testing.T) {
	assert.Equal(t, "likely_approved", decisionFor(70))
	assert.Equal(t, "borderline", decisionFor(45))
	assert.Equal(t, "likely_denied", decisionFor(44))
}
