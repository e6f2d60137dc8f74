package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fairyhunter13/ai-visa-interviewer/internal/adapter/observability"
	"github.com/fairyhunter13/ai-visa-interviewer/internal/domain"
	"github.com/fairyhunter13/ai-visa-interviewer/internal/service/questionbank"
	"github.com/fairyhunter13/ai-visa-interviewer/internal/service/scoring"
	"github.com/fairyhunter13/ai-visa-interviewer/internal/service/summary"
	"github.com/fairyhunter13/ai-visa-interviewer/pkg/jsonx"
)

// ReportService produces and serves the final holistic evaluation. Generation
// runs in the worker; reads are served to the API.
type ReportService struct {
	sessions domain.SessionRepository
	reports  domain.ReportRepository
	loader   *questionbank.Loader
	ai       domain.AIClient
	model    string
	timeout  time.Duration
}

func NewReportService(
	sessions domain.SessionRepository,
	reports domain.ReportRepository,
	loader *questionbank.Loader,
	ai domain.AIClient,
	model string,
	timeout time.Duration,
) *ReportService {
	return &ReportService{
		sessions: sessions,
		reports:  reports,
		loader:   loader,
		ai:       ai,
		model:    model,
		timeout:  timeout,
	}
}

type reportResponse struct {
	Overall         float64  `json:"overall"`
	Decision        string   `json:"decision"`
	Summary         string   `json:"summary"`
	Strengths       []string `json:"strengths"`
	Weaknesses      []string `json:"weaknesses"`
	Recommendations []string `json:"recommendations"`
}

// Generate builds the compressed session prompt, requests the holistic
// evaluation, and upserts the report. Provider failure degrades to a
// structural-score report instead of failing the task.
func (s *ReportService) Generate(ctx context.Context, sessionID string) error {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("op=report.generate: %w", err)
	}
	if session.Status != domain.SessionCompleted {
		return fmt.Errorf("op=report.generate session=%s status=%s: %w", sessionID, session.Status, domain.ErrConflict)
	}

	report := s.evaluate(ctx, session)
	report.SessionID = sessionID
	report.RedFlags = session.DetectedRedFlags
	report.CreatedAt = time.Now().UTC()

	if err := s.reports.Upsert(ctx, report); err != nil {
		return fmt.Errorf("op=report.generate: %w", err)
	}
	slog.Info("report stored",
		slog.String("session_id", sessionID),
		slog.Bool("fallback", report.Fallback),
		slog.Float64("overall", report.Overall))
	return nil
}

func (s *ReportService) evaluate(ctx context.Context, session domain.InterviewSession) domain.SessionReport {
	if s.ai == nil {
		return s.structuralReport(session, "no provider configured")
	}

	records := s.collectRecords(ctx, session)
	prompt := summary.BuildSummary(session.Route, session.Profile, records, s.model)
	slog.Debug("session prompt compressed",
		slog.String("session_id", session.ID),
		slog.Int("answers", len(records)),
		slog.Int("token_estimate", prompt.TokenEstimate))

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	raw, err := s.ai.ChatJSON(callCtx, prompt.System, prompt.User, 800)
	if err != nil {
		observability.ObserveAICall("report", "error", time.Since(start))
		slog.Warn("holistic evaluation failed; using structural fallback",
			slog.String("session_id", session.ID), slog.Any("error", err))
		return s.structuralReport(session, err.Error())
	}
	observability.ObserveAICall("report", "ok", time.Since(start))

	var resp reportResponse
	if err := jsonx.Unmarshal(raw, &resp); err != nil {
		slog.Warn("holistic evaluation returned malformed JSON",
			slog.String("session_id", session.ID), slog.Any("error", err))
		return s.structuralReport(session, "malformed provider JSON")
	}
	if resp.Overall < 0 {
		resp.Overall = 0
	}
	if resp.Overall > 100 {
		resp.Overall = 100
	}
	if resp.Decision == "" {
		resp.Decision = decisionFor(resp.Overall)
	}
	return domain.SessionReport{
		Overall:         resp.Overall,
		Decision:        resp.Decision,
		Summary:         resp.Summary,
		Strengths:       resp.Strengths,
		Weaknesses:      resp.Weaknesses,
		Recommendations: resp.Recommendations,
	}
}

// collectRecords pairs each answered entry with its score and category.
// Answers without a recorded score (crash recovery edge) fall back to the
// local heuristic so the compressor always has a full record set.
func (s *ReportService) collectRecords(ctx context.Context, session domain.InterviewSession) []summary.Record {
	scoresByID := make(map[string]domain.AnswerScore, len(session.AnswerScores))
	for _, sc := range session.AnswerScores {
		scoresByID[sc.QuestionID] = sc
	}

	var bank *questionbank.Bank
	if b, err := s.loader.Load(ctx); err == nil {
		bank = b
	}

	records := make([]summary.Record, 0, len(session.ConversationHistory))
	for _, entry := range session.ConversationHistory {
		if !entry.Answered() {
			continue
		}
		var category domain.Category
		question := domain.Question{ID: entry.QuestionID, Text: entry.Question, Difficulty: entry.Difficulty}
		if bank != nil {
			if q, ok := bank.ByID(entry.QuestionID); ok {
				question = q
				category = q.Category
			}
		}
		score, ok := scoresByID[entry.QuestionID]
		if !ok {
			score = scoring.HeuristicScore(question, entry.Answer)
		}
		records = append(records, summary.Record{Entry: entry, Score: score, Category: category})
	}
	return records
}

func (s *ReportService) structuralReport(session domain.InterviewSession, reason string) domain.SessionReport {
	score := session.StructuralScore
	if score == 0 {
		score = scoring.SessionStructuralScore(session.ConversationHistory)
	}
	return domain.SessionReport{
		Overall:  score,
		Decision: decisionFor(score),
		Summary:  fmt.Sprintf("Automated structural evaluation (%s). Scored on answer length and keyword coverage only.", reason),
		Fallback: true,
	}
}

func decisionFor(overall float64) string {
	switch {
	case overall >= 70:
		return "likely_approved"
	case overall >= 45:
		return "borderline"
	default:
		return "likely_denied"
	}
}

// Get returns the stored report for a completed session.
func (s *ReportService) Get(ctx context.Context, sessionID string) (domain.SessionReport, error) {
	report, err := s.reports.GetBySessionID(ctx, sessionID)
	if err != nil {
		return domain.SessionReport{}, fmt.Errorf("op=report.get: %w", err)
	}
	return report, nil
}
