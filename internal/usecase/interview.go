// Package usecase orchestrates the interview session lifecycle: the state
// machine, answer ingestion, scoring, memory updates, and report handoff.
package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fairyhunter13/ai-visa-interviewer/internal/adapter/observability"
	"github.com/fairyhunter13/ai-visa-interviewer/internal/domain"
	obsctx "github.com/fairyhunter13/ai-visa-interviewer/internal/observability"
	"github.com/fairyhunter13/ai-visa-interviewer/internal/service/factmemory"
	"github.com/fairyhunter13/ai-visa-interviewer/internal/service/questionbank"
	"github.com/fairyhunter13/ai-visa-interviewer/internal/service/scoring"
	"github.com/fairyhunter13/ai-visa-interviewer/internal/service/selector"
)

// Modes maps each interview route to its parameters.
type Modes map[domain.Route]domain.ModeConfig

// InterviewService drives sessions. Sessions are treated as immutable values:
// every transition clones, derives, persists, and returns the new value.
type InterviewService struct {
	sessions domain.SessionRepository
	queue    domain.Queue
	loader   *questionbank.Loader
	selector *selector.Selector
	scorer   *scoring.Scorer
	modes    Modes
}

func NewInterviewService(
	sessions domain.SessionRepository,
	queue domain.Queue,
	loader *questionbank.Loader,
	sel *selector.Selector,
	scorer *scoring.Scorer,
	modes Modes,
) *InterviewService {
	return &InterviewService{
		sessions: sessions,
		queue:    queue,
		loader:   loader,
		selector: sel,
		scorer:   scorer,
		modes:    modes,
	}
}

// Start creates a session and issues its first question, so the conversation
// history is never empty while the session is active.
func (s *InterviewService) Start(ctx context.Context, userID string, route domain.Route, profile domain.CandidateProfile) (domain.InterviewSession, error) {
	mode, ok := s.modes[route]
	if !ok {
		return domain.InterviewSession{}, fmt.Errorf("op=interview.start route=%s: %w", route, domain.ErrInvalidArgument)
	}
	bank, err := s.loader.Load(ctx)
	if err != nil {
		return domain.InterviewSession{}, fmt.Errorf("op=interview.start: %w", err)
	}

	session := domain.InterviewSession{
		ID:        uuid.NewString(),
		UserID:    userID,
		Route:     route,
		Profile:   profile,
		Status:    domain.SessionActive,
		StartedAt: time.Now().UTC(),
	}

	sel := s.selector.SelectNext(ctx, bank, s.selectorContext(session, mode, 1))
	session = appendQuestion(session, sel)

	if err := s.sessions.Create(ctx, session); err != nil {
		return domain.InterviewSession{}, fmt.Errorf("op=interview.start: %w", err)
	}
	observability.SessionsStartedTotal.WithLabelValues(string(route)).Inc()
	obsctx.LoggerFromContext(ctx).Info("session started",
		slog.String("session_id", session.ID),
		slog.String("route", string(route)),
		slog.String("first_question_id", sel.QuestionID))
	return session, nil
}

// SubmitAnswer records the answer to the pending question, scores it, updates
// fact memory and red flags, and either issues the next question or completes
// the session.
func (s *InterviewService) SubmitAnswer(ctx context.Context, sessionID, answer string) (domain.InterviewSession, domain.AnswerScore, error) {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return domain.InterviewSession{}, domain.AnswerScore{}, fmt.Errorf("op=interview.submit: empty answer: %w", domain.ErrInvalidArgument)
	}

	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return domain.InterviewSession{}, domain.AnswerScore{}, fmt.Errorf("op=interview.submit: %w", err)
	}
	switch session.Status {
	case domain.SessionCompleted:
		return domain.InterviewSession{}, domain.AnswerScore{}, fmt.Errorf("op=interview.submit session=%s: %w", sessionID, domain.ErrSessionCompleted)
	case domain.SessionPaused:
		return domain.InterviewSession{}, domain.AnswerScore{}, fmt.Errorf("op=interview.submit session=%s is paused: %w", sessionID, domain.ErrConflict)
	}
	if len(session.ConversationHistory) == 0 {
		return domain.InterviewSession{}, domain.AnswerScore{}, fmt.Errorf("op=interview.submit session=%s has no pending question: %w", sessionID, domain.ErrInternal)
	}

	session = session.Clone()
	last := len(session.ConversationHistory) - 1
	pending := &session.ConversationHistory[last]
	if pending.Answered() {
		return domain.InterviewSession{}, domain.AnswerScore{}, fmt.Errorf("op=interview.submit session=%s: question already answered: %w", sessionID, domain.ErrConflict)
	}
	pending.Answer = answer

	bank, err := s.loader.Load(ctx)
	if err != nil {
		return domain.InterviewSession{}, domain.AnswerScore{}, fmt.Errorf("op=interview.submit: %w", err)
	}

	question, category := s.resolveQuestion(bank, *pending)

	// Contradiction and follow-up checks run against the memory state BEFORE
	// this answer is folded in, so the original claim is the baseline.
	level := factmemory.CheckContradiction(session.Memory, answer)
	gate, gateReason := factmemory.NeedsFollowUp(category, answer, session.Memory)
	session.Memory = factmemory.UpdateMemory(session.Memory, answer, category)
	if level != factmemory.ContradictionNone {
		flag := fmt.Sprintf("financial_contradiction_%s", level)
		session.DetectedRedFlags = appendUnique(session.DetectedRedFlags, flag)
		obsctx.LoggerFromContext(ctx).Info("contradiction detected",
			slog.String("session_id", sessionID),
			slog.String("level", string(level)))
	}

	score := s.scorer.ScoreAnswer(ctx, question, answer, scoring.Context{
		Route:         session.Route,
		Profile:       session.Profile,
		Memory:        session.Memory,
		Contradiction: level,
	})
	score.QuestionID = pending.QuestionID
	session.AnswerScores = append(session.AnswerScores, score)
	for _, f := range score.RedFlags {
		session.DetectedRedFlags = appendUnique(session.DetectedRedFlags, f)
	}

	mode := s.modes[session.Route]
	if pending.QuestionType == domain.QuestionTypeClosing || session.CurrentQuestionNumber >= mode.TotalQuestions {
		session = s.complete(ctx, session)
	} else {
		sc := s.selectorContext(session, mode, session.CurrentQuestionNumber+1)
		sc.LastQuestion = question
		if gate {
			sc.FollowUpHint = gateReason
		}
		sel := s.selector.SelectNext(ctx, bank, sc)
		session = appendQuestion(session, sel)
	}

	if err := s.sessions.Update(ctx, session); err != nil {
		return domain.InterviewSession{}, domain.AnswerScore{}, fmt.Errorf("op=interview.submit: %w", err)
	}
	return session, score, nil
}

// Pause suspends an active session.
func (s *InterviewService) Pause(ctx context.Context, sessionID string) (domain.InterviewSession, error) {
	return s.transition(ctx, "pause", sessionID, domain.SessionActive, domain.SessionPaused)
}

// Resume reactivates a paused session.
func (s *InterviewService) Resume(ctx context.Context, sessionID string) (domain.InterviewSession, error) {
	return s.transition(ctx, "resume", sessionID, domain.SessionPaused, domain.SessionActive)
}

// End force-completes a session regardless of remaining questions.
func (s *InterviewService) End(ctx context.Context, sessionID string) (domain.InterviewSession, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return domain.InterviewSession{}, fmt.Errorf("op=interview.end: %w", err)
	}
	if session.Status == domain.SessionCompleted {
		return session, nil
	}
	session = s.complete(ctx, session.Clone())
	if err := s.sessions.Update(ctx, session); err != nil {
		return domain.InterviewSession{}, fmt.Errorf("op=interview.end: %w", err)
	}
	return session, nil
}

// Get returns the session by ID.
func (s *InterviewService) Get(ctx context.Context, sessionID string) (domain.InterviewSession, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return domain.InterviewSession{}, fmt.Errorf("op=interview.get: %w", err)
	}
	return session, nil
}

func (s *InterviewService) transition(ctx context.Context, op, sessionID string, from, to domain.SessionStatus) (domain.InterviewSession, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return domain.InterviewSession{}, fmt.Errorf("op=interview.%s: %w", op, err)
	}
	if session.Status != from {
		return domain.InterviewSession{}, fmt.Errorf("op=interview.%s session=%s status=%s: %w", op, sessionID, session.Status, domain.ErrConflict)
	}
	session = session.Clone()
	session.Status = to
	if err := s.sessions.Update(ctx, session); err != nil {
		return domain.InterviewSession{}, fmt.Errorf("op=interview.%s: %w", op, err)
	}
	obsctx.LoggerFromContext(ctx).Info("session transition",
		slog.String("session_id", sessionID),
		slog.String("from", string(from)),
		slog.String("to", string(to)))
	return session, nil
}

// complete finalizes the session and hands report generation to the worker.
// A queue failure degrades to a log line rather than failing the turn; the
// report endpoint can trigger regeneration.
func (s *InterviewService) complete(ctx context.Context, session domain.InterviewSession) domain.InterviewSession {
	now := time.Now().UTC()
	session.Status = domain.SessionCompleted
	session.EndedAt = &now
	session.StructuralScore = scoring.SessionStructuralScore(session.ConversationHistory)
	observability.SessionsCompletedTotal.WithLabelValues(string(session.Route)).Inc()

	if s.queue != nil {
		if _, err := s.queue.EnqueueReport(ctx, domain.ReportTaskPayload{SessionID: session.ID}); err != nil {
			obsctx.LoggerFromContext(ctx).Error("report enqueue failed",
				slog.String("session_id", session.ID), slog.Any("error", err))
		} else {
			observability.EnqueueReport("session_report")
		}
	}
	obsctx.LoggerFromContext(ctx).Info("session completed",
		slog.String("session_id", session.ID),
		slog.Int("questions", session.CurrentQuestionNumber))
	return session
}

func (s *InterviewService) selectorContext(session domain.InterviewSession, mode domain.ModeConfig, step int) selector.Context {
	return selector.Context{
		SessionID:        session.ID,
		Route:            session.Route,
		Profile:          session.Profile,
		History:          session.ConversationHistory,
		AskedQuestionIDs: session.AskedQuestionIDs,
		AskedClusters:    session.AskedSemanticClusters,
		DetectedRedFlags: session.DetectedRedFlags,
		CategoryCoverage: session.CategoryCoverage(s.resolveByID),
		Memory:           session.Memory,
		Mode:             mode,
		Step:             step,
	}
}

func (s *InterviewService) resolveByID(id string) (domain.Question, bool) {
	bank, err := s.loader.Load(context.Background())
	if err != nil {
		return domain.Question{}, false
	}
	return bank.ByID(id)
}

// resolveQuestion reconstructs the question entity for a history entry.
// Follow-up and closing questions are synthetic, so the entity is rebuilt from
// the entry; their category is inferred from the question's semantic cluster.
func (s *InterviewService) resolveQuestion(bank *questionbank.Bank, entry domain.ConversationEntry) (domain.Question, domain.Category) {
	if q, ok := bank.ByID(entry.QuestionID); ok {
		return q, q.Category
	}
	category := categoryForCluster(questionbank.Classify(entry.Question))
	return domain.Question{
		ID:         entry.QuestionID,
		Category:   category,
		Difficulty: entry.Difficulty,
		Text:       entry.Question,
	}, category
}

func categoryForCluster(cluster string) domain.Category {
	switch {
	case strings.HasPrefix(cluster, "finance"), cluster == "scholarship", cluster == "loan":
		return domain.CategoryFinancial
	case cluster == "post_study_plans", cluster == "return_intent", cluster == "home_ties":
		return domain.CategoryPostStudy
	case strings.HasPrefix(cluster, "academic"), cluster == "failure_grades", cluster == "english_ability":
		return domain.CategoryAcademic
	case cluster == "visit_purpose", cluster == "university_choice", cluster == "course_choice":
		return domain.CategoryIntent
	default:
		return domain.CategoryPersonal
	}
}

// appendQuestion records an issued question on the session value: history
// entry, asked-ID and cluster tracking, and the question counter.
func appendQuestion(session domain.InterviewSession, sel selector.Selection) domain.InterviewSession {
	session.ConversationHistory = append(session.ConversationHistory, domain.ConversationEntry{
		Question:     sel.Question.Text,
		Timestamp:    time.Now().UTC(),
		QuestionType: sel.Type,
		Difficulty:   sel.Question.Difficulty,
		QuestionID:   sel.QuestionID,
	})
	session.AskedQuestionIDs = append(session.AskedQuestionIDs, sel.QuestionID)
	session.AskedSemanticClusters = append(session.AskedSemanticClusters, sel.Cluster)
	session.CurrentQuestionNumber++
	return session
}

func appendUnique(flags []string, flag string) []string {
	for _, f := range flags {
		if f == flag {
			return flags
		}
	}
	return append(flags, flag)
}
