// Package domain holds the core entities, ports, and error taxonomy for the
// adaptive visa interview engine.
package domain

import (
	"context"
	"errors"
	"time"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
	ErrRateLimited      = errors.New("rate limited")
	ErrUpstreamTimeout  = errors.New("upstream timeout")
	ErrSchemaInvalid    = errors.New("schema invalid")
	ErrSessionCompleted = errors.New("session completed")
	ErrInternal         = errors.New("internal error")
)

// Route identifies the interview track a session runs on.
type Route string

const (
	// RouteF1 is the US student visa track. Stage gating and degree-level
	// filtering only apply on this route.
	RouteF1 Route = "f1"
	// RouteB1B2 is the visitor visa track.
	RouteB1B2 Route = "b1b2"
	// RouteBoth tags bank questions usable on every route.
	RouteBoth Route = "both"
)

// Category is the coarse topic a bank question belongs to.
type Category string

const (
	CategoryFinancial Category = "financial"
	CategoryAcademic  Category = "academic"
	CategoryIntent    Category = "intent"
	CategoryPersonal  Category = "personal"
	CategoryPostStudy Category = "post_study"
)

// Difficulty grades a bank question.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// QuestionType distinguishes catalogue questions from dynamically generated ones.
type QuestionType string

const (
	QuestionTypeBank     QuestionType = "bank"
	QuestionTypeFollowUp QuestionType = "followup"
	QuestionTypeClosing  QuestionType = "closing"
)

// Question is an immutable bank entry. ID uniqueness within a bank is an
// invariant enforced at load time.
type Question struct {
	ID               string     `json:"id" yaml:"id"`
	Route            Route      `json:"route" yaml:"route"`
	Category         Category   `json:"category" yaml:"category"`
	Difficulty       Difficulty `json:"difficulty" yaml:"difficulty"`
	Text             string     `json:"text" yaml:"text"`
	Keywords         []string   `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	FollowUpTriggers []string   `json:"follow_up_triggers,omitempty" yaml:"follow_up_triggers,omitempty"`
	// RequiresContext names a context flag that must be true for the
	// question to be eligible (e.g. "has_scholarship").
	RequiresContext string `json:"requires_context,omitempty" yaml:"requires_context,omitempty"`
}

// ConversationEntry records one issued question and, once the candidate has
// responded, its answer. Entries are created when the question is issued
// (answer empty) and mutated exactly once; the first entry is written at
// session start so every question carries a trackable ID from creation.
type ConversationEntry struct {
	Question     string       `json:"question"`
	Answer       string       `json:"answer"`
	Timestamp    time.Time    `json:"timestamp"`
	QuestionType QuestionType `json:"question_type"`
	Difficulty   Difficulty   `json:"difficulty,omitempty"`
	QuestionID   string       `json:"question_id"`
}

// Answered reports whether the candidate has responded to this entry.
func (e ConversationEntry) Answered() bool { return e.Answer != "" }

// CandidateProfile is read-only input to filtering and prompts.
type CandidateProfile struct {
	Name         string  `json:"name"`
	Country      string  `json:"country"`
	Institution  string  `json:"institution"`
	FieldOfStudy string  `json:"field_of_study"`
	DegreeLevel  string  `json:"degree_level,omitempty"` // undergraduate|graduate|doctorate
	GPA          float64 `json:"gpa,omitempty"`
}

// SessionStatus is the orchestrator state machine value.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionPaused    SessionStatus = "paused"
	SessionCompleted SessionStatus = "completed"
)

// FactMemory records the candidate's original claims extracted from answers.
// Write policy is first-value-wins except HasUSRelatives, which is
// monotonically set true. Extraction is a best-effort regex signal, not a
// source of truth.
type FactMemory struct {
	TotalCost         float64 `json:"total_cost,omitempty"`
	Sponsor           string  `json:"sponsor,omitempty"`
	ScholarshipAmount float64 `json:"scholarship_amount,omitempty"`
	LoanAmount        float64 `json:"loan_amount,omitempty"`
	SponsorOccupation string  `json:"sponsor_occupation,omitempty"`
	PostStudyRole     string  `json:"post_study_role,omitempty"`
	ReturnCountry     string  `json:"return_country,omitempty"`
	HasUSRelatives    bool    `json:"has_us_relatives,omitempty"`
}

// RubricScores maps dimension names to values in [0,100]. Four core
// dimensions are shared by all routes; three domain dimensions are
// route-specific.
type RubricScores map[string]float64

// Core rubric dimensions, shared by all routes.
const (
	DimCommunication = "communication"
	DimRelevance     = "relevance"
	DimSpecificity   = "specificity"
	DimConsistency   = "consistency"
)

// CoreDimensions lists the shared dimensions in canonical order.
var CoreDimensions = []string{DimCommunication, DimRelevance, DimSpecificity, DimConsistency}

// DomainDimensions returns the route-specific rubric dimensions in weight
// order (0.15, 0.10, 0.10).
func DomainDimensions(route Route) []string {
	if route == RouteB1B2 {
		return []string{"visit_purpose", "ties_strength", "funding_credibility"}
	}
	return []string{"course_fit", "financial_credibility", "return_intent"}
}

// ScoreValidationResult is derived during a single scoring call; it is not
// persisted beyond it.
type ScoreValidationResult struct {
	IsValid                 bool     `json:"is_valid"`
	HasZeroDimensionPattern bool     `json:"has_zero_dimension_pattern"`
	OriginalContentScore    float64  `json:"original_content_score"`
	CorrectedContentScore   float64  `json:"corrected_content_score"`
	ExcludedDimensions      []string `json:"excluded_dimensions,omitempty"`
	Warnings                []string `json:"warnings,omitempty"`
}

// AnswerScore is the validated per-answer scoring outcome.
type AnswerScore struct {
	QuestionID      string                 `json:"question_id"`
	Rubric          RubricScores           `json:"rubric"`
	ContentScore    float64                `json:"content_score"`
	Summary         string                 `json:"summary,omitempty"`
	Recommendations []string               `json:"recommendations,omitempty"`
	RedFlags        []string               `json:"red_flags,omitempty"`
	Fallback        bool                   `json:"fallback,omitempty"`
	Validation      *ScoreValidationResult `json:"validation,omitempty"`
}

// InterviewSession is the aggregate root, owned exclusively by the
// orchestrator. All operations treat it as an immutable value: they return a
// new session rather than mutating shared references.
type InterviewSession struct {
	ID                    string              `json:"id"`
	UserID                string              `json:"user_id"`
	Route                 Route               `json:"route"`
	Profile               CandidateProfile    `json:"profile"`
	Status                SessionStatus       `json:"status"`
	ConversationHistory   []ConversationEntry `json:"conversation_history"`
	CurrentQuestionNumber int                 `json:"current_question_number"`
	AskedQuestionIDs      []string            `json:"asked_question_ids"`
	AskedSemanticClusters []string            `json:"asked_semantic_clusters"`
	Memory                FactMemory          `json:"session_memory"`
	AnswerScores          []AnswerScore       `json:"answer_scores,omitempty"`
	DetectedRedFlags      []string            `json:"detected_red_flags,omitempty"`
	StructuralScore       float64             `json:"structural_score,omitempty"`
	StartedAt             time.Time           `json:"started_at"`
	EndedAt               *time.Time          `json:"ended_at,omitempty"`
}

// Clone returns a deep copy so callers can derive a new session value without
// aliasing slices of the original.
func (s InterviewSession) Clone() InterviewSession {
	out := s
	out.ConversationHistory = append([]ConversationEntry(nil), s.ConversationHistory...)
	out.AskedQuestionIDs = append([]string(nil), s.AskedQuestionIDs...)
	out.AskedSemanticClusters = append([]string(nil), s.AskedSemanticClusters...)
	out.AnswerScores = append([]AnswerScore(nil), s.AnswerScores...)
	out.DetectedRedFlags = append([]string(nil), s.DetectedRedFlags...)
	return out
}

// CategoryCoverage counts answered bank questions per category using the
// provided id->question resolver.
func (s InterviewSession) CategoryCoverage(resolve func(id string) (Question, bool)) map[Category]int {
	cov := make(map[Category]int)
	for _, id := range s.AskedQuestionIDs {
		if q, ok := resolve(id); ok {
			cov[q.Category]++
		}
	}
	return cov
}

// ModeConfig supplies per-route interview parameters; consumed read-only by
// the selector and orchestrator.
type ModeConfig struct {
	TotalQuestions     int               `json:"total_questions" yaml:"total_questions"`
	PerQuestionSeconds int               `json:"per_question_seconds" yaml:"per_question_seconds"`
	SessionSeconds     int               `json:"session_seconds" yaml:"session_seconds"`
	CategoryMin        map[Category]int  `json:"category_min,omitempty" yaml:"category_min,omitempty"`
	CategoryMax        map[Category]int  `json:"category_max,omitempty" yaml:"category_max,omitempty"`
	TargetDifficulty   Difficulty        `json:"target_difficulty,omitempty" yaml:"target_difficulty,omitempty"`
	// ProgressiveDifficulty maps question number thresholds to a difficulty
	// schedule (easy early, hard late) when no explicit target is set.
	ProgressiveDifficulty bool `json:"progressive_difficulty,omitempty" yaml:"progressive_difficulty,omitempty"`
}

// SessionReport is the final holistic evaluation produced by the worker.
type SessionReport struct {
	SessionID       string    `json:"session_id"`
	Overall         float64   `json:"overall"`
	Decision        string    `json:"decision"`
	Summary         string    `json:"summary"`
	Strengths       []string  `json:"strengths,omitempty"`
	Weaknesses      []string  `json:"weaknesses,omitempty"`
	Recommendations []string  `json:"recommendations,omitempty"`
	RedFlags        []string  `json:"red_flags,omitempty"`
	Fallback        bool      `json:"fallback,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// ReportTaskPayload is the queue message emitted when a session completes.
type ReportTaskPayload struct {
	SessionID string `json:"session_id"`
}

// Repositories (ports)

type SessionRepository interface {
	Create(ctx Context, s InterviewSession) error
	Get(ctx Context, id string) (InterviewSession, error)
	Update(ctx Context, s InterviewSession) error
}

type ReportRepository interface {
	Upsert(ctx Context, r SessionReport) error
	GetBySessionID(ctx Context, sessionID string) (SessionReport, error)
}

// Queue (port)

type Queue interface {
	EnqueueReport(ctx Context, payload ReportTaskPayload) (string, error)
}

// AIClient (port)
//
// ChatJSON returns a JSON document matching the prompt's schema instruction.
// Implementations make exactly one attempt; callers bound the call with a
// deadline context and degrade to a local fallback on any failure.
type AIClient interface {
	ChatJSON(ctx Context, systemPrompt, userPrompt string, maxTokens int) (string, error)
}

// Context is an alias so the domain package does not import std context
// everywhere; adapters pass context.Context through.
type Context = context.Context
