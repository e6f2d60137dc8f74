// Package scoring calls the rubric-scoring provider for each answer, parses
// and clamps its JSON, and corrects known LLM failure patterns before the
// score reaches the session.
package scoring

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fairyhunter13/ai-visa-interviewer/internal/adapter/observability"
	"github.com/fairyhunter13/ai-visa-interviewer/internal/domain"
	"github.com/fairyhunter13/ai-visa-interviewer/internal/service/factmemory"
	"github.com/fairyhunter13/ai-visa-interviewer/pkg/jsonx"
	"github.com/fairyhunter13/ai-visa-interviewer/pkg/textx"
)

// Context carries the read-only session view the scorer folds into its
// prompt. Non-numeric fact mismatches (sponsor, occupation) are surfaced here
// as prompt context rather than classified programmatically.
type Context struct {
	Route         domain.Route
	Profile       domain.CandidateProfile
	Memory        domain.FactMemory
	Contradiction factmemory.ContradictionLevel
}

// Scorer scores one answer per call. A provider failure never fails the
// turn: the result degrades to a locally computed heuristic.
type Scorer struct {
	ai      domain.AIClient
	timeout time.Duration
}

// New constructs a Scorer. ai may be nil; every score is then heuristic.
func New(ai domain.AIClient, timeout time.Duration) *Scorer {
	return &Scorer{ai: ai, timeout: timeout}
}

// providerResponse is the strict JSON shape expected from the provider.
type providerResponse struct {
	Rubric          map[string]float64 `json:"rubric"`
	ContentScore    float64            `json:"content_score"`
	Summary         string             `json:"summary"`
	Recommendations []string           `json:"recommendations"`
	RedFlags        []string           `json:"red_flags"`
}

// ScoreAnswer scores a single answer. It never returns an error: on any
// provider failure it falls back to the surface-feature heuristic.
func (s *Scorer) ScoreAnswer(ctx context.Context, question domain.Question, answer string, sc Context) domain.AnswerScore {
	answer = textx.SanitizeText(answer)
	wordCount := textx.WordCount(answer)

	if s.ai == nil {
		return s.heuristicWith(question, answer, "no provider configured")
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	raw, err := s.ai.ChatJSON(callCtx, s.systemPrompt(sc.Route), s.buildPrompt(question, answer, sc), 800)
	if err != nil {
		observability.ObserveAICall("score", "error", time.Since(start))
		slog.Warn("scoring provider failed; using heuristic fallback",
			slog.String("question_id", question.ID), slog.Any("error", err))
		return s.heuristicWith(question, answer, fmt.Sprintf("provider error: %v", err))
	}
	observability.ObserveAICall("score", "ok", time.Since(start))

	var resp providerResponse
	if err := jsonx.Unmarshal(raw, &resp); err != nil {
		slog.Warn("scoring provider returned malformed JSON",
			slog.String("question_id", question.ID), slog.Any("error", err))
		return s.heuristicWith(question, answer, "malformed provider JSON")
	}

	rubric := make(domain.RubricScores, len(resp.Rubric))
	for dim, v := range resp.Rubric {
		rubric[dim] = clamp(v, 0, 100)
	}
	content := clamp(resp.ContentScore, 0, 100)

	score := domain.AnswerScore{
		QuestionID:      question.ID,
		Rubric:          rubric,
		ContentScore:    content,
		Summary:         resp.Summary,
		Recommendations: resp.Recommendations,
		RedFlags:        resp.RedFlags,
	}

	// The correction pipeline only applies when the full 7-dimension rubric
	// is present (4 core + 3 route domain dimensions).
	if hasAllDimensions(rubric, sc.Route) {
		validation := ValidateAndCorrect(sc.Route, rubric, content, wordCount)
		score.Validation = &validation
		score.ContentScore = validation.CorrectedContentScore
		for _, w := range validation.Warnings {
			slog.Info("score corrected",
				slog.String("question_id", question.ID),
				slog.String("warning", w))
		}
	}

	observability.ContentScoreHistogram.Observe(score.ContentScore)
	return score
}

func (s *Scorer) heuristicWith(question domain.Question, answer, reason string) domain.AnswerScore {
	score := HeuristicScore(question, answer)
	score.RedFlags = append(score.RedFlags, "heuristic_fallback: "+reason)
	observability.ContentScoreHistogram.Observe(score.ContentScore)
	return score
}

func hasAllDimensions(rubric domain.RubricScores, route domain.Route) bool {
	for _, d := range domain.CoreDimensions {
		if _, ok := rubric[d]; !ok {
			return false
		}
	}
	for _, d := range domain.DomainDimensions(route) {
		if _, ok := rubric[d]; !ok {
			return false
		}
	}
	return true
}

func (s *Scorer) systemPrompt(route domain.Route) string {
	dims := append(append([]string{}, domain.CoreDimensions...), domain.DomainDimensions(route)...)
	return fmt.Sprintf(`You are a strict visa-interview assessor. Score the candidate's answer on each dimension from 0 to 100: %s. Respond with ONLY valid JSON:
{"rubric": {%s}, "content_score": 0-100, "summary": "...", "recommendations": ["..."], "red_flags": ["..."]}`,
		strings.Join(dims, ", "), quoteKeys(dims))
}

func quoteKeys(dims []string) string {
	parts := make([]string, len(dims))
	for i, d := range dims {
		parts[i] = fmt.Sprintf("%q: 0", d)
	}
	return strings.Join(parts, ", ")
}

func (s *Scorer) buildPrompt(question domain.Question, answer string, sc Context) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Candidate: %s from %s, applying on the %s route.\n", sc.Profile.Name, sc.Profile.Country, sc.Route)
	fmt.Fprintf(&b, "Question (%s, %s): %s\n", question.Category, question.Difficulty, question.Text)
	fmt.Fprintf(&b, "Answer: %s\n", answer)
	if sc.Memory.TotalCost > 0 {
		fmt.Fprintf(&b, "\nPreviously stated total cost: $%.0f.\n", sc.Memory.TotalCost)
	}
	if sc.Memory.Sponsor != "" {
		fmt.Fprintf(&b, "Previously stated sponsor: %s", sc.Memory.Sponsor)
		if sc.Memory.SponsorOccupation != "" {
			fmt.Fprintf(&b, " (%s)", sc.Memory.SponsorOccupation)
		}
		b.WriteString(".\n")
	}
	if sc.Contradiction != "" && sc.Contradiction != factmemory.ContradictionNone {
		fmt.Fprintf(&b, "Consistency alert: this answer's figures show a %s contradiction with earlier claims. Weigh the consistency dimension accordingly.\n", sc.Contradiction)
	}
	return b.String()
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
