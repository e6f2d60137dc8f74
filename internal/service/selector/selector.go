// Package selector chooses the next interview question for a session: a
// pattern-triggered follow-up, an LLM-ranked bank question, or a
// deterministic rule-based pick when the LLM path fails.
package selector

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fairyhunter13/ai-visa-interviewer/internal/adapter/observability"
	"github.com/fairyhunter13/ai-visa-interviewer/internal/domain"
	"github.com/fairyhunter13/ai-visa-interviewer/internal/service/questionbank"
	"github.com/fairyhunter13/ai-visa-interviewer/pkg/jsonx"
)

// Context bundles the read-only session view the selector operates on.
type Context struct {
	SessionID        string
	Route            domain.Route
	Profile          domain.CandidateProfile
	History          []domain.ConversationEntry
	AskedQuestionIDs []string
	AskedClusters    []string
	DetectedRedFlags []string
	CategoryCoverage map[domain.Category]int
	Memory           domain.FactMemory
	Mode             domain.ModeConfig
	PriorityCategory domain.Category
	TargetDifficulty domain.Difficulty
	// LastQuestion is the just-answered question, when the caller knows it.
	// Its declared follow-up triggers extend the route rule list.
	LastQuestion domain.Question
	// FollowUpHint carries the fact-memory gate's reason for probing the last
	// answer. Empty when the gate did not fire.
	FollowUpHint string
	// Step is the 1-based index of the question being selected.
	Step int
}

// Selection is the selector's result. QuestionID is always non-empty;
// downstream tracking (asked IDs, coverage, duplicate suppression) depends on
// it unconditionally.
type Selection struct {
	Question   domain.Question
	Type       domain.QuestionType
	QuestionID string
	Cluster    string
	Reasoning  string
	// Source records how the question was chosen: followup, llm, rules, closing.
	Source string
}

// clusterWindow is the number of most recent asked clusters excluded from the
// pool. A sliding window, not the full history: a topic may resurface later
// in a long interview.
const clusterWindow = 3

// maxRankingCandidates bounds the candidate list sent to the LLM.
const maxRankingCandidates = 20

const closingQuestionText = "Thank you. Is there anything else you would like to add in support of your application?"

// Selector picks the next question. It is stateless and safe for concurrent
// use across sessions.
type Selector struct {
	ai          domain.AIClient
	rankTimeout time.Duration
}

// New constructs a Selector. ai may be nil, in which case every selection
// uses the rule-based path.
func New(ai domain.AIClient, rankTimeout time.Duration) *Selector {
	return &Selector{ai: ai, rankTimeout: rankTimeout}
}

// SelectNext returns the next question for the session. It never returns an
// error: every failure mode degrades to a deterministic local choice, ending
// with the fixed closing question when the bank is exhausted.
func (s *Selector) SelectNext(ctx context.Context, bank *questionbank.Bank, sc Context) Selection {
	historyTexts := make([]string, 0, len(sc.History))
	for _, e := range sc.History {
		historyTexts = append(historyTexts, e.Question)
	}

	// 1. Follow-up check against the last answer.
	if sel, ok := s.tryFollowUp(sc, historyTexts); ok {
		observability.RecordSelection(sel.Source)
		return sel
	}

	// 2. Bank filtering.
	pool := s.filterPool(bank, sc)

	// 3. Stage gating (F1 only), with whole-pool fallback.
	if sc.Route == domain.RouteF1 {
		pool = applyStageGate(pool, sc.Step)
	}

	// 6 (early). Bank exhausted: fixed closing prompt rather than an error.
	if len(pool) == 0 {
		observability.RecordSelection("closing")
		return s.closing(sc)
	}

	// 4. LLM ranking with validation against the pre-LLM candidate set.
	if s.ai != nil {
		if sel, ok := s.rankWithLLM(ctx, pool, sc, historyTexts); ok {
			observability.RecordSelection("llm")
			return sel
		}
	}

	// 5. Deterministic rule-based fallback.
	if q, ok := ruleBasedPick(pool, sc); ok {
		if !isDuplicate(q.Text, historyTexts) {
			observability.RecordSelection("rules")
			return Selection{
				Question:   q,
				Type:       domain.QuestionTypeBank,
				QuestionID: q.ID,
				Cluster:    questionbank.Classify(q.Text),
				Source:     "rules",
			}
		}
		// The deterministic pick collided with history; try the complement.
		for _, alt := range pool {
			if alt.ID != q.ID && !isDuplicate(alt.Text, historyTexts) {
				observability.RecordSelection("rules")
				return Selection{
					Question:   alt,
					Type:       domain.QuestionTypeBank,
					QuestionID: alt.ID,
					Cluster:    questionbank.Classify(alt.Text),
					Source:     "rules",
				}
			}
		}
	}

	observability.RecordSelection("closing")
	return s.closing(sc)
}

// tryFollowUp tests the last answer against the route's ordered rule list,
// then the answered question's declared triggers, then the fact-memory gate.
func (s *Selector) tryFollowUp(sc Context, historyTexts []string) (Selection, bool) {
	if len(sc.History) == 0 {
		return Selection{}, false
	}
	last := sc.History[len(sc.History)-1]
	if !last.Answered() {
		return Selection{}, false
	}
	for _, rule := range followUpRulesFor(sc.Route) {
		if !rule.trigger(last.Answer) {
			continue
		}
		if sel, ok := s.followUpSelection(sc, historyTexts, rule); ok {
			return sel, true
		}
	}
	if rule, ok := declaredTriggerRule(sc.LastQuestion, last.Answer); ok {
		if sel, ok := s.followUpSelection(sc, historyTexts, rule); ok {
			return sel, true
		}
	}
	if rule, ok := memoryGateRule(sc.FollowUpHint, sc.LastQuestion); ok {
		if sel, ok := s.followUpSelection(sc, historyTexts, rule); ok {
			return sel, true
		}
	}
	return Selection{}, false
}

func (s *Selector) followUpSelection(sc Context, historyTexts []string, rule followUpRule) (Selection, bool) {
	if isDuplicate(rule.text, historyTexts) {
		return Selection{}, false
	}
	id := followUpID(sc.Route, sc.Step)
	slog.Debug("follow-up triggered",
		slog.String("session_id", sc.SessionID),
		slog.String("rule", rule.name),
		slog.String("question_id", id))
	return Selection{
		Question: domain.Question{
			ID:         id,
			Route:      sc.Route,
			Category:   rule.category,
			Difficulty: domain.DifficultyMedium,
			Text:       rule.text,
		},
		Type:       domain.QuestionTypeFollowUp,
		QuestionID: id,
		Cluster:    questionbank.Classify(rule.text),
		Reasoning:  rule.name,
		Source:     "followup",
	}, true
}

// filterPool applies the bank filtering sequence; each step operates on the
// survivors of the previous one.
func (s *Selector) filterPool(bank *questionbank.Bank, sc Context) []domain.Question {
	asked := make(map[string]struct{}, len(sc.AskedQuestionIDs))
	for _, id := range sc.AskedQuestionIDs {
		// Synthetic follow-up IDs never match bank IDs, so they are harmless
		// in this set.
		asked[id] = struct{}{}
	}

	recent := recentClusters(sc.AskedClusters, clusterWindow)

	var answers strings.Builder
	for _, e := range sc.History {
		answers.WriteString(e.Answer)
		answers.WriteString("\n")
	}
	flags := computeContextFlags(sc.Profile, answers.String())
	if sc.Memory.HasUSRelatives {
		flags["has_us_relatives"] = true
	}

	pool := make([]domain.Question, 0, bank.Len())
	for _, q := range bank.ForRoute(sc.Route) {
		if _, dup := asked[q.ID]; dup {
			continue
		}
		if cluster := questionbank.Classify(q.Text); cluster != "" {
			if _, hot := recent[cluster]; hot {
				continue
			}
		}
		if q.RequiresContext != "" && !flags[q.RequiresContext] {
			continue
		}
		if sc.Route == domain.RouteF1 && !degreeLevelAllowed(q, sc.Profile.DegreeLevel) {
			continue
		}
		if maxCount, capped := sc.Mode.CategoryMax[q.Category]; capped && sc.CategoryCoverage[q.Category] >= maxCount {
			continue
		}
		pool = append(pool, q)
	}

	// Difficulty restriction applies only when it leaves at least one
	// candidate. It never over-filters to empty.
	if target := s.targetDifficulty(sc); target != "" {
		restricted := make([]domain.Question, 0, len(pool))
		for _, q := range pool {
			if q.Difficulty == target {
				restricted = append(restricted, q)
			}
		}
		if len(restricted) > 0 {
			pool = restricted
		}
	}
	return pool
}

// targetDifficulty resolves the explicit target or the progressive schedule
// (easy opening, medium middle, hard closing third).
func (s *Selector) targetDifficulty(sc Context) domain.Difficulty {
	if sc.TargetDifficulty != "" {
		return sc.TargetDifficulty
	}
	if sc.Mode.TargetDifficulty != "" {
		return sc.Mode.TargetDifficulty
	}
	if !sc.Mode.ProgressiveDifficulty || sc.Mode.TotalQuestions <= 0 {
		return ""
	}
	third := sc.Mode.TotalQuestions / 3
	switch {
	case sc.Step <= third:
		return domain.DifficultyEasy
	case sc.Step > sc.Mode.TotalQuestions-third:
		return domain.DifficultyHard
	default:
		return domain.DifficultyMedium
	}
}

func recentClusters(clusters []string, window int) map[string]struct{} {
	out := make(map[string]struct{}, window)
	start := len(clusters) - window
	if start < 0 {
		start = 0
	}
	for _, c := range clusters[start:] {
		if c != "" {
			out[c] = struct{}{}
		}
	}
	return out
}

type rankingResponse struct {
	QuestionID string `json:"question_id"`
	Reasoning  string `json:"reasoning"`
}

// rankWithLLM asks the provider to choose from the filtered pool. The
// returned ID is untrusted control input: it must name a question in the
// pre-LLM candidate set and must not already appear in history, otherwise the
// result is discarded and the deterministic path takes over.
func (s *Selector) rankWithLLM(ctx context.Context, pool []domain.Question, sc Context, historyTexts []string) (Selection, bool) {
	candidates := pool
	if len(candidates) > maxRankingCandidates {
		slog.Warn("ranking candidate list truncated",
			slog.String("session_id", sc.SessionID),
			slog.Int("pool", len(pool)),
			slog.Int("sent", maxRankingCandidates))
		candidates = candidates[:maxRankingCandidates]
	}

	callCtx, cancel := context.WithTimeout(ctx, s.rankTimeout)
	defer cancel()

	start := time.Now()
	raw, err := s.ai.ChatJSON(callCtx, rankingSystemPrompt, s.buildRankingPrompt(candidates, sc), 300)
	if err != nil {
		observability.ObserveAICall("rank", "error", time.Since(start))
		observability.RecordSelectorAnomaly("provider_error")
		slog.Warn("LLM ranking failed; using rule-based fallback",
			slog.String("session_id", sc.SessionID), slog.Any("error", err))
		return Selection{}, false
	}
	observability.ObserveAICall("rank", "ok", time.Since(start))

	var resp rankingResponse
	if err := jsonx.Unmarshal(raw, &resp); err != nil {
		observability.RecordSelectorAnomaly("malformed_json")
		slog.Warn("LLM ranking returned malformed JSON",
			slog.String("session_id", sc.SessionID), slog.Any("error", err))
		return Selection{}, false
	}

	var chosen domain.Question
	found := false
	for _, q := range pool {
		if q.ID == resp.QuestionID {
			chosen = q
			found = true
			break
		}
	}
	if !found {
		// Never trust an unverified ID.
		observability.RecordSelectorAnomaly("id_not_in_pool")
		slog.Warn("LLM chose a question outside the candidate pool",
			slog.String("session_id", sc.SessionID),
			slog.String("question_id", resp.QuestionID))
		return Selection{}, false
	}
	for _, id := range sc.AskedQuestionIDs {
		if id == chosen.ID {
			// Belt-and-suspenders against selector/caller desync.
			observability.RecordSelectorAnomaly("already_asked")
			slog.Warn("LLM chose an already-asked question",
				slog.String("session_id", sc.SessionID),
				slog.String("question_id", chosen.ID))
			return Selection{}, false
		}
	}
	if isDuplicate(chosen.Text, historyTexts) {
		observability.RecordSelectorAnomaly("duplicate_text")
		return Selection{}, false
	}

	return Selection{
		Question:   chosen,
		Type:       domain.QuestionTypeBank,
		QuestionID: chosen.ID,
		Cluster:    questionbank.Classify(chosen.Text),
		Reasoning:  resp.Reasoning,
		Source:     "llm",
	}, true
}

const rankingSystemPrompt = `You are an experienced visa officer conducting a mock interview. Given the candidate's progress and a list of eligible questions, choose the single most probing next question. Respond with ONLY valid JSON: {"question_id": "...", "reasoning": "..."}`

func (s *Selector) buildRankingPrompt(candidates []domain.Question, sc Context) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Route: %s. Question %d of %d.\n", sc.Route, sc.Step, sc.Mode.TotalQuestions)
	fmt.Fprintf(&b, "Candidate: %s from %s, %s at %s.\n", sc.Profile.Name, sc.Profile.Country, sc.Profile.FieldOfStudy, sc.Profile.Institution)
	if len(sc.CategoryCoverage) > 0 {
		fmt.Fprintf(&b, "Category coverage so far: %v\n", sc.CategoryCoverage)
	}
	if len(sc.AskedClusters) > 0 {
		fmt.Fprintf(&b, "Recently covered topics: %s\n", strings.Join(sc.AskedClusters, ", "))
	}
	if len(sc.DetectedRedFlags) > 0 {
		fmt.Fprintf(&b, "Red flags to probe: %s\n", strings.Join(sc.DetectedRedFlags, ", "))
	}
	b.WriteString("\nEligible questions:\n")
	for _, q := range candidates {
		fmt.Fprintf(&b, "- id=%s category=%s difficulty=%s text=%q\n", q.ID, q.Category, q.Difficulty, q.Text)
	}
	b.WriteString("\nChoose the question that best advances the interview without repeating covered topics.")
	return b.String()
}

// closing returns the fixed terminal question.
func (s *Selector) closing(sc Context) Selection {
	id := fmt.Sprintf("CLOSING_%s", strings.ToUpper(string(sc.Route)))
	return Selection{
		Question: domain.Question{
			ID:         id,
			Route:      sc.Route,
			Category:   domain.CategoryPersonal,
			Difficulty: domain.DifficultyEasy,
			Text:       closingQuestionText,
		},
		Type:       domain.QuestionTypeClosing,
		QuestionID: id,
		Source:     "closing",
	}
}
