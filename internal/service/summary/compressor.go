// Package summary compresses full per-answer history and scores into a
// bounded-size prompt for the final session-level evaluation, so the
// holistic-evaluation request stays small regardless of interview length.
package summary

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/fairyhunter13/ai-visa-interviewer/internal/adapter/ai/tokencount"
	"github.com/fairyhunter13/ai-visa-interviewer/internal/domain"
	"github.com/fairyhunter13/ai-visa-interviewer/pkg/textx"
)

const excerptLen = 100

// AnswerSummary is the compressed per-answer record.
type AnswerSummary struct {
	Index        int                 `json:"index"`
	Category     domain.Category     `json:"category,omitempty"`
	ContentScore float64             `json:"content_score"`
	Rubric       domain.RubricScores `json:"rubric,omitempty"`
	WordCount    int                 `json:"word_count"`
	Excerpt      string              `json:"excerpt"`
	RedFlags     []string            `json:"red_flags,omitempty"`
}

// Record pairs a history entry with its score and resolved category.
type Record struct {
	Entry    domain.ConversationEntry
	Score    domain.AnswerScore
	Category domain.Category
}

// Prompt is the rendered session-evaluation request.
type Prompt struct {
	System        string `json:"system"`
	User          string `json:"user"`
	TokenEstimate int    `json:"token_estimate"`
}

var (
	vagueFinanceRe  = regexp.MustCompile(`(?i)\b(enough money|we can afford|will manage|arrange the funds|family will handle)\b`)
	agentRe         = regexp.MustCompile(`(?i)\b(my (agent|consultant|consultancy)|the agency (told|said|handled))\b`)
	accommodationRe = regexp.MustCompile(`(?i)\b(not (yet )?(sure|decided) where|haven'?t (decided|found) (where|a place)|figure out (housing|accommodation))\b`)
	digitRe         = regexp.MustCompile(`[0-9]`)
)

// Summarize derives the compressed record for one answered entry using cheap
// regex heuristics for red flags.
func Summarize(rec Record) AnswerSummary {
	answer := rec.Entry.Answer
	s := AnswerSummary{
		Category:     rec.Category,
		ContentScore: rec.Score.ContentScore,
		Rubric:       rec.Score.Rubric,
		WordCount:    textx.WordCount(answer),
		Excerpt:      excerpt(answer),
	}
	if vagueFinanceRe.MatchString(answer) && !digitRe.MatchString(answer) {
		s.RedFlags = append(s.RedFlags, "vague_financials")
	}
	if agentRe.MatchString(answer) {
		s.RedFlags = append(s.RedFlags, "agent_dependency")
	}
	if accommodationRe.MatchString(answer) {
		s.RedFlags = append(s.RedFlags, "unconfirmed_accommodation")
	}
	if s.WordCount < 10 {
		s.RedFlags = append(s.RedFlags, "very_brief")
	}
	s.RedFlags = append(s.RedFlags, rec.Score.RedFlags...)
	return s
}

// BuildSummary renders the fixed-shape compact prompt: one line per answer,
// per-category averages, and a deduplicated red-flag list.
func BuildSummary(route domain.Route, profile domain.CandidateProfile, records []Record, model string) Prompt {
	summaries := make([]AnswerSummary, 0, len(records))
	for i, rec := range records {
		s := Summarize(rec)
		s.Index = i + 1
		summaries = append(summaries, s)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Candidate: %s from %s (%s route). %d answers.\n\n", profile.Name, profile.Country, route, len(summaries))

	for _, s := range summaries {
		fmt.Fprintf(&b, "Q%d: %.0f/100 (%s) %dw", s.Index, s.ContentScore, subScores(s.Rubric), s.WordCount)
		if len(s.RedFlags) > 0 {
			fmt.Fprintf(&b, " ⚠%s", strings.Join(s.RedFlags, ","))
		}
		fmt.Fprintf(&b, " %q\n", s.Excerpt)
	}

	b.WriteString("\nCategory averages: ")
	b.WriteString(categoryAverages(summaries))
	b.WriteString("\n")

	if flags := dedupFlags(summaries); len(flags) > 0 {
		fmt.Fprintf(&b, "Red flags: %s\n", strings.Join(flags, ", "))
	}

	b.WriteString("\nProvide the final holistic evaluation. Respond with ONLY valid JSON: " +
		`{"overall": 0-100, "decision": "likely_approved|borderline|likely_denied", "summary": "...", "strengths": ["..."], "weaknesses": ["..."], "recommendations": ["..."]}`)

	user := b.String()
	system := "You are a senior visa officer reviewing a completed mock interview. Judge overall credibility, consistency, and preparedness from the compressed answer records."
	return Prompt{
		System:        system,
		User:          user,
		TokenEstimate: tokencount.DefaultCounter.Count(system+user, model),
	}
}

func excerpt(answer string) string {
	answer = strings.TrimSpace(answer)
	if len(answer) <= excerptLen {
		return answer
	}
	// Cut on a rune boundary so a multibyte character is never split.
	cut := excerptLen
	for cut > 0 && !utf8.RuneStart(answer[cut]) {
		cut--
	}
	return answer[:cut]
}

func subScores(rubric domain.RubricScores) string {
	if len(rubric) == 0 {
		return "no rubric"
	}
	dims := make([]string, 0, len(rubric))
	for d := range rubric {
		dims = append(dims, d)
	}
	sort.Strings(dims)
	parts := make([]string, 0, len(dims))
	for _, d := range dims {
		parts = append(parts, fmt.Sprintf("%s %.0f", abbrev(d), rubric[d]))
	}
	return strings.Join(parts, ", ")
}

func abbrev(dim string) string {
	if len(dim) <= 4 {
		return dim
	}
	return dim[:4]
}

func categoryAverages(summaries []AnswerSummary) string {
	sums := make(map[domain.Category]float64)
	counts := make(map[domain.Category]int)
	for _, s := range summaries {
		if s.Category == "" {
			continue
		}
		sums[s.Category] += s.ContentScore
		counts[s.Category]++
	}
	cats := make([]string, 0, len(sums))
	for c := range sums {
		cats = append(cats, string(c))
	}
	sort.Strings(cats)
	parts := make([]string, 0, len(cats))
	for _, c := range cats {
		cat := domain.Category(c)
		parts = append(parts, fmt.Sprintf("%s %.0f", c, sums[cat]/float64(counts[cat])))
	}
	if len(parts) == 0 {
		return "n/a"
	}
	return strings.Join(parts, ", ")
}

func dedupFlags(summaries []AnswerSummary) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, s := range summaries {
		for _, f := range s.RedFlags {
			if _, ok := seen[f]; ok {
				continue
			}
			seen[f] = struct{}{}
			out = append(out, f)
		}
	}
	return out
}
