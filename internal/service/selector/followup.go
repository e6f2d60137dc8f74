package selector

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/fairyhunter13/ai-visa-interviewer/internal/domain"
	"github.com/fairyhunter13/ai-visa-interviewer/internal/service/factmemory"
)

// followUpRule probes the last answer for a pattern that warrants an
// immediate drill-down before moving on. Rules are ordered; first match wins.
type followUpRule struct {
	name     string
	category domain.Category
	trigger  func(answer string) bool
	text     string
}

var digitsRe = regexp.MustCompile(`[0-9]`)

func mentionsAny(answer string, words ...string) bool {
	lower := strings.ToLower(answer)
	for _, w := range words {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

var f1FollowUps = []followUpRule{
	{
		name:     "sponsor_no_amount",
		category: domain.CategoryFinancial,
		trigger: func(a string) bool {
			return mentionsAny(a, "sponsor", "pay", "fund") && !digitsRe.MatchString(a)
		},
		text: "You mentioned someone will fund your studies. What exact amount will they provide per year?",
	},
	{
		name:     "scholarship_no_amount",
		category: domain.CategoryFinancial,
		trigger: func(a string) bool {
			return mentionsAny(a, "scholarship", "assistantship") && !digitsRe.MatchString(a)
		},
		text: "You mentioned a scholarship. How much does it cover, and who awards it?",
	},
	{
		name:     "vague_return_plan",
		category: domain.CategoryIntent,
		trigger: func(a string) bool {
			return mentionsAny(a, "return", "go back") && len(strings.TrimSpace(a)) < 60
		},
		text: "You said you will return home. What specifically will you do when you return?",
	},
}

var b1b2FollowUps = []followUpRule{
	{
		name:     "payment_no_amount",
		category: domain.CategoryFinancial,
		trigger: func(a string) bool {
			return mentionsAny(a, "sponsor", "pay", "fund") && !digitsRe.MatchString(a)
		},
		text: "You mentioned someone will pay for the trip. How much will it cost in total, and who exactly is paying?",
	},
	{
		name:     "vague_stay",
		category: domain.CategoryIntent,
		trigger: func(a string) bool {
			return mentionsAny(a, "stay", "visit") && !digitsRe.MatchString(a)
		},
		text: "Exactly how long do you plan to stay, and what is your return date?",
	},
}

// declaredTriggerRule consults the answered question's own follow_up_triggers
// from the catalogue: a declared word mentioned without a figure warrants a
// drill-down even when no route rule matched.
func declaredTriggerRule(q domain.Question, answer string) (followUpRule, bool) {
	if len(q.FollowUpTriggers) == 0 || digitsRe.MatchString(answer) {
		return followUpRule{}, false
	}
	for _, word := range q.FollowUpTriggers {
		if !mentionsAny(answer, word) {
			continue
		}
		return followUpRule{
			name:     "declared_trigger_" + word,
			category: q.Category,
			text:     fmt.Sprintf("You mentioned %s in your answer. What exact figures are involved?", word),
		}, true
	}
	return followUpRule{}, false
}

// memoryGateRule maps a fact-memory gate reason to a generic probing
// follow-up. The route rules and declared triggers run first; the gate is the
// catch-all for answers they let through.
func memoryGateRule(reason string, lastQuestion domain.Question) (followUpRule, bool) {
	switch reason {
	case factmemory.ReasonFinanceNoNumber:
		return followUpRule{
			name:     reason,
			category: domain.CategoryFinancial,
			text:     "Could you put a specific dollar figure on that?",
		}, true
	case factmemory.ReasonContradiction:
		return followUpRule{
			name:     reason,
			category: domain.CategoryFinancial,
			text:     "That figure seems to differ from what you told me earlier. What is the exact amount?",
		}, true
	case factmemory.ReasonTooVague:
		category := lastQuestion.Category
		if category == "" {
			category = domain.CategoryPersonal
		}
		return followUpRule{
			name:     reason,
			category: category,
			text:     "That was very brief. Could you expand on that with specific details?",
		}, true
	}
	return followUpRule{}, false
}

func followUpRulesFor(route domain.Route) []followUpRule {
	if route == domain.RouteB1B2 {
		return b1b2FollowUps
	}
	return f1FollowUps
}

// followUpID synthesizes a trackable ID for a follow-up question. Follow-ups
// are not bank members, so the ID must never collide with bank IDs; the
// FOLLOWUP_ prefix plus timestamp guarantees that.
func followUpID(route domain.Route, step int) string {
	return fmt.Sprintf("FOLLOWUP_%s_%d_%d", strings.ToUpper(string(route)), step, time.Now().UnixMilli())
}
