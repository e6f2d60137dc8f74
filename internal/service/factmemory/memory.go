// Package factmemory extracts structured facts from free-text answers and
// flags numeric contradictions against previously recorded claims.
//
// Extraction is regex-based and inherently approximate: it is a best-effort
// signal, not a source of truth, and is kept behind this package boundary so
// it can be replaced by a structured-extraction model without touching the
// selector or scorer.
package factmemory

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/fairyhunter13/ai-visa-interviewer/internal/domain"
)

// ContradictionLevel grades a numeric mismatch against recorded facts.
type ContradictionLevel string

const (
	ContradictionNone  ContradictionLevel = "none"
	ContradictionMinor ContradictionLevel = "minor"
	ContradictionMajor ContradictionLevel = "major"
)

// Follow-up reasons returned by NeedsFollowUp.
const (
	ReasonFinanceNoNumber = "finance_no_number"
	ReasonContradiction   = "contradiction"
	ReasonTooVague        = "too_vague"
)

var (
	// amountRe matches currency figures: "$50,000", "50k", "$1.2 million",
	// "80,000 dollars". A bare number with neither "$" nor a unit suffix is
	// not treated as money.
	amountRe = regexp.MustCompile(`(?i)(\$)\s*([0-9][0-9,]*(?:\.[0-9]+)?)\s*(k\b|thousand|million)?|([0-9][0-9,]*(?:\.[0-9]+)?)\s*(k\b|thousand|million|dollars|usd)`)

	digitRe = regexp.MustCompile(`[0-9]`)

	sponsorRe    = regexp.MustCompile(`(?i)\b(father|mother|parents|uncle|aunt|brother|sister|grandfather|grandmother|employer|myself|my own savings)\b`)
	occupationRe = regexp.MustCompile(`(?i)(?:works as|working as|is employed as|employed as)\s+(?:a|an)?\s*([a-z][a-z ]{2,40}?)(?:[.,;]|$)`)
	roleRe       = regexp.MustCompile(`(?i)(?:work as|join as|become|take up a role as|role of)\s+(?:a|an)?\s*([a-z][a-z ]{2,40}?)(?:[.,;]|$)`)
	returnRe     = regexp.MustCompile(`(?i)(?:return to|go back to|back in)\s+([A-Z][a-zA-Z]{2,30})`)
	relativesRe  = regexp.MustCompile(`(?i)\b(brother|sister|uncle|aunt|cousin|father|mother|relatives|family)\b.{0,50}\bin the (us|usa|states|united states)\b`)
)

// costTriggers gate the total-cost extractor: an amount is only recorded as
// total cost when the answer is actually talking about cost.
var costTriggers = []string{"total", "year", "tuition", "cost", "fee", "expense"}

// ExtractAmount returns the first monetary amount in text, normalized to
// dollars, or false when none is found.
func ExtractAmount(text string) (float64, bool) {
	m := amountRe.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	num, unit := m[2], m[3]
	if num == "" {
		num, unit = m[4], m[5]
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(num, ",", ""), 64)
	if err != nil {
		return 0, false
	}
	switch strings.ToLower(strings.TrimSpace(unit)) {
	case "k", "thousand":
		v *= 1_000
	case "million":
		v *= 1_000_000
	}
	return v, true
}

// UpdateMemory runs the extractor battery over answerText and returns a new
// memory value. Each fact is set only if currently unset (first-value-wins):
// the memory represents the candidate's original claim for later consistency
// checking. HasUSRelatives is monotonically set true.
func UpdateMemory(mem domain.FactMemory, answerText string, questionCategory domain.Category) domain.FactMemory {
	lower := strings.ToLower(answerText)

	if mem.TotalCost == 0 && containsAny(lower, costTriggers) {
		if v, ok := ExtractAmount(answerText); ok {
			mem.TotalCost = v
		}
	}
	if mem.ScholarshipAmount == 0 && containsAny(lower, []string{"scholarship", "assistantship", "waiver"}) {
		if v, ok := ExtractAmount(answerText); ok {
			mem.ScholarshipAmount = v
		}
	}
	if mem.LoanAmount == 0 && containsAny(lower, []string{"loan", "borrow"}) {
		if v, ok := ExtractAmount(answerText); ok {
			mem.LoanAmount = v
		}
	}
	if mem.Sponsor == "" {
		if m := sponsorRe.FindString(answerText); m != "" && containsAny(lower, []string{"sponsor", "pay", "fund", "support", "finance"}) {
			mem.Sponsor = strings.ToLower(m)
		}
	}
	if mem.SponsorOccupation == "" {
		if m := occupationRe.FindStringSubmatch(answerText); m != nil {
			mem.SponsorOccupation = strings.TrimSpace(strings.ToLower(m[1]))
		}
	}
	if mem.PostStudyRole == "" && (questionCategory == domain.CategoryPostStudy || questionCategory == domain.CategoryIntent) {
		if m := roleRe.FindStringSubmatch(answerText); m != nil {
			mem.PostStudyRole = strings.TrimSpace(strings.ToLower(m[1]))
		}
	}
	if mem.ReturnCountry == "" {
		if m := returnRe.FindStringSubmatch(answerText); m != nil {
			mem.ReturnCountry = m[1]
		}
	}
	if relativesRe.MatchString(answerText) {
		mem.HasUSRelatives = true
	}
	return mem
}

// CheckContradiction compares a numeric amount in the new answer against the
// first-recorded total cost. Relative delta >20% is major, >10% minor.
// This is the only contradiction axis checked numerically; sponsor and
// occupation mismatches are surfaced to the scorer as prompt context instead,
// because free-text entity comparison is unreliable.
func CheckContradiction(mem domain.FactMemory, answerText string) ContradictionLevel {
	if mem.TotalCost <= 0 {
		return ContradictionNone
	}
	v, ok := ExtractAmount(answerText)
	if !ok {
		return ContradictionNone
	}
	delta := math.Abs(v-mem.TotalCost) / mem.TotalCost
	switch {
	case delta > 0.20:
		return ContradictionMajor
	case delta > 0.10:
		return ContradictionMinor
	default:
		return ContradictionNone
	}
}

// NeedsFollowUp is a cheap local gate, independent of the LLM-assisted
// follow-up rules in the selector.
func NeedsFollowUp(questionCategory domain.Category, answerText string, mem domain.FactMemory) (bool, string) {
	if questionCategory == domain.CategoryFinancial && !digitRe.MatchString(answerText) && len(answerText) < 100 {
		return true, ReasonFinanceNoNumber
	}
	if CheckContradiction(mem, answerText) != ContradictionNone {
		return true, ReasonContradiction
	}
	if len(strings.TrimSpace(answerText)) < 30 {
		return true, ReasonTooVague
	}
	return false, ""
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
