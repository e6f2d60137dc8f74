package questionbank

import "strings"

// semanticCluster maps a topic name to the keyword substrings that place a
// question in it. Matching is case-insensitive substring membership; the
// first matching cluster wins, so table order is the tie-break.
type semanticCluster struct {
	name     string
	keywords []string
}

// clusterTable is ordered from most to least specific so that e.g. a
// scholarship question is not swallowed by the broader finance clusters.
var clusterTable = []semanticCluster{
	{"scholarship", []string{"scholarship", "assistantship", "financial aid", "fee waiver"}},
	{"loan", []string{"loan", "borrow", "emi", "collateral"}},
	{"finance_sponsor", []string{"sponsor", "who is paying", "who will pay", "funding your", "pay for your"}},
	{"finance_cost", []string{"total cost", "tuition", "expenses", "afford", "annual cost", "cost of"}},
	{"failure_grades", []string{"backlog", "failed", "failure", "low grade", "poor grade", "gpa"}},
	{"university_choice", []string{"why this university", "choose this university", "this particular university", "other universities", "choose your university"}},
	{"course_choice", []string{"why this course", "this program", "this major", "choose this course", "field of study"}},
	{"english_ability", []string{"english", "toefl", "ielts", "duolingo"}},
	{"academic_capability", []string{"academic record", "test score", "gre", "gmat", "sat score"}},
	{"us_relatives", []string{"relatives in the us", "family in the us", "anyone in the united states", "relatives in the united states"}},
	{"work_experience", []string{"work experience", "current job", "your employer", "your occupation", "working as"}},
	{"post_study_plans", []string{"after you graduate", "after graduation", "after your studies", "career plan", "job after", "once you finish"}},
	{"return_intent", []string{"return to", "go back", "come back", "return home", "stay in the us"}},
	{"home_ties", []string{"ties to", "property", "family back home", "keep you connected"}},
	{"accommodation", []string{"where will you stay", "where will you live", "accommodation", "housing"}},
	{"visit_purpose", []string{"purpose of your", "why are you visiting", "purpose of this trip", "reason for your trip"}},
	{"immigration_history", []string{"visa before", "refused", "rejected", "traveled abroad", "previous visa"}},
}

// Classify maps question text to a named topic cluster, or "" when no cluster
// matches. Pure and deterministic: repetition is judged by topic, not exact
// wording.
func Classify(text string) string {
	t := strings.ToLower(text)
	for _, c := range clusterTable {
		for _, kw := range c.keywords {
			if strings.Contains(t, kw) {
				return c.name
			}
		}
	}
	return ""
}

// ClusterNames returns the known cluster names in table order.
func ClusterNames() []string {
	out := make([]string, len(clusterTable))
	for i, c := range clusterTable {
		out[i] = c.name
	}
	return out
}
