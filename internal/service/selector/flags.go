package selector

import (
	"regexp"
	"strings"

	"github.com/fairyhunter13/ai-visa-interviewer/internal/domain"
)

var (
	failuresRe    = regexp.MustCompile(`(?i)\b(fail(ed|ure)?s?|backlogs?|repeat(ed)? a (course|year))\b`)
	scholarshipRe = regexp.MustCompile(`(?i)\b(scholarship|assistantship|fee waiver)\b`)
	usRelativesRe = regexp.MustCompile(`(?i)\b(relatives|brother|sister|uncle|aunt|cousin)\b.{0,50}\bin the (us|usa|states|united states)\b`)
	workExpRe     = regexp.MustCompile(`(?i)\b(work experience|my employer|my job|working as|worked (at|for))\b`)
)

// computeContextFlags derives the per-turn flag map from the profile and the
// full answer text. Questions carrying a RequiresContext tag are only
// eligible when their flag is true.
func computeContextFlags(profile domain.CandidateProfile, answers string) map[string]bool {
	flags := map[string]bool{
		"has_failures":        failuresRe.MatchString(answers),
		"has_scholarship":     scholarshipRe.MatchString(answers),
		"has_us_relatives":    usRelativesRe.MatchString(answers),
		"has_work_experience": workExpRe.MatchString(answers),
		"low_gpa":             profile.GPA > 0 && profile.GPA < 3.0,
	}
	switch strings.ToLower(profile.DegreeLevel) {
	case "undergraduate":
		flags["degree_undergraduate"] = true
	case "graduate", "masters", "master's":
		flags["degree_graduate"] = true
	case "doctorate", "phd":
		flags["degree_doctorate"] = true
	}
	return flags
}

var (
	undergradPhrasingRe = regexp.MustCompile(`(?i)your undergraduate degree`)
	doctoratePhrasingRe = regexp.MustCompile(`(?i)\b(dissertation|advisor|publication)`)
	phdPlanRe           = regexp.MustCompile(`(?i)plan to pursue a phd`)
)

// degreeLevelAllowed filters questions inappropriate for the candidate's
// declared degree level; it only runs on the F1 route.
//
// Undergraduates are not asked about "your undergraduate degree" (they do not
// have one yet); non-doctorate candidates are not asked dissertation/advisor/
// publication questions, with a carve-out so graduate candidates can still be
// asked whether they plan to pursue a PhD.
func degreeLevelAllowed(q domain.Question, degreeLevel string) bool {
	level := strings.ToLower(degreeLevel)
	if level == "" {
		return true
	}
	if level == "undergraduate" && undergradPhrasingRe.MatchString(q.Text) {
		return false
	}
	isDoctorate := level == "doctorate" || level == "phd"
	if !isDoctorate && doctoratePhrasingRe.MatchString(q.Text) {
		isGraduate := level == "graduate" || level == "masters" || level == "master's"
		if isGraduate && phdPlanRe.MatchString(q.Text) {
			return true
		}
		return false
	}
	return true
}

// interviewStage names a position in the fixed F1 interview flow.
type interviewStage string

const (
	stageStudyPlans         interviewStage = "study_plans"
	stageUniversityChoice   interviewStage = "university_choice"
	stageAcademicCapability interviewStage = "academic_capability"
	stageFinancial          interviewStage = "financial"
	stagePostStudy          interviewStage = "post_study"
)

// stageFor maps the 1-based question index to an interview stage on the F1
// route: 1-2 study plans, 3 university choice, 4 academic capability,
// 5-6 financial, 7+ post-study.
func stageFor(step int) interviewStage {
	switch {
	case step <= 2:
		return stageStudyPlans
	case step == 3:
		return stageUniversityChoice
	case step == 4:
		return stageAcademicCapability
	case step <= 6:
		return stageFinancial
	default:
		return stagePostStudy
	}
}

// stageSignatures are the topic keywords that qualify a question for a stage.
var stageSignatures = map[interviewStage][]string{
	stageStudyPlans:         {"study", "plan", "course", "program", "background"},
	stageUniversityChoice:   {"university", "apply", "choose"},
	stageAcademicCapability: {"test", "scores", "academic", "gpa", "english", "grades", "backlog", "research", "advisor"},
	stageFinancial:          {"cost", "tuition", "fund", "sponsor", "scholarship", "loan", "income", "occupation"},
	stagePostStudy:          {"return", "career", "after", "plans", "job", "ties", "family", "relatives", "visa"},
}

// matchesStage reports whether a question's keywords intersect the stage's
// topic signature.
func matchesStage(q domain.Question, stage interviewStage) bool {
	sig := stageSignatures[stage]
	for _, kw := range q.Keywords {
		for _, s := range sig {
			if strings.EqualFold(kw, s) {
				return true
			}
		}
	}
	return false
}

// applyStageGate restricts pool to the current stage's topic, falling back to
// the whole pool when the restriction would empty the set.
func applyStageGate(pool []domain.Question, step int) []domain.Question {
	stage := stageFor(step)
	gated := make([]domain.Question, 0, len(pool))
	for _, q := range pool {
		if matchesStage(q, stage) {
			gated = append(gated, q)
		}
	}
	if len(gated) == 0 {
		return pool
	}
	return gated
}
