package selector

import (
	"hash/fnv"
	"strconv"

	"github.com/fairyhunter13/ai-visa-interviewer/internal/domain"
)

// fallbackSeed derives a stable seed from the session and step so that
// repeated runs with identical history pick the same question. Determinism
// here matters: the fallback is exercised exactly when the LLM path is
// flaky, which is when reproducibility is most valuable.
func fallbackSeed(sessionID string, step int) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(sessionID))
	_, _ = h.Write([]byte(":"))
	_, _ = h.Write([]byte(strconv.Itoa(step)))
	return h.Sum64()
}

// ruleBasedPick deterministically selects from pool: prefer a category below
// its configured minimum, otherwise the least-covered category; within the
// chosen category prefer non-hard difficulty; index via hash(seed) % size.
func ruleBasedPick(pool []domain.Question, sc Context) (domain.Question, bool) {
	if len(pool) == 0 {
		return domain.Question{}, false
	}

	category := pickCategory(pool, sc)
	candidates := make([]domain.Question, 0, len(pool))
	soft := make([]domain.Question, 0, len(pool))
	for _, q := range pool {
		if q.Category != category {
			continue
		}
		candidates = append(candidates, q)
		if q.Difficulty != domain.DifficultyHard {
			soft = append(soft, q)
		}
	}
	if len(soft) > 0 {
		candidates = soft
	}
	if len(candidates) == 0 {
		candidates = pool
	}

	asked := make(map[string]struct{}, len(sc.AskedQuestionIDs))
	for _, id := range sc.AskedQuestionIDs {
		asked[id] = struct{}{}
	}

	seed := fallbackSeed(sc.SessionID, sc.Step)
	start := int(seed % uint64(len(candidates)))
	// The computed pick may collide with an already-asked question when the
	// caller's pool was not pre-filtered; walk the complement before giving up.
	for i := 0; i < len(candidates); i++ {
		q := candidates[(start+i)%len(candidates)]
		if _, dup := asked[q.ID]; !dup {
			return q, true
		}
	}
	return domain.Question{}, false
}

// categoryOrder fixes the iteration order over categories. Both passes in
// pickCategory walk it so the pick never depends on map iteration order.
var categoryOrder = []domain.Category{
	domain.CategoryFinancial, domain.CategoryAcademic, domain.CategoryIntent,
	domain.CategoryPersonal, domain.CategoryPostStudy,
}

// pickCategory prefers any category below its configured minimum, then the
// least-covered category present in the pool.
func pickCategory(pool []domain.Question, sc Context) domain.Category {
	present := make(map[domain.Category]bool)
	for _, q := range pool {
		present[q.Category] = true
	}

	for _, cat := range categoryOrder {
		minCount, ok := sc.Mode.CategoryMin[cat]
		if ok && present[cat] && sc.CategoryCoverage[cat] < minCount {
			return cat
		}
	}

	var best domain.Category
	bestCount := -1
	for _, cat := range categoryOrder {
		if !present[cat] {
			continue
		}
		if bestCount == -1 || sc.CategoryCoverage[cat] < bestCount {
			best = cat
			bestCount = sc.CategoryCoverage[cat]
		}
	}
	return best
}
