package factmemory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-visa-interviewer/internal/domain"
)

func TestExtractAmount(t *testing.T) {
	cases := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"The total is $50,000 per year.", 50000, true},
		{"Around 50k for tuition.", 50000, true},
		{"It costs $1.2 million.", 1200000, true},
		{"80,000 dollars in total.", 80000, true},
		{"About 30 thousand.", 30000, true},
		{"My family will pay for everything.", 0, false},
		{"I have 3 siblings.", 0, false},
	}
	for _, tc := range cases {
		got, ok := ExtractAmount(tc.in)
		assert.Equal(t, tc.ok, ok, tc.in)
		if tc.ok {
			assert.InDelta(t, tc.want, got, 0.001, tc.in)
		}
	}
}

func TestUpdateMemoryFirstValueWins(t *testing.T) {
	var mem domain.FactMemory
	mem = UpdateMemory(mem, "The total cost is $40,000 per year.", domain.CategoryFinancial)
	require.InDelta(t, 40000, mem.TotalCost, 0.001)

	// A later different figure must not overwrite the original claim.
	mem = UpdateMemory(mem, "The total cost is $55,000 per year.", domain.CategoryFinancial)
	assert.InDelta(t, 40000, mem.TotalCost, 0.001)
}

func TestUpdateMemoryCostNeedsTrigger(t *testing.T) {
	var mem domain.FactMemory
	mem = UpdateMemory(mem, "I have saved $40,000 in my bank account.", domain.CategoryFinancial)
	assert.Zero(t, mem.TotalCost)
}

func TestUpdateMemorySponsor(t *testing.T) {
	var mem domain.FactMemory
	mem = UpdateMemory(mem, "My father will sponsor my studies. He works as a civil engineer.", domain.CategoryFinancial)
	assert.Equal(t, "father", mem.Sponsor)
	assert.Equal(t, "civil engineer", mem.SponsorOccupation)

	mem = UpdateMemory(mem, "My uncle will also support me financially.", domain.CategoryFinancial)
	assert.Equal(t, "father", mem.Sponsor, "sponsor is first-value-wins")
}

func TestUpdateMemoryRelativesMonotonic(t *testing.T) {
	var mem domain.FactMemory
	mem = UpdateMemory(mem, "My brother lives in the US.", domain.CategoryPersonal)
	require.True(t, mem.HasUSRelatives)

	mem = UpdateMemory(mem, "No, I have no family abroad.", domain.CategoryPersonal)
	assert.True(t, mem.HasUSRelatives, "relatives flag never resets")
}

func TestCheckContradictionThresholds(t *testing.T) {
	mem := domain.FactMemory{TotalCost: 50000}

	// 22% above the recorded claim.
	assert.Equal(t, ContradictionMajor, CheckContradiction(mem, "It will be $61,000 in total."))
	// 14% above.
	assert.Equal(t, ContradictionMinor, CheckContradiction(mem, "Roughly $57,000."))
	// 8% above: within tolerance.
	assert.Equal(t, ContradictionNone, CheckContradiction(mem, "Around $54,000."))
	// No recorded claim yet.
	assert.Equal(t, ContradictionNone, CheckContradiction(domain.FactMemory{}, "It is $90,000."))
	// No numeric amount in the new answer.
	assert.Equal(t, ContradictionNone, CheckContradiction(mem, "My parents handle the cost."))
}

func TestNeedsFollowUp(t *testing.T) {
	mem := domain.FactMemory{TotalCost: 50000}

	ok, reason := NeedsFollowUp(domain.CategoryFinancial, "My family will pay for everything, do not worry about the numbers at all please.", domain.FactMemory{})
	require.True(t, ok)
	assert.Equal(t, ReasonFinanceNoNumber, reason)

	ok, reason = NeedsFollowUp(domain.CategoryAcademic, "The program actually costs $75,000 per year if I remember correctly.", mem)
	require.True(t, ok)
	assert.Equal(t, ReasonContradiction, reason)

	ok, reason = NeedsFollowUp(domain.CategoryPersonal, "Yes I am sure about this one.", domain.FactMemory{})
	require.True(t, ok)
	assert.Equal(t, ReasonTooVague, reason)

	ok, _ = NeedsFollowUp(domain.CategoryAcademic, "I completed my undergraduate degree in computer science at the University of Dhaka with a GPA of 3.7 out of 4.", domain.FactMemory{})
	assert.False(t, ok)
}
