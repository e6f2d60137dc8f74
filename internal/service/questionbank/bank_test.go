package questionbank

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-visa-interviewer/internal/domain"
)

func TestLoadEmbeddedCatalogue(t *testing.T) {
	bank, err := NewLoader("").Load(context.Background())
	require.NoError(t, err)
	require.NotZero(t, bank.Len())

	// Every F1 pool question is either f1-specific or shared.
	for _, q := range bank.ForRoute(domain.RouteF1) {
		assert.Contains(t, []domain.Route{domain.RouteF1, domain.RouteBoth}, q.Route, q.ID)
	}
	b2 := bank.ForRoute(domain.RouteB1B2)
	require.NotEmpty(t, b2)
	for _, q := range b2 {
		assert.NotEqual(t, domain.RouteF1, q.Route, q.ID)
	}
}

func TestLoaderCaches(t *testing.T) {
	l := NewLoader("")
	a, err := l.Load(context.Background())
	require.NoError(t, err)
	b, err := l.Load(context.Background())
	require.NoError(t, err)
	assert.Same(t, a, b)
}

func TestParseRejectsDuplicateIDs(t *testing.T) {
	raw := []byte(`
questions:
  - id: Q1
    route: f1
    category: financial
    difficulty: easy
    text: "Who is paying for your studies?"
  - id: Q1
    route: f1
    category: academic
    difficulty: medium
    text: "What was your GPA?"
`)
	_, err := Parse(raw)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestParseRejectsBadEnums(t *testing.T) {
	raw := []byte(`
questions:
  - id: Q1
    route: h1b
    category: financial
    difficulty: easy
    text: "Who is paying?"
`)
	_, err := Parse(raw)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	raw = []byte(`
questions:
  - id: Q1
    route: f1
    category: financial
    difficulty: brutal
    text: "Who is paying?"
`)
	_, err = Parse(raw)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestParseRejectsEmpty(t *testing.T) {
	_, err := Parse([]byte("questions: []"))
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestClassify(t *testing.T) {
	cases := []struct {
		text string
		want string
	}{
		{"Who is paying for your studies?", "finance_sponsor"},
		{"Do you have a scholarship or assistantship?", "scholarship"},
		{"Have you taken an education loan?", "loan"},
		{"What is the total cost of your program?", "finance_cost"},
		{"Why did you choose this university over other universities?", "university_choice"},
		{"What will you do after you graduate?", "post_study_plans"},
		{"Do you have relatives in the US?", "us_relatives"},
		{"Where will you stay during your visit?", "accommodation"},
		{"What is the purpose of your trip?", "visit_purpose"},
		{"Have you ever been refused a visa?", "immigration_history"},
		{"Tell me about yourself.", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Classify(tc.text), tc.text)
	}
}

func TestClassifyOrderPrefersSpecific(t *testing.T) {
	// Mentions both scholarship and tuition; the more specific cluster wins.
	assert.Equal(t, "scholarship", Classify("Does your scholarship cover the full tuition?"))
}

func TestEmbeddedQuestionsClassifiable(t *testing.T) {
	bank, err := NewLoader("").Load(context.Background())
	require.NoError(t, err)
	clustered := 0
	for _, q := range bank.Questions() {
		if Classify(q.Text) != "" {
			clustered++
		}
	}
	// Most of the catalogue should land in a topic cluster for the
	// repetition window to be useful.
	assert.Greater(t, clustered, bank.Len()/2)
}
