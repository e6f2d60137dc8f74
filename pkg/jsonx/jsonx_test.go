package jsonx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanResponse(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain object", `{"a": 1}`, `{"a": 1}`},
		{"json fence", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"bare fence", "```\n{\"a\": 1}\n```", `{"a": 1}`},
		{"leading prose", `Sure, here is the JSON: {"a": 1}`, `{"a": 1}`},
		{"trailing prose", `{"a": 1} Hope that helps!`, `{"a": 1}`},
		{"nested braces", `{"a": {"b": 2}}`, `{"a": {"b": 2}}`},
		{"brace inside string", `{"a": "close } brace"}`, `{"a": "close } brace"}`},
		{"escaped quote", `{"a": "quote \" and } brace"}`, `{"a": "quote \" and } brace"}`},
		{"no object at all", "no json here", "no json here"},
		{"unterminated object", `{"a": 1`, `{"a": 1`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, CleanResponse(tc.in))
		})
	}
}

func TestUnmarshal(t *testing.T) {
	var out struct {
		QuestionID string `json:"question_id"`
	}
	err := Unmarshal("```json\n{\"question_id\": \"F1_STU_001\"}\n```", &out)
	require.NoError(t, err)
	assert.Equal(t, "F1_STU_001", out.QuestionID)

	assert.Error(t, Unmarshal("the model refused to answer", &out))
}

func TestIsValid(t *testing.T) {
	assert.True(t, IsValid(`prose then {"ok": true} more prose`))
	assert.False(t, IsValid("nothing structured"))
}
