package textx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeText(t *testing.T) {
	assert.Equal(t, "hello world", SanitizeText("  hello world  "))
	assert.Equal(t, "a\nb", SanitizeText("a\nb"))
	assert.Equal(t, "ab", SanitizeText("a\x00\x07b"))
	assert.Equal(t, "", SanitizeText("\x01\x02"))
}

func TestWordCount(t *testing.T) {
	assert.Zero(t, WordCount(""))
	assert.Zero(t, WordCount("   "))
	assert.Equal(t, 3, WordCount("one  two\tthree"))
}
