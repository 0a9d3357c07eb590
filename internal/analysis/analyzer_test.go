package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStandardAnalyzerKeepsEveryToken(t *testing.T) {
	a := NewStandardAnalyzer()
	tokens := a.Analyze("The Quick Brown Fox")
	require.Len(t, tokens, 4)
	want := []string{"the", "quick", "brown", "fox"}
	for i, tok := range tokens {
		assert.Equal(t, want[i], tok.Term)
		assert.Equal(t, i, tok.Position)
	}
}

func TestStandardAnalyzerSingleCharacter(t *testing.T) {
	a := NewStandardAnalyzer()
	tokens := a.Analyze("a a b")
	require.Len(t, tokens, 3)
	assert.Equal(t, "a", tokens[0].Term)
	assert.Equal(t, "a", tokens[1].Term)
	assert.Equal(t, "b", tokens[2].Term)
	assert.Equal(t, []int{0, 1, 2}, []int{tokens[0].Position, tokens[1].Position, tokens[2].Position})
}

func TestStandardAnalyzerSplitsPunctuation(t *testing.T) {
	a := NewStandardAnalyzer()
	tokens := a.Analyze("hello, world! 42")
	require.Len(t, tokens, 3)
	assert.Equal(t, "hello", tokens[0].Term)
	assert.Equal(t, "world", tokens[1].Term)
	assert.Equal(t, "42", tokens[2].Term)
}

func TestStandardAnalyzerEmptyInput(t *testing.T) {
	a := NewStandardAnalyzer()
	assert.Empty(t, a.Analyze(""))
	assert.Empty(t, a.Analyze("  ...  "))
}

func TestEnglishAnalyzerStopWordsAndStemming(t *testing.T) {
	a := NewEnglishAnalyzer()
	tokens := a.Analyze("the running dogs")
	require.Len(t, tokens, 2)
	assert.Equal(t, "runn", tokens[0].Term)
	assert.Equal(t, "dog", tokens[1].Term)
	assert.Equal(t, 0, tokens[0].Position)
	assert.Equal(t, 1, tokens[1].Position)
}

func TestEnglishAnalyzerDropsShortWords(t *testing.T) {
	a := NewEnglishAnalyzer()
	tokens := a.Analyze("a b code")
	require.Len(t, tokens, 1)
	assert.Equal(t, "code", tokens[0].Term)
}

func TestValidRejectsEmbeddedNul(t *testing.T) {
	assert.False(t, valid("bad\x00term"))
	assert.False(t, valid(""))
	assert.True(t, valid("fine"))
}
