package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTextTokenizer_LowercasesAndSplits(t *testing.T) {
	tok := NewDefaultTokenizer()

	tokens := tok.Tokenize("Hypertension: Elevated Blood-Pressure readings")

	assert.Equal(t, []string{"hypertension", "elevated", "blood", "pressure", "readings"}, tokens)
}

func TestTextTokenizer_RemovesStopWords(t *testing.T) {
	tok := NewDefaultTokenizer()

	tokens := tok.Tokenize("the treatment of hypertension is a priority")

	assert.NotContains(t, tokens, "the")
	assert.NotContains(t, tokens, "of")
	assert.NotContains(t, tokens, "is")
	assert.Contains(t, tokens, "treatment")
	assert.Contains(t, tokens, "hypertension")
}

func TestTextTokenizer_KeepsAlphanumericTerms(t *testing.T) {
	tok := NewDefaultTokenizer()

	tokens := tok.Tokenize("type 25 diabetes stage 3b")

	assert.Contains(t, tokens, "25")
	assert.Contains(t, tokens, "diabetes")
	assert.Contains(t, tokens, "3b")
}

func TestTextTokenizer_SingleCharTokenAllowed(t *testing.T) {
	tok := NewTextTokenizer(nil, 1)

	tokens := tok.Tokenize("vitamin d deficiency")

	assert.Contains(t, tokens, "d")
}

func TestTextTokenizer_MinLengthFilter(t *testing.T) {
	tok := NewTextTokenizer(nil, 3)

	tokens := tok.Tokenize("bp is elevated")

	assert.NotContains(t, tokens, "bp")
	assert.Contains(t, tokens, "elevated")
}

func TestTextTokenizer_EmptyInput(t *testing.T) {
	tok := NewDefaultTokenizer()

	assert.Empty(t, tok.Tokenize(""))
	assert.Empty(t, tok.Tokenize("   \n\t "))
	assert.Empty(t, tok.Tokenize("...!!!"))
}

func TestBuildStopWordMap(t *testing.T) {
	m := BuildStopWordMap([]string{"The", "of"})

	_, hasThe := m["the"]
	_, hasOf := m["of"]
	assert.True(t, hasThe)
	assert.True(t, hasOf)
	assert.Len(t, m, 2)
}
