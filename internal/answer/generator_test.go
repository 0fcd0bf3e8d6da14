package answer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinrag/clinrag/internal/corpus"
	"github.com/clinrag/clinrag/internal/search"
)

func sampleResults() []*search.Result {
	return []*search.Result{
		{Chunk: &corpus.Chunk{ID: 0, ChapterNumber: 178, ChapterTitle: "Headache", Text: "Migraine is an episodic primary headache disorder."}},
		{Chunk: &corpus.Chunk{ID: 7, ChapterNumber: 178, ChapterTitle: "Headache", Text: "Treatment includes triptans for acute attacks."}},
	}
}

func TestNewGenerator_ValidatesConfig(t *testing.T) {
	_, err := NewGenerator(Config{Model: "gpt-4o-mini"})
	assert.Error(t, err)

	_, err = NewGenerator(Config{APIKey: "key"})
	assert.Error(t, err)

	g, err := NewGenerator(DefaultConfig("key"))
	require.NoError(t, err)
	assert.Equal(t, DefaultContextChunks, g.config.ContextChunks)
	assert.Equal(t, DefaultMaxTokens, g.config.MaxTokens)
}

func TestFormatContext_NumbersSources(t *testing.T) {
	out := formatContext(sampleResults())

	assert.Contains(t, out, "[Source 1] Chapter 178, Headache")
	assert.Contains(t, out, "[Source 2] Chapter 178, Headache")
	assert.Contains(t, out, "Migraine is an episodic primary headache disorder.")
	assert.Contains(t, out, "\n\n---\n\n")
}

func TestFormatContext_TruncatesLongChunks(t *testing.T) {
	long := []*search.Result{
		{Chunk: &corpus.Chunk{ChapterNumber: 1, ChapterTitle: "Long", Text: strings.Repeat("x", 5000)}},
	}
	out := formatContext(long)
	assert.Less(t, len(out), 1500)
}

func TestBuildPrompt_ContainsAllSections(t *testing.T) {
	prompt := buildPrompt("What causes migraine?", "[Source 1] Chapter 178, Headache\ncontext text")

	for _, section := range []string{
		"## RESPONSE STRUCTURE",
		"### 1. Overview",
		"### 4. Treatment",
		"**Acute Management**",
		"**Preventive Management**",
		"## GROUNDING RULES",
		"## CONTEXT",
		"## QUESTION",
		"## ANSWER",
	} {
		assert.Contains(t, prompt, section)
	}
	assert.Contains(t, prompt, "What causes migraine?")
	assert.Contains(t, prompt, "context text")

	// Context precedes the question, question precedes the answer slot
	ctxIdx := strings.Index(prompt, "## CONTEXT")
	qIdx := strings.Index(prompt, "## QUESTION")
	aIdx := strings.Index(prompt, "## ANSWER")
	assert.Less(t, ctxIdx, qIdx)
	assert.Less(t, qIdx, aIdx)
}

func TestCleanAnswer_StripsThinkBlocks(t *testing.T) {
	assert.Equal(t, "Final answer.", cleanAnswer("<think>reasoning here</think>\nFinal answer."))
	assert.Equal(t, "Partial.", cleanAnswer("Partial.\n<think>unterminated"))
	assert.Equal(t, "Plain answer.", cleanAnswer("  Plain answer.  "))
}
