package cmd

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinrag/clinrag/internal/config"
	"github.com/clinrag/clinrag/internal/store"
)

func TestNewRootCmd_RegistersSubcommands(t *testing.T) {
	root := NewRootCmd()

	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}

	for _, want := range []string{"index", "search", "ask", "eval", "stats", "version"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}
}

func TestNewRootCmd_PersistentFlags(t *testing.T) {
	root := NewRootCmd()

	for _, flag := range []string{"data-dir", "log-level", "json-logs"} {
		assert.NotNil(t, root.PersistentFlags().Lookup(flag), "missing flag %s", flag)
	}
}

func TestSearchCmd_RequiresQuery(t *testing.T) {
	root := NewRootCmd()
	root.SetArgs([]string{"search"})
	root.SetOut(&strings.Builder{})
	root.SetErr(&strings.Builder{})

	err := root.Execute()
	require.Error(t, err)
}

func TestBM25Config_FromSearchConfig(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Search.BM25K1 = 1.6
	cfg.Search.BM25B = 0.5

	bc := bm25Config(cfg)
	assert.Equal(t, 1.6, bc.K1)
	assert.Equal(t, 0.5, bc.B)
	assert.Equal(t, store.DefaultStopWords, bc.StopWords)

	cfg.Search.StopWords = []string{"the"}
	assert.Equal(t, []string{"the"}, bm25Config(cfg).StopWords)
}

func TestExcerpt(t *testing.T) {
	assert.Equal(t, "short text", excerpt("short   text", 50))

	long := strings.Repeat("word ", 100)
	out := excerpt(long, 40)
	assert.LessOrEqual(t, len(out), 44)
	assert.True(t, strings.HasSuffix(out, "..."))

	// No space before the cutoff falls back to a hard cut
	assert.Equal(t, strings.Repeat("x", 10)+"...", excerpt(strings.Repeat("x", 30), 10))
}
