package store

import (
	"regexp"
	"strings"
)

// Tokenizer converts text to index terms. The same tokenizer instance must
// be used at index build time and query time; diverging policies silently
// degrade recall. Domain-specific handling (abbreviations, Latin terms) can
// be supplied by swapping the implementation.
type Tokenizer interface {
	Tokenize(text string) []string
}

// wordRegex matches alphanumeric runs; everything else is a separator.
var wordRegex = regexp.MustCompile(`[a-z0-9]+`)

// TextTokenizer is the default tokenizer: lowercase, split on
// non-alphanumerics, drop stop words and short tokens. No stemming.
type TextTokenizer struct {
	stopWords map[string]struct{}
	minLength int
}

// NewTextTokenizer creates a tokenizer with the given stop word list and
// minimum token length.
func NewTextTokenizer(stopWords []string, minLength int) *TextTokenizer {
	if minLength <= 0 {
		minLength = 1
	}
	return &TextTokenizer{
		stopWords: BuildStopWordMap(stopWords),
		minLength: minLength,
	}
}

// NewDefaultTokenizer creates a tokenizer with the default English stop words.
func NewDefaultTokenizer() *TextTokenizer {
	return NewTextTokenizer(DefaultStopWords, 2)
}

// Tokenize implements Tokenizer.
func (t *TextTokenizer) Tokenize(text string) []string {
	words := wordRegex.FindAllString(strings.ToLower(text), -1)

	tokens := make([]string, 0, len(words))
	for _, w := range words {
		if len(w) < t.minLength {
			continue
		}
		if _, stop := t.stopWords[w]; stop {
			continue
		}
		tokens = append(tokens, w)
	}
	return tokens
}

// BuildStopWordMap converts a stop word list to a set for O(1) lookup.
func BuildStopWordMap(stopWords []string) map[string]struct{} {
	m := make(map[string]struct{}, len(stopWords))
	for _, w := range stopWords {
		m[strings.ToLower(w)] = struct{}{}
	}
	return m
}

// DefaultStopWords is the English stop word list applied to both corpus and
// queries. Medical terms are never stop words; this list is purely
// grammatical function words.
var DefaultStopWords = []string{
	"a", "about", "above", "after", "again", "against", "all", "am", "an",
	"and", "any", "are", "as", "at", "be", "because", "been", "before",
	"being", "below", "between", "both", "but", "by", "can", "cannot",
	"could", "did", "do", "does", "doing", "down", "during", "each", "few",
	"for", "from", "further", "had", "has", "have", "having", "he", "her",
	"here", "hers", "herself", "him", "himself", "his", "how", "i", "if",
	"in", "into", "is", "it", "its", "itself", "just", "me", "more", "most",
	"my", "myself", "no", "nor", "not", "now", "of", "off", "on", "once",
	"only", "or", "other", "our", "ours", "ourselves", "out", "over", "own",
	"same", "she", "should", "so", "some", "such", "than", "that", "the",
	"their", "theirs", "them", "themselves", "then", "there", "these",
	"they", "this", "those", "through", "to", "too", "under", "until", "up",
	"very", "was", "we", "were", "what", "when", "where", "which", "while",
	"who", "whom", "why", "will", "with", "would", "you", "your", "yours",
	"yourself", "yourselves",
}
