// Package answer turns retrieved chunks into a grounded, cited answer
// via an OpenAI-compatible chat model.
package answer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/clinrag/clinrag/internal/search"
)

const (
	// DefaultContextChunks is how many retrieved chunks feed the prompt.
	DefaultContextChunks = 5

	// maxChunkChars truncates each context block so a handful of long
	// chunks cannot crowd out the rest.
	maxChunkChars = 1200

	// DefaultMaxTokens bounds the generated answer.
	DefaultMaxTokens = 2000

	// DefaultTimeout bounds the chat completion request.
	DefaultTimeout = 60 * time.Second
)

// systemPrompt keeps the model strictly within the retrieved context.
const systemPrompt = "You are a precise medical writing assistant. You produce structured, " +
	"readable answers using ONLY the information explicitly present in the provided context. " +
	"You balance explanatory paragraphs with selective bullet points. " +
	"You never infer, expand, or use terminology that is not directly supported " +
	"by the source text, even if it seems medically correct."

// Config configures the answer generator.
type Config struct {
	APIKey  string
	BaseURL string

	// Model is the chat model name.
	Model string

	// ContextChunks is how many top results become context blocks.
	ContextChunks int

	MaxTokens   int
	Temperature float32
	Timeout     time.Duration
}

// DefaultConfig returns the standard generation settings. Temperature
// is kept low: tighter grounding, less creative expansion.
func DefaultConfig(apiKey string) Config {
	return Config{
		APIKey:        apiKey,
		Model:         openai.GPT4oMini,
		ContextChunks: DefaultContextChunks,
		MaxTokens:     DefaultMaxTokens,
		Temperature:   0.25,
		Timeout:       DefaultTimeout,
	}
}

// Answer is a generated response plus the chunks it cites.
type Answer struct {
	Text    string
	Sources []*search.Result
}

// Generator produces grounded answers from retrieval results.
type Generator struct {
	client *openai.Client
	config Config
	logger *slog.Logger
}

// NewGenerator validates the configuration and builds the chat client.
func NewGenerator(cfg Config) (*Generator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("answer generator: api key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("answer generator: model is required")
	}
	if cfg.ContextChunks <= 0 {
		cfg.ContextChunks = DefaultContextChunks
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Generator{
		client: openai.NewClientWithConfig(clientCfg),
		config: cfg,
		logger: slog.Default().With("component", "answer"),
	}, nil
}

// Generate answers the query from the given retrieval results. Results
// must already be ranked; the top ContextChunks become the context.
func (g *Generator) Generate(ctx context.Context, query string, results []*search.Result) (*Answer, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("answer generator: empty query")
	}
	if len(results) == 0 {
		return &Answer{Text: "No relevant context retrieved.", Sources: nil}, nil
	}

	sources := results
	if len(sources) > g.config.ContextChunks {
		sources = sources[:g.config.ContextChunks]
	}

	prompt := buildPrompt(query, formatContext(sources))

	ctx, cancel := context.WithTimeout(ctx, g.config.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.config.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature:      g.config.Temperature,
		MaxTokens:        g.config.MaxTokens,
		FrequencyPenalty: 0.2,
		PresencePenalty:  0.1,
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("answer generator: model returned no choices")
	}

	text := cleanAnswer(resp.Choices[0].Message.Content)
	if text == "" {
		return nil, fmt.Errorf("answer generator: model returned an empty response")
	}

	g.logger.Debug("answer_generated",
		"model", g.config.Model,
		"sources", len(sources),
		"duration", time.Since(start))

	return &Answer{Text: text, Sources: sources}, nil
}

// formatContext renders each chunk as a numbered source block the
// prompt's citation rules refer back to.
func formatContext(results []*search.Result) string {
	blocks := make([]string, 0, len(results))
	for i, r := range results {
		text := r.Chunk.Text
		if len(text) > maxChunkChars {
			text = text[:maxChunkChars]
		}
		blocks = append(blocks, fmt.Sprintf("[Source %d] Chapter %d, %s\n%s",
			i+1, r.Chunk.ChapterNumber, r.Chunk.ChapterTitle, text))
	}
	return strings.Join(blocks, "\n\n---\n\n")
}

// buildPrompt assembles the structured-answer instructions, grounding
// rules, context blocks, and question.
func buildPrompt(query, contextText string) string {
	var b strings.Builder

	b.WriteString("Answer the medical question below using ONLY the provided context. Follow the structure and rules exactly.\n\n")

	b.WriteString("## RESPONSE STRUCTURE\n\n")
	b.WriteString("### 1. Overview\n")
	b.WriteString("2-3 sentences giving a direct, high-level answer. No bullet points. No medical jargon without explanation.\n\n")
	b.WriteString("### 2. Symptoms\n")
	b.WriteString("Open with a short paragraph describing the symptom pattern as described in the context. ")
	b.WriteString("Then list specific symptoms as bullets. Each bullet must be a complete thought, not just a word. ")
	b.WriteString("Include subtypes if mentioned.\n\n")
	b.WriteString("### 3. Causes\n")
	b.WriteString("Open with a paragraph describing the underlying mechanisms or triggers as stated in the context. ")
	b.WriteString("Follow with bullets for distinct causes or risk factors. ")
	b.WriteString("Use only terminology that appears directly in the retrieved text. Do not paraphrase into more specific medical language than what the source uses.\n\n")
	b.WriteString("### 4. Treatment\n")
	b.WriteString("Split this section into two clearly labelled sub-sections:\n")
	b.WriteString("**Acute Management**: treatments used during an active episode. Start with a paragraph, then list medications or interventions as bullets.\n")
	b.WriteString("**Preventive Management**: strategies used to reduce frequency long-term. Start with a paragraph, then list approaches as bullets.\n")
	b.WriteString("Do NOT merge these two sub-sections.\n\n")
	b.WriteString("### 5. Key Terms\n")
	b.WriteString("Define any medical terms used in the response in plain English, one line per term. ")
	b.WriteString("Only include terms that were actually used in your answer.\n\n")
	b.WriteString("### 6. Closing Note\n")
	b.WriteString("1-2 sentences on when to seek professional medical advice or what affects patient outcomes.\n\n")

	b.WriteString("## GROUNDING RULES\n\n")
	b.WriteString("- Use ONLY information explicitly present in the context. Do not expand, infer, or fill gaps with background medical knowledge, even if you are confident it is correct.\n")
	b.WriteString("- If a mechanism or term is not in the source text, do not include it. Use the source's own phrasing where possible.\n")
	b.WriteString("- Add inline citations [1], [2] after every specific fact, referencing the Source number from the context.\n")
	b.WriteString("- If the context does not contain enough information to fill a section, write: \"Not covered in provided context.\" Do not fabricate.\n")
	b.WriteString("- Do not repeat the question or restate these instructions in your answer.\n\n")

	b.WriteString("## CONTEXT\n\n")
	b.WriteString(contextText)
	b.WriteString("\n\n## QUESTION\n\n")
	b.WriteString(query)
	b.WriteString("\n\n## ANSWER\n")

	return b.String()
}

// cleanAnswer strips chain-of-thought blocks some models emit before
// the real answer.
func cleanAnswer(raw string) string {
	if strings.Contains(raw, "<think>") {
		if idx := strings.LastIndex(raw, "</think>"); idx >= 0 {
			raw = raw[idx+len("</think>"):]
		} else {
			raw = raw[:strings.Index(raw, "<think>")]
		}
	}
	return strings.TrimSpace(raw)
}
