package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/clinrag/clinrag/internal/answer"
	"github.com/clinrag/clinrag/internal/search"
)

type askOptions struct {
	limit       int
	showSources bool
}

func newAskCmd() *cobra.Command {
	var opts askOptions

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Generate a grounded answer from retrieved chunks",
		Long: `Retrieve relevant chunks and generate a structured, cited answer.

Requires OPENAI_API_KEY in the environment or a .env file.

Examples:
  clinrag ask "What are the causes and treatment of migraine?"
  clinrag ask "How is heart failure managed?" --sources`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd.Context(), strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Chunks to retrieve (default from config)")
	cmd.Flags().BoolVar(&opts.showSources, "sources", false, "List retrieved sources after the answer")

	return cmd
}

func runAsk(ctx context.Context, question string, opts askOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Embeddings.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is not set; answer generation needs it")
	}

	app, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	limit := opts.limit
	if limit == 0 {
		limit = cfg.Answer.ContextChunks
	}

	results, err := app.engine.Retrieve(ctx, question, search.Options{Limit: limit})
	if err != nil {
		return err
	}

	gen, err := answer.NewGenerator(answer.Config{
		APIKey:        cfg.Embeddings.APIKey,
		BaseURL:       cfg.Answer.BaseURL,
		Model:         cfg.Answer.Model,
		ContextChunks: cfg.Answer.ContextChunks,
		MaxTokens:     cfg.Answer.MaxTokens,
		Temperature:   float32(cfg.Answer.Temperature),
	})
	if err != nil {
		return err
	}

	ans, err := gen.Generate(ctx, question, results)
	if err != nil {
		return err
	}

	fmt.Println(ans.Text)

	if opts.showSources && len(ans.Sources) > 0 {
		fmt.Println("\nSources:")
		for i, r := range ans.Sources {
			fmt.Printf("  [%d] %s (chunk %d, score %.4f)\n", i+1, r.Chunk.Label(), r.Chunk.ID, r.Score)
		}
	}
	return nil
}
