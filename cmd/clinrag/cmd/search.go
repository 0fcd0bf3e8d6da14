package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/clinrag/clinrag/internal/search"
)

type searchOptions struct {
	limit  int
	alpha  float64
	mode   string
	format string
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Retrieve chunks for a query",
		Long: `Retrieve the top chunks for a query using hybrid rank fusion.

Examples:
  clinrag search "risk factors for hypertension"
  clinrag search "insulin resistance" --limit 10 --alpha 0.5
  clinrag search "asthma treatment" --mode sparse --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Maximum number of results (default from config)")
	cmd.Flags().Float64Var(&opts.alpha, "alpha", -1, "Dense weight for this query (0.0-1.0, default from config)")
	cmd.Flags().StringVarP(&opts.mode, "mode", "m", "hybrid", "Retrieval mode: hybrid, dense, sparse")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runSearch(ctx context.Context, query string, opts searchOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	app, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	searchOpts := search.Options{
		Limit: opts.limit,
		Mode:  search.Mode(opts.mode),
	}
	if opts.alpha >= 0 {
		a := opts.alpha
		searchOpts.Alpha = &a
	}

	results, err := app.engine.Retrieve(ctx, query, searchOpts)
	if err != nil {
		return err
	}

	if opts.format == "json" {
		return json.NewEncoder(os.Stdout).Encode(results)
	}
	printResults(query, results)
	return nil
}

func printResults(query string, results []*search.Result) {
	if len(results) == 0 {
		fmt.Printf("No results for %q\n", query)
		return
	}

	fmt.Printf("Results for %q:\n\n", query)
	for i, r := range results {
		fmt.Printf("%d. %s  (score %.4f", i+1, r.Chunk.Label(), r.Score)
		if r.InBothLists {
			fmt.Printf(", dense #%d + sparse #%d", r.DenseRank, r.SparseRank)
		} else if r.DenseRank > 0 {
			fmt.Printf(", dense #%d", r.DenseRank)
		} else if r.SparseRank > 0 {
			fmt.Printf(", sparse #%d", r.SparseRank)
		}
		fmt.Println(")")

		if len(r.MatchedTerms) > 0 {
			fmt.Printf("   matched: %s\n", strings.Join(r.MatchedTerms, ", "))
		}
		fmt.Printf("   %s\n\n", excerpt(r.Chunk.Text, 200))
	}
}

// excerpt truncates text at a word boundary.
func excerpt(text string, max int) string {
	text = strings.Join(strings.Fields(text), " ")
	if len(text) <= max {
		return text
	}
	cut := strings.LastIndex(text[:max], " ")
	if cut <= 0 {
		cut = max
	}
	return text[:cut] + "..."
}
