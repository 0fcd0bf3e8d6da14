package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/clinrag/clinrag/internal/eval"
)

type evalOptions struct {
	goldPath string
	k        int
	alphas   []float64
	format   string
}

func newEvalCmd() *cobra.Command {
	var opts evalOptions

	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Evaluate retrieval quality against gold queries",
		Long: `Sweep dense, sparse, and hybrid retrieval over a labeled query set
and report Recall@k, MRR, and NDCG per configuration.

Examples:
  clinrag eval
  clinrag eval --gold data/gold_queries.json --alpha 0.3 --alpha 0.7
  clinrag eval --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEval(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.goldPath, "gold", "", "Gold query JSON path (default from config)")
	cmd.Flags().IntVarP(&opts.k, "k", "k", 30, "Results to retrieve per query")
	cmd.Flags().Float64SliceVar(&opts.alphas, "alpha", nil, "Hybrid alphas to sweep (repeatable)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runEval(ctx context.Context, opts evalOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if opts.goldPath == "" {
		opts.goldPath = cfg.Data.GoldQueriesPath
	}

	queries, err := eval.LoadGoldQueries(opts.goldPath)
	if err != nil {
		return err
	}

	app, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	runner, err := eval.NewRunner(app.engine, eval.RunnerConfig{
		RetrievalK: opts.k,
		Alphas:     opts.alphas,
	})
	if err != nil {
		return err
	}

	reports, err := runner.Run(ctx, queries)
	if err != nil {
		return err
	}

	if opts.format == "json" {
		return json.NewEncoder(os.Stdout).Encode(reports)
	}
	printReports(reports)
	return nil
}

func printReports(reports []*eval.SystemReport) {
	fmt.Printf("%-14s %7s %7s %7s %9s\n", "system", "R@5", "R@10", "MRR", "NDCG@10")
	for _, r := range reports {
		fmt.Printf("%-14s %7.3f %7.3f %7.3f %9.3f\n",
			r.Name, r.RecallAt5, r.RecallAt10, r.MRR, r.NDCGAt10)
	}

	if best := eval.Best(reports); best != nil {
		fmt.Printf("\nBest: %s (MRR %.3f, NDCG@10 %.3f over %d queries)\n",
			best.Name, best.MRR, best.NDCGAt10, best.Queries)
	}
}
