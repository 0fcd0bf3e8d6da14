package eval

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/clinrag/clinrag/internal/search"
)

// GoldQuery is one labeled evaluation query. Tier groups queries by
// difficulty: 1 direct, 2 indirect clinical framing, 3 multi-concept.
type GoldQuery struct {
	Query           string `json:"query"`
	RelevantChapter int    `json:"relevant_chapter"`
	Tier            int    `json:"tier"`
}

// LoadGoldQueries reads the gold query set from JSON.
func LoadGoldQueries(path string) ([]*GoldQuery, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read gold queries: %w", err)
	}
	var queries []*GoldQuery
	if err := json.Unmarshal(data, &queries); err != nil {
		return nil, fmt.Errorf("parse gold queries %s: %w", path, err)
	}
	for i, q := range queries {
		if q.Query == "" {
			return nil, fmt.Errorf("gold query %d: empty query text", i)
		}
		if q.RelevantChapter <= 0 {
			return nil, fmt.Errorf("gold query %d: missing relevant chapter", i)
		}
	}
	return queries, nil
}

// SystemReport aggregates metrics for one retrieval configuration.
type SystemReport struct {
	Name       string          `json:"name"`
	RecallAt5  float64         `json:"recall_at_5"`
	RecallAt10 float64         `json:"recall_at_10"`
	MRR        float64         `json:"mrr"`
	NDCGAt10   float64         `json:"ndcg_at_10"`
	TierMRR    map[int]float64 `json:"tier_mrr"`
	Queries    int             `json:"queries"`
	Elapsed    time.Duration   `json:"elapsed"`
}

// RunnerConfig controls the evaluation sweep.
type RunnerConfig struct {
	// RetrievalK is how many results to fetch per query. Metrics cut
	// deeper than their own k only up to this depth.
	RetrievalK int

	// Alphas are the hybrid weights to sweep in addition to the pure
	// dense and sparse baselines.
	Alphas []float64
}

// DefaultRunnerConfig sweeps the weights the system was tuned over.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		RetrievalK: 30,
		Alphas:     []float64{0.3, 0.5, 0.7},
	}
}

// Runner evaluates retrieval configurations against a gold query set.
type Runner struct {
	engine *search.Engine
	config RunnerConfig
	logger *slog.Logger
}

// NewRunner wires an evaluation runner over a built engine.
func NewRunner(engine *search.Engine, cfg RunnerConfig) (*Runner, error) {
	if engine == nil {
		return nil, fmt.Errorf("eval: engine is nil")
	}
	if cfg.RetrievalK <= 0 {
		cfg.RetrievalK = DefaultRunnerConfig().RetrievalK
	}
	if len(cfg.Alphas) == 0 {
		cfg.Alphas = DefaultRunnerConfig().Alphas
	}
	return &Runner{
		engine: engine,
		config: cfg,
		logger: slog.Default().With("component", "eval"),
	}, nil
}

// Run sweeps dense, sparse, and each hybrid alpha over the gold
// queries, returning one report per configuration in sweep order.
func (r *Runner) Run(ctx context.Context, queries []*GoldQuery) ([]*SystemReport, error) {
	if len(queries) == 0 {
		return nil, fmt.Errorf("eval: no gold queries")
	}

	reports := make([]*SystemReport, 0, len(r.config.Alphas)+2)

	dense, err := r.evaluate(ctx, "dense", queries, search.Options{
		Limit: r.config.RetrievalK,
		Mode:  search.ModeDense,
	})
	if err != nil {
		return nil, err
	}
	reports = append(reports, dense)

	sparse, err := r.evaluate(ctx, "sparse", queries, search.Options{
		Limit: r.config.RetrievalK,
		Mode:  search.ModeSparse,
	})
	if err != nil {
		return nil, err
	}
	reports = append(reports, sparse)

	for _, alpha := range r.config.Alphas {
		a := alpha
		report, err := r.evaluate(ctx, fmt.Sprintf("hybrid a=%.1f", a), queries, search.Options{
			Limit: r.config.RetrievalK,
			Alpha: &a,
		})
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}

	return reports, nil
}

// Best returns the report with the highest MRR, breaking ties by NDCG.
func Best(reports []*SystemReport) *SystemReport {
	var best *SystemReport
	for _, r := range reports {
		if best == nil || r.MRR > best.MRR ||
			(r.MRR == best.MRR && r.NDCGAt10 > best.NDCGAt10) {
			best = r
		}
	}
	return best
}

func (r *Runner) evaluate(ctx context.Context, name string, queries []*GoldQuery, opts search.Options) (*SystemReport, error) {
	var (
		recalls5  []float64
		recalls10 []float64
		mrrs      []float64
		ndcgs     []float64
	)
	tierMRR := map[int][]float64{}

	start := time.Now()
	for _, q := range queries {
		results, err := r.engine.Retrieve(ctx, q.Query, opts)
		if err != nil {
			return nil, fmt.Errorf("eval %s query %q: %w", name, q.Query, err)
		}

		chapters := make([]int, len(results))
		for i, res := range results {
			chapters[i] = res.Chunk.ChapterNumber
		}

		mrr := MRR(chapters, q.RelevantChapter)
		recalls5 = append(recalls5, RecallAtK(chapters, q.RelevantChapter, 5))
		recalls10 = append(recalls10, RecallAtK(chapters, q.RelevantChapter, 10))
		mrrs = append(mrrs, mrr)
		ndcgs = append(ndcgs, NDCGAtK(chapters, q.RelevantChapter, 10))
		tierMRR[q.Tier] = append(tierMRR[q.Tier], mrr)
	}
	elapsed := time.Since(start)

	tiers := make(map[int]float64, len(tierMRR))
	for tier, scores := range tierMRR {
		tiers[tier] = mean(scores)
	}

	report := &SystemReport{
		Name:       name,
		RecallAt5:  mean(recalls5),
		RecallAt10: mean(recalls10),
		MRR:        mean(mrrs),
		NDCGAt10:   mean(ndcgs),
		TierMRR:    tiers,
		Queries:    len(queries),
		Elapsed:    elapsed,
	}

	r.logger.Info("eval_system_complete",
		"system", name,
		"queries", len(queries),
		"recall_at_10", report.RecallAt10,
		"mrr", report.MRR,
		"elapsed", elapsed)

	return report, nil
}
