package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/clinrag/clinrag/internal/store"
)

func newStatsCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show index and corpus statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(cmd.Context(), format)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, json")
	return cmd
}

func runStats(ctx context.Context, format string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	app, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	engineStats := app.engine.Stats()
	chunkCount, err := app.chunks.Count(ctx)
	if err != nil {
		return err
	}

	buildModel, _ := app.chunks.GetState(ctx, store.StateKeyIndexModel)
	buildDim, _ := app.chunks.GetState(ctx, store.StateKeyIndexDimension)

	if format == "json" {
		return json.NewEncoder(os.Stdout).Encode(map[string]any{
			"chunks":          chunkCount,
			"dense_vectors":   engineStats.DenseCount,
			"sparse_docs":     engineStats.SparseDocs,
			"sparse_terms":    engineStats.SparseTerms,
			"dimensions":      engineStats.Dimensions,
			"embedding_model": engineStats.Model,
			"built_with":      buildModel,
			"built_dim":       buildDim,
			"data_dir":        cfg.Data.Dir,
		})
	}

	fmt.Printf("Data directory:   %s\n", cfg.Data.Dir)
	fmt.Printf("Chunks stored:    %d\n", chunkCount)
	fmt.Printf("Dense vectors:    %d (%s, %d dims)\n", engineStats.DenseCount, cfg.Search.DenseBackend, engineStats.Dimensions)
	fmt.Printf("Sparse documents: %d (%s, %d terms)\n", engineStats.SparseDocs, cfg.Search.SparseBackend, engineStats.SparseTerms)
	fmt.Printf("Embedding model:  %s\n", engineStats.Model)
	if buildModel != "" && buildModel != engineStats.Model {
		fmt.Printf("WARNING: indexes were built with %s (%s dims); rebuild with 'clinrag index'\n", buildModel, buildDim)
	}
	return nil
}
