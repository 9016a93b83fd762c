package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/contact-enricher/internal/cost"
	"github.com/sells-group/contact-enricher/internal/enrich"
)

var enrichCmd = &cobra.Command{
	Use:         "enrich",
	Short:       "Fill one missing contact field for eligible firms",
	Long:        "Drains firms missing the selected field in batches, finds values on the web and records each handled firm against the run.",
	Annotations: map[string]string{configMode: "enrich"},
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		env, err := initEnrich(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		zap.L().Info("starting enrichment",
			zap.String("variant", cfg.Batch.Variant),
			zap.Int("batch_size", cfg.Batch.Size),
			zap.Int("max_batches", cfg.Batch.MaxBatches),
			zap.String("search_provider", cfg.Search.Provider),
		)

		sum, runErr := env.Orchestrator.Run(ctx)
		usage := env.Usage(cfg)

		zap.L().Info("enrichment finished",
			zap.Int("batches", sum.Batches),
			zap.Int("firms", sum.Firms),
			zap.Int("values", sum.Values),
			zap.Int64("search_queries", usage.SearchQueries),
			zap.Float64("estimated_usd", usage.TotalUSD),
			zap.Error(runErr),
		)

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(enrichReport{Summary: sum, Usage: usage}); err != nil {
			return err
		}
		return runErr
	},
}

// enrichReport is the output of enrich.
type enrichReport struct {
	Summary enrich.Summary `json:"summary"`
	Usage   cost.Usage     `json:"usage"`
}

func init() {
	enrichCmd.Flags().String("variant", "", "field to fill: url, email, phone or address")
	enrichCmd.Flags().Int("batch-size", 0, "firms per batch")
	enrichCmd.Flags().Int("max-batches", 0, "stop after this many batches (0 drains)")
	enrichCmd.Flags().String("provider", "", "web search provider: google, jina or none")
	rootCmd.AddCommand(enrichCmd)
}
