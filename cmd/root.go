package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/contact-enricher/internal/config"
)

var cfg *config.Config

// configMode is the command annotation naming the config.Validate mode.
const configMode = "config_mode"

var rootCmd = &cobra.Command{
	Use:   "contact-enricher",
	Short: "Incremental contact enrichment for the firm registry",
	Long: "Selects registry firms missing a website, email, phone or address, " +
		"finds the value on the web and records which firms each run has handled.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		if mode := modeOf(cmd); mode != "" {
			applyFlags(cmd)
			if err := cfg.Validate(mode); err != nil {
				return err
			}
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

// modeOf returns the validation mode of cmd or its nearest annotated parent.
func modeOf(cmd *cobra.Command) string {
	for c := cmd; c != nil; c = c.Parent() {
		if m, ok := c.Annotations[configMode]; ok {
			return m
		}
	}
	return ""
}

// applyFlags copies explicitly set command flags over the loaded config.
func applyFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	if flags.Changed("variant") {
		v, _ := flags.GetString("variant")
		cfg.Batch.Variant = v
	}
	if flags.Changed("batch-size") {
		n, _ := flags.GetInt("batch-size")
		cfg.Batch.Size = n
	}
	if flags.Changed("max-batches") {
		n, _ := flags.GetInt("max-batches")
		cfg.Batch.MaxBatches = n
	}
	if flags.Changed("provider") {
		p, _ := flags.GetString("provider")
		cfg.Search.Provider = p
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
