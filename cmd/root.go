package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/biolit/litmine/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "litmine",
	Short: "Mine biomedical literature evidence with a bounded-context backend",
	Long:  "Packs scored text chunks into context-budget batches, extracts evidence per batch via a text-generation backend, and consolidates the partial extractions level by level into a single answer.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
