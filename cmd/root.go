package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/MathieuBartozzi/mlf-suivi-homologation/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "homologation",
	Short: "Homologation follow-up dashboard for the school network",
	Long:  "Loads the institution survey table, scores every institution on six dimensions, and serves the dashboard, the run history and document Q&A.",
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
