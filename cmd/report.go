package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/MathieuBartozzi/mlf-suivi-homologation/internal/dashboard"
)

var reportCmd = &cobra.Command{
	Use:   "report <etablissement>",
	Short: "Write an AI analysis report for one institution",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("report"); err != nil {
			return err
		}

		var localContext string
		if path, _ := cmd.Flags().GetString("context-file"); path != "" {
			data, err := os.ReadFile(path)
			if err != nil {
				return eris.Wrapf(err, "report: read context file %s", path)
			}
			localContext = string(data)
		}

		sc, err := newScorer(cfg)
		if err != nil {
			return err
		}
		tbl, err := newLoader(cfg).LoadTable(ctx)
		if err != nil {
			return err
		}
		records, err := sc.ComputeScoresConcurrent(ctx, tbl, cfg.Scoring.Workers)
		if err != nil {
			return err
		}

		sheet, ok := dashboard.Sheet(records, args[0])
		if !ok {
			return eris.Errorf("report: unknown institution %q", args[0])
		}
		text, err := newReporter(cfg).Report(ctx, sheet, localContext)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(os.Stdout, text)
		return err
	},
}

func init() {
	reportCmd.Flags().String("context-file", "", "text file with local context to include in the prompt")
	rootCmd.AddCommand(reportCmd)
}
