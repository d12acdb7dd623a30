package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MathieuBartozzi/mlf-suivi-homologation/internal/qa"
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question about the homologation reports",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("ask"); err != nil {
			return err
		}

		ans, err := newAnswerer(ctx, cfg, newLoader(cfg))
		if err != nil {
			return err
		}
		res, err := ans.Answer(ctx, strings.Join(args, " "))
		if err != nil {
			return err
		}
		printAnswer(os.Stdout, res)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(askCmd)
}

func printAnswer(out io.Writer, a *qa.Answer) {
	if a.Institution != "" {
		_, _ = fmt.Fprintf(out, "Établissement : %s\n\n", a.Institution)
	}
	_, _ = fmt.Fprintln(out, a.Answer)
	if len(a.Sources) == 0 {
		return
	}
	_, _ = fmt.Fprintln(out, "\nSources :")
	for _, s := range a.Sources {
		_, _ = fmt.Fprintf(out, "  - %s, p.%d (%.3f)\n", s.Doc, s.Page, s.Score)
	}
}
