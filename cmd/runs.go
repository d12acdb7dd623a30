package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/MathieuBartozzi/mlf-suivi-homologation/internal/model"
	"github.com/MathieuBartozzi/mlf-suivi-homologation/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect persisted scoring runs",
	Long:  "Commands for listing and viewing scoring runs and following one institution across runs.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := rootCmd.PersistentPreRunE(cmd, args); err != nil {
			return err
		}
		return cfg.Validate("runs")
	},
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List scoring runs, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := store.Open(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		limit, _ := cmd.Flags().GetInt("limit")
		runs, err := st.ListRuns(ctx, limit)
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show [run-id]",
	Short: "Show full details of a run (latest when no id is given)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := store.Open(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		var run *model.Run
		if len(args) == 1 {
			run, err = st.GetRun(ctx, args[0])
		} else {
			run, err = st.LatestRun(ctx)
		}
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

// -- runs history --

var runsHistoryCmd = &cobra.Command{
	Use:   "history <etablissement>",
	Short: "Show the scores of one institution across runs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := store.Open(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		limit, _ := cmd.Flags().GetInt("limit")
		points, err := st.History(ctx, args[0], limit)
		if err != nil {
			return eris.Wrap(err, "runs history")
		}
		if len(points) == 0 {
			fmt.Fprintf(os.Stderr, "No runs found for %q.\n", args[0])
			return nil
		}

		formatHistory(os.Stdout, points)
		return nil
	},
}

func init() {
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")
	runsHistoryCmd.Flags().Int("limit", 50, "max number of runs to display")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsHistoryCmd)
	rootCmd.AddCommand(runsCmd)
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tCREATED\tSOURCE\tINSTITUTIONS\tINCOMPLETE\tUNDEFINED\tMEAN\tRULES")
	_, _ = fmt.Fprintln(w, "--\t-------\t------\t------------\t----------\t---------\t----\t-----")

	for _, r := range runs {
		source := r.Source
		if len(source) > 40 {
			source = source[:37] + "..."
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
			truncateID(r.ID),
			r.CreatedAt.Format("2006-01-02 15:04"),
			source,
			r.Summary.Institutions,
			r.Summary.Incomplete,
			r.Summary.Undefined,
			fmtScore(r.Summary.MeanGlobal),
			truncateID(r.RulesHash),
		)
	}
	_ = w.Flush()
}

// formatHistory writes one line per run for a single institution.
func formatHistory(out io.Writer, points []store.HistoryPoint) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprint(w, "RUN\tCREATED\tGLOBAL")
	for _, d := range model.Dimensions {
		_, _ = fmt.Fprintf(w, "\t%s", d)
	}
	_, _ = fmt.Fprintln(w)

	for _, p := range points {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s", truncateID(p.RunID), p.CreatedAt.Format("2006-01-02 15:04"), fmtScore(p.Global))
		for _, d := range model.Dimensions {
			_, _ = fmt.Fprintf(w, "\t%s", fmtScore(p.Dimensions[d]))
		}
		_, _ = fmt.Fprintln(w)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of an id for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
