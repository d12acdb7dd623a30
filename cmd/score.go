package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/MathieuBartozzi/mlf-suivi-homologation/internal/model"
	"github.com/MathieuBartozzi/mlf-suivi-homologation/internal/scorer"
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Score every institution of the source table",
	Long: `Loads the institution table, computes the six dimension scores and the
weighted global score of every row, and prints the augmented table.

Examples:
  # Print a summary table
  homologation score

  # Export the augmented table as CSV
  homologation score --format csv --output scores.csv

  # Score and persist the run
  homologation score --save`,
	RunE: runScore,
}

func init() {
	f := scoreCmd.Flags()
	f.String("output", "", "output file path (default: stdout)")
	f.String("format", "table", "output format: table, csv or json")
	f.Bool("save", false, "persist the run to the configured store")
	f.Int("workers", 0, "scoring goroutines (default from config)")

	rootCmd.AddCommand(scoreCmd)
}

func runScore(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cfg.Validate("score"); err != nil {
		return err
	}
	log := zap.L().With(zap.String("command", "score"))

	outputPath, _ := cmd.Flags().GetString("output")
	format, _ := cmd.Flags().GetString("format")
	save, _ := cmd.Flags().GetBool("save")
	workers, _ := cmd.Flags().GetInt("workers")
	if workers <= 0 {
		workers = cfg.Scoring.Workers
	}
	if format != "table" && format != "csv" && format != "json" {
		return eris.Errorf("score: --format must be table, csv or json (got %q)", format)
	}

	sc, err := newScorer(cfg)
	if err != nil {
		return err
	}

	loader := newLoader(cfg)
	tbl, err := loader.LoadTable(ctx)
	if err != nil {
		return err
	}

	records, err := sc.ComputeScoresConcurrent(ctx, tbl, workers)
	if err != nil {
		return err
	}
	summary := scorer.Summarize(records)
	log.Info("scoring complete",
		zap.Int("institutions", summary.Institutions),
		zap.Int("incomplete", summary.Incomplete),
		zap.Int("undefined", summary.Undefined),
	)

	if err := outputScores(tbl, records, format, outputPath); err != nil {
		return err
	}

	if save {
		st, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		if st == nil {
			return eris.New("score: --save needs store.driver sqlite or postgres")
		}
		defer st.Close() //nolint:errcheck
		run, err := sc.Persist(ctx, st, loader.Describe(), records)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Saved run %s\n", run.ID)
	}

	printScoreSummary(os.Stderr, summary)
	return nil
}

func outputScores(tbl *model.Table, records []model.ScoredRecord, format, outputPath string) error {
	var w io.Writer = os.Stdout
	if outputPath != "" {
		f, err := os.Create(outputPath)
		if err != nil {
			return eris.Wrapf(err, "score: create output file %s", outputPath)
		}
		defer f.Close() //nolint:errcheck
		w = f
	}

	switch format {
	case "csv":
		return writeScoreCSV(w, outputColumns(tbl), records)
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(records), "score: write JSON")
	case "table":
		return writeScoreTable(w, records)
	default:
		return eris.Errorf("score: unsupported format %q", format)
	}
}

// outputColumns is the source header followed by the score columns.
func outputColumns(tbl *model.Table) []string {
	cols := make([]string, 0, len(tbl.Columns)+len(model.Dimensions)+3)
	cols = append(cols, tbl.Columns...)
	for _, d := range model.Dimensions {
		cols = append(cols, d.ScoreColumn())
	}
	return append(cols, model.ColScoreGlobal, model.ColIncompleteScore, model.ColMissingDimensions)
}

func writeScoreCSV(w io.Writer, columns []string, records []model.ScoredRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(columns); err != nil {
		return eris.Wrap(err, "score: write CSV header")
	}
	row := make([]string, len(columns))
	for _, r := range records {
		flat := r.Flatten()
		for i, col := range columns {
			row[i] = csvCell(flat[col])
		}
		if err := cw.Write(row); err != nil {
			return eris.Wrap(err, "score: write CSV row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "score: flush CSV")
}

func csvCell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}

func fmtScore(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', 1, 64)
}

func writeScoreTable(out io.Writer, records []model.ScoredRecord) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprint(w, "ETABLISSEMENT")
	for _, d := range model.Dimensions {
		_, _ = fmt.Fprintf(w, "\t%s", d)
	}
	_, _ = fmt.Fprintln(w, "\tGLOBAL\tINCOMPLETE")

	for _, r := range records {
		name := r.Name()
		if len([]rune(name)) > 40 {
			name = string([]rune(name)[:37]) + "..."
		}
		_, _ = fmt.Fprint(w, name)
		for _, d := range model.Dimensions {
			_, _ = fmt.Fprintf(w, "\t%s", fmtScore(r.Dimensions[d]))
		}
		_, _ = fmt.Fprintf(w, "\t%s\t%v\n", fmtScore(r.Global), r.Incomplete)
	}
	return eris.Wrap(w.Flush(), "score: write table")
}

func printScoreSummary(out io.Writer, s model.RunSummary) {
	if s.Institutions == 0 {
		_, _ = fmt.Fprintln(out, "No institutions.")
		return
	}
	_, _ = fmt.Fprintf(out, "\n--- Summary ---\n")
	_, _ = fmt.Fprintf(out, "Institutions:  %d\n", s.Institutions)
	_, _ = fmt.Fprintf(out, "Complete:      %d\n", s.Complete)
	_, _ = fmt.Fprintf(out, "Incomplete:    %d\n", s.Incomplete)
	_, _ = fmt.Fprintf(out, "Undefined:     %d\n", s.Undefined)
	_, _ = fmt.Fprintf(out, "Mean global:   %s\n", fmtScore(s.MeanGlobal))
}
