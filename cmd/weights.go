package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/MathieuBartozzi/mlf-suivi-homologation/internal/dashboard"
	"github.com/MathieuBartozzi/mlf-suivi-homologation/internal/model"
)

var weightsCmd = &cobra.Command{
	Use:   "weights",
	Short: "Print the normalized dimension weights",
	RunE: func(cmd *cobra.Command, _ []string) error {
		sc, err := newScorer(cfg)
		if err != nil {
			return err
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(dashboard.Methodology(sc))
		}
		formatWeights(os.Stdout, sc.Weights())
		return nil
	},
}

func init() {
	weightsCmd.Flags().Bool("json", false, "print the full methodology as JSON")
	rootCmd.AddCommand(weightsCmd)
}

func formatWeights(out io.Writer, weights map[model.Dimension]float64) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "DIMENSION\tLABEL\tWEIGHT")
	for _, d := range model.Dimensions {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%.1f%%\n", d, d.Label(), weights[d]*100)
	}
	_ = w.Flush()
}
