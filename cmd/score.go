package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/esg-scorecard/internal/model"
	"github.com/sells-group/esg-scorecard/internal/pipeline"
	"github.com/sells-group/esg-scorecard/internal/scorer"
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Compute and store ESG scores for an organization and period",
	Long: `Compute and store ESG scores for an organization and period.

Derivation runs first unless --skip-derive is set. Without --period the most
recent period with submissions is scored.`,
	Example: `  esg-scorecard score --org 1 --period 2024-01-01
  esg-scorecard score --org 1 --format csv --output scores.csv`,
	RunE: runScore,
}

func runScore(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	orgID, _ := cmd.Flags().GetInt64("org")
	period, _ := cmd.Flags().GetString("period")
	format, _ := cmd.Flags().GetString("format")
	output, _ := cmd.Flags().GetString("output")
	skipDerive, _ := cmd.Flags().GetBool("skip-derive")

	if format != "table" && format != "csv" {
		return eris.Errorf("score: --format must be table or csv (got %q)", format)
	}

	e, err := initEnv(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	p := model.Period(period)
	if p.IsZero() {
		p, err = e.Pipeline.LatestPeriod(ctx, orgID)
		if err != nil {
			return err
		}
	}

	res, err := e.Pipeline.Score(ctx, orgID, p, pipeline.ScoreOptions{SkipDerive: skipDerive})
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return eris.Wrapf(err, "score: create output file %s", output)
		}
		defer f.Close() //nolint:errcheck
		w = f
	}

	switch format {
	case "csv":
		return writeScoreCSV(w, res)
	default:
		return writeScoreTable(w, res)
	}
}

func writeScoreCSV(w io.Writer, res *scorer.Result) error {
	cw := csv.NewWriter(w)

	header := []string{"kpi_code", "pillar", "raw_value", "weight", "normalized_score", "weighted_score"}
	if err := cw.Write(header); err != nil {
		return eris.Wrap(err, "score: write CSV header")
	}
	for _, k := range res.KPIScores {
		row := []string{
			k.KPICode,
			string(k.Pillar),
			k.RawValue.String(),
			fmt.Sprintf("%g", k.Weight),
			fmt.Sprintf("%.2f", k.NormalizedScore),
			fmt.Sprintf("%.2f", k.WeightedScore),
		}
		if err := cw.Write(row); err != nil {
			return eris.Wrap(err, "score: write CSV row")
		}
	}
	for _, pillar := range model.Pillars() {
		row := []string{"", string(pillar), "", "", "", fmt.Sprintf("%.2f", res.PillarScores[pillar])}
		if err := cw.Write(row); err != nil {
			return eris.Wrap(err, "score: write CSV row")
		}
	}
	if err := cw.Write([]string{"", "Final", "", "", "", fmt.Sprintf("%.2f", res.FinalScore)}); err != nil {
		return eris.Wrap(err, "score: write CSV row")
	}

	cw.Flush()
	return eris.Wrap(cw.Error(), "score: flush CSV")
}

func writeScoreTable(w io.Writer, res *scorer.Result) error {
	if _, err := fmt.Fprintf(w, "Organization %d, period %s\n\n", res.OrganizationID, res.Period); err != nil {
		return eris.Wrap(err, "score: write table header")
	}

	if len(res.KPIScores) > 0 {
		fmt.Fprintf(w, "%-30s %-14s %12s %7s %8s %8s\n", "KPI", "Pillar", "Raw", "Weight", "Score", "Weighted")
		fmt.Fprintln(w, strings.Repeat("-", 84))
		for _, k := range res.KPIScores {
			code := k.KPICode
			if len(code) > 30 {
				code = code[:27] + "..."
			}
			fmt.Fprintf(w, "%-30s %-14s %12s %7g %8.2f %8.2f\n",
				code, k.Pillar, k.RawValue, k.Weight, k.NormalizedScore, k.WeightedScore)
		}
		fmt.Fprintln(w)
	}

	for _, pillar := range model.Pillars() {
		fmt.Fprintf(w, "%-14s %8.2f\n", pillar, res.PillarScores[pillar])
	}
	if _, err := fmt.Fprintf(w, "%-14s %8.2f\n", "Final", res.FinalScore); err != nil {
		return eris.Wrap(err, "score: write table row")
	}

	if !res.Persisted {
		fmt.Fprintln(w, "\nNo submissions for this period; nothing was stored.")
	}
	for _, g := range res.Gaps {
		fmt.Fprintf(w, "gap: %s\n", g)
	}
	return nil
}

var deriveCmd = &cobra.Command{
	Use:   "derive",
	Short: "Compute missing KPIs from submitted input metrics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		orgID, _ := cmd.Flags().GetInt64("org")
		period, _ := cmd.Flags().GetString("period")

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		res, err := e.Pipeline.Derive(ctx, orgID, model.Period(period))
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(res.Derived) == 0 && len(res.Cleared) == 0 {
			fmt.Fprintln(out, "Nothing to derive.")
		}
		written := make(map[string]bool, len(res.Written))
		for _, code := range res.Written {
			written[code] = true
		}
		for _, code := range sortedCodes(res.Derived) {
			state := "unchanged"
			if written[code] {
				state = "written"
			}
			fmt.Fprintf(out, "%-30s %12g  %s\n", code, res.Derived[code], state)
		}
		for _, code := range res.Overridden {
			fmt.Fprintf(out, "%-30s %12s  disclosed value kept\n", code, "-")
		}
		for _, code := range res.Cleared {
			fmt.Fprintf(out, "%-30s %12s  cleared\n", code, "-")
		}
		for _, w := range res.Warnings {
			fmt.Fprintf(out, "warning: %s\n", w)
		}
		return nil
	},
}

func sortedCodes(m map[string]float64) []string {
	codes := make([]string, 0, len(m))
	for k := range m {
		codes = append(codes, k)
	}
	sort.Strings(codes)
	return codes
}

func init() {
	f := scoreCmd.Flags()
	f.Int64("org", 0, "organization ID (required)")
	f.String("period", "", "reporting period (default: latest with submissions)")
	f.String("format", "table", "output format: table or csv")
	f.String("output", "", "output file path (default: stdout)")
	f.Bool("skip-derive", false, "score current facts without running derivation first")
	_ = scoreCmd.MarkFlagRequired("org")

	f = deriveCmd.Flags()
	f.Int64("org", 0, "organization ID (required)")
	f.String("period", "", "reporting period (required)")
	_ = deriveCmd.MarkFlagRequired("org")
	_ = deriveCmd.MarkFlagRequired("period")

	rootCmd.AddCommand(scoreCmd, deriveCmd)
}
