package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/esg-scorecard/internal/ingest"
	"github.com/sells-group/esg-scorecard/internal/model"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate")
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Schema is up to date.")
		return nil
	},
}

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit one field value for an organization and period",
	Example: `  esg-scorecard submit --org 1 --period 2024-01-01 --field petrol_consumption --value 100
  esg-scorecard submit --org 1 --period 2024-01-01 --field scope1_emissions --value 500 --kpi`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		in, err := factInputFromFlags(cmd)
		if err != nil {
			return err
		}

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		res, err := e.Pipeline.Submit(ctx, in)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Stored %s = %s (id %d)\n", res.Fact.FieldName, res.Fact.Value, res.Fact.ID)
		if res.Derivation != nil {
			for _, code := range res.Derivation.Written {
				fmt.Fprintf(out, "Derived %s = %g\n", code, res.Derivation.Derived[code])
			}
			for _, code := range res.Derivation.Cleared {
				fmt.Fprintf(out, "Cleared %s\n", code)
			}
			for _, w := range res.Derivation.Warnings {
				fmt.Fprintf(out, "Warning: %s\n", w)
			}
		}
		return nil
	},
}

func factInputFromFlags(cmd *cobra.Command) (model.FactInput, error) {
	orgID, _ := cmd.Flags().GetInt64("org")
	period, _ := cmd.Flags().GetString("period")
	field, _ := cmd.Flags().GetString("field")
	value, _ := cmd.Flags().GetString("value")
	isKPI, _ := cmd.Flags().GetBool("kpi")

	return model.ValidateSubmission(model.FactInput{
		OrganizationID: orgID,
		Period:         model.Period(period),
		FieldName:      field,
		Value:          model.Value(value),
		IsKPI:          isKPI,
	})
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import submissions from a CSV or XLSX file",
	Long: `Import submissions from a CSV or XLSX file.

The first row is a header naming the columns. form_field and field_value are
required; organization_id, reporting_period, is_kpi, and provenance are
optional. --org and --period fill rows when the file has no such column.
The whole file is validated before anything is stored.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log := zap.L().With(zap.String("command", "import"))

		orgID, _ := cmd.Flags().GetInt64("org")
		period, _ := cmd.Flags().GetString("period")
		sheet, _ := cmd.Flags().GetString("sheet")
		delim, _ := cmd.Flags().GetString("delimiter")

		opts := ingest.Options{
			OrganizationID: orgID,
			Period:         model.Period(period),
			Sheet:          sheet,
		}
		if delim != "" {
			r := []rune(delim)
			if len(r) != 1 {
				return eris.Errorf("import: delimiter must be one character, got %q", delim)
			}
			opts.Delimiter = r[0]
		}

		read, err := ingest.ReadFacts(ctx, args[0], opts)
		if err != nil {
			return err
		}

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		// Group by key so derivation runs once per organization and period.
		type key struct {
			org    int64
			period model.Period
		}
		batches := make(map[key][]model.FactInput)
		var order []key
		for _, f := range read.Facts {
			k := key{f.OrganizationID, f.Period}
			if _, ok := batches[k]; !ok {
				order = append(order, k)
			}
			batches[k] = append(batches[k], f)
		}

		stored := 0
		for _, k := range order {
			res, err := e.Pipeline.SubmitBatch(ctx, k.org, k.period, batches[k])
			if err != nil {
				return eris.Wrapf(err, "import: org %d period %s", k.org, k.period)
			}
			stored += len(res.Facts)
		}

		log.Info("import complete",
			zap.String("file", args[0]),
			zap.Int("stored", stored),
			zap.Int("skipped", read.Skipped),
		)
		fmt.Fprintf(cmd.OutOrStdout(), "Imported %d facts (%d rows skipped) across %d organization-periods.\n",
			stored, read.Skipped, len(order))
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show every version of a field",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		orgID, _ := cmd.Flags().GetInt64("org")
		period, _ := cmd.Flags().GetString("period")
		field, _ := cmd.Flags().GetString("field")

		var p model.Period
		if period != "" {
			parsed, err := model.ParsePeriod(period)
			if err != nil {
				return err
			}
			p = parsed
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		facts, err := st.FactHistory(ctx, orgID, p, field)
		if err != nil {
			return err
		}
		if len(facts) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No history.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tPERIOD\tVALUE\tPROVENANCE\tCURRENT\tUPDATED")
		for _, f := range facts {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%v\t%s\n",
				f.ID, f.Period, f.Value, f.Provenance, f.IsCurrent, f.UpdatedAt.Format("2006-01-02 15:04:05"))
		}
		return w.Flush()
	},
}

func init() {
	f := submitCmd.Flags()
	f.Int64("org", 0, "organization ID (required)")
	f.String("period", "", "reporting period, YYYY-MM-DD (required)")
	f.String("field", "", "form field name (required)")
	f.String("value", "", "field value (required)")
	f.Bool("kpi", false, "the field is a KPI rather than a derivation input")
	for _, name := range []string{"org", "period", "field", "value"} {
		_ = submitCmd.MarkFlagRequired(name)
	}

	f = importCmd.Flags()
	f.Int64("org", 0, "organization ID for rows without one")
	f.String("period", "", "reporting period for rows without one")
	f.String("sheet", "", "XLSX sheet name (default: first sheet)")
	f.String("delimiter", "", "CSV field separator (default ',')")

	f = historyCmd.Flags()
	f.Int64("org", 0, "organization ID (required)")
	f.String("period", "", "reporting period (default: all periods)")
	f.String("field", "", "form field name (required)")
	_ = historyCmd.MarkFlagRequired("org")
	_ = historyCmd.MarkFlagRequired("field")

	rootCmd.AddCommand(migrateCmd, submitCmd, importCmd, historyCmd)
}
