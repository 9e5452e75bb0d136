package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/esg-scorecard/internal/catalog"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Manage KPI definitions, field mappings, and weights",
}

var catalogLoadCmd = &cobra.Command{
	Use:   "load <file>",
	Short: "Validate a catalog YAML file and apply it to the store",
	Long: `Validate a catalog YAML file and apply it to the store.

KPI definitions are upserted by code. Mappings and weight sets supersede the
current rows for their key; superseded rows are kept. With --dry-run the file
is only validated.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		c, err := catalog.Load(args[0])
		if err != nil {
			return err
		}
		if err := c.Validate(); err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if dryRun {
			fmt.Fprintf(out, "%s is valid: %d KPIs, %d mappings, %d weight sets.\n",
				args[0], len(c.KPIs), len(c.Mappings), len(c.Weights))
			return nil
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		res, err := c.Apply(ctx, st)
		if err != nil {
			return err
		}
		zap.L().Info("catalog applied",
			zap.String("file", args[0]),
			zap.Int("kpis", res.KPIs),
			zap.Int("mappings", res.Mappings),
			zap.Int("weight_sets", res.WeightSets),
		)
		fmt.Fprintf(out, "Applied %d KPIs, %d mappings, %d weight sets.\n", res.KPIs, res.Mappings, res.WeightSets)
		return nil
	},
}

func init() {
	catalogLoadCmd.Flags().Bool("dry-run", false, "validate without writing")
	catalogCmd.AddCommand(catalogLoadCmd)
	rootCmd.AddCommand(catalogCmd)
}
