package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/esg-scorecard/internal/config"
)

// cfg is loaded once per invocation, before any subcommand runs.
var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "esg-scorecard",
	Short: "ESG scoring pipeline",
	Long:  "Stores versioned ESG disclosures, derives missing KPIs from input metrics, and computes pillar and final ESG scores per organization and reporting period.",
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "esg-scorecard: load config")
		}
		if err := config.InitLogger(c.Log); err != nil {
			return eris.Wrap(err, "esg-scorecard: init logger")
		}
		cfg = c

		zap.L().Debug("config loaded",
			zap.String("command", cmd.CommandPath()),
			zap.String("store_driver", cfg.Store.Driver),
			zap.Int("kpi_concurrency", cfg.Scoring.KPIConcurrency),
		)
		return nil
	},
	PersistentPostRun: func(*cobra.Command, []string) {
		_ = zap.L().Sync()
	},
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
