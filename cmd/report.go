package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/signalnine/rollbench/internal/report"
)

var (
	flagFormat  string
	flagPricing string
)

func newReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report [run-dir]",
		Short: "Generate summary from stored results",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			runDir, err := resolveRunDir(cfg.Results.Dir, args)
			if err != nil {
				return err
			}
			pricingPath := flagPricing
			if pricingPath == "" {
				pricingPath = cfg.Pricing
			}
			return report.Generate(runDir, flagFormat, cmd.OutOrStdout(), pricingPath)
		},
	}
	cmd.Flags().StringVar(&flagFormat, "format", "table", "output format (table, markdown, json)")
	cmd.Flags().StringVar(&flagPricing, "pricing", "", "token pricing table (yaml)")
	return cmd
}

// resolveRunDir returns args[0], or the latest run under resultsDir.
func resolveRunDir(resultsDir string, args []string) (string, error) {
	runDir := filepath.Join(resultsDir, "latest")
	if len(args) > 0 {
		runDir = args[0]
	}
	resolved, err := filepath.EvalSymlinks(runDir)
	if err != nil {
		return "", fmt.Errorf("resolving run dir: %w", err)
	}
	return resolved, nil
}
