package cmd

import (
	"errors"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/signalnine/rollbench/internal/config"
	"github.com/signalnine/rollbench/internal/logging"
)

var (
	cfgFile   string
	logLevel  string
	logFormat string

	logger = zap.NewNop()
)

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "rollbench",
		Short:        "Benchmark harness for transaction abort, rollback and rebate costs",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			l, err := logging.New(logLevel, logFormat)
			if err != nil {
				return err
			}
			logger = l
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = logger.Sync()
		},
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "rollbench.yaml", "config file path (.yaml or .toml)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&logFormat, "log-format", "console", "log encoding (console, json)")
	root.AddCommand(newRunCmd())
	root.AddCommand(newListCmd())
	root.AddCommand(newReportCmd())
	root.AddCommand(newReclassifyCmd())
	root.AddCommand(newClassifyCmd())
	return root
}

// loadConfig reads --config. A missing default config file falls back to a
// simulated run.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if f := cmd.Flag("config"); f == nil || !f.Changed {
		if _, err := os.Stat(cfgFile); errors.Is(err, os.ErrNotExist) {
			return config.Default(), nil
		}
	}
	return config.Load(cfgFile)
}
