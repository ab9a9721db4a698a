package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/signalnine/rollbench/internal/classify"
	"github.com/signalnine/rollbench/internal/report"
	"github.com/signalnine/rollbench/internal/result"
	"github.com/signalnine/rollbench/internal/scenario"
)

func newReclassifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reclassify [run-dir]",
		Short: "Re-run the classifier over stored failure messages",
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
			records, err := result.Load(runDir)
			if err != nil {
				return err
			}

			changed := reclassify(records)
			out := cmd.OutOrStdout()
			if len(changed) == 0 {
				fmt.Fprintln(out, "No classification changes.")
				return nil
			}
			if err := result.Save(runDir, records, cfg.Results.MaxMessageLen); err != nil {
				return fmt.Errorf("saving results: %w", err)
			}
			logger.Info("reclassified", zap.String("dir", runDir), zap.Int("changed", len(changed)))

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CATEGORY\tPATTERN\tKIND\tITER\tBEFORE\tAFTER")
			for _, c := range changed {
				o := records[c.index]
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
					o.Category, o.Pattern, o.Resource, o.Iteration, c.before, report.ErrorLabel(o))
			}
			return tw.Flush()
		},
	}
}

type change struct {
	index  int
	before string
}

// reclassify classifies every failed record's message again, in place, and
// returns the records whose kind or code changed.
func reclassify(records []result.Outcome) []change {
	var changed []change
	for i := range records {
		o := &records[i]
		if !o.Failed {
			continue
		}
		c := classify.Classify(o.ErrorMessage)
		if scenario.BoundsFallback(o.Category, o.Pattern) {
			c = c.WithBoundsFallback()
		}
		before := report.ErrorLabel(*o)
		o.SetFailure(o.ErrorMessage, c)
		if report.ErrorLabel(*o) != before {
			changed = append(changed, change{index: i, before: before})
		}
	}
	return changed
}
