package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/signalnine/rollbench/internal/scenario"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List scenario families in run order",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Scenarios:")
			for _, s := range scenario.All() {
				kinds := make([]string, len(s.Kinds))
				for i, k := range s.Kinds {
					kinds[i] = string(k)
				}
				fmt.Fprintf(out, "  - %s: %s\n", s.Name, s.Description)
				fmt.Fprintf(out, "      patterns: %s\n", strings.Join(s.Patterns, ", "))
				fmt.Fprintf(out, "      kinds:    %s\n", strings.Join(kinds, ", "))
			}
			return nil
		},
	}
}
