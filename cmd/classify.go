package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/signalnine/rollbench/internal/classify"
)

var flagBounds bool

func newClassifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classify [text...]",
		Short: "Classify an error message from arguments or stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			if len(args) == 0 {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("reading stdin: %w", err)
				}
				text = string(data)
			}
			c := classify.Classify(text)
			if flagBounds {
				c = c.WithBoundsFallback()
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "kind: %s\n", c.Kind)
			if c.HasCode() {
				fmt.Fprintf(out, "code: %d\n", *c.Code)
			} else {
				fmt.Fprintln(out, "code: -")
			}
			rule := c.Rule
			if rule == "" {
				rule = "-"
			}
			fmt.Fprintf(out, "rule: %s\n", rule)
			return nil
		},
	}
	cmd.Flags().BoolVar(&flagBounds, "bounds", false, "apply the out-of-bounds fallback")
	return cmd
}
