package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/signalnine/rollbench/internal/pricing"
	"github.com/signalnine/rollbench/internal/result"
)

// Generate reads a run's records and writes its report.
func Generate(runDir, format string, w io.Writer, pricingPath ...string) error {
	records, err := result.Load(runDir)
	if err != nil {
		return err
	}

	opts := Options{}
	if meta, err := result.ReadRunMeta(runDir); err == nil {
		opts.Network = meta.Network
	}
	if len(pricingPath) > 0 && pricingPath[0] != "" {
		table, err := pricing.Load(pricingPath[0])
		if err != nil {
			return err
		}
		opts.Pricing = table
	}

	return Write(Build(records, opts), format, w)
}

// Write renders rep as table, markdown or json.
func Write(rep *Report, format string, w io.Writer) error {
	switch format {
	case "markdown":
		return writeMarkdown(rep, w)
	case "json":
		return writeJSON(rep, w)
	default:
		return writeTable(rep, w)
	}
}

func pct(f float64) string { return fmt.Sprintf("%.0f%%", f*100) }

func signedPct(f float64) string { return fmt.Sprintf("%+.0f%%", f*100) }

func topErrors(errs []ErrorCount) string {
	if len(errs) == 0 {
		return "-"
	}
	parts := make([]string, len(errs))
	for i, e := range errs {
		parts[i] = fmt.Sprintf("%s x%d", e.Label, e.Count)
	}
	return strings.Join(parts, ", ")
}

func writeTable(rep *Report, w io.Writer) error {
	if err := WriteSummary(rep, w); err != nil {
		return err
	}
	fmt.Fprintln(w)
	if err := WriteCategories(rep, w); err != nil {
		return err
	}
	fmt.Fprintln(w)
	if err := WriteBreakdown(rep, w); err != nil {
		return err
	}
	fmt.Fprintln(w)
	if err := WritePaired(rep, w); err != nil {
		return err
	}
	fmt.Fprintln(w)
	return WriteMismatches(rep, w)
}

func WriteSummary(rep *Report, w io.Writer) error {
	s := rep.Summary
	_, err := fmt.Fprintf(w, "%d submissions: %d succeeded, %d failed, %d mismatched\n",
		s.Total, s.Succeeded, s.Failed, len(s.Mismatches))
	return err
}

func WriteCategories(rep *Report, w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CATEGORY\tTOTAL\tOK\tFAILED\tMISMATCH\tMEAN NET\tMEAN LATENCY")
	fmt.Fprintln(tw, strings.Repeat("-", 80))
	for _, c := range rep.Categories {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%.0f\t%.0fms\n",
			c.Category, c.Total, c.Succeeded, c.Failed, c.Mismatches, c.MeanNetCost, c.MeanLatencyMs)
	}
	return tw.Flush()
}

func WriteBreakdown(rep *Report, w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	header := "CATEGORY\tPATTERN\tKIND\tDEPTH\tN\tOK\tFAILED\tSUCCESS\tMEAN NET\tMEAN LATENCY"
	if rep.Priced {
		header += "\tMEAN USD"
	}
	fmt.Fprintln(tw, header+"\tTOP ERRORS")
	fmt.Fprintln(tw, strings.Repeat("-", 120))
	for _, g := range rep.Breakdown {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%s\t%.0f\t%.0fms",
			g.Category, g.Pattern, g.Resource, g.Depth, g.Count, g.Successes, g.Failures,
			pct(g.SuccessRate), g.MeanNetCost, g.MeanLatencyMs)
		if rep.Priced {
			fmt.Fprintf(tw, "\t$%.6f", g.MeanCostUSD)
		}
		fmt.Fprintf(tw, "\t%s\n", topErrors(g.TopErrors))
	}
	return tw.Flush()
}

func WritePaired(rep *Report, w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CATEGORY\tPATTERN\tDEPTH\tSUCCESS OWNED\tSUCCESS SHARED\tΔ SUCCESS\tΔ NET\tΔ LATENCY")
	fmt.Fprintln(tw, strings.Repeat("-", 100))
	for _, p := range rep.Paired {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%+.0f\t%+.0fms\n",
			p.Category, p.Pattern, p.Depth, pct(p.OwnedSuccessRate), pct(p.SharedSuccessRate),
			signedPct(p.DeltaSuccessRate), p.DeltaNetCost, p.DeltaLatencyMs)
	}
	return tw.Flush()
}

// WriteMismatches lists every outcome that diverged from its expectation.
func WriteMismatches(rep *Report, w io.Writer) error {
	ms := rep.Summary.Mismatches
	if len(ms) == 0 {
		_, err := fmt.Fprintln(w, "No mismatches.")
		return err
	}
	fmt.Fprintf(w, "%d mismatches:\n", len(ms))
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CATEGORY\tPATTERN\tKIND\tDEPTH\tITER\tEXPECTED\tACTUAL\tERROR")
	for _, o := range ms {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			o.Category, o.Pattern, o.Resource, o.Depth, o.Iteration,
			outcomeWord(o.ExpectedFailure), outcomeWord(o.Failed), mismatchDetail(o))
	}
	return tw.Flush()
}

func outcomeWord(failed bool) string {
	if failed {
		return "failure"
	}
	return "success"
}

func mismatchDetail(o result.Outcome) string {
	if !o.Failed {
		return "-"
	}
	return ErrorLabel(o) + ": " + result.TruncateMessage(o.ErrorMessage, 80)
}

func writeMarkdown(rep *Report, w io.Writer) error {
	s := rep.Summary
	fmt.Fprintf(w, "**%d submissions**: %d succeeded, %d failed, %d mismatched\n\n",
		s.Total, s.Succeeded, s.Failed, len(s.Mismatches))

	fmt.Fprintln(w, "| Category | Total | OK | Failed | Mismatch | Mean Net | Mean Latency |")
	fmt.Fprintln(w, "|---|---|---|---|---|---|---|")
	for _, c := range rep.Categories {
		fmt.Fprintf(w, "| %s | %d | %d | %d | %d | %.0f | %.0fms |\n",
			c.Category, c.Total, c.Succeeded, c.Failed, c.Mismatches, c.MeanNetCost, c.MeanLatencyMs)
	}
	fmt.Fprintln(w)

	if rep.Priced {
		fmt.Fprintln(w, "| Category | Pattern | Kind | Depth | N | Success | Mean Net | Mean Latency | Mean USD | Top Errors |")
		fmt.Fprintln(w, "|---|---|---|---|---|---|---|---|---|---|")
	} else {
		fmt.Fprintln(w, "| Category | Pattern | Kind | Depth | N | Success | Mean Net | Mean Latency | Top Errors |")
		fmt.Fprintln(w, "|---|---|---|---|---|---|---|---|---|")
	}
	for _, g := range rep.Breakdown {
		fmt.Fprintf(w, "| %s | %s | %s | %s | %d | %s | %.0f | %.0fms |",
			g.Category, g.Pattern, g.Resource, g.Depth, g.Count, pct(g.SuccessRate), g.MeanNetCost, g.MeanLatencyMs)
		if rep.Priced {
			fmt.Fprintf(w, " $%.6f |", g.MeanCostUSD)
		}
		fmt.Fprintf(w, " %s |\n", topErrors(g.TopErrors))
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "| Category | Pattern | Depth | Δ Success | Δ Net | Δ Latency |")
	fmt.Fprintln(w, "|---|---|---|---|---|---|")
	for _, p := range rep.Paired {
		fmt.Fprintf(w, "| %s | %s | %s | %s | %+.0f | %+.0fms |\n",
			p.Category, p.Pattern, p.Depth, signedPct(p.DeltaSuccessRate), p.DeltaNetCost, p.DeltaLatencyMs)
	}
	return nil
}

func writeJSON(rep *Report, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}
