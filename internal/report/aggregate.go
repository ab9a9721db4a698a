package report

import (
	"fmt"
	"sort"

	"github.com/signalnine/rollbench/internal/pricing"
	"github.com/signalnine/rollbench/internal/result"
)

// Summary counts outcomes and lists every divergent one.
type Summary struct {
	Total      int              `json:"total"`
	Succeeded  int              `json:"succeeded"`
	Failed     int              `json:"failed"`
	Mismatches []result.Outcome `json:"mismatches"`
}

type ErrorCount struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// Group aggregates the outcomes sharing category, pattern, resource kind and
// depth label.
type Group struct {
	Category      string              `json:"category"`
	Pattern       string              `json:"pattern"`
	Resource      result.ResourceKind `json:"resource_kind"`
	Depth         result.Depth        `json:"depth"`
	Count         int                 `json:"count"`
	Successes     int                 `json:"successes"`
	Failures      int                 `json:"failures"`
	SuccessRate   float64             `json:"success_rate"`
	MeanNetCost   float64             `json:"mean_net_cost"`
	MeanLatencyMs float64             `json:"mean_latency_ms"`
	MeanCostUSD   float64             `json:"mean_cost_usd,omitempty"`
	TopErrors     []ErrorCount        `json:"top_errors"`
}

// Pair compares the owned and shared groups of one category, pattern and
// depth. Deltas are shared minus owned.
type Pair struct {
	Category          string       `json:"category"`
	Pattern           string       `json:"pattern"`
	Depth             result.Depth `json:"depth"`
	OwnedSuccessRate  float64      `json:"owned_success_rate"`
	SharedSuccessRate float64      `json:"shared_success_rate"`
	DeltaSuccessRate  float64      `json:"delta_success_rate"`
	OwnedNetCost      float64      `json:"owned_mean_net_cost"`
	SharedNetCost     float64      `json:"shared_mean_net_cost"`
	DeltaNetCost      float64      `json:"delta_mean_net_cost"`
	OwnedLatencyMs    float64      `json:"owned_mean_latency_ms"`
	SharedLatencyMs   float64      `json:"shared_mean_latency_ms"`
	DeltaLatencyMs    float64      `json:"delta_mean_latency_ms"`
}

type CategorySummary struct {
	Category      string  `json:"category"`
	Total         int     `json:"total"`
	Succeeded     int     `json:"succeeded"`
	Failed        int     `json:"failed"`
	Mismatches    int     `json:"mismatches"`
	MeanNetCost   float64 `json:"mean_net_cost"`
	MeanLatencyMs float64 `json:"mean_latency_ms"`
}

// Summarize counts a closed snapshot of outcomes.
func Summarize(records []result.Outcome) Summary {
	s := Summary{Total: len(records), Mismatches: []result.Outcome{}}
	for _, o := range records {
		if o.Failed {
			s.Failed++
		} else {
			s.Succeeded++
		}
		if o.Mismatch() {
			s.Mismatches = append(s.Mismatches, o)
		}
	}
	return s
}

type groupKey struct {
	category string
	pattern  string
	resource result.ResourceKind
	depth    result.Depth
}

type accum struct {
	count     int
	successes int
	net       int64
	latency   int64
	errors    []ErrorCount
	errIndex  map[string]int
}

func (a *accum) add(o result.Outcome) {
	a.count++
	a.net += o.NetCost
	a.latency += o.LatencyMs
	if !o.Failed {
		a.successes++
		return
	}
	label := ErrorLabel(o)
	if a.errIndex == nil {
		a.errIndex = map[string]int{}
	}
	i, ok := a.errIndex[label]
	if !ok {
		i = len(a.errors)
		a.errIndex[label] = i
		a.errors = append(a.errors, ErrorCount{Label: label})
	}
	a.errors[i].Count++
}

func (a *accum) rate() float64        { return float64(a.successes) / float64(a.count) }
func (a *accum) meanNet() float64     { return float64(a.net) / float64(a.count) }
func (a *accum) meanLatency() float64 { return float64(a.latency) / float64(a.count) }

// top returns the n most frequent errors; ties keep first-seen order.
func (a *accum) top(n int) []ErrorCount {
	out := append([]ErrorCount(nil), a.errors...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// ErrorLabel renders an outcome's kind with its abort code, if any.
func ErrorLabel(o result.Outcome) string {
	if o.AbortCode != nil {
		return fmt.Sprintf("%s(%d)", o.ErrorKind, *o.AbortCode)
	}
	return string(o.ErrorKind)
}

var depthRank = map[result.Depth]int{
	result.Early:   0,
	result.Shallow: 1,
	result.Medium:  2,
	result.Deep:    3,
	result.NA:      4,
}

func lessDepth(a, b result.Depth) bool {
	ra, oka := depthRank[a]
	rb, okb := depthRank[b]
	if oka && okb {
		return ra < rb
	}
	if oka != okb {
		return oka
	}
	return a < b
}

func groupByKey(records []result.Outcome) ([]groupKey, map[groupKey]*accum) {
	groups := map[groupKey]*accum{}
	var keys []groupKey
	for _, o := range records {
		k := groupKey{o.Category, o.Pattern, o.Resource, o.Depth}
		a, ok := groups[k]
		if !ok {
			a = &accum{}
			groups[k] = a
			keys = append(keys, k)
		}
		a.add(o)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.category != b.category {
			return a.category < b.category
		}
		if a.pattern != b.pattern {
			return a.pattern < b.pattern
		}
		if a.depth != b.depth {
			return lessDepth(a.depth, b.depth)
		}
		return a.resource < b.resource
	})
	return keys, groups
}

// Breakdown groups outcomes by exact category, pattern, resource kind and
// depth label.
func Breakdown(records []result.Outcome) []Group {
	keys, groups := groupByKey(records)
	out := make([]Group, 0, len(keys))
	for _, k := range keys {
		a := groups[k]
		out = append(out, Group{
			Category:      k.category,
			Pattern:       k.pattern,
			Resource:      k.resource,
			Depth:         k.depth,
			Count:         a.count,
			Successes:     a.successes,
			Failures:      a.count - a.successes,
			SuccessRate:   a.rate(),
			MeanNetCost:   a.meanNet(),
			MeanLatencyMs: a.meanLatency(),
			TopErrors:     a.top(3),
		})
	}
	return out
}

// Paired compares owned against shared for every category, pattern and depth
// present on both sides. One-sided keys are left out.
func Paired(records []result.Outcome) []Pair {
	keys, groups := groupByKey(records)
	var out []Pair
	for _, k := range keys {
		if k.resource != result.Owned {
			continue
		}
		sk := k
		sk.resource = result.Shared
		shared, ok := groups[sk]
		if !ok {
			continue
		}
		owned := groups[k]
		out = append(out, Pair{
			Category:          k.category,
			Pattern:           k.pattern,
			Depth:             k.depth,
			OwnedSuccessRate:  owned.rate(),
			SharedSuccessRate: shared.rate(),
			DeltaSuccessRate:  shared.rate() - owned.rate(),
			OwnedNetCost:      owned.meanNet(),
			SharedNetCost:     shared.meanNet(),
			DeltaNetCost:      shared.meanNet() - owned.meanNet(),
			OwnedLatencyMs:    owned.meanLatency(),
			SharedLatencyMs:   shared.meanLatency(),
			DeltaLatencyMs:    shared.meanLatency() - owned.meanLatency(),
		})
	}
	return out
}

// ByCategory summarizes each category, in name order.
func ByCategory(records []result.Outcome) []CategorySummary {
	type cat struct {
		accum
		mismatches int
	}
	byName := map[string]*cat{}
	for _, o := range records {
		c, ok := byName[o.Category]
		if !ok {
			c = &cat{}
			byName[o.Category] = c
		}
		c.add(o)
		if o.Mismatch() {
			c.mismatches++
		}
	}
	out := make([]CategorySummary, 0, len(byName))
	for name, c := range byName {
		out = append(out, CategorySummary{
			Category:      name,
			Total:         c.count,
			Succeeded:     c.successes,
			Failed:        c.count - c.successes,
			Mismatches:    c.mismatches,
			MeanNetCost:   c.meanNet(),
			MeanLatencyMs: c.meanLatency(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out
}

// Report is everything derived from one snapshot.
type Report struct {
	Network    string            `json:"network,omitempty"`
	Priced     bool              `json:"priced"`
	Summary    Summary           `json:"summary"`
	Categories []CategorySummary `json:"categories"`
	Breakdown  []Group           `json:"breakdown"`
	Paired     []Pair            `json:"paired"`
}

type Options struct {
	Network string
	Pricing *pricing.Table
}

// Build aggregates a closed snapshot. It does not modify records and gives
// the same result for the same input.
func Build(records []result.Outcome, opts Options) *Report {
	rep := &Report{
		Network:    opts.Network,
		Summary:    Summarize(records),
		Categories: ByCategory(records),
		Breakdown:  Breakdown(records),
		Paired:     Paired(records),
	}
	normalize(rep)
	if opts.Pricing.Has(opts.Network) {
		rep.Priced = true
		for i := range rep.Breakdown {
			rep.Breakdown[i].MeanCostUSD = opts.Pricing.Cost(opts.Network, rep.Breakdown[i].MeanNetCost)
		}
	}
	return rep
}

// normalize replaces nil slices with empty ones so every list in the JSON
// report renders as [] rather than null.
func normalize(rep *Report) {
	if rep.Summary.Mismatches == nil {
		rep.Summary.Mismatches = []result.Outcome{}
	}
	if rep.Categories == nil {
		rep.Categories = []CategorySummary{}
	}
	if rep.Breakdown == nil {
		rep.Breakdown = []Group{}
	}
	if rep.Paired == nil {
		rep.Paired = []Pair{}
	}
	for i := range rep.Breakdown {
		if rep.Breakdown[i].TopErrors == nil {
			rep.Breakdown[i].TopErrors = []ErrorCount{}
		}
	}
}
