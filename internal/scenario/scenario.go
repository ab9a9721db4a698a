// Package scenario enumerates the parameter grids of each benchmark family
// and drives them through the coordinator.
package scenario

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/signalnine/rollbench/internal/ledger"
	"github.com/signalnine/rollbench/internal/pool"
	"github.com/signalnine/rollbench/internal/program"
	"github.com/signalnine/rollbench/internal/result"
	"github.com/signalnine/rollbench/internal/runner"
)

// Env is what a driver needs to run. Pool and Owned are populated before any
// driver starts.
type Env struct {
	Coord      *runner.Coordinator
	Catalogue  *program.Catalogue
	Pool       *pool.Pool
	Owned      string
	Iterations int
	// Depths maps each depth label to a call depth.
	Depths       map[result.Depth]uint64
	Threshold    uint64
	PayloadSizes []uint64
	Log          *zap.Logger
}

// DefaultPayloadSizes are the object payloads, in bytes, of the payload family.
var DefaultPayloadSizes = []uint64{100, 1000, 10000}

// Scenario is one benchmark family. Its records are its only output.
type Scenario struct {
	Name        string
	Description string
	Patterns    []string
	Kinds       []result.ResourceKind
	Run         func(ctx context.Context, env *Env) error
}

// abortHalf reports whether iteration i of n is an abort case.
func abortHalf(i, n int) bool {
	return i < n/2
}

func sharedKind(k result.ResourceKind) bool {
	return k == result.Shared
}

// target picks the object a submission of kind k operates on.
func (e *Env) target(k result.ResourceKind, i int) (string, error) {
	if k == result.Shared {
		return e.Pool.Select(i)
	}
	if e.Owned == "" {
		return "", fmt.Errorf("no owned object available")
	}
	return e.Owned, nil
}

func (e *Env) depth(d result.Depth) uint64 {
	if v, ok := e.Depths[d]; ok {
		return v
	}
	return program.DefaultDepths[string(d)]
}

func (e *Env) threshold() uint64 {
	if e.Threshold == 0 {
		return program.DefaultThreshold
	}
	return e.Threshold
}

func (e *Env) submit(ctx context.Context, req *ledger.Request, l runner.Labels) (*runner.Submission, error) {
	return e.Coord.Submit(ctx, req, l)
}

// setup submits a construction step and returns the created handle. A
// failed setup is recorded like any other submission and reported as "".
func (e *Env) setup(ctx context.Context, req *ledger.Request, l runner.Labels) (string, error) {
	sub, err := e.submit(ctx, req, l)
	if sub == nil || sub.Effects == nil || sub.Outcome.Failed || len(sub.Effects.Created) == 0 {
		if err == nil && e.Log != nil {
			e.Log.Warn("setup produced no object, skipping dependent step",
				zap.String("category", l.Category), zap.String("pattern", l.Pattern), zap.Int("iteration", l.Iteration))
		}
		return "", err
	}
	return sub.Effects.Created[0].ID, err
}

var registry = []Scenario{
	depthScenario(),
	arithmeticScenario(),
	lifecycleScenario(),
	balanceScenario(),
	rebateScenario(),
	rollbackScenario(),
	payloadScenario(),
}

// All returns every scenario in run order.
func All() []Scenario {
	return append([]Scenario(nil), registry...)
}

// Names returns the registered scenario names in run order.
func Names() []string {
	names := make([]string, len(registry))
	for i, s := range registry {
		names[i] = s.Name
	}
	return names
}

// Select returns the named scenarios in registry order. No names selects all.
func Select(names []string) ([]Scenario, error) {
	if len(names) == 0 {
		return All(), nil
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	var out []Scenario
	for _, s := range registry {
		if want[s.Name] {
			out = append(out, s)
			delete(want, s.Name)
		}
	}
	if len(want) > 0 {
		var unknown []string
		for _, n := range names {
			if want[n] {
				unknown = append(unknown, n)
			}
		}
		return nil, fmt.Errorf("unknown scenarios: %s (known: %s)", strings.Join(unknown, ", "), strings.Join(Names(), ", "))
	}
	return out, nil
}

// BoundsFallback reports whether failures of a category and pattern are
// known to be out-of-bounds by construction.
func BoundsFallback(category, pattern string) bool {
	return category == categoryArithmetic && pattern == patternBounds
}
