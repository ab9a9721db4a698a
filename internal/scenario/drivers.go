package scenario

import (
	"context"
	"fmt"
	"math"

	"github.com/signalnine/rollbench/internal/program"
	"github.com/signalnine/rollbench/internal/result"
	"github.com/signalnine/rollbench/internal/runner"
)

const (
	categoryDepth      = "depth"
	categoryArithmetic = "arithmetic"
	categoryLifecycle  = "lifecycle"
	categoryBalance    = "balance"
	categoryRebate     = "rebate"
	categoryRollback   = "rollback"
	categoryPayload    = "payload"

	patternThreshold = "threshold"
	patternOverflow  = "overflow"
	patternDivision  = "division"
	patternBounds    = "bounds"
	patternCreate    = "create"
	patternModify    = "modify"
	patternDestroy   = "destroy"
	patternDeposit   = "deposit"

	patternDestroySetup            = "destroy_setup"
	patternRebateSetup             = "rebate_setup"
	patternRebateSuccess           = "rebate_success"
	patternRebateAbortBeforeDelete = "rebate_abort_before_destroy"
	patternRebateDestroyThenAbort  = "rebate_destroy_then_abort"
	patternPayloadSetup            = "payload_setup"
)

var bothKinds = []result.ResourceKind{result.Owned, result.Shared}

var depthLabels = []result.Depth{result.Early, result.Shallow, result.Medium, result.Deep}

func depthScenario() Scenario {
	return Scenario{
		Name:        categoryDepth,
		Description: "abort below a threshold after recursing to each call depth",
		Patterns:    []string{patternThreshold},
		Kinds:       bothKinds,
		Run: func(ctx context.Context, env *Env) error {
			for _, kind := range bothKinds {
				for _, d := range depthLabels {
					for i := 0; i < env.Iterations; i++ {
						obj, err := env.target(kind, i)
						if err != nil {
							return err
						}
						abort := abortHalf(i, env.Iterations)
						value := uint64(150)
						if abort {
							value = 50
						}
						req := env.Catalogue.CheckDepth(sharedKind(kind), obj, env.depth(d), value, env.threshold())
						if _, err := env.submit(ctx, req, runner.Labels{
							Category: categoryDepth, Resource: kind, Depth: d, Pattern: patternThreshold,
							Iteration: i, ExpectFailure: abort, Object: obj,
						}); err != nil {
							return err
						}
					}
				}
			}
			return nil
		},
	}
}

func arithmeticScenario() Scenario {
	return Scenario{
		Name:        categoryArithmetic,
		Description: "checked overflow, division by zero and out-of-bounds vector reads",
		Patterns:    []string{patternOverflow, patternDivision, patternBounds},
		Kinds:       bothKinds,
		Run: func(ctx context.Context, env *Env) error {
			for _, kind := range bothKinds {
				shared := sharedKind(kind)
				for _, pattern := range []string{patternOverflow, patternDivision, patternBounds} {
					for i := 0; i < env.Iterations; i++ {
						obj, err := env.target(kind, i)
						if err != nil {
							return err
						}
						abort := abortHalf(i, env.Iterations)
						x := uint64(1000 * (i + 1))
						l := runner.Labels{
							Category: categoryArithmetic, Resource: kind, Depth: result.NA, Pattern: pattern,
							Iteration: i, ExpectFailure: abort, Object: obj,
						}
						switch pattern {
						case patternOverflow:
							a, b := uint64(100), uint64(200)
							if abort {
								a, b = math.MaxUint64, 1
							}
							_, err = env.submit(ctx, env.Catalogue.CheckedAdd(shared, obj, a, b), l)
						case patternDivision:
							d := uint64(5)
							if abort {
								d = 0
							}
							_, err = env.submit(ctx, env.Catalogue.CheckedDiv(shared, obj, x, d), l)
						case patternBounds:
							index := uint64(i % program.VectorLen)
							if abort {
								index = uint64(program.VectorLen + i)
							}
							l.BoundsFallback = true
							_, err = env.submit(ctx, env.Catalogue.VectorGet(shared, obj, index), l)
						}
						if err != nil {
							return err
						}
					}
				}
			}
			return nil
		},
	}
}

func lifecycleScenario() Scenario {
	return Scenario{
		Name:        categoryLifecycle,
		Description: "create, modify and destroy objects, aborting after the change",
		Patterns:    []string{patternCreate, patternModify, patternDestroy},
		Kinds:       bothKinds,
		Run: func(ctx context.Context, env *Env) error {
			for _, kind := range bothKinds {
				shared := sharedKind(kind)
				for _, pattern := range []string{patternCreate, patternModify, patternDestroy} {
					for i := 0; i < env.Iterations; i++ {
						abort := abortHalf(i, env.Iterations)
						l := runner.Labels{
							Category: categoryLifecycle, Resource: kind, Depth: result.NA, Pattern: pattern,
							Iteration: i, ExpectFailure: abort,
						}
						var err error
						switch pattern {
						case patternCreate:
							_, err = env.submit(ctx, env.Catalogue.CreateObject(shared, abort), l)
						case patternModify:
							if l.Object, err = env.target(kind, i); err != nil {
								return err
							}
							_, err = env.submit(ctx, env.Catalogue.ModifyObject(shared, l.Object, abort), l)
						case patternDestroy:
							setup := l
							setup.Pattern, setup.ExpectFailure = patternDestroySetup, false
							if l.Object, err = env.setup(ctx, env.Catalogue.CreateObject(shared, false), setup); err != nil || l.Object == "" {
								break
							}
							_, err = env.submit(ctx, env.Catalogue.DestroyObject(shared, l.Object, abort), l)
						}
						if err != nil {
							return err
						}
					}
				}
			}
			return nil
		},
	}
}

func balanceScenario() Scenario {
	return Scenario{
		Name:        categoryBalance,
		Description: "deposit into a balance, aborting after the credit",
		Patterns:    []string{patternDeposit},
		Kinds:       bothKinds,
		Run: func(ctx context.Context, env *Env) error {
			for _, kind := range bothKinds {
				for i := 0; i < env.Iterations; i++ {
					obj, err := env.target(kind, i)
					if err != nil {
						return err
					}
					abort := abortHalf(i, env.Iterations)
					req := env.Catalogue.Deposit(sharedKind(kind), obj, uint64(1000*(i+1)), abort)
					if _, err := env.submit(ctx, req, runner.Labels{
						Category: categoryBalance, Resource: kind, Depth: result.NA, Pattern: patternDeposit,
						Iteration: i, ExpectFailure: abort, Object: obj,
					}); err != nil {
						return err
					}
				}
			}
			return nil
		},
	}
}

func rebateScenario() Scenario {
	patterns := []string{patternRebateSuccess, patternRebateAbortBeforeDelete, patternRebateDestroyThenAbort}
	return Scenario{
		Name:        categoryRebate,
		Description: "storage rebates of a deletion that commits, aborts first, or aborts after",
		Patterns:    patterns,
		Kinds:       []result.ResourceKind{result.Owned},
		Run: func(ctx context.Context, env *Env) error {
			for _, pattern := range patterns {
				for i := 0; i < env.Iterations; i++ {
					setup := runner.Labels{
						Category: categoryRebate, Resource: result.Owned, Depth: result.NA,
						Pattern: patternRebateSetup, Iteration: i,
					}
					obj, err := env.setup(ctx, env.Catalogue.CreateObject(false, false), setup)
					if err != nil {
						return err
					}
					if obj == "" {
						continue
					}
					l := setup
					l.Pattern, l.Object = pattern, obj
					req := env.Catalogue.DestroyObject(false, obj, false)
					switch pattern {
					case patternRebateAbortBeforeDelete:
						req, l.ExpectFailure = env.Catalogue.AbortBeforeDestroy(obj), true
					case patternRebateDestroyThenAbort:
						req, l.ExpectFailure = env.Catalogue.DestroyThenAbort(obj), true
					}
					if _, err := env.submit(ctx, req, l); err != nil {
						return err
					}
				}
			}
			return nil
		},
	}
}

// rollbackGrid pairs each rollback pattern with its write count and depth.
var rollbackGrid = []struct {
	pattern string
	writes  uint64
	depth   result.Depth
}{
	{"rollback_early", 1, result.Early},
	{"rollback_mid", 10, result.Medium},
	{"rollback_late", 50, result.Deep},
}

func rollbackScenario() Scenario {
	patterns := make([]string, len(rollbackGrid))
	for i, g := range rollbackGrid {
		patterns[i] = g.pattern
	}
	return Scenario{
		Name:        categoryRollback,
		Description: "writes that are always rolled back, aborting early, midway or late",
		Patterns:    patterns,
		Kinds:       []result.ResourceKind{result.Owned},
		Run: func(ctx context.Context, env *Env) error {
			for _, g := range rollbackGrid {
				for i := 0; i < env.Iterations; i++ {
					obj, err := env.target(result.Owned, i)
					if err != nil {
						return err
					}
					req := env.Catalogue.WriteThenAbort(obj, g.writes, env.depth(g.depth))
					if _, err := env.submit(ctx, req, runner.Labels{
						Category: categoryRollback, Resource: result.Owned, Depth: g.depth, Pattern: g.pattern,
						Iteration: i, ExpectFailure: true, Object: obj,
					}); err != nil {
						return err
					}
				}
			}
			return nil
		},
	}
}

func payloadScenario() Scenario {
	return Scenario{
		Name:        categoryPayload,
		Description: "create, destroy and share objects of growing payload size",
		Patterns:    []string{"create_<n>b", "destroy_<n>b", "share_<n>b"},
		Kinds:       []result.ResourceKind{result.None, result.Owned, result.Shared},
		Run: func(ctx context.Context, env *Env) error {
			sizes := env.PayloadSizes
			if len(sizes) == 0 {
				sizes = DefaultPayloadSizes
			}
			for _, size := range sizes {
				for i := 0; i < env.Iterations; i++ {
					l := runner.Labels{Category: categoryPayload, Resource: result.None, Depth: result.NA, Iteration: i}
					l.Pattern = fmt.Sprintf("create_%db", size)
					if _, err := env.submit(ctx, env.Catalogue.CreatePayload(size), l); err != nil {
						return err
					}
				}
				for i := 0; i < env.Iterations; i++ {
					setup := runner.Labels{Category: categoryPayload, Resource: result.None, Depth: result.NA, Pattern: patternPayloadSetup, Iteration: i}
					obj, err := env.setup(ctx, env.Catalogue.CreatePayload(size), setup)
					if err != nil {
						return err
					}
					if obj == "" {
						continue
					}
					l := runner.Labels{
						Category: categoryPayload, Resource: result.Owned, Depth: result.NA,
						Pattern: fmt.Sprintf("destroy_%db", size), Iteration: i, Object: obj,
					}
					if _, err := env.submit(ctx, env.Catalogue.DestroyPayload(obj), l); err != nil {
						return err
					}
				}
				for i := 0; i < env.Iterations; i++ {
					l := runner.Labels{
						Category: categoryPayload, Resource: result.Shared, Depth: result.NA,
						Pattern: fmt.Sprintf("share_%db", size), Iteration: i,
					}
					if _, err := env.submit(ctx, env.Catalogue.SharePayload(size), l); err != nil {
						return err
					}
				}
			}
			return nil
		},
	}
}
