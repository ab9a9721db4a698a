package scenario_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/signalnine/rollbench/internal/classify"
	"github.com/signalnine/rollbench/internal/clock"
	"github.com/signalnine/rollbench/internal/ledger"
	"github.com/signalnine/rollbench/internal/ledger/sim"
	"github.com/signalnine/rollbench/internal/pool"
	"github.com/signalnine/rollbench/internal/program"
	"github.com/signalnine/rollbench/internal/result"
	"github.com/signalnine/rollbench/internal/runner"
	"github.com/signalnine/rollbench/internal/scenario"
	"github.com/signalnine/rollbench/internal/throttle"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newEnv(t *testing.T, iterations int, opts sim.Options) *scenario.Env {
	t.Helper()
	ctx := context.Background()
	clk := clock.NewFake(time.Unix(0, 0))
	l := sim.New(opts)
	cat := program.New(50_000_000)
	th := throttle.New(throttle.Config{Delay: 10 * time.Millisecond, SharedDelay: 50 * time.Millisecond}, clk)

	p, err := pool.Initialize(ctx, l, th, nil, func(int) *ledger.Request { return cat.CreateCounter(true) }, 3)
	require.NoError(t, err)
	owned, err := pool.CreateOne(ctx, l, cat.CreateCounter(false))
	require.NoError(t, err)

	return &scenario.Env{
		Coord:      runner.New(runner.Options{Client: l, Throttle: th, Clock: clk}),
		Catalogue:  cat,
		Pool:       p,
		Owned:      owned,
		Iterations: iterations,
	}
}

func run(t *testing.T, env *scenario.Env, name string) []result.Outcome {
	t.Helper()
	sel, err := scenario.Select([]string{name})
	require.NoError(t, err)
	require.Len(t, sel, 1)
	require.NoError(t, sel[0].Run(context.Background(), env))
	return env.Coord.Store().Snapshot()
}

func filter(recs []result.Outcome, keep func(result.Outcome) bool) []result.Outcome {
	var out []result.Outcome
	for _, o := range recs {
		if keep(o) {
			out = append(out, o)
		}
	}
	return out
}

func TestDepthEarlyOwned(t *testing.T) {
	recs := run(t, newEnv(t, 10, sim.Options{}), "depth")
	assert.Len(t, recs, 2*4*10)

	early := filter(recs, func(o result.Outcome) bool {
		return o.Resource == result.Owned && o.Depth == result.Early
	})
	require.Len(t, early, 10)
	for i, o := range early {
		assert.Equal(t, i, o.Iteration)
		if i < 5 {
			assert.True(t, o.Failed, "iteration %d", i)
			assert.Equal(t, classify.MoveAbort, o.ErrorKind)
			require.NotNil(t, o.AbortCode)
			assert.Equal(t, program.AbortBelowThreshold, *o.AbortCode)
		} else {
			assert.False(t, o.Failed, "iteration %d", i)
			assert.Nil(t, o.AbortCode)
			assert.Equal(t, classify.None, o.ErrorKind)
		}
	}
}

func TestArithmetic(t *testing.T) {
	recs := run(t, newEnv(t, 4, sim.Options{}), "arithmetic")
	assert.Len(t, recs, 2*3*4)

	want := map[string]classify.Kind{
		"overflow": classify.ArithmeticError,
		"division": classify.DivisionByZero,
		"bounds":   classify.OutOfBounds,
	}
	for _, o := range recs {
		assert.Equal(t, result.NA, o.Depth)
		assert.False(t, o.Mismatch(), "%s/%s/%d", o.Resource, o.Pattern, o.Iteration)
		if o.Failed {
			assert.Equal(t, want[o.Pattern], o.ErrorKind, o.Pattern)
			assert.NotNil(t, o.AbortCode)
		}
	}
}

func TestRebateDestroyThenAbort(t *testing.T) {
	recs := run(t, newEnv(t, 2, sim.Options{}), "rebate")
	// Each iteration is a setup and the measured call.
	assert.Len(t, recs, 3*2*2)

	trap := filter(recs, func(o result.Outcome) bool { return o.Pattern == "rebate_destroy_then_abort" })
	require.Len(t, trap, 2)
	for _, o := range trap {
		assert.True(t, o.Failed)
		assert.Equal(t, classify.MoveAbort, o.ErrorKind)
		assert.Equal(t, program.AbortDestroyThenAbort, *o.AbortCode)
		assert.Equal(t, uint64(sim.GasCoinBytes*sim.StoragePerByte*sim.RebateRate/100), o.StorageRebate)
	}

	success := filter(recs, func(o result.Outcome) bool { return o.Pattern == "rebate_success" })
	for _, o := range success {
		assert.False(t, o.Failed)
		assert.Greater(t, o.StorageRebate, trap[0].StorageRebate)
	}
}

func TestAllScenariosMatchExpectations(t *testing.T) {
	env := newEnv(t, 4, sim.Options{})
	env.PayloadSizes = []uint64{100, 1000}
	for _, s := range scenario.All() {
		require.NoError(t, s.Run(context.Background(), env), s.Name)
	}
	recs := env.Coord.Store().Snapshot()
	require.NotEmpty(t, recs)

	seen := map[string]bool{}
	for _, o := range recs {
		seen[o.Category] = true
		assert.False(t, o.Mismatch(), "%s/%s/%s/%d: %s", o.Category, o.Pattern, o.Resource, o.Iteration, o.ErrorMessage)
		if !o.Failed {
			assert.Nil(t, o.AbortCode)
			assert.Empty(t, o.ErrorKind)
		}
		assert.Equal(t, int64(o.ComputationCost)+int64(o.StorageCost)-int64(o.StorageRebate), o.NetCost)
	}
	assert.Len(t, seen, len(scenario.All()))

	payload := filter(recs, func(o result.Outcome) bool { return o.Category == "payload" && o.Pattern == "share_1000b" })
	require.Len(t, payload, 4)
	assert.Equal(t, result.Shared, payload[0].Resource)
}

func TestRollbackAlwaysAborts(t *testing.T) {
	recs := run(t, newEnv(t, 3, sim.Options{}), "rollback")
	require.Len(t, recs, 9)
	byPattern := map[string]result.Outcome{}
	for _, o := range recs {
		assert.True(t, o.Failed)
		assert.True(t, o.ExpectedFailure)
		assert.Equal(t, program.AbortRollback, *o.AbortCode)
		byPattern[o.Pattern] = o
	}
	assert.Equal(t, result.Early, byPattern["rollback_early"].Depth)
	assert.Equal(t, result.Deep, byPattern["rollback_late"].Depth)
	assert.Greater(t, byPattern["rollback_late"].ComputationCost, byPattern["rollback_early"].ComputationCost)
}

func TestConflictsOnlyHitSharedRecords(t *testing.T) {
	env := newEnv(t, 4, sim.Options{ConflictEvery: 3})
	recs := run(t, env, "balance")
	conflicts := filter(recs, func(o result.Outcome) bool { return o.ErrorKind == classify.InputObjectVersionConflict })
	require.NotEmpty(t, conflicts)
	for _, o := range conflicts {
		assert.Equal(t, result.Shared, o.Resource)
		assert.Empty(t, o.TxDigest)
		assert.Nil(t, o.AbortCode)
	}
}

func TestSelect(t *testing.T) {
	sel, err := scenario.Select([]string{"rollback", "depth"})
	require.NoError(t, err)
	require.Len(t, sel, 2)
	assert.Equal(t, "depth", sel[0].Name, "registry order is kept")
	assert.Equal(t, "rollback", sel[1].Name)

	all, err := scenario.Select(nil)
	require.NoError(t, err)
	assert.Equal(t, scenario.Names(), namesOf(all))

	_, err = scenario.Select([]string{"depth", "nope"})
	assert.ErrorContains(t, err, "nope")
}

func namesOf(s []scenario.Scenario) []string {
	out := make([]string, len(s))
	for i := range s {
		out[i] = s[i].Name
	}
	return out
}

func TestBoundsFallback(t *testing.T) {
	assert.True(t, scenario.BoundsFallback("arithmetic", "bounds"))
	assert.False(t, scenario.BoundsFallback("arithmetic", "overflow"))
	assert.False(t, scenario.BoundsFallback("payload", "bounds"))
}

func TestEmptyPoolFailsSharedDriver(t *testing.T) {
	env := newEnv(t, 2, sim.Options{})
	env.Pool = pool.New(nil)
	sel, err := scenario.Select([]string{"balance"})
	require.NoError(t, err)
	err = sel[0].Run(context.Background(), env)
	assert.ErrorIs(t, err, pool.ErrEmpty)
}
