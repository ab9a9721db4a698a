package sim

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalnine/rollbench/internal/classify"
	"github.com/signalnine/rollbench/internal/clock"
	"github.com/signalnine/rollbench/internal/ledger"
	"github.com/signalnine/rollbench/internal/program"
)

const budget = 50_000_000

var cat = program.New(budget)

func mustCreate(t *testing.T, l *Ledger, req *ledger.Request) string {
	t.Helper()
	eff, err := l.Submit(context.Background(), req)
	require.NoError(t, err)
	require.False(t, eff.Failed(), eff.Error)
	require.Len(t, eff.Created, 1)
	return eff.Created[0].ID
}

func TestCreateCounterCosts(t *testing.T) {
	l := New(Options{})
	eff, err := l.Submit(context.Background(), cat.CreateCounter(true))
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusSuccess, eff.Status)
	assert.Equal(t, uint64(BaseUnits*ReferenceGasPrice), eff.Gas.ComputationCost)
	assert.Equal(t, storage(GasCoinBytes)+storage(CounterBytes), eff.Gas.StorageCost)
	assert.Equal(t, rebate(GasCoinBytes), eff.Gas.StorageRebate)
	require.Len(t, eff.Created, 1)
	assert.True(t, eff.Created[0].Shared)
	assert.True(t, l.Exists(eff.Created[0].ID))
}

func TestCheckDepthThreshold(t *testing.T) {
	l := New(Options{})
	obj := mustCreate(t, l, cat.CreateCounter(false))

	eff, err := l.Submit(context.Background(), cat.CheckDepth(false, obj, 1, 50, program.DefaultThreshold))
	require.NoError(t, err)
	assert.True(t, eff.Failed())
	res := classify.Classify(eff.Error)
	assert.Equal(t, classify.MoveAbort, res.Kind)
	require.True(t, res.HasCode())
	assert.Equal(t, program.AbortBelowThreshold, *res.Code)
	assert.Equal(t, uint64(0), eff.Gas.StorageCost-storage(GasCoinBytes), "aborts store only the gas coin")

	eff, err = l.Submit(context.Background(), cat.CheckDepth(false, obj, 1, 150, program.DefaultThreshold))
	require.NoError(t, err)
	assert.False(t, eff.Failed())
	v, ok := l.Value(obj)
	require.True(t, ok)
	assert.Equal(t, uint64(150), v)
}

func TestDeeperCallsCostMore(t *testing.T) {
	l := New(Options{})
	obj := mustCreate(t, l, cat.CreateCounter(false))
	shallow, err := l.Submit(context.Background(), cat.CheckDepth(false, obj, 1, 150, 100))
	require.NoError(t, err)
	deep, err := l.Submit(context.Background(), cat.CheckDepth(false, obj, 50, 150, 100))
	require.NoError(t, err)
	assert.Greater(t, deep.Gas.ComputationCost, shallow.Gas.ComputationCost)
}

func TestFailureTextsClassify(t *testing.T) {
	l := New(Options{})
	obj := mustCreate(t, l, cat.CreateCounter(false))

	tests := []struct {
		name     string
		req      *ledger.Request
		want     classify.Kind
		override bool
	}{
		{"overflow", cat.CheckedAdd(false, obj, math.MaxUint64, 1), classify.ArithmeticError, false},
		{"division", cat.CheckedDiv(false, obj, 10, 0), classify.DivisionByZero, false},
		{"bounds", cat.VectorGet(false, obj, program.VectorLen+1), classify.OutOfBounds, true},
		{"requested", cat.ModifyObject(false, obj, true), classify.MoveAbort, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eff, err := l.Submit(context.Background(), tt.req)
			require.NoError(t, err)
			require.True(t, eff.Failed())
			res := classify.Classify(eff.Error)
			if tt.override {
				assert.Equal(t, classify.Unknown, res.Kind)
				res = res.WithBoundsFallback()
			}
			assert.Equal(t, tt.want, res.Kind)
		})
	}
}

func TestArithmeticSuccess(t *testing.T) {
	l := New(Options{})
	obj := mustCreate(t, l, cat.CreateCounter(true))
	eff, err := l.Submit(context.Background(), cat.CheckedAdd(true, obj, 100, 200))
	require.NoError(t, err)
	assert.False(t, eff.Failed())
	v, _ := l.Value(obj)
	assert.Equal(t, uint64(300), v)
}

func TestAbortLeavesStateUntouched(t *testing.T) {
	l := New(Options{})
	obj := mustCreate(t, l, cat.CreateCounter(false))
	_, err := l.Submit(context.Background(), cat.CheckDepth(false, obj, 1, 150, 100))
	require.NoError(t, err)

	eff, err := l.Submit(context.Background(), cat.DestroyThenAbort(obj))
	require.NoError(t, err)
	assert.True(t, eff.Failed())
	assert.True(t, l.Exists(obj))
	assert.Equal(t, rebate(GasCoinBytes), eff.Gas.StorageRebate)
	v, _ := l.Value(obj)
	assert.Equal(t, uint64(150), v)
}

func TestDestroyRebatesStorage(t *testing.T) {
	l := New(Options{})
	obj := mustCreate(t, l, cat.CreatePayload(10000))
	eff, err := l.Submit(context.Background(), cat.DestroyPayload(obj))
	require.NoError(t, err)
	assert.False(t, eff.Failed())
	assert.False(t, l.Exists(obj))
	assert.Equal(t, rebate(GasCoinBytes)+rebate(PayloadOverhead+10000), eff.Gas.StorageRebate)
	assert.Less(t, eff.Gas.Net(), int64(0))
}

func TestInsufficientGasRejection(t *testing.T) {
	l := New(Options{})
	req := cat.CreateCounter(false)
	req.GasBudget = 10
	_, err := l.Submit(context.Background(), req)
	require.Error(t, err)

	var rpcErr *ledger.RPCError
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, classify.InsufficientGas, classify.Classify(err.Error()).Kind)

	gas, ok := ledger.RecoverGas(err)
	require.True(t, ok)
	assert.Equal(t, uint64(10), gas.ComputationCost)
	assert.Equal(t, storage(GasCoinBytes), gas.StorageCost)
}

func TestConflictInjection(t *testing.T) {
	l := New(Options{ConflictEvery: 2})
	obj := mustCreate(t, l, cat.CreateCounter(true))

	_, err := l.Submit(context.Background(), cat.ModifyObject(true, obj, false))
	require.NoError(t, err)
	_, err = l.Submit(context.Background(), cat.ModifyObject(true, obj, false))
	require.Error(t, err)
	assert.Equal(t, classify.InputObjectVersionConflict, classify.Classify(err.Error()).Kind)
	_, ok := ledger.RecoverGas(err)
	assert.False(t, ok)
}

func TestInvalidRequests(t *testing.T) {
	l := New(Options{})
	owned := mustCreate(t, l, cat.CreateCounter(false))

	tests := []struct {
		name string
		req  *ledger.Request
	}{
		{"unknown function", &ledger.Request{Function: "nope", GasBudget: budget}},
		{"missing object", cat.ModifyObject(false, "0xdead", false)},
		{"ownership mismatch", cat.ModifyObject(true, owned, false)},
		{"missing argument", &ledger.Request{Function: program.Name(program.FnCheckDepth, false), Arguments: []ledger.Arg{ledger.ObjectArg(owned)}, GasBudget: budget}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.Submit(context.Background(), tt.req)
			var rpcErr *ledger.RPCError
			require.True(t, errors.As(err, &rpcErr))
			assert.Equal(t, CodeInvalidParams, rpcErr.Code)
		})
	}
}

func TestLatency(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	l := New(Options{Clock: clk, Latency: 800 * time.Millisecond, SharedLatency: 1200 * time.Millisecond})
	shared := mustCreate(t, l, cat.CreateCounter(true))
	_, err := l.Submit(context.Background(), cat.ModifyObject(true, shared, false))
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{800 * time.Millisecond, 1200 * time.Millisecond}, clk.Slept())
}

func TestCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(Options{}).Submit(ctx, cat.CreateCounter(false))
	assert.ErrorIs(t, err, context.Canceled)
}
