package program_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalnine/rollbench/internal/ledger"
	"github.com/signalnine/rollbench/internal/program"
)

func TestNameSplit(t *testing.T) {
	tests := []struct {
		fn      string
		base    string
		shared  bool
		hasKind bool
	}{
		{"check_depth_shared", program.FnCheckDepth, true, true},
		{"deposit_owned", program.FnDeposit, false, true},
		{"write_then_abort", program.FnWriteThenAbort, false, false},
	}
	for _, tt := range tests {
		base, shared, hasKind := program.Split(tt.fn)
		assert.Equal(t, tt.base, base, tt.fn)
		assert.Equal(t, tt.shared, shared, tt.fn)
		assert.Equal(t, tt.hasKind, hasKind, tt.fn)
		if tt.hasKind {
			assert.Equal(t, tt.fn, program.Name(base, shared))
		}
	}
}

func TestCatalogueRequests(t *testing.T) {
	cat := program.New(7_000_000)

	req := cat.CheckDepth(true, "0xpool", 20, 50, program.DefaultThreshold)
	assert.Equal(t, "check_depth_shared", req.Function)
	assert.Equal(t, uint64(7_000_000), req.GasBudget)
	require.Len(t, req.Arguments, 4)
	assert.Equal(t, ledger.ObjectArg("0xpool"), req.Arguments[0])
	for i, want := range []uint64{20, 50, 100} {
		got, err := req.Arguments[i+1].Uint64()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	req = cat.Deposit(false, "0xa", 3000, true)
	assert.Equal(t, "deposit_owned", req.Function)
	abort, err := req.Arguments[2].Bool()
	require.NoError(t, err)
	assert.True(t, abort)

	assert.Equal(t, program.FnDestroyThenAbort, cat.DestroyThenAbort("0xa").Function)
	assert.Empty(t, cat.CreateCounter(true).Arguments)
	assert.Equal(t, "create_object_owned", cat.CreateObject(false, false).Function)
}
