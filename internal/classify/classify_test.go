package classify_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalnine/rollbench/internal/classify"
)

func moveAbortText(code uint64) string {
	return fmt.Sprintf(`MoveAbort(MoveLocation { module: ModuleId { address: 0x5a1f, name: Identifier("rollback_bench") }, function: 3, instruction: 12, function_name: Some("check_depth_owned") }, %d) in command 0`, code)
}

func TestClassifyCanonicalAbortExtractsCode(t *testing.T) {
	for _, code := range []uint64{0, 1, 7, 42, 1000, 18446744073709551615} {
		t.Run(fmt.Sprint(code), func(t *testing.T) {
			got := classify.Classify(moveAbortText(code))
			require.Equal(t, classify.MoveAbort, got.Kind)
			require.True(t, got.HasCode())
			assert.Equal(t, code, *got.Code)
			assert.Equal(t, classify.RuleCanonicalAbort, got.Rule)
		})
	}
}

func TestClassifyCanonicalAbortWinsOverKeywords(t *testing.T) {
	text := `MoveAbort(MoveLocation { module: ModuleId { address: 0x2, name: Identifier("guard") }, function: 0, instruction: 4, function_name: Some("overflow_guard") }, 9) in command 0`
	got := classify.Classify(text)
	assert.Equal(t, classify.MoveAbort, got.Kind)
	require.True(t, got.HasCode())
	assert.Equal(t, uint64(9), *got.Code)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		wantKind classify.Kind
		wantCode *uint64
	}{
		{"empty", "", classify.Unknown, nil},
		{"unrelated", "connection reset by peer", classify.Unknown, nil},
		{"aborted with code", "transaction aborted with code 12 in rollback_bench::deposit", classify.MoveAbort, u64(12)},
		{"loose abort", "execution abort: status 55", classify.MoveAbort, u64(55)},
		{"loose abort skips hex", "abort at 0x1f then code 3", classify.MoveAbort, u64(3)},
		{"primitive runtime", "ExecutionError { kind: MovePrimitiveRuntimeError(...) }", classify.VMPrimitiveRuntimeError, nil},
		{"version conflict", "Object (0xabc, SequenceNumber(4)) is not available for consumption, its current version: SequenceNumber(5)", classify.InputObjectVersionConflict, nil},
		{"arithmetic overflow", "boom arithmetic overflow boom", classify.ArithmeticError, u64(classify.CodeArithmetic)},
		{"underflow", "u64 underflow in subtraction", classify.ArithmeticError, u64(classify.CodeArithmetic)},
		{"division by zero", "failed: division by zero in checked_div", classify.DivisionByZero, u64(classify.CodeDivisionByZero)},
		{"out of bounds", "vector index out of bounds", classify.OutOfBounds, u64(classify.CodeOutOfBounds)},
		{"insufficient gas", "Transaction execution failed: InsufficientGas", classify.InsufficientGas, u64(classify.CodeInsufficientGas)},
		{"keyword beats loose abort", "abort 7: arithmetic overflow", classify.ArithmeticError, u64(classify.CodeArithmetic)},
		{"primitive beats arithmetic", "MovePrimitiveRuntimeError: arithmetic overflow", classify.VMPrimitiveRuntimeError, nil},
		{"arithmetic beats bounds", "overflow while index out of bounds", classify.ArithmeticError, u64(classify.CodeArithmetic)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify.Classify(tt.text)
			assert.Equal(t, tt.wantKind, got.Kind)
			if tt.wantCode == nil {
				assert.Nil(t, got.Code)
				return
			}
			require.NotNil(t, got.Code)
			assert.Equal(t, *tt.wantCode, *got.Code)
		})
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	text := "execution abort: status 55 and arithmetic overflow"
	first := classify.Classify(text)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first.Kind, classify.Classify(text).Kind)
	}
}

func TestClassifyReturnsIndependentCodes(t *testing.T) {
	a := classify.Classify("overflow")
	*a.Code = 1
	b := classify.Classify("overflow")
	assert.Equal(t, classify.CodeArithmetic, *b.Code)
}

func TestWithBoundsFallback(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		wantKind classify.Kind
		wantCode uint64
	}{
		{"unknown becomes bounds", "vector operation failed with sub status 1", classify.OutOfBounds, classify.CodeOutOfBounds},
		{"loose abort becomes bounds", "abort status 1", classify.OutOfBounds, classify.CodeOutOfBounds},
		{"canonical abort kept", moveAbortText(4), classify.MoveAbort, 4},
		{"gas kept", "InsufficientGas", classify.InsufficientGas, classify.CodeInsufficientGas},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify.Classify(tt.text).WithBoundsFallback()
			assert.Equal(t, tt.wantKind, got.Kind)
			require.NotNil(t, got.Code)
			assert.Equal(t, tt.wantCode, *got.Code)
		})
	}
}

func TestRulesMatchIndependently(t *testing.T) {
	for _, r := range classify.Rules {
		_, ok := r.Match("")
		assert.False(t, ok, "rule %s matched empty text", r.Name)
	}
}

func u64(n uint64) *uint64 { return &n }
