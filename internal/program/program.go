// Package program is the entry point catalogue of the on-chain benchmark
// module. It only knows how to address entry points; what they do is observed
// through commit, abort and cost.
package program

import (
	"strings"

	"github.com/signalnine/rollbench/internal/ledger"
)

// Entry point base names. Families exercised against both resource kinds
// carry an "_owned" or "_shared" suffix on chain; see Name.
const (
	FnCreateCounter      = "create_counter"
	FnCheckDepth         = "check_depth"
	FnCheckedAdd         = "checked_add"
	FnCheckedDiv         = "checked_div"
	FnVectorGet          = "vector_get"
	FnCreateObject       = "create_object"
	FnModifyObject       = "modify_object"
	FnDestroyObject      = "destroy_object"
	FnDeposit            = "deposit"
	FnAbortBeforeDestroy = "abort_before_destroy"
	FnDestroyThenAbort   = "destroy_then_abort"
	FnWriteThenAbort     = "write_then_abort"
	FnCreatePayload      = "create_payload"
	FnDestroyPayload     = "destroy_payload"
	FnSharePayload       = "share_payload"
)

const (
	SuffixOwned  = "_owned"
	SuffixShared = "_shared"
)

// Abort codes raised by the module.
const (
	AbortBelowThreshold   uint64 = 1
	AbortRollback         uint64 = 2
	AbortRequested        uint64 = 3
	AbortDestroyThenAbort uint64 = 4
	AbortBeforeDestroy    uint64 = 5
)

// VectorLen is the length of the vector every counter object carries.
const VectorLen = 8

// DefaultThreshold is the value check_depth compares against.
const DefaultThreshold = 100

// DefaultDepths maps depth labels to the call depth check_depth recurses to.
var DefaultDepths = map[string]uint64{
	"early":   1,
	"shallow": 5,
	"medium":  20,
	"deep":    50,
}

// Name returns the on-chain entry point for a kind-specific family.
func Name(base string, shared bool) string {
	if shared {
		return base + SuffixShared
	}
	return base + SuffixOwned
}

// Split is the inverse of Name. Functions without a kind suffix report
// hasKind false.
func Split(fn string) (base string, shared, hasKind bool) {
	if b, ok := strings.CutSuffix(fn, SuffixShared); ok {
		return b, true, true
	}
	if b, ok := strings.CutSuffix(fn, SuffixOwned); ok {
		return b, false, true
	}
	return fn, false, false
}

// Catalogue builds requests with a fixed gas budget. The budget is never
// estimated so that every submission is charged under the same ceiling.
type Catalogue struct {
	GasBudget uint64
}

func New(gasBudget uint64) *Catalogue {
	return &Catalogue{GasBudget: gasBudget}
}

func (c *Catalogue) call(fn string, args ...ledger.Arg) *ledger.Request {
	return &ledger.Request{Function: fn, Arguments: args, GasBudget: c.GasBudget}
}

// CreateCounter creates one counter object. Shared counters populate the
// pool; an owned counter is the anchor for owned submissions.
func (c *Catalogue) CreateCounter(shared bool) *ledger.Request {
	return c.call(Name(FnCreateCounter, shared))
}

// CheckDepth recurses depth frames and aborts with AbortBelowThreshold when
// value < threshold, otherwise writes value into obj.
func (c *Catalogue) CheckDepth(shared bool, obj string, depth, value, threshold uint64) *ledger.Request {
	return c.call(Name(FnCheckDepth, shared), ledger.ObjectArg(obj), ledger.U64(depth), ledger.U64(value), ledger.U64(threshold))
}

func (c *Catalogue) CheckedAdd(shared bool, obj string, a, b uint64) *ledger.Request {
	return c.call(Name(FnCheckedAdd, shared), ledger.ObjectArg(obj), ledger.U64(a), ledger.U64(b))
}

func (c *Catalogue) CheckedDiv(shared bool, obj string, a, b uint64) *ledger.Request {
	return c.call(Name(FnCheckedDiv, shared), ledger.ObjectArg(obj), ledger.U64(a), ledger.U64(b))
}

// VectorGet reads index from the object's vector of VectorLen elements.
func (c *Catalogue) VectorGet(shared bool, obj string, index uint64) *ledger.Request {
	return c.call(Name(FnVectorGet, shared), ledger.ObjectArg(obj), ledger.U64(index))
}

func (c *Catalogue) CreateObject(shared, abort bool) *ledger.Request {
	return c.call(Name(FnCreateObject, shared), ledger.Bool(abort))
}

func (c *Catalogue) ModifyObject(shared bool, obj string, abort bool) *ledger.Request {
	return c.call(Name(FnModifyObject, shared), ledger.ObjectArg(obj), ledger.Bool(abort))
}

func (c *Catalogue) DestroyObject(shared bool, obj string, abort bool) *ledger.Request {
	return c.call(Name(FnDestroyObject, shared), ledger.ObjectArg(obj), ledger.Bool(abort))
}

func (c *Catalogue) Deposit(shared bool, obj string, amount uint64, abort bool) *ledger.Request {
	return c.call(Name(FnDeposit, shared), ledger.ObjectArg(obj), ledger.U64(amount), ledger.Bool(abort))
}

// AbortBeforeDestroy aborts before the owned object is deleted.
func (c *Catalogue) AbortBeforeDestroy(obj string) *ledger.Request {
	return c.call(FnAbortBeforeDestroy, ledger.ObjectArg(obj))
}

// DestroyThenAbort deletes the owned object and then aborts, so the deletion
// and its storage rebate are rolled back.
func (c *Catalogue) DestroyThenAbort(obj string) *ledger.Request {
	return c.call(FnDestroyThenAbort, ledger.ObjectArg(obj))
}

// WriteThenAbort performs writes at call depth depth and always aborts.
func (c *Catalogue) WriteThenAbort(obj string, writes, depth uint64) *ledger.Request {
	return c.call(FnWriteThenAbort, ledger.ObjectArg(obj), ledger.U64(writes), ledger.U64(depth))
}

// CreatePayload creates an owned object carrying size bytes.
func (c *Catalogue) CreatePayload(size uint64) *ledger.Request {
	return c.call(FnCreatePayload, ledger.U64(size))
}

func (c *Catalogue) DestroyPayload(obj string) *ledger.Request {
	return c.call(FnDestroyPayload, ledger.ObjectArg(obj))
}

// SharePayload creates a shared object carrying size bytes.
func (c *Catalogue) SharePayload(size uint64) *ledger.Request {
	return c.call(FnSharePayload, ledger.U64(size))
}
