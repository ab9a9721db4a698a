// Package sim is an in-process ledger that executes the benchmark module's
// entry points with deterministic costs and failure texts. Dry runs and tests
// use it in place of a node.
package sim

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/holiman/uint256"

	"github.com/signalnine/rollbench/internal/clock"
	"github.com/signalnine/rollbench/internal/ledger"
	"github.com/signalnine/rollbench/internal/program"
)

// Cost model. Computation is charged in units at ReferenceGasPrice; storage
// is charged per byte and refunded at RebateRate percent on deletion or
// rewrite.
const (
	ReferenceGasPrice = 1000
	BaseUnits         = 1000
	DepthUnits        = 40
	WriteUnits        = 25
	StoragePerByte    = 7600
	RebateRate        = 99

	GasCoinBytes    = 130
	CounterBytes    = 100
	PayloadOverhead = 40
)

// JSON-RPC codes the simulator rejects with.
const (
	CodeInvalidParams   = -32602
	CodeExecutionFailed = -32002
)

type Options struct {
	Package string
	Module  string
	// ConflictEvery rejects every n-th submission with a shared input as a
	// version conflict when positive.
	ConflictEvery int
	// Clock, when set, is slept for Latency (SharedLatency for submissions
	// with a shared input) on every submission.
	Clock         clock.Clock
	Latency       time.Duration
	SharedLatency time.Duration
}

type object struct {
	shared  bool
	bytes   uint64
	value   uint64
	balance uint64
}

// Ledger is safe for concurrent use, though the coordinator never needs it.
type Ledger struct {
	opts Options

	mu            sync.Mutex
	objects       map[string]*object
	nextObject    uint64
	seq           uint64
	sharedTouches int
}

func New(opts Options) *Ledger {
	if opts.Package == "" {
		opts.Package = "0x0000000000000000000000000000000000000000000000000000000000000b07"
	}
	if opts.Module == "" {
		opts.Module = "rollback_bench"
	}
	return &Ledger{opts: opts, objects: make(map[string]*object)}
}

// Exists reports whether an object is live.
func (l *Ledger) Exists(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.objects[id]
	return ok
}

// Value returns the value last written into an object.
func (l *Ledger) Value(id string) (uint64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	o, ok := l.objects[id]
	if !ok {
		return 0, false
	}
	return o.value, true
}

// tx accumulates the effects of one execution. Writes are staged as object
// copies and applied only on commit.
type tx struct {
	units    uint64
	created  []*staged
	mutated  map[string]object
	deleted  map[string]bool
	sharedIn bool
}

type staged struct {
	id  string
	obj *object
}

// execFailure is an execution that ran and failed; its gas is charged.
type execFailure struct {
	text string
}

func (l *Ledger) Submit(ctx context.Context, req *ledger.Request) (*ledger.Effects, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.seq++
	seq := l.seq
	t := &tx{units: BaseUnits, mutated: map[string]object{}, deleted: map[string]bool{}}
	fail, err := l.execute(req, t)
	if err != nil {
		l.mu.Unlock()
		return nil, err
	}
	if t.sharedIn && l.opts.ConflictEvery > 0 {
		l.sharedTouches++
		if l.sharedTouches%l.opts.ConflictEvery == 0 {
			l.mu.Unlock()
			return nil, &ledger.RPCError{
				Code:    CodeExecutionFailed,
				Message: fmt.Sprintf("Transaction needs to be rebuilt because object %s version is not available for consumption", req.Arguments[0].Object),
			}
		}
	}

	computation := t.units * ReferenceGasPrice
	if req.GasBudget < computation {
		l.mu.Unlock()
		return nil, insufficientGas(req.GasBudget)
	}

	eff := &ledger.Effects{
		Digest: fmt.Sprintf("sim%010d", seq),
		Gas: ledger.GasSummary{
			ComputationCost: computation,
			StorageCost:     storage(GasCoinBytes),
			StorageRebate:   rebate(GasCoinBytes),
		},
	}
	if fail != nil {
		eff.Status = ledger.StatusFailure
		eff.Error = fail.text
	} else {
		eff.Status = ledger.StatusSuccess
		l.commit(t, eff)
	}
	l.mu.Unlock()

	if l.opts.Clock != nil {
		d := l.opts.Latency
		if t.sharedIn && l.opts.SharedLatency > 0 {
			d = l.opts.SharedLatency
		}
		if err := l.opts.Clock.Sleep(ctx, d); err != nil {
			return nil, err
		}
	}
	return eff, nil
}

func (l *Ledger) commit(t *tx, eff *ledger.Effects) {
	for id, next := range t.mutated {
		eff.Gas.StorageCost += storage(next.bytes)
		eff.Gas.StorageRebate += rebate(l.objects[id].bytes)
		*l.objects[id] = next
	}
	for id := range t.deleted {
		eff.Gas.StorageRebate += rebate(l.objects[id].bytes)
		delete(l.objects, id)
	}
	for _, s := range t.created {
		eff.Gas.StorageCost += storage(s.obj.bytes)
		l.objects[s.id] = s.obj
		eff.Created = append(eff.Created, ledger.Object{ID: s.id, Shared: s.obj.shared})
	}
}

func storage(bytes uint64) uint64 { return bytes * StoragePerByte }
func rebate(bytes uint64) uint64  { return storage(bytes) * RebateRate / 100 }

func insufficientGas(budget uint64) error {
	data, _ := json.Marshal(map[string]any{
		"effects": map[string]any{
			"status": map[string]string{"status": "failure", "error": "InsufficientGas"},
			"gasUsed": map[string]string{
				"computationCost": fmt.Sprint(budget),
				"storageCost":     fmt.Sprint(storage(GasCoinBytes)),
				"storageRebate":   fmt.Sprint(rebate(GasCoinBytes)),
			},
		},
	})
	return &ledger.RPCError{
		Code:    CodeExecutionFailed,
		Message: "Transaction execution failed: InsufficientGas",
		Data:    data,
	}
}

func invalid(format string, args ...any) error {
	return &ledger.RPCError{Code: CodeInvalidParams, Message: "Invalid params: " + fmt.Sprintf(format, args...)}
}

func (l *Ledger) abort(fn string, code uint64) *execFailure {
	return &execFailure{text: fmt.Sprintf(
		"MoveAbort(MoveLocation { module: ModuleId { address: %s, name: Identifier(%q) }, function: 0, instruction: 7, function_name: Some(%q) }, %d) in command 0",
		l.opts.Package, l.opts.Module, fn, code)}
}

func (l *Ledger) newObject(t *tx, o *object) {
	l.nextObject++
	t.created = append(t.created, &staged{id: fmt.Sprintf("0x%064x", l.nextObject), obj: o})
}

// execute runs one entry point against staged state. A nil failure with a
// nil error means the transaction commits.
func (l *Ledger) execute(req *ledger.Request, t *tx) (*execFailure, error) {
	base, shared, hasKind := program.Split(req.Function)
	args := argReader{fn: req.Function, args: req.Arguments}

	// input resolves the object argument and checks its ownership matches
	// the entry point.
	input := func(wantShared bool) (string, *object, error) {
		id, err := args.object(0)
		if err != nil {
			return "", nil, err
		}
		o, ok := l.objects[id]
		if !ok {
			return "", nil, invalid("object %s does not exist", id)
		}
		if o.shared != wantShared {
			return "", nil, invalid("object %s ownership does not match %s", id, req.Function)
		}
		t.sharedIn = t.sharedIn || o.shared
		return id, o, nil
	}

	switch {
	case hasKind && base == program.FnCreateCounter:
		l.newObject(t, &object{shared: shared, bytes: CounterBytes})
		return nil, nil

	case hasKind && base == program.FnCheckDepth:
		id, o, err := input(shared)
		if err != nil {
			return nil, err
		}
		depth, value, threshold, err := args.u64x3(1)
		if err != nil {
			return nil, err
		}
		t.units += DepthUnits * depth
		if value < threshold {
			return l.abort(req.Function, program.AbortBelowThreshold), nil
		}
		next := *o
		next.value = value
		t.mutated[id] = next
		return nil, nil

	case hasKind && base == program.FnCheckedAdd:
		id, o, err := input(shared)
		if err != nil {
			return nil, err
		}
		a, b, err := args.u64x2(1)
		if err != nil {
			return nil, err
		}
		sum := new(uint256.Int).Add(uint256.NewInt(a), uint256.NewInt(b))
		if !sum.IsUint64() {
			return &execFailure{text: fmt.Sprintf(
				"ExecutionError { inner: ExecutionErrorInner { kind: ArithmeticError, source: Some(\"u64 addition overflow in %s\"), command: Some(0) } }",
				req.Function)}, nil
		}
		next := *o
		next.value = sum.Uint64()
		t.mutated[id] = next
		return nil, nil

	case hasKind && base == program.FnCheckedDiv:
		id, o, err := input(shared)
		if err != nil {
			return nil, err
		}
		a, b, err := args.u64x2(1)
		if err != nil {
			return nil, err
		}
		if b == 0 {
			return &execFailure{text: fmt.Sprintf("%s: division by zero at instruction 4 in command 0", req.Function)}, nil
		}
		next := *o
		next.value = new(uint256.Int).Div(uint256.NewInt(a), uint256.NewInt(b)).Uint64()
		t.mutated[id] = next
		return nil, nil

	case hasKind && base == program.FnVectorGet:
		if _, _, err := input(shared); err != nil {
			return nil, err
		}
		index, err := args.u64(1)
		if err != nil {
			return nil, err
		}
		if index >= program.VectorLen {
			// The VM reports a vector failure only as a sub status.
			return &execFailure{text: fmt.Sprintf("VMError in %s: vector operation failed with sub status 1 in command 0", req.Function)}, nil
		}
		return nil, nil

	case hasKind && base == program.FnCreateObject:
		abort, err := args.bool(0)
		if err != nil {
			return nil, err
		}
		if abort {
			return l.abort(req.Function, program.AbortRequested), nil
		}
		l.newObject(t, &object{shared: shared, bytes: CounterBytes})
		return nil, nil

	case hasKind && base == program.FnModifyObject:
		id, o, err := input(shared)
		if err != nil {
			return nil, err
		}
		abort, err := args.bool(1)
		if err != nil {
			return nil, err
		}
		t.units += WriteUnits
		if abort {
			return l.abort(req.Function, program.AbortRequested), nil
		}
		next := *o
		next.value++
		t.mutated[id] = next
		return nil, nil

	case hasKind && base == program.FnDestroyObject:
		id, _, err := input(shared)
		if err != nil {
			return nil, err
		}
		abort, err := args.bool(1)
		if err != nil {
			return nil, err
		}
		if abort {
			return l.abort(req.Function, program.AbortRequested), nil
		}
		t.deleted[id] = true
		return nil, nil

	case hasKind && base == program.FnDeposit:
		id, o, err := input(shared)
		if err != nil {
			return nil, err
		}
		amount, err := args.u64(1)
		if err != nil {
			return nil, err
		}
		abort, err := args.bool(2)
		if err != nil {
			return nil, err
		}
		if abort {
			return l.abort(req.Function, program.AbortRequested), nil
		}
		bal := new(uint256.Int).Add(uint256.NewInt(o.balance), uint256.NewInt(amount))
		if !bal.IsUint64() {
			return &execFailure{text: "ExecutionError { inner: ExecutionErrorInner { kind: ArithmeticError, source: Some(\"balance overflow\") } }"}, nil
		}
		next := *o
		next.balance = bal.Uint64()
		t.mutated[id] = next
		return nil, nil

	case !hasKind && base == program.FnAbortBeforeDestroy:
		if _, _, err := input(false); err != nil {
			return nil, err
		}
		return l.abort(req.Function, program.AbortBeforeDestroy), nil

	case !hasKind && base == program.FnDestroyThenAbort:
		id, _, err := input(false)
		if err != nil {
			return nil, err
		}
		t.deleted[id] = true
		return l.abort(req.Function, program.AbortDestroyThenAbort), nil

	case !hasKind && base == program.FnWriteThenAbort:
		if _, _, err := input(false); err != nil {
			return nil, err
		}
		writes, depth, err := args.u64x2(1)
		if err != nil {
			return nil, err
		}
		t.units += WriteUnits*writes + DepthUnits*depth
		return l.abort(req.Function, program.AbortRollback), nil

	case !hasKind && (base == program.FnCreatePayload || base == program.FnSharePayload):
		size, err := args.u64(0)
		if err != nil {
			return nil, err
		}
		t.units += WriteUnits * (size/1024 + 1)
		l.newObject(t, &object{shared: base == program.FnSharePayload, bytes: PayloadOverhead + size})
		return nil, nil

	case !hasKind && base == program.FnDestroyPayload:
		id, _, err := input(false)
		if err != nil {
			return nil, err
		}
		t.deleted[id] = true
		return nil, nil
	}
	return nil, invalid("function %s not found in module %s", req.Function, l.opts.Module)
}

type argReader struct {
	fn   string
	args []ledger.Arg
}

func (r argReader) at(i int) (ledger.Arg, error) {
	if i >= len(r.args) {
		return ledger.Arg{}, invalid("%s: missing argument %d", r.fn, i)
	}
	return r.args[i], nil
}

func (r argReader) object(i int) (string, error) {
	a, err := r.at(i)
	if err != nil {
		return "", err
	}
	if !a.IsObject() {
		return "", invalid("%s: argument %d is not an object", r.fn, i)
	}
	return a.Object, nil
}

func (r argReader) u64(i int) (uint64, error) {
	a, err := r.at(i)
	if err != nil {
		return 0, err
	}
	n, err := a.Uint64()
	if err != nil {
		return 0, invalid("%s: argument %d: %v", r.fn, i, err)
	}
	return n, nil
}

func (r argReader) bool(i int) (bool, error) {
	a, err := r.at(i)
	if err != nil {
		return false, err
	}
	b, err := a.Bool()
	if err != nil {
		return false, invalid("%s: argument %d: %v", r.fn, i, err)
	}
	return b, nil
}

func (r argReader) u64x2(i int) (uint64, uint64, error) {
	a, err := r.u64(i)
	if err != nil {
		return 0, 0, err
	}
	b, err := r.u64(i + 1)
	return a, b, err
}

func (r argReader) u64x3(i int) (uint64, uint64, uint64, error) {
	a, b, err := r.u64x2(i)
	if err != nil {
		return 0, 0, 0, err
	}
	c, err := r.u64(i + 2)
	return a, b, c, err
}
