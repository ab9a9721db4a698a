// Package classify maps the unstructured failure text returned by the ledger
// onto a fixed error taxonomy.
//
// Failure payloads differ by origin (application abort, VM trap, object
// versioning conflict, transport rejection) and share no schema, so the
// classifier is an ordered list of independent rules evaluated first-match-wins
// with UNKNOWN as the total fallback.
package classify

import (
	"regexp"
	"strconv"
)

// Kind is the classified cause of a failed submission.
type Kind string

const (
	// None is the kind of a submission that did not fail.
	None                       Kind = ""
	MoveAbort                  Kind = "MOVE_ABORT"
	VMPrimitiveRuntimeError    Kind = "VM_PRIMITIVE_RUNTIME_ERROR"
	InputObjectVersionConflict Kind = "INPUT_OBJECT_VERSION_CONFLICT"
	ArithmeticError            Kind = "ARITHMETIC_ERROR"
	DivisionByZero             Kind = "DIVISION_BY_ZERO"
	OutOfBounds                Kind = "OUT_OF_BOUNDS"
	InsufficientGas            Kind = "INSUFFICIENT_GAS"
	Unknown                    Kind = "UNKNOWN"
)

// Synthetic codes attached to VM-level failures that carry no abort code of
// their own. They follow the Move VM status codes for the same conditions;
// the VM reports division by zero under ARITHMETIC_ERROR.
const (
	CodeInsufficientGas uint64 = 4002
	CodeArithmetic      uint64 = 4017
	CodeDivisionByZero  uint64 = 4017
	CodeOutOfBounds     uint64 = 4020
)

// Rule names reported in Result.Rule.
const (
	RuleCanonicalAbort   = "canonical_abort"
	RuleAbortedWithCode  = "aborted_with_code"
	RulePrimitiveRuntime = "primitive_runtime"
	RuleVersionConflict  = "version_conflict"
	RuleArithmetic       = "arithmetic"
	RuleDivisionByZero   = "division_by_zero"
	RuleOutOfBounds      = "out_of_bounds"
	RuleInsufficientGas  = "insufficient_gas"
	RuleLooseAbort       = "loose_abort"
	RuleBoundsOverride   = "bounds_override"
)

// Result is the outcome of classifying one failure text.
type Result struct {
	Kind Kind
	Code *uint64
	// Rule names the rule that decided Kind; empty when nothing matched.
	Rule string
}

// HasCode reports whether the result carries an abort code.
func (r Result) HasCode() bool { return r.Code != nil }

// WithBoundsFallback forces OUT_OF_BOUNDS with the default code when r holds
// nothing more specific than an UNKNOWN or a loosely matched abort. Callers
// use it for scenarios whose construction guarantees an out-of-bounds failure.
func (r Result) WithBoundsFallback() Result {
	if r.Rule != "" && r.Rule != RuleLooseAbort {
		return r
	}
	return Result{Kind: OutOfBounds, Code: code(CodeOutOfBounds), Rule: RuleBoundsOverride}
}

// Rule is a single pure text matcher. A rule with Extract set takes its code
// from the first capture group; otherwise it reports Code unchanged.
type Rule struct {
	Name    string
	Kind    Kind
	Code    *uint64
	Extract bool
	Pattern *regexp.Regexp
}

// Match applies the rule to text.
func (r Rule) Match(text string) (Result, bool) {
	if !r.Extract {
		if !r.Pattern.MatchString(text) {
			return Result{}, false
		}
		res := Result{Kind: r.Kind, Rule: r.Name}
		if r.Code != nil {
			res.Code = code(*r.Code)
		}
		return res, true
	}
	for _, m := range r.Pattern.FindAllStringSubmatch(text, -1) {
		n, err := strconv.ParseUint(m[1], 10, 64)
		if err != nil {
			continue
		}
		return Result{Kind: r.Kind, Code: &n, Rule: r.Name}, true
	}
	return Result{}, false
}

// Rules is the evaluation order. Canonical abort shapes are authoritative;
// keyword families come next in their fixed priority; the loose abort shape
// only decides when no keyword family matched.
var Rules = []Rule{
	{
		Name:    RuleCanonicalAbort,
		Kind:    MoveAbort,
		Extract: true,
		Pattern: regexp.MustCompile(`(?s)MoveAbort\(\s*MoveLocation\s*\{.*\}\s*,\s*(\d+)\s*\)`),
	},
	{
		Name:    RuleAbortedWithCode,
		Kind:    MoveAbort,
		Extract: true,
		Pattern: regexp.MustCompile(`(?i)aborted with code\s+(\d+)\s+(?:in|inside|at)\s+\S`),
	},
	{
		Name:    RulePrimitiveRuntime,
		Kind:    VMPrimitiveRuntimeError,
		Pattern: regexp.MustCompile(`(?i)MovePrimitiveRuntimeError|primitive runtime error`),
	},
	{
		Name:    RuleVersionConflict,
		Kind:    InputObjectVersionConflict,
		Pattern: regexp.MustCompile(`(?i)not available for consumption|version conflict|ObjectVersionUnavailableForConsumption`),
	},
	{
		Name:    RuleArithmetic,
		Kind:    ArithmeticError,
		Code:    code(CodeArithmetic),
		Pattern: regexp.MustCompile(`(?i)arithmetic|overflow|underflow`),
	},
	{
		Name:    RuleDivisionByZero,
		Kind:    DivisionByZero,
		Code:    code(CodeDivisionByZero),
		Pattern: regexp.MustCompile(`(?i)divi(?:de|sion)[ _-]?by[ _-]?zero`),
	},
	{
		Name:    RuleOutOfBounds,
		Kind:    OutOfBounds,
		Code:    code(CodeOutOfBounds),
		Pattern: regexp.MustCompile(`(?i)out[ _-]of[ _-]bounds|index out of range`),
	},
	{
		Name:    RuleInsufficientGas,
		Kind:    InsufficientGas,
		Code:    code(CodeInsufficientGas),
		Pattern: regexp.MustCompile(`(?i)insufficient[ _-]?gas|out[ _-]of[ _-]gas`),
	},
	{
		Name:    RuleLooseAbort,
		Kind:    MoveAbort,
		Extract: true,
		Pattern: regexp.MustCompile(`(?is)abort.*?\b(\d+)\b`),
	},
}

// Classify runs Rules over text and returns the first match, or UNKNOWN.
func Classify(text string) Result {
	for _, r := range Rules {
		if res, ok := r.Match(text); ok {
			return res
		}
	}
	return Result{Kind: Unknown}
}

func code(n uint64) *uint64 { return &n }
