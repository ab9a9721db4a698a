// Package ledger defines the contract of the remote ledger client and its
// JSON-RPC implementation.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/bits"
	"strconv"
)

// Client submits one transaction and returns its effects. Implementations own
// retries, transport and signing. A failed execution is reported through
// Effects.Status; a rejected submission is reported as an error.
type Client interface {
	Submit(ctx context.Context, req *Request) (*Effects, error)
}

type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// GasSummary is the cost breakdown of an executed transaction, in MIST.
type GasSummary struct {
	ComputationCost uint64 `json:"computation_cost"`
	StorageCost     uint64 `json:"storage_cost"`
	StorageRebate   uint64 `json:"storage_rebate"`
}

// Net is computation plus storage minus rebate. It is negative when the
// rebate outweighs the charges, and saturates at the int64 bounds.
func (g GasSummary) Net() int64 {
	charged, carry := bits.Add64(g.ComputationCost, g.StorageCost, 0)
	if carry != 0 {
		charged = math.MaxUint64
	}
	if charged >= g.StorageRebate {
		return clampInt64(charged - g.StorageRebate)
	}
	return -clampInt64(g.StorageRebate - charged)
}

func clampInt64(v uint64) int64 {
	if v > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(v)
}

type Object struct {
	ID     string
	Shared bool
}

type Effects struct {
	Digest  string
	Status  Status
	Error   string
	Gas     GasSummary
	Created []Object
}

// Failed reports whether the effects describe anything but a success.
func (e *Effects) Failed() bool {
	return e == nil || e.Status != StatusSuccess
}

// Request is a call into one entry point of the program under test.
type Request struct {
	Function      string
	TypeArguments []string
	Arguments     []Arg
	GasBudget     uint64
}

func (r *Request) String() string {
	return fmt.Sprintf("%s(%d args)", r.Function, len(r.Arguments))
}

// Arg is one entry point argument: an object reference or pure value text.
type Arg struct {
	Object string
	Pure   string
}

func ObjectArg(id string) Arg { return Arg{Object: id} }
func U64(v uint64) Arg        { return Arg{Pure: strconv.FormatUint(v, 10)} }
func Bool(v bool) Arg         { return Arg{Pure: strconv.FormatBool(v)} }

func (a Arg) IsObject() bool { return a.Object != "" }

func (a Arg) Uint64() (uint64, error) {
	if a.IsObject() {
		return 0, fmt.Errorf("argument is object %s, not u64", a.Object)
	}
	return strconv.ParseUint(a.Pure, 10, 64)
}

func (a Arg) Bool() (bool, error) {
	if a.IsObject() {
		return false, fmt.Errorf("argument is object %s, not bool", a.Object)
	}
	return strconv.ParseBool(a.Pure)
}

// MarshalJSON follows the node's JSON argument convention: object IDs and
// integers as strings (u64 does not survive float64 decoding), booleans bare.
func (a Arg) MarshalJSON() ([]byte, error) {
	if a.IsObject() {
		return json.Marshal(a.Object)
	}
	switch a.Pure {
	case "true", "false":
		return []byte(a.Pure), nil
	}
	return json.Marshal(a.Pure)
}
