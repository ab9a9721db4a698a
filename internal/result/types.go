package result

import (
	"sync"
	"time"

	"github.com/signalnine/rollbench/internal/classify"
	"github.com/signalnine/rollbench/internal/ledger"
)

// ResourceKind is the ownership of the object a submission operated on.
type ResourceKind string

const (
	Owned  ResourceKind = "owned"
	Shared ResourceKind = "shared"
	None   ResourceKind = "none"
)

// Depth labels a call depth bucket. NA is a literal label, not a missing one.
type Depth string

const (
	Early   Depth = "early"
	Shallow Depth = "shallow"
	Medium  Depth = "medium"
	Deep    Depth = "deep"
	NA      Depth = "na"
)

// Outcome is the normalized record of one submission.
type Outcome struct {
	Category        string        `json:"category"`
	Resource        ResourceKind  `json:"resource_kind"`
	Depth           Depth         `json:"depth"`
	Pattern         string        `json:"pattern"`
	Iteration       int           `json:"iteration"`
	ExpectedFailure bool          `json:"expected_failure"`
	Failed          bool          `json:"failed"`
	AbortCode       *uint64       `json:"abort_code,omitempty"`
	ComputationCost uint64        `json:"computation_cost"`
	StorageCost     uint64        `json:"storage_cost"`
	StorageRebate   uint64        `json:"storage_rebate"`
	NetCost         int64         `json:"net_cost"`
	LatencyMs       int64         `json:"latency_ms"`
	ErrorKind       classify.Kind `json:"error_kind,omitempty"`
	ErrorMessage    string        `json:"error_message,omitempty"`
	Timestamp       time.Time     `json:"timestamp"`
	TxDigest        string        `json:"tx_digest,omitempty"`
}

// SetCosts copies a gas summary and derives NetCost from it.
func (o *Outcome) SetCosts(g ledger.GasSummary) {
	o.ComputationCost = g.ComputationCost
	o.StorageCost = g.StorageCost
	o.StorageRebate = g.StorageRebate
	o.NetCost = g.Net()
}

// SetFailure marks the outcome failed with a classification.
func (o *Outcome) SetFailure(message string, c classify.Result) {
	o.Failed = true
	o.ErrorMessage = message
	o.ErrorKind = c.Kind
	o.AbortCode = nil
	if c.Code != nil {
		code := *c.Code
		o.AbortCode = &code
	}
}

// Mismatch reports whether the outcome diverged from what the scenario
// intended.
func (o Outcome) Mismatch() bool {
	return o.ExpectedFailure != o.Failed
}

// Store is the append-only record sequence of a run.
type Store struct {
	mu      sync.Mutex
	records []Outcome
}

func NewStore() *Store {
	return &Store{}
}

func (s *Store) Append(o Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, o)
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Snapshot returns a copy of the records in append order.
func (s *Store) Snapshot() []Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Outcome, len(s.records))
	copy(out, s.records)
	return out
}
