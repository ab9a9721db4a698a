// Package pool holds the fixed set of shared objects that shared-kind
// submissions rotate through.
package pool

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/signalnine/rollbench/internal/ledger"
	"github.com/signalnine/rollbench/internal/throttle"
)

// ErrEmpty is returned by Select on a pool with no handles.
var ErrEmpty = errors.New("pool is empty")

// Pool is an ordered list of object handles. It is filled once before any
// lookup and never shrinks, so reads need no locking.
type Pool struct {
	handles []string
}

func New(handles []string) *Pool {
	return &Pool{handles: append([]string(nil), handles...)}
}

func (p *Pool) Len() int { return len(p.handles) }

// Handles returns the handles in creation order.
func (p *Pool) Handles() []string {
	return append([]string(nil), p.handles...)
}

// Select returns handle i mod Len.
func (p *Pool) Select(i int) (string, error) {
	if len(p.handles) == 0 {
		return "", ErrEmpty
	}
	if i < 0 {
		return "", fmt.Errorf("negative pool index %d", i)
	}
	return p.handles[i%len(p.handles)], nil
}

// CreateOne submits a construction request and returns the handle of the
// object it created. Any outcome without a handle is an error.
func CreateOne(ctx context.Context, client ledger.Client, req *ledger.Request) (string, error) {
	eff, err := client.Submit(ctx, req)
	if err != nil {
		return "", fmt.Errorf("%s: %w", req.Function, err)
	}
	if eff == nil {
		return "", fmt.Errorf("%s: ledger client returned no effects", req.Function)
	}
	if eff.Failed() {
		return "", fmt.Errorf("%s failed: %s", req.Function, eff.Error)
	}
	if len(eff.Created) == 0 {
		return "", fmt.Errorf("%s: effects %s list no created object", req.Function, eff.Digest)
	}
	return eff.Created[0].ID, nil
}

// Initialize creates count objects one at a time, in order, spacing the
// submissions with th. Any creation that yields no handle aborts the whole
// initialization.
func Initialize(ctx context.Context, client ledger.Client, th *throttle.Throttle, log *zap.Logger, build func(i int) *ledger.Request, count int) (*Pool, error) {
	if count < 1 {
		return nil, fmt.Errorf("pool size must be at least 1, got %d", count)
	}
	if log == nil {
		log = zap.NewNop()
	}
	handles := make([]string, 0, count)
	for i := 0; i < count; i++ {
		if err := th.Before(ctx); err != nil {
			return nil, err
		}
		id, err := CreateOne(ctx, client, build(i))
		if err != nil {
			return nil, fmt.Errorf("creating pool object %d/%d: %w", i+1, count, err)
		}
		handles = append(handles, id)
		log.Info("pool object created", zap.Int("index", i), zap.String("object", id))
		if err := th.After(ctx, true); err != nil {
			return nil, err
		}
	}
	return New(handles), nil
}
