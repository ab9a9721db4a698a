// Package bench wires the pool, the coordinator and the scenario drivers
// into one benchmark run.
package bench

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/signalnine/rollbench/internal/clock"
	"github.com/signalnine/rollbench/internal/ledger"
	"github.com/signalnine/rollbench/internal/pool"
	"github.com/signalnine/rollbench/internal/program"
	"github.com/signalnine/rollbench/internal/result"
	"github.com/signalnine/rollbench/internal/runner"
	"github.com/signalnine/rollbench/internal/scenario"
	"github.com/signalnine/rollbench/internal/throttle"
)

type Options struct {
	Client       ledger.Client
	Catalogue    *program.Catalogue
	Throttle     *throttle.Throttle
	Clock        clock.Clock
	Logger       *zap.Logger
	PoolSize     int
	Iterations   int
	Threshold    uint64
	Depths       map[result.Depth]uint64
	PayloadSizes []uint64
	Scenarios    []scenario.Scenario
}

// Bench owns the result store of a run.
type Bench struct {
	opts  Options
	store *result.Store
	coord *runner.Coordinator
	log   *zap.Logger
}

func New(opts Options) *Bench {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	store := result.NewStore()
	return &Bench{
		opts:  opts,
		store: store,
		log:   opts.Logger,
		coord: runner.New(runner.Options{
			Client:   opts.Client,
			Store:    store,
			Throttle: opts.Throttle,
			Clock:    opts.Clock,
			Logger:   opts.Logger,
		}),
	}
}

func (b *Bench) Store() *result.Store { return b.store }

// Setup creates the owned anchor and fills the shared pool. Either failing is
// fatal for the run.
func (b *Bench) Setup(ctx context.Context) (*scenario.Env, error) {
	cat := b.opts.Catalogue
	th := b.opts.Throttle

	if err := th.Before(ctx); err != nil {
		return nil, err
	}
	owned, err := pool.CreateOne(ctx, b.opts.Client, cat.CreateCounter(false))
	if err != nil {
		return nil, fmt.Errorf("creating owned object: %w", err)
	}
	b.log.Info("owned object created", zap.String("object", owned))
	if err := th.After(ctx, false); err != nil {
		return nil, err
	}

	p, err := pool.Initialize(ctx, b.opts.Client, th, b.log, func(int) *ledger.Request {
		return cat.CreateCounter(true)
	}, b.opts.PoolSize)
	if err != nil {
		return nil, fmt.Errorf("initializing pool: %w", err)
	}

	return &scenario.Env{
		Coord:        b.coord,
		Catalogue:    cat,
		Pool:         p,
		Owned:        owned,
		Iterations:   b.opts.Iterations,
		Depths:       b.opts.Depths,
		Threshold:    b.opts.Threshold,
		PayloadSizes: b.opts.PayloadSizes,
		Log:          b.log,
	}, nil
}

// Run sets up and drives every selected scenario in order. It stops at the
// first driver error; records gathered until then stay in Store.
func (b *Bench) Run(ctx context.Context) error {
	env, err := b.Setup(ctx)
	if err != nil {
		return err
	}
	for _, s := range b.opts.Scenarios {
		b.log.Info("scenario started", zap.String("scenario", s.Name))
		before := b.store.Len()
		if err := s.Run(ctx, env); err != nil {
			return fmt.Errorf("scenario %s: %w", s.Name, err)
		}
		b.log.Info("scenario finished", zap.String("scenario", s.Name), zap.Int("records", b.store.Len()-before))
	}
	return nil
}
