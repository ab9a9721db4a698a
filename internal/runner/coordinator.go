// Package runner executes benchmark submissions one at a time and turns each
// into an outcome record.
package runner

import (
	"context"

	"go.uber.org/zap"

	"github.com/signalnine/rollbench/internal/classify"
	"github.com/signalnine/rollbench/internal/clock"
	"github.com/signalnine/rollbench/internal/ledger"
	"github.com/signalnine/rollbench/internal/result"
	"github.com/signalnine/rollbench/internal/throttle"
)

// Labels describe a submission for its outcome record.
type Labels struct {
	Category      string
	Resource      result.ResourceKind
	Depth         result.Depth
	Pattern       string
	Iteration     int
	ExpectFailure bool
	// BoundsFallback forces OUT_OF_BOUNDS when classification finds
	// nothing more specific.
	BoundsFallback bool
	// Object is the handle the submission operates on, for logging only.
	Object string
}

type Options struct {
	Client   ledger.Client
	Store    *result.Store
	Throttle *throttle.Throttle
	Clock    clock.Clock
	Logger   *zap.Logger
}

// Coordinator runs submissions strictly in sequence. It is not safe for
// concurrent use.
type Coordinator struct {
	client   ledger.Client
	store    *result.Store
	throttle *throttle.Throttle
	clock    clock.Clock
	log      *zap.Logger
}

func New(opts Options) *Coordinator {
	c := &Coordinator{
		client:   opts.Client,
		store:    opts.Store,
		throttle: opts.Throttle,
		clock:    opts.Clock,
		log:      opts.Logger,
	}
	if c.store == nil {
		c.store = result.NewStore()
	}
	if c.clock == nil {
		c.clock = clock.Real{}
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	return c
}

func (c *Coordinator) Store() *result.Store { return c.store }

// Submission is what one call produced.
type Submission struct {
	Outcome result.Outcome
	// Effects is nil when the client raised instead of returning effects.
	Effects *ledger.Effects
}

// Submit invokes the client exactly once with req and records the outcome.
// Remote failures never surface as errors: they are classified into the
// record. The only errors are ctx cancellations while waiting on the
// throttle. A cancellation before the call means nothing was submitted and
// the returned Submission is nil; one during the post-submission delay comes
// back alongside the recorded Submission.
func (c *Coordinator) Submit(ctx context.Context, req *ledger.Request, l Labels) (*Submission, error) {
	if err := c.throttle.Before(ctx); err != nil {
		return nil, err
	}

	start := c.clock.Now()
	// An in-flight submission is allowed to finish so its outcome is known.
	eff, err := c.client.Submit(context.WithoutCancel(ctx), req)
	latency := c.clock.Since(start)

	o := result.Outcome{
		Category:        l.Category,
		Resource:        l.Resource,
		Depth:           l.Depth,
		Pattern:         l.Pattern,
		Iteration:       l.Iteration,
		ExpectedFailure: l.ExpectFailure,
		LatencyMs:       latency.Milliseconds(),
		Timestamp:       start.UTC(),
	}
	switch {
	case err != nil:
		gas, _ := ledger.RecoverGas(err)
		o.SetCosts(gas)
		o.SetFailure(err.Error(), c.classify(err.Error(), l))
	case eff == nil:
		o.SetFailure("ledger client returned no effects", c.classify("", l))
	case eff.Failed():
		o.SetCosts(eff.Gas)
		o.TxDigest = eff.Digest
		o.SetFailure(eff.Error, c.classify(eff.Error, l))
	default:
		o.SetCosts(eff.Gas)
		o.TxDigest = eff.Digest
	}
	c.store.Append(o)
	c.logOutcome(o, l.Object)

	sub := &Submission{Outcome: o, Effects: eff}
	if err := c.throttle.After(ctx, l.Resource == result.Shared); err != nil {
		return sub, err
	}
	return sub, nil
}

func (c *Coordinator) classify(text string, l Labels) classify.Result {
	res := classify.Classify(text)
	if l.BoundsFallback {
		res = res.WithBoundsFallback()
	}
	return res
}

func (c *Coordinator) logOutcome(o result.Outcome, object string) {
	fields := []zap.Field{
		zap.String("category", o.Category),
		zap.String("pattern", o.Pattern),
		zap.String("resource", string(o.Resource)),
		zap.String("object", object),
		zap.String("depth", string(o.Depth)),
		zap.Int("iteration", o.Iteration),
		zap.Bool("expected_failure", o.ExpectedFailure),
		zap.Bool("failed", o.Failed),
		zap.Int64("net_cost", o.NetCost),
		zap.Int64("latency_ms", o.LatencyMs),
	}
	if o.Failed {
		fields = append(fields, zap.String("error_kind", string(o.ErrorKind)))
		if o.AbortCode != nil {
			fields = append(fields, zap.Uint64("abort_code", *o.AbortCode))
		}
	}
	if o.TxDigest != "" {
		fields = append(fields, zap.String("digest", o.TxDigest))
	}
	if o.Mismatch() {
		c.log.Warn("unexpected outcome", fields...)
		return
	}
	c.log.Info("submission", fields...)
}
