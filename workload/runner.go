package workload

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"matchbook/domain/orderbook"
	"matchbook/infra/codec"
	"matchbook/infra/metrics"
	"matchbook/service"
)

// Target is the order entry surface the runner drives.
type Target interface {
	Place(side orderbook.Side, price, shares int64) (orderbook.OrderRef, error)
	Cancel(id orderbook.OrderID) (bool, error)
	Reduce(id orderbook.OrderID, qty int64) error
	Execute(ctx context.Context, now int64) ([]orderbook.Transaction, error)
}

// Result counts what a run did.
type Result struct {
	Commands      int
	Rejected      int
	Canceled      int
	Trades        int
	Shares        int64
	PublishErrors int
	Elapsed       time.Duration
}

type Runner struct {
	gen    *Generator
	target Target
	// Observe, if set, receives the latency of every command.
	Observe func(op string, d time.Duration)
	log     *zap.Logger
}

func NewRunner(gen *Generator, target Target, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{gen: gen, target: target, log: log.Named("workload")}
}

// Run drains the generator into the target. Rejections and publish
// failures are counted; any other error stops the run.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	var res Result
	start := time.Now()

	r.log.Info("workload started", zap.Stringer("run_id", r.gen.ID), zap.Int("orders", r.gen.cfg.Orders))
	for {
		if err := ctx.Err(); err != nil {
			res.Elapsed = time.Since(start)
			return res, err
		}
		c, ok := r.gen.Next()
		if !ok {
			break
		}
		res.Commands++
		if err := r.step(ctx, c, &res); err != nil {
			res.Elapsed = time.Since(start)
			return res, fmt.Errorf("command %d (%s): %w", res.Commands, c.Kind, err)
		}
	}
	res.Elapsed = time.Since(start)
	r.log.Info("workload finished",
		zap.Stringer("run_id", r.gen.ID),
		zap.Int("commands", res.Commands),
		zap.Int("trades", res.Trades),
		zap.Duration("elapsed", res.Elapsed))
	return res, nil
}

func (r *Runner) step(ctx context.Context, c codec.Command, res *Result) error {
	t0 := time.Now()
	var op string
	var err error

	switch c.Kind {
	case codec.CommandAdd:
		op = metrics.OpAdd
		var ref orderbook.OrderRef
		if ref, err = r.target.Place(c.Side, c.Price, c.Shares); err == nil {
			r.gen.Track(ref.ID)
		}
	case codec.CommandCancel:
		op = metrics.OpCancel
		var ok bool
		if ok, err = r.target.Cancel(c.OrderID); ok {
			res.Canceled++
		}
	case codec.CommandReduce:
		op = metrics.OpReduce
		err = r.target.Reduce(c.OrderID, c.Shares)
	case codec.CommandExecute:
		op = metrics.OpExecute
		var txs []orderbook.Transaction
		txs, err = r.target.Execute(ctx, c.Now)
		res.Trades += len(txs)
		for _, tx := range txs {
			res.Shares += tx.Qty
		}
	default:
		return fmt.Errorf("%w: command kind %d", codec.ErrMalformed, c.Kind)
	}
	if r.Observe != nil {
		r.Observe(op, time.Since(t0))
	}

	switch {
	case err == nil:
		return nil
	case errors.Is(err, orderbook.ErrInvalidOrder), errors.Is(err, orderbook.ErrCapacityExhausted), errors.Is(err, service.ErrNotFound):
		res.Rejected++
		return nil
	case errors.Is(err, service.ErrPublish):
		res.PublishErrors++
		return nil
	default:
		return err
	}
}
