// Package broker defines the execution collaborator the position manager
// submits entries and exits to.
package broker

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/intraday/internal/errs"
	"github.com/rustyeddy/intraday/internal/retry"
	"github.com/rustyeddy/intraday/market"
)

var (
	ErrRejected      = errors.New("order rejected")
	ErrOrderNotFound = errors.New("order not found")
)

// Order is an entry or exit request for one position.
type Order struct {
	PositionID string
	Symbol     string
	Direction  market.Direction // the position's direction, not the order side
	Size       float64
	Price      float64 // reference price; market orders may fill elsewhere
	StopLoss   float64
	TakeProfit float64
	Time       time.Time
	Reason     string // exit reason
}

// Fill confirms an order.
type Fill struct {
	OrderID    string    `json:"order_id"`
	PositionID string    `json:"position_id"`
	Symbol     string    `json:"symbol"`
	Size       float64   `json:"size"`
	Price      float64   `json:"price"`
	Time       time.Time `json:"time"`
}

// Executor routes orders. A returned error means the order did not execute.
type Executor interface {
	SubmitEntry(ctx context.Context, o Order) (Fill, error)
	SubmitExit(ctx context.Context, o Order) (Fill, error)
}

// Retrying bounds each submit with a timeout and retries transient
// failures. ErrRejected is never retried.
type Retrying struct {
	Next   Executor
	Policy retry.Policy
	Log    zerolog.Logger
}

func NewRetrying(next Executor, p retry.Policy, log zerolog.Logger) *Retrying {
	return &Retrying{Next: next, Policy: p, Log: log.With().Str("component", "broker").Logger()}
}

func (r *Retrying) SubmitEntry(ctx context.Context, o Order) (Fill, error) {
	return r.do(ctx, "broker.SubmitEntry", o, r.Next.SubmitEntry)
}

func (r *Retrying) SubmitExit(ctx context.Context, o Order) (Fill, error) {
	return r.do(ctx, "broker.SubmitExit", o, r.Next.SubmitExit)
}

func (r *Retrying) do(ctx context.Context, op string, o Order, fn func(context.Context, Order) (Fill, error)) (Fill, error) {
	log := r.Log.With().Str("symbol", o.Symbol).Logger()
	f, err := retry.Do(ctx, r.Policy, log, op, func(ctx context.Context) (Fill, error) {
		f, err := fn(ctx, o)
		if errors.Is(err, ErrRejected) {
			return f, retry.Permanent(err)
		}
		return f, err
	})
	if err != nil {
		return Fill{}, errs.E(errs.ExecutionFailed, op, err)
	}
	return f, nil
}
