// Package automation applies time- and policy-driven actions to orders:
// confirming them when the merchant's policy allows, canceling the ones
// nobody answered, and nudging customers who went quiet.
package automation

import (
	"context"
	"errors"

	"github.com/confirmly/confirmation-engine/internal/clock"
	"github.com/confirmly/confirmation-engine/internal/confirmation"
	"github.com/confirmly/confirmation-engine/internal/events"
	"github.com/confirmly/confirmation-engine/internal/logger"
	"github.com/confirmly/confirmation-engine/internal/merchants"
	"github.com/confirmly/confirmation-engine/internal/orders"
	"github.com/confirmly/confirmation-engine/internal/policy"
)

var ErrOrderNotFound = errors.New("order not found")

type OrderStore interface {
	Get(ctx context.Context, orderID string) (*orders.Order, error)
	TransitionStatus(ctx context.Context, orderID string, from, to orders.Status) error
	AppendAutoAction(ctx context.Context, orderID string, action orders.AutoAction) error
}

type MerchantStore interface {
	Get(ctx context.Context, merchantID string) (*merchants.Merchant, error)
}

type PolicyStore interface {
	Get(ctx context.Context, merchantID string) (*policy.Policy, error)
}

// Confirmer dispatches confirmation messages; the engine uses it for
// re-confirmation nudges.
type Confirmer interface {
	Send(ctx context.Context, req confirmation.Request) (*confirmation.Result, error)
}

type EventLog interface {
	Append(ctx context.Context, merchantID, eventType string, payload map[string]interface{}) error
}

// Outcome reports what an automation run did. Skipped runs carry the reason;
// they are normal operation, not errors.
type Outcome struct {
	Applied bool   `json:"applied"`
	Action  string `json:"action,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

func skipped(reason string) Outcome { return Outcome{Reason: reason} }

type Engine struct {
	orders    OrderStore
	merchants MerchantStore
	policies  PolicyStore
	confirmer Confirmer
	eventLog  EventLog
	clock     clock.Clock
}

func NewEngine(os OrderStore, ms MerchantStore, ps PolicyStore, c Confirmer, el EventLog, clk clock.Clock) *Engine {
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &Engine{orders: os, merchants: ms, policies: ps, confirmer: c, eventLog: el, clock: clk}
}

// AutoConfirm moves a pending order to confirmed, but only after
// re-evaluating the merchant's policy against the order as it is now. The
// policy verdict at enqueue time is deliberately not trusted: risk scores
// and order fields may have changed while the job sat in the queue.
func (e *Engine) AutoConfirm(ctx context.Context, orderID, merchantID string) (Outcome, error) {
	order, err := e.load(ctx, orderID, merchantID)
	if err != nil {
		return Outcome{}, err
	}
	if order.Status != orders.StatusPending {
		return skipped("order is " + string(order.Status)), nil
	}

	pol, err := e.policies.Get(ctx, merchantID)
	if err != nil {
		return Outcome{}, err
	}
	if !policy.Evaluate(order, pol) {
		return skipped("policy does not allow auto-confirm"), nil
	}

	return e.apply(ctx, order, orders.StatusConfirmed, orders.ActionAutoConfirm)
}

// AutoCancel cancels a pending order whose confirmation window has lapsed.
// All three gates must hold: the order is still pending, it is older than
// the merchant's window, and the merchant opted into auto-cancel.
func (e *Engine) AutoCancel(ctx context.Context, orderID, merchantID string) (Outcome, error) {
	order, err := e.load(ctx, orderID, merchantID)
	if err != nil {
		return Outcome{}, err
	}
	if order.Status != orders.StatusPending {
		return skipped("order is " + string(order.Status)), nil
	}

	merchant, err := e.merchants.Get(ctx, merchantID)
	if err != nil {
		return Outcome{}, err
	}
	if merchant == nil {
		return skipped("merchant not found"), nil
	}
	if !merchant.Settings.AutoCancelUnconfirmed {
		return skipped("auto-cancel disabled"), nil
	}
	age := e.clock.Now().Sub(order.CreatedAt)
	if age <= merchant.Settings.ConfirmWindow() {
		return skipped("confirmation window still open"), nil
	}

	return e.apply(ctx, order, orders.StatusCanceled, orders.ActionAutoCancel)
}

// ReConfirm re-sends the confirmation to a customer who has not answered.
// Channels are recomputed from the merchant's current configuration at
// execution time, not frozen at enqueue time.
func (e *Engine) ReConfirm(ctx context.Context, orderID, merchantID string) (Outcome, error) {
	order, err := e.load(ctx, orderID, merchantID)
	if err != nil {
		return Outcome{}, err
	}
	if order.Status != orders.StatusPending {
		return skipped("order is " + string(order.Status)), nil
	}

	merchant, err := e.merchants.Get(ctx, merchantID)
	if err != nil {
		return Outcome{}, err
	}
	if merchant == nil {
		return skipped("merchant not found"), nil
	}
	if !merchant.Settings.ReConfirmEnabled {
		return skipped("re-confirm disabled"), nil
	}
	channels := merchant.ConfiguredChannels()
	if len(channels) == 0 {
		return skipped("no channels configured"), nil
	}

	if _, err := e.confirmer.Send(ctx, confirmation.Request{
		OrderID:    orderID,
		MerchantID: merchantID,
		Channels:   channels,
	}); err != nil {
		return Outcome{}, err
	}

	now := e.clock.Now().UTC()
	if err := e.orders.AppendAutoAction(ctx, orderID, orders.AutoAction{Type: orders.ActionReConfirm, At: now}); err != nil {
		return Outcome{}, err
	}
	e.logEvent(ctx, merchantID, orderID, orders.ActionReConfirm)
	return Outcome{Applied: true, Action: orders.ActionReConfirm}, nil
}

func (e *Engine) load(ctx context.Context, orderID, merchantID string) (*orders.Order, error) {
	order, err := e.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil || order.MerchantID != merchantID {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

// apply performs the guarded transition and records the audit trail. A lost
// race (someone moved the order first) is a skip, not a failure: automation
// actions must be safe to replay.
func (e *Engine) apply(ctx context.Context, order *orders.Order, to orders.Status, action string) (Outcome, error) {
	err := e.orders.TransitionStatus(ctx, order.OrderID, order.Status, to)
	if errors.Is(err, orders.ErrStatusConflict) {
		return skipped("lost status race"), nil
	}
	if err != nil {
		return Outcome{}, err
	}

	now := e.clock.Now().UTC()
	if err := e.orders.AppendAutoAction(ctx, order.OrderID, orders.AutoAction{Type: action, At: now}); err != nil {
		// the transition stuck; the missing audit record is recoverable
		logger.Warn("append auto action failed", "order_id", order.OrderID, "action", action, "err", err)
	}
	e.logEvent(ctx, order.MerchantID, order.OrderID, action)
	return Outcome{Applied: true, Action: action}, nil
}

func (e *Engine) logEvent(ctx context.Context, merchantID, orderID, action string) {
	if e.eventLog == nil {
		return
	}
	if err := e.eventLog.Append(ctx, merchantID, events.TypeAutomationAction, map[string]interface{}{
		"orderId": orderID,
		"action":  action,
	}); err != nil {
		logger.Warn("event log append failed", "merchant_id", merchantID, "err", err)
	}
}
