// Package webhooks normalizes vendor callbacks (delivery receipts, read
// receipts, bounces, customer replies) and applies them to orders.
package webhooks

import (
	"context"
	"errors"
	"time"

	"github.com/confirmly/confirmation-engine/internal/awsx"
	"github.com/confirmly/confirmation-engine/internal/clock"
	"github.com/confirmly/confirmation-engine/internal/events"
	"github.com/confirmly/confirmation-engine/internal/logger"
	"github.com/confirmly/confirmation-engine/internal/orders"
	"github.com/confirmly/confirmation-engine/internal/reply"
)

// Event kinds after vendor normalization.
const (
	KindDelivered = "delivered"
	KindRead      = "read"
	KindBounced   = "bounced"
	KindReplied   = "replied"
)

// InboundEvent is one normalized vendor callback. MessageID correlates to
// the outbound message when the vendor echoes it; SMS replies don't, so
// they carry the customer's Phone instead.
type InboundEvent struct {
	Channel    orders.Channel
	MessageID  string
	Phone      string
	Kind       string
	ReplyText  string
	OccurredAt time.Time
}

type OrderStore interface {
	FindByMessageID(ctx context.Context, messageID string) (*orders.Order, error)
	FindPendingByPhone(ctx context.Context, phone string) (*orders.Order, error)
	ReplaceConfirmation(ctx context.Context, orderID string, index int, c orders.Confirmation) error
	TransitionStatus(ctx context.Context, orderID string, from, to orders.Status) error
}

type EventLog interface {
	Append(ctx context.Context, merchantID, eventType string, payload map[string]interface{}) error
}

// Ingestor applies normalized events to order state. Unmatchable events
// (unknown message id, stale vendor retries) are dropped quietly: the
// vendor already got its success response and will not send anything
// better.
type Ingestor struct {
	orders   OrderStore
	eventLog EventLog
	metrics  *awsx.Metrics
	clock    clock.Clock
}

func NewIngestor(os OrderStore, el EventLog, metrics *awsx.Metrics, clk clock.Clock) *Ingestor {
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &Ingestor{orders: os, eventLog: el, metrics: metrics, clock: clk}
}

// Process applies one event. Errors are internal only; callers at the HTTP
// boundary answer the vendor with success regardless.
func (i *Ingestor) Process(ctx context.Context, ev InboundEvent) error {
	if ev.MessageID == "" && ev.Phone != "" && ev.Kind == KindReplied {
		return i.processPhoneReply(ctx, ev)
	}
	if ev.MessageID == "" {
		return nil
	}
	order, err := i.orders.FindByMessageID(ctx, ev.MessageID)
	if err != nil {
		return err
	}
	if order == nil {
		logger.Warn("webhook for unknown message", "message_id", ev.MessageID, "kind", ev.Kind)
		return nil
	}

	idx := confirmationIndex(order, ev.MessageID)
	if idx < 0 {
		logger.Warn("message indexed but confirmation missing", "order_id", order.OrderID, "message_id", ev.MessageID)
		return nil
	}

	conf := order.Confirmations[idx]
	at := ev.OccurredAt
	if at.IsZero() {
		at = i.clock.Now()
	}
	at = at.UTC()

	switch ev.Kind {
	case KindDelivered:
		conf.Status = orders.DeliveryDelivered
		conf.DeliveredAt = &at
	case KindRead:
		conf.Status = orders.DeliveryRead
		conf.ReadAt = &at
	case KindBounced:
		conf.Status = orders.DeliveryFailed
		conf.Error = "bounced"
	case KindReplied:
		conf.Status = orders.DeliveryReplied
		conf.Reply = ev.ReplyText
		conf.RepliedAt = &at
	default:
		return nil
	}

	if err := i.orders.ReplaceConfirmation(ctx, order.OrderID, idx, conf); err != nil {
		// a concurrent writer reshuffled the list; the vendor will not
		// retry, so record the miss and move on
		logger.Warn("confirmation update lost", "order_id", order.OrderID, "err", err)
	}

	i.count(ctx, ev)

	if ev.Kind == KindReplied {
		i.applyReply(ctx, order, ev.ReplyText)
	}
	return nil
}

// processPhoneReply handles replies that arrive without a message
// reference. The newest pending order for the number is assumed to be the
// one being answered; if the customer has none, the text is noise.
func (i *Ingestor) processPhoneReply(ctx context.Context, ev InboundEvent) error {
	order, err := i.orders.FindPendingByPhone(ctx, ev.Phone)
	if err != nil {
		return err
	}
	if order == nil {
		logger.Info("reply from phone with no pending order", "channel", ev.Channel)
		return nil
	}

	at := ev.OccurredAt
	if at.IsZero() {
		at = i.clock.Now()
	}
	at = at.UTC()

	if idx := latestChannelConfirmation(order, ev.Channel); idx >= 0 {
		conf := order.Confirmations[idx]
		conf.Status = orders.DeliveryReplied
		conf.Reply = ev.ReplyText
		conf.RepliedAt = &at
		if err := i.orders.ReplaceConfirmation(ctx, order.OrderID, idx, conf); err != nil {
			logger.Warn("confirmation update lost", "order_id", order.OrderID, "err", err)
		}
	}

	i.count(ctx, ev)
	i.applyReply(ctx, order, ev.ReplyText)
	return nil
}

// applyReply classifies the customer's text and resolves the order. Only
// pending orders move; anything else means the customer (or automation)
// already decided.
func (i *Ingestor) applyReply(ctx context.Context, order *orders.Order, text string) {
	if order.Status != orders.StatusPending {
		return
	}

	var target orders.Status
	switch reply.Classify(text) {
	case reply.Yes:
		target = orders.StatusConfirmed
	case reply.No:
		target = orders.StatusUnconfirmed
	default:
		return
	}

	err := i.orders.TransitionStatus(ctx, order.OrderID, orders.StatusPending, target)
	if errors.Is(err, orders.ErrStatusConflict) || errors.Is(err, orders.ErrInvalidStatusTransition) {
		logger.Info("reply arrived after order moved", "order_id", order.OrderID, "target", target)
		return
	}
	if err != nil {
		logger.Error("apply reply failed", "order_id", order.OrderID, "err", err)
		return
	}

	if i.eventLog != nil {
		if err := i.eventLog.Append(ctx, order.MerchantID, events.TypeAutomationAction, map[string]interface{}{
			"orderId": order.OrderID,
			"action":  "reply_" + string(target),
		}); err != nil {
			logger.Warn("event log append failed", "order_id", order.OrderID, "err", err)
		}
	}
}

func (i *Ingestor) count(ctx context.Context, ev InboundEvent) {
	if i.metrics == nil {
		return
	}
	i.metrics.Count(ctx, "WebhookEvent", 1, map[string]string{
		"Channel": string(ev.Channel),
		"Kind":    ev.Kind,
	})
}

func confirmationIndex(o *orders.Order, messageID string) int {
	for idx, c := range o.Confirmations {
		if c.MessageID == messageID {
			return idx
		}
	}
	return -1
}

func latestChannelConfirmation(o *orders.Order, ch orders.Channel) int {
	for idx := len(o.Confirmations) - 1; idx >= 0; idx-- {
		if o.Confirmations[idx].Channel == ch {
			return idx
		}
	}
	return -1
}
