// Package confirmation renders and dispatches order confirmations across a
// merchant's channels.
package confirmation

import (
	"context"
	"errors"
	"fmt"

	"github.com/confirmly/confirmation-engine/internal/clock"
	"github.com/confirmly/confirmation-engine/internal/events"
	"github.com/confirmly/confirmation-engine/internal/logger"
	"github.com/confirmly/confirmation-engine/internal/merchants"
	"github.com/confirmly/confirmation-engine/internal/orders"
	"github.com/confirmly/confirmation-engine/internal/providers"
)

var (
	ErrOrderNotFound    = errors.New("order not found")
	ErrMerchantNotFound = errors.New("merchant not found")
)

// OrderStore is the slice of the orders store the orchestrator needs.
type OrderStore interface {
	Get(ctx context.Context, orderID string) (*orders.Order, error)
	AppendConfirmations(ctx context.Context, orderID string, confs []orders.Confirmation) error
}

type MerchantStore interface {
	Get(ctx context.Context, merchantID string) (*merchants.Merchant, error)
}

type ProviderResolver interface {
	For(m *merchants.Merchant, ch orders.Channel) (providers.Provider, error)
}

type EventLog interface {
	Append(ctx context.Context, merchantID, eventType string, payload map[string]interface{}) error
}

// Request asks for a confirmation dispatch over a set of channels.
type Request struct {
	OrderID    string
	MerchantID string
	Channels   []orders.Channel
	TemplateID string
	Variables  map[string]string
}

// ChannelResult is the per-channel outcome the caller sees.
type ChannelResult struct {
	Channel   orders.Channel `json:"channel"`
	Success   bool           `json:"success"`
	MessageID string         `json:"messageId,omitempty"`
	Error     string         `json:"error,omitempty"`
}

type Result struct {
	OrderID       string          `json:"orderId"`
	Confirmations []ChannelResult `json:"confirmations"`
}

type Service struct {
	orders    OrderStore
	merchants MerchantStore
	resolver  ProviderResolver
	eventLog  EventLog
	clock     clock.Clock
}

func NewService(os OrderStore, ms MerchantStore, r ProviderResolver, el EventLog, clk clock.Clock) *Service {
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &Service{orders: os, merchants: ms, resolver: r, eventLog: el, clock: clk}
}

// Send dispatches a confirmation over each requested channel independently:
// one channel's absence or failure never aborts the others. Every attempted
// channel leaves a Confirmation record — failed records included — and the
// order is persisted once, after the whole loop.
func (s *Service) Send(ctx context.Context, req Request) (*Result, error) {
	order, err := s.orders.Get(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	if order == nil || order.MerchantID != req.MerchantID {
		return nil, ErrOrderNotFound
	}

	merchant, err := s.merchants.Get(ctx, req.MerchantID)
	if err != nil {
		return nil, err
	}
	if merchant == nil {
		return nil, ErrMerchantNotFound
	}

	result := &Result{OrderID: req.OrderID}
	var records []orders.Confirmation

	for _, ch := range req.Channels {
		cr, rec := s.sendOne(ctx, order, merchant, ch, req)
		result.Confirmations = append(result.Confirmations, cr)
		records = append(records, rec)

		s.logEvent(ctx, req.MerchantID, map[string]interface{}{
			"orderId":   req.OrderID,
			"channel":   string(ch),
			"success":   cr.Success,
			"messageId": cr.MessageID,
		})
	}

	// single write for the whole channel loop
	if err := s.orders.AppendConfirmations(ctx, req.OrderID, records); err != nil {
		return nil, fmt.Errorf("persist confirmations: %w", err)
	}

	return result, nil
}

// Retry re-sends a previously failed confirmation on one channel. Callers
// are responsible for not retrying a channel that already succeeded.
func (s *Service) Retry(ctx context.Context, orderID, merchantID string, ch orders.Channel) (*Result, error) {
	return s.Send(ctx, Request{
		OrderID:    orderID,
		MerchantID: merchantID,
		Channels:   []orders.Channel{ch},
	})
}

func (s *Service) sendOne(ctx context.Context, order *orders.Order, merchant *merchants.Merchant, ch orders.Channel, req Request) (ChannelResult, orders.Confirmation) {
	provider, err := s.resolver.For(merchant, ch)
	if err != nil {
		return s.failed(ch, fmt.Sprintf("provider configuration invalid: %v", err))
	}
	if provider == nil {
		return s.failed(ch, fmt.Sprintf("provider not configured for %s", ch))
	}

	vars := mergeVariables(order, req.Variables)
	body := Render(defaultBody, vars)

	res := provider.Send(ctx, providers.SendParams{
		To:         order.Recipient(ch),
		Message:    body,
		TemplateID: req.TemplateID,
		Variables:  vars,
		Metadata: map[string]string{
			"orderId": order.OrderID,
			"channel": string(ch),
		},
	})
	if !res.Success {
		logger.Warn("confirmation send failed",
			"order_id", order.OrderID, "channel", ch, "provider", res.Provider, "err", res.Error)
		return s.failed(ch, res.Error)
	}

	now := s.clock.Now()
	return ChannelResult{Channel: ch, Success: true, MessageID: res.MessageID},
		orders.Confirmation{
			Channel:   ch,
			Status:    orders.DeliverySent,
			MessageID: res.MessageID,
			SentAt:    &now,
		}
}

func (s *Service) failed(ch orders.Channel, msg string) (ChannelResult, orders.Confirmation) {
	return ChannelResult{Channel: ch, Success: false, Error: msg},
		orders.Confirmation{Channel: ch, Status: orders.DeliveryFailed, Error: msg}
}

func (s *Service) logEvent(ctx context.Context, merchantID string, payload map[string]interface{}) {
	if s.eventLog == nil {
		return
	}
	if err := s.eventLog.Append(ctx, merchantID, events.TypeConfirmationSent, payload); err != nil {
		logger.Warn("event log append failed", "merchant_id", merchantID, "err", err)
	}
}
