package main

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/confirmly/confirmation-engine/internal/automation"
	"github.com/confirmly/confirmation-engine/internal/awsx"
	"github.com/confirmly/confirmation-engine/internal/confirmation"
	"github.com/confirmly/confirmation-engine/internal/events"
	"github.com/confirmly/confirmation-engine/internal/logger"
	"github.com/confirmly/confirmation-engine/internal/orders"
	"github.com/confirmly/confirmation-engine/internal/queue"
)

const (
	maxRetryAttempts = 3
	retryBaseDelay   = 30 * time.Second
)

type Confirmer interface {
	Send(ctx context.Context, req confirmation.Request) (*confirmation.Result, error)
	Retry(ctx context.Context, orderID, merchantID string, ch orders.Channel) (*confirmation.Result, error)
}

type AutomationEngine interface {
	AutoConfirm(ctx context.Context, orderID, merchantID string) (automation.Outcome, error)
	AutoCancel(ctx context.Context, orderID, merchantID string) (automation.Outcome, error)
	ReConfirm(ctx context.Context, orderID, merchantID string) (automation.Outcome, error)
}

type RetryEnqueuer interface {
	EnqueueDelayed(ctx context.Context, payload interface{}, attributes map[string]string, delay time.Duration) error
}

type EventLog interface {
	Append(ctx context.Context, merchantID, eventType string, payload map[string]interface{}) error
}

// Processor holds the lane handlers. Returning an error from a handler
// leaves the message queued for redelivery; dropped messages (malformed
// payloads, vanished orders) return nil after being recorded.
type Processor struct {
	confirmer Confirmer
	engine    AutomationEngine
	retryQ    RetryEnqueuer
	eventLog  EventLog
	metrics   *awsx.Metrics
}

func NewProcessor(c Confirmer, e AutomationEngine, retryQ RetryEnqueuer, el EventLog, m *awsx.Metrics) *Processor {
	return &Processor{confirmer: c, engine: e, retryQ: retryQ, eventLog: el, metrics: m}
}

// HandleConfirmation dispatches a confirmation job. Failed channels spawn
// retry jobs; the dispatch itself succeeds as long as the attempt ran.
func (p *Processor) HandleConfirmation(ctx context.Context, body string) error {
	var job queue.ConfirmationJob
	if err := json.Unmarshal([]byte(body), &job); err != nil {
		p.dropPoison(ctx, queue.LaneConfirmation, body, err)
		return nil
	}

	res, err := p.confirmer.Send(ctx, confirmation.Request{
		OrderID:    job.OrderID,
		MerchantID: job.MerchantID,
		Channels:   job.Channels,
		TemplateID: job.TemplateID,
		Variables:  job.Variables,
	})
	if errors.Is(err, confirmation.ErrOrderNotFound) || errors.Is(err, confirmation.ErrMerchantNotFound) {
		logger.Warn("confirmation job for vanished entity", "order_id", job.OrderID, "err", err)
		return nil
	}
	if err != nil {
		return err
	}

	for _, cr := range res.Confirmations {
		if cr.Success {
			continue
		}
		retry := queue.RetryJob{
			OrderID:     job.OrderID,
			MerchantID:  job.MerchantID,
			Channel:     cr.Channel,
			Attempt:     1,
			MaxAttempts: maxRetryAttempts,
		}
		if err := p.retryQ.EnqueueDelayed(ctx, retry, map[string]string{"kind": queue.LaneRetry}, retryBackoff(1)); err != nil {
			logger.Error("enqueue retry failed", "order_id", job.OrderID, "channel", cr.Channel, "err", err)
		}
	}
	return nil
}

// HandleRetry re-attempts one channel. Exhausted attempts are recorded as
// terminal failures, never re-queued.
func (p *Processor) HandleRetry(ctx context.Context, body string) error {
	var job queue.RetryJob
	if err := json.Unmarshal([]byte(body), &job); err != nil {
		p.dropPoison(ctx, queue.LaneRetry, body, err)
		return nil
	}

	res, err := p.confirmer.Retry(ctx, job.OrderID, job.MerchantID, job.Channel)
	if errors.Is(err, confirmation.ErrOrderNotFound) || errors.Is(err, confirmation.ErrMerchantNotFound) {
		logger.Warn("retry job for vanished entity", "order_id", job.OrderID, "err", err)
		return nil
	}
	if err != nil {
		return err
	}

	if len(res.Confirmations) == 1 && res.Confirmations[0].Success {
		return nil
	}

	if job.Attempt >= job.MaxAttempts {
		logger.Error("retries exhausted", "order_id", job.OrderID, "channel", job.Channel, "attempts", job.Attempt)
		if p.eventLog != nil {
			if err := p.eventLog.Append(ctx, job.MerchantID, events.TypeJobFailed, map[string]interface{}{
				"orderId":  job.OrderID,
				"channel":  string(job.Channel),
				"attempts": job.Attempt,
			}); err != nil {
				logger.Warn("event log append failed", "order_id", job.OrderID, "err", err)
			}
		}
		p.count(ctx, "RetryExhausted", string(job.Channel))
		return nil
	}

	next := job
	next.Attempt++
	if err := p.retryQ.EnqueueDelayed(ctx, next, map[string]string{"kind": queue.LaneRetry}, retryBackoff(next.Attempt)); err != nil {
		return err
	}
	return nil
}

// HandleAutomation runs one automation action through the engine.
func (p *Processor) HandleAutomation(ctx context.Context, body string) error {
	var job queue.AutomationJob
	if err := json.Unmarshal([]byte(body), &job); err != nil {
		p.dropPoison(ctx, queue.LaneAutomation, body, err)
		return nil
	}

	var (
		out automation.Outcome
		err error
	)
	switch job.Type {
	case orders.ActionAutoConfirm:
		out, err = p.engine.AutoConfirm(ctx, job.OrderID, job.MerchantID)
	case orders.ActionAutoCancel:
		out, err = p.engine.AutoCancel(ctx, job.OrderID, job.MerchantID)
	case orders.ActionReConfirm:
		out, err = p.engine.ReConfirm(ctx, job.OrderID, job.MerchantID)
	default:
		p.dropPoison(ctx, queue.LaneAutomation, body, errors.New("unknown automation type "+job.Type))
		return nil
	}

	if errors.Is(err, automation.ErrOrderNotFound) {
		logger.Warn("automation job for vanished order", "order_id", job.OrderID, "type", job.Type)
		return nil
	}
	if err != nil {
		return err
	}

	if out.Applied {
		logger.Info("automation applied", "order_id", job.OrderID, "action", out.Action)
		p.count(ctx, "AutomationApplied", out.Action)
	} else {
		logger.Info("automation skipped", "order_id", job.OrderID, "type", job.Type, "reason", out.Reason)
	}
	return nil
}

// retryBackoff doubles per attempt: 30s, 1m, 2m.
func retryBackoff(attempt int) time.Duration {
	d := retryBaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	return d
}

// dropPoison records a message that can never succeed and lets it leave
// the queue. Requeueing it would spin forever.
func (p *Processor) dropPoison(ctx context.Context, lane, body string, err error) {
	logger.Error("dropping unprocessable message", "lane", lane, "err", err)
	if p.eventLog == nil {
		return
	}
	if lerr := p.eventLog.Append(ctx, "", events.TypeJobFailed, map[string]interface{}{
		"lane":  lane,
		"body":  body,
		"error": err.Error(),
	}); lerr != nil {
		logger.Warn("event log append failed", "lane", lane, "err", lerr)
	}
}

func (p *Processor) count(ctx context.Context, metric, dim string) {
	if p.metrics == nil {
		return
	}
	p.metrics.Count(ctx, metric, 1, map[string]string{"Kind": dim})
}
