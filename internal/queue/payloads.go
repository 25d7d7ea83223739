// Package queue is the SQS-backed job substrate. Three lanes carry the
// engine's work: confirmation dispatch, channel retries, and automation
// actions. Periodic sweeps run in-process on a cron and feed the
// automation lane.
package queue

import "github.com/confirmly/confirmation-engine/internal/orders"

// Lane names double as queue identifiers in logs and metrics.
const (
	LaneConfirmation = "confirmation"
	LaneRetry        = "retry"
	LaneAutomation   = "automation"
)

// ConfirmationJob asks for a confirmation dispatch over the given channels.
type ConfirmationJob struct {
	OrderID    string            `json:"order_id"`
	MerchantID string            `json:"merchant_id"`
	Channels   []orders.Channel  `json:"channels"`
	TemplateID string            `json:"template_id,omitempty"`
	Variables  map[string]string `json:"variables,omitempty"`
}

// RetryJob re-attempts one failed channel. Attempt counts the try this job
// represents, starting at 1.
type RetryJob struct {
	OrderID     string         `json:"order_id"`
	MerchantID  string         `json:"merchant_id"`
	Channel     orders.Channel `json:"channel"`
	Attempt     int            `json:"attempt"`
	MaxAttempts int            `json:"max_attempts"`
}

// AutomationJob carries one automation action (auto_confirm, auto_cancel,
// re_confirm) for one order.
type AutomationJob struct {
	OrderID    string `json:"order_id"`
	MerchantID string `json:"merchant_id"`
	Type       string `json:"type"`
}

// Sweep kinds name the periodic passes for cron registration and logging.
const (
	SweepOrderSync      = "order-sync"
	SweepAutoCancel     = "auto-cancel-check"
	SweepReConfirm      = "re-confirm-check"
	SweepDispatchDueJob = "dispatch-due-jobs"
)
