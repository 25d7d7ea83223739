// Package providers hides vendor specifics behind a uniform send/status
// contract. A provider failure is data in the SendResult, never a panic or
// an error crossing the dispatch boundary.
package providers

import (
	"context"
	"errors"
	"time"

	"github.com/confirmly/confirmation-engine/internal/orders"
)

// ErrInvalidConfig is returned by constructors when credentials are
// incomplete. Providers validate their own config shape and fail fast.
var ErrInvalidConfig = errors.New("invalid provider configuration")

// SendParams carries one outbound message.
type SendParams struct {
	To         string
	Message    string
	TemplateID string
	Variables  map[string]string
	Metadata   map[string]string
}

// SendResult reports the outcome of one send attempt.
type SendResult struct {
	Success   bool
	MessageID string
	Error     string
	Provider  string
}

// MessageStatus is the vendor's view of a previously sent message.
type MessageStatus struct {
	MessageID string
	Status    orders.DeliveryStatus
	Timestamp *time.Time
	Error     string
}

// Provider is the only interface the engine requires of a messaging
// integration.
type Provider interface {
	Name() string
	Send(ctx context.Context, params SendParams) SendResult
	GetStatus(ctx context.Context, messageID string) (MessageStatus, error)
}

func failure(provider, msg string) SendResult {
	return SendResult{Success: false, Error: msg, Provider: provider}
}
