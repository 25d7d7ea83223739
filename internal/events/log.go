// Package events is the append-only audit trail. Every confirmation attempt,
// automation decision, and webhook failure leaves a record here.
package events

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/google/uuid"

	"github.com/confirmly/confirmation-engine/internal/awsx"
)

// Event types.
const (
	TypeConfirmationSent = "confirmation_sent"
	TypeAutomationAction = "automation_action"
	TypeWebhookError     = "webhook_error"
	TypeJobFailed        = "job_failed_terminal"
)

type Record struct {
	EventID    string                 `dynamodbav:"event_id"` // PK
	MerchantID string                 `dynamodbav:"merchant_id"`
	Type       string                 `dynamodbav:"type"`
	Payload    map[string]interface{} `dynamodbav:"payload,omitempty"`
	CreatedAt  time.Time              `dynamodbav:"created_at"`
}

type Log struct {
	client    awsx.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

func NewLog(client awsx.DynamoDBAPI, tableName string) *Log {
	return &Log{client: client, tableName: tableName, nowFunc: time.Now}
}

func (l *Log) Append(ctx context.Context, merchantID, eventType string, payload map[string]interface{}) error {
	rec := Record{
		EventID:    uuid.NewString(),
		MerchantID: merchantID,
		Type:       eventType,
		Payload:    payload,
		CreatedAt:  l.nowFunc().UTC(),
	}
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := l.client.PutItem(ctx, &dyn.PutItemInput{
		TableName: &l.tableName,
		Item:      item,
	}); err != nil {
		return fmt.Errorf("put event: %w", err)
	}
	return nil
}
