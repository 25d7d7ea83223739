// Package schedule persists one-shot delayed jobs. SQS caps message delays
// at 15 minutes, so hour-scale timers (cancel after the confirmation
// window, nudge after 12 quiet hours) live here and a minute sweep moves
// due jobs onto the automation lane.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/confirmly/confirmation-engine/internal/awsx"
)

// ErrAlreadyDispatched indicates another sweeper claimed the job first.
var ErrAlreadyDispatched = errors.New("job already dispatched")

// Job is one pending timer. Timestamps are RFC3339 strings so DynamoDB
// filter expressions can compare them lexically.
type Job struct {
	JobKey       string `dynamodbav:"job_key"` // PK: <order_id>#<kind>
	OrderID      string `dynamodbav:"order_id"`
	MerchantID   string `dynamodbav:"merchant_id"`
	Kind         string `dynamodbav:"kind"`
	RunAt        string `dynamodbav:"run_at"`
	DispatchedAt string `dynamodbav:"dispatched_at,omitempty"`
	CreatedAt    string `dynamodbav:"created_at"`
}

// Key builds the dedupe key. One job per (order, kind), ever: scheduling
// the same pair twice is a no-op.
func Key(orderID, kind string) string {
	return orderID + "#" + kind
}

type Store struct {
	client    awsx.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

func NewStore(client awsx.DynamoDBAPI, tableName string) *Store {
	return &Store{client: client, tableName: tableName, nowFunc: time.Now}
}

// Schedule registers a one-shot job. A job with the same (order, kind) key
// already present makes this a silent no-op.
func (s *Store) Schedule(ctx context.Context, orderID, merchantID, kind string, runAt time.Time) error {
	job := Job{
		JobKey:     Key(orderID, kind),
		OrderID:    orderID,
		MerchantID: merchantID,
		Kind:       kind,
		RunAt:      runAt.UTC().Format(time.RFC3339),
		CreatedAt:  s.nowFunc().UTC().Format(time.RFC3339),
	}
	item, err := attributevalue.MarshalMap(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(job_key)"),
	})
	if err != nil {
		var cc *types.ConditionalCheckFailedException
		if errors.As(err, &cc) {
			return nil
		}
		return fmt.Errorf("put job: %w", err)
	}
	return nil
}

// ListDue returns undispatched jobs whose run time has passed.
func (s *Store) ListDue(ctx context.Context, now time.Time) ([]Job, error) {
	out, err := s.client.Scan(ctx, &dyn.ScanInput{
		TableName:        &s.tableName,
		FilterExpression: awsString("run_at <= :now AND attribute_not_exists(dispatched_at)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": &types.AttributeValueMemberS{Value: now.UTC().Format(time.RFC3339)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("scan due jobs: %w", err)
	}
	var jobs []Job
	for _, item := range out.Items {
		var j Job
		if err := attributevalue.UnmarshalMap(item, &j); err != nil {
			return nil, fmt.Errorf("unmarshal job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

// MarkDispatched claims a job for dispatch. Exactly one caller wins; the
// rest get ErrAlreadyDispatched.
func (s *Store) MarkDispatched(ctx context.Context, jobKey string) error {
	now := s.nowFunc().UTC().Format(time.RFC3339)
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"job_key": &types.AttributeValueMemberS{Value: jobKey},
		},
		UpdateExpression: awsString("SET dispatched_at = :now"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": &types.AttributeValueMemberS{Value: now},
		},
		ConditionExpression: awsString("attribute_exists(job_key) AND attribute_not_exists(dispatched_at)"),
	})
	if err != nil {
		var cc *types.ConditionalCheckFailedException
		if errors.As(err, &cc) {
			return ErrAlreadyDispatched
		}
		return fmt.Errorf("mark dispatched: %w", err)
	}
	return nil
}

func awsString(s string) *string { return &s }
