package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/confirmly/confirmation-engine/internal/awsx"
)

// maxSQSDelay is the hard SQS ceiling on DelaySeconds. Longer waits go
// through the schedule store, not the queue.
const maxSQSDelay = 15 * time.Minute

// Queue wraps one SQS queue URL for publishing.
type Queue struct {
	client   awsx.SQSAPI
	queueURL string
}

func New(client awsx.SQSAPI, queueURL string) *Queue {
	return &Queue{client: client, queueURL: queueURL}
}

func (q *Queue) URL() string { return q.queueURL }

// Enqueue publishes a JSON-encoded job immediately.
func (q *Queue) Enqueue(ctx context.Context, payload interface{}, attributes map[string]string) error {
	return q.send(ctx, payload, attributes, 0)
}

// EnqueueDelayed publishes a job with an SQS delivery delay, clamped to the
// 15-minute SQS maximum.
func (q *Queue) EnqueueDelayed(ctx context.Context, payload interface{}, attributes map[string]string, delay time.Duration) error {
	return q.send(ctx, payload, attributes, delay)
}

func (q *Queue) send(ctx context.Context, payload interface{}, attributes map[string]string, delay time.Duration) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	bodyStr := string(body)

	input := &sqs.SendMessageInput{
		QueueUrl:    &q.queueURL,
		MessageBody: &bodyStr,
	}
	if delay > 0 {
		if delay > maxSQSDelay {
			delay = maxSQSDelay
		}
		input.DelaySeconds = int32(delay / time.Second)
	}
	if len(attributes) > 0 {
		msgAttrs := map[string]sqstypes.MessageAttributeValue{}
		for k, v := range attributes {
			v := v
			msgAttrs[k] = sqstypes.MessageAttributeValue{
				DataType:    awsString("String"),
				StringValue: &v,
			}
		}
		input.MessageAttributes = msgAttrs
	}

	if _, err := q.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

func awsString(s string) *string { return &s }
