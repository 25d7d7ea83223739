package queue

import (
	"context"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/confirmly/confirmation-engine/internal/awsx"
	"github.com/confirmly/confirmation-engine/internal/logger"
)

// Handler processes one message body. A returned error leaves the message
// on the queue; SQS redelivers it after the visibility timeout.
type Handler func(ctx context.Context, body string) error

// Lane is a bounded consumer pool over one queue. Workers long-poll
// independently; concurrency is exactly Workers.
type Lane struct {
	Name     string
	Client   awsx.SQSAPI
	QueueURL string
	Workers  int
	Handler  Handler
	Metrics  *awsx.Metrics
}

// Run blocks until ctx is canceled and every worker has drained.
func (l *Lane) Run(ctx context.Context) {
	workers := l.Workers
	if workers <= 0 {
		workers = 1
	}
	logger.Info("lane starting", "lane", l.Name, "workers", workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.poll(ctx)
		}()
	}
	wg.Wait()
	logger.Info("lane stopped", "lane", l.Name)
}

func (l *Lane) poll(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		out, err := l.Client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            &l.QueueURL,
			MaxNumberOfMessages: 1,
			WaitTimeSeconds:     20,
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("receive failed", "lane", l.Name, "err", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		for _, msg := range out.Messages {
			if msg.Body == nil {
				continue
			}
			if err := l.Handler(ctx, *msg.Body); err != nil {
				logger.Warn("handler failed, message stays queued", "lane", l.Name, "err", err)
				l.count(ctx, "JobFailed")
				continue
			}
			l.count(ctx, "JobProcessed")
			if msg.ReceiptHandle == nil {
				continue
			}
			if _, err := l.Client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
				QueueUrl:      &l.QueueURL,
				ReceiptHandle: msg.ReceiptHandle,
			}); err != nil {
				logger.Warn("delete failed", "lane", l.Name, "err", err)
			}
		}
	}
}

func (l *Lane) count(ctx context.Context, metric string) {
	if l.Metrics == nil {
		return
	}
	l.Metrics.Count(ctx, metric, 1, map[string]string{"Lane": l.Name})
}
