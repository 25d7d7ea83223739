package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/confirmly/confirmation-engine/internal/automation"
	"github.com/confirmly/confirmation-engine/internal/awsx"
	"github.com/confirmly/confirmation-engine/internal/config"
	"github.com/confirmly/confirmation-engine/internal/confirmation"
	"github.com/confirmly/confirmation-engine/internal/events"
	"github.com/confirmly/confirmation-engine/internal/logger"
	"github.com/confirmly/confirmation-engine/internal/merchants"
	"github.com/confirmly/confirmation-engine/internal/orders"
	"github.com/confirmly/confirmation-engine/internal/policy"
	"github.com/confirmly/confirmation-engine/internal/providers"
	"github.com/confirmly/confirmation-engine/internal/queue"
	"github.com/confirmly/confirmation-engine/internal/schedule"
)

func main() {
	if os.Getenv("RUN_LOCAL") == "true" {
		logger.InitDevelopment()
	} else {
		logger.Init()
	}

	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clients, err := awsx.NewClients(ctx)
	if err != nil {
		logger.Error("init aws clients failed", "err", err)
		os.Exit(1)
	}

	orderStore := orders.NewStore(clients.DynamoDB, cfg.OrdersTable)
	merchantStore := merchants.NewStore(clients.DynamoDB, cfg.MerchantsTable)
	policyStore := policy.NewStore(clients.DynamoDB, cfg.PoliciesTable)
	scheduleStore := schedule.NewStore(clients.DynamoDB, cfg.ScheduleTable)
	eventLog := events.NewLog(clients.DynamoDB, cfg.EventsTable)
	metrics := awsx.NewMetrics(clients.CloudWatch, "")

	resolver := providers.NewResolver(nil, clients.SES)
	confirmer := confirmation.NewService(orderStore, merchantStore, resolver, eventLog, nil)
	engine := automation.NewEngine(orderStore, merchantStore, policyStore, confirmer, eventLog, nil)

	retryQ := queue.New(clients.SQS, cfg.RetryQueueURL)
	automationQ := queue.New(clients.SQS, cfg.AutomationQueueURL)

	processor := NewProcessor(confirmer, engine, retryQ, eventLog, metrics)

	lanes := []*queue.Lane{
		{
			Name:     queue.LaneConfirmation,
			Client:   clients.SQS,
			QueueURL: cfg.ConfirmationQueueURL,
			Workers:  cfg.ConfirmationWorkers,
			Handler:  processor.HandleConfirmation,
			Metrics:  metrics,
		},
		{
			Name:     queue.LaneRetry,
			Client:   clients.SQS,
			QueueURL: cfg.RetryQueueURL,
			Workers:  cfg.RetryWorkers,
			Handler:  processor.HandleRetry,
			Metrics:  metrics,
		},
		{
			Name:     queue.LaneAutomation,
			Client:   clients.SQS,
			QueueURL: cfg.AutomationQueueURL,
			Workers:  cfg.AutomationWorkers,
			Handler:  processor.HandleAutomation,
			Metrics:  metrics,
		},
	}

	sweeper := schedule.NewSweeper(scheduleStore, merchantStore, orderStore, automationQ, nil)
	if err := sweeper.RegisterAll(); err != nil {
		logger.Error("register sweeps failed", "err", err)
		os.Exit(1)
	}
	sweeper.Start()

	logger.Info("worker starting", "lanes", len(lanes))

	var wg sync.WaitGroup
	for _, lane := range lanes {
		lane := lane
		wg.Add(1)
		go func() {
			defer wg.Done()
			lane.Run(ctx)
		}()
	}

	<-ctx.Done()
	logger.Info("shutdown signal received")
	sweeper.Stop()
	wg.Wait()
	logger.Info("worker stopped")
}
