package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/confirmly/confirmation-engine/internal/awsx"
	"github.com/confirmly/confirmation-engine/internal/config"
	"github.com/confirmly/confirmation-engine/internal/events"
	"github.com/confirmly/confirmation-engine/internal/handlers"
	"github.com/confirmly/confirmation-engine/internal/logger"
	"github.com/confirmly/confirmation-engine/internal/merchants"
	"github.com/confirmly/confirmation-engine/internal/orders"
	"github.com/confirmly/confirmation-engine/internal/policy"
	"github.com/confirmly/confirmation-engine/internal/queue"
	"github.com/confirmly/confirmation-engine/internal/schedule"
	"github.com/confirmly/confirmation-engine/internal/webhooks"
)

func setupRouter(cfg *config.Config, clients *awsx.Clients) *gin.Engine {
	orderStore := orders.NewStore(clients.DynamoDB, cfg.OrdersTable)
	merchantStore := merchants.NewStore(clients.DynamoDB, cfg.MerchantsTable)
	policyStore := policy.NewStore(clients.DynamoDB, cfg.PoliciesTable)
	scheduleStore := schedule.NewStore(clients.DynamoDB, cfg.ScheduleTable)
	eventLog := events.NewLog(clients.DynamoDB, cfg.EventsTable)
	metrics := awsx.NewMetrics(clients.CloudWatch, "")

	confirmQ := queue.New(clients.SQS, cfg.ConfirmationQueueURL)
	ingestor := webhooks.NewIngestor(orderStore, eventLog, metrics, nil)

	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	handlers.NewOrdersHandler(orderStore, merchantStore, policyStore, scheduleStore, confirmQ, nil).Register(r)
	handlers.NewPoliciesHandler(policyStore).Register(r)
	handlers.NewWebhooksHandler(ingestor, eventLog, cfg.ChatVerifyToken).Register(r)

	return r
}

func main() {
	if os.Getenv("RUN_LOCAL") == "true" {
		logger.InitDevelopment()
	} else {
		logger.Init()
		gin.SetMode(gin.ReleaseMode)
	}

	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clients, err := awsx.NewClients(ctx)
	if err != nil {
		logger.Error("init aws clients failed", "err", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: setupRouter(cfg, clients),
	}

	go func() {
		logger.Info("api listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "err", err)
	}
	logger.Info("api stopped")
}
