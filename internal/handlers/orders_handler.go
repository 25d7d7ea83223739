// Package handlers wires the HTTP surface: order ingestion and actions,
// policy management, and vendor webhook ingress.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/confirmly/confirmation-engine/internal/clock"
	"github.com/confirmly/confirmation-engine/internal/logger"
	"github.com/confirmly/confirmation-engine/internal/merchants"
	"github.com/confirmly/confirmation-engine/internal/orders"
	"github.com/confirmly/confirmation-engine/internal/policy"
	"github.com/confirmly/confirmation-engine/internal/queue"
	"github.com/confirmly/confirmation-engine/internal/validation"
)

type OrderStore interface {
	Create(ctx context.Context, order *orders.Order) error
	Get(ctx context.Context, orderID string) (*orders.Order, error)
	TransitionStatus(ctx context.Context, orderID string, from, to orders.Status) error
}

type MerchantStore interface {
	Get(ctx context.Context, merchantID string) (*merchants.Merchant, error)
}

type PolicyReader interface {
	Get(ctx context.Context, merchantID string) (*policy.Policy, error)
}

// Scheduler registers one-shot timers for an order.
type Scheduler interface {
	Schedule(ctx context.Context, orderID, merchantID, kind string, runAt time.Time) error
}

type Enqueuer interface {
	Enqueue(ctx context.Context, payload interface{}, attributes map[string]string) error
}

// OrdersHandler serves order ingestion and manual actions. Confirmation
// dispatch is fire-and-forget: the request enqueues work and returns.
type OrdersHandler struct {
	orders    OrderStore
	merchants MerchantStore
	policies  PolicyReader
	jobs      Scheduler
	confirmQ  Enqueuer
	clock     clock.Clock
	validate  *validatorv10.Validate
}

func NewOrdersHandler(os OrderStore, ms MerchantStore, ps PolicyReader, jobs Scheduler, confirmQ Enqueuer, clk clock.Clock) *OrdersHandler {
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &OrdersHandler{
		orders:    os,
		merchants: ms,
		policies:  ps,
		jobs:      jobs,
		confirmQ:  confirmQ,
		clock:     clk,
		validate:  validation.New(),
	}
}

func (h *OrdersHandler) Register(r gin.IRouter) {
	r.POST("/v1/orders", h.createOrder)
	r.GET("/v1/orders/:id", h.getOrder)
	r.POST("/v1/orders/:id/confirm", h.confirmOrder)
	r.POST("/v1/orders/:id/cancel", h.cancelOrder)
	r.POST("/v1/orders/:id/fulfill", h.fulfillOrder)
	r.POST("/v1/orders/:id/send-confirmation", h.sendConfirmation)
}

func (h *OrdersHandler) createOrder(c *gin.Context) {
	ctx := c.Request.Context()

	var req validation.CreateOrderRequest
	if err := validation.BindAndValidate(c, &req, h.validate); err != nil {
		return
	}

	merchant, err := h.merchants.Get(ctx, req.MerchantID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "merchant_lookup_failed"})
		return
	}
	if merchant == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown_merchant"})
		return
	}

	order := &orders.Order{
		OrderID:         uuid.NewString(),
		MerchantID:      req.MerchantID,
		Platform:        req.Platform,
		PlatformOrderID: req.PlatformOrderID,
		Email:           req.Email,
		Phone:           req.Phone,
		Customer: orders.Customer{
			Name:    req.Customer.Name,
			Address: req.Customer.Address,
			City:    req.Customer.City,
			Pincode: req.Customer.Pincode,
		},
		Amount:      req.Amount,
		Currency:    strings.ToUpper(req.Currency),
		PaymentMode: req.PaymentMode,
		RiskScore:   req.RiskScore,
		Status:      orders.StatusPending,
	}

	if err := h.orders.Create(ctx, order); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "order_create_failed"})
		return
	}

	queued := h.queueInitialConfirmation(ctx, order, merchant, req.Variables)
	h.scheduleTimers(ctx, order, merchant)

	c.JSON(http.StatusCreated, gin.H{
		"orderId":            order.OrderID,
		"status":             order.Status,
		"confirmationQueued": queued,
	})
}

// queueInitialConfirmation applies the two gates (merchant payment-mode
// settings, then policy) and enqueues the first dispatch when both pass.
func (h *OrdersHandler) queueInitialConfirmation(ctx context.Context, order *orders.Order, merchant *merchants.Merchant, vars map[string]string) bool {
	if !merchant.Settings.ShouldConfirm(order.PaymentMode) {
		return false
	}
	pol, err := h.policies.Get(ctx, merchant.MerchantID)
	if err != nil {
		logger.Warn("policy lookup failed, defaulting to confirm", "merchant_id", merchant.MerchantID, "err", err)
	}
	if !policy.Evaluate(order, pol) {
		return false
	}
	channels := merchant.ConfiguredChannels()
	if len(channels) == 0 {
		return false
	}

	if err := h.confirmQ.Enqueue(ctx, queue.ConfirmationJob{
		OrderID:    order.OrderID,
		MerchantID: merchant.MerchantID,
		Channels:   channels,
		Variables:  vars,
	}, map[string]string{"kind": queue.LaneConfirmation}); err != nil {
		logger.Error("enqueue confirmation failed", "order_id", order.OrderID, "err", err)
		return false
	}
	return true
}

func (h *OrdersHandler) scheduleTimers(ctx context.Context, order *orders.Order, merchant *merchants.Merchant) {
	now := h.clock.Now()
	if merchant.Settings.AutoCancelUnconfirmed {
		runAt := now.Add(merchant.Settings.ConfirmWindow())
		if err := h.jobs.Schedule(ctx, order.OrderID, merchant.MerchantID, orders.ActionAutoCancel, runAt); err != nil {
			// the order-sync sweep backfills missing timers
			logger.Warn("schedule auto-cancel failed", "order_id", order.OrderID, "err", err)
		}
	}
	if merchant.Settings.ReConfirmEnabled {
		runAt := now.Add(merchant.Settings.ReConfirmWindow())
		if err := h.jobs.Schedule(ctx, order.OrderID, merchant.MerchantID, orders.ActionReConfirm, runAt); err != nil {
			logger.Warn("schedule re-confirm failed", "order_id", order.OrderID, "err", err)
		}
	}
}

func (h *OrdersHandler) getOrder(c *gin.Context) {
	order := h.loadOrder(c)
	if order == nil {
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *OrdersHandler) confirmOrder(c *gin.Context) {
	order := h.loadOrder(c)
	if order == nil {
		return
	}
	h.transition(c, order, orders.StatusConfirmed)
}

func (h *OrdersHandler) cancelOrder(c *gin.Context) {
	order := h.loadOrder(c)
	if order == nil {
		return
	}
	h.transition(c, order, orders.StatusCanceled)
}

func (h *OrdersHandler) fulfillOrder(c *gin.Context) {
	order := h.loadOrder(c)
	if order == nil {
		return
	}
	h.transition(c, order, orders.StatusFulfilled)
}

func (h *OrdersHandler) sendConfirmation(c *gin.Context) {
	ctx := c.Request.Context()
	order := h.loadOrder(c)
	if order == nil {
		return
	}

	var req validation.SendConfirmationRequest
	if err := validation.BindAndValidate(c, &req, h.validate); err != nil {
		return
	}

	channels := make([]orders.Channel, 0, len(req.Channels))
	for _, ch := range req.Channels {
		channels = append(channels, orders.Channel(ch))
	}
	if len(channels) == 0 {
		merchant, err := h.merchants.Get(ctx, order.MerchantID)
		if err != nil || merchant == nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "merchant_lookup_failed"})
			return
		}
		channels = merchant.ConfiguredChannels()
	}
	if len(channels) == 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "no_channels_configured"})
		return
	}

	if err := h.confirmQ.Enqueue(ctx, queue.ConfirmationJob{
		OrderID:    order.OrderID,
		MerchantID: order.MerchantID,
		Channels:   channels,
		TemplateID: req.TemplateID,
		Variables:  req.Variables,
	}, map[string]string{"kind": queue.LaneConfirmation}); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "enqueue_failed"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"orderId": order.OrderID, "queued": true})
}

// loadOrder fetches the order and enforces merchant scoping when the
// caller supplies merchantId. Writes the error response itself and returns
// nil when the request cannot proceed.
func (h *OrdersHandler) loadOrder(c *gin.Context) *orders.Order {
	order, err := h.orders.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "order_lookup_failed"})
		return nil
	}
	if order == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "order_not_found"})
		return nil
	}
	if mid := c.Query("merchantId"); mid != "" && mid != order.MerchantID {
		c.JSON(http.StatusNotFound, gin.H{"error": "order_not_found"})
		return nil
	}
	return order
}

func (h *OrdersHandler) transition(c *gin.Context, order *orders.Order, to orders.Status) {
	err := h.orders.TransitionStatus(c.Request.Context(), order.OrderID, order.Status, to)
	switch {
	case errors.Is(err, orders.ErrInvalidStatusTransition):
		c.JSON(http.StatusConflict, gin.H{
			"error": "invalid_transition",
			"from":  order.Status,
			"to":    to,
		})
	case errors.Is(err, orders.ErrStatusConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "status_conflict"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "transition_failed"})
	default:
		c.JSON(http.StatusOK, gin.H{"orderId": order.OrderID, "status": to})
	}
}
