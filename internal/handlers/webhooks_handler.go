package handlers

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/confirmly/confirmation-engine/internal/events"
	"github.com/confirmly/confirmation-engine/internal/logger"
	"github.com/confirmly/confirmation-engine/internal/webhooks"
)

type EventProcessor interface {
	Process(ctx context.Context, ev webhooks.InboundEvent) error
}

type EventLog interface {
	Append(ctx context.Context, merchantID, eventType string, payload map[string]interface{}) error
}

// WebhooksHandler is the vendor-facing ingress. Every processing failure
// is swallowed behind a success response: an error status would only make
// the vendor hammer us with retries of the same broken payload.
type WebhooksHandler struct {
	ingestor    EventProcessor
	eventLog    EventLog
	verifyToken string
}

func NewWebhooksHandler(ing EventProcessor, el EventLog, chatVerifyToken string) *WebhooksHandler {
	return &WebhooksHandler{ingestor: ing, eventLog: el, verifyToken: chatVerifyToken}
}

func (h *WebhooksHandler) Register(r gin.IRouter) {
	r.GET("/v1/webhooks/chat", h.verifyChat)
	r.POST("/v1/webhooks/chat", h.chat)
	r.POST("/v1/webhooks/sms/twilio", h.twilio)
	r.POST("/v1/webhooks/sms/msg91", h.msg91)
	r.POST("/v1/webhooks/email/sendgrid", h.sendgrid)
}

// verifyChat answers the chat platform's subscription handshake. This is
// the one webhook route allowed to fail: it runs at setup time, against a
// human, not against a vendor retry loop.
func (h *WebhooksHandler) verifyChat(c *gin.Context) {
	challenge, ok := webhooks.VerifyChat(
		c.Query("hub.mode"),
		c.Query("hub.verify_token"),
		c.Query("hub.challenge"),
		h.verifyToken,
	)
	if !ok {
		c.JSON(http.StatusForbidden, gin.H{"error": "verification_failed"})
		return
	}
	c.String(http.StatusOK, challenge)
}

func (h *WebhooksHandler) chat(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.recordFailure(c, "chat", err)
		c.JSON(http.StatusOK, gin.H{"status": "received"})
		return
	}
	evs, err := webhooks.ParseChat(body)
	if err != nil {
		h.recordFailure(c, "chat", err)
	}
	h.processAll(c, "chat", evs)
	c.JSON(http.StatusOK, gin.H{"status": "received"})
}

func (h *WebhooksHandler) twilio(c *gin.Context) {
	if err := c.Request.ParseForm(); err != nil {
		h.recordFailure(c, "twilio", err)
		c.String(http.StatusOK, "")
		return
	}
	h.processAll(c, "twilio", webhooks.ParseTwilio(c.Request.PostForm))
	c.String(http.StatusOK, "")
}

func (h *WebhooksHandler) msg91(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.recordFailure(c, "msg91", err)
		c.JSON(http.StatusOK, gin.H{"status": "received"})
		return
	}
	evs, err := webhooks.ParseMSG91(body)
	if err != nil {
		h.recordFailure(c, "msg91", err)
	}
	h.processAll(c, "msg91", evs)
	c.JSON(http.StatusOK, gin.H{"status": "received"})
}

func (h *WebhooksHandler) sendgrid(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.recordFailure(c, "sendgrid", err)
		c.JSON(http.StatusOK, gin.H{"status": "received"})
		return
	}
	evs, err := webhooks.ParseSendGrid(body)
	if err != nil {
		h.recordFailure(c, "sendgrid", err)
	}
	h.processAll(c, "sendgrid", evs)
	c.JSON(http.StatusOK, gin.H{"status": "received"})
}

func (h *WebhooksHandler) processAll(c *gin.Context, vendor string, evs []webhooks.InboundEvent) {
	ctx := c.Request.Context()
	for _, ev := range evs {
		if err := h.ingestor.Process(ctx, ev); err != nil {
			h.recordFailure(c, vendor, err)
		}
	}
}

func (h *WebhooksHandler) recordFailure(c *gin.Context, vendor string, err error) {
	logger.Error("webhook processing failed", "vendor", vendor, "err", err)
	if h.eventLog == nil {
		return
	}
	if lerr := h.eventLog.Append(c.Request.Context(), "", events.TypeWebhookError, map[string]interface{}{
		"vendor": vendor,
		"error":  err.Error(),
	}); lerr != nil {
		logger.Warn("event log append failed", "vendor", vendor, "err", lerr)
	}
}
