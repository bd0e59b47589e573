package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/btcpay-connector/internal/interfaces"
	"github.com/akylbek/payment-system/btcpay-connector/internal/metrics"
	"github.com/akylbek/payment-system/btcpay-connector/internal/models"
	"github.com/akylbek/payment-system/btcpay-connector/internal/service"
	"github.com/akylbek/payment-system/btcpay-connector/internal/telemetry"
)

type EventProcessor interface {
	Process(ctx context.Context, event *models.WebhookEvent) (*service.EventOutcome, error)
}

type WebhookHandler struct {
	creds     interfaces.CredentialStore
	processor EventProcessor
}

func NewWebhookHandler(creds interfaces.CredentialStore, processor EventProcessor) *WebhookHandler {
	return &WebhookHandler{creds: creds, processor: processor}
}

// HandleWebhook answers non-2xx only when the sender should redeliver or the
// delivery is not trusted. Rejection reasons stay in the logs.
func (h *WebhookHandler) HandleWebhook(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		h.reject(c, http.StatusBadRequest, "unreadable", err)
		return
	}

	event, err := models.ParseWebhookEvent(body, c.GetHeader(service.SignatureHeader))
	if err != nil {
		h.reject(c, http.StatusBadRequest, "malformed", err)
		return
	}

	creds, err := h.creds.Load(c.Request.Context())
	if err != nil {
		telemetry.Logger.Error("Failed to load BTCPay settings", zap.Error(err))
		metrics.WebhookDeliveries.WithLabelValues("error").Inc()
		c.JSON(http.StatusInternalServerError, gin.H{"error": "webhook not processed"})
		return
	}

	if ok, verr := service.VerifyEvent(event, creds); !ok {
		var v *service.VerificationError
		if errors.As(verr, &v) && v.Kind == service.VerifyUnexpected {
			// Signed, but outside the subscription we registered.
			h.reject(c, http.StatusBadRequest, "unexpected", verr)
			return
		}
		h.reject(c, http.StatusUnauthorized, "rejected", verr)
		return
	}

	telemetry.Logger.Info("Webhook received",
		zap.String("type", event.Type),
		zap.String("invoice_id", event.InvoiceID),
		zap.String("delivery_id", event.DeliveryID),
	)

	outcome, err := h.processor.Process(c.Request.Context(), event)
	if err != nil {
		telemetry.Logger.Error("Error processing webhook",
			zap.String("type", event.Type),
			zap.String("invoice_id", event.InvoiceID),
			zap.Error(err),
		)
		metrics.WebhookDeliveries.WithLabelValues("error").Inc()
		c.JSON(http.StatusInternalServerError, gin.H{"error": "webhook not processed"})
		return
	}

	status := "processed"
	switch {
	case outcome.Duplicate:
		status = "duplicate"
	case outcome.Ignored:
		status = "ignored"
	}
	metrics.WebhookDeliveries.WithLabelValues(status).Inc()
	c.JSON(http.StatusOK, gin.H{"status": status})
}

func (h *WebhookHandler) reject(c *gin.Context, code int, outcome string, reason error) {
	telemetry.Logger.Warn("Webhook rejected",
		zap.String("outcome", outcome),
		zap.String("remote_addr", c.ClientIP()),
		zap.Error(reason),
	)
	metrics.WebhookDeliveries.WithLabelValues(outcome).Inc()
	c.JSON(code, gin.H{"error": "invalid webhook"})
}
