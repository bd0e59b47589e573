package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/btcpay-connector/internal/config"
	"github.com/akylbek/payment-system/btcpay-connector/internal/interfaces"
	"github.com/akylbek/payment-system/btcpay-connector/internal/models"
	"github.com/akylbek/payment-system/btcpay-connector/internal/service"
	"github.com/akylbek/payment-system/btcpay-connector/internal/telemetry"
)

type Refunder interface {
	Refund(ctx context.Context, payment *models.LocalPayment, amount decimal.Decimal) (*models.RefundRecord, error)
}

type PaymentHandler struct {
	payments interfaces.PaymentStore
	creds    interfaces.CredentialStore
	refunder Refunder
	guard    interfaces.RefundGuard
}

func NewPaymentHandler(payments interfaces.PaymentStore, creds interfaces.CredentialStore, refunder Refunder, guard interfaces.RefundGuard) *PaymentHandler {
	return &PaymentHandler{
		payments: payments,
		creds:    creds,
		refunder: refunder,
		guard:    guard,
	}
}

type refundRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

func (h *PaymentHandler) GetPayment(c *gin.Context) {
	receiptID := c.Param("receiptId")

	payment, err := h.payments.GetPayment(c.Request.Context(), receiptID)
	if errors.Is(err, service.ErrPaymentNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Payment not found"})
		return
	}
	if err != nil {
		telemetry.Logger.Error("Failed to fetch payment", zap.String("receipt_id", receiptID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch payment"})
		return
	}

	creds, err := h.creds.Load(c.Request.Context())
	if err != nil {
		telemetry.Logger.Error("Failed to load BTCPay settings", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch payment"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"receipt_id":        payment.ReceiptID,
		"invoice_id":        payment.InvoiceID,
		"user_id":           payment.UserID,
		"amount":            payment.Amount,
		"currency":          payment.Currency,
		"linked_invoice_id": payment.LinkedInvoiceID,
		"external_event_id": payment.ExternalEventID,
		"created_at":        payment.CreatedAt,
		"receipt_url":       config.Settings{ServerURL: creds.ServerURL}.ReceiptURL(payment.ReceiptID),
	})
}

// Refund allows one attempt per receipt and amount. The guard is released
// only when the remote refund was never issued. The claim link goes to the
// payer through the user note and the notifier, never in this response.
func (h *PaymentHandler) Refund(c *gin.Context) {
	receiptID := c.Param("receiptId")
	ctx := c.Request.Context()

	var req refundRequest
	if err := c.ShouldBindJSON(&req); err != nil || !req.Amount.IsPositive() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount must be a positive number"})
		return
	}

	payment, err := h.payments.GetPayment(ctx, receiptID)
	if errors.Is(err, service.ErrPaymentNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Payment not found"})
		return
	}
	if err != nil {
		telemetry.Logger.Error("Failed to fetch payment", zap.String("receipt_id", receiptID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch payment"})
		return
	}
	if req.Amount.GreaterThan(payment.Amount) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount exceeds the payment"})
		return
	}

	acquired, err := h.guard.Acquire(ctx, receiptID, req.Amount)
	if err != nil {
		telemetry.Logger.Error("Failed to acquire refund guard", zap.String("receipt_id", receiptID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process refund"})
		return
	}
	if !acquired {
		c.JSON(http.StatusConflict, gin.H{"error": service.ErrRefundInProgress.Error()})
		return
	}

	record, err := h.refunder.Refund(ctx, payment, req.Amount)
	var refundErr *service.RefundError
	switch {
	case errors.As(err, &refundErr):
		if relErr := h.guard.Release(ctx, receiptID, req.Amount); relErr != nil {
			telemetry.Logger.Error("Failed to release refund guard", zap.String("receipt_id", receiptID), zap.Error(relErr))
		}
		c.JSON(http.StatusBadGateway, gin.H{
			"error":      "Refund failed",
			"detail":     refundErr.Cause.Error(),
			"receipt_id": receiptID,
		})
		return
	case err != nil:
		// The remote refund may exist, so the guard stays held.
		telemetry.Logger.Error("Refund outcome unknown", zap.String("receipt_id", receiptID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":      "Refund may have been issued but was not recorded; check the BTCPay store before retrying",
			"receipt_id": receiptID,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": record.Status,
		"refund": record,
	})
}
