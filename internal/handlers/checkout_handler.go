package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/btcpay-connector/internal/service"
	"github.com/akylbek/payment-system/btcpay-connector/internal/telemetry"
)

type CheckoutFlow interface {
	Initiate(ctx context.Context, publicID string) (*service.CheckoutResult, error)
	ResolveReturn(ctx context.Context, secureID, remoteID string) service.ReturnOutcome
}

// Pages the payer is sent to after checkout.
type Pages struct {
	Thanks string
	Cancel string
	Signup string
}

type CheckoutHandler struct {
	flow  CheckoutFlow
	pages Pages
}

func NewCheckoutHandler(flow CheckoutFlow, pages Pages) *CheckoutHandler {
	return &CheckoutHandler{flow: flow, pages: pages}
}

func (h *CheckoutHandler) Checkout(c *gin.Context) {
	publicID := c.Param("publicId")

	res, err := h.flow.Initiate(c.Request.Context(), publicID)
	if err != nil {
		telemetry.Logger.Error("Checkout failed", zap.String("invoice", publicID), zap.Error(err))

		var invErr *service.InvoiceError
		switch {
		case errors.Is(err, service.ErrInvoiceNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Invoice not found"})
		case errors.Is(err, service.ErrNotConfigured), errors.As(err, &invErr):
			c.JSON(http.StatusBadGateway, gin.H{"error": "gateway error"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "gateway error"})
		}
		return
	}

	if res.Free {
		telemetry.Logger.Info("Free first period, access granted", zap.String("invoice", publicID))
	}
	c.Redirect(http.StatusFound, res.RedirectURL)
}

func (h *CheckoutHandler) Return(c *gin.Context) {
	switch h.flow.ResolveReturn(c.Request.Context(), c.Query("id"), c.Query("txn")) {
	case service.ReturnSuccess:
		c.Redirect(http.StatusFound, h.pages.Thanks)
	case service.ReturnCancel:
		c.Redirect(http.StatusFound, h.pages.Cancel)
	default:
		c.Redirect(http.StatusFound, h.pages.Signup)
	}
}
