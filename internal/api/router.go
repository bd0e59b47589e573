package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/akylbek/payment-system/btcpay-connector/internal/handlers"
	"github.com/akylbek/payment-system/btcpay-connector/internal/middleware"
	"github.com/akylbek/payment-system/btcpay-connector/internal/telemetry"
)

type Handlers struct {
	Webhook  *handlers.WebhookHandler
	Checkout *handlers.CheckoutHandler
	Setup    *handlers.SetupHandler
	Payments *handlers.PaymentHandler
}

// NewRouter mounts the payer-facing routes publicly and the operator routes
// behind an admin bearer token signed with adminSecret.
func NewRouter(h Handlers, adminSecret []byte) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(telemetry.TracingMiddleware())

	// Prometheus metrics
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "btcpay-connector"})
	})

	// Payer-facing routes
	r.POST("/payment/btcpay/ipn", h.Webhook.HandleWebhook)
	r.POST("/payment/btcpay/checkout/:publicId", h.Checkout.Checkout)
	r.GET("/payment/btcpay/return", h.Checkout.Return)

	// Posted back by the remote server; the setup nonce authenticates it.
	r.POST("/admin/btcpay/setup/callback", h.Setup.Callback)

	// Operator routes
	operator := r.Group("/")
	operator.Use(middleware.AuthRequired(adminSecret), middleware.AdminRequired())
	{
		operator.GET("/admin/btcpay/setup", h.Setup.Begin)
		operator.GET("/payments/:receiptId", h.Payments.GetPayment)
		operator.POST("/payments/:receiptId/refund", h.Payments.Refund)
	}

	return r
}
