package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/btcpay-connector/internal/api"
	"github.com/akylbek/payment-system/btcpay-connector/internal/btcpay"
	"github.com/akylbek/payment-system/btcpay-connector/internal/config"
	"github.com/akylbek/payment-system/btcpay-connector/internal/handlers"
	"github.com/akylbek/payment-system/btcpay-connector/internal/messaging"
	"github.com/akylbek/payment-system/btcpay-connector/internal/repository"
	"github.com/akylbek/payment-system/btcpay-connector/internal/service"
	"github.com/akylbek/payment-system/btcpay-connector/internal/telemetry"
)

const refundGuardTTL = 24 * time.Hour

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize telemetry
	if err := telemetry.InitTelemetry("btcpay-connector", cfg.JaegerEndpoint, cfg.BTCPay.Debug); err != nil {
		panic(fmt.Sprintf("Failed to initialize telemetry: %v", err))
	}
	defer telemetry.Shutdown(context.Background())

	logger := telemetry.Logger
	logger.Info("Starting BTCPay connector")

	// Connect to PostgreSQL
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// Initialize repositories
	ledger := repository.NewLedgerRepository(db)
	if err := ledger.InitDB(); err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	settings := repository.NewSettingsRepository(db, cfg.BTCPay)
	if err := settings.InitDB(); err != nil {
		logger.Fatal("Failed to initialize settings table", zap.Error(err))
	}
	invoices := repository.NewInvoiceRepository(db)

	// Connect to Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.RedisURL,
	})
	defer redisClient.Close()

	// Connect to NATS
	nc, err := nats.Connect(cfg.NatsURL)
	if err != nil {
		logger.Fatal("Failed to connect to NATS", zap.Error(err))
	}
	defer nc.Close()

	// Connect to Kafka
	kafkaWriter := messaging.NewKafkaWriter(cfg.KafkaBrokers)
	defer kafkaWriter.Close()

	publisher := messaging.NewKafkaPublisher(kafkaWriter)
	notifier := messaging.NewNatsNotifier(nc, cfg.SiteTitle, 5*time.Second)

	// Remote API
	newClient := btcpay.Factory(telemetry.HTTPClient(cfg.BTCPay.RequestTimeout))
	gateway := service.NewInvoiceGateway(settings, newClient, cfg.BTCPay.RequestTimeout, logger)

	// Services
	processor := service.NewPaymentEventProcessor(ledger, invoices, gateway, publisher, logger)
	refunds := service.NewRefundOrchestrator(gateway, ledger, invoices, settings, notifier, publisher, service.RefundOptions{
		ReductionPercent: cfg.BTCPay.RefundPercentage,
		SendRefundEmail:  cfg.BTCPay.SendRefundEmail,
	}, logger)
	checkout := service.NewCheckoutService(gateway, ledger, invoices, settings, service.CheckoutOptions{
		ReturnURL:    cfg.PublicBaseURL + "/payment/btcpay/return",
		OrderURL:     cfg.PublicBaseURL + "/member",
		ThanksURL:    cfg.ThanksURL,
		DefaultSpeed: cfg.BTCPay.TxSpeed,
	}, logger)
	wizard := service.NewSetupWizardCoordinator(settings, repository.NewRedisNonceStore(redisClient), newClient, service.SetupOptions{
		ApplicationName: cfg.SiteTitle,
		CallbackURL:     cfg.PublicBaseURL + "/admin/btcpay/setup/callback",
		WebhookURL:      cfg.PublicBaseURL + "/payment/btcpay/ipn",
		Timeout:         cfg.BTCPay.RequestTimeout,
	}, logger)

	// Setup Gin router
	if cfg.AdminJWTSecret == "" {
		logger.Warn("ADMIN_JWT_SECRET is not set, operator routes are disabled")
	}
	r := api.NewRouter(api.Handlers{
		Webhook: handlers.NewWebhookHandler(settings, processor),
		Checkout: handlers.NewCheckoutHandler(checkout, handlers.Pages{
			Thanks: cfg.ThanksURL,
			Cancel: cfg.CancelURL,
			Signup: cfg.SignupURL,
		}),
		Setup:    handlers.NewSetupHandler(wizard, settings, cfg.AdminSetupURL),
		Payments: handlers.NewPaymentHandler(ledger, settings, refunds, repository.NewRedisRefundGuard(redisClient, refundGuardTTL)),
	}, []byte(cfg.AdminJWTSecret))

	// Setup HTTP server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	// Start server in goroutine
	go func() {
		logger.Info("BTCPay connector starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
