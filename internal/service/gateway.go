package service

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/btcpay-connector/internal/interfaces"
	"github.com/akylbek/payment-system/btcpay-connector/internal/metrics"
	"github.com/akylbek/payment-system/btcpay-connector/internal/models"
	"github.com/akylbek/payment-system/btcpay-connector/internal/telemetry"
)

// InvoiceIDPlaceholder is substituted by the remote server on redirect.
const InvoiceIDPlaceholder = "{InvoiceId}"

const refundPaymentMethod = "BTC"

// InvoiceGateway wraps the remote invoice calls. Every failure comes back
// as *InvoiceError.
type InvoiceGateway struct {
	creds     interfaces.CredentialStore
	newClient interfaces.ClientFactory
	timeout   time.Duration
	logger    *zap.Logger
}

func NewInvoiceGateway(creds interfaces.CredentialStore, newClient interfaces.ClientFactory, timeout time.Duration, logger *zap.Logger) *InvoiceGateway {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &InvoiceGateway{
		creds:     creds,
		newClient: newClient,
		timeout:   timeout,
		logger:    logger,
	}
}

func (g *InvoiceGateway) CreateInvoice(ctx context.Context, storeID string, req *models.InvoiceRequest) (*models.RemoteInvoice, error) {
	if !strings.Contains(req.Checkout.RedirectURL, InvoiceIDPlaceholder) {
		return nil, ErrMissingInvoicePlaceholder
	}

	metadata := make(map[string]interface{}, len(req.Metadata)+2)
	for k, v := range req.Metadata {
		metadata[k] = v
	}
	metadata["orderId"] = req.ExternalOrderID
	if req.PayerEmail != "" {
		metadata["buyerEmail"] = req.PayerEmail
	}

	body := &models.CreateInvoiceBody{
		Amount:   req.Amount,
		Currency: req.Currency,
		Metadata: metadata,
		Checkout: req.Checkout,
	}

	var inv *models.RemoteInvoice
	err := g.call(ctx, "create_invoice", func(ctx context.Context, c interfaces.GreenfieldClient) error {
		var err error
		inv, err = c.CreateInvoice(ctx, storeID, body)
		return err
	})
	if err != nil {
		return nil, err
	}
	g.logger.Debug("Created remote invoice", zap.Any("invoice", inv))
	return inv, nil
}

func (g *InvoiceGateway) FetchInvoice(ctx context.Context, storeID, invoiceID string) (*models.RemoteInvoice, error) {
	var inv *models.RemoteInvoice
	err := g.call(ctx, "fetch_invoice", func(ctx context.Context, c interfaces.GreenfieldClient) error {
		var err error
		inv, err = c.GetInvoice(ctx, storeID, invoiceID)
		return err
	})
	if err != nil {
		return nil, err
	}
	g.logger.Debug("Fetched remote invoice", zap.Any("invoice", inv))
	return inv, nil
}

func (g *InvoiceGateway) RefundInvoice(ctx context.Context, storeID, receiptID string, reductionPercent, amount decimal.Decimal, currency string) (*models.RefundResult, error) {
	body := &models.RefundInvoiceBody{
		PaymentMethod:      refundPaymentMethod,
		RefundVariant:      "Custom",
		SubtractPercentage: reductionPercent.InexactFloat64(),
		CustomAmount:       amount,
		CustomCurrency:     currency,
	}

	var res *models.RefundResult
	err := g.call(ctx, "refund_invoice", func(ctx context.Context, c interfaces.GreenfieldClient) error {
		var err error
		res, err = c.RefundInvoice(ctx, storeID, receiptID, body)
		return err
	})
	if err != nil {
		return nil, err
	}
	g.logger.Debug("Issued refund", zap.Any("refund", res))
	return res, nil
}

func (g *InvoiceGateway) call(ctx context.Context, op string, fn func(context.Context, interfaces.GreenfieldClient) error) error {
	ctx, span := telemetry.Tracer.Start(ctx, "btcpay."+op)
	defer span.End()

	creds, err := g.creds.Load(ctx)
	if err != nil {
		return g.fail(op, err)
	}
	span.SetAttributes(attribute.String("btcpay.store_id", creds.StoreID))

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	if err := fn(ctx, g.newClient(creds.ServerURL, creds.APIKey)); err != nil {
		span.RecordError(err)
		return g.fail(op, err)
	}
	return nil
}

func (g *InvoiceGateway) fail(op string, cause error) error {
	metrics.GatewayFailures.WithLabelValues(op).Inc()
	g.logger.Error("BTCPay gateway failure", zap.String("operation", op), zap.Error(cause))
	return &InvoiceError{Op: op, Cause: cause}
}
