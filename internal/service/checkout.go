package service

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/btcpay-connector/internal/interfaces"
	"github.com/akylbek/payment-system/btcpay-connector/internal/models"
)

type InvoiceOpener interface {
	CreateInvoice(ctx context.Context, storeID string, req *models.InvoiceRequest) (*models.RemoteInvoice, error)
	FetchInvoice(ctx context.Context, storeID, invoiceID string) (*models.RemoteInvoice, error)
}

type CheckoutOptions struct {
	// ReturnURL is the return page; id and txn are appended.
	ReturnURL    string
	OrderURL     string
	ThanksURL    string
	DefaultSpeed string
}

type CheckoutResult struct {
	RedirectURL     string
	Free            bool
	RemoteInvoiceID string
}

type ReturnOutcome int

const (
	ReturnNotFound ReturnOutcome = iota
	ReturnSuccess
	ReturnCancel
)

// CheckoutService opens remote invoices for local ones and resolves where
// the payer lands afterwards.
type CheckoutService struct {
	remote   InvoiceOpener
	ledger   interfaces.Ledger
	invoices interfaces.InvoiceStore
	creds    interfaces.CredentialStore
	opts     CheckoutOptions
	logger   *zap.Logger
}

func NewCheckoutService(remote InvoiceOpener, ledger interfaces.Ledger, invoices interfaces.InvoiceStore, creds interfaces.CredentialStore, opts CheckoutOptions, logger *zap.Logger) *CheckoutService {
	return &CheckoutService{
		remote:   remote,
		ledger:   ledger,
		invoices: invoices,
		creds:    creds,
		opts:     opts,
		logger:   logger,
	}
}

func (s *CheckoutService) Initiate(ctx context.Context, publicID string) (*CheckoutResult, error) {
	invoice, err := s.invoices.FindByPublicID(ctx, publicID)
	if err != nil {
		return nil, err
	}

	// A free first period never reaches the remote server.
	if invoice.IsFirstPayment() && invoice.FirstTotal.LessThanOrEqual(decimal.Zero) {
		if _, err := s.ledger.GrantAccess(ctx, &models.AccessGrant{
			InvoiceID: invoice.InvoiceID,
			UserID:    invoice.UserID,
			ReceiptID: "free-" + invoice.PublicID,
		}); err != nil {
			return nil, fmt.Errorf("grant free access: %w", err)
		}
		return &CheckoutResult{RedirectURL: s.opts.ThanksURL, Free: true}, nil
	}

	creds, err := s.creds.Load(ctx)
	if err != nil {
		return nil, err
	}
	if creds.StoreID == "" {
		return nil, ErrNotConfigured
	}

	speed := SelectSpeedPolicy(invoice.Products, s.opts.DefaultSpeed)
	s.logger.Debug("Selected speed policy", zap.String("speed", speed), zap.String("invoice", publicID))

	req := &models.InvoiceRequest{
		Currency:        invoice.Currency,
		Amount:          invoice.DueAmount(),
		ExternalOrderID: invoice.PublicID,
		PayerEmail:      invoice.UserEmail,
		Metadata:        s.metadata(invoice),
		Checkout: models.CheckoutOptions{
			SpeedPolicy: speed,
			RedirectURL: ReturnURL(s.opts.ReturnURL, invoice.SecureID),
		},
	}

	remote, err := s.remote.CreateInvoice(ctx, creds.StoreID, req)
	if err != nil {
		return nil, err
	}
	if remote.CheckoutLink == "" {
		s.logger.Error("BTCPay invoice has no checkout link", zap.String("remote_invoice_id", remote.ID))
		return nil, &InvoiceError{Op: "create_invoice", Cause: ErrMissingCheckoutLink}
	}

	s.logger.Debug("Checkout URL", zap.String("url", remote.CheckoutLink))
	return &CheckoutResult{RedirectURL: remote.CheckoutLink, RemoteInvoiceID: remote.ID}, nil
}

// ResolveReturn decides where a payer coming back from checkout goes.
func (s *CheckoutService) ResolveReturn(ctx context.Context, secureID, remoteID string) ReturnOutcome {
	if secureID == "" || remoteID == "" {
		return ReturnNotFound
	}
	if _, err := s.invoices.FindBySecureID(ctx, secureID); err != nil {
		s.logger.Debug("Invoice not found on return", zap.String("id", secureID), zap.Error(err))
		return ReturnNotFound
	}

	creds, err := s.creds.Load(ctx)
	if err != nil {
		return ReturnNotFound
	}
	remote, err := s.remote.FetchInvoice(ctx, creds.StoreID, remoteID)
	if err != nil {
		return ReturnNotFound
	}

	if remote.IsProcessing() || remote.IsSettled() {
		s.logger.Debug("Invoice paid, redirect to thanks page", zap.String("txn", remoteID))
		return ReturnSuccess
	}
	s.logger.Debug("Invoice not paid, redirect to cancel page", zap.String("txn", remoteID), zap.String("status", string(remote.Status)))
	return ReturnCancel
}

// SelectSpeedPolicy picks the slowest policy asked for by any product,
// products without their own falling back to def. Empty means the store
// default.
func SelectSpeedPolicy(products []models.Product, def string) string {
	wanted := make(map[string]struct{})
	for _, p := range products {
		if p.TxSpeed != "" {
			wanted[p.TxSpeed] = struct{}{}
		} else if def != "" {
			wanted[def] = struct{}{}
		}
	}

	speed := ""
	for _, policy := range models.SpeedPolicies {
		if _, ok := wanted[policy]; ok {
			speed = policy
		}
	}
	return speed
}

// ReturnURL appends the placeholder raw so it survives to the remote server.
func ReturnURL(base, secureID string) string {
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + url.Values{"id": {secureID}}.Encode() + "&txn=" + InvoiceIDPlaceholder
}

func (s *CheckoutService) metadata(invoice *models.LocalInvoice) map[string]interface{} {
	first := invoice.IsFirstPayment()
	cart := make(map[string]string, len(invoice.Items))
	for _, item := range invoice.Items {
		price := item.SecondTotal
		if first {
			price = item.FirstTotal
		}
		currency := item.Currency
		if currency == "" {
			currency = invoice.Currency
		}
		qty := decimal.NewFromInt(int64(item.Qty))
		cart[item.Title] = fmt.Sprintf("%s x %d = %s",
			renderMoney(price, currency), item.Qty, renderMoney(price.Mul(qty), currency))
	}

	return map[string]interface{}{
		"orderUrl":     s.opts.OrderURL,
		"buyerName":    invoice.UserName,
		"buyerCountry": invoice.UserCountry,
		"receiptData":  map[string]interface{}{"Cart": cart},
		"itemDesc":     invoice.Description,
		"physical":     false,
		"taxIncluded":  invoice.DueTax(),
	}
}

func renderMoney(amount decimal.Decimal, currency string) string {
	return amount.StringFixed(2) + " " + currency
}
