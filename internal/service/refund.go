package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/btcpay-connector/internal/interfaces"
	"github.com/akylbek/payment-system/btcpay-connector/internal/metrics"
	"github.com/akylbek/payment-system/btcpay-connector/internal/models"
)

type InvoiceRefunder interface {
	RefundInvoice(ctx context.Context, storeID, receiptID string, reductionPercent, amount decimal.Decimal, currency string) (*models.RefundResult, error)
}

type RefundOptions struct {
	ReductionPercent decimal.Decimal
	SendRefundEmail  bool
}

var hundred = decimal.NewFromInt(100)

// ClampPercent limits p to [0, 100].
func ClampPercent(p decimal.Decimal) decimal.Decimal {
	if p.LessThan(decimal.Zero) {
		return decimal.Zero
	}
	if p.GreaterThan(hundred) {
		return hundred
	}
	return p
}

// RefundOrchestrator issues refunds as claim links. A refund is complete
// locally once the link exists; the payer still has to claim the funds.
type RefundOrchestrator struct {
	remote    InvoiceRefunder
	ledger    interfaces.Ledger
	invoices  interfaces.InvoiceStore
	creds     interfaces.CredentialStore
	notifier  interfaces.Notifier
	publisher interfaces.EventPublisher
	opts      RefundOptions
	logger    *zap.Logger
	now       func() time.Time
}

func NewRefundOrchestrator(
	remote InvoiceRefunder,
	ledger interfaces.Ledger,
	invoices interfaces.InvoiceStore,
	creds interfaces.CredentialStore,
	notifier interfaces.Notifier,
	publisher interfaces.EventPublisher,
	opts RefundOptions,
	logger *zap.Logger,
) *RefundOrchestrator {
	return &RefundOrchestrator{
		remote:    remote,
		ledger:    ledger,
		invoices:  invoices,
		creds:     creds,
		notifier:  notifier,
		publisher: publisher,
		opts:      opts,
		logger:    logger,
		now:       time.Now,
	}
}

// Refund is not retried on failure: without an idempotency key a second
// call could issue a second claim link. A *RefundError means nothing was
// issued remotely; any other error means something may have been.
func (o *RefundOrchestrator) Refund(ctx context.Context, payment *models.LocalPayment, amount decimal.Decimal) (*models.RefundRecord, error) {
	percent := ClampPercent(o.opts.ReductionPercent)

	invoice, err := o.invoices.FindByID(ctx, payment.InvoiceID)
	if err != nil {
		return nil, o.failed(payment, fmt.Errorf("local invoice %d: %w", payment.InvoiceID, err))
	}

	creds, err := o.creds.Load(ctx)
	if err != nil {
		return nil, o.failed(payment, err)
	}

	result, err := o.remote.RefundInvoice(ctx, creds.StoreID, payment.ReceiptID, percent, amount, invoice.Currency)
	if err != nil {
		return nil, o.failed(payment, err)
	}

	record := &models.RefundRecord{
		ID:               uuid.NewString(),
		SourceReceiptID:  payment.ReceiptID,
		ReceiptID:        payment.ReceiptID + "-btcpay-refund",
		RemoteRefundID:   result.ID,
		InvoiceID:        payment.InvoiceID,
		RequestedAmount:  amount,
		Currency:         payment.Currency,
		ReductionPercent: percent,
		ClaimLink:        result.ViewLink,
		Status:           models.RefundClaimLinkIssued,
		CreatedAt:        o.now(),
	}

	if err := o.ledger.RecordRefund(ctx, record); err != nil {
		o.logger.Error("Refund issued remotely but not recorded",
			zap.String("receipt_id", payment.ReceiptID),
			zap.String("refund_id", result.ID),
			zap.String("claim_link", result.ViewLink),
			zap.Error(err),
		)
		metrics.Refunds.WithLabelValues("unrecorded").Inc()
		return nil, &UnrecordedRefundError{RemoteRefundID: result.ID, Cause: err}
	}
	metrics.Refunds.WithLabelValues("claim_link_issued").Inc()

	if err := o.ledger.AddUserNote(ctx, invoice.UserID, refundNote(invoice, record)); err != nil {
		o.logger.Error("Failed to add refund note", zap.String("receipt_id", payment.ReceiptID), zap.Error(err))
	}

	if o.opts.SendRefundEmail {
		if err := o.notify(ctx, invoice, record.ClaimLink); err != nil {
			var notifyErr *NotifyError
			if !errors.As(err, &notifyErr) {
				return nil, err
			}
			// The refund already exists remotely; only the message is lost.
			o.logger.Error("Could not send refund link",
				zap.String("invoice", invoice.PublicID),
				zap.Error(notifyErr),
			)
		}
	}

	if o.publisher != nil {
		event := models.DomainEvent{
			Type:      models.DomainRefundIssued,
			InvoiceID: invoice.InvoiceID,
			ReceiptID: record.ReceiptID,
			Amount:    amount.String(),
			Currency:  record.Currency,
			Detail:    record.ClaimLink,
			Timestamp: record.CreatedAt,
		}
		if err := o.publisher.Publish(ctx, invoice.PublicID, event); err != nil {
			o.logger.Warn("Failed to publish domain event", zap.String("type", event.Type), zap.Error(err))
		}
	}

	o.logger.Info("Refund claim link issued",
		zap.String("receipt_id", payment.ReceiptID),
		zap.String("refund_id", result.ID),
		zap.String("amount", amount.String()),
		zap.String("reduction_percent", percent.String()),
	)
	return record, nil
}

func (o *RefundOrchestrator) notify(ctx context.Context, invoice *models.LocalInvoice, link string) error {
	if o.notifier == nil {
		return nil
	}
	if err := o.notifier.SendRefundLink(ctx, invoice, link); err != nil {
		return &NotifyError{Cause: err}
	}
	return nil
}

func (o *RefundOrchestrator) failed(payment *models.LocalPayment, cause error) error {
	metrics.Refunds.WithLabelValues("failed").Inc()
	o.logger.Error("Failed to refund BTCPay invoice", zap.String("receipt_id", payment.ReceiptID), zap.Error(cause))
	return &RefundError{Cause: cause}
}

func refundNote(invoice *models.LocalInvoice, r *models.RefundRecord) string {
	return fmt.Sprintf(
		"Successfully issued refund for invoice #%s.\n\n"+
			"Receipt ID: %s\nRefund ID: %s\nLink: %s\nAmount: %s %s\n\n"+
			"The claim link has been issued; the payer still has to claim the funds.",
		invoice.Reference(), r.SourceReceiptID, r.RemoteRefundID, r.ClaimLink, r.RequestedAmount.String(), r.Currency,
	)
}
