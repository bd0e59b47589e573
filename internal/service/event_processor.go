package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/akylbek/payment-system/btcpay-connector/internal/interfaces"
	"github.com/akylbek/payment-system/btcpay-connector/internal/metrics"
	"github.com/akylbek/payment-system/btcpay-connector/internal/models"
)

type InvoiceFetcher interface {
	FetchInvoice(ctx context.Context, storeID, invoiceID string) (*models.RemoteInvoice, error)
}

type AdvisoryKind string

const (
	AdvisoryPartiallyPaid AdvisoryKind = "partially_paid"
	AdvisoryPaidLate      AdvisoryKind = "paid_late"
	AdvisoryOverpaid      AdvisoryKind = "overpaid"
	AdvisoryExpiredPaid   AdvisoryKind = "expired_partially_paid"
)

// EventOutcome describes what one delivery changed locally.
type EventOutcome struct {
	Ignored       bool
	Duplicate     bool
	Advisories    []AdvisoryKind
	Payment       *models.LocalPayment
	AccessGranted bool
}

// PaymentEventProcessor maps verified webhook events onto the ledger. Each
// delivery is handled on its own; redeliveries are absorbed by the ledger's
// insert-if-absent keys.
type PaymentEventProcessor struct {
	ledger    interfaces.Ledger
	invoices  interfaces.InvoiceStore
	remote    InvoiceFetcher
	publisher interfaces.EventPublisher
	logger    *zap.Logger
	now       func() time.Time
}

func NewPaymentEventProcessor(
	ledger interfaces.Ledger,
	invoices interfaces.InvoiceStore,
	remote InvoiceFetcher,
	publisher interfaces.EventPublisher,
	logger *zap.Logger,
) *PaymentEventProcessor {
	return &PaymentEventProcessor{
		ledger:    ledger,
		invoices:  invoices,
		remote:    remote,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// Process expects an event that already passed VerifyEvent.
func (p *PaymentEventProcessor) Process(ctx context.Context, event *models.WebhookEvent) (*EventOutcome, error) {
	metrics.EventsProcessed.WithLabelValues(event.Type).Inc()

	switch event.Type {
	case models.EventInvoicePaymentSettled, models.EventInvoiceSettled:
	case models.EventInvoiceExpired:
		if !event.PartiallyPaid {
			return &EventOutcome{Ignored: true}, nil
		}
	default:
		// InvoiceProcessing, InvoiceInvalid and anything not modelled yet.
		p.logger.Debug("Webhook event needs no ledger change",
			zap.String("type", event.Type),
			zap.String("invoice_id", event.InvoiceID),
		)
		return &EventOutcome{Ignored: true}, nil
	}

	key := event.DedupKey()
	claimed, err := p.ledger.ClaimDelivery(ctx, key, event.Type)
	if err != nil {
		return nil, fmt.Errorf("claim delivery %s: %w", key, err)
	}
	if !claimed {
		p.logger.Info("Duplicate webhook delivery", zap.String("delivery_id", key))
		return &EventOutcome{Duplicate: true}, nil
	}

	outcome, err := p.apply(ctx, event)
	if err != nil {
		// Let the sender's redelivery try again.
		if relErr := p.ledger.ReleaseDelivery(ctx, key); relErr != nil {
			p.logger.Error("Failed to release webhook delivery", zap.String("delivery_id", key), zap.Error(relErr))
		}
		return nil, err
	}
	return outcome, nil
}

func (p *PaymentEventProcessor) apply(ctx context.Context, event *models.WebhookEvent) (*EventOutcome, error) {
	invoice, err := p.invoices.FindByPublicID(ctx, event.Metadata.OrderID)
	if err != nil {
		return nil, fmt.Errorf("local invoice %q: %w", event.Metadata.OrderID, err)
	}

	if event.Type == models.EventInvoiceExpired {
		outcome := &EventOutcome{}
		if err := p.advise(ctx, invoice, event, AdvisoryExpiredPaid, outcome); err != nil {
			return nil, err
		}
		return outcome, nil
	}
	return p.settle(ctx, invoice, event)
}

func (p *PaymentEventProcessor) settle(ctx context.Context, invoice *models.LocalInvoice, event *models.WebhookEvent) (*EventOutcome, error) {
	remote, err := p.remote.FetchInvoice(ctx, event.StoreID, event.InvoiceID)
	if err != nil {
		return nil, err
	}

	outcome := &EventOutcome{}
	if remote.IsSettled() {
		if err := p.record(ctx, invoice, event, outcome); err != nil {
			return nil, err
		}
	}

	// Notes come after the ledger write. A failure here keeps the delivery
	// claimed, so a redelivery cannot write the same notes twice.
	flags := []struct {
		set  bool
		kind AdvisoryKind
	}{
		{remote.PartiallyPaid(), AdvisoryPartiallyPaid},
		{remote.PaidLate(), AdvisoryPaidLate},
		{remote.Overpaid(), AdvisoryOverpaid},
	}
	for _, f := range flags {
		if !f.set {
			continue
		}
		if err := p.advise(ctx, invoice, event, f.kind, outcome); err != nil {
			p.logger.Error("Failed to add advisory note", zap.String("remote_invoice_id", event.InvoiceID), zap.Error(err))
		}
	}
	return outcome, nil
}

// record books a settled invoice as a payment, or as an access grant when
// the first period is free.
func (p *PaymentEventProcessor) record(ctx context.Context, invoice *models.LocalInvoice, event *models.WebhookEvent, outcome *EventOutcome) error {
	if invoice.FirstTotal.IsZero() && invoice.Status == models.InvoicePending {
		granted, err := p.ledger.GrantAccess(ctx, &models.AccessGrant{
			InvoiceID: invoice.InvoiceID,
			UserID:    invoice.UserID,
			ReceiptID: event.InvoiceID,
			EventID:   event.DedupKey(),
		})
		if err != nil {
			return fmt.Errorf("grant access: %w", err)
		}
		outcome.AccessGranted = granted
		if granted {
			p.publish(ctx, invoice, models.DomainEvent{Type: models.DomainAccessGranted, RemoteInvoiceID: event.InvoiceID})
		}
		return nil
	}

	payment := &models.LocalPayment{
		ReceiptID:       event.InvoiceID,
		InvoiceID:       invoice.InvoiceID,
		UserID:          invoice.UserID,
		Amount:          invoice.DueAmount(),
		Currency:        invoice.Currency,
		LinkedInvoiceID: event.InvoiceID,
		ExternalEventID: event.DedupKey(),
		CreatedAt:       p.now(),
	}
	inserted, err := p.ledger.RecordPayment(ctx, payment)
	if err != nil {
		return fmt.Errorf("record payment: %w", err)
	}
	if !inserted {
		p.logger.Info("Payment already recorded", zap.String("receipt_id", payment.ReceiptID))
		return nil
	}

	metrics.PaymentsRecorded.Inc()
	outcome.Payment = payment
	p.logger.Info("Payment recorded",
		zap.String("receipt_id", payment.ReceiptID),
		zap.Int64("invoice_id", invoice.InvoiceID),
		zap.String("amount", payment.Amount.String()),
	)
	p.publish(ctx, invoice, models.DomainEvent{
		Type:            models.DomainPaymentRecorded,
		ReceiptID:       payment.ReceiptID,
		RemoteInvoiceID: event.InvoiceID,
		Amount:          payment.Amount.String(),
		Currency:        payment.Currency,
	})
	return nil
}

func (p *PaymentEventProcessor) advise(ctx context.Context, invoice *models.LocalInvoice, event *models.WebhookEvent, kind AdvisoryKind, outcome *EventOutcome) error {
	if err := p.ledger.AddUserNote(ctx, invoice.UserID, advisoryNote(kind, invoice, event.InvoiceID)); err != nil {
		return fmt.Errorf("add %s note: %w", kind, err)
	}
	metrics.AdvisoryNotes.WithLabelValues(string(kind)).Inc()
	outcome.Advisories = append(outcome.Advisories, kind)
	p.logger.Info("Added advisory note",
		zap.String("kind", string(kind)),
		zap.Int64("invoice_id", invoice.InvoiceID),
		zap.String("remote_invoice_id", event.InvoiceID),
	)
	p.publish(ctx, invoice, models.DomainEvent{Type: models.DomainAdvisoryNoted, RemoteInvoiceID: event.InvoiceID, Detail: string(kind)})
	return nil
}

func (p *PaymentEventProcessor) publish(ctx context.Context, invoice *models.LocalInvoice, event models.DomainEvent) {
	if p.publisher == nil {
		return
	}
	event.InvoiceID = invoice.InvoiceID
	event.Timestamp = p.now()
	if err := p.publisher.Publish(ctx, invoice.PublicID, event); err != nil {
		p.logger.Warn("Failed to publish domain event", zap.String("type", event.Type), zap.Error(err))
	}
}

func advisoryNote(kind AdvisoryKind, invoice *models.LocalInvoice, remoteID string) string {
	var lead string
	switch kind {
	case AdvisoryPartiallyPaid:
		lead = "Partial payment received (could be more transactions incoming). Please check:"
	case AdvisoryPaidLate:
		lead = "The following BTCPay invoice was paid after it had expired. Please check:"
	case AdvisoryOverpaid:
		lead = "The following BTCPay invoice was overpaid. Please check:"
	case AdvisoryExpiredPaid:
		lead = "A partial payment was received for an expired BTCPay invoice. Please check:"
	}
	return fmt.Sprintf("%s\n\nInvoice #%s.\nBTCPay Invoice: #%s", lead, invoice.Reference(), remoteID)
}

// IsNotFound reports whether err means a local record is missing.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrInvoiceNotFound) || errors.Is(err, ErrPaymentNotFound)
}
