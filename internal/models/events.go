package models

import "time"

const (
	DomainPaymentRecorded = "payment.recorded"
	DomainAccessGranted   = "access.granted"
	DomainAdvisoryNoted   = "advisory.noted"
	DomainRefundIssued    = "refund.issued"
)

// DomainEvent is published after a ledger mutation.
type DomainEvent struct {
	Type            string    `json:"type"`
	InvoiceID       int64     `json:"invoice_id"`
	ReceiptID       string    `json:"receipt_id,omitempty"`
	RemoteInvoiceID string    `json:"remote_invoice_id,omitempty"`
	Amount          string    `json:"amount,omitempty"`
	Currency        string    `json:"currency,omitempty"`
	Detail          string    `json:"detail,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}
