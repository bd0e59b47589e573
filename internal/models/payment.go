package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type InvoiceStatus string

const (
	InvoicePending   InvoiceStatus = "PENDING"
	InvoicePaid      InvoiceStatus = "PAID"
	InvoiceRecurring InvoiceStatus = "RECURRING_ACTIVE"
	InvoiceCancelled InvoiceStatus = "CANCELLED"
)

// LocalInvoice is the billing platform's view of an invoice. It is read-only
// to this service apart from payments, access grants and notes.
type LocalInvoice struct {
	InvoiceID    int64
	PublicID     string
	SecureID     string
	UserID       int64
	UserEmail    string
	UserName     string
	UserCountry  string
	Currency     string
	FirstTotal   decimal.Decimal
	FirstTax     decimal.Decimal
	SecondTotal  decimal.Decimal
	SecondTax    decimal.Decimal
	Status       InvoiceStatus
	PaymentCount int
	Description  string
	Items        []InvoiceItem
	Products     []Product
}

type InvoiceItem struct {
	Title       string
	Currency    string
	Qty         int
	FirstTotal  decimal.Decimal
	SecondTotal decimal.Decimal
}

type Product struct {
	Title string
	// TxSpeed is the product's own speed policy, empty to use the default.
	TxSpeed string
}

func (i *LocalInvoice) IsFirstPayment() bool {
	return i.PaymentCount == 0
}

// Reference is the "<invoiceId>/<publicId>" form used in notes.
func (i *LocalInvoice) Reference() string {
	return formatReference(i.InvoiceID, i.PublicID)
}

// DueAmount is the amount for the next payment on the invoice.
func (i *LocalInvoice) DueAmount() decimal.Decimal {
	if i.IsFirstPayment() {
		return i.FirstTotal
	}
	return i.SecondTotal
}

func (i *LocalInvoice) DueTax() decimal.Decimal {
	if i.IsFirstPayment() {
		return i.FirstTax
	}
	return i.SecondTax
}

func (i *LocalInvoice) ProductTitles() []string {
	titles := make([]string, 0, len(i.Products))
	for _, p := range i.Products {
		titles = append(titles, p.Title)
	}
	return titles
}

// LocalPayment is created once per settled remote invoice. ReceiptID is the
// remote invoice id and is unique.
type LocalPayment struct {
	ReceiptID       string          `json:"receipt_id"`
	InvoiceID       int64           `json:"invoice_id"`
	UserID          int64           `json:"user_id"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	LinkedInvoiceID string          `json:"linked_invoice_id"`
	ExternalEventID string          `json:"external_event_id"`
	CreatedAt       time.Time       `json:"created_at"`
}

// AccessGrant records access given without a payment (zero-amount first period).
type AccessGrant struct {
	InvoiceID int64
	UserID    int64
	ReceiptID string
	EventID   string
}

type RefundStatus string

// RefundClaimLinkIssued is the terminal local state: the payer received a
// link to claim the refund, delivery of funds is not tracked.
const RefundClaimLinkIssued RefundStatus = "CLAIM_LINK_ISSUED"

type RefundRecord struct {
	ID               string          `json:"id"`
	SourceReceiptID  string          `json:"source_receipt_id"`
	ReceiptID        string          `json:"receipt_id"`
	RemoteRefundID   string          `json:"remote_refund_id"`
	InvoiceID        int64           `json:"invoice_id"`
	RequestedAmount  decimal.Decimal `json:"requested_amount"`
	Currency         string          `json:"currency"`
	ReductionPercent decimal.Decimal `json:"reduction_percent"`
	ClaimLink        string          `json:"-"`
	Status           RefundStatus    `json:"status"`
	CreatedAt        time.Time       `json:"created_at"`
}

// Credentials are written by the setup wizard and read by everything else.
type Credentials struct {
	ServerURL     string
	APIKey        string
	StoreID       string
	WebhookSecret string
}

// SetupSession is what Begin remembers until the authorization callback.
// The server URL only becomes a credential once the grant is accepted.
type SetupSession struct {
	Nonce     string `json:"nonce"`
	ServerURL string `json:"server_url"`
}
