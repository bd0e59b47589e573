package models

import (
	"strconv"

	"github.com/shopspring/decimal"
)

type RemoteStatus string

const (
	RemoteNew        RemoteStatus = "New"
	RemoteProcessing RemoteStatus = "Processing"
	RemoteExpired    RemoteStatus = "Expired"
	RemoteInvalid    RemoteStatus = "Invalid"
	RemoteSettled    RemoteStatus = "Settled"
)

// Values of the remote additionalStatus field.
const (
	AdditionalNone        = "None"
	AdditionalPaidLate    = "PaidLate"
	AdditionalPaidPartial = "PaidPartial"
	AdditionalPaidOver    = "PaidOver"
	AdditionalMarked      = "Marked"
	AdditionalInvalid     = "Invalid"
)

// RemoteInvoice is a read-through snapshot of the processor's invoice.
type RemoteInvoice struct {
	ID               string                 `json:"id"`
	StoreID          string                 `json:"storeId"`
	Currency         string                 `json:"currency"`
	Amount           decimal.Decimal        `json:"amount"`
	Status           RemoteStatus           `json:"status"`
	AdditionalStatus string                 `json:"additionalStatus"`
	CheckoutLink     string                 `json:"checkoutLink"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
}

func (r *RemoteInvoice) PartiallyPaid() bool { return r.AdditionalStatus == AdditionalPaidPartial }
func (r *RemoteInvoice) PaidLate() bool      { return r.AdditionalStatus == AdditionalPaidLate }
func (r *RemoteInvoice) Overpaid() bool      { return r.AdditionalStatus == AdditionalPaidOver }
func (r *RemoteInvoice) IsSettled() bool     { return r.Status == RemoteSettled }
func (r *RemoteInvoice) IsProcessing() bool  { return r.Status == RemoteProcessing }

// Speed policies ordered fastest to slowest.
const (
	SpeedHigh      = "HighSpeed"
	SpeedMedium    = "MediumSpeed"
	SpeedLowMedium = "LowMediumSpeed"
	SpeedLow       = "LowSpeed"
)

var SpeedPolicies = []string{SpeedHigh, SpeedMedium, SpeedLowMedium, SpeedLow}

type CheckoutOptions struct {
	SpeedPolicy string `json:"speedPolicy,omitempty"`
	RedirectURL string `json:"redirectURL,omitempty"`
}

// InvoiceRequest carries everything needed to open a remote invoice.
type InvoiceRequest struct {
	Currency        string
	Amount          decimal.Decimal
	ExternalOrderID string
	PayerEmail      string
	Metadata        map[string]interface{}
	Checkout        CheckoutOptions
}

type CreateInvoiceBody struct {
	Amount   decimal.Decimal        `json:"amount"`
	Currency string                 `json:"currency"`
	Metadata map[string]interface{} `json:"metadata"`
	Checkout CheckoutOptions        `json:"checkout"`
}

type RefundInvoiceBody struct {
	Name               string          `json:"name,omitempty"`
	Description        string          `json:"description,omitempty"`
	PaymentMethod      string          `json:"paymentMethod"`
	RefundVariant      string          `json:"refundVariant"`
	SubtractPercentage float64         `json:"subtractPercentage"`
	CustomAmount       decimal.Decimal `json:"customAmount"`
	CustomCurrency     string          `json:"customCurrency"`
}

// RefundResult is the pull payment created for a refund. ViewLink is the
// claim link handed to the payer.
type RefundResult struct {
	ID       string `json:"id"`
	ViewLink string `json:"viewLink"`
	Currency string `json:"currency"`
	Amount   string `json:"amount"`
}

type AuthorizedEvents struct {
	Everything     bool     `json:"everything"`
	SpecificEvents []string `json:"specificEvents"`
}

type StoreWebhook struct {
	ID                  string           `json:"id"`
	URL                 string           `json:"url"`
	Enabled             bool             `json:"enabled"`
	AutomaticRedelivery bool             `json:"automaticRedelivery"`
	Secret              string           `json:"secret,omitempty"`
	AuthorizedEvents    AuthorizedEvents `json:"authorizedEvents"`
}

type CreateWebhookBody struct {
	URL                 string           `json:"url"`
	Enabled             bool             `json:"enabled"`
	AutomaticRedelivery bool             `json:"automaticRedelivery"`
	Secret              string           `json:"secret,omitempty"`
	AuthorizedEvents    AuthorizedEvents `json:"authorizedEvents"`
}

func formatReference(invoiceID int64, publicID string) string {
	return strconv.FormatInt(invoiceID, 10) + "/" + publicID
}
