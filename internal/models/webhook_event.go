package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

const (
	EventInvoiceCreated         = "InvoiceCreated"
	EventInvoiceReceivedPayment = "InvoiceReceivedPayment"
	EventInvoicePaymentSettled  = "InvoicePaymentSettled"
	EventInvoiceProcessing      = "InvoiceProcessing"
	EventInvoiceExpired         = "InvoiceExpired"
	EventInvoiceSettled         = "InvoiceSettled"
	EventInvoiceInvalid         = "InvoiceInvalid"
)

var ErrMalformedEvent = errors.New("malformed webhook event")

type EventMetadata struct {
	OrderID string `json:"orderId"`
}

// WebhookEvent is the fixed-shape form of an inbound delivery. Raw keeps the
// exact bytes received since the signature covers them.
type WebhookEvent struct {
	Type          string        `json:"type"`
	InvoiceID     string        `json:"invoiceId"`
	StoreID       string        `json:"storeId"`
	DeliveryID    string        `json:"deliveryId"`
	OriginalID    string        `json:"originalDeliveryId"`
	PartiallyPaid bool          `json:"partiallyPaid"`
	Metadata      EventMetadata `json:"metadata"`

	Raw       []byte `json:"-"`
	Signature string `json:"-"`
}

// DedupKey is stable across redeliveries of the same event.
func (e *WebhookEvent) DedupKey() string {
	if e.OriginalID != "" {
		return e.OriginalID
	}
	return e.DeliveryID
}

// ParseWebhookEvent decodes a delivery body. Any decoding problem or a missing
// type, store or delivery id is reported as ErrMalformedEvent.
func ParseWebhookEvent(body []byte, signature string) (*WebhookEvent, error) {
	var event WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if event.Type == "" || event.StoreID == "" || event.DedupKey() == "" {
		return nil, ErrMalformedEvent
	}
	event.Raw = body
	event.Signature = signature
	return &event, nil
}
