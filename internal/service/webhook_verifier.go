package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/akylbek/payment-system/btcpay-connector/internal/models"
)

const (
	SignatureHeader = "BTCPay-Sig"
	signaturePrefix = "sha256="
)

// WebhookEvents is the subscription registered with the remote store.
var WebhookEvents = []string{
	models.EventInvoiceReceivedPayment,
	models.EventInvoicePaymentSettled,
	models.EventInvoiceProcessing,
	models.EventInvoiceExpired,
	models.EventInvoiceSettled,
	models.EventInvoiceInvalid,
}

// VerifySignature checks header against an HMAC-SHA256 of the exact body
// bytes. It fails closed on every malformed input.
func VerifySignature(body []byte, header, secret string) bool {
	if header == "" || secret == "" {
		return false
	}
	if !strings.HasPrefix(header, signaturePrefix) {
		return false
	}
	got, err := hex.DecodeString(strings.TrimPrefix(header, signaturePrefix))
	if err != nil || len(got) != sha256.Size {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), got)
}

// Sign produces the header value the remote server would send for body.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// VerifyEvent applies the source checks in order: store first, then the
// signature, then the subscription set. The returned error is for logging.
func VerifyEvent(event *models.WebhookEvent, creds models.Credentials) (bool, error) {
	if creds.StoreID == "" || event.StoreID != creds.StoreID {
		return false, &VerificationError{Kind: VerifyStoreMismatch}
	}
	if !VerifySignature(event.Raw, event.Signature, creds.WebhookSecret) {
		return false, &VerificationError{Kind: VerifyBadSignature}
	}
	if !IsSubscribedEvent(event.Type) {
		return false, &VerificationError{Kind: VerifyUnexpected}
	}
	return true, nil
}

func IsSubscribedEvent(eventType string) bool {
	for _, t := range WebhookEvents {
		if t == eventType {
			return true
		}
	}
	return false
}
