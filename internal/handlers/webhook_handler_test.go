package handlers

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akylbek/payment-system/btcpay-connector/internal/models"
	"github.com/akylbek/payment-system/btcpay-connector/internal/service"
)

const testSecret = "whsec"

var testCreds = models.Credentials{ServerURL: "https://btcpay.example", APIKey: "key", StoreID: "S1", WebhookSecret: testSecret}

func webhookRouter(p *stubProcessor, c *staticCreds) *gin.Engine {
	r := gin.New()
	r.POST("/payment/btcpay/ipn", NewWebhookHandler(c, p).HandleWebhook)
	return r
}

func postWebhook(r *gin.Engine, body []byte, sig string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/payment/btcpay/ipn", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if sig != "" {
		req.Header.Set(service.SignatureHeader, sig)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func eventBody(eventType, store string) []byte {
	return []byte(`{"deliveryId":"d1","type":"` + eventType + `","invoiceId":"abc","storeId":"` + store + `","metadata":{"orderId":"PUB7"}}`)
}

func TestWebhookProcessesVerifiedEvent(t *testing.T) {
	p := &stubProcessor{}
	body := eventBody(models.EventInvoiceSettled, "S1")

	w := postWebhook(webhookRouter(p, &staticCreds{creds: testCreds}), body, service.Sign(body, testSecret))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"processed"}`, w.Body.String())
	require.Len(t, p.events, 1)
	assert.Equal(t, "abc", p.events[0].InvoiceID)
	assert.Equal(t, body, p.events[0].Raw)
}

func TestWebhookReportsDuplicate(t *testing.T) {
	p := &stubProcessor{outcome: &service.EventOutcome{Duplicate: true}}
	body := eventBody(models.EventInvoiceSettled, "S1")

	w := postWebhook(webhookRouter(p, &staticCreds{creds: testCreds}), body, service.Sign(body, testSecret))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"duplicate"}`, w.Body.String())
}

func TestWebhookRejectsUntrustedDeliveries(t *testing.T) {
	settled := eventBody(models.EventInvoiceSettled, "S1")
	otherStore := eventBody(models.EventInvoiceSettled, "S2")

	tests := []struct {
		name string
		body []byte
		sig  string
		code int
	}{
		{"missing signature", settled, "", http.StatusUnauthorized},
		{"wrong signature", settled, service.Sign(settled, "other"), http.StatusUnauthorized},
		{"other store", otherStore, service.Sign(otherStore, testSecret), http.StatusUnauthorized},
		{"not json", []byte("not json"), service.Sign([]byte("not json"), testSecret), http.StatusBadRequest},
		{"no delivery id", []byte(`{"type":"InvoiceSettled","storeId":"S1"}`), "", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &stubProcessor{}
			w := postWebhook(webhookRouter(p, &staticCreds{creds: testCreds}), tt.body, tt.sig)

			assert.Equal(t, tt.code, w.Code)
			assert.JSONEq(t, `{"error":"invalid webhook"}`, w.Body.String())
			assert.Empty(t, p.events)
		})
	}
}

func TestWebhookRejectsUnsubscribedEvent(t *testing.T) {
	p := &stubProcessor{}
	body := eventBody(models.EventInvoiceCreated, "S1")

	w := postWebhook(webhookRouter(p, &staticCreds{creds: testCreds}), body, service.Sign(body, testSecret))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"invalid webhook"}`, w.Body.String())
	assert.Empty(t, p.events)
}

func TestWebhookProcessingFailureAsksForRedelivery(t *testing.T) {
	p := &stubProcessor{err: &service.InvoiceError{Op: "fetch_invoice", Cause: errors.New("connection refused")}}
	body := eventBody(models.EventInvoiceSettled, "S1")

	w := postWebhook(webhookRouter(p, &staticCreds{creds: testCreds}), body, service.Sign(body, testSecret))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "connection refused")
}

func TestWebhookSettingsFailure(t *testing.T) {
	p := &stubProcessor{}
	body := eventBody(models.EventInvoiceSettled, "S1")

	w := postWebhook(webhookRouter(p, &staticCreds{err: errors.New("db down")}), body, service.Sign(body, testSecret))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Empty(t, p.events)
}
