package handlers

import (
	"context"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/akylbek/payment-system/btcpay-connector/internal/models"
	"github.com/akylbek/payment-system/btcpay-connector/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type staticCreds struct {
	creds models.Credentials
	err   error
}

func (s *staticCreds) Load(context.Context) (models.Credentials, error) {
	return s.creds, s.err
}

func (s *staticCreds) SaveCredentials(context.Context, string, string, string) error {
	return nil
}

func (s *staticCreds) SaveWebhookSecret(context.Context, string) error {
	return nil
}

type stubProcessor struct {
	outcome *service.EventOutcome
	err     error
	events  []*models.WebhookEvent
}

func (p *stubProcessor) Process(_ context.Context, event *models.WebhookEvent) (*service.EventOutcome, error) {
	p.events = append(p.events, event)
	if p.err != nil {
		return nil, p.err
	}
	if p.outcome == nil {
		return &service.EventOutcome{}, nil
	}
	return p.outcome, nil
}

type stubCheckout struct {
	result  *service.CheckoutResult
	err     error
	outcome service.ReturnOutcome
}

func (s *stubCheckout) Initiate(context.Context, string) (*service.CheckoutResult, error) {
	return s.result, s.err
}

func (s *stubCheckout) ResolveReturn(context.Context, string, string) service.ReturnOutcome {
	return s.outcome
}

type stubSetup struct {
	authURL string
	result  *service.SetupResult
	err     error

	sessionID string
	nonce     string
	grant     service.Grant
}

func (s *stubSetup) Begin(_ context.Context, sessionID, _ string) (string, error) {
	s.sessionID = sessionID
	return s.authURL, s.err
}

func (s *stubSetup) Complete(_ context.Context, sessionID, nonce string, grant service.Grant) (*service.SetupResult, error) {
	s.sessionID = sessionID
	s.nonce = nonce
	s.grant = grant
	return s.result, s.err
}

type stubPayments struct {
	payments map[string]*models.LocalPayment
}

func (s *stubPayments) GetPayment(_ context.Context, receiptID string) (*models.LocalPayment, error) {
	if p, ok := s.payments[receiptID]; ok {
		return p, nil
	}
	return nil, service.ErrPaymentNotFound
}

type stubRefunder struct {
	err   error
	calls int
}

func (r *stubRefunder) Refund(_ context.Context, payment *models.LocalPayment, amount decimal.Decimal) (*models.RefundRecord, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return &models.RefundRecord{
		SourceReceiptID: payment.ReceiptID,
		ReceiptID:       payment.ReceiptID + "-btcpay-refund",
		RequestedAmount: amount,
		ClaimLink:       "https://pay.example/pp1",
		Status:          models.RefundClaimLinkIssued,
	}, nil
}

type memoryGuard struct {
	mu   sync.Mutex
	held map[string]bool
}

func newMemoryGuard() *memoryGuard {
	return &memoryGuard{held: make(map[string]bool)}
}

func (g *memoryGuard) Acquire(_ context.Context, receiptID string, amount decimal.Decimal) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	key := receiptID + ":" + amount.String()
	if g.held[key] {
		return false, nil
	}
	g.held[key] = true
	return true, nil
}

func (g *memoryGuard) Release(_ context.Context, receiptID string, amount decimal.Decimal) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.held, receiptID+":"+amount.String())
	return nil
}
