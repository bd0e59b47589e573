package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"github.com/akylbek/payment-system/btcpay-connector/internal/interfaces"
	"github.com/akylbek/payment-system/btcpay-connector/internal/models"
)

// --- Stateful fakes ---

type memoryLedger struct {
	mu         sync.Mutex
	deliveries map[string]string
	payments   map[string]*models.LocalPayment
	grants     map[string]*models.AccessGrant
	refunds    []*models.RefundRecord
	notes      map[int64][]string

	recordErr error
	grantErr  error
	refundErr error
	released  []string
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{
		deliveries: make(map[string]string),
		payments:   make(map[string]*models.LocalPayment),
		grants:     make(map[string]*models.AccessGrant),
		notes:      make(map[int64][]string),
	}
}

func (l *memoryLedger) ClaimDelivery(_ context.Context, deliveryID, eventType string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.deliveries[deliveryID]; ok {
		return false, nil
	}
	l.deliveries[deliveryID] = eventType
	return true, nil
}

func (l *memoryLedger) ReleaseDelivery(_ context.Context, deliveryID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.deliveries, deliveryID)
	l.released = append(l.released, deliveryID)
	return nil
}

func (l *memoryLedger) RecordPayment(_ context.Context, payment *models.LocalPayment) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.recordErr != nil {
		return false, l.recordErr
	}
	if _, ok := l.payments[payment.ReceiptID]; ok {
		return false, nil
	}
	l.payments[payment.ReceiptID] = payment
	return true, nil
}

func (l *memoryLedger) GrantAccess(_ context.Context, grant *models.AccessGrant) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.grantErr != nil {
		return false, l.grantErr
	}
	if _, ok := l.grants[grant.ReceiptID]; ok {
		return false, nil
	}
	l.grants[grant.ReceiptID] = grant
	return true, nil
}

func (l *memoryLedger) RecordRefund(_ context.Context, refund *models.RefundRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.refundErr != nil {
		return l.refundErr
	}
	l.refunds = append(l.refunds, refund)
	return nil
}

func (l *memoryLedger) AddUserNote(_ context.Context, userID int64, content string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.notes[userID] = append(l.notes[userID], content)
	return nil
}

func (l *memoryLedger) noteCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, notes := range l.notes {
		n += len(notes)
	}
	return n
}

type memoryInvoices struct {
	byID map[int64]*models.LocalInvoice
}

func newMemoryInvoices(invoices ...*models.LocalInvoice) *memoryInvoices {
	s := &memoryInvoices{byID: make(map[int64]*models.LocalInvoice)}
	for _, inv := range invoices {
		s.byID[inv.InvoiceID] = inv
	}
	return s
}

func (s *memoryInvoices) FindByID(_ context.Context, invoiceID int64) (*models.LocalInvoice, error) {
	if inv, ok := s.byID[invoiceID]; ok {
		return inv, nil
	}
	return nil, ErrInvoiceNotFound
}

func (s *memoryInvoices) FindByPublicID(_ context.Context, publicID string) (*models.LocalInvoice, error) {
	for _, inv := range s.byID {
		if inv.PublicID == publicID {
			return inv, nil
		}
	}
	return nil, ErrInvoiceNotFound
}

func (s *memoryInvoices) FindBySecureID(_ context.Context, secureID string) (*models.LocalInvoice, error) {
	for _, inv := range s.byID {
		if inv.SecureID == secureID {
			return inv, nil
		}
	}
	return nil, ErrInvoiceNotFound
}

type memoryCredentials struct {
	creds   models.Credentials
	loadErr error
	saves   int
}

func (c *memoryCredentials) Load(context.Context) (models.Credentials, error) {
	return c.creds, c.loadErr
}

func (c *memoryCredentials) SaveCredentials(_ context.Context, serverURL, apiKey, storeID string) error {
	c.saves++
	c.creds.ServerURL = serverURL
	c.creds.APIKey = apiKey
	c.creds.StoreID = storeID
	return nil
}

func (c *memoryCredentials) SaveWebhookSecret(_ context.Context, secret string) error {
	c.saves++
	c.creds.WebhookSecret = secret
	return nil
}

type memoryNonces struct {
	sessions map[string]models.SetupSession
}

func newMemoryNonces() *memoryNonces {
	return &memoryNonces{sessions: make(map[string]models.SetupSession)}
}

func (n *memoryNonces) Issue(_ context.Context, sessionID string, session models.SetupSession, _ time.Duration) error {
	n.sessions[sessionID] = session
	return nil
}

func (n *memoryNonces) Consume(_ context.Context, sessionID string) (*models.SetupSession, error) {
	session, ok := n.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	delete(n.sessions, sessionID)
	return &session, nil
}

type recordingPublisher struct {
	events []models.DomainEvent
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, event models.DomainEvent) error {
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []string {
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

// fakeStore is an in-memory remote store: it keeps webhooks and serves
// canned invoices.
type fakeStore struct {
	mu       sync.Mutex
	webhooks []models.StoreWebhook
	invoices map[string]*models.RemoteInvoice
	created  []*models.CreateInvoiceBody
	nextID   int
	apiKeys  []string
	servers  []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{invoices: make(map[string]*models.RemoteInvoice)}
}

func (s *fakeStore) factory() interfaces.ClientFactory {
	return func(serverURL, apiKey string) interfaces.GreenfieldClient {
		s.mu.Lock()
		s.servers = append(s.servers, serverURL)
		s.apiKeys = append(s.apiKeys, apiKey)
		s.mu.Unlock()
		return s
	}
}

func (s *fakeStore) CreateInvoice(_ context.Context, storeID string, body *models.CreateInvoiceBody) (*models.RemoteInvoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.created = append(s.created, body)
	inv := &models.RemoteInvoice{
		ID:           fmt.Sprintf("inv%d", s.nextID),
		StoreID:      storeID,
		Currency:     body.Currency,
		Amount:       body.Amount,
		Status:       models.RemoteNew,
		CheckoutLink: fmt.Sprintf("https://pay.example/i/inv%d", s.nextID),
	}
	s.invoices[inv.ID] = inv
	return inv, nil
}

func (s *fakeStore) GetInvoice(_ context.Context, _, invoiceID string) (*models.RemoteInvoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if inv, ok := s.invoices[invoiceID]; ok {
		return inv, nil
	}
	return nil, fmt.Errorf("invoice %s not found", invoiceID)
}

func (s *fakeStore) RefundInvoice(_ context.Context, _, invoiceID string, _ *models.RefundInvoiceBody) (*models.RefundResult, error) {
	return &models.RefundResult{ID: "pp-" + invoiceID, ViewLink: "https://pay.example/pp/" + invoiceID}, nil
}

func (s *fakeStore) ListWebhooks(context.Context, string) ([]models.StoreWebhook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.StoreWebhook(nil), s.webhooks...), nil
}

func (s *fakeStore) CreateWebhook(_ context.Context, _ string, body *models.CreateWebhookBody) (*models.StoreWebhook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	hook := models.StoreWebhook{
		ID:                  fmt.Sprintf("wh%d", s.nextID),
		URL:                 body.URL,
		Enabled:             body.Enabled,
		AutomaticRedelivery: body.AutomaticRedelivery,
		Secret:              fmt.Sprintf("secret%d", s.nextID),
		AuthorizedEvents:    body.AuthorizedEvents,
	}
	s.webhooks = append(s.webhooks, hook)
	return &hook, nil
}

func (s *fakeStore) DeleteWebhook(_ context.Context, _, webhookID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, h := range s.webhooks {
		if h.ID == webhookID {
			s.webhooks = append(s.webhooks[:i], s.webhooks[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("webhook %s not found", webhookID)
}

// --- Mock Implementations ---

type MockInvoiceFetcher struct {
	mock.Mock
}

func (m *MockInvoiceFetcher) FetchInvoice(ctx context.Context, storeID, invoiceID string) (*models.RemoteInvoice, error) {
	args := m.Called(ctx, storeID, invoiceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RemoteInvoice), args.Error(1)
}

type MockInvoiceRefunder struct {
	mock.Mock
}

func (m *MockInvoiceRefunder) RefundInvoice(ctx context.Context, storeID, receiptID string, reductionPercent, amount decimal.Decimal, currency string) (*models.RefundResult, error) {
	args := m.Called(ctx, storeID, receiptID, reductionPercent, amount, currency)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RefundResult), args.Error(1)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) SendRefundLink(ctx context.Context, invoice *models.LocalInvoice, claimLink string) error {
	args := m.Called(ctx, invoice, claimLink)
	return args.Error(0)
}

type MockGreenfieldClient struct {
	mock.Mock
}

func (m *MockGreenfieldClient) CreateInvoice(ctx context.Context, storeID string, body *models.CreateInvoiceBody) (*models.RemoteInvoice, error) {
	args := m.Called(ctx, storeID, body)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RemoteInvoice), args.Error(1)
}

func (m *MockGreenfieldClient) GetInvoice(ctx context.Context, storeID, invoiceID string) (*models.RemoteInvoice, error) {
	args := m.Called(ctx, storeID, invoiceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RemoteInvoice), args.Error(1)
}

func (m *MockGreenfieldClient) RefundInvoice(ctx context.Context, storeID, invoiceID string, body *models.RefundInvoiceBody) (*models.RefundResult, error) {
	args := m.Called(ctx, storeID, invoiceID, body)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RefundResult), args.Error(1)
}

func (m *MockGreenfieldClient) ListWebhooks(ctx context.Context, storeID string) ([]models.StoreWebhook, error) {
	args := m.Called(ctx, storeID)
	return args.Get(0).([]models.StoreWebhook), args.Error(1)
}

func (m *MockGreenfieldClient) CreateWebhook(ctx context.Context, storeID string, body *models.CreateWebhookBody) (*models.StoreWebhook, error) {
	args := m.Called(ctx, storeID, body)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.StoreWebhook), args.Error(1)
}

func (m *MockGreenfieldClient) DeleteWebhook(ctx context.Context, storeID, webhookID string) error {
	args := m.Called(ctx, storeID, webhookID)
	return args.Error(0)
}

// --- Fixtures ---

func paidInvoice() *models.LocalInvoice {
	return &models.LocalInvoice{
		InvoiceID:   7,
		PublicID:    "PUB7",
		SecureID:    "sec7",
		UserID:      3,
		UserEmail:   "payer@example.com",
		Currency:    "USD",
		FirstTotal:  decimal.RequireFromString("19.99"),
		SecondTotal: decimal.RequireFromString("9.99"),
		Status:      models.InvoicePending,
		Products:    []models.Product{{Title: "Gold"}},
	}
}

func freeTrialInvoice() *models.LocalInvoice {
	inv := paidInvoice()
	inv.InvoiceID = 8
	inv.PublicID = "PUB8"
	inv.SecureID = "sec8"
	inv.FirstTotal = decimal.Zero
	return inv
}
