package interfaces

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/akylbek/payment-system/btcpay-connector/internal/models"
)

// Ledger is the billing platform's bookkeeping. Insert methods are
// insert-if-absent and report whether a row was written.
type Ledger interface {
	ClaimDelivery(ctx context.Context, deliveryID, eventType string) (bool, error)
	ReleaseDelivery(ctx context.Context, deliveryID string) error
	RecordPayment(ctx context.Context, payment *models.LocalPayment) (bool, error)
	GrantAccess(ctx context.Context, grant *models.AccessGrant) (bool, error)
	RecordRefund(ctx context.Context, refund *models.RefundRecord) error
	AddUserNote(ctx context.Context, userID int64, content string) error
}

type PaymentStore interface {
	GetPayment(ctx context.Context, receiptID string) (*models.LocalPayment, error)
}

type InvoiceStore interface {
	FindByID(ctx context.Context, invoiceID int64) (*models.LocalInvoice, error)
	FindByPublicID(ctx context.Context, publicID string) (*models.LocalInvoice, error)
	FindBySecureID(ctx context.Context, secureID string) (*models.LocalInvoice, error)
}

type CredentialStore interface {
	Load(ctx context.Context) (models.Credentials, error)
	SaveCredentials(ctx context.Context, serverURL, apiKey, storeID string) error
	SaveWebhookSecret(ctx context.Context, secret string) error
}

// GreenfieldClient is the remote REST API bound to one server and API key.
type GreenfieldClient interface {
	CreateInvoice(ctx context.Context, storeID string, body *models.CreateInvoiceBody) (*models.RemoteInvoice, error)
	GetInvoice(ctx context.Context, storeID, invoiceID string) (*models.RemoteInvoice, error)
	RefundInvoice(ctx context.Context, storeID, invoiceID string, body *models.RefundInvoiceBody) (*models.RefundResult, error)
	ListWebhooks(ctx context.Context, storeID string) ([]models.StoreWebhook, error)
	CreateWebhook(ctx context.Context, storeID string, body *models.CreateWebhookBody) (*models.StoreWebhook, error)
	DeleteWebhook(ctx context.Context, storeID, webhookID string) error
}

type ClientFactory func(serverURL, apiKey string) GreenfieldClient

type Notifier interface {
	SendRefundLink(ctx context.Context, invoice *models.LocalInvoice, claimLink string) error
}

type EventPublisher interface {
	Publish(ctx context.Context, key string, event models.DomainEvent) error
}

// NonceStore binds a single-use setup session to a browser session.
// Consume returns nil when nothing is pending.
type NonceStore interface {
	Issue(ctx context.Context, sessionID string, session models.SetupSession, ttl time.Duration) error
	Consume(ctx context.Context, sessionID string) (*models.SetupSession, error)
}

// RefundGuard allows at most one refund attempt per receipt and amount.
type RefundGuard interface {
	Acquire(ctx context.Context, receiptID string, amount decimal.Decimal) (bool, error)
	Release(ctx context.Context, receiptID string, amount decimal.Decimal) error
}
