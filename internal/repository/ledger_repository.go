package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/akylbek/payment-system/btcpay-connector/internal/models"
)

// LedgerRepository keeps payments, access grants, refunds, notes and the
// webhook delivery log. Uniqueness on receipt_id and delivery_id is what
// makes concurrent redeliveries safe.
type LedgerRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewLedgerRepository(db *sql.DB) *LedgerRepository {
	return &LedgerRepository{db: db, now: time.Now}
}

func (r *LedgerRepository) InitDB() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS btcpay_webhook_deliveries (
			delivery_id VARCHAR(255) PRIMARY KEY,
			event_type VARCHAR(64) NOT NULL,
			received_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS btcpay_payments (
			receipt_id VARCHAR(255) PRIMARY KEY,
			invoice_id BIGINT NOT NULL,
			user_id BIGINT NOT NULL,
			amount NUMERIC(20, 8) NOT NULL,
			currency VARCHAR(8) NOT NULL,
			linked_invoice_id VARCHAR(255) NOT NULL,
			external_event_id VARCHAR(255) NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_btcpay_payments_invoice ON btcpay_payments(invoice_id)`,
		`CREATE TABLE IF NOT EXISTS btcpay_access_grants (
			receipt_id VARCHAR(255) PRIMARY KEY,
			invoice_id BIGINT NOT NULL,
			user_id BIGINT NOT NULL,
			event_id VARCHAR(255),
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS btcpay_refunds (
			id VARCHAR(64) PRIMARY KEY,
			source_receipt_id VARCHAR(255) NOT NULL,
			receipt_id VARCHAR(255) NOT NULL,
			remote_refund_id VARCHAR(255) NOT NULL,
			invoice_id BIGINT NOT NULL,
			amount NUMERIC(20, 8) NOT NULL,
			currency VARCHAR(8) NOT NULL,
			reduction_percent NUMERIC(5, 2) NOT NULL,
			claim_link TEXT NOT NULL,
			status VARCHAR(32) NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS user_notes (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, query := range queries {
		if _, err := r.db.Exec(query); err != nil {
			return err
		}
	}

	return nil
}

func (r *LedgerRepository) ClaimDelivery(ctx context.Context, deliveryID, eventType string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO btcpay_webhook_deliveries (delivery_id, event_type)
		VALUES ($1, $2)
		ON CONFLICT (delivery_id) DO NOTHING
	`, deliveryID, eventType)
	return inserted(result, err)
}

func (r *LedgerRepository) ReleaseDelivery(ctx context.Context, deliveryID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM btcpay_webhook_deliveries WHERE delivery_id = $1`, deliveryID)
	return err
}

func (r *LedgerRepository) RecordPayment(ctx context.Context, p *models.LocalPayment) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO btcpay_payments (receipt_id, invoice_id, user_id, amount, currency, linked_invoice_id, external_event_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (receipt_id) DO NOTHING
	`, p.ReceiptID, p.InvoiceID, p.UserID, p.Amount, p.Currency, p.LinkedInvoiceID, p.ExternalEventID, p.CreatedAt)
	return inserted(result, err)
}

func (r *LedgerRepository) GrantAccess(ctx context.Context, g *models.AccessGrant) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO btcpay_access_grants (receipt_id, invoice_id, user_id, event_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (receipt_id) DO NOTHING
	`, g.ReceiptID, g.InvoiceID, g.UserID, g.EventID)
	return inserted(result, err)
}

func (r *LedgerRepository) RecordRefund(ctx context.Context, rf *models.RefundRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO btcpay_refunds (id, source_receipt_id, receipt_id, remote_refund_id, invoice_id, amount, currency, reduction_percent, claim_link, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, rf.ID, rf.SourceReceiptID, rf.ReceiptID, rf.RemoteRefundID, rf.InvoiceID, rf.RequestedAmount, rf.Currency, rf.ReductionPercent, rf.ClaimLink, rf.Status, rf.CreatedAt)
	return err
}

func (r *LedgerRepository) AddUserNote(ctx context.Context, userID int64, content string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO user_notes (user_id, content, created_at) VALUES ($1, $2, $3)`, userID, content, r.now())
	return err
}

func (r *LedgerRepository) GetPayment(ctx context.Context, receiptID string) (*models.LocalPayment, error) {
	var p models.LocalPayment
	err := r.db.QueryRowContext(ctx, `
		SELECT receipt_id, invoice_id, user_id, amount, currency, linked_invoice_id, external_event_id, created_at
		FROM btcpay_payments WHERE receipt_id = $1
	`, receiptID).Scan(&p.ReceiptID, &p.InvoiceID, &p.UserID, &p.Amount, &p.Currency, &p.LinkedInvoiceID, &p.ExternalEventID, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func inserted(result sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
