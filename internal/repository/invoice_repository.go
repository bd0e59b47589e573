package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/akylbek/payment-system/btcpay-connector/internal/models"
)

// InvoiceRepository reads the billing platform's invoices. It never writes
// them; payments go through LedgerRepository.
type InvoiceRepository struct {
	db *sql.DB
}

func NewInvoiceRepository(db *sql.DB) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

const invoiceSelect = `
	SELECT i.invoice_id, i.public_id, i.secure_id, i.user_id, u.email, u.name, u.country,
		i.currency, i.first_total, i.first_tax, i.second_total, i.second_tax, i.status, i.description,
		(SELECT COUNT(*) FROM btcpay_payments p WHERE p.invoice_id = i.invoice_id)
	FROM invoices i
	JOIN users u ON u.user_id = i.user_id
`

func (r *InvoiceRepository) FindByID(ctx context.Context, invoiceID int64) (*models.LocalInvoice, error) {
	return r.findOne(ctx, invoiceSelect+` WHERE i.invoice_id = $1`, invoiceID)
}

func (r *InvoiceRepository) FindByPublicID(ctx context.Context, publicID string) (*models.LocalInvoice, error) {
	return r.findOne(ctx, invoiceSelect+` WHERE i.public_id = $1`, publicID)
}

func (r *InvoiceRepository) FindBySecureID(ctx context.Context, secureID string) (*models.LocalInvoice, error) {
	return r.findOne(ctx, invoiceSelect+` WHERE i.secure_id = $1`, secureID)
}

func (r *InvoiceRepository) findOne(ctx context.Context, query string, arg interface{}) (*models.LocalInvoice, error) {
	var inv models.LocalInvoice
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&inv.InvoiceID, &inv.PublicID, &inv.SecureID, &inv.UserID, &inv.UserEmail, &inv.UserName, &inv.UserCountry,
		&inv.Currency, &inv.FirstTotal, &inv.FirstTax, &inv.SecondTotal, &inv.SecondTax, &inv.Status, &inv.Description,
		&inv.PaymentCount,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrInvoiceNotFound
	}
	if err != nil {
		return nil, err
	}

	if inv.Items, err = r.items(ctx, inv.InvoiceID); err != nil {
		return nil, err
	}
	if inv.Products, err = r.products(ctx, inv.InvoiceID); err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *InvoiceRepository) items(ctx context.Context, invoiceID int64) ([]models.InvoiceItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT item_title, currency, qty, first_total, second_total
		FROM invoice_items WHERE invoice_id = $1 ORDER BY item_id
	`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.InvoiceItem
	for rows.Next() {
		var it models.InvoiceItem
		if err := rows.Scan(&it.Title, &it.Currency, &it.Qty, &it.FirstTotal, &it.SecondTotal); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *InvoiceRepository) products(ctx context.Context, invoiceID int64) ([]models.Product, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT p.title, COALESCE(p.btcpay_txspeed, '')
		FROM products p
		JOIN invoice_items it ON it.product_id = p.product_id
		WHERE it.invoice_id = $1 ORDER BY it.item_id
	`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		var p models.Product
		if err := rows.Scan(&p.Title, &p.TxSpeed); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}
