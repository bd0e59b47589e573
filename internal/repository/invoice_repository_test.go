package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akylbek/payment-system/btcpay-connector/internal/models"
)

func TestFindByPublicID(t *testing.T) {
	db, mock := newMock(t)
	repo := NewInvoiceRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE i.public_id = $1")).
		WithArgs("PUB7").
		WillReturnRows(sqlmock.NewRows([]string{
			"invoice_id", "public_id", "secure_id", "user_id", "email", "name", "country",
			"currency", "first_total", "first_tax", "second_total", "second_tax", "status", "description", "count",
		}).AddRow(7, "PUB7", "sec7", 3, "payer@example.com", "Pat", "DE",
			"USD", "19.99", "0", "9.99", "0", "PENDING", "Gold membership", 0))
	mock.ExpectQuery(regexp.QuoteMeta("FROM invoice_items WHERE invoice_id = $1")).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"item_title", "currency", "qty", "first_total", "second_total"}).
			AddRow("Gold", "USD", 1, "19.99", "9.99"))
	mock.ExpectQuery(regexp.QuoteMeta("FROM products p")).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"title", "btcpay_txspeed"}).
			AddRow("Gold", models.SpeedLow))

	inv, err := repo.FindByPublicID(context.Background(), "PUB7")
	require.NoError(t, err)

	assert.Equal(t, int64(7), inv.InvoiceID)
	assert.Equal(t, models.InvoicePending, inv.Status)
	assert.True(t, inv.IsFirstPayment())
	assert.True(t, inv.DueAmount().Equal(decimal.RequireFromString("19.99")))
	require.Len(t, inv.Items, 1)
	assert.Equal(t, 1, inv.Items[0].Qty)
	assert.Equal(t, []models.Product{{Title: "Gold", TxSpeed: models.SpeedLow}}, inv.Products)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindBySecureIDNotFound(t *testing.T) {
	db, mock := newMock(t)
	repo := NewInvoiceRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE i.secure_id = $1")).
		WithArgs("nope").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindBySecureID(context.Background(), "nope")
	assert.ErrorIs(t, err, models.ErrInvoiceNotFound)
}
