package repository

import (
	"context"
	"database/sql"

	"github.com/akylbek/payment-system/btcpay-connector/internal/config"
	"github.com/akylbek/payment-system/btcpay-connector/internal/models"
)

const (
	keyServerURL     = "btcpay.server_url"
	keyAPIKey        = "btcpay.api_key"
	keyStoreID       = "btcpay.store_id"
	keyWebhookSecret = "btcpay.webhook_secret"
)

// SettingsRepository persists the credentials written by the setup wizard.
// Keys never written fall back to the env defaults.
type SettingsRepository struct {
	db       *sql.DB
	defaults config.Settings
}

func NewSettingsRepository(db *sql.DB, defaults config.Settings) *SettingsRepository {
	return &SettingsRepository{db: db, defaults: defaults}
}

func (r *SettingsRepository) InitDB() error {
	_, err := r.db.Exec(`CREATE TABLE IF NOT EXISTS btcpay_settings (
		key VARCHAR(64) PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`)
	return err
}

func (r *SettingsRepository) Load(ctx context.Context) (models.Credentials, error) {
	creds := models.Credentials{
		ServerURL:     r.defaults.ServerURL,
		APIKey:        r.defaults.APIKey,
		StoreID:       r.defaults.StoreID,
		WebhookSecret: r.defaults.WebhookSecret,
	}

	rows, err := r.db.QueryContext(ctx, `SELECT key, value FROM btcpay_settings WHERE key LIKE 'btcpay.%'`)
	if err != nil {
		return creds, err
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return creds, err
		}
		switch key {
		case keyServerURL:
			creds.ServerURL = value
		case keyAPIKey:
			creds.APIKey = value
		case keyStoreID:
			creds.StoreID = value
		case keyWebhookSecret:
			creds.WebhookSecret = value
		}
	}
	return creds, rows.Err()
}

// SaveCredentials writes the server URL together with the key it was
// granted on, in one transaction.
func (r *SettingsRepository) SaveCredentials(ctx context.Context, serverURL, apiKey, storeID string) error {
	return r.save(ctx, map[string]string{keyServerURL: serverURL, keyAPIKey: apiKey, keyStoreID: storeID})
}

func (r *SettingsRepository) SaveWebhookSecret(ctx context.Context, secret string) error {
	return r.save(ctx, map[string]string{keyWebhookSecret: secret})
}

func (r *SettingsRepository) save(ctx context.Context, values map[string]string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for key, value := range values {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO btcpay_settings (key, value, updated_at)
			VALUES ($1, $2, NOW())
			ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
		`, key, value); err != nil {
			return err
		}
	}
	return tx.Commit()
}
