package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/btcpay-connector/internal/btcpay"
	"github.com/akylbek/payment-system/btcpay-connector/internal/config"
	"github.com/akylbek/payment-system/btcpay-connector/internal/interfaces"
	"github.com/akylbek/payment-system/btcpay-connector/internal/models"
)

const (
	SingleStoreWarning = "Please make sure you only select one store on the BTCPay API authorization page."
	NonceParam         = "btcpay_auth"
	applicationID      = "btcpay-connector"
)

type SetupOptions struct {
	ApplicationName string
	// CallbackURL is where the remote server posts the authorization result.
	CallbackURL string
	// WebhookURL is this service's webhook endpoint.
	WebhookURL string
	NonceTTL   time.Duration
	Timeout    time.Duration
}

// Grant is the payload of the authorization callback.
type Grant struct {
	APIKey      string
	Permissions []string
}

type SetupResult struct {
	Warning        string
	StoreID        string
	WebhookID      string
	RefundsEnabled bool
}

// SetupWizardCoordinator runs the one-time onboarding.
type SetupWizardCoordinator struct {
	creds     interfaces.CredentialStore
	nonces    interfaces.NonceStore
	newClient interfaces.ClientFactory
	opts      SetupOptions
	logger    *zap.Logger
}

func NewSetupWizardCoordinator(creds interfaces.CredentialStore, nonces interfaces.NonceStore, newClient interfaces.ClientFactory, opts SetupOptions, logger *zap.Logger) *SetupWizardCoordinator {
	if opts.NonceTTL <= 0 {
		opts.NonceTTL = 15 * time.Minute
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	return &SetupWizardCoordinator{
		creds:     creds,
		nonces:    nonces,
		newClient: newClient,
		opts:      opts,
		logger:    logger,
	}
}

// Begin issues a nonce for sessionID and returns the authorization URL to
// send the admin to. serverURL stays pending until Complete accepts a grant.
func (s *SetupWizardCoordinator) Begin(ctx context.Context, sessionID, serverURL string) (string, error) {
	if !config.ValidServerURL(serverURL) {
		return "", ErrInvalidServerURL
	}

	nonce := uuid.NewString()
	pending := models.SetupSession{Nonce: nonce, ServerURL: serverURL}
	if err := s.nonces.Issue(ctx, sessionID, pending, s.opts.NonceTTL); err != nil {
		return "", fmt.Errorf("issue nonce: %w", err)
	}

	redirect, err := withQuery(s.opts.CallbackURL, NonceParam, nonce)
	if err != nil {
		return "", err
	}

	permissions := append(append([]string{}, RequiredPermissions...), OptionalPermissions...)
	return btcpay.AuthorizeURL(serverURL, permissions, s.opts.ApplicationName, redirect, applicationID), nil
}

// Complete handles the authorization callback. A bad grant yields a
// warning and nothing is persisted.
func (s *SetupWizardCoordinator) Complete(ctx context.Context, sessionID, nonce string, grant Grant) (*SetupResult, error) {
	pending, err := s.nonces.Consume(ctx, sessionID)
	if err != nil || pending == nil || pending.Nonce == "" ||
		subtle.ConstantTimeCompare([]byte(pending.Nonce), []byte(nonce)) != 1 {
		return nil, ErrInvalidNonce
	}

	s.logger.Debug("Setup wizard response", zap.Strings("permissions", grant.Permissions))

	validator := NewScopeValidator(grant.Permissions)
	storeID, err := validator.Validate()
	if err == nil && grant.APIKey == "" {
		err = &ScopeError{Kind: ScopeIncompleteGrant}
	}
	if err != nil {
		s.logger.Warn("Rejected authorization grant", zap.Error(err))
		return &SetupResult{Warning: SingleStoreWarning}, nil
	}

	if err := s.creds.SaveCredentials(ctx, pending.ServerURL, grant.APIKey, storeID); err != nil {
		return nil, fmt.Errorf("save credentials: %w", err)
	}

	hook, err := s.RegisterWebhook(ctx, s.newClient(pending.ServerURL, grant.APIKey), storeID)
	if err != nil {
		return nil, err
	}
	if err := s.creds.SaveWebhookSecret(ctx, hook.Secret); err != nil {
		return nil, fmt.Errorf("save webhook secret: %w", err)
	}

	s.logger.Info("BTCPay setup completed",
		zap.String("store_id", storeID),
		zap.String("webhook_id", hook.ID),
		zap.Bool("refunds", validator.HasRefundsPermission()),
	)
	return &SetupResult{
		StoreID:        storeID,
		WebhookID:      hook.ID,
		RefundsEnabled: validator.HasRefundsPermission(),
	}, nil
}

// RegisterWebhook deletes every webhook already pointing at our URL and
// creates one fresh subscription, so repeated runs leave exactly one.
func (s *SetupWizardCoordinator) RegisterWebhook(ctx context.Context, client interfaces.GreenfieldClient, storeID string) (*models.StoreWebhook, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	hooks, err := client.ListWebhooks(ctx, storeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list webhooks: %w", err)
	}
	for _, h := range hooks {
		if h.URL != s.opts.WebhookURL {
			continue
		}
		if err := client.DeleteWebhook(ctx, storeID, h.ID); err != nil {
			return nil, fmt.Errorf("failed to delete old webhook %s: %w", h.ID, err)
		}
	}

	hook, err := client.CreateWebhook(ctx, storeID, &models.CreateWebhookBody{
		URL:                 s.opts.WebhookURL,
		Enabled:             true,
		AutomaticRedelivery: true,
		AuthorizedEvents: models.AuthorizedEvents{
			SpecificEvents: WebhookEvents,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create webhook: %w", err)
	}
	if hook.Secret == "" {
		return nil, errors.New("created webhook has no secret")
	}
	return hook, nil
}

func withQuery(raw, key, value string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("callback url: %w", err)
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
