package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/btcpay-connector/internal/config"
	"github.com/akylbek/payment-system/btcpay-connector/internal/interfaces"
	"github.com/akylbek/payment-system/btcpay-connector/internal/service"
	"github.com/akylbek/payment-system/btcpay-connector/internal/telemetry"
)

const (
	setupCookie     = "btcpay_setup"
	setupCookiePath = "/admin/btcpay"
	setupCookieTTL  = 15 * 60
)

type SetupFlow interface {
	Begin(ctx context.Context, sessionID, serverURL string) (string, error)
	Complete(ctx context.Context, sessionID, nonce string, grant service.Grant) (*service.SetupResult, error)
}

type SetupHandler struct {
	flow     SetupFlow
	creds    interfaces.CredentialStore
	adminURL string
}

func NewSetupHandler(flow SetupFlow, creds interfaces.CredentialStore, adminURL string) *SetupHandler {
	return &SetupHandler{flow: flow, creds: creds, adminURL: adminURL}
}

// Begin sends the admin to the remote authorization page. Without a
// server_url it reports the current setup state instead.
func (h *SetupHandler) Begin(c *gin.Context) {
	serverURL := c.Query("server_url")
	if serverURL == "" {
		h.status(c)
		return
	}

	sessionID, err := c.Cookie(setupCookie)
	if err != nil || sessionID == "" {
		sessionID = uuid.NewString()
	}
	// The callback arrives as a cross-site POST from the remote server.
	c.SetSameSite(http.SameSiteNoneMode)
	c.SetCookie(setupCookie, sessionID, setupCookieTTL, setupCookiePath, "", true, true)

	authURL, err := h.flow.Begin(c.Request.Context(), sessionID, serverURL)
	if errors.Is(err, service.ErrInvalidServerURL) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Please enter a valid URL including https:// in the BTCPay Server URL input field."})
		return
	}
	if err != nil {
		telemetry.Logger.Error("Failed to start BTCPay setup", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start setup"})
		return
	}

	c.Redirect(http.StatusFound, authURL)
}

func (h *SetupHandler) Callback(c *gin.Context) {
	sessionID, _ := c.Cookie(setupCookie)

	permissions := c.PostFormArray("permissions[]")
	if len(permissions) == 0 {
		permissions = c.PostFormArray("permissions")
	}
	grant := service.Grant{
		APIKey:      c.PostForm("apiKey"),
		Permissions: permissions,
	}

	res, err := h.flow.Complete(c.Request.Context(), sessionID, c.Query(service.NonceParam), grant)
	if errors.Is(err, service.ErrInvalidNonce) {
		telemetry.Logger.Warn("Setup callback with invalid nonce", zap.String("remote_addr", c.ClientIP()))
		c.JSON(http.StatusForbidden, gin.H{"error": "Invalid setup request"})
		return
	}
	if err != nil {
		telemetry.Logger.Error("BTCPay setup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Setup failed"})
		return
	}

	c.SetCookie(setupCookie, "", -1, setupCookiePath, "", true, true)

	q := url.Values{}
	if res.Warning != "" {
		q.Set("warning", res.Warning)
	} else {
		q.Set("configured", "1")
	}
	c.Redirect(http.StatusFound, h.adminURL+"?"+q.Encode())
}

func (h *SetupHandler) status(c *gin.Context) {
	creds, err := h.creds.Load(c.Request.Context())
	if err != nil {
		telemetry.Logger.Error("Failed to load BTCPay settings", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load settings"})
		return
	}

	settings := config.Settings{
		ServerURL:     creds.ServerURL,
		APIKey:        creds.APIKey,
		StoreID:       creds.StoreID,
		WebhookSecret: creds.WebhookSecret,
	}
	c.JSON(http.StatusOK, gin.H{
		"configured": settings.Configured(),
		"server_url": creds.ServerURL,
		"store_id":   creds.StoreID,
		"warning":    c.Query("warning"),
	})
}
