package btcpay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/akylbek/payment-system/btcpay-connector/internal/interfaces"
	"github.com/akylbek/payment-system/btcpay-connector/internal/models"
)

// APIError is a non-2xx answer from the Greenfield API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("greenfield api: %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("greenfield api: %d: %s", e.StatusCode, e.Message)
}

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(serverURL, apiKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimRight(serverURL, "/"),
		apiKey:     apiKey,
		httpClient: httpClient,
	}
}

// Factory binds new clients to a shared transport.
func Factory(httpClient *http.Client) interfaces.ClientFactory {
	return func(serverURL, apiKey string) interfaces.GreenfieldClient {
		return NewClient(serverURL, apiKey, httpClient)
	}
}

func (c *Client) CreateInvoice(ctx context.Context, storeID string, body *models.CreateInvoiceBody) (*models.RemoteInvoice, error) {
	var inv models.RemoteInvoice
	if err := c.do(ctx, http.MethodPost, storePath(storeID, "invoices"), body, &inv); err != nil {
		return nil, err
	}
	return &inv, nil
}

func (c *Client) GetInvoice(ctx context.Context, storeID, invoiceID string) (*models.RemoteInvoice, error) {
	var inv models.RemoteInvoice
	if err := c.do(ctx, http.MethodGet, storePath(storeID, "invoices", invoiceID), nil, &inv); err != nil {
		return nil, err
	}
	return &inv, nil
}

func (c *Client) RefundInvoice(ctx context.Context, storeID, invoiceID string, body *models.RefundInvoiceBody) (*models.RefundResult, error) {
	var res models.RefundResult
	if err := c.do(ctx, http.MethodPost, storePath(storeID, "invoices", invoiceID, "refund"), body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) ListWebhooks(ctx context.Context, storeID string) ([]models.StoreWebhook, error) {
	var hooks []models.StoreWebhook
	if err := c.do(ctx, http.MethodGet, storePath(storeID, "webhooks"), nil, &hooks); err != nil {
		return nil, err
	}
	return hooks, nil
}

func (c *Client) CreateWebhook(ctx context.Context, storeID string, body *models.CreateWebhookBody) (*models.StoreWebhook, error) {
	var hook models.StoreWebhook
	if err := c.do(ctx, http.MethodPost, storePath(storeID, "webhooks"), body, &hook); err != nil {
		return nil, err
	}
	return &hook, nil
}

func (c *Client) DeleteWebhook(ctx context.Context, storeID, webhookID string) error {
	return c.do(ctx, http.MethodDelete, storePath(storeID, "webhooks", webhookID), nil, nil)
}

func storePath(storeID string, parts ...string) string {
	segs := []string{"/api/v1/stores", url.PathEscape(storeID)}
	for _, p := range parts {
		segs = append(segs, url.PathEscape(p))
	}
	return strings.Join(segs, "/")
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "token "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp.StatusCode, raw)
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// decodeAPIError understands both the {code, message} body and the
// validation form [{path, message}].
func decodeAPIError(status int, raw []byte) error {
	apiErr := &APIError{StatusCode: status, Message: http.StatusText(status)}

	var single struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &single); err == nil && single.Message != "" {
		apiErr.Code = single.Code
		apiErr.Message = single.Message
		return apiErr
	}

	var validation []struct {
		Path    string `json:"path"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &validation); err == nil && len(validation) > 0 {
		msgs := make([]string, 0, len(validation))
		for _, v := range validation {
			msgs = append(msgs, v.Path+": "+v.Message)
		}
		apiErr.Code = "validation-error"
		apiErr.Message = strings.Join(msgs, "; ")
	}
	return apiErr
}
