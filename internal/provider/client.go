// Package provider is an HTTP client for the third-party mail-sync API.
// It performs OAuth code exchange, account identity lookup, message
// retrieval pass-through, and the provider-side sync trigger.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/avolkov87/mailhub/internal/errs"
	"github.com/avolkov87/mailhub/internal/model"
)

// mailScopes is the fixed scope set requested for linked mailboxes.
const mailScopes = "Mail.Read Mail.ReadWrite Mail.Send Mail.Drafts Mail.All"

// Client talks to the mail provider's REST API. Access tokens pass
// through it but are never logged.
type Client struct {
	baseURL      string
	clientID     string
	clientSecret string
	returnURL    string
	httpClient   *http.Client
	log          *zap.Logger
}

// Config carries provider client construction parameters.
type Config struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	// ReturnURL is the absolute callback URL the provider redirects to
	// after user consent.
	ReturnURL string
}

// New constructs a provider client.
func New(cfg Config, log *zap.Logger) *Client {
	return &Client{
		baseURL:      cfg.BaseURL,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		returnURL:    cfg.ReturnURL,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		log:          log,
	}
}

// AuthorizeURL builds the provider authorization redirect URL for the
// given service type ("Google" or "Office365") and an opaque state nonce.
func (c *Client) AuthorizeURL(serviceType, state string) string {
	params := url.Values{}
	params.Set("clientId", c.clientID)
	params.Set("serviceType", serviceType)
	params.Set("scopes", mailScopes)
	params.Set("responseType", "code")
	params.Set("returnUrl", c.returnURL)
	if state != "" {
		params.Set("state", state)
	}
	return c.baseURL + "/v1/auth/authorize?" + params.Encode()
}

// ExchangeCode trades a single-use authorization code for an access
// token and the provider's account identity. Any failure surfaces as
// errs.ErrExchangeFailed; the call is never retried internally because
// codes expire and are consumed on first use.
func (c *Client) ExchangeCode(ctx context.Context, code string) (model.ExchangeResult, error) {
	u := c.baseURL + "/v1/auth/token/" + url.PathEscape(code)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
	if err != nil {
		return model.ExchangeResult{}, fmt.Errorf("exchange request: %w", err)
	}
	req.SetBasicAuth(c.clientID, c.clientSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return model.ExchangeResult{}, fmt.Errorf("%w: %v", errs.ErrExchangeFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.log.Warn("token exchange rejected", zap.Int("status", resp.StatusCode))
		return model.ExchangeResult{}, fmt.Errorf("%w: provider returned %d", errs.ErrExchangeFailed, resp.StatusCode)
	}

	var res model.ExchangeResult
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return model.ExchangeResult{}, fmt.Errorf("%w: decode response: %v", errs.ErrExchangeFailed, err)
	}
	if res.AccessToken == "" || res.AccountID == 0 {
		return model.ExchangeResult{}, fmt.Errorf("%w: incomplete response", errs.ErrExchangeFailed)
	}
	return res, nil
}

// GetAccountDetails fetches the mailbox identity for a freshly exchanged
// token. Fail-fast, same contract as ExchangeCode.
func (c *Client) GetAccountDetails(ctx context.Context, accessToken string) (model.AccountDetails, error) {
	var details model.AccountDetails
	if err := c.get(ctx, "/v1/account", accessToken, &details); err != nil {
		return model.AccountDetails{}, err
	}
	return details, nil
}

// GetMessage fetches a single message payload with inline parts loaded.
// The payload is passed through untouched.
func (c *Client) GetMessage(ctx context.Context, accessToken, messageID string) (json.RawMessage, error) {
	var payload json.RawMessage
	path := "/v1/email/messages/" + url.PathEscape(messageID) + "?loadInlines=true"
	if err := c.get(ctx, path, accessToken, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// TriggerSync asks the provider to synchronize the mailbox behind the
// token. Success or failure only; no streamed progress.
func (c *Client) TriggerSync(ctx context.Context, accessToken string) error {
	u := c.baseURL + "/v1/email/sync"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
	if err != nil {
		return fmt.Errorf("sync request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("trigger sync: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("trigger sync: provider returned %d", resp.StatusCode)
	}
	return nil
}

// get performs an authenticated GET and decodes the JSON response.
func (c *Client) get(ctx context.Context, path, accessToken string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: provider returned %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
