// Package billing looks up subscription status from the external
// billing provider.
package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/avolkov87/mailhub/internal/model"
)

// Client reports the billing tier of a user.
type Client interface {
	// SubscriptionStatus returns the user's current tier. Unknown users
	// are on the free tier.
	SubscriptionStatus(ctx context.Context, userID string) (model.SubscriptionStatus, error)
}

// HTTPClient implements Client against the billing provider's REST API.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPClient constructs a billing-provider API client.
func NewHTTPClient(baseURL, apiKey string) *HTTPClient {
	return &HTTPClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// SubscriptionStatus fetches the user's subscription record. Users with
// no record or a non-active subscription are free tier.
func (c *HTTPClient) SubscriptionStatus(ctx context.Context, userID string) (model.SubscriptionStatus, error) {
	u := c.baseURL + "/v1/subscriptions/" + url.PathEscape(userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return model.SubscriptionFree, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return model.SubscriptionFree, fmt.Errorf("billing status: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return model.SubscriptionFree, nil
	default:
		return model.SubscriptionFree, fmt.Errorf("billing status: provider returned %d", resp.StatusCode)
	}

	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return model.SubscriptionFree, fmt.Errorf("decoding status: %w", err)
	}
	if body.Status == "active" {
		return model.SubscriptionPro, nil
	}
	return model.SubscriptionFree, nil
}
