// Package identity reads user records from the external identity
// provider and verifies session bearer tokens issued by it.
package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/avolkov87/mailhub/internal/errs"
	"github.com/avolkov87/mailhub/internal/model"
)

// Client reads identity-provider user records. This core never writes
// identity fields.
type Client interface {
	// GetUser loads the provider's user record by ID.
	GetUser(ctx context.Context, id string) (*model.Identity, error)
}

// HTTPClient implements Client against the identity provider's REST API.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPClient constructs an identity-provider API client.
func NewHTTPClient(baseURL, apiKey string) *HTTPClient {
	return &HTTPClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// GetUser fetches a user record from the identity provider.
func (c *HTTPClient) GetUser(ctx context.Context, id string) (*model.Identity, error) {
	u := c.baseURL + "/v1/users/" + url.PathEscape(id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("identity getUser: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, errs.ErrNotFound
	default:
		return nil, fmt.Errorf("identity getUser: provider returned %d", resp.StatusCode)
	}

	var ident model.Identity
	if err := json.NewDecoder(resp.Body).Decode(&ident); err != nil {
		return nil, fmt.Errorf("decoding identity: %w", err)
	}
	return &ident, nil
}
