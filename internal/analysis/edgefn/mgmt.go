package edgefn

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/koustreak/pgscope/internal/errs"
)

// Deployment is one deployed function as reported by the management API.
type Deployment struct {
	Name        string  `json:"name"`
	Invocations int64   `json:"invocations"`
	ErrorRate   float64 `json:"error_rate"`
}

// ManagementClient lists deployed functions. Implementations wrap the
// hosting provider's management API.
type ManagementClient interface {
	ListDeployments(ctx context.Context) ([]Deployment, error)
}

// HTTPManagementClient talks to a management API over HTTP with bearer
// authentication.
type HTTPManagementClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPManagementClient builds a client for baseURL.
func NewHTTPManagementClient(baseURL, apiKey string) *HTTPManagementClient {
	return &HTTPManagementClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// ListDeployments fetches the deployed function list.
func (c *HTTPManagementClient) ListDeployments(ctx context.Context) ([]Deployment, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/functions", nil)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "build management request", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "reach management API", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, errs.New(errs.ErrKindPermissionDenied, "management API rejected the credential")
	case resp.StatusCode != http.StatusOK:
		return nil, errs.New(errs.ErrKindQueryFailed, fmt.Sprintf("management API returned %d", resp.StatusCode))
	}

	var deployments []Deployment
	if err := json.NewDecoder(resp.Body).Decode(&deployments); err != nil {
		return nil, errs.Wrap(errs.ErrKindQueryFailed, "decode management response", err)
	}
	return deployments, nil
}
