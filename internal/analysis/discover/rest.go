package discover

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/koustreak/pgscope/internal/errs"
)

// RestClient fetches the hosted data API's auto-generated schema document
// (an OpenAPI description with one definition per exposed table) and
// implements SchemaDocument.
type RestClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewRestClient builds a RestClient for the data API at baseURL.
func NewRestClient(baseURL, apiKey string) *RestClient {
	return &RestClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// schemaDoc is the subset of the OpenAPI document discovery needs.
type schemaDoc struct {
	Definitions map[string]json.RawMessage `json:"definitions"`
	Paths       map[string]json.RawMessage `json:"paths"`
}

// TableNames fetches the schema document and returns the exposed table
// names, preferring definitions and falling back to path segments.
func (c *RestClient) TableNames(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "build schema document request", err)
	}
	req.Header.Set("Accept", "application/openapi+json, application/json")
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "fetch schema document", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, errs.New(errs.ErrKindPermissionDenied, fmt.Sprintf("schema document returned %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return nil, errs.New(errs.ErrKindQueryFailed, fmt.Sprintf("schema document returned %d", resp.StatusCode))
	}

	var doc schemaDoc
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, errs.Wrap(errs.ErrKindQueryFailed, "decode schema document", err)
	}

	seen := make(map[string]bool)
	var names []string
	add := func(name string) {
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		names = append(names, name)
	}

	for name := range doc.Definitions {
		add(name)
	}
	// Paths look like "/table_name"; the root path and rpc endpoints are
	// not tables.
	for path := range doc.Paths {
		trimmed := strings.TrimPrefix(path, "/")
		if trimmed == "" || strings.HasPrefix(trimmed, "rpc/") || strings.Contains(trimmed, "/") {
			continue
		}
		add(trimmed)
	}

	sort.Strings(names)
	return names, nil
}
