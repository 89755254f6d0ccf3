// Package directory bridges account-number questions to the resident
// directory service: identity extraction from the conversation, an HTTP
// lookup, and a bounded per-conversation cache of the result.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Resident is one directory record.
type Resident struct {
	AccountNumber string `json:"account_number"`
	FullName      string `json:"full_name"`
	Apartment     string `json:"apartment"`
	Address       string `json:"address"`
}

// Resolver looks up a resident by name and address. A nil resident with a
// nil error means no match.
type Resolver interface {
	Lookup(ctx context.Context, fullName, address string) (*Resident, error)
}

// Client is the HTTP resolver against the directory service.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient builds a directory client. baseURL must not be empty.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Lookup queries GET {base}/residents/lookup. 404 means no match.
func (c *Client) Lookup(ctx context.Context, fullName, address string) (*Resident, error) {
	q := url.Values{}
	q.Set("full_name", fullName)
	q.Set("address", address)
	endpoint := c.baseURL + "/residents/lookup?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create lookup request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("directory lookup: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("directory lookup: status %d: %s", resp.StatusCode, string(body))
	}

	var r Resident
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return nil, fmt.Errorf("decode lookup response: %w", err)
	}
	if r.AccountNumber == "" {
		return nil, nil
	}
	return &r, nil
}
