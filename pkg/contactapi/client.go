// Package contactapi provides a client for the contact enrichment provider,
// which resolves phone numbers and emails for a CPF or CNPJ.
package contactapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/lead-intel/internal/resilience"
)

// ErrNoData is returned when the provider has no contact data for a document.
var ErrNoData = errors.New("contactapi: no data for document")

// Client looks up contact data.
type Client interface {
	Lookup(ctx context.Context, document string) (*Contact, error)
}

// Contact is the provider's answer for one document.
type Contact struct {
	Document string `json:"document"`
	Phone    string `json:"phone"`
	Phone2   string `json:"phone2"`
	Email    string `json:"email"`
	Source   string `json:"source"`
}

// Empty reports whether c carries no usable contact field.
func (c *Contact) Empty() bool {
	return c.Phone == "" && c.Phone2 == "" && c.Email == ""
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit caps requests per second. Zero disables limiting.
func WithRateLimit(perSec float64) Option {
	return func(c *httpClient) {
		if perSec > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSec), 1)
		} else {
			c.limiter = nil
		}
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a provider client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: "https://api.contatos.example.com/v1",
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Limit(2), 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Lookup fetches contact data for a digits-only document. Provider statuses
// for throttling and server faults come back as resilience.TransientError.
func (c *httpClient) Lookup(ctx context.Context, document string) (*Contact, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "contactapi: rate limit wait")
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/contacts/"+url.PathEscape(document), nil)
	if err != nil {
		return nil, eris.Wrap(err, "contactapi: create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "contactapi: request failed")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, eris.Wrap(err, "contactapi: read response body")
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNoData
	case resp.StatusCode != http.StatusOK:
		return nil, resilience.StatusError("contactapi", resp.StatusCode)
	}

	var out Contact
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, eris.Wrap(err, "contactapi: unmarshal response")
	}
	if out.Empty() {
		return nil, ErrNoData
	}
	if out.Source == "" {
		out.Source = "contactapi"
	}
	return &out, nil
}
