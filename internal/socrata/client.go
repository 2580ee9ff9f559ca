package socrata

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Client is a minimal SODA (Socrata Open Data API) client. Pagination is
// offset/limit; callers stop when a page comes back short. There is no retry
// or backoff, only the fixed connection timeout.
type Client struct {
	scheme     string
	host       string
	appToken   string
	username   string
	password   string
	httpClient *http.Client
}

// NewClient creates a client for the given data portal host, e.g.
// "data.cityofchicago.org". Credentials may be empty for anonymous access.
func NewClient(host, appToken, username, password string, timeout time.Duration) *Client {
	return &Client{
		scheme:     "https",
		host:       host,
		appToken:   appToken,
		username:   username,
		password:   password,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// GetCrimes fetches one page of the crime dataset.
func (c *Client) GetCrimes(resource string, limit, offset int) ([]CrimeRecord, error) {
	body, err := c.get(resource, limit, offset)
	if err != nil {
		return nil, err
	}

	var records []CrimeRecord
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("failed to decode %s page at offset %d: %w", resource, offset, err)
	}
	return records, nil
}

// get performs a single paginated request against a resource endpoint.
func (c *Client) get(resource string, limit, offset int) ([]byte, error) {
	endpoint := url.URL{
		Scheme: c.scheme,
		Host:   c.host,
		Path:   fmt.Sprintf("/resource/%s.json", resource),
	}
	q := endpoint.Query()
	q.Set("$limit", fmt.Sprintf("%d", limit))
	q.Set("$offset", fmt.Sprintf("%d", offset))
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequest(http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	if c.appToken != "" {
		req.Header.Set("X-App-Token", c.appToken)
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", resource, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("socrata returned %d for %s offset %d: %s",
			resp.StatusCode, resource, offset, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, nil
}

// SetBaseURL points the client at a different server, used by tests.
func (c *Client) SetBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	c.scheme = u.Scheme
	c.host = u.Host
	return nil
}
