// Package integration is a client of the surrogate service http api.
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"

	"github.com/go-sod/surrogate/internal/httputil"
)

type prefixRoundTripper struct {
	addr string
	rt   http.RoundTripper
}

func (p *prefixRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	u := r.URL
	if u.Scheme == "" {
		u.Scheme = "http"
	}
	if u.Host == "" {
		u.Host = p.addr
	}

	return p.rt.RoundTrip(r)
}

func NewClient(addr string) *Client {
	return &Client{client: &http.Client{Transport: &prefixRoundTripper{addr: addr, rt: http.DefaultTransport}}}
}

type Client struct {
	client *http.Client
}

// StatusError is returned for answers outside the 2xx range.
type StatusError struct {
	Code int
	// Message is the error reported by the service, empty when the body was not an error document.
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Message)
}

func (c *Client) Collect(ctx context.Context, r CollectRequest) (*CollectResponse, error) {
	var resp CollectResponse
	if err := c.post(ctx, "/collect", r, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Predict(ctx context.Context, r PredictRequest) (*PredictResponse, error) {
	var resp PredictResponse
	if err := c.post(ctx, "/predict", r, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Health returns the status code of the health endpoint.
func (c *Client) Health(ctx context.Context) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return 0, fmt.Errorf("create new request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

func (c *Client) post(ctx context.Context, path string, in, out interface{}) error {
	b, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("unable marshal %s request: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, path, bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("create new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("error with sending request: %w", err)
	}
	defer resp.Body.Close()

	body, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp httputil.ErrorResponse
		_ = json.Unmarshal(body, &errResp)
		return &StatusError{Code: resp.StatusCode, Message: errResp.Error}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("unable decode %s response: %w", path, err)
	}
	return nil
}
