// Package provider implements routing.Provider against the legacy distance
// matrix API and the compute-route-matrix API.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	routing "fuel-registry/internal/routing/domain"
)

const maxBodyBytes = 4 << 20

// errMalformed marks a 2xx response whose body could not be decoded.
var errMalformed = errors.New("provider: malformed response")

// Option configures a provider client.
type Option func(*client)

// WithHTTPClient overrides the transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithBaseURL overrides the upstream origin.
func WithBaseURL(baseURL string) Option {
	return func(c *client) {
		if baseURL != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

type client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func newClient(defaultBase, apiKey string, opts []Option) *client {
	c := &client{
		baseURL: defaultBase,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 20 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// doJSON performs one request and decodes a 2xx body into out.
// Non-2xx responses return their status with a nil error; transport
// failures return an error.
func (c *client) doJSON(ctx context.Context, method, path string, headers map[string]string, body any, out any) (int, error) {
	var reqBody io.Reader = http.NoBody
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return resp.StatusCode, nil
	}
	if out == nil {
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("%w: %v", errMalformed, err)
	}
	return resp.StatusCode, nil
}

// failedBatch maps a whole-request upstream failure onto per-destination statuses.
func failedBatch(n, status int) routing.Batch {
	if status == http.StatusTooManyRequests {
		return routing.Batch{Results: routing.Fill(n, routing.StatusRateLimited, "upstream rate limited"), HTTPStatus: status}
	}
	return routing.Batch{Results: routing.Fill(n, routing.StatusError, fmt.Sprintf("upstream http %d", status)), HTTPStatus: status}
}

// malformedBatch reports an undecodable 2xx answer; it is never cached.
func malformedBatch(n int, err error) routing.Batch {
	return routing.Batch{Results: routing.Fill(n, routing.StatusError, err.Error()), HTTPStatus: http.StatusBadGateway}
}
