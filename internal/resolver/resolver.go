// Package resolver talks to the external stream URL resolver: given a
// runner's channel URL it returns the available quality→m3u8 map.
package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/BrickBench/AutoMarathon/internal/domain"
)

// DefaultTimeout is the external-call deadline.
const DefaultTimeout = 10 * time.Second

// Client calls the resolver service.
type Client struct {
	base string
	http *http.Client
}

// NewClient creates a resolver client. timeout <= 0 uses DefaultTimeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		base: baseURL,
		http: &http.Client{Timeout: timeout},
	}
}

// Resolve returns the quality→url map for a channel URL.
func (c *Client) Resolve(ctx context.Context, streamURL string) (map[string]string, error) {
	if streamURL == "" {
		return nil, fmt.Errorf("%w: empty stream url", domain.ErrBadRequest)
	}

	endpoint := fmt.Sprintf("%s/resolve?url=%s", c.base, url.QueryEscape(streamURL))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrBadRequest, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: resolver", domain.ErrTimeout)
		}
		return nil, fmt.Errorf("%w: resolver: %v", domain.ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: resolver returned %d", domain.ErrUpstream, resp.StatusCode)
	}

	var urls map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&urls); err != nil {
		return nil, fmt.Errorf("%w: resolver response: %v", domain.ErrUpstream, err)
	}
	return urls, nil
}
