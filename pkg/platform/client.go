package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// HTTPClient is a JSON client with retry and exponential backoff.
type HTTPClient struct {
	Client  *http.Client
	Retries int
	Timeout time.Duration
	Backoff time.Duration
	Logger  zerolog.Logger
}

func NewHTTPClient(retries int, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		Client: &http.Client{
			Timeout: timeout,
		},
		Retries: retries,
		Timeout: timeout,
		Backoff: 200 * time.Millisecond,
		Logger:  log.Logger,
	}
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.StatusCode)
}

// GetJSON fetches url and decodes the body into out. Transport errors and 5xx
// responses are retried; 4xx responses are returned immediately.
func (c *HTTPClient) GetJSON(ctx context.Context, url string, out any) error {
	var err error

	for i := 0; i <= c.Retries; i++ {
		var retry bool
		retry, err = c.getOnce(ctx, url, out)
		if err == nil || !retry {
			return err
		}

		if i < c.Retries {
			c.Logger.Warn().Str("url", url).Int("attempt", i+1).Err(err).Msg("HTTP request failed, retrying")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(1<<i) * c.Backoff):
			}
		}
	}

	return fmt.Errorf("request failed after %d retries: %w", c.Retries, err)
}

func (c *HTTPClient) getOnce(ctx context.Context, url string, out any) (retry bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.Client.Do(req)
	if err != nil {
		return ctx.Err() == nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return true, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}
	if resp.StatusCode >= 300 {
		return false, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, fmt.Errorf("decode %s: %w", url, err)
	}
	return false, nil
}
