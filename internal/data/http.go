package data

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/contactkeval/option-ev/internal/logger"
)

// newHTTPClient returns the client shared by the raw HTTP vendor adapters.
func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 60 * time.Second,
		Transport: &http.Transport{
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 30 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
		},
	}
}

// untilNextMinute is the wait after a per-minute rate limit response.
func untilNextMinute(now time.Time) time.Duration {
	return now.Truncate(time.Minute).Add(time.Minute).Sub(now)
}

// httpGetter issues GET requests and decodes JSON bodies, sleeping through
// per-minute rate limits (HTTP 429) until ctx is done.
type httpGetter struct {
	Client *http.Client

	// rateLimitWait returns how long to sleep after a 429; nil means
	// untilNextMinute.
	rateLimitWait func(now time.Time) time.Duration
}

func (g httpGetter) getJSON(ctx context.Context, rawURL string, out any) error {
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return err
		}

		logger.Tracef("event=http_get host=%s path=%s", req.URL.Host, req.URL.Path)

		resp, err := g.Client.Do(req)
		if err != nil {
			return err
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()

			wait := untilNextMinute
			if g.rateLimitWait != nil {
				wait = g.rateLimitWait
			}
			d := wait(time.Now())
			logger.Infof("event=rate_limited host=%s sleep=%s", req.URL.Host, d)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d):
			}
			continue
		}

		return decodeResponse(resp, out)
	}
}

func decodeResponse(resp *http.Response, out any) error {
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status code: %d: %s", resp.StatusCode, body)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
