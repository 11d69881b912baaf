package gcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/anzsic/classify/internal/adapter/retry"
)

// httpClient builds an *http.Client honoring the optional HTTPS proxy and
// per-call timeout, matching the reference adapter's requests.post(...,
// proxies=..., timeout=...) call.
func httpClient(proxy string, timeout time.Duration) (*http.Client, error) {
	client := &http.Client{Timeout: timeout}
	if proxy != "" {
		proxyURL, err := url.Parse(proxy)
		if err != nil {
			return nil, fmt.Errorf("parse https proxy: %w", err)
		}
		client.Transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
	}
	return client, nil
}

// sendResult is one HTTP round trip's outcome: either a status/body pair,
// or err with retryable set only for a client.Do transport failure (token
// fetch and request construction failures are not retryable).
type sendResult struct {
	status    int
	body      []byte
	err       error
	retryable bool
}

func sendOnce(ctx context.Context, tm *TokenManager, client *http.Client, endpoint string, body []byte) sendResult {
	token, err := tm.GetToken(ctx)
	if err != nil {
		return sendResult{err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return sendResult{err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return sendResult{err: err, retryable: true}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	return sendResult{status: resp.StatusCode, body: respBody}
}

// postJSON POSTs payload as JSON to endpoint with a fresh bearer token on
// every attempt, applying the shared retry policy: transport errors and
// 429/5xx back off exponentially under cfg, and any other non-2xx fails
// immediately. A 401 gets exactly one inline token-invalidate-and-retry,
// independent of cfg.MaxAttempts — if the retried request is also a 401,
// newAuthErr reports the failure rather than consuming outer retry budget.
func postJSON(ctx context.Context, tm *TokenManager, client *http.Client, endpoint string, payload any, cfg retry.Config, newErr func(string, error) error, newAuthErr func(string, error) error) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, newErr("marshal request payload", err)
	}

	result, err := retry.Do(ctx, cfg, func(ctx context.Context, attempt int) (any, retry.Outcome, error) {
		out := sendOnce(ctx, tm, client, endpoint, body)
		if out.err != nil {
			if out.retryable {
				return nil, retry.RetryBackoff, newErr("transport error", out.err)
			}
			return nil, retry.Fail, newErr("build request", out.err)
		}

		if out.status == http.StatusUnauthorized {
			tm.Invalidate()
			out = sendOnce(ctx, tm, client, endpoint, body)
			if out.err != nil {
				if out.retryable {
					return nil, retry.RetryBackoff, newErr("transport error", out.err)
				}
				return nil, retry.Fail, newErr("build request", out.err)
			}
			if out.status == http.StatusUnauthorized {
				return nil, retry.Fail, newAuthErr("unauthorized after token refresh", nil)
			}
		}

		switch {
		case out.status == http.StatusTooManyRequests || out.status >= 500:
			return nil, retry.RetryBackoff, newErr(fmt.Sprintf("http %d", out.status), nil)
		case out.status < 200 || out.status >= 300:
			truncated := string(out.body)
			if len(truncated) > 200 {
				truncated = truncated[:200]
			}
			return nil, retry.Fail, newErr(fmt.Sprintf("http %d: %s", out.status, truncated), nil)
		}

		return out.body, retry.Success, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}
