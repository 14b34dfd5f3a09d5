package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/brightloop/qgateway/internal/apierr"
	"github.com/brightloop/qgateway/internal/retry"
)

const (
	connectTimeout = 60 * time.Second
	requestTimeout = 12 * time.Minute
)

// ClientConfig parameterizes a Client, per spec §4.7.
type ClientConfig struct {
	Region        string
	SystemVersion string
	NodeVersion   string
	MachineID     string
	RetryPolicy   retry.Policy
}

// Client issues auth-signed POSTs against the upstream
// generateAssistantResponse endpoint.
type Client struct {
	httpClient *http.Client
	cfg        ClientConfig
}

// NewClient builds a Client with the connect/request timeouts of spec
// §4.7 and, unless overridden, the default single-retry policy.
func NewClient(cfg ClientConfig) *Client {
	if cfg.RetryPolicy == nil {
		cfg.RetryPolicy = retry.New(retry.DefaultConfig())
	}
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: requestTimeout,
			Transport: &http.Transport{
				// The dialer bounds connection setup (connect timeout,
				// §4.7); the client-level Timeout bounds the full request.
				DialContext: (&net.Dialer{Timeout: connectTimeout}).DialContext,
			},
		},
	}
}

// Send issues the generateAssistantResponse request and returns the
// response body as a readable stream for the aggregator, per spec §4.7.
// Non-2xx responses are surfaced as an *apierr.Error immediately, never
// retried. A network-level failure (no response received at all) is
// retried once per internal/retry's default policy.
func (c *Client) Send(ctx context.Context, accessToken string, body ConversationState) (io.ReadCloser, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("upstream: marshal request: %w", err)
	}

	var lastErr error
	for attempt := 1; ; attempt++ {
		resp, err := c.doOnce(ctx, accessToken, payload)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if gerr, ok := err.(*apierr.Error); ok {
			// Non-2xx HTTP response: never retried, per spec §7/SPEC_FULL §4.7a.
			return nil, gerr
		}
		if !retry.IsRetryableNetworkError(err) {
			return nil, err
		}
		delay, again := c.cfg.RetryPolicy.NextDelay(attempt)
		if !again {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, apierr.Wrap(apierr.KindOverloaded, "upstream request failed", lastErr)
}

func (c *Client) doOnce(ctx context.Context, accessToken string, payload []byte) (io.ReadCloser, error) {
	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	url := fmt.Sprintf("https://q.%s.amazonaws.com/generateAssistantResponse", c.cfg.Region)
	req, err := http.NewRequestWithContext(connectCtx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req = req.WithContext(ctx) // full request timeout governs the body read

	invocationID := uuid.NewString()
	userAgent := fmt.Sprintf("aws-sdk-kiro/%s-%s (%s; node %s)", c.cfg.Region, c.cfg.MachineID, c.cfg.SystemVersion, c.cfg.NodeVersion)

	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/x-amz-json-1.1")
	req.Header.Set("x-amzn-codewhisperer-optout", "true")
	req.Header.Set("x-amzn-kiro-agent-mode", "vibe")
	req.Header.Set("x-amz-user-agent", userAgent)
	req.Header.Set("user-agent", userAgent)
	req.Header.Set("amz-sdk-invocation-id", invocationID)
	req.Header.Set("amz-sdk-request", "attempt=1; max=3")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err // network-level failure, retryable
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		kind := apierr.KindAPIError
		return nil, apierr.New(kind, fmt.Sprintf("upstream returned status %d: %s", resp.StatusCode, snippet))
	}

	return resp.Body, nil
}
