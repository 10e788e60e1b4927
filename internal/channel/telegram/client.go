// Package telegram implements the delivery channel over the Telegram
// Bot API with plain HTTP.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"figtracker/internal/channel"
)

const defaultBaseURL = "https://api.telegram.org"

// Client is a thin HTTP client for the Telegram Bot API. It handles
// JSON marshaling, maps Bot API failures onto the channel error
// taxonomy, and backs off on HTTP 429.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	maxRetries int
}

// NewClient creates a Bot API client for the given bot token.
func NewClient(token string) *Client {
	return &Client{
		baseURL: defaultBaseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		maxRetries: 3,
	}
}

// apiResponse is the Bot API envelope common to every method.
type apiResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
}

// SendText delivers a text message with HTML formatting.
func (c *Client) SendText(ctx context.Context, recipient int64, text string) error {
	return c.call(ctx, "sendMessage", recipient, map[string]interface{}{
		"chat_id":    recipient,
		"text":       text,
		"parse_mode": "HTML",
	})
}

// SendPhoto delivers an image by URL with an HTML caption.
func (c *Client) SendPhoto(ctx context.Context, recipient int64, imageURL, caption string) error {
	return c.call(ctx, "sendPhoto", recipient, map[string]interface{}{
		"chat_id":    recipient,
		"photo":      imageURL,
		"caption":    caption,
		"parse_mode": "HTML",
	})
}

// call posts one Bot API method, retrying on 429 with the advertised
// wait time and classifying failures for the dispatcher.
func (c *Client) call(
	ctx context.Context,
	method string,
	recipient int64,
	body map[string]interface{},
) error {
	endpoint := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling %s request: %w", method, err)
		}

		req, err := http.NewRequestWithContext(
			ctx, http.MethodPost, endpoint, bytes.NewReader(data),
		)
		if err != nil {
			return fmt.Errorf("creating %s request: %w", method, err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			// Connection errors and timeouts are worth a retry at
			// the dispatcher's discretion.
			return &channel.TransientError{
				Message: fmt.Sprintf("%s to %d failed", method, recipient),
				Err:     err,
			}
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return &channel.TransientError{
				Message: fmt.Sprintf("reading %s response", method),
				Err:     readErr,
			}
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			waitDuration := retryAfterDuration(resp, attempt)
			lastErr = fmt.Errorf("rate limited (429) on %s", method)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(waitDuration):
			}
			continue
		}

		var apiResp apiResponse
		if err := json.Unmarshal(respBody, &apiResp); err != nil {
			return &channel.TransientError{
				Message: fmt.Sprintf("decoding %s response", method),
				Err:     err,
			}
		}

		if apiResp.OK {
			return nil
		}

		// 403 Forbidden: the user blocked the bot or is gone.
		if apiResp.ErrorCode == http.StatusForbidden {
			return &channel.PermanentError{
				Recipient: recipient,
				Message:   apiResp.Description,
			}
		}

		if apiResp.ErrorCode >= 500 {
			return &channel.TransientError{
				Message: fmt.Sprintf("%s returned %d: %s", method, apiResp.ErrorCode, apiResp.Description),
			}
		}

		return fmt.Errorf("%s rejected (%d): %s", method, apiResp.ErrorCode, apiResp.Description)
	}

	return &channel.TransientError{
		Message: "retries exhausted",
		Err:     lastErr,
	}
}

// retryAfterDuration computes the 429 backoff: the server's
// Retry-After when present, exponential otherwise.
func retryAfterDuration(resp *http.Response, attempt int) time.Duration {
	if header := resp.Header.Get("Retry-After"); header != "" {
		if seconds, err := strconv.Atoi(header); err == nil && seconds >= 0 {
			return time.Duration(seconds) * time.Second
		}
	}
	return time.Duration(1<<uint(attempt)) * time.Second
}

// SetBaseURL overrides the API host, used by tests.
func (c *Client) SetBaseURL(raw string) error {
	if _, err := url.Parse(raw); err != nil {
		return fmt.Errorf("invalid base url %q: %w", raw, err)
	}
	c.baseURL = raw
	return nil
}
