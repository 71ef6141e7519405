package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

const userAgent = "tv-bracket-bot-alert"

// WebhookStatus is the body the webhook answers with.
type WebhookStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// AlertSender posts alert payloads to a running webhook.
type AlertSender struct {
	client *Client
	path   string
	retry  *RetryConfig
}

func NewAlertSender(baseURL, path string, timeout time.Duration, retry *RetryConfig) *AlertSender {
	return &AlertSender{
		client: NewClient(
			WithBaseURL(baseURL),
			WithTimeout(timeout),
			WithHeader("User-Agent", userAgent),
			WithLogging(true),
		),
		path:  path,
		retry: retry,
	}
}

// Send posts payload as is when it is []byte, otherwise as JSON. A 503 means
// no worker was listening; it is returned as a *StatusError like any other
// error status.
func (s *AlertSender) Send(ctx context.Context, payload interface{}) (WebhookStatus, error) {
	req := NewRequest(http.MethodPost, s.path).WithContext(ctx).WithBody(payload)
	resp, err := s.client.DoWithRetry(req, s.retry)

	var status WebhookStatus
	if resp != nil && len(resp.Body) > 0 {
		if perr := resp.ParseJSON(&status); perr != nil && err == nil {
			return status, perr
		}
	}
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) && status.Status != "" {
			return status, fmt.Errorf("webhook answered %s: %w", status.Status, err)
		}
		return status, err
	}
	return status, nil
}
