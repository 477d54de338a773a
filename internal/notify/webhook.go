package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"sensorwatch/internal/model"
)

// WebhookNotifier POSTs each alert as JSON. It does not retry.
type WebhookNotifier struct {
	client *resty.Client
	url    string
}

func NewWebhookNotifier(url string, timeout time.Duration) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	return &WebhookNotifier{client: client, url: url}
}

func (n *WebhookNotifier) Notify(ctx context.Context, alert model.Alert) error {
	resp, err := n.client.R().
		SetContext(ctx).
		SetBody(alert).
		Post(n.url)
	if err != nil {
		return fmt.Errorf("post alert to %s: %w", n.url, err)
	}
	if resp.IsError() {
		return fmt.Errorf("post alert to %s: status %d", n.url, resp.StatusCode())
	}
	return nil
}
