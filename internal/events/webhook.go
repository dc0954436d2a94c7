package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"caseline/internal/config"
)

const defaultWebhookTimeout = 5 * time.Second

// WebhookSink POSTs each envelope as JSON to a configured URL.
type WebhookSink struct {
	URL    string
	Secret string
	Filter Filter
	Client *http.Client
}

func NewWebhookSink(hook config.WebhookConfig) *WebhookSink {
	timeout := defaultWebhookTimeout
	if hook.TimeoutSeconds > 0 {
		timeout = time.Duration(hook.TimeoutSeconds) * time.Second
	}
	return &WebhookSink{
		URL:    hook.URL,
		Secret: hook.Secret,
		Filter: NewFilter(hook.Events),
		Client: &http.Client{Timeout: timeout},
	}
}

func (w *WebhookSink) Name() string { return "webhook:" + w.URL }

func (w *WebhookSink) Accepts(evtType string) bool { return w.Filter.Match(evtType) }

func (w *WebhookSink) Deliver(ctx context.Context, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Caseline-Event", env.Type)
	req.Header.Set("X-Caseline-Delivery", fmt.Sprintf("%d", env.ID))
	if strings.TrimSpace(w.Secret) != "" {
		req.Header.Set("X-Caseline-Secret", w.Secret)
	}
	res, err := w.Client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
