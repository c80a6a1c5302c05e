package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// WebhookDispatcher POSTs the alert's JSON encoding to a single configured
// endpoint: a plain net/http POST with a Content-Type header and
// caller-supplied extra headers, no retry (the Manager's own
// cooldown/ceiling logic is the only back-pressure).
type WebhookDispatcher struct {
	URL     string
	Headers map[string]string
	client  *http.Client
}

// NewWebhookDispatcher constructs a WebhookDispatcher posting to url.
func NewWebhookDispatcher(url string, headers map[string]string) *WebhookDispatcher {
	return &WebhookDispatcher{
		URL:     url,
		Headers: headers,
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

func (w *WebhookDispatcher) Dispatch(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.Headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook %s returned status %d", w.URL, resp.StatusCode)
	}
	return nil
}

// MultiDispatcher fans an Alert out to every configured sink — e.g. a
// webhook for humans and a database store for history — so a deployment
// isn't limited to exactly one Dispatcher. Every sink is tried even if an
// earlier one errors; the first error encountered is returned to the caller
// for logging, matching Manager.dispatch's own log-and-continue posture.
type MultiDispatcher []Dispatcher

func (m MultiDispatcher) Dispatch(ctx context.Context, alert Alert) error {
	var first error
	for _, d := range m {
		if err := d.Dispatch(ctx, alert); err != nil && first == nil {
			first = err
		}
	}
	return first
}
