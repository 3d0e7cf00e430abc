package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// WebhookNotifier POSTs {"message", "source", "ts"} as JSON to a URL.
type WebhookNotifier struct {
	URL    string
	Source string
	Client *http.Client
	now    func() time.Time
	log    zerolog.Logger
}

// NewWebhookNotifier creates a webhook notifier tagged with source.
func NewWebhookNotifier(url, source string, log zerolog.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		URL:    url,
		Source: source,
		Client: &http.Client{Timeout: 10 * time.Second},
		now:    time.Now,
		log:    log.With().Str("channel", "webhook").Logger(),
	}
}

func (w *WebhookNotifier) Name() string { return "webhook" }

type webhookPayload struct {
	Message string `json:"message"`
	Source  string `json:"source"`
	TS      string `json:"ts"`
}

// Post sends one message.
func (w *WebhookNotifier) Post(ctx context.Context, text string) error {
	body, err := json.Marshal(webhookPayload{Message: text, Source: w.Source, TS: w.now().Format(time.RFC3339)})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := w.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("webhook status %d: %s", resp.StatusCode, respBody)
	}
	return nil
}

func (w *WebhookNotifier) Notify(ctx context.Context, text string) bool {
	if w.URL == "" {
		return false
	}
	if err := w.Post(ctx, text); err != nil {
		w.log.Warn().Err(err).Msg("webhook notification failed")
		return false
	}
	return true
}
