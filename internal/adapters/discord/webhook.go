package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/wisdom-oss/service-swat-collector/internal/notify"
)

const (
	colorAlert    = 0x9E2C2C
	colorResolved = 0x57F287
)

// Webhook delivers alert and recovery embeds through a Discord webhook using
// the execute-webhook endpoint. No retry beyond the notifier's own policy.
type Webhook struct {
	endpoint string
	client   *http.Client
}

func NewWebhook(id, token string) *Webhook {
	return &Webhook{
		endpoint: fmt.Sprintf("https://discord.com/api/webhooks/%s/%s", id, token),
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

type embed struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description"`
	Color       int    `json:"color"`
	Timestamp   string `json:"timestamp,omitempty"`
}

type payload struct {
	Embeds []embed `json:"embeds"`
}

func (w *Webhook) Alert(ctx context.Context, kind, detail string, at time.Time) error {
	return w.execute(ctx, payload{Embeds: []embed{{
		Title:       kind,
		Description: detail + "\nAs soon as the pipeline is working again you will be notified.",
		Color:       colorAlert,
		Timestamp:   at.UTC().Format(time.RFC3339),
	}}})
}

func (w *Webhook) Resolved(ctx context.Context) error {
	return w.execute(ctx, payload{Embeds: []embed{{
		Description: "All writes have been successful. Collector working as expected again.",
		Color:       colorResolved,
	}}})
}

func (w *Webhook) execute(ctx context.Context, p payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("webhook returned status %s", resp.Status)
	}
	return nil
}

var _ notify.Sender = (*Webhook)(nil)
