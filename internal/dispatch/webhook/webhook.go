// Package webhook delivers alerts to an HTTP endpoint via POST.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MohamedRouatbi/realtime-sports-scraper/internal/events"
)

// Sink posts each alert as a JSON document to a fixed webhook URL.
type Sink struct {
	url        string
	httpClient *http.Client
}

// NewSink creates a webhook sink for the given URL.
func NewSink(url string) (*Sink, error) {
	if url == "" {
		return nil, fmt.Errorf("webhook URL is required")
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return nil, fmt.Errorf("invalid webhook URL: %q (must be a valid HTTP/HTTPS URL)", url)
	}
	return &Sink{
		url: url,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

// Type returns the endpoint type this sink handles.
func (s *Sink) Type() string {
	return "webhook"
}

// Send posts one alert to the webhook endpoint.
func (s *Sink) Send(ctx context.Context, alert *events.Alert) error {
	jsonData, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.url, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		slog.Error("Failed to send webhook alert",
			"error", err,
			"webhook_url", s.url,
			"alert_id", alert.ID,
		)
		return fmt.Errorf("failed to send webhook alert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.Error("Webhook returned error status",
			"status_code", resp.StatusCode,
			"webhook_url", s.url,
			"alert_id", alert.ID,
		)
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	slog.Info("Successfully sent webhook alert",
		"webhook_url", s.url,
		"alert_id", alert.ID,
		"type", alert.Type,
		"match_id", alert.MatchID,
	)

	return nil
}
