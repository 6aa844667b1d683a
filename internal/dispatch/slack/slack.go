// Package slack delivers alerts to Slack via Incoming Webhooks.
package slack

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

// maskURL masks sensitive parts of a webhook URL for logging.
func maskURL(url string) string {
	if len(url) > 50 {
		return url[:30] + "..." + url[len(url)-10:]
	}
	return url
}

// Sink posts alerts to a Slack Incoming Webhook.
type Sink struct {
	webhookURL string
	httpClient *http.Client
}

// NewSink creates a Slack sink for the given webhook URL.
func NewSink(webhookURL string) (*Sink, error) {
	if webhookURL == "" {
		return nil, fmt.Errorf("slack webhook URL is required")
	}
	if !strings.HasPrefix(webhookURL, "http://") && !strings.HasPrefix(webhookURL, "https://") {
		return nil, fmt.Errorf("invalid Slack webhook URL: %q (must be a valid HTTP/HTTPS URL). Slack webhook URLs typically start with https://hooks.slack.com/services/", webhookURL)
	}
	return &Sink{
		webhookURL: webhookURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

// Type returns the endpoint type this sink handles.
func (s *Sink) Type() string {
	return "slack"
}

// Payload represents a Slack webhook payload.
type Payload struct {
	Text        string       `json:"text,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Attachment represents a Slack message attachment.
type Attachment struct {
	Color  string  `json:"color,omitempty"`
	Title  string  `json:"title,omitempty"`
	Text   string  `json:"text,omitempty"`
	Fields []Field `json:"fields,omitempty"`
}

// Field represents a field in a Slack attachment.
type Field struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// BuildPayload builds a Slack webhook payload from an alert.
func BuildPayload(alert *events.Alert) Payload {
	fields := []Field{
		{Title: "Severity", Value: alert.Severity, Short: true},
		{Title: "Source", Value: alert.Source, Short: true},
		{Title: "Match ID", Value: alert.MatchID, Short: true},
		{Title: "Alert ID", Value: alert.ID, Short: true},
	}
	if minute, ok := alert.Data["minute"]; ok {
		fields = append(fields, Field{Title: "Minute", Value: fmt.Sprintf("%v", minute), Short: true})
	}
	if score, ok := alert.Data["score"]; ok {
		if sc, ok := score.(events.Score); ok {
			fields = append(fields, Field{Title: "Score", Value: fmt.Sprintf("%d-%d", sc.Home, sc.Away), Short: true})
		}
	}

	return Payload{
		Attachments: []Attachment{
			{
				Color:  severityColor(alert.Severity),
				Title:  fmt.Sprintf("Alert: %s - %s", strings.ToUpper(alert.Severity), alert.Type),
				Text:   alert.Message,
				Fields: fields,
			},
		},
	}
}

// severityColor returns the Slack attachment color for a given severity.
func severityColor(severity string) string {
	switch severity {
	case events.SeverityHigh:
		return "danger"
	case events.SeverityMedium:
		return "warning"
	default:
		return "good"
	}
}

// Send posts one alert to the Slack webhook.
func (s *Sink) Send(ctx context.Context, alert *events.Alert) error {
	jsonData, err := json.Marshal(BuildPayload(alert))
	if err != nil {
		return fmt.Errorf("failed to marshal Slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.webhookURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		slog.Error("Failed to send Slack alert",
			"error", err,
			"webhook_url", maskURL(s.webhookURL),
			"alert_id", alert.ID,
		)
		return fmt.Errorf("failed to send Slack alert to %s: %w", maskURL(s.webhookURL), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.Error("Slack webhook returned error status",
			"status_code", resp.StatusCode,
			"alert_id", alert.ID,
		)
		return fmt.Errorf("slack webhook returned status %d", resp.StatusCode)
	}

	slog.Info("Successfully sent Slack alert",
		"alert_id", alert.ID,
		"type", alert.Type,
		"match_id", alert.MatchID,
	)

	return nil
}
