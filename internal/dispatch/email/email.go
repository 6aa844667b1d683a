// Package email delivers alerts as email through a provider registry.
package email

import (
	"context"
	"fmt"
	"strings"

	"github.com/MohamedRouatbi/realtime-sports-scraper/internal/dispatch/email/provider"
	"github.com/MohamedRouatbi/realtime-sports-scraper/internal/events"
)

// Sink sends one email per alert to a fixed recipient list.
type Sink struct {
	registry   *provider.Registry
	from       string
	recipients []string
}

// NewSink creates an email sink. Recipients is a comma-separated address list.
func NewSink(registry *provider.Registry, from, recipients string) (*Sink, error) {
	if from == "" {
		return nil, fmt.Errorf("email from address is required")
	}
	to := parseRecipients(recipients)
	if len(to) == 0 {
		return nil, fmt.Errorf("no valid email recipients provided")
	}
	for _, r := range to {
		if !strings.Contains(r, "@") {
			return nil, fmt.Errorf("invalid email address format: %q (missing @ symbol)", r)
		}
	}
	return &Sink{
		registry:   registry,
		from:       from,
		recipients: to,
	}, nil
}

// parseRecipients splits a comma-separated address list, trimming whitespace
// and dropping empty entries.
func parseRecipients(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if addr := strings.TrimSpace(part); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}

// Type returns the endpoint type this sink handles.
func (s *Sink) Type() string {
	return "email"
}

// Send renders the alert as an email and delivers it through the registry.
func (s *Sink) Send(ctx context.Context, alert *events.Alert) error {
	req := &provider.EmailRequest{
		From:    s.from,
		To:      s.recipients,
		Subject: BuildSubject(alert),
		Body:    BuildBody(alert),
	}
	if err := s.registry.Send(ctx, req); err != nil {
		return fmt.Errorf("failed to send email alert: %w", err)
	}
	return nil
}

// BuildSubject builds the email subject line for an alert.
func BuildSubject(alert *events.Alert) string {
	return fmt.Sprintf("Match alert: %s - %s (%s)", strings.ToUpper(alert.Severity), alert.Type, alert.MatchID)
}

// BuildBody builds the plain-text email body for an alert.
func BuildBody(alert *events.Alert) string {
	var sb strings.Builder
	sb.WriteString("Match Alert\n")
	sb.WriteString("===========\n\n")
	sb.WriteString(alert.Message)
	sb.WriteString("\n\n")
	sb.WriteString(fmt.Sprintf("Type: %s\n", alert.Type))
	sb.WriteString(fmt.Sprintf("Severity: %s\n", alert.Severity))
	sb.WriteString(fmt.Sprintf("Match ID: %s\n", alert.MatchID))
	sb.WriteString(fmt.Sprintf("Source: %s\n", alert.Source))
	sb.WriteString(fmt.Sprintf("Alert ID: %s\n", alert.ID))
	sb.WriteString(fmt.Sprintf("Time: %s\n", alert.Timestamp.UTC().Format("2006-01-02 15:04:05 UTC")))

	if len(alert.Data) > 0 {
		sb.WriteString("\nDetails:\n")
		for k, v := range alert.Data {
			sb.WriteString(fmt.Sprintf("  %s: %v\n", k, v))
		}
	}

	return sb.String()
}
