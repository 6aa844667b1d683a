package provider

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/resend/resend-go/v2"
)

// sendEmailFunc matches the Resend client's Emails.Send. The indirection
// lets tests exercise request construction without the real API.
type sendEmailFunc func(*resend.SendEmailRequest) (*resend.SendEmailResponse, error)

// ResendProvider delivers mail through the Resend HTTP API.
type ResendProvider struct {
	send sendEmailFunc
}

// NewResendProvider builds a Resend provider from an API key. An empty key
// yields an unconfigured provider that the registry skips.
func NewResendProvider(apiKey string) *ResendProvider {
	p := &ResendProvider{}
	if apiKey != "" {
		p.send = resend.NewClient(apiKey).Emails.Send
	}
	return p
}

func (p *ResendProvider) Name() string { return "resend" }

func (p *ResendProvider) IsConfigured() bool { return p.send != nil }

// Send delivers one email. Recipient validation happens upstream in the
// email sink, so the request is forwarded as-is.
func (p *ResendProvider) Send(ctx context.Context, req *EmailRequest) error {
	if p.send == nil {
		return fmt.Errorf("resend provider not configured")
	}

	result, err := p.send(&resend.SendEmailRequest{
		From:    req.From,
		To:      req.To,
		Subject: req.Subject,
		Text:    req.Body,
		Html:    req.HTML,
	})
	if err != nil {
		return fmt.Errorf("resend send: %w", err)
	}

	slog.Info("Email sent via Resend", "email_id", result.Id, "to", req.To)
	return nil
}
