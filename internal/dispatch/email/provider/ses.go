package provider

import (
	"context"
	"fmt"
	"log/slog"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// sesAPI is the slice of the SESv2 client this provider uses.
type sesAPI interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, opts ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESProvider delivers mail through AWS SESv2.
type SESProvider struct {
	api    sesAPI
	region string
}

// NewSESProvider builds an SES provider for the given region. Credentials
// come from the default AWS chain (instance role, env vars, shared config);
// a failed chain lookup yields an unconfigured provider that the registry
// skips.
func NewSESProvider(ctx context.Context, region string) *SESProvider {
	p := &SESProvider{region: region}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		slog.Warn("AWS config unavailable, SES provider disabled", "region", region, "error", err)
		return p
	}
	p.api = sesv2.NewFromConfig(cfg)
	return p
}

func (p *SESProvider) Name() string { return "ses" }

func (p *SESProvider) IsConfigured() bool { return p.api != nil }

// Send delivers one email as an SES simple message.
func (p *SESProvider) Send(ctx context.Context, req *EmailRequest) error {
	if p.api == nil {
		return fmt.Errorf("ses provider not configured")
	}

	out, err := p.api.SendEmail(ctx, buildSESInput(req))
	if err != nil {
		return fmt.Errorf("ses send: %w", err)
	}

	if out.MessageId != nil {
		slog.Info("Email sent via SES", "message_id", *out.MessageId, "to", req.To)
	}
	return nil
}

func buildSESInput(req *EmailRequest) *sesv2.SendEmailInput {
	body := &types.Body{}
	if req.Body != "" {
		body.Text = &types.Content{Data: &req.Body}
	}
	if req.HTML != "" {
		body.Html = &types.Content{Data: &req.HTML}
	}

	return &sesv2.SendEmailInput{
		FromEmailAddress: &req.From,
		Destination:      &types.Destination{ToAddresses: req.To},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: &req.Subject},
				Body:    body,
			},
		},
	}
}
