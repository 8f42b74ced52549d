package email

import (
	"context"
	"fmt"
	"strings"

	"github.com/resend/resend-go/v2"
)

// ResendSender delivers mail through the Resend API.
type ResendSender struct {
	client *resend.Client
	from   string
}

func NewResendSender(apiKey, from string) *ResendSender {
	return &ResendSender{client: resend.NewClient(apiKey), from: from}
}

func (s *ResendSender) Name() string {
	return "resend"
}

func (s *ResendSender) Send(ctx context.Context, msg Message) (string, error) {
	if len(msg.To) == 0 {
		return "", Permanent(fmt.Errorf("no recipients"))
	}
	req := &resend.SendEmailRequest{
		From:    s.from,
		To:      msg.To,
		Subject: msg.Subject,
		Html:    msg.HTML,
		Text:    msg.Text,
	}
	if msg.IdempotencyKey != "" {
		req.Headers = map[string]string{"X-Entity-Ref-ID": msg.IdempotencyKey}
	}
	for name, value := range msg.Tags {
		req.Tags = append(req.Tags, resend.Tag{Name: name, Value: value})
	}

	sent, err := s.client.Emails.SendWithContext(ctx, req)
	if err != nil {
		return "", classifyResendError(err)
	}
	return sent.Id, nil
}

// Status returns the last event Resend recorded for the message.
func (s *ResendSender) Status(ctx context.Context, providerID string) (string, error) {
	sent, err := s.client.Emails.GetWithContext(ctx, providerID)
	if err != nil {
		return "", fmt.Errorf("resend get email: %w", err)
	}
	return sent.LastEvent, nil
}

// Cancel cancels a scheduled message.
func (s *ResendSender) Cancel(ctx context.Context, providerID string) error {
	if _, err := s.client.Emails.CancelWithContext(ctx, providerID); err != nil {
		return fmt.Errorf("resend cancel email: %w", err)
	}
	return nil
}

// classifyResendError treats validation and auth failures as permanent; rate
// limits and server errors stay retryable.
func classifyResendError(err error) error {
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"validation_error", "invalid_", "missing_required_field", "restricted_api_key", "invalid_api_key"} {
		if strings.Contains(msg, marker) {
			return Permanent(err)
		}
	}
	return err
}
