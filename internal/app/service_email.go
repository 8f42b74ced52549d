package app

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"nel/api/internal/email"
	"nel/api/internal/logger"
	"nel/api/internal/store"
)

func (s *Service) GetEmailStatus(ctx context.Context, session Session, emailID string) (store.EmailRecord, error) {
	if err := s.requireAdmin(session); err != nil {
		return store.EmailRecord{}, err
	}
	rec, err := s.mailer.Status(ctx, emailID)
	return rec, orNotFound(err, "Email")
}

func (s *Service) CancelEmail(ctx context.Context, session Session, emailID string) (store.EmailRecord, error) {
	if err := s.requireAdmin(session); err != nil {
		return store.EmailRecord{}, err
	}
	rec, err := s.mailer.Cancel(ctx, emailID)
	return rec, orNotFound(err, "Email")
}

// HandleEmailWebhook verifies and applies a Resend delivery event.
func (s *Service) HandleEmailWebhook(ctx context.Context, header http.Header, body []byte) (email.Event, error) {
	if s.cfg.ResendWebhookSecret == "" {
		return email.Event{}, domainError(http.StatusServiceUnavailable, "WEBHOOK_UNAVAILABLE", "Email webhook not configured", nil)
	}
	if err := email.VerifyWebhook(s.cfg.ResendWebhookSecret, header, body, s.now()); err != nil {
		logger.FromContext(ctx).Warn("email webhook rejected", zap.Error(err))
		return email.Event{}, err
	}
	event, err := email.ParseEvent(body)
	if err != nil {
		return email.Event{}, validationError(err.Error(), nil)
	}
	if err := s.mailer.HandleEvent(ctx, event); err != nil {
		return email.Event{}, err
	}
	return event, nil
}
