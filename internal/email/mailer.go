package email

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"nel/api/internal/logger"
	"nel/api/internal/metrics"
	"nel/api/internal/store"
	"nel/api/internal/util"
)

const (
	maxAttempts    = 3
	idempotencyTTL = 24 * time.Hour
)

// Records persists email bookkeeping.
type Records interface {
	ClaimEmail(ctx context.Context, rec store.EmailRecord) (store.EmailRecord, bool, error)
	RecordEmailAttempt(ctx context.Context, emailID, providerID, status, lastError string, attempts int) error
	GetEmail(ctx context.Context, emailID string) (store.EmailRecord, error)
	GetEmailByProviderID(ctx context.Context, providerID string) (store.EmailRecord, error)
	UpdateEmailStatus(ctx context.Context, emailID, status string) error
	InsertEmailEvent(ctx context.Context, event store.EmailEvent) error
}

// Claimer is a fast idempotency guard in front of Records, typically Redis.
type Claimer interface {
	ClaimIdempotencyKey(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ReleaseIdempotencyKey(ctx context.Context, key string) error
}

// Result describes a Send call.
type Result struct {
	Record       store.EmailRecord
	Deduplicated bool
}

// Mailer sends templated messages at most once per idempotency key.
type Mailer struct {
	sender  Sender
	records Records
	claimer Claimer
	backoff time.Duration
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewMailer creates a mailer. A nil sender disables delivery; a nil claimer
// leaves idempotency to the unique key in Records.
func NewMailer(sender Sender, records Records, claimer Claimer) *Mailer {
	return &Mailer{
		sender:  sender,
		records: records,
		claimer: claimer,
		backoff: 500 * time.Millisecond,
		sleep:   sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Enabled reports whether a delivery provider is configured.
func (m *Mailer) Enabled() bool {
	return m != nil && m.sender != nil
}

// Provider names the configured provider, or "disabled".
func (m *Mailer) Provider() string {
	if !m.Enabled() {
		return "disabled"
	}
	return m.sender.Name()
}

// IdempotencyKey derives a key from the template, recipients and subject.
func IdempotencyKey(template string, msg Message) string {
	sum := sha256.Sum256([]byte(template + "\x00" + strings.Join(msg.To, ",") + "\x00" + msg.Subject))
	return template + ":" + hex.EncodeToString(sum[:12])
}

// Send delivers msg once per idempotency key, retrying transient failures
// with exponential backoff.
func (m *Mailer) Send(ctx context.Context, template string, msg Message) (Result, error) {
	if !m.Enabled() {
		return Result{}, ErrNotConfigured
	}
	log := logger.FromContext(ctx)
	if msg.IdempotencyKey == "" {
		msg.IdempotencyKey = IdempotencyKey(template, msg)
	}

	if m.claimer != nil {
		ok, err := m.claimer.ClaimIdempotencyKey(ctx, msg.IdempotencyKey, idempotencyTTL)
		if err != nil {
			log.Warn("email: idempotency claim failed, relying on database", zap.Error(err))
		} else if !ok {
			metrics.EmailsSent.WithLabelValues(m.sender.Name(), "deduplicated").Inc()
			return Result{Record: store.EmailRecord{IdempotencyKey: msg.IdempotencyKey}, Deduplicated: true}, nil
		}
	}

	rec, created, err := m.records.ClaimEmail(ctx, store.EmailRecord{
		ID:             util.NewID("eml"),
		Provider:       m.sender.Name(),
		Template:       template,
		Recipient:      strings.Join(msg.To, ","),
		Subject:        msg.Subject,
		IdempotencyKey: msg.IdempotencyKey,
	})
	if err != nil {
		m.release(ctx, msg.IdempotencyKey)
		return Result{}, err
	}
	if !created && rec.Status != "failed" {
		metrics.EmailsSent.WithLabelValues(m.sender.Name(), "deduplicated").Inc()
		return Result{Record: rec, Deduplicated: true}, nil
	}

	var lastErr error
	attempts := rec.Attempts
	for i := 0; i < maxAttempts; i++ {
		if i > 0 {
			if err := m.sleep(ctx, m.backoff*time.Duration(1<<(i-1))); err != nil {
				lastErr = err
				break
			}
		}
		attempts++
		if err := m.records.RecordEmailAttempt(ctx, rec.ID, "", "sending", "", attempts); err != nil {
			log.Warn("email: record attempt", zap.String("email_id", rec.ID), zap.Error(err))
		}

		providerID, err := m.sender.Send(ctx, msg)
		if err == nil {
			if err := m.records.RecordEmailAttempt(ctx, rec.ID, providerID, "sent", "", attempts); err != nil {
				log.Warn("email: record delivery", zap.String("email_id", rec.ID), zap.Error(err))
			}
			metrics.EmailsSent.WithLabelValues(m.sender.Name(), "sent").Inc()
			rec.ProviderID = providerID
			rec.Status = "sent"
			rec.Attempts = attempts
			rec.LastError = ""
			return Result{Record: rec}, nil
		}
		lastErr = err
		log.Warn("email: send attempt failed",
			zap.String("email_id", rec.ID),
			zap.String("template", template),
			zap.Int("attempt", attempts),
			zap.Error(err),
		)
		if IsPermanent(err) {
			break
		}
	}

	if err := m.records.RecordEmailAttempt(ctx, rec.ID, "", "failed", lastErr.Error(), attempts); err != nil {
		log.Warn("email: record failure", zap.String("email_id", rec.ID), zap.Error(err))
	}
	metrics.EmailsSent.WithLabelValues(m.sender.Name(), "failed").Inc()
	m.release(ctx, msg.IdempotencyKey)
	return Result{}, fmt.Errorf("send %s email: %w", template, lastErr)
}

func (m *Mailer) release(ctx context.Context, key string) {
	if m.claimer == nil {
		return
	}
	if err := m.claimer.ReleaseIdempotencyKey(context.WithoutCancel(ctx), key); err != nil {
		logger.FromContext(ctx).Warn("email: release idempotency key", zap.Error(err))
	}
}

// Status returns the stored record, refreshed from the provider when it can
// report delivery state.
func (m *Mailer) Status(ctx context.Context, emailID string) (store.EmailRecord, error) {
	rec, err := m.records.GetEmail(ctx, emailID)
	if err != nil {
		return store.EmailRecord{}, err
	}
	tracker, ok := m.sender.(Tracker)
	if !ok || rec.ProviderID == "" {
		return rec, nil
	}
	status, err := tracker.Status(ctx, rec.ProviderID)
	if err != nil {
		logger.FromContext(ctx).Warn("email: provider status lookup failed", zap.String("email_id", emailID), zap.Error(err))
		return rec, nil
	}
	if status != "" && status != rec.Status {
		if err := m.records.UpdateEmailStatus(ctx, rec.ID, status); err != nil {
			return store.EmailRecord{}, err
		}
		rec.Status = status
	}
	return rec, nil
}

// ErrNotCancelable is returned for emails that were already delivered.
var ErrNotCancelable = errors.New("email can no longer be canceled")

// Cancel stops a queued or scheduled email.
func (m *Mailer) Cancel(ctx context.Context, emailID string) (store.EmailRecord, error) {
	rec, err := m.records.GetEmail(ctx, emailID)
	if err != nil {
		return store.EmailRecord{}, err
	}
	switch rec.Status {
	case "canceled":
		return rec, nil
	case "delivered", "bounced", "complained", "opened", "clicked":
		return store.EmailRecord{}, ErrNotCancelable
	}
	if rec.ProviderID != "" {
		tracker, ok := m.sender.(Tracker)
		if !ok {
			return store.EmailRecord{}, ErrNotCancelable
		}
		if err := tracker.Cancel(ctx, rec.ProviderID); err != nil {
			return store.EmailRecord{}, err
		}
	}
	if err := m.records.UpdateEmailStatus(ctx, rec.ID, "canceled"); err != nil {
		return store.EmailRecord{}, err
	}
	rec.Status = "canceled"
	return rec, nil
}

// HandleEvent stores a provider webhook event and advances the email status.
// Events for emails we never sent are stored unlinked; lookup failures are
// returned so the provider retries the delivery.
func (m *Mailer) HandleEvent(ctx context.Context, event Event) error {
	rec, err := m.records.GetEmailByProviderID(ctx, event.Data.EmailID)
	emailID := ""
	switch {
	case err == nil:
		emailID = rec.ID
	case errors.Is(err, sql.ErrNoRows):
		logger.FromContext(ctx).Info("email: webhook for unknown email",
			zap.String("provider_id", event.Data.EmailID),
			zap.String("type", event.Type),
		)
	default:
		return fmt.Errorf("look up email for webhook: %w", err)
	}

	occurred := event.CreatedAt
	if occurred.IsZero() {
		occurred = time.Now().UTC()
	}
	if err := m.records.InsertEmailEvent(ctx, store.EmailEvent{
		ID:         util.NewID("evt"),
		EmailID:    emailID,
		ProviderID: event.Data.EmailID,
		EventType:  event.Type,
		Data:       event.Raw,
		OccurredAt: occurred,
	}); err != nil {
		return err
	}

	status := StatusForEvent(event.Type)
	if emailID == "" || status == "" {
		return nil
	}
	return m.records.UpdateEmailStatus(ctx, emailID, status)
}
