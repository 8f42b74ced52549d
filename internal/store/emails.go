package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const emailColumns = `id, provider, provider_id, template, recipient, subject, status, idempotency_key, last_error,
	attempts, created_at, updated_at`

func scanEmail(row scanner) (EmailRecord, error) {
	var rec EmailRecord
	err := row.Scan(&rec.ID, &rec.Provider, &rec.ProviderID, &rec.Template, &rec.Recipient, &rec.Subject,
		&rec.Status, &rec.IdempotencyKey, &rec.LastError, &rec.Attempts, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return EmailRecord{}, err
	}
	return rec, nil
}

// ClaimEmail records a queued email. When the idempotency key was already
// claimed the existing record is returned with created=false.
func (s *PostgresStore) ClaimEmail(ctx context.Context, rec EmailRecord) (EmailRecord, bool, error) {
	var createdAt time.Time
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO emails (id, provider, template, recipient, subject, status, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, 'queued', $6)
		ON CONFLICT (idempotency_key) DO NOTHING
		RETURNING created_at
	`, rec.ID, rec.Provider, rec.Template, rec.Recipient, rec.Subject, rec.IdempotencyKey).Scan(&createdAt)
	if err == nil {
		rec.Status = "queued"
		rec.CreatedAt = createdAt
		rec.UpdatedAt = createdAt
		return rec, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return EmailRecord{}, false, fmt.Errorf("claim email: %w", err)
	}
	existing, err := scanEmail(s.db.QueryRowContext(ctx,
		`SELECT `+emailColumns+` FROM emails WHERE idempotency_key=$1`, rec.IdempotencyKey))
	if err != nil {
		return EmailRecord{}, false, fmt.Errorf("load claimed email: %w", err)
	}
	return existing, false, nil
}

func (s *PostgresStore) GetEmail(ctx context.Context, emailID string) (EmailRecord, error) {
	return scanEmail(s.db.QueryRowContext(ctx, `SELECT `+emailColumns+` FROM emails WHERE id=$1`, emailID))
}

func (s *PostgresStore) GetEmailByProviderID(ctx context.Context, providerID string) (EmailRecord, error) {
	return scanEmail(s.db.QueryRowContext(ctx, `SELECT `+emailColumns+` FROM emails WHERE provider_id=$1`, providerID))
}

// RecordEmailAttempt stores the outcome of one delivery attempt.
func (s *PostgresStore) RecordEmailAttempt(ctx context.Context, emailID, providerID, status, lastError string, attempts int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE emails SET provider_id=$2, status=$3, last_error=$4, attempts=$5, updated_at=NOW() WHERE id=$1
	`, emailID, providerID, status, lastError, attempts)
	if err != nil {
		return fmt.Errorf("record email attempt: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateEmailStatus(ctx context.Context, emailID, status string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE emails SET status=$2, updated_at=NOW() WHERE id=$1`, emailID, status)
	if err != nil {
		return fmt.Errorf("update email status: %w", err)
	}
	return affectedOrNotFound(res)
}

func (s *PostgresStore) InsertEmailEvent(ctx context.Context, event EmailEvent) error {
	data, err := encodeMap(event.Data)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO email_events (id, email_id, provider_id, event_type, data, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, event.ID, event.EmailID, event.ProviderID, event.EventType, data, event.OccurredAt)
	if err != nil {
		return fmt.Errorf("insert email event: %w", err)
	}
	return nil
}

// CleanupEmails removes finalized emails updated before finalizedBefore and
// emails stuck in queued or sending since abandonedBefore.
func (s *PostgresStore) CleanupEmails(ctx context.Context, finalizedBefore, abandonedBefore time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM emails
		WHERE (status NOT IN ('queued', 'sending') AND updated_at < $1)
			OR (status IN ('queued', 'sending') AND updated_at < $2)
	`, finalizedBefore, abandonedBefore)
	if err != nil {
		return 0, fmt.Errorf("cleanup emails: %w", err)
	}
	return res.RowsAffected()
}

func (s *PostgresStore) CleanupEmailEvents(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM email_events WHERE occurred_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("cleanup email events: %w", err)
	}
	return res.RowsAffected()
}
