package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

var notificationColumns = []string{
	"id", "org_id", "user_id", "title", "message", "type", "read", "read_at", "data", "dedupe_key", "expires_at", "created_at",
}

func scanNotification(row scanner) (Notification, error) {
	var (
		n                 Notification
		readAt, expiresAt sql.NullTime
		data              []byte
	)
	err := row.Scan(&n.ID, &n.OrgID, &n.UserID, &n.Title, &n.Message, &n.Type, &n.Read, &readAt, &data,
		&n.DedupeKey, &expiresAt, &n.CreatedAt)
	if err != nil {
		return Notification{}, err
	}
	n.ReadAt = timePtr(readAt)
	n.ExpiresAt = timePtr(expiresAt)
	if n.Data, err = decodeMap(data); err != nil {
		return Notification{}, err
	}
	return n, nil
}

// activeAt matches notifications that have not expired at now.
func activeAt(now time.Time) sq.Sqlizer {
	return sq.Or{sq.Eq{"expires_at": nil}, sq.Gt{"expires_at": now}}
}

// InsertNotification stores n unless the user already has an unread,
// unexpired notification with the same dedupe key; in that case the existing
// row is returned with deduplicated=true. Unread duplicates that expired, or
// that are older than window when window > 0, are replaced.
func (s *PostgresStore) InsertNotification(ctx context.Context, n Notification, window time.Duration, now time.Time) (Notification, bool, error) {
	data, err := encodeMap(n.Data)
	if err != nil {
		return Notification{}, false, err
	}

	staleBefore := time.Time{}
	if window > 0 {
		staleBefore = now.Add(-window)
	}
	dropStale, dropArgs, err := psql.Delete("notifications").
		Where("user_id = ?", n.UserID).
		Where("dedupe_key = ?", n.DedupeKey).
		Where("NOT read").
		Where(sq.Or{
			sq.And{sq.NotEq{"expires_at": nil}, sq.LtOrEq{"expires_at": now}},
			sq.Lt{"created_at": staleBefore},
		}).
		ToSql()
	if err != nil {
		return Notification{}, false, fmt.Errorf("build drop stale duplicates: %w", err)
	}
	insert, insertArgs, err := psql.Insert("notifications").
		Columns("id", "org_id", "user_id", "title", "message", "type", "data", "dedupe_key", "expires_at", "created_at").
		Values(n.ID, n.OrgID, n.UserID, n.Title, n.Message, n.Type, data, n.DedupeKey, nullTime(n.ExpiresAt), now).
		Suffix("ON CONFLICT (user_id, dedupe_key) WHERE NOT read DO NOTHING RETURNING created_at").
		ToSql()
	if err != nil {
		return Notification{}, false, fmt.Errorf("build insert notification: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Notification{}, false, fmt.Errorf("begin insert notification: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, dropStale, dropArgs...); err != nil {
		return Notification{}, false, fmt.Errorf("drop stale duplicates: %w", err)
	}

	var createdAt time.Time
	err = tx.QueryRowContext(ctx, insert, insertArgs...).Scan(&createdAt)
	if err == nil {
		if err := tx.Commit(); err != nil {
			return Notification{}, false, fmt.Errorf("commit notification: %w", err)
		}
		n.CreatedAt = createdAt
		if n.Data == nil {
			n.Data = map[string]any{}
		}
		return n, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Notification{}, false, fmt.Errorf("insert notification: %w", err)
	}

	query, args, err := psql.Select(notificationColumns...).From("notifications").
		Where("user_id = ?", n.UserID).
		Where("dedupe_key = ?", n.DedupeKey).
		Where("NOT read").
		ToSql()
	if err != nil {
		return Notification{}, false, fmt.Errorf("build load duplicate: %w", err)
	}
	existing, err := scanNotification(tx.QueryRowContext(ctx, query, args...))
	if err != nil {
		return Notification{}, false, fmt.Errorf("load duplicate notification: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Notification{}, false, fmt.Errorf("commit notification: %w", err)
	}
	return existing, true, nil
}

// ListActiveNotifications returns up to max unexpired notifications of a
// user, newest first.
func (s *PostgresStore) ListActiveNotifications(ctx context.Context, userID string, now time.Time, max int) ([]Notification, error) {
	query, args, err := psql.Select(notificationColumns...).From("notifications").
		Where("user_id = ?", userID).
		Where(activeAt(now)).
		OrderBy("created_at DESC").
		Limit(uint64(max)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list notifications: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	items := []Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		items = append(items, n)
	}
	return items, rows.Err()
}

// CountUnreadNotifications counts the dedupe keys that have at least one
// unread, unexpired notification, which is the unread count after duplicates
// are reconciled.
func (s *PostgresStore) CountUnreadNotifications(ctx context.Context, userID string, now time.Time) (int, error) {
	query, args, err := psql.Select("COUNT(DISTINCT dedupe_key)").From("notifications").
		Where("user_id = ?", userID).
		Where("NOT read").
		Where(activeAt(now)).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count unread notifications: %w", err)
	}
	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) notificationDedupeKey(ctx context.Context, userID, notificationID string) (string, error) {
	query, args, err := psql.Select("dedupe_key").From("notifications").
		Where("user_id = ?", userID).
		Where("id = ?", notificationID).
		ToSql()
	if err != nil {
		return "", fmt.Errorf("build notification key: %w", err)
	}
	var key string
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&key); err != nil {
		return "", err
	}
	return key, nil
}

// MarkNotificationRead marks the notification and every unread duplicate
// sharing its dedupe key as read.
func (s *PostgresStore) MarkNotificationRead(ctx context.Context, userID, notificationID string, at time.Time) error {
	key, err := s.notificationDedupeKey(ctx, userID, notificationID)
	if err != nil {
		return err
	}
	query, args, err := psql.Update("notifications").
		Set("read", true).
		Set("read_at", at).
		Where("user_id = ?", userID).
		Where(sq.Or{sq.Eq{"id": notificationID}, sq.Eq{"dedupe_key": key}}).
		Where("NOT read").
		ToSql()
	if err != nil {
		return fmt.Errorf("build mark notification read: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	return nil
}

func (s *PostgresStore) MarkAllNotificationsRead(ctx context.Context, userID string, at time.Time) (int64, error) {
	query, args, err := psql.Update("notifications").
		Set("read", true).
		Set("read_at", at).
		Where("user_id = ?", userID).
		Where("NOT read").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build mark all notifications read: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	return res.RowsAffected()
}

// DeleteNotification removes the notification together with its duplicates so
// an older copy does not resurface.
func (s *PostgresStore) DeleteNotification(ctx context.Context, userID, notificationID string) error {
	key, err := s.notificationDedupeKey(ctx, userID, notificationID)
	if err != nil {
		return err
	}
	query, args, err := psql.Delete("notifications").
		Where("user_id = ?", userID).
		Where(sq.Or{sq.Eq{"id": notificationID}, sq.Eq{"dedupe_key": key}}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete notification: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	return nil
}

// DeleteExpiredNotifications removes notifications whose expiry is strictly
// before now.
func (s *PostgresStore) DeleteExpiredNotifications(ctx context.Context, now time.Time) (int64, error) {
	query, args, err := psql.Delete("notifications").
		Where(sq.NotEq{"expires_at": nil}).
		Where(sq.Lt{"expires_at": now}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete expired notifications: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete expired notifications: %w", err)
	}
	return res.RowsAffected()
}
