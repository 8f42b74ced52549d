package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrDuplicate is returned when an insert hits a unique constraint.
var ErrDuplicate = errors.New("duplicate record")

// psql builds Postgres ($n) placeholders.
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// Ping checks database connectivity
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type scanner interface {
	Scan(dest ...any) error
}

type RefreshSession struct {
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL, created_at=NOW()
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (RefreshSession, error) {
	const query = `
		SELECT user_id, created_at, expires_at
		FROM refresh_sessions
		WHERE token_hash = $1
			AND revoked_at IS NULL
			AND expires_at > NOW()
	`
	var session RefreshSession
	err := s.db.QueryRowContext(ctx, query, tokenHash).Scan(&session.UserID, &session.CreatedAt, &session.ExpiresAt)
	if err != nil {
		return RefreshSession{}, err
	}
	return session, nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1)`, jti).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return exists, nil
}

// PurgeExpiredSessions drops refresh sessions and revoked-token entries that
// can no longer be presented.
func (s *PostgresStore) PurgeExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM refresh_sessions WHERE expires_at < $1 OR revoked_at IS NOT NULL`, now)
	if err != nil {
		return 0, fmt.Errorf("purge refresh sessions: %w", err)
	}
	sessions, _ := res.RowsAffected()
	res, err = s.db.ExecContext(ctx, `DELETE FROM revoked_access_tokens WHERE expires_at < $1`, now)
	if err != nil {
		return sessions, fmt.Errorf("purge revoked tokens: %w", err)
	}
	tokens, _ := res.RowsAffected()
	return sessions + tokens, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func encodeJSON(value any) (string, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("encode json: %w", err)
	}
	return string(raw), nil
}

// encodeList stores nil slices as [] so JSONB columns never hold null.
func encodeList(values []string) string {
	if values == nil {
		return "[]"
	}
	raw, _ := json.Marshal(values)
	return string(raw)
}

func encodeMap(values map[string]any) (string, error) {
	if values == nil {
		return "{}", nil
	}
	return encodeJSON(values)
}

func decodeJSON(raw []byte, target any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("decode json: %w", err)
	}
	return nil
}

func decodeList(raw []byte) ([]string, error) {
	values := []string{}
	if err := decodeJSON(raw, &values); err != nil {
		return nil, err
	}
	return values, nil
}

func decodeMap(raw []byte) (map[string]any, error) {
	values := map[string]any{}
	if err := decodeJSON(raw, &values); err != nil {
		return nil, err
	}
	return values, nil
}

func decodeLocation(raw []byte) (*Location, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var loc Location
	if err := decodeJSON(raw, &loc); err != nil {
		return nil, err
	}
	return &loc, nil
}

func encodeLocation(loc *Location) (any, error) {
	if loc == nil {
		return nil, nil
	}
	return encodeJSON(loc)
}

func nullString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return *value
}

func nullFloat(value *float64) any {
	if value == nil {
		return nil
	}
	return *value
}

func timePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	t := value.Time
	return &t
}

func floatPtr(value sql.NullFloat64) *float64 {
	if !value.Valid {
		return nil
	}
	f := value.Float64
	return &f
}

func affectedOrNotFound(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
