package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
)

var userColumns = []string{
	"id", "email", "name", "image", "email_verified", "role", "department",
	"permissions", "preferences", "profile", "password_hash",
	"COALESCE(verification_token, '')", "verification_expires_at",
	"banned", "ban_reason", "last_login_at", "login_count", "created_at", "updated_at",
}

// UserFilter narrows ListUsers. Search matches a name or email exactly.
type UserFilter struct {
	Role   string
	Search string
	Limit  int
	Offset int
}

func scanUser(row scanner) (User, error) {
	var (
		user                       User
		permissions, prefs, prof   []byte
		verificationExpires, login sql.NullTime
	)
	err := row.Scan(
		&user.ID, &user.Email, &user.Name, &user.Image, &user.EmailVerified, &user.Role, &user.Department,
		&permissions, &prefs, &prof, &user.PasswordHash,
		&user.VerificationToken, &verificationExpires,
		&user.Banned, &user.BanReason, &login, &user.LoginCount, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return User{}, err
	}
	if user.Permissions, err = decodeList(permissions); err != nil {
		return User{}, err
	}
	if err := decodeJSON(prefs, &user.Preferences); err != nil {
		return User{}, err
	}
	if err := decodeJSON(prof, &user.Profile); err != nil {
		return User{}, err
	}
	user.VerificationExpiresAt = timePtr(verificationExpires)
	user.LastLoginAt = timePtr(login)
	return user, nil
}

func (s *PostgresStore) getUser(ctx context.Context, where sq.Sqlizer) (User, error) {
	query, args, err := psql.Select(userColumns...).From("users").Where(where).ToSql()
	if err != nil {
		return User{}, fmt.Errorf("build user query: %w", err)
	}
	return scanUser(s.db.QueryRowContext(ctx, query, args...))
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	return s.getUser(ctx, sq.Eq{"id": userID})
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return s.getUser(ctx, sq.Eq{"LOWER(email)": strings.ToLower(strings.TrimSpace(email))})
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	prefs, err := encodeJSON(user.Preferences)
	if err != nil {
		return err
	}
	profile, err := encodeJSON(user.Profile)
	if err != nil {
		return err
	}
	if user.Role == "" {
		user.Role = "user"
	}
	query, args, err := psql.Insert("users").
		Columns("id", "email", "name", "image", "email_verified", "role", "department",
			"permissions", "preferences", "profile", "password_hash", "verification_token", "verification_expires_at", "last_login_at", "login_count").
		Values(user.ID, strings.TrimSpace(user.Email), user.Name, user.Image, user.EmailVerified, user.Role, user.Department,
			encodeList(user.Permissions), prefs, profile, user.PasswordHash, nullString(user.VerificationToken),
			nullTime(user.VerificationExpiresAt), nullTime(user.LastLoginAt), user.LoginCount).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert user: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListUsers(ctx context.Context, filter UserFilter) ([]User, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	q := psql.Select(userColumns...).From("users").OrderBy("created_at DESC").Limit(uint64(limit))
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}
	if filter.Role != "" {
		q = q.Where(sq.Eq{"role": filter.Role})
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		q = q.Where(sq.Or{sq.Eq{"name": search}, sq.Eq{"LOWER(email)": strings.ToLower(search)}})
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list users: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := []User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (s *PostgresStore) UpdateUserVerificationToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET verification_token=$2, verification_expires_at=$3, updated_at=NOW()
		WHERE id=$1
	`, userID, token, expiresAt)
	if err != nil {
		return fmt.Errorf("update verification token: %w", err)
	}
	return nil
}

func (s *PostgresStore) VerifyUserEmail(ctx context.Context, token string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET email_verified=TRUE, verification_token=NULL, verification_expires_at=NULL, updated_at=NOW()
		WHERE verification_token=$1 AND verification_expires_at > NOW()
	`, token)
	if err != nil {
		return fmt.Errorf("verify email: %w", err)
	}
	return affectedOrNotFound(res)
}

func (s *PostgresStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash=$2, updated_at=NOW() WHERE id=$1`, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return affectedOrNotFound(res)
}

func (s *PostgresStore) CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO password_resets (token, user_id, expires_at) VALUES ($1, $2, $3)
	`, token, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("create password reset: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPasswordReset(ctx context.Context, token string) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id FROM password_resets
		WHERE token=$1 AND used_at IS NULL AND expires_at > NOW()
	`, token).Scan(&userID)
	if err != nil {
		return "", err
	}
	return userID, nil
}

func (s *PostgresStore) MarkPasswordResetUsed(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE password_resets SET used_at=NOW() WHERE token=$1`, token)
	if err != nil {
		return fmt.Errorf("mark password reset used: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateUserRole(ctx context.Context, userID, role string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET role=$2, updated_at=NOW() WHERE id=$1`, userID, role)
	if err != nil {
		return fmt.Errorf("update user role: %w", err)
	}
	return affectedOrNotFound(res)
}

func (s *PostgresStore) UpdateUserProfile(ctx context.Context, userID, name, image string, profile Profile) error {
	encoded, err := encodeJSON(profile)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET name=$2, image=$3, profile=$4, updated_at=NOW() WHERE id=$1
	`, userID, name, image, encoded)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	return affectedOrNotFound(res)
}

func (s *PostgresStore) UpdateUserPreferences(ctx context.Context, userID string, prefs Preferences) error {
	encoded, err := encodeJSON(prefs)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE users SET preferences=$2, updated_at=NOW() WHERE id=$1`, userID, encoded)
	if err != nil {
		return fmt.Errorf("update preferences: %w", err)
	}
	return affectedOrNotFound(res)
}

func (s *PostgresStore) SetUserBan(ctx context.Context, userID string, banned bool, reason string) error {
	if !banned {
		reason = ""
	}
	res, err := s.db.ExecContext(ctx, `UPDATE users SET banned=$2, ban_reason=$3, updated_at=NOW() WHERE id=$1`, userID, banned, reason)
	if err != nil {
		return fmt.Errorf("set user ban: %w", err)
	}
	return affectedOrNotFound(res)
}

func (s *PostgresStore) TrackLogin(ctx context.Context, userID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET last_login_at=$2, login_count=login_count+1 WHERE id=$1
	`, userID, at)
	if err != nil {
		return fmt.Errorf("track login: %w", err)
	}
	return nil
}
