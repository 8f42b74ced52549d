package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// CreateOrganization inserts the organization and makes owner its admin.
func (s *PostgresStore) CreateOrganization(ctx context.Context, org Organization, ownerID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create organization: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO organizations (id, name, slug) VALUES ($1, $2, $3)
	`, org.ID, org.Name, org.Slug); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert organization: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO memberships (org_id, user_id, role) VALUES ($1, $2, 'admin')
	`, org.ID, ownerID); err != nil {
		return fmt.Errorf("insert owner membership: %w", err)
	}
	return tx.Commit()
}

func (s *PostgresStore) GetOrganization(ctx context.Context, orgID string) (Organization, error) {
	var org Organization
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, slug, created_at, updated_at FROM organizations WHERE id=$1
	`, orgID).Scan(&org.ID, &org.Name, &org.Slug, &org.CreatedAt, &org.UpdatedAt)
	if err != nil {
		return Organization{}, err
	}
	return org, nil
}

func (s *PostgresStore) ListUserMemberships(ctx context.Context, userID string) ([]Membership, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.org_id, m.user_id, m.role, o.name, m.created_at
		FROM memberships m
		JOIN organizations o ON o.id = m.org_id
		WHERE m.user_id = $1
		ORDER BY m.created_at ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	defer rows.Close()

	items := []Membership{}
	for rows.Next() {
		var m Membership
		if err := rows.Scan(&m.OrgID, &m.UserID, &m.Role, &m.OrgName, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

func (s *PostgresStore) GetMembership(ctx context.Context, orgID, userID string) (Membership, error) {
	var m Membership
	err := s.db.QueryRowContext(ctx, `
		SELECT org_id, user_id, role, created_at FROM memberships WHERE org_id=$1 AND user_id=$2
	`, orgID, userID).Scan(&m.OrgID, &m.UserID, &m.Role, &m.CreatedAt)
	if err != nil {
		return Membership{}, err
	}
	return m, nil
}

func (s *PostgresStore) ListMembers(ctx context.Context, orgID string) ([]Membership, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.org_id, m.user_id, m.role, u.email, u.name, m.created_at
		FROM memberships m
		JOIN users u ON u.id = m.user_id
		WHERE m.org_id = $1
		ORDER BY u.name ASC
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	items := []Membership{}
	for rows.Next() {
		var m Membership
		if err := rows.Scan(&m.OrgID, &m.UserID, &m.Role, &m.UserEmail, &m.UserName, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

func (s *PostgresStore) AddMembership(ctx context.Context, orgID, userID, role string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO memberships (org_id, user_id, role) VALUES ($1, $2, $3)
		ON CONFLICT (org_id, user_id) DO UPDATE SET role = EXCLUDED.role
	`, orgID, userID, role)
	if err != nil {
		return fmt.Errorf("add membership: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateInvitation(ctx context.Context, inv Invitation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO invitations (id, org_id, email, role, token, invited_by, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, inv.ID, inv.OrgID, inv.Email, inv.Role, inv.Token, inv.InvitedBy, inv.ExpiresAt)
	if err != nil {
		return fmt.Errorf("create invitation: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetInvitationByToken(ctx context.Context, token string) (Invitation, error) {
	var (
		inv        Invitation
		acceptedAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, org_id, email, role, token, invited_by, expires_at, accepted_at, created_at
		FROM invitations WHERE token=$1
	`, token).Scan(&inv.ID, &inv.OrgID, &inv.Email, &inv.Role, &inv.Token, &inv.InvitedBy, &inv.ExpiresAt, &acceptedAt, &inv.CreatedAt)
	if err != nil {
		return Invitation{}, err
	}
	inv.AcceptedAt = timePtr(acceptedAt)
	return inv, nil
}

// AcceptInvitation marks the invitation used and adds the membership in one transaction.
func (s *PostgresStore) AcceptInvitation(ctx context.Context, inv Invitation, userID string, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin accept invitation: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE invitations SET accepted_at=$2 WHERE id=$1 AND accepted_at IS NULL
	`, inv.ID, at)
	if err != nil {
		return fmt.Errorf("mark invitation accepted: %w", err)
	}
	if err := affectedOrNotFound(res); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO memberships (org_id, user_id, role) VALUES ($1, $2, $3)
		ON CONFLICT (org_id, user_id) DO NOTHING
	`, inv.OrgID, userID, inv.Role); err != nil {
		return fmt.Errorf("insert invited membership: %w", err)
	}
	return tx.Commit()
}
