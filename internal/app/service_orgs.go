package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"nel/api/internal/email"
	"nel/api/internal/rbac"
	"nel/api/internal/store"
	"nel/api/internal/util"
)

const InvitationTTL = 7 * 24 * time.Hour

var slugInvalid = regexp.MustCompile(`[^a-z0-9]+`)

func slugify(name string) string {
	return strings.Trim(slugInvalid.ReplaceAllString(strings.ToLower(name), "-"), "-")
}

// CreateOrganization creates an organization with the caller as its admin.
func (s *Service) CreateOrganization(ctx context.Context, session Session, name, slug string) (store.Organization, error) {
	if session.UserID == "" {
		return store.Organization{}, errNotAuthenticated
	}
	name = strings.TrimSpace(name)
	if slug = slugify(slug); slug == "" {
		slug = slugify(name)
	}
	if name == "" || slug == "" {
		return store.Organization{}, validationError("name is required", map[string]string{"name": "name is required"})
	}
	now := s.now()
	org := store.Organization{
		ID:        util.NewID("org"),
		Name:      name,
		Slug:      slug,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateOrganization(ctx, org, session.UserID); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return store.Organization{}, domainError(http.StatusConflict, "SLUG_TAKEN", "Organization slug already taken", nil)
		}
		return store.Organization{}, err
	}
	return org, nil
}

func (s *Service) ListMyOrganizations(ctx context.Context, session Session) ([]store.Membership, error) {
	if session.UserID == "" {
		return nil, errNotAuthenticated
	}
	return s.store.ListUserMemberships(ctx, session.UserID)
}

func (s *Service) ListMembers(ctx context.Context, session Session) ([]store.Membership, error) {
	if err := s.authorizeOrg(session, rbac.ActionRead); err != nil {
		return nil, err
	}
	return s.store.ListMembers(ctx, session.OrgID)
}

// InviteMember creates a seven day invitation and mails it.
func (s *Service) InviteMember(ctx context.Context, session Session, emailAddr, role string) (store.Invitation, error) {
	if err := s.authorizeOrg(session, rbac.ActionManage); err != nil {
		return store.Invitation{}, err
	}
	if role == "" {
		role = string(rbac.RoleUser)
	}
	emailAddr = strings.ToLower(strings.TrimSpace(emailAddr))
	errs := fieldErrors{}
	errs.check(strings.Contains(emailAddr, "@"), "email", "email is invalid")
	errs.check(rbac.Valid(role), "role", "role must be one of admin, manager, moderator, user")
	if err := errs.err(); err != nil {
		return store.Invitation{}, err
	}
	// Managers cannot hand out a role above their own.
	if rbac.Highest(rbac.Role(role), session.EffectiveRole()) != session.EffectiveRole() {
		return store.Invitation{}, errForbidden
	}

	org, err := s.store.GetOrganization(ctx, session.OrgID)
	if err != nil {
		return store.Invitation{}, orNotFound(err, "Organization")
	}
	token, err := randomToken()
	if err != nil {
		return store.Invitation{}, err
	}
	now := s.now()
	inv := store.Invitation{
		ID:        util.NewID("inv"),
		OrgID:     org.ID,
		Email:     emailAddr,
		Role:      role,
		Token:     token,
		InvitedBy: session.UserID,
		ExpiresAt: now.Add(InvitationTTL),
		CreatedAt: now,
	}
	if err := s.store.CreateInvitation(ctx, inv); err != nil {
		return store.Invitation{}, err
	}

	msg, err := email.InvitationMessage(inv.Email, session.UserName, org.Name, inv.Role,
		s.siteURL("/invitations/accept", url.Values{"token": {token}}))
	msg.IdempotencyKey = "invitation:" + inv.ID
	s.sendEmail(ctx, email.TemplateInvitation, msg, err)
	return inv, nil
}

// AcceptInvitation adds the caller to the inviting organization. The
// invitation must be addressed to the caller's email.
func (s *Service) AcceptInvitation(ctx context.Context, session Session, token string) (store.Membership, error) {
	if session.UserID == "" {
		return store.Membership{}, errNotAuthenticated
	}
	inv, err := s.store.GetInvitationByToken(ctx, strings.TrimSpace(token))
	if err != nil {
		return store.Membership{}, orNotFound(err, "Invitation")
	}
	now := s.now()
	switch {
	case inv.AcceptedAt != nil:
		return store.Membership{}, domainError(http.StatusConflict, "INVITATION_USED", "Invitation already accepted", nil)
	case !inv.ExpiresAt.After(now):
		return store.Membership{}, domainError(http.StatusGone, "INVITATION_EXPIRED", "Invitation expired", nil)
	case !strings.EqualFold(inv.Email, session.Email):
		return store.Membership{}, domainError(http.StatusForbidden, "INVITATION_MISMATCH", "Invitation was sent to a different email", nil)
	}
	if err := s.store.AcceptInvitation(ctx, inv, session.UserID, now); err != nil {
		return store.Membership{}, err
	}
	return store.Membership{OrgID: inv.OrgID, UserID: session.UserID, Role: inv.Role, UserEmail: session.Email, UserName: session.UserName, CreatedAt: now}, nil
}

func randomToken() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
