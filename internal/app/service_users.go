package app

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"nel/api/internal/authpw"
	"nel/api/internal/email"
	"nel/api/internal/logger"
	"nel/api/internal/rbac"
	"nel/api/internal/store"
	"nel/api/internal/util"
)

const (
	DevAdminEmail = "admin@alias.com.ai"
	DevAdminName  = "Admin User"

	defaultUserLimit = 50
	maxUserLimit     = 200
)

// SignUpResult carries the verification token back to the HTTP layer, which
// only exposes it when email delivery is not configured.
type SignUpResult struct {
	User              store.User
	VerificationToken string
	EmailSent         bool
}

func (s *Service) SignUp(ctx context.Context, emailAddr, password, name string) (SignUpResult, error) {
	resp, err := s.auth.SignUp(ctx, authpw.SignUpRequest{Email: emailAddr, Password: password, Name: name})
	if err != nil {
		return SignUpResult{}, err
	}
	msg, err := email.VerificationMessage(resp.User.Email, resp.User.Name,
		s.siteURL("/verify-email", url.Values{"token": {resp.VerificationToken}}))
	sent := s.sendEmail(ctx, email.TemplateVerification, msg, err)
	logger.FromContext(ctx).Info("user signed up", zap.String("user_id", resp.User.ID), zap.Bool("email_sent", sent))
	return SignUpResult{User: resp.User, VerificationToken: resp.VerificationToken, EmailSent: sent}, nil
}

// SignIn checks credentials and opens a session. Unverified accounts get no
// session.
func (s *Service) SignIn(ctx context.Context, emailAddr, password string) (Session, error) {
	resp, err := s.auth.SignIn(ctx, authpw.SignInRequest{Email: emailAddr, Password: password})
	if err != nil {
		return Session{}, err
	}
	if resp.RequiresVerify {
		return Session{}, domainError(http.StatusForbidden, "EMAIL_NOT_VERIFIED", "Please verify your email before signing in", nil)
	}
	session, err := s.issueSession(ctx, resp.User, "", "")
	if err != nil {
		return Session{}, err
	}
	if err := s.store.TrackLogin(ctx, resp.User.ID, s.now()); err != nil {
		logger.FromContext(ctx).Warn("track login", zap.String("user_id", resp.User.ID), zap.Error(err))
	}
	return session, nil
}

func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	return s.auth.VerifyEmail(ctx, strings.TrimSpace(token))
}

// ResendVerification mails a fresh verification link. The token is returned
// for the development bypass and is empty for unknown or verified accounts.
func (s *Service) ResendVerification(ctx context.Context, emailAddr string) (string, error) {
	user, token, err := s.auth.ResendVerification(ctx, emailAddr)
	if err != nil || token == "" {
		return "", err
	}
	msg, err := email.VerificationMessage(user.Email, user.Name, s.siteURL("/verify-email", url.Values{"token": {token}}))
	s.sendEmail(ctx, email.TemplateVerification, msg, err)
	return token, nil
}

// RequestPasswordReset mails a reset link when the account exists.
func (s *Service) RequestPasswordReset(ctx context.Context, emailAddr string) (string, error) {
	user, token, err := s.auth.RequestPasswordReset(ctx, emailAddr)
	if err != nil || token == "" {
		return "", err
	}
	msg, err := email.PasswordResetMessage(user.Email, user.Name, s.siteURL("/reset-password", url.Values{"token": {token}}))
	msg.IdempotencyKey = "password-reset:" + token
	s.sendEmail(ctx, email.TemplatePasswordReset, msg, err)
	return token, nil
}

func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	return s.auth.ResetPassword(ctx, authpw.ResetPasswordRequest{Token: token, NewPassword: newPassword})
}

func (s *Service) GetCurrentUser(ctx context.Context, session Session) (store.User, error) {
	if session.UserID == "" {
		return store.User{}, errNotAuthenticated
	}
	user, err := s.store.GetUserByID(ctx, session.UserID)
	return user, orNotFound(err, "User")
}

func (s *Service) GetUserByEmail(ctx context.Context, session Session, emailAddr string) (store.User, error) {
	if err := s.authorize(session, rbac.ActionRead); err != nil {
		return store.User{}, err
	}
	user, err := s.store.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(emailAddr)))
	return user, orNotFound(err, "User")
}

type ProfileInput struct {
	Name    *string        `json:"name"`
	Image   *string        `json:"image"`
	Profile *store.Profile `json:"profile"`
}

func (s *Service) UpdateProfile(ctx context.Context, session Session, in ProfileInput) (store.User, error) {
	user, err := s.GetCurrentUser(ctx, session)
	if err != nil {
		return store.User{}, err
	}
	if in.Name != nil {
		user.Name = strings.TrimSpace(*in.Name)
	}
	if in.Image != nil {
		user.Image = strings.TrimSpace(*in.Image)
	}
	if in.Profile != nil {
		user.Profile = *in.Profile
	}
	if user.Name == "" {
		return store.User{}, validationError("name is required", map[string]string{"name": "name is required"})
	}
	if err := s.store.UpdateUserProfile(ctx, user.ID, user.Name, user.Image, user.Profile); err != nil {
		return store.User{}, orNotFound(err, "User")
	}
	return user, nil
}

type PreferencesInput struct {
	Theme         *string                        `json:"theme"`
	Notifications *store.NotificationPreferences `json:"notifications"`
	Language      *string                        `json:"language"`
}

func (s *Service) UpdateUserPreferences(ctx context.Context, session Session, in PreferencesInput) (store.Preferences, error) {
	user, err := s.GetCurrentUser(ctx, session)
	if err != nil {
		return store.Preferences{}, err
	}
	prefs := user.Preferences
	if in.Theme != nil {
		errs := fieldErrors{}
		errs.oneOf("theme", *in.Theme, themes)
		if err := errs.err(); err != nil {
			return store.Preferences{}, err
		}
		prefs.Theme = *in.Theme
	}
	if in.Notifications != nil {
		prefs.Notifications = *in.Notifications
	}
	if in.Language != nil {
		prefs.Language = strings.TrimSpace(*in.Language)
	}
	if err := s.store.UpdateUserPreferences(ctx, user.ID, prefs); err != nil {
		return store.Preferences{}, orNotFound(err, "User")
	}
	return prefs, nil
}

type CreateUserInput struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Role     string `json:"role"`
	Password string `json:"password"`
}

// CreateUser adds a verified account directly. Admins may always do this;
// anyone may in development.
func (s *Service) CreateUser(ctx context.Context, session Session, in CreateUserInput) (store.User, error) {
	if !s.cfg.IsDevelopment() {
		if err := s.requireAdmin(session); err != nil {
			return store.User{}, err
		}
	}
	if in.Role == "" {
		in.Role = string(rbac.RoleUser)
	}
	errs := fieldErrors{}
	errs.required("email", in.Email)
	errs.required("name", in.Name)
	errs.check(rbac.Valid(in.Role), "role", "role must be one of admin, manager, moderator, user")
	errs.check(in.Password == "" || len(in.Password) >= authpw.MinPasswordLength, "password", authpw.ErrWeakPassword.Error())
	if err := errs.err(); err != nil {
		return store.User{}, err
	}

	user := store.User{
		ID:            util.NewID("usr"),
		Email:         strings.ToLower(strings.TrimSpace(in.Email)),
		Name:          strings.TrimSpace(in.Name),
		Role:          in.Role,
		EmailVerified: true,
	}
	if in.Password != "" {
		hash, err := authpw.HashPassword(in.Password)
		if err != nil {
			return store.User{}, err
		}
		user.PasswordHash = hash
	}
	if _, err := s.store.GetUserByEmail(ctx, user.Email); err == nil {
		return store.User{}, authpw.ErrUserExists
	} else if !errors.Is(err, sql.ErrNoRows) {
		return store.User{}, err
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return store.User{}, authpw.ErrUserExists
		}
		return store.User{}, err
	}

	msg, err := email.WelcomeMessage(user.Email, user.Name, s.siteURL("/dashboard", nil))
	s.sendEmail(ctx, email.TemplateWelcome, msg, err)
	return user, nil
}

// CreateDevAdmin ensures the development admin account exists. It reports
// whether the account was created by this call.
func (s *Service) CreateDevAdmin(ctx context.Context, password string) (store.User, bool, error) {
	if !s.cfg.IsDevelopment() {
		return store.User{}, false, domainError(http.StatusForbidden, "DEV_ONLY", "Dev admin creation only available in development mode", nil)
	}
	existing, err := s.store.GetUserByEmail(ctx, DevAdminEmail)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return store.User{}, false, err
	}
	user, err := s.CreateUser(ctx, Session{}, CreateUserInput{
		Email:    DevAdminEmail,
		Name:     DevAdminName,
		Role:     string(rbac.RoleAdmin),
		Password: password,
	})
	if err != nil {
		return store.User{}, false, err
	}
	logger.FromContext(ctx).Info("dev admin created", zap.String("user_id", user.ID))
	return user, true, nil
}

func (s *Service) SetUserRole(ctx context.Context, session Session, userID, role string) error {
	if err := s.requireAdmin(session); err != nil {
		return err
	}
	if !rbac.Valid(role) {
		return validationError("role must be one of admin, manager, moderator, user", nil)
	}
	return orNotFound(s.store.UpdateUserRole(ctx, userID, role), "User")
}

type UserQuery struct {
	Limit  int
	Offset int
	Role   string
	Search string
}

// ListUsers pages through users. Search matches the exact name or email.
func (s *Service) ListUsers(ctx context.Context, session Session, q UserQuery) ([]store.User, error) {
	if err := s.requireAdmin(session); err != nil {
		return nil, err
	}
	if q.Role != "" && !rbac.Valid(q.Role) {
		return nil, validationError("role must be one of admin, manager, moderator, user", nil)
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	return s.store.ListUsers(ctx, store.UserFilter{
		Role:   q.Role,
		Search: strings.TrimSpace(q.Search),
		Limit:  clampLimit(q.Limit, defaultUserLimit, maxUserLimit),
		Offset: q.Offset,
	})
}

// ToggleUserBan flips the ban flag and returns the new state. Banned users
// can neither sign in nor refresh.
func (s *Service) ToggleUserBan(ctx context.Context, session Session, userID, reason string) (bool, error) {
	if err := s.requireAdmin(session); err != nil {
		return false, err
	}
	if userID == session.UserID {
		return false, validationError("You cannot ban yourself", nil)
	}
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return false, orNotFound(err, "User")
	}
	banned := !user.Banned
	if !banned {
		reason = ""
	}
	if err := s.store.SetUserBan(ctx, userID, banned, strings.TrimSpace(reason)); err != nil {
		return false, orNotFound(err, "User")
	}
	logger.FromContext(ctx).Info("user ban toggled", zap.String("user_id", userID), zap.Bool("banned", banned))
	return banned, nil
}
