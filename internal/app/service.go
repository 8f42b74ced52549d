package app

import (
	"context"
	"database/sql"
	"errors"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"nel/api/internal/auth"
	"nel/api/internal/authpw"
	"nel/api/internal/config"
	"nel/api/internal/email"
	"nel/api/internal/export"
	"nel/api/internal/logger"
	"nel/api/internal/rbac"
	"nel/api/internal/search"
	"nel/api/internal/storage"
	"nel/api/internal/store"
	"nel/api/internal/util"
)

// Session is the authenticated caller. Role is the global user role and
// OrgRole the membership role in the selected organization.
type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Email        string
	Role         string
	OrgID        string
	OrgRole      string
	JTI          string
	ExpiresAt    time.Time
}

// EffectiveRole is the stronger of the global and organization roles.
func (s Session) EffectiveRole() rbac.Role {
	roles := []rbac.Role{rbac.Normalize(s.Role)}
	if s.OrgRole != "" {
		roles = append(roles, rbac.Normalize(s.OrgRole))
	}
	return rbac.Highest(roles...)
}

// SessionStore keeps refresh sessions and revoked access tokens. Postgres
// and Redis both implement it.
type SessionStore interface {
	SaveRefreshSession(context.Context, string, string, time.Time) error
	LookupRefreshSession(context.Context, string) (store.RefreshSession, error)
	RevokeRefreshSession(context.Context, string) error
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)
}

type DataStore interface {
	SessionStore
	authpw.UserStore
	email.Records
	export.DataStore
	search.Source
	search.ReindexSource

	Ping(ctx context.Context) error

	ListUsers(context.Context, store.UserFilter) ([]store.User, error)
	UpdateUserRole(context.Context, string, string) error
	UpdateUserProfile(context.Context, string, string, string, store.Profile) error
	UpdateUserPreferences(context.Context, string, store.Preferences) error
	SetUserBan(context.Context, string, bool, string) error
	TrackLogin(context.Context, string, time.Time) error

	CreateOrganization(context.Context, store.Organization, string) error
	GetOrganization(context.Context, string) (store.Organization, error)
	ListUserMemberships(context.Context, string) ([]store.Membership, error)
	GetMembership(context.Context, string, string) (store.Membership, error)
	ListMembers(context.Context, string) ([]store.Membership, error)
	CreateInvitation(context.Context, store.Invitation) error
	GetInvitationByToken(context.Context, string) (store.Invitation, error)
	AcceptInvitation(context.Context, store.Invitation, string, time.Time) error

	ListProjectsByStatus(context.Context, string, string) ([]store.Project, error)
	ListProjectsByManager(context.Context, string, string) ([]store.Project, error)
	CreateProject(context.Context, store.Project) error
	UpdateProject(context.Context, store.Project) error
	DeleteProject(context.Context, string, string) error

	GetTask(context.Context, string, string) (store.Task, error)
	ListTasksByStatus(context.Context, string, string) ([]store.Task, error)
	ListOverdueTasks(context.Context, string, time.Time) ([]store.Task, error)
	CreateTask(context.Context, store.Task) error
	UpdateTask(context.Context, store.Task) error
	UpdateTaskStatus(context.Context, string, string, string, *time.Time) error
	DeleteTask(context.Context, string, string) error
	CountProjectTasks(context.Context, string, string) (int, int, error)

	CreateResource(context.Context, store.Resource) error
	UpdateResourceStatus(context.Context, string, string, string) error
	CountResourcesByStatus(context.Context, string, string, string) (int, int, error)
	ListEquipmentByProject(context.Context, string, string) ([]store.Equipment, error)
	ListEquipmentDueForMaintenance(context.Context, string, time.Time) ([]store.Equipment, error)
	CreateEquipment(context.Context, store.Equipment) error
	UpdateEquipmentStatus(context.Context, string, string, string) error

	CreateSiteActivity(context.Context, store.SiteActivity) error
	ListSiteActivities(context.Context, string, string, int) ([]store.SiteActivity, error)
	GetIncident(context.Context, string, string) (store.SafetyIncident, error)
	CreateIncident(context.Context, store.SafetyIncident) error
	ResolveIncident(context.Context, string, string, string, time.Time) error
	IncidentStats(context.Context, string) (store.IncidentStats, error)

	CreateDocument(context.Context, store.Document) error
	GetDocument(context.Context, string, string) (store.Document, error)
	ListDocuments(context.Context, string, string) ([]store.Document, error)
	DeleteDocument(context.Context, string, string) error

	CreateMetric(context.Context, store.AnalyticsSample) error
	ListMetrics(context.Context, string, string, string, int) ([]store.AnalyticsSample, error)

	InsertNotification(context.Context, store.Notification, time.Duration, time.Time) (store.Notification, bool, error)
	ListActiveNotifications(context.Context, string, time.Time, int) ([]store.Notification, error)
	CountUnreadNotifications(context.Context, string, time.Time) (int, error)
	MarkNotificationRead(context.Context, string, string, time.Time) error
	MarkAllNotificationsRead(context.Context, string, time.Time) (int64, error)
	DeleteNotification(context.Context, string, string) error
	DeleteExpiredNotifications(context.Context, time.Time) (int64, error)

	ListActivePlans(context.Context) ([]store.Plan, error)
	GetPlan(context.Context, string) (store.Plan, error)
	GetActiveSubscription(context.Context, string) (store.Subscription, error)
	GetSubscription(context.Context, string) (store.Subscription, error)
	UpdateSubscription(context.Context, store.Subscription) error
	UpsertSubscription(context.Context, store.Subscription) error
	SetSubscriptionStatusByExternalID(context.Context, string, string) error
	CancelSubscription(context.Context, string, bool, time.Time) error
	SubscriptionAnalytics(context.Context) (store.SubscriptionAnalytics, error)
}

type Service struct {
	cfg      config.Config
	store    DataStore
	sessions SessionStore
	auth     *authpw.Service
	search   *search.Service
	mailer   *email.Mailer
	blobs    *storage.Blobs
	exporter *export.Service
	now      func() time.Time
}

type Option func(*Service)

// WithSessionStore keeps refresh sessions outside Postgres, typically in Redis.
func WithSessionStore(sessions SessionStore) Option {
	return func(s *Service) {
		if sessions != nil {
			s.sessions = sessions
		}
	}
}

func WithSearch(svc *search.Service) Option {
	return func(s *Service) {
		if svc != nil {
			s.search = svc
		}
	}
}

func WithMailer(m *email.Mailer) Option {
	return func(s *Service) {
		if m != nil {
			s.mailer = m
		}
	}
}

// WithBlobs enables document uploads. A nil store leaves them disabled.
func WithBlobs(b *storage.Blobs) Option {
	return func(s *Service) { s.blobs = b }
}

func New(cfg config.Config, dataStore DataStore, opts ...Option) *Service {
	s := &Service{
		cfg:      cfg,
		store:    dataStore,
		sessions: dataStore,
		auth:     authpw.NewService(dataStore),
		search:   search.NewService(nil, dataStore),
		mailer:   email.NewMailer(nil, dataStore, nil),
		exporter: export.NewService(dataStore),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) EmailConfigured() bool {
	return s.mailer.Enabled()
}

func (s *Service) Development() bool {
	return s.cfg.IsDevelopment()
}

// Reindex rebuilds the search indexes from Postgres.
func (s *Service) Reindex(ctx context.Context) (int, int, error) {
	return s.search.Reindex(ctx, s.store)
}

func (s *Service) issueSession(ctx context.Context, user store.User, orgID, refresh string) (Session, error) {
	now := s.now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	if orgID == "" {
		memberships, err := s.store.ListUserMemberships(ctx, user.ID)
		if err != nil {
			return Session{}, err
		}
		if len(memberships) > 0 {
			orgID = memberships[0].OrgID
		}
	}

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:   user.ID,
		Name:  user.Name,
		Email: user.Email,
		Role:  user.Role,
		OrgID: orgID,
		JTI:   jti,
		Exp:   expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	if refresh == "" {
		refresh = util.NewID("rft") + util.NewID("")
		if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, now.Add(s.cfg.RefreshTTL)); err != nil {
			return Session{}, err
		}
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.Name,
		Email:        user.Email,
		Role:         user.Role,
		OrgID:        orgID,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

// Refresh issues a new access token. The refresh token itself is rotated
// only once the session is older than the configured update age.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return Session{}, auth.ErrInvalidToken
	}
	tokenHash := auth.HashToken(refreshToken)
	refresh, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, auth.ErrInvalidToken
		}
		return Session{}, err
	}
	user, err := s.store.GetUserByID(ctx, refresh.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, auth.ErrInvalidToken
		}
		return Session{}, err
	}
	if user.Banned {
		_ = s.sessions.RevokeRefreshSession(ctx, tokenHash)
		return Session{}, authpw.ErrUserBanned
	}

	if s.now().Sub(refresh.CreatedAt) < s.cfg.RefreshUpdateAge {
		return s.issueSession(ctx, user, "", refreshToken)
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user, "", "")
}

// SessionFromToken authenticates an access token. orgID selects the
// organization for this request; when empty the token's organization is used.
func (s *Service) SessionFromToken(ctx context.Context, token, orgID string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.sessions.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, auth.ErrInvalidToken
		}
		return Session{}, err
	}
	if user.Banned {
		return Session{}, authpw.ErrUserBanned
	}

	session := Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.Name,
		Email:     user.Email,
		Role:      user.Role,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}

	orgID = strings.TrimSpace(orgID)
	if orgID == "" {
		orgID = claims.OrgID
	}
	if orgID == "" {
		return session, nil
	}
	membership, err := s.store.GetMembership(ctx, orgID, user.ID)
	switch {
	case err == nil:
		session.OrgRole = membership.Role
	case errors.Is(err, sql.ErrNoRows):
		if rbac.Normalize(user.Role) != rbac.RoleAdmin {
			return Session{}, errNotMember
		}
	default:
		return Session{}, err
	}
	session.OrgID = orgID
	return session, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	log := logger.FromContext(ctx)
	if session.JTI != "" {
		if err := s.sessions.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt); err != nil {
			log.Warn("logout: revoke access token", zap.Error(err))
		}
	}
	if refreshToken != "" {
		if err := s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken)); err != nil {
			log.Warn("logout: revoke refresh session", zap.Error(err))
		}
	}
	return nil
}

func (s *Service) Can(session Session, action rbac.Action) bool {
	return rbac.Can(session.EffectiveRole(), action)
}

func (s *Service) authorize(session Session, action rbac.Action) error {
	if session.UserID == "" {
		return errNotAuthenticated
	}
	if !s.Can(session, action) {
		return errForbidden
	}
	return nil
}

// authorizeOrg is authorize plus a selected organization.
func (s *Service) authorizeOrg(session Session, action rbac.Action) error {
	if err := s.authorize(session, action); err != nil {
		return err
	}
	if session.OrgID == "" {
		return errOrgRequired
	}
	return nil
}

func (s *Service) requireAdmin(session Session) error {
	if session.UserID == "" {
		return errNotAuthenticated
	}
	if rbac.Normalize(session.Role) != rbac.RoleAdmin {
		return errForbidden
	}
	return nil
}

// sendEmail delivers a templated message and logs instead of failing the
// caller; email is best effort everywhere except the explicit email routes.
func (s *Service) sendEmail(ctx context.Context, template string, msg email.Message, buildErr error) bool {
	log := logger.FromContext(ctx)
	if buildErr != nil {
		log.Error("email: render failed", zap.String("template", template), zap.Error(buildErr))
		return false
	}
	if !s.mailer.Enabled() {
		return false
	}
	if _, err := s.mailer.Send(ctx, template, msg); err != nil {
		log.Warn("email: send failed", zap.String("template", template), zap.Error(err))
		return false
	}
	return true
}

func (s *Service) siteURL(path string, query url.Values) string {
	link := s.cfg.SiteURL + path
	if len(query) > 0 {
		link += "?" + query.Encode()
	}
	return link
}
