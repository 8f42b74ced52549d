package app

import (
	"context"
	"strings"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"nel/api/internal/email"
	"nel/api/internal/logger"
	"nel/api/internal/metrics"
	"nel/api/internal/notify"
	"nel/api/internal/rbac"
	"nel/api/internal/store"
	"nel/api/internal/util"
)

// notificationScanLimit bounds how many of the newest raw rows a listing
// reconciles. Pages past that window come back empty; the unread count is
// computed in SQL and is not affected.
const notificationScanLimit = 1000

// emailedNotificationTypes also go out by email when the user opted in.
var emailedNotificationTypes = []string{"warning", "error", "system"}

type NotificationInput struct {
	UserID    string         `json:"userId"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Type      string         `json:"type"`
	Data      map[string]any `json:"data"`
	DedupeKey string         `json:"dedupeKey"`
	ExpiresAt *time.Time     `json:"expiresAt"`
}

type NotificationPage struct {
	Items       []store.Notification
	UnreadCount int
}

// Notify validates and stores a notification. An unread, unexpired
// notification with the same dedupe key absorbs it; the existing one is
// returned with deduplicated=true.
func (s *Service) Notify(ctx context.Context, n store.Notification) (store.Notification, bool, error) {
	now := s.now()
	n.Title = strings.TrimSpace(n.Title)
	n.Message = strings.TrimSpace(n.Message)

	errs := fieldErrors{}
	errs.required("userId", n.UserID)
	errs.required("title", n.Title)
	errs.required("message", n.Message)
	errs.oneOf("type", n.Type, notify.Types)
	errs.check(n.ExpiresAt == nil || n.ExpiresAt.After(now), "expiresAt", "expiresAt must be in the future")
	if err := errs.err(); err != nil {
		return store.Notification{}, false, err
	}

	if n.DedupeKey == "" {
		n.DedupeKey = notify.DedupeKey(n.Type, n.Title, n.Message, n.Data)
	}
	n.ID = util.NewID("ntf")
	n.Read, n.ReadAt = false, nil

	saved, deduplicated, err := s.store.InsertNotification(ctx, n, s.cfg.NotificationDedupeWindow, now)
	if err != nil {
		return store.Notification{}, false, err
	}
	if deduplicated {
		metrics.NotificationsDeduplicated.Inc()
		return saved, true, nil
	}
	metrics.NotificationsCreated.WithLabelValues(saved.Type).Inc()
	s.emailNotification(ctx, saved)
	return saved, false, nil
}

func (s *Service) emailNotification(ctx context.Context, n store.Notification) {
	if !s.mailer.Enabled() || !lo.Contains(emailedNotificationTypes, n.Type) {
		return
	}
	user, err := s.store.GetUserByID(ctx, n.UserID)
	if err != nil {
		logger.FromContext(ctx).Warn("notification email: load user", zap.String("user_id", n.UserID), zap.Error(err))
		return
	}
	if !user.Preferences.Notifications.Email || user.Banned {
		return
	}
	msg, err := email.NotificationMessage(user.Email, user.Name, n.Title, n.Message, s.siteURL("/dashboard/notifications", nil), "View details")
	msg.IdempotencyKey = "notification:" + n.ID
	s.sendEmail(ctx, email.TemplateNotification, msg, err)
}

// ListNotifications returns the caller's reconciled, unexpired notifications
// newest first. read filters by read state when set. Only the newest
// notificationScanLimit raw rows are paged through.
func (s *Service) ListNotifications(ctx context.Context, session Session, limit, offset int, read *bool) (NotificationPage, error) {
	if err := s.authorize(session, rbac.ActionRead); err != nil {
		return NotificationPage{}, err
	}
	items, err := s.reconciledNotifications(ctx, session.UserID)
	if err != nil {
		return NotificationPage{}, err
	}
	unread, err := s.store.CountUnreadNotifications(ctx, session.UserID, s.now())
	if err != nil {
		return NotificationPage{}, err
	}
	return NotificationPage{
		Items:       notify.Page(notify.FilterRead(items, read), notify.NormalizeLimit(limit), offset),
		UnreadCount: unread,
	}, nil
}

// UnreadNotificationCount counts reconciled unread entries across all of the
// caller's unexpired notifications.
func (s *Service) UnreadNotificationCount(ctx context.Context, session Session) (int, error) {
	if err := s.authorize(session, rbac.ActionRead); err != nil {
		return 0, err
	}
	return s.store.CountUnreadNotifications(ctx, session.UserID, s.now())
}

func (s *Service) reconciledNotifications(ctx context.Context, userID string) ([]store.Notification, error) {
	now := s.now()
	raw, err := s.store.ListActiveNotifications(ctx, userID, now, notificationScanLimit)
	if err != nil {
		return nil, err
	}
	return notify.Reconcile(notify.Active(raw, now)), nil
}

// CreateNotification notifies in.UserID, the caller by default. Notifying
// someone else needs the manage permission.
func (s *Service) CreateNotification(ctx context.Context, session Session, in NotificationInput) (store.Notification, bool, error) {
	if err := s.authorize(session, rbac.ActionWrite); err != nil {
		return store.Notification{}, false, err
	}
	if in.UserID == "" {
		in.UserID = session.UserID
	}
	if in.UserID != session.UserID && !s.Can(session, rbac.ActionManage) {
		return store.Notification{}, false, errForbidden
	}
	if in.Type == "" {
		in.Type = "info"
	}
	return s.Notify(ctx, store.Notification{
		OrgID:     session.OrgID,
		UserID:    in.UserID,
		Title:     in.Title,
		Message:   in.Message,
		Type:      in.Type,
		Data:      in.Data,
		DedupeKey: strings.TrimSpace(in.DedupeKey),
		ExpiresAt: in.ExpiresAt,
	})
}

func (s *Service) MarkNotificationRead(ctx context.Context, session Session, notificationID string) error {
	if err := s.authorize(session, rbac.ActionRead); err != nil {
		return err
	}
	err := s.store.MarkNotificationRead(ctx, session.UserID, notificationID, s.now())
	return orNotFound(err, "Notification")
}

func (s *Service) MarkAllNotificationsRead(ctx context.Context, session Session) (int64, error) {
	if err := s.authorize(session, rbac.ActionRead); err != nil {
		return 0, err
	}
	return s.store.MarkAllNotificationsRead(ctx, session.UserID, s.now())
}

func (s *Service) DeleteNotification(ctx context.Context, session Session, notificationID string) error {
	if err := s.authorize(session, rbac.ActionRead); err != nil {
		return err
	}
	err := s.store.DeleteNotification(ctx, session.UserID, notificationID)
	return orNotFound(err, "Notification")
}

type SystemNotificationInput struct {
	Title     string     `json:"title"`
	Message   string     `json:"message"`
	Type      string     `json:"type"`
	ExpiresAt *time.Time `json:"expiresAt"`
}

// SendSystemNotification fans a notification out to every member of the
// caller's organization and returns how many were newly created.
func (s *Service) SendSystemNotification(ctx context.Context, session Session, in SystemNotificationInput) (int, error) {
	if err := s.requireAdmin(session); err != nil {
		return 0, err
	}
	if session.OrgID == "" {
		return 0, errOrgRequired
	}
	if in.Type == "" {
		in.Type = "system"
	}
	if in.ExpiresAt != nil && !in.ExpiresAt.After(s.now()) {
		return 0, validationError("expiresAt must be in the future", nil)
	}
	members, err := s.store.ListMembers(ctx, session.OrgID)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, member := range members {
		_, dup, err := s.Notify(ctx, store.Notification{
			OrgID:     session.OrgID,
			UserID:    member.UserID,
			Title:     in.Title,
			Message:   in.Message,
			Type:      in.Type,
			ExpiresAt: in.ExpiresAt,
		})
		if err != nil {
			return sent, err
		}
		if !dup {
			sent++
		}
	}
	logger.FromContext(ctx).Info("system notification sent",
		zap.String("org_id", session.OrgID),
		zap.Int("members", len(members)),
		zap.Int("created", sent),
	)
	return sent, nil
}

// CleanupExpiredNotifications deletes expired notifications everywhere.
func (s *Service) CleanupExpiredNotifications(ctx context.Context, session Session) (int64, error) {
	if err := s.requireAdmin(session); err != nil {
		return 0, err
	}
	n, err := s.store.DeleteExpiredNotifications(ctx, s.now())
	if err != nil {
		return 0, err
	}
	metrics.NotificationsExpired.Add(float64(n))
	return n, nil
}
