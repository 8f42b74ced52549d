package app

import (
	"context"
	"database/sql"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"nel/api/internal/logger"
	"nel/api/internal/rbac"
	"nel/api/internal/store"
	"nel/api/internal/util"
)

type SubscriptionView struct {
	Subscription store.Subscription
	Plan         *store.Plan
}

type CheckoutSession struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}

type SubscriptionPatch struct {
	Status            *string `json:"status"`
	CancelAtPeriodEnd *bool   `json:"cancelAtPeriodEnd"`
}

// BillingEvent is a billing provider webhook, accepted as already verified.
type BillingEvent struct {
	Type string `json:"type"`
	Data struct {
		ID                string     `json:"id"`
		UserID            string     `json:"userId"`
		PlanID            string     `json:"planId"`
		Status            string     `json:"status"`
		Amount            int64      `json:"amount"`
		CancelAtPeriodEnd bool       `json:"cancelAtPeriodEnd"`
		CurrentPeriodEnd  *time.Time `json:"currentPeriodEnd"`
	} `json:"data"`
}

func (s *Service) ListPlans(ctx context.Context) ([]store.Plan, error) {
	return s.store.ListActivePlans(ctx)
}

// GetUserSubscription returns the user's active subscription with its plan,
// or nil. Only the user and admins may look.
func (s *Service) GetUserSubscription(ctx context.Context, session Session, userID string) (*SubscriptionView, error) {
	if session.UserID == "" {
		return nil, errNotAuthenticated
	}
	if userID == "" {
		userID = session.UserID
	}
	if userID != session.UserID && rbac.Normalize(session.Role) != rbac.RoleAdmin {
		return nil, errForbidden
	}
	sub, err := s.store.GetActiveSubscription(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	view := &SubscriptionView{Subscription: sub}
	if plan, err := s.store.GetPlan(ctx, sub.PlanID); err == nil {
		view.Plan = &plan
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return view, nil
}

// CreateCheckoutSession returns the URL the client is sent to for an active
// plan. No payment provider is called; the session id is generated locally.
func (s *Service) CreateCheckoutSession(ctx context.Context, session Session, planID, successURL, cancelURL string) (CheckoutSession, error) {
	if session.UserID == "" {
		return CheckoutSession{}, errNotAuthenticated
	}
	plan, err := s.store.GetPlan(ctx, planID)
	if err != nil || !plan.IsActive {
		if err == nil || errors.Is(err, sql.ErrNoRows) {
			return CheckoutSession{}, notFound("Plan")
		}
		return CheckoutSession{}, err
	}
	success, err := url.Parse(strings.TrimSpace(successURL))
	if err != nil || success.Scheme == "" || success.Host == "" {
		return CheckoutSession{}, validationError("successUrl must be an absolute URL", nil)
	}
	if _, err := url.Parse(cancelURL); err != nil {
		return CheckoutSession{}, validationError("cancelUrl is invalid", nil)
	}

	sessionID := util.NewID("cs")
	query := success.Query()
	query.Set("session_id", sessionID)
	success.RawQuery = query.Encode()
	logger.FromContext(ctx).Info("checkout session created",
		zap.String("user_id", session.UserID),
		zap.String("plan_id", plan.ID),
		zap.String("session_id", sessionID),
	)
	return CheckoutSession{SessionID: sessionID, URL: success.String()}, nil
}

func (s *Service) UpdateSubscription(ctx context.Context, session Session, subscriptionID string, patch SubscriptionPatch) (store.Subscription, error) {
	if err := s.requireAdmin(session); err != nil {
		return store.Subscription{}, err
	}
	sub, err := s.store.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return store.Subscription{}, orNotFound(err, "Subscription")
	}
	if patch.Status != nil {
		errs := fieldErrors{}
		errs.oneOf("status", *patch.Status, subscriptionStatuses)
		if err := errs.err(); err != nil {
			return store.Subscription{}, err
		}
		sub.Status = *patch.Status
	}
	if patch.CancelAtPeriodEnd != nil {
		sub.CancelAtPeriodEnd = *patch.CancelAtPeriodEnd
	}
	if err := s.store.UpdateSubscription(ctx, sub); err != nil {
		return store.Subscription{}, orNotFound(err, "Subscription")
	}
	sub.UpdatedAt = s.now()
	return sub, nil
}

// CancelSubscription cancels now or at period end. Owners and admins only.
func (s *Service) CancelSubscription(ctx context.Context, session Session, subscriptionID string, immediately bool) (store.Subscription, error) {
	if session.UserID == "" {
		return store.Subscription{}, errNotAuthenticated
	}
	sub, err := s.store.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return store.Subscription{}, orNotFound(err, "Subscription")
	}
	if sub.UserID != session.UserID && rbac.Normalize(session.Role) != rbac.RoleAdmin {
		return store.Subscription{}, errForbidden
	}
	now := s.now()
	if err := s.store.CancelSubscription(ctx, subscriptionID, immediately, now); err != nil {
		return store.Subscription{}, orNotFound(err, "Subscription")
	}
	if immediately {
		sub.Status, sub.CancelAtPeriodEnd = "canceled", false
	} else {
		sub.CancelAtPeriodEnd = true
	}
	sub.UpdatedAt = now
	return sub, nil
}

func (s *Service) GetSubscriptionAnalytics(ctx context.Context, session Session) (store.SubscriptionAnalytics, error) {
	if err := s.requireAdmin(session); err != nil {
		return store.SubscriptionAnalytics{}, err
	}
	return s.store.SubscriptionAnalytics(ctx)
}

// HandleBillingWebhook applies a billing event. It reports whether the event
// type was recognized.
func (s *Service) HandleBillingWebhook(ctx context.Context, event BillingEvent) (bool, error) {
	log := logger.FromContext(ctx).With(zap.String("event", event.Type), zap.String("external_id", event.Data.ID))
	if event.Data.ID == "" {
		return false, validationError("data.id is required", nil)
	}

	switch event.Type {
	case "customer.subscription.created", "customer.subscription.updated":
		status := event.Data.Status
		if status == "" {
			status = "active"
		}
		if !lo.Contains(subscriptionStatuses, status) {
			return false, validationError("unknown subscription status", map[string]string{"status": status})
		}
		if event.Data.UserID == "" || event.Data.PlanID == "" {
			return false, validationError("data.userId and data.planId are required", nil)
		}
		err := s.store.UpsertSubscription(ctx, store.Subscription{
			ID:                util.NewID("sub"),
			UserID:            event.Data.UserID,
			PlanID:            event.Data.PlanID,
			Status:            status,
			Amount:            event.Data.Amount,
			CancelAtPeriodEnd: event.Data.CancelAtPeriodEnd,
			CurrentPeriodEnd:  event.Data.CurrentPeriodEnd,
			ExternalID:        event.Data.ID,
		})
		if err != nil {
			return true, err
		}
	case "customer.subscription.deleted":
		if err := s.setExternalStatus(ctx, event.Data.ID, "canceled"); err != nil {
			return true, err
		}
	case "invoice.payment_failed":
		if err := s.setExternalStatus(ctx, event.Data.ID, "past_due"); err != nil {
			return true, err
		}
	case "invoice.payment_succeeded":
		if err := s.setExternalStatus(ctx, event.Data.ID, "active"); err != nil {
			return true, err
		}
	default:
		log.Info("billing webhook ignored")
		return false, nil
	}
	log.Info("billing webhook applied")
	return true, nil
}

func (s *Service) setExternalStatus(ctx context.Context, externalID, status string) error {
	return orNotFound(s.store.SetSubscriptionStatusByExternalID(ctx, externalID, status), "Subscription")
}
