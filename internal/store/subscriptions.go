package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const planColumns = `id, name, price_id, amount, currency, interval, features, is_active`

const subscriptionColumns = `id, user_id, plan_id, status, amount, cancel_at_period_end, current_period_end,
	COALESCE(external_id, ''), created_at, updated_at`

func scanPlan(row scanner) (Plan, error) {
	var (
		plan     Plan
		features []byte
	)
	if err := row.Scan(&plan.ID, &plan.Name, &plan.PriceID, &plan.Amount, &plan.Currency, &plan.Interval,
		&features, &plan.IsActive); err != nil {
		return Plan{}, err
	}
	var err error
	if plan.Features, err = decodeList(features); err != nil {
		return Plan{}, err
	}
	return plan, nil
}

func scanSubscription(row scanner) (Subscription, error) {
	var (
		sub       Subscription
		periodEnd sql.NullTime
	)
	if err := row.Scan(&sub.ID, &sub.UserID, &sub.PlanID, &sub.Status, &sub.Amount, &sub.CancelAtPeriodEnd,
		&periodEnd, &sub.ExternalID, &sub.CreatedAt, &sub.UpdatedAt); err != nil {
		return Subscription{}, err
	}
	sub.CurrentPeriodEnd = timePtr(periodEnd)
	return sub, nil
}

func (s *PostgresStore) ListActivePlans(ctx context.Context) ([]Plan, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+planColumns+` FROM plans WHERE is_active ORDER BY amount ASC`)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	defer rows.Close()

	plans := []Plan{}
	for rows.Next() {
		plan, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		plans = append(plans, plan)
	}
	return plans, rows.Err()
}

func (s *PostgresStore) GetPlan(ctx context.Context, planID string) (Plan, error) {
	return scanPlan(s.db.QueryRowContext(ctx, `SELECT `+planColumns+` FROM plans WHERE id=$1`, planID))
}

func (s *PostgresStore) UpsertPlan(ctx context.Context, plan Plan) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO plans (id, name, price_id, amount, currency, interval, features, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name, price_id=EXCLUDED.price_id, amount=EXCLUDED.amount,
			currency=EXCLUDED.currency, interval=EXCLUDED.interval, features=EXCLUDED.features, is_active=EXCLUDED.is_active
	`, plan.ID, plan.Name, plan.PriceID, plan.Amount, plan.Currency, plan.Interval, encodeList(plan.Features), plan.IsActive)
	if err != nil {
		return fmt.Errorf("upsert plan: %w", err)
	}
	return nil
}

// GetActiveSubscription returns the user's newest active subscription.
func (s *PostgresStore) GetActiveSubscription(ctx context.Context, userID string) (Subscription, error) {
	return scanSubscription(s.db.QueryRowContext(ctx, `
		SELECT `+subscriptionColumns+` FROM subscriptions
		WHERE user_id=$1 AND status='active'
		ORDER BY created_at DESC
		LIMIT 1
	`, userID))
}

func (s *PostgresStore) GetSubscription(ctx context.Context, subscriptionID string) (Subscription, error) {
	return scanSubscription(s.db.QueryRowContext(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE id=$1`, subscriptionID))
}

func (s *PostgresStore) UpdateSubscription(ctx context.Context, sub Subscription) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE subscriptions
		SET plan_id=$2, status=$3, amount=$4, cancel_at_period_end=$5, current_period_end=$6, updated_at=NOW()
		WHERE id=$1
	`, sub.ID, sub.PlanID, sub.Status, sub.Amount, sub.CancelAtPeriodEnd, nullTime(sub.CurrentPeriodEnd))
	if err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}
	return affectedOrNotFound(res)
}

// UpsertSubscription inserts or refreshes a subscription keyed by its billing
// provider id.
func (s *PostgresStore) UpsertSubscription(ctx context.Context, sub Subscription) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subscriptions (id, user_id, plan_id, status, amount, cancel_at_period_end, current_period_end, external_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (external_id) DO UPDATE SET plan_id=EXCLUDED.plan_id, status=EXCLUDED.status,
			amount=EXCLUDED.amount, cancel_at_period_end=EXCLUDED.cancel_at_period_end,
			current_period_end=EXCLUDED.current_period_end, updated_at=NOW()
	`, sub.ID, sub.UserID, sub.PlanID, sub.Status, sub.Amount, sub.CancelAtPeriodEnd,
		nullTime(sub.CurrentPeriodEnd), sub.ExternalID)
	if err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}
	return nil
}

func (s *PostgresStore) SetSubscriptionStatusByExternalID(ctx context.Context, externalID, status string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE subscriptions SET status=$2, updated_at=NOW() WHERE external_id=$1
	`, externalID, status)
	if err != nil {
		return fmt.Errorf("set subscription status: %w", err)
	}
	return affectedOrNotFound(res)
}

func (s *PostgresStore) CancelSubscription(ctx context.Context, subscriptionID string, immediately bool, at time.Time) error {
	query := `UPDATE subscriptions SET cancel_at_period_end=TRUE, updated_at=$2 WHERE id=$1`
	if immediately {
		query = `UPDATE subscriptions SET status='canceled', cancel_at_period_end=FALSE, updated_at=$2 WHERE id=$1`
	}
	res, err := s.db.ExecContext(ctx, query, subscriptionID, at)
	if err != nil {
		return fmt.Errorf("cancel subscription: %w", err)
	}
	return affectedOrNotFound(res)
}

// SubscriptionAnalytics counts subscriptions by status; revenue sums active amounts.
func (s *PostgresStore) SubscriptionAnalytics(ctx context.Context) (SubscriptionAnalytics, error) {
	var stats SubscriptionAnalytics
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'active'),
			COUNT(*) FILTER (WHERE status = 'canceled'),
			COUNT(*) FILTER (WHERE status = 'past_due'),
			COALESCE(SUM(amount) FILTER (WHERE status = 'active'), 0)
		FROM subscriptions
	`).Scan(&stats.Total, &stats.Active, &stats.Canceled, &stats.PastDue, &stats.Revenue)
	if err != nil {
		return SubscriptionAnalytics{}, fmt.Errorf("subscription analytics: %w", err)
	}
	return stats, nil
}
