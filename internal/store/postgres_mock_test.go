package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unfulfilled expectations: %v", err)
		}
		_ = db.Close()
	})
	return NewPostgresStore(db), mock
}

var taskRowColumns = []string{
	"id", "org_id", "project_id", "title", "description", "status", "priority", "assignee_id",
	"due_date", "completed_at", "estimated_hours", "actual_hours", "dependencies", "tags", "created_at", "updated_at",
}

func TestListTasksFilteredPushesFiltersIntoSQL(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	from := now.Add(-48 * time.Hour)

	mock.ExpectQuery(`FROM tasks WHERE org_id = \$1 AND project_id = \$2 AND status IN \(\$3,\$4\) AND assignee_id IN \(\$5\) AND due_date IS NOT NULL AND due_date >= \$6 ORDER BY created_at ASC`).
		WithArgs("org_1", "prj_1", "pending", "blocked", "usr_1", from).
		WillReturnRows(sqlmock.NewRows(taskRowColumns).
			AddRow("tsk_1", "org_1", "prj_1", "Pour slab", "", "pending", "high", "usr_1",
				now, nil, 8.5, nil, `["tsk_0"]`, `["concrete"]`, now, now))

	tasks, err := s.ListTasksFiltered(context.Background(), TaskFilter{
		OrgID:      "org_1",
		ProjectID:  "prj_1",
		Status:     []string{"pending", "blocked"},
		AssigneeID: []string{"usr_1"},
		RequireDue: true,
		DueFrom:    &from,
	})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	task := tasks[0]
	assert.Equal(t, []string{"concrete"}, task.Tags)
	assert.Equal(t, []string{"tsk_0"}, task.Dependencies)
	require.NotNil(t, task.EstimatedHours)
	assert.Equal(t, 8.5, *task.EstimatedHours)
	assert.Nil(t, task.ActualHours)
	assert.Nil(t, task.CompletedAt)
	require.NotNil(t, task.DueDate)
}

func TestListTasksByStatusAllSkipsStatusPredicate(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`FROM tasks WHERE org_id = \$1 ORDER BY created_at ASC`).
		WithArgs("org_1").
		WillReturnRows(sqlmock.NewRows(taskRowColumns))

	tasks, err := s.ListTasksByStatus(context.Background(), "org_1", "all")
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestCreateUserMapsUniqueViolation(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`INSERT INTO users`).WillReturnError(&pgconn.PgError{Code: "23505"})

	err := s.CreateUser(context.Background(), User{ID: "usr_1", Email: "a@example.com"})
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestInsertNotificationCreatesRow(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM notifications WHERE user_id = \$1 AND dedupe_key = \$2 AND NOT read AND \(\(expires_at IS NOT NULL AND expires_at <= \$3\) OR created_at < \$4\)`).
		WithArgs("usr_1", "key-1", now, time.Time{}).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`INSERT INTO notifications .* ON CONFLICT \(user_id, dedupe_key\) WHERE NOT read DO NOTHING`).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(now))
	mock.ExpectCommit()

	n, deduplicated, err := s.InsertNotification(context.Background(), Notification{
		ID: "ntf_1", UserID: "usr_1", Title: "Hello", Message: "World", Type: "info", DedupeKey: "key-1",
	}, 0, now)
	require.NoError(t, err)
	assert.False(t, deduplicated)
	assert.Equal(t, "ntf_1", n.ID)
	assert.Equal(t, now, n.CreatedAt)
	assert.NotNil(t, n.Data)
}

func TestInsertNotificationReturnsExistingUnreadDuplicate(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	window := time.Hour

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM notifications`).
		WithArgs("usr_1", "key-1", now, now.Add(-window)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`INSERT INTO notifications`).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}))
	mock.ExpectQuery(`SELECT .* FROM notifications WHERE user_id = \$1 AND dedupe_key = \$2 AND NOT read`).
		WithArgs("usr_1", "key-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "org_id", "user_id", "title", "message", "type", "read", "read_at", "data", "dedupe_key", "expires_at", "created_at",
		}).AddRow("ntf_old", "org_1", "usr_1", "Hello", "World", "info", false, nil, `{"a":1}`, "key-1", nil, now.Add(-time.Minute)))
	mock.ExpectCommit()

	n, deduplicated, err := s.InsertNotification(context.Background(), Notification{
		ID: "ntf_new", UserID: "usr_1", Title: "Hello", Message: "World", Type: "info", DedupeKey: "key-1",
	}, window, now)
	require.NoError(t, err)
	assert.True(t, deduplicated)
	assert.Equal(t, "ntf_old", n.ID)
	assert.Equal(t, float64(1), n.Data["a"])
}

func TestMarkNotificationReadUnknownIsNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT dedupe_key FROM notifications`).
		WithArgs("usr_1", "ntf_x").
		WillReturnRows(sqlmock.NewRows([]string{"dedupe_key"}))

	err := s.MarkNotificationRead(context.Background(), "usr_1", "ntf_x", time.Now())
	assert.True(t, errors.Is(err, sql.ErrNoRows))
}

func TestMarkNotificationReadMarksDuplicates(t *testing.T) {
	s, mock := newMockStore(t)
	at := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT dedupe_key FROM notifications`).
		WithArgs("usr_1", "ntf_1").
		WillReturnRows(sqlmock.NewRows([]string{"dedupe_key"}).AddRow("key-1"))
	mock.ExpectExec(`UPDATE notifications SET read = \$1, read_at = \$2 WHERE user_id = \$3 AND \(id = \$4 OR dedupe_key = \$5\) AND NOT read`).
		WithArgs(true, at, "usr_1", "ntf_1", "key-1").
		WillReturnResult(sqlmock.NewResult(0, 2))

	require.NoError(t, s.MarkNotificationRead(context.Background(), "usr_1", "ntf_1", at))
}

func TestIncidentStatsAggregatesRows(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT severity, resolved, COUNT\(\*\)`).
		WithArgs("org_1").
		WillReturnRows(sqlmock.NewRows([]string{"severity", "resolved", "count"}).
			AddRow("high", true, 2).
			AddRow("high", false, 1).
			AddRow("low", false, 4))

	stats, err := s.IncidentStats(context.Background(), "org_1")
	require.NoError(t, err)
	assert.Equal(t, 7, stats.Total)
	assert.Equal(t, 2, stats.Resolved)
	assert.Equal(t, 5, stats.Pending)
	assert.Equal(t, map[string]int{"low": 4, "medium": 0, "high": 3, "critical": 0}, stats.BySeverity)
}

func TestClaimEmailReturnsExistingForReusedKey(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()
	mock.ExpectQuery(`INSERT INTO emails .* ON CONFLICT \(idempotency_key\) DO NOTHING`).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}))
	mock.ExpectQuery(`FROM emails WHERE idempotency_key=\$1`).
		WithArgs("welcome:usr_1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "provider", "provider_id", "template", "recipient", "subject", "status", "idempotency_key",
			"last_error", "attempts", "created_at", "updated_at",
		}).AddRow("eml_1", "resend", "re_1", "welcome", "a@example.com", "Welcome", "sent", "welcome:usr_1", "", 1, now, now))

	rec, created, err := s.ClaimEmail(context.Background(), EmailRecord{
		ID: "eml_2", Template: "welcome", Recipient: "a@example.com", Subject: "Welcome", IdempotencyKey: "welcome:usr_1",
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "eml_1", rec.ID)
	assert.Equal(t, "sent", rec.Status)
}

func TestCancelSubscriptionImmediately(t *testing.T) {
	s, mock := newMockStore(t)
	at := time.Now().UTC()
	mock.ExpectExec(`UPDATE subscriptions SET status='canceled', cancel_at_period_end=FALSE`).
		WithArgs("sub_1", at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE subscriptions SET cancel_at_period_end=TRUE`).
		WithArgs("sub_2", at).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.CancelSubscription(context.Background(), "sub_1", true, at))
	assert.ErrorIs(t, s.CancelSubscription(context.Background(), "sub_2", false, at), sql.ErrNoRows)
}

func TestLatestMetricsKeyedByMetric(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT DISTINCT ON \(metric\) metric, value`).
		WithArgs("org_1", "prj_1").
		WillReturnRows(sqlmock.NewRows([]string{"metric", "value"}).AddRow("quality", 91.0).AddRow("safety", 99.5))

	values, err := s.LatestMetrics(context.Background(), "org_1", "prj_1")
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"quality": 91, "safety": 99.5}, values)
}

var equipmentRowColumns = []string{
	"id", "org_id", "project_id", "name", "type", "status", "location", "operator_id", "maintenance_schedule",
	"last_maintenance", "next_maintenance", "hourly_rate", "daily_rate", "specifications", "created_at", "updated_at",
}

func TestListOverdueTasksOnlyPendingPastDue(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Date(2026, 6, 10, 12, 0, 0, 0, time.UTC)
	due := now.Add(-24 * time.Hour)

	mock.ExpectQuery(`FROM tasks WHERE status = \$1 AND due_date IS NOT NULL AND due_date < \$2 ORDER BY due_date ASC$`).
		WithArgs("pending", now).
		WillReturnRows(sqlmock.NewRows(taskRowColumns).
			AddRow("tsk_1", "org_1", "prj_1", "Pour slab", "", "pending", "high", "usr_1",
				due, nil, nil, nil, `[]`, `[]`, now, now))

	tasks, err := s.ListOverdueTasks(context.Background(), "", now)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "tsk_1", tasks[0].ID)
	require.NotNil(t, tasks[0].DueDate)
}

func TestListOverdueTasksScopedToOrg(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Date(2026, 6, 10, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM tasks WHERE status = \$1 AND due_date IS NOT NULL AND due_date < \$2 AND org_id = \$3 ORDER BY due_date ASC`).
		WithArgs("pending", now, "org_1").
		WillReturnRows(sqlmock.NewRows(taskRowColumns))

	tasks, err := s.ListOverdueTasks(context.Background(), "org_1", now)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestListEquipmentDueForMaintenanceIncludesNow(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Date(2026, 6, 10, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM equipment WHERE next_maintenance IS NOT NULL AND next_maintenance <= \$1 AND status <> \$2 ORDER BY next_maintenance ASC$`).
		WithArgs(now, "retired").
		WillReturnRows(sqlmock.NewRows(equipmentRowColumns).
			AddRow("eq_1", "org_1", "prj_1", "Crane", "crane", "available", nil, "usr_2", "monthly",
				nil, now, 120.0, 900.0, `{}`, now, now))

	items, err := s.ListEquipmentDueForMaintenance(context.Background(), "", now)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "usr_2", items[0].OperatorID)
	require.NotNil(t, items[0].NextMaintenance)
	assert.Equal(t, now, *items[0].NextMaintenance)
}

func TestDeleteExpiredNotificationsStrictlyBeforeNow(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Date(2026, 6, 10, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec(`DELETE FROM notifications WHERE expires_at IS NOT NULL AND expires_at < \$1$`).
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := s.DeleteExpiredNotifications(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
}

func TestListActiveNotificationsSkipsExpired(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Date(2026, 6, 10, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM notifications WHERE user_id = \$1 AND \(expires_at IS NULL OR expires_at > \$2\) ORDER BY created_at DESC LIMIT 50`).
		WithArgs("usr_1", now).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "org_id", "user_id", "title", "message", "type", "read", "read_at", "data", "dedupe_key", "expires_at", "created_at",
		}).AddRow("ntf_1", "org_1", "usr_1", "Hello", "World", "info", false, nil, nil, "key-1", nil, now))

	items, err := s.ListActiveNotifications(context.Background(), "usr_1", now, 50)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "key-1", items[0].DedupeKey)
}

func TestCountUnreadNotificationsCountsDedupeKeys(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Date(2026, 6, 10, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT COUNT\(DISTINCT dedupe_key\) FROM notifications WHERE user_id = \$1 AND NOT read AND \(expires_at IS NULL OR expires_at > \$2\)`).
		WithArgs("usr_1", now).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1250))

	n, err := s.CountUnreadNotifications(context.Background(), "usr_1", now)
	require.NoError(t, err)
	assert.Equal(t, 1250, n)
}

func TestDeleteNotificationRemovesDuplicates(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT dedupe_key FROM notifications WHERE user_id = \$1 AND id = \$2`).
		WithArgs("usr_1", "ntf_1").
		WillReturnRows(sqlmock.NewRows([]string{"dedupe_key"}).AddRow("key-1"))
	mock.ExpectExec(`DELETE FROM notifications WHERE user_id = \$1 AND \(id = \$2 OR dedupe_key = \$3\)`).
		WithArgs("usr_1", "ntf_1", "key-1").
		WillReturnResult(sqlmock.NewResult(0, 2))

	require.NoError(t, s.DeleteNotification(context.Background(), "usr_1", "ntf_1"))
}
