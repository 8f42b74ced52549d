package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nel/api/internal/store"
)

type fakeStore struct {
	expiredAt       time.Time
	finalizedBefore time.Time
	abandonedBefore time.Time
	eventsBefore    time.Time
	overdue         []store.Task
	maintenance     []store.Equipment
	overdueAt       time.Time
	maintenanceAt   time.Time
	err             error
}

func (f *fakeStore) DeleteExpiredNotifications(_ context.Context, now time.Time) (int64, error) {
	f.expiredAt = now
	return 3, f.err
}

func (f *fakeStore) CleanupEmails(_ context.Context, finalizedBefore, abandonedBefore time.Time) (int64, error) {
	f.finalizedBefore, f.abandonedBefore = finalizedBefore, abandonedBefore
	return 2, nil
}

func (f *fakeStore) CleanupEmailEvents(_ context.Context, before time.Time) (int64, error) {
	f.eventsBefore = before
	return 5, nil
}

func (f *fakeStore) PurgeExpiredSessions(context.Context, time.Time) (int64, error) {
	return 1, nil
}

func (f *fakeStore) ListOverdueTasks(_ context.Context, orgID string, now time.Time) ([]store.Task, error) {
	f.overdueAt = now
	if orgID != "" {
		return nil, errors.New("reminders must scan every organization")
	}
	return f.overdue, nil
}

func (f *fakeStore) ListEquipmentDueForMaintenance(_ context.Context, orgID string, now time.Time) ([]store.Equipment, error) {
	f.maintenanceAt = now
	if orgID != "" {
		return nil, errors.New("reminders must scan every organization")
	}
	return f.maintenance, nil
}

// fakeNotifier dedupes on user+key like the real notification path.
type fakeNotifier struct {
	sent []store.Notification
	seen map[string]bool
}

func (f *fakeNotifier) Notify(_ context.Context, n store.Notification) (store.Notification, bool, error) {
	key := n.UserID + "|" + n.DedupeKey
	if f.seen[key] {
		return n, true, nil
	}
	f.seen[key] = true
	f.sent = append(f.sent, n)
	return n, false, nil
}

var fixedNow = time.Date(2026, 6, 10, 12, 0, 0, 0, time.UTC)

func newTestScheduler(st *fakeStore) (*Scheduler, *fakeNotifier) {
	notifier := &fakeNotifier{seen: map[string]bool{}}
	s := NewScheduler(st, notifier)
	s.now = func() time.Time { return fixedNow }
	return s, notifier
}

func TestCleanupJobsUseRetentionWindows(t *testing.T) {
	st := &fakeStore{}
	s, _ := newTestScheduler(st)
	ctx := context.Background()

	n, err := s.RunNow(ctx, JobExpireNotifications)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.Equal(t, fixedNow, st.expiredAt)

	_, err = s.RunNow(ctx, JobCleanupEmails)
	require.NoError(t, err)
	assert.Equal(t, fixedNow.AddDate(0, 0, -7), st.finalizedBefore)
	assert.Equal(t, fixedNow.AddDate(0, 0, -28), st.abandonedBefore)

	_, err = s.RunNow(ctx, JobCleanupEmailEvents)
	require.NoError(t, err)
	assert.Equal(t, fixedNow.AddDate(0, 0, -30), st.eventsBefore)
}

func TestRunNowUnknownJob(t *testing.T) {
	s, _ := newTestScheduler(&fakeStore{})
	_, err := s.RunNow(context.Background(), "nope")
	assert.Error(t, err)
}

func TestRunNowPropagatesErrors(t *testing.T) {
	s, _ := newTestScheduler(&fakeStore{err: errors.New("db down")})
	_, err := s.RunNow(context.Background(), JobExpireNotifications)
	assert.EqualError(t, err, "db down")
}

func TestOverdueRemindersDeduplicate(t *testing.T) {
	due := fixedNow.Add(-48 * time.Hour)
	st := &fakeStore{overdue: []store.Task{
		{ID: "t1", OrgID: "org_1", ProjectID: "p1", Title: "Pour slab", AssigneeID: "u1", DueDate: &due},
		{ID: "t2", OrgID: "org_1", ProjectID: "p1", Title: "Unassigned", DueDate: &due},
	}}
	s, notifier := newTestScheduler(st)

	n, err := s.RunNow(context.Background(), JobOverdueReminders)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, fixedNow, st.overdueAt)
	require.Len(t, notifier.sent, 1)
	got := notifier.sent[0]
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, "warning", got.Type)
	assert.Equal(t, "task-overdue:t1", got.DedupeKey)
	assert.Contains(t, got.Message, "Jun 8, 2026")

	n, err = s.RunNow(context.Background(), JobOverdueReminders)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, notifier.sent, 1)
}

func TestMaintenanceReminders(t *testing.T) {
	next := fixedNow.Add(-time.Hour)
	st := &fakeStore{maintenance: []store.Equipment{
		{ID: "e1", OrgID: "org_1", Name: "Excavator", OperatorID: "op1", NextMaintenance: &next},
		{ID: "e2", OrgID: "org_1", Name: "Crane", NextMaintenance: &next},
	}}
	s, notifier := newTestScheduler(st)

	n, err := s.RunNow(context.Background(), JobMaintenanceReminder)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, fixedNow, st.maintenanceAt)
	require.Len(t, notifier.sent, 1)
	assert.Equal(t, "op1", notifier.sent[0].UserID)
	assert.Equal(t, "equipment-maintenance:e1", notifier.sent[0].DedupeKey)
}

func TestStartRegistersEverySpec(t *testing.T) {
	s, _ := newTestScheduler(&fakeStore{})
	require.NoError(t, s.Start())
	assert.Len(t, s.cron.Entries(), len(s.Names()))
	require.NoError(t, s.Start())
	assert.Len(t, s.cron.Entries(), len(s.Names()))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
}
