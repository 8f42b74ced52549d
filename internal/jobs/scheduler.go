// Package jobs runs periodic maintenance: notification expiry, email
// retention and reminder fan-out.
package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"nel/api/internal/logger"
	"nel/api/internal/metrics"
	"nel/api/internal/store"
)

const (
	JobExpireNotifications = "expire-notifications"
	JobCleanupEmails       = "cleanup-emails"
	JobCleanupEmailEvents  = "cleanup-email-events"
	JobPurgeSessions       = "purge-sessions"
	JobOverdueReminders    = "overdue-reminders"
	JobMaintenanceReminder = "maintenance-reminders"
)

// Retention windows for email bookkeeping.
const (
	FinalizedEmailRetention = 7 * 24 * time.Hour
	AbandonedEmailRetention = 4 * 7 * 24 * time.Hour
	EmailEventRetention     = 30 * 24 * time.Hour
)

// Store is the persistence the jobs touch.
type Store interface {
	DeleteExpiredNotifications(ctx context.Context, now time.Time) (int64, error)
	CleanupEmails(ctx context.Context, finalizedBefore, abandonedBefore time.Time) (int64, error)
	CleanupEmailEvents(ctx context.Context, before time.Time) (int64, error)
	PurgeExpiredSessions(ctx context.Context, now time.Time) (int64, error)
	ListOverdueTasks(ctx context.Context, orgID string, now time.Time) ([]store.Task, error)
	ListEquipmentDueForMaintenance(ctx context.Context, orgID string, now time.Time) ([]store.Equipment, error)
}

// Notifier creates a notification with the usual dedupe semantics and
// reports whether it collapsed onto an existing one.
type Notifier interface {
	Notify(ctx context.Context, n store.Notification) (store.Notification, bool, error)
}

// Job is a named unit of scheduled work.
type Job struct {
	Name string
	Spec string
	Run  func(ctx context.Context) (int64, error)
}

type Scheduler struct {
	store    Store
	notifier Notifier
	now      func() time.Time
	cron     *cron.Cron
	jobs     map[string]Job
	mu       sync.Mutex
	started  bool
}

func NewScheduler(st Store, notifier Notifier) *Scheduler {
	s := &Scheduler{
		store:    st,
		notifier: notifier,
		now:      func() time.Time { return time.Now().UTC() },
		cron:     cron.New(cron.WithLocation(time.UTC), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		jobs:     map[string]Job{},
	}
	for _, job := range s.defaultJobs() {
		s.jobs[job.Name] = job
	}
	return s
}

func (s *Scheduler) defaultJobs() []Job {
	return []Job{
		{Name: JobExpireNotifications, Spec: "@hourly", Run: s.expireNotifications},
		{Name: JobCleanupEmails, Spec: "15 * * * *", Run: s.cleanupEmails},
		{Name: JobPurgeSessions, Spec: "45 * * * *", Run: s.purgeSessions},
		{Name: JobCleanupEmailEvents, Spec: "30 3 * * *", Run: s.cleanupEmailEvents},
		{Name: JobOverdueReminders, Spec: "0 7 * * *", Run: s.overdueReminders},
		{Name: JobMaintenanceReminder, Spec: "10 7 * * *", Run: s.maintenanceReminders},
	}
}

// Names lists the registered jobs.
func (s *Scheduler) Names() []string {
	names := make([]string, 0, len(s.jobs))
	for _, job := range s.defaultJobs() {
		names = append(names, job.Name)
	}
	return names
}

// Start registers every job with cron and starts the scheduler goroutine.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	for _, job := range s.defaultJobs() {
		if _, err := s.cron.AddFunc(job.Spec, func() {
			_, _ = s.run(context.Background(), job)
		}); err != nil {
			return fmt.Errorf("schedule %s: %w", job.Name, err)
		}
	}
	s.cron.Start()
	s.started = true
	logger.GetLogger().Info("jobs: scheduler started", zap.Int("jobs", len(s.jobs)))
	return nil
}

// Stop waits for running jobs or for ctx to end.
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	started := s.started
	s.started = false
	s.mu.Unlock()
	if !started {
		return
	}
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}

// RunNow executes one job synchronously, for the admin CLI.
func (s *Scheduler) RunNow(ctx context.Context, name string) (int64, error) {
	job, ok := s.jobs[name]
	if !ok {
		return 0, fmt.Errorf("unknown job %q", name)
	}
	return s.run(ctx, job)
}

func (s *Scheduler) run(ctx context.Context, job Job) (int64, error) {
	log := logger.FromContext(ctx).With(zap.String("job", job.Name))
	started := time.Now()
	n, err := job.Run(ctx)
	if err != nil {
		metrics.JobRuns.WithLabelValues(job.Name, "error").Inc()
		log.Error("jobs: run failed", zap.Error(err), zap.Duration("elapsed", time.Since(started)))
		return n, err
	}
	metrics.JobRuns.WithLabelValues(job.Name, "ok").Inc()
	log.Info("jobs: run finished", zap.Int64("affected", n), zap.Duration("elapsed", time.Since(started)))
	return n, nil
}
