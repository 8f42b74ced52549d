package jobs

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"nel/api/internal/logger"
	"nel/api/internal/metrics"
	"nel/api/internal/store"
)

func (s *Scheduler) expireNotifications(ctx context.Context) (int64, error) {
	n, err := s.store.DeleteExpiredNotifications(ctx, s.now())
	if err != nil {
		return 0, err
	}
	metrics.NotificationsExpired.Add(float64(n))
	return n, nil
}

func (s *Scheduler) cleanupEmails(ctx context.Context) (int64, error) {
	now := s.now()
	return s.store.CleanupEmails(ctx, now.Add(-FinalizedEmailRetention), now.Add(-AbandonedEmailRetention))
}

func (s *Scheduler) cleanupEmailEvents(ctx context.Context) (int64, error) {
	return s.store.CleanupEmailEvents(ctx, s.now().Add(-EmailEventRetention))
}

func (s *Scheduler) purgeSessions(ctx context.Context) (int64, error) {
	return s.store.PurgeExpiredSessions(ctx, s.now())
}

// overdueReminders sends one warning per overdue assigned task. The dedupe
// key keeps repeated runs from stacking reminders while one is unread.
func (s *Scheduler) overdueReminders(ctx context.Context) (int64, error) {
	now := s.now()
	tasks, err := s.store.ListOverdueTasks(ctx, "", now)
	if err != nil {
		return 0, fmt.Errorf("list overdue tasks: %w", err)
	}

	var sent int64
	for _, task := range tasks {
		if task.AssigneeID == "" || task.DueDate == nil {
			continue
		}
		_, dup, err := s.notifier.Notify(ctx, store.Notification{
			OrgID:     task.OrgID,
			UserID:    task.AssigneeID,
			Type:      "warning",
			Title:     "Task overdue",
			Message:   fmt.Sprintf("%q was due on %s.", task.Title, task.DueDate.Format("Jan 2, 2006")),
			DedupeKey: "task-overdue:" + task.ID,
			Data:      map[string]any{"taskId": task.ID, "projectId": task.ProjectID},
		})
		if err != nil {
			logger.FromContext(ctx).Warn("jobs: overdue reminder failed", zap.String("task_id", task.ID), zap.Error(err))
			continue
		}
		if !dup {
			sent++
		}
	}
	return sent, nil
}

func (s *Scheduler) maintenanceReminders(ctx context.Context) (int64, error) {
	now := s.now()
	items, err := s.store.ListEquipmentDueForMaintenance(ctx, "", now)
	if err != nil {
		return 0, fmt.Errorf("list equipment due for maintenance: %w", err)
	}

	var sent int64
	for _, item := range items {
		if item.OperatorID == "" || item.NextMaintenance == nil {
			continue
		}
		_, dup, err := s.notifier.Notify(ctx, store.Notification{
			OrgID:     item.OrgID,
			UserID:    item.OperatorID,
			Type:      "warning",
			Title:     "Maintenance due",
			Message:   fmt.Sprintf("%s is due for maintenance (scheduled %s).", item.Name, item.NextMaintenance.Format("Jan 2, 2006")),
			DedupeKey: "equipment-maintenance:" + item.ID,
			Data:      map[string]any{"equipmentId": item.ID, "projectId": item.ProjectID},
		})
		if err != nil {
			logger.FromContext(ctx).Warn("jobs: maintenance reminder failed", zap.String("equipment_id", item.ID), zap.Error(err))
			continue
		}
		if !dup {
			sent++
		}
	}
	return sent, nil
}
