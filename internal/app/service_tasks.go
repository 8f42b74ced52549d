package app

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/samber/lo"

	"nel/api/internal/rbac"
	"nel/api/internal/search"
	"nel/api/internal/store"
	"nel/api/internal/util"
)

// TaskInput is a create or patch payload; nil fields are left unchanged.
type TaskInput struct {
	ProjectID      *string    `json:"projectId"`
	Title          *string    `json:"title"`
	Description    *string    `json:"description"`
	Status         *string    `json:"status"`
	Priority       *string    `json:"priority"`
	AssigneeID     *string    `json:"assigneeId"`
	DueDate        *time.Time `json:"dueDate"`
	EstimatedHours *float64   `json:"estimatedHours"`
	ActualHours    *float64   `json:"actualHours"`
	Dependencies   []string   `json:"dependencies"`
	Tags           []string   `json:"tags"`
}

func (in TaskInput) apply(t *store.Task) {
	if in.Title != nil {
		t.Title = strings.TrimSpace(*in.Title)
	}
	if in.Description != nil {
		t.Description = *in.Description
	}
	if in.Status != nil {
		t.Status = *in.Status
	}
	if in.Priority != nil {
		t.Priority = *in.Priority
	}
	if in.AssigneeID != nil {
		t.AssigneeID = *in.AssigneeID
	}
	if in.DueDate != nil {
		due := in.DueDate.UTC()
		t.DueDate = &due
	}
	if in.EstimatedHours != nil {
		t.EstimatedHours = in.EstimatedHours
	}
	if in.ActualHours != nil {
		t.ActualHours = in.ActualHours
	}
	if in.Dependencies != nil {
		t.Dependencies = lo.Uniq(in.Dependencies)
	}
	if in.Tags != nil {
		t.Tags = in.Tags
	}
}

func validateTask(t store.Task) error {
	errs := fieldErrors{}
	errs.required("projectId", t.ProjectID)
	errs.required("title", t.Title)
	errs.oneOf("status", t.Status, taskStatuses)
	errs.oneOf("priority", t.Priority, priorities)
	errs.check(t.EstimatedHours == nil || *t.EstimatedHours >= 0, "estimatedHours", "estimatedHours must not be negative")
	errs.check(t.ActualHours == nil || *t.ActualHours >= 0, "actualHours", "actualHours must not be negative")
	return errs.err()
}

// checkDependencies requires every dependency to be another task of the
// same project.
func (s *Service) checkDependencies(ctx context.Context, task store.Task) error {
	for _, dep := range task.Dependencies {
		if dep == task.ID {
			return validationError("A task cannot depend on itself", map[string]string{"dependencies": dep})
		}
		other, err := s.store.GetTask(ctx, task.OrgID, dep)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && other.ProjectID != task.ProjectID) {
			return validationError("Dependencies must be tasks in the same project", map[string]string{"dependencies": dep})
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// completion keeps completed_at in step with the status.
func completion(status string, previous *time.Time, now time.Time) *time.Time {
	if status != "completed" {
		return nil
	}
	if previous != nil {
		return previous
	}
	return &now
}

func (s *Service) GetTask(ctx context.Context, session Session, taskID string) (store.Task, error) {
	if err := s.authorizeOrg(session, rbac.ActionRead); err != nil {
		return store.Task{}, err
	}
	task, err := s.store.GetTask(ctx, session.OrgID, taskID)
	return task, orNotFound(err, "Task")
}

func (s *Service) ListTasksByProject(ctx context.Context, session Session, projectID string) ([]store.Task, error) {
	if err := s.authorizeOrg(session, rbac.ActionRead); err != nil {
		return nil, err
	}
	return s.store.ListTasksByProject(ctx, session.OrgID, projectID)
}

// ListTasksByStatus lists tasks with status; "all" lists every task.
func (s *Service) ListTasksByStatus(ctx context.Context, session Session, status string) ([]store.Task, error) {
	if err := s.authorizeOrg(session, rbac.ActionRead); err != nil {
		return nil, err
	}
	if status == "" || status == "all" {
		return s.store.ListTasksFiltered(ctx, store.TaskFilter{OrgID: session.OrgID})
	}
	errs := fieldErrors{}
	errs.oneOf("status", status, taskStatuses)
	if err := errs.err(); err != nil {
		return nil, err
	}
	return s.store.ListTasksByStatus(ctx, session.OrgID, status)
}

// ListOverdueTasks lists pending tasks whose due date has passed.
func (s *Service) ListOverdueTasks(ctx context.Context, session Session) ([]store.Task, error) {
	if err := s.authorizeOrg(session, rbac.ActionRead); err != nil {
		return nil, err
	}
	return s.store.ListOverdueTasks(ctx, session.OrgID, s.now())
}

func (s *Service) CreateTask(ctx context.Context, session Session, in TaskInput) (store.Task, error) {
	if err := s.authorizeOrg(session, rbac.ActionWrite); err != nil {
		return store.Task{}, err
	}
	task := store.Task{
		ID:       util.NewID("tsk"),
		OrgID:    session.OrgID,
		Status:   "pending",
		Priority: "medium",
	}
	if in.ProjectID != nil {
		task.ProjectID = *in.ProjectID
	}
	in.apply(&task)
	if err := validateTask(task); err != nil {
		return store.Task{}, err
	}
	if _, err := s.store.GetProject(ctx, session.OrgID, task.ProjectID); err != nil {
		return store.Task{}, orNotFound(err, "Project")
	}
	if err := s.checkDependencies(ctx, task); err != nil {
		return store.Task{}, err
	}
	now := s.now()
	task.CompletedAt = completion(task.Status, nil, now)
	if err := s.store.CreateTask(ctx, task); err != nil {
		return store.Task{}, err
	}
	task.CreatedAt, task.UpdatedAt = now, now
	s.search.IndexTask(task)
	return task, nil
}

// UpdateTask patches a task. Moving a task between projects is not allowed.
func (s *Service) UpdateTask(ctx context.Context, session Session, taskID string, in TaskInput) (store.Task, error) {
	if err := s.authorizeOrg(session, rbac.ActionWrite); err != nil {
		return store.Task{}, err
	}
	task, err := s.store.GetTask(ctx, session.OrgID, taskID)
	if err != nil {
		return store.Task{}, orNotFound(err, "Task")
	}
	if in.ProjectID != nil && *in.ProjectID != task.ProjectID {
		return store.Task{}, validationError("projectId cannot be changed", nil)
	}
	in.apply(&task)
	if err := validateTask(task); err != nil {
		return store.Task{}, err
	}
	if in.Dependencies != nil {
		if err := s.checkDependencies(ctx, task); err != nil {
			return store.Task{}, err
		}
	}
	now := s.now()
	task.CompletedAt = completion(task.Status, task.CompletedAt, now)
	if err := s.store.UpdateTask(ctx, task); err != nil {
		return store.Task{}, orNotFound(err, "Task")
	}
	task.UpdatedAt = now
	s.search.IndexTask(task)
	return task, nil
}

// UpdateTaskStatus sets completed_at when the task becomes completed and
// clears it otherwise.
func (s *Service) UpdateTaskStatus(ctx context.Context, session Session, taskID, status string) (store.Task, error) {
	if err := s.authorizeOrg(session, rbac.ActionWrite); err != nil {
		return store.Task{}, err
	}
	errs := fieldErrors{}
	errs.oneOf("status", status, taskStatuses)
	if err := errs.err(); err != nil {
		return store.Task{}, err
	}
	task, err := s.store.GetTask(ctx, session.OrgID, taskID)
	if err != nil {
		return store.Task{}, orNotFound(err, "Task")
	}
	now := s.now()
	var completedAt *time.Time
	if status == "completed" {
		completedAt = &now
	}
	if err := s.store.UpdateTaskStatus(ctx, session.OrgID, taskID, status, completedAt); err != nil {
		return store.Task{}, orNotFound(err, "Task")
	}
	task.Status, task.CompletedAt, task.UpdatedAt = status, completedAt, now
	s.search.IndexTask(task)
	return task, nil
}

func (s *Service) DeleteTask(ctx context.Context, session Session, taskID string) error {
	if err := s.authorizeOrg(session, rbac.ActionWrite); err != nil {
		return err
	}
	if err := s.store.DeleteTask(ctx, session.OrgID, taskID); err != nil {
		return orNotFound(err, "Task")
	}
	s.search.DeleteTask(taskID)
	return nil
}

// Search runs the task and project search for the caller's organization.
func (s *Service) Search(ctx context.Context, session Session, opts search.Options) (search.Result, error) {
	if err := s.authorizeOrg(session, rbac.ActionRead); err != nil {
		return search.Result{}, err
	}
	return s.search.Search(ctx, session.OrgID, opts)
}
