package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

var taskColumns = []string{
	"id", "org_id", "project_id", "title", "description", "status", "priority",
	"COALESCE(assignee_id, '')", "due_date", "completed_at", "estimated_hours", "actual_hours",
	"dependencies", "tags", "created_at", "updated_at",
}

// TaskFilter is the part of a task search that Postgres can answer. Empty
// slices and nil bounds leave the column unconstrained. Tags are matched in
// memory by the caller.
type TaskFilter struct {
	OrgID      string
	ProjectID  string
	Status     []string
	Priority   []string
	AssigneeID []string
	DueFrom    *time.Time
	DueTo      *time.Time
	// RequireDue excludes tasks without a due date.
	RequireDue bool
}

func scanTask(row scanner) (Task, error) {
	var (
		task                 Task
		due, completed       sql.NullTime
		estimated, actual    sql.NullFloat64
		dependencies, labels []byte
	)
	err := row.Scan(
		&task.ID, &task.OrgID, &task.ProjectID, &task.Title, &task.Description, &task.Status, &task.Priority,
		&task.AssigneeID, &due, &completed, &estimated, &actual, &dependencies, &labels,
		&task.CreatedAt, &task.UpdatedAt,
	)
	if err != nil {
		return Task{}, err
	}
	task.DueDate = timePtr(due)
	task.CompletedAt = timePtr(completed)
	task.EstimatedHours = floatPtr(estimated)
	task.ActualHours = floatPtr(actual)
	if task.Dependencies, err = decodeList(dependencies); err != nil {
		return Task{}, err
	}
	if task.Tags, err = decodeList(labels); err != nil {
		return Task{}, err
	}
	return task, nil
}

func (s *PostgresStore) queryTasks(ctx context.Context, q sq.SelectBuilder) ([]Task, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build task query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	tasks := []Task{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

func selectTasks() sq.SelectBuilder {
	return psql.Select(taskColumns...).From("tasks")
}

func (s *PostgresStore) GetTask(ctx context.Context, orgID, taskID string) (Task, error) {
	query, args, err := selectTasks().Where(sq.Eq{"org_id": orgID, "id": taskID}).ToSql()
	if err != nil {
		return Task{}, fmt.Errorf("build task query: %w", err)
	}
	return scanTask(s.db.QueryRowContext(ctx, query, args...))
}

func (s *PostgresStore) ListTasksByProject(ctx context.Context, orgID, projectID string) ([]Task, error) {
	return s.queryTasks(ctx, selectTasks().
		Where(sq.Eq{"org_id": orgID, "project_id": projectID}).
		OrderBy("created_at ASC"))
}

// ListTasksByStatus returns every org task when status is "all".
func (s *PostgresStore) ListTasksByStatus(ctx context.Context, orgID, status string) ([]Task, error) {
	q := selectTasks().Where(sq.Eq{"org_id": orgID}).OrderBy("created_at ASC")
	if status != "all" {
		q = q.Where(sq.Eq{"status": status})
	}
	return s.queryTasks(ctx, q)
}

// ListOverdueTasks returns pending tasks due before now. An empty orgID spans
// all organizations.
func (s *PostgresStore) ListOverdueTasks(ctx context.Context, orgID string, now time.Time) ([]Task, error) {
	q := selectTasks().
		Where(sq.Eq{"status": "pending"}).
		Where(sq.NotEq{"due_date": nil}).
		Where(sq.Lt{"due_date": now}).
		OrderBy("due_date ASC")
	if orgID != "" {
		q = q.Where(sq.Eq{"org_id": orgID})
	}
	return s.queryTasks(ctx, q)
}

func (s *PostgresStore) ListTasksFiltered(ctx context.Context, filter TaskFilter) ([]Task, error) {
	q := selectTasks().Where(sq.Eq{"org_id": filter.OrgID}).OrderBy("created_at ASC")
	if filter.ProjectID != "" {
		q = q.Where(sq.Eq{"project_id": filter.ProjectID})
	}
	if len(filter.Status) > 0 {
		q = q.Where(sq.Eq{"status": filter.Status})
	}
	if len(filter.Priority) > 0 {
		q = q.Where(sq.Eq{"priority": filter.Priority})
	}
	if len(filter.AssigneeID) > 0 {
		q = q.Where(sq.Eq{"assignee_id": filter.AssigneeID})
	}
	if filter.RequireDue {
		q = q.Where(sq.NotEq{"due_date": nil})
	}
	if filter.DueFrom != nil {
		q = q.Where(sq.GtOrEq{"due_date": *filter.DueFrom})
	}
	if filter.DueTo != nil {
		q = q.Where(sq.LtOrEq{"due_date": *filter.DueTo})
	}
	return s.queryTasks(ctx, q)
}

// ListAllTasks returns every task across organizations, for reindexing.
func (s *PostgresStore) ListAllTasks(ctx context.Context) ([]Task, error) {
	return s.queryTasks(ctx, selectTasks().OrderBy("created_at ASC"))
}

func (s *PostgresStore) CreateTask(ctx context.Context, task Task) error {
	query, args, err := psql.Insert("tasks").
		Columns("id", "org_id", "project_id", "title", "description", "status", "priority", "assignee_id",
			"due_date", "completed_at", "estimated_hours", "actual_hours", "dependencies", "tags").
		Values(task.ID, task.OrgID, task.ProjectID, task.Title, task.Description, task.Status, task.Priority,
			nullString(task.AssigneeID), nullTime(task.DueDate), nullTime(task.CompletedAt),
			nullFloat(task.EstimatedHours), nullFloat(task.ActualHours),
			encodeList(task.Dependencies), encodeList(task.Tags)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert task: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateTask(ctx context.Context, task Task) error {
	query, args, err := psql.Update("tasks").
		Set("title", task.Title).
		Set("description", task.Description).
		Set("status", task.Status).
		Set("priority", task.Priority).
		Set("assignee_id", nullString(task.AssigneeID)).
		Set("due_date", nullTime(task.DueDate)).
		Set("completed_at", nullTime(task.CompletedAt)).
		Set("estimated_hours", nullFloat(task.EstimatedHours)).
		Set("actual_hours", nullFloat(task.ActualHours)).
		Set("dependencies", encodeList(task.Dependencies)).
		Set("tags", encodeList(task.Tags)).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"org_id": task.OrgID, "id": task.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update task: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return affectedOrNotFound(res)
}

// UpdateTaskStatus sets the status and stamps completed_at; a nil
// completedAt clears it.
func (s *PostgresStore) UpdateTaskStatus(ctx context.Context, orgID, taskID, status string, completedAt *time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET status=$3, completed_at=$4, updated_at=NOW()
		WHERE org_id=$1 AND id=$2
	`, orgID, taskID, status, nullTime(completedAt))
	if err != nil {
		return fmt.Errorf("update task status: %w", err)
	}
	return affectedOrNotFound(res)
}

func (s *PostgresStore) DeleteTask(ctx context.Context, orgID, taskID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE org_id=$1 AND id=$2`, orgID, taskID)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return affectedOrNotFound(res)
}

// CountProjectTasks returns total and completed task counts for a project.
func (s *PostgresStore) CountProjectTasks(ctx context.Context, orgID, projectID string) (total, completed int, err error) {
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE status = 'completed')
		FROM tasks WHERE org_id=$1 AND project_id=$2
	`, orgID, projectID).Scan(&total, &completed)
	if err != nil {
		return 0, 0, fmt.Errorf("count project tasks: %w", err)
	}
	return total, completed, nil
}
